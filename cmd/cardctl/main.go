// Command cardctl renders, checks and exports card designs offline, without
// the API, database or object storage.
package main

func main() {
	Execute()
}
