package main

import (
	"encoding/json"
	"io"

	"gopkg.in/yaml.v3"
)

// printResult writes v as YAML (text) or indented JSON.
func printResult(w io.Writer, v any) error {
	if outputFormat == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}
