package assetgate

import (
	"context"
	"fmt"
	"io"

	"github.com/dutchcoders/go-clamd"
)

// Scanner checks an upload for malware before it reaches storage.
type Scanner interface {
	Scan(ctx context.Context, r io.Reader) error
}

// ClamdScanner streams the upload to clamd.
type ClamdScanner struct {
	Addr string
}

func (s ClamdScanner) Scan(ctx context.Context, r io.Reader) error {
	client := clamd.NewClamd(s.Addr)

	abortChan := make(chan bool)
	defer close(abortChan)

	scanChan, err := client.ScanStream(r, abortChan)
	if err != nil {
		return fmt.Errorf("clamd scan stream: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case result, ok := <-scanChan:
			if !ok {
				return nil
			}
			if result.Status != clamd.RES_OK {
				return fmt.Errorf("%w: %s", ErrMalware, result.Description)
			}
		}
	}
}

// NopScanner accepts everything. Only used when no clamd address is
// configured.
type NopScanner struct{}

func (NopScanner) Scan(context.Context, io.Reader) error { return nil }
