// Package export renders backend snapshots to files and uploads them to
// S3-compatible object storage.
package export

import (
	"github.com/pkg/errors"
)

// Format represents the export output format
type Format string

const (
	FormatJSON   Format = "json"
	FormatNDJSON Format = "ndjson"
	FormatHTML   Format = "html"
)

// Request contains parameters for an export operation
type Request struct {
	Format Format
	// Upload stores the rendered file in object storage.
	Upload bool
}

// Result contains the export output
type Result struct {
	Data     []byte `json:"-"`
	Filename string `json:"filename"`
	MimeType string `json:"mimeType"`
	// ObjectKey is set when the file was uploaded.
	ObjectKey string `json:"objectKey,omitempty"`
	Rows      int    `json:"rows"`
}

var (
	// ErrUnsupportedFormat indicates the requested format is not known.
	ErrUnsupportedFormat = errors.New("export format not supported")
	// ErrStorageUnavailable indicates no object storage is configured.
	ErrStorageUnavailable = errors.New("export storage unavailable")
)

// ParseFormat maps a format name to a Format; empty means JSON.
func ParseFormat(name string) (Format, error) {
	switch Format(name) {
	case "", FormatJSON:
		return FormatJSON, nil
	case FormatNDJSON:
		return FormatNDJSON, nil
	case FormatHTML:
		return FormatHTML, nil
	default:
		return "", errors.Wrapf(ErrUnsupportedFormat, "%q", name)
	}
}

func (f Format) mimeType() string {
	switch f {
	case FormatNDJSON:
		return "application/x-ndjson"
	case FormatHTML:
		return "text/html; charset=utf-8"
	default:
		return "application/json"
	}
}
