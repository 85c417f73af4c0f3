// Package export renders a canvas to a print-ready PDF via headless Chrome.
package export

import "errors"

// Result contains the export output.
type Result struct {
	Data     []byte
	Filename string
	MimeType string
}

// ErrPDFDependencyMissing indicates headless Chrome is not installed.
var ErrPDFDependencyMissing = errors.New("export pdf dependency missing")
