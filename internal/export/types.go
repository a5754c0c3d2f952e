package export

import "errors"

// Result holds a generated file ready to stream to the client.
type Result struct {
	Data     []byte
	Filename string
	MimeType string
}

// ErrPDFDependencyMissing indicates headless Chrome is not installed.
var ErrPDFDependencyMissing = errors.New("pdf export dependency missing")
