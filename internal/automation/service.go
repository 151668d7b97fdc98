// Package automation models the SolidWorks COM automation surface as an
// opaque service: a connect/disconnect pair, a document open call that may
// yield no handle, an export call, and a close-by-title call.
package automation

import (
	"context"
	"errors"
)

// ErrServiceUnavailable indicates the external application could not be
// launched or attached, for example when SolidWorks is not installed or
// its COM registration is missing.
var ErrServiceUnavailable = errors.New("automation service unavailable")

// ExportOutcome is what the service reports for one export call. Error
// and warning codes are only populated by the richer export entry point;
// the boolean fallback leaves them zero.
type ExportOutcome struct {
	Success     bool
	ErrorCode   int
	WarningCode int
}

// Document is an open document handle held by the service.
type Document interface {
	// Title is the key later used to close the document.
	Title() string

	// Export saves the document to the given path in the format implied
	// by the path's extension.
	Export(path string) (ExportOutcome, error)
}

// Service is a stateful connection to the external application. All
// methods must be called from the single execution context that called
// Connect, for the whole lifetime of the connection.
type Service interface {
	// Connect launches or attaches to the external application. Returns
	// an error wrapping ErrServiceUnavailable when that fails.
	Connect(ctx context.Context) error

	// Disconnect releases the connection. Safe to call when already
	// disconnected.
	Disconnect()

	// Open asks the application to open the source document. A nil
	// document with a nil error means the application returned an empty
	// handle.
	Open(path string, docType int) (Document, error)

	// Close closes an open document by its title.
	Close(title string) error
}
