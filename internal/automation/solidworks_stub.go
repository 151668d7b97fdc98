//go:build !windows

package automation

import (
	"context"
	"fmt"
	"log/slog"
)

type unavailable struct{}

// NewSolidWorks returns a Service whose Connect always fails: the
// SolidWorks COM interface only exists on Windows.
func NewSolidWorks(logger *slog.Logger, visible bool) Service {
	_ = logger
	_ = visible
	return unavailable{}
}

func (unavailable) Connect(ctx context.Context) error {
	return fmt.Errorf("%w: SolidWorks COM automation requires Windows", ErrServiceUnavailable)
}

func (unavailable) Disconnect() {}

func (unavailable) Open(path string, docType int) (Document, error) {
	return nil, ErrServiceUnavailable
}

func (unavailable) Close(title string) error {
	return ErrServiceUnavailable
}
