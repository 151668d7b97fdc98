// Package converter executes conversion tasks against the external
// automation service, one at a time, under a single bound session.
package converter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"swbatch/internal/automation"
	"swbatch/internal/formats"
	"swbatch/internal/models"
)

// ErrNotConnected is returned when a conversion is attempted before
// Connect succeeded or after Disconnect.
var ErrNotConnected = errors.New("session not connected")

// ProgressFunc receives batch progress. It is called exactly twice per
// task: once before processing starts with a nil status, and once after a
// result exists with the terminal status. current is 1-based.
type ProgressFunc func(current, total int, task *models.ConversionTask, status *models.Status)

// Session owns one connection to the automation service. A session and
// every call made through it must stay on the execution context that
// connected it; Run confines a whole batch to a locked OS thread for
// callers that need that handled for them.
type Session struct {
	svc       automation.Service
	logger    *slog.Logger
	connected bool
}

// NewSession wraps an automation service in a disconnected session.
func NewSession(svc automation.Service, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{svc: svc, logger: logger}
}

// Connect attaches to the external application. Connecting an already
// connected session is a no-op.
func (s *Session) Connect(ctx context.Context) error {
	if s.connected {
		return nil
	}
	if err := s.svc.Connect(ctx); err != nil {
		return err
	}
	s.connected = true
	return nil
}

// Disconnect releases the connection. Idempotent.
func (s *Session) Disconnect() {
	if !s.connected {
		return
	}
	s.svc.Disconnect()
	s.connected = false
}

// WithSession connects a new session over svc, runs fn, and guarantees
// exactly one Disconnect on every exit path including panics. A connect
// failure is returned before fn runs.
func WithSession(ctx context.Context, svc automation.Service, logger *slog.Logger, fn func(*Session) error) error {
	s := NewSession(svc, logger)
	if err := s.Connect(ctx); err != nil {
		return err
	}
	defer s.Disconnect()
	return fn(s)
}

// ConvertSingle opens, exports and closes one document. An empty handle
// from the open call is classified as OPEN_FAILED, not returned as an
// error; export outcomes are classified as SUCCESS or FAILED with the
// echoed error and warning codes. The opened document is closed by title
// on every path, and a close failure never alters the classification.
func (s *Session) ConvertSingle(task *models.ConversionTask) (models.ConversionResult, error) {
	if !s.connected {
		return models.ConversionResult{}, ErrNotConnected
	}

	if err := os.MkdirAll(task.OutputDir, 0o755); err != nil {
		return models.ConversionResult{}, fmt.Errorf("create output directory %s: %w", task.OutputDir, err)
	}

	docType, err := formats.DocTypeForSource(task.SourcePath)
	if err != nil {
		return models.ConversionResult{}, err
	}

	s.logger.Debug("converting", "source", task.RelativeSource(), "format", task.Format)

	doc, err := s.svc.Open(task.SourcePath, docType)
	if err != nil || doc == nil {
		msg := fmt.Sprintf("could not open document: %s", task.SourcePath)
		if err != nil {
			msg = fmt.Sprintf("%s: %v", msg, err)
		}
		s.logger.Error("document open failed", "source", task.SourcePath, "error", err)
		return models.ConversionResult{Task: task, Status: models.StatusOpenFailed, Message: msg}, nil
	}

	defer func() {
		title := doc.Title()
		if closeErr := s.svc.Close(title); closeErr != nil {
			s.logger.Warn("failed to close document", "title", title, "error", closeErr)
		}
	}()

	outcome, err := doc.Export(task.OutputPath())
	if err != nil {
		s.logger.Error("export failed", "source", task.RelativeSource(), "error", err)
		return models.ConversionResult{
			Task:    task,
			Status:  models.StatusFailed,
			Message: fmt.Sprintf("export failed: %v", err),
		}, nil
	}

	if !outcome.Success {
		s.logger.Error("export failed",
			"source", task.RelativeSource(),
			"error_code", outcome.ErrorCode,
			"warning_code", outcome.WarningCode)
		return models.ConversionResult{
			Task:        task,
			Status:      models.StatusFailed,
			Message:     fmt.Sprintf("export failed (error: %d, warning: %d)", outcome.ErrorCode, outcome.WarningCode),
			ErrorCode:   outcome.ErrorCode,
			WarningCode: outcome.WarningCode,
		}, nil
	}

	s.logger.Info("converted", "source", task.RelativeSource(), "output", task.RelativeOutput())
	return models.ConversionResult{
		Task:        task,
		Status:      models.StatusSuccess,
		Message:     fmt.Sprintf("converted (error: %d, warning: %d)", outcome.ErrorCode, outcome.WarningCode),
		ErrorCode:   outcome.ErrorCode,
		WarningCode: outcome.WarningCode,
	}, nil
}

// ConvertBatch processes tasks strictly in the order given, one at a
// time, and returns one result per processed task in the same order. A
// failure on one task never aborts the batch; only a lost connection
// does. Cancellation is cooperative: the context is checked once before
// each task, an in-flight task always runs to completion, and a cancelled
// batch returns the results produced so far together with ctx.Err.
func (s *Session) ConvertBatch(ctx context.Context, tasks []*models.ConversionTask, onProgress ProgressFunc, skipExisting bool) ([]models.ConversionResult, error) {
	results := make([]models.ConversionResult, 0, len(tasks))
	total := len(tasks)

	for i, task := range tasks {
		if err := ctx.Err(); err != nil {
			s.logger.Info("batch cancelled", "completed", len(results), "total", total)
			return results, err
		}

		current := i + 1
		if onProgress != nil {
			onProgress(current, total, task, nil)
		}

		var result models.ConversionResult
		if skipExisting && !task.NeedsConversion() {
			result = models.ConversionResult{
				Task:    task,
				Status:  models.StatusSkipped,
				Message: "output is up to date",
			}
		} else {
			var err error
			result, err = s.ConvertSingle(task)
			if errors.Is(err, ErrNotConnected) {
				return results, err
			}
			if err != nil {
				result = models.ConversionResult{
					Task:    task,
					Status:  models.StatusFailed,
					Message: err.Error(),
				}
			}
		}

		results = append(results, result)
		if onProgress != nil {
			status := result.Status
			onProgress(current, total, task, &status)
		}
	}

	return results, nil
}
