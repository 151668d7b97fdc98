package converter

import (
	"context"
	"log/slog"
	"runtime"

	"swbatch/internal/automation"
	"swbatch/internal/models"
)

// RunOptions configures a confined batch run.
type RunOptions struct {
	SkipExisting bool
	OnProgress   ProgressFunc
}

// Run executes a complete connect, convert-batch, disconnect lifecycle on
// a dedicated goroutine pinned to one OS thread. The COM automation
// surface is apartment-threaded: the thread that connects must be the
// thread that makes every subsequent call and finally disconnects, and
// Run is the entry point that honors that for callers living on other
// goroutines. OnProgress is invoked from the pinned goroutine and must
// not touch caller state without its own synchronization.
func Run(ctx context.Context, svc automation.Service, logger *slog.Logger, tasks []*models.ConversionTask, opts RunOptions) ([]models.ConversionResult, error) {
	type outcome struct {
		results []models.ConversionResult
		err     error
	}

	done := make(chan outcome, 1)
	go func() {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()

		var out outcome
		out.err = WithSession(ctx, svc, logger, func(s *Session) error {
			var err error
			out.results, err = s.ConvertBatch(ctx, tasks, opts.OnProgress, opts.SkipExisting)
			return err
		})
		done <- out
	}()

	out := <-done
	return out.results, out.err
}
