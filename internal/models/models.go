package models

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"swbatch/internal/formats"
)

// Status is the terminal classification of a conversion attempt.
type Status string

const (
	StatusSuccess    Status = "success"
	StatusFailed     Status = "failed"
	StatusSkipped    Status = "skipped"
	StatusOpenFailed Status = "open_failed"
)

// ConversionTask represents one (source file, target format, output root)
// conversion unit. Tasks are created by the scanner and never mutated
// afterwards; the memoized output path is the only write-once field.
type ConversionTask struct {
	SourcePath string               `json:"source_path"`
	OutputDir  string               `json:"output_dir"`
	Format     formats.ExportFormat `json:"format"`

	// InputRoot and BaseOutputRoot are optional display context only and
	// never affect correctness.
	InputRoot      string `json:"input_root,omitempty"`
	BaseOutputRoot string `json:"base_output_root,omitempty"`

	outputPath string
}

// OutputPath returns the deterministic output file location:
// OutputDir joined with the source file stem plus the format extension.
// The value is computed once and cached for the task's lifetime.
func (t *ConversionTask) OutputPath() string {
	if t.outputPath == "" {
		stem := strings.TrimSuffix(filepath.Base(t.SourcePath), filepath.Ext(t.SourcePath))
		t.outputPath = filepath.Join(t.OutputDir, stem+t.Format.Extension())
	}
	return t.outputPath
}

// SourceModTime returns the source file's last-modified time.
func (t *ConversionTask) SourceModTime() (time.Time, error) {
	info, err := os.Stat(t.SourcePath)
	if err != nil {
		return time.Time{}, err
	}
	return info.ModTime(), nil
}

// NeedsConversion reports whether the output is missing or older than the
// source. This is an mtime-only heuristic: content is never hashed, so a
// rewritten source with an untouched mtime counts as current and a touched
// but unchanged source counts as stale.
func (t *ConversionTask) NeedsConversion() bool {
	outInfo, err := os.Stat(t.OutputPath())
	if err != nil {
		return true
	}
	srcInfo, err := os.Stat(t.SourcePath)
	if err != nil {
		return true
	}
	return outInfo.ModTime().Before(srcInfo.ModTime())
}

// RelativeSource returns the source path relative to the input root when
// that is known, for display purposes. Falls back to the base name.
func (t *ConversionTask) RelativeSource() string {
	if t.InputRoot != "" {
		if rel, err := filepath.Rel(t.InputRoot, t.SourcePath); err == nil && !strings.HasPrefix(rel, "..") {
			return rel
		}
	}
	return filepath.Base(t.SourcePath)
}

// RelativeOutput returns the output path relative to the base output root
// when that is known, for display purposes. Falls back to the base name.
func (t *ConversionTask) RelativeOutput() string {
	if t.BaseOutputRoot != "" {
		if rel, err := filepath.Rel(t.BaseOutputRoot, t.OutputPath()); err == nil && !strings.HasPrefix(rel, "..") {
			return rel
		}
	}
	return filepath.Base(t.OutputPath())
}

func (t *ConversionTask) String() string {
	state := "up to date"
	if t.NeedsConversion() {
		state = "pending"
	}
	return fmt.Sprintf("[%s] %s -> %s", state, filepath.Base(t.SourcePath), strings.ToUpper(t.Format.String()))
}

// ConversionResult is the outcome of attempting one task. ErrorCode and
// WarningCode echo whatever the automation service reported; they are zero
// when the simpler export entry point was used.
type ConversionResult struct {
	Task        *ConversionTask `json:"task"`
	Status      Status          `json:"status"`
	Message     string          `json:"message,omitempty"`
	ErrorCode   int             `json:"error_code,omitempty"`
	WarningCode int             `json:"warning_code,omitempty"`
}

// ConversionStats is a pure reduction of a result list into summary
// counts. Failed subsumes every non-success, non-skip status.
type ConversionStats struct {
	Success int `json:"success"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
}

// StatsFromResults folds a result list into summary counts. Both FAILED
// and OPEN_FAILED count toward Failed.
func StatsFromResults(results []ConversionResult) ConversionStats {
	var stats ConversionStats
	for _, r := range results {
		switch r.Status {
		case StatusSuccess:
			stats.Success++
		case StatusSkipped:
			stats.Skipped++
		default:
			stats.Failed++
		}
	}
	return stats
}

// Total is the sum of all counters and equals the length of the result
// list the stats were built from.
func (s ConversionStats) Total() int {
	return s.Success + s.Skipped + s.Failed
}

func (s ConversionStats) Summary() string {
	return fmt.Sprintf("success: %d, skipped: %d, failed: %d", s.Success, s.Skipped, s.Failed)
}

// ProgressEvent is sent to clients over WebSocket while a batch run is
// executing. Status is "running" while a task is in flight, a terminal
// Status value once the task completes, and a run-level state in the
// closing event.
type ProgressEvent struct {
	RunID   string `json:"run_id"`
	Current int    `json:"current,omitempty"`
	Total   int    `json:"total,omitempty"`
	Source  string `json:"source,omitempty"`
	Format  string `json:"format,omitempty"`
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`

	Stats *ConversionStats `json:"stats,omitempty"`
}
