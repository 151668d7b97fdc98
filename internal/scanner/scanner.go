package scanner

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"swbatch/internal/formats"
	"swbatch/internal/models"
)

// ErrInputDirNotFound aborts a scan when the input root does not exist.
var ErrInputDirNotFound = errors.New("input directory not found")

// tempFilePrefix marks transient SolidWorks lock files that must never be
// picked up by a scan.
const tempFilePrefix = "~$"

// Scanner walks an input directory tree and expands each eligible source
// file into one ConversionTask per requested format.
type Scanner struct {
	InputRoot         string
	OutputRoot        string
	Formats           []formats.ExportFormat
	PreserveStructure bool
	InputExtensions   map[string]struct{}
}

// New builds a Scanner. A nil format list defaults to [STL] and a nil
// extension list defaults to [".sldprt"]. Roots are resolved to absolute
// paths so that task display helpers produce stable relative paths.
func New(inputRoot, outputRoot string, exportFormats []formats.ExportFormat, preserveStructure bool, inputExtensions []string) *Scanner {
	if len(exportFormats) == 0 {
		exportFormats = []formats.ExportFormat{formats.STL}
	}
	if len(inputExtensions) == 0 {
		inputExtensions = []string{".sldprt"}
	}

	exts := make(map[string]struct{}, len(inputExtensions))
	for _, ext := range inputExtensions {
		exts[strings.ToLower(ext)] = struct{}{}
	}

	if abs, err := filepath.Abs(inputRoot); err == nil {
		inputRoot = abs
	}
	if abs, err := filepath.Abs(outputRoot); err == nil {
		outputRoot = abs
	}

	return &Scanner{
		InputRoot:         inputRoot,
		OutputRoot:        outputRoot,
		Formats:           exportFormats,
		PreserveStructure: preserveStructure,
		InputExtensions:   exts,
	}
}

// Scan traverses the input root and returns every conversion task found,
// whether or not it needs converting. WalkDir visits entries in lexical
// order, so the result is deterministic for a fixed filesystem state.
func (s *Scanner) Scan() ([]*models.ConversionTask, error) {
	info, err := os.Stat(s.InputRoot)
	if err != nil || !info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrInputDirNotFound, s.InputRoot)
	}

	var tasks []*models.ConversionTask
	err = filepath.WalkDir(s.InputRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}

		name := d.Name()
		if strings.HasPrefix(name, tempFilePrefix) {
			return nil
		}
		if _, ok := s.InputExtensions[strings.ToLower(filepath.Ext(name))]; !ok {
			return nil
		}

		outputDir := s.OutputRoot
		if s.PreserveStructure {
			rel, relErr := filepath.Rel(s.InputRoot, filepath.Dir(path))
			if relErr != nil {
				return relErr
			}
			outputDir = filepath.Join(s.OutputRoot, rel)
		}

		for _, f := range s.Formats {
			tasks = append(tasks, &models.ConversionTask{
				SourcePath:     path,
				OutputDir:      outputDir,
				Format:         f,
				InputRoot:      s.InputRoot,
				BaseOutputRoot: s.OutputRoot,
			})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", s.InputRoot, err)
	}

	return tasks, nil
}

// ScanPending scans and partitions the tasks by staleness. The two lists
// are disjoint and together cover the full scan result.
func (s *Scanner) ScanPending() (pending, skippable []*models.ConversionTask, err error) {
	tasks, err := s.Scan()
	if err != nil {
		return nil, nil, err
	}
	for _, t := range tasks {
		if t.NeedsConversion() {
			pending = append(pending, t)
		} else {
			skippable = append(skippable, t)
		}
	}
	return pending, skippable, nil
}
