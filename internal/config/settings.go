package config

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"swbatch/internal/formats"
)

// Allowed values for the settings format fields.
var (
	validInputFormats  = map[string]bool{"sldprt": true, "sldasm": true, "all": true}
	validOutputFormats = map[string]bool{"stl": true, "3mf": true, "all": true}
)

// Settings is the GUI-facing conversion settings record, persisted as a
// JSON document.
type Settings struct {
	InputDir          string `json:"input_dir"`
	OutputDir         string `json:"output_dir"`
	InputFormat       string `json:"input_format"`
	OutputFormat      string `json:"output_format"`
	PreserveStructure bool   `json:"preserve_structure"`
	SkipExisting      bool   `json:"skip_existing"`
}

// DefaultSettings returns the settings used when nothing is persisted.
func DefaultSettings() Settings {
	return Settings{
		InputFormat:       "sldprt",
		OutputFormat:      "stl",
		PreserveStructure: true,
		SkipExisting:      true,
	}
}

// LoadSettings reads the settings document at path. A missing or
// unreadable file yields the defaults; unknown or invalid fields fall
// back to their default silently, per field, so one bad value never
// discards the rest of the document.
func LoadSettings(path string, logger *slog.Logger) Settings {
	if logger == nil {
		logger = slog.Default()
	}
	settings := DefaultSettings()

	data, err := os.ReadFile(path)
	if err != nil {
		logger.Debug("settings file not loaded, using defaults", "path", path, "error", err)
		return settings
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		logger.Warn("settings file is not valid JSON, using defaults", "path", path, "error", err)
		return settings
	}

	loadString(raw, "input_dir", &settings.InputDir, nil, logger)
	loadString(raw, "output_dir", &settings.OutputDir, nil, logger)
	loadString(raw, "input_format", &settings.InputFormat, validInputFormats, logger)
	loadString(raw, "output_format", &settings.OutputFormat, validOutputFormats, logger)
	loadBool(raw, "preserve_structure", &settings.PreserveStructure, logger)
	loadBool(raw, "skip_existing", &settings.SkipExisting, logger)

	return settings
}

func loadString(raw map[string]json.RawMessage, key string, dst *string, allowed map[string]bool, logger *slog.Logger) {
	msg, ok := raw[key]
	if !ok {
		return
	}
	var v string
	if err := json.Unmarshal(msg, &v); err != nil {
		logger.Warn("invalid settings field, using default", "field", key, "error", err)
		return
	}
	if allowed != nil && !allowed[v] {
		logger.Warn("invalid settings value, using default", "field", key, "value", v)
		return
	}
	*dst = v
}

func loadBool(raw map[string]json.RawMessage, key string, dst *bool, logger *slog.Logger) {
	msg, ok := raw[key]
	if !ok {
		return
	}
	var v bool
	if err := json.Unmarshal(msg, &v); err != nil {
		logger.Warn("invalid settings field, using default", "field", key, "error", err)
		return
	}
	*dst = v
}

// SaveSettings writes the settings document to path, creating parent
// directories as needed.
func SaveSettings(path string, settings Settings) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create settings directory: %w", err)
	}
	data, err := json.MarshalIndent(settings, "", "  ")
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}
	return nil
}

// InputExtensions expands the input format field into the scanner's
// extension filter.
func (s Settings) InputExtensions() []string {
	switch s.InputFormat {
	case "sldasm":
		return []string{".sldasm"}
	case "all":
		return []string{".sldprt", ".sldasm"}
	default:
		return []string{".sldprt"}
	}
}

// ExportFormats parses the output format field. "all" is allowed here.
func (s Settings) ExportFormats() ([]formats.ExportFormat, error) {
	return formats.Parse(s.OutputFormat, true)
}
