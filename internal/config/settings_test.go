package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"swbatch/internal/formats"
)

func TestLoadSettingsMissingFile(t *testing.T) {
	settings := LoadSettings(filepath.Join(t.TempDir(), "nope.json"), nil)
	assert.Equal(t, DefaultSettings(), settings)
}

func TestLoadSettingsCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	settings := LoadSettings(path, nil)
	assert.Equal(t, DefaultSettings(), settings)
}

func TestLoadSettingsPerFieldFallback(t *testing.T) {
	// One bad field must not discard the valid ones.
	doc := `{
		"input_dir": "/models",
		"output_dir": "/exports",
		"input_format": "floppy",
		"output_format": "3mf",
		"preserve_structure": "yes",
		"skip_existing": false
	}`
	path := filepath.Join(t.TempDir(), "settings.json")
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	settings := LoadSettings(path, nil)
	assert.Equal(t, "/models", settings.InputDir)
	assert.Equal(t, "/exports", settings.OutputDir)
	assert.Equal(t, "sldprt", settings.InputFormat, "invalid value falls back to default")
	assert.Equal(t, "3mf", settings.OutputFormat)
	assert.True(t, settings.PreserveStructure, "wrong type falls back to default")
	assert.False(t, settings.SkipExisting)
}

func TestSaveAndLoadSettings(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "settings.json")
	settings := Settings{
		InputDir:          "/in",
		OutputDir:         "/out",
		InputFormat:       "all",
		OutputFormat:      "stl",
		PreserveStructure: false,
		SkipExisting:      true,
	}

	require.NoError(t, SaveSettings(path, settings))
	loaded := LoadSettings(path, nil)
	assert.Equal(t, settings, loaded)
}

func TestInputExtensions(t *testing.T) {
	assert.Equal(t, []string{".sldprt"}, Settings{InputFormat: "sldprt"}.InputExtensions())
	assert.Equal(t, []string{".sldasm"}, Settings{InputFormat: "sldasm"}.InputExtensions())
	assert.Equal(t, []string{".sldprt", ".sldasm"}, Settings{InputFormat: "all"}.InputExtensions())
	assert.Equal(t, []string{".sldprt"}, Settings{}.InputExtensions())
}

func TestExportFormats(t *testing.T) {
	parsed, err := Settings{OutputFormat: "all"}.ExportFormats()
	require.NoError(t, err)
	assert.Equal(t, formats.All(), parsed)

	parsed, err = Settings{OutputFormat: ""}.ExportFormats()
	require.NoError(t, err)
	assert.Equal(t, []formats.ExportFormat{formats.STL}, parsed)
}
