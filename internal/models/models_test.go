package models

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"swbatch/internal/formats"
)

func writeFile(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
}

func TestOutputPathDeterministic(t *testing.T) {
	task := &ConversionTask{
		SourcePath: "/models/sub/bracket.sldprt",
		OutputDir:  "/out/sub",
		Format:     formats.STL,
	}

	first := task.OutputPath()
	second := task.OutputPath()
	assert.Equal(t, first, second)
	assert.Equal(t, filepath.Join("/out/sub", "bracket.stl"), first)

	threeMF := &ConversionTask{
		SourcePath: "/models/sub/bracket.sldprt",
		OutputDir:  "/out/sub",
		Format:     formats.ThreeMF,
	}
	assert.Equal(t, filepath.Join("/out/sub", "bracket.3mf"), threeMF.OutputPath())
}

func TestNeedsConversion(t *testing.T) {
	dir := t.TempDir()
	source := filepath.Join(dir, "part.sldprt")
	writeFile(t, source)

	task := &ConversionTask{SourcePath: source, OutputDir: dir, Format: formats.STL}

	t.Run("output missing", func(t *testing.T) {
		assert.True(t, task.NeedsConversion())
	})

	writeFile(t, task.OutputPath())
	sourceTime := time.Now().Truncate(time.Second)
	require.NoError(t, os.Chtimes(source, sourceTime, sourceTime))

	t.Run("equal mtimes is current", func(t *testing.T) {
		require.NoError(t, os.Chtimes(task.OutputPath(), sourceTime, sourceTime))
		assert.False(t, task.NeedsConversion())
	})

	t.Run("output one second older is stale", func(t *testing.T) {
		older := sourceTime.Add(-time.Second)
		require.NoError(t, os.Chtimes(task.OutputPath(), older, older))
		assert.True(t, task.NeedsConversion())
	})

	t.Run("output newer is current", func(t *testing.T) {
		newer := sourceTime.Add(time.Minute)
		require.NoError(t, os.Chtimes(task.OutputPath(), newer, newer))
		assert.False(t, task.NeedsConversion())
	})
}

func TestRelativePaths(t *testing.T) {
	task := &ConversionTask{
		SourcePath:     filepath.Join("/models", "sub", "part.sldprt"),
		OutputDir:      filepath.Join("/out", "sub"),
		Format:         formats.STL,
		InputRoot:      "/models",
		BaseOutputRoot: "/out",
	}
	assert.Equal(t, filepath.Join("sub", "part.sldprt"), task.RelativeSource())
	assert.Equal(t, filepath.Join("sub", "part.stl"), task.RelativeOutput())

	// Without context fields the base name is used.
	bare := &ConversionTask{SourcePath: "/elsewhere/part.sldprt", OutputDir: "/out", Format: formats.STL}
	assert.Equal(t, "part.sldprt", bare.RelativeSource())
	assert.Equal(t, "part.stl", bare.RelativeOutput())
}

func TestStatsFromResults(t *testing.T) {
	results := []ConversionResult{
		{Status: StatusSuccess},
		{Status: StatusSuccess},
		{Status: StatusSkipped},
		{Status: StatusFailed},
		{Status: StatusOpenFailed},
	}

	stats := StatsFromResults(results)
	assert.Equal(t, 2, stats.Success)
	assert.Equal(t, 1, stats.Skipped)
	assert.Equal(t, 2, stats.Failed, "open_failed must count toward failed")
	assert.Equal(t, len(results), stats.Total())
}

func TestStatsEmpty(t *testing.T) {
	stats := StatsFromResults(nil)
	assert.Zero(t, stats.Total())
	assert.Equal(t, "success: 0, skipped: 0, failed: 0", stats.Summary())
}
