package web

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"swbatch/internal/automation"
	"swbatch/internal/config"
	"swbatch/internal/history"
)

type stubDocument struct {
	name string
}

func (d *stubDocument) Title() string { return d.name }

func (d *stubDocument) Export(path string) (automation.ExportOutcome, error) {
	return automation.ExportOutcome{Success: true}, nil
}

type stubService struct{}

func (stubService) Connect(ctx context.Context) error { return nil }
func (stubService) Disconnect()                       {}
func (stubService) Close(title string) error          { return nil }
func (stubService) Open(path string, docType int) (automation.Document, error) {
	return &stubDocument{name: filepath.Base(path)}, nil
}

func newTestApp(t *testing.T) (*App, string) {
	t.Helper()
	dir := t.TempDir()
	cfg := &config.Config{}
	cfg.Converter.SettingsPath = filepath.Join(dir, "settings.json")
	cfg.Converter.HistoryPath = filepath.Join(dir, "history.db")

	hist, err := history.Open(cfg.Converter.HistoryPath)
	require.NoError(t, err)
	t.Cleanup(func() { hist.Close() })

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	app := NewApp(logger, cfg, hist)
	app.NewService = func() automation.Service { return stubService{} }
	return app, dir
}

func buildInputTree(t *testing.T, dir string) (string, string) {
	t.Helper()
	in := filepath.Join(dir, "in")
	out := filepath.Join(dir, "out")
	require.NoError(t, os.MkdirAll(filepath.Join(in, "sub"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(in, "a.sldprt"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(in, "sub", "b.sldprt"), []byte("x"), 0o644))
	return in, out
}

func postJSON(t *testing.T, app *App, path string, payload any) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(payload)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	app.Router().ServeHTTP(rec, req)
	return rec
}

func TestSettingsRoundTrip(t *testing.T) {
	app, _ := newTestApp(t)

	settings := config.Settings{
		InputDir:     "/models",
		OutputDir:    "/exports",
		InputFormat:  "all",
		OutputFormat: "3mf",
		SkipExisting: true,
	}
	rec := postJSON(t, app, "/api/settings", settings)
	assert.Equal(t, http.StatusOK, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/settings", nil)
	rec = httptest.NewRecorder()
	app.Router().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var loaded config.Settings
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &loaded))
	assert.Equal(t, settings, loaded)
}

func TestScanPreview(t *testing.T) {
	app, dir := newTestApp(t)
	in, out := buildInputTree(t, dir)

	rec := postJSON(t, app, "/api/scan", config.Settings{
		InputDir:     in,
		OutputDir:    out,
		InputFormat:  "sldprt",
		OutputFormat: "stl,3mf",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var preview scanSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &preview))
	assert.Equal(t, 4, preview.Total, "2 files x 2 formats")
	assert.Equal(t, 4, preview.Pending)
	assert.Zero(t, preview.Skippable)
}

func TestScanPreviewMissingInput(t *testing.T) {
	app, dir := newTestApp(t)
	rec := postJSON(t, app, "/api/scan", config.Settings{
		InputDir:  filepath.Join(dir, "missing"),
		OutputDir: filepath.Join(dir, "out"),
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStartRunToCompletion(t *testing.T) {
	app, dir := newTestApp(t)
	in, out := buildInputTree(t, dir)

	rec := postJSON(t, app, "/api/runs", config.Settings{
		InputDir:     in,
		OutputDir:    out,
		InputFormat:  "sldprt",
		OutputFormat: "stl",
		SkipExisting: true,
	})
	require.Equal(t, http.StatusAccepted, rec.Code)

	var started struct {
		RunID string `json:"run_id"`
		Total int    `json:"total"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &started))
	assert.Equal(t, 2, started.Total)

	run := waitForRun(t, app, started.RunID)
	assert.Equal(t, RunCompleted, run.State)
	require.NotNil(t, run.Stats)
	assert.Equal(t, 2, run.Stats.Success)
	assert.Zero(t, run.Stats.Failed)

	records, err := app.history.Recent(10)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, started.RunID, records[0].ID)
	assert.Equal(t, 2, records[0].Stats.Success)
}

func TestStartRunRequiresDirs(t *testing.T) {
	app, _ := newTestApp(t)
	rec := postJSON(t, app, "/api/runs", config.Settings{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func waitForRun(t *testing.T, app *App, runID string) BatchRun {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		run, ok := app.snapshotRun(runID)
		require.True(t, ok)
		if run.State != RunPending && run.State != RunRunning {
			return run
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("run did not finish in time")
	return BatchRun{}
}
