// Package web is the GUI-facing control surface: it previews scans,
// starts batch runs on a dedicated worker, streams progress over
// WebSocket, and persists settings and run history.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/a-h/templ"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"swbatch/internal/automation"
	"swbatch/internal/config"
	"swbatch/internal/converter"
	"swbatch/internal/history"
	"swbatch/internal/models"
	"swbatch/internal/scanner"
	"swbatch/templates"
)

// RunState is the lifecycle state of a batch run.
type RunState string

const (
	RunPending   RunState = "pending"
	RunRunning   RunState = "running"
	RunCompleted RunState = "completed"
	RunFailed    RunState = "failed"
	RunCancelled RunState = "cancelled"
)

// BatchRun tracks one batch conversion run.
type BatchRun struct {
	ID        string                  `json:"id"`
	Settings  config.Settings         `json:"settings"`
	State     RunState                `json:"state"`
	Current   int                     `json:"current"`
	Total     int                     `json:"total"`
	Stats     *models.ConversionStats `json:"stats,omitempty"`
	Error     string                  `json:"error,omitempty"`
	StartedAt time.Time               `json:"started_at"`
	UpdatedAt time.Time               `json:"updated_at"`

	cancel context.CancelFunc
}

type App struct {
	logger *slog.Logger
	router *chi.Mux
	cfg    *config.Config

	history *history.Store

	// NewService builds the automation service for each run. Tests swap
	// in a scripted fake.
	NewService func() automation.Service

	mu        sync.RWMutex
	runs      map[string]*BatchRun
	runActive bool
	subs      map[string]map[*websocket.Conn]struct{}

	upgrader websocket.Upgrader
}

func NewApp(logger *slog.Logger, cfg *config.Config, hist *history.Store) *App {
	app := &App{
		logger:  logger,
		router:  chi.NewRouter(),
		cfg:     cfg,
		history: hist,
		NewService: func() automation.Service {
			return automation.NewSolidWorks(logger, cfg.Converter.Visible)
		},
		runs: make(map[string]*BatchRun),
		subs: make(map[string]map[*websocket.Conn]struct{}),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}

	app.registerRoutes()
	return app
}

func (a *App) Router() http.Handler {
	return a.router
}

func (a *App) registerRoutes() {
	a.router.Use(middleware.RequestID)
	a.router.Use(middleware.RealIP)
	a.router.Use(middleware.Recoverer)

	a.router.Get("/", a.index)
	a.router.Get("/healthz", a.health)

	a.router.Get("/api/settings", a.getSettings)
	a.router.Post("/api/settings", a.saveSettings)
	a.router.Post("/api/scan", a.scanPreview)
	a.router.Post("/api/runs", a.startRun)
	a.router.Get("/api/runs", a.listRuns)
	a.router.Get("/api/runs/{id}", a.getRun)
	a.router.Post("/api/runs/{id}/cancel", a.cancelRun)
	a.router.Get("/api/history", a.listHistory)
	a.router.Get("/ws/{id}", a.runWS)

	staticFS := http.FileServer(http.Dir("static"))
	a.router.Handle("/static/*", http.StripPrefix("/static/", staticFS))
}

func (a *App) health(w http.ResponseWriter, r *http.Request) {
	a.respondJSON(w, http.StatusOK, map[string]string{"status": "ok", "timestamp": time.Now().Format(time.RFC3339)})
}

func (a *App) index(w http.ResponseWriter, r *http.Request) {
	settings := config.LoadSettings(a.cfg.Converter.SettingsPath, a.logger)
	records, err := a.history.Recent(10)
	if err != nil {
		a.logger.Error("failed to read run history", "error", err)
	}
	runs := a.recentRuns(10)
	views := make([]templates.RunView, 0, len(runs))
	for _, run := range runs {
		views = append(views, templates.RunView{
			ID:      run.ID,
			State:   string(run.State),
			Current: run.Current,
			Total:   run.Total,
			Error:   run.Error,
		})
	}
	a.render(w, r, templates.IndexPage(settings, views, records))
}

func (a *App) getSettings(w http.ResponseWriter, r *http.Request) {
	a.respondJSON(w, http.StatusOK, config.LoadSettings(a.cfg.Converter.SettingsPath, a.logger))
}

func (a *App) saveSettings(w http.ResponseWriter, r *http.Request) {
	var settings config.Settings
	if err := json.NewDecoder(r.Body).Decode(&settings); err != nil {
		http.Error(w, "invalid settings payload", http.StatusBadRequest)
		return
	}
	if err := config.SaveSettings(a.cfg.Converter.SettingsPath, settings); err != nil {
		a.logger.Error("failed to save settings", "error", err)
		http.Error(w, "failed to save settings", http.StatusInternalServerError)
		return
	}
	a.respondJSON(w, http.StatusOK, settings)
}

type scanSummary struct {
	Pending   int `json:"pending"`
	Skippable int `json:"skippable"`
	Total     int `json:"total"`
}

// scanPreview runs the discovery stage only, reporting how many tasks a
// run with the posted settings would convert or skip.
func (a *App) scanPreview(w http.ResponseWriter, r *http.Request) {
	settings, err := a.decodeSettings(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	sc, err := a.buildScanner(settings)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	pending, skippable, err := sc.ScanPending()
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, scanner.ErrInputDirNotFound) {
			status = http.StatusBadRequest
		}
		http.Error(w, err.Error(), status)
		return
	}

	a.respondJSON(w, http.StatusOK, scanSummary{
		Pending:   len(pending),
		Skippable: len(skippable),
		Total:     len(pending) + len(skippable),
	})
}

// startRun scans with the posted settings and launches the batch on a
// dedicated worker goroutine. The automation interface is single-session,
// so at most one run may be active at a time.
func (a *App) startRun(w http.ResponseWriter, r *http.Request) {
	settings, err := a.decodeSettings(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	sc, err := a.buildScanner(settings)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	tasks, err := sc.Scan()
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, scanner.ErrInputDirNotFound) {
			status = http.StatusBadRequest
		}
		http.Error(w, err.Error(), status)
		return
	}
	if len(tasks) == 0 {
		http.Error(w, "no convertible files found", http.StatusBadRequest)
		return
	}

	a.mu.Lock()
	if a.runActive {
		a.mu.Unlock()
		http.Error(w, "a conversion run is already in progress", http.StatusConflict)
		return
	}
	run := &BatchRun{
		ID:        uuid.New().String(),
		Settings:  settings,
		State:     RunPending,
		Total:     len(tasks),
		StartedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	a.runActive = true
	a.runs[run.ID] = run
	a.mu.Unlock()

	a.logger.Info("batch run started", "run_id", run.ID, "tasks", len(tasks))
	go a.executeRun(run.ID, settings, tasks)

	a.respondJSON(w, http.StatusAccepted, map[string]any{"run_id": run.ID, "total": len(tasks)})
}

func (a *App) listRuns(w http.ResponseWriter, r *http.Request) {
	a.respondJSON(w, http.StatusOK, a.recentRuns(20))
}

func (a *App) getRun(w http.ResponseWriter, r *http.Request) {
	run, ok := a.snapshotRun(chi.URLParam(r, "id"))
	if !ok {
		http.NotFound(w, r)
		return
	}
	a.respondJSON(w, http.StatusOK, run)
}

func (a *App) cancelRun(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "id")
	a.mu.Lock()
	run, ok := a.runs[runID]
	if !ok {
		a.mu.Unlock()
		http.NotFound(w, r)
		return
	}
	cancel := run.cancel
	state := run.State
	a.mu.Unlock()

	if state != RunRunning && state != RunPending {
		a.respondJSON(w, http.StatusOK, map[string]string{"status": "already_finished"})
		return
	}
	if cancel != nil {
		cancel()
	}
	a.respondJSON(w, http.StatusAccepted, map[string]string{"status": "cancel_requested"})
}

func (a *App) listHistory(w http.ResponseWriter, r *http.Request) {
	records, err := a.history.Recent(50)
	if err != nil {
		a.logger.Error("failed to read run history", "error", err)
		http.Error(w, "failed to read history", http.StatusInternalServerError)
		return
	}
	a.respondJSON(w, http.StatusOK, records)
}

func (a *App) runWS(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "id")
	run, ok := a.snapshotRun(runID)
	if !ok {
		http.Error(w, "run not found", http.StatusNotFound)
		return
	}

	conn, err := a.upgrader.Upgrade(w, r, nil)
	if err != nil {
		a.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	a.mu.Lock()
	if a.subs[runID] == nil {
		a.subs[runID] = make(map[*websocket.Conn]struct{})
	}
	a.subs[runID][conn] = struct{}{}
	a.mu.Unlock()

	_ = conn.WriteJSON(models.ProgressEvent{
		RunID:   run.ID,
		Current: run.Current,
		Total:   run.Total,
		Status:  string(run.State),
		Error:   run.Error,
		Stats:   run.Stats,
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	a.mu.Lock()
	delete(a.subs[runID], conn)
	a.mu.Unlock()
	_ = conn.Close()
}

// executeRun drives the whole batch on its own worker; converter.Run pins
// the session to one OS thread underneath. Progress arrives here on the
// pinned goroutine and is relayed to subscribers as tagged events.
func (a *App) executeRun(runID string, settings config.Settings, tasks []*models.ConversionTask) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a.updateRun(runID, func(run *BatchRun) {
		run.State = RunRunning
		run.cancel = cancel
		run.UpdatedAt = time.Now()
	})

	onProgress := func(current, total int, task *models.ConversionTask, status *models.Status) {
		statusLabel := "running"
		if status != nil {
			statusLabel = string(*status)
		}
		a.updateRun(runID, func(run *BatchRun) {
			run.Current = current
			run.UpdatedAt = time.Now()
		})
		a.broadcast(runID, models.ProgressEvent{
			RunID:   runID,
			Current: current,
			Total:   total,
			Source:  task.RelativeSource(),
			Format:  task.Format.String(),
			Status:  statusLabel,
		})
	}

	results, err := converter.Run(ctx, a.NewService(), a.logger, tasks, converter.RunOptions{
		SkipExisting: settings.SkipExisting,
		OnProgress:   onProgress,
	})
	stats := models.StatsFromResults(results)

	state := RunCompleted
	errMsg := ""
	switch {
	case err == nil:
	case errors.Is(err, context.Canceled):
		state = RunCancelled
		errMsg = "run cancelled"
	default:
		state = RunFailed
		errMsg = err.Error()
	}

	a.updateRun(runID, func(run *BatchRun) {
		run.State = state
		run.Stats = &stats
		run.Error = errMsg
		run.UpdatedAt = time.Now()
	})
	a.mu.Lock()
	a.runActive = false
	a.mu.Unlock()

	formatNames := make([]string, 0, 2)
	if parsed, perr := settings.ExportFormats(); perr == nil {
		for _, f := range parsed {
			formatNames = append(formatNames, f.String())
		}
	}
	record := history.RunRecord{
		ID:         runID,
		InputDir:   settings.InputDir,
		OutputDir:  settings.OutputDir,
		Formats:    formatNames,
		StartedAt:  a.runStartedAt(runID),
		FinishedAt: time.Now(),
		Stats:      stats,
		Error:      errMsg,
	}
	if herr := a.history.Append(record); herr != nil {
		a.logger.Error("failed to append run history", "run_id", runID, "error", herr)
	}

	a.broadcast(runID, models.ProgressEvent{
		RunID:   runID,
		Current: len(results),
		Total:   len(tasks),
		Status:  string(state),
		Message: stats.Summary(),
		Error:   errMsg,
		Stats:   &stats,
	})
	a.logger.Info("batch run finished", "run_id", runID, "state", state, "stats", stats.Summary())
}

func (a *App) decodeSettings(r *http.Request) (config.Settings, error) {
	settings := config.LoadSettings(a.cfg.Converter.SettingsPath, a.logger)
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&settings); err != nil {
			return settings, errors.New("invalid settings payload")
		}
	}
	if settings.InputDir == "" {
		return settings, errors.New("input_dir is required")
	}
	if settings.OutputDir == "" {
		return settings, errors.New("output_dir is required")
	}
	return settings, nil
}

func (a *App) buildScanner(settings config.Settings) (*scanner.Scanner, error) {
	exportFormats, err := settings.ExportFormats()
	if err != nil {
		return nil, err
	}
	return scanner.New(
		settings.InputDir,
		settings.OutputDir,
		exportFormats,
		settings.PreserveStructure,
		settings.InputExtensions(),
	), nil
}

func (a *App) broadcast(runID string, evt models.ProgressEvent) {
	a.mu.RLock()
	conns := make([]*websocket.Conn, 0, len(a.subs[runID]))
	for c := range a.subs[runID] {
		conns = append(conns, c)
	}
	a.mu.RUnlock()

	for _, c := range conns {
		if err := c.WriteJSON(evt); err != nil {
			a.mu.Lock()
			delete(a.subs[runID], c)
			a.mu.Unlock()
			_ = c.Close()
		}
	}
}

func (a *App) render(w http.ResponseWriter, r *http.Request, component templ.Component) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := component.Render(r.Context(), w); err != nil {
		a.logger.Error("failed to render template", "error", err)
		http.Error(w, "failed to render page", http.StatusInternalServerError)
	}
}

func (a *App) respondJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		a.logger.Error("failed to encode json", "error", err)
	}
}

func (a *App) snapshotRun(id string) (BatchRun, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	run, ok := a.runs[id]
	if !ok {
		return BatchRun{}, false
	}
	return *run, true
}

func (a *App) updateRun(id string, fn func(*BatchRun)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if run, ok := a.runs[id]; ok {
		fn(run)
	}
}

func (a *App) runStartedAt(id string) time.Time {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if run, ok := a.runs[id]; ok {
		return run.StartedAt
	}
	return time.Time{}
}

func (a *App) recentRuns(limit int) []BatchRun {
	a.mu.RLock()
	runs := make([]BatchRun, 0, len(a.runs))
	for _, run := range a.runs {
		runs = append(runs, *run)
	}
	a.mu.RUnlock()

	sort.Slice(runs, func(i, j int) bool {
		return runs[i].UpdatedAt.After(runs[j].UpdatedAt)
	})
	if limit > 0 && len(runs) > limit {
		runs = runs[:limit]
	}
	return runs
}

// StartCleanupLoop periodically drops finished runs older than ttl from
// the in-memory map; their summaries remain in the history store.
func (a *App) StartCleanupLoop(ctx context.Context, interval, ttl time.Duration) {
	if interval <= 0 || ttl <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				a.cleanup(ttl)
			}
		}
	}()
}

func (a *App) cleanup(ttl time.Duration) {
	cutoff := time.Now().Add(-ttl)
	removed := 0

	a.mu.Lock()
	for id, run := range a.runs {
		if run.State == RunRunning || run.State == RunPending {
			continue
		}
		if run.UpdatedAt.Before(cutoff) {
			delete(a.runs, id)
			delete(a.subs, id)
			removed++
		}
	}
	a.mu.Unlock()

	if removed > 0 {
		a.logger.Info("cleanup completed", "removed_runs", removed)
	}
}
