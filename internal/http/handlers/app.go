package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/AnujSsStw/img-gen/internal/imagegen"
	"github.com/AnujSsStw/img-gen/internal/infra"
	"github.com/AnujSsStw/img-gen/internal/metrics"
	"github.com/AnujSsStw/img-gen/internal/webui"
)

// App carries the collaborators shared by all handlers. Nothing in it is
// mutated while serving requests.
type App struct {
	Config    *infra.Config
	Logger    zerolog.Logger
	Generator imagegen.Generator
	Metrics   *metrics.Recorder
	Page      *webui.Page

	now func() time.Time
}

func NewApp(cfg *infra.Config, logger zerolog.Logger, gen imagegen.Generator, rec *metrics.Recorder, page *webui.Page) *App {
	return &App{
		Config:    cfg,
		Logger:    logger.With().Str("component", "handlers").Logger(),
		Generator: gen,
		Metrics:   rec,
		Page:      page,
		now:       time.Now,
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, code int, message string) {
	a.json(w, code, errorResponse{Error: message})
}

func (a *App) clock() time.Time {
	if a.now == nil {
		return time.Now()
	}
	return a.now()
}
