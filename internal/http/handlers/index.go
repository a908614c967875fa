package handlers

import (
	"bytes"
	"net/http"

	"github.com/AnujSsStw/img-gen/internal/middleware"
)

// Index serves the upload form in the negotiated locale.
func (a *App) Index(w http.ResponseWriter, r *http.Request) {
	if a.Page == nil {
		http.NotFound(w, r)
		return
	}
	var buf bytes.Buffer
	if err := a.Page.Render(&buf, middleware.LocaleFromContext(r.Context())); err != nil {
		a.Logger.Error().Err(err).Msg("render index page")
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Content-Language", middleware.LocaleFromContext(r.Context()))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}
