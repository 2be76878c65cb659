package ui

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"io/fs"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/dokzlo13/lampd/internal/color"
	"github.com/dokzlo13/lampd/internal/lampsync"
	"github.com/dokzlo13/lampd/internal/preview"
)

//go:embed static
var staticFiles embed.FS

// maxBodyBytes caps PUT /api/color bodies.
const maxBodyBytes = 1 << 10

// snapshotTimeout bounds how long a request waits for the engine loop.
const snapshotTimeout = 2 * time.Second

// colorPayload is how a color travels to pages and API clients.
type colorPayload struct {
	Hex     string        `json:"hex"`
	Decimal string        `json:"decimal"`
	Scene   preview.Scene `json:"scene"`
}

func newColorPayload(c color.Color) colorPayload {
	return colorPayload{Hex: c.Hex(), Decimal: c.Decimal(), Scene: preview.NewScene(c)}
}

// stateResponse is the body of GET /api/color.
type stateResponse struct {
	Initialized  bool          `json:"initialized"`
	PendingWrite bool          `json:"pending_write"`
	Color        *colorPayload `json:"color,omitempty"`
	Cloud        string        `json:"cloud,omitempty"`
}

// setColorRequest is the body of PUT /api/color. Color is "#rrggbb" or "r,g,b".
type setColorRequest struct {
	Color string `json:"color"`
}

func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()
	r.Use(loggingMiddleware)
	r.Use(recoveryMiddleware)

	static, err := fs.Sub(staticFiles, "static")
	if err != nil {
		panic(err)
	}
	r.Handle("/", http.FileServer(http.FS(static)))

	r.Get("/health", s.handleHealth)
	r.Get("/ready", s.handleReady)
	r.Get("/ws", s.handleWebSocket)

	r.Route("/api", func(r chi.Router) {
		r.Get("/color", s.handleGetColor)
		r.Put("/color", s.handleSetColor)
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "healthy",
		"clients": s.hub.ClientCount(),
	})
}

// handleReady reports ready once the first color has been read from the cloud.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	state, err := s.snapshot(r.Context())
	if err != nil || !state.Initialized {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "not_ready"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}

func (s *Server) handleGetColor(w http.ResponseWriter, r *http.Request) {
	state, err := s.snapshot(r.Context())
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, newStateResponse(state))
}

func (s *Server) handleSetColor(w http.ResponseWriter, r *http.Request) {
	var req setColorRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}

	var c color.Color
	if err := c.UnmarshalText([]byte(req.Color)); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
		return
	}

	if err := s.engine.UserEdit(r.Context(), c); err != nil {
		writeEngineError(w, err)
		return
	}

	state, err := s.snapshot(r.Context())
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newStateResponse(state))
}

func (s *Server) snapshot(ctx context.Context) (lampsync.State, error) {
	ctx, cancel := context.WithTimeout(ctx, snapshotTimeout)
	defer cancel()
	return s.engine.Snapshot(ctx)
}

func newStateResponse(state lampsync.State) stateResponse {
	resp := stateResponse{
		Initialized:  state.Initialized,
		PendingWrite: state.PendingWrite,
	}
	if state.Initialized {
		p := newColorPayload(state.Current)
		resp.Color = &p
	}
	if state.LastKnownCloud != nil {
		resp.Cloud = state.LastKnownCloud.Hex()
	}
	return resp
}

func writeEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, lampsync.ErrNotReady):
		writeError(w, http.StatusConflict, ErrCodeNotReady, err.Error())
	case errors.Is(err, lampsync.ErrStopped), errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, ErrCodeInternal, err.Error())
	}
}
