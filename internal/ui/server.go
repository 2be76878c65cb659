// Package ui serves the lamp preview page, a small JSON API and a websocket
// that pushes every color change to open pages.
package ui

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/lampd/internal/coalesce"
	"github.com/dokzlo13/lampd/internal/color"
	"github.com/dokzlo13/lampd/internal/eventbus"
	"github.com/dokzlo13/lampd/internal/lampsync"
)

// editTimeout bounds a coalesced picker edit handed to the engine.
const editTimeout = 5 * time.Second

// Engine is the part of the sync engine the UI drives.
type Engine interface {
	UserEdit(ctx context.Context, c color.Color) error
	Snapshot(ctx context.Context) (lampsync.State, error)
}

// Deps holds the dependencies required by the UI server.
type Deps struct {
	Host           string
	Port           int
	Engine         Engine
	CoalesceWindow time.Duration
}

// Server is the HTTP server for the preview page and its API.
type Server struct {
	addr       string
	engine     Engine
	hub        *Hub
	picks      *coalesce.Latest[pick]
	router     chi.Router
	httpServer *http.Server
}

// NewServer creates a UI server. Nothing listens until Run.
func NewServer(deps Deps) *Server {
	s := &Server{
		addr:   fmt.Sprintf("%s:%d", deps.Host, deps.Port),
		engine: deps.Engine,
		hub:    NewHub(),
	}
	s.picks = coalesce.New(deps.CoalesceWindow, s.applyPick)
	s.router = s.buildRouter()
	return s
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// HandleEvent pushes a bus event to every connected page.
func (s *Server) HandleEvent(e eventbus.Event) {
	s.hub.Broadcast(string(e.Type), newColorPayload(e.Color))
}

// Run starts the server. It blocks until the context is cancelled.
func (s *Server) Run(ctx context.Context, shutdownTimeout time.Duration) error {
	s.httpServer = &http.Server{
		Addr:              s.addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	log.Info().Str("addr", s.addr).Msg("Starting UI server")

	go func() {
		<-ctx.Done()
		s.picks.Close()
		s.hub.CloseAll()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("UI server shutdown error")
		}
	}()

	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// pick is a picker color and the page that sent it.
type pick struct {
	color color.Color
	from  *WSClient
}

// applyPick sends the latest picker color of a burst to the engine. A
// rejection is reported to the page that picked the color only.
func (s *Server) applyPick(p pick) {
	ctx, cancel := context.WithTimeout(context.Background(), editTimeout)
	defer cancel()

	if err := s.engine.UserEdit(ctx, p.color); err != nil {
		log.Warn().Err(err).Str("color", p.color.Hex()).Str("client", p.from.id).Msg("Picker edit rejected")
		s.replyError(p.from, err.Error())
	}
}
