// Package web serves the addressable entry point: the open event is named
// by the id query parameter and dropping it returns the neutral state.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/jakechorley/overlap/pkg/core/aggregator"
	"github.com/jakechorley/overlap/pkg/core/model"
	"github.com/jakechorley/overlap/pkg/store"
)

const (
	StateNeutral = "neutral"
	StateEvent   = "event"
)

// Group is a ranked date range with its display label
type Group struct {
	model.DateGroup
	Label string `json:"label"`
}

// View is the JSON body of GET /
type View struct {
	State     string             `json:"state"`
	ID        string             `json:"id,omitempty"`
	Event     *model.EventRecord `json:"event,omitempty"`
	BestDates []Group            `json:"bestDates,omitempty"`
	Error     string             `json:"error,omitempty"`
}

// Server renders events straight from the document store
type Server struct {
	store       store.DocumentStore
	logger      *zap.Logger
	horizonDays int
	now         func() time.Time
}

func NewServer(st store.DocumentStore, logger *zap.Logger, horizonDays int) *Server {
	return &Server{
		store:       st,
		logger:      logger,
		horizonDays: horizonDays,
		now:         time.Now,
	}
}

// Handler builds the router wrapped in CORS and request logging
func (s *Server) Handler() http.Handler {
	router := httprouter.New()
	router.GET("/", s.handleView)
	router.GET("/health", s.handleHealth)

	corsHandler := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type"},
	}).Handler(router)

	return s.logRequests(corsHandler)
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	server := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadTimeout:       7 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       120 * time.Second,
		ReadHeaderTimeout: 2 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Server listening", zap.String("addr", addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("failed to serve: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	s.logger.Info("Server stopped")
	return nil
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Debug("Request",
			zap.String("method", r.Method),
			zap.String("uri", r.RequestURI),
			zap.Duration("duration", time.Since(start)))
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleView(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	id := r.URL.Query().Get("id")
	if id == "" {
		writeJSON(w, http.StatusOK, View{State: StateNeutral})
		return
	}

	env, err := s.store.Latest(r.Context(), id)
	if err != nil {
		if store.IsAbsent(err) {
			writeJSON(w, http.StatusNotFound, View{State: StateNeutral, Error: "event not found"})
			return
		}
		s.logger.Warn("Failed to load event", zap.String("id", id), zap.Error(err))
		writeJSON(w, http.StatusBadGateway, View{State: StateNeutral, Error: "could not reach the event store"})
		return
	}

	rec := env.Record
	rec.Normalize()

	groups := aggregator.BestDates(rec, s.now(), s.horizonDays)
	labelled := make([]Group, len(groups))
	for i, g := range groups {
		labelled[i] = Group{DateGroup: g, Label: aggregator.Label(g)}
	}

	writeJSON(w, http.StatusOK, View{
		State:     StateEvent,
		ID:        id,
		Event:     &rec,
		BestDates: labelled,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
