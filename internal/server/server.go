// Package server exposes the snapshot over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/janiskrasemann/vmarket/internal/fetcher"
	"github.com/janiskrasemann/vmarket/internal/logging"
	"github.com/janiskrasemann/vmarket/internal/snapshot"
)

const shutdownGrace = 5 * time.Second

// Reader is the read side of the snapshot.
type Reader interface {
	Get(id string) (fetcher.Fields, error)
	All() (map[string]fetcher.Fields, error)
	Status() []snapshot.SourceStatus
}

type Server struct {
	reader  Reader
	origins []string
	handler http.Handler
}

func New(reader Reader, allowedOrigins []string) *Server {
	s := &Server{reader: reader, origins: allowedOrigins}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.home)
	mux.HandleFunc("GET /scrape", s.scrapeAll)
	mux.HandleFunc("GET /scrape/{id}", s.scrapeOne)
	mux.HandleFunc("GET /status", s.status)
	mux.HandleFunc("/", s.notFound)

	s.handler = recoverer(cors(s.origins, logRequests(mux)))
	return s
}

func (s *Server) Handler() http.Handler { return s.handler }

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logging.Infof("[server] listening on %s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("listening on %s: %w", addr, err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down server: %w", err)
	}
	return nil
}

type errorBody struct {
	Status string `json:"status"`
	Detail string `json:"detail"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Errorf("[server] encoding response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, errorBody{Status: "error", Detail: detail})
}

func (s *Server) home(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": http.StatusOK, "msg": "VMarket is ONLINE"})
}

func (s *Server) scrapeAll(w http.ResponseWriter, r *http.Request) {
	all, err := s.reader.All()
	if err != nil {
		logging.Errorf("[server] GET /scrape: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to scrape data for any index")
		return
	}
	writeJSON(w, http.StatusOK, all)
}

func (s *Server) scrapeOne(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	fields, err := s.reader.Get(id)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, fields)
	case errors.Is(err, snapshot.ErrUnknownSource):
		writeError(w, http.StatusNotFound, fmt.Sprintf("Index '%s' not found", id))
	case errors.Is(err, snapshot.ErrNotPopulated):
		logging.Debugf("[server] GET /scrape/%s: %v", id, err)
		writeError(w, http.StatusNotFound, fmt.Sprintf("Index '%s' not yet available", id))
	default:
		logging.Errorf("[server] GET /scrape/%s: %v", id, err)
		writeError(w, http.StatusInternalServerError, "An unexpected error occurred")
	}
}

func (s *Server) status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.reader.Status())
}

func (s *Server) notFound(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusNotFound, "Not Found")
}
