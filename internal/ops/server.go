// Package ops serves the small operational surface exposed while batches run
package ops

import (
	"context"
	"encoding/json"
	stdhttp "net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"skillproof/internal/platform/config"
	perr "skillproof/internal/platform/errors"
	"skillproof/internal/platform/logger"
	"skillproof/internal/services/verify/domain"
)

// Server is a thin wrapper over chi + stdlib http.Server
type Server struct {
	addr string
	srv  *stdhttp.Server
}

// New builds the ops server. The runner supplies the last-run summary
func New(cfg config.Conf, runner domain.RunnerPort) *Server {
	addr := cfg.MayString("OPS_ADDR", ":4000")

	m := chi.NewRouter()
	// read-only surface behind the perimeter, open CORS is fine here
	m.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{stdhttp.MethodGet},
	}))

	m.Get("/healthz", func(w stdhttp.ResponseWriter, r *stdhttp.Request) {
		writeJSON(w, stdhttp.StatusOK, map[string]string{"status": "ok"})
	})
	m.Get("/summary", func(w stdhttp.ResponseWriter, r *stdhttp.Request) {
		sum, err := runner.LastRun(r.Context())
		if err != nil {
			if perr.IsCode(err, perr.ErrorCodeNotFound) {
				writeJSON(w, stdhttp.StatusNotFound, map[string]string{"error": "no runs recorded"})
				return
			}
			logger.C(r.Context()).Error().Err(err).Msg("summary lookup failed")
			writeJSON(w, stdhttp.StatusInternalServerError, map[string]string{"error": "lookup failed"})
			return
		}
		writeJSON(w, stdhttp.StatusOK, sum)
	})

	return &Server{
		addr: addr,
		srv: &stdhttp.Server{
			Addr:              addr,
			Handler:           m,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
}

// Addr returns the listening address
func (s *Server) Addr() string { return s.addr }

// Run starts the server and blocks
func (s *Server) Run(ctx context.Context) error {
	log := logger.Named("ops")
	log.Info().Str("addr", s.addr).Msg("ops listening")
	err := s.srv.ListenAndServe()
	if err == stdhttp.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown stops the server gracefully
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func writeJSON(w stdhttp.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Get().Error().Err(err).Msg("failed to write response")
	}
}
