package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"telegram-relay-bot/internal/application"
)

// StateSource reports the supervisor lifecycle state.
type StateSource interface {
	State() application.State
}

type healthResponse struct {
	State string `json:"state"`
}

// NewRouter serves /metrics and /healthz. /healthz answers 200 only while
// the bot is polling.
func NewRouter(state StateSource, logger *zerolog.Logger) *chi.Mux {
	r := chi.NewRouter()
	r.Use(TraceID(), Recover(logger), RequestLog(logger))

	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		st := state.State()
		code := http.StatusOK
		if st != application.StatePolling {
			code = http.StatusServiceUnavailable
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(healthResponse{State: st.String()})
	})
	return r
}

type Server struct {
	server *http.Server
	log    *zerolog.Logger
}

func NewServer(addr string, state StateSource, logger *zerolog.Logger) *Server {
	return &Server{
		server: &http.Server{
			Addr:              addr,
			Handler:           NewRouter(state, logger),
			ReadHeaderTimeout: 5 * time.Second,
		},
		log: logger,
	}
}

// Start blocks serving HTTP until Shutdown.
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.server.Addr).Msg("metrics server listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
