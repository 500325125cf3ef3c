package health

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Checker reports whether the broker link is alive.
type Checker interface {
	IsConnected() bool
}

type ServerConfig struct {
	Port            int
	ShutdownTimeout time.Duration
}

// Server exposes the worker's liveness and metrics over HTTP.
type Server struct {
	config ServerConfig
	broker Checker
}

func NewServer(broker Checker) *Server {
	return NewServerWithConfig(ServerConfig{}, broker)
}

func NewServerWithConfig(config ServerConfig, broker Checker) *Server {
	if config.Port == 0 {
		config.Port = 8080
	}
	if config.ShutdownTimeout == 0 {
		config.ShutdownTimeout = 5 * time.Second
	}

	return &Server{
		config: config,
		broker: broker,
	}
}

// Handler builds the route set: a plain-text health check and the
// Prometheus scrape endpoint.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if !s.broker.IsConnected() {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("AMQP not connected"))
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("Healthy"))
}

// Serve blocks until ctx is done, then drains in-flight requests.
func (s *Server) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", s.config.Port),
		Handler: s.Handler(),
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Warn("Health server shutdown", "error", err)
		}
	}()

	slog.Info("Starting health server", "port", s.config.Port)
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
