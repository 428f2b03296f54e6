// Package server exposes the firehose webhook endpoint. The endpoint
// always acknowledges well-formed requests with 200 so Phabricator never
// retries: internal failures surface through the error-report channel, not
// through the HTTP response.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/dwilches/phabricator-slack-notifier/internal/types"
)

const shutdownTimeout = 5 * time.Second

// Dispatcher handles one decoded firehose payload. It never fails.
type Dispatcher interface {
	Handle(ctx context.Context, payload types.Payload)
}

// Server is the HTTP boundary of the notifier.
type Server struct {
	httpServer *http.Server
	logger     *zap.Logger
	dispatcher Dispatcher
}

// New creates a Server listening on addr.
func New(logger *zap.Logger, addr string, dispatcher Dispatcher) *Server {
	s := &Server{
		logger:     logger.Named("server"),
		dispatcher: dispatcher,
	}

	router := mux.NewRouter()
	router.HandleFunc("/firehose", s.handleFirehose).Methods(http.MethodPost)
	router.HandleFunc("/healthz", s.handleHealthz).Methods(http.MethodGet)
	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Listening", zap.String("addr", s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return s.httpServer.Shutdown(shutdownCtx)
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

func (s *Server) handleFirehose(w http.ResponseWriter, r *http.Request) {
	var payload types.Payload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "invalid JSON payload", http.StatusBadRequest)
		return
	}

	requestID := uuid.NewString()
	s.logger.Debug("Incoming firehose request",
		zap.String("request_id", requestID),
		zap.String("object_type", payload.Object.Type),
		zap.String("object_phid", payload.Object.PHID),
		zap.Int("transactions", len(payload.Transactions)))

	// The dispatcher absorbs every internal failure; acknowledgment is
	// decoupled from internal outcome.
	s.dispatcher.Handle(r.Context(), payload)

	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK\n"))
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok\n"))
}
