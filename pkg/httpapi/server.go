// Package httpapi is C8: the thin HTTP adapter onto the governor's
// submit_task/status read-only views (spec §6). It is documented in
// spec.md only as an interface consumer; SPEC_FULL.md brings a concrete
// implementation into scope, grounded on the teacher's
// cmd/noisefs-webui/main.go gorilla/mux + gorilla/websocket server.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aye-aye-dev/fossa-node/pkg/governor"
	"github.com/aye-aye-dev/fossa-node/pkg/history"
	"github.com/aye-aye-dev/fossa-node/pkg/logging"
	"github.com/aye-aye-dev/fossa-node/pkg/message"
	"github.com/aye-aye-dev/fossa-node/pkg/metrics"
)

// Server serves the required external HTTP shape (spec §6) plus the
// supplemented admin search and live event stream endpoints.
type Server struct {
	governor *governor.Governor
	history  *history.Index
	metrics  *metrics.Metrics
	logger   *logging.FieldLogger
	hub      *hub
	http     *http.Server
}

// NewServer wires up routes and registers the server as the completion
// handler for locally-submitted tasks, so it can push websocket events
// and index completed tasks for search.
func NewServer(addr string, gov *governor.Governor, hist *history.Index, m *metrics.Metrics, logger *logging.Logger) *Server {
	s := &Server{
		governor: gov,
		history:  hist,
		metrics:  m,
		logger:   logger.WithComponent("httpapi"),
		hub:      newHub(),
	}

	gov.RegisterCompletionHandler(message.DefaultSource, s.onCompletion)

	r := mux.NewRouter()
	r.HandleFunc("/", s.handleRoot).Methods(http.MethodGet)
	r.HandleFunc("/task", s.handleSubmit).Methods(http.MethodPost)
	r.HandleFunc("/task/{id}", s.handleStatus).Methods(http.MethodGet)
	r.HandleFunc("/node_info", s.handleNodeInfo).Methods(http.MethodGet)
	r.HandleFunc("/tasks/search", s.handleSearch).Methods(http.MethodGet)
	r.HandleFunc("/ws/events", s.handleWebSocket)
	if m != nil {
		r.Handle("/metrics", m.Handler())
	} else {
		r.Handle("/metrics", promhttp.Handler())
	}

	s.http = &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Handler exposes the underlying router, mainly so tests can drive it
// through httptest.NewServer without a real listening socket.
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

// ListenAndServe blocks serving HTTP until the server is shut down.
func (s *Server) ListenAndServe() error {
	err := s.http.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown gracefully stops the HTTP server and its websocket hub.
func (s *Server) Shutdown(ctx context.Context) error {
	s.hub.closeAll()
	return s.http.Shutdown(ctx)
}
