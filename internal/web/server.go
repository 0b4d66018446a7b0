// pattern: Imperative Shell

package web

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"dmnexplorer/internal/explorer"
	"dmnexplorer/internal/logging"
	"dmnexplorer/internal/output"
	"dmnexplorer/internal/relay"
)

// Validator runs one validation of a decision file into a sink.
// *relay.Client satisfies it.
type Validator interface {
	Validate(ctx context.Context, path string, sink relay.Sink) error
}

// Server exposes the decision tree and output surfaces to editor plugins.
type Server struct {
	httpServer *http.Server
	source     *explorer.Source
	validator  Validator
	surfaces   *output.Registry
	notifyTUI  func(any)
	logger     *logging.ScopedLogger
	addr       string
	listener   net.Listener
	events     *eventBroker

	// runCtx outlives requests so background validations finish after the
	// 202 response; cancelled on Shutdown.
	runCtx    context.Context
	cancelRun context.CancelFunc
}

// Config holds web server configuration.
type Config struct {
	Bind string
	Port int
}

// New creates a web server.
// notifyTUI is called after validations started through the API so the TUI
// can follow along; it may be nil.
// logProvider must implement logging.LoggerProvider (both *logging.Manager and
// *logging.TestLogManager satisfy this interface).
func New(cfg Config, source *explorer.Source, validator Validator, surfaces *output.Registry, notifyTUI func(any), logProvider logging.LoggerProvider) *Server {
	logger := logProvider.For("web")
	addr := net.JoinHostPort(cfg.Bind, fmt.Sprint(cfg.Port))

	mux := http.NewServeMux()
	runCtx, cancel := context.WithCancel(context.Background())

	s := &Server{
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		},
		source:    source,
		validator: validator,
		surfaces:  surfaces,
		notifyTUI: notifyTUI,
		logger:    logger,
		addr:      addr,
		events:    newEventBroker(),
		runCtx:    runCtx,
		cancelRun: cancel,
	}

	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("GET /api/events", s.handleEvents)
	mux.HandleFunc("GET /api/tree", s.handleTree)
	mux.HandleFunc("GET /api/children", s.handleChildren)
	mux.HandleFunc("POST /api/validate", s.handleValidate)
	mux.HandleFunc("GET /api/output", s.handleOutput)
	mux.HandleFunc("GET /api/outputs", s.handleListOutputs)
	mux.HandleFunc("GET /api/output/stream", s.handleOutputStream)

	return s
}

// Listen binds the server to its configured address and returns the listener.
// Call Serve() after Listen() to start accepting connections.
// Splitting the two lets callers learn the bound address (port 0) first.
func (s *Server) Listen() (net.Listener, error) {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return nil, fmt.Errorf("web server listen: %w", err)
	}
	s.listener = ln
	return ln, nil
}

// Serve accepts connections on the listener. Blocks until the server stops.
func (s *Server) Serve(ln net.Listener) error {
	s.logger.Info("web server started", "addr", ln.Addr().String())
	return s.httpServer.Serve(ln)
}

// Start is a convenience that calls Listen() then Serve(). Blocks until the server stops.
func (s *Server) Start() error {
	ln, err := s.Listen()
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

// Addr returns the address the server is listening on.
// Only valid after Listen() or Start() has been called.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// NotifyRefresh tells SSE subscribers that the workspace changed.
func (s *Server) NotifyRefresh() {
	s.events.Notify(eventRefresh)
}

// NotifyOutput tells SSE subscribers that a surface changed.
func (s *Server) NotifyOutput() {
	s.events.Notify(eventOutput)
}

// Shutdown gracefully stops the server and cancels running validations.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("web server shutting down")
	s.cancelRun()
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}
