package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/nerrad567/obsgate/internal/infrastructure/config"
	"github.com/nerrad567/obsgate/internal/infrastructure/logging"
	"github.com/nerrad567/obsgate/internal/rpc"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// WebSocket keepalive defaults in seconds.
const (
	defaultPingInterval = 30
	defaultPongTimeout  = 10
)

// Caller runs one RPC. rpc.Dispatcher satisfies it.
type Caller interface {
	Call(ctx context.Context, name string, creds rpc.Credentials, params rpc.Params) (rpc.Value, *rpc.Fault)
}

// SessionChecker validates credentials for WebSocket clients.
// auth.Service satisfies it.
type SessionChecker interface {
	Authenticate(ctx context.Context, username, secret string) (string, error)
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config   config.RPCConfig
	WS       config.WebSocketConfig
	Logger   *logging.Logger
	RPC      Caller
	Sessions SessionChecker
	Hub      *Hub // If nil, the server creates its own
	Metrics  MetricsSource
	Version  string
}

// Server carries RPC calls over HTTP and pushes live events over WebSocket.
//
// The server is created with New() and started with Start().
//
// Thread Safety: All methods are safe for concurrent use from multiple goroutines.
type Server struct {
	cfg      config.RPCConfig
	wsCfg    config.WebSocketConfig
	logger   *logging.Logger
	rpc      Caller
	sessions SessionChecker
	version  string
	hub      *Hub
	ownHub   bool
	metrics  MetricsSource
	calls    *callStats

	mu        sync.Mutex
	startTime time.Time
	server    *http.Server
	listener  net.Listener
	cancel    context.CancelFunc
	done      chan struct{}
}

// New creates a new API server with the given dependencies.
// The server is not started until Start() is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.RPC == nil {
		return nil, fmt.Errorf("rpc dispatcher is required")
	}
	if deps.Sessions == nil {
		return nil, fmt.Errorf("session checker is required")
	}

	if deps.WS.PingInterval <= 0 {
		deps.WS.PingInterval = defaultPingInterval
	}
	if deps.WS.PongTimeout <= 0 {
		deps.WS.PongTimeout = defaultPongTimeout
	}

	s := &Server{
		cfg:      deps.Config,
		wsCfg:    deps.WS,
		logger:   deps.Logger,
		rpc:      deps.RPC,
		sessions: deps.Sessions,
		version:  deps.Version,
		hub:      deps.Hub,
		metrics:  deps.Metrics,
		calls:    newCallStats(),
	}
	if s.hub == nil {
		s.hub = NewHub(deps.Logger)
		s.ownHub = true
	}
	return s, nil
}

// Hub returns the WebSocket hub. It is the gateway's message broadcaster.
func (s *Server) Hub() *Hub { return s.hub }

// Start binds the listener and serves in the background.
//
// Binding happens before Start returns, so a port already in use is
// reported here rather than logged later.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.server != nil {
		return fmt.Errorf("api server already started")
	}

	addr := net.JoinHostPort(s.cfg.Host, fmt.Sprint(s.cfg.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("binding rpc listener on %s: %w", addr, err)
	}

	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)
	if s.ownHub {
		go s.hub.Run(srvCtx)
	}

	s.listener = ln
	s.startTime = time.Now()
	s.server = &http.Server{
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}
	s.done = make(chan struct{})

	s.logger.Info("rpc server listening", "address", ln.Addr().String())
	go func(srv *http.Server, done chan struct{}) {
		defer close(done)
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("rpc server error", "error", err)
		}
	}(s.server, s.done)

	return nil
}

// Addr returns the bound listener address, or "" before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *Server) started() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.startTime
}

// Close gracefully shuts down the server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
func (s *Server) Close() error {
	s.mu.Lock()
	srv, done, cancel := s.server, s.done, s.cancel
	s.mu.Unlock()

	if srv == nil {
		return nil
	}
	if cancel != nil {
		cancel()
	}

	ctx, stop := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer stop()

	s.logger.Info("rpc server shutting down")
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down rpc server: %w", err)
	}
	<-done
	return nil
}

// HealthCheck verifies the server is listening.
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	if s.Addr() == "" {
		return fmt.Errorf("api server not started")
	}
	return nil
}
