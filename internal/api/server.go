package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/nerrad567/hamonitor/internal/audit"
	"github.com/nerrad567/hamonitor/internal/history"
	"github.com/nerrad567/hamonitor/internal/infrastructure/config"
	"github.com/nerrad567/hamonitor/internal/infrastructure/logging"
	"github.com/nerrad567/hamonitor/internal/monitor"
	"github.com/nerrad567/hamonitor/internal/todo"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// Monitor is the poller as seen by the API. *monitor.Poller satisfies it.
type Monitor interface {
	Current() *monitor.Snapshot
	Refresh()
	Subscribe(sub monitor.Subscriber) (unsubscribe func())
	SubscriberCount() int
}

// UpdateActions installs or skips updates. *updates.Actions satisfies it.
type UpdateActions interface {
	Install(ctx context.Context, entityID string, backup bool) error
	Skip(ctx context.Context, entityID string) error
	ClearSkipped(ctx context.Context, entityID string) error
}

// TodoService manages to-do lists. *todo.Manager satisfies it.
type TodoService interface {
	Entities() []string
	List(ctx context.Context, entityID string) ([]todo.Item, error)
	Add(ctx context.Context, entityID string, item todo.NewItem) error
	Update(ctx context.Context, entityID, item string, change todo.Change) error
	Remove(ctx context.Context, entityID, item string) error
}

// HistoryReader reads recorded polls. *history.SQLiteRepository satisfies it.
type HistoryReader interface {
	Recent(ctx context.Context, limit int) ([]history.PollRecord, error)
	FirstSeenOffline(ctx context.Context, kind history.Kind, itemID string) (time.Time, error)
}

// AuditLog records service actions. *audit.SQLiteRepository satisfies it.
type AuditLog interface {
	Create(ctx context.Context, e *audit.Entry) error
	List(ctx context.Context, filter audit.Filter) (*audit.ListResult, error)
}

// HealthChecker is implemented by every infrastructure client.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config   config.APIConfig
	WS       config.WebSocketConfig
	Security config.SecurityConfig
	Cards    config.CardsConfig
	Logger   *logging.Logger
	Monitor  Monitor

	// Optional. Endpoints backed by a nil dependency answer 404.
	Updates UpdateActions
	Todo    TodoService
	History HistoryReader
	Audit   AuditLog
	Metrics http.Handler

	// Checks are reported by /health, keyed by component name.
	Checks map[string]HealthChecker

	Version string
}

// Server is the HTTP API server.
//
// It manages the HTTP listener, routes, middleware, and WebSocket hub.
// The server is created with New() and started with Start().
type Server struct {
	cfg       config.APIConfig
	wsCfg     config.WebSocketConfig
	secCfg    config.SecurityConfig
	cards     config.CardsConfig
	logger    *logging.Logger
	monitor   Monitor
	updates   UpdateActions
	todo      TodoService
	history   HistoryReader
	audit     AuditLog
	metrics   http.Handler
	checks    map[string]HealthChecker
	version   string
	startTime time.Time

	tickets *ticketStore
	hub     *Hub
	server  *http.Server
	addr    net.Addr
	cancel  context.CancelFunc
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Monitor == nil {
		return nil, fmt.Errorf("monitor is required")
	}
	if deps.Security.JWT.Secret == "" {
		return nil, fmt.Errorf("jwt secret is required")
	}

	s := &Server{
		cfg:       deps.Config,
		wsCfg:     deps.WS,
		secCfg:    deps.Security,
		cards:     deps.Cards,
		logger:    deps.Logger,
		monitor:   deps.Monitor,
		updates:   deps.Updates,
		todo:      deps.Todo,
		history:   deps.History,
		audit:     deps.Audit,
		metrics:   deps.Metrics,
		checks:    deps.Checks,
		version:   deps.Version,
		startTime: time.Now(),
		tickets:   newTicketStore(),
	}
	s.hub = NewHub(s.wsCfg, s.logger)
	return s, nil
}

// Hub returns the WebSocket hub, e.g. to export its client count.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Start binds the listener and serves in a background goroutine. The hub
// and the ticket cleanup loop stop when ctx is cancelled or Close is called.
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	go s.hub.Run(srvCtx)
	go s.cleanTicketsLoop(srvCtx)

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	// Listen synchronously so a port conflict is reported to the caller.
	ln, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		s.cancel()
		return fmt.Errorf("listening on %s: %w", s.server.Addr, err)
	}
	s.addr = ln.Addr()

	s.logger.Info("API server listening", "address", s.addr.String())
	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Addr returns the bound address, or nil before Start.
func (s *Server) Addr() net.Addr {
	return s.addr
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	if s.cancel != nil {
		s.cancel()
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck verifies the API server is running.
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	if s.server == nil {
		return fmt.Errorf("api server not started")
	}
	return nil
}
