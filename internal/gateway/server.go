// Package gateway serves the browser over a WebSocket RPC protocol.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nextlevelbuilder/pagelens/internal/config"
	"github.com/nextlevelbuilder/pagelens/pkg/browser"
	"github.com/nextlevelbuilder/pagelens/pkg/dom"
	"github.com/nextlevelbuilder/pagelens/pkg/identity"
	"github.com/nextlevelbuilder/pagelens/pkg/protocol"
)

// Browser is the browser surface the gateway exposes. *browser.Manager
// implements it.
type Browser interface {
	Status() *browser.StatusInfo
	ListTabs(ctx context.Context) ([]browser.TabInfo, error)
	OpenTab(ctx context.Context, url string) (*browser.TabInfo, error)
	CloseTab(ctx context.Context, targetID string) error
	Navigate(ctx context.Context, targetID, url string) error
	Snapshot(ctx context.Context, targetID string, opts browser.SnapshotOptions) (*browser.SnapshotResult, error)
	Click(ctx context.Context, targetID string, index int, opts browser.ClickOpts) (*browser.ActResult, error)
	Type(ctx context.Context, targetID string, index int, text string, opts browser.TypeOpts) (*browser.ActResult, error)
	Hover(ctx context.Context, targetID string, index int) (*browser.ActResult, error)
	Resolver(targetID string) (*identity.Resolver, error)
	SetExtractConfig(cfg dom.Config)
}

const (
	requestTimeout  = 60 * time.Second
	shutdownTimeout = 5 * time.Second
)

// Server is the gateway HTTP and WebSocket server.
type Server struct {
	cfg     *config.Config
	cfgPath string
	browser Browser
	router  *MethodRouter
	limiter *RateLimiter
	logger  *slog.Logger

	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[string]*Client
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) ServerOption {
	return func(s *Server) { s.logger = l }
}

// WithConfigPath makes config.apply persist accepted changes to path.
func WithConfigPath(path string) ServerOption {
	return func(s *Server) { s.cfgPath = path }
}

// NewServer creates a gateway for b configured by cfg.
func NewServer(cfg *config.Config, b Browser, opts ...ServerOption) *Server {
	s := &Server{
		cfg:     cfg,
		browser: b,
		logger:  slog.Default(),
		clients: make(map[string]*Client),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
	for _, o := range opts {
		o(s)
	}
	s.limiter = NewRateLimiter(cfg.Gateway.RateLimitRPM, cfg.Gateway.RateLimitBurst)
	s.router = NewMethodRouter(s)
	return s
}

// Handler returns the HTTP handler serving /ws and /health.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/health", s.handleHealth)
	return mux
}

// Run listens on the configured address until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	addr := net.JoinHostPort(s.cfg.Gateway.Host, strconv.Itoa(s.cfg.Gateway.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is done.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	if s.limiter.Enabled() {
		go s.limiter.Run(ctx, 5*time.Minute, 10*time.Minute)
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("gateway listening", "addr", ln.Addr().String())
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve gateway: %w", err)
	case <-ctx.Done():
	}

	s.Broadcast(*protocol.NewEvent(protocol.EventShutdown, nil))
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	err := srv.Shutdown(shutdownCtx)
	s.closeClients()
	s.logger.Info("gateway stopped")
	return err
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	status := s.browser.Status()
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"status":   "ok",
		"protocol": protocol.ProtocolVersion,
		"browser":  status,
	})
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	client := NewClient(conn, s, remoteKey(r))
	s.register(client)
	defer s.unregister(client)

	client.Run(r.Context())
}

func remoteKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func (s *Server) register(c *Client) {
	s.mu.Lock()
	s.clients[c.id] = c
	n := len(s.clients)
	s.mu.Unlock()
	s.logger.Info("client connected", "client", c.id, "remote", c.remoteKey, "clients", n)
}

func (s *Server) unregister(c *Client) {
	s.mu.Lock()
	delete(s.clients, c.id)
	n := len(s.clients)
	s.mu.Unlock()
	c.Close()
	s.logger.Info("client disconnected", "client", c.id, "clients", n)
}

// closeClients stops every write pump. Queued frames are flushed before
// the close message.
func (s *Server) closeClients() {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.clients {
		c.Close()
	}
}

// ClientCount reports the connected clients.
func (s *Server) ClientCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

// Broadcast sends an event to every authenticated client.
func (s *Server) Broadcast(event protocol.EventFrame) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.clients {
		if c.authenticated.Load() {
			c.SendEvent(event)
		}
	}
}

// ApplyConfig makes cfg the live config: the browser picks up the new
// extraction thresholds and clients are told the config changed.
func (s *Server) ApplyConfig(cfg *config.Config) {
	s.cfg.ReplaceFrom(cfg)
	s.browser.SetExtractConfig(s.cfg.ExtractSettings().Filters)
	s.Broadcast(*protocol.NewEvent(protocol.EventConfigReloaded, map[string]any{
		"hash": s.cfg.Hash(),
	}))
}

// snapshotOptions builds snapshot options from the live config.
func (s *Server) snapshotOptions() browser.SnapshotOptions {
	ex := s.cfg.ExtractSettings()
	return browser.SnapshotOptions{
		Extract:  ex.Options,
		Compact:  ex.Compact,
		MaxChars: ex.MaxChars,
	}
}
