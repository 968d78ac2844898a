// Package mcp exposes the browser as Model Context Protocol tools over
// stdio.
package mcp

import (
	"context"
	"log/slog"
	"os"

	mcpgo "github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/nextlevelbuilder/pagelens/pkg/browser"
	"github.com/nextlevelbuilder/pagelens/pkg/identity"
)

// Browser is the browser surface the tools drive. *browser.Manager
// implements it.
type Browser interface {
	ListTabs(ctx context.Context) ([]browser.TabInfo, error)
	Navigate(ctx context.Context, targetID, url string) error
	Snapshot(ctx context.Context, targetID string, opts browser.SnapshotOptions) (*browser.SnapshotResult, error)
	Click(ctx context.Context, targetID string, index int, opts browser.ClickOpts) (*browser.ActResult, error)
	Type(ctx context.Context, targetID string, index int, text string, opts browser.TypeOpts) (*browser.ActResult, error)
	Hover(ctx context.Context, targetID string, index int) (*browser.ActResult, error)
	Lookup(ctx context.Context, targetID string, index int) (identity.Handle, error)
	Resolver(targetID string) (*identity.Resolver, error)
}

// Server registers the browser tools on an MCP server.
type Server struct {
	browser  Browser
	defaults func() browser.SnapshotOptions
	version  string
	logger   *slog.Logger
	mcp      *server.MCPServer
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets a custom logger. Stdio servers must not log to stdout.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithSnapshotDefaults supplies snapshot options per call, so hot
// reloaded settings apply to the next snapshot.
func WithSnapshotDefaults(fn func() browser.SnapshotOptions) Option {
	return func(s *Server) { s.defaults = fn }
}

// WithVersion sets the version reported during initialize.
func WithVersion(v string) Option {
	return func(s *Server) { s.version = v }
}

// NewServer creates an MCP server with every browser tool registered.
func NewServer(b Browser, opts ...Option) *Server {
	s := &Server{
		browser:  b,
		defaults: browser.DefaultSnapshotOptions,
		version:  "dev",
		logger:   slog.Default(),
	}
	for _, o := range opts {
		o(s)
	}
	s.mcp = server.NewMCPServer("pagelens", s.version,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
		server.WithInstructions("Call browser_snapshot first. Act on elements by the [index] shown in the snapshot; indices expire when the page navigates."),
	)
	s.registerTools()
	return s
}

// MCPServer returns the underlying mcp-go server.
func (s *Server) MCPServer() *server.MCPServer { return s.mcp }

// ServeStdio serves MCP over stdin and stdout until ctx is done.
func (s *Server) ServeStdio(ctx context.Context) error {
	s.logger.Info("mcp server listening on stdio", "tools", len(s.mcp.ListTools()))
	stdio := server.NewStdioServer(s.mcp)
	return stdio.Listen(ctx, os.Stdin, os.Stdout)
}

func toolError(err error) *mcpgo.CallToolResult {
	return mcpgo.NewToolResultError(err.Error())
}
