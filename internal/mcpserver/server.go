// Package mcpserver exposes reasoning and semantic cache operations as MCP
// tools.
package mcpserver

import (
	"context"
	"io"
	"log/slog"

	"github.com/mark3labs/mcp-go/server"

	"github.com/blueberrycongee/reasoncache/internal/cache"
	"github.com/blueberrycongee/reasoncache/internal/cache/semantic"
	"github.com/blueberrycongee/reasoncache/internal/reasoning"
	"github.com/blueberrycongee/reasoncache/internal/security"
)

// Version is reported to MCP clients. It is set at build time.
var Version = "dev"

// Reasoner runs reasoning requests. *reasoning.Framework satisfies it.
type Reasoner interface {
	Reason(ctx context.Context, input any, opts reasoning.ReasonOptions) (*reasoning.Result, error)
	ReasonAcrossLayers(ctx context.Context, input any, opts reasoning.CrossLayerOptions) (*reasoning.HierarchicalResult, error)
	CacheStats() cache.Stats
}

// SemanticCache is the subset of *semantic.Cache the tools use.
type SemanticCache interface {
	Store(ctx context.Context, key string, value any, opts semantic.StoreOptions) (*semantic.Entry, error)
	Retrieve(ctx context.Context, key string, opts semantic.RetrieveOptions) (*semantic.Entry, error)
	Invalidate(ctx context.Context, opts semantic.InvalidateOptions) (int, error)
	Stats() semantic.Stats
}

// Authorizer decides whether a principal may run an operation.
type Authorizer interface {
	Authorize(p security.Principal, operation string) error
}

// Server owns the MCP server and its tool handlers.
type Server struct {
	reasoner  Reasoner
	cache     SemanticCache
	authz     Authorizer
	principal security.Principal
	logger    *slog.Logger
	mcp       *server.MCPServer
}

// Option configures a Server.
type Option func(*Server)

// WithAuthorizer checks every tool call for the configured principal.
func WithAuthorizer(a Authorizer, p security.Principal) Option {
	return func(s *Server) {
		s.authz = a
		s.principal = p
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// New creates a Server with every tool registered. sc may be nil; the
// cache tools then report the cache as not initialized.
func New(reasoner Reasoner, sc SemanticCache, opts ...Option) *Server {
	s := &Server{
		reasoner: reasoner,
		cache:    sc,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.mcp = server.NewMCPServer(
		"reasoncache",
		Version,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
		server.WithInstructions(instructions),
	)
	for _, t := range s.tools() {
		s.mcp.AddTool(t.tool, t.handler)
	}
	return s
}

// MCPServer returns the underlying server for custom transports.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

// ServeStdio serves MCP over the given streams until ctx is canceled or
// the input closes.
func (s *Server) ServeStdio(ctx context.Context, in io.Reader, out io.Writer) error {
	stdio := server.NewStdioServer(s.mcp)
	stdio.SetErrorLogger(slog.NewLogLogger(s.logger.Handler(), slog.LevelError))
	return stdio.Listen(ctx, in, out)
}

const instructions = `reasoncache runs strategy-based reasoning over abstraction layers and
caches results. Use "reason" for a single layer, "reason_across_layers" to
integrate several layers, and the cache_* tools to store and look up results
by key, context attributes or text similarity.`
