package mcpserver

import (
	"context"
	"time"

	"github.com/goccy/go-json"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/blueberrycongee/reasoncache/internal/cache/semantic"
	"github.com/blueberrycongee/reasoncache/internal/observability"
	"github.com/blueberrycongee/reasoncache/internal/reasoning"
	"github.com/blueberrycongee/reasoncache/internal/security"
	"github.com/blueberrycongee/reasoncache/pkg/errors"
)

// Tool names.
const (
	ToolReason             = "reason"
	ToolReasonAcrossLayers = "reason_across_layers"
	ToolCacheStore         = "cache_store"
	ToolCacheRetrieve      = "cache_retrieve"
	ToolCacheInvalidate    = "cache_invalidate"
	ToolCacheStats         = "cache_stats"
)

type registration struct {
	tool    mcp.Tool
	handler server.ToolHandlerFunc
}

func (s *Server) tools() []registration {
	strategies := make([]string, 0, len(reasoning.AllStrategies()))
	for _, st := range reasoning.AllStrategies() {
		strategies = append(strategies, string(st))
	}

	return []registration{
		{
			tool: mcp.NewTool(ToolReason,
				mcp.WithDescription("Reason about a structured input at one abstraction layer."),
				mcp.WithObject("input", mcp.Required(), mcp.Description("Structured record to reason about")),
				mcp.WithString("strategy", mcp.Enum(strategies...), mcp.Description("Reasoning strategy; defaults to the current one")),
				mcp.WithString("layer", mcp.Description("Abstraction layer; defaults to the current one")),
				mcp.WithNumber("depth", mcp.Description("Reasoning depth, 1 by default")),
				mcp.WithBoolean("skip_cache", mcp.Description("Bypass the reasoning cache")),
			),
			handler: s.guard(security.OpReason, s.handleReason),
		},
		{
			tool: mcp.NewTool(ToolReasonAcrossLayers,
				mcp.WithDescription("Reason at several layers and integrate the results."),
				mcp.WithObject("input", mcp.Required(), mcp.Description("Structured record to reason about")),
				mcp.WithString("strategy", mcp.Enum(strategies...)),
				mcp.WithArray("layers", mcp.Items(map[string]any{"type": "string"}), mcp.Description("Layers to use; defaults to all enabled")),
				mcp.WithNumber("max_depth"),
				mcp.WithBoolean("skip_cache"),
			),
			handler: s.guard(security.OpReasonAcrossLayers, s.handleReasonAcrossLayers),
		},
		{
			tool: mcp.NewTool(ToolCacheStore,
				mcp.WithDescription("Store a value in the semantic cache."),
				mcp.WithString("key", mcp.Required()),
				mcp.WithAny("value", mcp.Required(), mcp.Description("Any JSON value")),
				mcp.WithString("ttl", mcp.Description(`Duration such as "10m"; negative never expires`)),
				mcp.WithObject("context", mcp.Description("Attributes for context lookups")),
				mcp.WithString("text", mcp.Description("Text embedded for similarity lookups")),
				mcp.WithNumber("priority"),
			),
			handler: s.guard(security.OpCacheStore, s.handleCacheStore),
		},
		{
			tool: mcp.NewTool(ToolCacheRetrieve,
				mcp.WithDescription("Look up a value by key, then context overlap, then text similarity."),
				mcp.WithString("key"),
				mcp.WithObject("context"),
				mcp.WithString("text"),
			),
			handler: s.guard(security.OpCacheRetrieve, s.handleCacheRetrieve),
		},
		{
			tool: mcp.NewTool(ToolCacheInvalidate,
				mcp.WithDescription("Remove entries by key, by matching context, or all of them."),
				mcp.WithString("key"),
				mcp.WithObject("context"),
				mcp.WithBoolean("all"),
			),
			handler: s.guard(security.OpCacheInvalidate, s.handleCacheInvalidate),
		},
		{
			tool: mcp.NewTool(ToolCacheStats,
				mcp.WithDescription("Report semantic and reasoning cache statistics."),
			),
			handler: s.guard(security.OpCacheStats, s.handleCacheStats),
		},
	}
}

// guard authorizes the call and turns typed failures into tool errors the
// client can read. Only unexpected failures are returned as Go errors.
func (s *Server) guard(op string, fn func(ctx context.Context, req mcp.CallToolRequest) (any, error)) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		ctx, _ = observability.EnsureRequestID(ctx)
		if s.authz != nil {
			if err := s.authz.Authorize(s.principal, op); err != nil {
				return toolError(err), nil
			}
		}
		out, err := fn(ctx, req)
		if err != nil {
			if errors.TypeOf(err) == errors.TypeInternalError {
				s.logger.ErrorContext(ctx, "mcp tool failed", "tool", req.Params.Name, "error", err)
			}
			return toolError(err), nil
		}
		data, err := json.Marshal(out)
		if err != nil {
			return nil, errors.NewInternalError("encode tool result", err)
		}
		return mcp.NewToolResultText(string(data)), nil
	}
}

func toolError(err error) *mcp.CallToolResult {
	return mcp.NewToolResultError(errors.TypeOf(err) + ": " + err.Error())
}

func bind(req mcp.CallToolRequest, dst any) error {
	if err := req.BindArguments(dst); err != nil {
		return errors.NewInvalidArgumentError("invalid arguments: %v", err)
	}
	return nil
}

type reasonArgs struct {
	Input map[string]any `json:"input"`
	reasoning.ReasonOptions
}

func (s *Server) handleReason(ctx context.Context, req mcp.CallToolRequest) (any, error) {
	var args reasonArgs
	if err := bind(req, &args); err != nil {
		return nil, err
	}
	if args.Input == nil {
		return nil, errors.NewInvalidArgumentError("input is required")
	}
	return s.reasoner.Reason(ctx, args.Input, args.ReasonOptions)
}

type crossLayerArgs struct {
	Input map[string]any `json:"input"`
	reasoning.CrossLayerOptions
}

func (s *Server) handleReasonAcrossLayers(ctx context.Context, req mcp.CallToolRequest) (any, error) {
	var args crossLayerArgs
	if err := bind(req, &args); err != nil {
		return nil, err
	}
	if args.Input == nil {
		return nil, errors.NewInvalidArgumentError("input is required")
	}
	return s.reasoner.ReasonAcrossLayers(ctx, args.Input, args.CrossLayerOptions)
}

type storeArgs struct {
	Key      string         `json:"key"`
	Value    any            `json:"value"`
	TTL      string         `json:"ttl"`
	Context  map[string]any `json:"context"`
	Text     string         `json:"text"`
	Priority int            `json:"priority"`
}

func (s *Server) handleCacheStore(ctx context.Context, req mcp.CallToolRequest) (any, error) {
	if s.cache == nil {
		return nil, errors.NewNotInitializedError("semantic cache")
	}
	var args storeArgs
	if err := bind(req, &args); err != nil {
		return nil, err
	}
	opts := semantic.StoreOptions{Context: args.Context, Text: args.Text, Priority: args.Priority}
	if args.TTL != "" {
		ttl, err := time.ParseDuration(args.TTL)
		if err != nil {
			return nil, errors.NewInvalidArgumentError("invalid ttl %q", args.TTL)
		}
		opts.TTL = ttl
	}
	return s.cache.Store(ctx, args.Key, args.Value, opts)
}

type retrieveArgs struct {
	Key     string         `json:"key"`
	Context map[string]any `json:"context"`
	Text    string         `json:"text"`
}

type retrieveResult struct {
	Hit   bool            `json:"hit"`
	Entry *semantic.Entry `json:"entry,omitempty"`
}

func (s *Server) handleCacheRetrieve(ctx context.Context, req mcp.CallToolRequest) (any, error) {
	if s.cache == nil {
		return nil, errors.NewNotInitializedError("semantic cache")
	}
	var args retrieveArgs
	if err := bind(req, &args); err != nil {
		return nil, err
	}
	entry, err := s.cache.Retrieve(ctx, args.Key, semantic.RetrieveOptions{Context: args.Context, Text: args.Text})
	if err != nil {
		return nil, err
	}
	return retrieveResult{Hit: entry != nil, Entry: entry}, nil
}

type invalidateArgs struct {
	Key     string         `json:"key"`
	Context map[string]any `json:"context"`
	All     bool           `json:"all"`
}

func (s *Server) handleCacheInvalidate(ctx context.Context, req mcp.CallToolRequest) (any, error) {
	if s.cache == nil {
		return nil, errors.NewNotInitializedError("semantic cache")
	}
	var args invalidateArgs
	if err := bind(req, &args); err != nil {
		return nil, err
	}
	if args.All && s.authz != nil {
		if err := s.authz.Authorize(s.principal, security.OpCacheClear); err != nil {
			return nil, err
		}
	}
	n, err := s.cache.Invalidate(ctx, semantic.InvalidateOptions{Key: args.Key, Context: args.Context, All: args.All})
	if err != nil {
		return nil, err
	}
	return map[string]int{"removed": n}, nil
}

func (s *Server) handleCacheStats(_ context.Context, _ mcp.CallToolRequest) (any, error) {
	out := map[string]any{"reasoning": s.reasoner.CacheStats()}
	if s.cache != nil {
		out["semantic"] = s.cache.Stats()
	}
	return out, nil
}
