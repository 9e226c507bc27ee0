// Package pipeline implements the response-management pipeline: the
// size check, truncate-and-cache step, the exploration hinter
// attachment, and the three drill-in tool handlers (proxy_filter,
// proxy_search, proxy_explore). It is the glue between the tool
// registry's routed calls and the projection/search/cache engines.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"go.uber.org/zap"

	"github.com/mcplens/lens-proxy/internal/cache"
	"github.com/mcplens/lens-proxy/internal/config"
	"github.com/mcplens/lens-proxy/internal/executor"
	"github.com/mcplens/lens-proxy/internal/mcputil"
	"github.com/mcplens/lens-proxy/internal/metrics"
	"github.com/mcplens/lens-proxy/internal/perr"
	"github.com/mcplens/lens-proxy/internal/projection"
	"github.com/mcplens/lens-proxy/internal/search"
	"github.com/mcplens/lens-proxy/internal/upstream"
)

const upstreamCallTimeout = 60 * time.Second

// Upstreams is the narrow upstream-lookup surface the pipeline needs.
type Upstreams interface {
	Get(name string) (*upstream.Session, error)
}

// AgentIDFunc extracts the calling agent's id from a request context,
// so agent-id is threaded explicitly rather than inferred; the stdio
// transport supplies a single implicit agent
// unless a future transport threads one through ctx.
type AgentIDFunc func(ctx context.Context) string

// Pipeline wires the cache, executor, projection/search engines, and
// metrics together behind the response-management and drill-in
// operations named in spec.md §4.6-§4.7.
type Pipeline struct {
	logger    *zap.Logger
	upstreams Upstreams
	cache     *cache.Global
	exec      *executor.Pool
	metrics   *metrics.Metrics
	settings  func() config.ProxySettings
	agentID   AgentIDFunc
}

// New builds a Pipeline. settings is read fresh on every call so a
// hot-reloaded proxySettings change takes effect immediately.
func New(logger *zap.Logger, upstreams Upstreams, c *cache.Global, exec *executor.Pool, m *metrics.Metrics, settings func() config.ProxySettings, agentID AgentIDFunc) *Pipeline {
	return &Pipeline{
		logger:    logger,
		upstreams: upstreams,
		cache:     c,
		exec:      exec,
		metrics:   m,
		settings:  settings,
		agentID:   agentID,
	}
}

// HandleUpstreamCall implements the response pipeline (spec.md §4.6)
// for a call already routed to a known upstream tool name. Its
// signature matches registry.UpstreamDispatcher so it can be passed
// directly to registry.New.
func (p *Pipeline) HandleUpstreamCall(ctx context.Context, sess *upstream.Session, tool string, args map[string]interface{}) (*mcp.CallToolResult, error) {
	callCtx, cancel := context.WithTimeout(ctx, upstreamCallTimeout)
	defer cancel()

	result, err := sess.CallTool(callCtx, tool, args)
	if err != nil {
		return errorResult(perr.AsText(perr.Wrap(perr.KindUpstreamFailure, err, "calling %s", tool))), nil
	}

	return p.finish(ctx, result.Content, tool, args), nil
}

// finish applies the truncate-and-cache step and the exploration hinter
// to a freshly obtained content list, then records metrics.
func (p *Pipeline) finish(ctx context.Context, content []mcp.Content, tool string, args map[string]interface{}) *mcp.CallToolResult {
	settings := p.settings()
	originalSize := textSize(content)

	var cacheID string
	out := content
	autoTruncated := false

	if settings.EnableAutoTruncation && originalSize > int64(settings.MaxResponseSize) {
		agent := ""
		if p.agentID != nil {
			agent = p.agentID(ctx)
		}
		cacheID = p.cache.Put(agent, content, tool, args)
		preview := truncatePreview(content, settings.MaxResponseSize)
		out = []mcp.Content{mcputil.Text(preview + truncationHint(cacheID))}
		autoTruncated = true
	}

	filteredSize := textSize(out)

	if first := firstText(out); first != "" {
		if h := safeHint(first, cacheID); h != nil {
			if b, err := json.Marshal(map[string]interface{}{"rlm_hints": h}); err == nil {
				out = append(out, mcputil.Text(string(b)))
			}
		}
	}

	p.metrics.RecordCall(originalSize, filteredSize, false, false, autoTruncated)

	return &mcp.CallToolResult{Content: out}
}

// safeHint recovers from any panic inside the best-effort hinter and
// returns nil, so an exploration-hint failure is swallowed and never
// surfaced to the agent. The recovered panic is not logged.
func safeHint(text, cacheID string) (h *rlmHints) {
	defer func() {
		if r := recover(); r != nil {
			h = nil
		}
	}()
	return hint(text, cacheID)
}

func truncatePreview(content []mcp.Content, limit int) string {
	var buf []byte
	for _, c := range content {
		text, ok := mcputil.TextOf(c)
		if !ok {
			continue
		}
		buf = append(buf, text...)
	}
	if len(buf) > limit {
		buf = buf[:limit]
	}
	return string(buf)
}

func truncationHint(cacheID string) string {
	return fmt.Sprintf("\n\n--- truncated: full response cached as %q. Use proxy_filter, proxy_search, or proxy_explore with this cache_id to inspect the rest. ---", cacheID)
}

func textSize(content []mcp.Content) int64 {
	return mcputil.Bytes(content)
}

func firstText(content []mcp.Content) string {
	for _, c := range content {
		if text, ok := mcputil.TextOf(c); ok {
			return text
		}
	}
	return ""
}

func errorResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{Content: []mcp.Content{mcputil.Text(text)}}
}

// resolveSource implements the shared source-resolution step from
// spec.md §4.7: either a cache-id lookup, or a fresh upstream call that
// is itself cached.
func (p *Pipeline) resolveSource(ctx context.Context, args map[string]interface{}) ([]mcp.Content, error) {
	if rawID, ok := args["cache_id"]; ok {
		id, _ := rawID.(string)
		content := p.cache.Get(id)
		if content == nil {
			return nil, perr.New(perr.KindCacheMiss, "Cache entry '%s' not found or expired. Re-call the original tool to get a new cache_id.", id)
		}
		return content, nil
	}

	if rawTool, ok := args["tool"]; ok {
		toolName, _ := rawTool.(string)
		if toolName == "" {
			return nil, perr.New(perr.KindInvalidArgument, "'tool' must be a non-empty string")
		}
		toolArgs, _ := args["arguments"].(map[string]interface{})

		upstreamName, bareTool, err := splitToolName(toolName)
		if err != nil {
			return nil, err
		}
		caller, err := p.upstreams.Get(upstreamName)
		if err != nil {
			return nil, perr.Wrap(perr.KindUpstreamUnavailable, err, "upstream %q is not available", upstreamName)
		}

		callCtx, cancel := context.WithTimeout(ctx, upstreamCallTimeout)
		defer cancel()
		result, err := caller.CallTool(callCtx, bareTool, toolArgs)
		if err != nil {
			return nil, perr.Wrap(perr.KindUpstreamFailure, err, "calling %s", toolName)
		}

		agent := ""
		if p.agentID != nil {
			agent = p.agentID(ctx)
		}
		cacheID := p.cache.Put(agent, result.Content, toolName, toolArgs)
		p.logger.Debug("drill-in source cached", zap.String("cache_id", cacheID), zap.String("tool", toolName))
		return result.Content, nil
	}

	return nil, perr.New(perr.KindInvalidArgument, "must supply either 'cache_id' or 'tool' (+ optional 'arguments')")
}

// splitToolName splits on the first underscore, so a tool whose own name
// contains underscores ("weather_get_forecast") resolves to upstream
// "weather"; the registry resolves the true prefix match, but drill-in
// handlers only need a reasonable attempt since p.upstreams.Get will
// fail loudly on a bad guess anyway.
func splitToolName(name string) (upstreamName, toolName string, err error) {
	for i := 1; i < len(name); i++ {
		if name[i] == '_' {
			return name[:i], name[i+1:], nil
		}
	}
	return "", "", perr.New(perr.KindInvalidArgument, "tool name %q is not of the form upstream_tool", name)
}

// DispatchDrillIn implements the three built-in tools. name must be one
// of proxy_filter, proxy_search, proxy_explore.
func (p *Pipeline) DispatchDrillIn(ctx context.Context, name string, args map[string]interface{}) (*mcp.CallToolResult, error) {
	switch name {
	case "proxy_filter":
		return p.handleFilter(ctx, args)
	case "proxy_search":
		return p.handleSearch(ctx, args)
	case "proxy_explore":
		return p.handleExplore(ctx, args)
	default:
		return nil, perr.New(perr.KindInvalidArgument, "unknown drill-in tool %q", name)
	}
}

func (p *Pipeline) handleFilter(ctx context.Context, args map[string]interface{}) (*mcp.CallToolResult, error) {
	content, err := p.resolveSource(ctx, args)
	if err != nil {
		return errorResult(perr.AsText(err)), nil
	}

	spec, err := buildProjectionSpec(args)
	if err != nil {
		return errorResult(perr.AsText(err)), nil
	}

	out, err := executor.Submit(ctx, p.exec, func() projResult {
		c, err := projection.Apply(content, spec)
		return projResult{c, err}
	})
	if err != nil {
		return errorResult(perr.AsText(perr.Wrap(perr.KindUpstreamFailure, err, "projection"))), nil
	}
	if out.err != nil {
		return errorResult(perr.AsText(out.err)), nil
	}

	p.metrics.RecordCall(0, textSize(out.content), true, false, false)
	return &mcp.CallToolResult{Content: out.content}, nil
}

type projResult struct {
	content []mcp.Content
	err     error
}

func buildProjectionSpec(args map[string]interface{}) (projection.Spec, error) {
	exclude := stringSlice(args["exclude"])
	if len(exclude) > 0 {
		return projection.Spec{Mode: projection.ModeExclude, Fields: exclude}, nil
	}
	fields := stringSlice(args["fields"])
	if len(fields) == 0 {
		return projection.Spec{}, perr.New(perr.KindInvalidArgument, "must supply 'fields' (include mode) or non-empty 'exclude'")
	}
	mode := projection.ModeInclude
	if m, ok := args["mode"].(string); ok && m != "" {
		mode = projection.Mode(m)
	}
	return projection.Spec{Mode: mode, Fields: fields}, nil
}

func (p *Pipeline) handleSearch(ctx context.Context, args map[string]interface{}) (*mcp.CallToolResult, error) {
	content, err := p.resolveSource(ctx, args)
	if err != nil {
		return errorResult(perr.AsText(err)), nil
	}

	pattern, _ := args["pattern"].(string)
	if pattern == "" {
		return errorResult(perr.AsText(perr.New(perr.KindInvalidArgument, "'pattern' is required"))), nil
	}

	spec := buildSearchSpec(args, pattern)

	out, err := executor.Submit(ctx, p.exec, func() []mcp.Content {
		return search.Run(content, spec)
	})
	if err != nil {
		return errorResult(perr.AsText(perr.Wrap(perr.KindUpstreamFailure, err, "search"))), nil
	}

	p.metrics.RecordCall(0, textSize(out), false, true, false)
	return &mcp.CallToolResult{Content: out}, nil
}

func buildSearchSpec(args map[string]interface{}, pattern string) search.Spec {
	spec := search.Spec{Pattern: pattern}
	if m, ok := args["mode"].(string); ok && m != "" {
		spec.Mode = search.Mode(m)
	}
	if n, ok := intArg(args["max_results"]); ok {
		spec.MaxMatches = n
		spec.TopK = n
	}
	if n, ok := intArg(args["context_lines"]); ok {
		spec.ContextLines.Both = n
	}
	if b, ok := args["case_insensitive"].(bool); ok {
		spec.CaseInsensitive = b
	}
	if f, ok := args["threshold"].(float64); ok {
		spec.Threshold = f
	}
	if n, ok := intArg(args["top_k"]); ok {
		spec.TopK = n
	}
	if ct, ok := args["context_type"].(string); ok {
		spec.ContextType = ct
	}
	return spec
}

func (p *Pipeline) handleExplore(ctx context.Context, args map[string]interface{}) (*mcp.CallToolResult, error) {
	content, err := p.resolveSource(ctx, args)
	if err != nil {
		return errorResult(perr.AsText(err)), nil
	}

	maxDepth := 3
	if n, ok := intArg(args["max_depth"]); ok {
		maxDepth = n
	}

	out, err := executor.Submit(ctx, p.exec, func() []mcp.Content {
		return search.Run(content, search.Spec{Mode: search.ModeStructure, MaxDepth: maxDepth})
	})
	if err != nil {
		return errorResult(perr.AsText(perr.Wrap(perr.KindUpstreamFailure, err, "explore"))), nil
	}

	if first := firstText(content); first != "" {
		if h := safeHint(first, ""); h != nil {
			if b, err := json.Marshal(map[string]interface{}{"rlm_hints": h}); err == nil {
				out = append(out, mcputil.Text(string(b)))
			}
		}
	}

	return &mcp.CallToolResult{Content: out}, nil
}

func stringSlice(v interface{}) []string {
	raw, ok := v.([]interface{})
	if !ok {
		if s, ok := v.([]string); ok {
			return s
		}
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		if s, ok := r.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func intArg(v interface{}) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case float64:
		return int(n), true
	default:
		return 0, false
	}
}
