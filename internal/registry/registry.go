// Package registry aggregates the built-in drill-in tools with every
// live upstream's tools under a "{upstream}_{tool}" prefix, and routes
// inbound calls back to the right upstream. cmd/lensproxy registers its
// aggregated tool list and this registry's CallTool as the handler for
// each one against an mcp-go server.MCPServer.
package registry

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/sahilm/fuzzy"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mcplens/lens-proxy/internal/csync"
	"github.com/mcplens/lens-proxy/internal/perr"
	"github.com/mcplens/lens-proxy/internal/upstream"
)

const listTimeout = 10 * time.Second

// Upstreams is the subset of *upstream.Manager the registry depends on,
// kept narrow so tests can fake it.
type Upstreams interface {
	Get(name string) (*upstream.Session, error)
	Names() []string
}

// DrillInDispatcher runs one of the three built-in tools once the
// registry has recognized the call as a drill-in rather than an
// upstream-routed one.
type DrillInDispatcher func(ctx context.Context, name string, args map[string]interface{}) (*mcp.CallToolResult, error)

// UpstreamDispatcher runs the response-management pipeline (size check,
// truncate, cache, hint, metrics) over a call already resolved to a
// specific upstream session and bare tool name.
type UpstreamDispatcher func(ctx context.Context, sess *upstream.Session, tool string, args map[string]interface{}) (*mcp.CallToolResult, error)

// Registry aggregates tool listings and routes calls.
type Registry struct {
	logger    *zap.Logger
	upstreams Upstreams
	drillIns  []mcp.Tool
	dispatch  DrillInDispatcher
	respond   UpstreamDispatcher

	cachedTools *csync.Map[string, []mcp.Tool] // upstream -> last known list
}

// New builds a registry. drillIns are the three built-in tool
// descriptors (§6); dispatch handles proxy_filter/proxy_search/
// proxy_explore calls, respond handles everything else by running the
// response pipeline over the resolved upstream session.
func New(logger *zap.Logger, upstreams Upstreams, drillIns []mcp.Tool, dispatch DrillInDispatcher, respond UpstreamDispatcher) *Registry {
	return &Registry{
		logger:      logger,
		upstreams:   upstreams,
		drillIns:    drillIns,
		dispatch:    dispatch,
		respond:     respond,
		cachedTools: csync.NewMap[string, []mcp.Tool](),
	}
}

// ListTools returns the three drill-in descriptors followed by every
// live upstream's tools, prefixed "{upstream}_{tool}". Already-cached
// upstream lists are reused; upstreams with no cached list yet are
// fetched in parallel with a per-upstream deadline, fanned in via
// errgroup.
func (r *Registry) ListTools(ctx context.Context) ([]mcp.Tool, error) {
	names := r.upstreams.Names()

	var toFetch []string
	for _, n := range names {
		if _, ok := r.cachedTools.Get(n); !ok {
			toFetch = append(toFetch, n)
		}
	}

	if len(toFetch) > 0 {
		g, gctx := errgroup.WithContext(ctx)

		for _, n := range toFetch {
			n := n
			g.Go(func() error {
				sess, err := r.upstreams.Get(n)
				if err != nil {
					return nil // upstream went away mid-fetch; skip silently
				}
				fetchCtx, cancel := context.WithTimeout(gctx, listTimeout)
				defer cancel()
				tools, err := sess.ListTools(fetchCtx)
				if err != nil {
					r.logger.Warn("tool list fetch failed", zap.String("upstream", n), zap.Error(err))
					return nil // non-fatal: registry lazily retries next listing
				}
				r.cachedTools.Set(n, deepCopyTools(tools))
				return nil
			})
		}
		_ = g.Wait()
	}

	out := make([]mcp.Tool, 0, len(r.drillIns)+8)
	out = append(out, r.drillIns...)

	for _, n := range names {
		tools, _ := r.cachedTools.Get(n)
		for _, t := range tools {
			out = append(out, mcp.Tool{
				Name:        n + "_" + t.Name,
				Description: t.Description + fmt.Sprintf(" (via %s)", n),
				InputSchema: deepCopySchema(t.InputSchema),
				Annotations: t.Annotations,
			})
		}
	}
	return out, nil
}

// CallTool routes a drill-in call directly, or resolves "{upstream}_
// {tool}" by prefix-matching every known upstream name (no separate
// split-on-last-underscore step: any such split whose head is a known
// upstream is already a prefix match). Unknown upstreams fail with UnknownServer,
// naming the known upstreams and, when one is a close match, a "did you
// mean" suggestion.
func (r *Registry) CallTool(ctx context.Context, name string, args map[string]interface{}) (*mcp.CallToolResult, error) {
	for _, d := range r.drillIns {
		if d.Name == name {
			if err := validateDrillInArgs(d, args); err != nil {
				return nil, err
			}
			return r.dispatch(ctx, name, args)
		}
	}

	upstreamName, toolName, err := r.route(name)
	if err != nil {
		return nil, err
	}

	sess, err := r.upstreams.Get(upstreamName)
	if err != nil {
		return nil, perr.Wrap(perr.KindUpstreamUnavailable, err, "upstream %q is not available", upstreamName)
	}
	return r.respond(ctx, sess, toolName, args)
}

// route splits name into an upstream and a tool name by matching every
// known upstream as a literal "{upstream}_" prefix (upstream names may
// themselves contain underscores, so the tool name is whatever remains
// after the matched upstream's own prefix, not just the last segment).
func (r *Registry) route(name string) (upstreamName, toolName string, err error) {
	names := r.upstreams.Names()

	for _, n := range names {
		prefix := n + "_"
		if strings.HasPrefix(name, prefix) {
			return n, strings.TrimPrefix(name, prefix), nil
		}
	}

	return "", "", perr.New(perr.KindUnknownServer, "unknown upstream for tool %q; available upstreams: %s%s",
		name, strings.Join(names, ", "), suggestion(name, names))
}

// stringSource adapts a []string to sahilm/fuzzy's Source interface.
type stringSource []string

func (s stringSource) String(i int) string { return s[i] }
func (s stringSource) Len() int            { return len(s) }

// suggestion returns a "did you mean" clause built from a fuzzy match of
// the attempted upstream prefix (the part of name before its first
// underscore) against the known upstream names, or empty if nothing
// scores.
func suggestion(name string, names []string) string {
	if len(names) == 0 {
		return ""
	}
	attempted := name
	if i := strings.Index(name, "_"); i > 0 {
		attempted = name[:i]
	}
	matches := fuzzy.Find(attempted, stringSource(names))
	if len(matches) == 0 {
		return ""
	}
	return fmt.Sprintf(" (did you mean %q?)", names[matches[0].Index])
}

func deepCopyTools(tools []mcp.Tool) []mcp.Tool {
	out := make([]mcp.Tool, len(tools))
	for i, t := range tools {
		out[i] = mcp.Tool{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: deepCopySchema(t.InputSchema),
			Annotations: t.Annotations,
		}
	}
	return out
}

// deepCopySchema copies a tool's input schema so that the registry's
// cache can never be mutated through a caller's reference to a returned
// Tool (ListTools hands out copies, CallTool never touches the schema
// at all).
func deepCopySchema(schema mcp.ToolInputSchema) mcp.ToolInputSchema {
	out := mcp.ToolInputSchema{
		Type:     schema.Type,
		Required: append([]string(nil), schema.Required...),
	}
	if schema.Properties != nil {
		out.Properties = deepCopyValue(schema.Properties).(map[string]interface{})
	}
	return out
}

func deepCopyValue(v interface{}) interface{} {
	switch x := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(x))
		for k, val := range x {
			out[k] = deepCopyValue(val)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(x))
		for i, val := range x {
			out[i] = deepCopyValue(val)
		}
		return out
	default:
		return x
	}
}
