// Package upstream implements one supervised upstream MCP child process:
// spawn, handshake, tool prefetch, and a park-until-cancelled supervisor
// loop that keeps the session reachable and tears it down on
// cancellation or fatal transport loss.
package upstream

import (
	"context"
	"time"

	mcpclient "github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mcplens/lens-proxy/internal/config"
	"github.com/mcplens/lens-proxy/internal/csync"
	"github.com/mcplens/lens-proxy/internal/metrics"
	"github.com/mcplens/lens-proxy/internal/perr"
)

const (
	handshakeTimeout = 30 * time.Second
	prefetchTimeout  = 10 * time.Second
	callTimeout      = 60 * time.Second
)

// mcpClient is the subset of *mcpclient.Client a Session depends on, kept
// narrow so tests can inject a fake without reconstructing mcp-go's wire
// transport.
type mcpClient interface {
	Initialize(ctx context.Context, request mcp.InitializeRequest) (*mcp.InitializeResult, error)
	ListTools(ctx context.Context, request mcp.ListToolsRequest) (*mcp.ListToolsResult, error)
	CallTool(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error)
	Ping(ctx context.Context) error
	Close() error
}

// Session owns one child process and its protocol session. It is
// registered in the tool registry only after successful initialization,
// per spec.md §3's upstream-session invariant.
type Session struct {
	Name string

	client mcpClient
	logger *zap.Logger
	cancel context.CancelFunc

	alive   bool
	toolsOK bool // false after a failed prefetch; registry should lazily retry
}

// Start spawns the child over stdio, performs the handshake with a
// 30s deadline, and returns a live Session plus a supervisor goroutine
// that parks until ctx is cancelled. The caller owns ctx's lifetime;
// cancelling it tears the session down: deregister, drop the handle,
// close the client, await child exit.
func Start(ctx context.Context, name string, spec config.ServerSpec, clientInfo mcp.Implementation, logger *zap.Logger, m *metrics.Metrics) (*Session, <-chan struct{}, error) {
	sessCtx, cancel := context.WithCancel(ctx)
	log := logger.With(zap.String("upstream", name))

	c, err := mcpclient.NewStdioMCPClient(spec.Command, envSlice(spec.Env), spec.Args...)
	if err != nil {
		cancel()
		m.ConnectionFailed()
		return nil, nil, perr.Wrap(perr.KindUpstreamFailure, err, "spawning upstream %s", name)
	}

	handshakeCtx, hcancel := context.WithTimeout(sessCtx, handshakeTimeout)
	defer hcancel()

	initReq := mcp.InitializeRequest{}
	initReq.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	initReq.Params.ClientInfo = clientInfo
	if _, err := c.Initialize(handshakeCtx, initReq); err != nil {
		_ = c.Close()
		cancel()
		m.ConnectionFailed()
		return nil, nil, perr.Wrap(perr.KindUpstreamFailure, err, "handshake with upstream %s", name)
	}

	s := &Session{
		Name:    name,
		client:  c,
		logger:  log,
		cancel:  cancel,
		alive:   true,
		toolsOK: true,
	}

	prefetchCtx, pcancel := context.WithTimeout(sessCtx, prefetchTimeout)
	defer pcancel()
	if _, err := c.ListTools(prefetchCtx, mcp.ListToolsRequest{}); err != nil {
		s.logger.Warn("tool prefetch failed; will retry lazily on next aggregate listing", zap.Error(err))
		s.toolsOK = false
	}

	m.ConnectionUp()

	done := make(chan struct{})
	go s.supervise(sessCtx, done, m)

	return s, done, nil
}

// envSlice renders a ServerSpec's environment map as "KEY=VALUE" pairs,
// the shape mcp-go's stdio client constructor expects.
func envSlice(env map[string]string) []string {
	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, k+"="+v)
	}
	return out
}

// supervise parks on ctx.Done(), then tears the session down. It is the
// only goroutine responsible for closing this session's resources.
func (s *Session) supervise(ctx context.Context, done chan struct{}, m *metrics.Metrics) {
	defer close(done)
	<-ctx.Done()

	s.logger.Info("supervisor tearing down upstream")
	s.alive = false
	if err := s.client.Close(); err != nil {
		s.logger.Warn("error closing upstream client", zap.Error(err))
	}
	m.ConnectionDown()
}

// IsAlive reports whether the supervisor still considers this session
// usable for routing.
func (s *Session) IsAlive() bool { return s.alive }

// ToolsReady reports whether the initial prefetch succeeded. When false
// the tool registry should attempt a fresh ListTools on next aggregate
// listing rather than trusting an empty cache.
func (s *Session) ToolsReady() bool { return s.toolsOK }

// ListTools forwards to the underlying client with the given context.
func (s *Session) ListTools(ctx context.Context) ([]mcp.Tool, error) {
	result, err := s.client.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		return nil, err
	}
	s.toolsOK = true
	return result.Tools, nil
}

// CallTool forwards a tool call with the standard 60-second deadline. On
// timeout, it performs a liveness probe (ping) and self-cancels the
// supervisor if the probe also fails, per the mid-life transport-loss
// decision in SPEC_FULL.md §5: every UpstreamTimeout is a signal to
// check whether the child is still there.
func (s *Session) CallTool(ctx context.Context, tool string, args map[string]interface{}) (*mcp.CallToolResult, error) {
	callCtx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	req := mcp.CallToolRequest{}
	req.Params.Name = tool
	req.Params.Arguments = args

	result, err := s.client.CallTool(callCtx, req)
	if err != nil {
		if callCtx.Err() != nil {
			s.probeLiveness(ctx)
			return nil, perr.Wrap(perr.KindUpstreamTimeout, err, "calling %s on upstream %s", tool, s.Name)
		}
		return nil, perr.Wrap(perr.KindUpstreamFailure, err, "calling %s on upstream %s", tool, s.Name)
	}
	return result, nil
}

// probeLiveness pings the upstream; a failed ping means the transport is
// gone, so this session self-cancels and the supervisor tears it down.
// The ping gets its own 5s deadline detached from ctx's cancellation, so
// a caller context that has already expired does not fail the probe.
func (s *Session) probeLiveness(ctx context.Context) {
	pingCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := s.client.Ping(pingCtx); err != nil {
		s.logger.Warn("liveness probe failed after timeout; cancelling upstream session", zap.Error(err))
		s.cancel()
	}
}

// Close cancels the session's context, which the supervisor goroutine
// observes to tear everything down.
func (s *Session) Close() {
	s.cancel()
}

// Manager starts and tracks all configured upstream sessions, enforcing
// the overall 35-second startup ceiling from spec.md §4.4.
type Manager struct {
	logger  *zap.Logger
	metrics *metrics.Metrics

	sessions *csync.Map[string, *Session]
	doneChs  *csync.Map[string, <-chan struct{}]
}

// NewManager constructs an empty upstream manager.
func NewManager(logger *zap.Logger, m *metrics.Metrics) *Manager {
	return &Manager{
		logger:   logger,
		metrics:  m,
		sessions: csync.NewMap[string, *Session](),
		doneChs:  csync.NewMap[string, <-chan struct{}](),
	}
}

// StartAll spawns a supervisor for every server in specs, blocking until
// each has either succeeded or surfaced a fatal error, bounded by a
// 35-second overall ceiling on the errgroup fan-in. Failures are
// logged and skipped; the proxy continues with whatever upstreams did
// succeed. Sessions run on ctx itself, so they stay up until ctx is
// cancelled; the ceiling only bounds how long StartAll waits.
func (mgr *Manager) StartAll(ctx context.Context, specs map[string]config.ServerSpec, clientInfo mcp.Implementation) {
	var g errgroup.Group

	for name, spec := range specs {
		name, spec := name, spec
		g.Go(func() error {
			sess, done, err := Start(ctx, name, spec, clientInfo, mgr.logger, mgr.metrics)
			if err != nil {
				mgr.logger.Error("upstream failed to start", zap.String("upstream", name), zap.Error(err))
				return nil // non-fatal: other upstreams still get a chance
			}
			mgr.sessions.Set(name, sess)
			mgr.doneChs.Set(name, done)
			return nil
		})
	}

	waited := make(chan struct{})
	go func() {
		_ = g.Wait()
		close(waited)
	}()
	select {
	case <-waited:
	case <-time.After(35 * time.Second):
		mgr.logger.Warn("upstream startup ceiling reached; continuing with whatever succeeded")
	}
}

// Get returns the live session for name, or an UpstreamUnavailable error
// if it was never registered or is no longer alive.
func (mgr *Manager) Get(name string) (*Session, error) {
	s, ok := mgr.sessions.Get(name)
	if !ok || !s.IsAlive() {
		return nil, perr.New(perr.KindUpstreamUnavailable, "upstream %q is not known or not initialized", name)
	}
	return s, nil
}

// Names returns every currently registered upstream name.
func (mgr *Manager) Names() []string {
	var names []string
	mgr.sessions.Seq(func(name string, s *Session) bool {
		if s.IsAlive() {
			names = append(names, name)
		}
		return true
	})
	return names
}

// StopAll cancels every supervisor and waits for teardown to complete.
func (mgr *Manager) StopAll() {
	mgr.sessions.Seq(func(_ string, s *Session) bool {
		s.Close()
		return true
	})
	mgr.doneChs.Seq(func(name string, done <-chan struct{}) bool {
		<-done
		mgr.logger.Debug("upstream torn down", zap.String("upstream", name))
		return true
	})
}
