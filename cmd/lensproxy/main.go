// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// lensproxy is a context-budget-managing MCP proxy. It speaks the Model
// Context Protocol to an agent over stdio, spawns a set of configured
// upstream MCP servers as child processes, and re-exposes their tools
// under a "{upstream}_{tool}" prefix. Oversized upstream responses are
// truncated and cached; the agent can drill back into the full payload
// with the proxy_filter, proxy_search, and proxy_explore tools.
//
// Usage:
//
//	lensproxy --config mcp-proxy.json
//
// Claude Desktop configuration (claude_desktop_config.json):
//
//	{
//	  "mcpServers": {
//	    "lensproxy": {
//	      "command": "/path/to/lensproxy",
//	      "args": ["--config", "/path/to/mcp-proxy.json"]
//	    }
//	  }
//	}
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/mcplens/lens-proxy/internal/cache"
	"github.com/mcplens/lens-proxy/internal/config"
	"github.com/mcplens/lens-proxy/internal/executor"
	"github.com/mcplens/lens-proxy/internal/mcputil"
	"github.com/mcplens/lens-proxy/internal/metrics"
	"github.com/mcplens/lens-proxy/internal/perr"
	"github.com/mcplens/lens-proxy/internal/pipeline"
	"github.com/mcplens/lens-proxy/internal/registry"
	"github.com/mcplens/lens-proxy/internal/upstream"
	"github.com/mcplens/lens-proxy/internal/version"
)

const serverName = "lensproxy"

const instructions = "This server proxies other MCP tool servers. Large responses are " +
	"truncated and cached automatically; use proxy_filter to project a field path, " +
	"proxy_search to grep/rank/fuzzy-match cached text, or proxy_explore to summarize " +
	"its structure, passing the cache_id from the truncation notice."

func main() {
	configPath := flag.String("config", "mcp-proxy.json", "Path to the proxy's JSON configuration file")
	logFile := flag.String("log-file", "", "Log file path (defaults to stderr)")
	logLevel := flag.String("log-level", envOr("MCP_PROXY_LOG_LEVEL", "info"), "Log level (debug, info, warn, error)")
	flag.Parse()

	// Configure logging -- CRITICAL: never write to stdout (that's the MCP transport)
	logger := setupLogger(*logFile, strings.ToLower(*logLevel))
	defer func() { _ = logger.Sync() }()

	logger.Info("starting lensproxy",
		zap.String("config", *configPath),
		zap.String("version", version.Get()),
	)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal("failed to load config", zap.Error(err))
	}
	logger.Info("config loaded", zap.Int("upstream_count", len(cfg.Servers)))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := metrics.New()
	upstreamMgr := upstream.NewManager(logger, m)
	upstreamMgr.StartAll(ctx, cfg.Servers, mcp.Implementation{Name: serverName, Version: version.Get()})
	defer upstreamMgr.StopAll()
	logger.Info("upstreams started", zap.Strings("upstreams", upstreamMgr.Names()))

	globalCache := cache.NewGlobal(cache.Config{
		MaxEntriesPerAgent: cfg.Settings.CacheMaxEntries,
		MaxBytesPerAgent:   cfg.Settings.CacheMaxBytesPerAgent,
		TTL:                time.Duration(cfg.Settings.CacheTTLSeconds) * time.Second,
		MaxAgents:          cfg.Settings.CacheMaxAgents,
	})

	pool := executor.New()
	defer pool.Shutdown()

	settings := cfg.Settings
	pipe := pipeline.New(logger, upstreamMgr, globalCache, pool, m,
		func() config.ProxySettings { return settings },
		func(context.Context) string { return cache.DefaultAgentID },
	)

	if watcher, err := config.Watch(*configPath, func(s config.ProxySettings) {
		settings = s
		logger.Info("proxy settings hot-reloaded")
	}); err != nil {
		logger.Warn("config hot-reload disabled", zap.Error(err))
	} else {
		defer watcher.Close()
	}

	reg := registry.New(logger, upstreamMgr, drillInTools(), pipe.DispatchDrillIn, pipe.HandleUpstreamCall)

	mcpServer := server.NewMCPServer(serverName, version.Get(),
		server.WithInstructions(instructions),
		server.WithToolCapabilities(true),
	)

	tools, err := reg.ListTools(ctx)
	if err != nil {
		logger.Fatal("failed to build aggregated tool list", zap.Error(err))
	}
	for _, t := range tools {
		mcpServer.AddTool(t, routeToolCall(reg))
	}
	logger.Info("tools registered", zap.Int("tool_count", len(tools)))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received signal, shutting down", zap.String("signal", sig.String()))
		cancel()
	}()

	logger.Info("MCP proxy ready, awaiting client connections on stdio")
	stdioServer := server.NewStdioServer(mcpServer)
	if err := stdioServer.Listen(ctx, os.Stdin, os.Stdout); err != nil {
		if ctx.Err() != nil {
			logger.Info("server stopped gracefully")
		} else {
			logger.Error("server error", zap.Error(err))
			os.Exit(1)
		}
	}
}

// routeToolCall adapts the registry's name-and-map CallTool to mcp-go's
// per-tool ToolHandlerFunc signature. A routing or upstream error is
// returned in band as a single "Error: ..." text item.
func routeToolCall(reg *registry.Registry) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args, _ := req.Params.Arguments.(map[string]interface{})
		result, err := reg.CallTool(ctx, req.Params.Name, args)
		if err != nil {
			return &mcp.CallToolResult{Content: []mcp.Content{mcputil.Text(perr.AsText(err))}}, nil
		}
		return result, nil
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// setupLogger creates a zap logger that writes to a file (or stderr if no file specified).
// IMPORTANT: The logger must NEVER write to stdout because stdout is the MCP stdio transport.
func setupLogger(logFile, logLevel string) *zap.Logger {
	logger, err := buildLogger(logFile, logLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to setup logger: %v\n", err)
		os.Exit(1)
	}
	return logger
}

// buildLogger is the testable core of setupLogger. It returns an error instead
// of calling os.Exit so tests can exercise all code paths.
func buildLogger(logFile, logLevel string) (*zap.Logger, error) {
	level := parseLogLevel(logLevel)

	var output zapcore.WriteSyncer
	if logFile != "" {
		f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600) // #nosec G304 -- log file path from CLI flag
		if err != nil {
			return nil, fmt.Errorf("open log file %s: %w", logFile, err)
		}
		output = zapcore.AddSync(f)
	} else {
		// Write to stderr (not stdout!) as a fallback
		output = zapcore.AddSync(os.Stderr)
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.TimeKey = "ts"
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderConfig),
		output,
		level,
	)

	return zap.New(core), nil
}

// parseLogLevel converts a string log level to a zapcore.Level.
func parseLogLevel(logLevel string) zapcore.Level {
	switch logLevel {
	case "debug":
		return zap.DebugLevel
	case "warn":
		return zap.WarnLevel
	case "error":
		return zap.ErrorLevel
	default:
		return zap.InfoLevel
	}
}

// drillInTools returns the three built-in tool descriptors from spec.md §6.
func drillInTools() []mcp.Tool {
	return []mcp.Tool{
		{
			Name:        "proxy_filter",
			Description: "Project a cached or fresh tool response by field path (include or exclude).",
			InputSchema: mcp.ToolInputSchema{
				Type: "object",
				Properties: map[string]interface{}{
					"cache_id":  map[string]interface{}{"type": "string"},
					"tool":      map[string]interface{}{"type": "string"},
					"arguments": map[string]interface{}{"type": "object"},
					"fields":    map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "string"}},
					"exclude":   map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "string"}},
					"mode":      map[string]interface{}{"type": "string", "enum": []interface{}{"include", "exclude"}},
				},
			},
		},
		{
			Name:        "proxy_search",
			Description: "Search a cached or fresh tool response: regex, BM25, fuzzy, or context-extraction.",
			InputSchema: mcp.ToolInputSchema{
				Type: "object",
				Properties: map[string]interface{}{
					"cache_id":         map[string]interface{}{"type": "string"},
					"tool":             map[string]interface{}{"type": "string"},
					"arguments":        map[string]interface{}{"type": "object"},
					"pattern":          map[string]interface{}{"type": "string"},
					"mode":             map[string]interface{}{"type": "string", "enum": []interface{}{"regex", "bm25", "fuzzy", "context"}},
					"max_results":      map[string]interface{}{"type": "integer"},
					"context_lines":    map[string]interface{}{"type": "integer"},
					"case_insensitive": map[string]interface{}{"type": "boolean"},
					"threshold":        map[string]interface{}{"type": "number"},
					"top_k":            map[string]interface{}{"type": "integer"},
					"context_type":     map[string]interface{}{"type": "string", "enum": []interface{}{"paragraph", "section", "sentence", "lines"}},
				},
				Required: []string{"pattern"},
			},
		},
		{
			Name:        "proxy_explore",
			Description: "Summarize the structure of a cached or fresh tool response.",
			InputSchema: mcp.ToolInputSchema{
				Type: "object",
				Properties: map[string]interface{}{
					"cache_id":  map[string]interface{}{"type": "string"},
					"tool":      map[string]interface{}{"type": "string"},
					"arguments": map[string]interface{}{"type": "object"},
					"max_depth": map[string]interface{}{"type": "integer"},
				},
			},
		},
	}
}
