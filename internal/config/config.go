// Package config loads the proxy's JSON configuration file: the set of
// upstream MCP servers to spawn, plus the response-management tunables.
// Loading is viper-backed so environment variables can overlay the file
// and so proxySettings can be hot-reloaded via fsnotify without
// re-supervising already-running upstream child processes.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"regexp"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/mcplens/lens-proxy/internal/perr"
)

var nameRe = regexp.MustCompile(`^[A-Za-z0-9_-]{1,100}$`)

// ServerSpec is one upstream server entry from "mcpServers".
type ServerSpec struct {
	Command string            `json:"command"`
	Args    []string          `json:"args"`
	Env     map[string]string `json:"env"`
}

// ProxySettings are the immutable-after-load tunables from
// "proxySettings", plus the per-agent variants spec.md §3 names.
type ProxySettings struct {
	MaxResponseSize       int  `json:"maxResponseSize"`
	CacheMaxEntries        int  `json:"cacheMaxEntries"`
	CacheTTLSeconds        int  `json:"cacheTTLSeconds"`
	EnableAutoTruncation   bool `json:"enableAutoTruncation"`
	CacheMaxBytesPerAgent  int64 `json:"cacheMaxBytesPerAgent"`
	CacheMaxAgents         int  `json:"cacheMaxAgents"`
	AgentIsolation         bool `json:"agentIsolation"`
}

// DefaultProxySettings mirrors the values in spec.md §6's example config.
func DefaultProxySettings() ProxySettings {
	return ProxySettings{
		MaxResponseSize:      8000,
		CacheMaxEntries:       50,
		CacheTTLSeconds:       300,
		EnableAutoTruncation:  true,
		CacheMaxBytesPerAgent: 10 * 1024 * 1024,
		CacheMaxAgents:        100,
		AgentIsolation:        true,
	}
}

// Config is the fully loaded, validated configuration.
type Config struct {
	Servers  map[string]ServerSpec `json:"mcpServers" mapstructure:"mcpServers"`
	Settings ProxySettings         `json:"proxySettings" mapstructure:"proxySettings"`
}

// Load reads path (JSON) via viper, overlaying MCP_PROXY_* environment
// variables, and validates it. A missing file is not an error: the
// result is an empty-server config so the proxy still serves drill-in
// tools, per spec.md §6.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("json")
	v.SetEnvPrefix("MCP_PROXY")
	v.AutomaticEnv()

	cfg := &Config{
		Servers:  map[string]ServerSpec{},
		Settings: DefaultProxySettings(),
	}

	if err := v.ReadInConfig(); err != nil {
		if _, notFound := err.(viper.ConfigFileNotFoundError); notFound || errors.Is(err, fs.ErrNotExist) {
			return cfg, nil
		}
		return nil, perr.Wrap(perr.KindConfig, err, "reading config file %s", path)
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, perr.Wrap(perr.KindConfig, err, "parsing config file %s", path)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks uniqueness and shape rules from spec.md §6: names
// match ^[A-Za-z0-9_-]{1,100}$ and commands are non-empty.
func (c *Config) Validate() error {
	for name, spec := range c.Servers {
		if !nameRe.MatchString(name) {
			return perr.New(perr.KindConfig, "invalid server name %q: must match ^[A-Za-z0-9_-]{1,100}$", name)
		}
		if spec.Command == "" {
			return perr.New(perr.KindConfig, "server %q: command must not be empty", name)
		}
	}
	return nil
}

// Watch starts an fsnotify watch on path and invokes onReload with the
// freshly parsed ProxySettings whenever the file changes. Only
// proxySettings changes are safe to hot-apply; mcpServers additions or
// removals require a restart, since each upstream owns a supervised
// child process lifecycle that the watch does not touch.
func Watch(path string, onReload func(ProxySettings)) (*fsnotify.Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := w.Add(path); err != nil {
		w.Close()
		return nil, fmt.Errorf("watch %s: %w", path, err)
	}

	go func() {
		for {
			select {
			case event, ok := <-w.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				cfg, err := Load(path)
				if err != nil {
					continue // malformed mid-flight edit; keep running tunables
				}
				onReload(cfg.Settings)
			case _, ok := <-w.Errors:
				if !ok {
					return
				}
			}
		}
	}()

	return w, nil
}
