// Package config holds the tunable knobs for the server and client,
// following daemon/config/config.go's Default...Config/Load shape from
// this codebase's ancestor.
package config

import "time"

// ServerConfig holds the server's tunables.
type ServerConfig struct {
	// ListenAddr is the address the HTTP/WebSocket listener binds to.
	ListenAddr string
	// MetricsAddr is the address the Prometheus/health HTTP server
	// binds to. Empty disables it.
	MetricsAddr string
	// DBPath is the path to the SQLite chunk database.
	DBPath string
	// SavePeriod is how often the background flush loop runs.
	SavePeriod time.Duration
	// MaxAge is how long a chunk may sit unmodified before the flush
	// loop evicts it from memory.
	MaxAge time.Duration
	// SaveChangesRateLimit and SaveChangesBurst bound how often a
	// single session may submit save-changes frames.
	SaveChangesRateLimit float64
	SaveChangesBurst     int
}

// DefaultServerConfig returns the server's default tunables, matching
// the reference implementation's save_period=60s, max_age=60s.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		ListenAddr:           ":8000",
		MetricsAddr:          ":9000",
		DBPath:               "wot.db",
		SavePeriod:           60 * time.Second,
		MaxAge:               60 * time.Second,
		SaveChangesRateLimit: 20,
		SaveChangesBurst:     40,
	}
}

// LoadServerConfig returns the default configuration. There is no file
// format yet; this is the seam a future on-disk config would hook
// into, following the teacher's Load.
func LoadServerConfig(path string) (ServerConfig, error) {
	return DefaultServerConfig(), nil
}

// ClientConfig holds the client's tunables.
type ClientConfig struct {
	// DialAddr is the server's WebSocket URL, e.g. ws://localhost:8000/grid.
	DialAddr string
	// LogFile, if non-empty, redirects structured logs away from
	// stdout so they don't collide with the terminal UI.
	LogFile string
	// SaveDelay is how long the client waits after the last local edit
	// before flushing pending changes to the server.
	SaveDelay time.Duration
}

// DefaultClientConfig returns the client's default tunables. SaveDelay
// matches the reference implementation's debounce value; the original
// Python client used 0.25s in clientchunkpool.py, but 0.1s is the
// value spec.md names as primary.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		DialAddr:  "ws://localhost:8000/grid",
		SaveDelay: 100 * time.Millisecond,
	}
}

// LoadClientConfig returns the default configuration.
func LoadClientConfig(path string) (ClientConfig, error) {
	return DefaultClientConfig(), nil
}
