// Package observability provides the ambient logging, metrics and
// health-check machinery shared by the server and client, following
// the structured-logging and promauto-metrics conventions used
// throughout this codebase's ancestor.
package observability

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Logger wraps zerolog for structured logging.
type Logger struct {
	logger zerolog.Logger
}

// NewLogger creates a new structured logger tagged with service name,
// version and hostname.
func NewLogger(service, version string, output io.Writer) *Logger {
	if output == nil {
		output = os.Stdout
	}

	zerolog.TimeFieldFormat = time.RFC3339

	logger := zerolog.New(output).With().
		Timestamp().
		Str("service", service).
		Str("version", version).
		Str("host", getHostname()).
		Logger()

	return &Logger{logger: logger}
}

// WithSession adds session_id context to the logger.
func (l *Logger) WithSession(sessionID string) *Logger {
	return &Logger{logger: l.logger.With().Str("session_id", sessionID).Logger()}
}

// WithChunk adds chunk position context to the logger.
func (l *Logger) WithChunk(x, y int) *Logger {
	return &Logger{logger: l.logger.With().Int("chunk_x", x).Int("chunk_y", y).Logger()}
}

// Debug logs a debug message.
func (l *Logger) Debug(msg string) { l.logger.Debug().Msg(msg) }

// Info logs an info message.
func (l *Logger) Info(msg string) { l.logger.Info().Msg(msg) }

// Warn logs a warning message.
func (l *Logger) Warn(msg string) { l.logger.Warn().Msg(msg) }

// Error logs an error message.
func (l *Logger) Error(err error, msg string) { l.logger.Error().Err(err).Msg(msg) }

// Fatal logs a fatal message and exits.
func (l *Logger) Fatal(err error, msg string) { l.logger.Fatal().Err(err).Msg(msg) }

// SessionConnected logs a new session joining the registry.
func (l *Logger) SessionConnected(sessionID, remoteAddr string, slot int) {
	l.logger.Info().
		Str("session_id", sessionID).
		Str("remote_addr", remoteAddr).
		Int("slot", slot).
		Msg("session connected")
}

// SessionClosed logs a session leaving the registry.
func (l *Logger) SessionClosed(sessionID string, reason error) {
	ev := l.logger.Info().Str("session_id", sessionID)
	if reason != nil {
		ev = ev.Str("reason", reason.Error())
	}
	ev.Msg("session closed")
}

// ChunksRequested logs a request-chunks exchange.
func (l *Logger) ChunksRequested(sessionID string, count int) {
	l.logger.Debug().
		Str("session_id", sessionID).
		Int("count", count).
		Msg("chunks requested")
}

// ChangesApplied logs a save-changes submission being applied and
// broadcast.
func (l *Logger) ChangesApplied(sessionID string, chunkCount, recipientCount int) {
	l.logger.Debug().
		Str("session_id", sessionID).
		Int("chunks", chunkCount).
		Int("recipients", recipientCount).
		Msg("changes applied and broadcast")
}

// ChangesRejected logs an illegitimate submission being compensated
// with a reverse diff.
func (l *Logger) ChangesRejected(sessionID string, cellCount int) {
	l.logger.Warn().
		Str("session_id", sessionID).
		Int("cells", cellCount).
		Msg("illegitimate change rejected with reverse diff")
}

// FlushTick logs a completed background flush/evict cycle.
func (l *Logger) FlushTick(saved, evicted int, dur time.Duration) {
	l.logger.Debug().
		Int("saved", saved).
		Int("evicted", evicted).
		Dur("duration", dur).
		Msg("periodic flush completed")
}

// StoreError logs a store failure, distinguishing whether it was
// swallowed (background flush) or propagated (request path).
func (l *Logger) StoreError(op string, err error, propagated bool) {
	l.logger.Error().
		Str("op", op).
		Err(err).
		Bool("propagated", propagated).
		Msg("store operation failed")
}

func getHostname() string {
	hostname, err := os.Hostname()
	if err != nil {
		return "unknown"
	}
	return hostname
}
