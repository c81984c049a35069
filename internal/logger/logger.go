// Package logger wraps github.com/rs/zerolog with component/exchange/symbol
// convenience methods for scoping structured log fields per subsystem.
package logger

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Logger wraps a zerolog.Logger with domain-scoped helpers.
type Logger struct {
	zerolog.Logger
}

// Config controls output format and verbosity.
type Config struct {
	Level  zerolog.Level
	Format string // "json" or "console"
	Output io.Writer
}

// DefaultConfig returns the default logger configuration: info level, JSON
// to stdout.
func DefaultConfig() *Config {
	return &Config{
		Level:  zerolog.InfoLevel,
		Format: "json",
		Output: os.Stdout,
	}
}

// New builds a structured Logger from Config.
func New(cfg *Config) *Logger {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	output := cfg.Output
	if output == nil {
		output = os.Stdout
	}
	if cfg.Format == "console" {
		output = zerolog.ConsoleWriter{Out: output, TimeFormat: time.RFC3339}
	}

	zerolog.TimeFieldFormat = time.RFC3339Nano

	zl := zerolog.New(output).Level(cfg.Level).With().Timestamp().Logger()
	return &Logger{Logger: zl}
}

// WithField returns a logger enriched with a single field.
func (l *Logger) WithField(key string, value any) *Logger {
	return &Logger{Logger: l.Logger.With().Interface(key, value).Logger()}
}

// WithFields returns a logger enriched with several fields at once.
func (l *Logger) WithFields(fields map[string]any) *Logger {
	ctx := l.Logger.With()
	for k, v := range fields {
		ctx = ctx.Interface(k, v)
	}
	return &Logger{Logger: ctx.Logger()}
}

// WithError attaches an error field; a nil error is a no-op.
func (l *Logger) WithError(err error) *Logger {
	if err == nil {
		return l
	}
	return &Logger{Logger: l.Logger.With().Err(err).Logger()}
}

// Component scopes the logger to a named core component (e.g. "strategy",
// "backtest-driver", "persistence").
func (l *Logger) Component(name string) *Logger {
	return &Logger{Logger: l.Logger.With().Str("component", name).Logger()}
}

// Exchange scopes the logger to a registered exchange name.
func (l *Logger) Exchange(name string) *Logger {
	return &Logger{Logger: l.Logger.With().Str("exchange", name).Logger()}
}

// Symbol scopes the logger to a trading symbol.
func (l *Logger) Symbol(symbol string) *Logger {
	return &Logger{Logger: l.Logger.With().Str("symbol", symbol).Logger()}
}

// Strategy scopes the logger to a strategy name.
func (l *Logger) Strategy(name string) *Logger {
	return &Logger{Logger: l.Logger.With().Str("strategy", name).Logger()}
}

var defaultLogger = New(DefaultConfig())

// SetDefault replaces the package-level default logger.
func SetDefault(l *Logger) {
	if l != nil {
		defaultLogger = l
	}
}

// Default returns the package-level default logger.
func Default() *Logger { return defaultLogger }

// Component returns a component-scoped logger built from the default.
func Component(name string) *Logger { return defaultLogger.Component(name) }

// Exchange returns an exchange-scoped logger built from the default.
func Exchange(name string) *Logger { return defaultLogger.Exchange(name) }

// Symbol returns a symbol-scoped logger built from the default.
func Symbol(symbol string) *Logger { return defaultLogger.Symbol(symbol) }
