// Package logging builds the zap logger used by the smartloan binaries and
// adapts it to core.Logger.
package logging

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"smartloan/internal/core"
)

// Config selects the log level and encoding.
type Config struct {
	Level       string `yaml:"level" validate:"omitempty,oneof=debug info warn error"`
	Development bool   `yaml:"development"`
}

// New builds a zap logger. Production config emits JSON; Development switches
// to the console encoder.
func New(cfg Config) (*zap.Logger, error) {
	level := zapcore.InfoLevel
	if cfg.Level != "" {
		if err := level.UnmarshalText([]byte(strings.ToLower(cfg.Level))); err != nil {
			return nil, fmt.Errorf("log level %q: %w", cfg.Level, err)
		}
	}
	zcfg := zap.NewProductionConfig()
	if cfg.Development {
		zcfg = zap.NewDevelopmentConfig()
	}
	zcfg.Level = zap.NewAtomicLevelAt(level)
	logger, err := zcfg.Build()
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	return logger, nil
}

// Adapter implements core.Logger on a zap logger.
type Adapter struct {
	s *zap.SugaredLogger
}

var _ core.Logger = (*Adapter)(nil)

// NewAdapter wraps logger. A nil logger yields a no-op adapter.
func NewAdapter(logger *zap.Logger) *Adapter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Adapter{s: logger.Sugar()}
}

// Debug logs at debug level with alternating key/value pairs.
func (a *Adapter) Debug(msg string, args ...any) { a.s.Debugw(msg, args...) }

// Info logs at info level.
func (a *Adapter) Info(msg string, args ...any) { a.s.Infow(msg, args...) }

// Warn logs at warn level.
func (a *Adapter) Warn(msg string, args ...any) { a.s.Warnw(msg, args...) }

// Error logs at error level.
func (a *Adapter) Error(msg string, args ...any) { a.s.Errorw(msg, args...) }

// Sync flushes buffered entries.
func (a *Adapter) Sync() error { return a.s.Sync() }
