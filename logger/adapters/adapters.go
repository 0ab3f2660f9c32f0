// Package adapters wraps third-party loggers so they satisfy
// logger.Interface. Only a standard-library *log.Logger adapter is wired
// today (cmd/scheduler's default); AdapterBase exists so a future adapter
// can share the level-gating logic instead of reimplementing it.
package adapters

import (
	"context"
	"time"

	"github.com/kart-io/predictive-scheduler/logger"
)

// AdapterBase provides common functionality for logger adapters
type AdapterBase struct {
	level logger.LogLevel
}

// NewAdapterBase creates a new adapter base
func NewAdapterBase(level logger.LogLevel) *AdapterBase {
	return &AdapterBase{level: level}
}

// ShouldLog checks if the message should be logged at the given level
func (a *AdapterBase) ShouldLog(level logger.LogLevel) bool {
	return a.level >= level
}

// GetLevel returns the current log level
func (a *AdapterBase) GetLevel() logger.LogLevel {
	return a.level
}

// SetLevel sets the log level
func (a *AdapterBase) SetLevel(level logger.LogLevel) {
	a.level = level
}

// StdLogger is the subset of the standard library's *log.Logger this
// adapter needs.
type StdLogger interface {
	Print(v ...interface{})
	Printf(format string, v ...interface{})
}

// StdLogAdapter adapts a standard library logger to logger.Interface.
type StdLogAdapter struct {
	*AdapterBase
	logger StdLogger
}

// NewStdLogAdapter creates a new standard log adapter
func NewStdLogAdapter(stdLogger StdLogger, level logger.LogLevel) logger.Interface {
	return &StdLogAdapter{
		AdapterBase: NewAdapterBase(level),
		logger:      stdLogger,
	}
}

func (s *StdLogAdapter) LogMode(level logger.LogLevel) logger.Interface {
	return &StdLogAdapter{
		AdapterBase: NewAdapterBase(level),
		logger:      s.logger,
	}
}

func (s *StdLogAdapter) Info(ctx context.Context, msg string, data ...interface{}) {
	if s.ShouldLog(logger.Info) {
		if len(data) > 0 {
			s.logger.Printf("[INFO] "+msg, data...)
		} else {
			s.logger.Printf("[INFO] " + msg)
		}
	}
}

func (s *StdLogAdapter) Warn(ctx context.Context, msg string, data ...interface{}) {
	if s.ShouldLog(logger.Warn) {
		if len(data) > 0 {
			s.logger.Printf("[WARN] "+msg, data...)
		} else {
			s.logger.Printf("[WARN] " + msg)
		}
	}
}

func (s *StdLogAdapter) Error(ctx context.Context, msg string, data ...interface{}) {
	if s.ShouldLog(logger.Error) {
		if len(data) > 0 {
			s.logger.Printf("[ERROR] "+msg, data...)
		} else {
			s.logger.Printf("[ERROR] " + msg)
		}
	}
}

func (s *StdLogAdapter) Debug(ctx context.Context, msg string, data ...interface{}) {
	if s.ShouldLog(logger.Debug) {
		if len(data) > 0 {
			s.logger.Printf("[DEBUG] "+msg, data...)
		} else {
			s.logger.Printf("[DEBUG] " + msg)
		}
	}
}

func (s *StdLogAdapter) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if s.level <= logger.Silent {
		return
	}

	elapsed := time.Since(begin)
	operation, affected := fc()

	if err != nil && s.ShouldLog(logger.Error) {
		s.logger.Printf("[ERROR] Operation failed: %s, Duration: %.3fms, Affected: %d, Error: %v",
			operation, float64(elapsed.Nanoseconds())/1e6, affected, err)
	} else if s.ShouldLog(logger.Info) {
		s.logger.Printf("[INFO] Operation: %s, Duration: %.3fms, Affected: %d",
			operation, float64(elapsed.Nanoseconds())/1e6, affected)
	}
}
