// Package logger provides modifications to charmbracelet/log's default
// logger for use across the engine's packages.
package logger

import (
	"os"
	"time"

	"github.com/charmbracelet/log"
)

// New creates a charm logger with timestamps enabled, for long-lived
// components (facade, session, dictionary) where "when did this happen"
// matters.
func New(prefix string) *log.Logger {
	return log.NewWithOptions(os.Stdout, log.Options{
		Prefix:          prefix,
		ReportCaller:    false,
		ReportTimestamp: true,
		Formatter:       log.TextFormatter,
		Level:           log.GetLevel(),
	})
}

// Default creates a charm logger without timestamps, for high-frequency
// per-keystroke logging where a timestamp on every line is just noise.
func Default(prefix string) *log.Logger {
	return log.NewWithOptions(os.Stdout, log.Options{
		Prefix:          prefix,
		ReportCaller:    false,
		ReportTimestamp: false,
		Formatter:       log.TextFormatter,
		Level:           log.GetLevel(),
	})
}

// NewWithConfig creates a charm logger with fully custom options.
func NewWithConfig(prefix string, level log.Level, caller bool, showTimestamp bool, fmt log.Formatter) *log.Logger {
	return log.NewWithOptions(os.Stdout, log.Options{
		Prefix:          prefix,
		Level:           level,
		ReportCaller:    caller,
		ReportTimestamp: showTimestamp,
		Formatter:       fmt,
	})
}

// PhaseTimer measures the wall-clock duration of a named phase
// (key->composition, composition->candidates, candidates->llm-applied)
// and logs it at Debug level on Stop. Used by pkg/diag to satisfy the
// C8 "phase timer" log record without every caller hand-rolling
// time.Since bookkeeping.
type PhaseTimer struct {
	logger *log.Logger
	phase  string
	start  time.Time
}

// StartPhase begins timing a phase under the given logger.
func StartPhase(l *log.Logger, phase string) *PhaseTimer {
	return &PhaseTimer{logger: l, phase: phase, start: time.Now()}
}

// Stop logs the elapsed duration and returns it.
func (p *PhaseTimer) Stop() time.Duration {
	elapsed := time.Since(p.start)
	p.logger.Debugf("phase %s took %s", p.phase, elapsed)
	return elapsed
}
