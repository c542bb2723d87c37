package logging

import (
	"context"

	"github.com/felixgeelhaar/bastion/internal/ports"
)

// Nop is a no-op logger that discards all messages.
// Used as the default when no logger is configured.
type Nop struct {
	level ports.Level
}

// NewNop creates a new no-op logger.
func NewNop() *Nop {
	return &Nop{level: ports.LevelInfo}
}

// Debug does nothing.
func (l *Nop) Debug(_ context.Context, _ string, _ ...ports.Field) {}

// Info does nothing.
func (l *Nop) Info(_ context.Context, _ string, _ ...ports.Field) {}

// Warn does nothing.
func (l *Nop) Warn(_ context.Context, _ string, _ ...ports.Field) {}

// Error does nothing.
func (l *Nop) Error(_ context.Context, _ string, _ ...ports.Field) {}

// With returns itself.
func (l *Nop) With(_ ...ports.Field) ports.Logger {
	return l
}

// Level returns the log level.
func (l *Nop) Level() ports.Level {
	return l.level
}

// SetLevel sets the log level.
func (l *Nop) SetLevel(level ports.Level) {
	l.level = level
}

// Ensure Nop implements Logger.
var _ ports.Logger = (*Nop)(nil)
