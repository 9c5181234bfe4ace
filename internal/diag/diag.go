// Package diag records structured diagnostics emitted through log/slog.
//
// Pipeline components never return per-unit failures. They log them with a
// "component" attribute and, when there is an offending identifier, a "key"
// attribute. Recorder is a slog.Handler that captures those records so callers
// and tests can inspect them without scraping text output.
package diag

import (
	"context"
	"log/slog"
	"sync"
)

// Attribute names shared by every component.
const (
	AttrComponent = "component"
	AttrKey       = "key"
)

// Diagnostic is one captured log record.
type Diagnostic struct {
	Component string
	Level     slog.Level
	Message   string
	Key       string
}

type recorderState struct {
	mu      sync.Mutex
	entries []Diagnostic
}

// Recorder captures diagnostics and optionally forwards records to another handler.
type Recorder struct {
	state *recorderState
	next  slog.Handler
	level slog.Leveler
	attrs []slog.Attr
}

// NewRecorder creates a recorder capturing records at or above level.
// If next is non-nil every record is also passed to it.
func NewRecorder(level slog.Leveler, next slog.Handler) *Recorder {
	if level == nil {
		level = slog.LevelDebug
	}
	return &Recorder{state: &recorderState{}, next: next, level: level}
}

// Logger returns a logger backed by the recorder.
func (r *Recorder) Logger() *slog.Logger {
	return slog.New(r)
}

// Enabled implements slog.Handler.
func (r *Recorder) Enabled(ctx context.Context, level slog.Level) bool {
	if level >= r.level.Level() {
		return true
	}
	return r.next != nil && r.next.Enabled(ctx, level)
}

// Handle implements slog.Handler.
func (r *Recorder) Handle(ctx context.Context, rec slog.Record) error {
	if rec.Level >= r.level.Level() {
		d := Diagnostic{Level: rec.Level, Message: rec.Message}
		for _, a := range r.attrs {
			apply(&d, a)
		}
		rec.Attrs(func(a slog.Attr) bool {
			apply(&d, a)
			return true
		})
		r.state.mu.Lock()
		r.state.entries = append(r.state.entries, d)
		r.state.mu.Unlock()
	}
	if r.next != nil && r.next.Enabled(ctx, rec.Level) {
		return r.next.Handle(ctx, rec)
	}
	return nil
}

// WithAttrs implements slog.Handler.
func (r *Recorder) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := *r
	clone.attrs = append(append([]slog.Attr{}, r.attrs...), attrs...)
	if r.next != nil {
		clone.next = r.next.WithAttrs(attrs)
	}
	return &clone
}

// WithGroup implements slog.Handler. Groups are forwarded but not recorded.
func (r *Recorder) WithGroup(name string) slog.Handler {
	clone := *r
	if r.next != nil {
		clone.next = r.next.WithGroup(name)
	}
	return &clone
}

// Entries returns a copy of everything recorded so far.
func (r *Recorder) Entries() []Diagnostic {
	r.state.mu.Lock()
	defer r.state.mu.Unlock()
	out := make([]Diagnostic, len(r.state.entries))
	copy(out, r.state.entries)
	return out
}

// Filter returns the recorded diagnostics for one component at or above level.
func (r *Recorder) Filter(component string, level slog.Level) []Diagnostic {
	var out []Diagnostic
	for _, d := range r.Entries() {
		if d.Component == component && d.Level >= level {
			out = append(out, d)
		}
	}
	return out
}

// Reset drops all recorded diagnostics.
func (r *Recorder) Reset() {
	r.state.mu.Lock()
	r.state.entries = nil
	r.state.mu.Unlock()
}

func apply(d *Diagnostic, a slog.Attr) {
	switch a.Key {
	case AttrComponent:
		d.Component = a.Value.String()
	case AttrKey:
		d.Key = a.Value.String()
	}
}
