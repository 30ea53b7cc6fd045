// Package notify surfaces failed view actions to the operator.
package notify

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Alert describes one failed action.
type Alert struct {
	Kind    string    `json:"kind"`
	UserID  string    `json:"user_id,omitempty"`
	Actor   string    `json:"actor,omitempty"`
	Message string    `json:"message"`
	Error   string    `json:"error,omitempty"`
	At      time.Time `json:"at"`
}

// NewAlert builds an alert for err. A nil err gives an informational alert.
func NewAlert(kind, userID, actor, message string, err error) Alert {
	a := Alert{Kind: kind, UserID: userID, Actor: actor, Message: message, At: time.Now().UTC()}
	if err != nil {
		a.Error = err.Error()
	}
	return a
}

// Notifier receives alerts. Implementations must be safe for concurrent use.
type Notifier interface {
	Notify(ctx context.Context, a Alert)
}

// Func adapts a function to Notifier.
type Func func(ctx context.Context, a Alert)

func (f Func) Notify(ctx context.Context, a Alert) { f(ctx, a) }

// Nop drops every alert.
var Nop Notifier = Func(func(context.Context, Alert) {})

// Writer prints one line per alert, for the CLI.
type Writer struct {
	mu  sync.Mutex
	out io.Writer
}

// NewWriter returns a Writer printing to out.
func NewWriter(out io.Writer) *Writer {
	return &Writer{out: out}
}

func (w *Writer) Notify(_ context.Context, a Alert) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if a.Error != "" {
		fmt.Fprintf(w.out, "crmq: %s: %s (%s)\n", a.Kind, a.Message, a.Error)
		return
	}
	fmt.Fprintf(w.out, "crmq: %s: %s\n", a.Kind, a.Message)
}

// Logger writes alerts to a zap logger at warn level.
type Logger struct {
	log *zap.Logger
}

// NewLogger returns a Logger. A nil logger uses zap.L().
func NewLogger(l *zap.Logger) *Logger {
	if l == nil {
		l = zap.L()
	}
	return &Logger{log: l}
}

func (l *Logger) Notify(_ context.Context, a Alert) {
	l.log.Warn(a.Message,
		zap.String("kind", a.Kind),
		zap.String("user_id", a.UserID),
		zap.String("actor", a.Actor),
		zap.String("error", a.Error),
	)
}

// Multi fans an alert out to every notifier in order.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, a Alert) {
	for _, n := range m {
		if n != nil {
			n.Notify(ctx, a)
		}
	}
}
