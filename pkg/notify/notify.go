// Package notify surfaces outcomes to the person using the client.
package notify

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"go.uber.org/zap"
)

type Level string

const (
	Success Level = "success"
	Info    Level = "info"
	Error   Level = "error"
)

// Notifier shows transient toasts and blocking modal notices.
// Only a deleted event warrants a modal.
type Notifier interface {
	Toast(level Level, msg string)
	Modal(msg string)
}

// Console prints notifications to a terminal and mirrors them to the log
type Console struct {
	out    io.Writer
	logger *zap.Logger
	mu     sync.Mutex
}

func NewConsole(out io.Writer, logger *zap.Logger) *Console {
	return &Console{out: out, logger: logger}
}

func (c *Console) Toast(level Level, msg string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	prefix := map[Level]string{Success: "✓", Info: "i", Error: "✗"}[level]
	fmt.Fprintf(c.out, "%s %s\n", prefix, msg)
	c.logger.Debug("toast", zap.String("level", string(level)), zap.String("msg", msg))
}

func (c *Console) Modal(msg string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	bar := strings.Repeat("=", len(msg)+4)
	fmt.Fprintf(c.out, "\n%s\n  %s\n%s\n\n", bar, msg, bar)
	c.logger.Info("modal", zap.String("msg", msg))
}

// Recorder keeps every notification, for tests and the web handler
type Recorder struct {
	mu     sync.Mutex
	Toasts []string
	Modals []string
}

func (r *Recorder) Toast(level Level, msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Toasts = append(r.Toasts, string(level)+": "+msg)
}

func (r *Recorder) Modal(msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Modals = append(r.Modals, msg)
}

// ModalCount is safe to call while notifications are still arriving
func (r *Recorder) ModalCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.Modals)
}
