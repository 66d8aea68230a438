package services

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/Riboost-Studio/perfect-menu-print-agent/internal/model"
)

// stubDevice is an in-memory printer. Execute defaults to success.
type stubDevice struct {
	id        string
	reachable bool
	execute   func(ctx context.Context, payload []byte) error

	mu       sync.Mutex
	payloads [][]byte
	closed   bool
}

func (d *stubDevice) Identifier() string { return d.id }

func (d *stubDevice) IsReachable(ctx context.Context) bool { return d.reachable }

func (d *stubDevice) Execute(ctx context.Context, payload []byte) error {
	d.mu.Lock()
	d.payloads = append(d.payloads, payload)
	d.mu.Unlock()
	if d.execute != nil {
		return d.execute(ctx, payload)
	}
	return nil
}

func (d *stubDevice) Close() error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	return nil
}

func (d *stubDevice) printed() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.payloads)
}

// openerFor serves the given devices by identifier and records every
// identifier it was asked to open.
type openerFor struct {
	mu      sync.Mutex
	devices map[string]*stubDevice
	opened  []string
}

func newOpener(devices ...*stubDevice) *openerFor {
	o := &openerFor{devices: map[string]*stubDevice{}}
	for _, d := range devices {
		o.devices[d.id] = d
	}
	return o
}

func (o *openerFor) Open(ctx context.Context, identifier string) (Device, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.opened = append(o.opened, identifier)
	if d, ok := o.devices[identifier]; ok {
		return d, nil
	}
	return &stubDevice{id: identifier}, nil
}

func (o *openerFor) Opened() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]string(nil), o.opened...)
}

// renderFunc adapts a function to receipt.Renderer.
type renderFunc func(order model.Order) ([]byte, error)

func (f renderFunc) Render(order model.Order) ([]byte, error) { return f(order) }

var idRenderer = renderFunc(func(order model.Order) ([]byte, error) {
	return []byte(order.ID), nil
})

type memSettings struct {
	mu     sync.Mutex
	values map[string]string
}

func newMemSettings() *memSettings { return &memSettings{values: map[string]string{}} }

func (s *memSettings) Get(key string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.values[key]
}

func (s *memSettings) Set(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if value == "" {
		delete(s.values, key)
	} else {
		s.values[key] = value
	}
	return nil
}

type recordedEvent struct {
	kind    EventKind
	message string
}

type eventRecorder struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (r *eventRecorder) Notify(kind EventKind, message string) {
	r.mu.Lock()
	r.events = append(r.events, recordedEvent{kind, message})
	r.mu.Unlock()
}

func (r *eventRecorder) count(kind EventKind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.kind == kind {
			n++
		}
	}
	return n
}

// startHook is a slog handler that reports when the worker starts a job,
// using the time of the "processing order" record.
type startHook struct {
	attrs []slog.Attr
	fn    func(orderID string, at time.Time)
}

func (h *startHook) Enabled(context.Context, slog.Level) bool { return true }

func (h *startHook) Handle(_ context.Context, r slog.Record) error {
	if r.Message != "processing order" {
		return nil
	}
	for _, a := range h.attrs {
		if a.Key == "order_id" {
			h.fn(a.Value.String(), r.Time)
		}
	}
	return nil
}

func (h *startHook) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &startHook{attrs: append(append([]slog.Attr(nil), h.attrs...), attrs...), fn: h.fn}
}

func (h *startHook) WithGroup(string) slog.Handler { return h }
