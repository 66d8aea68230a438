package services

import (
	"context"
	"log/slog"
)

// EventKind classifies a status notification for the UI.
type EventKind string

const (
	EventConnected    EventKind = "connected"
	EventDisconnected EventKind = "disconnected"
	EventPrinting     EventKind = "printing"
	EventPrinted      EventKind = "printed"
	EventError        EventKind = "error"
	EventLog          EventKind = "log"
)

// Notifier receives fire-and-forget status events. Implementations must
// not block: they are called from the print worker and the channel loop.
type Notifier interface {
	Notify(kind EventKind, message string)
}

type NotifierFunc func(kind EventKind, message string)

func (f NotifierFunc) Notify(kind EventKind, message string) { f(kind, message) }

// LogNotifier forwards events to a structured logger. It is the default
// when no UI is attached.
type LogNotifier struct {
	Logger *slog.Logger
}

func (n LogNotifier) Notify(kind EventKind, message string) {
	level := slog.LevelInfo
	if kind == EventError {
		level = slog.LevelWarn
	}
	n.Logger.Log(context.Background(), level, message, "event", string(kind))
}

// nopNotifier drops events.
type nopNotifier struct{}

func (nopNotifier) Notify(EventKind, string) {}
