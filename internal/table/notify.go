package table

import (
	"context"
	"log/slog"
)

// NoticeLevel distinguishes success from error notices.
type NoticeLevel int

const (
	NoticeSuccess NoticeLevel = iota
	NoticeError
)

func (l NoticeLevel) String() string {
	if l == NoticeError {
		return "error"
	}
	return "success"
}

// Notice is a one-off message for the user, such as a toast.
type Notice struct {
	Level   NoticeLevel
	Message string
}

// Notifier receives notices. Implementations must be safe for concurrent use.
type Notifier interface {
	Notify(n Notice)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(Notice)

func (f NotifierFunc) Notify(n Notice) { f(n) }

// LogNotifier writes notices to a slog.Logger.
type LogNotifier struct {
	Logger *slog.Logger
}

func (l LogNotifier) Notify(n Notice) {
	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}
	level := slog.LevelInfo
	if n.Level == NoticeError {
		level = slog.LevelError
	}
	logger.Log(context.Background(), level, n.Message, slog.String("notice", n.Level.String()))
}

type nopNotifier struct{}

func (nopNotifier) Notify(Notice) {}
