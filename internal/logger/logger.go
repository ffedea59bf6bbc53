// SPDX-License-Identifier: GPL-3.0-or-later

package logger

import (
	"fmt"
	"log/slog"
)

var isJournal = isStderrConnectedToJournal()

func newHandler() slog.Handler {
	if isJournal {
		return withCallDepth(3, newTextHandler())
	}
	return withCallDepth(3, newTerminalHandler())
}

// Logger wraps slog.Logger with the call-depth fixup the teacher's
// handlers need and a few shorthand level methods used across the
// daemon.
type Logger struct {
	*slog.Logger
}

// New returns a Logger writing through the process-wide handler.
func New() *Logger {
	return &Logger{Logger: slog.New(newHandler())}
}

func (l *Logger) With(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...)}
}

func (l *Logger) Debugf(format string, args ...any) {
	l.Logger.Debug(fmt.Sprintf(format, args...))
}

func (l *Logger) Infof(format string, args ...any) {
	l.Logger.Info(fmt.Sprintf(format, args...))
}

func (l *Logger) Warningf(format string, args ...any) {
	l.Logger.Warn(fmt.Sprintf(format, args...))
}

func (l *Logger) Errorf(format string, args ...any) {
	l.Logger.Error(fmt.Sprintf(format, args...))
}
