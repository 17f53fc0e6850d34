// Package log9p adapts logrus to the narrow Logger interface that
// server, client, and session use, grounded on rclone's and moby's use
// of github.com/sirupsen/logrus as the ambient structured logger
// across their own server/client plumbing.
package log9p

import "github.com/sirupsen/logrus"

// Logger is the printf-shaped logging capability server.Dispatcher,
// client.Client, and session.Pool accept. It is deliberately narrower
// than logrus.FieldLogger so that callers are not forced to depend on
// logrus directly.
type Logger interface {
	Printf(format string, args ...any)
}

// FromLogrus adapts a *logrus.Logger (or *logrus.Entry) to Logger.
func FromLogrus(l logrus.FieldLogger) Logger {
	return logrusAdapter{l}
}

type logrusAdapter struct {
	l logrus.FieldLogger
}

func (a logrusAdapter) Printf(format string, args ...any) {
	a.l.Printf(format, args...)
}

// Discard is a Logger that drops everything, for tests and callers
// that don't want any log output.
var Discard Logger = discard{}

type discard struct{}

func (discard) Printf(string, ...any) {}
