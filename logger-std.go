//go:build !tinygo

package bridge

import (
	"github.com/sirupsen/logrus"
)

func init() {
	globalLogger = &logrusLogger{entry: logrus.StandardLogger()}
}

// logrusLogger is the default logger on hosted (non-TinyGo) builds. It backs
// the core's minimal Logger interface with structured, leveled output so
// operators get the same log shape the rest of the fleet's tooling produces.
type logrusLogger struct {
	entry *logrus.Logger
}

func (l *logrusLogger) Debug(msg string) { l.entry.Debug(msg) }
func (l *logrusLogger) Info(msg string)  { l.entry.Info(msg) }
func (l *logrusLogger) Warn(msg string)  { l.entry.Warn(msg) }
func (l *logrusLogger) Error(msg string) { l.entry.Error(msg) }
