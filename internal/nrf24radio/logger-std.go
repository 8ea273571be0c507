//go:build !tinygo

package nrf24radio

import "github.com/sirupsen/logrus"

func init() {
	globalLogger = &logrusLogger{entry: logrus.StandardLogger()}
}

type logrusLogger struct {
	entry *logrus.Logger
}

func (l *logrusLogger) Debug(msg string) { l.entry.Debug(msg) }
func (l *logrusLogger) Info(msg string)  { l.entry.Info(msg) }
func (l *logrusLogger) Warn(msg string)  { l.entry.Warn(msg) }
func (l *logrusLogger) Error(msg string) { l.entry.Error(msg) }
