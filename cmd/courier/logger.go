// Copyright 2026 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package main

import (
	"io"

	"github.com/pion/logging"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// newZap returns a console logger writing to w.
func newZap(w io.Writer, verbose bool) *zap.Logger {
	level := zapcore.InfoLevel
	if verbose {
		level = zapcore.DebugLevel
	}
	encoderConfig := zapcore.EncoderConfig{
		TimeKey:     "time",
		LevelKey:    "level",
		NameKey:     "scope",
		MessageKey:  "message",
		EncodeTime:  zapcore.ISO8601TimeEncoder,
		EncodeLevel: zapcore.LowercaseLevelEncoder,
		EncodeName:  zapcore.FullNameEncoder,
	}
	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encoderConfig),
		zapcore.AddSync(w),
		level,
	)
	return zap.New(core)
}

// zapFactory creates a named zap logger for every scope requested by the
// library.
type zapFactory struct {
	log *zap.Logger
}

func (f zapFactory) NewLogger(scope string) logging.LeveledLogger {
	return zapLogger{s: f.log.Named(scope).Sugar()}
}

// zapLogger maps the leveled logger used by the library onto zap.
// Zap has no trace level so trace output is logged at debug.
type zapLogger struct {
	s *zap.SugaredLogger
}

func (l zapLogger) Trace(msg string)                  { l.s.Debug(msg) }
func (l zapLogger) Tracef(f string, a ...interface{}) { l.s.Debugf(f, a...) }
func (l zapLogger) Debug(msg string)                  { l.s.Debug(msg) }
func (l zapLogger) Debugf(f string, a ...interface{}) { l.s.Debugf(f, a...) }
func (l zapLogger) Info(msg string)                   { l.s.Info(msg) }
func (l zapLogger) Infof(f string, a ...interface{})  { l.s.Infof(f, a...) }
func (l zapLogger) Warn(msg string)                   { l.s.Warn(msg) }
func (l zapLogger) Warnf(f string, a ...interface{})  { l.s.Warnf(f, a...) }
func (l zapLogger) Error(msg string)                  { l.s.Error(msg) }
func (l zapLogger) Errorf(f string, a ...interface{}) { l.s.Errorf(f, a...) }
