// Copyright (c) 2025 The cqlexec Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cqlexec

// StdLogger is the legacy logging interface, satisfied by *log.Logger.
type StdLogger interface {
	Print(v ...interface{})
	Printf(format string, v ...interface{})
	Println(v ...interface{})
}

type LogLevel int

const (
	LogLevelNone  = LogLevel(0)
	LogLevelError = LogLevel(2)
	LogLevelWarn  = LogLevel(3)
	LogLevelInfo  = LogLevel(4)
	LogLevelDebug = LogLevel(5)
)

func (l LogLevel) String() string {
	switch l {
	case LogLevelDebug:
		return "debug"
	case LogLevelInfo:
		return "info"
	case LogLevelWarn:
		return "warn"
	case LogLevelError:
		return "error"
	default:
		return "none"
	}
}

type LogField struct {
	Name  string
	Value interface{}
}

func newLogField(name string, value interface{}) LogField {
	return LogField{Name: name, Value: value}
}

// AdvancedLogger is the structured logging interface. Implementations decide
// how fields are rendered.
type AdvancedLogger interface {
	Error(msg string, fields ...LogField)
	Warning(msg string, fields ...LogField)
	Info(msg string, fields ...LogField)
	Debug(msg string, fields ...LogField)
}

type internalLogger interface {
	AdvancedLogger
}

type nopLogger struct{}

func (nopLogger) Error(_ string, _ ...LogField)   {}
func (nopLogger) Warning(_ string, _ ...LogField) {}
func (nopLogger) Info(_ string, _ ...LogField)    {}
func (nopLogger) Debug(_ string, _ ...LogField)   {}

var nilInternalLogger internalLogger = nopLogger{}

// loggerAdapter filters on level and bridges to either the structured or the
// legacy logger, whichever was configured.
type loggerAdapter struct {
	minimumLogLevel LogLevel
	advLogger       AdvancedLogger
	legacyLogger    StdLogger
}

func (recv loggerAdapter) logLegacy(msg string, fields ...LogField) {
	values := make([]interface{}, 0, len(fields)*2+1)
	values = append(values, msg)
	for _, f := range fields {
		values = append(values, f.Name, f.Value)
	}
	recv.legacyLogger.Println(values...)
}

func (recv loggerAdapter) log(level LogLevel, msg string, fields []LogField) {
	if level > recv.minimumLogLevel {
		return
	}
	if recv.advLogger != nil {
		switch level {
		case LogLevelError:
			recv.advLogger.Error(msg, fields...)
		case LogLevelWarn:
			recv.advLogger.Warning(msg, fields...)
		case LogLevelInfo:
			recv.advLogger.Info(msg, fields...)
		default:
			recv.advLogger.Debug(msg, fields...)
		}
		return
	}
	if recv.legacyLogger != nil {
		recv.logLegacy(msg, fields...)
	}
}

func (recv loggerAdapter) Error(msg string, fields ...LogField) {
	recv.log(LogLevelError, msg, fields)
}

func (recv loggerAdapter) Warning(msg string, fields ...LogField) {
	recv.log(LogLevelWarn, msg, fields)
}

func (recv loggerAdapter) Info(msg string, fields ...LogField) {
	recv.log(LogLevelInfo, msg, fields)
}

func (recv loggerAdapter) Debug(msg string, fields ...LogField) {
	recv.log(LogLevelDebug, msg, fields)
}

func newInternalLogger(cfg *Config) internalLogger {
	level := cfg.LogLevel
	if level == LogLevelNone && (cfg.AdvancedLogger != nil || cfg.Logger != nil) {
		level = LogLevelError
	}
	switch {
	case cfg.AdvancedLogger != nil:
		return loggerAdapter{minimumLogLevel: level, advLogger: cfg.AdvancedLogger}
	case cfg.Logger != nil:
		return loggerAdapter{minimumLogLevel: level, legacyLogger: cfg.Logger}
	default:
		return nilInternalLogger
	}
}
