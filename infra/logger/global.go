package logger

import (
	"os"
	"sync"
	"sync/atomic"

	"github.com/mstgnz/gohuifu/infra/config"
	"github.com/mstgnz/gohuifu/infra/opensearch"
)

const (
	serviceName    = "gohuifu"
	serviceVersion = "1.0.0"
)

var (
	global atomic.Pointer[SystemLogger]

	fallback = sync.OnceValue(func() *SystemLogger {
		return NewSystemLogger(nil, SystemLoggerConfig{
			EnableConsole: true,
			MinLevel:      LevelInfo,
			Service:       serviceName,
			Version:       serviceVersion,
			Environment:   "development",
		})
	})
)

// InitGlobalLogger installs the process logger; only the first call has
// effect. search may be nil. ENVIRONMENT picks the default level (debug in
// development, info elsewhere) and LOG_LEVEL overrides it.
func InitGlobalLogger(search *opensearch.Logger) {
	env := config.GetEnv("ENVIRONMENT", "development")
	level := LevelInfo
	if env == "development" {
		level = LevelDebug
	}

	global.CompareAndSwap(nil, NewSystemLogger(search, SystemLoggerConfig{
		EnableConsole:    true,
		EnableOpenSearch: search != nil,
		MinLevel:         ParseLevel(config.GetEnv("LOG_LEVEL", ""), level),
		Service:          serviceName,
		Version:          serviceVersion,
		Environment:      env,
	}))
}

// GetGlobalLogger returns the installed logger, or a console-only one at info
// level when InitGlobalLogger has not run.
func GetGlobalLogger() *SystemLogger {
	if sl := global.Load(); sl != nil {
		return sl
	}
	return fallback()
}

func Debug(message string, ctx ...LogContext) {
	GetGlobalLogger().write(2, LevelDebug, message, nil, ctx)
}

func Info(message string, ctx ...LogContext) {
	GetGlobalLogger().write(2, LevelInfo, message, nil, ctx)
}

func Warn(message string, ctx ...LogContext) {
	GetGlobalLogger().write(2, LevelWarn, message, nil, ctx)
}

func Error(message string, err error, ctx ...LogContext) {
	GetGlobalLogger().write(2, LevelError, message, err, ctx)
}

// Fatal logs through the global logger and exits
func Fatal(message string, err error, ctx ...LogContext) {
	GetGlobalLogger().write(2, LevelFatal, message, err, ctx)
	os.Exit(1)
}

// WithRequest returns a global context logger bound to one gateway request
func WithRequest(provider, requestID string) ContextLogger {
	return GetGlobalLogger().WithRequest(provider, requestID)
}
