package logger

import (
	"context"
	"fmt"
	"io"
	"log"
	"maps"
	"os"
	"runtime"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/mstgnz/gohuifu/infra/opensearch"
)

// LogLevel represents the severity level of a log entry
type LogLevel string

const (
	LevelDebug LogLevel = "debug"
	LevelInfo  LogLevel = "info"
	LevelWarn  LogLevel = "warn"
	LevelError LogLevel = "error"
	LevelFatal LogLevel = "fatal"
)

func (l LogLevel) rank() int {
	switch l {
	case LevelDebug:
		return 0
	case LevelInfo:
		return 1
	case LevelWarn:
		return 2
	case LevelError:
		return 3
	case LevelFatal:
		return 4
	default:
		return 1
	}
}

// ParseLevel maps a level name such as "WARN" to a LogLevel, def when unknown
func ParseLevel(name string, def LogLevel) LogLevel {
	switch l := LogLevel(strings.ToLower(strings.TrimSpace(name))); l {
	case LevelDebug, LevelInfo, LevelWarn, LevelError, LevelFatal:
		return l
	}
	return def
}

const modulePath = "github.com/mstgnz/gohuifu/"

// SystemLog is one structured entry as written to the system index
type SystemLog struct {
	Timestamp   time.Time      `json:"timestamp"`
	Level       LogLevel       `json:"level"`
	Message     string         `json:"message"`
	Component   string         `json:"component"`
	Function    string         `json:"function"`
	File        string         `json:"file"`
	Line        int            `json:"line"`
	Provider    string         `json:"provider,omitempty"`
	RequestID   string         `json:"request_id,omitempty"`
	Error       string         `json:"error,omitempty"`
	Fields      map[string]any `json:"fields,omitempty"`
	Environment string         `json:"environment"`
	Service     string         `json:"service"`
	Version     string         `json:"version"`
}

// SystemLoggerConfig configures a SystemLogger. Output defaults to stdout.
type SystemLoggerConfig struct {
	EnableConsole    bool
	EnableOpenSearch bool
	MinLevel         LogLevel
	Service          string
	Version          string
	Environment      string
	Output           io.Writer
}

// SystemLogger writes entries as single lines to the console and, when a
// search logger is attached, indexes them asynchronously.
type SystemLogger struct {
	search      *opensearch.Logger
	console     io.Writer
	minLevel    LogLevel
	service     string
	version     string
	environment string

	mu sync.Mutex
}

// NewSystemLogger creates a system logger
func NewSystemLogger(search *opensearch.Logger, cfg SystemLoggerConfig) *SystemLogger {
	sl := &SystemLogger{
		minLevel:    cfg.MinLevel,
		service:     cfg.Service,
		version:     cfg.Version,
		environment: cfg.Environment,
	}
	if cfg.EnableOpenSearch && search != nil {
		sl.search = search
	}
	if cfg.EnableConsole {
		sl.console = cfg.Output
		if sl.console == nil {
			sl.console = os.Stdout
		}
	}
	return sl
}

// LogContext holds contextual information for logging. A string "error"
// field is lifted into the entry's error.
type LogContext struct {
	Provider  string
	RequestID string
	Fields    map[string]any
}

func (sl *SystemLogger) Debug(message string, ctx ...LogContext) {
	sl.write(2, LevelDebug, message, nil, ctx)
}

func (sl *SystemLogger) Info(message string, ctx ...LogContext) {
	sl.write(2, LevelInfo, message, nil, ctx)
}

func (sl *SystemLogger) Warn(message string, ctx ...LogContext) {
	sl.write(2, LevelWarn, message, nil, ctx)
}

func (sl *SystemLogger) Error(message string, err error, ctx ...LogContext) {
	sl.write(2, LevelError, message, err, ctx)
}

// Fatal logs at fatal level and exits the process
func (sl *SystemLogger) Fatal(message string, err error, ctx ...LogContext) {
	sl.write(2, LevelFatal, message, err, ctx)
	os.Exit(1)
}

func (sl *SystemLogger) enabled(level LogLevel) bool {
	return level.rank() >= sl.minLevel.rank()
}

// write builds and emits one entry. depth is the number of frames between
// write and the code that logged.
func (sl *SystemLogger) write(depth int, level LogLevel, message string, err error, ctx []LogContext) {
	if !sl.enabled(level) {
		return
	}

	entry := SystemLog{
		Timestamp:   time.Now().UTC(),
		Level:       level,
		Message:     message,
		Component:   "unknown",
		Function:    "unknown",
		File:        "unknown",
		Environment: sl.environment,
		Service:     sl.service,
		Version:     sl.version,
	}
	if pc, file, line, ok := runtime.Caller(depth); ok {
		entry.File, entry.Line = file, line
		if fn := runtime.FuncForPC(pc); fn != nil {
			entry.Component, entry.Function = splitFuncName(fn.Name())
		}
	}

	if len(ctx) > 0 {
		entry.Provider = ctx[0].Provider
		entry.RequestID = ctx[0].RequestID
		if len(ctx[0].Fields) > 0 {
			entry.Fields = maps.Clone(ctx[0].Fields)
			if msg, ok := entry.Fields["error"].(string); ok {
				entry.Error = msg
				delete(entry.Fields, "error")
			}
		}
	}
	if err != nil {
		entry.Error = err.Error()
	}

	if sl.console != nil {
		sl.print(entry)
	}
	if sl.search != nil {
		go sl.index(entry)
	}
}

// splitFuncName turns a runtime function name into the package path relative
// to the module and the bare function name.
func splitFuncName(name string) (string, string) {
	slash := strings.LastIndex(name, "/")
	dot := strings.Index(name[slash+1:], ".")
	if dot < 0 {
		return "unknown", name
	}
	pkg := name[:slash+1+dot]
	fn := name[slash+1+dot+1:]
	if i := strings.LastIndex(fn, "."); i >= 0 {
		fn = fn[i+1:]
	}
	return strings.TrimPrefix(pkg, modulePath), fn
}

// print writes one line: time, level, component, message, then the context as
// key=value pairs with fields in key order.
func (sl *SystemLogger) print(e SystemLog) {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %-5s [%s] %s",
		e.Timestamp.Format(time.DateTime), strings.ToUpper(string(e.Level)), e.Component, e.Message)
	if e.Provider != "" {
		fmt.Fprintf(&b, " provider=%s", e.Provider)
	}
	if e.RequestID != "" {
		fmt.Fprintf(&b, " req_id=%s", shortID(e.RequestID))
	}
	for _, k := range slices.Sorted(maps.Keys(e.Fields)) {
		fmt.Fprintf(&b, " %s=%v", k, e.Fields[k])
	}
	if e.Error != "" {
		fmt.Fprintf(&b, " error=%q", e.Error)
	}
	b.WriteByte('\n')

	sl.mu.Lock()
	defer sl.mu.Unlock()
	_, _ = io.WriteString(sl.console, b.String())
}

// shortID trims request ids longer than a sequence id for console output
func shortID(id string) string {
	if len(id) <= 24 {
		return id
	}
	return id[:24]
}

func (sl *SystemLogger) index(entry SystemLog) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := sl.search.LogSystemEvent(ctx, entry); err != nil {
		log.Printf("Failed to log to OpenSearch: %v", err)
	}
}

// ContextLogger logs with a fixed provider, request id and field set.
// It is a value: With returns an extended copy and never touches the original.
type ContextLogger struct {
	logger *SystemLogger
	ctx    LogContext
}

// WithRequest returns a logger bound to one gateway request
func (sl *SystemLogger) WithRequest(provider, requestID string) ContextLogger {
	return ContextLogger{logger: sl, ctx: LogContext{Provider: provider, RequestID: requestID}}
}

// With returns a copy carrying key=value in addition to the current fields
func (cl ContextLogger) With(key string, value any) ContextLogger {
	fields := make(map[string]any, len(cl.ctx.Fields)+1)
	maps.Copy(fields, cl.ctx.Fields)
	fields[key] = value
	cl.ctx.Fields = fields
	return cl
}

// Context returns the bound context
func (cl ContextLogger) Context() LogContext {
	return cl.ctx
}

func (cl ContextLogger) Debug(message string) {
	cl.logger.write(2, LevelDebug, message, nil, []LogContext{cl.ctx})
}

func (cl ContextLogger) Info(message string) {
	cl.logger.write(2, LevelInfo, message, nil, []LogContext{cl.ctx})
}

func (cl ContextLogger) Warn(message string) {
	cl.logger.write(2, LevelWarn, message, nil, []LogContext{cl.ctx})
}

func (cl ContextLogger) Error(message string, err error) {
	cl.logger.write(2, LevelError, message, err, []LogContext{cl.ctx})
}
