package logger

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/mstgnz/vpos/infra/opensearch"
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

var levelOrder = map[LogLevel]int{
	LevelDebug: 0,
	LevelInfo:  1,
	LevelWarn:  2,
	LevelError: 3,
	LevelFatal: 4,
}

// ParseLevel maps a configured level name to a LogLevel, info when unknown
func ParseLevel(s string) LogLevel {
	level := LogLevel(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := levelOrder[level]; ok {
		return level
	}
	return LevelInfo
}

// SystemLog represents a structured system log entry
type SystemLog struct {
	Timestamp     time.Time      `json:"timestamp"`
	Level         LogLevel       `json:"level"`
	Message       string         `json:"message"`
	Component     string         `json:"component"`
	Function      string         `json:"function"`
	File          string         `json:"file"`
	Line          int            `json:"line"`
	PartnerID     string         `json:"partner_id,omitempty"`
	Provider      string         `json:"provider,omitempty"`
	TransactionID string         `json:"transaction_id,omitempty"`
	RequestID     string         `json:"request_id,omitempty"`
	Error         string         `json:"error,omitempty"`
	Fields        map[string]any `json:"fields,omitempty"`
	Environment   string         `json:"environment"`
	Service       string         `json:"service"`
	Version       string         `json:"version"`
}

// SystemLogger handles structured logging to OpenSearch and console
type SystemLogger struct {
	openSearchLogger *opensearch.Logger
	enableConsole    bool
	enableOpenSearch bool
	minLevel         LogLevel
	service          string
	version          string
	environment      string

	out io.Writer
	mu  sync.Mutex
}

// SystemLoggerConfig represents configuration for system logger
type SystemLoggerConfig struct {
	EnableConsole    bool
	EnableOpenSearch bool
	MinLevel         LogLevel
	Service          string
	Version          string
	Environment      string
	Output           io.Writer
}

// NewSystemLogger creates a new system logger
func NewSystemLogger(openSearchLogger *opensearch.Logger, config SystemLoggerConfig) *SystemLogger {
	out := config.Output
	if out == nil {
		out = os.Stdout
	}
	return &SystemLogger{
		openSearchLogger: openSearchLogger,
		enableConsole:    config.EnableConsole,
		enableOpenSearch: config.EnableOpenSearch && openSearchLogger != nil,
		minLevel:         config.MinLevel,
		service:          config.Service,
		version:          config.Version,
		environment:      config.Environment,
		out:              out,
	}
}

// LogContext holds contextual information for logging
type LogContext struct {
	PartnerID     string
	Provider      string
	TransactionID string
	RequestID     string
	Fields        map[string]any
}

// Debug logs a debug message
func (sl *SystemLogger) Debug(message string, ctx ...LogContext) {
	sl.log(LevelDebug, message, ctx...)
}

// Info logs an info message
func (sl *SystemLogger) Info(message string, ctx ...LogContext) {
	sl.log(LevelInfo, message, ctx...)
}

// Warn logs a warning message
func (sl *SystemLogger) Warn(message string, ctx ...LogContext) {
	sl.log(LevelWarn, message, ctx...)
}

// Error logs an error message
func (sl *SystemLogger) Error(message string, err error, ctx ...LogContext) {
	sl.log(LevelError, message, withError(err, ctx)...)
}

// Fatal logs a fatal message and exits
func (sl *SystemLogger) Fatal(message string, err error, ctx ...LogContext) {
	sl.log(LevelFatal, message, withError(err, ctx)...)
	os.Exit(1)
}

func withError(err error, ctx []LogContext) []LogContext {
	logCtx := LogContext{}
	if len(ctx) > 0 {
		logCtx = ctx[0]
	}

	fields := make(map[string]any, len(logCtx.Fields)+1)
	for k, v := range logCtx.Fields {
		fields[k] = v
	}
	if err != nil {
		fields["error"] = err.Error()
	}
	logCtx.Fields = fields
	return []LogContext{logCtx}
}

// log is the core logging function
func (sl *SystemLogger) log(level LogLevel, message string, ctx ...LogContext) {
	if !sl.shouldLog(level) {
		return
	}

	file, line, function := "unknown", 0, "unknown"
	if pc, f, l, ok := runtime.Caller(3); ok {
		file, line = f, l
		if fn := runtime.FuncForPC(pc); fn != nil {
			function = fn.Name()
			if idx := strings.LastIndex(function, "."); idx != -1 {
				function = function[idx+1:]
			}
		}
	}

	logEntry := SystemLog{
		Timestamp:   time.Now().UTC(),
		Level:       level,
		Message:     message,
		Component:   extractComponent(file),
		Function:    function,
		File:        file,
		Line:        line,
		Environment: sl.environment,
		Service:     sl.service,
		Version:     sl.version,
	}

	if len(ctx) > 0 {
		logCtx := ctx[0]
		logEntry.PartnerID = logCtx.PartnerID
		logEntry.Provider = logCtx.Provider
		logEntry.TransactionID = logCtx.TransactionID
		logEntry.RequestID = logCtx.RequestID
		logEntry.Fields = logCtx.Fields

		if errMsg, ok := logCtx.Fields["error"].(string); ok {
			logEntry.Error = errMsg
		}
	}

	if sl.enableConsole {
		sl.logToConsole(logEntry)
	}

	if sl.enableOpenSearch {
		go sl.logToOpenSearch(logEntry)
	}
}

// shouldLog checks if the log level should be logged
func (sl *SystemLogger) shouldLog(level LogLevel) bool {
	return levelOrder[level] >= levelOrder[sl.minLevel]
}

// extractComponent turns /path/to/vpos/provider/nestpay/nestpay.go into
// provider/nestpay
func extractComponent(file string) string {
	parts := strings.Split(file, "/")

	for i, part := range parts {
		if part == "vpos" && i+1 < len(parts)-1 {
			if i+2 < len(parts)-1 {
				return parts[i+1] + "/" + parts[i+2]
			}
			return parts[i+1]
		}
	}

	if len(parts) >= 2 {
		return parts[len(parts)-2]
	}

	return "unknown"
}

// logToConsole logs to console with colored output
func (sl *SystemLogger) logToConsole(entry SystemLog) {
	colors := map[LogLevel]string{
		LevelDebug: "\033[36m",
		LevelInfo:  "\033[32m",
		LevelWarn:  "\033[33m",
		LevelError: "\033[31m",
		LevelFatal: "\033[35m",
	}
	reset := "\033[0m"

	var contextParts []string
	if entry.PartnerID != "" {
		contextParts = append(contextParts, "partner="+entry.PartnerID)
	}
	if entry.Provider != "" {
		contextParts = append(contextParts, "provider="+entry.Provider)
	}
	if entry.TransactionID != "" {
		contextParts = append(contextParts, "tx="+entry.TransactionID)
	}
	if entry.RequestID != "" {
		id := entry.RequestID
		if len(id) > 8 {
			id = id[:8]
		}
		contextParts = append(contextParts, "req_id="+id)
	}

	logContext := ""
	if len(contextParts) > 0 {
		logContext = "[" + strings.Join(contextParts, " ") + "] "
	}

	errPart := ""
	if entry.Error != "" {
		errPart = " - Error: " + entry.Error
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s [%s] [%s] %s%s%s\n",
		entry.Timestamp.Format("2006-01-02 15:04:05"),
		colors[entry.Level]+strings.ToUpper(string(entry.Level))+reset,
		entry.Component,
		logContext,
		entry.Message,
		errPart,
	)

	keys := make([]string, 0, len(entry.Fields))
	for key := range entry.Fields {
		if key != "error" {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	for _, key := range keys {
		fmt.Fprintf(&b, "  %s: %v\n", key, entry.Fields[key])
	}

	sl.mu.Lock()
	io.WriteString(sl.out, b.String())
	sl.mu.Unlock()
}

// logToOpenSearch logs to OpenSearch asynchronously
func (sl *SystemLogger) logToOpenSearch(entry SystemLog) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := sl.openSearchLogger.LogSystemEvent(ctx, entry); err != nil {
		log.Printf("Failed to log to OpenSearch: %v", err)
	}
}

// WithContext creates a new logger with context
func (sl *SystemLogger) WithContext(ctx LogContext) *ContextLogger {
	return &ContextLogger{
		systemLogger: sl,
		context:      ctx,
	}
}

// ContextLogger wraps SystemLogger with context
type ContextLogger struct {
	systemLogger *SystemLogger
	context      LogContext
}

// Debug logs a debug message with context
func (cl *ContextLogger) Debug(message string) {
	cl.systemLogger.Debug(message, cl.context)
}

// Info logs an info message with context
func (cl *ContextLogger) Info(message string) {
	cl.systemLogger.Info(message, cl.context)
}

// Warn logs a warning message with context
func (cl *ContextLogger) Warn(message string) {
	cl.systemLogger.Warn(message, cl.context)
}

// Error logs an error message with context
func (cl *ContextLogger) Error(message string, err error) {
	cl.systemLogger.Error(message, err, cl.context)
}

// AddField adds a field to the context
func (cl *ContextLogger) AddField(key string, value any) *ContextLogger {
	if cl.context.Fields == nil {
		cl.context.Fields = make(map[string]any)
	}
	cl.context.Fields[key] = value
	return cl
}

// SetTransactionID sets the transaction id in context
func (cl *ContextLogger) SetTransactionID(id string) *ContextLogger {
	cl.context.TransactionID = id
	return cl
}
