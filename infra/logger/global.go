package logger

import (
	"sync"

	"github.com/mstgnz/vpos/infra/config"
	"github.com/mstgnz/vpos/infra/opensearch"
)

var (
	globalLogger *SystemLogger
	mu           sync.RWMutex
	once         sync.Once
)

// InitGlobalLogger initializes the global system logger. osLogger may be nil.
func InitGlobalLogger(osLogger *opensearch.Logger) {
	once.Do(func() {
		cfg := config.GetAppConfig()
		loggerConfig := SystemLoggerConfig{
			EnableConsole:    true,
			EnableOpenSearch: osLogger != nil,
			MinLevel:         ParseLevel(cfg.LoggingLevel),
			Service:          "vpos",
			Version:          "1.0.0",
			Environment:      cfg.Environment,
		}

		if loggerConfig.Environment == "development" {
			loggerConfig.MinLevel = LevelDebug
		}

		SetGlobalLogger(NewSystemLogger(osLogger, loggerConfig))
	})
}

// SetGlobalLogger replaces the global logger
func SetGlobalLogger(l *SystemLogger) {
	mu.Lock()
	globalLogger = l
	mu.Unlock()
}

// GetGlobalLogger returns the global logger instance
func GetGlobalLogger() *SystemLogger {
	mu.RLock()
	l := globalLogger
	mu.RUnlock()
	if l != nil {
		return l
	}

	// console-only fallback until InitGlobalLogger runs
	l = NewSystemLogger(nil, SystemLoggerConfig{
		EnableConsole: true,
		MinLevel:      LevelInfo,
		Service:       "vpos",
		Version:       "1.0.0",
		Environment:   "development",
	})
	SetGlobalLogger(l)
	return l
}

// Debug logs a debug message using the global logger
func Debug(message string, ctx ...LogContext) {
	GetGlobalLogger().Debug(message, ctx...)
}

// Info logs an info message using the global logger
func Info(message string, ctx ...LogContext) {
	GetGlobalLogger().Info(message, ctx...)
}

// Warn logs a warning message using the global logger
func Warn(message string, ctx ...LogContext) {
	GetGlobalLogger().Warn(message, ctx...)
}

// Error logs an error message using the global logger
func Error(message string, err error, ctx ...LogContext) {
	GetGlobalLogger().Error(message, err, ctx...)
}

// Fatal logs a fatal message using the global logger and exits
func Fatal(message string, err error, ctx ...LogContext) {
	GetGlobalLogger().Fatal(message, err, ctx...)
}

// WithContext creates a context logger from the global logger
func WithContext(ctx LogContext) *ContextLogger {
	return GetGlobalLogger().WithContext(ctx)
}

// WithTransaction creates a context logger for one transaction
func WithTransaction(transactionID, provider string) *ContextLogger {
	return WithContext(LogContext{TransactionID: transactionID, Provider: provider})
}
