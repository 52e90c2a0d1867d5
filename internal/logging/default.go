package logging

import "sync"

var (
	defaultLogger *Logger
	defaultMu     sync.RWMutex
)

// InitDefaultLogger инициализирует логгер по умолчанию, в который пишут
// пакетные функции Trace/Debug/Info/Warn/Error.
func InitDefaultLogger(component string) error {
	logger, err := NewLogger(component)
	if err != nil {
		return err
	}
	defaultMu.Lock()
	defaultLogger = logger
	defaultMu.Unlock()
	return nil
}

// CloseDefaultLogger закрывает логгер по умолчанию.
func CloseDefaultLogger() {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultLogger != nil {
		defaultLogger.Close()
		defaultLogger = nil
	}
}

func defaultOrNil() *Logger {
	defaultMu.RLock()
	defer defaultMu.RUnlock()
	return defaultLogger
}

// Trace логирует через логгер по умолчанию. Без инициализации — no-op.
func Trace(format string, args ...interface{}) {
	if l := defaultOrNil(); l != nil {
		l.Trace(format, args...)
	}
}

// Debug логирует через логгер по умолчанию. Без инициализации — no-op.
func Debug(format string, args ...interface{}) {
	if l := defaultOrNil(); l != nil {
		l.Debug(format, args...)
	}
}

// Info логирует через логгер по умолчанию. Без инициализации — no-op.
func Info(format string, args ...interface{}) {
	if l := defaultOrNil(); l != nil {
		l.Info(format, args...)
	}
}

// Warn логирует через логгер по умолчанию. Без инициализации — no-op.
func Warn(format string, args ...interface{}) {
	if l := defaultOrNil(); l != nil {
		l.Warn(format, args...)
	}
}

// Error логирует через логгер по умолчанию. Без инициализации — no-op.
func Error(format string, args ...interface{}) {
	if l := defaultOrNil(); l != nil {
		l.Error(format, args...)
	}
}
