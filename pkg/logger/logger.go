package logger

// LoggerInstance defines the interface for logging backends.
type LoggerInstance interface {
	Log(message string, keyvals ...any)
	Debug(message string, keyvals ...any)
	Info(message string, keyvals ...any)
	Warn(message string, keyvals ...any)
	Error(message string, keyvals ...any)
	Fatal(message string, keyvals ...any)
}

// Logger holds multiple logging backends and dispatches log calls to all of them.
type Logger struct {
	instances []LoggerInstance
}

var singleton *Logger

func getSingleton() *Logger {
	return singleton
}

// Init initializes the global logger with one or more logging backends.
// Calls made before Init are dropped.
func Init(instances ...LoggerInstance) {
	singleton = &Logger{
		instances: instances,
	}
}

func dispatch(fn func(LoggerInstance)) {
	logger := getSingleton()
	if logger == nil {
		return
	}

	for _, instance := range logger.instances {
		fn(instance)
	}
}

// Log writes a message at the default log level to all configured backends.
func Log(message string, keyvals ...any) {
	dispatch(func(i LoggerInstance) { i.Log(message, keyvals...) })
}

// Info writes a message at INFO level to all configured backends.
func Info(message string, keyvals ...any) {
	dispatch(func(i LoggerInstance) { i.Info(message, keyvals...) })
}

// Warn writes a message at WARN level to all configured backends.
func Warn(message string, keyvals ...any) {
	dispatch(func(i LoggerInstance) { i.Warn(message, keyvals...) })
}

// Error writes a message at ERROR level to all configured backends.
func Error(message string, keyvals ...any) {
	dispatch(func(i LoggerInstance) { i.Error(message, keyvals...) })
}

// Debug writes a message at DEBUG level to all configured backends.
func Debug(message string, keyvals ...any) {
	dispatch(func(i LoggerInstance) { i.Debug(message, keyvals...) })
}

// Fatal writes a message at FATAL level and terminates the program.
func Fatal(message string, keyvals ...any) {
	dispatch(func(i LoggerInstance) { i.Fatal(message, keyvals...) })
}

// Scoped prefixes every call with a fixed set of key/value pairs. Jobs use it
// to tag their lines with a job id and source URL.
type Scoped struct {
	keyvals []any
}

// With returns a Scoped logger carrying keyvals on every line.
func With(keyvals ...any) Scoped {
	return Scoped{keyvals: keyvals}
}

// With returns a copy of s extended by keyvals.
func (s Scoped) With(keyvals ...any) Scoped {
	merged := make([]any, 0, len(s.keyvals)+len(keyvals))
	merged = append(merged, s.keyvals...)
	merged = append(merged, keyvals...)
	return Scoped{keyvals: merged}
}

func (s Scoped) merge(keyvals []any) []any {
	if len(s.keyvals) == 0 {
		return keyvals
	}
	out := make([]any, 0, len(s.keyvals)+len(keyvals))
	out = append(out, s.keyvals...)
	return append(out, keyvals...)
}

func (s Scoped) Debug(message string, keyvals ...any) { Debug(message, s.merge(keyvals)...) }
func (s Scoped) Info(message string, keyvals ...any)  { Info(message, s.merge(keyvals)...) }
func (s Scoped) Warn(message string, keyvals ...any)  { Warn(message, s.merge(keyvals)...) }
func (s Scoped) Error(message string, keyvals ...any) { Error(message, s.merge(keyvals)...) }
