package logger

import (
	"Hephaestus/internal/models"
	"os"

	"github.com/sirupsen/logrus"
)

// Logger wraps logrus to provide structured logging with the fields every
// component of the orchestrator needs for correlation: the service name, the
// task being processed and the agent (or bridge) acting on it.
type Logger struct {
	entry *logrus.Entry
}

// Init configures the global logrus backend. Output is JSON on stdout so log
// collectors can index entries without extra parsing.
func Init(level logrus.Level) {
	logrus.SetFormatter(&logrus.JSONFormatter{
		FieldMap: logrus.FieldMap{
			logrus.FieldKeyTime:  "timestamp",
			logrus.FieldKeyLevel: "level",
			logrus.FieldKeyMsg:   "message",
		},
	})
	logrus.SetOutput(os.Stdout)
	logrus.SetLevel(level)
}

// New creates a Logger preloaded with correlation fields. taskID and agentID
// may be empty when the log site is not bound to a particular task or agent.
func New(serviceName, taskID, agentID string) *Logger {
	return &Logger{
		entry: logrus.WithFields(logrus.Fields{
			"service_name": serviceName,
			"task_id":      taskID,
			"agent_id":     agentID,
		}),
	}
}

// WithTask returns a copy of the logger bound to a task ID.
func (l *Logger) WithTask(taskID string) *Logger {
	return &Logger{entry: l.entry.WithField("task_id", taskID)}
}

// WithRequest returns a copy of the logger carrying a bridge request ID.
func (l *Logger) WithRequest(requestID string) *Logger {
	return &Logger{entry: l.entry.WithField("request_id", requestID)}
}

// WithHTTPRequest returns a copy of the logger carrying HTTP request context.
func (l *Logger) WithHTTPRequest(req models.RequestInfo) *Logger {
	return &Logger{entry: l.entry.WithField("request_info", req)}
}

// WithError returns a copy of the logger carrying a structured error.
func (l *Logger) WithError(err models.ErrorInfo) *Logger {
	return &Logger{entry: l.entry.WithField("error", err)}
}

// WithPayload returns a copy of the logger carrying arbitrary business data.
func (l *Logger) WithPayload(payload map[string]interface{}) *Logger {
	return &Logger{entry: l.entry.WithField("payload", payload)}
}

// Info logs at info level.
func (l *Logger) Info(message string) {
	l.entry.Info(message)
}

// Warn logs at warning level.
func (l *Logger) Warn(message string) {
	l.entry.Warn(message)
}

// Error logs at error level.
func (l *Logger) Error(message string) {
	l.entry.Error(message)
}

// Debug logs at debug level.
func (l *Logger) Debug(message string) {
	l.entry.Debug(message)
}

// Fatal logs at fatal level and terminates the process.
func (l *Logger) Fatal(message string) {
	l.entry.Fatal(message)
}
