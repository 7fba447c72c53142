package logger

import (
	"go.uber.org/zap/zapcore"
)

// Field keys the DB core lifts into their own columns.
const (
	EntityTypeKey = "entity_type"
	TaskUIDKey    = "task_uid"
)

// DBCore is a custom Zap Core that intercepts logs
type DBCore struct {
	zapcore.Core
	writer *DBLogWriter
	fields []zapcore.Field
}

// NewDBCore wraps an existing core (like console logger) and adds DB logging
func NewDBCore(baseCore zapcore.Core, writer *DBLogWriter) zapcore.Core {
	return &DBCore{
		Core:   baseCore,
		writer: writer,
	}
}

// With keeps fields attached via logger.With so Write can still see them.
func (c *DBCore) With(fields []zapcore.Field) zapcore.Core {
	return &DBCore{
		Core:   c.Core.With(fields),
		writer: c.writer,
		fields: append(append([]zapcore.Field{}, c.fields...), fields...),
	}
}

// Write is called for every log entry
func (c *DBCore) Write(entry zapcore.Entry, fields []zapcore.Field) error {
	out := LogEntry{
		Level:   entry.Level,
		Message: entry.Message,
		Caller:  entry.Caller.Function,
	}

	for _, f := range append(append([]zapcore.Field{}, c.fields...), fields...) {
		switch {
		case f.Key == EntityTypeKey:
			out.EntityType = f.String
		case f.Key == TaskUIDKey:
			out.TaskUID = f.Integer
		case f.Type == zapcore.ErrorType:
			if err, ok := f.Interface.(error); ok {
				out.Error = err.Error()
			}
		}
	}

	c.writer.AddLog(out)

	return c.Core.Write(entry, fields)
}

// Check decides if we should log this level
func (c *DBCore) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(ent.Level) {
		return ce.AddCore(ent, c)
	}
	return ce
}
