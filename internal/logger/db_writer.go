package logger

import (
	"context"
	"fmt"
	"time"

	common_models "docsync/internal/common/models"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap/zapcore"
)

// LogEntry holds the data passed from Zap to our worker
type LogEntry struct {
	Level      zapcore.Level
	Message    string
	Caller     string
	EntityType string
	TaskUID    int64
	Error      string
}

// LogSink stores log records. *mongo.Collection satisfies it.
type LogSink interface {
	InsertOne(ctx context.Context, document interface{}, opts ...*options.InsertOneOptions) (*mongo.InsertOneResult, error)
}

// DBLogWriter handles the async writing
type DBLogWriter struct {
	sink    LogSink
	logChan chan LogEntry
	appId   string
}

// NewDBLogWriter starts the background worker draining into sink.
func NewDBLogWriter(sink LogSink, appId string) *DBLogWriter {
	writer := &DBLogWriter{
		sink:    sink,
		logChan: make(chan LogEntry, 1000),
		appId:   appId,
	}

	go writer.processLogs()

	return writer
}

// AddLog is called by our Zap hook
func (w *DBLogWriter) AddLog(entry LogEntry) {
	select {
	case w.logChan <- entry:
	default:
		// Never block the caller on a slow store.
		fmt.Println("DB Log Channel Full! Dropping log:", entry.Message)
	}
}

// Close stops the worker after the buffered entries are written.
func (w *DBLogWriter) Close() {
	close(w.logChan)
}

func (w *DBLogWriter) processLogs() {
	for entry := range w.logChan {
		logRecord := common_models.Log{
			Message:      entry.Message,
			Caller:       entry.Caller,
			EntityType:   entry.EntityType,
			TaskUID:      entry.TaskUID,
			Error:        entry.Error,
			LogLevelId:   mapLevelToInt(entry.Level),
			AppId:        w.appId,
			CreatedOnUtc: time.Now().UTC(),
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_, _ = w.sink.InsertOne(ctx, logRecord)
		cancel()
	}
}

func mapLevelToInt(l zapcore.Level) int {
	switch l {
	case zapcore.DebugLevel:
		return 10
	case zapcore.InfoLevel:
		return 20
	case zapcore.WarnLevel:
		return 30
	case zapcore.ErrorLevel:
		return 40
	case zapcore.FatalLevel:
		return 50
	default:
		return 20
	}
}
