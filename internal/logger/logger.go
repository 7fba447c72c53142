package logger

import (
	"docsync/internal/config"
	"docsync/internal/database"

	"go.uber.org/zap"
)

// NewLogger builds the service logger: console output teed into the "logs" collection.
func NewLogger(cfg *config.Config, mongodb *database.MongodbDB) (*zap.Logger, error) {
	var zapConfig zap.Config
	if cfg.IsProduction() {
		zapConfig = zap.NewProductionConfig()
	} else {
		zapConfig = zap.NewDevelopmentConfig()
	}

	// Caller.Function is only filled when the encoder asks for it.
	zapConfig.EncoderConfig.FunctionKey = "func"

	baseLogger, err := zapConfig.Build()
	if err != nil {
		return nil, err
	}

	dbWriter := NewDBLogWriter(mongodb.DB.Collection("logs"), cfg.AppId)
	finalCore := NewDBCore(baseLogger.Core(), dbWriter)

	return zap.New(finalCore, zap.AddCaller()), nil
}

// NewConsoleLogger is used by the CLI, which does not persist its logs.
func NewConsoleLogger(verbose bool) (*zap.Logger, error) {
	zapConfig := zap.NewDevelopmentConfig()
	zapConfig.DisableStacktrace = true
	if !verbose {
		zapConfig.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	return zapConfig.Build()
}

// EntityType tags a log line with the entity type being synced.
func EntityType(name string) zap.Field {
	return zap.String(EntityTypeKey, name)
}

// TaskUID tags a log line with a remote task uid.
func TaskUID(uid int64) zap.Field {
	return zap.Int64(TaskUIDKey, uid)
}
