package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port        string
	JWTSecret   string
	MongoURI    string
	DBName      string
	SkipAuth    bool
	Environment string
	AppId       string
	CORSOrigins string

	// SyncScope is matched against IndexDefinition.Scope. Defaults to DBName.
	SyncScope     string
	RemoteTimeout time.Duration
	WebhookToken  string

	MeiliURL    string
	MeiliAPIKey string

	KardexDriver string // sqlserver, postgres or sqlite
	KardexDSN    string

	TargetMongoURI string
	TargetMongoDB  string

	OdooURL      string
	OdooDB       string
	OdooUser     string
	OdooPassword string

	PollSchedule string
	GCSchedule   string
	TaskGCMinAge time.Duration
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	} else {
		log.Println("Loaded .env file successfully")
	}

	dbName := getEnv("DB_NAME", "docsync")

	return &Config{
		Port:        getEnv("PORT", "8080"),
		JWTSecret:   getEnv("JWT_SECRET", "secret"),
		MongoURI:    getEnv("MONGO_URI", "mongodb://localhost:27017"),
		DBName:      dbName,
		SkipAuth:    getEnv("SKIP_AUTH", "false") == "true",
		Environment: getEnv("ENVIRONMENT", "development"),
		AppId:       getEnv("APP_ID", "docsync"),
		CORSOrigins: getEnv("CORS_ORIGINS", "http://localhost:3000"),

		SyncScope:     getEnv("SYNC_SCOPE", dbName),
		RemoteTimeout: getDuration("REMOTE_TIMEOUT", 10*time.Second),
		WebhookToken:  getEnv("WEBHOOK_TOKEN", ""),

		MeiliURL:    getEnv("MEILI_URL", ""),
		MeiliAPIKey: getEnv("MEILI_API_KEY", ""),

		KardexDriver: getEnv("KARDEX_DRIVER", "sqlserver"),
		KardexDSN:    getEnv("KARDEX_DSN", ""),

		TargetMongoURI: getEnv("TARGET_MONGO_URI", ""),
		TargetMongoDB:  getEnv("TARGET_MONGO_DB", ""),

		OdooURL:      getEnv("ODOO_URL", ""),
		OdooDB:       getEnv("ODOO_DB", ""),
		OdooUser:     getEnv("ODOO_USER", ""),
		OdooPassword: getEnv("ODOO_PASSWORD", ""),

		PollSchedule: getEnv("POLL_SCHEDULE", "@every 1m"),
		GCSchedule:   getEnv("GC_SCHEDULE", "@hourly"),
		TaskGCMinAge: getDuration("TASK_GC_MIN_AGE", time.Hour),
	}, nil
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

// getDuration accepts Go durations ("30s") or a plain number of seconds.
func getDuration(key string, fallback time.Duration) time.Duration {
	raw := getEnv(key, "")
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(raw); err == nil {
		return time.Duration(secs) * time.Second
	}
	log.Printf("Invalid duration for %s: %q, using %s", key, raw, fallback)
	return fallback
}
