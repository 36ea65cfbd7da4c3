package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	DBDriverPostgres = "postgres"
	DBDriverSQLite   = "sqlite"
)

// Config is centralized process configuration.
// Keep infra values here and pass typed config into builders.
type Config struct {
	ServiceName string
	HTTPPort    string

	DBDriver    string
	PostgresDSN string
	SQLitePath  string
	AutoMigrate bool

	MembershipBaseURL    string
	MembershipMaxRetries int
	OpenEligibility      bool
	EligibilityTimeout   time.Duration
	PersistenceTimeout   time.Duration
	ResultsCacheSize     int
	WorkerPollInterval   time.Duration
	OutboxBatchSize      int
	CORSAllowedOrigins   []string
	EnableScheduler      bool
	EnableTallyConsumer  bool
	EnableSwagger        bool
}

// Load reads configuration from the environment. A .env file in the working
// directory, when present, fills variables that are not already set.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, err
	}

	service := os.Getenv("SERVICE_NAME")
	if service == "" {
		service = "guildhall"
	}

	port := os.Getenv("HTTP_PORT")
	if port == "" {
		port = "8080"
	}

	driver := strings.ToLower(strings.TrimSpace(os.Getenv("DB_DRIVER")))
	if driver == "" {
		driver = DBDriverPostgres
	}
	if driver != DBDriverPostgres && driver != DBDriverSQLite {
		return Config{}, errors.New("DB_DRIVER must be postgres or sqlite")
	}

	sqlitePath := strings.TrimSpace(os.Getenv("SQLITE_PATH"))
	if sqlitePath == "" {
		sqlitePath = "guildhall.db"
	}

	var origins []string
	for _, value := range strings.Split(os.Getenv("CORS_ALLOWED_ORIGINS"), ",") {
		value = strings.TrimSpace(value)
		if value != "" {
			origins = append(origins, value)
		}
	}

	return Config{
		ServiceName: service,
		HTTPPort:    port,

		DBDriver:    driver,
		PostgresDSN: os.Getenv("POSTGRES_DSN"),
		SQLitePath:  sqlitePath,
		AutoMigrate: envBool("DB_AUTO_MIGRATE", driver == DBDriverSQLite),

		MembershipBaseURL:    strings.TrimSpace(os.Getenv("MEMBERSHIP_BASE_URL")),
		MembershipMaxRetries: envInt("MEMBERSHIP_MAX_RETRIES", 2),
		OpenEligibility:      envBool("OPEN_ELIGIBILITY", false),
		EligibilityTimeout:   envDuration("ELIGIBILITY_TIMEOUT", 2*time.Second),
		PersistenceTimeout:   envDuration("PERSISTENCE_TIMEOUT", 5*time.Second),
		ResultsCacheSize:     envInt("RESULTS_CACHE_SIZE", 256),
		WorkerPollInterval:   envDuration("WORKER_POLL_INTERVAL", 2*time.Second),
		OutboxBatchSize:      envInt("OUTBOX_BATCH_SIZE", 100),
		CORSAllowedOrigins:   origins,
		EnableScheduler:      envBool("ENABLE_ELECTION_SCHEDULER", true),
		EnableTallyConsumer:  envBool("ENABLE_TALLY_CONSUMER", true),
		EnableSwagger:        envBool("ENABLE_SWAGGER", true),
	}, nil
}

func envBool(name string, fallback bool) bool {
	raw := strings.TrimSpace(strings.ToLower(os.Getenv(name)))
	if raw == "" {
		return fallback
	}
	switch raw {
	case "1", "true", "t", "yes", "y", "on":
		return true
	case "0", "false", "f", "no", "n", "off":
		return false
	default:
		return fallback
	}
}

func envInt(name string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 0 {
		return fallback
	}
	return value
}

func envDuration(name string, fallback time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return fallback
	}
	value, err := time.ParseDuration(raw)
	if err != nil || value <= 0 {
		return fallback
	}
	return value
}
