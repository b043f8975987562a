package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

const (
	EnvPrefix = "CART_LOCAL"

	BackendMemory = "memory"
	BackendRedis  = "redis"
	BackendMongo  = "mongo"
)

type Config struct {
	App     AppConfig
	HTTP    HTTPConfig
	Storage StorageConfig
	Redis   RedisConfig
	Mongo   MongoConfig
	Sync    SyncConfig
}

type AppConfig struct {
	Env      string `envconfig:"CART_LOCAL_APP_ENV" default:"development"`
	LogLevel string `envconfig:"CART_LOCAL_APP_LOG_LEVEL" default:"info"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, "development") || strings.EqualFold(a.Env, "dev")
}

type HTTPConfig struct {
	Port               string        `envconfig:"CART_LOCAL_HTTP_PORT" default:"8081"`
	RequestTimeout     time.Duration `envconfig:"CART_LOCAL_HTTP_REQUEST_TIMEOUT" default:"30s"`
	ShutdownTimeout    time.Duration `envconfig:"CART_LOCAL_HTTP_SHUTDOWN_TIMEOUT" default:"10s"`
	MaxRequestBodySize int64         `envconfig:"CART_LOCAL_HTTP_MAX_REQUEST_BODY_SIZE" default:"1048576"`
}

type StorageConfig struct {
	Backend string `envconfig:"CART_LOCAL_STORAGE_BACKEND" default:"memory"`
	Key     string `envconfig:"CART_LOCAL_STORAGE_KEY" default:"modatec_cart"`
	// MaxValueBytes emulates the browser storage quota; 0 disables the limit.
	MaxValueBytes int `envconfig:"CART_LOCAL_STORAGE_MAX_VALUE_BYTES" default:"5242880"`
}

type RedisConfig struct {
	Addr     string        `envconfig:"CART_LOCAL_REDIS_ADDR" default:"localhost:6379"`
	Password string        `envconfig:"CART_LOCAL_REDIS_PASSWORD"`
	DB       int           `envconfig:"CART_LOCAL_REDIS_DB" default:"0"`
	TTL      time.Duration `envconfig:"CART_LOCAL_REDIS_TTL" default:"0s"`
}

type MongoConfig struct {
	URI        string `envconfig:"CART_LOCAL_MONGO_URI" default:"mongodb://localhost:27017"`
	Database   string `envconfig:"CART_LOCAL_MONGO_DATABASE" default:"cartlocal"`
	Collection string `envconfig:"CART_LOCAL_MONGO_COLLECTION" default:"local_storage"`
}

type SyncConfig struct {
	BaseURL            string        `envconfig:"CART_LOCAL_SYNC_BASE_URL" default:"http://localhost:8080"`
	Path               string        `envconfig:"CART_LOCAL_SYNC_ENDPOINT_PATH" default:"/web/cart/sync"`
	Timeout            time.Duration `envconfig:"CART_LOCAL_SYNC_TIMEOUT" default:"10s"`
	AuthToken          string        `envconfig:"CART_LOCAL_SYNC_AUTH_TOKEN"`
	SessionCookie      string        `envconfig:"CART_LOCAL_SYNC_SESSION_COOKIE"`
	BreakerMaxFailures uint32        `envconfig:"CART_LOCAL_SYNC_BREAKER_MAX_FAILURES" default:"5"`
	BreakerOpenTimeout time.Duration `envconfig:"CART_LOCAL_SYNC_BREAKER_OPEN_TIMEOUT" default:"30s"`
}

// Load reads an optional dotenv file and then the CART_LOCAL_* environment.
// Variables are named after the section, e.g. CART_LOCAL_HTTP_PORT or CART_LOCAL_SYNC_BASE_URL.
func Load() (*Config, error) {
	if file := os.Getenv(EnvPrefix + "_CONFIG_FILE"); file != "" {
		if err := godotenv.Load(file); err != nil {
			return nil, fmt.Errorf("loading config file %q: %w", file, err)
		}
	} else {
		// a missing .env is normal outside local development
		_ = godotenv.Load()
	}

	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.Storage.Backend {
	case BackendMemory, BackendRedis, BackendMongo:
	default:
		return fmt.Errorf("unsupported storage backend %q", c.Storage.Backend)
	}
	if c.Storage.Key == "" {
		return fmt.Errorf("storage key must not be empty")
	}
	if c.Sync.BaseURL == "" {
		return fmt.Errorf("sync base URL must not be empty")
	}
	return nil
}
