package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// ServerConfig captures all tunable parameters for the server process.
// Values load from environment variables (optionally a .env file) with
// defaults that let the binary run locally without external services.
type ServerConfig struct {
	HTTPAddr        string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	RedisAddr     string
	RedisPassword string
	RedisGeoKey   string

	KafkaBrokers []string
	KafkaTopic   string

	PGDSN string

	JWTSecret string

	TrackerInterval time.Duration
	PatrolInterval  time.Duration
	LockTTL         time.Duration

	MinMoveMeters float64
	MaxMoveMeters float64

	PatrolStepMin  float64
	PatrolStepMax  float64
	PatrolMoveProb float64
	PatrolBBox     [4]float64 // minLat, minLon, maxLat, maxLon

	OSRMEndpoint string

	LogLevel      string
	RunMigrations bool
}

func defaultServerConfig() ServerConfig {
	return ServerConfig{
		HTTPAddr:        ":8080",
		ReadTimeout:     5 * time.Second,
		WriteTimeout:    10 * time.Second,
		IdleTimeout:     120 * time.Second,
		ShutdownTimeout: 15 * time.Second,
		RedisGeoKey:     "vehicles_geo",
		KafkaTopic:      "vehicle-positions",
		JWTSecret:       "dev-secret",
		TrackerInterval: 5 * time.Second,
		PatrolInterval:  2 * time.Second,
		LockTTL:         15 * time.Second,
		MinMoveMeters:   1,
		MaxMoveMeters:   2000,
		PatrolStepMin:   40,
		PatrolStepMax:   60,
		PatrolMoveProb:  0.9,
		PatrolBBox:      [4]float64{45.22, 19.76, 45.30, 19.88},
		OSRMEndpoint:    "http://localhost:5000",
		LogLevel:        "info",
	}
}

// LoadServerConfig reads a .env file when present, then the environment.
func LoadServerConfig() (ServerConfig, error) {
	_ = godotenv.Load()

	cfg := defaultServerConfig()
	var errs []error

	setStringFromEnv(&cfg.HTTPAddr, "HTTP_ADDR")
	setDurationFromEnv(&cfg.ReadTimeout, "HTTP_READ_TIMEOUT", &errs)
	setDurationFromEnv(&cfg.WriteTimeout, "HTTP_WRITE_TIMEOUT", &errs)
	setDurationFromEnv(&cfg.IdleTimeout, "HTTP_IDLE_TIMEOUT", &errs)
	setDurationFromEnv(&cfg.ShutdownTimeout, "HTTP_SHUTDOWN_TIMEOUT", &errs)

	cfg.RedisAddr = strings.TrimSpace(os.Getenv("REDIS_ADDR"))
	cfg.RedisPassword = os.Getenv("REDIS_PASSWORD")
	setStringFromEnv(&cfg.RedisGeoKey, "REDIS_GEO_KEY")

	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		cfg.KafkaBrokers = splitAndTrim(brokers)
	}
	setStringFromEnv(&cfg.KafkaTopic, "KAFKA_TOPIC")

	cfg.PGDSN = os.Getenv("PG_DSN")
	setStringFromEnv(&cfg.JWTSecret, "JWT_SECRET")

	setDurationFromEnv(&cfg.TrackerInterval, "TRACKER_INTERVAL", &errs)
	setDurationFromEnv(&cfg.PatrolInterval, "PATROL_INTERVAL", &errs)
	setDurationFromEnv(&cfg.LockTTL, "LOCK_TTL", &errs)

	setFloatFromEnv(&cfg.MinMoveMeters, "MIN_MOVE_METERS", &errs)
	setFloatFromEnv(&cfg.MaxMoveMeters, "MAX_MOVE_METERS", &errs)
	setFloatFromEnv(&cfg.PatrolStepMin, "PATROL_STEP_MIN", &errs)
	setFloatFromEnv(&cfg.PatrolStepMax, "PATROL_STEP_MAX", &errs)
	setFloatFromEnv(&cfg.PatrolMoveProb, "PATROL_MOVE_PROB", &errs)

	if box := os.Getenv("PATROL_BBOX"); box != "" {
		parts := splitAndTrim(box)
		if len(parts) != 4 {
			errs = append(errs, fmt.Errorf("PATROL_BBOX needs 4 comma-separated values"))
		} else {
			for i, p := range parts {
				f, err := strconv.ParseFloat(p, 64)
				if err != nil {
					errs = append(errs, fmt.Errorf("invalid PATROL_BBOX: %w", err))
					break
				}
				cfg.PatrolBBox[i] = f
			}
		}
	}

	setStringFromEnv(&cfg.OSRMEndpoint, "OSRM_ENDPOINT")

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = strings.ToLower(v)
	}
	cfg.RunMigrations = strings.EqualFold(os.Getenv("MIGRATE"), "true")

	if cfg.MinMoveMeters < 0 {
		errs = append(errs, fmt.Errorf("MIN_MOVE_METERS must be >= 0"))
	}
	if cfg.MaxMoveMeters <= cfg.MinMoveMeters {
		errs = append(errs, fmt.Errorf("MAX_MOVE_METERS must exceed MIN_MOVE_METERS"))
	}
	if cfg.PatrolStepMax < cfg.PatrolStepMin {
		errs = append(errs, fmt.Errorf("PATROL_STEP_MAX must be >= PATROL_STEP_MIN"))
	}
	if cfg.PatrolMoveProb < 0 || cfg.PatrolMoveProb > 1 {
		errs = append(errs, fmt.Errorf("PATROL_MOVE_PROB must be in [0,1]"))
	}
	if cfg.LockTTL <= 0 {
		errs = append(errs, fmt.Errorf("LOCK_TTL must be > 0"))
	}

	return cfg, errors.Join(errs...)
}

func setDurationFromEnv(target *time.Duration, key string, errs *[]error) {
	if v := os.Getenv(key); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
			return
		}
		*target = d
	}
}

func setFloatFromEnv(target *float64, key string, errs *[]error) {
	if v := os.Getenv(key); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
			return
		}
		*target = f
	}
}

func setStringFromEnv(target *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*target = v
	}
}

func splitAndTrim(v string) []string {
	raw := strings.Split(v, ",")
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		r = strings.TrimSpace(r)
		if r == "" {
			continue
		}
		out = append(out, r)
	}
	return out
}
