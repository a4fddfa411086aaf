package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	Port     int
	LogLevel string
	Env      string

	// Database
	DBHost     string
	DBPort     int
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	// Redis (pass lock)
	RedisHost     string
	RedisPort     int
	RedisPassword string
	RedisDB       int

	// Mail
	AWSRegion    string
	SESFromEmail string
	SESFromName  string

	// Scheduler
	PassBudget     time.Duration // wall-clock ceiling for one pass
	BatchSize      int           // max trackers per pass
	SendDelay      time.Duration // pause between send attempts
	CatchUp        bool          // widen due window to include overdue slots
	SchedulerToken string        // shared secret for the run endpoint
	ScheduleCron   string        // optional in-process cron expression
}

// Load reads configuration from environment variables with sensible defaults
func Load() (*Config, error) {
	cfg := &Config{
		Port:     8080,
		LogLevel: "info",
		Env:      "development",

		DBHost:    "localhost",
		DBPort:    5432,
		DBUser:    "reviewloop",
		DBName:    "reviewloop",
		DBSSLMode: "disable",

		RedisHost: "localhost",
		RedisPort: 6379,

		AWSRegion:    "us-east-1",
		SESFromEmail: "reviews@reviewloop.local",
		SESFromName:  "ReviewLoop",

		PassBudget: 8000 * time.Millisecond,
		BatchSize:  10,
		SendDelay:  100 * time.Millisecond,
		CatchUp:    true,
	}

	if port := os.Getenv("PORT"); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			return nil, fmt.Errorf("invalid PORT: %w", err)
		}
		cfg.Port = p
	}

	if level := os.Getenv("LOG_LEVEL"); level != "" {
		cfg.LogLevel = level
	}

	if env := os.Getenv("ENV"); env != "" {
		cfg.Env = env
	}

	if host := os.Getenv("DB_HOST"); host != "" {
		cfg.DBHost = host
	}

	if port := os.Getenv("DB_PORT"); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			return nil, fmt.Errorf("invalid DB_PORT: %w", err)
		}
		cfg.DBPort = p
	}

	if user := os.Getenv("DB_USER"); user != "" {
		cfg.DBUser = user
	}

	if password := os.Getenv("DB_PASSWORD"); password != "" {
		cfg.DBPassword = password
	}

	if dbname := os.Getenv("DB_NAME"); dbname != "" {
		cfg.DBName = dbname
	}

	if sslmode := os.Getenv("DB_SSLMODE"); sslmode != "" {
		cfg.DBSSLMode = sslmode
	}

	if host := os.Getenv("REDIS_HOST"); host != "" {
		cfg.RedisHost = host
	}

	if port := os.Getenv("REDIS_PORT"); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			return nil, fmt.Errorf("invalid REDIS_PORT: %w", err)
		}
		cfg.RedisPort = p
	}

	if password := os.Getenv("REDIS_PASSWORD"); password != "" {
		cfg.RedisPassword = password
	}

	if db := os.Getenv("REDIS_DB"); db != "" {
		d, err := strconv.Atoi(db)
		if err != nil {
			return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
		}
		cfg.RedisDB = d
	}

	if region := os.Getenv("AWS_REGION"); region != "" {
		cfg.AWSRegion = region
	}

	if from := os.Getenv("SES_FROM_EMAIL"); from != "" {
		cfg.SESFromEmail = from
	}

	if name := os.Getenv("SES_FROM_NAME"); name != "" {
		cfg.SESFromName = name
	}

	if budget := os.Getenv("SCHEDULER_PASS_BUDGET_MS"); budget != "" {
		ms, err := strconv.Atoi(budget)
		if err != nil {
			return nil, fmt.Errorf("invalid SCHEDULER_PASS_BUDGET_MS: %w", err)
		}
		cfg.PassBudget = time.Duration(ms) * time.Millisecond
	}

	if size := os.Getenv("SCHEDULER_BATCH_SIZE"); size != "" {
		s, err := strconv.Atoi(size)
		if err != nil {
			return nil, fmt.Errorf("invalid SCHEDULER_BATCH_SIZE: %w", err)
		}
		cfg.BatchSize = s
	}

	if delay := os.Getenv("SCHEDULER_SEND_DELAY_MS"); delay != "" {
		ms, err := strconv.Atoi(delay)
		if err != nil {
			return nil, fmt.Errorf("invalid SCHEDULER_SEND_DELAY_MS: %w", err)
		}
		cfg.SendDelay = time.Duration(ms) * time.Millisecond
	}

	if catchUp := os.Getenv("SCHEDULER_CATCH_UP"); catchUp != "" {
		b, err := strconv.ParseBool(catchUp)
		if err != nil {
			return nil, fmt.Errorf("invalid SCHEDULER_CATCH_UP: %w", err)
		}
		cfg.CatchUp = b
	}

	if token := os.Getenv("SCHEDULER_TOKEN"); token != "" {
		cfg.SchedulerToken = token
	}

	if expr := os.Getenv("SCHEDULE_CRON"); expr != "" {
		cfg.ScheduleCron = expr
	}

	return cfg, nil
}
