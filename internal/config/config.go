package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

type SMTPConfig struct {
	Host     string
	Port     string
	Username string
	Password string
	Sender   string
}

type SchedulerConfig struct {
	TickSpec            string
	TickTimeout         time.Duration
	ChannelTimeout      time.Duration
	PlanningHorizon     time.Duration
	DueBatchSize        int
	DispatchConcurrency int
	GuardAlertThreshold int
	ExplicitEmailWindow time.Duration
	OffsetEmailWindow   time.Duration
	CleanupSpec         string
	CleanupAfterDays    int
	StreakSweepSpec     string
}

type Config struct {
	Port        string
	JWTSecret   string
	StoreDriver string
	MongoURI    string
	DBName      string
	SQLitePath  string
	AppURL      string
	Timezone    string
	LogLevel    string
	LogFile     string
	CORSOrigins []string

	StreakResetOnRead bool

	SMTP      SMTPConfig
	Scheduler SchedulerConfig
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("PORT", "8080")
	v.SetDefault("STORE_DRIVER", "mongo")
	v.SetDefault("MONGO_URI", "mongodb://localhost:27017")
	v.SetDefault("DB_NAME", "taskreminder")
	v.SetDefault("SQLITE_PATH", "taskreminder.db")
	v.SetDefault("APP_URL", "http://localhost:5000")
	v.SetDefault("TIMEZONE", "UTC")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("STREAK_RESET_ON_READ", true)
	v.SetDefault("SMTP_PORT", "587")

	v.SetDefault("TICK_SPEC", "@every 1m")
	v.SetDefault("TICK_TIMEOUT", "50s")
	v.SetDefault("CHANNEL_TIMEOUT", "10s")
	v.SetDefault("PLANNING_HORIZON", "168h")
	v.SetDefault("DUE_BATCH_SIZE", 500)
	v.SetDefault("DISPATCH_CONCURRENCY", 8)
	v.SetDefault("GUARD_ALERT_THRESHOLD", 3)
	v.SetDefault("EXPLICIT_EMAIL_WINDOW", "1m")
	v.SetDefault("OFFSET_EMAIL_WINDOW", "15m")
	v.SetDefault("CLEANUP_SPEC", "0 3 * * *")
	v.SetDefault("CLEANUP_AFTER_DAYS", 30)
	v.SetDefault("STREAK_SWEEP_SPEC", "5 0 * * *")
}

// LoadConfig reads .env (if present) and the process environment.
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		logrus.Debug("No .env file found, using environment")
	}

	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()
	return fromViper(v)
}

func fromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		Port:              v.GetString("PORT"),
		JWTSecret:         v.GetString("JWT_SECRET"),
		StoreDriver:       strings.ToLower(v.GetString("STORE_DRIVER")),
		MongoURI:          v.GetString("MONGO_URI"),
		DBName:            v.GetString("DB_NAME"),
		SQLitePath:        v.GetString("SQLITE_PATH"),
		AppURL:            v.GetString("APP_URL"),
		Timezone:          v.GetString("TIMEZONE"),
		LogLevel:          v.GetString("LOG_LEVEL"),
		LogFile:           v.GetString("LOG_FILE"),
		StreakResetOnRead: v.GetBool("STREAK_RESET_ON_READ"),
		SMTP: SMTPConfig{
			Host:     v.GetString("SMTP_HOST"),
			Port:     v.GetString("SMTP_PORT"),
			Username: v.GetString("SMTP_USERNAME"),
			Password: v.GetString("SMTP_PASSWORD"),
			Sender:   v.GetString("SMTP_SENDER"),
		},
		Scheduler: SchedulerConfig{
			TickSpec:            v.GetString("TICK_SPEC"),
			TickTimeout:         v.GetDuration("TICK_TIMEOUT"),
			ChannelTimeout:      v.GetDuration("CHANNEL_TIMEOUT"),
			PlanningHorizon:     v.GetDuration("PLANNING_HORIZON"),
			DueBatchSize:        v.GetInt("DUE_BATCH_SIZE"),
			DispatchConcurrency: v.GetInt("DISPATCH_CONCURRENCY"),
			GuardAlertThreshold: v.GetInt("GUARD_ALERT_THRESHOLD"),
			ExplicitEmailWindow: v.GetDuration("EXPLICIT_EMAIL_WINDOW"),
			OffsetEmailWindow:   v.GetDuration("OFFSET_EMAIL_WINDOW"),
			CleanupSpec:         v.GetString("CLEANUP_SPEC"),
			CleanupAfterDays:    v.GetInt("CLEANUP_AFTER_DAYS"),
			StreakSweepSpec:     v.GetString("STREAK_SWEEP_SPEC"),
		},
	}

	for _, origin := range strings.Split(v.GetString("CORS_ORIGINS"), ",") {
		if o := strings.TrimSpace(origin); o != "" {
			cfg.CORSOrigins = append(cfg.CORSOrigins, o)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	switch c.StoreDriver {
	case "mongo", "sqlite":
	default:
		return fmt.Errorf("unsupported STORE_DRIVER %q (want mongo or sqlite)", c.StoreDriver)
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("invalid TIMEZONE %q: %w", c.Timezone, err)
	}
	if c.Scheduler.ChannelTimeout <= 0 {
		return fmt.Errorf("CHANNEL_TIMEOUT must be positive")
	}
	if c.Scheduler.TickTimeout <= 0 {
		return fmt.Errorf("TICK_TIMEOUT must be positive")
	}
	if c.Scheduler.DispatchConcurrency < 1 {
		c.Scheduler.DispatchConcurrency = 1
	}
	return nil
}

// Location returns the zone streak days are computed in.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
