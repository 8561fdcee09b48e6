package config

import (
	"Safii/pkg/logger"
	"Safii/pkg/notification"
	"Safii/pkg/util"
	"log"
	"os"
	"time"
)

type Config struct {
	Addr      string `env:"ADDR"`
	Mode      string `env:"MODE"`
	APIPrefix string `env:"API_PREFIX"`

	DBDriver string `env:"DB_DRIVER"`
	DSN      string `env:"DSN"`

	SessionSecret string `env:"SESSION_SECRET"`

	Log  logger.LogConfig
	Push notification.ExpoPushConfig
	SMS  notification.SMSConfig

	CacheType     string `env:"CACHE_TYPE"`
	RedisAddr     string `env:"REDIS_ADDR"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB"`

	RateLimit string `env:"RATE_LIMIT"` // e.g. "100-M"

	// Alert lifecycle tuning. GraceThreshold must stay positive so a session
	// is observably missed before it is declared an emergency.
	GraceThreshold   time.Duration `env:"GRACE_THRESHOLD_SECONDS"`
	LivenessSweep    time.Duration `env:"LIVENESS_SWEEP_SECONDS"`
	ReminderSchedule string        `env:"REMINDER_SCHEDULE"` // cron expression
	ReminderInterval time.Duration `env:"REMINDER_INTERVAL_SECONDS"`
	MaxNotifications int           `env:"MAX_NOTIFICATIONS"`
}

var GlobalConfig *Config

func Load() error {
	env := os.Getenv("APP_ENV")
	if env == "" {
		env = "development"
	}
	if err := util.LoadEnv(env); err != nil {
		log.Printf("Failed to load .env file: %v", err)
	}

	GlobalConfig = &Config{
		Addr:          util.GetEnvDefault("ADDR", ":8080"),
		Mode:          util.GetEnv("MODE"),
		APIPrefix:     util.GetEnvDefault("API_PREFIX", "/api/v1"),
		DBDriver:      util.GetEnv("DB_DRIVER"),
		DSN:           util.GetEnv("DSN"),
		SessionSecret: util.GetEnvDefault("SESSION_SECRET", "safii-dev-secret"),
		Log: logger.LogConfig{
			Level:      util.GetEnv("LOG_LEVEL"),
			Filename:   util.GetEnv("LOG_FILENAME"),
			MaxSize:    int(util.GetIntEnv("LOG_MAX_SIZE")),
			MaxAge:     int(util.GetIntEnv("LOG_MAX_AGE")),
			MaxBackups: int(util.GetIntEnv("LOG_MAX_BACKUPS")),
		},
		Push: notification.ExpoPushConfig{
			Endpoint:  util.GetEnvDefault("EXPO_PUSH_URL", notification.DefaultExpoPushURL),
			Sound:     util.GetEnvDefault("PUSH_SOUND", "safii_alert.wav"),
			ChannelID: util.GetEnvDefault("PUSH_CHANNEL", "safii_alert_channel"),
		},
		SMS: notification.SMSConfig{
			SignName:     util.GetEnv("SMS_SIGN_NAME"),
			TemplateCode: util.GetEnv("SMS_TEMPLATE_CODE"),
		},
		CacheType:        util.GetEnvDefault("CACHE_TYPE", "local"),
		RedisAddr:        util.GetEnv("REDIS_ADDR"),
		RedisPassword:    util.GetEnv("REDIS_PASSWORD"),
		RedisDB:          int(util.GetIntEnv("REDIS_DB")),
		RateLimit:        util.GetEnvDefault("RATE_LIMIT", "100-M"),
		GraceThreshold:   util.GetDurationEnv("GRACE_THRESHOLD_SECONDS", 30*time.Second),
		LivenessSweep:    util.GetDurationEnv("LIVENESS_SWEEP_SECONDS", 5*time.Second),
		ReminderSchedule: util.GetEnvDefault("REMINDER_SCHEDULE", "*/15 * * * *"),
		ReminderInterval: util.GetDurationEnv("REMINDER_INTERVAL_SECONDS", 15*time.Minute),
		MaxNotifications: int(util.GetIntEnv("MAX_NOTIFICATIONS")),
	}
	if GlobalConfig.MaxNotifications <= 0 {
		GlobalConfig.MaxNotifications = 3
	}
	return nil
}
