// Package config loads application configuration from environment
// variables.  A .env file, when present, is loaded by the caller before
// Load runs.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
)

// Store drivers accepted in STORE_DRIVER.
const (
	DriverMySQL  = "mysql"
	DriverMongo  = "mongo"
	DriverMemory = "memory"
)

// Notification modes accepted in NOTIFY_MODE.
const (
	NotifySMTP  = "smtp"
	NotifyQueue = "queue"
	NotifyLog   = "log"
)

// Config holds all runtime configuration values.
type Config struct {
	Env         string // application environment (e.g. "dev", "prod")
	Port        string // HTTP port to listen on
	JWTSecret   string // secret used to verify staff JWTs
	StoreDriver string // one of DriverMySQL, DriverMongo, DriverMemory

	DB    DBConfig
	Mongo MongoConfig
	SMTP  SMTPConfig
	Queue QueueConfig

	NotifyMode    string        // one of NotifySMTP, NotifyQueue, NotifyLog
	NotifyTimeout time.Duration // upper bound for one confirmation send
	// PublicBaseURL prefixes links to check-in code images in confirmations.
	PublicBaseURL string
}

// DBConfig holds the MySQL connection settings.
type DBConfig struct {
	User string
	Pass string
	Host string
	Port string
	Name string
}

// MongoConfig holds the MongoDB connection settings.  Transactions
// requires a replica set.
type MongoConfig struct {
	URI          string
	Database     string
	Transactions bool
}

// SMTPConfig holds the outgoing mail settings used by the mailer.
type SMTPConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	From     string
}

// QueueConfig holds the RabbitMQ settings for queued confirmations.
type QueueConfig struct {
	URL             string
	Name            string
	ConsumerEnabled bool
}

// Load reads configuration values from environment variables.  Required
// variables depend on the selected store driver and notification mode;
// every missing or malformed one is reported in the returned error.
func Load() (Config, error) {
	var req required
	cfg := Config{
		Env:           req.must("APP_ENV"),
		Port:          req.must("APP_PORT"),
		JWTSecret:     req.must("JWT_SECRET"),
		StoreDriver:   strings.ToLower(envStr("STORE_DRIVER", DriverMySQL)),
		NotifyMode:    strings.ToLower(envStr("NOTIFY_MODE", NotifyLog)),
		NotifyTimeout: envDur("NOTIFY_TIMEOUT", 10*time.Second),
		PublicBaseURL: strings.TrimRight(envStr("PUBLIC_BASE_URL", ""), "/"),
		Queue: QueueConfig{
			URL:             envStr("RABBITMQ_URL", ""),
			Name:            envStr("NOTIFY_QUEUE", "registration.confirmed"),
			ConsumerEnabled: envBool("QUEUE_CONSUMER", false),
		},
	}

	switch cfg.StoreDriver {
	case DriverMySQL:
		cfg.DB = DBConfig{
			User: req.must("DB_USER"),
			Pass: os.Getenv("DB_PASS"),
			Host: req.must("DB_HOST"),
			Port: req.must("DB_PORT"),
			Name: req.must("DB_NAME"),
		}
	case DriverMongo:
		cfg.Mongo = MongoConfig{
			URI:          req.must("MONGODB_URI"),
			Database:     envStr("MONGODB_DATABASE", "event_checkin"),
			Transactions: envBool("MONGODB_TRANSACTIONS", false),
		}
	case DriverMemory:
	default:
		req.problems = append(req.problems, fmt.Sprintf("unknown STORE_DRIVER %q", cfg.StoreDriver))
	}

	smtpNeeded := cfg.NotifyMode == NotifySMTP || cfg.Queue.ConsumerEnabled
	if smtpNeeded {
		cfg.SMTP = SMTPConfig{
			Host:     req.must("SMTP_HOST"),
			Port:     req.mustInt("SMTP_PORT"),
			User:     os.Getenv("SMTP_USER"),
			Password: os.Getenv("SMTP_PASS"),
			From:     req.must("SMTP_FROM"),
		}
	}

	switch cfg.NotifyMode {
	case NotifySMTP, NotifyLog:
	case NotifyQueue:
		cfg.Queue.URL = req.must("RABBITMQ_URL")
	default:
		req.problems = append(req.problems, fmt.Sprintf("unknown NOTIFY_MODE %q", cfg.NotifyMode))
	}
	if cfg.Queue.ConsumerEnabled {
		cfg.Queue.URL = req.must("RABBITMQ_URL")
	}

	if len(req.problems) > 0 {
		return Config{}, errors.New("config: " + strings.Join(req.problems, "; "))
	}
	return cfg, nil
}

// IsProd reports whether the application runs in production.
func (c Config) IsProd() bool {
	return c.Env == "prod" || c.Env == "production"
}
