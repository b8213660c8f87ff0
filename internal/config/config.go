// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package config loads the service configuration from a YAML file, command
// line flags and the DATABASE_URL environment variable.
package config

import (
	"errors"
	"net/url"
	"os"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"

	"github.com/holomush/adminauth/internal/auth"
	"github.com/holomush/adminauth/internal/notify"
	"github.com/holomush/adminauth/internal/store"
)

// Notification drivers.
const (
	DriverLog  = "log"
	DriverSES  = "ses"
	DriverSMTP = "smtp"
	DriverAMQP = "amqp"
)

// Config is the complete service configuration.
type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Log      LogConfig      `koanf:"log"`
	Database DatabaseConfig `koanf:"database"`
	Reset    ResetConfig    `koanf:"reset"`
	Redis    RedisConfig    `koanf:"redis"`
	Hasher   HasherConfig   `koanf:"hasher"`
	Notify   NotifyConfig   `koanf:"notify"`
}

// ServerConfig configures the HTTP listeners.
type ServerConfig struct {
	HTTPAddr           string        `koanf:"http_addr"`
	MetricsAddr        string        `koanf:"metrics_addr"`
	PublicURL          string        `koanf:"public_url"`
	CORSAllowedOrigins []string      `koanf:"cors_allowed_origins"`
	ShutdownTimeout    time.Duration `koanf:"shutdown_timeout"`
}

// LogConfig configures slog output.
type LogConfig struct {
	Format string `koanf:"format"`
	Level  string `koanf:"level"`
}

// DatabaseConfig configures the PostgreSQL pool.
type DatabaseConfig struct {
	URL             string `koanf:"url"`
	AutoMigrate     bool   `koanf:"auto_migrate"`
	ConnectAttempts uint64 `koanf:"connect_attempts"`
	MaxConns        int32  `koanf:"max_conns"`
}

// ResetConfig configures the password reset policy.
type ResetConfig struct {
	TokenTTL            time.Duration `koanf:"token_ttl"`
	ConcealUnknownEmail bool          `koanf:"conceal_unknown_email"`
	ExposeLink          bool          `koanf:"expose_link"`
	IssueLimit          int           `koanf:"issue_limit"`
	IssueWindow         time.Duration `koanf:"issue_window"`
	PurgeInterval       time.Duration `koanf:"purge_interval"`
}

// RedisConfig configures the issuance throttle. An empty URL disables it.
type RedisConfig struct {
	URL string `koanf:"url"`
}

// HasherConfig tunes argon2id.
type HasherConfig struct {
	Memory  uint32 `koanf:"memory"`
	Time    uint32 `koanf:"time"`
	Threads uint8  `koanf:"threads"`
}

// NotifyConfig selects and configures the notification sender.
type NotifyConfig struct {
	Driver        string        `koanf:"driver"`
	From          string        `koanf:"from"`
	FromName      string        `koanf:"from_name"`
	Workers       int           `koanf:"workers"`
	QueueSize     int           `koanf:"queue_size"`
	SendTimeout   time.Duration `koanf:"send_timeout"`
	TemplatesFile string        `koanf:"templates_file"`
	SES           SESConfig     `koanf:"ses"`
	SMTP          SMTPConfig    `koanf:"smtp"`
	AMQP          AMQPConfig    `koanf:"amqp"`
}

// SESConfig configures Amazon SES delivery.
type SESConfig struct {
	Region    string `koanf:"region"`
	AccessKey string `koanf:"access_key"`
	SecretKey string `koanf:"secret_key"`
	Attempts  uint64 `koanf:"attempts"`
}

// SMTPConfig configures SMTP delivery.
type SMTPConfig struct {
	Host     string `koanf:"host"`
	Port     int    `koanf:"port"`
	Username string `koanf:"username"`
	Password string `koanf:"password"`
}

// AMQPConfig configures hand-off to an external mailer over AMQP.
type AMQPConfig struct {
	URL        string `koanf:"url"`
	Exchange   string `koanf:"exchange"`
	RoutingKey string `koanf:"routing_key"`
}

// Default returns the built-in configuration.
func Default() Config {
	argon := auth.DefaultArgon2Params()
	return Config{
		Server: ServerConfig{
			HTTPAddr:        ":8080",
			MetricsAddr:     "127.0.0.1:9100",
			PublicURL:       "http://localhost:8080",
			ShutdownTimeout: 10 * time.Second,
		},
		Log: LogConfig{Format: "json", Level: "info"},
		Database: DatabaseConfig{
			ConnectAttempts: 5,
			MaxConns:        10,
		},
		Reset: ResetConfig{
			TokenTTL:      auth.ResetTokenExpiry,
			ExposeLink:    true,
			IssueLimit:    auth.DefaultIssueLimit,
			IssueWindow:   auth.DefaultIssueWindow,
			PurgeInterval: auth.DefaultPurgeInterval,
		},
		Hasher: HasherConfig{Memory: argon.Memory, Time: argon.Time, Threads: argon.Threads},
		Notify: NotifyConfig{
			Driver:      DriverLog,
			FromName:    "Admin Console",
			Workers:     notify.DefaultWorkers,
			QueueSize:   notify.DefaultQueueSize,
			SendTimeout: notify.DefaultSendTimeout,
			SES:         SESConfig{Attempts: 3},
			SMTP:        SMTPConfig{Port: 587},
			AMQP:        AMQPConfig{Exchange: "mail", RoutingKey: "mail.outbound"},
		},
	}
}

// flagKeys maps command line flags to configuration keys.
var flagKeys = map[string]string{
	"http-addr":             "server.http_addr",
	"metrics-addr":          "server.metrics_addr",
	"public-url":            "server.public_url",
	"log-format":            "log.format",
	"log-level":             "log.level",
	"database-url":          "database.url",
	"auto-migrate":          "database.auto_migrate",
	"reset-token-ttl":       "reset.token_ttl",
	"conceal-unknown-email": "reset.conceal_unknown_email",
	"expose-reset-link":     "reset.expose_link",
	"redis-url":             "redis.url",
	"notify-driver":         "notify.driver",
}

// BindFlags registers the configuration flags on fs with their defaults.
func BindFlags(fs *pflag.FlagSet) {
	d := Default()
	fs.String("http-addr", d.Server.HTTPAddr, "API listen address")
	fs.String("metrics-addr", d.Server.MetricsAddr, "metrics/health HTTP address (empty = disabled)")
	fs.String("public-url", d.Server.PublicURL, "externally visible base URL for reset links")
	fs.String("log-format", d.Log.Format, "log format (json or text)")
	fs.String("log-level", d.Log.Level, "log level (debug, info, warn, error)")
	fs.String("database-url", "", "PostgreSQL URL (default: $DATABASE_URL)")
	fs.Bool("auto-migrate", d.Database.AutoMigrate, "apply pending migrations at startup")
	fs.Duration("reset-token-ttl", d.Reset.TokenTTL, "how long reset tokens stay redeemable")
	fs.Bool("conceal-unknown-email", d.Reset.ConcealUnknownEmail, "report success for reset requests to unknown emails")
	fs.Bool("expose-reset-link", d.Reset.ExposeLink, "include the reset link in forgot-password responses")
	fs.String("redis-url", "", "Redis URL for the reset issuance throttle (empty = disabled)")
	fs.String("notify-driver", d.Notify.Driver, "notification driver (log, ses, smtp, amqp)")
}

// Load builds the configuration. Sources apply in order: defaults, the YAML
// file at path (if non-empty), flags in fs that were set explicitly, then
// DATABASE_URL when no database URL was given.
func Load(path string, fs *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").With("path", path).Wrap(err)
		}
	}

	if fs != nil {
		provider := posflag.ProviderWithFlag(fs, ".", k, func(f *pflag.Flag) (string, any) {
			key, ok := flagKeys[f.Name]
			if !ok {
				return "", nil
			}
			return key, flagValue(f)
		})
		if err := k.Load(provider, nil); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").With("source", "flags").Wrap(err)
		}
	}

	cfg := Default()
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, oops.Code("CONFIG_DECODE_FAILED").Wrap(err)
	}
	if cfg.Database.URL == "" {
		cfg.Database.URL = os.Getenv("DATABASE_URL")
	}
	return &cfg, nil
}

func flagValue(f *pflag.Flag) any {
	if sv, ok := f.Value.(pflag.SliceValue); ok {
		return sv.GetSlice()
	}
	return f.Value.String()
}

// Validate rejects inconsistent settings.
func (c *Config) Validate() error {
	errs := validation.Errors{
		"server.http_addr":        validation.Validate(c.Server.HTTPAddr, validation.Required),
		"server.public_url":       validation.Validate(c.Server.PublicURL, validation.Required, validation.By(absoluteURL)),
		"server.shutdown_timeout": validation.Validate(c.Server.ShutdownTimeout, validation.Min(time.Second)),
		"log.format":              validation.Validate(c.Log.Format, validation.Required, validation.In("json", "text")),
		"log.level":               validation.Validate(c.Log.Level, validation.In("debug", "info", "warn", "error")),
		"database.url":            validation.Validate(c.Database.URL, validation.Required),
		"database.max_conns":      validation.Validate(c.Database.MaxConns, validation.Min(int32(1))),
		"reset.token_ttl":         validation.Validate(c.Reset.TokenTTL, validation.Min(time.Minute)),
		"reset.issue_limit":       validation.Validate(c.Reset.IssueLimit, validation.Min(0)),
		"reset.issue_window":      validation.Validate(c.Reset.IssueWindow, validation.Min(time.Second)),
		"reset.purge_interval":    validation.Validate(c.Reset.PurgeInterval, validation.Min(time.Second)),
		"redis.url":               validation.Validate(c.Redis.URL, validation.By(absoluteURL)),
		"hasher":                  c.Argon2Params().Validate(),
		"notify.driver":           validation.Validate(c.Notify.Driver, validation.Required, validation.In(DriverLog, DriverSES, DriverSMTP, DriverAMQP)),
		"notify.workers":          validation.Validate(c.Notify.Workers, validation.Min(1)),
		"notify.queue_size":       validation.Validate(c.Notify.QueueSize, validation.Min(1)),
	}

	switch c.Notify.Driver {
	case DriverSES:
		errs["notify.from"] = validation.Validate(c.Notify.From, validation.Required)
		errs["notify.ses.region"] = validation.Validate(c.Notify.SES.Region, validation.Required)
	case DriverSMTP:
		errs["notify.from"] = validation.Validate(c.Notify.From, validation.Required)
		errs["notify.smtp.host"] = validation.Validate(c.Notify.SMTP.Host, validation.Required)
		errs["notify.smtp.port"] = validation.Validate(c.Notify.SMTP.Port, validation.Required, validation.Max(65535))
	case DriverAMQP:
		errs["notify.amqp.url"] = validation.Validate(c.Notify.AMQP.URL, validation.Required, validation.By(absoluteURL))
		errs["notify.amqp.routing_key"] = validation.Validate(c.Notify.AMQP.RoutingKey, validation.Required)
	}

	if err := errs.Filter(); err != nil {
		return oops.Code("CONFIG_INVALID").Wrap(err)
	}
	return nil
}

func absoluteURL(value any) error {
	s, _ := value.(string)
	if s == "" {
		return nil
	}
	u, err := url.Parse(s)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return errors.New("must be an absolute URL")
	}
	return nil
}

// AuthConfig returns the credential service policy.
func (c *Config) AuthConfig() auth.Config {
	return auth.Config{
		ResetTokenTTL:       c.Reset.TokenTTL,
		ConcealUnknownEmail: c.Reset.ConcealUnknownEmail,
		PublicURL:           c.Server.PublicURL,
		IssueLimit:          auth.IssueLimit{Max: c.Reset.IssueLimit, Window: c.Reset.IssueWindow},
	}
}

// Argon2Params returns the hasher parameters, keeping the default salt and
// key lengths.
func (c *Config) Argon2Params() auth.Argon2Params {
	p := auth.DefaultArgon2Params()
	p.Memory = c.Hasher.Memory
	p.Time = c.Hasher.Time
	p.Threads = c.Hasher.Threads
	return p
}

// PoolConfig returns the database pool settings.
func (c *Config) PoolConfig() store.PoolConfig {
	return store.PoolConfig{
		URL:             c.Database.URL,
		MaxConns:        c.Database.MaxConns,
		ConnectTimeout:  5 * time.Second,
		ConnectAttempts: c.Database.ConnectAttempts,
	}
}

// DispatcherConfig returns the notification worker pool settings.
func (c *Config) DispatcherConfig() notify.DispatcherConfig {
	return notify.DispatcherConfig{
		Workers:     c.Notify.Workers,
		QueueSize:   c.Notify.QueueSize,
		SendTimeout: c.Notify.SendTimeout,
	}
}
