package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Mode string

const (
	ModeOffline Mode = "offline"
	ModeOnline  Mode = "online"
)

const devSecret = "supersecret-dev-key"

type Config struct {
	Mode     Mode
	HTTPAddr string
	LogLevel string

	DBDriver string
	DBDSN    string

	AuthHMACSecret  string
	TokenTTL        time.Duration
	EnableLocalAuth bool
	EnableGuestAuth bool

	// bootstrap account created by serve when the users table is empty
	AdminUser     string
	AdminPassHash string // bcrypt

	CORSOrigins []string

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	LockTTL       time.Duration
	LockWait      time.Duration

	AMQPURL      string
	AMQPExchange string
	SiteID       string

	SeedFile   string
	ArchiveDir string // imported case packs are kept here when set

	DiagnosisOptionTotal   int
	TreatmentOptionTotal   int
	ExaminationOptionTotal int
}

// SetDefaults registers every key with its default so that env lookups work
// for keys no config file mentions.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("mode", string(ModeOffline))
	v.SetDefault("http_addr", ":8080")
	v.SetDefault("log_level", "info")
	v.SetDefault("db_driver", "sqlite")
	v.SetDefault("db_dsn", "")
	v.SetDefault("auth_hmac_secret", devSecret)
	v.SetDefault("token_ttl", "8h")
	v.SetDefault("enable_local_auth", true)
	v.SetDefault("enable_guest_auth", false)
	v.SetDefault("admin_user", "")
	v.SetDefault("admin_pass_hash", "")
	v.SetDefault("cors_origins", "http://localhost:3000,http://localhost:3010")
	v.SetDefault("redis_addr", "")
	v.SetDefault("redis_password", "")
	v.SetDefault("redis_db", 0)
	v.SetDefault("lock_ttl", "10s")
	v.SetDefault("lock_wait", "3s")
	v.SetDefault("amqp_url", "")
	v.SetDefault("amqp_exchange", "clinical.events")
	v.SetDefault("site_id", "local")
	v.SetDefault("seed_file", "")
	v.SetDefault("archive_dir", "")
	v.SetDefault("diagnosis_option_total", 5)
	v.SetDefault("treatment_option_total", 3)
	v.SetDefault("examination_option_total", 8)
}

// Load reads defaults, then the optional config file, then the environment
// (MODE, HTTP_ADDR, DB_DSN, ...). Later sources win.
func Load(v *viper.Viper, file string) (Config, error) {
	if v == nil {
		v = viper.New()
	}
	SetDefaults(v)
	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", file, err)
		}
	}
	v.AutomaticEnv()

	cfg := Config{
		Mode:                   Mode(strings.ToLower(v.GetString("mode"))),
		HTTPAddr:               v.GetString("http_addr"),
		LogLevel:               v.GetString("log_level"),
		DBDriver:               v.GetString("db_driver"),
		DBDSN:                  v.GetString("db_dsn"),
		AuthHMACSecret:         v.GetString("auth_hmac_secret"),
		TokenTTL:               v.GetDuration("token_ttl"),
		EnableLocalAuth:        v.GetBool("enable_local_auth"),
		EnableGuestAuth:        v.GetBool("enable_guest_auth"),
		AdminUser:              v.GetString("admin_user"),
		AdminPassHash:          v.GetString("admin_pass_hash"),
		CORSOrigins:            csv(v.GetString("cors_origins")),
		RedisAddr:              v.GetString("redis_addr"),
		RedisPassword:          v.GetString("redis_password"),
		RedisDB:                v.GetInt("redis_db"),
		LockTTL:                v.GetDuration("lock_ttl"),
		LockWait:               v.GetDuration("lock_wait"),
		AMQPURL:                v.GetString("amqp_url"),
		AMQPExchange:           v.GetString("amqp_exchange"),
		SiteID:                 v.GetString("site_id"),
		SeedFile:               v.GetString("seed_file"),
		ArchiveDir:             v.GetString("archive_dir"),
		DiagnosisOptionTotal:   v.GetInt("diagnosis_option_total"),
		TreatmentOptionTotal:   v.GetInt("treatment_option_total"),
		ExaminationOptionTotal: v.GetInt("examination_option_total"),
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func (c Config) Validate() error {
	var errs []error
	if c.Mode != ModeOffline && c.Mode != ModeOnline {
		errs = append(errs, fmt.Errorf("mode must be offline or online, got %q", c.Mode))
	}
	if c.HTTPAddr == "" {
		errs = append(errs, errors.New("http_addr is required"))
	}
	switch c.DBDriver {
	case "sqlite", "postgres":
	default:
		errs = append(errs, fmt.Errorf("db_driver must be sqlite or postgres, got %q", c.DBDriver))
	}
	if c.AuthHMACSecret == "" {
		errs = append(errs, errors.New("auth_hmac_secret is required"))
	}
	if c.Mode == ModeOnline && c.AuthHMACSecret == devSecret {
		errs = append(errs, errors.New("auth_hmac_secret must be changed in online mode"))
	}
	if c.TokenTTL <= 0 {
		errs = append(errs, errors.New("token_ttl must be positive"))
	}
	if c.LockTTL <= 0 || c.LockWait < 0 {
		errs = append(errs, errors.New("lock_ttl must be positive and lock_wait not negative"))
	}
	if c.RedisDB < 0 {
		errs = append(errs, errors.New("redis_db must not be negative"))
	}
	if c.AdminUser != "" && c.AdminPassHash == "" {
		errs = append(errs, errors.New("admin_pass_hash is required with admin_user"))
	}
	for name, n := range map[string]int{
		"diagnosis_option_total":   c.DiagnosisOptionTotal,
		"treatment_option_total":   c.TreatmentOptionTotal,
		"examination_option_total": c.ExaminationOptionTotal,
	} {
		if n < 1 {
			errs = append(errs, fmt.Errorf("%s must be at least 1", name))
		}
	}
	return errors.Join(errs...)
}

// DevSecret reports whether the token secret is the built-in development one.
func (c Config) DevSecret() bool { return c.AuthHMACSecret == devSecret }

func csv(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
