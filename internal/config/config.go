package config

import (
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

type Mode string

const (
	ModeOffline Mode = "offline"
	ModeOnline  Mode = "online"
)

type Config struct {
	Mode     Mode
	HTTPAddr string

	DBDriver string
	DBDSN    string

	AuthHMACSecret  string
	EnableLocalAuth bool
	AdminUser       string
	AdminPassHash   string // bcrypt

	CORSOriginsOnline  []string
	CORSOriginsOffline []string

	LogLevel string
	LogFile  string

	// Redis locking is used only when RedisAddr is set.
	RedisAddr     string
	RedisPassword string
	LockTTL       time.Duration

	ExpirySweepInterval time.Duration

	// Grade passback is enabled when AGSTokenURL is set.
	AGSTokenURL     string
	AGSClientID     string
	AGSClientSecret string
	AGSTimeout      time.Duration

	TracingEnabled           bool
	TracingCollectorEndpoint string
	MetricsEnabled           bool
}

// CORSOrigins returns the allow-list for the configured mode.
func (c Config) CORSOrigins() []string {
	if c.Mode == ModeOnline {
		return c.CORSOriginsOnline
	}
	return c.CORSOriginsOffline
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetTypeByDefaultValue(true)
	v.SetDefault("MODE", string(ModeOffline))
	v.SetDefault("HTTP_ADDR", ":8080")
	v.SetDefault("DB_DRIVER", "sqlite")
	v.SetDefault("DB_DSN", "")
	v.SetDefault("AUTH_HMAC_SECRET", "supersecret-dev-key")
	v.SetDefault("ENABLE_LOCAL_AUTH", true)
	v.SetDefault("ADMIN_USER", "admin")
	v.SetDefault("ADMIN_PASS_HASH", "$2y$12$pyZAiWaTfVtM7UElIRStvOC3gNbnp70nmQU4eYopLGBfCJr1DOvji")
	v.SetDefault("CORS_ORIGINS_ONLINE", "https://lms.mindengage.ai")
	v.SetDefault("CORS_ORIGINS_OFFLINE", "http://localhost:3000,http://localhost:3010,http://localhost:3020")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FILE", "")
	v.SetDefault("REDIS_ADDR", "")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("LOCK_TTL", 10*time.Second)
	v.SetDefault("EXPIRY_SWEEP_INTERVAL", 30*time.Second)
	v.SetDefault("AGS_TOKEN_URL", "")
	v.SetDefault("AGS_CLIENT_ID", "")
	v.SetDefault("AGS_CLIENT_SECRET", "")
	v.SetDefault("AGS_TIMEOUT", 10*time.Second)
	v.SetDefault("TRACING_ENABLED", false)
	v.SetDefault("TRACING_COLLECTOR_ENDPOINT", "http://localhost:14268/api/traces")
	v.SetDefault("METRICS_ENABLED", true)
	v.AutomaticEnv()
	return v
}

// FromEnv reads configuration from the environment. When CONFIG_FILE names a
// yaml file its values sit between the defaults and the environment.
func FromEnv() (Config, error) {
	v := newViper()
	if path := v.GetString("CONFIG_FILE"); path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return Config{}, errors.Wrapf(err, "read config %s", path)
		}
	}
	return load(v)
}

func load(v *viper.Viper) (Config, error) {
	cfg := Config{
		Mode:                     Mode(strings.ToLower(v.GetString("MODE"))),
		HTTPAddr:                 v.GetString("HTTP_ADDR"),
		DBDriver:                 v.GetString("DB_DRIVER"),
		DBDSN:                    v.GetString("DB_DSN"),
		AuthHMACSecret:           v.GetString("AUTH_HMAC_SECRET"),
		EnableLocalAuth:          v.GetBool("ENABLE_LOCAL_AUTH"),
		AdminUser:                v.GetString("ADMIN_USER"),
		AdminPassHash:            v.GetString("ADMIN_PASS_HASH"),
		CORSOriginsOnline:        csv(v.GetString("CORS_ORIGINS_ONLINE")),
		CORSOriginsOffline:       csv(v.GetString("CORS_ORIGINS_OFFLINE")),
		LogLevel:                 v.GetString("LOG_LEVEL"),
		LogFile:                  v.GetString("LOG_FILE"),
		RedisAddr:                v.GetString("REDIS_ADDR"),
		RedisPassword:            v.GetString("REDIS_PASSWORD"),
		LockTTL:                  v.GetDuration("LOCK_TTL"),
		ExpirySweepInterval:      v.GetDuration("EXPIRY_SWEEP_INTERVAL"),
		AGSTokenURL:              v.GetString("AGS_TOKEN_URL"),
		AGSClientID:              v.GetString("AGS_CLIENT_ID"),
		AGSClientSecret:          v.GetString("AGS_CLIENT_SECRET"),
		AGSTimeout:               v.GetDuration("AGS_TIMEOUT"),
		TracingEnabled:           v.GetBool("TRACING_ENABLED"),
		TracingCollectorEndpoint: v.GetString("TRACING_COLLECTOR_ENDPOINT"),
		MetricsEnabled:           v.GetBool("METRICS_ENABLED"),
	}
	switch cfg.Mode {
	case ModeOffline, ModeOnline:
	default:
		return Config{}, errors.Errorf("MODE must be offline or online, got %q", cfg.Mode)
	}
	switch cfg.DBDriver {
	case "sqlite", "postgres":
	default:
		return Config{}, errors.Errorf("DB_DRIVER must be sqlite or postgres, got %q", cfg.DBDriver)
	}
	return cfg, nil
}

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
