package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/tsanders-rh/kubecostd/internal/api"
	"github.com/tsanders-rh/kubecostd/internal/archive"
	"github.com/tsanders-rh/kubecostd/internal/auth"
	"github.com/tsanders-rh/kubecostd/internal/janitor"
	"github.com/tsanders-rh/kubecostd/internal/kube"
	"github.com/tsanders-rh/kubecostd/internal/logging"
	"github.com/tsanders-rh/kubecostd/internal/store"
	"github.com/tsanders-rh/kubecostd/internal/worker"
)

// EnvPrefix prefixes every environment override, e.g. KUBECOSTD_SERVER_PORT
const EnvPrefix = "KUBECOSTD"

// StorageConfig locates the time-series data
type StorageConfig struct {
	DataDir string `mapstructure:"data_dir" validate:"required"`
}

// PricingConfig locates the YAML price tables
type PricingConfig struct {
	Dir    string `mapstructure:"dir" validate:"required"`
	Active string `mapstructure:"active" validate:"required"`

	// DatabaseTable names a price row in Postgres that overrides the YAML
	// tables when the database is configured and the row exists
	DatabaseTable string `mapstructure:"database_table"`
}

// Config is the complete process configuration
type Config struct {
	Server    api.ServerConfig `mapstructure:"server"`
	Storage   StorageConfig    `mapstructure:"storage"`
	Worker    worker.Config    `mapstructure:"worker"`
	Retention janitor.Config   `mapstructure:"retention"`
	Kube      kube.Config      `mapstructure:"kube"`
	Pricing   PricingConfig    `mapstructure:"pricing"`
	Database  store.Config     `mapstructure:"database"`
	Archive   archive.Config   `mapstructure:"archive"`
	Auth      auth.Config      `mapstructure:"auth"`
	Log       logging.Config   `mapstructure:"log"`
}

// Load reads configuration from defaults, an optional config.yaml and
// KUBECOSTD_* environment variables, in increasing priority. A non-empty
// path names the config file explicitly.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("/etc/kubecostd/")
		v.AddConfigPath("$HOME/.kubecostd")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if cfg.Worker.InstanceID == "" {
		cfg.Worker.InstanceID = worker.DefaultInstanceID()
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks every section
func (c *Config) Validate() error {
	if err := validator.New(validator.WithRequiredStructEnabled()).Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	server := api.DefaultServerConfig()
	v.SetDefault("server.port", server.Port)
	v.SetDefault("server.shutdown_timeout", server.ShutdownTimeout)
	v.SetDefault("server.request_timeout", server.RequestTimeout)
	v.SetDefault("server.enable_cors", server.EnableCORS)
	v.SetDefault("server.allowed_origins", server.AllowedOrigins)
	v.SetDefault("server.max_body_size", server.MaxBodySize)

	v.SetDefault("storage.data_dir", "/var/lib/kubecostd")

	w := worker.DefaultConfig()
	v.SetDefault("worker.instance_id", "")
	v.SetDefault("worker.collect_interval", w.CollectInterval)
	v.SetDefault("worker.max_concurrent", w.MaxConcurrent)
	v.SetDefault("worker.catch_up", w.CatchUp)

	r := janitor.DefaultConfig()
	v.SetDefault("retention.check_interval", r.CheckInterval)
	v.SetDefault("retention.minute_days", r.MinuteDays)
	v.SetDefault("retention.hour_months", r.HourMonths)
	v.SetDefault("retention.day_years", r.DayYears)
	v.SetDefault("retention.batch_size", r.BatchSize)
	v.SetDefault("retention.ledger_cleanup", r.LedgerCleanup)

	k := kube.DefaultConfig()
	v.SetDefault("kube.kubeconfig", k.Kubeconfig)
	v.SetDefault("kube.context", k.Context)
	v.SetDefault("kube.timeout", k.Timeout)
	v.SetDefault("kube.summary_rps", k.SummaryRPS)
	v.SetDefault("kube.summary_burst", k.SummaryBurst)
	v.SetDefault("kube.max_concurrent", k.MaxConcurrent)
	v.SetDefault("kube.metrics_api_fallback", k.MetricsAPIFallback)

	v.SetDefault("pricing.dir", "internal/pricing/definitions")
	v.SetDefault("pricing.active", "aws-on-demand")
	v.SetDefault("pricing.database_table", "")

	db := store.DefaultConfig("")
	v.SetDefault("database.url", db.DatabaseURL)
	v.SetDefault("database.max_connections", db.MaxConnections)
	v.SetDefault("database.min_connections", db.MinConnections)
	v.SetDefault("database.max_conn_lifetime", db.MaxConnLifetime)
	v.SetDefault("database.max_conn_idle_time", db.MaxConnIdleTime)
	v.SetDefault("database.health_check_period", db.HealthCheckPeriod)

	v.SetDefault("archive.enabled", false)
	v.SetDefault("archive.bucket", "")
	v.SetDefault("archive.prefix", "kubecostd")
	v.SetDefault("archive.region", "")
	v.SetDefault("archive.endpoint", "")
	v.SetDefault("archive.use_path_style", false)
	v.SetDefault("archive.verify_identity", true)

	a := auth.DefaultConfig()
	v.SetDefault("auth.enabled", a.Enabled)
	v.SetDefault("auth.secret", a.Secret)
	v.SetDefault("auth.token_ttl", a.TokenTTL)

	l := logging.DefaultConfig()
	v.SetDefault("log.level", l.Level)
	v.SetDefault("log.file", l.File)
	v.SetDefault("log.max_size", l.MaxSize)
	v.SetDefault("log.max_backups", l.MaxBackups)
	v.SetDefault("log.max_age", l.MaxAge)
	v.SetDefault("log.compress", l.Compress)
}
