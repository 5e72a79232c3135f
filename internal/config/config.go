package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/t77yq/conflictwatch/internal/model"
)

// Config holds the full runtime configuration of the pipeline
type Config struct {
	AppName      string
	DatabasePath string
	NATSURL      string

	AlertThreshold int
	BatchSize      int
	MaxRetries     int
	Timeout        time.Duration
	DateRangeDays  int
	DateFloor      time.Time
	RunRetention   time.Duration

	MetricsInterval time.Duration

	EnabledSources []model.DataSource
	ACLEDAPIKey    string
	ACLEDEmail     string
}

// Load reads configuration from the given path (optional) and the
// environment. Missing provider credentials are not an error; they
// disable the connector at runtime.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if configPath != "" {
		v.AddConfigPath(configPath)
	}
	v.AddConfigPath("./config")
	v.AddConfigPath(".")

	v.SetEnvPrefix("CONFLICTWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		// Config file is optional; env and defaults carry the rest
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	floor, err := time.Parse("2006-01-02", v.GetString("pipeline.date_floor"))
	if err != nil {
		return nil, fmt.Errorf("invalid pipeline.date_floor: %w", err)
	}

	cfg := &Config{
		AppName:         v.GetString("app.name"),
		DatabasePath:    v.GetString("database.path"),
		NATSURL:         v.GetString("nats.url"),
		AlertThreshold:  v.GetInt("pipeline.alert_threshold"),
		BatchSize:       v.GetInt("pipeline.batch_size"),
		MaxRetries:      v.GetInt("pipeline.max_retries"),
		Timeout:         time.Duration(v.GetInt("pipeline.timeout_seconds")) * time.Second,
		DateRangeDays:   v.GetInt("pipeline.date_range_days"),
		DateFloor:       floor,
		RunRetention:    time.Duration(v.GetInt("pipeline.run_retention_hours")) * time.Hour,
		MetricsInterval: time.Duration(v.GetInt("metrics.interval_seconds")) * time.Second,
		ACLEDAPIKey:     v.GetString("sources.acled.api_key"),
		ACLEDEmail:      v.GetString("sources.acled.email"),
	}

	for _, name := range v.GetStringSlice("sources.enabled") {
		switch model.DataSource(strings.ToLower(name)) {
		case model.DataSourceACLED, model.DataSourceGDELT, model.DataSourceUCDP:
			cfg.EnabledSources = append(cfg.EnabledSources, model.DataSource(strings.ToLower(name)))
		default:
			return nil, fmt.Errorf("unknown data source in sources.enabled: %q", name)
		}
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "conflictwatch")
	v.SetDefault("database.path", "conflictwatch.db")
	v.SetDefault("nats.url", "")
	v.SetDefault("pipeline.alert_threshold", 50)
	v.SetDefault("pipeline.batch_size", 500)
	v.SetDefault("pipeline.max_retries", 3)
	v.SetDefault("pipeline.timeout_seconds", 30)
	v.SetDefault("pipeline.date_range_days", 7)
	v.SetDefault("pipeline.date_floor", "2020-01-01")
	v.SetDefault("pipeline.run_retention_hours", 72)
	v.SetDefault("metrics.interval_seconds", 60)
	v.SetDefault("sources.enabled", []string{"acled", "gdelt", "ucdp"})
}

// HasCredentials reports whether the named source has every credential
// it needs. Keyless public sources always report true.
func (c *Config) HasCredentials(source model.DataSource) bool {
	switch source {
	case model.DataSourceACLED:
		return c.ACLEDAPIKey != "" && c.ACLEDEmail != ""
	default:
		return true
	}
}

// DefaultDateRange returns the trailing extraction window ending today
func (c *Config) DefaultDateRange(now time.Time) (time.Time, time.Time) {
	end := now.UTC().Truncate(24 * time.Hour)
	start := end.AddDate(0, 0, -c.DateRangeDays)
	return start, end
}
