// Package config loads the application configuration from YAML and the
// environment: logging, metrics namespace and the per-service circuit
// breaker settings handed to the manager at startup.
package config

import (
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/siemguard/circuit-breaker/internal/circuitbreaker"
)

const (
	LogLevelDebug = "debug"
	LogLevelInfo  = "info"
	LogLevelWarn  = "warn"
	LogLevelError = "error"
)

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type MetricsConfig struct {
	Namespace string `mapstructure:"namespace"`
	Address   string `mapstructure:"address"`
}

// ServiceConfig names one protected backend and its breaker overrides.
type ServiceConfig struct {
	Name    string                `mapstructure:"name"`
	Breaker circuitbreaker.Config `mapstructure:"breaker"`
}

type Config struct {
	Logging  LoggingConfig   `mapstructure:"logging"`
	Metrics  MetricsConfig   `mapstructure:"metrics"`
	Services []ServiceConfig `mapstructure:"services"`
}

// Load reads config.yaml from ./config or the working directory,
// applying defaults and environment overrides (keys joined with "_").
func Load() (*Config, error) {
	v := viper.New()

	v.SetDefault("logging.level", LogLevelInfo)
	v.SetDefault("logging.format", "json")
	v.SetDefault("metrics.namespace", "siemguard")
	v.SetDefault("metrics.address", ":2112")

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./config")
	v.AddConfigPath(".")

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		logrus.Warn("config file not found, using defaults and environment variables")
	} else {
		logrus.WithField("file", v.ConfigFileUsed()).Info("loaded config file")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Logging,
			validation.Required,
			validation.By(func(value interface{}) error {
				lc, ok := value.(LoggingConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a LoggingConfig")
				}
				return validation.ValidateStruct(&lc,
					validation.Field(&lc.Level,
						validation.Required,
						validation.In(LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError),
					),
					validation.Field(&lc.Format,
						validation.Required,
						validation.In("json", "text"),
					),
				)
			}),
		),
		validation.Field(&c.Metrics,
			validation.Required,
			validation.By(func(value interface{}) error {
				mc, ok := value.(MetricsConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a MetricsConfig")
				}
				return validation.ValidateStruct(&mc,
					validation.Field(&mc.Namespace, validation.Required),
					validation.Field(&mc.Address, validation.Required),
				)
			}),
		),
		validation.Field(&c.Services,
			validation.Each(validation.By(validateServiceConfig)),
		),
	)
}

func validateServiceConfig(value interface{}) error {
	svc, ok := value.(ServiceConfig)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a ServiceConfig")
	}
	if svc.Name == "" {
		return validation.NewError("validation_empty_name", "service name cannot be empty")
	}
	return nil
}

// ConfigureLogging applies the logging section to the global logrus
// logger.
func (c *Config) ConfigureLogging() error {
	level, err := logrus.ParseLevel(c.Logging.Level)
	if err != nil {
		return err
	}
	logrus.SetLevel(level)

	if c.Logging.Format == "json" {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logrus.SetFormatter(&logrus.TextFormatter{})
	}
	return nil
}
