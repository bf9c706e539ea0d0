package config

import (
	"log/slog"
	"net"
	"net/url"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/spf13/viper"

	"github.com/angeloszaimis/hostguard/internal/circuitbreaker"
)

const (
	EnvDev     = "dev"
	EnvStaging = "staging"
	EnvProd    = "prod"
)

const (
	LogLevelDebug = "debug"
	LogLevelInfo  = "info"
	LogLevelWarn  = "warn"
	LogLevelError = "error"
)

type ServerConfig struct {
	Address     string `mapstructure:"address"`
	Environment string `mapstructure:"environment"`
}

type LoggingConfig struct {
	Level     string `mapstructure:"level"`
	AddSource bool   `mapstructure:"add_source"`
}

type CircuitBreakerConfig struct {
	FailureThreshold   int    `mapstructure:"failure_threshold"`
	SuccessThreshold   int    `mapstructure:"success_threshold"`
	FailureWindow      string `mapstructure:"failure_window"`
	OpenTimeout        string `mapstructure:"open_timeout"`
	ResetTimeout       string `mapstructure:"reset_timeout"`
	FailureStatusCodes []int  `mapstructure:"failure_status_codes"`
	FailOnNetworkError bool   `mapstructure:"fail_on_network_error"`
}

type UpstreamConfig struct {
	URL string `mapstructure:"url"`
}

type HealthCheckConfig struct {
	Interval string `mapstructure:"interval"`
	Timeout  string `mapstructure:"timeout"`
	Path     string `mapstructure:"path"`
}

type Config struct {
	Server         ServerConfig         `mapstructure:"server"`
	Logging        LoggingConfig        `mapstructure:"logging"`
	CircuitBreaker CircuitBreakerConfig `mapstructure:"circuit_breaker"`
	Upstreams      []UpstreamConfig     `mapstructure:"upstreams"`
	HealthCheck    HealthCheckConfig    `mapstructure:"health_check"`
}

func Load() (*Config, error) {
	viper.SetDefault("server.environment", EnvDev)
	viper.SetDefault("server.address", ":8080")
	viper.SetDefault("logging.level", LogLevelInfo)
	viper.SetDefault("logging.add_source", false)
	viper.SetDefault("circuit_breaker.failure_threshold", circuitbreaker.DefaultFailureThreshold)
	viper.SetDefault("circuit_breaker.success_threshold", circuitbreaker.DefaultSuccessThreshold)
	viper.SetDefault("circuit_breaker.failure_window", "60s")
	viper.SetDefault("circuit_breaker.open_timeout", "30s")
	viper.SetDefault("circuit_breaker.reset_timeout", "60s")
	viper.SetDefault("circuit_breaker.failure_status_codes", circuitbreaker.DefaultFailureStatusCodes)
	viper.SetDefault("circuit_breaker.fail_on_network_error", true)
	viper.SetDefault("health_check.interval", "10s")
	viper.SetDefault("health_check.timeout", "2s")
	viper.SetDefault("health_check.path", "/health")

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./config")
	viper.AddConfigPath(".")

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			slog.Error("failed to read config file", slog.String("error", err.Error()))
			return nil, err
		}
		slog.Warn("config file not found, using defaults and environment variables")
	} else {
		slog.Info("loaded config file", slog.String("file", viper.ConfigFileUsed()))
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		slog.Error("failed to unmarshal config", slog.String("error", err.Error()))
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", slog.String("error", err.Error()))
		return nil, err
	}

	return &cfg, nil
}

// BreakerOptions converts the circuit breaker section into options for the
// manager. Durations must already have passed Validate.
func (c CircuitBreakerConfig) BreakerOptions() (circuitbreaker.Options, error) {
	window, err := time.ParseDuration(c.FailureWindow)
	if err != nil {
		return circuitbreaker.Options{}, err
	}
	openTimeout, err := time.ParseDuration(c.OpenTimeout)
	if err != nil {
		return circuitbreaker.Options{}, err
	}
	resetTimeout, err := time.ParseDuration(c.ResetTimeout)
	if err != nil {
		return circuitbreaker.Options{}, err
	}

	return circuitbreaker.Options{
		FailureThreshold:   c.FailureThreshold,
		SuccessThreshold:   c.SuccessThreshold,
		FailureWindow:      window,
		OpenTimeout:        openTimeout,
		ResetTimeout:       resetTimeout,
		FailureStatusCodes: c.FailureStatusCodes,
		// The config knob is "fail on network error" so the YAML reads
		// naturally; the breaker option is the inverse.
		IgnoreNetworkErrors: !c.FailOnNetworkError,
	}, nil
}

func (c *Config) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Server,
			validation.Required,
			validation.By(func(value interface{}) error {
				sc, ok := value.(ServerConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a ServerConfig")
				}
				return validation.ValidateStruct(&sc,
					validation.Field(&sc.Environment,
						validation.Required,
						validation.In(EnvDev, EnvStaging, EnvProd),
					),
					validation.Field(&sc.Address,
						validation.Required,
						validation.By(validateHostPort),
					),
				)
			}),
		),
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
				)
			}),
		),
		validation.Field(&c.CircuitBreaker,
			validation.Required,
			validation.By(func(value interface{}) error {
				cc, ok := value.(CircuitBreakerConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a CircuitBreakerConfig")
				}
				return validation.ValidateStruct(&cc,
					validation.Field(&cc.FailureThreshold,
						validation.Required,
						validation.Min(1),
					),
					validation.Field(&cc.SuccessThreshold,
						validation.Required,
						validation.Min(1),
					),
					validation.Field(&cc.FailureWindow,
						validation.Required,
						validation.By(validateDuration),
					),
					validation.Field(&cc.OpenTimeout,
						validation.Required,
						validation.By(validateDuration),
					),
					validation.Field(&cc.ResetTimeout,
						validation.Required,
						validation.By(validateDuration),
					),
					validation.Field(&cc.FailureStatusCodes,
						validation.Each(validation.Min(100), validation.Max(599)),
					),
				)
			}),
		),
		validation.Field(&c.Upstreams,
			validation.Required,
			validation.Length(1, 0),
			validation.Each(validation.By(validateUpstreamConfig)),
		),
		validation.Field(&c.HealthCheck,
			validation.Required,
			validation.By(func(value interface{}) error {
				hc, ok := value.(HealthCheckConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a HealthCheckConfig")
				}
				return validation.ValidateStruct(&hc,
					validation.Field(&hc.Interval,
						validation.Required,
						validation.By(validateDuration),
					),
					validation.Field(&hc.Timeout,
						validation.Required,
						validation.By(validateDuration),
					),
					validation.Field(&hc.Path,
						validation.Required,
						validation.By(validateProbePath),
					),
				)
			}),
		),
	)
}

func validateHostPort(value interface{}) error {
	addr, ok := value.(string)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a string")
	}

	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return validation.NewError("validation_invalid_hostport", "must be in host:port format")
	}

	if port == "" {
		return validation.NewError("validation_invalid_port", "port cannot be empty")
	}

	if host != "" {
		if err := is.Host.Validate(host); err != nil {
			return validation.NewError("validation_invalid_host", "invalid host")
		}
	}

	return nil
}

func validateDuration(value interface{}) error {
	durationStr, ok := value.(string)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a string")
	}

	if _, err := time.ParseDuration(durationStr); err != nil {
		return validation.NewError("validation_invalid_duration", "must be a valid duration (e.g., 2s, 5m, 1h)")
	}

	return nil
}

func validateProbePath(value interface{}) error {
	path, ok := value.(string)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a string")
	}

	if !strings.HasPrefix(path, "/") {
		return validation.NewError("validation_invalid_path", "must start with /")
	}

	return nil
}

func validateUpstreamConfig(value interface{}) error {
	upstream, ok := value.(UpstreamConfig)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be an UpstreamConfig")
	}

	if upstream.URL == "" {
		return validation.NewError("validation_empty_url", "upstream URL cannot be empty")
	}

	parsedURL, err := url.Parse(upstream.URL)
	if err != nil {
		return validation.NewError("validation_invalid_url", "must be a valid URL")
	}

	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return validation.NewError("validation_invalid_scheme", "URL must use http or https scheme")
	}

	if parsedURL.Host == "" {
		return validation.NewError("validation_missing_host", "URL must have a host")
	}

	return nil
}
