// Package config defines the data structures related to configuration and
// includes functions for loading and validating it.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/iwvelando/trade-route/pkg/constants"
	"github.com/iwvelando/trade-route/pkg/validation"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Configuration holds all configuration for trade-route.
type Configuration struct {
	Service ServiceConfig `mapstructure:"service" yaml:"service"`
	Console ConsoleConfig `mapstructure:"console" yaml:"console"`
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging,omitempty"`
	Output  OutputConfig  `mapstructure:"output" yaml:"output,omitempty"`
}

// ServiceConfig locates the optimizer service and bounds calls to it.
type ServiceConfig struct {
	BaseURL       string        `mapstructure:"baseURL" yaml:"baseURL"`
	Timeout       time.Duration `mapstructure:"timeout" yaml:"timeout"`
	Retries       uint64        `mapstructure:"retries" yaml:"retries"`
	RetryInterval time.Duration `mapstructure:"retryInterval" yaml:"retryInterval"`
}

// ConsoleConfig holds the local console API options.
type ConsoleConfig struct {
	Address        string   `mapstructure:"address" yaml:"address"`
	AllowedOrigins []string `mapstructure:"allowedOrigins" yaml:"allowedOrigins"`
	MaxUploadSize  string   `mapstructure:"maxUploadSize" yaml:"maxUploadSize"`
}

// LoggingConfig holds logging configuration options
type LoggingConfig struct {
	Level      string `mapstructure:"level" yaml:"level,omitempty"`           // debug, info, warn, error
	Format     string `mapstructure:"format" yaml:"format,omitempty"`         // json, console
	OutputFile string `mapstructure:"outputFile" yaml:"outputFile,omitempty"` // optional file output
}

// OutputConfig holds output format configuration options
type OutputConfig struct {
	Format string `mapstructure:"format" yaml:"format,omitempty"` // pretty, json, xlsx
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("service.baseURL", constants.DefaultServiceURL)
	v.SetDefault("service.timeout", constants.DefaultServiceTimeout)
	v.SetDefault("service.retries", constants.DefaultRetries)
	v.SetDefault("service.retryInterval", constants.DefaultRetryInterval)
	v.SetDefault("console.address", constants.DefaultConsoleAddress)
	v.SetDefault("console.allowedOrigins", []string{"*"})
	v.SetDefault("console.maxUploadSize", fmt.Sprintf("%d", constants.DefaultMaxUploadSizeBytes))
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("logging.outputFile", "")
	v.SetDefault("output.format", constants.OutputFormatPretty)
}

// LoadConfiguration loads the YAML configuration at configPath, layered
// over defaults and under TRADEROUTE_* environment overrides. A .env file
// in the working directory is loaded first when present. A missing
// configuration file is not an error.
func LoadConfiguration(configPath string) (*Configuration, error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(constants.EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yml")
		if err := v.ReadInConfig(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("error reading config file, %s", err)
		}
	}

	var configuration Configuration
	if err := v.Unmarshal(&configuration); err != nil {
		return nil, fmt.Errorf("unable to decode into struct, %s", err)
	}

	return &configuration, nil
}

// Validate checks the values that cannot be defaulted away.
func (c *Configuration) Validate() error {
	if strings.TrimSpace(c.Service.BaseURL) == "" {
		return fmt.Errorf("service.baseURL must not be empty")
	}
	if err := validation.ValidateServiceURL(c.Service.BaseURL); err != nil {
		return err
	}
	if c.Service.Timeout <= 0 {
		return fmt.Errorf("service.timeout must be positive, got %s", c.Service.Timeout)
	}
	if err := validation.ValidateOutputFormat(c.Output.Format); err != nil {
		return err
	}
	return validation.ValidateLogging(c.Logging.Level, c.Logging.Format)
}
