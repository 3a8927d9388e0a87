package server

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/iwvelando/trade-route/internal/config"
	"github.com/iwvelando/trade-route/pkg/constants"
)

// Config defines runtime parameters for the console API.
type Config struct {
	Address         string
	AllowedOrigins  []string
	MaxUploadSize   string
	uploadSizeBytes int64
}

// NewConfig normalizes the console section of the configuration, filling
// defaults for empty values.
func NewConfig(console config.ConsoleConfig) (*Config, error) {
	cfg := &Config{
		Address:        strings.TrimSpace(console.Address),
		AllowedOrigins: append([]string{}, console.AllowedOrigins...),
		MaxUploadSize:  strings.TrimSpace(console.MaxUploadSize),
	}
	if cfg.Address == "" {
		cfg.Address = constants.DefaultConsoleAddress
	}
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = []string{"*"}
	}

	size, err := ParseSize(cfg.MaxUploadSize)
	if err != nil {
		return nil, err
	}
	if size <= 0 {
		size = constants.DefaultMaxUploadSizeBytes
	}
	cfg.uploadSizeBytes = size
	cfg.MaxUploadSize = strconv.FormatInt(size, 10)
	return cfg, nil
}

// UploadSizeBytes returns the configured upload size in bytes.
func (c *Config) UploadSizeBytes() int64 {
	if c.uploadSizeBytes <= 0 {
		return constants.DefaultMaxUploadSizeBytes
	}
	return c.uploadSizeBytes
}

// SetUploadSizeBytes overrides the configured upload size.
func (c *Config) SetUploadSizeBytes(size int64) {
	if size > 0 {
		c.uploadSizeBytes = size
		c.MaxUploadSize = strconv.FormatInt(size, 10)
	}
}

var sizeUnits = map[string]int64{
	"":   1,
	"B":  1,
	"K":  1 << 10,
	"KB": 1 << 10,
	"M":  1 << 20,
	"MB": 1 << 20,
	"G":  1 << 30,
	"GB": 1 << 30,
}

// ParseSize converts a human-friendly byte string (e.g., "256K", "10M") into bytes.
func ParseSize(value string) (int64, error) {
	trimmed := strings.ToUpper(strings.TrimSpace(value))
	if trimmed == "" {
		return constants.DefaultMaxUploadSizeBytes, nil
	}

	split := strings.LastIndexFunc(trimmed, unicode.IsDigit) + 1
	if split == 0 {
		return 0, fmt.Errorf("invalid size: %s", value)
	}
	numPart := strings.TrimSpace(trimmed[:split])
	unitPart := strings.TrimSpace(trimmed[split:])

	n, err := strconv.ParseInt(numPart, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid size value %q: %w", value, err)
	}
	multiplier, ok := sizeUnits[unitPart]
	if !ok {
		return 0, fmt.Errorf("unsupported size unit %q", unitPart)
	}

	result := n * multiplier
	if n != 0 && result/n != multiplier {
		return 0, fmt.Errorf("size overflow for value %s", value)
	}
	return result, nil
}
