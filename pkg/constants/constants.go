// Package constants provides shared constants for the trade-route client.
package constants

import (
	"math"
	"time"
)

// Form defaults applied to a fresh form.
const (
	// DefaultRange is the initial maximum travel range
	DefaultRange = 2

	// DefaultStops is the initial number of route stops
	DefaultStops = 2

	// DefaultCargo is the initial cargo capacity in SCU
	DefaultCargo = 696

	// DefaultFilter matches every location
	DefaultFilter = ".*"

	// DefaultAllocationAmount is the percent given to a newly added commodity allocation
	DefaultAllocationAmount = 100

	// DefaultRestrictionValue is the percent given to a newly added restriction
	DefaultRestrictionValue = 100
)

// Native input bounds.
const (
	MinRange   = 0
	MaxRange   = 10
	MinStops   = 2
	MaxStops   = 10
	MinPercent = 0
	MaxPercent = 100
	MinCargo   = 0

	// MaxCargo is the largest cargo whose sub-unit value fits in an int64.
	MaxCargo = math.MaxInt64 / SubUnitsPerUnit
)

// Unit scaling at the request and display boundaries.
const (
	// SubUnitsPerUnit converts cargo SCU and transaction amounts to the
	// optimizer's integer sub-units.
	SubUnitsPerUnit = 100

	// PercentDivisor converts a user-facing percent into a fraction.
	PercentDivisor = 100

	// AmountDecimals is the number of decimals shown for scaled amounts.
	AmountDecimals = 1

	// StockPlaceholder is shown when a stock level is unknown.
	StockPlaceholder = "-"
)

// Transaction type labels.
const (
	TypeBuy  = "Buy"
	TypeSell = "Sell"
)

// Output format constants
const (
	// OutputFormatPretty is the human-readable output format
	OutputFormatPretty = "pretty"

	// OutputFormatJSON is the machine-readable output format
	OutputFormatJSON = "json"

	// OutputFormatXLSX is the spreadsheet output format
	OutputFormatXLSX = "xlsx"
)

// Configuration file constants
const (
	// DefaultConfigFile is the default configuration file name
	DefaultConfigFile = "trade-route.yaml"

	// EnvPrefix prefixes environment overrides, e.g. TRADEROUTE_SERVICE_BASEURL
	EnvPrefix = "TRADEROUTE"

	// SettingsFileName is the suggested name for exported form settings
	SettingsFileName = "scroute_settings.json"
)

// Optimizer service defaults
const (
	// DefaultServiceURL is where the optimizer service listens by default
	DefaultServiceURL = "http://localhost:5000"

	// DefaultServiceTimeout bounds every call to the optimizer service
	DefaultServiceTimeout = 30 * time.Second

	// DefaultRetries is the retry budget for idempotent lookups
	DefaultRetries = 3

	// DefaultRetryInterval is the pause between lookup retries
	DefaultRetryInterval = 200 * time.Millisecond
)

// Console defaults
const (
	// DefaultConsoleAddress is the default HTTP listen address for the console API
	DefaultConsoleAddress = ":8080"

	// DefaultMaxUploadSizeBytes is the default maximum settings upload size (256 KB)
	DefaultMaxUploadSizeBytes int64 = 256 * 1024
)
