package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// EnvPrefix prefixes every environment override
const EnvPrefix = "HISTORICAL_IMAGERY_"

// TelemetrySettings configures optional PostHog capture
type TelemetrySettings struct {
	PostHogKey  string `toml:"posthog_key"`
	PostHogHost string `toml:"posthog_host"`
}

// Settings represents persistent user preferences
type Settings struct {
	// Request fan-out
	Concurrency        int `toml:"concurrency"`
	EsriMaxConcurrency int `toml:"esri_max_concurrency"`

	RequestTimeoutSeconds int `toml:"request_timeout_seconds"`
	PacketCacheSize       int `toml:"packet_cache_size"`

	// Request pacing, zero disables it
	EsriRequestsPerSecond   float64 `toml:"esri_requests_per_second"`
	GoogleRequestsPerSecond float64 `toml:"google_requests_per_second"`

	Verbose bool `toml:"verbose"`

	Telemetry TelemetrySettings `toml:"telemetry"`
}

// DefaultSettings returns default user settings
func DefaultSettings() *Settings {
	return &Settings{
		Concurrency:           20,
		EsriMaxConcurrency:    10,
		RequestTimeoutSeconds: 30,
		PacketCacheSize:       1024,
		EsriRequestsPerSecond: 10,
		Telemetry: TelemetrySettings{
			PostHogHost: "https://us.i.posthog.com",
		},
	}
}

// GetSettingsPath returns the settings file path
func GetSettingsPath() string {
	homeDir, _ := os.UserHomeDir()
	return filepath.Join(homeDir, ".walkthru-earth", "historical-imagery", "settings.toml")
}

// Load reads the settings file, then the optional .env file in the working
// directory, then environment overrides. An empty path means the default
// settings file.
func Load(path string) (*Settings, error) {
	settings, err := LoadSettings(path)
	if err != nil {
		return nil, err
	}
	if err := godotenv.Load(".env"); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}
	if err := settings.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	return settings, settings.Validate()
}

// LoadSettings loads user settings from disk. A missing file yields the
// defaults.
func LoadSettings(path string) (*Settings, error) {
	if path == "" {
		path = GetSettingsPath()
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return DefaultSettings(), nil
	}

	var settings Settings
	if _, err := toml.DecodeFile(path, &settings); err != nil {
		return nil, fmt.Errorf("failed to parse settings %s: %w", path, err)
	}

	// Merge with defaults for any missing fields
	defaults := DefaultSettings()
	if settings.Concurrency == 0 {
		settings.Concurrency = defaults.Concurrency
	}
	if settings.EsriMaxConcurrency == 0 {
		settings.EsriMaxConcurrency = defaults.EsriMaxConcurrency
	}
	if settings.RequestTimeoutSeconds == 0 {
		settings.RequestTimeoutSeconds = defaults.RequestTimeoutSeconds
	}
	if settings.PacketCacheSize == 0 {
		settings.PacketCacheSize = defaults.PacketCacheSize
	}
	if settings.EsriRequestsPerSecond == 0 {
		settings.EsriRequestsPerSecond = defaults.EsriRequestsPerSecond
	}
	if settings.Telemetry.PostHogHost == "" {
		settings.Telemetry.PostHogHost = defaults.Telemetry.PostHogHost
	}

	return &settings, nil
}

// SaveSettings writes settings to path as TOML
func SaveSettings(path string, settings *Settings) error {
	if path == "" {
		path = GetSettingsPath()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create settings directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to write settings file: %w", err)
	}
	defer f.Close()

	if err := toml.NewEncoder(f).Encode(settings); err != nil {
		return fmt.Errorf("failed to encode settings: %w", err)
	}
	return nil
}

// ApplyEnv overrides settings from HISTORICAL_IMAGERY_* variables
func (s *Settings) ApplyEnv(lookup func(string) (string, bool)) error {
	ints := map[string]*int{
		"CONCURRENCY":             &s.Concurrency,
		"ESRI_MAX_CONCURRENCY":    &s.EsriMaxConcurrency,
		"REQUEST_TIMEOUT_SECONDS": &s.RequestTimeoutSeconds,
		"PACKET_CACHE_SIZE":       &s.PacketCacheSize,
	}
	for name, dst := range ints {
		v, ok := lookup(EnvPrefix + name)
		if !ok {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("invalid %s%s: %w", EnvPrefix, name, err)
		}
		*dst = n
	}

	floats := map[string]*float64{
		"ESRI_REQUESTS_PER_SECOND":   &s.EsriRequestsPerSecond,
		"GOOGLE_REQUESTS_PER_SECOND": &s.GoogleRequestsPerSecond,
	}
	for name, dst := range floats {
		v, ok := lookup(EnvPrefix + name)
		if !ok {
			continue
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return fmt.Errorf("invalid %s%s: %w", EnvPrefix, name, err)
		}
		*dst = f
	}

	if v, ok := lookup(EnvPrefix + "VERBOSE"); ok {
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("invalid %sVERBOSE: %w", EnvPrefix, err)
		}
		s.Verbose = b
	}
	if v, ok := lookup(EnvPrefix + "POSTHOG_KEY"); ok {
		s.Telemetry.PostHogKey = v
	}
	if v, ok := lookup(EnvPrefix + "POSTHOG_HOST"); ok {
		s.Telemetry.PostHogHost = v
	}
	return nil
}

// Validate rejects settings the runner cannot use
func (s *Settings) Validate() error {
	if s.Concurrency < 1 {
		return fmt.Errorf("concurrency must be positive, got %d", s.Concurrency)
	}
	if s.EsriMaxConcurrency < 1 {
		return fmt.Errorf("esri_max_concurrency must be positive, got %d", s.EsriMaxConcurrency)
	}
	if s.RequestTimeoutSeconds < 1 {
		return fmt.Errorf("request_timeout_seconds must be positive, got %d", s.RequestTimeoutSeconds)
	}
	if s.EsriRequestsPerSecond < 0 || s.GoogleRequestsPerSecond < 0 {
		return fmt.Errorf("requests per second must not be negative")
	}
	return nil
}
