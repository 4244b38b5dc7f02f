package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadSettingsMissingFileUsesDefaults(t *testing.T) {
	s, err := LoadSettings(filepath.Join(t.TempDir(), "absent.toml"))
	require.NoError(t, err)
	if diff := cmp.Diff(DefaultSettings(), s); diff != "" {
		t.Errorf("settings mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadSettingsMergesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
concurrency = 8
verbose = true

[telemetry]
posthog_key = "phc_test"
`), 0644))

	s, err := LoadSettings(path)
	require.NoError(t, err)

	want := DefaultSettings()
	want.Concurrency = 8
	want.Verbose = true
	want.Telemetry.PostHogKey = "phc_test"
	if diff := cmp.Diff(want, s); diff != "" {
		t.Errorf("settings mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadSettingsRejectsBadToml(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.toml")
	require.NoError(t, os.WriteFile(path, []byte("concurrency = [oops"), 0644))

	_, err := LoadSettings(path)
	assert.Error(t, err)
}

func TestSaveSettingsRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "settings.toml")
	s := DefaultSettings()
	s.EsriMaxConcurrency = 4
	s.GoogleRequestsPerSecond = 2.5

	require.NoError(t, SaveSettings(path, s))
	got, err := LoadSettings(path)
	require.NoError(t, err)
	if diff := cmp.Diff(s, got); diff != "" {
		t.Errorf("settings mismatch (-want +got):\n%s", diff)
	}
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"HISTORICAL_IMAGERY_CONCURRENCY":                "5",
		"HISTORICAL_IMAGERY_ESRI_REQUESTS_PER_SECOND":   "0",
		"HISTORICAL_IMAGERY_GOOGLE_REQUESTS_PER_SECOND": " 3.5 ",
		"HISTORICAL_IMAGERY_VERBOSE":                    "true",
		"HISTORICAL_IMAGERY_POSTHOG_KEY":                "phc_env",
	}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}

	s := DefaultSettings()
	require.NoError(t, s.ApplyEnv(lookup))

	assert.Equal(t, 5, s.Concurrency)
	assert.Equal(t, 10, s.EsriMaxConcurrency)
	assert.Zero(t, s.EsriRequestsPerSecond)
	assert.Equal(t, 3.5, s.GoogleRequestsPerSecond)
	assert.True(t, s.Verbose)
	assert.Equal(t, "phc_env", s.Telemetry.PostHogKey)
}

func TestApplyEnvRejectsGarbage(t *testing.T) {
	tests := map[string]string{
		"HISTORICAL_IMAGERY_CONCURRENCY":              "many",
		"HISTORICAL_IMAGERY_ESRI_REQUESTS_PER_SECOND": "fast",
		"HISTORICAL_IMAGERY_VERBOSE":                  "loud",
	}
	for key, value := range tests {
		t.Run(key, func(t *testing.T) {
			lookup := func(k string) (string, bool) {
				if k == key {
					return value, true
				}
				return "", false
			}
			err := DefaultSettings().ApplyEnv(lookup)
			assert.ErrorContains(t, err, key)
		})
	}
}

func TestLoadAppliesEnvironment(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("HISTORICAL_IMAGERY_ESRI_MAX_CONCURRENCY", "3")

	s, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	require.NoError(t, err)
	assert.Equal(t, 3, s.EsriMaxConcurrency)
}

func TestLoadReadsDotEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("HISTORICAL_IMAGERY_PACKET_CACHE_SIZE=64\n"), 0644))
	// godotenv sets the variable for the process; register it for cleanup
	t.Setenv("HISTORICAL_IMAGERY_PACKET_CACHE_SIZE", "")
	require.NoError(t, os.Unsetenv("HISTORICAL_IMAGERY_PACKET_CACHE_SIZE"))

	s, err := Load(filepath.Join(dir, "absent.toml"))
	require.NoError(t, err)
	assert.Equal(t, 64, s.PacketCacheSize)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Settings)
	}{
		{"zero concurrency", func(s *Settings) { s.Concurrency = 0 }},
		{"zero esri concurrency", func(s *Settings) { s.EsriMaxConcurrency = 0 }},
		{"zero timeout", func(s *Settings) { s.RequestTimeoutSeconds = 0 }},
		{"negative rate", func(s *Settings) { s.GoogleRequestsPerSecond = -1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := DefaultSettings()
			tt.mutate(s)
			assert.Error(t, s.Validate())
		})
	}
	assert.NoError(t, DefaultSettings().Validate())
}
