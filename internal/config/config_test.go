package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	return p
}

func TestLoad_DefaultsWithoutFile(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("")

	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_FileThenEnv(t *testing.T) {
	// Arrange
	dir := t.TempDir()
	t.Chdir(dir)
	path := writeFile(t, dir, "tracker.json", `{
		"tracker": {"symbols": ["AAPL", "MSFT"], "cache_capacity": 50, "out_file": "ticks.csv"},
		"provider": {"name": "alpaca"}
	}`)
	t.Setenv("TRACKER_CACHE_CAPACITY", "25")
	t.Setenv("PROVIDER_ALPACA_API_KEY", "key")
	t.Setenv("SERVER_ADDR", ":9090")

	// Act
	cfg, err := Load(path)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, []string{"AAPL", "MSFT"}, cfg.Tracker.Symbols)
	assert.Equal(t, 25, cfg.Tracker.CacheCapacity)
	assert.Equal(t, "ticks.csv", cfg.Tracker.OutFile)
	assert.Equal(t, "alpaca", cfg.Provider.Name)
	assert.Equal(t, "key", cfg.Provider.Alpaca.APIKey)
	assert.Equal(t, "iex", cfg.Provider.Alpaca.Feed, "defaults survive a partial file")
	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, 30, cfg.Tracker.PollIntervalSec)
}

func TestLoad_DotEnvAndConfigFileEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	path := writeFile(t, dir, "custom.json", `{"log": {"level": "debug"}}`)
	writeFile(t, dir, ".env", "TRACKER_SYMBOLS=GOOG,IBM\n")
	t.Setenv("CONFIG_FILE", path)

	cfg, err := Load("")

	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, []string{"GOOG", "IBM"}, cfg.Tracker.Symbols)
}

func TestLoad_Errors(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	_, err := Load(writeFile(t, dir, "bad.json", `{"tracker":`))
	assert.ErrorContains(t, err, "parse config")

	t.Setenv("TRACKER_CACHE_CAPACITY", "many")
	_, err = Load("")
	assert.ErrorContains(t, err, "parse env")
}

func TestValidate(t *testing.T) {
	valid := Default()
	valid.Tracker.Symbols = []string{"AAPL"}
	require.NoError(t, valid.Validate())

	tests := map[string]func(*Config){
		"no symbols":       func(c *Config) { c.Tracker.Symbols = nil },
		"zero capacity":    func(c *Config) { c.Tracker.CacheCapacity = 0 },
		"zero poll":        func(c *Config) { c.Tracker.PollIntervalSec = 0 },
		"zero flush":       func(c *Config) { c.Tracker.FlushIntervalSec = 0 },
		"negative stagger": func(c *Config) { c.Tracker.StaggerMs = -1 },
		"bad provider":     func(c *Config) { c.Provider.Name = "bloomberg" },
		"server no addr":   func(c *Config) { c.Server.Addr = "" },
		"redis no addr": func(c *Config) {
			c.Redis.Enabled = true
			c.Redis.Addr = ""
		},
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			cfg := valid
			cfg.Tracker.Symbols = append([]string(nil), valid.Tracker.Symbols...)
			mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestTrackerFrom(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	got, err := Tracker{}.From(now)
	require.NoError(t, err)
	assert.Equal(t, now.AddDate(0, 0, -60), got)

	got, err = Tracker{Period: "2024-02-15"}.From(now)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 2, 15, 0, 0, 0, 0, time.UTC), got)

	got, err = Tracker{Period: "15/02/2024"}.From(now)
	assert.Error(t, err)
	assert.Equal(t, now.AddDate(0, 0, -60), got)
}

func TestSymbols(t *testing.T) {
	assert.Equal(t, []string{"AAPL", "MSFT", "GOOG"}, SplitSymbols(" AAPL,MSFT,\nGOOG ,,\n"))

	path := writeFile(t, t.TempDir(), "symbols.csv", "AAPL,AMD\n")
	got, err := ReadSymbols(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"AAPL", "AMD"}, got)

	_, err = ReadSymbols(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}
