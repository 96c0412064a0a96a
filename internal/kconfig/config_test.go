package kconfig

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/k1fsy/station-samoyed/internal/kdigi"
)

func TestDefaultsMatchSpec(t *testing.T) {
	cfg := Defaults()
	assert.Equal(t, 3, cfg.RetryMax)
	assert.Equal(t, 20*time.Second, cfg.RetryFast)
	assert.Equal(t, 600*time.Second, cfg.RetrySlow)
	assert.Equal(t, "off", cfg.Digipeat)
}

func TestLoadOverridesDefaultsAndTolerateUnknownKeys(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "station.yaml")
	contents := []byte("mycall: K1ABC-1\nmyalias: WIDE1\ndigipeat: on\nsome_future_key: 42\n")
	require.NoError(t, os.WriteFile(path, contents, 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "K1ABC-1", cfg.MyCall)
	assert.Equal(t, "WIDE1", cfg.MyAlias)
	assert.Equal(t, kdigi.On, cfg.DigipeatMode())
}

func TestLoadParsesDebugStationFilters(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "station.yaml")
	contents := []byte("mycall: K1ABC-1\ndebug_station_filters:\n  N0CALL-9: 2\n  W1XYZ: 1\n")
	require.NoError(t, os.WriteFile(path, contents, 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.DebugStationFilters["N0CALL-9"])
	assert.Equal(t, 1, cfg.DebugStationFilters["W1XYZ"])
}

func TestBindFlagsOverridesConfig(t *testing.T) {
	cfg := Defaults()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	BindFlags(fs, &cfg)

	require.NoError(t, fs.Parse([]string{"--mycall=N0CALL-9", "--digipeat=self", "-d", "-d"}))
	assert.Equal(t, "N0CALL-9", cfg.MyCall)
	assert.Equal(t, kdigi.Self, cfg.DigipeatMode())
	assert.Equal(t, 2, cfg.DebugLevel)
}
