package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"

	"github.com/ericfisherdev/keyhold/internal/config"
)

func parseOverrides(t *testing.T, args ...string) map[string]any {
	t.Helper()
	var got map[string]any
	app := newApp()
	app.Action = func(c *cli.Context) error {
		got = flagOverrides(c)
		return nil
	}
	require.NoError(t, app.Run(append([]string{"keyhold"}, args...)))
	return got
}

func TestFlagOverrides_OnlyExplicitFlags(t *testing.T) {
	got := parseOverrides(t)
	assert.Empty(t, got)
}

func TestFlagOverrides_ShortAndLongForms(t *testing.T) {
	got := parseOverrides(t,
		"-c", "US", "-s", "CA", "-l", "SF", "-o", "Acme",
		"--cn", "example.test",
		"--san", "example.test", "--san", "www.example.test",
		"-d", "30",
		"--addr", ":8443",
		"--hide-console",
		"--open-browser=false",
	)

	assert.Equal(t, map[string]any{
		"identity.country":  "US",
		"identity.state":    "CA",
		"identity.locality": "SF",
		"identity.org":      "Acme",
		"identity.cn":       "example.test",
		"identity.san":      []string{"example.test", "www.example.test"},
		"identity.days":     30,
		"server.addr":       ":8443",
		"console.hide":      true,
		"browser.open":      false,
	}, got)
}

func TestIdentityParams(t *testing.T) {
	cfg := &config.Config{Identity: config.IdentityConfig{
		Country: "CN", State: "Beijing", Locality: "Beijing", Org: "My Test Company",
		CN: "localhost", SAN: []string{"localhost"}, Days: 365,
	}}

	p := identityParams(cfg)

	assert.Equal(t, "localhost", p.Subject.CommonName)
	assert.Equal(t, "Beijing", p.Subject.State)
	assert.Equal(t, []string{"localhost"}, p.SANs)
	assert.Equal(t, 365, p.ValidityDays)
}

func TestNewLogger_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "server.log")

	logger, closer, err := newLogger(config.LogConfig{Level: "debug", File: path})
	require.NoError(t, err)
	logger.Debug("hello", "k", "v")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "msg=hello")
	assert.Contains(t, string(data), "k=v")
}

func TestNewLogger_LevelFilters(t *testing.T) {
	path := filepath.Join(t.TempDir(), "server.log")

	logger, closer, err := newLogger(config.LogConfig{Level: "warn", File: path})
	require.NoError(t, err)
	logger.Info("quiet")
	logger.Warn("loud")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "quiet")
	assert.Contains(t, string(data), "loud")
}

func TestNewLogger_BadLevel(t *testing.T) {
	_, _, err := newLogger(config.LogConfig{Level: "loud"})
	require.Error(t, err)
}
