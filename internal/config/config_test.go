package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// isolateConfigEnv saves and unsets all KEYHOLD_ env vars so tests don't
// inherit values from the host environment. t.Cleanup restores them.
func isolateConfigEnv(t *testing.T) {
	t.Helper()
	for _, kv := range os.Environ() {
		key, _, _ := strings.Cut(kv, "=")
		if !strings.HasPrefix(key, EnvPrefix) {
			continue
		}
		orig := os.Getenv(key)
		t.Cleanup(func() { os.Setenv(key, orig) })
		os.Unsetenv(key)
	}
}

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "keyhold.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	isolateConfigEnv(t)

	cfg, err := Load("", nil)

	require.NoError(t, err)
	assert.Equal(t, ":443", cfg.Server.Addr)
	assert.Equal(t, "htdocs", cfg.Server.DocRoot)
	assert.Equal(t, "passwords.json", cfg.Store.Path)
	assert.Equal(t, "cert/cert.pem", cfg.TLS.Cert)
	assert.Equal(t, "cert/key.pem", cfg.TLS.Key)
	assert.Equal(t, "CN", cfg.Identity.Country)
	assert.Equal(t, "Beijing", cfg.Identity.State)
	assert.Equal(t, "Beijing", cfg.Identity.Locality)
	assert.Equal(t, "My Test Company", cfg.Identity.Org)
	assert.Equal(t, "localhost", cfg.Identity.CN)
	assert.Equal(t, []string{"localhost", "127.0.0.1"}, cfg.Identity.SAN)
	assert.Equal(t, 365, cfg.Identity.Days)
	assert.Equal(t, "audit.db", cfg.Audit.Path)
	assert.Empty(t, cfg.Metrics.Addr)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Empty(t, cfg.Log.File)
	assert.False(t, cfg.Console.Hide)
	assert.True(t, cfg.Browser.Open)
}

func TestLoad_File(t *testing.T) {
	isolateConfigEnv(t)
	path := writeFile(t, `
server:
  addr: "127.0.0.1:8443"
identity:
  cn: example.test
  san: [example.test]
  days: 30
audit:
  path: ""
browser:
  open: false
`)

	cfg, err := Load(path, nil)

	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:8443", cfg.Server.Addr)
	assert.Equal(t, "example.test", cfg.Identity.CN)
	assert.Equal(t, []string{"example.test"}, cfg.Identity.SAN)
	assert.Equal(t, 30, cfg.Identity.Days)
	assert.Empty(t, cfg.Audit.Path)
	assert.False(t, cfg.Browser.Open)
	// Untouched keys keep their defaults.
	assert.Equal(t, "passwords.json", cfg.Store.Path)
}

func TestLoad_MissingFile(t *testing.T) {
	isolateConfigEnv(t)

	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"), nil)

	require.Error(t, err)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	isolateConfigEnv(t)
	path := writeFile(t, "server:\n  addr: \":9000\"\n")
	t.Setenv("KEYHOLD_SERVER_ADDR", ":9443")
	t.Setenv("KEYHOLD_SERVER_DOCROOT", "/srv/www")
	t.Setenv("KEYHOLD_IDENTITY_SAN", "a.test, b.test,")
	t.Setenv("KEYHOLD_IDENTITY_DAYS", "7")
	t.Setenv("KEYHOLD_CONSOLE_HIDE", "true")

	cfg, err := Load(path, nil)

	require.NoError(t, err)
	assert.Equal(t, ":9443", cfg.Server.Addr)
	assert.Equal(t, "/srv/www", cfg.Server.DocRoot)
	assert.Equal(t, []string{"a.test", "b.test"}, cfg.Identity.SAN)
	assert.Equal(t, 7, cfg.Identity.Days)
	assert.True(t, cfg.Console.Hide)
}

func TestLoad_OverridesWin(t *testing.T) {
	isolateConfigEnv(t)
	t.Setenv("KEYHOLD_IDENTITY_CN", "from-env")

	cfg, err := Load("", map[string]any{
		"identity.cn":   "from-flag",
		"identity.san":  []string{"x.test"},
		"identity.days": 2,
	})

	require.NoError(t, err)
	assert.Equal(t, "from-flag", cfg.Identity.CN)
	assert.Equal(t, []string{"x.test"}, cfg.Identity.SAN)
	assert.Equal(t, 2, cfg.Identity.Days)
}

func TestLoad_EnvSANList(t *testing.T) {
	tests := []struct {
		name  string
		value string
		want  []string
	}{
		{name: "single", value: "only.test", want: []string{"only.test"}},
		{name: "two", value: "a.test,127.0.0.1", want: []string{"a.test", "127.0.0.1"}},
		{name: "spaces and trailing comma", value: " a.test , b.test,", want: []string{"a.test", "b.test"}},
		{name: "empty", value: "", want: []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			isolateConfigEnv(t)
			t.Setenv("KEYHOLD_IDENTITY_SAN", tt.value)

			cfg, err := Load("", nil)

			require.NoError(t, err)
			assert.Equal(t, tt.want, cfg.Identity.SAN)
		})
	}
}

func TestEnvValue(t *testing.T) {
	key, v := envValue("KEYHOLD_IDENTITY_SAN", "a,b")
	assert.Equal(t, "identity.san", key)
	assert.Equal(t, []string{"a", "b"}, v)

	key, v = envValue("KEYHOLD_SERVER_DOCROOT", "a,b")
	assert.Equal(t, "server.docroot", key)
	assert.Equal(t, "a,b", v)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "empty addr", mutate: func(c *Config) { c.Server.Addr = "" }, wantErr: "server.addr"},
		{name: "empty store", mutate: func(c *Config) { c.Store.Path = "" }, wantErr: "store.path"},
		{name: "empty cert", mutate: func(c *Config) { c.TLS.Cert = "" }, wantErr: "tls.cert"},
		{name: "empty key", mutate: func(c *Config) { c.TLS.Key = "" }, wantErr: "tls.key"},
		{name: "zero days", mutate: func(c *Config) { c.Identity.Days = 0 }, wantErr: "identity.days"},
		{name: "bad level", mutate: func(c *Config) { c.Log.Level = "loud" }, wantErr: "log.level"},
		{name: "upper level", mutate: func(c *Config) { c.Log.Level = "DEBUG" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			isolateConfigEnv(t)
			cfg, err := Load("", nil)
			require.NoError(t, err)

			tt.mutate(cfg)
			err = cfg.Validate()

			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoad_InvalidDaysRejected(t *testing.T) {
	isolateConfigEnv(t)
	t.Setenv("KEYHOLD_IDENTITY_DAYS", "0")

	_, err := Load("", nil)

	require.Error(t, err)
}

func TestServerName(t *testing.T) {
	cfg := &Config{Identity: IdentityConfig{CN: "cn.test", SAN: []string{"first.test", "second.test"}}}
	assert.Equal(t, "first.test", cfg.ServerName())

	cfg.Identity.SAN = nil
	assert.Equal(t, "cn.test", cfg.ServerName())
}
