// Package config loads application configuration. Sources are layered, later
// ones overriding earlier: built-in defaults, an optional YAML file, KEYHOLD_
// environment variables, then command-line overrides.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/knadh/koanf/maps"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix is the prefix of environment variables read by Load.
// KEYHOLD_IDENTITY_SAN maps to identity.san.
const EnvPrefix = "KEYHOLD_"

// Config holds the application configuration.
type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Store    StoreConfig    `koanf:"store"`
	TLS      TLSConfig      `koanf:"tls"`
	Identity IdentityConfig `koanf:"identity"`
	Audit    AuditConfig    `koanf:"audit"`
	Metrics  MetricsConfig  `koanf:"metrics"`
	Log      LogConfig      `koanf:"log"`
	Console  ConsoleConfig  `koanf:"console"`
	Browser  BrowserConfig  `koanf:"browser"`
}

// ServerConfig controls the HTTPS listener and the static front end.
type ServerConfig struct {
	Addr    string `koanf:"addr"`
	DocRoot string `koanf:"docroot"`
}

// StoreConfig locates the credential document.
type StoreConfig struct {
	Path string `koanf:"path"`
}

// TLSConfig locates the server identity files.
type TLSConfig struct {
	Cert string `koanf:"cert"`
	Key  string `koanf:"key"`
}

// IdentityConfig describes the certificate generated when no identity exists.
type IdentityConfig struct {
	Country  string   `koanf:"country"`
	State    string   `koanf:"state"`
	Locality string   `koanf:"locality"`
	Org      string   `koanf:"org"`
	CN       string   `koanf:"cn"`
	SAN      []string `koanf:"san"`
	Days     int      `koanf:"days"`
}

// AuditConfig locates the mutation journal. An empty path disables it.
type AuditConfig struct {
	Path string `koanf:"path"`
}

// MetricsConfig controls the Prometheus listener. An empty addr disables it.
type MetricsConfig struct {
	Addr string `koanf:"addr"`
}

// LogConfig controls the process logger.
type LogConfig struct {
	Level string `koanf:"level"`
	File  string `koanf:"file"`
}

// ConsoleConfig controls the console window.
type ConsoleConfig struct {
	Hide bool `koanf:"hide"`
}

// BrowserConfig controls opening the front end after start.
type BrowserConfig struct {
	Open bool `koanf:"open"`
}

// Defaults returns the built-in configuration as flat dotted keys.
func Defaults() map[string]any {
	return map[string]any{
		"server.addr":       ":443",
		"server.docroot":    "htdocs",
		"store.path":        "passwords.json",
		"tls.cert":          "cert/cert.pem",
		"tls.key":           "cert/key.pem",
		"identity.country":  "CN",
		"identity.state":    "Beijing",
		"identity.locality": "Beijing",
		"identity.org":      "My Test Company",
		"identity.cn":       "localhost",
		"identity.san":      []string{"localhost", "127.0.0.1"},
		"identity.days":     365,
		"audit.path":        "audit.db",
		"metrics.addr":      "",
		"log.level":         "info",
		"log.file":          "",
		"console.hide":      false,
		"browser.open":      true,
	}
}

// mapProvider is a koanf provider over an in-memory map.
type mapProvider map[string]any

func (m mapProvider) ReadBytes() ([]byte, error) {
	return nil, errors.New("config: map provider does not support ReadBytes")
}

func (m mapProvider) Read() (map[string]any, error) {
	return maps.Unflatten(m, "."), nil
}

// Load builds the configuration. configFile may be empty; when set the file
// must exist. overrides holds flat dotted keys, typically from flags the user
// actually set. The result is validated.
func Load(configFile string, overrides map[string]any) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(mapProvider(Defaults()), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if configFile != "" {
		if err := k.Load(file.Provider(configFile), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", configFile, err)
		}
	}

	if err := k.Load(env.ProviderWithValue(EnvPrefix, ".", envValue), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	if len(overrides) > 0 {
		if err := k.Load(mapProvider(overrides), nil); err != nil {
			return nil, fmt.Errorf("load overrides: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.Identity.SAN = trimSANs(cfg.Identity.SAN)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// listKeys are settings that hold a list; from the environment they are
// given as a comma-separated value.
var listKeys = map[string]bool{
	"identity.san": true,
}

// envValue maps KEYHOLD_SECTION_KEY to section.key and splits list values.
func envValue(name, value string) (string, any) {
	key := strings.ToLower(strings.TrimPrefix(name, EnvPrefix))
	key = strings.ReplaceAll(key, "_", ".")
	if listKeys[key] {
		return key, strings.Split(value, ",")
	}
	return key, value
}

// trimSANs drops blank entries so "a, b," and ["a","b"] mean the same thing.
func trimSANs(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	switch {
	case c.Server.Addr == "":
		return errors.New("config: server.addr must not be empty")
	case c.Store.Path == "":
		return errors.New("config: store.path must not be empty")
	case c.TLS.Cert == "" || c.TLS.Key == "":
		return errors.New("config: tls.cert and tls.key must not be empty")
	case c.Identity.Days < 1:
		return fmt.Errorf("config: identity.days must be at least 1, got %d", c.Identity.Days)
	}

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: unknown log.level %q", c.Log.Level)
	}
	return nil
}

// ServerName is the TLS name clients should verify: the first SAN, or the
// common name when no SANs are configured.
func (c *Config) ServerName() string {
	if len(c.Identity.SAN) > 0 {
		return c.Identity.SAN[0]
	}
	return c.Identity.CN
}
