package main

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/ericfisherdev/keyhold/internal/config"
)

// Build information, set via ldflags.
var (
	version   = "dev"
	commit    = "unknown"
	buildTime = "unknown"
)

// newApp creates the command-line application. Flags override the config
// file and environment only when given explicitly.
func newApp() *cli.App {
	return &cli.App{
		Name:    "keyhold",
		Usage:   "local HTTPS password vault with a self-provisioned certificate",
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildTime),
		Flags:   flags(),
		Action: func(c *cli.Context) error {
			cfg, err := config.Load(c.String("config"), flagOverrides(c))
			if err != nil {
				return err
			}
			return run(c.Context, cfg)
		},
	}
}

func flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:  "config",
			Usage: "Path to a YAML configuration file",
		},
		&cli.StringFlag{
			Name:  "addr",
			Usage: "HTTPS listen address (default \":443\")",
		},
		&cli.StringFlag{
			Name:    "country",
			Aliases: []string{"c"},
			Usage:   "Certificate country code",
		},
		&cli.StringFlag{
			Name:    "state",
			Aliases: []string{"s"},
			Usage:   "Certificate state or province",
		},
		&cli.StringFlag{
			Name:    "locality",
			Aliases: []string{"l"},
			Usage:   "Certificate locality",
		},
		&cli.StringFlag{
			Name:    "org",
			Aliases: []string{"o"},
			Usage:   "Certificate organization",
		},
		&cli.StringFlag{
			Name:  "cn",
			Usage: "Certificate common name",
		},
		&cli.StringSliceFlag{
			Name:  "san",
			Usage: "Subject alternative name (repeatable)",
		},
		&cli.IntFlag{
			Name:    "days",
			Aliases: []string{"d"},
			Usage:   "Certificate validity in days",
		},
		&cli.BoolFlag{
			Name:  "hide-console",
			Usage: "Hide the console window after start (Windows)",
		},
		&cli.BoolFlag{
			Name:  "open-browser",
			Usage: "Open the front end in the default browser after start",
		},
	}
}

// flagOverrides maps explicitly set flags to configuration keys.
func flagOverrides(c *cli.Context) map[string]any {
	stringFlags := map[string]string{
		"addr":     "server.addr",
		"country":  "identity.country",
		"state":    "identity.state",
		"locality": "identity.locality",
		"org":      "identity.org",
		"cn":       "identity.cn",
	}

	out := map[string]any{}
	for flag, key := range stringFlags {
		if c.IsSet(flag) {
			out[key] = c.String(flag)
		}
	}
	if c.IsSet("san") {
		out["identity.san"] = c.StringSlice("san")
	}
	if c.IsSet("days") {
		out["identity.days"] = c.Int("days")
	}
	if c.IsSet("hide-console") {
		out["console.hide"] = c.Bool("hide-console")
	}
	if c.IsSet("open-browser") {
		out["browser.open"] = c.Bool("open-browser")
	}
	return out
}
