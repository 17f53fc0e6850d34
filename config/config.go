// Package config loads server/client tuning parameters from a YAML
// file, with command-line flags (via pflag, as cmd/ninepfs wires them)
// taking precedence over file values. Grounded on rclone's config
// package, which layers a YAML-ish file under pflag-driven overrides
// for its own server/client settings.
package config

import (
	"fmt"
	"os"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

// Config holds the tunables of cmd/ninepfs's serve subcommand; the walk
// subcommand takes its own flags.
type Config struct {
	// Listen is the TCP host:port a "serve" session listener binds to.
	Listen string `yaml:"listen"`
	// Root is parsed from the file and the --root flag, but serve does
	// not read it: it always exports its built-in sysfs tree.
	Root string `yaml:"root"`
	// MaxMsize bounds the negotiated msize; zero means wire.DefaultMsize.
	MaxMsize int `yaml:"max_msize"`
	// MaxFids bounds simultaneously-bound fids per session.
	MaxFids int `yaml:"max_fids"`
	// MaxSessions bounds the session pool's slot count.
	MaxSessions int `yaml:"max_sessions"`
	// RequireAuth, if true, rejects Tattach without a completed Tauth.
	RequireAuth bool `yaml:"require_auth"`
	// MetricsAddr, if non-empty, serves Prometheus metrics on this
	// address (see the metrics package).
	MetricsAddr string `yaml:"metrics_addr"`
}

// Default returns a Config with the library's own defaults, before any
// file or flag has been applied.
func Default() Config {
	return Config{
		Listen:      "localhost:5640",
		MaxMsize:    8192,
		MaxFids:     32,
		MaxSessions: 64,
	}
}

// Load reads path as YAML into a copy of base, returning base
// unmodified (and no error) if path is empty.
func Load(path string, base Config) (Config, error) {
	if path == "" {
		return base, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return base, fmt.Errorf("config: reading %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &base); err != nil {
		return base, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	return base, nil
}

// BindFlags registers pflag flags that override cfg's fields when the
// flag set is parsed. Flags are bound by pointer into cfg, so they
// take effect as soon as fs.Parse runs.
func BindFlags(fs *pflag.FlagSet, cfg *Config) {
	fs.StringVar(&cfg.Listen, "listen", cfg.Listen, "address to listen on")
	fs.StringVar(&cfg.Root, "root", cfg.Root, "filesystem path (accepted but not used by serve)")
	fs.IntVar(&cfg.MaxMsize, "max-msize", cfg.MaxMsize, "maximum negotiable msize")
	fs.IntVar(&cfg.MaxFids, "max-fids", cfg.MaxFids, "max simultaneously bound fids per session")
	fs.IntVar(&cfg.MaxSessions, "max-sessions", cfg.MaxSessions, "max concurrent sessions")
	fs.BoolVar(&cfg.RequireAuth, "require-auth", cfg.RequireAuth, "reject attach without a completed Tauth")
	fs.StringVar(&cfg.MetricsAddr, "metrics-addr", cfg.MetricsAddr, "address to serve Prometheus metrics on")
}
