// Package config loads httpserver.Server's construction options (spec.md
// §6) from a YAML file, the ambient configuration layer SPEC_FULL.md §4.8
// adds around the core.
package config

import (
	"os"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// ServerOptions mirrors the fields of spec.md §6's "Server construction
// options" table that are meaningful to configure ahead of time (TLS
// certificate/key paths replace the in-memory *tls.Config the Server
// struct itself takes, since a config file can only name files on disk).
type ServerOptions struct {
	Addr   string `yaml:"addr"`
	Secure bool   `yaml:"secure"`
	TLSCertFile string `yaml:"tls_cert_file"`
	TLSKeyFile  string `yaml:"tls_key_file"`

	NoExpectHandler bool `yaml:"no_expect_handler"`

	MaxConnections     int           `yaml:"max_connections"`
	HeadersTimeout     time.Duration `yaml:"headers_timeout"`
	MaxHeadersSize     int           `yaml:"max_headers_size"`
	MaxRequestBodySize int64         `yaml:"max_request_body_size"`
	BacklogSize        int           `yaml:"backlog_size"`
	ServerURI          string        `yaml:"server_uri"`

	// IdleSweepInterval/IdleTimeout feed housekeep's sweep job (SPEC_FULL.md
	// §4.12); zero disables it.
	IdleSweepInterval time.Duration `yaml:"idle_sweep_interval"`
	IdleTimeout       time.Duration `yaml:"idle_timeout"`

	// HealthLogInterval feeds housekeep's process-health job; zero disables
	// it.
	HealthLogInterval time.Duration `yaml:"health_log_interval"`
}

// Defaults returns a ServerOptions populated with httpserver.NewServer's
// own defaults, so a config file only needs to name what it overrides.
func Defaults() ServerOptions {
	return ServerOptions{
		Addr:               ":8080",
		MaxConnections:     -1,
		MaxHeadersSize:     1 << 20,
		MaxRequestBodySize: 1 << 30,
		BacklogSize:        128,
	}
}

// Load reads a YAML file at path into a ServerOptions seeded from Defaults.
func Load(path string) (ServerOptions, error) {
	opts := Defaults()
	data, err := os.ReadFile(path)
	if err != nil {
		return opts, errors.Wrapf(err, "config: reading %q", path)
	}
	if err := yaml.Unmarshal(data, &opts); err != nil {
		return opts, errors.Wrapf(err, "config: parsing %q", path)
	}
	return opts, nil
}
