// Package config holds process-level settings taken from the environment.
package config

import (
	"fmt"
	"strings"

	"github.com/caarlos0/env/v11"
)

// ParseEnv loads configuration from environment variables.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Server is the environment surface of cmd/server. Flags take these as their defaults.
type Server struct {
	Addr       string `env:"RIFTGATE_ADDR" envDefault:":8080"`
	DataDir    string `env:"RIFTGATE_DATA_DIR" envDefault:"./data"`
	ConfigsDir string `env:"RIFTGATE_CONFIGS" envDefault:"./configs"`
	Seed       int64  `env:"RIFTGATE_SEED" envDefault:"1337"`
	LogLevel   string `env:"RIFTGATE_LOG_LEVEL" envDefault:"info"`
	PrettyLog  bool   `env:"RIFTGATE_PRETTY_LOG" envDefault:"false"`

	DeployEnv string `env:"DEPLOY_ENV"`
	// EnableAdminHTTP has no tag default; LoadServer presets it from DeployEnv.
	EnableAdminHTTP bool `env:"RIFTGATE_ENABLE_ADMIN_HTTP"`
	EnablePprofHTTP bool `env:"RIFTGATE_ENABLE_PPROF_HTTP" envDefault:"false"`

	Offsite Offsite `envPrefix:"RIFTGATE_OFFSITE_"`
}

// Offsite configures the S3-compatible mirror for snapshots and travel logs. It is off unless
// Endpoint is set.
type Offsite struct {
	Endpoint  string `env:"ENDPOINT"`
	Bucket    string `env:"BUCKET"`
	Region    string `env:"REGION" envDefault:"auto"`
	AccessKey string `env:"ACCESS_KEY_ID"`
	SecretKey string `env:"SECRET_ACCESS_KEY"`
	Prefix    string `env:"PREFIX"`
	Workers   int    `env:"WORKERS" envDefault:"2"`
}

func (o Offsite) Enabled() bool { return o.Endpoint != "" }

// Shared reports whether the deployment is staging or production.
func (s Server) Shared() bool {
	switch strings.ToLower(strings.TrimSpace(s.DeployEnv)) {
	case "staging", "production":
		return true
	}
	return false
}

func LoadServer() (Server, error) {
	var deploy struct {
		Env string `env:"DEPLOY_ENV"`
	}
	if err := ParseEnv(&deploy); err != nil {
		return Server{}, err
	}
	s := Server{DeployEnv: deploy.Env}
	s.EnableAdminHTTP = !s.Shared()
	if err := ParseEnv(&s); err != nil {
		return s, err
	}
	return s, nil
}
