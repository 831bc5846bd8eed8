package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/goccy/go-yaml"
)

// Loader reads and parses router configuration, grounded on the
// teacher's Loader (env-var expansion via regexp before YAML
// unmarshalling, defaults-first then overlay).
type Loader struct {
	envPattern *regexp.Regexp
}

// NewLoader builds a Loader.
func NewLoader() *Loader {
	return &Loader{envPattern: regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)}
}

// Load reads path and parses it as router configuration.
func (l *Loader) Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}
	return l.Parse(data)
}

// Parse parses YAML bytes into a Config, starting from DefaultConfig
// and expanding ${VAR} references first.
func (l *Loader) Parse(data []byte) (*Config, error) {
	expanded := l.expandEnvVars(string(data))

	cfg := DefaultConfig()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("config: parsing yaml: %w", err)
	}

	if err := l.validate(cfg); err != nil {
		return nil, fmt.Errorf("config: validation failed: %w", err)
	}
	return cfg, nil
}

func (l *Loader) expandEnvVars(input string) string {
	return l.envPattern.ReplaceAllStringFunc(input, func(match string) string {
		name := strings.TrimSuffix(strings.TrimPrefix(match, "${"), "}")
		if v, ok := os.LookupEnv(name); ok {
			return v
		}
		return match
	})
}

func (l *Loader) validate(cfg *Config) error {
	switch cfg.Direction {
	case DirectionRemoteTerminated, DirectionRemoteOriginated:
	default:
		return fmt.Errorf("direction must be %q or %q, got %q", DirectionRemoteTerminated, DirectionRemoteOriginated, cfg.Direction)
	}

	if strings.TrimSpace(cfg.ListenAddress) == "" {
		return fmt.Errorf("listenAddress is required")
	}

	validDatabaseKinds := map[string]bool{"None": true, "MySQL": true, "Postgres": true, "File": true}
	if !validDatabaseKinds[cfg.DatabaseKind] {
		return fmt.Errorf("invalid databaseKind: %s", cfg.DatabaseKind)
	}
	if cfg.DatabaseKind == "File" && strings.TrimSpace(cfg.DatabaseConnection) == "" {
		return fmt.Errorf("databaseConnection (the profile directory) is required when databaseKind is File")
	}

	if cfg.ResponseTimeout <= 0 {
		return fmt.Errorf("responseTimeout must be > 0")
	}
	if cfg.Dispatch.Workers <= 0 {
		return fmt.Errorf("dispatch.workers must be > 0")
	}
	if cfg.Dispatch.QueueSize <= 0 {
		return fmt.Errorf("dispatch.queueSize must be > 0")
	}

	return nil
}
