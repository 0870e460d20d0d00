// Package config handles Ratatoskr client configuration.
//
// Configuration is loaded from environment variables to stay compatible with
// Neo4j tooling and deployment workflows: the standard NEO4J_URI and
// NEO4J_AUTH variables are honored, plus Ratatoskr-specific extensions
// prefixed with RATATOSKR_. A YAML file can supply the same settings;
// environment variables win when both are set.
//
// Example Usage:
//
//	cfg, err := config.Load("ratatoskr.yaml")
//	if err != nil {
//		log.Fatalf("Invalid config: %v", err)
//	}
//
//	fmt.Printf("Connecting to %s as %s\n", cfg.URI, cfg.Auth.Username)
//
// Environment Variables:
//
// Neo4j-Compatible:
//   - NEO4J_URI="bolt://localhost:7687"
//   - NEO4J_AUTH="username/password" or "none"
//   - NEO4J_dbms_default__database="neo4j"
//
// Ratatoskr-Specific:
//   - RATATOSKR_QUERY_TIMEOUT=30s
//   - RATATOSKR_CONNECT_TIMEOUT=10s
//   - RATATOSKR_LOG_LEVEL=info
//   - RATATOSKR_LOG_FORMAT=json
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds everything the client needs to reach an engine and behave
// predictably once connected.
//
// Use LoadFromEnv() for pure environment configuration, or Load(path) to
// overlay environment variables on a YAML file.
type Config struct {
	// URI is the Bolt endpoint, e.g. "bolt://localhost:7687" or
	// "neo4j://cluster.example.com".
	URI string `yaml:"uri"`

	// Database selects the engine database queries run against. Empty means
	// the engine's default.
	Database string `yaml:"database"`

	// Auth holds the Bolt credentials.
	Auth AuthConfig `yaml:"auth"`

	// ConnectTimeout bounds driver connectivity verification.
	ConnectTimeout time.Duration `yaml:"connect_timeout"`

	// QueryTimeout bounds individual query executions. Zero means no
	// client-side bound.
	QueryTimeout time.Duration `yaml:"query_timeout"`

	// Logging configures the client's structured logger.
	Logging LoggingConfig `yaml:"logging"`
}

// AuthConfig holds Bolt authentication settings.
type AuthConfig struct {
	// Enabled controls whether credentials are sent at all.
	Enabled bool `yaml:"enabled"`
	// Username for basic auth.
	Username string `yaml:"username"`
	// Password for basic auth.
	Password string `yaml:"password"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is one of trace, debug, info, warn, error.
	Level string `yaml:"level"`
	// Format is "json" or "text".
	Format string `yaml:"format"`
}

// Default returns the configuration used when nothing is set: a local
// unauthenticated engine and quiet text logging.
func Default() *Config {
	return &Config{
		URI:            "bolt://localhost:7687",
		Database:       "",
		ConnectTimeout: 10 * time.Second,
		QueryTimeout:   30 * time.Second,
		Auth: AuthConfig{
			Enabled:  false,
			Username: "neo4j",
			Password: "",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// LoadFromEnv builds a Config from environment variables, starting from
// Default() for anything unset.
func LoadFromEnv() *Config {
	cfg := Default()
	applyEnv(cfg)
	return cfg
}

// Load reads a YAML config file and overlays environment variables on top.
// A missing file is not an error; the result is then identical to
// LoadFromEnv().
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parsing config %s: %w", path, err)
			}
		case os.IsNotExist(err):
			// Fall through to env-only configuration.
		default:
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	applyEnv(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	cfg.URI = getEnv("NEO4J_URI", cfg.URI)
	cfg.Database = getEnv("NEO4J_dbms_default__database", cfg.Database)

	// NEO4J_AUTH format: "username/password" or "none".
	if authStr := os.Getenv("NEO4J_AUTH"); authStr != "" {
		if authStr == "none" {
			cfg.Auth.Enabled = false
		} else {
			cfg.Auth.Enabled = true
			parts := strings.SplitN(authStr, "/", 2)
			if len(parts) == 2 {
				cfg.Auth.Username = parts[0]
				cfg.Auth.Password = parts[1]
			} else {
				cfg.Auth.Password = authStr
			}
		}
	}

	cfg.ConnectTimeout = getEnvDuration("RATATOSKR_CONNECT_TIMEOUT", cfg.ConnectTimeout)
	cfg.QueryTimeout = getEnvDuration("RATATOSKR_QUERY_TIMEOUT", cfg.QueryTimeout)
	cfg.Logging.Level = getEnv("RATATOSKR_LOG_LEVEL", cfg.Logging.Level)
	cfg.Logging.Format = getEnv("RATATOSKR_LOG_FORMAT", cfg.Logging.Format)
}

// Validate checks the configuration for logical errors and invalid values.
// Call it after loading and before dialing.
func (c *Config) Validate() error {
	if c.URI == "" {
		return fmt.Errorf("connection URI must not be empty")
	}
	if !strings.Contains(c.URI, "://") {
		return fmt.Errorf("connection URI %q has no scheme", c.URI)
	}
	if c.Auth.Enabled && c.Auth.Username == "" {
		return fmt.Errorf("authentication enabled but no username provided")
	}
	if c.ConnectTimeout < 0 {
		return fmt.Errorf("connect timeout must not be negative")
	}
	if c.QueryTimeout < 0 {
		return fmt.Errorf("query timeout must not be negative")
	}
	switch strings.ToLower(c.Logging.Format) {
	case "json", "text":
	default:
		return fmt.Errorf("unknown log format %q", c.Logging.Format)
	}
	return nil
}

// String returns a safe representation of the Config. The password is never
// included, making this safe for logging.
func (c *Config) String() string {
	user := "<none>"
	if c.Auth.Enabled {
		user = c.Auth.Username
	}
	return fmt.Sprintf("Config{URI: %s, Database: %q, User: %s, QueryTimeout: %s}",
		c.URI, c.Database, user, c.QueryTimeout)
}

// Helper functions for environment variable parsing.

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
		// Bare numbers are treated as seconds.
		if secs, err := strconv.Atoi(val); err == nil {
			return time.Duration(secs) * time.Second
		}
	}
	return defaultVal
}
