package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"

	"chat-widget/internal/integrations/agent"
	"chat-widget/internal/integrations/paramstore"
)

// Storage backends accepted by STORAGE_BACKEND.
const (
	BackendMemory   = "memory"
	BackendFile     = "file"
	BackendRedis    = "redis"
	BackendDynamoDB = "dynamodb"
)

// Config holds the environment driven configuration shared by the Lambda and
// the CLI.
type Config struct {
	// Agent
	AgentBaseURL string        `env:"AGENT_BASE_URL"`
	AgentPath    string        `env:"AGENT_PATH"`
	AgentTimeout time.Duration `env:"AGENT_TIMEOUT" envDefault:"10s"`
	ParamPrefix  string        `env:"PARAM_PREFIX"`

	// Storage
	StorageBackend string        `env:"STORAGE_BACKEND" envDefault:"memory"`
	StorageDir     string        `env:"STORAGE_DIR" envDefault:".chat-widget"`
	StorageKey     string        `env:"STORAGE_KEY" envDefault:"chat-widget-log"`
	RedisURL       string        `env:"REDIS_URL"`
	StateTable     string        `env:"STATE_TABLE"`
	SessionTTL     time.Duration `env:"SESSION_TTL" envDefault:"24h"`

	// Logging
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`
}

// Load parses environment variables into Config and validates the result.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("config: parse env: %w", err)
	}

	cfg.AgentBaseURL = strings.TrimSpace(cfg.AgentBaseURL)
	cfg.AgentPath = strings.TrimSpace(cfg.AgentPath)
	cfg.ParamPrefix = strings.TrimRight(strings.TrimSpace(cfg.ParamPrefix), "/")
	cfg.StorageBackend = strings.ToLower(strings.TrimSpace(cfg.StorageBackend))
	cfg.StorageKey = strings.TrimSpace(cfg.StorageKey)
	cfg.RedisURL = strings.TrimSpace(cfg.RedisURL)
	cfg.StateTable = strings.TrimSpace(cfg.StateTable)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadDotenv reads the given .env files (".env" when none are named) into
// the process environment before Load. Missing files are ignored; variables
// already set win.
func LoadDotenv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("config: load %s: %w", f, err)
		}
	}
	return nil
}

func (c *Config) validate() error {
	switch c.StorageBackend {
	case BackendMemory:
	case BackendFile:
		if strings.TrimSpace(c.StorageDir) == "" {
			return errors.New("config: STORAGE_DIR is required for the file backend")
		}
	case BackendRedis:
		if c.RedisURL == "" {
			return errors.New("config: REDIS_URL is required for the redis backend")
		}
	case BackendDynamoDB:
		if c.StateTable == "" {
			return errors.New("config: STATE_TABLE is required for the dynamodb backend")
		}
	default:
		return fmt.Errorf("config: unknown STORAGE_BACKEND %q", c.StorageBackend)
	}
	if c.StorageKey == "" {
		return errors.New("config: STORAGE_KEY must not be empty")
	}
	if c.SessionTTL <= 0 {
		return errors.New("config: SESSION_TTL must be positive")
	}
	if c.AgentTimeout <= 0 {
		return errors.New("config: AGENT_TIMEOUT must be positive")
	}
	return nil
}

// UsesAWS reports whether any configured component needs AWS credentials.
func (c *Config) UsesAWS() bool {
	return c.StorageBackend == BackendDynamoDB || (c.AgentBaseURL == "" && c.ParamPrefix != "")
}

// AgentParamNames returns the SSM parameter names holding the agent endpoint.
func (c *Config) AgentParamNames() (baseURL, path string) {
	return c.ParamPrefix + "/agent/base_url", c.ParamPrefix + "/agent/path"
}

// ResolveAgentEndpoint builds the agent endpoint. Explicit AGENT_BASE_URL
// wins; otherwise, with PARAM_PREFIX set, both values come from the
// parameter store. Neither yields the unconfigured endpoint.
func (c *Config) ResolveAgentEndpoint(ctx context.Context, params paramstore.Getter) (agent.Endpoint, error) {
	if c.AgentBaseURL != "" || c.ParamPrefix == "" {
		return agent.NewEndpoint(c.AgentBaseURL, c.AgentPath)
	}
	if params == nil {
		return agent.Endpoint{}, errors.New("config: parameter store is required when PARAM_PREFIX is set")
	}

	baseName, pathName := c.AgentParamNames()
	values, err := params.GetParameters(ctx, baseName, pathName)
	if err != nil {
		return agent.Endpoint{}, fmt.Errorf("config: resolve agent endpoint: %w", err)
	}
	return agent.NewEndpoint(values[baseName], values[pathName])
}
