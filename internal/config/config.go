package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Config represents runtime configuration for the service.
type Config struct {
	BasicConfig BasicConfig               `json:"basic_config"`
	Databases   map[string]DatabaseConfig `json:"databases"`
	LLM         LLMConfig                 `json:"llm"`
	Redis       RedisConfig               `json:"redis"`
	History     HistoryConfig             `json:"history"`
}

type BasicConfig struct {
	ServerAddress     string `json:"server_address"`
	SystemPrompt      string `json:"system_prompt"`
	MinWorkers        int    `json:"min_workers"`
	MaxWorkers        int    `json:"max_workers"`
	QueueSize         int    `json:"queue_size"`
	WorkerIdleTimeout int    `json:"worker_idle_timeout"` // minutes
}

type DatabaseConfig struct {
	DSN      string `json:"dsn"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	Password string `json:"password"`
	DBName   string `json:"db_name"`
	Params   string `json:"params"`
}

// LLMConfig points at the local OpenAI-compatible inference server.
type LLMConfig struct {
	BaseURL        string `json:"base_url"`
	Model          string `json:"model"`
	APIKey         string `json:"api_key"`
	TimeoutSeconds int    `json:"timeout_seconds"`
}

type RedisConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}

type HistoryConfig struct {
	RecentLimit             int `json:"recent_limit"`
	CapacityCacheTTLMinutes int `json:"capacity_cache_ttl_minutes"`
}

const (
	DefaultSystemPrompt = "You are a helpful assistant."
	DefaultRecentLimit  = 20
)

// Load reads configuration from the provided path (defaults to config.json).
func Load(path string) (*Config, error) {
	if path == "" {
		path = "config.json"
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}

	file, err := os.Open(absPath)
	if err != nil {
		return nil, fmt.Errorf("open config %s: %w", absPath, err)
	}
	defer file.Close()

	var cfg Config
	if err := json.NewDecoder(file).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if cfg.LLM.BaseURL == "" {
		return nil, fmt.Errorf("llm.base_url must be configured")
	}
	if cfg.LLM.Model == "" {
		return nil, fmt.Errorf("llm.model must be configured")
	}

	// sqlite paths are resolved relative to the config file.
	for name, dbCfg := range cfg.Databases {
		if dbCfg.DSN != "" && !filepath.IsAbs(dbCfg.DSN) {
			dbCfg.DSN = filepath.Join(filepath.Dir(absPath), dbCfg.DSN)
			cfg.Databases[name] = dbCfg
		}
	}

	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.BasicConfig.ServerAddress == "" {
		c.BasicConfig.ServerAddress = ":8080"
	}
	if c.BasicConfig.SystemPrompt == "" {
		c.BasicConfig.SystemPrompt = DefaultSystemPrompt
	}
	if c.BasicConfig.MinWorkers <= 0 {
		c.BasicConfig.MinWorkers = 1
	}
	if c.BasicConfig.MaxWorkers < c.BasicConfig.MinWorkers {
		c.BasicConfig.MaxWorkers = c.BasicConfig.MinWorkers
	}
	if c.BasicConfig.QueueSize <= 0 {
		c.BasicConfig.QueueSize = 8
	}
	if c.History.RecentLimit <= 0 {
		c.History.RecentLimit = DefaultRecentLimit
	}
	if c.History.CapacityCacheTTLMinutes <= 0 {
		c.History.CapacityCacheTTLMinutes = 5
	}
	if c.LLM.TimeoutSeconds <= 0 {
		c.LLM.TimeoutSeconds = 120
	}
}

// LLMTimeout returns the request timeout for backend calls.
func (c *Config) LLMTimeout() time.Duration {
	return time.Duration(c.LLM.TimeoutSeconds) * time.Second
}

// CapacityCacheTTL returns how long a probed model capacity stays cached.
func (c *Config) CapacityCacheTTL() time.Duration {
	return time.Duration(c.History.CapacityCacheTTLMinutes) * time.Minute
}
