package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all configuration for the DevForge server and worker.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	GitHub   GitHubConfig
	AI       AIConfig
	Worker   WorkerConfig
	Analysis AnalysisConfig
	Deploy   DeployConfig
	TokenKey string
}

type ServerConfig struct {
	Port int
	Env  string
}

type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	URL string
}

type GitHubConfig struct {
	ClientID       string
	ClientSecret   string
	RedirectURI    string
	HourlyQuota    int // published API limit, refilled continuously
	PerMinuteLimit int // local short-window admission limit
}

type AIConfig struct {
	Provider string
	Timeout  time.Duration
	Groq     GroqConfig
	OpenAI   OpenAIConfig
}

type GroqConfig struct {
	APIKey string
	Model  string
}

type OpenAIConfig struct {
	APIKey string
	Model  string
}

type WorkerConfig struct {
	Concurrency int
	MaxRetries  int
}

type AnalysisConfig struct {
	BatchSize   int
	SHALookback int
	JoinTimeout time.Duration
	FreshTTL    time.Duration
	TopRepos    int
}

type DeployConfig struct {
	OutputDir string
	PublicURL string
}

var validProviders = map[string]bool{
	"groq":   true,
	"openai": true,
	"static": true,
}

// Load reads configuration from environment variables and returns a validated Config.
// Returns an error with a descriptive message if any required value is missing or invalid.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port: envInt("DEVFORGE_PORT", 8080),
			Env:  envString("DEVFORGE_ENV", "development"),
		},
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    envInt("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: envDuration("DATABASE_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			URL: os.Getenv("REDIS_URL"),
		},
		GitHub: GitHubConfig{
			ClientID:       os.Getenv("GITHUB_CLIENT_ID"),
			ClientSecret:   os.Getenv("GITHUB_CLIENT_SECRET"),
			RedirectURI:    os.Getenv("GITHUB_REDIRECT_URI"),
			HourlyQuota:    envInt("GITHUB_API_RATE_LIMIT", 5000),
			PerMinuteLimit: envInt("RATE_LIMIT_PER_MINUTE", 60),
		},
		AI: AIConfig{
			Provider: envString("AI_PROVIDER", "static"),
			Timeout:  envDuration("AI_TIMEOUT", 30*time.Second),
			Groq: GroqConfig{
				APIKey: os.Getenv("GROQ_API_KEY"),
				Model:  envString("GROQ_MODEL", "llama-3.1-70b-versatile"),
			},
			OpenAI: OpenAIConfig{
				APIKey: os.Getenv("OPENAI_API_KEY"),
				Model:  envString("OPENAI_MODEL", "gpt-4o-mini"),
			},
		},
		Worker: WorkerConfig{
			Concurrency: envInt("WORKER_CONCURRENCY", 8),
			MaxRetries:  envInt("WORKER_MAX_RETRIES", 3),
		},
		Analysis: AnalysisConfig{
			BatchSize:   envInt("ANALYSIS_BATCH_SIZE", 100),
			SHALookback: envInt("ANALYSIS_SHA_LOOKBACK", 5000),
			JoinTimeout: envDuration("ANALYSIS_JOIN_TIMEOUT", 120*time.Second),
			FreshTTL:    envDuration("ANALYSIS_FRESH_TTL", 24*time.Hour),
			TopRepos:    envInt("GENERATION_TOP_REPOS", 20),
		},
		Deploy: DeployConfig{
			OutputDir: envString("DEPLOY_OUTPUT_DIR", "generated_portfolios"),
			PublicURL: os.Getenv("DEPLOY_PUBLIC_URL"),
		},
		TokenKey: os.Getenv("TOKEN_KEY"),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.Redis.URL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}

	if c.TokenKey == "" {
		return fmt.Errorf("TOKEN_KEY is required")
	}

	if !validProviders[c.AI.Provider] {
		return fmt.Errorf("AI_PROVIDER must be one of groq, openai, static; got %q", c.AI.Provider)
	}
	if c.AI.Provider == "groq" && c.AI.Groq.APIKey == "" {
		return fmt.Errorf("GROQ_API_KEY is required when AI_PROVIDER is groq")
	}
	if c.AI.Provider == "openai" && c.AI.OpenAI.APIKey == "" {
		return fmt.Errorf("OPENAI_API_KEY is required when AI_PROVIDER is openai")
	}

	if c.GitHub.HourlyQuota <= 0 {
		return fmt.Errorf("GITHUB_API_RATE_LIMIT must be positive, got %d", c.GitHub.HourlyQuota)
	}

	if c.Analysis.BatchSize <= 0 {
		return fmt.Errorf("ANALYSIS_BATCH_SIZE must be positive, got %d", c.Analysis.BatchSize)
	}

	return nil
}

func envString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
