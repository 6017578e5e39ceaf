package config

import (
	"net"
	"strconv"
	"time"

	"github.com/harun/skagent/internal/logger"
	"github.com/harun/skagent/internal/tracing"
	"github.com/harun/skagent/pkg/execution"
	"github.com/harun/skagent/pkg/llm"
	"github.com/harun/skagent/pkg/memory"
	"github.com/harun/skagent/pkg/reflection"
	"github.com/harun/skagent/pkg/tools"
)

// Memory backends
const (
	BackendInMemory = "inmemory"
	BackendSQLite   = "sqlite"
)

// Config represents the main skagent configuration
type Config struct {
	// Data directory, defaults to ~/.skagent
	DataDir string `json:"data_dir" mapstructure:"data_dir"`

	Logging   logger.Config   `json:"logging" mapstructure:"logging"`
	Gateway   GatewayConfig   `json:"gateway" mapstructure:"gateway"`
	LLM       llm.Config      `json:"llm" mapstructure:"llm"`
	Execution ExecutionConfig `json:"execution" mapstructure:"execution"`
	Memory    MemoryConfig    `json:"memory" mapstructure:"memory"`
	Persona   PersonaConfig   `json:"persona" mapstructure:"persona"`
	Tools     ToolsConfig     `json:"tools" mapstructure:"tools"`
	Tracing   tracing.Config  `json:"tracing" mapstructure:"tracing"`
}

// GatewayConfig holds HTTP gateway configuration
type GatewayConfig struct {
	Host            string          `json:"host" mapstructure:"host"`
	Port            int             `json:"port" mapstructure:"port"`
	ReadTimeout     time.Duration   `json:"read_timeout" mapstructure:"read_timeout"`
	WriteTimeout    time.Duration   `json:"write_timeout" mapstructure:"write_timeout"` // per event frame
	RunTimeout      time.Duration   `json:"run_timeout" mapstructure:"run_timeout"`
	ShutdownTimeout time.Duration   `json:"shutdown_timeout" mapstructure:"shutdown_timeout"`
	RateLimit       RateLimitConfig `json:"rate_limit" mapstructure:"rate_limit"`
}

// RateLimitConfig bounds runs per conversation. Zero disables a limit.
type RateLimitConfig struct {
	RequestsPerMinute int `json:"requests_per_minute" mapstructure:"requests_per_minute"`
	MaxConcurrent     int `json:"max_concurrent" mapstructure:"max_concurrent"`
}

// ExecutionConfig holds plan executor configuration
type ExecutionConfig struct {
	Retry          reflection.RetryPolicy `json:"retry" mapstructure:"retry"`
	Decider        string                 `json:"decider" mapstructure:"decider"` // always, heuristic, never
	PreviewLimit   int                    `json:"preview_limit" mapstructure:"preview_limit"`
	EvaluateOutput bool                   `json:"evaluate_output" mapstructure:"evaluate_output"`
}

// MemoryConfig holds conversational memory configuration
type MemoryConfig struct {
	Backend     string          `json:"backend" mapstructure:"backend"`
	Path        string          `json:"path" mapstructure:"path"`
	MaxTurns    int             `json:"max_turns" mapstructure:"max_turns"`
	RecentTurns int             `json:"recent_turns" mapstructure:"recent_turns"`
	Retention   RetentionConfig `json:"retention" mapstructure:"retention"`
}

// RetentionConfig controls pruning of old turns in the sqlite backend
type RetentionConfig struct {
	Enabled  bool          `json:"enabled" mapstructure:"enabled"`
	Schedule string        `json:"schedule" mapstructure:"schedule"` // five-field cron
	MaxAge   time.Duration `json:"max_age" mapstructure:"max_age"`
}

// PersonaConfig selects the assistant persona
type PersonaConfig struct {
	Name  string `json:"name" mapstructure:"name"`
	File  string `json:"file" mapstructure:"file"`   // YAML persona, wins over name
	Watch bool   `json:"watch" mapstructure:"watch"` // reload File on change
}

// ToolsConfig holds tool registry and invoker configuration
type ToolsConfig struct {
	Policy      tools.Policy    `json:"policy" mapstructure:"policy"`
	URLPolicy   tools.URLPolicy `json:"url_policy" mapstructure:"url_policy"`
	HTTPTimeout time.Duration   `json:"http_timeout" mapstructure:"http_timeout"`
	Browser     BrowserConfig   `json:"browser" mapstructure:"browser"`
}

// BrowserConfig enables the headless browser tool
type BrowserConfig struct {
	Enabled              bool `json:"enabled" mapstructure:"enabled"`
	tools.BrowserOptions `mapstructure:",squash"`
}

// DefaultConfig returns a config with default values
func DefaultConfig() *Config {
	logging := logger.DefaultConfig()
	logging.Pretty = false

	return &Config{
		Logging: logging,
		Gateway: GatewayConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    10 * time.Second,
			RunTimeout:      2 * time.Minute,
			ShutdownTimeout: 15 * time.Second,
			RateLimit: RateLimitConfig{
				RequestsPerMinute: 30,
				MaxConcurrent:     1,
			},
		},
		LLM: llm.Config{
			Provider:  "openai",
			Model:     "gpt-4o-mini",
			MaxTokens: 1024,
		},
		Execution: ExecutionConfig{
			Retry:        reflection.DefaultRetryPolicy(),
			Decider:      "always",
			PreviewLimit: execution.DefaultPreviewLimit,
		},
		Memory: MemoryConfig{
			Backend:     BackendInMemory,
			MaxTurns:    memory.DefaultMaxTurns,
			RecentTurns: 4,
			Retention: RetentionConfig{
				Schedule: "0 3 * * *",
				MaxAge:   30 * 24 * time.Hour,
			},
		},
		Persona: PersonaConfig{
			Name: "neutral",
		},
		Tools: ToolsConfig{
			HTTPTimeout: 15 * time.Second,
			Browser: BrowserConfig{
				BrowserOptions: tools.BrowserOptions{
					NoSandbox: true,
					Timeout:   30 * time.Second,
					MaxChars:  4000,
				},
			},
		},
		Tracing: tracing.Config{
			ServiceName: "skagent",
			SampleRatio: 1,
		},
	}
}

// Address returns the gateway listen address
func (g GatewayConfig) Address() string {
	return net.JoinHostPort(g.Host, strconv.Itoa(g.Port))
}
