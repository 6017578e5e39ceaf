package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/harun/skagent/pkg/persona"
	"github.com/harun/skagent/pkg/reflection"
	"github.com/robfig/cron/v3"
)

// maxRetriesPerStep bounds execution.retry.max_retries_per_step
const maxRetriesPerStep = 10

// Validator validates configuration values
type Validator struct{}

// NewValidator creates a new validator
func NewValidator() *Validator {
	return &Validator{}
}

// ValidateAPIKey validates an API key format
func (v *Validator) ValidateAPIKey(key string, provider string) error {
	if key == "" {
		return fmt.Errorf("%s API key cannot be empty", provider)
	}

	switch provider {
	case "anthropic":
		if !strings.HasPrefix(key, "sk-ant-") {
			return fmt.Errorf("invalid Anthropic API key format (should start with sk-ant-)")
		}
	case "openai":
		if !strings.HasPrefix(key, "sk-") {
			return fmt.Errorf("invalid OpenAI API key format (should start with sk-)")
		}
	}

	return nil
}

// ValidateProvider validates an LLM provider name
func (v *Validator) ValidateProvider(provider string) error {
	return oneOf("llm provider", strings.ToLower(provider), "openai", "anthropic")
}

// ValidatePort validates a TCP port
func (v *Validator) ValidatePort(port int) error {
	if port < 1 || port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", port)
	}
	return nil
}

// ValidateMaxTokens validates max tokens value
func (v *Validator) ValidateMaxTokens(tokens int) error {
	if tokens <= 0 {
		return fmt.Errorf("max tokens must be positive, got %d", tokens)
	}
	if tokens > 200000 {
		return fmt.Errorf("max tokens too large (max 200000), got %d", tokens)
	}
	return nil
}

// ValidateLogLevel validates log level
func (v *Validator) ValidateLogLevel(level string) error {
	return oneOf("log level", level, "debug", "info", "warn", "error")
}

// ValidateDecider validates a reflection decider name
func (v *Validator) ValidateDecider(name string) error {
	if _, ok := reflection.NewDecider(name); !ok {
		return fmt.Errorf("invalid decider: %s (must be one of: always, heuristic, never)", name)
	}
	return nil
}

// ValidateSchedule validates a five-field cron expression
func (v *Validator) ValidateSchedule(expr string) error {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	if _, err := parser.Parse(expr); err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}
	return nil
}

// ValidatePersona validates the persona selection
func (v *Validator) ValidatePersona(p PersonaConfig) error {
	if p.File != "" {
		return nil
	}
	if p.Watch {
		return fmt.Errorf("persona.watch requires persona.file")
	}
	if p.Name == "" {
		return nil
	}
	if _, ok := persona.Lookup(p.Name); !ok {
		return fmt.Errorf("unknown persona: %s (must be one of: %s)", p.Name, strings.Join(persona.Names(), ", "))
	}
	return nil
}

// ValidateConfig performs comprehensive validation
func (v *Validator) ValidateConfig(cfg *Config) []error {
	var errs []error
	add := func(section string, err error) {
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", section, err))
		}
	}

	add("logging", v.ValidateLogLevel(cfg.Logging.Level))
	if cfg.Logging.MaxSizeMB < 0 || cfg.Logging.MaxAgeDay < 0 {
		add("logging", errors.New("max_size_mb and max_age_days must be >= 0"))
	}

	add("gateway", v.ValidatePort(cfg.Gateway.Port))
	if cfg.Gateway.WriteTimeout < 0 || cfg.Gateway.RunTimeout < 0 || cfg.Gateway.ShutdownTimeout < 0 {
		add("gateway", errors.New("timeouts must be >= 0"))
	}
	if rl := cfg.Gateway.RateLimit; rl.RequestsPerMinute < 0 || rl.MaxConcurrent < 0 {
		add("gateway", errors.New("rate_limit values must be >= 0"))
	}

	add("llm", v.ValidateProvider(cfg.LLM.Provider))
	if cfg.LLM.APIKey != "" {
		add("llm", v.ValidateAPIKey(cfg.LLM.APIKey, strings.ToLower(cfg.LLM.Provider)))
	}
	if cfg.LLM.MaxTokens != 0 {
		add("llm", v.ValidateMaxTokens(cfg.LLM.MaxTokens))
	}

	if r := cfg.Execution.Retry.MaxRetriesPerStep; r < 0 || r > maxRetriesPerStep {
		add("execution", fmt.Errorf("retry.max_retries_per_step must be between 0 and %d, got %d", maxRetriesPerStep, r))
	}
	add("execution", v.ValidateDecider(cfg.Execution.Decider))
	if cfg.Execution.PreviewLimit < 0 {
		add("execution", errors.New("preview_limit must be >= 0"))
	}

	add("memory", oneOf("memory backend", cfg.Memory.Backend, BackendInMemory, BackendSQLite))
	if cfg.Memory.MaxTurns < 1 {
		add("memory", fmt.Errorf("max_turns must be >= 1, got %d", cfg.Memory.MaxTurns))
	}
	if cfg.Memory.RecentTurns < 0 {
		add("memory", fmt.Errorf("recent_turns must be >= 0, got %d", cfg.Memory.RecentTurns))
	}
	if ret := cfg.Memory.Retention; ret.Enabled {
		if cfg.Memory.Backend != BackendSQLite {
			add("memory", errors.New("retention requires the sqlite backend"))
		}
		add("memory", v.ValidateSchedule(ret.Schedule))
		if ret.MaxAge <= 0 {
			add("memory", errors.New("retention.max_age must be positive"))
		}
	}

	add("persona", v.ValidatePersona(cfg.Persona))

	if cfg.Tools.HTTPTimeout < 0 {
		add("tools", errors.New("http_timeout must be >= 0"))
	}

	if r := cfg.Tracing.SampleRatio; r < 0 || r > 1 {
		add("tracing", fmt.Errorf("sample_ratio must be between 0 and 1, got %g", r))
	}

	return errs
}

// Validate checks cfg and joins every problem into one error
func (c *Config) Validate() error {
	return errors.Join(NewValidator().ValidateConfig(c)...)
}

func oneOf(what, value string, valid ...string) error {
	if slices.Contains(valid, value) {
		return nil
	}
	return fmt.Errorf("invalid %s: %s (must be one of: %s)", what, value, strings.Join(valid, ", "))
}
