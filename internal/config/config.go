package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all lynxbot configuration.
type Config struct {
	Bot      BotConfig      `yaml:"bot"`
	LLM      LLMConfig      `yaml:"llm"`
	Context  ContextConfig  `yaml:"context"`
	Ambient  AmbientConfig  `yaml:"ambient"`
	Tools    ToolsConfig    `yaml:"tools"`
	Search   SearchConfig   `yaml:"search"`
	Browser  BrowserConfig  `yaml:"browser"`
	Delivery DeliveryConfig `yaml:"delivery"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// BotConfig describes the bot's identity on the chat platform.
type BotConfig struct {
	// Names the bot answers to, used verbatim in gate prompts.
	Names []string `yaml:"names"`
	// Mention is the platform mention tag, e.g. <@1222229832738406501>.
	Mention string `yaml:"mention"`
	// Personality lines appended as a System message to chat contexts.
	Personality []string `yaml:"personality"`
	// PersonalityFile, when set, replaces Personality with one rule per line
	// and is reloaded on change.
	PersonalityFile string `yaml:"personality_file"`
}

// LLMConfig configures the inference transport.
type LLMConfig struct {
	Provider string       `yaml:"provider"` // gemini, openai, echo
	APIKey   string       `yaml:"api_key"`
	BaseURL  string       `yaml:"base_url"`
	Timeout  string       `yaml:"timeout"`
	Models   ModelsConfig `yaml:"models"`
}

// ModelsConfig names the model used for each role.
type ModelsConfig struct {
	Chat   string `yaml:"chat"`
	Tool   string `yaml:"tool"`
	Vision string `yaml:"vision"`
	Status string `yaml:"status"`
}

// ContextConfig configures the conversation store.
type ContextConfig struct {
	MaxLength int `yaml:"max_length"`
}

// AmbientConfig configures the background scheduler.
type AmbientConfig struct {
	Enabled        bool   `yaml:"enabled"`
	TickInterval   string `yaml:"tick_interval"`
	IdleWindow     string `yaml:"idle_window"`
	ThoughtOneIn   int    `yaml:"thought_one_in"`
	StatusInterval string `yaml:"status_interval"`
	CallTimeout    string `yaml:"call_timeout"`
}

// ToolsConfig configures capability dispatch.
type ToolsConfig struct {
	Timeout      string `yaml:"timeout"`
	MaxCycles    int    `yaml:"max_cycles"`
	ComposeReply bool   `yaml:"compose_reply"`
}

// SearchConfig configures web search.
type SearchConfig struct {
	Provider   string `yaml:"provider"` // google, duckduckgo
	APIKey     string `yaml:"api_key"`
	EngineID   string `yaml:"engine_id"`
	MaxResults int    `yaml:"max_results"`
	// ResultChars bounds extracted text per search result.
	ResultChars int `yaml:"result_chars"`
	// PageChars bounds extracted text for a single-site summary.
	PageChars int `yaml:"page_chars"`
}

// BrowserConfig configures the headless browser.
type BrowserConfig struct {
	Enabled           bool   `yaml:"enabled"`
	Bin               string `yaml:"bin"`
	Headless          bool   `yaml:"headless"`
	DebuggerURL       string `yaml:"debugger_url"`
	ViewportWidth     int    `yaml:"viewport_width"`
	ViewportHeight    int    `yaml:"viewport_height"`
	NavigationTimeout string `yaml:"navigation_timeout"`
}

// DeliveryConfig configures outbound message delivery.
type DeliveryConfig struct {
	MaxLength      int     `yaml:"max_length"`
	SendsPerSecond float64 `yaml:"sends_per_second"`
	Burst          int     `yaml:"burst"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Bot: BotConfig{
			Names:   []string{"Realynx Bot", "foxbot", "lynxbot"},
			Mention: "<@1222229832738406501>",
			Personality: []string{
				"You are playful, curious and a little sarcastic.",
				"Keep answers short unless asked for detail.",
			},
		},

		LLM: LLMConfig{
			Provider: "gemini",
			Timeout:  "60s",
			Models: ModelsConfig{
				Chat:   "gemini-2.5-flash",
				Tool:   "gemini-2.5-flash",
				Vision: "gemini-2.5-flash",
				Status: "gemini-2.5-flash-lite",
			},
		},

		Context: ContextConfig{MaxLength: 15},

		Ambient: AmbientConfig{
			Enabled:        true,
			TickInterval:   "30s",
			IdleWindow:     "5m",
			ThoughtOneIn:   20,
			StatusInterval: "15m",
			CallTimeout:    "45s",
		},

		Tools: ToolsConfig{
			Timeout:      "30s",
			MaxCycles:    1,
			ComposeReply: true,
		},

		Search: SearchConfig{
			Provider:    "duckduckgo",
			MaxResults:  5,
			ResultChars: 3500,
			PageChars:   10000,
		},

		Browser: BrowserConfig{
			Enabled:           true,
			Headless:          true,
			ViewportWidth:     1920,
			ViewportHeight:    1080,
			NavigationTimeout: "30s",
		},

		Delivery: DeliveryConfig{
			MaxLength:      2000,
			SendsPerSecond: 2,
			Burst:          5,
		},

		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load loads configuration from a YAML file.
// A missing file yields the defaults with environment overrides applied.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()

	if cfg.Bot.PersonalityFile != "" {
		lines, err := ReadPersonality(cfg.Bot.PersonalityFile)
		if err != nil {
			return nil, err
		}
		cfg.Bot.Personality = lines
	}

	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		c.LLM.APIKey = key
		c.LLM.Provider = "openai"
	}
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		c.LLM.APIKey = key
		c.LLM.Provider = "gemini"
	}
	// Provider-neutral key wins but keeps the configured provider.
	if key := os.Getenv("LYNXBOT_API_KEY"); key != "" {
		c.LLM.APIKey = key
	}
	if url := os.Getenv("LYNXBOT_BASE_URL"); url != "" {
		c.LLM.BaseURL = url
	}

	if key := os.Getenv("GOOGLE_CSE_API_KEY"); key != "" {
		c.Search.APIKey = key
		c.Search.Provider = "google"
	}
	if id := os.Getenv("GOOGLE_CSE_ENGINE_ID"); id != "" {
		c.Search.EngineID = id
	}

	if level := os.Getenv("LYNXBOT_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
}

func parseDuration(value string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// GetLLMTimeout returns the per-call inference timeout.
func (c *Config) GetLLMTimeout() time.Duration {
	return parseDuration(c.LLM.Timeout, 60*time.Second)
}

// GetToolTimeout returns the per-capability execution timeout.
func (c *Config) GetToolTimeout() time.Duration {
	return parseDuration(c.Tools.Timeout, 30*time.Second)
}

// GetTickInterval returns the ambient scheduler period.
func (c *Config) GetTickInterval() time.Duration {
	return parseDuration(c.Ambient.TickInterval, 30*time.Second)
}

// GetIdleWindow returns how long a conversation stays active without traffic.
func (c *Config) GetIdleWindow() time.Duration {
	return parseDuration(c.Ambient.IdleWindow, 5*time.Minute)
}

// GetStatusInterval returns the minimum time between status updates.
// "off" yields a negative interval, which disables them.
func (c *Config) GetStatusInterval() time.Duration {
	if c.Ambient.StatusInterval == "off" {
		return -1
	}
	return parseDuration(c.Ambient.StatusInterval, 15*time.Minute)
}

// GetAmbientCallTimeout returns the timeout for scheduler-initiated calls.
func (c *Config) GetAmbientCallTimeout() time.Duration {
	return parseDuration(c.Ambient.CallTimeout, 45*time.Second)
}

// GetNavigationTimeout returns the browser navigation timeout.
func (c *Config) GetNavigationTimeout() time.Duration {
	return parseDuration(c.Browser.NavigationTimeout, 30*time.Second)
}

// ValidProviders lists all supported inference providers.
var ValidProviders = []string{"gemini", "openai", "echo"}

// MaxToolCycles bounds opt-in capability chaining.
const MaxToolCycles = 8

// Validate validates the configuration.
func (c *Config) Validate() error {
	validProvider := false
	for _, p := range ValidProviders {
		if c.LLM.Provider == p {
			validProvider = true
			break
		}
	}
	if !validProvider {
		return fmt.Errorf("invalid LLM provider: %s (valid: %v)", c.LLM.Provider, ValidProviders)
	}
	if c.LLM.Provider == "gemini" && c.LLM.APIKey == "" {
		return fmt.Errorf("LLM API key not configured (set GEMINI_API_KEY or LYNXBOT_API_KEY)")
	}
	if c.LLM.Provider == "openai" && c.LLM.APIKey == "" && c.LLM.BaseURL == "" {
		return fmt.Errorf("openai provider needs an API key or a base_url for a local server")
	}
	if c.Context.MaxLength < 1 {
		return fmt.Errorf("context.max_length must be positive, got %d", c.Context.MaxLength)
	}
	if c.Ambient.ThoughtOneIn < 1 {
		return fmt.Errorf("ambient.thought_one_in must be positive, got %d", c.Ambient.ThoughtOneIn)
	}
	if c.Tools.MaxCycles < 1 || c.Tools.MaxCycles > MaxToolCycles {
		return fmt.Errorf("tools.max_cycles must be between 1 and %d, got %d", MaxToolCycles, c.Tools.MaxCycles)
	}
	if c.Delivery.MaxLength < 1 {
		return fmt.Errorf("delivery.max_length must be positive, got %d", c.Delivery.MaxLength)
	}
	if c.Search.Provider == "google" && (c.Search.APIKey == "" || c.Search.EngineID == "") {
		return fmt.Errorf("google search needs api_key and engine_id (set GOOGLE_CSE_API_KEY and GOOGLE_CSE_ENGINE_ID)")
	}
	return nil
}
