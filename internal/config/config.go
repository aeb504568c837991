package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
)

type Config struct {
	OpenAI   OpenAIConfig   `toml:"openai"`
	Agent    AgentConfig    `toml:"agent"`
	Gateway  GatewayConfig  `toml:"gateway"`
	DB       DBConfig       `toml:"db"`
	Trace    TraceConfig    `toml:"trace"`
	Services ServicesConfig `toml:"services"`
}

type OpenAIConfig struct {
	Model       string  `toml:"model"`
	BaseURL     string  `toml:"base_url"`
	APIKey      string  `toml:"api_key"`
	Temperature float64 `toml:"temperature"`
}

// AgentConfig describes the merchant agent. StructuredOutput asks the model
// for a {response, happinessLevel} object instead of free text.
type AgentConfig struct {
	Name             string   `toml:"name"`
	Instructions     string   `toml:"instructions"`
	MaxTurns         int      `toml:"max_turns"`
	StartTimeout     Duration `toml:"start_timeout"`
	StructuredOutput bool     `toml:"structured_output"`
}

type GatewayConfig struct {
	Addr string `toml:"addr"`
}

// DBConfig locates the run log database. An empty path disables it.
type DBConfig struct {
	Path string `toml:"path"`
}

type TraceConfig struct {
	Enabled  bool   `toml:"enabled"`
	Endpoint string `toml:"endpoint"`
	URLPath  string `toml:"url_path"`
	APIKey   string `toml:"api_key"`
}

type ServicesConfig struct {
	Brave BraveConfig `toml:"brave"`
}

type BraveConfig struct {
	APIKey string `toml:"api_key"`
}

// Duration decodes TOML strings such as "30s".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

const DefaultInstructions = `
You are a helpful assistant for merchants. Answer questions clearly and concisely.
If you don't know the answer, say so.
`

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		OpenAI: OpenAIConfig{
			Model:       "gpt-4.1-2025-04-14",
			Temperature: 0.5,
		},
		Agent: AgentConfig{
			Name:         "Merchant AmA Agent",
			Instructions: DefaultInstructions,
			MaxTurns:     10,
			StartTimeout: Duration{30 * time.Second},
		},
		Gateway: GatewayConfig{
			Addr: ":3000",
		},
		DB: DBConfig{
			Path: defaultDBPath(),
		},
	}
}

// Load reads the TOML file at path (or the default location when path is
// empty) over the defaults and then applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = configPath()
	}
	if _, err := os.Stat(path); err == nil {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("decoding %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(os.Getenv); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(getenv func(string) string) error {
	if v := getenv("OPENAI_API_KEY"); v != "" {
		c.OpenAI.APIKey = v
	}
	if v := getenv("OPENAI_BASE_URL"); v != "" {
		c.OpenAI.BaseURL = v
	}
	if v := getenv("BRAVE_API_KEY"); v != "" {
		c.Services.Brave.APIKey = v
	}
	if v := getenv("PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil || port <= 0 || port > 65535 {
			return fmt.Errorf("invalid PORT %q", v)
		}
		c.Gateway.Addr = ":" + strconv.Itoa(port)
	}
	return nil
}

func configPath() string {
	dir, _ := os.UserConfigDir()
	return filepath.Join(dir, "merchantama", "config.toml")
}

func defaultDBPath() string {
	dir, _ := os.UserHomeDir()
	return filepath.Join(dir, ".local", "share", "merchantama", "runs.db")
}
