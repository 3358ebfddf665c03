// Package config loads engine configuration from TOML, environment and
// defaults, in that order of increasing precedence.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Config is the application configuration.
type Config struct {
	Provider struct {
		Name              string  `koanf:"name"`
		APIKey            string  `koanf:"api_key"`
		BaseURL           string  `koanf:"base_url"`
		Model             string  `koanf:"model"`
		MaxTokens         int     `koanf:"max_tokens"`
		RequestsPerSecond float64 `koanf:"requests_per_second"`
	} `koanf:"provider"`

	Log struct {
		Level  string `koanf:"level"`
		Pretty bool   `koanf:"pretty"`
	} `koanf:"log"`
}

// Load reads configuration from the given TOML file (or the default
// locations when empty), then applies COEDIT_-prefixed environment
// overrides.
func Load(configPath string) (*Config, error) {
	k := koanf.New(".")

	k.Load(confmap.Provider(map[string]interface{}{
		"provider.name":                "gemini",
		"provider.requests_per_second": 1.0,
		"log.level":                    "info",
		"log.pretty":                   true,
	}, "."), nil)

	if configPath != "" {
		if err := k.Load(file.Provider(configPath), toml.Parser()); err != nil {
			return nil, fmt.Errorf("error loading config: %w", err)
		}
	} else {
		defaultPaths := []string{"./coedit.toml", "$HOME/.coedit.toml"}
		for _, path := range defaultPaths {
			path = os.ExpandEnv(path)
			if _, err := os.Stat(path); err == nil {
				if err := k.Load(file.Provider(path), toml.Parser()); err == nil {
					break
				}
			}
		}
	}

	k.Load(env.Provider("COEDIT_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, "COEDIT_")), "_", ".", 1)
	}), nil)

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("error unmarshalling config: %w", err)
	}
	return &cfg, nil
}

// Init writes a sample configuration file.
func Init(configPath string) error {
	if _, err := os.Stat(configPath); err == nil {
		return fmt.Errorf("configuration file already exists at %s", configPath)
	}

	sample := `# coedit configuration

[provider]
name = "gemini"
api_key = "your-api-key"
model = "gemini-2.5-flash"
requests_per_second = 1.0

[log]
level = "info"
pretty = true
`
	return os.WriteFile(configPath, []byte(sample), 0644)
}

// Validate checks that the configuration can drive a transport.
func Validate(cfg *Config) error {
	if cfg.Provider.Name == "" {
		return fmt.Errorf("provider name is required")
	}
	if cfg.Provider.Name != "ollama" && cfg.Provider.APIKey == "" {
		return fmt.Errorf("api_key is required for provider %s", cfg.Provider.Name)
	}
	return nil
}
