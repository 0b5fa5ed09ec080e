package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Load reads and parses configuration from a file.
// Missing or unreadable configuration is a startup error; the caller is
// expected to treat it as fatal.
func Load(configPath string) (*Config, error) {
	absPath, err := filepath.Abs(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve config path %q: %w", configPath, err)
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("config file not found: %s\n"+
			"Hint: Check the path or run with --config flag", absPath)
	}

	cfg := Defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.Telegram.APIToken = expandEnvVars(cfg.Telegram.APIToken)

	applyDefaults(cfg)

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Defaults returns a Config with built-in default values.
func Defaults() *Config {
	return &Config{
		Service: ServiceConfig{
			Name:         "stencilbot",
			LogLevel:     "INFO",
			PollInterval: 200 * time.Millisecond,
			PollTimeout:  10 * time.Second,
		},
		Telegram: TelegramConfig{
			APIRoot: "https://api.telegram.org",
		},
		Templates: TemplatesConfig{
			Debounce: 500 * time.Millisecond,
		},
		Render: RenderConfig{
			InkscapeCmd:  "inkscape",
			ConvertCmd:   "convert",
			Background:   "white",
			StageTimeout: 10 * time.Second,
			Workers:      4,
		},
		Reply: ReplyConfig{
			Workers: 5,
		},
	}
}

// applyDefaults fills zero values left by partial config files.
func applyDefaults(cfg *Config) {
	d := Defaults()
	if cfg.Service.Name == "" {
		cfg.Service.Name = d.Service.Name
	}
	if cfg.Service.LogLevel == "" {
		cfg.Service.LogLevel = d.Service.LogLevel
	}
	if cfg.Service.PollInterval <= 0 {
		cfg.Service.PollInterval = d.Service.PollInterval
	}
	if cfg.Service.PollTimeout <= 0 {
		cfg.Service.PollTimeout = d.Service.PollTimeout
	}
	if cfg.Telegram.APIRoot == "" {
		cfg.Telegram.APIRoot = d.Telegram.APIRoot
	}
	if cfg.Templates.Debounce <= 0 {
		cfg.Templates.Debounce = d.Templates.Debounce
	}
	if cfg.Render.InkscapeCmd == "" {
		cfg.Render.InkscapeCmd = d.Render.InkscapeCmd
	}
	if cfg.Render.ConvertCmd == "" {
		cfg.Render.ConvertCmd = d.Render.ConvertCmd
	}
	if cfg.Render.Background == "" {
		cfg.Render.Background = d.Render.Background
	}
	if cfg.Render.StageTimeout <= 0 {
		cfg.Render.StageTimeout = d.Render.StageTimeout
	}
	if cfg.Render.Workers <= 0 {
		cfg.Render.Workers = d.Render.Workers
	}
	if cfg.Reply.Workers <= 0 {
		cfg.Reply.Workers = d.Reply.Workers
	}
}

// validate checks the configuration for required fields and obvious mistakes.
func validate(cfg *Config) error {
	if cfg.Telegram.APIToken == "" {
		return fmt.Errorf("telegram.api_token is required")
	}
	if strings.Contains(cfg.Telegram.APIToken, "${") {
		return fmt.Errorf("telegram.api_token references an unset environment variable")
	}
	if cfg.Templates.Dir == "" {
		return fmt.Errorf("templates.dir is required")
	}
	if cfg.Render.ImagesDir == "" {
		return fmt.Errorf("render.images_dir is required")
	}
	if cfg.Render.URLRoot == "" {
		return fmt.Errorf("render.url_root is required")
	}
	if _, err := url.Parse(cfg.Render.URLRoot); err != nil {
		return fmt.Errorf("render.url_root is not a valid URL: %w", err)
	}
	if cfg.State.Path == "" {
		return fmt.Errorf("state.path is required")
	}
	if cfg.Server.Enabled && cfg.Server.Listen == "" {
		return fmt.Errorf("server.listen is required when the server is enabled")
	}
	return nil
}

// expandEnvVars substitutes ${VAR} references with environment values.
// Unset variables are left untouched so validation can flag them.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		name := envVarPattern.FindStringSubmatch(match)[1]
		if val, ok := os.LookupEnv(name); ok {
			return val
		}
		return match
	})
}
