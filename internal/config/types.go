package config

import "time"

// Config represents the complete stencilbot configuration.
type Config struct {
	Service   ServiceConfig   `yaml:"service"`
	Telegram  TelegramConfig  `yaml:"telegram"`
	Templates TemplatesConfig `yaml:"templates"`
	Render    RenderConfig    `yaml:"render"`
	Reply     ReplyConfig     `yaml:"reply,omitempty"`
	State     StateConfig     `yaml:"state"`
	Server    ServerConfig    `yaml:"server,omitempty"`
}

// ServiceConfig defines core service settings.
type ServiceConfig struct {
	Name         string        `yaml:"name"`
	LogLevel     string        `yaml:"log_level"`
	PollInterval time.Duration `yaml:"poll_interval"`
	PollTimeout  time.Duration `yaml:"poll_timeout"`
}

// TelegramConfig defines Bot API access settings.
type TelegramConfig struct {
	// APIToken supports ${ENV_VAR} expansion so tokens can stay out of
	// the config file.
	APIToken string `yaml:"api_token"`
	Username string `yaml:"username,omitempty"`
	APIRoot  string `yaml:"api_root,omitempty"`
}

// TemplatesConfig defines the template registry settings.
type TemplatesConfig struct {
	Dir      string        `yaml:"dir"`
	Watch    bool          `yaml:"watch,omitempty"`
	Debounce time.Duration `yaml:"debounce,omitempty"`
}

// RenderConfig defines the external render pipeline settings.
type RenderConfig struct {
	ImagesDir    string        `yaml:"images_dir"`
	URLRoot      string        `yaml:"url_root"`
	InkscapeCmd  string        `yaml:"inkscape_cmd,omitempty"`
	ConvertCmd   string        `yaml:"convert_cmd,omitempty"`
	Background   string        `yaml:"background,omitempty"`
	StageTimeout time.Duration `yaml:"stage_timeout,omitempty"`
	Workers      int           `yaml:"workers,omitempty"`
}

// ReplyConfig defines the outbound delivery pool settings.
type ReplyConfig struct {
	Workers int `yaml:"workers,omitempty"`
}

// StateConfig defines state storage settings.
type StateConfig struct {
	Path string `yaml:"path"`
}

// ServerConfig defines the artifact HTTP server settings.
type ServerConfig struct {
	Enabled bool   `yaml:"enabled,omitempty"`
	Listen  string `yaml:"listen,omitempty"`
}
