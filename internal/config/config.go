package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Print    PrintConfig    `yaml:"print"`
	Agent    AgentConfig    `yaml:"agent"`
	Logging  LoggingConfig  `yaml:"logging"`
}

type ServerConfig struct {
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// PrintConfig selects how the dispatcher delivers labels to hardware.
// Mode "tspl" renders printer control programs; an empty mode renders PDF
// and hands it to the spooler command.
type PrintConfig struct {
	Mode           string        `yaml:"mode"`
	CentralMode    bool          `yaml:"central_mode"`
	Printer        string        `yaml:"printer"`
	DirectPrint    bool          `yaml:"direct_print"`
	DevicePath     string        `yaml:"device_path"`
	SpoolerCommand string        `yaml:"spooler_command"`
	LabelMedia     string        `yaml:"label_media"`
	Orientation    string        `yaml:"orientation"`
	FitToPage      bool          `yaml:"fit_to_page"`
	TCPTimeout     time.Duration `yaml:"tcp_timeout"`
}

type AgentConfig struct {
	CentralURL string        `yaml:"central_url"`
	PrinterID  string        `yaml:"printer_id"`
	Interval   time.Duration `yaml:"interval"`
	DevicePath string        `yaml:"device_path"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		Database: DatabaseConfig{
			Path: "./data/milklabel.db",
		},
		Print: PrintConfig{
			Mode:           "",
			SpoolerCommand: "lp",
			DevicePath:     "/dev/usb/lp0",
			LabelMedia:     "Custom.2.625x1in",
			FitToPage:      true,
			TCPTimeout:     5 * time.Second,
		},
		Agent: AgentConfig{
			CentralURL: "http://localhost:8080",
			Interval:   10 * time.Second,
			DevicePath: "/dev/usb/lp0",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

func Load(configPath string) (*Config, error) {
	cfg := defaults()

	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnv()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.applyEnv()
	return cfg, nil
}

func LoadFromEnv() *Config {
	cfg := defaults()
	cfg.applyEnv()
	return cfg
}

// applyEnv layers the recognized environment variables over whatever the
// YAML file (or defaults) provided. Environment always wins.
func (c *Config) applyEnv() {
	if v := os.Getenv("PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Server.Port = port
		}
	}
	if v := os.Getenv("DB_PATH"); v != "" {
		c.Database.Path = v
	}
	if v := os.Getenv("PRINT_MODE"); v != "" {
		c.Print.Mode = v
	}
	if v := os.Getenv("CENTRAL_MODE"); v != "" {
		c.Print.CentralMode = truthy(v)
	}
	if v := os.Getenv("PRINTER"); v != "" {
		c.Print.Printer = v
	}
	if v := os.Getenv("DIRECT_PRINT"); v != "" {
		c.Print.DirectPrint = truthy(v)
	}
	if v := os.Getenv("PRINTER_DEVICE"); v != "" {
		c.Print.DevicePath = v
	}
	if v := os.Getenv("LABEL_MEDIA"); v != "" {
		c.Print.LabelMedia = v
	}
	if v := os.Getenv("ORIENTATION"); v != "" {
		c.Print.Orientation = v
	}
	if v := os.Getenv("PRINT_FIT"); v != "" {
		c.Print.FitToPage = truthy(v)
	}
	if v := os.Getenv("TCP_TIMEOUT_MS"); v != "" {
		if ms, err := strconv.Atoi(v); err == nil && ms > 0 {
			c.Print.TCPTimeout = time.Duration(ms) * time.Millisecond
		}
	}
	if v := os.Getenv("CENTRAL_URL"); v != "" {
		c.Agent.CentralURL = v
	}
	if v := os.Getenv("PRINTER_ID"); v != "" {
		c.Agent.PrinterID = v
	}
	if v := os.Getenv("INTERVAL_MS"); v != "" {
		if ms, err := strconv.Atoi(v); err == nil && ms > 0 {
			c.Agent.Interval = time.Duration(ms) * time.Millisecond
		}
	}
	if v := os.Getenv("AGENT_DEVICE"); v != "" {
		c.Agent.DevicePath = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		c.Logging.Format = v
	}
}

func truthy(v string) bool {
	switch v {
	case "1", "true", "TRUE", "True", "yes", "on":
		return true
	}
	return false
}

func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server port must be between 1 and 65535, got %d", c.Server.Port)
	}

	if c.Server.ReadTimeout < 0 {
		return fmt.Errorf("server read timeout must be non-negative")
	}

	if c.Server.WriteTimeout < 0 {
		return fmt.Errorf("server write timeout must be non-negative")
	}

	if c.Database.Path == "" {
		return fmt.Errorf("database path is required")
	}

	if c.Print.Mode != "" && c.Print.Mode != "tspl" {
		return fmt.Errorf("print mode must be \"tspl\" or empty, got %q", c.Print.Mode)
	}

	if c.Print.TCPTimeout <= 0 {
		return fmt.Errorf("tcp timeout must be positive")
	}

	if c.Agent.Interval <= 0 {
		return fmt.Errorf("agent interval must be positive")
	}

	validLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}

	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s (valid: debug, info, warn, error)", c.Logging.Level)
	}

	validFormats := map[string]bool{
		"json":    true,
		"console": true,
	}

	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("invalid log format: %s (valid: json, console)", c.Logging.Format)
	}

	return nil
}
