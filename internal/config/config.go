// Package config provides YAML-based configuration loading for benchyard.
package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level agent configuration, loaded from benchyard.yaml.
type Config struct {
	Board    string            `yaml:"board"`
	Log      LogConfig         `yaml:"log"`
	Database DatabaseConfig    `yaml:"database"`
	Power    BackendConfig     `yaml:"power"`
	SDMux    SDMuxConfig       `yaml:"sdmux"`
	Console  ConsoleConfig     `yaml:"console"`
	USB      []USBPortConfig   `yaml:"usb"`
	Builds   map[string]string `yaml:"builds"`
	Boot     BootConfig        `yaml:"boot"`
	Kernel   KernelConfig      `yaml:"kernel"`
	Lock     LockConfig        `yaml:"lock"`
	Scripts  ScriptsConfig     `yaml:"scripts"`
	API      APIConfig         `yaml:"api"`
	Probe    ProbeConfig       `yaml:"probe"`
	Notify   NotifyConfig      `yaml:"notify"`
}

// LogConfig selects the log level and output format.
type LogConfig struct {
	Level   string `yaml:"level"`
	Console bool   `yaml:"console"`
}

// DatabaseConfig holds the lock and history store settings. Driver is
// either "sqlite" (Path) or "mysql" (Host/Port/Name/User).
type DatabaseConfig struct {
	Driver string `yaml:"driver"`
	Path   string `yaml:"path"`
	Host   string `yaml:"host"`
	Port   int    `yaml:"port"`
	Name   string `yaml:"name"`
	User   string `yaml:"user"`
}

// BackendConfig names a backend variant and carries its free-form
// settings, which are validated by the backend's Configure.
type BackendConfig struct {
	Variant  string            `yaml:"variant"`
	Settings map[string]string `yaml:"settings"`
}

// SDMuxConfig configures the shared storage multiplexer.
type SDMuxConfig struct {
	BackendConfig `yaml:",inline"`
	Hotplug       bool `yaml:"hotplug"`
}

// ConsoleConfig configures how the target console is captured.
// Variant is "process" (Command runs as a child) or "tmux" (Command
// runs inside a tmux pane so operators can attach to it).
type ConsoleConfig struct {
	Variant string   `yaml:"variant"`
	Command []string `yaml:"command"`
	Prompt  string   `yaml:"prompt"`
	Session string   `yaml:"session"`
	LogFile string   `yaml:"log_file"`
}

// USBPortConfig defines one switchable USB port and the device class
// plugged into it.
type USBPortConfig struct {
	Class         string `yaml:"class"`
	BackendConfig `yaml:",inline"`
}

// BootConfig controls how long steps wait for the target to boot.
type BootConfig struct {
	Delay   time.Duration `yaml:"delay"`
	Timeout time.Duration `yaml:"timeout"`
}

// KernelConfig holds the optional kernel version expectation.
type KernelConfig struct {
	Version string `yaml:"version"`
}

// LockConfig tunes the board lock.
type LockConfig struct {
	Expiry    time.Duration `yaml:"expiry"`
	Heartbeat time.Duration `yaml:"heartbeat"`
}

// ScriptsConfig lists shell commands run after successful power
// transitions.
type ScriptsConfig struct {
	PowerOn  []string `yaml:"power_on"`
	PowerOff []string `yaml:"power_off"`
}

// APIConfig configures the HTTP control API.
type APIConfig struct {
	Port int `yaml:"port"`
}

// ProbeConfig schedules periodic backend probes. An empty schedule
// disables probing.
type ProbeConfig struct {
	Schedule string `yaml:"schedule"`
}

// NotifyConfig lists the chat destinations told about power changes.
type NotifyConfig struct {
	Slack   SlackConfig   `yaml:"slack"`
	Discord DiscordConfig `yaml:"discord"`
}

// SlackConfig posts power events to an incoming webhook.
type SlackConfig struct {
	WebhookURL string `yaml:"webhook_url"`
}

// DiscordConfig posts power events to a channel with a bot token.
type DiscordConfig struct {
	BotToken  string `yaml:"bot_token"`
	ChannelID string `yaml:"channel_id"`
}

// Load reads a YAML config file from path and returns a validated Config.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse unmarshals YAML bytes into a validated Config.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyDefaults fills in derived and default values.
func (c *Config) applyDefaults() {
	if c.Board == "" {
		c.Board = "default"
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "sqlite"
	}
	if c.Database.Driver == "sqlite" && c.Database.Path == "" {
		c.Database.Path = "benchyard.db"
	}
	if c.Database.Driver == "mysql" {
		if c.Database.Host == "" {
			c.Database.Host = "127.0.0.1"
		}
		if c.Database.Port == 0 {
			c.Database.Port = 3306
		}
		if c.Database.Name == "" {
			c.Database.Name = "benchyard_" + c.Board
		}
		if c.Database.User == "" {
			c.Database.User = "root"
		}
	}
	if c.Console.Prompt == "" {
		c.Console.Prompt = "# "
	}
	if c.Console.Session == "" {
		c.Console.Session = "benchyard"
	}
	if c.Boot.Timeout == 0 {
		c.Boot.Timeout = 2 * time.Minute
	}
	if c.Lock.Expiry == 0 {
		c.Lock.Expiry = 5 * time.Minute
	}
	if c.Lock.Heartbeat == 0 {
		c.Lock.Heartbeat = 30 * time.Second
	}
	if c.API.Port == 0 {
		c.API.Port = 5556
	}
}

// validate checks that all required fields are present and consistent.
func (c *Config) validate() error {
	var errs []string
	switch c.Database.Driver {
	case "sqlite", "mysql":
	default:
		errs = append(errs, fmt.Sprintf("database.driver %q is not supported", c.Database.Driver))
	}
	switch c.Console.Variant {
	case "", "process", "tmux":
	default:
		errs = append(errs, fmt.Sprintf("console.variant %q is not supported", c.Console.Variant))
	}
	if c.Console.Variant != "" && len(c.Console.Command) == 0 {
		errs = append(errs, "console.command is required")
	}
	for name, path := range c.Builds {
		if path == "" {
			errs = append(errs, fmt.Sprintf("builds.%s: image path is required", name))
		}
	}
	seen := make(map[string]bool)
	for i, u := range c.USB {
		if u.Variant == "" {
			errs = append(errs, fmt.Sprintf("usb[%d].variant is required", i))
		}
		if u.Class != "" && seen[u.Class] {
			errs = append(errs, fmt.Sprintf("usb[%d].class %q is duplicated", i, u.Class))
		}
		seen[u.Class] = true
	}
	if c.Kernel.Version != "" {
		if _, err := regexp.Compile(c.Kernel.Version); err != nil {
			errs = append(errs, fmt.Sprintf("kernel.version: %v", err))
		}
	}
	if c.Boot.Delay < 0 {
		errs = append(errs, "boot.delay must not be negative")
	}
	if c.Notify.Discord.BotToken != "" && c.Notify.Discord.ChannelID == "" {
		errs = append(errs, "notify.discord.channel_id is required with a bot token")
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

// Image returns the image path configured for build name.
func (c *Config) Image(name string) (string, bool) {
	path, ok := c.Builds[name]
	return path, ok
}
