package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Light identifiers accepted by the lights module
const (
	LightBacklight     = "backlight"
	LightKeyboard      = "keyboard"
	LightButtons       = "buttons"
	LightBattery       = "battery"
	LightNotifications = "notifications"
	LightAttention     = "attention"
)

// Scaling policies
const (
	PolicyLinearFloor = "linear_floor"
	PolicyRatio       = "ratio"
	PolicyCurve       = "curve"
)

// Input modes
const (
	InputLuma   = "luma"
	InputOnOff  = "onoff"
	InputMask16 = "mask16"
)

// Watchdog sizing defaults
const (
	DefaultIdleTimeout = 5 * time.Second
	DefaultMaxDevices  = 8
	DefaultMaxKeyCodes = 32
	DefaultLEDMax      = 255
)

// Config represents the application configuration
type Config struct {
	Log             LogConfig              `yaml:"log"`
	Database        DatabaseConfig         `yaml:"database"`
	Ledger          LedgerConfig           `yaml:"ledger"`
	EventBus        EventBusConfig         `yaml:"eventbus"`
	Backlight       BacklightConfig        `yaml:"backlight"`
	Lights          map[string]LightConfig `yaml:"lights"`
	Watchdog        WatchdogConfig         `yaml:"watchdog"`
	Startup         map[string]string      `yaml:"startup"`          // light id -> color (hex or decimal)
	ShutdownTimeout Duration               `yaml:"shutdown_timeout"` // General shutdown timeout for graceful stops
}

// LogConfig contains logging settings
type LogConfig struct {
	Level   string `yaml:"level"`
	UseJSON bool   `yaml:"json"`
	Colors  bool   `yaml:"colors"`
}

// GetLevel returns the configured level with default
func (c *LogConfig) GetLevel() string {
	if c.Level == "" {
		return "info"
	}
	return c.Level
}

// DatabaseConfig contains database settings.
// An empty path disables the ledger entirely.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// LedgerConfig contains event ledger settings
type LedgerConfig struct {
	CleanupInterval  Duration `yaml:"cleanup_interval"`
	RetentionDays    int      `yaml:"retention_days"`
	ActivityInterval Duration `yaml:"activity_interval"` // Input activity is batched into one entry per interval
}

// EventBusConfig contains event bus settings
type EventBusConfig struct {
	Workers   int `yaml:"workers"`    // Number of worker goroutines (default: 2)
	QueueSize int `yaml:"queue_size"` // Event queue size (default: 100)
}

// GetWorkers returns worker count with default
func (c *EventBusConfig) GetWorkers() int {
	if c.Workers <= 0 {
		return 2
	}
	return c.Workers
}

// GetQueueSize returns queue size with default
func (c *EventBusConfig) GetQueueSize() int {
	if c.QueueSize <= 0 {
		return 100
	}
	return c.QueueSize
}

// BacklightCandidate describes one backlight control probed by the resolver
type BacklightCandidate struct {
	Name              string `yaml:"name"`
	BrightnessPath    string `yaml:"brightness_path"`
	MaxBrightnessPath string `yaml:"max_brightness_path"`
	DefaultMax        int    `yaml:"default_max"`
	MinVisible        int    `yaml:"min_visible"`
}

// BacklightConfig contains the ordered candidate table and mapping for the display backlight
type BacklightConfig struct {
	Candidates []BacklightCandidate `yaml:"candidates"`
	Input      string               `yaml:"input"`
	Policy     string               `yaml:"policy"`
	Curve      string               `yaml:"curve"`
}

// LightConfig describes an LED channel
type LightConfig struct {
	BrightnessPath    string `yaml:"brightness_path"`
	MaxBrightnessPath string `yaml:"max_brightness_path"` // optional
	DefaultMax        int    `yaml:"default_max"`
	Input             string `yaml:"input"`
	Policy            string `yaml:"policy"`
	Curve             string `yaml:"curve"`
}

// InputWatchConfig describes an input device whose events count as activity
type InputWatchConfig struct {
	Path      string   `yaml:"path"`
	KeyCodes  []uint16 `yaml:"key_codes"` // empty = any key
	AbsMotion bool     `yaml:"abs_motion"`
}

// WatchdogConfig contains auto-off settings for the button light
type WatchdogConfig struct {
	Enabled     bool               `yaml:"enabled"`
	IdleTimeout Duration           `yaml:"idle_timeout"`
	MaxDevices  int                `yaml:"max_devices"`
	MaxKeyCodes int                `yaml:"max_key_codes"`
	Inputs      []InputWatchConfig `yaml:"inputs"`
}

// Duration is a wrapper around time.Duration for YAML unmarshalling
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// Duration returns the underlying time.Duration
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// DefaultBacklightCandidates returns the built-in probe table, in preference order.
func DefaultBacklightCandidates() []BacklightCandidate {
	return []BacklightCandidate{
		{
			Name:              "Intel video backlight control",
			BrightnessPath:    "/sys/class/backlight/intel_backlight/brightness",
			MaxBrightnessPath: "/sys/class/backlight/intel_backlight/max_brightness",
			DefaultMax:        4648,
			MinVisible:        20,
		},
		{
			Name:              "ACPI video backlight control",
			BrightnessPath:    "/sys/class/backlight/acpi_video0/brightness",
			MaxBrightnessPath: "/sys/class/backlight/acpi_video0/max_brightness",
			DefaultMax:        15,
			MinVisible:        1,
		},
	}
}

// DefaultLights returns the built-in LED channel table
func DefaultLights() map[string]LightConfig {
	led := func(path string) LightConfig {
		return LightConfig{BrightnessPath: path, DefaultMax: DefaultLEDMax, Input: InputLuma, Policy: PolicyRatio}
	}
	return map[string]LightConfig{
		LightKeyboard:      led("/sys/class/keyboard-backlight/brightness"),
		LightButtons:       {BrightnessPath: "/sys/class/leds/button-backlight/brightness", DefaultMax: DefaultLEDMax, Input: InputOnOff, Policy: PolicyRatio},
		LightBattery:       led("/sys/class/battery-backlight/brightness"),
		LightNotifications: led("/sys/class/notifications-backlight/brightness"),
		LightAttention:     led("/sys/class/attention-backlight/brightness"),
	}
}

// Default returns a configuration with every default applied
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse parses YAML configuration bytes, applies defaults and validates the result
func Parse(data []byte) (*Config, error) {
	// Expand environment variables
	expanded := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, err
	}

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}

	// Ledger defaults
	if cfg.Ledger.CleanupInterval == 0 {
		cfg.Ledger.CleanupInterval = Duration(24 * time.Hour)
	}
	if cfg.Ledger.RetentionDays == 0 {
		cfg.Ledger.RetentionDays = 30
	}
	if cfg.Ledger.ActivityInterval == 0 {
		cfg.Ledger.ActivityInterval = Duration(10 * time.Second)
	}

	// Backlight defaults
	if len(cfg.Backlight.Candidates) == 0 {
		cfg.Backlight.Candidates = DefaultBacklightCandidates()
	}
	if cfg.Backlight.Input == "" {
		cfg.Backlight.Input = InputMask16
	}
	if cfg.Backlight.Policy == "" {
		cfg.Backlight.Policy = PolicyLinearFloor
	}

	// Light defaults: fill in any id not configured, and blanks in configured ones
	defaults := DefaultLights()
	if cfg.Lights == nil {
		cfg.Lights = make(map[string]LightConfig, len(defaults))
	}
	for id, def := range defaults {
		lc, ok := cfg.Lights[id]
		if !ok {
			cfg.Lights[id] = def
			continue
		}
		if lc.BrightnessPath == "" {
			lc.BrightnessPath = def.BrightnessPath
		}
		if lc.DefaultMax == 0 {
			lc.DefaultMax = def.DefaultMax
		}
		if lc.Input == "" {
			lc.Input = def.Input
		}
		if lc.Policy == "" {
			lc.Policy = def.Policy
		}
		cfg.Lights[id] = lc
	}

	// Watchdog defaults
	if cfg.Watchdog.IdleTimeout == 0 {
		cfg.Watchdog.IdleTimeout = Duration(DefaultIdleTimeout)
	}
	if cfg.Watchdog.MaxDevices == 0 {
		cfg.Watchdog.MaxDevices = DefaultMaxDevices
	}
	if cfg.Watchdog.MaxKeyCodes == 0 {
		cfg.Watchdog.MaxKeyCodes = DefaultMaxKeyCodes
	}

	// General shutdown timeout
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = Duration(5 * time.Second)
	}
}

// Validate checks policies, input modes and watchdog limits
func (c *Config) Validate() error {
	if len(c.Backlight.Candidates) == 0 {
		return fmt.Errorf("backlight.candidates must not be empty")
	}
	for i, cand := range c.Backlight.Candidates {
		if cand.BrightnessPath == "" || cand.MaxBrightnessPath == "" {
			return fmt.Errorf("backlight.candidates[%d]: brightness_path and max_brightness_path are required", i)
		}
		if cand.DefaultMax <= 0 {
			return fmt.Errorf("backlight.candidates[%d]: default_max must be positive, got %d", i, cand.DefaultMax)
		}
		if cand.MinVisible < 0 {
			return fmt.Errorf("backlight.candidates[%d]: min_visible must not be negative, got %d", i, cand.MinVisible)
		}
	}
	if err := validateMapping("backlight", c.Backlight.Input, c.Backlight.Policy, c.Backlight.Curve); err != nil {
		return err
	}

	for id, lc := range c.Lights {
		if !IsLightID(id) || id == LightBacklight {
			return fmt.Errorf("lights: unknown light id %q", id)
		}
		if lc.BrightnessPath == "" {
			return fmt.Errorf("lights.%s.brightness_path must not be empty", id)
		}
		if lc.DefaultMax <= 0 {
			return fmt.Errorf("lights.%s.default_max must be positive, got %d", id, lc.DefaultMax)
		}
		if err := validateMapping("lights."+id, lc.Input, lc.Policy, lc.Curve); err != nil {
			return err
		}
	}

	if c.Watchdog.IdleTimeout.Duration() <= 0 {
		return fmt.Errorf("watchdog.idle_timeout must be positive")
	}
	if len(c.Watchdog.Inputs) > c.Watchdog.MaxDevices {
		return fmt.Errorf("watchdog.inputs: %d devices exceeds max_devices %d", len(c.Watchdog.Inputs), c.Watchdog.MaxDevices)
	}
	for i, in := range c.Watchdog.Inputs {
		if in.Path == "" {
			return fmt.Errorf("watchdog.inputs[%d].path must not be empty", i)
		}
		if len(in.KeyCodes) > c.Watchdog.MaxKeyCodes {
			return fmt.Errorf("watchdog.inputs[%d]: %d key codes exceeds max_key_codes %d", i, len(in.KeyCodes), c.Watchdog.MaxKeyCodes)
		}
	}

	for id := range c.Startup {
		if !IsLightID(id) {
			return fmt.Errorf("startup: unknown light id %q", id)
		}
	}
	return nil
}

func validateMapping(name, input, policy, curve string) error {
	switch input {
	case InputLuma, InputOnOff, InputMask16:
	default:
		return fmt.Errorf("%s.input must be one of luma, onoff, mask16, got %q", name, input)
	}
	switch policy {
	case PolicyLinearFloor, PolicyRatio:
	case PolicyCurve:
		if strings.TrimSpace(curve) == "" {
			return fmt.Errorf("%s.curve must be set when policy is curve", name)
		}
	default:
		return fmt.Errorf("%s.policy must be one of linear_floor, ratio, curve, got %q", name, policy)
	}
	return nil
}

// IsLightID reports whether id is one of the known light identifiers
func IsLightID(id string) bool {
	switch id {
	case LightBacklight, LightKeyboard, LightButtons, LightBattery, LightNotifications, LightAttention:
		return true
	}
	return false
}

// expandEnvVars expands environment variables in the format ${VAR} or ${VAR:default}
func expandEnvVars(input string) string {
	// Match ${VAR} or ${VAR:default}
	re := regexp.MustCompile(`\$\{([^}:]+)(?::([^}]*))?\}`)

	return re.ReplaceAllStringFunc(input, func(match string) string {
		parts := re.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		varName := parts[1]
		defaultVal := ""
		if len(parts) >= 3 {
			defaultVal = parts[2]
		}

		if val := os.Getenv(varName); val != "" {
			return val
		}
		return defaultVal
	})
}
