package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/callboard/callboard/internal/classify"
	"github.com/callboard/callboard/internal/control"
)

// DefaultPath is the config file read when --config is not given. It may be
// absent.
const DefaultPath = "callboard.yaml"

type Config struct {
	AMI            AMIConfig            `yaml:"ami"`
	Supervisor     SupervisorConfig     `yaml:"supervisor"`
	Classification ClassificationConfig `yaml:"classification"`
	Console        ConsoleConfig        `yaml:"console"`
	Wallboard      WallboardConfig      `yaml:"wallboard"`

	rules classify.Rules
}

type AMIConfig struct {
	Host           string        `yaml:"host"`
	Port           int           `yaml:"port"`
	Username       string        `yaml:"username"`
	Secret         string        `yaml:"secret"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
	ActionTimeout  time.Duration `yaml:"action_timeout"`
}

// Addr returns host:port.
func (a AMIConfig) Addr() string {
	return net.JoinHostPort(a.Host, strconv.Itoa(a.Port))
}

type SupervisorConfig struct {
	Endpoint      string        `yaml:"endpoint"`
	Context       string        `yaml:"context"`
	DialPrefix    string        `yaml:"dial_prefix"`
	WhisperPrefix string        `yaml:"whisper_prefix"`
	BargePrefix   string        `yaml:"barge_prefix"`
	CallerID      string        `yaml:"caller_id"`
	Timeout       time.Duration `yaml:"timeout"`
}

type ClassificationConfig struct {
	HintVariable string          `yaml:"hint_variable"`
	Rules        []classify.Rule `yaml:"rules"` // empty uses the built-in rules
}

type ConsoleConfig struct {
	QueueSize        int  `yaml:"queue_size"`
	AuditSize        int  `yaml:"audit_size"`
	RefreshOnConnect bool `yaml:"refresh_on_connect"`
}

type WallboardConfig struct {
	Listen           string        `yaml:"listen"` // empty disables the feed
	SnapshotInterval time.Duration `yaml:"snapshot_interval"`
	AllowedOrigins   []string      `yaml:"allowed_origins"`
	Token            string        `yaml:"token"`
	MaxConns         int           `yaml:"max_conns"`
}

func defaultConfig() *Config {
	return &Config{
		AMI: AMIConfig{
			Host:           "127.0.0.1",
			Port:           5038,
			ConnectTimeout: 5 * time.Second,
			ActionTimeout:  5 * time.Second,
		},
		Supervisor: SupervisorConfig{
			Context:    "from-internal",
			DialPrefix: "556",
			CallerID:   "Supervisor",
			Timeout:    30 * time.Second,
		},
		Classification: ClassificationConfig{
			HintVariable: "CALL_DIRECTION",
		},
		Console: ConsoleConfig{
			QueueSize:        20000,
			AuditSize:        500,
			RefreshOnConnect: true,
		},
		Wallboard: WallboardConfig{
			SnapshotInterval: 2 * time.Second,
			MaxConns:         100,
		},
	}
}

// Default returns the built-in configuration, validated.
func Default() *Config {
	cfg := defaultConfig()
	if err := cfg.Validate(); err != nil {
		panic(err)
	}
	return cfg
}

// Load reads path over the defaults and validates the result. A missing file
// is only an error when required is set.
func Load(path string, required bool) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	case errors.Is(err, fs.ErrNotExist) && !required:
	default:
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks ranges and compiles the classification rules. It must run
// again after any field is overridden.
func (c *Config) Validate() error {
	if c.AMI.Host == "" {
		return errors.New("ami.host is required")
	}
	if c.AMI.Port < 1 || c.AMI.Port > 65535 {
		return fmt.Errorf("ami.port %d out of range", c.AMI.Port)
	}
	if c.AMI.ConnectTimeout <= 0 || c.AMI.ActionTimeout <= 0 {
		return errors.New("ami timeouts must be positive")
	}
	if c.Console.QueueSize < 1 {
		return fmt.Errorf("console.queue_size %d must be positive", c.Console.QueueSize)
	}
	if c.Console.AuditSize < 1 {
		return fmt.Errorf("console.audit_size %d must be positive", c.Console.AuditSize)
	}
	if c.Wallboard.Listen != "" && c.Wallboard.SnapshotInterval <= 0 {
		return errors.New("wallboard.snapshot_interval must be positive")
	}

	if len(c.Classification.Rules) == 0 {
		c.rules = classify.DefaultRules()
		return nil
	}
	rules, err := classify.Compile(c.Classification.Rules)
	if err != nil {
		return fmt.Errorf("classification: %w", err)
	}
	c.rules = rules
	return nil
}

// Rules returns the compiled classification rules.
func (c *Config) Rules() classify.Rules {
	if c.rules == nil {
		return classify.DefaultRules()
	}
	return c.rules
}

// SupervisorTarget converts the supervisor section for the dispatcher.
func (c *Config) SupervisorTarget() control.Supervisor {
	s := c.Supervisor
	return control.Supervisor{
		Endpoint:      s.Endpoint,
		Context:       s.Context,
		DialPrefix:    s.DialPrefix,
		WhisperPrefix: s.WhisperPrefix,
		BargePrefix:   s.BargePrefix,
		CallerID:      s.CallerID,
		Timeout:       s.Timeout,
	}
}
