package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/saveweb/solar-tracker/pkg/tracker"
)

// Node list presets.
const (
	NodesProduction = "production"
	NodesTest       = "test"
)

// Environment variables that override archivist.yml.
const (
	EnvProject       = "SOLAR_PROJECT"
	EnvArchivist     = "SOLAR_ARCHIVIST"
	EnvClientVersion = "SOLAR_CLIENT_VERSION"
	EnvTrackerURL    = "SOLAR_TRACKER_URL"
	EnvRedisURL      = "REDIS_URL"
)

// Defaults applied by Validate.
const (
	DefaultIdleInterval  = 30 * time.Second
	DefaultDoneStatus    = "DONE"
	DefaultFailStatus    = "FAIL"
	DefaultRequeueStatus = "TODO"
)

// ArchivistConfig represents the top-level archivist.yml configuration
type ArchivistConfig struct {
	Version       string         `yaml:"version" toml:"version"`
	Project       string         `yaml:"project" toml:"project"`
	Archivist     string         `yaml:"archivist,omitempty" toml:"archivist"` // generated when empty
	ClientVersion string         `yaml:"client_version" toml:"client_version"`
	Tracker       TrackerConfig  `yaml:"tracker,omitempty" toml:"tracker"`
	Worker        WorkerConfig   `yaml:"worker,omitempty" toml:"worker"`
	Journal       *JournalConfig `yaml:"journal,omitempty" toml:"journal"`
	Verbose       bool           `yaml:"verbose,omitempty" toml:"verbose"`
}

// TrackerConfig selects tracker endpoints
type TrackerConfig struct {
	Preset         string        `yaml:"preset,omitempty" toml:"preset"`     // production (default) or test
	Nodes          []string      `yaml:"nodes,omitempty" toml:"nodes"`       // overrides the preset
	BaseURL        string        `yaml:"base_url,omitempty" toml:"base_url"` // pins one endpoint, skips selection
	RequestTimeout time.Duration `yaml:"request_timeout,omitempty" toml:"request_timeout"`
}

// WorkerConfig controls the claim loop
type WorkerConfig struct {
	IdleInterval  time.Duration `yaml:"idle_interval,omitempty" toml:"idle_interval"` // wait after "no task" or a claim error
	DoneStatus    string        `yaml:"done_status,omitempty" toml:"done_status"`
	FailStatus    string        `yaml:"fail_status,omitempty" toml:"fail_status"`
	RequeueStatus string        `yaml:"requeue_status,omitempty" toml:"requeue_status"` // status for tasks recovered from the journal
	MaxTasks      int           `yaml:"max_tasks,omitempty" toml:"max_tasks"`           // 0 = unlimited
	HealthPort    int           `yaml:"health_port,omitempty" toml:"health_port"`       // 0 = no health server
}

// JournalConfig enables the Redis in-flight journal
type JournalConfig struct {
	RedisURL string `yaml:"redis_url" toml:"redis_url"`
}

// Default returns a configuration with every optional field defaulted.
// Project and client version still have to be provided.
func Default() *ArchivistConfig {
	cfg := &ArchivistConfig{Version: "1.0"}
	cfg.applyDefaults()
	return cfg
}

func (c *ArchivistConfig) applyDefaults() {
	if c.Tracker.Preset == "" {
		c.Tracker.Preset = NodesProduction
	}
	if c.Tracker.RequestTimeout == 0 {
		c.Tracker.RequestTimeout = tracker.DefaultRequestTimeout
	}
	if c.Worker.IdleInterval == 0 {
		c.Worker.IdleInterval = DefaultIdleInterval
	}
	if c.Worker.DoneStatus == "" {
		c.Worker.DoneStatus = DefaultDoneStatus
	}
	if c.Worker.FailStatus == "" {
		c.Worker.FailStatus = DefaultFailStatus
	}
	if c.Worker.RequeueStatus == "" {
		c.Worker.RequeueStatus = DefaultRequeueStatus
	}
	if c.Archivist == "" {
		c.Archivist = GenerateArchivistName()
	}
}

// GenerateArchivistName returns a random name that passes identifier validation.
func GenerateArchivistName() string {
	return "archivist-" + strings.SplitN(uuid.NewString(), "-", 2)[0]
}

// ApplyEnv overrides fields from the environment.
func (c *ArchivistConfig) ApplyEnv(getenv func(string) string) {
	if getenv == nil {
		getenv = os.Getenv
	}
	if v := getenv(EnvProject); v != "" {
		c.Project = v
	}
	if v := getenv(EnvArchivist); v != "" {
		c.Archivist = v
	}
	if v := getenv(EnvClientVersion); v != "" {
		c.ClientVersion = v
	}
	if v := getenv(EnvTrackerURL); v != "" {
		c.Tracker.BaseURL = v
	}
	if v := getenv(EnvRedisURL); v != "" {
		if c.Journal == nil {
			c.Journal = &JournalConfig{}
		}
		c.Journal.RedisURL = v
	}
}

// Validate performs strict validation on the configuration and fills defaults
func (c *ArchivistConfig) Validate() error {
	if c.Version != "1.0" {
		return fmt.Errorf("unsupported version: %s (expected: 1.0)", c.Version)
	}

	// A generated name changes on every start and would orphan journal entries.
	if c.JournalEnabled() && c.Archivist == "" {
		return fmt.Errorf("archivist is required when journal is configured")
	}

	c.applyDefaults()

	if err := tracker.ValidateIdentifier("project", c.Project); err != nil {
		return err
	}
	if err := tracker.ValidateIdentifier("archivist", c.Archivist); err != nil {
		return err
	}
	if c.ClientVersion == "" {
		return fmt.Errorf("client_version is required")
	}

	switch c.Tracker.Preset {
	case NodesProduction, NodesTest:
	default:
		return fmt.Errorf("invalid tracker.preset: %s (must be '%s' or '%s')", c.Tracker.Preset, NodesProduction, NodesTest)
	}
	for i, node := range c.Tracker.Nodes {
		if !strings.HasPrefix(node, "http://") && !strings.HasPrefix(node, "https://") {
			return fmt.Errorf("tracker.nodes[%d]: %q is not an http(s) URL", i, node)
		}
	}
	if c.Tracker.RequestTimeout < 0 {
		return fmt.Errorf("tracker.request_timeout must be >= 0")
	}

	if c.Worker.IdleInterval < 0 {
		return fmt.Errorf("worker.idle_interval must be >= 0")
	}
	if c.Worker.MaxTasks < 0 {
		return fmt.Errorf("worker.max_tasks must be >= 0 (0 = unlimited), got %d", c.Worker.MaxTasks)
	}
	if c.Worker.HealthPort < 0 || c.Worker.HealthPort > 65535 {
		return fmt.Errorf("worker.health_port out of range: %d", c.Worker.HealthPort)
	}

	if c.Journal != nil && c.Journal.RedisURL == "" {
		return fmt.Errorf("journal.redis_url is required when journal is configured")
	}

	return nil
}

// Nodes returns the candidate tracker endpoints.
func (c *ArchivistConfig) Nodes() []string {
	if c.Tracker.BaseURL != "" {
		return []string{c.Tracker.BaseURL}
	}
	if len(c.Tracker.Nodes) > 0 {
		return c.Tracker.Nodes
	}
	if c.Tracker.Preset == NodesTest {
		return tracker.TestNodes
	}
	return tracker.ProductionNodes
}

// TrackerOptions returns the tracker.Config and options this configuration implies.
func (c *ArchivistConfig) TrackerOptions() (tracker.Config, []tracker.Option) {
	cfg := tracker.Config{
		ProjectID:      c.Project,
		Archivist:      c.Archivist,
		ClientVersion:  c.ClientVersion,
		Nodes:          c.Nodes(),
		RequestTimeout: c.Tracker.RequestTimeout,
	}
	var opts []tracker.Option
	if c.Tracker.BaseURL != "" {
		opts = append(opts, tracker.WithBaseURL(c.Tracker.BaseURL))
	}
	return cfg, opts
}

// JournalEnabled reports whether a Redis journal is configured.
func (c *ArchivistConfig) JournalEnabled() bool {
	return c.Journal != nil && c.Journal.RedisURL != ""
}

// Load reads archivist.yml (or archivist.toml), applies environment overrides
// and validates it. An empty path skips the file and builds the configuration from defaults
// and the environment alone.
func Load(path string, getenv func(string) string) (*ArchivistConfig, error) {
	config := &ArchivistConfig{Version: "1.0"}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if strings.EqualFold(filepath.Ext(path), ".toml") {
			if _, err := toml.Decode(string(data), config); err != nil {
				return nil, fmt.Errorf("failed to parse TOML: %w", err)
			}
		} else if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse YAML: %w", err)
		}
	}

	config.ApplyEnv(getenv)

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return config, nil
}
