package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"

	"gopkg.in/yaml.v2"
)

// =============================================================================
// Check Worker - Option Record with Environment Overrides
// =============================================================================

// Config is the "option record" referenced throughout this module: a
// configuration value produced once at startup and treated as read-only
// thereafter by every constructor it is threaded through.
type Config struct {
	Servers []string `yaml:"servers"`

	Hosts    bool `yaml:"hosts"`
	Services bool `yaml:"services"`
	Events   bool `yaml:"events"`

	Hostgroups    []string `yaml:"hostgroups"`
	Servicegroups []string `yaml:"servicegroups"`

	MinWorker int `yaml:"min_worker"`
	MaxWorker int `yaml:"max_worker"`

	JobTimeoutSec int `yaml:"job_timeout"`
	MaxAgeSec     int `yaml:"max_age"`

	CryptKey   string `yaml:"crypt_key"`
	Encryption bool   `yaml:"encryption"`

	DebugLevel int `yaml:"debug_level"`

	ResultQueue string `yaml:"result_queue"`

	// JobsBeforeExit bounds how many jobs a worker completes before it
	// voluntarily exits and is respawned by the pool supervisor (spec §4.4).
	JobsBeforeExit int `yaml:"jobs_before_exit"`

	Broker BrokerConfig `yaml:"broker"`
}

// BrokerConfig selects and configures the broker.Client backend. Exactly one
// of Redis/PubSub is expected to be populated; see internal/broker.
type BrokerConfig struct {
	Backend string             `yaml:"backend"` // "redis" | "pubsub"
	Redis   RedisBrokerConfig  `yaml:"redis"`
	PubSub  PubSubBrokerConfig `yaml:"pubsub"`
}

type RedisBrokerConfig struct {
	ChannelPrefix string `yaml:"channel_prefix"`
}

type PubSubBrokerConfig struct {
	ProjectID string `yaml:"project_id"`
}

var (
	instance *Config
	once     sync.Once
)

// Get returns the singleton option record, loading it from CONFIG_PATH (or
// config.yaml) on first use.
func Get() *Config {
	once.Do(func() {
		cfg, err := LoadConfig(getEnv("CONFIG_PATH", "config.yaml"))
		if err != nil {
			slog.Warn("config: failed to load config file, using defaults", "error", err)
			cfg = &Config{}
		}
		cfg.applyEnvOverrides()
		cfg.applyDefaults()
		instance = cfg
	})
	return instance
}

// LoadConfig reads and decodes the YAML option record at path.
func LoadConfig(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg Config
	if err := yaml.NewDecoder(f).Decode(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyEnvOverrides lets operators override the YAML option record without
// editing the file, matching the rest of this codebase's config idiom.
func (c *Config) applyEnvOverrides() {
	if servers := getEnv("CHECKWORKER_SERVERS", ""); servers != "" {
		c.Servers = splitCSV(servers)
	}

	c.Hosts = getEnvBool("CHECKWORKER_HOSTS", c.Hosts)
	c.Services = getEnvBool("CHECKWORKER_SERVICES", c.Services)
	c.Events = getEnvBool("CHECKWORKER_EVENTS", c.Events)

	if v := getEnv("CHECKWORKER_HOSTGROUPS", ""); v != "" {
		c.Hostgroups = splitCSV(v)
	}
	if v := getEnv("CHECKWORKER_SERVICEGROUPS", ""); v != "" {
		c.Servicegroups = splitCSV(v)
	}

	if v := getEnvInt("CHECKWORKER_MIN_WORKER", 0); v > 0 {
		c.MinWorker = v
	}
	if v := getEnvInt("CHECKWORKER_MAX_WORKER", 0); v > 0 {
		c.MaxWorker = v
	}
	if v := getEnvInt("CHECKWORKER_JOB_TIMEOUT", 0); v > 0 {
		c.JobTimeoutSec = v
	}
	if v := getEnvInt("CHECKWORKER_MAX_AGE", 0); v > 0 {
		c.MaxAgeSec = v
	}

	c.CryptKey = getEnv("CHECKWORKER_CRYPT_KEY", c.CryptKey)
	c.Encryption = getEnvBool("CHECKWORKER_ENCRYPTION", c.Encryption)

	if v := getEnvInt("CHECKWORKER_DEBUG_LEVEL", -1); v >= 0 {
		c.DebugLevel = v
	}

	c.ResultQueue = getEnv("CHECKWORKER_RESULT_QUEUE", c.ResultQueue)

	if v := getEnvInt("CHECKWORKER_JOBS_BEFORE_EXIT", 0); v > 0 {
		c.JobsBeforeExit = v
	}

	c.Broker.Backend = getEnv("CHECKWORKER_BROKER_BACKEND", c.Broker.Backend)
	c.Broker.Redis.ChannelPrefix = getEnv("CHECKWORKER_REDIS_PREFIX", c.Broker.Redis.ChannelPrefix)
	c.Broker.PubSub.ProjectID = getEnv("CHECKWORKER_GCP_PROJECT_ID", c.Broker.PubSub.ProjectID)
}

// applyDefaults fills in every zero-valued field with the documented default.
func (c *Config) applyDefaults() {
	if c.MinWorker == 0 {
		c.MinWorker = 1
	}
	if c.MaxWorker == 0 {
		c.MaxWorker = c.MinWorker
	}
	if c.JobTimeoutSec == 0 {
		c.JobTimeoutSec = 60
	}
	if c.MaxAgeSec == 0 {
		c.MaxAgeSec = 600
	}
	if c.ResultQueue == "" {
		c.ResultQueue = "check_results"
	}
	if c.JobsBeforeExit == 0 {
		c.JobsBeforeExit = 1000
	}
	if c.Broker.Backend == "" {
		c.Broker.Backend = "redis"
	}
	if c.Broker.Redis.ChannelPrefix == "" {
		c.Broker.Redis.ChannelPrefix = "checkworker:"
	}
}

// Validate enforces the option-record invariants from the data model:
// min <= max, at least one source queue active, and a crypt key whenever
// encryption is requested.
func (c *Config) Validate() error {
	if c.MinWorker <= 0 {
		return fmt.Errorf("config: min_worker must be positive, got %d", c.MinWorker)
	}
	if c.MinWorker > c.MaxWorker {
		return fmt.Errorf("config: min_worker (%d) > max_worker (%d)", c.MinWorker, c.MaxWorker)
	}
	if c.JobTimeoutSec < 1 {
		return fmt.Errorf("config: job_timeout must be >= 1, got %d", c.JobTimeoutSec)
	}
	if c.MaxAgeSec < 1 {
		return fmt.Errorf("config: max_age must be >= 1, got %d", c.MaxAgeSec)
	}
	if !c.Hosts && !c.Services && !c.Events && len(c.Hostgroups) == 0 && len(c.Servicegroups) == 0 {
		return fmt.Errorf("config: at least one source queue must be active")
	}
	if c.Encryption && strings.TrimSpace(c.CryptKey) == "" {
		return fmt.Errorf("config: crypt_key is required when encryption is enabled")
	}
	if len(c.Servers) == 0 {
		return fmt.Errorf("config: at least one broker server is required")
	}
	return nil
}

// =============================================================================
// Helper Functions
// =============================================================================

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		return val == "true" || val == "1"
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func splitCSV(s string) []string {
	parts := make([]string, 0)
	for _, p := range strings.Split(s, ",") {
		trimmed := strings.TrimSpace(p)
		if trimmed != "" {
			parts = append(parts, trimmed)
		}
	}
	return parts
}
