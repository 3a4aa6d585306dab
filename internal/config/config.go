package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/echoform/echoform-backend/internal/platform/envutil"
)

// Config holds the tunables of the synthesis pipeline. Values come from an
// optional YAML file (CONFIG_PATH) with env overrides for the knobs that
// differ per deployment.
type Config struct {
	Cache     CacheConfig     `yaml:"cache"`
	Synthesis SynthesisConfig `yaml:"synthesis"`
	Quota     QuotaConfig     `yaml:"quota"`
	Worker    WorkerConfig    `yaml:"worker"`
	Reconcile ReconcileConfig `yaml:"reconcile"`
}

type CacheConfig struct {
	// NearDuplicateThreshold gates approximate cache hits on cosine
	// similarity of text embeddings. Deliberately configuration, not a
	// constant.
	NearDuplicateThreshold float64       `yaml:"near_duplicate_threshold"`
	NearDuplicateTopK      int           `yaml:"near_duplicate_top_k"`
	ExactTTL               time.Duration `yaml:"exact_ttl"`
	// ResultTTL bounds how long a completed job's artifact is served from
	// cache before it expires.
	ResultTTL time.Duration `yaml:"result_ttl"`
}

type SynthesisConfig struct {
	MaxRetries    int           `yaml:"max_retries"`
	RetryBackoff  time.Duration `yaml:"retry_backoff"`
	SubmitTimeout time.Duration `yaml:"submit_timeout"`
	PollInterval  time.Duration `yaml:"poll_interval"`
	// JobTimeout is the hard ceiling for a single synthesis; expiry fails
	// the job rather than leaving it running forever.
	JobTimeout time.Duration `yaml:"job_timeout"`
}

type QuotaConfig struct {
	MaxVoiceSamples   int `yaml:"max_voice_samples"`
	MaxDailySyntheses int `yaml:"max_daily_syntheses"`
}

type WorkerConfig struct {
	Concurrency  int           `yaml:"concurrency"`
	MaxAttempts  int           `yaml:"max_attempts"`
	RetryDelay   time.Duration `yaml:"retry_delay"`
	StaleRunning time.Duration `yaml:"stale_running"`
}

type ReconcileConfig struct {
	Schedule  string `yaml:"schedule"`
	BatchSize int    `yaml:"batch_size"`
}

func Default() Config {
	return Config{
		Cache: CacheConfig{
			NearDuplicateThreshold: 0.95,
			NearDuplicateTopK:      5,
			ExactTTL:               5 * time.Minute,
			ResultTTL:              30 * 24 * time.Hour,
		},
		Synthesis: SynthesisConfig{
			MaxRetries:    3,
			RetryBackoff:  2 * time.Second,
			SubmitTimeout: 30 * time.Second,
			PollInterval:  2 * time.Second,
			JobTimeout:    10 * time.Minute,
		},
		Quota: QuotaConfig{
			MaxVoiceSamples:   10,
			MaxDailySyntheses: 50,
		},
		Worker: WorkerConfig{
			Concurrency:  4,
			MaxAttempts:  5,
			RetryDelay:   30 * time.Second,
			StaleRunning: 30 * time.Minute,
		},
		Reconcile: ReconcileConfig{
			Schedule:  "@every 5m",
			BatchSize: 200,
		},
	}
}

// Load reads CONFIG_PATH (when set), layers it over defaults, then applies
// env overrides.
func Load() (Config, error) {
	cfg := Default()

	path := strings.TrimSpace(os.Getenv("CONFIG_PATH"))
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.Worker.Concurrency = envutil.Int("WORKER_CONCURRENCY", cfg.Worker.Concurrency)
	cfg.Quota.MaxVoiceSamples = envutil.Int("QUOTA_MAX_VOICE_SAMPLES", cfg.Quota.MaxVoiceSamples)
	cfg.Quota.MaxDailySyntheses = envutil.Int("QUOTA_MAX_DAILY_SYNTHESES", cfg.Quota.MaxDailySyntheses)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.Cache.NearDuplicateThreshold <= 0 || c.Cache.NearDuplicateThreshold > 1 {
		return fmt.Errorf("cache.near_duplicate_threshold must be in (0,1], got %v", c.Cache.NearDuplicateThreshold)
	}
	if c.Cache.NearDuplicateTopK <= 0 {
		return fmt.Errorf("cache.near_duplicate_top_k must be positive")
	}
	if c.Synthesis.MaxRetries < 0 {
		return fmt.Errorf("synthesis.max_retries must not be negative")
	}
	if c.Synthesis.JobTimeout <= 0 {
		return fmt.Errorf("synthesis.job_timeout must be positive")
	}
	if c.Worker.Concurrency < 1 {
		return fmt.Errorf("worker.concurrency must be at least 1")
	}
	return nil
}
