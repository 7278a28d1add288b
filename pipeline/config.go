package pipeline

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config holds the full pipeline run configuration.
type Config struct {
	Datasets      []DatasetConfig     `yaml:"datasets"`
	Executor      ExecutorConfig      `yaml:"executor"`
	Cluster       ClusterConfig       `yaml:"cluster"`
	SentenceDedup SentenceDedupConfig `yaml:"sentence_dedup"`
	MinHash       MinHashConfig       `yaml:"minhash"`
}

// DatasetConfig names one record collection to push through the pipeline.
type DatasetConfig struct {
	Name       string `yaml:"name"`
	InputPath  string `yaml:"input_path"`
	OutputPath string `yaml:"output_path"`
}

// ExecutorConfig sets the parallelism of each pipeline stage.
type ExecutorConfig struct {
	Tasks   int `yaml:"tasks"`
	Workers int `yaml:"workers"`
}

// ClusterConfig selects where stages execute. Only the "local" kind is
// handled here; other kinds are forwarded verbatim to the compute backend.
type ClusterConfig struct {
	Kind      string            `yaml:"kind"`
	Scheduler string            `yaml:"scheduler"`
	Options   map[string]string `yaml:"options"`
}

// SentenceDedupConfig parameterizes the exact sentence-level dedup stage.
type SentenceDedupConfig struct {
	Enabled      bool   `yaml:"enabled"`
	WorkPath     string `yaml:"work_path"`
	MinDocWords  int    `yaml:"min_doc_words"`
	MinSentWords int    `yaml:"min_sent_words"`
}

// MinHashConfig parameterizes the near-duplicate detection stage.
type MinHashConfig struct {
	Enabled         bool   `yaml:"enabled"`
	WorkPath        string `yaml:"work_path"`
	Permutations    int    `yaml:"permutations"`
	Buckets         int    `yaml:"buckets"`
	HashesPerBucket int    `yaml:"hashes_per_bucket"`
}

// DefaultConfig returns sane defaults.
func DefaultConfig() *Config {
	return &Config{
		Executor: ExecutorConfig{
			Tasks:   1,
			Workers: 4,
		},
		Cluster: ClusterConfig{
			Kind: "local",
		},
		MinHash: MinHashConfig{
			Permutations:    64,
			Buckets:         8,
			HashesPerBucket: 8,
		},
	}
}

// LoadConfig reads and parses a YAML config file, merged over DefaultConfig.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

// Validate checks that required fields are present and values are sane.
func (c *Config) Validate() error {
	if len(c.Datasets) == 0 {
		return fmt.Errorf("at least one dataset is required")
	}
	for i, ds := range c.Datasets {
		if ds.Name == "" {
			return fmt.Errorf("dataset[%d]: name is required", i)
		}
		if ds.InputPath == "" {
			return fmt.Errorf("dataset[%d]: input_path is required", i)
		}
		if ds.OutputPath == "" {
			return fmt.Errorf("dataset[%d]: output_path is required", i)
		}
	}
	if c.Executor.Tasks <= 0 {
		return fmt.Errorf("executor.tasks must be > 0")
	}
	if c.Executor.Workers <= 0 {
		return fmt.Errorf("executor.workers must be > 0")
	}
	switch c.Cluster.Kind {
	case "local", "":
	default:
		if c.Cluster.Scheduler == "" {
			return fmt.Errorf("cluster.scheduler is required for kind %q", c.Cluster.Kind)
		}
	}
	if c.SentenceDedup.Enabled && c.SentenceDedup.WorkPath == "" {
		return fmt.Errorf("sentence_dedup.work_path is required when enabled")
	}
	if c.MinHash.Enabled && c.MinHash.WorkPath == "" {
		return fmt.Errorf("minhash.work_path is required when enabled")
	}
	return nil
}
