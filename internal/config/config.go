// Package config provides configuration management for the GRAG memory
// subsystem. Settings load from environment variables with the GRAG_ prefix,
// optionally overridden by a YAML file, with sensible defaults for every
// option.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the memory subsystem.
type Config struct {
	LLM       LLMConfig       `yaml:"llm"`
	Storage   StorageConfig   `yaml:"storage"`
	Graph     GraphConfig     `yaml:"graph"`
	Tasks     TasksConfig     `yaml:"tasks"`
	Dedup     DedupConfig     `yaml:"dedup"`
	Decision  DecisionConfig  `yaml:"decision"`
	Extractor ExtractorConfig `yaml:"extractor"`
}

// LLMConfig configures the extraction oracle.
type LLMConfig struct {
	BaseURL     string  `yaml:"base_url"`    // OpenAI-compatible endpoint (default: http://localhost:8000/v1)
	APIKey      string  `yaml:"api_key"`     // Bearer token, empty for local providers
	Model       string  `yaml:"model"`       // Model name (default: qwen2.5:7b)
	MaxTokens   int     `yaml:"max_tokens"`  // Completion cap (default: 2000)
	Temperature float64 `yaml:"temperature"` // Sampling temperature (default: 0.3)

	// TimeoutSeconds bounds the primary extraction call; fallback calls use
	// FallbackTimeoutSeconds.
	TimeoutSeconds         int `yaml:"timeout_seconds"`          // default: 30
	FallbackTimeoutSeconds int `yaml:"fallback_timeout_seconds"` // default: 15

	// RequestsPerSecond paces outbound calls; zero disables the limiter.
	RequestsPerSecond float64 `yaml:"requests_per_second"` // default: 2
}

// StorageConfig configures the typed memory files.
type StorageConfig struct {
	// Dir is the knowledge-graph directory holding quintuples.json and the
	// four per-type files.
	Dir string `yaml:"dir"` // default: ./logs/knowledge_graph
}

// GraphConfig configures the optional Neo4j mirror.
type GraphConfig struct {
	Enabled  bool   `yaml:"enabled"`  // default: false
	URI      string `yaml:"uri"`      // default: neo4j://localhost:7687
	User     string `yaml:"user"`     // default: neo4j
	Password string `yaml:"password"` //
	Database string `yaml:"database"` // default: neo4j

	// MergeByNameAndType merges graph nodes on (name, entity_type) instead
	// of name alone. Off by default: same-named entities of different types
	// collide as one node, matching the historical graph contents.
	MergeByNameAndType bool `yaml:"merge_by_name_and_type"`
}

// TasksConfig configures the async extraction worker pool.
type TasksConfig struct {
	NumWorkers             int `yaml:"num_workers"`              // default: 3
	QueueSize              int `yaml:"queue_size"`               // default: 100
	ShutdownTimeoutSeconds int `yaml:"shutdown_timeout_seconds"` // default: 30
}

// DedupConfig configures semantic deduplication.
type DedupConfig struct {
	SimilarityThreshold float64 `yaml:"similarity_threshold"` // default: 0.8
}

// DecisionConfig configures the upstream memory-decision gate.
type DecisionConfig struct {
	Enabled bool `yaml:"enabled"` // default: true
}

// ExtractorConfig configures extraction-side behavior.
type ExtractorConfig struct {
	// AdvancedAnalysis enables the LLM multi-factor importance rubric in
	// place of the heuristic score.
	AdvancedAnalysis bool `yaml:"advanced_analysis"` // default: false

	// ContextWindow is how many recent conversation turns the manager keeps
	// and passes as extraction context.
	ContextWindow int `yaml:"context_window"` // default: 5

	// CacheSize bounds the extraction-result cache (entries).
	CacheSize int `yaml:"cache_size"` // default: 256
}

// LoadConfig loads configuration from environment variables with sensible
// defaults. All environment variables use the GRAG_ prefix.
func LoadConfig() (*Config, error) {
	cfg := buildBaseConfig()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadConfigFromFile loads the base env/default configuration and then
// applies overrides from a YAML file. File values take precedence.
func LoadConfigFromFile(path string) (*Config, error) {
	cfg := buildBaseConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints that defaults alone cannot
// guarantee once file or env overrides are applied.
func (c *Config) Validate() error {
	if c.Tasks.NumWorkers < 1 {
		return fmt.Errorf("config: tasks.num_workers must be >= 1, got %d", c.Tasks.NumWorkers)
	}
	if c.Tasks.QueueSize < 1 {
		return fmt.Errorf("config: tasks.queue_size must be >= 1, got %d", c.Tasks.QueueSize)
	}
	if c.Dedup.SimilarityThreshold <= 0 || c.Dedup.SimilarityThreshold > 1 {
		return fmt.Errorf("config: dedup.similarity_threshold must be in (0,1], got %v", c.Dedup.SimilarityThreshold)
	}
	if c.Storage.Dir == "" {
		return fmt.Errorf("config: storage.dir is required")
	}
	if c.Graph.Enabled && c.Graph.URI == "" {
		return fmt.Errorf("config: graph.uri is required when graph.enabled is true")
	}
	return nil
}

// buildBaseConfig constructs a Config from environment variables and
// defaults. Shared base for LoadConfig and LoadConfigFromFile.
func buildBaseConfig() *Config {
	return &Config{
		LLM: LLMConfig{
			BaseURL:                getEnv("GRAG_LLM_BASE_URL", "http://localhost:8000/v1"),
			APIKey:                 getEnv("GRAG_LLM_API_KEY", ""),
			Model:                  getEnv("GRAG_LLM_MODEL", "qwen2.5:7b"),
			MaxTokens:              getEnvInt("GRAG_LLM_MAX_TOKENS", 2000),
			Temperature:            getEnvFloat("GRAG_LLM_TEMPERATURE", 0.3),
			TimeoutSeconds:         getEnvInt("GRAG_LLM_TIMEOUT_SECONDS", 30),
			FallbackTimeoutSeconds: getEnvInt("GRAG_LLM_FALLBACK_TIMEOUT_SECONDS", 15),
			RequestsPerSecond:      getEnvFloat("GRAG_LLM_REQUESTS_PER_SECOND", 2),
		},
		Storage: StorageConfig{
			Dir: getEnv("GRAG_STORAGE_DIR", "./logs/knowledge_graph"),
		},
		Graph: GraphConfig{
			Enabled:            getEnvBool("GRAG_GRAPH_ENABLED", false),
			URI:                getEnv("GRAG_NEO4J_URI", "neo4j://localhost:7687"),
			User:               getEnv("GRAG_NEO4J_USER", "neo4j"),
			Password:           getEnv("GRAG_NEO4J_PASSWORD", ""),
			Database:           getEnv("GRAG_NEO4J_DATABASE", "neo4j"),
			MergeByNameAndType: getEnvBool("GRAG_GRAPH_MERGE_BY_NAME_AND_TYPE", false),
		},
		Tasks: TasksConfig{
			NumWorkers:             getEnvInt("GRAG_TASK_WORKERS", 3),
			QueueSize:              getEnvInt("GRAG_TASK_QUEUE_SIZE", 100),
			ShutdownTimeoutSeconds: getEnvInt("GRAG_TASK_SHUTDOWN_TIMEOUT_SECONDS", 30),
		},
		Dedup: DedupConfig{
			SimilarityThreshold: getEnvFloat("GRAG_DEDUP_SIMILARITY_THRESHOLD", 0.8),
		},
		Decision: DecisionConfig{
			Enabled: getEnvBool("GRAG_MEMORY_DECISION_ENABLED", true),
		},
		Extractor: ExtractorConfig{
			AdvancedAnalysis: getEnvBool("GRAG_ADVANCED_ANALYSIS", false),
			ContextWindow:    getEnvInt("GRAG_CONTEXT_WINDOW", 5),
			CacheSize:        getEnvInt("GRAG_EXTRACTION_CACHE_SIZE", 256),
		},
	}
}

// getEnv retrieves a string environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt retrieves an integer environment variable or returns a default
// value when unset or unparseable.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvFloat retrieves a float environment variable or returns a default
// value when unset or unparseable.
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// getEnvBool retrieves a boolean environment variable or returns a default
// value. Recognizes "true", "1", "yes" and "false", "0", "no".
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		switch value {
		case "true", "1", "yes", "True", "TRUE", "Yes", "YES":
			return true
		case "false", "0", "no", "False", "FALSE", "No", "NO":
			return false
		}
	}
	return defaultValue
}
