package config

import (
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// Model kinds accepted in embedding.models and retrieval.collections.
const (
	KindText  = "text"
	KindImage = "image"
)

// DefaultCrossModalMaxWords is the word budget of the image model when none is set.
const DefaultCrossModalMaxWords = 20

// Config holds the vecmatch service configuration.
type Config struct {
	HTTP           HTTPConfig           `yaml:"http"`
	Database       DatabaseConfig       `yaml:"database"`
	Embedding      EmbeddingConfig      `yaml:"embedding"`
	Retrieval      RetrievalConfig      `yaml:"retrieval"`
	Classification ClassificationConfig `yaml:"classification"`
	Index          IndexConfig          `yaml:"index"`
	Auth           AuthConfig           `yaml:"auth"`
	Logging        LoggingConfig        `yaml:"logging"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// AuthConfig holds API authentication settings.
type AuthConfig struct {
	APIKeys []string `yaml:"api_keys"`
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
	MaxBodyBytes    int `yaml:"max_body_bytes"`
	MaxBatchSize    int `yaml:"max_batch_size"`
}

// DatabaseConfig holds Redis connection settings.
type DatabaseConfig struct {
	Addrs            []string `yaml:"addrs"`
	Username         string   `yaml:"username"`
	Password         string   `yaml:"password"`
	DB               int      `yaml:"db"`
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
	DialTimeoutSec   int      `yaml:"dial_timeout_sec"`
	ReadTimeoutSec   int      `yaml:"read_timeout_sec"`
}

// EmbeddingConfig holds embedding provider settings.
type EmbeddingConfig struct {
	Enabled    *bool                  `yaml:"enabled"` // default true
	APIKey     string                 `yaml:"api_key"`
	BaseURL    string                 `yaml:"base_url"`
	User       string                 `yaml:"user"`
	TimeoutSec int                    `yaml:"timeout_sec"`
	Models     map[string]ModelConfig `yaml:"models"` // keyed by kind: text, image
	Cache      CacheConfig            `yaml:"cache"`
}

// IsEnabled reports whether embeddings are switched on.
func (e EmbeddingConfig) IsEnabled() bool {
	return e.Enabled == nil || *e.Enabled
}

// ModelConfig describes one embedding model.
type ModelConfig struct {
	Model      string `yaml:"model"`
	Dimensions int    `yaml:"dimensions"`
	// MaxWords truncates text input to its leading words. Negative disables truncation.
	MaxWords int `yaml:"max_words"`
}

// CacheConfig holds embedding cache settings.
type CacheConfig struct {
	Enabled bool `yaml:"enabled"`
	TTLSec  int  `yaml:"ttl_sec"`
}

// RetrievalConfig holds search settings and the collection registry.
type RetrievalConfig struct {
	Alpha       *float64                    `yaml:"alpha"` // default 0.5
	Collections map[string]CollectionConfig `yaml:"collections"`
}

// CollectionConfig describes one searchable collection.
// vector_field, model_kind and dimensions declare a single vector field;
// vector_fields declares one per model kind. Both may be combined for different kinds.
type CollectionConfig struct {
	QueryBy      []string                     `yaml:"query_by"`
	VectorField  string                       `yaml:"vector_field"`
	ModelKind    string                       `yaml:"model_kind"`
	Dimensions   int                          `yaml:"dimensions"`
	VectorFields map[string]VectorFieldConfig `yaml:"vector_fields"` // keyed by kind: text, image
	Tags         []string                     `yaml:"tags"`
	Numerics     []string                     `yaml:"numerics"`
}

// VectorFieldConfig is one vector field of a collection.
type VectorFieldConfig struct {
	Field      string `yaml:"field"`
	Dimensions int    `yaml:"dimensions"`
}

// VectorsByKind merges the single vector_field shorthand with vector_fields.
func (c CollectionConfig) VectorsByKind() (map[string]VectorFieldConfig, error) {
	out := make(map[string]VectorFieldConfig, len(c.VectorFields)+1)
	for kind, v := range c.VectorFields {
		out[kind] = v
	}
	if c.VectorField != "" {
		if _, dup := out[c.ModelKind]; dup {
			return nil, fmt.Errorf("model_kind %q is also declared in vector_fields", c.ModelKind)
		}
		out[c.ModelKind] = VectorFieldConfig{Field: c.VectorField, Dimensions: c.Dimensions}
	}
	return out, nil
}

// ClassificationConfig holds group classification settings.
type ClassificationConfig struct {
	// GroupCollection holds one record per group with a vector field per modality.
	// TextCollection and ImageCollection override it for one modality.
	GroupCollection string  `yaml:"group_collection"`
	TextCollection  string  `yaml:"text_collection"`
	ImageCollection string  `yaml:"image_collection"`
	LabelField      string  `yaml:"label_field"`
	DefaultGroup    string  `yaml:"default_group"`
	Neighbors       int     `yaml:"neighbors"`
	TextWeight      float64 `yaml:"text_weight"`
	ImageWeight     float64 `yaml:"image_weight"`
	SingleThreshold float64 `yaml:"single_threshold"`
	DualThreshold   float64 `yaml:"dual_threshold"`
	CaptionMaxChars int     `yaml:"caption_max_chars"`
}

// IndexConfig holds HNSW index settings.
type IndexConfig struct {
	AutoCreate      bool `yaml:"auto_create"`
	HNSWM           int  `yaml:"hnsw_m"`
	HNSWEFConstruct int  `yaml:"hnsw_ef_construction"`
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	configPath := findConfigPath(env)

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	return Parse(data)
}

// Parse decodes YAML, expands ${VAR} references, applies defaults and validates.
func Parse(data []byte) (Config, error) {
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// MustLoad loads configuration or panics.
func MustLoad(env string) Config {
	cfg, err := Load(env)
	if err != nil {
		panic(err)
	}
	return cfg
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 60
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.HTTP.MaxBodyBytes <= 0 {
		c.HTTP.MaxBodyBytes = 16 << 20
	}
	if c.HTTP.MaxBatchSize <= 0 {
		c.HTTP.MaxBatchSize = 50
	}
	if c.Database.ReadinessTimeout <= 0 {
		c.Database.ReadinessTimeout = 10
	}
	if c.Database.DialTimeoutSec <= 0 {
		c.Database.DialTimeoutSec = 5
	}
	if c.Database.ReadTimeoutSec <= 0 {
		c.Database.ReadTimeoutSec = 10
	}
	if c.Embedding.TimeoutSec <= 0 {
		c.Embedding.TimeoutSec = 30
	}
	if c.Embedding.Cache.TTLSec <= 0 {
		c.Embedding.Cache.TTLSec = 7 * 24 * 3600
	}
	if m, ok := c.Embedding.Models[KindImage]; ok && m.MaxWords == 0 {
		m.MaxWords = DefaultCrossModalMaxWords
		c.Embedding.Models[KindImage] = m
	}
	if c.Retrieval.Alpha == nil {
		alpha := 0.5
		c.Retrieval.Alpha = &alpha
	}
	if c.Classification.LabelField == "" {
		c.Classification.LabelField = "name"
	}
	if c.Classification.DefaultGroup == "" {
		c.Classification.DefaultGroup = "general"
	}
	if c.Classification.Neighbors <= 0 {
		c.Classification.Neighbors = 2
	}
	if c.Classification.TextWeight <= 0 {
		c.Classification.TextWeight = 1.0
	}
	if c.Classification.ImageWeight <= 0 {
		c.Classification.ImageWeight = 1.2
	}
	if c.Classification.SingleThreshold <= 0 {
		c.Classification.SingleThreshold = 0.66
	}
	if c.Classification.DualThreshold <= 0 {
		c.Classification.DualThreshold = 1.3
	}
	if c.Classification.CaptionMaxChars <= 0 {
		c.Classification.CaptionMaxChars = 200
	}
	if c.Index.HNSWM <= 0 {
		c.Index.HNSWM = 16
	}
	if c.Index.HNSWEFConstruct <= 0 {
		c.Index.HNSWEFConstruct = 200
	}
}

// TextCollectionName is the collection the caption modality searches.
func (c ClassificationConfig) TextCollectionName() string {
	if c.TextCollection != "" {
		return c.TextCollection
	}
	return c.GroupCollection
}

// ImageCollectionName is the collection the image modality searches.
func (c ClassificationConfig) ImageCollectionName() string {
	if c.ImageCollection != "" {
		return c.ImageCollection
	}
	return c.GroupCollection
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	if len(c.Database.Addrs) == 0 {
		return fmt.Errorf("database.addrs is required")
	}
	for kind, m := range c.Embedding.Models {
		if kind != KindText && kind != KindImage {
			return fmt.Errorf("embedding.models.%s: kind must be %q or %q", kind, KindText, KindImage)
		}
		if m.Model == "" {
			return fmt.Errorf("embedding.models.%s.model is required", kind)
		}
	}
	if c.Embedding.IsEnabled() && len(c.Embedding.Models) > 0 && c.Embedding.BaseURL == "" {
		return fmt.Errorf("embedding.base_url is required when embedding is enabled")
	}
	if a := *c.Retrieval.Alpha; a < 0 || a > 1 {
		return fmt.Errorf("retrieval.alpha must be between 0 and 1, got %v", a)
	}
	for name, col := range c.Retrieval.Collections {
		if err := c.validateCollection(name, col); err != nil {
			return err
		}
	}
	for _, ref := range []struct{ key, name string }{
		{"group_collection", c.Classification.GroupCollection},
		{"text_collection", c.Classification.TextCollection},
		{"image_collection", c.Classification.ImageCollection},
	} {
		if ref.name == "" {
			continue
		}
		col, ok := c.Retrieval.Collections[ref.name]
		if !ok {
			return fmt.Errorf("classification.%s: unknown collection %q", ref.key, ref.name)
		}
		if vectors, _ := col.VectorsByKind(); len(vectors) == 0 {
			return fmt.Errorf("classification.%s: collection %q has no vector_field", ref.key, ref.name)
		}
	}
	if name := c.Classification.ImageCollectionName(); name != "" {
		vectors, _ := c.Retrieval.Collections[name].VectorsByKind()
		if _, ok := vectors[KindImage]; !ok {
			return fmt.Errorf("classification: collection %q has no image vector_field", name)
		}
	}
	if c.Classification.DualThreshold < c.Classification.SingleThreshold {
		return fmt.Errorf("classification.dual_threshold must not be below single_threshold")
	}
	return nil
}

func (c *Config) validateCollection(name string, col CollectionConfig) error {
	vectors, err := col.VectorsByKind()
	if err != nil {
		return fmt.Errorf("retrieval.collections.%s: %w", name, err)
	}
	if len(col.QueryBy) == 0 && len(vectors) == 0 {
		return fmt.Errorf("retrieval.collections.%s: query_by or vector_field is required", name)
	}
	for _, kind := range slices.Sorted(maps.Keys(vectors)) {
		v := vectors[kind]
		if kind != KindText && kind != KindImage {
			return fmt.Errorf("retrieval.collections.%s.model_kind must be %q or %q, got %q",
				name, KindText, KindImage, kind)
		}
		if v.Field == "" {
			return fmt.Errorf("retrieval.collections.%s.vector_fields.%s.field is required", name, kind)
		}
		if v.Dimensions <= 0 {
			return fmt.Errorf("retrieval.collections.%s: %s vector dimensions must be positive", name, kind)
		}
		if m, ok := c.Embedding.Models[kind]; ok && m.Dimensions > 0 && m.Dimensions != v.Dimensions {
			return fmt.Errorf("retrieval.collections.%s: %s vector dimensions %d does not match embedding.models.%s.dimensions %d",
				name, kind, v.Dimensions, kind, m.Dimensions)
		}
	}
	return nil
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	// 3. Fallback to ./config/
	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
