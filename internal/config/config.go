package config

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete steward configuration.
type Config struct {
	Version    int              `yaml:"version" json:"version"`
	Contract   ContractConfig   `yaml:"contract" json:"contract"`
	Storage    StorageConfig    `yaml:"storage" json:"storage"`
	Ingest     IngestConfig     `yaml:"ingest" json:"ingest"`
	Retrieval  RetrievalConfig  `yaml:"retrieval" json:"retrieval"`
	LLM        LLMConfig        `yaml:"llm" json:"llm"`
	Embeddings EmbeddingsConfig `yaml:"embeddings" json:"embeddings"`
	Server     ServerConfig     `yaml:"server" json:"server"`
	Telemetry  TelemetryConfig  `yaml:"telemetry" json:"telemetry"`
}

// ContractConfig identifies the contract answered against by default.
type ContractConfig struct {
	// DefaultID is the contract queried when the caller does not name one.
	DefaultID string `yaml:"default_id" json:"default_id"`
}

// StorageConfig configures where indexes and artifacts live.
type StorageConfig struct {
	// DataDir is the root for chunks, vectors, wages, manifests, telemetry.
	// Defaults to ~/.steward/data.
	DataDir string `yaml:"data_dir" json:"data_dir"`
	// GenerationsToKeep is how many published index generations are retained
	// for rollback. Defaults to 2.
	GenerationsToKeep int `yaml:"generations_to_keep" json:"generations_to_keep"`
}

// IngestConfig configures the offline pipeline.
type IngestConfig struct {
	// Chunk size bounds in characters.
	MinChunkChars    int `yaml:"min_chunk_chars" json:"min_chunk_chars"`
	TargetChunkChars int `yaml:"target_chunk_chars" json:"target_chunk_chars"`
	MaxChunkChars    int `yaml:"max_chunk_chars" json:"max_chunk_chars"`

	// EnrichBatchSize is chunks per LLM enrichment batch.
	EnrichBatchSize int `yaml:"enrich_batch_size" json:"enrich_batch_size"`
	// EnrichBatchDelay is the pause between enrichment batches (e.g. "2s").
	EnrichBatchDelay string `yaml:"enrich_batch_delay" json:"enrich_batch_delay"`
	// EnrichRetries is attempts per chunk on rate-limit errors.
	EnrichRetries int `yaml:"enrich_retries" json:"enrich_retries"`

	// EmbedWorkers bounds concurrent embedding requests.
	EmbedWorkers int `yaml:"embed_workers" json:"embed_workers"`
}

// RetrievalConfig holds every retrieval tunable. The search engine copies
// this struct by value at construction; changing config after startup does
// not affect a running engine.
type RetrievalConfig struct {
	// TopK is the default number of chunks returned.
	TopK int `yaml:"top_k" json:"top_k"`
	// SimilarityFloor drops vector hits below this similarity before boosts.
	SimilarityFloor float64 `yaml:"similarity_floor" json:"similarity_floor"`

	// RRFConstant is the rank-fusion smoothing parameter (k).
	// Default: 60 (industry standard used by Azure AI Search, OpenSearch).
	RRFConstant int `yaml:"rrf_constant" json:"rrf_constant"`
	// VectorWeight and KeywordWeight scale each branch's RRF contribution.
	VectorWeight  float64 `yaml:"vector_weight" json:"vector_weight"`
	KeywordWeight float64 `yaml:"keyword_weight" json:"keyword_weight"`

	// BM25 parameters for the keyword branch.
	BM25K1 float64 `yaml:"bm25_k1" json:"bm25_k1"`
	BM25B  float64 `yaml:"bm25_b" json:"bm25_b"`

	// Post-fusion and metadata boosts.
	ConceptBoost          float64 `yaml:"concept_boost" json:"concept_boost"`
	ExplicitArticleBoost  float64 `yaml:"explicit_article_boost" json:"explicit_article_boost"`
	ExplicitSectionBoost  float64 `yaml:"explicit_section_boost" json:"explicit_section_boost"`
	BoostArticleBonus     float64 `yaml:"boost_article_bonus" json:"boost_article_bonus"`
	ClassificationBoost   float64 `yaml:"classification_boost" json:"classification_boost"`
	ClassificationPenalty float64 `yaml:"classification_penalty" json:"classification_penalty"`
	TopicBoost            float64 `yaml:"topic_boost" json:"topic_boost"`
	HighStakesBoost       float64 `yaml:"high_stakes_boost" json:"high_stakes_boost"`
	TitleBoost            float64 `yaml:"title_boost" json:"title_boost"`

	// Multi-angle settings.
	MaxAngles     int `yaml:"max_angles" json:"max_angles"`
	PerAngleK     int `yaml:"per_angle_k" json:"per_angle_k"`
	MultiAngleCap int `yaml:"multi_angle_cap" json:"multi_angle_cap"`

	// Context expansion settings.
	FullArticleCap        int     `yaml:"full_article_cap" json:"full_article_cap"`
	FullArticleTrigger    int     `yaml:"full_article_trigger" json:"full_article_trigger"`
	FullArticleSimilarity float64 `yaml:"full_article_similarity" json:"full_article_similarity"`
	SiblingsPerArticle    int     `yaml:"siblings_per_article" json:"siblings_per_article"`
	SiblingSimilarity     float64 `yaml:"sibling_similarity" json:"sibling_similarity"`
	MultiAngleSiblingCap  int     `yaml:"multi_angle_sibling_cap" json:"multi_angle_sibling_cap"`

	// Reranker settings.
	RerankEnabled        bool    `yaml:"rerank_enabled" json:"rerank_enabled"`
	RerankCandidates     int     `yaml:"rerank_candidates" json:"rerank_candidates"`
	RerankTruncateChars  int     `yaml:"rerank_truncate_chars" json:"rerank_truncate_chars"`
	RerankOriginalWeight float64 `yaml:"rerank_original_weight" json:"rerank_original_weight"`
	RerankLLMWeight      float64 `yaml:"rerank_llm_weight" json:"rerank_llm_weight"`
}

// LLMConfig configures the Gemini backend shared by the interpreter,
// reranker, hypothesis generator, and enricher.
type LLMConfig struct {
	// Model is the chat model name.
	Model string `yaml:"model" json:"model"`
	// APIKeyEnv names the environment variable holding the API key.
	APIKeyEnv string `yaml:"api_key_env" json:"api_key_env"`

	// Per-stage timeouts as duration strings.
	InterpreterTimeout string `yaml:"interpreter_timeout" json:"interpreter_timeout"`
	RerankerTimeout    string `yaml:"reranker_timeout" json:"reranker_timeout"`
	HypothesisTimeout  string `yaml:"hypothesis_timeout" json:"hypothesis_timeout"`
	EnrichmentTimeout  string `yaml:"enrichment_timeout" json:"enrichment_timeout"`

	// Circuit breaker: MaxFailures trips, Cooldown is the open window.
	MaxFailures int    `yaml:"max_failures" json:"max_failures"`
	Cooldown    string `yaml:"cooldown" json:"cooldown"`
}

// EmbeddingsConfig configures the embedding provider.
type EmbeddingsConfig struct {
	// Provider is "gemini" or "static". Empty triggers auto-detection:
	// gemini when an API key is present, static otherwise.
	Provider string `yaml:"provider" json:"provider"`
	// Model is the embedding model name (gemini provider only).
	Model string `yaml:"model" json:"model"`
	// Dimensions is the vector width. 0 auto-detects from the provider.
	Dimensions int `yaml:"dimensions" json:"dimensions"`
	// BatchSize is texts per embedding request.
	BatchSize int `yaml:"batch_size" json:"batch_size"`
	// CacheSize is the query-embedding LRU capacity.
	CacheSize int `yaml:"cache_size" json:"cache_size"`
}

// ServerConfig configures the MCP server.
type ServerConfig struct {
	Transport string `yaml:"transport" json:"transport"`
	LogLevel  string `yaml:"log_level" json:"log_level"`
}

// TelemetryConfig configures local query metrics.
type TelemetryConfig struct {
	// Enabled turns the SQLite metrics store on.
	Enabled bool `yaml:"enabled" json:"enabled"`
	// DBPath overrides the database location. Empty resolves to
	// <data_dir>/steward.db.
	DBPath string `yaml:"db_path" json:"db_path"`
}

// NewConfig creates a new Config with sensible defaults.
func NewConfig() *Config {
	return &Config{
		Version: 1,
		Contract: ContractConfig{
			DefaultID: "safeway_pueblo_clerks_2022",
		},
		Storage: StorageConfig{
			DataDir:           DefaultDataDir(),
			GenerationsToKeep: 2,
		},
		Ingest: IngestConfig{
			MinChunkChars:    100,
			TargetChunkChars: 800,
			MaxChunkChars:    2000,
			EnrichBatchSize:  10,
			EnrichBatchDelay: "2s",
			EnrichRetries:    3,
			EmbedWorkers:     runtime.NumCPU(),
		},
		Retrieval: RetrievalConfig{
			TopK:            5,
			SimilarityFloor: 0.1,
			// RRF constant k=60 is industry standard (Azure AI Search, OpenSearch)
			RRFConstant:   60,
			VectorWeight:  1.0,
			KeywordWeight: 1.0,
			BM25K1:        1.8,
			BM25B:         0.75,

			ConceptBoost:          0.03,
			ExplicitArticleBoost:  0.30,
			ExplicitSectionBoost:  0.10,
			BoostArticleBonus:     0.20,
			ClassificationBoost:   0.15,
			ClassificationPenalty: 0.05,
			TopicBoost:            0.15,
			HighStakesBoost:       0.10,
			TitleBoost:            0.50,

			MaxAngles:     3,
			PerAngleK:     5,
			MultiAngleCap: 10,

			FullArticleCap:        15,
			FullArticleTrigger:    2,
			FullArticleSimilarity: 0.4,
			SiblingsPerArticle:    2,
			SiblingSimilarity:     0.5,
			MultiAngleSiblingCap:  8,

			RerankEnabled:        true,
			RerankCandidates:     15,
			RerankTruncateChars:  500,
			RerankOriginalWeight: 0.3,
			RerankLLMWeight:      0.7,
		},
		LLM: LLMConfig{
			Model:              "gemini-2.0-flash-lite",
			APIKeyEnv:          "GEMINI_API_KEY",
			InterpreterTimeout: "15s",
			RerankerTimeout:    "10s",
			HypothesisTimeout:  "2s",
			EnrichmentTimeout:  "30s",
			MaxFailures:        3,
			Cooldown:           "30s",
		},
		Embeddings: EmbeddingsConfig{
			Provider:   "", // Empty triggers auto-detection: gemini when keyed, static otherwise
			Model:      "text-embedding-004",
			Dimensions: 0, // Auto-detect from provider
			BatchSize:  32,
			CacheSize:  1000,
		},
		Server: ServerConfig{
			Transport: "stdio",
			LogLevel:  "info",
		},
		Telemetry: TelemetryConfig{
			Enabled: true,
			DBPath:  "", // Resolved under the data dir
		},
	}
}

// stewardHome returns the steward home directory (~/.steward), honoring
// the STEWARD_HOME override. Falls back to temp if home is unavailable.
func stewardHome() string {
	if h := os.Getenv("STEWARD_HOME"); h != "" {
		return h
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".steward")
	}
	return filepath.Join(home, ".steward")
}

// DefaultDataDir returns the default data directory (~/.steward/data).
func DefaultDataDir() string {
	return filepath.Join(stewardHome(), "data")
}

// GetUserConfigPath returns the path to the user/global configuration file
// (~/.steward/config.yaml, or $STEWARD_HOME/config.yaml when set).
func GetUserConfigPath() string {
	return filepath.Join(stewardHome(), "config.yaml")
}

// GetUserConfigDir returns the directory containing the user configuration.
func GetUserConfigDir() string {
	return filepath.Dir(GetUserConfigPath())
}

// UserConfigExists returns true if the user configuration file exists.
func UserConfigExists() bool {
	return fileExists(GetUserConfigPath())
}

// loadUserConfig loads the user/global configuration file if it exists.
// Returns nil config and nil error if the file doesn't exist (that's OK).
func loadUserConfig() (*Config, error) {
	configPath := GetUserConfigPath()

	// Check if file exists
	if !fileExists(configPath) {
		return nil, nil // No user config is fine
	}

	// Load the config
	cfg := NewConfig()
	if err := cfg.loadYAML(configPath); err != nil {
		return nil, fmt.Errorf("failed to load user config from %s: %w", configPath, err)
	}

	return cfg, nil
}

// Load loads configuration from the specified directory.
// It applies configuration in order of increasing precedence:
//  1. Hardcoded defaults
//  2. User/global config (~/.steward/config.yaml)
//  3. Project config (.steward.yaml in project root)
//  4. Environment variables (STEWARD_*)
func Load(dir string) (*Config, error) {
	cfg := NewConfig()

	// Step 1: Load user/global config (if exists)
	if userCfg, err := loadUserConfig(); err != nil {
		return nil, fmt.Errorf("failed to load user config: %w", err)
	} else if userCfg != nil {
		cfg.mergeWith(userCfg)
	}

	// Step 2: Load project config (overrides user config)
	if err := cfg.loadFromFile(dir); err != nil {
		return nil, err
	}

	// Step 3: Apply environment variable overrides (highest precedence)
	cfg.applyEnvOverrides()

	// Step 4: Validate the final configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// LoadFile loads configuration from an explicit file, skipping the
// user/project discovery chain. Environment overrides still apply.
// Used by the --config flag.
func LoadFile(path string) (*Config, error) {
	cfg := NewConfig()

	if err := cfg.loadYAML(path); err != nil {
		return nil, err
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// loadFromFile attempts to load configuration from .steward.yaml or .steward.yml.
func (c *Config) loadFromFile(dir string) error {
	// Try .yaml first (takes precedence)
	yamlPath := filepath.Join(dir, ".steward.yaml")
	if _, err := os.Stat(yamlPath); err == nil {
		return c.loadYAML(yamlPath)
	}

	// Try .yml as fallback
	ymlPath := filepath.Join(dir, ".steward.yml")
	if _, err := os.Stat(ymlPath); err == nil {
		return c.loadYAML(ymlPath)
	}

	// No config file is fine - use defaults
	return nil
}

// loadYAML loads and merges configuration from a YAML file.
func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	// Use a temporary struct for parsing to detect type errors
	var parsed Config
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	// Merge parsed values with defaults (only non-zero values)
	c.mergeWith(&parsed)
	return nil
}

// mergeWith merges non-zero values from other into c.
func (c *Config) mergeWith(other *Config) {
	if other.Version != 0 {
		c.Version = other.Version
	}

	// Contract
	if other.Contract.DefaultID != "" {
		c.Contract.DefaultID = other.Contract.DefaultID
	}

	// Storage
	if other.Storage.DataDir != "" {
		c.Storage.DataDir = other.Storage.DataDir
	}
	if other.Storage.GenerationsToKeep != 0 {
		c.Storage.GenerationsToKeep = other.Storage.GenerationsToKeep
	}

	// Ingest
	if other.Ingest.MinChunkChars != 0 {
		c.Ingest.MinChunkChars = other.Ingest.MinChunkChars
	}
	if other.Ingest.TargetChunkChars != 0 {
		c.Ingest.TargetChunkChars = other.Ingest.TargetChunkChars
	}
	if other.Ingest.MaxChunkChars != 0 {
		c.Ingest.MaxChunkChars = other.Ingest.MaxChunkChars
	}
	if other.Ingest.EnrichBatchSize != 0 {
		c.Ingest.EnrichBatchSize = other.Ingest.EnrichBatchSize
	}
	if other.Ingest.EnrichBatchDelay != "" {
		c.Ingest.EnrichBatchDelay = other.Ingest.EnrichBatchDelay
	}
	if other.Ingest.EnrichRetries != 0 {
		c.Ingest.EnrichRetries = other.Ingest.EnrichRetries
	}
	if other.Ingest.EmbedWorkers != 0 {
		c.Ingest.EmbedWorkers = other.Ingest.EmbedWorkers
	}

	// Retrieval
	// Note: 0 is not a practical value for these, so only non-zero merges
	if other.Retrieval.TopK != 0 {
		c.Retrieval.TopK = other.Retrieval.TopK
	}
	if other.Retrieval.SimilarityFloor != 0 {
		c.Retrieval.SimilarityFloor = other.Retrieval.SimilarityFloor
	}
	if other.Retrieval.RRFConstant != 0 {
		c.Retrieval.RRFConstant = other.Retrieval.RRFConstant
	}
	if other.Retrieval.VectorWeight != 0 {
		c.Retrieval.VectorWeight = other.Retrieval.VectorWeight
	}
	if other.Retrieval.KeywordWeight != 0 {
		c.Retrieval.KeywordWeight = other.Retrieval.KeywordWeight
	}
	if other.Retrieval.BM25K1 != 0 {
		c.Retrieval.BM25K1 = other.Retrieval.BM25K1
	}
	if other.Retrieval.BM25B != 0 {
		c.Retrieval.BM25B = other.Retrieval.BM25B
	}
	if other.Retrieval.ConceptBoost != 0 {
		c.Retrieval.ConceptBoost = other.Retrieval.ConceptBoost
	}
	if other.Retrieval.ExplicitArticleBoost != 0 {
		c.Retrieval.ExplicitArticleBoost = other.Retrieval.ExplicitArticleBoost
	}
	if other.Retrieval.ExplicitSectionBoost != 0 {
		c.Retrieval.ExplicitSectionBoost = other.Retrieval.ExplicitSectionBoost
	}
	if other.Retrieval.BoostArticleBonus != 0 {
		c.Retrieval.BoostArticleBonus = other.Retrieval.BoostArticleBonus
	}
	if other.Retrieval.ClassificationBoost != 0 {
		c.Retrieval.ClassificationBoost = other.Retrieval.ClassificationBoost
	}
	if other.Retrieval.ClassificationPenalty != 0 {
		c.Retrieval.ClassificationPenalty = other.Retrieval.ClassificationPenalty
	}
	if other.Retrieval.TopicBoost != 0 {
		c.Retrieval.TopicBoost = other.Retrieval.TopicBoost
	}
	if other.Retrieval.HighStakesBoost != 0 {
		c.Retrieval.HighStakesBoost = other.Retrieval.HighStakesBoost
	}
	if other.Retrieval.TitleBoost != 0 {
		c.Retrieval.TitleBoost = other.Retrieval.TitleBoost
	}
	if other.Retrieval.MaxAngles != 0 {
		c.Retrieval.MaxAngles = other.Retrieval.MaxAngles
	}
	if other.Retrieval.PerAngleK != 0 {
		c.Retrieval.PerAngleK = other.Retrieval.PerAngleK
	}
	if other.Retrieval.MultiAngleCap != 0 {
		c.Retrieval.MultiAngleCap = other.Retrieval.MultiAngleCap
	}
	if other.Retrieval.FullArticleCap != 0 {
		c.Retrieval.FullArticleCap = other.Retrieval.FullArticleCap
	}
	if other.Retrieval.FullArticleTrigger != 0 {
		c.Retrieval.FullArticleTrigger = other.Retrieval.FullArticleTrigger
	}
	if other.Retrieval.FullArticleSimilarity != 0 {
		c.Retrieval.FullArticleSimilarity = other.Retrieval.FullArticleSimilarity
	}
	if other.Retrieval.SiblingsPerArticle != 0 {
		c.Retrieval.SiblingsPerArticle = other.Retrieval.SiblingsPerArticle
	}
	if other.Retrieval.SiblingSimilarity != 0 {
		c.Retrieval.SiblingSimilarity = other.Retrieval.SiblingSimilarity
	}
	if other.Retrieval.MultiAngleSiblingCap != 0 {
		c.Retrieval.MultiAngleSiblingCap = other.Retrieval.MultiAngleSiblingCap
	}
	// RerankEnabled is boolean - can't distinguish "not set" from "false",
	// so it only merges when another rerank field was set alongside it
	if other.Retrieval.RerankCandidates != 0 || other.Retrieval.RerankTruncateChars != 0 {
		c.Retrieval.RerankEnabled = other.Retrieval.RerankEnabled
	}
	if other.Retrieval.RerankCandidates != 0 {
		c.Retrieval.RerankCandidates = other.Retrieval.RerankCandidates
	}
	if other.Retrieval.RerankTruncateChars != 0 {
		c.Retrieval.RerankTruncateChars = other.Retrieval.RerankTruncateChars
	}
	if other.Retrieval.RerankOriginalWeight != 0 {
		c.Retrieval.RerankOriginalWeight = other.Retrieval.RerankOriginalWeight
	}
	if other.Retrieval.RerankLLMWeight != 0 {
		c.Retrieval.RerankLLMWeight = other.Retrieval.RerankLLMWeight
	}

	// LLM
	if other.LLM.Model != "" {
		c.LLM.Model = other.LLM.Model
	}
	if other.LLM.APIKeyEnv != "" {
		c.LLM.APIKeyEnv = other.LLM.APIKeyEnv
	}
	if other.LLM.InterpreterTimeout != "" {
		c.LLM.InterpreterTimeout = other.LLM.InterpreterTimeout
	}
	if other.LLM.RerankerTimeout != "" {
		c.LLM.RerankerTimeout = other.LLM.RerankerTimeout
	}
	if other.LLM.HypothesisTimeout != "" {
		c.LLM.HypothesisTimeout = other.LLM.HypothesisTimeout
	}
	if other.LLM.EnrichmentTimeout != "" {
		c.LLM.EnrichmentTimeout = other.LLM.EnrichmentTimeout
	}
	if other.LLM.MaxFailures != 0 {
		c.LLM.MaxFailures = other.LLM.MaxFailures
	}
	if other.LLM.Cooldown != "" {
		c.LLM.Cooldown = other.LLM.Cooldown
	}

	// Embeddings
	if other.Embeddings.Provider != "" {
		c.Embeddings.Provider = other.Embeddings.Provider
	}
	if other.Embeddings.Model != "" {
		c.Embeddings.Model = other.Embeddings.Model
	}
	if other.Embeddings.Dimensions != 0 {
		c.Embeddings.Dimensions = other.Embeddings.Dimensions
	}
	if other.Embeddings.BatchSize != 0 {
		c.Embeddings.BatchSize = other.Embeddings.BatchSize
	}
	if other.Embeddings.CacheSize != 0 {
		c.Embeddings.CacheSize = other.Embeddings.CacheSize
	}

	// Server
	if other.Server.Transport != "" {
		c.Server.Transport = other.Server.Transport
	}
	if other.Server.LogLevel != "" {
		c.Server.LogLevel = other.Server.LogLevel
	}

	// Telemetry
	// Enabled is boolean - only merges when db_path was set alongside it
	if other.Telemetry.DBPath != "" {
		c.Telemetry.Enabled = other.Telemetry.Enabled
		c.Telemetry.DBPath = other.Telemetry.DBPath
	}
}

// applyEnvOverrides applies STEWARD_* environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("STEWARD_DATA_DIR"); v != "" {
		c.Storage.DataDir = v
	}
	if v := os.Getenv("STEWARD_CONTRACT_ID"); v != "" {
		c.Contract.DefaultID = v
	}

	// Retrieval tunables (support explicit values via env vars)
	if v := os.Getenv("STEWARD_TOP_K"); v != "" {
		if k, err := strconv.Atoi(v); err == nil && k > 0 {
			c.Retrieval.TopK = k
		}
	}
	if v := os.Getenv("STEWARD_SIMILARITY_FLOOR"); v != "" {
		if f, err := parseFloat64(v); err == nil && f >= 0 && f < 1 {
			c.Retrieval.SimilarityFloor = f
		}
	}
	if v := os.Getenv("STEWARD_RRF_CONSTANT"); v != "" {
		if k, err := strconv.Atoi(v); err == nil && k > 0 {
			c.Retrieval.RRFConstant = k
		}
	}
	if v := os.Getenv("STEWARD_VECTOR_WEIGHT"); v != "" {
		if w, err := parseFloat64(v); err == nil && w >= 0 {
			c.Retrieval.VectorWeight = w
		}
	}
	if v := os.Getenv("STEWARD_KEYWORD_WEIGHT"); v != "" {
		if w, err := parseFloat64(v); err == nil && w >= 0 {
			c.Retrieval.KeywordWeight = w
		}
	}
	if v := os.Getenv("STEWARD_RERANK_ENABLED"); v != "" {
		c.Retrieval.RerankEnabled = strings.ToLower(v) == "true" || v == "1"
	}

	// LLM and embeddings
	if v := os.Getenv("STEWARD_LLM_MODEL"); v != "" {
		c.LLM.Model = v
	}
	if v := os.Getenv("STEWARD_EMBEDDINGS_PROVIDER"); v != "" {
		c.Embeddings.Provider = v
	}
	// STEWARD_EMBEDDER is an alias for STEWARD_EMBEDDINGS_PROVIDER
	if v := os.Getenv("STEWARD_EMBEDDER"); v != "" {
		c.Embeddings.Provider = v
	}
	if v := os.Getenv("STEWARD_EMBEDDINGS_MODEL"); v != "" {
		c.Embeddings.Model = v
	}

	// Server
	if v := os.Getenv("STEWARD_LOG_LEVEL"); v != "" {
		c.Server.LogLevel = v
	}
	if v := os.Getenv("STEWARD_TRANSPORT"); v != "" {
		c.Server.Transport = v
	}

	// Telemetry
	if v := os.Getenv("STEWARD_TELEMETRY_ENABLED"); v != "" {
		c.Telemetry.Enabled = strings.ToLower(v) == "true" || v == "1"
	}
}

// parseFloat64 parses a string to float64, used for config parsing.
func parseFloat64(s string) (float64, error) {
	var f float64
	_, err := fmt.Sscanf(strings.TrimSpace(s), "%f", &f)
	return f, err
}

// DurationOr parses a duration string, falling back to def when empty
// or unparseable.
func DurationOr(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return def
	}
	return d
}

// TelemetryDBPath resolves the telemetry database location.
func (c *Config) TelemetryDBPath() string {
	if c.Telemetry.DBPath != "" {
		return c.Telemetry.DBPath
	}
	return filepath.Join(c.Storage.DataDir, "steward.db")
}

// FindProjectRoot finds the project root directory.
// It looks for .git directory or .steward.yaml/.yml file by walking up the
// directory tree.
func FindProjectRoot(startDir string) (string, error) {
	absDir, err := filepath.Abs(startDir)
	if err != nil {
		return "", fmt.Errorf("failed to get absolute path: %w", err)
	}

	currentDir := absDir
	for {
		// Check for .git directory
		if dirExists(filepath.Join(currentDir, ".git")) {
			return currentDir, nil
		}

		// Check for .steward.yaml or .steward.yml
		if fileExists(filepath.Join(currentDir, ".steward.yaml")) ||
			fileExists(filepath.Join(currentDir, ".steward.yml")) {
			return currentDir, nil
		}

		// Move up one directory
		parentDir := filepath.Dir(currentDir)
		if parentDir == currentDir {
			// Reached root, return original directory
			return absDir, nil
		}
		currentDir = parentDir
	}
}

// DiscoverContractFiles finds candidate contract markdown files in a
// directory (non-recursive). READMEs and dotfiles are skipped.
func DiscoverContractFiles(dir string) []string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}

	var found []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}
		lower := strings.ToLower(name)
		if !strings.HasSuffix(lower, ".md") && !strings.HasSuffix(lower, ".markdown") {
			continue
		}
		if strings.HasPrefix(lower, "readme") {
			continue
		}
		found = append(found, filepath.Join(dir, name))
	}

	sort.Strings(found)
	return found
}

// fileExists checks if a file exists and is not a directory.
func fileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}

// dirExists checks if a directory exists.
func dirExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.IsDir()
}

// Validate validates the configuration and returns an error if invalid.
func (c *Config) Validate() error {
	// Validate retrieval basics
	if c.Retrieval.TopK <= 0 {
		return fmt.Errorf("retrieval.top_k must be positive, got %d", c.Retrieval.TopK)
	}
	if c.Retrieval.SimilarityFloor < 0 || c.Retrieval.SimilarityFloor >= 1 {
		return fmt.Errorf("retrieval.similarity_floor must be in [0, 1), got %f", c.Retrieval.SimilarityFloor)
	}
	if c.Retrieval.RRFConstant <= 0 {
		return fmt.Errorf("retrieval.rrf_constant must be positive, got %d", c.Retrieval.RRFConstant)
	}
	if c.Retrieval.VectorWeight < 0 || c.Retrieval.KeywordWeight < 0 {
		return fmt.Errorf("retrieval branch weights must be non-negative, got vector=%f keyword=%f",
			c.Retrieval.VectorWeight, c.Retrieval.KeywordWeight)
	}
	if c.Retrieval.MaxAngles < 1 {
		return fmt.Errorf("retrieval.max_angles must be at least 1, got %d", c.Retrieval.MaxAngles)
	}

	// Validate reranker blend sums to 1.0
	blend := c.Retrieval.RerankOriginalWeight + c.Retrieval.RerankLLMWeight
	if math.Abs(blend-1.0) > 0.01 {
		return fmt.Errorf("rerank_original_weight + rerank_llm_weight must equal 1.0, got %.2f", blend)
	}

	// Validate chunk size ordering
	if c.Ingest.MinChunkChars <= 0 {
		return fmt.Errorf("ingest.min_chunk_chars must be positive, got %d", c.Ingest.MinChunkChars)
	}
	if c.Ingest.MinChunkChars >= c.Ingest.TargetChunkChars || c.Ingest.TargetChunkChars >= c.Ingest.MaxChunkChars {
		return fmt.Errorf("chunk sizes must satisfy min < target < max, got %d/%d/%d",
			c.Ingest.MinChunkChars, c.Ingest.TargetChunkChars, c.Ingest.MaxChunkChars)
	}

	// Validate storage
	if c.Storage.GenerationsToKeep < 1 {
		return fmt.Errorf("storage.generations_to_keep must be at least 1, got %d", c.Storage.GenerationsToKeep)
	}

	// Validate provider (empty string allowed for auto-detection)
	if c.Embeddings.Provider != "" {
		validProviders := map[string]bool{"gemini": true, "static": true}
		if !validProviders[strings.ToLower(c.Embeddings.Provider)] {
			return fmt.Errorf("embeddings.provider must be 'gemini', 'static', or empty (auto-detect), got %s", c.Embeddings.Provider)
		}
	}

	// Validate transport (MCP is stdio-only)
	if strings.ToLower(c.Server.Transport) != "stdio" {
		return fmt.Errorf("server.transport must be 'stdio', got %s", c.Server.Transport)
	}

	// Validate log level
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Server.LogLevel)] {
		return fmt.Errorf("server.log_level must be 'debug', 'info', 'warn', or 'error', got %s", c.Server.LogLevel)
	}

	return nil
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// LoadUserConfig loads the user configuration file.
// Returns nil config and nil error if the file doesn't exist.
func LoadUserConfig() (*Config, error) {
	return loadUserConfig()
}

// MergeNewDefaults adds new default fields while preserving existing values.
// Returns a list of field names that were added with their default values.
func (c *Config) MergeNewDefaults() []string {
	defaults := NewConfig()
	var added []string

	// Retrieval fusion parameters
	if c.Retrieval.RRFConstant == 0 {
		c.Retrieval.RRFConstant = defaults.Retrieval.RRFConstant
		added = append(added, "retrieval.rrf_constant")
	}
	if c.Retrieval.VectorWeight == 0 {
		c.Retrieval.VectorWeight = defaults.Retrieval.VectorWeight
		added = append(added, "retrieval.vector_weight")
	}
	if c.Retrieval.KeywordWeight == 0 {
		c.Retrieval.KeywordWeight = defaults.Retrieval.KeywordWeight
		added = append(added, "retrieval.keyword_weight")
	}

	// Reranker blend weights
	if c.Retrieval.RerankOriginalWeight == 0 {
		c.Retrieval.RerankOriginalWeight = defaults.Retrieval.RerankOriginalWeight
		added = append(added, "retrieval.rerank_original_weight")
	}
	if c.Retrieval.RerankLLMWeight == 0 {
		c.Retrieval.RerankLLMWeight = defaults.Retrieval.RerankLLMWeight
		added = append(added, "retrieval.rerank_llm_weight")
	}

	// Ingest enrichment batching
	if c.Ingest.EnrichBatchSize == 0 {
		c.Ingest.EnrichBatchSize = defaults.Ingest.EnrichBatchSize
		added = append(added, "ingest.enrich_batch_size")
	}
	if c.Ingest.EnrichBatchDelay == "" {
		c.Ingest.EnrichBatchDelay = defaults.Ingest.EnrichBatchDelay
		added = append(added, "ingest.enrich_batch_delay")
	}

	// Storage generations
	if c.Storage.GenerationsToKeep == 0 {
		c.Storage.GenerationsToKeep = defaults.Storage.GenerationsToKeep
		added = append(added, "storage.generations_to_keep")
	}

	// LLM circuit breaker
	if c.LLM.MaxFailures == 0 {
		c.LLM.MaxFailures = defaults.LLM.MaxFailures
		added = append(added, "llm.max_failures")
	}
	if c.LLM.Cooldown == "" {
		c.LLM.Cooldown = defaults.LLM.Cooldown
		added = append(added, "llm.cooldown")
	}

	return added
}
