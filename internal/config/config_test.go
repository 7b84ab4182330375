package config

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Default Configuration Tests
// =============================================================================

func TestNewConfig_ReturnsDefaults(t *testing.T) {
	// Given: no configuration file exists
	cfg := NewConfig()

	// Then: all defaults should be applied
	require.NotNil(t, cfg)

	// Contract defaults
	assert.Equal(t, "safeway_pueblo_clerks_2022", cfg.Contract.DefaultID)

	// Storage defaults
	assert.Contains(t, cfg.Storage.DataDir, ".steward")
	assert.Equal(t, 2, cfg.Storage.GenerationsToKeep)

	// Ingest defaults
	assert.Equal(t, 100, cfg.Ingest.MinChunkChars)
	assert.Equal(t, 800, cfg.Ingest.TargetChunkChars)
	assert.Equal(t, 2000, cfg.Ingest.MaxChunkChars)
	assert.Equal(t, 10, cfg.Ingest.EnrichBatchSize)
	assert.Equal(t, "2s", cfg.Ingest.EnrichBatchDelay)
	assert.Equal(t, 3, cfg.Ingest.EnrichRetries)
	assert.Equal(t, runtime.NumCPU(), cfg.Ingest.EmbedWorkers)

	// Retrieval defaults
	assert.Equal(t, 5, cfg.Retrieval.TopK)
	assert.Equal(t, 0.1, cfg.Retrieval.SimilarityFloor)
	assert.Equal(t, 60, cfg.Retrieval.RRFConstant) // Industry standard k=60
	assert.Equal(t, 1.0, cfg.Retrieval.VectorWeight)
	assert.Equal(t, 1.0, cfg.Retrieval.KeywordWeight)
	assert.Equal(t, 1.8, cfg.Retrieval.BM25K1)
	assert.Equal(t, 0.75, cfg.Retrieval.BM25B)
	assert.Equal(t, 0.30, cfg.Retrieval.ExplicitArticleBoost)
	assert.Equal(t, 0.50, cfg.Retrieval.TitleBoost)
	assert.Equal(t, 3, cfg.Retrieval.MaxAngles)
	assert.Equal(t, 10, cfg.Retrieval.MultiAngleCap)
	assert.True(t, cfg.Retrieval.RerankEnabled)
	assert.Equal(t, 15, cfg.Retrieval.RerankCandidates)

	// LLM defaults
	assert.Equal(t, "gemini-2.0-flash-lite", cfg.LLM.Model)
	assert.Equal(t, "GEMINI_API_KEY", cfg.LLM.APIKeyEnv)
	assert.Equal(t, "15s", cfg.LLM.InterpreterTimeout)
	assert.Equal(t, "2s", cfg.LLM.HypothesisTimeout)
	assert.Equal(t, 3, cfg.LLM.MaxFailures)
	assert.Equal(t, "30s", cfg.LLM.Cooldown)

	// Embeddings defaults (auto-detection: gemini when keyed, static otherwise)
	assert.Equal(t, "", cfg.Embeddings.Provider) // Empty triggers auto-detection
	assert.Equal(t, "text-embedding-004", cfg.Embeddings.Model)
	assert.Equal(t, 0, cfg.Embeddings.Dimensions) // Auto-detect from provider
	assert.Equal(t, 32, cfg.Embeddings.BatchSize)
	assert.Equal(t, 1000, cfg.Embeddings.CacheSize)

	// Server defaults
	assert.Equal(t, "stdio", cfg.Server.Transport)
	assert.Equal(t, "info", cfg.Server.LogLevel)

	// Telemetry defaults
	assert.True(t, cfg.Telemetry.Enabled)
	assert.Equal(t, "", cfg.Telemetry.DBPath) // Resolved under data dir
}

func TestConfig_VersionDefaultsToOne(t *testing.T) {
	cfg := NewConfig()
	assert.Equal(t, 1, cfg.Version)
}

func TestConfig_RerankBlendSumsToOne(t *testing.T) {
	cfg := NewConfig()
	sum := cfg.Retrieval.RerankOriginalWeight + cfg.Retrieval.RerankLLMWeight
	assert.InDelta(t, 1.0, sum, 0.01)
}

func TestConfig_TelemetryDBPathResolvesUnderDataDir(t *testing.T) {
	// Given: no explicit db_path
	cfg := NewConfig()
	cfg.Storage.DataDir = "/var/lib/steward"

	// Then: path resolves under the data dir
	assert.Equal(t, filepath.Join("/var/lib/steward", "steward.db"), cfg.TelemetryDBPath())

	// Given: an explicit db_path
	cfg.Telemetry.DBPath = "/tmp/metrics.db"

	// Then: the explicit path wins
	assert.Equal(t, "/tmp/metrics.db", cfg.TelemetryDBPath())
}

func TestDurationOr_ParsesAndFallsBack(t *testing.T) {
	assert.Equal(t, 15*time.Second, DurationOr("15s", time.Second))
	assert.Equal(t, time.Second, DurationOr("", time.Second))
	assert.Equal(t, time.Second, DurationOr("not-a-duration", time.Second))
}

// =============================================================================
// Configuration File Loading Tests
// =============================================================================

func TestLoad_NoConfigFile_ReturnsDefaults(t *testing.T) {
	// Given: a directory with no .steward.yaml and a clean home
	t.Setenv("STEWARD_HOME", t.TempDir())
	tmpDir := t.TempDir()

	// When: loading configuration
	cfg, err := Load(tmpDir)

	// Then: defaults are returned without error
	require.NoError(t, err)
	require.NotNil(t, cfg)
	assert.Equal(t, 5, cfg.Retrieval.TopK)
	assert.Equal(t, 60, cfg.Retrieval.RRFConstant)
}

func TestLoad_YamlFile_OverridesDefaults(t *testing.T) {
	// Given: a directory with .steward.yaml
	t.Setenv("STEWARD_HOME", t.TempDir())
	tmpDir := t.TempDir()
	configContent := `
version: 1
retrieval:
  top_k: 8
  rrf_constant: 100
  similarity_floor: 0.2
  vector_weight: 1.5
  keyword_weight: 0.5
`
	err := os.WriteFile(filepath.Join(tmpDir, ".steward.yaml"), []byte(configContent), 0o644)
	require.NoError(t, err)

	// When: loading configuration
	cfg, err := Load(tmpDir)

	// Then: all overrides are applied
	require.NoError(t, err)
	assert.Equal(t, 8, cfg.Retrieval.TopK)
	assert.Equal(t, 100, cfg.Retrieval.RRFConstant)
	assert.Equal(t, 0.2, cfg.Retrieval.SimilarityFloor)
	assert.Equal(t, 1.5, cfg.Retrieval.VectorWeight)
	assert.Equal(t, 0.5, cfg.Retrieval.KeywordWeight)
}

func TestLoad_YmlExtension_IsRecognized(t *testing.T) {
	// Given: a directory with .steward.yml (alternative extension)
	t.Setenv("STEWARD_HOME", t.TempDir())
	tmpDir := t.TempDir()
	configContent := `
version: 1
embeddings:
  provider: static
`
	err := os.WriteFile(filepath.Join(tmpDir, ".steward.yml"), []byte(configContent), 0o644)
	require.NoError(t, err)

	// When: loading configuration
	cfg, err := Load(tmpDir)

	// Then: .yml file is recognized
	require.NoError(t, err)
	assert.Equal(t, "static", cfg.Embeddings.Provider)
}

func TestLoad_YamlPreferredOverYml(t *testing.T) {
	// Given: both .yaml and .yml exist
	t.Setenv("STEWARD_HOME", t.TempDir())
	tmpDir := t.TempDir()
	yamlContent := `
version: 1
embeddings:
  provider: gemini
`
	ymlContent := `
version: 1
embeddings:
  provider: static
`
	err := os.WriteFile(filepath.Join(tmpDir, ".steward.yaml"), []byte(yamlContent), 0o644)
	require.NoError(t, err)
	err = os.WriteFile(filepath.Join(tmpDir, ".steward.yml"), []byte(ymlContent), 0o644)
	require.NoError(t, err)

	// When: loading configuration
	cfg, err := Load(tmpDir)

	// Then: .yaml takes precedence
	require.NoError(t, err)
	assert.Equal(t, "gemini", cfg.Embeddings.Provider)
}

func TestLoad_InvalidYaml_ReturnsError(t *testing.T) {
	// Given: invalid YAML syntax
	t.Setenv("STEWARD_HOME", t.TempDir())
	tmpDir := t.TempDir()
	invalidContent := `
version: 1
retrieval:
  top_k: [invalid yaml syntax
`
	err := os.WriteFile(filepath.Join(tmpDir, ".steward.yaml"), []byte(invalidContent), 0o644)
	require.NoError(t, err)

	// When: loading configuration
	cfg, err := Load(tmpDir)

	// Then: error is returned with clear message
	require.Error(t, err)
	assert.Nil(t, cfg)
	assert.Contains(t, err.Error(), "parse")
}

func TestLoad_InvalidFieldType_ReturnsError(t *testing.T) {
	// Given: wrong type for a YAML-accessible field
	t.Setenv("STEWARD_HOME", t.TempDir())
	tmpDir := t.TempDir()
	invalidContent := `
version: 1
retrieval:
  top_k: "not-a-number"
`
	err := os.WriteFile(filepath.Join(tmpDir, ".steward.yaml"), []byte(invalidContent), 0o644)
	require.NoError(t, err)

	// When: loading configuration
	cfg, err := Load(tmpDir)

	// Then: error is returned
	require.Error(t, err)
	assert.Nil(t, cfg)
}

func TestLoad_InvalidTransport_ReturnsError(t *testing.T) {
	// Given: a transport the MCP server does not support
	t.Setenv("STEWARD_HOME", t.TempDir())
	tmpDir := t.TempDir()
	configContent := `
version: 1
server:
  transport: sse
`
	err := os.WriteFile(filepath.Join(tmpDir, ".steward.yaml"), []byte(configContent), 0o644)
	require.NoError(t, err)

	// When: loading configuration
	cfg, err := Load(tmpDir)

	// Then: validation rejects it
	require.Error(t, err)
	assert.Nil(t, cfg)
	assert.Contains(t, err.Error(), "transport")
}

func TestLoad_PartialRerankBlend_ReturnsError(t *testing.T) {
	// Given: only one half of the rerank blend overridden
	t.Setenv("STEWARD_HOME", t.TempDir())
	tmpDir := t.TempDir()
	configContent := `
version: 1
retrieval:
  rerank_original_weight: 0.5
`
	err := os.WriteFile(filepath.Join(tmpDir, ".steward.yaml"), []byte(configContent), 0o644)
	require.NoError(t, err)

	// When: loading configuration
	cfg, err := Load(tmpDir)

	// Then: the blend no longer sums to 1.0 and validation rejects it
	require.Error(t, err)
	assert.Nil(t, cfg)
	assert.Contains(t, err.Error(), "rerank")
}

// =============================================================================
// Contract File Discovery Tests
// =============================================================================

func TestDiscoverContractFiles_FindsMarkdown(t *testing.T) {
	// Given: a directory with contract markdown files
	tmpDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "pueblo_clerks.md"), []byte("# ARTICLE 1"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "denver_meat.markdown"), []byte("# ARTICLE 1"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "notes.txt"), []byte("scratch"), 0o644))

	// When: discovering contract files
	files := DiscoverContractFiles(tmpDir)

	// Then: only markdown files are found
	require.Len(t, files, 2)
	assert.Contains(t, files, filepath.Join(tmpDir, "pueblo_clerks.md"))
	assert.Contains(t, files, filepath.Join(tmpDir, "denver_meat.markdown"))
}

func TestDiscoverContractFiles_SkipsReadmesAndDotfiles(t *testing.T) {
	// Given: a directory with a README and hidden files alongside a contract
	tmpDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "README.md"), []byte("# About"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, ".draft.md"), []byte("# Draft"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "contract.md"), []byte("# ARTICLE 1"), 0o644))

	// When: discovering contract files
	files := DiscoverContractFiles(tmpDir)

	// Then: only the contract is returned
	require.Len(t, files, 1)
	assert.Equal(t, filepath.Join(tmpDir, "contract.md"), files[0])
}

func TestDiscoverContractFiles_ReturnsSortedPaths(t *testing.T) {
	// Given: contracts written out of order
	tmpDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "z_contract.md"), []byte("z"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "a_contract.md"), []byte("a"), 0o644))

	// When: discovering contract files
	files := DiscoverContractFiles(tmpDir)

	// Then: paths come back sorted
	require.Len(t, files, 2)
	assert.Equal(t, filepath.Join(tmpDir, "a_contract.md"), files[0])
	assert.Equal(t, filepath.Join(tmpDir, "z_contract.md"), files[1])
}

func TestDiscoverContractFiles_MissingDir_ReturnsNil(t *testing.T) {
	// When: discovering in a directory that does not exist
	files := DiscoverContractFiles(filepath.Join(t.TempDir(), "nope"))

	// Then: nil, not an error
	assert.Nil(t, files)
}

// =============================================================================
// Project Root Detection Tests
// =============================================================================

func TestFindProjectRoot_GitDirectory_ReturnsGitRoot(t *testing.T) {
	// Given: a nested directory in a git repo
	tmpDir := t.TempDir()
	gitDir := filepath.Join(tmpDir, ".git")
	nestedDir := filepath.Join(tmpDir, "contracts", "clerks")
	require.NoError(t, os.Mkdir(gitDir, 0o755))
	require.NoError(t, os.MkdirAll(nestedDir, 0o755))

	// When: finding project root from nested directory
	root, err := FindProjectRoot(nestedDir)

	// Then: git root is returned
	require.NoError(t, err)
	assert.Equal(t, tmpDir, root)
}

func TestFindProjectRoot_ConfigFile_ReturnsConfigLocation(t *testing.T) {
	// Given: a directory with .steward.yaml (no git)
	tmpDir := t.TempDir()
	nestedDir := filepath.Join(tmpDir, "contracts", "clerks")
	require.NoError(t, os.MkdirAll(nestedDir, 0o755))
	err := os.WriteFile(filepath.Join(tmpDir, ".steward.yaml"), []byte("version: 1"), 0o644)
	require.NoError(t, err)

	// When: finding project root from nested directory
	root, err := FindProjectRoot(nestedDir)

	// Then: config file location is returned
	require.NoError(t, err)
	assert.Equal(t, tmpDir, root)
}

func TestFindProjectRoot_NoMarkers_ReturnsCurrentDir(t *testing.T) {
	// Given: a directory with no markers
	tmpDir := t.TempDir()

	// When: finding project root
	root, err := FindProjectRoot(tmpDir)

	// Then: current directory is returned
	require.NoError(t, err)
	assert.Equal(t, tmpDir, root)
}

// =============================================================================
// Environment Variable Override Tests
// =============================================================================

func TestLoad_EnvVarOverridesProvider(t *testing.T) {
	// Given: a config file with gemini and env var with static
	t.Setenv("STEWARD_HOME", t.TempDir())
	tmpDir := t.TempDir()
	configContent := `
version: 1
embeddings:
  provider: gemini
`
	err := os.WriteFile(filepath.Join(tmpDir, ".steward.yaml"), []byte(configContent), 0o644)
	require.NoError(t, err)
	t.Setenv("STEWARD_EMBEDDINGS_PROVIDER", "static")

	// When: loading configuration
	cfg, err := Load(tmpDir)

	// Then: env var takes precedence
	require.NoError(t, err)
	assert.Equal(t, "static", cfg.Embeddings.Provider)
}

func TestLoad_EnvVarOverridesLLMModel(t *testing.T) {
	// Given: env var for the chat model
	t.Setenv("STEWARD_HOME", t.TempDir())
	tmpDir := t.TempDir()
	t.Setenv("STEWARD_LLM_MODEL", "gemini-2.0-flash")

	// When: loading configuration
	cfg, err := Load(tmpDir)

	// Then: env var is applied
	require.NoError(t, err)
	assert.Equal(t, "gemini-2.0-flash", cfg.LLM.Model)
}

func TestLoad_EnvVarOverridesContractID(t *testing.T) {
	// Given: env var for the default contract
	t.Setenv("STEWARD_HOME", t.TempDir())
	tmpDir := t.TempDir()
	t.Setenv("STEWARD_CONTRACT_ID", "kroger_denver_meat_2023")

	// When: loading configuration
	cfg, err := Load(tmpDir)

	// Then: env var is applied
	require.NoError(t, err)
	assert.Equal(t, "kroger_denver_meat_2023", cfg.Contract.DefaultID)
}

func TestLoad_EnvVarOverridesDataDir(t *testing.T) {
	// Given: env var pointing data at a custom location
	t.Setenv("STEWARD_HOME", t.TempDir())
	tmpDir := t.TempDir()
	dataDir := filepath.Join(tmpDir, "steward-data")
	t.Setenv("STEWARD_DATA_DIR", dataDir)

	// When: loading configuration
	cfg, err := Load(tmpDir)

	// Then: env var is applied
	require.NoError(t, err)
	assert.Equal(t, dataDir, cfg.Storage.DataDir)
}

func TestLoad_EnvVarOverridesLogLevel(t *testing.T) {
	// Given: env var for log level
	t.Setenv("STEWARD_HOME", t.TempDir())
	tmpDir := t.TempDir()
	t.Setenv("STEWARD_LOG_LEVEL", "debug")

	// When: loading configuration
	cfg, err := Load(tmpDir)

	// Then: env var is applied
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Server.LogLevel)
}

func TestLoad_EnvVarOverridesRRFConstant(t *testing.T) {
	// Given: YAML config with RRF constant and env var override
	t.Setenv("STEWARD_HOME", t.TempDir())
	tmpDir := t.TempDir()
	configContent := `
version: 1
retrieval:
  rrf_constant: 100
`
	err := os.WriteFile(filepath.Join(tmpDir, ".steward.yaml"), []byte(configContent), 0o644)
	require.NoError(t, err)
	t.Setenv("STEWARD_RRF_CONSTANT", "80")

	// When: loading configuration
	cfg, err := Load(tmpDir)

	// Then: env var takes precedence over YAML
	require.NoError(t, err)
	assert.Equal(t, 80, cfg.Retrieval.RRFConstant)
}

func TestLoad_EnvVarOverridesBranchWeights(t *testing.T) {
	// Given: YAML config with weights and env var override
	t.Setenv("STEWARD_HOME", t.TempDir())
	tmpDir := t.TempDir()
	configContent := `
version: 1
retrieval:
  vector_weight: 0.4
  keyword_weight: 0.6
`
	err := os.WriteFile(filepath.Join(tmpDir, ".steward.yaml"), []byte(configContent), 0o644)
	require.NoError(t, err)
	t.Setenv("STEWARD_VECTOR_WEIGHT", "2.0")
	t.Setenv("STEWARD_KEYWORD_WEIGHT", "0.5")

	// When: loading configuration
	cfg, err := Load(tmpDir)

	// Then: env vars take precedence over YAML
	require.NoError(t, err)
	assert.Equal(t, 2.0, cfg.Retrieval.VectorWeight)
	assert.Equal(t, 0.5, cfg.Retrieval.KeywordWeight)
}

func TestLoad_EnvVarDisablesReranker(t *testing.T) {
	// Given: reranking on by default and env var turning it off
	t.Setenv("STEWARD_HOME", t.TempDir())
	tmpDir := t.TempDir()
	t.Setenv("STEWARD_RERANK_ENABLED", "false")

	// When: loading configuration
	cfg, err := Load(tmpDir)

	// Then: reranking is disabled
	require.NoError(t, err)
	assert.False(t, cfg.Retrieval.RerankEnabled)
}

func TestLoad_EnvVarEmptyString_DoesNotOverride(t *testing.T) {
	// Given: empty env var
	t.Setenv("STEWARD_HOME", t.TempDir())
	tmpDir := t.TempDir()
	t.Setenv("STEWARD_EMBEDDINGS_PROVIDER", "")

	// When: loading configuration
	cfg, err := Load(tmpDir)

	// Then: default is kept (empty string = auto-detect)
	require.NoError(t, err)
	assert.Equal(t, "", cfg.Embeddings.Provider)
}

// =============================================================================
// User/Global Configuration Tests
// =============================================================================

func TestGetUserConfigPath_DefaultsToStewardHome(t *testing.T) {
	// Given: no STEWARD_HOME set
	t.Setenv("STEWARD_HOME", "")

	// When: getting user config path
	path := GetUserConfigPath()

	// Then: defaults to ~/.steward/config.yaml
	home, err := os.UserHomeDir()
	require.NoError(t, err)
	expected := filepath.Join(home, ".steward", "config.yaml")
	assert.Equal(t, expected, path)
}

func TestGetUserConfigPath_RespectsStewardHome(t *testing.T) {
	// Given: STEWARD_HOME is set
	customHome := t.TempDir()
	t.Setenv("STEWARD_HOME", customHome)

	// When: getting user config path
	path := GetUserConfigPath()

	// Then: uses STEWARD_HOME
	expected := filepath.Join(customHome, "config.yaml")
	assert.Equal(t, expected, path)
}

func TestGetUserConfigDir_ReturnsParentOfConfigPath(t *testing.T) {
	// When: getting user config directory
	dir := GetUserConfigDir()
	path := GetUserConfigPath()

	// Then: directory is parent of config file
	assert.Equal(t, filepath.Dir(path), dir)
}

func TestUserConfigExists_ReturnsFalseWhenMissing(t *testing.T) {
	// Given: STEWARD_HOME points to empty directory
	t.Setenv("STEWARD_HOME", t.TempDir())

	// When: checking if user config exists
	exists := UserConfigExists()

	// Then: returns false
	assert.False(t, exists)
}

func TestUserConfigExists_ReturnsTrueWhenPresent(t *testing.T) {
	// Given: user config file exists
	stewardHome := t.TempDir()
	t.Setenv("STEWARD_HOME", stewardHome)
	configPath := filepath.Join(stewardHome, "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("version: 1"), 0o644))

	// When: checking if user config exists
	exists := UserConfigExists()

	// Then: returns true
	assert.True(t, exists)
}

func TestLoad_UserConfigOverridesDefaults(t *testing.T) {
	// Given: user config with a custom chat model
	stewardHome := t.TempDir()
	projectDir := t.TempDir()
	t.Setenv("STEWARD_HOME", stewardHome)

	userConfig := `
version: 1
llm:
  model: gemini-2.0-flash
`
	require.NoError(t, os.WriteFile(filepath.Join(stewardHome, "config.yaml"), []byte(userConfig), 0o644))

	// When: loading configuration
	cfg, err := Load(projectDir)

	// Then: user config values are applied
	require.NoError(t, err)
	assert.Equal(t, "gemini-2.0-flash", cfg.LLM.Model)
}

func TestLoad_ProjectConfigOverridesUserConfig(t *testing.T) {
	// Given: both user and project configs exist
	stewardHome := t.TempDir()
	projectDir := t.TempDir()
	t.Setenv("STEWARD_HOME", stewardHome)

	// User config
	userConfig := `
version: 1
embeddings:
  provider: gemini
  model: user-model
`
	require.NoError(t, os.WriteFile(filepath.Join(stewardHome, "config.yaml"), []byte(userConfig), 0o644))

	// Project config (overrides user)
	projectConfig := `
version: 1
embeddings:
  model: project-model
`
	require.NoError(t, os.WriteFile(filepath.Join(projectDir, ".steward.yaml"), []byte(projectConfig), 0o644))

	// When: loading configuration
	cfg, err := Load(projectDir)

	// Then: project config takes precedence
	require.NoError(t, err)
	assert.Equal(t, "project-model", cfg.Embeddings.Model)
	// And: user config's provider is still used (not overridden by project)
	assert.Equal(t, "gemini", cfg.Embeddings.Provider)
}

func TestLoad_EnvVarOverridesUserAndProjectConfig(t *testing.T) {
	// Given: all three config sources exist
	stewardHome := t.TempDir()
	projectDir := t.TempDir()
	t.Setenv("STEWARD_HOME", stewardHome)
	t.Setenv("STEWARD_EMBEDDINGS_MODEL", "env-model")

	// User config
	userConfig := `
version: 1
embeddings:
  model: user-model
`
	require.NoError(t, os.WriteFile(filepath.Join(stewardHome, "config.yaml"), []byte(userConfig), 0o644))

	// Project config
	projectConfig := `
version: 1
embeddings:
  model: project-model
`
	require.NoError(t, os.WriteFile(filepath.Join(projectDir, ".steward.yaml"), []byte(projectConfig), 0o644))

	// When: loading configuration
	cfg, err := Load(projectDir)

	// Then: env var has highest precedence
	require.NoError(t, err)
	assert.Equal(t, "env-model", cfg.Embeddings.Model)
}

func TestLoad_InvalidUserConfig_ReturnsError(t *testing.T) {
	// Given: invalid user config
	stewardHome := t.TempDir()
	projectDir := t.TempDir()
	t.Setenv("STEWARD_HOME", stewardHome)

	invalidConfig := `
version: 1
embeddings:
  model: [invalid yaml
`
	require.NoError(t, os.WriteFile(filepath.Join(stewardHome, "config.yaml"), []byte(invalidConfig), 0o644))

	// When: loading configuration
	cfg, err := Load(projectDir)

	// Then: error is returned
	require.Error(t, err)
	assert.Nil(t, cfg)
	assert.Contains(t, err.Error(), "user config")
}

func TestLoadFile_ExplicitPath(t *testing.T) {
	// Given: a config file outside the discovery chain
	dir := t.TempDir()
	t.Setenv("STEWARD_HOME", t.TempDir())
	path := filepath.Join(dir, "custom.yaml")
	content := `
version: 1
retrieval:
  top_k: 9
storage:
  data_dir: /tmp/steward-custom
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	// When: loading by explicit path
	cfg, err := LoadFile(path)

	// Then: file values override defaults
	require.NoError(t, err)
	assert.Equal(t, 9, cfg.Retrieval.TopK)
	assert.Equal(t, "/tmp/steward-custom", cfg.Storage.DataDir)
}

func TestLoadFile_MissingFile_ReturnsError(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}
