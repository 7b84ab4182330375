package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestBackupUserConfig(t *testing.T) {
	// Create temp directory for test
	tmpDir := t.TempDir()

	// Override config path for testing
	origHome := os.Getenv("STEWARD_HOME")
	os.Setenv("STEWARD_HOME", tmpDir)
	defer os.Setenv("STEWARD_HOME", origHome)

	configPath := filepath.Join(tmpDir, "config.yaml")

	t.Run("no config exists", func(t *testing.T) {
		backupPath, err := BackupUserConfig()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if backupPath != "" {
			t.Errorf("expected empty backup path for non-existent config, got %s", backupPath)
		}
	})

	t.Run("backup existing config", func(t *testing.T) {
		testContent := "version: 1\nembeddings:\n  provider: static\n"
		if err := os.WriteFile(configPath, []byte(testContent), 0644); err != nil {
			t.Fatalf("failed to write test config: %v", err)
		}

		backupPath, err := BackupUserConfig()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if backupPath == "" {
			t.Fatal("expected non-empty backup path")
		}

		// Verify backup exists and has correct content
		backupContent, err := os.ReadFile(backupPath)
		if err != nil {
			t.Fatalf("failed to read backup: %v", err)
		}
		if string(backupContent) != testContent {
			t.Errorf("backup content mismatch:\ngot: %s\nwant: %s", backupContent, testContent)
		}

		// Verify backup filename format
		if !filepath.IsAbs(backupPath) {
			t.Errorf("backup path should be absolute: %s", backupPath)
		}
	})
}

func TestListUserConfigBackups(t *testing.T) {
	tmpDir := t.TempDir()

	origHome := os.Getenv("STEWARD_HOME")
	os.Setenv("STEWARD_HOME", tmpDir)
	defer os.Setenv("STEWARD_HOME", origHome)

	configPath := filepath.Join(tmpDir, "config.yaml")

	t.Run("no backups exist", func(t *testing.T) {
		backups, err := ListUserConfigBackups()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(backups) != 0 {
			t.Errorf("expected 0 backups, got %d", len(backups))
		}
	})

	t.Run("list multiple backups", func(t *testing.T) {
		// Create some backup files with different timestamps
		timestamps := []string{"20260101-100000", "20260101-110000", "20260101-120000"}
		for _, ts := range timestamps {
			backupName := filepath.Join(tmpDir, "config.yaml.bak."+ts)
			if err := os.WriteFile(backupName, []byte("test"), 0644); err != nil {
				t.Fatalf("failed to create backup: %v", err)
			}
			// Small delay to ensure different mod times
			time.Sleep(10 * time.Millisecond)
		}

		backups, err := ListUserConfigBackups()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(backups) != 3 {
			t.Errorf("expected 3 backups, got %d", len(backups))
		}

		// Verify sorted by mod time (newest first)
		for i := 1; i < len(backups); i++ {
			info1, _ := os.Stat(backups[i-1])
			info2, _ := os.Stat(backups[i])
			if info1.ModTime().Before(info2.ModTime()) {
				t.Errorf("backups not sorted correctly: %s before %s", backups[i-1], backups[i])
			}
		}
	})

	t.Run("cleanup old backups", func(t *testing.T) {
		// Create config file
		if err := os.WriteFile(configPath, []byte("test config"), 0644); err != nil {
			t.Fatalf("failed to write config: %v", err)
		}

		// Create 4 more backups (should trigger cleanup)
		for i := 0; i < 4; i++ {
			_, err := BackupUserConfig()
			if err != nil {
				t.Fatalf("failed to create backup: %v", err)
			}
			time.Sleep(10 * time.Millisecond)
		}

		// Should have at most MaxBackups
		backups, err := ListUserConfigBackups()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(backups) > MaxBackups {
			t.Errorf("expected at most %d backups, got %d", MaxBackups, len(backups))
		}
	})
}

func TestRestoreUserConfig(t *testing.T) {
	tmpDir := t.TempDir()

	origHome := os.Getenv("STEWARD_HOME")
	os.Setenv("STEWARD_HOME", tmpDir)
	defer os.Setenv("STEWARD_HOME", origHome)

	configPath := filepath.Join(tmpDir, "config.yaml")

	t.Run("missing backup file", func(t *testing.T) {
		err := RestoreUserConfig(filepath.Join(tmpDir, "config.yaml.bak.nope"))
		if err == nil {
			t.Fatal("expected error for missing backup file")
		}
	})

	t.Run("restore replaces current config", func(t *testing.T) {
		backupPath := filepath.Join(tmpDir, "config.yaml.bak.20260101-100000")
		if err := os.WriteFile(backupPath, []byte("version: 1\nserver:\n  log_level: debug\n"), 0644); err != nil {
			t.Fatalf("failed to create backup: %v", err)
		}
		if err := os.WriteFile(configPath, []byte("version: 1\nserver:\n  log_level: info\n"), 0644); err != nil {
			t.Fatalf("failed to write current config: %v", err)
		}

		if err := RestoreUserConfig(backupPath); err != nil {
			t.Fatalf("restore failed: %v", err)
		}

		data, err := os.ReadFile(configPath)
		if err != nil {
			t.Fatalf("failed to read restored config: %v", err)
		}
		if !contains(string(data), "log_level: debug") {
			t.Errorf("restored config should contain backup content, got: %s", data)
		}
	})
}

func TestMergeNewDefaults(t *testing.T) {
	t.Run("adds missing retrieval fusion fields", func(t *testing.T) {
		// Simulates upgrade from a config written before fusion was tunable
		cfg := &Config{
			Version: 1,
			Retrieval: RetrievalConfig{
				TopK:            5,
				SimilarityFloor: 0.1,
				// RRFConstant, VectorWeight, KeywordWeight are 0 (not set)
			},
		}

		added := cfg.MergeNewDefaults()

		// Should add fusion fields with defaults
		if cfg.Retrieval.RRFConstant != 60 {
			t.Errorf("RRFConstant should be 60, got %d", cfg.Retrieval.RRFConstant)
		}
		if cfg.Retrieval.VectorWeight != 1.0 {
			t.Errorf("VectorWeight should be 1.0, got %f", cfg.Retrieval.VectorWeight)
		}
		if cfg.Retrieval.KeywordWeight != 1.0 {
			t.Errorf("KeywordWeight should be 1.0, got %f", cfg.Retrieval.KeywordWeight)
		}

		// Should report the fields
		hasRRF := false
		hasVector := false
		hasKeyword := false
		for _, field := range added {
			if field == "retrieval.rrf_constant" {
				hasRRF = true
			}
			if field == "retrieval.vector_weight" {
				hasVector = true
			}
			if field == "retrieval.keyword_weight" {
				hasKeyword = true
			}
		}
		if !hasRRF {
			t.Error("should report rrf_constant as added")
		}
		if !hasVector {
			t.Error("should report vector_weight as added")
		}
		if !hasKeyword {
			t.Error("should report keyword_weight as added")
		}
	})

	t.Run("adds missing circuit breaker fields", func(t *testing.T) {
		cfg := &Config{
			Version: 1,
			LLM: LLMConfig{
				Model: "gemini-2.0-flash-lite",
				// MaxFailures and Cooldown are unset
			},
		}

		added := cfg.MergeNewDefaults()

		if cfg.LLM.MaxFailures != 3 {
			t.Errorf("MaxFailures should be 3, got %d", cfg.LLM.MaxFailures)
		}
		if cfg.LLM.Cooldown != "30s" {
			t.Errorf("Cooldown should be 30s, got %s", cfg.LLM.Cooldown)
		}

		hasMax := false
		hasCooldown := false
		for _, field := range added {
			if field == "llm.max_failures" {
				hasMax = true
			}
			if field == "llm.cooldown" {
				hasCooldown = true
			}
		}
		if !hasMax {
			t.Error("should report max_failures as added")
		}
		if !hasCooldown {
			t.Error("should report cooldown as added")
		}
	})

	t.Run("preserves existing values", func(t *testing.T) {
		cfg := &Config{
			Version: 1,
			Retrieval: RetrievalConfig{
				RRFConstant:          80,  // Custom value
				VectorWeight:         2.0, // Custom value
				KeywordWeight:        0.5, // Custom value
				RerankOriginalWeight: 0.4, // Custom value
				RerankLLMWeight:      0.6, // Custom value
			},
			LLM: LLMConfig{
				MaxFailures: 5,    // Custom value
				Cooldown:    "1m", // Custom value
			},
			Ingest: IngestConfig{
				EnrichBatchSize:  20,   // Custom value
				EnrichBatchDelay: "5s", // Custom value
			},
		}

		added := cfg.MergeNewDefaults()

		// Should NOT change existing retrieval values
		if cfg.Retrieval.RRFConstant != 80 {
			t.Errorf("RRFConstant changed from 80 to %d", cfg.Retrieval.RRFConstant)
		}
		if cfg.Retrieval.VectorWeight != 2.0 {
			t.Errorf("VectorWeight changed from 2.0 to %f", cfg.Retrieval.VectorWeight)
		}
		if cfg.Retrieval.RerankOriginalWeight != 0.4 {
			t.Errorf("RerankOriginalWeight changed from 0.4 to %f", cfg.Retrieval.RerankOriginalWeight)
		}
		// Should NOT change existing LLM or ingest values
		if cfg.LLM.MaxFailures != 5 {
			t.Errorf("MaxFailures changed from 5 to %d", cfg.LLM.MaxFailures)
		}
		if cfg.LLM.Cooldown != "1m" {
			t.Errorf("Cooldown changed from 1m to %s", cfg.LLM.Cooldown)
		}
		if cfg.Ingest.EnrichBatchSize != 20 {
			t.Errorf("EnrichBatchSize changed from 20 to %d", cfg.Ingest.EnrichBatchSize)
		}

		// Should NOT report them as added
		for _, field := range added {
			if field == "retrieval.rrf_constant" ||
				field == "retrieval.vector_weight" ||
				field == "retrieval.keyword_weight" ||
				field == "retrieval.rerank_original_weight" ||
				field == "retrieval.rerank_llm_weight" ||
				field == "llm.max_failures" ||
				field == "llm.cooldown" ||
				field == "ingest.enrich_batch_size" ||
				field == "ingest.enrich_batch_delay" {
				t.Errorf("should not report %s as added (was already set)", field)
			}
		}
	})

	t.Run("returns empty for complete config", func(t *testing.T) {
		// Create a complete config
		cfg := NewConfig()

		added := cfg.MergeNewDefaults()

		if len(added) != 0 {
			t.Errorf("expected 0 added fields for complete config, got %v", added)
		}
	})
}

func TestWriteYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	cfg := &Config{
		Version: 1,
		Embeddings: EmbeddingsConfig{
			Provider: "static",
			Model:    "test-model",
		},
	}

	if err := cfg.WriteYAML(configPath); err != nil {
		t.Fatalf("failed to write YAML: %v", err)
	}

	// Verify file exists and is readable
	data, err := os.ReadFile(configPath)
	if err != nil {
		t.Fatalf("failed to read written file: %v", err)
	}
	if len(data) == 0 {
		t.Error("written file is empty")
	}

	// Verify it contains expected content
	content := string(data)
	if !contains(content, "provider: static") {
		t.Error("written file should contain provider: static")
	}
	if !contains(content, "model: test-model") {
		t.Error("written file should contain model: test-model")
	}
}

func contains(s, substr string) bool {
	return len(s) >= len(substr) && (s == substr || len(s) > 0 && containsHelper(s, substr))
}

func containsHelper(s, substr string) bool {
	for i := 0; i <= len(s)-len(substr); i++ {
		if s[i:i+len(substr)] == substr {
			return true
		}
	}
	return false
}
