package ui

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusInfo_Zero(t *testing.T) {
	// Given: zero-valued status info
	info := StatusInfo{}

	// Then: all fields are zero/empty
	assert.Empty(t, info.ContractID)
	assert.Empty(t, info.Generation)
	assert.Equal(t, 0, info.TotalChunks)
	assert.Equal(t, 0, info.TotalArticles)
	assert.True(t, info.LastIngested.IsZero())
}

func TestStatusInfo_JSONSerialization(t *testing.T) {
	// Given: populated status info
	info := StatusInfo{
		ContractID:     "safeway_pueblo_clerks_2022",
		Generation:     "gen-20250114-103000",
		TotalChunks:    412,
		TotalArticles:  58,
		WageClasses:    6,
		LastIngested:   time.Date(2025, 1, 14, 10, 30, 0, 0, time.UTC),
		ChunksSize:     1024 * 1024,
		KeywordSize:    2 * 1024 * 1024,
		VectorSize:     10 * 1024 * 1024,
		TotalSize:      13 * 1024 * 1024,
		EmbedderType:   "gemini",
		EmbedderStatus: "ready",
		EmbedderModel:  "text-embedding-004",
		WatcherStatus:  "running",
	}

	// When: serializing to JSON
	data, err := json.Marshal(info)
	require.NoError(t, err)

	// Then: JSON is valid and contains expected fields
	var parsed map[string]any
	err = json.Unmarshal(data, &parsed)
	require.NoError(t, err)

	assert.Equal(t, "safeway_pueblo_clerks_2022", parsed["contract_id"])
	assert.Equal(t, "gen-20250114-103000", parsed["generation"])
	assert.Equal(t, float64(412), parsed["total_chunks"])
	assert.Equal(t, float64(58), parsed["total_articles"])
	assert.Equal(t, "gemini", parsed["embedder_type"])
	assert.Equal(t, "running", parsed["watcher_status"])
}

func TestStatusRenderer_Render_Basic(t *testing.T) {
	// Given: status renderer
	buf := &bytes.Buffer{}
	r := NewStatusRenderer(buf, false)

	// When: rendering status info
	info := StatusInfo{
		ContractID:     "safeway_pueblo_clerks_2022",
		Generation:     "gen-20250114-103000",
		TotalChunks:    250,
		TotalArticles:  50,
		WageClasses:    4,
		LastIngested:   time.Now(),
		ChunksSize:     512 * 1024,
		KeywordSize:    1024 * 1024,
		VectorSize:     5 * 1024 * 1024,
		TotalSize:      6*1024*1024 + 512*1024,
		EmbedderType:   "gemini",
		EmbedderStatus: "ready",
		EmbedderModel:  "text-embedding-004",
		WatcherStatus:  "stopped",
	}

	err := r.Render(info)
	require.NoError(t, err)

	// Then: output contains key information
	output := buf.String()
	assert.Contains(t, output, "safeway_pueblo_clerks_2022")
	assert.Contains(t, output, "gen-20250114-103000")
	assert.Contains(t, output, "250")
	assert.Contains(t, output, "50")
	assert.Contains(t, output, "gemini")
	assert.Contains(t, output, "ready")
}

func TestStatusRenderer_RenderJSON(t *testing.T) {
	// Given: status renderer
	buf := &bytes.Buffer{}
	r := NewStatusRenderer(buf, false)

	// When: rendering as JSON
	info := StatusInfo{
		ContractID:  "ufcw_local7_meat_2023",
		TotalChunks: 100,
		Generation:  "gen-20250201-080000",
	}

	err := r.RenderJSON(info)
	require.NoError(t, err)

	// Then: output is valid JSON
	var parsed StatusInfo
	err = json.Unmarshal(buf.Bytes(), &parsed)
	require.NoError(t, err)
	assert.Equal(t, "ufcw_local7_meat_2023", parsed.ContractID)
	assert.Equal(t, 100, parsed.TotalChunks)
	assert.Equal(t, "gen-20250201-080000", parsed.Generation)
}

func TestStatusRenderer_NoColor(t *testing.T) {
	// Given: status renderer with noColor
	buf := &bytes.Buffer{}
	r := NewStatusRenderer(buf, true)

	// When: rendering
	info := StatusInfo{
		ContractID:     "test_contract",
		EmbedderStatus: "ready",
	}

	err := r.Render(info)
	require.NoError(t, err)

	// Then: no ANSI codes in output
	output := buf.String()
	assert.NotContains(t, output, "\x1b[")
	assert.NotContains(t, output, "\033[")
}

func TestStatusRenderer_EmbedderOffline(t *testing.T) {
	// Given: status renderer
	buf := &bytes.Buffer{}
	r := NewStatusRenderer(buf, false)

	// When: rendering with offline embedder
	info := StatusInfo{
		ContractID:     "test_contract",
		EmbedderType:   "static",
		EmbedderStatus: "offline",
	}

	err := r.Render(info)
	require.NoError(t, err)

	// Then: shows offline status
	output := buf.String()
	assert.Contains(t, output, "offline")
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		bytes    int64
		expected string
	}{
		{0, "0 B"},
		{100, "100 B"},
		{1024, "1.0 KB"},
		{1536, "1.5 KB"},
		{1024 * 1024, "1.0 MB"},
		{5 * 1024 * 1024, "5.0 MB"},
		{1024 * 1024 * 1024, "1.0 GB"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			result := FormatBytes(tt.bytes)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestStatusRenderer_StorageSizes(t *testing.T) {
	// Given: status renderer
	buf := &bytes.Buffer{}
	r := NewStatusRenderer(buf, true) // noColor for easier assertion

	// When: rendering with storage sizes
	info := StatusInfo{
		ContractID:  "storage_contract",
		ChunksSize:  512 * 1024,
		KeywordSize: 2 * 1024 * 1024,
		VectorSize:  10 * 1024 * 1024,
		TotalSize:   12*1024*1024 + 512*1024,
	}

	err := r.Render(info)
	require.NoError(t, err)

	// Then: sizes are human-readable
	output := buf.String()
	assert.Contains(t, output, "KB") // Chunks size
	assert.Contains(t, output, "MB") // Vector size
}
