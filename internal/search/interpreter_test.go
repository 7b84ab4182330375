package search

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shopsteward/steward/internal/llm"
)

func TestInterpreter_ParsesFullPayload(t *testing.T) {
	client := llm.NewScripted().Reply("```json\n" + `{
		"intent": "understand break entitlement",
		"key_concepts": ["rest period", "relief period"],
		"entities": {"topic": "breaks"},
		"hypothetical_answers": ["Employees shall receive a rest period of fifteen minutes."],
		"search_queries": ["rest period entitlement", "relief periods"],
		"likely_sections": ["Relief Periods"],
		"explicit_articles": [12, "7"]
	}` + "\n```")
	in := NewInterpreter(client, time.Second)

	result := in.Interpret(context.Background(), "Article 7 says what about breaks?")

	require.True(t, result.Success)
	assert.Equal(t, "understand break entitlement", result.Intent)
	assert.Equal(t, []string{"rest period", "relief period"}, result.KeyConcepts)
	assert.Equal(t, map[string]string{"topic": "breaks"}, result.Entities)
	assert.Equal(t, []string{"Employees shall receive a rest period of fifteen minutes."}, result.HypotheticalAnswers)
	assert.Equal(t, []string{"rest period entitlement", "relief periods"}, result.SearchQueries)
	assert.Equal(t, []string{"Relief Periods"}, result.LikelySections)
	// Regex extraction comes first, then model-reported numbers, and
	// the duplicated "7" collapses.
	assert.Equal(t, []int{7, 12}, result.ExplicitArticles)
	assert.Equal(t, "scripted", result.Model)

	require.Len(t, client.Requests, 1)
	req := client.Requests[0]
	assert.Contains(t, req.System, "union contract expert")
	assert.Contains(t, req.Prompt, "Article 7 says what about breaks?")
	assert.Equal(t, float32(0.2), req.Temperature)
	assert.Equal(t, int32(500), req.MaxTokens)
	assert.True(t, req.JSON)
}

func TestInterpreter_EmptyFieldsGetDefaults(t *testing.T) {
	client := llm.NewScripted().Reply(`{"intent": "", "search_queries": []}`)
	in := NewInterpreter(client, time.Second)

	result := in.Interpret(context.Background(), "question")

	require.True(t, result.Success)
	assert.Equal(t, "unknown", result.Intent)
	assert.Equal(t, []string{"question"}, result.SearchQueries)
}

func TestInterpreter_NilClientFallsBackToRegex(t *testing.T) {
	in := NewInterpreter(nil, 0)

	result := in.Interpret(context.Background(), "What does Article 12 say about overtime pay")

	assert.False(t, result.Success)
	assert.Equal(t, "unknown", result.Intent)
	assert.Equal(t, "LLM client not available", result.Error)
	assert.Equal(t, []string{"what", "does", "article", "12", "say"}, result.KeyConcepts)
	assert.Equal(t, []string{"What does Article 12 say about overtime pay"}, result.SearchQueries)
	assert.Equal(t, []int{12}, result.ExplicitArticles)
}

func TestInterpreter_GenerateErrorDegrades(t *testing.T) {
	client := llm.NewScripted().Fail(errors.New("quota exceeded"))
	in := NewInterpreter(client, time.Second)

	result := in.Interpret(context.Background(), "Can I swap shifts?")

	assert.False(t, result.Success)
	assert.Equal(t, "error", result.Intent)
	assert.Equal(t, "quota exceeded", result.Error)
	assert.Equal(t, []string{"Can I swap shifts?"}, result.SearchQueries)
}

func TestInterpreter_MalformedJSONDegrades(t *testing.T) {
	client := llm.NewScripted().Reply("I could not produce JSON today.")
	in := NewInterpreter(client, time.Second)

	result := in.Interpret(context.Background(), "Can I swap shifts per art. 43?")

	assert.False(t, result.Success)
	assert.Equal(t, "parse_error", result.Intent)
	assert.Contains(t, result.Error, "JSON parse error")
	assert.Equal(t, []string{"Can I swap shifts per art. 43?"}, result.SearchQueries)
	assert.Equal(t, []int{43}, result.ExplicitArticles)
}

func TestExtractExplicitArticles(t *testing.T) {
	articles := extractExplicitArticles("Compare Article 12 with art. 43 and article 12 again")

	assert.Equal(t, []int{12, 43}, articles)
}

func TestSearchAngles_DedupesPreservingOrder(t *testing.T) {
	in := &Interpretation{
		Query:               "original question",
		HypotheticalAnswers: []string{"hypo one", "original question", ""},
		SearchQueries:       []string{"alt one", "hypo one", "alt two"},
	}

	angles := SearchAngles(in)

	assert.Equal(t, []string{"original question", "hypo one", "alt one", "alt two"}, angles)
}
