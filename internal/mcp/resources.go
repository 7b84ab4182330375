package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/shopsteward/steward/internal/index"
	"github.com/shopsteward/steward/internal/telemetry"
)

// registerContractResources registers every article of the loaded
// contract as a readable MCP resource. Registration is keyed by URI,
// so re-registering after a generation swap replaces the entries; an
// article that no longer exists after a re-ingest answers not-found at
// read time because the handler resolves from the live stack.
func (s *Server) registerContractResources(stack *index.QueryStack) {
	m := stack.Snapshot.Manifest
	nums := m.ArticleNumbers()
	for _, num := range nums {
		title, _ := m.ArticleTitle(num)
		s.registerArticleResource(num, title)
	}
	if m.HasLOUs {
		s.registerArticleResource(0, "Letters of Understanding")
	}

	s.logger.Info("registered contract resources",
		slog.Int("articles", len(nums)),
		slog.Bool("lous", m.HasLOUs))
}

// registerArticleResource registers a single article as an MCP resource.
func (s *Server) registerArticleResource(num int, title string) {
	name := fmt.Sprintf("Article %d", num)
	if num == 0 {
		name = "Letters of Understanding"
	}
	s.mcp.AddResource(
		&mcp.Resource{
			Name:        name,
			URI:         articleURI(num),
			Description: title,
			MIMEType:    "text/markdown",
		},
		s.makeArticleHandler(num),
	)
}

// makeArticleHandler creates a read handler for a specific article.
func (s *Server) makeArticleHandler(num int) mcp.ResourceHandler {
	return func(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
		return s.handleReadArticle(num)
	}
}

// handleReadArticle renders an article as markdown, sections in
// reading order.
func (s *Server) handleReadArticle(num int) (*mcp.ReadResourceResult, error) {
	stack := s.currentStack()
	if stack == nil {
		return nil, MapError(ErrNoGeneration)
	}

	chunks := stack.Snapshot.Chunks.Article(num)
	if len(chunks) == 0 {
		return nil, NewResourceNotFoundError(articleURI(num))
	}

	heading := fmt.Sprintf("Article %d", num)
	if title, ok := stack.Snapshot.Manifest.ArticleTitle(num); ok && title != "" {
		heading = fmt.Sprintf("Article %d: %s", num, title)
	} else if num == 0 {
		heading = "Letters of Understanding"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", heading)
	for _, c := range chunks {
		fmt.Fprintf(&b, "## %s\n\n%s\n\n", c.Citation, c.Content)
	}

	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{
			{
				URI:      articleURI(num),
				MIMEType: "text/markdown",
				Text:     b.String(),
			},
		},
	}, nil
}

// articleURI builds the resource URI for an article number.
func articleURI(num int) string {
	return fmt.Sprintf("contract://article/%d", num)
}

// QueryMetricsOutput is the JSON structure for the query_metrics resource.
type QueryMetricsOutput struct {
	Summary           QueryMetricsSummary   `json:"summary"`
	IntentCounts      map[string]int64      `json:"intent_counts"`
	TopTerms          []telemetry.TermCount `json:"top_terms"`
	ZeroResultQueries []string              `json:"zero_result_queries"`
	LatencyBuckets    map[string]int64      `json:"latency_buckets"`
}

// QueryMetricsSummary provides overview statistics.
type QueryMetricsSummary struct {
	TotalQueries  int64   `json:"total_queries"`
	TimePeriod    string  `json:"time_period"`
	ZeroResultPct float64 `json:"zero_result_pct"`
}

// registerQueryMetricsResource registers the query_metrics resource.
func (s *Server) registerQueryMetricsResource() {
	s.mcp.AddResource(
		&mcp.Resource{
			Name:        "query_metrics",
			URI:         "steward://query_metrics",
			Description: "Session query telemetry: intents, top terms, zero-result questions, latency",
			MIMEType:    "application/json",
		},
		s.makeQueryMetricsHandler(),
	)
}

// makeQueryMetricsHandler creates a handler for the query_metrics resource.
func (s *Server) makeQueryMetricsHandler() mcp.ResourceHandler {
	return func(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
		s.mu.RLock()
		metrics := s.metrics
		s.mu.RUnlock()

		if metrics == nil {
			return nil, NewResourceNotFoundError("steward://query_metrics")
		}

		snapshot := metrics.Snapshot()

		output := QueryMetricsOutput{
			Summary: QueryMetricsSummary{
				TotalQueries:  snapshot.TotalQueries,
				TimePeriod:    "session",
				ZeroResultPct: snapshot.ZeroResultPercent(),
			},
			IntentCounts:      snapshot.IntentCounts,
			TopTerms:          snapshot.TopTerms,
			ZeroResultQueries: snapshot.ZeroResultQueries,
			LatencyBuckets:    make(map[string]int64, len(snapshot.LatencyCounts)),
		}
		for bucket, count := range snapshot.LatencyCounts {
			output.LatencyBuckets[string(bucket)] = count
		}

		content, err := json.MarshalIndent(output, "", "  ")
		if err != nil {
			return nil, MapError(err)
		}

		return &mcp.ReadResourceResult{
			Contents: []*mcp.ResourceContents{
				{
					URI:      "steward://query_metrics",
					MIMEType: "application/json",
					Text:     string(content),
				},
			},
		}, nil
	}
}
