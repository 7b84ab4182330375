package mcp

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/shopsteward/steward/internal/config"
	"github.com/shopsteward/steward/internal/index"
	"github.com/shopsteward/steward/internal/search"
	"github.com/shopsteward/steward/internal/telemetry"
	"github.com/shopsteward/steward/pkg/version"
)

// maxTopK bounds the per-request result count.
const maxTopK = 25

// Server is the MCP server for steward. It answers contract questions
// over the currently published index generation and swaps to a new
// generation between requests when one is published.
type Server struct {
	mcp    *mcp.Server
	config *config.Config
	logger *slog.Logger

	mu      sync.RWMutex
	stack   *index.QueryStack
	metrics *telemetry.Collector
}

// NewServer creates the MCP server. stack may be nil when no contract
// has been ingested yet; tools then answer with a no-generation error
// until SwapStack installs one.
func NewServer(stack *index.QueryStack, cfg *config.Config, logger *slog.Logger) (*Server, error) {
	if cfg == nil {
		cfg = config.NewConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		config: cfg,
		logger: logger,
		stack:  stack,
	}

	s.mcp = mcp.NewServer(
		&mcp.Implementation{
			Name:    "steward",
			Version: version.Version,
		},
		nil, // ServerOptions - capabilities are inferred from registered tools/resources
	)

	s.registerTools()
	if stack != nil {
		s.registerContractResources(stack)
	}

	return s, nil
}

// SetMetrics sets the query telemetry collector.
// When set, a query_metrics resource is registered.
func (s *Server) SetMetrics(m *telemetry.Collector) {
	s.mu.Lock()
	s.metrics = m
	s.mu.Unlock()

	if m != nil {
		s.registerQueryMetricsResource()
	}
}

// SwapStack replaces the generation the server answers from. The old
// stack is not closed here: in-flight requests may still be reading
// it, and a loaded snapshot holds no file handles, so the garbage
// collector reclaims it once the last request finishes.
func (s *Server) SwapStack(stack *index.QueryStack) {
	s.mu.Lock()
	old := s.stack
	s.stack = stack
	s.mu.Unlock()

	if stack == nil {
		return
	}
	if old != nil {
		s.logger.Info("generation swapped",
			slog.String("from", old.Snapshot.Generation),
			slog.String("to", stack.Snapshot.Generation))
	} else {
		s.logger.Info("generation loaded",
			slog.String("generation", stack.Snapshot.Generation))
	}
	s.registerContractResources(stack)
}

// currentStack pins the generation one request answers from.
func (s *Server) currentStack() *index.QueryStack {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stack
}

// MCPServer returns the underlying MCP server instance.
func (s *Server) MCPServer() *mcp.Server {
	return s.mcp
}

// Info returns the server name and version.
func (s *Server) Info() (name, ver string) {
	return "steward", version.Version
}

// registerTools registers all tools with the MCP server.
func (s *Server) registerTools() {
	s.logger.Debug("Registering MCP tools")

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name: "contract_search",
		Description: "Answer a worker's question from their collective bargaining agreement. " +
			"Returns matching provisions with citations, how the question was classified, " +
			"and the resolved pay rate for wage questions. Use this for any question about " +
			"rights, pay, scheduling, discipline, or benefits under the contract.",
	}, s.mcpContractSearchHandler)
	s.logger.Debug("Registered tool", slog.String("name", "contract_search"))

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name: "wage_lookup",
		Description: "Look up the exact pay rate for a job classification from the contract's " +
			"wage tables. Hours worked or months employed select the progression step; an " +
			"effective date selects the rate period.",
	}, s.mcpWageLookupHandler)
	s.logger.Debug("Registered tool", slog.String("name", "wage_lookup"))

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name: "get_article",
		Description: "Read a whole article of the contract, section by section, in reading " +
			"order with citations. Article 0 returns the letters of understanding. Use after " +
			"contract_search when the worker needs the full text around a provision.",
	}, s.mcpGetArticleHandler)
	s.logger.Debug("Registered tool", slog.String("name", "get_article"))

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name: "contract_info",
		Description: "Summarize the loaded contract: parties, term, article map, job " +
			"classifications, covered topics, and which index generation is live.",
	}, s.mcpContractInfoHandler)
	s.logger.Debug("Registered tool", slog.String("name", "contract_info"))

	s.logger.Info("MCP tools registered", slog.Int("count", 4))
}

// mcpContractSearchHandler is the MCP SDK handler for the contract_search tool.
func (s *Server) mcpContractSearchHandler(ctx context.Context, _ *mcp.CallToolRequest, input ContractSearchInput) (
	*mcp.CallToolResult,
	ContractSearchOutput,
	error,
) {
	start := time.Now()
	requestID := generateRequestID()

	query := strings.TrimSpace(input.Query)
	if query == "" {
		return nil, ContractSearchOutput{}, NewInvalidParamsError("query is required and must be a non-empty string")
	}

	stack := s.currentStack()
	if stack == nil {
		return nil, ContractSearchOutput{}, MapError(ErrNoGeneration)
	}

	topK := clampTopK(input.TopK, s.config.Retrieval.TopK)
	multiAngle := input.MultiAngle == nil || *input.MultiAngle

	s.logger.Info("contract_search started",
		slog.String("request_id", requestID),
		slog.String("query", query),
		slog.Int("top_k", topK),
		slog.Bool("multi_angle", multiAngle))

	opts := search.Options{
		TopK:           topK,
		Classification: input.Classification,
		HoursWorked:    input.HoursWorked,
		MonthsEmployed: input.MonthsEmployed,
	}

	var resp *search.Response
	var err error
	if multiAngle {
		resp, err = stack.Retriever.MultiAngle(ctx, query, opts)
	} else {
		resp, err = stack.Retriever.Retrieve(ctx, query, opts)
	}
	duration := time.Since(start)

	if err != nil {
		s.logger.Error("contract_search failed",
			slog.String("request_id", requestID),
			slog.Duration("duration", duration),
			slog.String("error", err.Error()))
		return nil, ContractSearchOutput{}, MapError(err)
	}

	s.recordQuery(query, resp, duration)

	output := ContractSearchOutput{
		Results:            make([]ProvisionResult, 0, len(resp.Chunks)),
		Intent:             resp.Intent,
		WageInfo:           resp.WageInfo,
		EscalationRequired: resp.EscalationRequired,
		QueryExpansions:    resp.QueryExpansions,
		SearchAngles:       resp.SearchAngles,
		Generation:         stack.Snapshot.Generation,
	}
	for _, sc := range resp.Chunks {
		if sc.Chunk != nil {
			output.Results = append(output.Results, toProvisionResult(sc))
		}
	}

	intentType := ""
	if resp.Intent != nil {
		intentType = resp.Intent.Type
	}
	s.logger.Info("contract_search completed",
		slog.String("request_id", requestID),
		slog.Duration("duration", duration),
		slog.Int("result_count", len(output.Results)),
		slog.String("intent", intentType))

	return nil, output, nil
}

// mcpWageLookupHandler is the MCP SDK handler for the wage_lookup tool.
func (s *Server) mcpWageLookupHandler(_ context.Context, _ *mcp.CallToolRequest, input WageLookupInput) (
	*mcp.CallToolResult,
	WageLookupOutput,
	error,
) {
	classification := strings.TrimSpace(input.Classification)
	if classification == "" {
		return nil, WageLookupOutput{}, NewInvalidParamsError("classification is required, e.g. 'all purpose clerk'")
	}

	stack := s.currentStack()
	if stack == nil {
		return nil, WageLookupOutput{}, MapError(ErrNoGeneration)
	}

	wages := stack.Snapshot.Wages
	if wages == nil {
		return nil, WageLookupOutput{
			Found: false,
			Note:  "this contract published without a parseable wage table",
		}, nil
	}

	info := wages.Lookup(classification, input.HoursWorked, input.MonthsEmployed, input.EffectiveDate)
	if info == nil {
		known := make([]string, 0, len(wages.Classifications))
		for _, c := range wages.Classifications {
			known = append(known, c.Name)
		}
		sort.Strings(known)
		s.logger.Info("wage_lookup miss", slog.String("classification", classification))
		return nil, WageLookupOutput{
			Found:                false,
			KnownClassifications: known,
		}, nil
	}

	s.logger.Info("wage_lookup resolved",
		slog.String("classification", info.Classification),
		slog.String("step", info.Step),
		slog.String("effective_date", info.EffectiveDate))
	return nil, WageLookupOutput{Found: true, Wage: info}, nil
}

// mcpGetArticleHandler is the MCP SDK handler for the get_article tool.
func (s *Server) mcpGetArticleHandler(_ context.Context, _ *mcp.CallToolRequest, input GetArticleInput) (
	*mcp.CallToolResult,
	GetArticleOutput,
	error,
) {
	if input.ArticleNum < 0 {
		return nil, GetArticleOutput{}, NewInvalidParamsError("article_num must be zero or positive")
	}

	stack := s.currentStack()
	if stack == nil {
		return nil, GetArticleOutput{}, MapError(ErrNoGeneration)
	}

	chunks := stack.Snapshot.Chunks.Article(input.ArticleNum)
	if len(chunks) == 0 {
		return nil, GetArticleOutput{}, NewArticleNotFoundError(input.ArticleNum)
	}

	output := GetArticleOutput{
		ArticleNum: input.ArticleNum,
		Sections:   make([]ArticleSection, 0, len(chunks)),
	}
	if title, ok := stack.Snapshot.Manifest.ArticleTitle(input.ArticleNum); ok {
		output.ArticleTitle = title
	} else {
		output.ArticleTitle = chunks[0].ArticleTitle
	}
	for _, c := range chunks {
		output.Sections = append(output.Sections, ArticleSection{
			SectionNum: c.SectionNum,
			Subsection: c.Subsection,
			Citation:   c.Citation,
			Content:    c.Content,
			Summary:    c.Summary,
		})
	}

	return nil, output, nil
}

// mcpContractInfoHandler is the MCP SDK handler for the contract_info tool.
func (s *Server) mcpContractInfoHandler(_ context.Context, _ *mcp.CallToolRequest, _ ContractInfoInput) (
	*mcp.CallToolResult,
	ContractInfoOutput,
	error,
) {
	stack := s.currentStack()
	if stack == nil {
		return nil, ContractInfoOutput{}, MapError(ErrNoGeneration)
	}

	snap := stack.Snapshot
	m := snap.Manifest

	output := ContractInfoOutput{
		ContractID:      m.ContractID,
		Employer:        m.Employer,
		UnionLocal:      m.UnionLocal,
		BargainingUnit:  m.BargainingUnit,
		TermStart:       m.TermStart,
		TermEnd:         m.TermEnd,
		TotalArticles:   m.TotalArticles,
		TotalSections:   m.TotalSections,
		Classifications: m.Classifications,
		TopicsCovered:   m.TopicsCovered,
		HasWageTable:    snap.Wages != nil,
		Generation:      snap.Generation,
		Chunks:          snap.Chunks.Count(),
	}
	for _, num := range m.ArticleNumbers() {
		title, _ := m.ArticleTitle(num)
		output.Articles = append(output.Articles, ArticleEntry{Num: num, Title: title})
	}
	if snap.Meta != nil {
		output.IngestedAt = snap.Meta.CreatedAt.UTC().Format(time.RFC3339)
		output.EmbedModel = snap.Meta.EmbedModel
	}

	return nil, output, nil
}

// recordQuery feeds one answered search into the telemetry collector.
func (s *Server) recordQuery(query string, resp *search.Response, latency time.Duration) {
	s.mu.RLock()
	m := s.metrics
	s.mu.RUnlock()
	if m == nil {
		return
	}

	intent := ""
	if resp.Intent != nil {
		intent = resp.Intent.Type
	}
	m.Record(telemetry.QueryEvent{
		Query:       query,
		Intent:      intent,
		ResultCount: len(resp.Chunks),
		Latency:     latency,
	})
}

// Serve starts the server with the specified transport.
func (s *Server) Serve(ctx context.Context, transport string) error {
	s.logger.Info("Starting MCP server",
		slog.String("transport", transport))

	switch transport {
	case "stdio":
		err := s.mcp.Run(ctx, &mcp.StdioTransport{})
		if err != nil && err != context.Canceled {
			s.logger.Error("MCP server stopped with error",
				slog.String("error", err.Error()))
		} else {
			s.logger.Info("MCP server stopped gracefully")
		}
		return err
	default:
		return fmt.Errorf("unknown transport: %s (supported: stdio)", transport)
	}
}

// Close releases server resources.
func (s *Server) Close() error {
	// The MCP server stops when its context is canceled; the stack is
	// left to the garbage collector for the same reason SwapStack does
	// not close it.
	return nil
}

// clampTopK bounds the requested result count, falling back to the
// configured default when unset.
func clampTopK(requested, def int) int {
	if requested <= 0 {
		if def > 0 {
			return def
		}
		return 5
	}
	if requested > maxTopK {
		return maxTopK
	}
	return requested
}

// generateRequestID creates a short unique request ID for log correlation.
func generateRequestID() string {
	b := make([]byte, 4)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
