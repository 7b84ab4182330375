// Package telemetry collects local query metrics: which intents
// workers ask with, which terms they use, which questions come back
// empty, and how long retrieval takes. Everything stays on the
// worker's machine in a small SQLite database; nothing is reported
// anywhere.
package telemetry

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// IntentUnknown labels events recorded without an intent type. The
// search classifier supplies the real labels (contract, wage,
// high_stakes).
const IntentUnknown = "unknown"

// LatencyBucket is a latency histogram bucket.
type LatencyBucket string

// Bucket bounds bracket the two retrieval paths: keyword-only queries
// land under 10ms, hybrid queries with a remote embedding call
// mostly between 100ms and 500ms.
const (
	BucketLt10   LatencyBucket = "<10ms"
	BucketLt50   LatencyBucket = "10-50ms"
	BucketLt100  LatencyBucket = "50-100ms"
	BucketLt500  LatencyBucket = "100-500ms"
	BucketGte500 LatencyBucket = ">=500ms"
)

// LatencyBuckets lists the buckets in ascending order, for rendering.
var LatencyBuckets = []LatencyBucket{
	BucketLt10, BucketLt50, BucketLt100, BucketLt500, BucketGte500,
}

// LatencyToBucket converts a duration to its histogram bucket.
func LatencyToBucket(d time.Duration) LatencyBucket {
	ms := d.Milliseconds()
	switch {
	case ms < 10:
		return BucketLt10
	case ms < 50:
		return BucketLt50
	case ms < 100:
		return BucketLt100
	case ms < 500:
		return BucketLt500
	default:
		return BucketGte500
	}
}

// QueryEvent is one recorded question.
type QueryEvent struct {
	Query       string
	Intent      string // intent type from the classifier; empty records as unknown
	ResultCount int
	Latency     time.Duration
	Timestamp   time.Time // zero means now
}

// IsZeroResult reports whether the query returned nothing.
func (e QueryEvent) IsZeroResult() bool {
	return e.ResultCount == 0
}

// ZeroResultQuery is a question that came back empty, kept so stats
// can show what the contract failed to answer.
type ZeroResultQuery struct {
	Query string
	At    time.Time
}

// CircularBuffer is a fixed-capacity FIFO: once full, each Add evicts
// the oldest entry. Safe for concurrent use.
type CircularBuffer[T any] struct {
	mu   sync.RWMutex
	buf  []T
	next int
	full bool
}

// NewCircularBuffer creates a buffer holding at most capacity items.
// Non-positive capacities default to 100.
func NewCircularBuffer[T any](capacity int) *CircularBuffer[T] {
	if capacity <= 0 {
		capacity = 100
	}
	return &CircularBuffer[T]{buf: make([]T, capacity)}
}

// Add appends an item, evicting the oldest when full.
func (b *CircularBuffer[T]) Add(item T) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf[b.next] = item
	b.next = (b.next + 1) % len(b.buf)
	if b.next == 0 {
		b.full = true
	}
}

// Items returns the contents oldest first.
func (b *CircularBuffer[T]) Items() []T {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if !b.full {
		out := make([]T, b.next)
		copy(out, b.buf[:b.next])
		return out
	}
	out := make([]T, 0, len(b.buf))
	out = append(out, b.buf[b.next:]...)
	out = append(out, b.buf[:b.next]...)
	return out
}

// Size returns the current number of items.
func (b *CircularBuffer[T]) Size() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.full {
		return len(b.buf)
	}
	return b.next
}

// Clear empties the buffer.
func (b *CircularBuffer[T]) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.next = 0
	b.full = false
}

// termRe matches lowercase word runs, mirroring the keyword index
// tokenizer.
var termRe = regexp.MustCompile(`[a-z0-9]+`)

// queryStopwords drops question scaffolding so "how much overtime pay"
// counts overtime and pay, not how and much. Words under three
// characters never reach this list.
var queryStopwords = map[string]struct{}{
	"the": {}, "and": {}, "for": {}, "are": {}, "was": {}, "can": {},
	"does": {}, "did": {}, "how": {}, "what": {}, "when": {},
	"where": {}, "why": {}, "which": {}, "who": {}, "much": {},
	"many": {}, "get": {}, "you": {}, "your": {}, "our": {},
	"they": {}, "them": {}, "their": {}, "with": {}, "have": {},
	"has": {}, "had": {}, "this": {}, "that": {}, "will": {},
	"would": {}, "should": {}, "could": {}, "there": {}, "about": {},
	"supposed": {},
}

// ExtractTerms pulls the reportable terms out of a query: lowercased
// word runs of three or more characters, minus question scaffolding.
func ExtractTerms(query string) []string {
	lower := strings.ToLower(query)
	var terms []string
	for _, w := range termRe.FindAllString(lower, -1) {
		if len(w) < 3 {
			continue
		}
		if _, drop := queryStopwords[w]; drop {
			continue
		}
		terms = append(terms, w)
	}
	return terms
}

// TermCount is a term and its frequency.
type TermCount struct {
	Term  string `json:"term"`
	Count int64  `json:"count"`
}

// Snapshot is a point-in-time view of a collector. It covers the whole
// session; flushes do not reset it.
type Snapshot struct {
	IntentCounts      map[string]int64        `json:"intent_counts"`
	TopTerms          []TermCount             `json:"top_terms"`
	ZeroResultQueries []string                `json:"zero_result_queries"`
	LatencyCounts     map[LatencyBucket]int64 `json:"latency_counts"`
	TotalQueries      int64                   `json:"total_queries"`
	ZeroResultCount   int64                   `json:"zero_result_count"`
	Since             time.Time               `json:"since"`
}

// ZeroResultPercent returns the share of queries that found nothing,
// as a percentage.
func (s *Snapshot) ZeroResultPercent() float64 {
	if s.TotalQueries == 0 {
		return 0
	}
	return float64(s.ZeroResultCount) / float64(s.TotalQueries) * 100
}

// MetricsStore persists aggregated metrics. *SQLiteStore implements
// it; the collector treats every store error as advisory.
type MetricsStore interface {
	SaveIntentCounts(date string, counts map[string]int64) error
	UpsertTermCounts(terms map[string]int64) error
	AddZeroResultQueries(queries []ZeroResultQuery) error
	SaveLatencyCounts(date string, counts map[LatencyBucket]int64) error
}

// CollectorConfig sizes the in-memory aggregates.
type CollectorConfig struct {
	TopTermsCapacity    int           // distinct terms tracked in memory (default 100)
	ZeroResultsCapacity int           // zero-result queries kept (default 100)
	FlushInterval       time.Duration // auto-flush period; 0 disables the background flush
}

// DefaultCollectorConfig returns the defaults used by the CLI and the
// MCP server.
func DefaultCollectorConfig() CollectorConfig {
	return CollectorConfig{
		TopTermsCapacity:    100,
		ZeroResultsCapacity: 100,
		FlushInterval:       time.Minute,
	}
}

// Collector aggregates query events in memory and periodically flushes
// them to a MetricsStore. Safe for concurrent use. A nil store keeps
// everything in memory only.
//
// Flushing moves deltas, not totals: each count reaches the store's
// additive upserts exactly once, so a long-running server can flush
// every minute without inflating the persisted numbers.
type Collector struct {
	mu sync.Mutex

	// Session totals, reported by Snapshot.
	intents    map[string]int64
	latencies  map[LatencyBucket]int64
	topTerms   *lru.Cache[string, int64]
	zeroRecent *CircularBuffer[string]
	total      int64
	zeroTotal  int64
	start      time.Time

	// Unflushed deltas, drained by Flush.
	pendingIntents   map[string]int64
	pendingLatencies map[LatencyBucket]int64
	pendingTerms     map[string]int64
	pendingZero      *CircularBuffer[ZeroResultQuery]

	store  MetricsStore
	cfg    CollectorConfig
	ticker *time.Ticker
	stop   chan struct{}
	closed bool
}

// NewCollector creates a collector with default configuration. A nil
// store disables persistence.
func NewCollector(store MetricsStore) *Collector {
	return NewCollectorWithConfig(store, DefaultCollectorConfig())
}

// NewCollectorWithConfig creates a collector with explicit sizing.
func NewCollectorWithConfig(store MetricsStore, cfg CollectorConfig) *Collector {
	if cfg.TopTermsCapacity <= 0 {
		cfg.TopTermsCapacity = 100
	}
	if cfg.ZeroResultsCapacity <= 0 {
		cfg.ZeroResultsCapacity = 100
	}

	topTerms, _ := lru.New[string, int64](cfg.TopTermsCapacity)
	c := &Collector{
		intents:          make(map[string]int64),
		latencies:        make(map[LatencyBucket]int64),
		topTerms:         topTerms,
		zeroRecent:       NewCircularBuffer[string](cfg.ZeroResultsCapacity),
		start:            time.Now(),
		pendingIntents:   make(map[string]int64),
		pendingLatencies: make(map[LatencyBucket]int64),
		pendingTerms:     make(map[string]int64),
		pendingZero:      NewCircularBuffer[ZeroResultQuery](cfg.ZeroResultsCapacity),
		store:            store,
		cfg:              cfg,
		stop:             make(chan struct{}),
	}

	if cfg.FlushInterval > 0 && store != nil {
		c.ticker = time.NewTicker(cfg.FlushInterval)
		go c.flushLoop()
	}
	return c
}

func (c *Collector) flushLoop() {
	for {
		select {
		case <-c.ticker.C:
			_ = c.Flush()
		case <-c.stop:
			return
		}
	}
}

// Record captures one query. Non-blocking apart from the collector
// mutex; never touches the store.
func (c *Collector) Record(event QueryEvent) {
	intent := event.Intent
	if intent == "" {
		intent = IntentUnknown
	}
	at := event.Timestamp
	if at.IsZero() {
		at = time.Now()
	}
	bucket := LatencyToBucket(event.Latency)
	terms := ExtractTerms(event.Query)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}

	c.intents[intent]++
	c.latencies[bucket]++
	c.total++

	for _, term := range terms {
		count, _ := c.topTerms.Get(term)
		c.topTerms.Add(term, count+1)
	}

	if event.IsZeroResult() {
		c.zeroTotal++
		c.zeroRecent.Add(event.Query)
	}

	if c.store == nil {
		return
	}
	c.pendingIntents[intent]++
	c.pendingLatencies[bucket]++
	for _, term := range terms {
		c.pendingTerms[term]++
	}
	if event.IsZeroResult() {
		c.pendingZero.Add(ZeroResultQuery{Query: event.Query, At: at})
	}
}

// Snapshot returns the session aggregates.
func (c *Collector) Snapshot() *Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	intents := make(map[string]int64, len(c.intents))
	for k, v := range c.intents {
		intents[k] = v
	}
	latencies := make(map[LatencyBucket]int64, len(c.latencies))
	for k, v := range c.latencies {
		latencies[k] = v
	}

	terms := make([]TermCount, 0, c.topTerms.Len())
	for _, key := range c.topTerms.Keys() {
		if count, ok := c.topTerms.Peek(key); ok {
			terms = append(terms, TermCount{Term: key, Count: count})
		}
	}
	sort.Slice(terms, func(i, j int) bool {
		if terms[i].Count != terms[j].Count {
			return terms[i].Count > terms[j].Count
		}
		return terms[i].Term < terms[j].Term
	})

	return &Snapshot{
		IntentCounts:      intents,
		TopTerms:          terms,
		ZeroResultQueries: c.zeroRecent.Items(),
		LatencyCounts:     latencies,
		TotalQueries:      c.total,
		ZeroResultCount:   c.zeroTotal,
		Since:             c.start,
	}
}

// Flush writes the unflushed deltas to the store and clears them. With
// no store configured it is a no-op. Deltas detached before a failed
// write are dropped, not retried.
func (c *Collector) Flush() error {
	if c.store == nil {
		return nil
	}

	c.mu.Lock()
	intents := c.pendingIntents
	latencies := c.pendingLatencies
	terms := c.pendingTerms
	zero := c.pendingZero.Items()
	c.pendingIntents = make(map[string]int64)
	c.pendingLatencies = make(map[LatencyBucket]int64)
	c.pendingTerms = make(map[string]int64)
	c.pendingZero.Clear()
	c.mu.Unlock()

	if len(intents) == 0 && len(latencies) == 0 && len(terms) == 0 && len(zero) == 0 {
		return nil
	}

	date := time.Now().Format("2006-01-02")
	if err := c.store.SaveIntentCounts(date, intents); err != nil {
		return fmt.Errorf("flush intent counts: %w", err)
	}
	if err := c.store.UpsertTermCounts(terms); err != nil {
		return fmt.Errorf("flush term counts: %w", err)
	}
	if err := c.store.AddZeroResultQueries(zero); err != nil {
		return fmt.Errorf("flush zero-result queries: %w", err)
	}
	if err := c.store.SaveLatencyCounts(date, latencies); err != nil {
		return fmt.Errorf("flush latency counts: %w", err)
	}
	return nil
}

// Close stops the background flush and writes whatever is pending.
// Safe to call more than once.
func (c *Collector) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	if c.ticker != nil {
		c.ticker.Stop()
		close(c.stop)
	}
	return c.Flush()
}
