package telemetry

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// zeroResultCap bounds the zero_result_queries table; the oldest rows
// are trimmed as new ones arrive.
const zeroResultCap = 100

// SQLiteStore persists query metrics in a local SQLite database. It
// owns the connection; Close releases it.
type SQLiteStore struct {
	db *sql.DB
}

var _ MetricsStore = (*SQLiteStore)(nil)

// OpenStore opens the metrics database at path, creating the file and
// schema on first use.
func OpenStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open metrics db: %w", err)
	}

	// Single connection sidesteps SQLite writer contention. The
	// pragmas run as statements because the pure-Go driver ignores
	// DSN parameters.
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("set pragma: %w", err)
		}
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &SQLiteStore{db: db}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	-- Daily counts per intent type; query_type holds the intent label
	-- (contract, wage, high_stakes, unknown).
	CREATE TABLE IF NOT EXISTS query_type_stats (
		date       TEXT NOT NULL,
		query_type TEXT NOT NULL,
		count      INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (date, query_type)
	);

	-- Query term frequencies.
	CREATE TABLE IF NOT EXISTS query_terms (
		term      TEXT PRIMARY KEY,
		count     INTEGER NOT NULL DEFAULT 1,
		last_seen TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_query_terms_count ON query_terms(count DESC);

	-- Recent queries that found nothing, capped at 100.
	CREATE TABLE IF NOT EXISTS zero_result_queries (
		id        INTEGER PRIMARY KEY AUTOINCREMENT,
		query     TEXT NOT NULL,
		timestamp TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	-- Daily latency histogram.
	CREATE TABLE IF NOT EXISTS query_latency_stats (
		date   TEXT NOT NULL,
		bucket TEXT NOT NULL,
		count  INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (date, bucket)
	);
	`
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("create metrics schema: %w", err)
	}
	return nil
}

// SaveIntentCounts adds the given counts to the daily intent totals.
func (s *SQLiteStore) SaveIntentCounts(date string, counts map[string]int64) error {
	if len(counts) == 0 {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.Prepare(`
		INSERT INTO query_type_stats (date, query_type, count)
		VALUES (?, ?, ?)
		ON CONFLICT(date, query_type) DO UPDATE SET count = count + excluded.count
	`)
	if err != nil {
		return fmt.Errorf("prepare: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for intent, count := range counts {
		if _, err := stmt.Exec(date, intent, count); err != nil {
			return fmt.Errorf("upsert intent count: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// IntentCounts sums the per-intent totals over a date range
// (inclusive, YYYY-MM-DD).
func (s *SQLiteStore) IntentCounts(from, to string) (map[string]int64, error) {
	rows, err := s.db.Query(`
		SELECT query_type, SUM(count)
		FROM query_type_stats
		WHERE date >= ? AND date <= ?
		GROUP BY query_type
	`, from, to)
	if err != nil {
		return nil, fmt.Errorf("query intent counts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	counts := make(map[string]int64)
	for rows.Next() {
		var intent string
		var count int64
		if err := rows.Scan(&intent, &count); err != nil {
			return nil, fmt.Errorf("scan intent count: %w", err)
		}
		counts[intent] = count
	}
	return counts, rows.Err()
}

// UpsertTermCounts adds the given counts to the term frequencies.
func (s *SQLiteStore) UpsertTermCounts(terms map[string]int64) error {
	if len(terms) == 0 {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.Prepare(`
		INSERT INTO query_terms (term, count, last_seen)
		VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(term) DO UPDATE SET
			count = count + excluded.count,
			last_seen = CURRENT_TIMESTAMP
	`)
	if err != nil {
		return fmt.Errorf("prepare: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for term, count := range terms {
		if _, err := stmt.Exec(term, count); err != nil {
			return fmt.Errorf("upsert term count: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// TopTerms returns the most frequent terms, highest count first.
func (s *SQLiteStore) TopTerms(limit int) ([]TermCount, error) {
	rows, err := s.db.Query(`
		SELECT term, count
		FROM query_terms
		ORDER BY count DESC, term ASC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query top terms: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var terms []TermCount
	for rows.Next() {
		var tc TermCount
		if err := rows.Scan(&tc.Term, &tc.Count); err != nil {
			return nil, fmt.Errorf("scan term: %w", err)
		}
		terms = append(terms, tc)
	}
	return terms, rows.Err()
}

// AddZeroResultQueries appends queries to the zero-result log and
// trims it back to the cap, oldest first.
func (s *SQLiteStore) AddZeroResultQueries(queries []ZeroResultQuery) error {
	if len(queries) == 0 {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.Prepare(`
		INSERT INTO zero_result_queries (query, timestamp)
		VALUES (?, ?)
	`)
	if err != nil {
		return fmt.Errorf("prepare: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, q := range queries {
		at := q.At
		if at.IsZero() {
			at = time.Now()
		}
		if _, err := stmt.Exec(q.Query, at.UTC().Format(time.RFC3339)); err != nil {
			return fmt.Errorf("insert zero-result query: %w", err)
		}
	}

	if _, err := tx.Exec(`
		DELETE FROM zero_result_queries
		WHERE id NOT IN (
			SELECT id FROM zero_result_queries
			ORDER BY id DESC
			LIMIT ?
		)
	`, zeroResultCap); err != nil {
		return fmt.Errorf("trim zero-result queries: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// ZeroResultQueries returns recent zero-result queries, newest first.
func (s *SQLiteStore) ZeroResultQueries(limit int) ([]string, error) {
	rows, err := s.db.Query(`
		SELECT query
		FROM zero_result_queries
		ORDER BY id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query zero-result queries: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var queries []string
	for rows.Next() {
		var q string
		if err := rows.Scan(&q); err != nil {
			return nil, fmt.Errorf("scan zero-result query: %w", err)
		}
		queries = append(queries, q)
	}
	return queries, rows.Err()
}

// SaveLatencyCounts adds the given counts to the daily latency
// histogram.
func (s *SQLiteStore) SaveLatencyCounts(date string, counts map[LatencyBucket]int64) error {
	if len(counts) == 0 {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.Prepare(`
		INSERT INTO query_latency_stats (date, bucket, count)
		VALUES (?, ?, ?)
		ON CONFLICT(date, bucket) DO UPDATE SET count = count + excluded.count
	`)
	if err != nil {
		return fmt.Errorf("prepare: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for bucket, count := range counts {
		if _, err := stmt.Exec(date, string(bucket), count); err != nil {
			return fmt.Errorf("upsert latency count: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// LatencyCounts sums the histogram over a date range (inclusive,
// YYYY-MM-DD).
func (s *SQLiteStore) LatencyCounts(from, to string) (map[LatencyBucket]int64, error) {
	rows, err := s.db.Query(`
		SELECT bucket, SUM(count)
		FROM query_latency_stats
		WHERE date >= ? AND date <= ?
		GROUP BY bucket
	`, from, to)
	if err != nil {
		return nil, fmt.Errorf("query latency counts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	counts := make(map[LatencyBucket]int64)
	for rows.Next() {
		var bucket string
		var count int64
		if err := rows.Scan(&bucket, &count); err != nil {
			return nil, fmt.Errorf("scan latency count: %w", err)
		}
		counts[LatencyBucket(bucket)] = count
	}
	return counts, rows.Err()
}

// Report is the aggregate view rendered by the stats command.
type Report struct {
	From              string                  `json:"from"`
	To                string                  `json:"to"`
	IntentCounts      map[string]int64        `json:"intent_counts"`
	TotalQueries      int64                   `json:"total_queries"`
	TopTerms          []TermCount             `json:"top_terms"`
	ZeroResultQueries []string                `json:"zero_result_queries"`
	LatencyCounts     map[LatencyBucket]int64 `json:"latency_counts"`
}

// Report assembles the persisted aggregates between two dates
// (inclusive, YYYY-MM-DD). Terms and zero-result queries are not
// date-scoped; the limits bound how many come back.
func (s *SQLiteStore) Report(from, to string, termLimit, zeroLimit int) (*Report, error) {
	intents, err := s.IntentCounts(from, to)
	if err != nil {
		return nil, err
	}
	terms, err := s.TopTerms(termLimit)
	if err != nil {
		return nil, err
	}
	zero, err := s.ZeroResultQueries(zeroLimit)
	if err != nil {
		return nil, err
	}
	latencies, err := s.LatencyCounts(from, to)
	if err != nil {
		return nil, err
	}

	var total int64
	for _, n := range intents {
		total += n
	}

	return &Report{
		From:              from,
		To:                to,
		IntentCounts:      intents,
		TotalQueries:      total,
		TopTerms:          terms,
		ZeroResultQueries: zero,
		LatencyCounts:     latencies,
	}, nil
}

// Close releases the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
