package logging

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
)

// LogEntry is one parsed line of a JSON log file.
type LogEntry struct {
	Time    time.Time
	Level   string
	Msg     string
	Source  string // which file the line came from: "server" or "ingest"
	Attrs   map[string]any
	Raw     string
	IsValid bool // false for lines that are not JSON (panic traces, stray prints)
}

// ViewerConfig holds the filters and display options for a Viewer.
type ViewerConfig struct {
	Level      string         // minimum level to show: debug, info, warn, error
	Pattern    *regexp.Regexp // raw-line match, applied after the level filter
	NoColor    bool
	ShowSource bool // prefix each line with its [source] label
}

// Viewer reads, filters, and renders steward's JSON logs for the
// `steward logs` command.
type Viewer struct {
	cfg ViewerConfig
	out io.Writer
}

func NewViewer(cfg ViewerConfig, out io.Writer) *Viewer {
	return &Viewer{cfg: cfg, out: out}
}

const (
	followPoll   = 100 * time.Millisecond
	maxLineBytes = 1 << 20
)

// Tail returns the last n entries of one log file that pass the
// configured filters. Filtering happens before trimming, so
// `--level error -n 50` means the last 50 errors, not the errors
// within the last 50 lines.
func (v *Viewer) Tail(path string, n int) ([]LogEntry, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening log file: %w", err)
	}
	defer func() { _ = file.Close() }()

	source := sourceFromPath(path)
	var entries []LogEntry

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		entry := v.parseLine(line, source)
		if v.matches(entry) {
			entries = append(entries, entry)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading log file: %w", err)
	}
	return lastN(entries, n), nil
}

// TailMultiple merges the tails of several log files into one timeline
// ordered by timestamp. Files that cannot be read are skipped; a source
// that has never logged is not an error for the merged view.
func (v *Viewer) TailMultiple(paths []string, n int) ([]LogEntry, error) {
	var merged []LogEntry
	for _, path := range paths {
		entries, err := v.Tail(path, n)
		if err != nil {
			continue
		}
		merged = append(merged, entries...)
	}
	sort.Slice(merged, func(i, j int) bool {
		return merged[i].Time.Before(merged[j].Time)
	})
	return lastN(merged, n), nil
}

func lastN(entries []LogEntry, n int) []LogEntry {
	if n >= 0 && len(entries) > n {
		return entries[len(entries)-n:]
	}
	return entries
}

// Follow streams new entries from one log file until ctx is cancelled.
func (v *Viewer) Follow(ctx context.Context, path string, entries chan<- LogEntry) error {
	return v.followFile(ctx, path, sourceFromPath(path), entries)
}

// FollowMultiple streams new entries from several log files into one
// channel until ctx is cancelled. Ordering across files is arrival
// order, not timestamp order.
func (v *Viewer) FollowMultiple(ctx context.Context, paths []string, entries chan<- LogEntry) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, path := range paths {
		g.Go(func() error {
			return v.followFile(ctx, path, sourceFromPath(path), entries)
		})
	}
	return g.Wait()
}

// tailHandle pairs an open log file with its buffered reader.
type tailHandle struct {
	file   *os.File
	reader *bufio.Reader
}

func openTail(path string, fromEnd bool) (*tailHandle, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	if fromEnd {
		if _, err := f.Seek(0, io.SeekEnd); err != nil {
			_ = f.Close()
			return nil, err
		}
	}
	return &tailHandle{file: f, reader: bufio.NewReader(f)}, nil
}

// stale reports whether path no longer names the open file, which is
// what rotation looks like from the reader's side.
func (t *tailHandle) stale(path string) bool {
	cur, err := t.file.Stat()
	if err != nil {
		return true
	}
	disk, err := os.Stat(path)
	if err != nil {
		return true
	}
	return !os.SameFile(cur, disk)
}

// followFile tails one file, sending matching entries until ctx is
// cancelled. A missing file is retried rather than treated as an
// error, so following works before the first run has logged anything
// and keeps working across rotation.
func (v *Viewer) followFile(ctx context.Context, path, source string, entries chan<- LogEntry) error {
	// Only lines written after the follow starts matter, so the first
	// open seeks to the end. Reopens after rotation read from the top.
	t, err := openTail(path, true)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("following %s: %w", path, err)
	}
	defer func() {
		if t != nil {
			_ = t.file.Close()
		}
	}()

	ticker := time.NewTicker(followPoll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		if t == nil {
			t, err = openTail(path, false)
			if err != nil {
				continue
			}
		}

		for {
			line, err := t.reader.ReadString('\n')
			if err != nil {
				break
			}
			line = strings.TrimRight(line, "\n")
			if line == "" {
				continue
			}
			entry := v.parseLine(line, source)
			if !v.matches(entry) {
				continue
			}
			select {
			case entries <- entry:
			case <-ctx.Done():
				return nil
			}
		}

		if t.stale(path) {
			_ = t.file.Close()
			t = nil
		}
	}
}

// sourceFromPath names the source by file: steward.log is the server,
// ingest.log the ingestion pipeline. Anything else (a --file override)
// is labelled by its stem.
func sourceFromPath(path string) string {
	base := filepath.Base(path)
	switch {
	case strings.HasPrefix(base, "ingest"):
		return "ingest"
	case strings.HasPrefix(base, "steward"):
		return "server"
	default:
		return strings.TrimSuffix(base, filepath.Ext(base))
	}
}

// parseLine decodes one slog JSON line. Lines that are not JSON are
// kept raw and unfiltered by level, so panic traces and stray prints
// never disappear from view.
func (v *Viewer) parseLine(line, source string) LogEntry {
	entry := LogEntry{Raw: line, Source: source}

	var fields map[string]any
	if err := json.Unmarshal([]byte(line), &fields); err != nil {
		return entry
	}
	entry.IsValid = true

	if s, ok := fields["time"].(string); ok {
		entry.Time, _ = time.Parse(time.RFC3339Nano, s)
	}
	entry.Level, _ = fields["level"].(string)
	entry.Msg, _ = fields["msg"].(string)

	delete(fields, "time")
	delete(fields, "level")
	delete(fields, "msg")
	if len(fields) > 0 {
		entry.Attrs = fields
	}
	return entry
}

func (v *Viewer) matches(entry LogEntry) bool {
	if v.cfg.Level != "" && entry.IsValid &&
		LevelFromString(entry.Level) < LevelFromString(v.cfg.Level) {
		return false
	}
	if v.cfg.Pattern != nil && !v.cfg.Pattern.MatchString(entry.Raw) {
		return false
	}
	return true
}

// FormatEntry renders one entry as a single terminal line. Attributes
// print in sorted key order so repeated runs are diffable.
func (v *Viewer) FormatEntry(entry LogEntry) string {
	if !entry.IsValid {
		return entry.Raw
	}

	var b strings.Builder
	b.WriteString(entry.Time.Format("15:04:05.000"))
	b.WriteByte(' ')
	b.WriteString(v.paintLevel(entry.Level))
	if v.cfg.ShowSource && entry.Source != "" {
		b.WriteByte(' ')
		b.WriteString(v.paintSource(entry.Source))
	}
	b.WriteByte(' ')
	b.WriteString(entry.Msg)

	for _, key := range sortedKeys(entry.Attrs) {
		fmt.Fprintf(&b, " %s=%v", key, entry.Attrs[key])
	}
	return b.String()
}

// Print writes each entry to the viewer's output, one line apiece.
func (v *Viewer) Print(entries []LogEntry) {
	for _, entry := range entries {
		_, _ = fmt.Fprintln(v.out, v.FormatEntry(entry))
	}
}

func sortedKeys(attrs map[string]any) []string {
	if len(attrs) == 0 {
		return nil
	}
	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

const ansiReset = "\033[0m"

var levelColors = map[string]string{
	"debug": "\033[90m",
	"info":  "\033[32m",
	"warn":  "\033[33m",
	"error": "\033[31m",
}

var sourceColors = map[string]string{
	"server": "\033[36m",
	"ingest": "\033[35m",
}

func (v *Viewer) paintLevel(level string) string {
	label := fmt.Sprintf("%-5.5s", strings.ToUpper(level))
	if v.cfg.NoColor {
		return label
	}
	key := strings.ToLower(level)
	if key == "warning" {
		key = "warn"
	}
	color, ok := levelColors[key]
	if !ok {
		return label
	}
	return color + label + ansiReset
}

func (v *Viewer) paintSource(source string) string {
	label := "[" + source + "]"
	if v.cfg.NoColor {
		return label
	}
	color, ok := sourceColors[source]
	if !ok {
		color = "\033[90m"
	}
	return color + label + ansiReset
}
