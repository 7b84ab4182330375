package contract

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
)

// Manifest summarizes one parsed agreement: the parties, the article map,
// and the per-contract routing tables derived during enrichment. It is
// written next to the chunk snapshot at ingest time and consulted by the
// retrieval engine on every query.
type Manifest struct {
	// ContractID identifies the agreement, e.g. "safeway_pueblo_clerks_2022".
	ContractID string `json:"contract_id"`

	// Employer is the company party, "Unknown Employer" when not found.
	Employer string `json:"employer"`

	// UnionLocal is the union party, e.g. "UFCW Local 7".
	UnionLocal string `json:"union_local"`

	// BargainingUnit names the covered group, e.g. "Pueblo Clerks".
	BargainingUnit string `json:"bargaining_unit"`

	// TermStart and TermEnd bound the agreement term. Empty when the
	// text never states them.
	TermStart string `json:"term_start,omitempty"`
	TermEnd   string `json:"term_end,omitempty"`

	// ArticleTitles maps article number to its title-cased heading.
	ArticleTitles map[int]string `json:"article_titles"`

	TotalArticles int `json:"total_articles"`
	TotalSections int `json:"total_sections"`

	// HasAppendixA reports whether the text carries a wage appendix.
	HasAppendixA bool `json:"has_appendix_a"`

	// HasLOUs reports whether letters of understanding were found.
	HasLOUs bool `json:"has_lous"`

	// Classifications lists job titles named in the text, title-cased
	// and sorted.
	Classifications []string `json:"classifications"`

	// KeyDates holds dates that gate provisions (hire-date cutoffs,
	// effective dates), sorted.
	KeyDates []string `json:"key_dates"`

	// TopicsCovered lists topics inferred from the article headings.
	TopicsCovered []string `json:"topics_covered"`

	// QueryRouting carries the routing tables the intent classifier and
	// slang expander consult at query time.
	QueryRouting QueryRouting `json:"query_routing"`
}

// QueryRouting holds contract-specific routing tables. Universal defaults
// live in the search package; these entries override or extend them for
// one agreement.
type QueryRouting struct {
	// TopicToArticles maps a topic to the articles that govern it.
	TopicToArticles map[string][]int `json:"topic_to_articles,omitempty"`

	// ClassificationToArticles maps a job classification to the articles
	// that apply to that role specifically.
	ClassificationToArticles map[string][]int `json:"classification_to_articles,omitempty"`

	// SlangToContract maps worker phrasing to this agreement's own
	// terminology, layered over the universal slang table.
	SlangToContract map[string]string `json:"slang_to_contract,omitempty"`

	// TopicPatterns adds topic detection regexes for provisions unique
	// to this agreement, layered over the universal patterns.
	TopicPatterns map[string]string `json:"topic_patterns,omitempty"`
}

// ArticleTitle returns the heading for an article number.
func (m *Manifest) ArticleTitle(num int) (string, bool) {
	title, ok := m.ArticleTitles[num]
	return title, ok
}

// ArticleNumbers returns the known article numbers in ascending order.
func (m *Manifest) ArticleNumbers() []int {
	nums := make([]int, 0, len(m.ArticleTitles))
	for num := range m.ArticleTitles {
		nums = append(nums, num)
	}
	sort.Ints(nums)
	return nums
}

// ArticlesForTopic returns the articles governing a topic, or nil when
// the manifest has no entry for it.
func (m *Manifest) ArticlesForTopic(topic string) []int {
	return m.QueryRouting.TopicToArticles[topic]
}

// ArticlesForClassification returns the articles specific to a job
// classification, or nil when the manifest has no entry for it.
func (m *Manifest) ArticlesForClassification(class string) []int {
	return m.QueryRouting.ClassificationToArticles[class]
}

// SlangOverlay returns the contract-specific slang table. Callers merge
// it over the universal table, contract entries winning.
func (m *Manifest) SlangOverlay() map[string]string {
	return m.QueryRouting.SlangToContract
}

// TopicPatternOverlay returns the contract-specific topic regexes.
func (m *Manifest) TopicPatternOverlay() map[string]string {
	return m.QueryRouting.TopicPatterns
}

// LoadManifest reads a manifest JSON file from disk.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("manifest not found: %s", path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}

	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}
	return &m, nil
}

// Save writes the manifest as indented JSON.
// Uses atomic write (temp file + rename) so readers never observe a
// partial manifest.
func (m *Manifest) Save(path string) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal manifest: %w", err)
	}

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write manifest file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to save manifest file: %w", err)
	}
	return nil
}
