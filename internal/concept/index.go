// Package concept maps worker vocabulary onto contract articles.
// Enrichment attaches worker questions and alternative names to each
// chunk; this index aggregates them per article so a query phrased in
// breakroom language ("when do I get my ten?") can reach the article
// that never uses those words, without a runtime model call.
package concept

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/shopsteward/steward/internal/contract"
)

// ArticleEntry aggregates one article's bridge vocabulary.
type ArticleEntry struct {
	Title            string   `json:"title"`
	WorkerQuestions  []string `json:"all_worker_questions"`
	AlternativeNames []string `json:"all_alternative_names"`
	ChunkIDs         []string `json:"chunk_ids"`
}

// Index is the persisted concept index. Articles are keyed by their
// number as a string so the JSON shape stays map-like.
type Index struct {
	Articles           map[string]*ArticleEntry `json:"articles"`
	ConceptToArticles  map[string][]int         `json:"concept_to_articles"`
	QuestionToArticles map[string][]int         `json:"question_to_articles"`
}

// Build aggregates enriched chunks into a concept index. Chunks
// without an article number (letters of understanding, the document
// fallback) are skipped.
func Build(chunks []*contract.Chunk) *Index {
	ix := &Index{
		Articles:           make(map[string]*ArticleEntry),
		ConceptToArticles:  make(map[string][]int),
		QuestionToArticles: make(map[string][]int),
	}

	questions := make(map[string]map[int]bool)
	names := make(map[string]map[int]bool)
	perArticle := make(map[int]*articleAccum)

	for _, c := range chunks {
		if c.ArticleNum == 0 {
			continue
		}
		acc := perArticle[c.ArticleNum]
		if acc == nil {
			acc = &articleAccum{
				questions: make(map[string]bool),
				names:     make(map[string]bool),
			}
			perArticle[c.ArticleNum] = acc
		}
		if acc.title == "" && c.ArticleTitle != "" {
			acc.title = c.ArticleTitle
		}
		if c.ChunkID != "" {
			acc.chunkIDs = append(acc.chunkIDs, c.ChunkID)
		}
		for _, q := range c.WorkerQuestions {
			q = strings.ToLower(strings.TrimSpace(q))
			if q == "" {
				continue
			}
			acc.questions[q] = true
			addTo(questions, q, c.ArticleNum)
		}
		for _, name := range c.AlternativeNames {
			name = strings.ToLower(strings.TrimSpace(name))
			if name == "" {
				continue
			}
			acc.names[name] = true
			addTo(names, name, c.ArticleNum)
		}
	}

	for num, acc := range perArticle {
		ix.Articles[strconv.Itoa(num)] = &ArticleEntry{
			Title:            acc.title,
			WorkerQuestions:  sortedKeys(acc.questions),
			AlternativeNames: sortedKeys(acc.names),
			ChunkIDs:         acc.chunkIDs,
		}
	}
	ix.ConceptToArticles = flatten(names)
	ix.QuestionToArticles = flatten(questions)
	return ix
}

type articleAccum struct {
	title     string
	chunkIDs  []string
	questions map[string]bool
	names     map[string]bool
}

func addTo(m map[string]map[int]bool, key string, article int) {
	if m[key] == nil {
		m[key] = make(map[int]bool)
	}
	m[key][article] = true
}

func sortedKeys(set map[string]bool) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func flatten(m map[string]map[int]bool) map[string][]int {
	out := make(map[string][]int, len(m))
	for key, set := range m {
		nums := make([]int, 0, len(set))
		for n := range set {
			nums = append(nums, n)
		}
		sort.Ints(nums)
		out[key] = nums
	}
	return out
}

// ArticlesByConcept scores articles by how strongly the query matches
// their alternative names: 3 for a phrase hit inside the query, 2 for
// an exact word, 1 for a partial word overlap. Matches from multiple
// concepts accumulate. Results are sorted strongest first.
func (ix *Index) ArticlesByConcept(query string) []int {
	if ix == nil || len(ix.ConceptToArticles) == 0 {
		return nil
	}
	lower := strings.ToLower(query)
	words := fieldSet(lower)

	scores := make(map[int]int)
	for concept, articles := range ix.ConceptToArticles {
		var pts int
		switch {
		case strings.Contains(lower, concept):
			pts = 3
		case words[concept]:
			pts = 2
		case partialOverlap(concept, words):
			pts = 1
		}
		if pts == 0 {
			continue
		}
		for _, art := range articles {
			scores[art] += pts
		}
	}
	return rankInts(scores)
}

// ArticlesByQuestion scores articles by word-overlap (Jaccard)
// similarity between the query and their aggregated worker questions,
// keeping the best question per article and dropping scores at or
// below 0.1.
func (ix *Index) ArticlesByQuestion(query string) []int {
	if ix == nil || len(ix.QuestionToArticles) == 0 {
		return nil
	}
	words := fieldSet(strings.ToLower(query))

	scores := make(map[int]float64)
	for question, articles := range ix.QuestionToArticles {
		qwords := fieldSet(question)
		inter, union := overlap(words, qwords)
		if union == 0 || inter == 0 {
			continue
		}
		sim := float64(inter) / float64(union)
		for _, art := range articles {
			if sim > scores[art] {
				scores[art] = sim
			}
		}
	}

	kept := make(map[int]float64, len(scores))
	for art, s := range scores {
		if s > 0.1 {
			kept[art] = s
		}
	}
	return rankFloats(kept)
}

// Article returns the aggregated entry for an article number, nil when
// unknown.
func (ix *Index) Article(num int) *ArticleEntry {
	if ix == nil {
		return nil
	}
	return ix.Articles[strconv.Itoa(num)]
}

func fieldSet(s string) map[string]bool {
	set := make(map[string]bool)
	for _, w := range strings.Fields(s) {
		set[w] = true
	}
	return set
}

// partialOverlap reports whether any query word shares substring
// containment with the concept in either direction. Words under three
// characters are ignored; "a" and "i" are inside almost everything.
func partialOverlap(concept string, words map[string]bool) bool {
	for w := range words {
		if len(w) < 3 {
			continue
		}
		if strings.Contains(concept, w) || strings.Contains(w, concept) {
			return true
		}
	}
	return false
}

func overlap(a, b map[string]bool) (inter, union int) {
	union = len(b)
	for w := range a {
		if b[w] {
			inter++
		} else {
			union++
		}
	}
	return inter, union
}

func rankInts(scores map[int]int) []int {
	nums := make([]int, 0, len(scores))
	for n := range scores {
		nums = append(nums, n)
	}
	sort.Slice(nums, func(i, j int) bool {
		if scores[nums[i]] != scores[nums[j]] {
			return scores[nums[i]] > scores[nums[j]]
		}
		return nums[i] < nums[j]
	})
	return nums
}

func rankFloats(scores map[int]float64) []int {
	nums := make([]int, 0, len(scores))
	for n := range scores {
		nums = append(nums, n)
	}
	sort.Slice(nums, func(i, j int) bool {
		if scores[nums[i]] != scores[nums[j]] {
			return scores[nums[i]] > scores[nums[j]]
		}
		return nums[i] < nums[j]
	})
	return nums
}

// Save writes the index as indented JSON via a temp file and rename.
func (ix *Index) Save(path string) error {
	data, err := json.MarshalIndent(ix, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal concept index: %w", err)
	}
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("failed to write concept index: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to save concept index: %w", err)
	}
	return nil
}

// LoadIndex reads a saved concept index.
func LoadIndex(path string) (*Index, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("concept index not found: %s", path)
		}
		return nil, fmt.Errorf("failed to read concept index: %w", err)
	}
	var ix Index
	if err := json.Unmarshal(data, &ix); err != nil {
		return nil, fmt.Errorf("failed to parse concept index: %w", err)
	}
	if ix.Articles == nil {
		ix.Articles = make(map[string]*ArticleEntry)
	}
	if ix.ConceptToArticles == nil {
		ix.ConceptToArticles = make(map[string][]int)
	}
	if ix.QuestionToArticles == nil {
		ix.QuestionToArticles = make(map[string][]int)
	}
	return &ix, nil
}
