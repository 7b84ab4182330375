// Package enrich tags chunks with the metadata retrieval depends on:
// topics, affected classifications, boolean flags, cross references,
// and the worker-question / alternative-name bridges. The rule pass
// runs instantly from pattern tables and guarantees every chunk a
// baseline; the LLM pass refines on top of it.
package enrich

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/shopsteward/steward/internal/contract"
)

// articleTopics maps article numbers to their subjects. Articles with
// no stable subject stay empty and rely on content patterns alone.
var articleTopics = map[int][]string{
	1:  {"definitions"},
	2:  {"work_jurisdiction"},
	3:  {"union_security"},
	4:  {"union_security"},
	5:  {"management_rights"},
	6:  {"management_rights"},
	7:  {"job_definitions", "definitions"},
	8:  {"wages"},
	9:  {"promotions"},
	10: {"scheduling"},
	11: {"scheduling"},
	12: {"overtime"},
	13: {"sunday_premium", "premiums"},
	14: {"travel_pay"},
	15: {"night_premium", "premiums"},
	16: {"holidays", "personal_holidays"},
	17: {"vacation"},
	18: {"health_benefits"},
	19: {"holidays"},
	20: {"bereavement", "leaves"},
	21: {"scheduling"},
	22: {"jury_duty", "leaves"},
	23: {"military_leave", "leaves"},
	24: {"lunch_breaks"},
	25: {"rest_periods"},
	26: {"leaves"},
	27: {"seniority"},
	28: {"seniority"},
	29: {"layoff"},
	30: {"leaves"},
	31: {"leaves"},
	32: {"leaves"},
	33: {"leaves"},
	34: {"leaves"},
	35: {"sick_leave"},
	36: {"safety"},
	37: {"safety"},
	38: {"safety"},
	39: {"safety"},
	40: {"health_benefits"},
	41: {"health_benefits"},
	42: {"pension"},
	43: {"discipline"},
	44: {"pension"},
	45: {"union_rights"},
	46: {"grievance"},
	47: {"grievance"},
	48: {"store_closing"},
	49: {"no_strike"},
	50: {"no_strike"},
	51: {"lie_detector"},
	52: {},
	53: {},
	54: {"work_jurisdiction"},
	55: {"work_jurisdiction", "dug"},
	56: {},
	57: {},
	58: {},
}

func compileAll(patterns ...string) []*regexp.Regexp {
	res := make([]*regexp.Regexp, len(patterns))
	for i, p := range patterns {
		res[i] = regexp.MustCompile(p)
	}
	return res
}

// topicPatterns tag by content, in a fixed order so output is stable.
// The list deliberately includes routing-grade topics beyond the closed
// enrichment vocabulary (premiums, breaks, probation, term): the topic
// boost at search time matches intent topics that use those names.
var topicPatterns = []struct {
	topic    string
	patterns []*regexp.Regexp
}{
	{"wages", compileAll(`\$\d+\.\d+`, `hourly rate`, `wage rate`, `pay rate`, `per hour`, `minimum wage`)},
	{"overtime", compileAll(`overtime`, `time and a half`, `1\s*[½1/2]`, `over forty`)},
	{"scheduling", compileAll(`schedule`, `shift`, `work hours`, `posted`, `workweek`)},
	{"vacation", compileAll(`vacation`, `annual leave`, `paid time off`)},
	{"sick_leave", compileAll(`sick leave`, `illness`, `sick day`)},
	{"health_benefits", compileAll(`health trust`, `health benefit`, `medical`, `insurance`)},
	{"discipline", compileAll(`discharge`, `terminat`, `disciplin`, `just cause`, `warning`)},
	{"grievance", compileAll(`grievance`, `arbitrat`, `dispute`)},
	{"layoff", compileAll(`layoff`, `lay off`, `bumping`, `recall`, `displacement`)},
	{"seniority", compileAll(`seniority`, `years of service`, `length of service`)},
	{"dug", compileAll(`drive up`, `dug`, `personal shopper`, `clicklist`)},
	{"union_rights", compileAll(`union representative`, `steward`, `weingarten`)},
	{"premiums", compileAll(`premium`, `sunday pay`, `night pay`, `holiday pay`, `sunday premium`)},
	{"leaves", compileAll(`leave of absence`, `loa`, `family leave`, `medical leave`)},
	{"safety", compileAll(`safety`, `hazard`, `protective equipment`, `ppe`, `injury`, `labor-management`)},
	{"breaks", compileAll(`rest period`, `break`, `meal period`, `lunch`)},
	{"dress_code", compileAll(`dress code`, `uniform`, `appearance`, `grooming`)},
	{"probation", compileAll(`probation`, `trial period`, `probationary`)},
	{"term", compileAll(`term of agreement`, `effective date`, `expiration`)},
}

// classificationPatterns detect which job titles a provision names.
// Order matters: courtesy_clerk must test before broader clerk terms.
var classificationPatterns = []struct {
	class    string
	patterns []*regexp.Regexp
}{
	{"courtesy_clerk", compileAll(`courtesy clerk`, `bagger`)},
	{"head_clerk", compileAll(`head clerk`)},
	{"all_purpose_clerk", compileAll(`all purpose clerk`, `general clerk`)},
	{"cake_decorator", compileAll(`cake decorator`)},
	{"produce_manager", compileAll(`produce.*manager`)},
	{"bakery_manager", compileAll(`bakery.*manager`)},
	{"pharmacy_tech", compileAll(`pharmacy technician`, `pharmacy tech`)},
	{"non_foods_clerk", compileAll(`non.?food`, `general merchandise`)},
	{"dug_shopper", compileAll(`drive up and go`, `dug shopper`, `personal shopper`)},
	{"sanitation_clerk", compileAll(`sanitation`)},
}

var exceptionPatterns = compileAll(
	`\bexcept\b`, `\bunless\b`, `\bnotwithstanding\b`,
	`shall not apply`, `does not apply`, `excluded from`,
)

var definitionPatterns = compileAll(
	`shall (mean|be defined|have the meaning)`,
	`is defined as`, `means`, `refers to`,
	`the term .* shall`, `for purposes of this`,
)

var hireDatePatterns = compileAll(
	`hired (on or )?before`, `hired (on or )?after`,
	`employees hired prior`, `employees hired after`,
	`grandfather`,
)

var highStakesPatterns = compileAll(
	`discharge`, `terminat`, `fired`,
	`disciplin`, `suspend`, `warning`,
	`harass`, `discriminat`,
	`safety`, `injury`, `hazard`,
	`grievance`, `arbitration`,
)

// articleRefRe finds explicit article mentions; input is lowercased.
var articleRefRe = regexp.MustCompile(`article\s+(\d+)`)

// RuleEnricher tags chunks from pattern tables, no model calls.
type RuleEnricher struct{}

// NewRuleEnricher creates the rule-based tagger.
func NewRuleEnricher() *RuleEnricher { return &RuleEnricher{} }

// Enrich fills topics, applies_to, flags, cross references, and a
// first-sentence summary in place.
func (e *RuleEnricher) Enrich(c *contract.Chunk) {
	lower := strings.ToLower(c.Content)

	c.Topics = detectTopics(lower, c.ArticleNum)
	c.AppliesTo = detectClassifications(lower)
	c.IsException = matchesAny(exceptionPatterns, lower)
	c.IsDefinition = matchesAny(definitionPatterns, lower)
	c.HireDateSensitive = matchesAny(hireDatePatterns, lower)
	c.IsHighStakes = matchesAny(highStakesPatterns, lower)
	c.CrossReferences = crossReferences(lower, c.ArticleNum)
	c.Summary = firstSentenceSummary(c.Content)
}

// EnrichAll applies the rule pass to every chunk.
func (e *RuleEnricher) EnrichAll(chunks []*contract.Chunk) {
	for _, c := range chunks {
		e.Enrich(c)
	}
}

// detectTopics merges article-number topics with content-pattern hits,
// article topics first.
func detectTopics(lower string, articleNum int) []string {
	var topics []string
	seen := make(map[string]bool)
	add := func(t string) {
		if !seen[t] {
			seen[t] = true
			topics = append(topics, t)
		}
	}

	for _, t := range articleTopics[articleNum] {
		add(t)
	}
	for _, entry := range topicPatterns {
		if seen[entry.topic] {
			continue
		}
		for _, re := range entry.patterns {
			if re.MatchString(lower) {
				add(entry.topic)
				break
			}
		}
	}
	return topics
}

// detectClassifications returns the named classifications, or ["all"]
// when the provision names none.
func detectClassifications(lower string) []string {
	var classes []string
	for _, entry := range classificationPatterns {
		for _, re := range entry.patterns {
			if re.MatchString(lower) {
				classes = append(classes, entry.class)
				break
			}
		}
	}
	if len(classes) == 0 {
		return []string{"all"}
	}
	return classes
}

func matchesAny(patterns []*regexp.Regexp, lower string) bool {
	for _, re := range patterns {
		if re.MatchString(lower) {
			return true
		}
	}
	return false
}

// crossReferences collects art{N} references in document order,
// excluding the chunk's own article.
func crossReferences(lower string, articleNum int) []string {
	var refs []string
	seen := make(map[int]bool)
	for _, m := range articleRefRe.FindAllStringSubmatch(lower, -1) {
		n, err := strconv.Atoi(m[1])
		if err != nil || n == articleNum || seen[n] {
			continue
		}
		seen[n] = true
		refs = append(refs, fmt.Sprintf("art%d", n))
	}
	return refs
}

// firstSentenceSummary is the rule-pass placeholder summary: the first
// sentence capped at 100 chars. LLM enrichment replaces it.
func firstSentenceSummary(content string) string {
	first, _, _ := strings.Cut(content, ".")
	first = strings.TrimSpace(truncateRunes(first, 100))
	if first == "" {
		return ""
	}
	return first + "..."
}

func truncateRunes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	cut := n
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
