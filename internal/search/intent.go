package search

import (
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"

	"github.com/shopsteward/steward/internal/contract"
)

// universalSlang maps worker phrasing to contract terminology. These
// mappings hold for any grocery CBA; per-contract terms layer on top
// from the manifest's slang_to_contract table.
var universalSlang = map[string]string{
	// Abbreviations
	"ot":   "overtime",
	"pto":  "vacation personal holiday time off",
	"fmla": "family medical leave",
	"loa":  "leave of absence",

	// Float days and floating holidays are personal holidays
	"float":            "personal holiday",
	"float day":        "personal holiday",
	"float days":       "personal holidays",
	"floater":          "personal holiday",
	"floaters":         "personal holidays",
	"floating holiday": "personal holiday",

	// Common worker terms
	"fired":      "discharge termination",
	"canned":     "discharge termination",
	"let go":     "discharge termination layoff",
	"pink slip":  "discharge termination layoff",
	"written up": "discipline warning",
	"write up":   "discipline warning",
	"writeup":    "discipline warning",

	// Scheduling
	"my schedule":     "work schedule hours",
	"when do i work":  "schedule hours",
	"shift change":    "schedule change",
	"called in":       "call in reporting pay",
	"call out":        "call in sick absence",
	"no call no show": "absence discipline",

	// Benefits
	"health insurance": "health benefits health trust",
	"medical":          "health benefits",
	"dental":           "health benefits",
	"vision":           "health benefits",
	"retirement":       "pension",

	// Pay
	"raise":           "wage increase progression",
	"bump":            "wage increase step",
	"time and a half": "overtime premium",
	"double time":     "overtime premium",
	"sunday pay":      "sunday premium",
	"night pay":       "night premium",
	"holiday pay":     "holiday premium",

	// Leave types
	"bereavement": "funeral leave",
	"maternity":   "family care leave",
	"paternity":   "family care leave",
	"jury duty":   "jury service",
	"sick time":   "sick leave",
	"sick days":   "sick leave",

	// Roles
	"cashier": "all purpose clerk",

	// Union
	"steward":       "union steward union representative",
	"rep":           "union representative steward",
	"dues":          "union dues",
	"union meeting": "union business leave",

	// Misc
	"dress code":  "uniform appearance dress",
	"uniform":     "dress code appearance",
	"break":       "rest period",
	"lunch":       "meal period",
	"tardiness":   "attendance discipline",
	"late":        "attendance tardiness",
	"late policy": "attendance discipline",
}

// classificationPatterns extract a job classification from query text.
// Order matters: courtesy and head clerk run before all-purpose because
// the bare word "clerk" matches the all-purpose pattern.
var classificationPatterns = []struct {
	name    string
	pattern *regexp.Regexp
}{
	{"courtesy_clerk", regexp.MustCompile(`courtesy\s*clerk|bagger`)},
	{"head_clerk", regexp.MustCompile(`head\s*clerk`)},
	{"all_purpose_clerk", regexp.MustCompile(`all\s*purpose\s*clerk|clerk`)},
	{"produce_manager", regexp.MustCompile(`produce\s*(department)?\s*manager`)},
	{"bakery_manager", regexp.MustCompile(`bakery\s*manager`)},
	{"cake_decorator", regexp.MustCompile(`cake\s*decorator`)},
	{"pharmacy_tech", regexp.MustCompile(`pharmacy\s*tech`)},
	{"non_foods_clerk", regexp.MustCompile(`non.?food|gm\s*clerk|general\s*merchandise`)},
}

// universalTopicPatterns detect the topic of a query from language
// alone, without article numbers. Manifest topic_patterns extend or
// override per contract.
var universalTopicPatterns = map[string]string{
	"overtime":         `overtime|over\s*time|ot|time\s*and\s*a\s*half`,
	"scheduling":       `schedul|shift|hours|when do i work`,
	"seniority":        `seniority|senior|how long|years of service`,
	"layoff":           `layoff|lay\s*off|bumping|displacement|reduction`,
	"personal_holiday": `personal\s*holiday|float\s*(day|days)?|floater|pto`,
	"vacation":         `vacation|time\s*off|holiday|personal day`,
	"sick_leave":       `sick\s*leave|sick\s*day|illness|call\s*in\s*sick`,
	"discipline":       `disciplin|warning|write\s*up|written up|tardiness|tardy|late|attendance`,
	"grievance":        `grievance|arbitration|file\s*a\s*complaint`,
	"breaks":           `break|lunch|meal\s*period|relief|rest\s*period`,
	"premiums":         `premium|night\s*pay|sunday\s*pay|sunday\s*premium`,
	"weingarten":       `weingarten|right\s*to\s*representation|union\s*rep`,
	"health_benefits":  `health\s*(benefit|insurance|coverage|care)|medical\s*benefit|eligible.*(health|benefit)|benefit.*eligible`,
	"promotion":        `promot|advance|move up|basket.*hours|credit.*hours`,
	"drive_up_go":      `drive\s*up|dug|personal\s*shopper|clicklist`,
	"probation":        `probation|probationary|trial\s*period|new\s*employee.*hours`,
	"term":             `term\s*of|contract\s*term|agreement\s*term|expir|effective\s*date`,
	"minimum_wage":     `minimum\s*wage|colorado.*wage|\$15`,
	"joint_committee":  `joint.*committee|labor.*management\s*committee`,
}

// topicPriority orders topic checks so specific topics win over generic
// ones: personal_holiday before vacation, and scheduling last because
// its pattern matches the bare word "hours".
var topicPriority = []string{
	"retirement_savings",
	"weingarten",
	"health_benefits",
	"drive_up_go",
	"personal_holiday",
	"promotion",
	"layoff",
	"sick_leave",
	"vacation",
	"overtime",
	"grievance",
	"discipline",
	"seniority",
	"premiums",
	"breaks",
	"scheduling",
}

// wageKeywords are specific phrases that mark a pay-rate question.
// Short generic words would false-positive, so these stay phrasal.
var wageKeywords = []string{
	"my pay", "my wage", "my rate", "my salary", "my hourly",
	"wage rate", "pay rate", "hourly rate", "rate of pay",
	"what do i make", "what's my pay", "what am i making",
	"how much do i make", "how much should i make", "how much will i make",
	"how much should i be making", "what should i be making", "what should i make",
	"compensation", "starting pay", "experience pay", "step", "progression",
	"appendix a",
}

// wageExcludes veto wage detection: these queries mention pay but ask
// about time off or paperwork, not rates.
var wageExcludes = []string{
	"vacation", "holiday", "sick", "time off", "pto", "personal day",
	"pay stub", "pay period", "pay check",
}

// wagePatterns catch rate questions the keyword list misses.
var wagePatterns = []*regexp.Regexp{
	regexp.MustCompile(`how much (do|does|will|would|should) .+ (make|earn|get paid|be making|be earning)`),
	regexp.MustCompile(`what (is|are|should) (my|the) (pay|wage|rate)`),
	regexp.MustCompile(`what (is|are|'s) the .+ rate of pay`),
	regexp.MustCompile(`what should i (make|be making|earn|be earning)`),
	regexp.MustCompile(`\$\d+.*hour`),
}

// activeSituationPatterns mark a high-stakes situation the worker is
// currently in. Only these set the escalation flag.
var activeSituationPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(i'?m|i am|was|been|being|getting) (just\s+)?(fired|terminated|discharged)`),
	regexp.MustCompile(`(i'?m|i am|was|been|being|getting) (disciplined|written up|suspended)`),
	regexp.MustCompile(`(i'?m|i am) being (harass|discriminat)`),
	regexp.MustCompile(`(harassing|discriminating\s+against|retaliating\s+against)\s+me`),
	regexp.MustCompile(`(my\s+)?(manager|boss|supervisor|coworker).*(harass|discriminat|retaliat)`),
	regexp.MustCompile(`(called|summoned) (into|to) (a\s+)?(meeting|office)`),
	regexp.MustCompile(`just (got|been|was) (terminated|fired|discharged|written up|suspended)`),
	regexp.MustCompile(`(manager|boss|supervisor).*(wants|asked|told|called).*(meeting|office|talk)`),
	regexp.MustCompile(`(right now|today|yesterday|just happened)`),
}

// generalHighStakesPatterns mark informational questions about
// high-stakes topics. They raise the intent without escalating.
var generalHighStakesPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(harass|harassment|harassing)`),
	regexp.MustCompile(`(discriminat|discrimination)`),
	regexp.MustCompile(`unsafe|dangerous|injury|injured`),
	regexp.MustCompile(`investigation`),
	regexp.MustCompile(`weingarten`),
	regexp.MustCompile(`(my rights|what rights).*(if|when|during).*(disciplin|fired|terminat)`),
}

// slangRule is one compiled slang mapping.
type slangRule struct {
	slang   string
	term    string
	pattern *regexp.Regexp
}

// topicRule is one compiled topic pattern.
type topicRule struct {
	topic   string
	pattern *regexp.Regexp
}

// IntentClassifier classifies worker queries and expands their slang
// into contract vocabulary. It is built once per contract from the
// manifest's routing tables layered over the universal defaults, and is
// safe for concurrent use.
type IntentClassifier struct {
	manifest *contract.Manifest
	slang    []slangRule
	topics   []topicRule

	// Manifest-routed article sets appended per intent type.
	highStakesArticles []int
	wageArticles       []int
}

// NewIntentClassifier builds a classifier for one contract. A nil
// manifest yields the universal tables with no article routing, which
// keeps degraded paths (missing generation metadata) working.
func NewIntentClassifier(m *contract.Manifest) *IntentClassifier {
	c := &IntentClassifier{manifest: m}
	c.compileSlang()
	c.compileTopics()
	if m != nil {
		c.highStakesArticles = unionArticles(
			m.ArticlesForTopic("discipline"),
			m.ArticlesForTopic("weingarten"),
			m.ArticlesForTopic("grievance"))
		c.wageArticles = unionArticles(
			m.ArticlesForTopic("wages"),
			m.ArticlesForTopic("promotion"))
	}
	return c
}

// compileSlang merges the universal slang table with the manifest
// overlay and compiles word-boundary patterns, longest key first so
// "float day" wins before "float".
func (c *IntentClassifier) compileSlang() {
	merged := make(map[string]string, len(universalSlang))
	for k, v := range universalSlang {
		merged[k] = v
	}
	if c.manifest != nil {
		for k, v := range c.manifest.SlangOverlay() {
			merged[strings.ToLower(k)] = v
		}
	}

	keys := make([]string, 0, len(merged))
	for k := range merged {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if len(keys[i]) != len(keys[j]) {
			return len(keys[i]) > len(keys[j])
		}
		return keys[i] < keys[j]
	})

	c.slang = make([]slangRule, 0, len(keys))
	for _, k := range keys {
		c.slang = append(c.slang, slangRule{
			slang:   k,
			term:    merged[k],
			pattern: regexp.MustCompile(`\b` + regexp.QuoteMeta(k) + `\b`),
		})
	}
}

// compileTopics merges universal topic patterns with the manifest
// overlay. A bad overlay pattern is skipped with a warning rather than
// poisoning the whole classifier.
func (c *IntentClassifier) compileTopics() {
	merged := make(map[string]string, len(universalTopicPatterns))
	for k, v := range universalTopicPatterns {
		merged[k] = v
	}
	if c.manifest != nil {
		for topic, src := range c.manifest.TopicPatternOverlay() {
			if _, err := regexp.Compile(src); err != nil {
				slog.Warn("invalid manifest topic pattern, skipping",
					slog.String("topic", topic),
					slog.String("error", err.Error()))
				continue
			}
			merged[topic] = src
		}
	}

	// Priority topics first, the rest alphabetically for determinism.
	seen := make(map[string]bool, len(merged))
	ordered := make([]string, 0, len(merged))
	for _, topic := range topicPriority {
		if _, ok := merged[topic]; ok {
			ordered = append(ordered, topic)
			seen[topic] = true
		}
	}
	rest := make([]string, 0, len(merged))
	for topic := range merged {
		if !seen[topic] {
			rest = append(rest, topic)
		}
	}
	sort.Strings(rest)
	ordered = append(ordered, rest...)

	c.topics = make([]topicRule, 0, len(ordered))
	for _, topic := range ordered {
		c.topics = append(c.topics, topicRule{
			topic:   topic,
			pattern: regexp.MustCompile(merged[topic]),
		})
	}
}

// ExpandSlang appends contract terminology for every slang term found
// in the query. The original text is always a prefix of the expansion:
// "do i get float days?" becomes
// "do i get float days? (personal holidays)". Returns the expanded
// query and the applied mappings as "slang -> term" strings.
func (c *IntentClassifier) ExpandSlang(query string) (string, []string) {
	lower := strings.ToLower(query)
	expanded := query
	var applied []string

	for _, rule := range c.slang {
		if !rule.pattern.MatchString(lower) {
			continue
		}
		if strings.Contains(strings.ToLower(expanded), strings.ToLower(rule.term)) {
			continue
		}
		expanded = expanded + " (" + rule.term + ")"
		applied = append(applied, rule.slang+" -> "+rule.term)
	}
	return expanded, applied
}

// Classification extracts a job classification from the query text,
// or "" when none is named.
func (c *IntentClassifier) Classification(query string) string {
	lower := strings.ToLower(query)
	for _, cp := range classificationPatterns {
		if cp.pattern.MatchString(lower) {
			return cp.name
		}
	}
	return ""
}

// Topic extracts the query's main topic, or "" when none matched.
func (c *IntentClassifier) Topic(query string) string {
	lower := strings.ToLower(query)
	for _, tr := range c.topics {
		if tr.pattern.MatchString(lower) {
			return tr.topic
		}
	}
	return ""
}

// isWageQuery reports whether the query asks about pay rates, with the
// phrases and patterns that matched. The exclusion pass runs first:
// "how much vacation pay do I get" is a vacation question.
func isWageQuery(query string) (bool, []string) {
	lower := strings.ToLower(query)
	for _, ex := range wageExcludes {
		if strings.Contains(lower, ex) {
			return false, nil
		}
	}

	var matched []string
	for _, kw := range wageKeywords {
		if strings.Contains(lower, kw) {
			matched = append(matched, kw)
		}
	}
	for _, p := range wagePatterns {
		if p.MatchString(lower) {
			matched = append(matched, "pattern:"+p.String())
		}
	}
	return len(matched) > 0, matched
}

// isHighStakes reports whether the query touches discipline, discharge,
// or similar provisions, with what matched and whether the worker is in
// an active situation (which is what gates escalation).
func isHighStakes(query string) (bool, []string, bool) {
	lower := strings.ToLower(query)
	var matched []string
	active := false

	for _, p := range activeSituationPatterns {
		if p.MatchString(lower) {
			matched = append(matched, "active:"+p.String())
			active = true
		}
	}
	for _, p := range generalHighStakesPatterns {
		if p.MatchString(lower) {
			matched = append(matched, "general:"+p.String())
		}
	}
	for _, topic := range contract.HighStakesTopics {
		if strings.Contains(lower, topic) {
			matched = append(matched, topic)
		}
	}
	return len(matched) > 0, matched, active
}

// Classify determines the intent of a query. userClassification, when
// non-empty, overrides detection from the text (it comes from the
// worker's profile). High stakes wins over wage wins over contract.
func (c *IntentClassifier) Classify(query, userClassification string) *Intent {
	classification := contract.NormalizeClassification(userClassification)
	if classification == "" {
		classification = c.Classification(query)
	}
	topic := c.Topic(query)

	var articles []int
	if c.manifest != nil {
		if topic != "" {
			articles = c.manifest.ArticlesForTopic(topic)
		}
		if classification != "" {
			articles = unionArticles(articles, c.manifest.ArticlesForClassification(classification))
		}
	}

	isWage, wageMatches := isWageQuery(query)
	isHS, hsMatches, active := isHighStakes(query)

	if isHS {
		confidence := 0.7
		if len(hsMatches) > 1 {
			confidence = 0.9
		}
		return &Intent{
			Type:               IntentHighStakes,
			Confidence:         confidence,
			Classification:     classification,
			Topic:              topic,
			RequiresEscalation: active,
			KeywordsMatched:    hsMatches,
			RelevantArticles:   unionArticles(articles, c.highStakesArticles),
		}
	}

	if isWage {
		confidence := 0.6
		if classification != "" {
			confidence = 0.8
		}
		return &Intent{
			Type:             IntentWage,
			Confidence:       confidence,
			Classification:   classification,
			Topic:            "wages",
			KeywordsMatched:  wageMatches,
			RelevantArticles: unionArticles(articles, c.wageArticles),
		}
	}

	return &Intent{
		Type:             IntentContract,
		Confidence:       0.7,
		Classification:   classification,
		Topic:            topic,
		RelevantArticles: articles,
	}
}

// unionArticles merges article lists, deduplicated and sorted.
func unionArticles(lists ...[]int) []int {
	seen := make(map[int]struct{})
	var out []int
	for _, list := range lists {
		for _, a := range list {
			if _, dup := seen[a]; dup {
				continue
			}
			seen[a] = struct{}{}
			out = append(out, a)
		}
	}
	sort.Ints(out)
	return out
}

// truncateLabel shortens s for use in an angle tag.
func truncateLabel(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// angleTag labels which search angle surfaced a chunk.
func angleTag(i int, query string) string {
	return fmt.Sprintf("angle_%d_%s", i, truncateLabel(query, 30))
}
