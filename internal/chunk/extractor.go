package chunk

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
	"unicode"

	"github.com/shopsteward/steward/internal/contract"
)

// Party identification. These run against the agreement's opening
// recitals ("entered into between ... and ...").
var (
	employerRes = []*regexp.Regexp{
		regexp.MustCompile(`(?i)between\s+([A-Z][A-Za-z\s,.]+(?:Inc\.|LLC|Corporation|Company))`),
		regexp.MustCompile(`(?i)employer[:\s]+([A-Z][A-Za-z\s,.]+(?:Inc\.|LLC))`),
		regexp.MustCompile(`(?i)(Safeway\s+Inc\.|Albertsons\s+LLC|King\s+Soopers|Kroger)`),
	}
	unionRes = []*regexp.Regexp{
		regexp.MustCompile(`(?i)(UFCW\s*Local\s*\d+)`),
		regexp.MustCompile(`(?i)(United\s+Food\s+(?:and|&)\s+Commercial\s+Workers\s+Local\s*\d+)`),
	}
	bargainingUnitRes = []*regexp.Regexp{
		regexp.MustCompile(`(?i)(Pueblo\s+Clerks?)`),
		regexp.MustCompile(`(?i)(Denver\s+(?:Metro\s+)?Clerks?)`),
		regexp.MustCompile(`(?i)(Colorado\s+Springs\s+Clerks?)`),
		regexp.MustCompile(`(?i)bargaining\s+unit[:\s]+([A-Za-z\s]+clerks?)`),
	}
)

// Job classifications as they appear in contract language, matched
// against lowercased text.
var classificationRes = []*regexp.Regexp{
	regexp.MustCompile(`(?:all\s*purpose\s*clerk|general\s*clerk)`),
	regexp.MustCompile(`courtesy\s*clerk`),
	regexp.MustCompile(`head\s*clerk`),
	regexp.MustCompile(`produce\s*(?:department\s*)?manager`),
	regexp.MustCompile(`bakery\s*(?:department\s*)?manager`),
	regexp.MustCompile(`cake\s*decorator`),
	regexp.MustCompile(`pharmacy\s*tech(?:nician)?`),
	regexp.MustCompile(`non[- ]?foods?\s*clerk`),
	regexp.MustCompile(`floral\s*(?:department\s*)?manager`),
	regexp.MustCompile(`meat\s*(?:cutter|clerk)`),
	regexp.MustCompile(`deli\s*clerk`),
	regexp.MustCompile(`sanitation\s*clerk`),
	regexp.MustCompile(`dug\s*shopper`),
	regexp.MustCompile(`drive\s*up\s*(?:and\s*)?go`),
}

// Date formats contracts use: "January 23, 2022", "1/23/2022",
// "2022-01-23".
var dateForms = []string{
	`(?:january|february|march|april|may|june|july|august|september|october|november|december)\s+\d{1,2},?\s*\d{4}`,
	`\d{1,2}/\d{1,2}/\d{4}`,
	`\d{4}-\d{2}-\d{2}`,
}

var (
	dateRes      []*regexp.Regexp
	termYearsRe  = regexp.MustCompile(`(?i)(?:term|effective|in\s+force)[^\n]*(\d{4})[^\n]*(\d{4})`)
	keyDateRes   []*regexp.Regexp
	whitespaceRe = regexp.MustCompile(`\s+`)
)

func init() {
	for _, form := range dateForms {
		dateRes = append(dateRes, regexp.MustCompile(`(?i)`+form))
	}
	alternation := "(" + strings.Join(dateForms, "|") + ")"
	keyDateRes = []*regexp.Regexp{
		// Eligibility cutoffs: "hired on or before January 1, 2005".
		regexp.MustCompile(`(?i)(?:hired|employed)\s+(?:on\s+or\s+)?(?:before|after|prior\s+to)\s+` + alternation),
		regexp.MustCompile(`(?i)(?:effective|as\s+of)\s+` + alternation),
	}
}

// Article title patterns, most specific first. Case-sensitive: titles
// are all-caps headings, and matching loosely here picks up
// cross-references in body text.
var articleTitleRes = []*regexp.Regexp{
	regexp.MustCompile(`#{1,2}\s*ARTICLE\s+(\d+)\s*\n#{1,2}\s*([A-Z][A-Z\s&,]+)`),
	regexp.MustCompile(`#{1,2}\s*ARTICLE\s+(\d+)\s+([A-Z][A-Z\s&,]+)`),
	regexp.MustCompile(`ARTICLE\s+(\d+)[:\s]+([A-Z][A-Z\s&,]+)`),
}

var sectionNumberRe = regexp.MustCompile(`(?i)Section\s+\*{0,2}(\d+)\*{0,2}`)

// manifestTopics maps broad coverage topics to the words that signal
// them in article titles. Checked in order so topics_covered comes out
// stable.
var manifestTopics = []struct {
	topic    string
	keywords []string
}{
	{"wages", []string{"wage", "pay", "compensation"}},
	{"scheduling", []string{"schedule", "hours", "assignment"}},
	{"vacation", []string{"vacation", "holiday", "time off"}},
	{"health_benefits", []string{"health", "benefit", "trust", "insurance"}},
	{"seniority", []string{"seniority", "layoff"}},
	{"grievance", []string{"grievance", "arbitration", "dispute"}},
	{"discipline", []string{"discharge", "discipline", "no discrimination"}},
	{"safety", []string{"safety", "protective"}},
	{"pension", []string{"pension", "retirement"}},
	{"leaves", []string{"leave", "absence", "family"}},
}

// ManifestExtractor pulls contract identity and structure out of raw
// contract markdown: the parties, the term, article titles, job
// classifications, and hire-date cutoffs. It runs before chunking so a
// manifest exists even when enrichment is skipped. Query routing
// tables are filled in later from the enriched chunks.
type ManifestExtractor struct{}

func NewManifestExtractor() *ManifestExtractor {
	return &ManifestExtractor{}
}

// Extract builds a manifest from the raw (uncleaned) contract text.
// Fields that cannot be found get stated fallbacks rather than empty
// strings, so the manifest is always presentable.
func (e *ManifestExtractor) Extract(content, contractID string) *contract.Manifest {
	lower := strings.ToLower(content)
	titles := extractArticleTitles(content)

	m := &contract.Manifest{
		ContractID:      contractID,
		Employer:        firstCapture(employerRes, content, "Unknown Employer"),
		UnionLocal:      firstCapture(unionRes, content, "Unknown Union"),
		BargainingUnit:  firstCapture(bargainingUnitRes, content, "Clerks"),
		ArticleTitles:   titles,
		TotalArticles:   len(titles),
		TotalSections:   countSections(content),
		HasAppendixA:    strings.Contains(lower, "appendix"),
		HasLOUs:         strings.Contains(lower, "letter of understanding"),
		Classifications: extractClassifications(lower),
		KeyDates:        extractKeyDates(content),
		TopicsCovered:   inferTopics(titles),
	}
	m.TermStart, m.TermEnd = extractTerm(content)
	return m
}

func firstCapture(patterns []*regexp.Regexp, text, fallback string) string {
	for _, re := range patterns {
		if m := re.FindStringSubmatch(text); m != nil {
			return strings.TrimSpace(m[1])
		}
	}
	return fallback
}

// extractTerm finds the agreement's effective window. The term line
// gate keeps stray dates elsewhere in the document from being read as
// the term.
func extractTerm(content string) (start, end string) {
	if !termYearsRe.MatchString(content) {
		return "", ""
	}
	var dates []string
	for _, re := range dateRes {
		for _, d := range re.FindAllString(content, -1) {
			dates = append(dates, d)
			if len(dates) == 2 {
				return dates[0], dates[1]
			}
		}
	}
	if len(dates) == 1 {
		return dates[0], ""
	}
	return "", ""
}

func extractArticleTitles(content string) map[int]string {
	titles := make(map[int]string)
	for _, re := range articleTitleRes {
		for _, m := range re.FindAllStringSubmatch(content, -1) {
			num, err := strconv.Atoi(m[1])
			if err != nil {
				continue
			}
			if _, ok := titles[num]; ok {
				continue
			}
			titles[num] = titleCase(headerTitle(m[2]))
		}
	}
	return titles
}

func countSections(content string) int {
	seen := make(map[string]bool)
	for _, m := range sectionNumberRe.FindAllStringSubmatch(content, -1) {
		seen[m[1]] = true
	}
	return len(seen)
}

func extractClassifications(lower string) []string {
	seen := make(map[string]bool)
	for _, re := range classificationRes {
		for _, m := range re.FindAllString(lower, -1) {
			seen[titleCase(whitespaceRe.ReplaceAllString(m, " "))] = true
		}
	}
	out := make([]string, 0, len(seen))
	for c := range seen {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// extractKeyDates collects dates attached to eligibility language.
// Hire-date cutoffs decide which wage schedule and which benefits
// apply to a member.
func extractKeyDates(content string) []string {
	seen := make(map[string]bool)
	for _, re := range keyDateRes {
		for _, m := range re.FindAllStringSubmatch(content, -1) {
			seen[m[1]] = true
		}
	}
	out := make([]string, 0, len(seen))
	for d := range seen {
		out = append(out, d)
	}
	sort.Strings(out)
	return out
}

func inferTopics(titles map[int]string) []string {
	nums := make([]int, 0, len(titles))
	for n := range titles {
		nums = append(nums, n)
	}
	sort.Ints(nums)
	var joined strings.Builder
	for _, n := range nums {
		joined.WriteString(strings.ToLower(titles[n]))
		joined.WriteString(" ")
	}
	text := joined.String()

	var topics []string
	for _, mt := range manifestTopics {
		for _, kw := range mt.keywords {
			if strings.Contains(text, kw) {
				topics = append(topics, mt.topic)
				break
			}
		}
	}
	return topics
}

// titleCase capitalizes the first letter of every word and lowercases
// the rest, including after hyphens ("NON-FOODS" becomes "Non-Foods").
func titleCase(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	prevLetter := false
	for _, r := range s {
		isLetter := unicode.IsLetter(r)
		switch {
		case isLetter && !prevLetter:
			b.WriteRune(unicode.ToUpper(r))
		case isLetter:
			b.WriteRune(unicode.ToLower(r))
		default:
			b.WriteRune(r)
		}
		prevLetter = isLetter
	}
	return b.String()
}
