package search

import (
	"regexp"
	"strings"
)

// ExpandedQuery carries a query plus the synonym expansions derived
// from it. The keyword branch consumes every expansion term; the
// vector branch consumes CombinedQuery.
type ExpandedQuery struct {
	Original      string
	Terms         []string            // deduplicated expansions, terms already in the query excluded
	SynonymsUsed  map[string][]string // trigger word or phrase -> the expansions it added
	CombinedQuery string              // original + first five expansions in parentheses
}

// synonymGroup is one cluster of interchangeable contract vocabulary.
// Group order matters: partial-match lookups take the first group that
// matches.
type synonymGroup struct {
	name  string
	terms []string
}

// Standard CBA terminology. These groups hold across grocery contracts
// regardless of local numbering.
var synonymGroups = []synonymGroup{
	{"termination", []string{
		"terminate", "terminated", "termination",
		"discharge", "discharged", "dismissal", "dismissed",
		"fire", "fired", "firing", "let go",
		"separation", "separated", "end employment",
	}},
	{"wages", []string{
		"wage", "wages", "pay", "paid", "payment",
		"rate", "rates", "salary", "compensation",
		"hourly", "earnings", "remuneration",
	}},
	{"breaks", []string{
		"break", "breaks", "rest period", "relief period",
		"lunch", "lunch break", "meal period", "meal break",
		"rest", "pause", "downtime",
	}},
	{"leave", []string{
		"leave", "time off", "absence", "vacation",
		"sick leave", "sick day", "personal day",
		"pto", "paid time off", "leave of absence",
	}},
	{"discipline", []string{
		"discipline", "disciplinary", "disciplined",
		"warning", "written warning", "verbal warning",
		"write up", "written up", "corrective action",
		"suspension", "suspended",
	}},
	{"grievance", []string{
		"grievance", "grieve", "complaint", "dispute",
		"arbitration", "arbitrate", "appeal",
		"file", "filing", "protest",
	}},
	{"seniority", []string{
		"seniority", "senior", "tenure", "length of service",
		"years of service", "time in position", "hire date",
	}},
	{"schedule", []string{
		"schedule", "scheduling", "shift", "shifts",
		"hours", "work hours", "roster", "workweek",
	}},
	{"overtime", []string{
		"overtime", "ot", "over time", "extra hours",
		"time and a half", "1.5x", "double time",
	}},
	{"representation", []string{
		"representation", "representative", "rep",
		"steward", "union steward", "union rep",
		"weingarten", "union representation",
	}},
	{"layoff", []string{
		"layoff", "lay off", "laid off", "reduction in force",
		"rif", "downsizing", "bumping", "displacement",
		"furlough", "furloughed",
	}},
	{"benefits", []string{
		"benefits", "insurance", "health insurance",
		"medical", "healthcare", "health care",
		"dental", "vision", "coverage",
	}},
	{"retroactive", []string{
		"retroactive", "retro", "back pay", "backpay",
		"retroactively", "past due", "owed",
	}},
	{"just_cause", []string{
		"just cause", "good cause", "proper cause",
		"sufficient cause", "for cause", "without cause",
	}},
}

// conceptExpansions map worker intent phrasing to the contract
// language that actually answers it.
var conceptExpansions = []struct {
	phrase string
	terms  []string
}{
	{"what are my rights", []string{"employee rights", "entitled to", "shall have the right"}},
	{"what should i do", []string{"procedure", "steps", "process", "contact steward"}},
	{"how long", []string{"days", "period", "time limit", "deadline", "within"}},
	{"how much", []string{"rate", "amount", "dollar", "per hour", "compensation"}},
	{"can i", []string{"may", "shall", "entitled", "permitted", "allowed"}},
	{"retroactive pay", []string{"retroactive", "back pay", "payment error", "corrected"}},
	{"break periods", []string{"relief period", "lunch period", "meal period", "rest period"}},
	{"terminated", []string{"discharge", "dismissal", "separation", "end of employment"}},
}

// skipWords are function words never worth expanding.
var skipWords = map[string]struct{}{
	"what": {}, "where": {}, "when": {}, "how": {}, "why": {}, "who": {}, "which": {},
	"the": {}, "are": {}, "is": {}, "was": {}, "were": {}, "be": {}, "been": {}, "being": {},
	"have": {}, "has": {}, "had": {}, "do": {}, "does": {}, "did": {}, "will": {}, "would": {},
	"could": {}, "should": {}, "may": {}, "might": {}, "must": {}, "shall": {},
	"can": {}, "get": {}, "got": {}, "for": {}, "from": {}, "with": {}, "about": {},
	"that": {}, "this": {}, "these": {}, "those": {}, "there": {}, "here": {},
	"and": {}, "but": {}, "not": {}, "you": {}, "your": {}, "my": {}, "me": {}, "i": {},
}

// termToGroup maps each group member to its group index.
var termToGroup = func() map[string]int {
	m := make(map[string]int)
	for i, g := range synonymGroups {
		for _, t := range g.terms {
			m[t] = i
		}
	}
	return m
}()

var wordRe = regexp.MustCompile(`\b\w+\b`)

// maxSynonymsPerTerm caps how many expansions one trigger contributes.
const maxSynonymsPerTerm = 3

// findSynonyms returns the rest of a term's synonym group. An exact
// member match wins; otherwise the first group with a substring match
// in either direction is used. The term must already be lowercase.
func findSynonyms(term string) []string {
	if gi, ok := termToGroup[term]; ok {
		return groupOthers(synonymGroups[gi].terms, term)
	}
	for _, g := range synonymGroups {
		for _, gt := range g.terms {
			if strings.Contains(gt, term) || strings.Contains(term, gt) {
				return groupOthers(g.terms, term)
			}
		}
	}
	return nil
}

// groupOthers returns terms minus exact matches of exclude.
func groupOthers(terms []string, exclude string) []string {
	out := make([]string, 0, len(terms))
	for _, t := range terms {
		if t != exclude {
			out = append(out, t)
		}
	}
	return out
}

// ExpandQuery expands a query with contract-domain synonyms: phrase
// concepts first, then per-word group lookups, then multi-word group
// members found in the query. Expansions are deduplicated in order and
// terms already present in the query are dropped.
func ExpandQuery(query string) ExpandedQuery {
	lower := strings.ToLower(query)
	var expanded []string
	used := make(map[string][]string)

	for _, ce := range conceptExpansions {
		if strings.Contains(lower, ce.phrase) {
			expanded = append(expanded, ce.terms...)
			used[ce.phrase] = ce.terms
		}
	}

	for _, word := range wordRe.FindAllString(lower, -1) {
		if len(word) < 3 {
			continue
		}
		if _, skip := skipWords[word]; skip {
			continue
		}
		syns := findSynonyms(word)
		if len(syns) == 0 {
			continue
		}
		if len(syns) > maxSynonymsPerTerm {
			syns = syns[:maxSynonymsPerTerm]
		}
		expanded = append(expanded, syns...)
		used[word] = syns
	}

	for _, g := range synonymGroups {
		for _, term := range g.terms {
			if !strings.Contains(term, " ") || !strings.Contains(lower, term) {
				continue
			}
			related := groupOthers(g.terms, term)
			if len(related) > maxSynonymsPerTerm {
				related = related[:maxSynonymsPerTerm]
			}
			expanded = append(expanded, related...)
			used[term] = related
		}
	}

	seen := make(map[string]struct{}, len(expanded))
	unique := make([]string, 0, len(expanded))
	for _, term := range expanded {
		lt := strings.ToLower(term)
		if _, dup := seen[lt]; dup {
			continue
		}
		if strings.Contains(lower, lt) {
			continue
		}
		seen[lt] = struct{}{}
		unique = append(unique, term)
	}

	combined := query
	if len(unique) > 0 {
		top := unique
		if len(top) > 5 {
			top = top[:5]
		}
		combined = query + " (" + strings.Join(top, " ") + ")"
	}

	return ExpandedQuery{
		Original:      query,
		Terms:         unique,
		SynonymsUsed:  used,
		CombinedQuery: combined,
	}
}
