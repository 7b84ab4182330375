// Package chunk turns contract markdown into citable chunks. It holds
// the text cleaner, the article/section/subsection chunker, and the
// manifest extractor that pulls contract identity out of the raw text.
package chunk

import (
	"regexp"
	"strings"

	"github.com/shopsteward/steward/internal/contract"
)

// PDF-to-markdown conversion artifacts.
var (
	// Running page headers like "14 PUEBLO CLERKS 2022-2025".
	pageMarkerRe = regexp.MustCompile(`\d+\s*[A-Z][A-Z\s]+\d{4}-\d{4}`)
	// Bare page numbers left alone on a line.
	pageNumberRe = regexp.MustCompile(`(?m)^\s*\d{1,3}\s*$`)
	ruleLineRe   = regexp.MustCompile(`(?m)^---+\s*$`)

	// HTML table scaffolding from the wage schedules. Rows become
	// lines, cells become pipe-delimited fields.
	tableTagRe = regexp.MustCompile(`(?i)</?(?:table|thead|tbody)[^>]*>`)
	rowTagRe   = regexp.MustCompile(`(?i)</?tr[^>]*>`)
	cellTagRe  = regexp.MustCompile(`(?i)</?t[hd][^>]*>`)
	editTagRe  = regexp.MustCompile(`(?i)</?(?:ins|del)>`)

	multiNewlineRe = regexp.MustCompile(`\n{3,}`)
	multiSpaceRe   = regexp.MustCompile(` {2,}`)
)

// Clean normalizes exported contract text: strips running page headers
// and stray page numbers, flattens HTML table markup into
// pipe-delimited lines, and collapses runs of whitespace. Cell
// boundaries survive so wage rows stay parseable downstream.
func Clean(text string) string {
	text = pageMarkerRe.ReplaceAllString(text, "")
	text = pageNumberRe.ReplaceAllString(text, "")
	text = ruleLineRe.ReplaceAllString(text, "")

	text = tableTagRe.ReplaceAllString(text, "")
	text = rowTagRe.ReplaceAllString(text, "\n")
	text = cellTagRe.ReplaceAllString(text, " | ")
	text = editTagRe.ReplaceAllString(text, "")

	text = multiNewlineRe.ReplaceAllString(text, "\n\n")
	text = multiSpaceRe.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}

// highStakesKeywords mark subject matter where a wrong answer costs
// someone their job or their safety. Chunks touching these route to
// the high-stakes urgency tier.
var highStakesKeywords = []string{
	"discharge", "discharged", "termination", "terminated", "fired",
	"dismissal", "discipline", "disciplinary", "suspension", "suspended",
	"harassment", "harassed", "discrimination", "discriminated",
	"retaliation", "safety", "injury", "injured", "accident", "unsafe",
	"weingarten", "representation", "just cause", "no strike", "lockout",
	"investigation",
}

// UrgencyTier classifies chunk text by subject keywords.
func UrgencyTier(text string) string {
	lower := strings.ToLower(text)
	for _, kw := range highStakesKeywords {
		if strings.Contains(lower, kw) {
			return contract.UrgencyHighStakes
		}
	}
	return contract.UrgencyStandard
}
