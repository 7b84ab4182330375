package chunk

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/shopsteward/steward/internal/contract"
)

func TestClean_PageArtifacts(t *testing.T) {
	text := "Section 1. VACATIONS. Employees shall receive vacation pay.\n12\n14 PUEBLO CLERKS 2022-2025\nVacation weeks are selected by seniority."

	got := Clean(text)

	assert.NotContains(t, got, "PUEBLO CLERKS")
	assert.NotContains(t, got, "\n12\n")
	assert.Contains(t, got, "vacation pay")
	assert.Contains(t, got, "selected by seniority")
}

func TestClean_FlattensWageTables(t *testing.T) {
	text := "<table><tr><th>Classification</th><th>Rate</th></tr><tr><td>Courtesy Clerk</td><td>$13.65</td></tr></table>"

	got := Clean(text)

	assert.NotContains(t, got, "<")
	assert.Contains(t, got, "Classification")
	assert.Contains(t, got, "Courtesy Clerk | | $13.65")
}

func TestClean_KeepsRevisionMarkContent(t *testing.T) {
	text := "Employees <ins>hired after January 1, 2022</ins> shall <del>not</del> receive the adjusted rate."

	got := Clean(text)

	assert.Equal(t, "Employees hired after January 1, 2022 shall not receive the adjusted rate.", got)
}

func TestClean_CollapsesWhitespace(t *testing.T) {
	text := "ARTICLE 1\n\n\n\nRECOGNITION\n---\nBody   text here."

	got := Clean(text)

	assert.Equal(t, "ARTICLE 1\n\nRECOGNITION\n\nBody text here.", got)
}

func TestUrgencyTier(t *testing.T) {
	high := []string{
		"No employee shall be discharged except for just cause.",
		"Weingarten rights apply to investigatory interviews.",
		"The Employer shall furnish protective equipment where safety requires it.",
	}
	for _, text := range high {
		assert.Equal(t, contract.UrgencyHighStakes, UrgencyTier(text), "text: %s", text)
	}

	standard := []string{
		"Vacation weeks are selected in order of department preference.",
		"The basic workweek consists of five eight-hour days.",
	}
	for _, text := range standard {
		assert.Equal(t, contract.UrgencyStandard, UrgencyTier(text), "text: %s", text)
	}
}
