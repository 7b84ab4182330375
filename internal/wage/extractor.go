package wage

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// The wage appendix survives PDF-to-markdown conversion as raw HTML
// tables, so the extractor works on tags rather than markdown pipes.
var (
	appendixMarkerRe = regexp.MustCompile(`(?im)^#{0,6}\s*APPENDIX\s+A\b`)
	tableOpenRe      = regexp.MustCompile(`(?i)<table`)
	louBoundaryRe    = regexp.MustCompile(`(?m)^#{0,6}\s*(?:[A-Z][A-Z\s.,&]*\s)?LETTERS\s+OF\s+UNDERSTANDING\s*$`)

	wageRowRe     = regexp.MustCompile(`(?is)<tr[^>]*>(.*?)</tr>`)
	wageCellRe    = regexp.MustCompile(`(?i)<td[^>]*>([^<]*)</td>`)
	colspanCellRe = regexp.MustCompile(`(?i)<td\s+colspan[^>]*>([^<]+)</td>`)

	dateCellRe   = regexp.MustCompile(`^(\d{1,2})/(\d{1,2})/(\d{4})$`)
	hoursStepRe  = regexp.MustCompile(`(?i)After\s+(\d+)\s+hours?`)
	monthsStepRe = regexp.MustCompile(`(?i)After\s+(\d+)\s+months?`)
	rateValueRe  = regexp.MustCompile(`\$?([\d,]+\.?\d*)`)
)

// Extractor parses wage grids out of converted contract text.
type Extractor struct {
	contractID     string
	effectiveDates []string
}

// NewExtractor creates an extractor. effectiveDates may be nil, in
// which case the dates are harvested from the grid's own date row.
func NewExtractor(contractID string, effectiveDates []string) *Extractor {
	return &Extractor{
		contractID:     contractID,
		effectiveDates: effectiveDates,
	}
}

// Extract builds a wage table from the document. A document with no
// parseable wage grid yields a table with zero classifications, never
// an error; the caller decides whether that is worth warning about.
func (e *Extractor) Extract(content string) *Table {
	table := &Table{
		ContractID:      e.contractID,
		EffectiveDates:  append([]string(nil), e.effectiveDates...),
		Classifications: make(map[string]*Classification),
	}

	region := wageRegion(content)
	if region == "" {
		return table
	}

	var current *Classification
	flush := func() {
		if current != nil && len(current.Steps) > 0 {
			table.Classifications[current.NormalizedName] = current
		}
		current = nil
	}

	for _, row := range wageRowRe.FindAllStringSubmatch(region, -1) {
		inner := row[1]

		// A colspan cell is a classification heading spanning the grid.
		if m := colspanCellRe.FindStringSubmatch(inner); m != nil {
			name := strings.TrimSpace(m[1])
			if len(name) > 2 {
				flush()
				current = &Classification{
					Name:           name,
					NormalizedName: NormalizeName(name),
					IsManager:      isManagerName(name),
				}
				continue
			}
		}

		cells := wageCellRe.FindAllStringSubmatch(inner, -1)
		if len(cells) < 4 {
			continue
		}
		c1 := strings.TrimSpace(cells[0][1])
		c2 := strings.TrimSpace(cells[1][1])
		c3 := strings.TrimSpace(cells[2][1])
		c4 := strings.TrimSpace(cells[3][1])

		if strings.Contains(strings.ToUpper(c1), "CLASSIFICATION") || strings.Contains(c1, "Effective") {
			continue
		}
		if dateCellRe.MatchString(c2) {
			// The date row names the contract year each rate column
			// covers. It only counts before any rates are recorded.
			if len(table.EffectiveDates) == 0 {
				if dates := rowDates(c2, c3, c4); dates != nil {
					table.EffectiveDates = dates
				}
			}
			continue
		}

		r1 := parseRate(c2)
		r2 := parseRate(c3)
		r3 := parseRate(c4)
		if r1 <= 0 || r2 <= 0 || r3 <= 0 {
			continue
		}
		rates := e.ratesByDate(table, r1, r2, r3)

		if current == nil {
			// A rate row outside any colspan heading is a single-rate
			// position named in its first cell.
			name := c1
			norm := NormalizeName(name)
			table.Classifications[norm] = &Classification{
				Name:           name,
				NormalizedName: norm,
				IsManager:      isManagerName(name),
				Steps: []Step{{
					StepName: "Rate",
					Rates:    rates,
				}},
			}
			continue
		}

		step := Step{StepName: c1, Rates: rates}
		if h, ok := parseHours(c1); ok {
			step.HoursRequired = &h
		}
		if m, ok := parseMonths(c1); ok {
			step.MonthsRequired = &m
		}
		current.Steps = append(current.Steps, step)
	}
	flush()

	return table
}

// wageRegion slices out the portion of the document holding the wage
// grids: from the Appendix A heading (or the first table when the
// heading is missing) up to the letters-of-understanding index.
func wageRegion(content string) string {
	start := -1
	if loc := appendixMarkerRe.FindStringIndex(content); loc != nil {
		start = loc[0]
	} else if loc := tableOpenRe.FindStringIndex(content); loc != nil {
		start = loc[0]
	}
	if start < 0 {
		return ""
	}
	region := content[start:]
	if loc := louBoundaryRe.FindStringIndex(region); loc != nil && loc[0] > 0 {
		region = region[:loc[0]]
	}
	return region
}

// ratesByDate keys the three rate columns by effective date, padding
// with year_N labels when the grid never states its dates.
func (e *Extractor) ratesByDate(table *Table, r1, r2, r3 float64) map[string]float64 {
	for len(table.EffectiveDates) < 3 {
		table.EffectiveDates = append(table.EffectiveDates, fmt.Sprintf("year_%d", len(table.EffectiveDates)+1))
	}
	return map[string]float64{
		table.EffectiveDates[0]: r1,
		table.EffectiveDates[1]: r2,
		table.EffectiveDates[2]: r3,
	}
}

// rowDates converts a full date row ("1/23/2022", ...) to ISO dates.
// Returns nil unless every cell parses.
func rowDates(cells ...string) []string {
	dates := make([]string, 0, len(cells))
	for _, cell := range cells {
		m := dateCellRe.FindStringSubmatch(cell)
		if m == nil {
			return nil
		}
		month, _ := strconv.Atoi(m[1])
		day, _ := strconv.Atoi(m[2])
		dates = append(dates, fmt.Sprintf("%s-%02d-%02d", m[3], month, day))
	}
	return dates
}

func isManagerName(name string) bool {
	upper := strings.ToUpper(name)
	return strings.Contains(upper, "MANAGER") || strings.Contains(upper, "HEAD")
}

func parseHours(text string) (int, bool) {
	if m := hoursStepRe.FindStringSubmatch(text); m != nil {
		n, err := strconv.Atoi(m[1])
		return n, err == nil
	}
	if strings.EqualFold(strings.TrimSpace(text), "start") {
		return 0, true
	}
	return 0, false
}

func parseMonths(text string) (int, bool) {
	if m := monthsStepRe.FindStringSubmatch(text); m != nil {
		n, err := strconv.Atoi(m[1])
		return n, err == nil
	}
	if strings.EqualFold(strings.TrimSpace(text), "start") {
		return 0, true
	}
	return 0, false
}

// parseRate pulls a dollar figure out of a cell, zero when absent.
func parseRate(text string) float64 {
	m := rateValueRe.FindStringSubmatch(text)
	if m == nil {
		return 0
	}
	v, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", ""), 64)
	if err != nil {
		return 0
	}
	return v
}
