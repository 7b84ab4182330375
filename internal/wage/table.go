// Package wage turns the Appendix A wage grids into a deterministic
// lookup table. Wage questions get answered from structured data, not
// from retrieval: a member asking "what should I be making" deserves
// the number printed in the contract, keyed by classification,
// progression step, and contract year.
package wage

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"
)

// Step is one rung of a classification's wage progression. Exactly one
// of HoursRequired or MonthsRequired is set for progression steps;
// both are nil for single-rate positions and both are zero for the
// starting step.
type Step struct {
	StepName       string             `json:"step_name"`
	HoursRequired  *int               `json:"hours_required"`
	MonthsRequired *int               `json:"months_required"`
	Rates          map[string]float64 `json:"rates"` // effective date -> hourly rate
}

// Classification is a job title with its wage progression.
type Classification struct {
	Name           string `json:"name"`
	NormalizedName string `json:"normalized_name"`
	IsManager      bool   `json:"is_manager"`
	Steps          []Step `json:"steps"`
}

// Table is the full wage structure for one contract.
type Table struct {
	ContractID      string                     `json:"contract_id"`
	EffectiveDates  []string                   `json:"effective_dates"` // ISO dates, oldest first
	Classifications map[string]*Classification `json:"classifications"`
}

// Info is a single resolved wage answer.
type Info struct {
	Classification string  `json:"classification"`
	Step           string  `json:"step"`
	Rate           float64 `json:"rate"` // 0 when the table has no rate for the date
	EffectiveDate  string  `json:"effective_date"`
	Citation       string  `json:"citation"`
}

var (
	nameSeparatorRe = regexp.MustCompile(`[/\s]+`)
	nameStripRe     = regexp.MustCompile(`[^A-Z0-9_]`)
)

// NormalizeName converts a wage-table classification heading to its
// lookup key: "NON-FOOD/GM/FLORAL" becomes "nonfood_gm_floral".
func NormalizeName(name string) string {
	name = strings.ToUpper(strings.TrimSpace(name))
	name = nameSeparatorRe.ReplaceAllString(name, "_")
	name = nameStripRe.ReplaceAllString(name, "")
	return strings.ToLower(name)
}

// Lookup resolves the rate for a classification at the given
// experience level. An empty effectiveDate means the most recent
// contract year; any other date resolves to the latest rate period on
// or before it. Returns nil when the classification cannot be matched,
// even loosely.
func (t *Table) Lookup(classification string, hoursWorked, monthsEmployed int, effectiveDate string) *Info {
	if t == nil || len(t.Classifications) == 0 {
		return nil
	}
	if effectiveDate == "" {
		if len(t.EffectiveDates) > 0 {
			effectiveDate = t.EffectiveDates[len(t.EffectiveDates)-1]
		}
	} else {
		effectiveDate = t.resolveDate(effectiveDate)
	}

	norm := NormalizeName(classification)
	class, ok := t.Classifications[norm]
	if !ok {
		// Loose match, scanned in sorted key order so ties resolve the
		// same way every run.
		keys := make([]string, 0, len(t.Classifications))
		for k := range t.Classifications {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if strings.Contains(k, norm) || strings.Contains(norm, k) {
				class = t.Classifications[k]
				break
			}
		}
		if class == nil {
			return nil
		}
	}
	if len(class.Steps) == 0 {
		return nil
	}

	// Walk the progression; the last step the member qualifies for wins.
	applicable := class.Steps[0]
	for _, step := range class.Steps {
		switch {
		case step.HoursRequired != nil:
			if hoursWorked >= *step.HoursRequired {
				applicable = step
			}
		case step.MonthsRequired != nil:
			if monthsEmployed >= *step.MonthsRequired {
				applicable = step
			}
		}
	}

	return &Info{
		Classification: class.Name,
		Step:           applicable.StepName,
		Rate:           applicable.Rates[effectiveDate],
		EffectiveDate:  effectiveDate,
		Citation:       "Appendix A",
	}
}

// resolveDate maps a requested date onto the rate period covering it:
// an exact posted date wins, otherwise the latest posted date on or
// before the request, since each rate runs until the next takes
// effect. ISO dates compare lexicographically, so no time parsing is
// needed; a request predating every posted period stays as given and
// resolves to no published rate.
func (t *Table) resolveDate(requested string) string {
	best := ""
	for _, d := range t.EffectiveDates {
		if d == requested {
			return d
		}
		if d <= requested && d > best {
			best = d
		}
	}
	if best != "" {
		return best
	}
	return requested
}

// Names returns the classification lookup keys in sorted order.
func (t *Table) Names() []string {
	names := make([]string, 0, len(t.Classifications))
	for k := range t.Classifications {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Save writes the table as indented JSON via a temp file and rename,
// so readers never see a partial write.
func (t *Table) Save(path string) error {
	data, err := json.MarshalIndent(t, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal wage table: %w", err)
	}
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("failed to write wage table: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to save wage table: %w", err)
	}
	return nil
}

// LoadTable reads a saved wage table.
func LoadTable(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("wage table not found: %s", path)
		}
		return nil, fmt.Errorf("failed to read wage table: %w", err)
	}
	var t Table
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("failed to parse wage table: %w", err)
	}
	if t.Classifications == nil {
		t.Classifications = make(map[string]*Classification)
	}
	return &t, nil
}
