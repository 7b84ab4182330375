//go:build ignore

// Package main generates synthetic collective bargaining agreements for
// ingest and retrieval benchmarking.
// Usage: go run scripts/generate-test-corpus.go -contracts 10 -articles 40 -output testdata/bench
//
// Each output file is a standalone contract in the markdown layout the
// chunker expects (two-line article headers, numbered sections, letters
// of understanding, an Appendix A wage grid), sized by -articles. Feed
// one to `steward ingest <file>` to benchmark indexing at scale.
package main

import (
	"flag"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
)

var (
	numContracts = flag.Int("contracts", 10, "Number of contract files to generate")
	numArticles  = flag.Int("articles", 40, "Articles per contract")
	outputDir    = flag.String("output", "testdata/bench", "Output directory")
	seed         = flag.Int64("seed", 42, "Random seed for reproducibility")
)

var employers = []string{
	"Safeway", "Kroger", "Albertsons", "Vons", "Ralphs", "Fred Meyer",
	"QFC", "Stater Bros", "Giant Eagle", "Meijer",
}

var regions = []string{
	"Pueblo", "Denver", "Boulder", "Tacoma", "Spokane", "Portland",
	"Sacramento", "Fresno", "Tucson", "Omaha",
}

var units = []string{"Clerks", "Meat", "Deli", "Bakery", "Warehouse"}

var articleTitles = []string{
	"RECOGNITION", "UNION SECURITY", "HOURS OF WORK", "OVERTIME",
	"WAGES", "HOLIDAYS", "VACATIONS", "SICK LEAVE", "LEAVES OF ABSENCE",
	"SENIORITY", "LAYOFF AND RECALL", "DISCIPLINE AND DISCHARGE",
	"GRIEVANCE AND ARBITRATION", "HEALTH AND WELFARE", "PENSION",
	"SAFETY AND HEALTH", "STORE MEETINGS", "UNIFORMS", "REST PERIODS",
	"NIGHT PREMIUMS", "SUNDAY WORK", "PART TIME EMPLOYEES",
	"TECHNOLOGICAL CHANGE", "SUCCESSORSHIP", "NO STRIKE NO LOCKOUT",
}

var sectionTitles = []string{
	"GENERAL PROVISIONS", "ELIGIBILITY", "SCHEDULING", "PREMIUM PAY",
	"NOTICE REQUIREMENTS", "PROBATIONARY PERIOD", "POSTING", "DURATION",
	"EXCEPTIONS", "ADMINISTRATION",
}

var sectionBodies = []string{
	"Employees shall be scheduled in accordance with seniority within the store, and the Employer shall post the weekly work schedule no later than noon on Friday of the preceding week.",
	"Overtime at the rate of time and one-half the regular hourly rate shall be paid for all work performed in excess of eight hours per day or forty hours per week.",
	"No employee shall be disciplined, suspended, or discharged except for just cause, and the Union shall be notified in writing within three days of any such action.",
	"Seniority shall govern in all cases of layoff and recall provided the senior employee is qualified to perform the available work.",
	"Any grievance or dispute concerning the interpretation or application of this Agreement shall be reduced to writing within ten days of the occurrence giving rise to the grievance.",
	"Employees who work on a recognized holiday shall receive double the straight time hourly rate in addition to the holiday allowance for all hours worked.",
	"Vacation with pay shall be granted on the basis of years of continuous service, and vacation periods shall be scheduled by seniority within each department.",
	"A paid rest period of fifteen minutes shall be granted for each four hours worked, and an unpaid meal period of not less than thirty minutes on all shifts over six hours.",
	"The Employer shall deduct Union dues from the wages of each employee who has voluntarily executed a written authorization for such deduction.",
	"New employees shall be considered probationary for the first sixty days of employment, during which period they may be terminated without recourse to the grievance procedure.",
}

var classifications = []string{
	"ALL PURPOSE CLERK", "COURTESY CLERK", "HEAD CLERK", "MEAT CUTTER",
	"DELI CLERK", "BAKERY CLERK", "NIGHT CREW CHIEF",
}

var steps = []string{"Start", "After 2080 hours", "After 4160 hours"}

func main() {
	flag.Parse()
	rng := rand.New(rand.NewSource(*seed))

	if err := os.MkdirAll(*outputDir, 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "creating output directory: %v\n", err)
		os.Exit(1)
	}

	for i := 0; i < *numContracts; i++ {
		name, content := generateContract(rng)
		path := filepath.Join(*outputDir, name)
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			fmt.Fprintf(os.Stderr, "writing %s: %v\n", path, err)
			os.Exit(1)
		}
		fmt.Println(path)
	}
}

func generateContract(rng *rand.Rand) (string, string) {
	employer := employers[rng.Intn(len(employers))]
	region := regions[rng.Intn(len(regions))]
	unit := units[rng.Intn(len(units))]
	year := 2020 + rng.Intn(5)
	local := 1 + rng.Intn(2000)

	var sb strings.Builder
	fmt.Fprintf(&sb, "# %s AGREEMENT\n\n", strings.ToUpper(unit))
	fmt.Fprintf(&sb, "This Agreement is entered into between %s Inc. and UFCW Local %d, "+
		"covering %s employees in the %s area, effective January %d, %d through January %d, %d.\n\n",
		employer, local, strings.ToLower(unit), region, 1+rng.Intn(28), year, 1+rng.Intn(28), year+3)

	section := 0
	for art := 1; art <= *numArticles; art++ {
		fmt.Fprintf(&sb, "## ARTICLE %d\n## %s\n\n", art, articleTitles[(art-1)%len(articleTitles)])
		sections := 2 + rng.Intn(3)
		for s := 0; s < sections; s++ {
			section++
			fmt.Fprintf(&sb, "Section %d. %s. %s\n\n",
				section,
				sectionTitles[rng.Intn(len(sectionTitles))],
				sectionBodies[rng.Intn(len(sectionBodies))])
		}
	}

	lous := 1 + rng.Intn(4)
	for lou := 1; lou <= lous; lou++ {
		body := sectionBodies[rng.Intn(len(sectionBodies))]
		fmt.Fprintf(&sb, "## Letter of Understanding #%d\n\n"+
			"The parties agree that %s\n\n", lou, strings.ToLower(body[:1])+body[1:])
	}

	sb.WriteString("# APPENDIX A\n\nWage schedules for all classifications covered by this Agreement.\n\n")
	sb.WriteString("<table>\n<tr><td>CLASSIFICATION</td><td>Effective</td><td>Effective</td><td>Effective</td></tr>\n")
	fmt.Fprintf(&sb, "<tr><td></td><td>1/23/%d</td><td>1/22/%d</td><td>1/21/%d</td></tr>\n", year, year+1, year+2)
	for _, class := range classifications[:3+rng.Intn(len(classifications)-3)] {
		fmt.Fprintf(&sb, "<tr><td colspan=\"4\">%s</td></tr>\n", class)
		base := 13.0 + rng.Float64()*10
		for i, step := range steps {
			rate := base + float64(i)*0.80
			fmt.Fprintf(&sb, "<tr><td>%s</td><td>$%.2f</td><td>$%.2f</td><td>$%.2f</td></tr>\n",
				step, rate, rate+1.00, rate+2.00)
		}
	}
	sb.WriteString("</table>\n")

	name := fmt.Sprintf("%s %s %s %d.md", employer, region, unit, year)
	return name, sb.String()
}
