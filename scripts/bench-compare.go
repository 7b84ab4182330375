//go:build ignore

// Package main compares two `go test -bench` output files and flags
// performance regressions. Usage:
//
//	go test -bench . -benchmem ./... > current.txt
//	go run scripts/bench-compare.go baseline.txt current.txt
//
// Every benchmark present in both files is compared on ns/op, B/op,
// and allocs/op. A metric more than -threshold worse than baseline is
// a regression and the tool exits nonzero, so a CI step can gate on
// retrieval latency drifting between changes.
package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"math"
	"os"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"
)

var (
	threshold  = flag.Float64("threshold", 0.20, "Fractional slowdown that counts as a regression")
	outputJSON = flag.Bool("json", false, "Emit deltas as JSON instead of a table")
	failOnReg  = flag.Bool("fail", true, "Exit 1 when any regression is found")
	showAll    = flag.Bool("all", false, "Show unchanged benchmarks too")
)

// improveCutoff marks a delta worth celebrating in the output.
const improveCutoff = -0.10

var benchLine = regexp.MustCompile(`^(Benchmark\S+?)(?:-\d+)?\s+\d+\s+(.+)$`)

// samples maps benchmark name to metric unit to value.
type samples map[string]map[string]float64

type delta struct {
	Name     string  `json:"name"`
	Metric   string  `json:"metric"`
	Baseline float64 `json:"baseline"`
	Current  float64 `json:"current"`
	Pct      float64 `json:"percent"`
}

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [options] <baseline.txt> <current.txt>\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() != 2 {
		flag.Usage()
		os.Exit(2)
	}

	base, err := parseFile(flag.Arg(0))
	if err != nil {
		fmt.Fprintf(os.Stderr, "parsing %s: %v\n", flag.Arg(0), err)
		os.Exit(2)
	}
	curr, err := parseFile(flag.Arg(1))
	if err != nil {
		fmt.Fprintf(os.Stderr, "parsing %s: %v\n", flag.Arg(1), err)
		os.Exit(2)
	}

	deltas, regressions := compare(base, curr)
	if *outputJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(deltas); err != nil {
			fmt.Fprintf(os.Stderr, "encoding: %v\n", err)
			os.Exit(2)
		}
	} else {
		printTable(deltas, base, curr)
	}

	if regressions > 0 && *failOnReg {
		os.Exit(1)
	}
}

func parseFile(path string) (samples, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	out := make(samples)
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		m := benchLine.FindStringSubmatch(sc.Text())
		if m == nil {
			continue
		}
		metrics := make(map[string]float64)
		fields := strings.Fields(m[2])
		for i := 0; i+1 < len(fields); i += 2 {
			v, err := strconv.ParseFloat(fields[i], 64)
			if err != nil {
				continue
			}
			metrics[fields[i+1]] = v
		}
		out[m[1]] = metrics
	}
	return out, sc.Err()
}

// compare returns one delta per shared benchmark metric, worst first
// within a name, and the count of regressions.
func compare(base, curr samples) ([]delta, int) {
	names := make([]string, 0, len(curr))
	for name := range curr {
		if _, ok := base[name]; ok {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	var deltas []delta
	regressions := 0
	for _, name := range names {
		for _, metric := range []string{"ns/op", "B/op", "allocs/op"} {
			b, okB := base[name][metric]
			c, okC := curr[name][metric]
			if !okB || !okC || b == 0 {
				continue
			}
			pct := (c - b) / b
			if pct > *threshold {
				regressions++
			} else if pct > improveCutoff && !*showAll {
				continue
			}
			deltas = append(deltas, delta{Name: name, Metric: metric, Baseline: b, Current: c, Pct: pct * 100})
		}
	}
	return deltas, regressions
}

func printTable(deltas []delta, base, curr samples) {
	w := tabwriter.NewWriter(os.Stdout, 2, 4, 2, ' ', 0)
	fmt.Fprintln(w, "BENCHMARK\tMETRIC\tBASELINE\tCURRENT\tDELTA\t")
	regressions := 0
	for _, d := range deltas {
		status := ""
		switch {
		case d.Pct > *threshold*100:
			status = "REGRESSION"
			regressions++
		case d.Pct < improveCutoff*100:
			status = "faster"
		}
		fmt.Fprintf(w, "%s\t%s\t%.1f\t%.1f\t%+.1f%%\t%s\n", d.Name, d.Metric, d.Baseline, d.Current, d.Pct, status)
	}
	w.Flush()

	if ratio, n := speedRatio(base, curr); n > 0 {
		fmt.Printf("\ngeomean ns/op ratio over %d benchmarks: %.3f\n", n, ratio)
	}
	if regressions > 0 {
		fmt.Printf("FAIL: %d metric(s) regressed more than %.0f%%\n", regressions, *threshold*100)
	} else {
		fmt.Println("ok: no regressions")
	}
}

// speedRatio is the geometric mean of current/baseline ns/op across
// shared benchmarks; above 1.0 means the tree got slower overall.
func speedRatio(base, curr samples) (float64, int) {
	sum, n := 0.0, 0
	for name, metrics := range curr {
		c, okC := metrics["ns/op"]
		b, okB := base[name]["ns/op"]
		if !okC || !okB || b == 0 || c == 0 {
			continue
		}
		sum += math.Log(c / b)
		n++
	}
	if n == 0 {
		return 0, 0
	}
	return math.Exp(sum / float64(n)), n
}
