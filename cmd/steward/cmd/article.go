package cmd

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/shopsteward/steward/internal/contract"
	"github.com/shopsteward/steward/internal/errors"
)

func newArticleCmd() *cobra.Command {
	var (
		list    bool
		jsonOut bool
	)

	cmd := &cobra.Command{
		Use:   "article <number>",
		Short: "Print an article's full text in reading order",
		Long: `Print every chunk of one article, in contract order.

Article 0 holds material outside any article, such as Letters of
Understanding and appendix text. Use --list to see what the contract
contains.`,
		Example: `  steward article 16
  steward article 0        # LOUs and appendices
  steward article --list`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if list {
				return runArticleList(cmd, jsonOut)
			}
			if len(args) == 0 {
				return errors.ValidationError("article number required", nil).
					WithSuggestion("steward article 16, or steward article --list")
			}
			num, err := strconv.Atoi(strings.TrimPrefix(strings.ToLower(args[0]), "article"))
			if err != nil {
				return errors.ValidationError(fmt.Sprintf("%q is not an article number", args[0]), err)
			}
			return runArticle(cmd, num, jsonOut)
		},
	}

	cmd.Flags().BoolVar(&list, "list", false, "List the contract's articles")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output as JSON")

	return cmd
}

func runArticle(cmd *cobra.Command, num int, jsonOut bool) error {
	snap, err := loadSnapshot(rootCfg)
	if err != nil {
		return err
	}
	defer func() { _ = snap.Close() }()

	chunks := snap.Chunks.Article(num)
	if len(chunks) == 0 {
		return errors.ValidationError(fmt.Sprintf("no article %d in this contract", num), nil).
			WithSuggestion("steward article --list shows what the contract contains")
	}

	w := cmd.OutOrStdout()
	if jsonOut {
		return writeJSON(w, struct {
			Article int               `json:"article"`
			Title   string            `json:"title,omitempty"`
			Chunks  []*contract.Chunk `json:"chunks"`
		}{Article: num, Title: chunks[0].ArticleTitle, Chunks: chunks})
	}

	styles := outputStyles(w)
	title := chunks[0].ArticleTitle
	if num > 0 {
		heading := fmt.Sprintf("ARTICLE %d", num)
		if title != "" {
			heading += " — " + title
		}
		fmt.Fprintln(w, styles.Header.Render(heading))
	} else {
		fmt.Fprintln(w, styles.Header.Render("LETTERS OF UNDERSTANDING AND APPENDICES"))
	}
	fmt.Fprintln(w)

	for _, c := range chunks {
		if c.Citation != "" {
			fmt.Fprintln(w, styles.Stage.Render(c.Citation))
		}
		fmt.Fprintln(w, c.Content)
		fmt.Fprintln(w)
	}
	return nil
}

// articleEntry is one row of --list output.
type articleEntry struct {
	Article int    `json:"article"`
	Title   string `json:"title,omitempty"`
	Chunks  int    `json:"chunks"`
}

func runArticleList(cmd *cobra.Command, jsonOut bool) error {
	snap, err := loadSnapshot(rootCfg)
	if err != nil {
		return err
	}
	defer func() { _ = snap.Close() }()

	byNum := make(map[int]*articleEntry)
	for _, c := range snap.Chunks.All() {
		e := byNum[c.ArticleNum]
		if e == nil {
			e = &articleEntry{Article: c.ArticleNum}
			byNum[c.ArticleNum] = e
		}
		e.Chunks++
		if e.Title == "" && c.ArticleTitle != "" {
			e.Title = c.ArticleTitle
		}
	}

	entries := make([]articleEntry, 0, len(byNum))
	for _, e := range byNum {
		entries = append(entries, *e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Article < entries[j].Article })

	w := cmd.OutOrStdout()
	if jsonOut {
		return writeJSON(w, entries)
	}

	styles := outputStyles(w)
	fmt.Fprintln(w, styles.Header.Render(fmt.Sprintf("Contract: %s", snap.Meta.ContractID)))
	fmt.Fprintln(w)
	for _, e := range entries {
		label := fmt.Sprintf("Article %d", e.Article)
		if e.Article == 0 {
			label = "LOUs/Appendices"
		}
		title := e.Title
		if title != "" {
			title = " " + title
		}
		fmt.Fprintf(w, "  %-16s%s %s\n", label, title,
			styles.Dim.Render(fmt.Sprintf("(%d chunks)", e.Chunks)))
	}
	return nil
}
