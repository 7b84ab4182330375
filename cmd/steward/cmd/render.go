package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/shopsteward/steward/internal/contract"
	"github.com/shopsteward/steward/internal/search"
	"github.com/shopsteward/steward/internal/ui"
	"github.com/shopsteward/steward/internal/wage"
)

// citationJSON is one result row in --json output. Slimmer than the
// raw scored chunk: tool consumers get the full records over MCP, the
// CLI emits what a script reasonably greps.
type citationJSON struct {
	Citation    string  `json:"citation"`
	Article     int     `json:"article,omitempty"`
	Title       string  `json:"article_title,omitempty"`
	ChunkID     string  `json:"chunk_id"`
	Score       float64 `json:"score"`
	VectorRank  int     `json:"vector_rank,omitempty"`
	KeywordRank int     `json:"keyword_rank,omitempty"`
	Summary     string  `json:"summary,omitempty"`
	Content     string  `json:"content"`
	SearchAngle string  `json:"search_angle,omitempty"`
	IsRelated   bool    `json:"is_related,omitempty"`
}

// answerJSON is the --json shape for ask and search.
type answerJSON struct {
	Question           string         `json:"question"`
	Intent             *search.Intent `json:"intent,omitempty"`
	EscalationRequired bool           `json:"escalation_required"`
	Wage               *wage.Info     `json:"wage_info,omitempty"`
	Citations          []citationJSON `json:"citations"`
	QueryExpansions    []string       `json:"query_expansions,omitempty"`
	SearchAngles       int            `json:"search_angles_used,omitempty"`
	ExplicitArticles   []int          `json:"explicit_articles,omitempty"`
}

func toCitationJSON(chunks []*contract.ScoredChunk) []citationJSON {
	out := make([]citationJSON, 0, len(chunks))
	for _, sc := range chunks {
		if sc.Chunk == nil {
			continue
		}
		row := citationJSON{
			Citation:    sc.Chunk.Citation,
			Article:     sc.Chunk.ArticleNum,
			Title:       sc.Chunk.ArticleTitle,
			ChunkID:     sc.Chunk.ChunkID,
			Score:       sc.Similarity,
			Summary:     sc.Chunk.Summary,
			Content:     sc.Chunk.Content,
			SearchAngle: sc.SearchAngle,
			IsRelated:   sc.IsRelated,
		}
		if sc.VectorRank != contract.RankMissing {
			row.VectorRank = sc.VectorRank
		}
		if sc.KeywordRank != contract.RankMissing {
			row.KeywordRank = sc.KeywordRank
		}
		out = append(out, row)
	}
	return out
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// renderResponse prints an ask/search response for a human: an
// escalation banner first when the situation calls for the union, then
// the wage answer, then the ranked citations.
func renderResponse(w io.Writer, question string, resp *search.Response, styles ui.Styles) {
	if resp.EscalationRequired {
		fmt.Fprintln(w, styles.Error.Render("⚠ Talk to your union steward before acting."))
		fmt.Fprintln(w, styles.Dim.Render("  This looks like a discipline, termination, or safety situation."))
		fmt.Fprintln(w)
	}

	if resp.WageInfo != nil {
		renderWageInfo(w, resp.WageInfo, styles)
		fmt.Fprintln(w)
	}

	if len(resp.Chunks) == 0 {
		fmt.Fprintf(w, "No contract language found for %q.\n", question)
		fmt.Fprintln(w, styles.Dim.Render("Try rephrasing, or cite an article directly: \"what does Article 12 say?\""))
		return
	}

	fmt.Fprintln(w, styles.Header.Render(fmt.Sprintf("Contract language for %q", question)))
	fmt.Fprintln(w)

	for i, sc := range resp.Chunks {
		if sc.Chunk == nil {
			continue
		}
		heading := sc.Chunk.Citation
		if sc.Chunk.ArticleTitle != "" {
			heading = fmt.Sprintf("%s — %s", heading, sc.Chunk.ArticleTitle)
		}
		marker := ""
		if sc.IsRelated {
			marker = styles.Dim.Render(" (related)")
		}
		fmt.Fprintf(w, "%s %s%s\n",
			styles.Stage.Render(fmt.Sprintf("%d.", i+1)),
			styles.Success.Render(heading),
			marker,
		)
		fmt.Fprintf(w, "   %s\n", styles.Dim.Render(fmt.Sprintf("score %.2f", sc.Similarity)))

		if sc.Chunk.Summary != "" {
			fmt.Fprintf(w, "   %s\n", sc.Chunk.Summary)
		}
		for _, line := range getSnippet(sc.Chunk.Content, 3) {
			fmt.Fprintf(w, "   %s\n", line)
		}
		fmt.Fprintln(w)
	}

	if len(resp.QueryExpansions) > 0 {
		fmt.Fprintln(w, styles.Dim.Render("Interpreted: "+strings.Join(resp.QueryExpansions, "; ")))
	}
}

// renderWageInfo prints a resolved wage answer.
func renderWageInfo(w io.Writer, info *wage.Info, styles ui.Styles) {
	fmt.Fprintln(w, styles.Header.Render("Wage rate"))
	if info.Rate > 0 {
		fmt.Fprintf(w, "  %s, %s: %s\n",
			info.Classification,
			info.Step,
			styles.Success.Render(fmt.Sprintf("$%.2f/hr", info.Rate)),
		)
	} else {
		fmt.Fprintf(w, "  %s, %s: no rate for that period\n", info.Classification, info.Step)
	}
	if info.EffectiveDate != "" {
		fmt.Fprintf(w, "  %s\n", styles.Dim.Render("effective "+info.EffectiveDate))
	}
	if info.Citation != "" {
		fmt.Fprintf(w, "  %s\n", styles.Dim.Render("source: "+info.Citation))
	}
}

// getSnippet returns the first n non-empty-trailing lines of content.
func getSnippet(content string, n int) []string {
	lines := strings.Split(content, "\n")
	if len(lines) > n {
		lines = lines[:n]
	}
	for len(lines) > 0 && strings.TrimSpace(lines[len(lines)-1]) == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

// outputStyles picks styled or plain rendering for a writer.
func outputStyles(w io.Writer) ui.Styles {
	return ui.GetStyles(!ui.IsTTY(w) || ui.DetectNoColor())
}
