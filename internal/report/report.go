// Package report renders one turn's analysis into markdown and HTML for
// diagnostic viewing and export.
package report

import (
	"fmt"
	"strings"
	"time"

	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"
	"github.com/montanaflynn/stats"

	"convdep/domain/conversation"
	"convdep/domain/core"
	"convdep/internal/analyzer"
	"convdep/internal/significance"
)

// Summary condenses the score distribution of one turn.
type Summary struct {
	Candidates int     `json:"candidates"`
	Important  int     `json:"important"`
	MaxScore   float64 `json:"max_score"`
	Median     float64 `json:"median"`
	P90        float64 `json:"p90"`
}

// Summarize computes distribution statistics over the full scored list.
func Summarize(res *analyzer.Result) Summary {
	s := Summary{Candidates: len(res.Scored), Important: len(res.Important)}
	if len(res.Scored) == 0 {
		return s
	}

	scores := make([]float64, len(res.Scored))
	for i, su := range res.Scored {
		scores[i] = su.Score
	}

	// The stats helpers only fail on empty input, which is excluded above.
	s.MaxScore, _ = stats.Max(scores)
	s.Median, _ = stats.Median(scores)
	s.P90, _ = stats.Percentile(scores, 90)
	return s
}

// Markdown renders the full turn report.
func Markdown(current conversation.Utterance, res *analyzer.Result) string {
	var b strings.Builder
	summary := Summarize(res)

	fmt.Fprintf(&b, "# Dependency Report: Turn %d\n\n", current.ID)
	fmt.Fprintf(&b, "**Current utterance** (%s): %s\n\n", speakerOrUnknown(current.Speaker), current.Text)
	if current.Timestamp != 0 {
		fmt.Fprintf(&b, "Spoken %s\n\n", core.FromEpochMillis(current.Timestamp).Time().UTC().Format(time.RFC3339))
	}
	fmt.Fprintf(&b, "Generated %s\n\n", time.Now().UTC().Format(time.RFC3339))

	b.WriteString("## Summary\n\n")
	fmt.Fprintf(&b, "- Candidates scored: %d\n", summary.Candidates)
	fmt.Fprintf(&b, "- Significant after FDR + diversity: %d\n", summary.Important)
	fmt.Fprintf(&b, "- Anchors held: %d\n", res.AnchorCount)
	if summary.Candidates > 0 {
		fmt.Fprintf(&b, "- Score max/median/p90: %.4f / %.4f / %.4f\n", summary.MaxScore, summary.Median, summary.P90)
	}
	b.WriteString("\n")

	b.WriteString("## Important\n\n")
	if len(res.Important) == 0 {
		b.WriteString("No utterance cleared the significance gate this turn.\n\n")
	} else {
		b.WriteString("| Rank | ID | Speaker | Score | Text |\n")
		b.WriteString("|---|---|---|---|---|\n")
		for i, su := range res.Important {
			fmt.Fprintf(&b, "| %d | %d | %s | %.4f | %s |\n",
				i+1, su.ID, speakerOrUnknown(su.Speaker), su.Score, escapeCell(su.Text))
		}
		b.WriteString("\n")
	}

	b.WriteString("## All Candidates\n\n")
	b.WriteString("| Rank | ID | Score | Base | Masked | Delta | AgeWeight | Z | Zp | Text |\n")
	b.WriteString("|---|---|---|---|---|---|---|---|---|---|\n")
	for _, su := range res.Scored {
		fmt.Fprintf(&b, "| %d | %d | %.4f | %.4f | %.4f | %.4f | %.4f | %s | %s | %s |\n",
			su.Rank, su.ID, su.Score,
			su.Detail.BaseLoss, su.Detail.MaskedLoss, su.Detail.DeltaLoss, su.Detail.AgeWeight,
			formatZ(su.Z), formatZP(su.Z), escapeCell(su.Text))
	}
	return b.String()
}

// HTML renders the markdown report as a standalone HTML fragment.
func HTML(current conversation.Utterance, res *analyzer.Result) []byte {
	md := Markdown(current, res)
	p := parser.NewWithExtensions(parser.CommonExtensions | parser.AutoHeadingIDs | parser.Tables)
	renderer := html.NewRenderer(html.RendererOptions{Flags: html.CommonFlags})
	return markdown.ToHTML([]byte(md), p, renderer)
}

func formatZ(z *float64) string {
	if z == nil {
		return "-"
	}
	return fmt.Sprintf("%.2f", *z)
}

// formatZP is the two-sided normal p-value for the robust z, alongside the
// ECDF p that drives the FDR decision.
func formatZP(z *float64) string {
	if z == nil {
		return "-"
	}
	return fmt.Sprintf("%.4f", significance.ZPValue(*z))
}

func speakerOrUnknown(speaker string) string {
	if speaker == "" {
		return "unknown"
	}
	return speaker
}

func escapeCell(text string) string {
	return strings.ReplaceAll(strings.ReplaceAll(text, "|", "\\|"), "\n", " ")
}
