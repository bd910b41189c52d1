package report

import (
	"fmt"
	"os"
	"strings"

	humanize "github.com/dustin/go-humanize"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/wesm/argh/internal/models"
)

// ColorsEnabled reports whether terminal output may be styled
func ColorsEnabled() bool {
	if _, ok := os.LookupEnv("NO_COLOR"); ok {
		return false
	}
	return os.Getenv("TERM") != "dumb"
}

// RenderLabelFrequency renders the top labels by usage. top <= 0 shows all.
func RenderLabelFrequency(kind models.Kind, freq []models.LabelFrequency, top int) string {
	if top > 0 && len(freq) > top {
		freq = freq[:top]
	}
	title := fmt.Sprintf("Top labels: %s", kind.Table())
	if len(freq) == 0 {
		return title + "\n" + emptyState("No labeled " + kind.Table() + ".")
	}

	rows := make([][]string, 0, len(freq))
	for i, f := range freq {
		rows = append(rows, []string{humanize.Ordinal(i + 1), f.Label, humanize.Comma(int64(f.Count))})
	}
	return title + "\n" + renderTable([]string{"Rank", "Label", "Count"}, rows)
}

// RenderStateBreakdown renders the open/closed split per label
func RenderStateBreakdown(kind models.Kind, counts []models.LabelStateCount, top int) string {
	if top > 0 && len(counts) > top {
		counts = counts[:top]
	}
	title := fmt.Sprintf("Open vs closed by label: %s", kind.Table())
	if len(counts) == 0 {
		return title + "\n" + emptyState("No labeled " + kind.Table() + ".")
	}

	rows := make([][]string, 0, len(counts))
	for _, c := range counts {
		rows = append(rows, []string{
			c.Label,
			humanize.Comma(int64(c.Open)),
			humanize.Comma(int64(c.Closed)),
			percentOpen(c.Open, c.Closed),
		})
	}
	return title + "\n" + renderTable([]string{"Label", "Open", "Closed", "Open %"}, rows)
}

func percentOpen(open, closed int) string {
	total := open + closed
	if total == 0 {
		return "-"
	}
	return humanize.FtoaWithDigits(float64(open)*100/float64(total), 1) + "%"
}

func emptyState(message string) string {
	if !ColorsEnabled() {
		return message
	}
	return lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Render(message)
}

func renderTable(headers []string, rows [][]string) string {
	if !ColorsEnabled() {
		return renderPlainTable(headers, rows)
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("8"))).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			s := lipgloss.NewStyle().PaddingLeft(1).PaddingRight(1)
			if row == table.HeaderRow {
				return s.Bold(true).Foreground(lipgloss.Color("15"))
			}
			if col < len(headers) && headers[col] == "Label" {
				return s
			}
			return s.Align(lipgloss.Right)
		})

	return t.Render()
}

func renderPlainTable(headers []string, rows [][]string) string {
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = len(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			widths[i] = max(widths[i], lipgloss.Width(cell))
		}
	}

	var b strings.Builder
	writeRow := func(cells []string) {
		for i, cell := range cells {
			if i > 0 {
				b.WriteString("  ")
			}
			fmt.Fprintf(&b, "%-*s", widths[i], cell)
		}
		b.WriteString("\n")
	}

	writeRow(headers)
	total := 2 * (len(widths) - 1)
	for _, w := range widths {
		total += w
	}
	fmt.Fprintf(&b, "%s\n", strings.Repeat("-", total))
	for _, row := range rows {
		writeRow(row)
	}
	return b.String()
}
