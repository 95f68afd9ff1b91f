package report

import (
	"fmt"
	"strings"

	"logwarden/internal/types"

	"github.com/charmbracelet/lipgloss"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#6B7280"))

	valueStyle = lipgloss.NewStyle().
			Bold(true)

	cleanStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#00D26A"))

	// one color per reason, in rule order
	reasonColors = []lipgloss.Color{
		lipgloss.Color("#FFD93D"),
		lipgloss.Color("#FF6B6B"),
		lipgloss.Color("#FF0000"),
		lipgloss.Color("#FF3838"),
		lipgloss.Color("#4D96FF"),
	}
)

func reasonStyle(r types.Reason) lipgloss.Style {
	c := lipgloss.Color("#FAFAFA")
	if int(r) >= 0 && int(r) < len(reasonColors) {
		c = reasonColors[r]
	}
	return lipgloss.NewStyle().Bold(true).Foreground(c)
}

// RenderSummary renders a compact terminal view of the report: totals and the
// number of listed events per reason. Colors degrade to plain text when the
// output is not a terminal.
func RenderSummary(r types.IncidentReport) string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("INCIDENT REPORT"))
	b.WriteString("\n")
	fmt.Fprintf(&b, "%s %s\n", labelStyle.Render("Suspicious events:"), valueStyle.Render(fmt.Sprint(r.TotalEvents)))
	fmt.Fprintf(&b, "%s %s\n", labelStyle.Render("Unique IPs:       "), valueStyle.Render(fmt.Sprint(r.DistinctIPs)))

	if len(r.Sections) == 0 {
		b.WriteString(cleanStyle.Render("No suspicious logs detected."))
		b.WriteString("\n")
		return b.String()
	}

	for _, s := range r.Sections {
		b.WriteString("\n")
		b.WriteString(reasonStyle(s.Reason).Render(strings.ToUpper(s.Reason.Label())))
		b.WriteString("\n")
		for _, e := range s.Events {
			b.WriteString("  ")
			b.WriteString(Line(e))
			b.WriteString("\n")
		}
	}
	return b.String()
}
