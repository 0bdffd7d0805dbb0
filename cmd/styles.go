package cmd

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/iksnae/cellbook/internal/export"
	"github.com/iksnae/cellbook/internal/notebook"
)

var (
	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42")).
			Bold(true)

	warningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214")).
			Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true)

	infoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("39"))

	sectionStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("62")).
			Bold(true).
			Underline(true)

	queryStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("212"))

	metaStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("243"))

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("62")).
			Padding(0, 1)

	tableCellStyle = lipgloss.NewStyle().Padding(0, 1)
)

// maxDisplayRows caps how many rows a cell prints in the terminal
const maxDisplayRows = 50

const maxValueWidth = 60

func displayValue(v interface{}) string {
	if v == nil {
		return "NULL"
	}
	s := export.FormatValue(v)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i] + "…"
	}
	if len([]rune(s)) > maxValueWidth {
		s = string([]rune(s)[:maxValueWidth-1]) + "…"
	}
	return s
}

// renderTable draws a result as a bordered table
func renderTable(c *export.Table) string {
	rows := c.Rows
	if len(rows) > maxDisplayRows {
		rows = rows[:maxDisplayRows]
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("240"))).
		Headers(c.Columns...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return tableCellStyle
		})
	for _, row := range rows {
		values := make([]string, len(c.Columns))
		for i, name := range c.Columns {
			values[i] = displayValue(row[name])
		}
		t.Row(values...)
	}
	return t.Render()
}

// renderCell formats a cell's query, status and result for the terminal
func renderCell(c notebook.Cell, index int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s\n", metaStyle.Render(fmt.Sprintf("[%d]", index)), queryStyle.Render(strings.TrimSpace(c.Query)))

	switch c.Status {
	case notebook.Success:
		if len(c.Columns) > 0 {
			b.WriteString(renderTable(c.Table("")))
			b.WriteString("\n")
		}
		summary := fmt.Sprintf("%d row(s) in %d ms", len(c.Rows), c.ExecutionTimeMs)
		if len(c.Rows) > maxDisplayRows {
			summary += fmt.Sprintf(", showing first %d", maxDisplayRows)
		}
		b.WriteString(successStyle.Render("✓ ") + metaStyle.Render(summary))
	case notebook.Error:
		b.WriteString(errorStyle.Render("✗ " + c.Error))
	case notebook.Running:
		b.WriteString(infoStyle.Render("… running"))
	default:
		if c.Error != "" {
			b.WriteString(warningStyle.Render("■ " + c.Error))
		} else {
			b.WriteString(metaStyle.Render("idle"))
		}
	}
	b.WriteString("\n")
	return b.String()
}
