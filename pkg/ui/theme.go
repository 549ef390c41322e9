// Package ui renders terminal output for the CLI commands.
package ui

import "github.com/charmbracelet/lipgloss"

// theme groups reusable styles for CLI output.
type theme struct {
	header     lipgloss.Style
	headerMeta lipgloss.Style
	section    lipgloss.Style
	cell       lipgloss.Style
	headCell   lipgloss.Style
	border     lipgloss.Style
	ok         lipgloss.Style
	bad        lipgloss.Style
	hint       lipgloss.Style
}

// defaultTheme keeps the retro terminal palette of the project.
func defaultTheme() theme {
	return theme{
		header: lipgloss.NewStyle().
			Bold(true).
			Padding(0, 1).
			Foreground(lipgloss.Color("230")).
			Background(lipgloss.Color("88")),
		headerMeta: lipgloss.NewStyle().
			Foreground(lipgloss.Color("223")),
		section: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("214")),
		cell: lipgloss.NewStyle().
			Padding(0, 1).
			Foreground(lipgloss.Color("252")),
		headCell: lipgloss.NewStyle().
			Padding(0, 1).
			Bold(true).
			Foreground(lipgloss.Color("229")),
		border: lipgloss.NewStyle().
			Foreground(lipgloss.Color("130")),
		ok: lipgloss.NewStyle().
			Foreground(lipgloss.Color("114")).
			Bold(true),
		bad: lipgloss.NewStyle().
			Foreground(lipgloss.Color("203")).
			Bold(true),
		hint: lipgloss.NewStyle().
			Foreground(lipgloss.Color("244")),
	}
}
