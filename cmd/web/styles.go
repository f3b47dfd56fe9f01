package main

import (
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"

	"webbot/internal/survival"
)

var (
	primary = lipgloss.Color("#7D56F4")
	muted   = lipgloss.Color("#6C7086")

	titleStyle = lipgloss.NewStyle().Foreground(primary).Bold(true)
	labelStyle = lipgloss.NewStyle().Foreground(muted).Width(12)
	mutedStyle = lipgloss.NewStyle().Foreground(muted).Italic(true)
	errorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#F38BA8"))

	tierStyles = map[survival.Tier]lipgloss.Style{
		survival.TierNormal:     lipgloss.NewStyle().Foreground(lipgloss.Color("#A6E3A1")).Bold(true),
		survival.TierLowCompute: lipgloss.NewStyle().Foreground(lipgloss.Color("#F9E2AF")).Bold(true),
		survival.TierCritical:   lipgloss.NewStyle().Foreground(lipgloss.Color("#FAB387")).Bold(true),
		survival.TierDead:       lipgloss.NewStyle().Foreground(lipgloss.Color("#F38BA8")).Bold(true),
	}
)

func renderTier(t survival.Tier) string {
	if s, ok := tierStyles[t]; ok {
		return s.Render(string(t))
	}
	return string(t)
}

func printField(w io.Writer, label string, value any) {
	fmt.Fprintf(w, "%s %v\n", labelStyle.Render(label+":"), value)
}
