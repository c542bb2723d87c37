package main

import "github.com/charmbracelet/lipgloss"

// Output styles.
var (
	styleTitle = lipgloss.NewStyle().Bold(true).
			Foreground(lipgloss.AdaptiveColor{Light: "#1e66f5", Dark: "#89b4fa"})
	styleOK = lipgloss.NewStyle().
		Foreground(lipgloss.AdaptiveColor{Light: "#40a02b", Dark: "#a6e3a1"})
	styleWarn = lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "#df8e1d", Dark: "#f9e2af"})
	styleFail = lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "#d20f39", Dark: "#f38ba8"})
	styleMuted = lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "#6c6f85", Dark: "#6c7086"})
)

func statusMark(ok bool) string {
	if ok {
		return styleOK.Render("✓")
	}
	return styleFail.Render("✗")
}
