package tui

import (
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

func pageLayout(content string) string {
	return lipgloss.NewStyle().
		Padding(0, 1).
		Render(content)
}

func renderMenu(activeItem int, width int) string {
	divider := strings.Repeat("─", max(0, width))

	labels := []string{"Incidents", "Search"}
	styled := make([]string, 0, len(labels))
	for index, label := range labels {
		style := lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
		if activeItem == index {
			style = lipgloss.NewStyle().Foreground(lipgloss.Color("15")).Underline(true)
		}
		item := style.Render(label + " [" + strconv.Itoa(index+1) + "]")
		if index != len(labels)-1 {
			item += " | "
		}
		styled = append(styled, item)
	}

	return lipgloss.JoinVertical(lipgloss.Left, lipgloss.JoinHorizontal(lipgloss.Left, styled...), divider)
}
