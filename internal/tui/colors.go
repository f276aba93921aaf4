package tui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/MattIPv4/Discord-Status/internal/ledger"
)

func blurple() lipgloss.Color {
	return lipgloss.Color("#5865F2")
}

func lightBlurple() lipgloss.Color {
	return lipgloss.Color("#9BA3F7")
}

func dispositionColor(d ledger.Disposition) lipgloss.Color {
	switch d {
	case ledger.Summary:
		return lipgloss.Color("10")
	case ledger.Folded:
		return lipgloss.Color("12")
	default:
		return lipgloss.Color("8")
	}
}
