// Package ui holds the terminal styles shared by the scan and console output.
package ui

import "github.com/charmbracelet/lipgloss"

// ANSI colour indexes, so the tags follow the user's terminal palette.
const (
	colorRed    = "1"
	colorGreen  = "2"
	colorYellow = "3"
	colorBlue   = "4"
	colorCyan   = "6"
)

var (
	Advertised = lipgloss.NewStyle().Foreground(lipgloss.Color(colorBlue))
	Lost       = lipgloss.NewStyle().Foreground(lipgloss.Color(colorRed))
	Updated    = lipgloss.NewStyle().Foreground(lipgloss.Color(colorYellow))
	New        = lipgloss.NewStyle().Foreground(lipgloss.Color(colorGreen))
	Error      = lipgloss.NewStyle().Foreground(lipgloss.Color(colorRed)).Bold(true)
	Prompt     = lipgloss.NewStyle().Foreground(lipgloss.Color(colorCyan))
)
