package main

import "github.com/charmbracelet/lipgloss"

var (
	colorRed   = lipgloss.Color("#FF5555")
	colorGreen = lipgloss.Color("#50FA7B")
	colorCyan  = lipgloss.Color("#8BE9FD")
	colorGray  = lipgloss.Color("#6272A4")
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorCyan)

	okStyle = lipgloss.NewStyle().
		Bold(true).
		Foreground(colorGreen)

	failStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorRed)

	labelStyle = lipgloss.NewStyle().
			Foreground(colorGray)

	sectionStyle = lipgloss.NewStyle().
			Bold(true).
			Underline(true)

	redactedStyle = lipgloss.NewStyle().
			Foreground(colorRed).
			Bold(true)

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorGray).
			Padding(0, 1)
)
