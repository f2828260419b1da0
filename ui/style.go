package ui

import (
	"github.com/charmbracelet/lipgloss"

	"mcm/modinfo"
)

// ANSI palette shared by the tables and the TUI views.
const (
	ColorAccent = "12"
	ColorMuted  = "8"
	ColorGood   = "10"
	ColorWarn   = "11"
	ColorBad    = "9"
	ColorPlain  = "7"
	ColorPink   = "205"
)

var (
	TitleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(ColorAccent))
	MutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color(ColorMuted))
	GoodStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color(ColorGood))
	WarnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color(ColorWarn))
	ErrorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color(ColorBad))
	FooterStyle = lipgloss.NewStyle().Foreground(lipgloss.Color(ColorMuted)).Italic(true)

	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(ColorAccent)).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
)

// Colorize applies the given ANSI color to the text using lipgloss.
func Colorize(text, color string) string {
	return lipgloss.NewStyle().Foreground(lipgloss.Color(color)).Render(text)
}

// LicenseColor signals how freely a license allows redistribution.
func LicenseColor(t modinfo.LicenseType) string {
	switch t {
	case modinfo.LicensePermissive:
		return ColorGood
	case modinfo.LicenseLGPL:
		return ColorAccent
	case modinfo.LicenseCopyleft:
		return ColorWarn
	case modinfo.LicenseClosed, modinfo.LicenseDangerous:
		return ColorBad
	}
	return ColorPlain
}

func SideSupportColor(s modinfo.SideSupport) string {
	switch s {
	case modinfo.SideRequired:
		return ColorGood
	case modinfo.SideOptional:
		return ColorWarn
	case modinfo.SideUnsupported:
		return ColorBad
	}
	return ColorPlain
}

// Truncate shortens s to at most maxLen runes, marking the cut with "...".
func Truncate(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(r[:maxLen])
	}
	return string(r[:maxLen-3]) + "..."
}
