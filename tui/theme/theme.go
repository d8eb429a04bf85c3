// Package theme provides the color palette and styles for the bridge CLI.
package theme

import (
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

const defaultThemeName = "kanagawa"

// --- Kanagawa Dragon (dark) palette ---
const (
	kanagawaGreen     = "#98BB6C"
	kanagawaYellow    = "#FF9E3B"
	kanagawaRed       = "#FF5D62"
	kanagawaOrange    = "#FFA066"
	kanagawaCyan      = "#7E9CD8"
	kanagawaBlue      = "#7FB4CA"
	kanagawaViolet    = "#957FB8"
	kanagawaLightText = "#DCD7BA"
	kanagawaMutedText = "#727169"
	kanagawaBorder    = "#363646"
)

// --- Terminal (ANSI-friendly) palette ---
const (
	terminalGreen     = "2"
	terminalYellow    = "3"
	terminalRed       = "1"
	terminalOrange    = "208"
	terminalCyan      = "6"
	terminalBlue      = "4"
	terminalViolet    = "5"
	terminalLightText = "7"
	terminalMutedText = "8"
	terminalBorder    = "8"
)

// Colors encapsulates the palette used by a theme.
type Colors struct {
	Green     lipgloss.TerminalColor
	Yellow    lipgloss.TerminalColor
	Red       lipgloss.TerminalColor
	Orange    lipgloss.TerminalColor
	Cyan      lipgloss.TerminalColor
	Blue      lipgloss.TerminalColor
	Violet    lipgloss.TerminalColor
	LightText lipgloss.TerminalColor
	MutedText lipgloss.TerminalColor
	Border    lipgloss.TerminalColor
}

// Theme holds the pre-configured styles used by the bridge CLI.
type Theme struct {
	Colors Colors

	Success lipgloss.Style
	Error   lipgloss.Style
	Warning lipgloss.Style
	Info    lipgloss.Style

	Bold   lipgloss.Style
	Italic lipgloss.Style
	Muted  lipgloss.Style

	Highlight lipgloss.Style
	Accent    lipgloss.Style
}

var themeRegistry = map[string]func() Colors{
	"kanagawa": newKanagawaColors,
	"terminal": newTerminalColors,
}

// DefaultTheme is the theme instance used across the CLI.
var DefaultTheme = NewTheme()

// NewTheme creates a theme based on the BRIDGE_THEME environment
// variable, defaulting to kanagawa.
func NewTheme() *Theme {
	name := strings.ToLower(strings.TrimSpace(os.Getenv("BRIDGE_THEME")))
	builder, ok := themeRegistry[name]
	if !ok {
		builder = themeRegistry[defaultThemeName]
	}
	return newThemeFromColors(builder())
}

func newThemeFromColors(colors Colors) *Theme {
	return &Theme{
		Colors: colors,

		Success: lipgloss.NewStyle().Foreground(colors.Green).Bold(true),
		Error:   lipgloss.NewStyle().Foreground(colors.Red).Bold(true),
		Warning: lipgloss.NewStyle().Foreground(colors.Yellow).Bold(true),
		Info:    lipgloss.NewStyle().Foreground(colors.Cyan).Bold(true),

		Bold:   lipgloss.NewStyle().Bold(true),
		Italic: lipgloss.NewStyle().Italic(true),
		Muted:  lipgloss.NewStyle().Faint(true),

		Highlight: lipgloss.NewStyle().Foreground(colors.Orange).Bold(true),
		Accent:    lipgloss.NewStyle().Foreground(colors.Violet).Bold(true),
	}
}

func newKanagawaColors() Colors {
	return Colors{
		Green:     lipgloss.Color(kanagawaGreen),
		Yellow:    lipgloss.Color(kanagawaYellow),
		Red:       lipgloss.Color(kanagawaRed),
		Orange:    lipgloss.Color(kanagawaOrange),
		Cyan:      lipgloss.Color(kanagawaCyan),
		Blue:      lipgloss.Color(kanagawaBlue),
		Violet:    lipgloss.Color(kanagawaViolet),
		LightText: lipgloss.Color(kanagawaLightText),
		MutedText: lipgloss.Color(kanagawaMutedText),
		Border:    lipgloss.Color(kanagawaBorder),
	}
}

func newTerminalColors() Colors {
	return Colors{
		Green:     lipgloss.Color(terminalGreen),
		Yellow:    lipgloss.Color(terminalYellow),
		Red:       lipgloss.Color(terminalRed),
		Orange:    lipgloss.Color(terminalOrange),
		Cyan:      lipgloss.Color(terminalCyan),
		Blue:      lipgloss.Color(terminalBlue),
		Violet:    lipgloss.Color(terminalViolet),
		LightText: lipgloss.Color(terminalLightText),
		MutedText: lipgloss.Color(terminalMutedText),
		Border:    lipgloss.Color(terminalBorder),
	}
}
