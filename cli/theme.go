package cli

import (
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
	"github.com/muesli/termenv"

	"github.com/grovetools/conductor/pkg/sessions"
)

// --- Kanagawa palette ---
const (
	kanagawaDarkGreen   = "#98BB6C"
	kanagawaDarkYellow  = "#FF9E3B"
	kanagawaDarkRed     = "#FF5D62"
	kanagawaDarkOrange  = "#FFA066"
	kanagawaDarkCyan    = "#7E9CD8"
	kanagawaDarkBlue    = "#7FB4CA"
	kanagawaDarkViolet  = "#957FB8"
	kanagawaDarkBorder  = "#363646"
	kanagawaLightGreen  = "#4E7C5A"
	kanagawaLightYellow = "#A68A64"
	kanagawaLightRed    = "#C34043"
	kanagawaLightOrange = "#CC6B4E"
	kanagawaLightCyan   = "#5B8BBE"
	kanagawaLightBlue   = "#4F7CAC"
	kanagawaLightViolet = "#674D7A"
	kanagawaLightBorder = "#B5BDC5"
)

// Colors is the palette a Theme is built from.
type Colors struct {
	Green  lipgloss.TerminalColor
	Yellow lipgloss.TerminalColor
	Red    lipgloss.TerminalColor
	Orange lipgloss.TerminalColor
	Cyan   lipgloss.TerminalColor
	Blue   lipgloss.TerminalColor
	Violet lipgloss.TerminalColor
	Border lipgloss.TerminalColor
}

// Theme holds the styles shared by conductor's command output.
type Theme struct {
	Colors Colors

	Header  lipgloss.Style
	Success lipgloss.Style
	Error   lipgloss.Style
	Warning lipgloss.Style
	Info    lipgloss.Style

	Bold   lipgloss.Style
	Muted  lipgloss.Style
	Italic lipgloss.Style

	TableHeader lipgloss.Style
}

// DefaultTheme is selected by CONDUCTOR_THEME ("kanagawa" or "terminal").
var DefaultTheme = NewTheme(os.Getenv("CONDUCTOR_THEME"))

// NewTheme builds the named theme, falling back to kanagawa.
func NewTheme(name string) *Theme {
	var colors Colors
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "terminal":
		colors = Colors{
			Green:  lipgloss.Color("2"),
			Yellow: lipgloss.Color("3"),
			Red:    lipgloss.Color("1"),
			Orange: lipgloss.Color("208"),
			Cyan:   lipgloss.Color("6"),
			Blue:   lipgloss.Color("4"),
			Violet: lipgloss.Color("5"),
			Border: lipgloss.Color("8"),
		}
	default:
		colors = Colors{
			Green:  lipgloss.AdaptiveColor{Light: kanagawaLightGreen, Dark: kanagawaDarkGreen},
			Yellow: lipgloss.AdaptiveColor{Light: kanagawaLightYellow, Dark: kanagawaDarkYellow},
			Red:    lipgloss.AdaptiveColor{Light: kanagawaLightRed, Dark: kanagawaDarkRed},
			Orange: lipgloss.AdaptiveColor{Light: kanagawaLightOrange, Dark: kanagawaDarkOrange},
			Cyan:   lipgloss.AdaptiveColor{Light: kanagawaLightCyan, Dark: kanagawaDarkCyan},
			Blue:   lipgloss.AdaptiveColor{Light: kanagawaLightBlue, Dark: kanagawaDarkBlue},
			Violet: lipgloss.AdaptiveColor{Light: kanagawaLightViolet, Dark: kanagawaDarkViolet},
			Border: lipgloss.AdaptiveColor{Light: kanagawaLightBorder, Dark: kanagawaDarkBorder},
		}
	}

	return &Theme{
		Colors:  colors,
		Header:  lipgloss.NewStyle().Bold(true).Foreground(colors.Orange),
		Success: lipgloss.NewStyle().Foreground(colors.Green).Bold(true),
		Error:   lipgloss.NewStyle().Foreground(colors.Red).Bold(true),
		Warning: lipgloss.NewStyle().Foreground(colors.Yellow).Bold(true),
		Info:    lipgloss.NewStyle().Foreground(colors.Cyan).Bold(true),
		Bold:    lipgloss.NewStyle().Bold(true),
		Muted:   lipgloss.NewStyle().Faint(true),
		Italic:  lipgloss.NewStyle().Italic(true),
		TableHeader: lipgloss.NewStyle().
			Bold(true).
			Foreground(colors.Blue),
	}
}

// RenderState colours a session state by how it ended or is going.
func (t *Theme) RenderState(state sessions.State) string {
	switch {
	case state == sessions.StateError:
		return t.Error.Render(string(state))
	case state == sessions.StateCompleted:
		return t.Success.Render(string(state))
	case state == sessions.StateCancelled:
		return t.Muted.Render(string(state))
	case state == sessions.StateRunning || state == sessions.StateReady:
		return t.Info.Render(string(state))
	default:
		return t.Warning.Render(string(state))
	}
}

// ConfigureColor disables styling when out is not a terminal, when NO_COLOR
// is set, or when JSON output was requested.
func ConfigureColor(out io.Writer, jsonOutput bool) {
	if jsonOutput || os.Getenv("NO_COLOR") != "" || !isTerminal(out) {
		lipgloss.SetColorProfile(termenv.Ascii)
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
