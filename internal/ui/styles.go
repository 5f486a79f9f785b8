package ui

import (
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			PaddingLeft(2).
			PaddingRight(2).
			MarginBottom(1)

	infoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#CCCCCC"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF5F5F"))

	stringStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#CCCCCC")).
			Padding(0, 1)

	selectedStringStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("#1A1A1A")).
				Background(lipgloss.Color("#FAFAFA")).
				Padding(0, 1)

	// Note colors
	noteColors = map[string]string{
		"C": "#E8D6B0", // Beige
		"D": "#A020F0", // Purple
		"E": "#FFFF00", // Yellow
		"F": "#FFA500", // Orange
		"G": "#00FF00", // Green
		"A": "#FF0000", // Red
		"B": "#0000FF", // Blue
	}

	inTuneColor   = lipgloss.Color("#00D75F")
	slightlyColor = lipgloss.Color("#FFD700")
	offColor      = lipgloss.Color("#FF5F5F")
)

// nextNatural returns the natural note above a natural note name, used for
// the right half of a sharp's split color.
func nextNatural(note string) string {
	switch note {
	case "C":
		return "D"
	case "D":
		return "E"
	case "E":
		return "F"
	case "F":
		return "G"
	case "G":
		return "A"
	case "A":
		return "B"
	default:
		return "C"
	}
}

func noteBoxStyle(color string) lipgloss.Style {
	return lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("#FAFAFA")).
		Background(lipgloss.Color(color)).
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("#333333")).
		Padding(2, 4)
}

// renderNote draws the note name and octave in its color. Sharps are split
// between the colors of the two naturals around them.
func renderNote(name string, octave int) string {
	text := name + strconv.Itoa(octave)
	if !strings.HasSuffix(name, "#") {
		return noteBoxStyle(noteColors[name]).Render(text)
	}

	base := name[:1]
	left := noteBoxStyle(noteColors[base]).
		Border(lipgloss.RoundedBorder(), true, false, true, true).
		PaddingRight(1)
	right := noteBoxStyle(noteColors[nextNatural(base)]).
		Border(lipgloss.RoundedBorder(), true, true, true, false).
		PaddingLeft(1)
	return lipgloss.JoinHorizontal(lipgloss.Top, left.Render(base), right.Render(text[1:]))
}
