package ui

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/0xlemi/stringtuner/internal/pitch"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

const (
	// holdDuration keeps the last reading on screen after detections stop.
	holdDuration = time.Second

	tickInterval = 100 * time.Millisecond

	gaugeWidth = 31

	meterWidth = 30
	meterFloor = -60.0 // dB at an empty meter
)

// TickMsg represents a timer tick
type TickMsg time.Time

// FrequencyMsg carries one detection from the loop.
type FrequencyMsg struct {
	Hz float64
	At time.Time
}

// LevelMsg carries the input level of the latest window.
type LevelMsg struct {
	RMS float64
	DB  float64
}

// ErrMsg reports a background failure, such as the loop ending.
type ErrMsg struct{ Err error }

// ClearMsg drops the current reading.
type ClearMsg struct{}

// Model represents the UI state
type Model struct {
	tuning   pitch.Tuning
	mapper   pitch.Mapper
	selected int
	source   string

	reading     *pitch.Reading
	lastReading time.Time
	rms, db     float64
	err         error

	width  int
	height int
}

// NewModel creates the tuner view with target string selected. Unknown
// strings select the first one.
func NewModel(tuning pitch.Tuning, target pitch.StringID, mapper pitch.Mapper, source string) Model {
	selected := tuning.Index(target)
	if selected < 0 {
		selected = 0
	}
	return Model{
		tuning:   tuning,
		mapper:   mapper,
		selected: selected,
		source:   source,
		db:       -100,
	}
}

func tick() tea.Cmd {
	return tea.Tick(tickInterval, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}

// Init starts the hold timer.
func (m Model) Init() tea.Cmd {
	return tick()
}

// Target returns the selected string.
func (m Model) Target() pitch.TuningNote {
	return m.tuning.Strings[m.selected]
}

// Reading returns the displayed reading, if any.
func (m Model) Reading() (pitch.Reading, bool) {
	if m.reading == nil {
		return pitch.Reading{}, false
	}
	return *m.reading, true
}

// Update updates the UI model based on messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch key := msg.String(); key {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		case "left", "h":
			m = m.selectString((m.selected + len(m.tuning.Strings) - 1) % len(m.tuning.Strings))
		case "right", "l":
			m = m.selectString((m.selected + 1) % len(m.tuning.Strings))
		default:
			if n, err := strconv.Atoi(key); err == nil && n >= 1 && n <= len(m.tuning.Strings) {
				m = m.selectString(n - 1)
			}
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case TickMsg:
		if m.reading != nil && time.Time(msg).Sub(m.lastReading) > holdDuration {
			m.reading = nil
		}
		return m, tick()

	case FrequencyMsg:
		r, err := m.Target().ReadWith(m.mapper, msg.Hz)
		if err != nil {
			m.err = err
			return m, nil
		}
		m.reading = &r
		m.lastReading = msg.At

	case LevelMsg:
		m.rms = msg.RMS
		m.db = msg.DB

	case ClearMsg:
		m.reading = nil

	case ErrMsg:
		m.err = msg.Err
	}

	return m, nil
}

func (m Model) selectString(i int) Model {
	if i != m.selected {
		m.selected = i
		m.reading = nil
	}
	return m
}

// View renders the UI
func (m Model) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("StringTuner - Guitar Tuner"))
	b.WriteString("\n")
	b.WriteString(m.renderStrings())
	b.WriteString("\n")

	target := m.Target()
	b.WriteString(infoStyle.Render(fmt.Sprintf("Target: %s (%.2f Hz)", target.ID, target.Frequency)))
	b.WriteString("\n\n")

	if m.reading != nil {
		r := m.reading
		b.WriteString(renderNote(r.Note.Name, r.Note.Octave))
		b.WriteString("\n")
		b.WriteString(renderGauge(r.Needle))
		b.WriteString("\n")
		b.WriteString(statusStyle(r.Status).Render(r.Status.String()))
		if r.Active {
			b.WriteString(infoStyle.Render(fmt.Sprintf("  %s string", target.Label)))
		}
		b.WriteString("\n")
		b.WriteString(infoStyle.Render(fmt.Sprintf("Frequency: %.2f Hz | Cents: %+.1f", r.Frequency, r.Cents)))
	} else {
		b.WriteString(infoStyle.Render("Listening..."))
	}
	b.WriteString("\n\n")

	b.WriteString(infoStyle.Render(fmt.Sprintf("Input %s %6.1f dB", renderMeter(m.db), m.db)))
	if m.source != "" {
		b.WriteString(infoStyle.Render("  (" + m.source + ")"))
	}
	b.WriteString("\n")

	if m.err != nil {
		b.WriteString(errorStyle.Render("Error: " + m.err.Error()))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(infoStyle.Render("←/→ or 1-6 select string · q quit"))
	return b.String()
}

func (m Model) renderStrings() string {
	cells := make([]string, len(m.tuning.Strings))
	for i, s := range m.tuning.Strings {
		style := stringStyle
		if i == m.selected {
			style = selectedStringStyle
		}
		cells[i] = style.Render(s.Label)
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, cells...)
}

func statusStyle(s pitch.Status) lipgloss.Style {
	style := lipgloss.NewStyle().Bold(true)
	switch s {
	case pitch.InTune:
		return style.Foreground(inTuneColor)
	case pitch.SlightlyFlat, pitch.SlightlySharp:
		return style.Foreground(slightlyColor)
	default:
		return style.Foreground(offColor)
	}
}

// renderGauge draws the needle on a -45..+45 degree scale.
func renderGauge(needle float64) string {
	cells := []rune(strings.Repeat("─", gaugeWidth))
	center := gaugeWidth / 2
	cells[center] = '┼'
	pos := int(math.Round((needle + 45) / 90 * float64(gaugeWidth-1)))
	pos = max(0, min(gaugeWidth-1, pos))
	cells[pos] = '●'
	return "♭ " + string(cells) + " ♯"
}

// renderMeter draws a level bar from meterFloor to 0 dB.
func renderMeter(db float64) string {
	frac := (db - meterFloor) / -meterFloor
	frac = math.Max(0, math.Min(1, frac))
	filled := int(math.Round(frac * meterWidth))
	return "[" + strings.Repeat("█", filled) + strings.Repeat(" ", meterWidth-filled) + "]"
}
