// Package watch implements the live CO2 monitor: a BubbleTea view that reads
// the sensor on a short interval and labels each value on the CO2-only ladder.
package watch

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/ghalamif/frostline/internal/airquality"
	"github.com/ghalamif/frostline/internal/domain"
	"github.com/ghalamif/frostline/internal/mhz19"
)

const DefaultInterval = 2 * time.Second

// Reader performs one CO2 transaction. *mhz19.Sensor satisfies it.
type Reader interface {
	Read() (mhz19.Result, error)
}

// ── Messages ─────────────────────────────────────────────────────────

type tickMsg time.Time

type co2Msg struct {
	result mhz19.Result
	err    error
	at     time.Time
}

// ── Model ────────────────────────────────────────────────────────────

// Model is the BubbleTea model for the live monitor.
type Model struct {
	reader     Reader
	thresholds airquality.Thresholds
	interval   time.Duration

	attempts  int
	successes int
	last      *mhz19.Result
	lastAt    time.Time
	err       error
	width     int
}

func New(r Reader, th airquality.Thresholds, interval time.Duration) Model {
	if interval <= 0 {
		interval = DefaultInterval
	}
	th.ApplyDefaults()
	return Model{reader: r, thresholds: th, interval: interval}
}

// ── Commands ─────────────────────────────────────────────────────────

func (m Model) tickCmd() tea.Cmd {
	return tea.Tick(m.interval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m Model) readCmd() tea.Msg {
	res, err := m.reader.Read()
	return co2Msg{result: res, err: err, at: time.Now()}
}

// ── Init / Update ────────────────────────────────────────────────────

func (m Model) Init() tea.Cmd {
	return m.readCmd
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width

	case tickMsg:
		return m, m.readCmd

	case co2Msg:
		m.attempts++
		if msg.err != nil {
			m.err = msg.err
		} else {
			m.err = nil
			m.successes++
			res := msg.result
			m.last = &res
			m.lastAt = msg.at
		}
		return m, m.tickCmd()
	}
	return m, nil
}

// SuccessRate is the share of successful reads, in percent.
func (m Model) SuccessRate() float64 {
	if m.attempts == 0 {
		return 0
	}
	return float64(m.successes) / float64(m.attempts) * 100
}

// ── Color palette ────────────────────────────────────────────────────

var (
	colorTitle = lipgloss.Color("51")
	colorDim   = lipgloss.Color("240")
	colorCrit  = lipgloss.Color("196")

	labelColors = map[domain.AirQuality]lipgloss.Color{
		domain.AirExcellent: lipgloss.Color("46"),
		domain.AirGood:      lipgloss.Color("78"),
		domain.AirFair:      lipgloss.Color("220"),
		domain.AirModerate:  lipgloss.Color("214"),
		domain.AirPoor:      lipgloss.Color("208"),
		domain.AirVeryPoor:  lipgloss.Color("196"),
		domain.AirUnknown:   lipgloss.Color("240"),
	}
)

// ── View ─────────────────────────────────────────────────────────────

func (m Model) View() string {
	var b strings.Builder

	title := lipgloss.NewStyle().Bold(true).Foreground(colorTitle)
	dim := lipgloss.NewStyle().Foreground(colorDim)

	b.WriteString(title.Render("frostline · CO2 monitor"))
	b.WriteString("\n\n")

	if m.last == nil {
		b.WriteString(dim.Render("  waiting for first reading..."))
	} else {
		ppm := m.last.PPM
		label := m.thresholds.CO2Label(&ppm)
		style := lipgloss.NewStyle().Bold(true).Foreground(labelColors[label])
		fmt.Fprintf(&b, "  CO2  %s  %s",
			style.Render(fmt.Sprintf("%4d ppm", ppm)),
			style.Render(strings.ToUpper(strings.ReplaceAll(string(label), "_", " "))),
		)
		if !m.last.ChecksumOK {
			b.WriteString(lipgloss.NewStyle().Foreground(colorCrit).Render("  checksum mismatch"))
		}
		fmt.Fprintf(&b, "\n  %s", dim.Render("at "+m.lastAt.Format("15:04:05")))
	}
	b.WriteString("\n\n")

	fmt.Fprintf(&b, "  Readings: %d   Success: %.1f%%\n", m.attempts, m.SuccessRate())
	if m.err != nil {
		b.WriteString(lipgloss.NewStyle().Foreground(colorCrit).Render("  last error: " + m.err.Error()))
		b.WriteString("\n")
	}
	b.WriteString("\n")
	b.WriteString(dim.Render(fmt.Sprintf("  every %s · q to quit", m.interval)))
	b.WriteString("\n")
	return b.String()
}

// Run starts the monitor on the terminal and blocks until the user quits.
func Run(r Reader, th airquality.Thresholds, interval time.Duration) error {
	_, err := tea.NewProgram(New(r, th, interval)).Run()
	return err
}
