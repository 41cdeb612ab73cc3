package main

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"clave/metronome"
)

// TUI message types
type engineTickMsg metronome.TickEvent
type engineTransportMsg metronome.TransportChange
type engineNoticeMsg metronome.Notice
type frameMsg time.Time

// editMode selects what the arrow keys adjust.
type editMode int

const (
	editTempo editMode = iota
	editBeats
)

func (m editMode) String() string {
	if m == editBeats {
		return "beats"
	}
	return "tempo"
}

// Pre-computed styles to avoid allocations in the render loop
var (
	titleStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("205")).Bold(true)
	runningStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
	pausedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Bold(true)
	stoppedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	tempoStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("255")).Bold(true)
	meterStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	litAccent     = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	litBeat       = lipgloss.NewStyle().Foreground(lipgloss.Color("226")).Bold(true)
	dimAccent     = lipgloss.NewStyle().Foreground(lipgloss.Color("88"))
	dimBeat       = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	subDotStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("238"))
	subLitStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("250"))
	modeStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	noticeStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("208"))
	helpStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("239"))
	helpBoldStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("239")).Bold(true)
)

const noticeHold = 3 * time.Second

type tuiModel struct {
	engine *metronome.Engine
	events *metronome.Subscription
	spec   metronome.TempoSpec
	phase  metronome.Phase

	beat     int
	sub      int
	accented bool
	seq      uint64
	flash    int // frames the current beat stays lit

	mode       editMode
	lastNotice string
	noticeAt   time.Time

	width, height int
}

func newTUIModel(engine *metronome.Engine, events *metronome.Subscription, spec metronome.TempoSpec) tuiModel {
	return tuiModel{
		engine: engine,
		events: events,
		spec:   spec,
		phase:  engine.Phase(),
		beat:   -1,
	}
}

func frameTick() tea.Cmd {
	return tea.Tick(50*time.Millisecond, func(t time.Time) tea.Msg {
		return frameMsg(t)
	})
}

func (m tuiModel) Init() tea.Cmd {
	return frameTick()
}

func (m tuiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tea.KeyMsg:
		return m.handleKey(msg)

	case frameMsg:
		if m.flash > 0 {
			m.flash--
		}
		return m, frameTick()

	case engineTickMsg:
		m.beat = msg.Beat
		m.sub = msg.Sub
		m.accented = msg.Accented
		m.seq = msg.Seq
		m.flash = 2

	case engineTransportMsg:
		m.phase = msg.Phase
		m.spec = msg.Spec
		if msg.Phase == metronome.Stopped {
			m.beat = -1
			m.sub = 0
			m.seq = 0
		}

	case engineNoticeMsg:
		switch msg.Kind {
		case metronome.MissedDeadline:
			m.lastNotice = fmt.Sprintf("missed deadline by %s, skipped %d", msg.Drift.Round(time.Millisecond), msg.Skipped)
		case metronome.AudioUnavailable:
			m.lastNotice = fmt.Sprintf("audio unavailable: %v", msg.Err)
		}
		m.noticeAt = time.Now()
	}
	return m, nil
}

func (m tuiModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit

	case " ":
		if m.phase == metronome.Stopped {
			m.reportErr(m.engine.Start(m.spec))
		} else {
			m.reportErr(m.engine.Stop())
		}

	case "p":
		switch m.phase {
		case metronome.Running:
			m.reportErr(m.engine.Pause())
		case metronome.Paused:
			m.reportErr(m.engine.Resume())
		}

	case "up":
		m.adjust(1)
	case "down":
		m.adjust(-1)

	case "m":
		if m.mode == editTempo {
			m.mode = editBeats
		} else {
			m.mode = editTempo
		}

	case "1", "2", "3", "4", "5", "6", "7", "8", "9":
		m.spec.Subdivision = int(msg.String()[0] - '0')
		m.applySpec()
	}
	return m, nil
}

// reportErr shows a rejected transport command on the notice line.
func (m *tuiModel) reportErr(err error) {
	if err != nil {
		m.lastNotice = err.Error()
		m.noticeAt = time.Now()
	}
}

// adjust nudges tempo or bar length by delta depending on the edit
// mode, clamping at the engine's limits.
func (m *tuiModel) adjust(delta int) {
	switch m.mode {
	case editTempo:
		bpm := m.spec.BPM + float64(delta)
		if bpm < metronome.MinBPM {
			bpm = metronome.MinBPM
		}
		if bpm > metronome.MaxBPM {
			bpm = metronome.MaxBPM
		}
		m.spec.BPM = bpm
	case editBeats:
		beats := m.spec.BeatsPerBar + delta
		if beats < 1 {
			beats = 1
		}
		if beats > metronome.MaxBeatsPerBar {
			beats = metronome.MaxBeatsPerBar
		}
		m.spec.BeatsPerBar = beats
		m.spec.Accents = resizeAccents(m.spec.Accents, beats)
	}
	m.applySpec()
}

// applySpec pushes the edited spec to a live session. When stopped the
// new values just take effect at the next start.
func (m *tuiModel) applySpec() {
	if m.phase == metronome.Running || m.phase == metronome.Paused {
		if err := m.engine.SetTempo(m.spec); err != nil {
			m.reportErr(err)
			m.spec = m.engine.Spec()
		}
	}
}

func (m tuiModel) View() string {
	if m.width == 0 || m.height == 0 {
		return "Loading..."
	}

	var b strings.Builder
	b.WriteString("\n  " + titleStyle.Render("clave") + "\n\n")

	// Transport and tempo line
	var phaseLabel string
	switch m.phase {
	case metronome.Running:
		phaseLabel = runningStyle.Render("● RUNNING")
	case metronome.Paused:
		phaseLabel = pausedStyle.Render("◐ PAUSED ")
	default:
		phaseLabel = stoppedStyle.Render("○ STOPPED")
	}
	tempo := tempoStyle.Render(fmt.Sprintf("%.1f BPM", m.spec.BPM))
	meter := meterStyle.Render(fmt.Sprintf("%d beats", m.spec.BeatsPerBar))
	subdiv := meterStyle.Render(fmt.Sprintf("♪ x%d", m.spec.Subdivision))
	line := fmt.Sprintf("  %s   %s   %s   %s", phaseLabel, tempo, meter, subdiv)
	if m.phase == metronome.Running {
		bar := m.seq/uint64(m.spec.Subdivision*m.spec.BeatsPerBar) + 1
		line += "   " + meterStyle.Render(fmt.Sprintf("bar %d", bar))
	}
	b.WriteString(line + "\n\n")

	// Beat dots, accents larger, the sounding beat lit
	b.WriteString("  " + m.renderBeats() + "\n")
	if m.spec.Subdivision > 1 {
		b.WriteString("  " + m.renderSubs() + "\n")
	}
	b.WriteString("\n")

	b.WriteString("  " + modeStyle.Render(fmt.Sprintf("editing: %s (↑/↓)", m.mode)) + "\n")

	switch {
	case m.lastNotice != "" && time.Since(m.noticeAt) < noticeHold:
		b.WriteString("  " + noticeStyle.Render("⚠ "+m.lastNotice) + "\n")
	case m.events.Dropped() > 0:
		b.WriteString("  " + modeStyle.Render(fmt.Sprintf("dropped events: %d", m.events.Dropped())) + "\n")
	default:
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString("  " + helpBoldStyle.Render("space") + helpStyle.Render(" start/stop  ") +
		helpBoldStyle.Render("p") + helpStyle.Render(" pause  ") +
		helpBoldStyle.Render("↑/↓") + helpStyle.Render(" adjust  ") +
		helpBoldStyle.Render("m") + helpStyle.Render(" mode  ") +
		helpBoldStyle.Render("1-9") + helpStyle.Render(" subdiv  ") +
		helpBoldStyle.Render("q") + helpStyle.Render(" quit") + "\n")
	b.WriteString("  " + helpStyle.Render("clave "+version) + "\n")

	return b.String()
}

func (m tuiModel) renderBeats() string {
	var b strings.Builder
	for i := 0; i < m.spec.BeatsPerBar; i++ {
		accent := i < len(m.spec.Accents) && m.spec.Accents[i]
		lit := m.phase == metronome.Running && i == m.beat && m.flash > 0
		switch {
		case lit && accent:
			b.WriteString(litAccent.Render("●"))
		case lit:
			b.WriteString(litBeat.Render("●"))
		case accent:
			b.WriteString(dimAccent.Render("●"))
		default:
			b.WriteString(dimBeat.Render("○"))
		}
		b.WriteString("  ")
	}
	return b.String()
}

func (m tuiModel) renderSubs() string {
	var b strings.Builder
	for i := 0; i < m.spec.Subdivision; i++ {
		if m.phase == metronome.Running && i == m.sub && m.flash > 0 {
			b.WriteString(subLitStyle.Render("·"))
		} else {
			b.WriteString(subDotStyle.Render("·"))
		}
		b.WriteString(" ")
	}
	return b.String()
}

// runTUI pumps engine events into the bubbletea program and blocks
// until the user quits.
func runTUI(engine *metronome.Engine, spec metronome.TempoSpec) error {
	sub := engine.Subscribe(0)
	p := tea.NewProgram(newTUIModel(engine, sub, spec), tea.WithAltScreen())

	done := make(chan struct{})
	go func() {
		for {
			select {
			case ev := <-sub.C():
				switch e := ev.(type) {
				case metronome.TickEvent:
					p.Send(engineTickMsg(e))
				case metronome.TransportChange:
					p.Send(engineTransportMsg(e))
				case metronome.Notice:
					logNotice(e)
					p.Send(engineNoticeMsg(e))
				}
			case <-done:
				return
			}
		}
	}()

	_, err := p.Run()
	close(done)
	sub.Close()
	if engine.Phase() != metronome.Stopped {
		engine.Stop()
	}
	return err
}
