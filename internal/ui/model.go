package ui

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/mmcmkm/speech-to-text/internal/pipeline"
	"github.com/mmcmkm/speech-to-text/internal/transcription"
	"github.com/mmcmkm/speech-to-text/internal/vad"
)

const (
	levelInterval  = 100 * time.Millisecond
	noticeDuration = 3 * time.Second
	commandTimeout = 10 * time.Second
	maxRecent      = 5
)

// Controller is the pipeline surface the TUI drives
type Controller interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Snapshot() pipeline.Snapshot
	SetSilenceDetection(enabled bool)
}

// Settings holds the selectable transcription mode and model
type Settings interface {
	Mode() transcription.Mode
	Model() string
	SetMode(mode transcription.Mode) error
}

// Meter reports the live input level and silence settings
type Meter interface {
	Level() float64
	SilenceStats() vad.DetectorStats
}

// RecentEntry is a finished transcription shown under the current result
type RecentEntry struct {
	Text string
	At   time.Time
}

// Model is the root bubbletea model.
type Model struct {
	controller Controller
	settings   Settings
	meter      Meter

	snapshot pipeline.Snapshot
	level    float64
	ticking  bool

	lastText   string
	lastMeta   string
	recent     []RecentEntry
	errMessage string

	notice    string
	noticeSeq int

	width  int
	height int
}

// New creates a Model bound to the running pipeline.
func New(controller Controller, settings Settings, meter Meter) Model {
	return Model{
		controller: controller,
		settings:   settings,
		meter:      meter,
		snapshot:   controller.Snapshot(),
	}
}

func (m Model) Init() tea.Cmd {
	return nil
}

func startCmd(c Controller) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
		defer cancel()
		return actionDoneMsg{action: "start", err: c.Start(ctx)}
	}
}

func stopCmd(c Controller) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
		defer cancel()
		return actionDoneMsg{action: "stop", err: c.Stop(ctx)}
	}
}

func levelTickCmd() tea.Cmd {
	return tea.Tick(levelInterval, func(time.Time) tea.Msg {
		return levelTickMsg{}
	})
}

func clearNoticeCmd(seq int) tea.Cmd {
	return tea.Tick(noticeDuration, func(time.Time) tea.Msg {
		return clearNoticeMsg{seq: seq}
	})
}

// Update processes messages and returns the updated model and any commands.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {

	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case EventMsg:
		cmd := m.handleEvent(msg.Event)
		m.snapshot = m.controller.Snapshot()
		return m, cmd

	case actionDoneMsg:
		if msg.err != nil {
			m.errMessage = fmt.Sprintf("%s failed: %v", msg.action, msg.err)
		}
		m.snapshot = m.controller.Snapshot()
		return m, nil

	case levelTickMsg:
		if m.snapshot.State != pipeline.StateCapturing.String() {
			m.ticking = false
			m.level = 0
			return m, nil
		}
		m.level = m.meter.Level()
		return m, levelTickCmd()

	case clearNoticeMsg:
		if msg.seq == m.noticeSeq {
			m.notice = ""
		}
		return m, nil
	}

	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case KeyQuit, KeyCtrlC:
		return m, tea.Quit

	case KeyStart:
		return m, startCmd(m.controller)

	case KeySpace:
		if m.snapshot.State == pipeline.StateCapturing.String() {
			return m, stopCmd(m.controller)
		}
		return m, startCmd(m.controller)

	case KeyStop:
		return m, stopCmd(m.controller)

	case KeyCycleMode:
		next := transcription.NextMode(m.settings.Mode())
		if err := m.settings.SetMode(next); err != nil {
			m.errMessage = err.Error()
			return m, nil
		}
		info, _ := transcription.LookupMode(next)
		return m.setNotice("Mode: " + info.Name)

	case KeyToggleSilent:
		enabled := !m.snapshot.SilenceDetection
		m.controller.SetSilenceDetection(enabled)
		m.snapshot = m.controller.Snapshot()
		if enabled {
			return m.setNotice("Silence detection on")
		}
		return m.setNotice("Silence detection off")
	}

	return m, nil
}

func (m Model) setNotice(text string) (tea.Model, tea.Cmd) {
	m.noticeSeq++
	m.notice = text
	return m, clearNoticeCmd(m.noticeSeq)
}

// handleEvent applies a controller event and returns any resulting command.
func (m *Model) handleEvent(ev pipeline.Event) tea.Cmd {
	switch ev := ev.(type) {
	case pipeline.CaptureStateChanged:
		if ev.Capturing {
			m.errMessage = ""
			if !m.ticking {
				m.ticking = true
				return levelTickCmd()
			}
		}

	case pipeline.SilenceCancelled:
		m.noticeSeq++
		m.notice = "Stopped after silence"
		return clearNoticeCmd(m.noticeSeq)

	case pipeline.CaptureFailed:
		m.errMessage = "Capture failed: " + ev.Err.Error()

	case pipeline.TranscriptionFinished:
		r := ev.Result
		if !r.OK() {
			m.errMessage = r.Err.Message
			return nil
		}
		m.errMessage = ""
		if m.lastText != "" {
			m.recent = append([]RecentEntry{{Text: m.lastText, At: time.Now()}}, m.recent...)
			if len(m.recent) > maxRecent {
				m.recent = m.recent[:maxRecent]
			}
		}
		m.lastText = r.Text
		m.lastMeta = fmt.Sprintf("%s · %s · %s", r.Mode, r.Model, r.Duration.Round(10*time.Millisecond))
	}
	return nil
}

// View renders the full TUI.
func (m Model) View() string {
	var sections []string

	sections = append(sections, TitleStyle.Render("SPEECH TO TEXT"))
	sections = append(sections, m.renderStatus())
	sections = append(sections, m.renderSettings())

	if m.lastText != "" {
		sections = append(sections, DimStyle.Render(m.lastMeta))
		sections = append(sections, ResultStyle.Width(m.textWidth()).Render(m.lastText))
	}

	if len(m.recent) > 0 {
		var lines []string
		for _, e := range m.recent {
			lines = append(lines, DimStyle.Render(e.At.Format("15:04:05")+"  ")+truncate(e.Text, m.textWidth()-10))
		}
		sections = append(sections, strings.Join(lines, "\n"))
	}

	if m.errMessage != "" {
		sections = append(sections, ErrorStyle.Render("Error: ")+ErrorTextStyle.Render(m.errMessage))
	}
	if m.notice != "" {
		sections = append(sections, DimStyle.Render(m.notice))
	}

	sections = append(sections, m.renderFooter())

	return strings.Join(sections, "\n\n") + "\n"
}

func (m Model) renderStatus() string {
	var dot string
	switch m.snapshot.State {
	case pipeline.StateCapturing.String():
		dot = CaptureDotStyle.Render("● REC") + "  " + renderLevelMeter(m.level)
	case pipeline.StateStopping.String(), pipeline.StateTranscribing.String():
		dot = BusyStyle.Render("⟳ TRANSCRIBING")
	default:
		dot = IdleDotStyle.Render("○ IDLE")
	}
	return dot
}

func (m Model) renderSettings() string {
	silence := "off"
	if m.snapshot.SilenceDetection {
		stats := m.meter.SilenceStats()
		silence = fmt.Sprintf("on  (threshold %.3f, %s)", stats.Threshold, stats.SilenceDuration)
	}

	info, _ := transcription.LookupMode(m.settings.Mode())
	rows := [][2]string{
		{"Mode", info.Name},
		{"Model", m.settings.Model()},
		{"Silence", silence},
	}

	var lines []string
	for _, r := range rows {
		lines = append(lines, LabelStyle.Render(r[0])+ValueStyle.Render(r[1]))
	}
	return strings.Join(lines, "\n")
}

// renderLevelMeter draws the normalized RMS level. Speech rarely exceeds
// 0.25 so the bar is scaled by four.
func renderLevelMeter(level float64) string {
	const barLen = 16
	filled := int(level * 4 * barLen)
	if filled > barLen {
		filled = barLen
	}

	var b strings.Builder
	for i := 0; i < barLen; i++ {
		switch {
		case i >= filled:
			b.WriteString(LevelGrayStyle.Render("░"))
		case float64(i)/barLen > 0.6:
			b.WriteString(LevelYellowStyle.Render("█"))
		default:
			b.WriteString(LevelGreenStyle.Render("█"))
		}
	}
	return b.String()
}

func (m Model) renderFooter() string {
	var parts []string

	if m.snapshot.State == pipeline.StateCapturing.String() {
		parts = append(parts, FooterKeyStyle.Render("Space/s")+FooterDescStyle.Render(" Stop"))
	} else {
		parts = append(parts, FooterKeyStyle.Render("Space/r")+FooterDescStyle.Render(" Record"))
	}
	parts = append(parts, FooterKeyStyle.Render("m")+FooterDescStyle.Render(" Mode"))
	parts = append(parts, FooterKeyStyle.Render("d")+FooterDescStyle.Render(" Silence"))
	parts = append(parts, FooterKeyStyle.Render("q")+FooterDescStyle.Render(" Quit"))

	return strings.Join(parts, "  ")
}

func (m Model) textWidth() int {
	if m.width == 0 {
		return 76
	}
	return max(20, m.width-4)
}

func truncate(s string, width int) string {
	runes := []rune(s)
	if width < 2 || len(runes) <= width {
		return s
	}
	return string(runes[:width-1]) + "…"
}
