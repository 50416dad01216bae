// ABOUTME: Live terminal dashboard over a server's streams, sessions, and zero-copy/chrony diagnostics
// ABOUTME: Grounded on the teacher's internal/server.ServerTUI: same push-channel-into-bubbletea-program shape, generalized from one audio engine to many streams
package tui

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// StreamInfo is one stream's row in the dashboard.
type StreamInfo struct {
	ID            string
	Codec         string
	State         string
	ListenerCount int
	NowPlaying    string
}

// SessionInfo is one connected client's row in the dashboard.
type SessionInfo struct {
	ID         string
	ClientName string
	StreamID   string
	Codec      string
	Muted      bool
	Volume     int
}

// ClockInfo is the optional chrony-vs-local skew reading; Available is
// false until the first successful poll, or permanently false if
// chronyc isn't installed. Display-only, per internal/timediag.
type ClockInfo struct {
	Available    bool
	Stratum      string
	LastOffsetMs float64
	SkewPPM      float64
}

// Status is a full snapshot of what the dashboard should show.
type Status struct {
	Name     string
	Addr     string
	Streams  []StreamInfo
	Sessions []SessionInfo
	Clock    ClockInfo
}

// ServerTUI drives a bubbletea program from a stream of Status updates
// pushed in from outside (the teacher's pull-from-engine model inverted
// into a push, since relaycast's server state lives behind fanout's own
// mutex rather than inside the TUI's owner).
type ServerTUI struct {
	program  *tea.Program
	updates  chan Status
	quitChan chan struct{}
}

// New constructs a dashboard. Its name and addr arguments are not used;
// the name and address shown are the ones passed to Run.
func New(name, addr string) *ServerTUI {
	return &ServerTUI{
		updates:  make(chan Status, 10),
		quitChan: make(chan struct{}, 1),
	}
}

// Run starts the bubbletea program and blocks until the user quits or
// Stop is called.
func (t *ServerTUI) Run(name, addr string) error {
	m := model{
		status:    Status{Name: name, Addr: addr},
		startTime: time.Now(),
		quitChan:  t.quitChan,
	}
	t.program = tea.NewProgram(m, tea.WithAltScreen())

	go func() {
		for status := range t.updates {
			if t.program != nil {
				t.program.Send(statusMsg(status))
			}
		}
	}()

	_, err := t.program.Run()
	return err
}

// Update pushes a fresh snapshot to the dashboard; non-blocking, so a
// slow or absent TUI never stalls the caller.
func (t *ServerTUI) Update(status Status) {
	select {
	case t.updates <- status:
	default:
	}
}

// Stop tears down the bubbletea program.
func (t *ServerTUI) Stop() {
	if t.program != nil {
		t.program.Quit()
	}
	close(t.updates)
}

// QuitChan signals when the user asked to quit from within the TUI, so
// the owning process can shut the rest of the server down too.
func (t *ServerTUI) QuitChan() <-chan struct{} { return t.quitChan }

type model struct {
	status    Status
	startTime time.Time
	quitting  bool
	quitChan  chan struct{}
}

type tickMsg time.Time
type statusMsg Status

func (m model) Init() tea.Cmd {
	return tickEvery()
}

func tickEvery() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "q" || msg.String() == "ctrl+c" {
			m.quitting = true
			select {
			case m.quitChan <- struct{}{}:
			default:
			}
			return m, tea.Quit
		}

	case tickMsg:
		return m, tickEvery()

	case statusMsg:
		m.status = Status(msg)
		return m, nil
	}

	return m, nil
}

func (m model) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}

	titleStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205")).MarginBottom(1)
	headerStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86"))
	valueStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("250"))
	sectionStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("220"))
	warnStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("203"))

	var b strings.Builder

	b.WriteString(titleStyle.Render("relaycast server"))
	b.WriteString("\n\n")

	b.WriteString(headerStyle.Render("Name: "))
	b.WriteString(valueStyle.Render(m.status.Name))
	b.WriteString("\n")

	b.WriteString(headerStyle.Render("Listening: "))
	b.WriteString(valueStyle.Render(m.status.Addr))
	b.WriteString("\n")

	b.WriteString(headerStyle.Render("Uptime: "))
	b.WriteString(valueStyle.Render(time.Since(m.startTime).Round(time.Second).String()))
	b.WriteString("\n")

	if m.status.Clock.Available {
		b.WriteString(headerStyle.Render("Chrony: "))
		b.WriteString(valueStyle.Render(fmt.Sprintf("stratum %s, offset %.3fms, skew %.3fppm",
			m.status.Clock.Stratum, m.status.Clock.LastOffsetMs, m.status.Clock.SkewPPM)))
		b.WriteString("\n")
	} else {
		b.WriteString(warnStyle.Render("Chrony: unavailable (diagnostics only, playback unaffected)"))
		b.WriteString("\n")
	}
	b.WriteString("\n")

	b.WriteString(sectionStyle.Render(fmt.Sprintf("Streams (%d)", len(m.status.Streams))))
	b.WriteString("\n\n")
	if len(m.status.Streams) == 0 {
		b.WriteString(valueStyle.Render("  none registered"))
		b.WriteString("\n")
	}
	for _, st := range m.status.Streams {
		b.WriteString(fmt.Sprintf("  * %s ", st.ID))
		b.WriteString(valueStyle.Render(fmt.Sprintf("(%s, %s, %d listeners)", st.Codec, st.State, st.ListenerCount)))
		if st.NowPlaying != "" {
			b.WriteString(valueStyle.Render(" - " + st.NowPlaying))
		}
		b.WriteString("\n")
	}
	b.WriteString("\n")

	b.WriteString(sectionStyle.Render(fmt.Sprintf("Clients (%d)", len(m.status.Sessions))))
	b.WriteString("\n\n")
	if len(m.status.Sessions) == 0 {
		b.WriteString(valueStyle.Render("  no clients connected"))
		b.WriteString("\n")
	}
	for _, sess := range m.status.Sessions {
		mute := ""
		if sess.Muted {
			mute = ", muted"
		}
		b.WriteString(fmt.Sprintf("  * %s ", sess.ClientName))
		b.WriteString(valueStyle.Render(fmt.Sprintf("(%s, vol %d%s, stream %s)", sess.Codec, sess.Volume, mute, sess.StreamID)))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(lipgloss.NewStyle().Faint(true).Render("Press 'q' or Ctrl+C to quit"))

	return b.String()
}
