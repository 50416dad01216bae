package tui

import (
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

func TestViewListsStreamsAndSessions(t *testing.T) {
	m := model{
		startTime: time.Now(),
		status: Status{
			Name: "relaycast",
			Addr: ":1704",
			Streams: []StreamInfo{
				{ID: "living-room", Codec: "flac", State: "playing", ListenerCount: 2, NowPlaying: "Artist - Title"},
			},
			Sessions: []SessionInfo{
				{ID: "abc", ClientName: "kitchen-speaker", StreamID: "living-room", Codec: "flac", Volume: 80},
			},
		},
	}

	out := m.View()

	for _, want := range []string{"relaycast", ":1704", "living-room", "flac", "kitchen-speaker", "Artist - Title"} {
		if !strings.Contains(out, want) {
			t.Errorf("View() missing %q, got:\n%s", want, out)
		}
	}
}

func TestViewShowsQuittingMessage(t *testing.T) {
	m := model{quitting: true}
	if got := m.View(); got != "Shutting down...\n" {
		t.Errorf("View() = %q", got)
	}
}

func TestViewReportsChronyUnavailable(t *testing.T) {
	m := model{status: Status{Clock: ClockInfo{Available: false}}}
	if !strings.Contains(m.View(), "unavailable") {
		t.Errorf("View() should mention chrony unavailability")
	}
}

func TestUpdateHandlesQuitKeyWithoutBlocking(t *testing.T) {
	quitChan := make(chan struct{}, 1)
	m := model{quitChan: quitChan}

	updated, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}})
	if !updated.(model).quitting {
		t.Errorf("expected quitting to be set")
	}
	if cmd == nil {
		t.Errorf("expected a quit command")
	}
	select {
	case <-quitChan:
	default:
		t.Errorf("expected quitChan to receive a signal")
	}
}
