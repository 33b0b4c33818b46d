// ABOUTME: Tests for the server TUI
// ABOUTME: Drives the bubbletea model directly without a terminal
package server

import (
	"strings"
	"testing"
	"time"

	"github.com/Resonate-Protocol/pcmcast/internal/distribute"
	tea "github.com/charmbracelet/bubbletea"
)

type fakeSource struct {
	status Status
	calls  int
}

func (f *fakeSource) Status() Status {
	f.calls++
	return f.status
}

func TestTUIViewShowsStatus(t *testing.T) {
	src := &fakeSource{status: Status{
		Name:            "living-room",
		Addr:            "0.0.0.0:1234",
		Format:          streamFormat,
		ProgramDuration: 2 * time.Second,
		Policy:          distribute.Status{Mode: distribute.ModeSync, Length: 252, Position: 9, Loops: 2, Running: true},
		Clients: []ClientInfo{
			{RemoteAddr: "10.0.0.7:50000", Transport: TransportTCP, Bytes: 2048, Chunks: 8},
		},
	}}

	view := newTUIModel(src).View()
	for _, want := range []string{"living-room", "0.0.0.0:1234", "16000Hz/16bit/1ch", "chunk 10/252", "10.0.0.7:50000", "2.0 KiB", "Connected Clients (1)"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q:\n%s", want, view)
		}
	}
}

func TestTUITickRefreshesStatus(t *testing.T) {
	src := &fakeSource{}
	m := newTUIModel(src)

	src.status.Name = "renamed"
	updated, cmd := m.Update(tickMsg(time.Now()))
	if cmd == nil {
		t.Error("tick should schedule the next tick")
	}
	if got := updated.(tuiModel).status.Name; got != "renamed" {
		t.Errorf("status not refreshed, name = %q", got)
	}
	if src.calls != 2 {
		t.Errorf("Status called %d times, want 2", src.calls)
	}
}

func TestTUIQuitKeys(t *testing.T) {
	for _, key := range []tea.KeyMsg{
		{Type: tea.KeyRunes, Runes: []rune{'q'}},
		{Type: tea.KeyCtrlC},
	} {
		t.Run(key.String(), func(t *testing.T) {
			updated, cmd := newTUIModel(&fakeSource{}).Update(key)
			if cmd == nil {
				t.Fatal("quit key should return a command")
			}
			if !updated.(tuiModel).quitting {
				t.Error("model should be quitting")
			}
			if !strings.Contains(updated.View(), "Shutting down") {
				t.Error("quitting view should say so")
			}
		})
	}
}

func TestModeLine(t *testing.T) {
	tests := []struct {
		name   string
		status distribute.Status
		want   string
	}{
		{"sync starting", distribute.Status{Mode: distribute.ModeSync, Length: 10, Position: -1}, "sync (starting)"},
		{"sync running", distribute.Status{Mode: distribute.ModeSync, Length: 10, Position: 0}, "sync, chunk 1/10, loop 1"},
		{"replay", distribute.Status{Mode: distribute.ModeReplay, Position: -1}, "replay"},
		{"replay looping", distribute.Status{Mode: distribute.ModeReplay, Position: -1, Loop: true}, "replay (looping)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := modeLine(tt.status); got != tt.want {
				t.Errorf("modeLine() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		in   uint64
		want string
	}{
		{0, "0 B"},
		{1023, "1023 B"},
		{1024, "1.0 KiB"},
		{1536, "1.5 KiB"},
		{5 * 1024 * 1024, "5.0 MiB"},
	}
	for _, tt := range tests {
		if got := formatBytes(tt.in); got != tt.want {
			t.Errorf("formatBytes(%d) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
