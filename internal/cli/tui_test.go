package cli

import (
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/matzehuels/lilyenv/pkg/catalog"
	"github.com/matzehuels/lilyenv/pkg/version"
)

func key(s string) tea.KeyMsg {
	switch s {
	case "down":
		return tea.KeyMsg{Type: tea.KeyDown}
	case "up":
		return tea.KeyMsg{Type: tea.KeyUp}
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func pickerEntries() []catalog.Entry {
	return []catalog.Entry{
		{Build: py312, Name: "cpython-3.12.6+20240909-x86_64-unknown-linux-gnu-install_only.tar.gz", ReleaseTag: "20240909", Size: 2 << 20},
		{Build: py311, Name: "cpython-3.11.10+20240909-x86_64-unknown-linux-gnu-install_only.tar.gz", ReleaseTag: "20240909"},
	}
}

func TestBuildPickerSelect(t *testing.T) {
	var m tea.Model = NewBuildPickerModel(pickerEntries(), map[version.BuildID]bool{py312: true})

	m, _ = m.Update(key("down"))
	m, _ = m.Update(key("down"))
	if got := m.(BuildPickerModel).Cursor; got != 1 {
		t.Fatalf("cursor = %d, want 1 (clamped)", got)
	}
	m, _ = m.Update(key("k"))
	m, _ = m.Update(key("j"))

	m, cmd := m.Update(key("enter"))
	if cmd == nil {
		t.Fatal("enter should quit")
	}
	sel := m.(BuildPickerModel).Selected
	if sel == nil || sel.Build != py311 {
		t.Fatalf("selected = %v, want 3.11.10", sel)
	}
}

func TestBuildPickerQuit(t *testing.T) {
	var m tea.Model = NewBuildPickerModel(pickerEntries(), nil)
	m, cmd := m.Update(key("q"))
	if cmd == nil {
		t.Fatal("q should quit")
	}
	if m.(BuildPickerModel).Selected != nil {
		t.Error("quitting must not select a build")
	}
}

func TestBuildPickerScrolls(t *testing.T) {
	m := NewBuildPickerModel(pickerEntries(), nil)
	m.Height = 1

	next, _ := m.Update(key("down"))
	if got := next.(BuildPickerModel).Offset; got != 1 {
		t.Errorf("offset = %d, want 1", got)
	}
}

func TestBuildPickerView(t *testing.T) {
	m := NewBuildPickerModel(pickerEntries(), map[version.BuildID]bool{py312: true})
	view := m.View()
	for _, want := range []string{"Select Build", "3.12.6", "3.11.10"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q", want)
		}
	}
}

func TestFormatSize(t *testing.T) {
	tests := []struct {
		n    int64
		want string
	}{
		{0, "-"},
		{-1, "-"},
		{2 << 20, "2.0 MB"},
	}
	for _, tt := range tests {
		if got := formatSize(tt.n); got != tt.want {
			t.Errorf("formatSize(%d) = %q, want %q", tt.n, got, tt.want)
		}
	}
}
