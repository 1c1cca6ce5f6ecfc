package views

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/sereno-app/sereno/internal/api"
	"github.com/sereno-app/sereno/internal/tui/model"
	"github.com/sereno-app/sereno/internal/tui/ui"
)

type stubBackend struct {
	model.Backend
	status   api.StatusView
	rooms    []api.RoomView
	messages []api.MessageView
}

func (s *stubBackend) Status(context.Context) (api.StatusView, error) { return s.status, nil }

func (s *stubBackend) ListRooms(context.Context, int, int) ([]api.RoomView, error) {
	return s.rooms, nil
}

func (s *stubBackend) ListMessages(context.Context, int) ([]api.MessageView, error) {
	return s.messages, nil
}

func loaded(t *testing.T, b *stubBackend) *model.ViewModel {
	t.Helper()
	vm := model.NewViewModel(b)
	ctx := context.Background()
	for _, load := range []func(context.Context) error{vm.LoadStatus, vm.LoadRooms, vm.LoadMessages} {
		if err := load(ctx); err != nil {
			t.Fatal(err)
		}
	}
	return vm
}

func TestSanitizeForTerminal(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"plain text", "plain text"},
		{"line\nbreak\ttab", "line\nbreak\ttab"},
		{"\x1b[31mred\x1b[0m", "[31mred[0m"},
		{"thumbs 👍🏻", "thumbs 👍"},
		{"a\u200db", "ab"},
		{"heart ❤\ufe0f", "heart ❤"},
		{"bad \xff byte", "bad  byte"},
	}
	for _, tt := range tests {
		if got := sanitizeForTerminal(tt.in); got != tt.want {
			t.Errorf("sanitizeForTerminal(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFormatTimestamp(t *testing.T) {
	now := time.Date(2026, 3, 10, 18, 0, 0, 0, time.Local)
	tests := []struct {
		t    time.Time
		want string
	}{
		{time.Time{}, ""},
		{time.Date(2026, 3, 10, 9, 5, 0, 0, time.Local), "09:05"},
		{time.Date(2026, 3, 9, 23, 59, 0, 0, time.Local), "03/09"},
	}
	for _, tt := range tests {
		if got := formatTimestamp(tt.t, now); got != tt.want {
			t.Errorf("formatTimestamp(%v) = %q, want %q", tt.t, got, tt.want)
		}
	}
}

func TestStatusGlyph(t *testing.T) {
	for status, want := range map[string]string{
		"pending":   "…",
		"sent":      "✓",
		"delivered": "✓✓",
		"failed":    "✗",
		"":          "",
	} {
		if got := statusGlyph(status); got != want {
			t.Errorf("statusGlyph(%q) = %q, want %q", status, got, want)
		}
	}
}

func TestRoomListFilter(t *testing.T) {
	vm := loaded(t, &stubBackend{
		status: api.StatusView{Room: "alice_bob"},
		rooms: []api.RoomView{
			{RoomID: "alice_bob", Participants: []string{"alice", "bob"}, MessageCount: 3},
			{RoomID: "lobby"},
			{RoomID: "bob_carol", Participants: []string{"bob", "Carol"}},
		},
	})
	rl := NewRoomList(ui.DefaultTheme(), vm)
	rl.Refresh()

	if got := rl.RoomByIndex(2); got != "lobby" {
		t.Errorf("RoomByIndex(2) = %q, want lobby", got)
	}
	if !strings.HasPrefix(rl.GetCell(1, 0).Text, " * alice_bob") {
		t.Errorf("current room not marked: %q", rl.GetCell(1, 0).Text)
	}

	rl.SetFilter("CAROL")
	if got := rl.RoomByIndex(1); got != "bob_carol" {
		t.Errorf("filtered RoomByIndex(1) = %q", got)
	}
	if got := rl.RoomByIndex(2); got != "" {
		t.Errorf("filtered RoomByIndex(2) = %q, want empty", got)
	}
	if !strings.Contains(rl.GetTitle(), "(1/3)") {
		t.Errorf("title = %q", rl.GetTitle())
	}

	rl.SetFilter("")
	if got := rl.RoomByIndex(0); got != "" {
		t.Errorf("RoomByIndex(0) = %q", got)
	}
}

func TestMessageThreadFormat(t *testing.T) {
	vm := loaded(t, &stubBackend{status: api.StatusView{Room: "r1", State: "CONNECTED"}})
	mt := NewMessageThread(ui.DefaultTheme(), vm)

	out := mt.Format([]api.MessageView{
		{ID: "1", AuthorName: "Bob", Body: "hi [red]", Origin: "remote", Status: "delivered"},
		{ID: "2", AuthorID: "me", Body: "yo", Origin: "local", Status: "sent"},
		{ID: "3", Body: "lost", Origin: "local", Status: "failed", FailReason: "timeout"},
	})
	for _, want := range []string{"Bob", "hi [red[]", "You", "✓", "✗", "(timeout)"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	// Peer messages carry no delivery marker.
	if first := strings.SplitN(out, "\n", 2)[0]; strings.Contains(first, "✓") {
		t.Errorf("remote message has a glyph: %q", first)
	}

	mt.Refresh()
	if !strings.Contains(mt.GetTitle(), "r1") || !strings.Contains(mt.GetTitle(), "CONNECTED") {
		t.Errorf("title = %q", mt.GetTitle())
	}
}

func TestHelpViewListsCommands(t *testing.T) {
	hv := NewHelpView(ui.DefaultTheme())
	text := hv.GetText(true)
	for _, want := range []string{":open <room>", ":dm <user>", "Retry the last failed message"} {
		if !strings.Contains(text, want) {
			t.Errorf("help missing %q", want)
		}
	}
}
