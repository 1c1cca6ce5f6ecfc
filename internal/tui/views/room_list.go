package views

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
	"github.com/sereno-app/sereno/internal/api"
	"github.com/sereno-app/sereno/internal/tui/model"
	"github.com/sereno-app/sereno/internal/tui/ui"
)

// RoomListName is the page name of the room directory.
const RoomListName = "rooms"

// RoomList is the table of previously opened rooms.
type RoomList struct {
	*tview.Table
	theme   *ui.Theme
	vm      *model.ViewModel
	filter  string
	visible []api.RoomView
	now     func() time.Time
}

// NewRoomList creates the room directory table.
func NewRoomList(theme *ui.Theme, vm *model.ViewModel) *RoomList {
	table := tview.NewTable().
		SetSelectable(true, false).
		SetBorders(false).
		SetFixed(1, 0)
	table.SetBorder(true)
	table.SetBorderColor(theme.BorderColor)
	table.SetBackgroundColor(theme.BgColor)
	table.SetSelectedStyle(tcell.StyleDefault.
		Foreground(theme.TableCursorFg).
		Background(theme.TableCursorBg))
	table.SetTitleColor(theme.TitleColor)

	return &RoomList{
		Table: table,
		theme: theme,
		vm:    vm,
		now:   time.Now,
	}
}

// Name implements ui.Component.
func (rl *RoomList) Name() string { return RoomListName }

// Hints implements ui.Component.
func (rl *RoomList) Hints() []ui.MenuHint {
	return []ui.MenuHint{
		{Key: "enter", Description: "Open"},
		{Key: "1-9", Description: "Jump"},
	}
}

// SetFilter sets the active filter text and re-renders.
func (rl *RoomList) SetFilter(filter string) {
	rl.filter = strings.TrimSpace(filter)
	rl.Refresh()
}

// Filter returns the active filter.
func (rl *RoomList) Filter() string { return rl.filter }

// Refresh implements ui.Component.
func (rl *RoomList) Refresh() {
	rooms := rl.vm.Rooms()
	rl.visible = rl.visible[:0]
	for _, r := range rooms {
		if rl.matches(r) {
			rl.visible = append(rl.visible, r)
		}
	}

	rl.Clear()
	headers := []struct {
		text string
		exp  int
	}{
		{" ROOM", 1},
		{" PARTICIPANTS", 2},
		{" MSGS", 0},
		{" OPENS", 0},
		{" ACTIVE", 0},
	}
	for col, h := range headers {
		rl.SetCell(0, col, tview.NewTableCell(h.text).
			SetSelectable(false).
			SetTextColor(rl.theme.TableHeaderFg).
			SetAttributes(tcell.AttrBold).
			SetExpansion(h.exp))
	}

	current := rl.vm.Status().Room
	now := rl.now()
	for i, r := range rl.visible {
		row := i + 1
		name := clean(r.RoomID)
		color := rl.theme.FgColor
		if r.RoomID == current {
			name = "* " + name
			color = rl.theme.OwnAuthorColor
		}
		rl.SetCell(row, 0, tview.NewTableCell(" "+name).SetExpansion(1).SetTextColor(color))
		rl.SetCell(row, 1, tview.NewTableCell(" "+clean(strings.Join(r.Participants, ", "))).SetExpansion(2).SetTextColor(rl.theme.FgColor))
		rl.SetCell(row, 2, tview.NewTableCell(strconv.Itoa(r.MessageCount)).SetAlign(tview.AlignRight).SetTextColor(rl.theme.FgColor))
		rl.SetCell(row, 3, tview.NewTableCell(strconv.Itoa(r.OpenCount)).SetAlign(tview.AlignRight).SetTextColor(rl.theme.FgColor))
		rl.SetCell(row, 4, tview.NewTableCell(formatTimestamp(r.LastActivityAt, now)).SetAlign(tview.AlignRight).SetTextColor(rl.theme.FgColor))
	}

	if rl.filter != "" {
		rl.SetTitle(fmt.Sprintf(" Rooms (%d/%d) filter: %s ", len(rl.visible), len(rooms), tview.Escape(rl.filter)))
	} else {
		rl.SetTitle(fmt.Sprintf(" Rooms (%d) ", len(rooms)))
	}
}

func (rl *RoomList) matches(r api.RoomView) bool {
	if rl.filter == "" || containsFold(r.RoomID, rl.filter) {
		return true
	}
	for _, p := range r.Participants {
		if containsFold(p, rl.filter) {
			return true
		}
	}
	return false
}

// Selected returns the id of the highlighted room.
func (rl *RoomList) Selected() string {
	row, _ := rl.GetSelection()
	return rl.RoomByIndex(row)
}

// RoomByIndex returns the id of the nth visible room, 1-based.
func (rl *RoomList) RoomByIndex(n int) string {
	if n < 1 || n > len(rl.visible) {
		return ""
	}
	return rl.visible[n-1].RoomID
}
