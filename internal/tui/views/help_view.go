package views

import (
	"fmt"
	"strings"

	"github.com/rivo/tview"
	"github.com/sereno-app/sereno/internal/tui/ui"
)

// HelpViewName is the page name of the help screen.
const HelpViewName = "help"

// HelpView displays the key binding and command reference.
type HelpView struct {
	*tview.TextView
	theme *ui.Theme
}

// NewHelpView creates a new help view.
func NewHelpView(theme *ui.Theme) *HelpView {
	tv := tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true)
	tv.SetBorder(true)
	tv.SetBorderColor(theme.BorderColor)
	tv.SetBackgroundColor(theme.BgColor)
	tv.SetTextColor(theme.FgColor)
	tv.SetTitle(" Help ")
	tv.SetTitleColor(theme.TitleColor)

	hv := &HelpView{TextView: tv, theme: theme}
	hv.Refresh()
	return hv
}

// Name implements ui.Component.
func (hv *HelpView) Name() string { return HelpViewName }

// Hints implements ui.Component.
func (hv *HelpView) Hints() []ui.MenuHint {
	return []ui.MenuHint{{Key: "pgup/dn", Description: "Scroll"}}
}

type helpEntry struct{ key, text string }

var helpSections = []struct {
	title   string
	entries []helpEntry
}{
	{"Global Keys", []helpEntry{
		{":", "Command mode"},
		{"?", "Help"},
		{"esc", "Cancel / go back"},
		{"q", "Quit"},
		{"ctrl-c", "Quit immediately"},
	}},
	{"Rooms", []helpEntry{
		{"enter", "Open room"},
		{"/", "Filter rooms"},
		{"1-9", "Open the nth room"},
		{"t", "Show the open room"},
	}},
	{"Thread", []helpEntry{
		{"i", "Compose a message"},
		{"r", "Retry the last failed message"},
		{"x", "Dismiss the last failed message"},
	}},
	{"Commands", []helpEntry{
		{":open <room>", "Open a room by id"},
		{":dm <user>", "Open the direct room with a user"},
		{":close", "Leave the open room"},
		{":rooms", "Show the room directory"},
		{":help", "Show this help"},
		{":quit", "Quit"},
	}},
}

// Refresh implements ui.Component.
func (hv *HelpView) Refresh() {
	hv.Clear()
	kc := ui.ColorName(hv.theme.MenuKeyColor)
	var b strings.Builder
	for _, sec := range helpSections {
		fmt.Fprintf(&b, "\n  [::b]%s[-:-:-]\n\n", sec.title)
		for _, e := range sec.entries {
			fmt.Fprintf(&b, "  [%s]%-14s[-:-:-] %s\n", kc, tview.Escape(e.key), e.text)
		}
	}
	_, _ = fmt.Fprint(hv, b.String())
}
