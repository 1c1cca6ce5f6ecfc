package ui

import (
	"fmt"
	"time"

	"github.com/rivo/tview"
	"github.com/sereno-app/sereno/internal/api"
)

// SessionInfo displays daemon session metadata in the header.
type SessionInfo struct {
	*tview.TextView
	theme *Theme
}

// NewSessionInfo creates a new session info panel.
func NewSessionInfo(theme *Theme) *SessionInfo {
	tv := tview.NewTextView().
		SetDynamicColors(true)
	tv.SetBackgroundColor(theme.BgColor)
	tv.SetBorderPadding(0, 0, 1, 1)

	return &SessionInfo{
		TextView: tv,
		theme:    theme,
	}
}

// Update renders st.
func (si *SessionInfo) Update(st api.StatusView) {
	si.Clear()
	_, _ = fmt.Fprint(si, si.Format(st))
}

// Format returns the tview markup for st.
func (si *SessionInfo) Format(st api.StatusView) string {
	label := ColorName(si.theme.FgColor)
	value := ColorName(si.theme.CounterColor)
	state := ColorName(si.theme.StateColor(st.State))

	row := func(name, color, v string) string {
		return fmt.Sprintf("[%s::b]%-8s[-:-:-] [%s]%s[-]\n", label, name+":", color, tview.Escape(v))
	}
	return row("Profile", value, orDash(st.Profile)) +
		row("User", value, orDash(st.SelfID)) +
		row("Room", value, orDash(st.Room)) +
		row("State", state, orDash(st.State)) +
		row("Msgs", value, fmt.Sprintf("%d (%d pending)", st.MessageCount, st.PendingCount)) +
		row("Uptime", value, FormatUptime(time.Duration(st.UptimeMs)*time.Millisecond))
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// FormatUptime renders d as hours and minutes, or seconds under a minute.
func FormatUptime(d time.Duration) string {
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	switch {
	case h > 0:
		return fmt.Sprintf("%dh%dm", h, m)
	case m > 0:
		return fmt.Sprintf("%dm", m)
	}
	return fmt.Sprintf("%ds", int(d.Seconds()))
}
