package views

import (
	"fmt"
	"strings"
	"time"

	"github.com/rivo/tview"
	"github.com/sereno-app/sereno/internal/api"
	"github.com/sereno-app/sereno/internal/tui/model"
	"github.com/sereno-app/sereno/internal/tui/ui"
)

// MessageThreadName is the page name of the open room's log.
const MessageThreadName = "thread"

// MessageThread displays the message log of the open room.
type MessageThread struct {
	*tview.TextView
	theme *ui.Theme
	vm    *model.ViewModel
	now   func() time.Time
}

// NewMessageThread creates a new message thread view.
func NewMessageThread(theme *ui.Theme, vm *model.ViewModel) *MessageThread {
	tv := tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true).
		SetWordWrap(true)
	tv.SetBorder(true)
	tv.SetBorderColor(theme.BorderColor)
	tv.SetBackgroundColor(theme.BgColor)
	tv.SetTextColor(theme.FgColor)
	tv.SetTitleColor(theme.TitleColor)

	return &MessageThread{
		TextView: tv,
		theme:    theme,
		vm:       vm,
		now:      time.Now,
	}
}

// Name implements ui.Component.
func (mt *MessageThread) Name() string { return MessageThreadName }

// Hints implements ui.Component.
func (mt *MessageThread) Hints() []ui.MenuHint {
	return []ui.MenuHint{{Key: "pgup/dn", Description: "Scroll"}}
}

// Refresh implements ui.Component.
func (mt *MessageThread) Refresh() {
	st := mt.vm.Status()
	room := st.Room
	if room == "" {
		room = "no room"
	}
	mt.SetTitle(fmt.Sprintf(" %s [%s]%s[-] ", tview.Escape(room), ui.ColorName(mt.theme.StateColor(st.State)), st.State))

	mt.Clear()
	_, _ = fmt.Fprint(mt, mt.Format(mt.vm.Messages()))
	mt.ScrollToEnd()
}

// Format renders msgs oldest first as tview markup.
func (mt *MessageThread) Format(msgs []api.MessageView) string {
	var b strings.Builder
	now := mt.now()
	for _, m := range msgs {
		author := m.AuthorName
		if author == "" {
			author = m.AuthorID
		}
		color := mt.theme.PeerAuthorColor
		if m.IsOwn() {
			author = "You"
			color = mt.theme.OwnAuthorColor
		}

		fmt.Fprintf(&b, "[%s::b]%s[-:-:-] [::d]%s[-:-:-]", ui.ColorName(color), clean(author), formatTimestamp(m.CreatedAt, now))
		if m.IsOwn() {
			fmt.Fprintf(&b, " [%s]%s[-]", ui.ColorName(mt.theme.StatusColor(m.Status)), statusGlyph(m.Status))
			if m.Status == "failed" && m.FailReason != "" {
				fmt.Fprintf(&b, " [%s](%s)[-]", ui.ColorName(mt.theme.FailedColor), tview.Escape(m.FailReason))
			}
		}
		fmt.Fprintf(&b, "\n%s\n\n", clean(m.Body))
	}
	return b.String()
}
