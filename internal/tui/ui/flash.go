package ui

import (
	"fmt"
	"sync"
	"time"

	"github.com/rivo/tview"
)

// Severity orders notices from informational to errors.
type Severity int

const (
	SeverityInfo Severity = iota
	SeverityWarn
	SeverityError
)

// lifetime is how long a notice of each severity stays on screen.
var lifetime = [...]time.Duration{
	SeverityInfo:  5 * time.Second,
	SeverityWarn:  8 * time.Second,
	SeverityError: 10 * time.Second,
}

// Notice is one transient line for the flash bar.
type Notice struct {
	Text     string
	Severity Severity
	Until    time.Time
}

// Notifier keeps the latest notice. Posting from any goroutine is safe.
type Notifier struct {
	mu      sync.Mutex
	now     func() time.Time
	latest  Notice
	changed chan struct{}
}

func NewNotifier() *Notifier {
	return &Notifier{now: time.Now, changed: make(chan struct{}, 1)}
}

func (n *Notifier) Info(format string, args ...any) {
	n.post(SeverityInfo, fmt.Sprintf(format, args...))
}

func (n *Notifier) Warn(format string, args ...any) {
	n.post(SeverityWarn, fmt.Sprintf(format, args...))
}

func (n *Notifier) Err(err error) {
	n.post(SeverityError, err.Error())
}

func (n *Notifier) post(sev Severity, text string) {
	n.mu.Lock()
	n.latest = Notice{Text: text, Severity: sev, Until: n.now().Add(lifetime[sev])}
	n.mu.Unlock()

	// Pending signals coalesce; the reader always sees the latest notice.
	select {
	case n.changed <- struct{}{}:
	default:
	}
}

// Current returns the live notice, or nil once it has expired.
func (n *Notifier) Current() *Notice {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.latest.Text == "" || !n.now().Before(n.latest.Until) {
		return nil
	}
	cp := n.latest
	return &cp
}

// Changed fires after each post.
func (n *Notifier) Changed() <-chan struct{} {
	return n.changed
}

// FlashBar is the one-line notice area at the bottom of the screen.
type FlashBar struct {
	*tview.TextView
	colors [3]string
}

func NewFlashBar(theme *Theme) *FlashBar {
	tv := tview.NewTextView().SetDynamicColors(true)
	tv.SetBackgroundColor(theme.BgColor)
	return &FlashBar{
		TextView: tv,
		colors: [3]string{
			SeverityInfo:  ColorName(theme.FlashInfoColor),
			SeverityWarn:  ColorName(theme.FlashWarnColor),
			SeverityError: ColorName(theme.FlashErrColor),
		},
	}
}

// Show draws notice, or blanks the bar when it is nil.
func (fb *FlashBar) Show(notice *Notice) {
	fb.Clear()
	if notice != nil {
		_, _ = fmt.Fprintf(fb, " [%s]%s[-]", fb.colors[notice.Severity], tview.Escape(notice.Text))
	}
}
