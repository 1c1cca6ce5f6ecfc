package views

import (
	"strings"
	"time"

	"github.com/rivo/tview"
)

// formatTimestamp renders t as a clock time when it falls on now's day
// and as month/day otherwise.
func formatTimestamp(t, now time.Time) string {
	if t.IsZero() {
		return ""
	}
	t = t.Local()
	now = now.Local()
	if t.Year() == now.Year() && t.YearDay() == now.YearDay() {
		return t.Format("15:04")
	}
	return t.Format("01/02")
}

// statusGlyph is the delivery marker drawn after an own message.
func statusGlyph(status string) string {
	switch status {
	case "pending":
		return "…"
	case "sent":
		return "✓"
	case "delivered":
		return "✓✓"
	case "failed":
		return "✗"
	}
	return ""
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

// clean sanitizes s for display and escapes tview markup.
func clean(s string) string {
	return tview.Escape(sanitizeForTerminal(s))
}
