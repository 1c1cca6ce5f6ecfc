package ui

import (
	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
)

// PromptMode selects what submitted text is used for.
type PromptMode int

const (
	PromptCommand PromptMode = iota
	PromptFilter
	PromptCompose
)

var promptLooks = map[PromptMode]struct{ label, title string }{
	PromptCommand: {":", " Command "},
	PromptFilter:  {"/", " Filter "},
	PromptCompose: {"> ", " Message "},
}

const historySize = 50

// history is a bounded list of command lines with a browse cursor. The
// cursor at len(lines) means "past the newest entry".
type history struct {
	lines  []string
	cursor int
}

func (h *history) add(line string) {
	if n := len(h.lines); n == 0 || h.lines[n-1] != line {
		h.lines = append(h.lines, line)
		if over := len(h.lines) - historySize; over > 0 {
			h.lines = h.lines[over:]
		}
	}
	h.rewind()
}

func (h *history) rewind() { h.cursor = len(h.lines) }

func (h *history) move(delta int) string {
	h.cursor = max(0, min(h.cursor+delta, len(h.lines)))
	if h.cursor == len(h.lines) {
		return ""
	}
	return h.lines[h.cursor]
}

// Prompt is the input bar shared by commands, room filters and composing.
type Prompt struct {
	*tview.InputField
	mode     PromptMode
	hist     history
	onSubmit func(mode PromptMode, text string)
	onCancel func()
}

func NewPrompt(theme *Theme) *Prompt {
	p := &Prompt{InputField: tview.NewInputField()}
	p.SetBorder(true).
		SetBorderColor(theme.PromptBorderColor).
		SetBackgroundColor(theme.BgColor)
	p.SetFieldBackgroundColor(theme.BgColor).
		SetFieldTextColor(theme.FgColor).
		SetLabelColor(theme.MenuKeyColor)

	p.SetDoneFunc(p.done)
	p.SetInputCapture(p.capture)
	return p
}

func (p *Prompt) done(key tcell.Key) {
	switch key {
	case tcell.KeyEnter:
		p.Submit(p.GetText())
	case tcell.KeyEscape:
		p.SetText("")
		if p.onCancel != nil {
			p.onCancel()
		}
	}
}

// capture maps Up and Down to history browsing in command mode.
func (p *Prompt) capture(ev *tcell.EventKey) *tcell.EventKey {
	if p.mode != PromptCommand {
		return ev
	}
	delta := 0
	switch ev.Key() {
	case tcell.KeyUp:
		delta = -1
	case tcell.KeyDown:
		delta = 1
	default:
		return ev
	}
	p.SetText(p.Recall(delta))
	return nil
}

func (p *Prompt) SetOnSubmit(fn func(mode PromptMode, text string)) { p.onSubmit = fn }

func (p *Prompt) SetOnCancel(fn func()) { p.onCancel = fn }

// Activate clears the input and switches it to mode.
func (p *Prompt) Activate(mode PromptMode) {
	look := promptLooks[mode]
	p.mode = mode
	p.hist.rewind()
	p.SetText("")
	p.SetLabel(look.label)
	p.SetTitle(look.title)
}

func (p *Prompt) Mode() PromptMode { return p.mode }

// Submit clears the input and passes non-empty text to the submit handler.
// Only command lines enter the history.
func (p *Prompt) Submit(text string) {
	p.SetText("")
	if text == "" {
		return
	}
	if p.mode == PromptCommand {
		p.hist.add(text)
	}
	if p.onSubmit != nil {
		p.onSubmit(p.mode, text)
	}
}

// Recall steps through the history; stepping past the newest entry
// returns "".
func (p *Prompt) Recall(delta int) string {
	return p.hist.move(delta)
}
