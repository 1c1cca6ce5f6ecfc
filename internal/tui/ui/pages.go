package ui

import (
	"slices"

	"github.com/rivo/tview"
)

// Pages is a stack of named pages over tview.Pages. Only the top page is
// visible.
type Pages struct {
	*tview.Pages
	stack    []string
	onChange func(top string)
}

// NewPages creates an empty page stack.
func NewPages() *Pages {
	return &Pages{Pages: tview.NewPages()}
}

// Register adds a page without showing it.
func (p *Pages) Register(c Component, prim tview.Primitive) {
	p.AddPage(c.Name(), prim, true, false)
}

// SetOnChange sets a callback that fires with the new top page.
func (p *Pages) SetOnChange(fn func(top string)) {
	p.onChange = fn
}

// Push shows name on top of the stack. Pushing the current top is a
// no-op.
func (p *Pages) Push(name string) {
	if p.Current() == name {
		return
	}
	p.stack = append(p.stack, name)
	p.show()
}

// Pop removes the top page unless it is the last one and returns the
// name of the page removed.
func (p *Pages) Pop() string {
	if len(p.stack) < 2 {
		return ""
	}
	top := p.stack[len(p.stack)-1]
	p.HidePage(top)
	p.stack = p.stack[:len(p.stack)-1]
	p.show()
	return top
}

// Reset clears the stack down to name.
func (p *Pages) Reset(name string) {
	for _, n := range p.stack {
		p.HidePage(n)
	}
	p.stack = []string{name}
	p.show()
}

// Current returns the name of the top page.
func (p *Pages) Current() string {
	if len(p.stack) == 0 {
		return ""
	}
	return p.stack[len(p.stack)-1]
}

// Stack returns a copy of the page stack, bottom first.
func (p *Pages) Stack() []string {
	return slices.Clone(p.stack)
}

func (p *Pages) show() {
	top := p.Current()
	p.SwitchToPage(top)
	if p.onChange != nil {
		p.onChange(top)
	}
}
