package ui

// MenuHint describes a keyboard shortcut for display in the menu bar.
type MenuHint struct {
	Key         string
	Description string
}

// Component is implemented by every page of the TUI.
type Component interface {
	// Name is the page name used by Pages.
	Name() string
	// Refresh redraws the component from the view model.
	Refresh()
	Hints() []MenuHint
}
