package ui

import (
	"fmt"

	"github.com/gdamore/tcell/v2"
)

// Theme holds color constants for the TUI.
type Theme struct {
	BgColor           tcell.Color
	FgColor           tcell.Color
	BorderColor       tcell.Color
	TableHeaderFg     tcell.Color
	TableCursorFg     tcell.Color
	TableCursorBg     tcell.Color
	MenuKeyColor      tcell.Color
	TitleColor        tcell.Color
	CounterColor      tcell.Color
	OwnAuthorColor    tcell.Color
	PeerAuthorColor   tcell.Color
	FlashInfoColor    tcell.Color
	FlashWarnColor    tcell.Color
	FlashErrColor     tcell.Color
	PromptBorderColor tcell.Color

	ConnectedColor    tcell.Color
	ConnectingColor   tcell.Color
	DisconnectedColor tcell.Color
	FailedColor       tcell.Color
}

// DefaultTheme returns a k9s-inspired dark theme.
func DefaultTheme() *Theme {
	return &Theme{
		BgColor:           tcell.ColorBlack,
		FgColor:           tcell.ColorCadetBlue,
		BorderColor:       tcell.ColorDodgerBlue,
		TableHeaderFg:     tcell.ColorWhite,
		TableCursorFg:     tcell.ColorBlack,
		TableCursorBg:     tcell.ColorAqua,
		MenuKeyColor:      tcell.ColorDodgerBlue,
		TitleColor:        tcell.ColorFuchsia,
		CounterColor:      tcell.ColorPapayaWhip,
		OwnAuthorColor:    tcell.ColorAqua,
		PeerAuthorColor:   tcell.ColorGreenYellow,
		FlashInfoColor:    tcell.ColorNavajoWhite,
		FlashWarnColor:    tcell.ColorOrange,
		FlashErrColor:     tcell.ColorOrangeRed,
		PromptBorderColor: tcell.ColorDodgerBlue,
		ConnectedColor:    tcell.ColorLimeGreen,
		ConnectingColor:   tcell.ColorGold,
		DisconnectedColor: tcell.ColorSlateGray,
		FailedColor:       tcell.ColorOrangeRed,
	}
}

// StateColor returns the color a connection state is drawn in.
func (t *Theme) StateColor(state string) tcell.Color {
	switch state {
	case "CONNECTED":
		return t.ConnectedColor
	case "CONNECTING", "RECONNECTING":
		return t.ConnectingColor
	case "FAILED":
		return t.FailedColor
	}
	return t.DisconnectedColor
}

// StatusColor returns the color of a message delivery status marker.
func (t *Theme) StatusColor(status string) tcell.Color {
	switch status {
	case "failed":
		return t.FailedColor
	case "pending":
		return t.ConnectingColor
	case "delivered":
		return t.ConnectedColor
	}
	return t.FgColor
}

// ColorName returns a tview-compatible color tag for c.
func ColorName(c tcell.Color) string {
	for name, val := range tcell.ColorNames {
		if val == c {
			return name
		}
	}
	return fmt.Sprintf("#%06x", c.Hex())
}
