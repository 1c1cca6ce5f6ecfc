// Package tui is the terminal chat client for the daemon.
package tui

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
	"github.com/sereno-app/sereno/internal/api"
	"github.com/sereno-app/sereno/internal/chat"
	"github.com/sereno-app/sereno/internal/tui/keys"
	"github.com/sereno-app/sereno/internal/tui/model"
	"github.com/sereno-app/sereno/internal/tui/ui"
	"github.com/sereno-app/sereno/internal/tui/views"
)

const (
	callTimeout     = 5 * time.Second
	refreshInterval = 5 * time.Second
	rewatchDelay    = 2 * time.Second
	headerHeight    = 7
	promptHeight    = 3
)

// Client is what the TUI needs from the daemon connection.
type Client interface {
	model.Backend
	Watch(ctx context.Context, namespace string) (<-chan api.Envelope, <-chan error, error)
}

// App is the main TUI application shell.
type App struct {
	app      *tview.Application
	client   Client
	vm       *model.ViewModel
	theme    *ui.Theme
	registry *keys.Registry
	flash    *ui.Notifier

	root        *tview.Flex
	pages       *ui.Pages
	components  map[string]ui.Component
	sessionInfo *ui.SessionInfo
	menu        *ui.Menu
	prompt      *ui.Prompt
	flashBar    *ui.FlashBar
	rooms       *views.RoomList
	thread      *views.MessageThread
	help        *views.HelpView

	ctx    context.Context
	cancel context.CancelFunc
}

// NewApp creates the TUI application for profile.
func NewApp(c Client, profile string) *App {
	ctx, cancel := context.WithCancel(context.Background())
	theme := ui.DefaultTheme()
	vm := model.NewViewModel(c)

	a := &App{
		app:         tview.NewApplication(),
		client:      c,
		vm:          vm,
		theme:       theme,
		registry:    keys.NewRegistry(),
		flash:       ui.NewNotifier(),
		pages:       ui.NewPages(),
		sessionInfo: ui.NewSessionInfo(theme),
		menu:        ui.NewMenu(theme),
		prompt:      ui.NewPrompt(theme),
		flashBar:    ui.NewFlashBar(theme),
		rooms:       views.NewRoomList(theme, vm),
		thread:      views.NewMessageThread(theme, vm),
		help:        views.NewHelpView(theme),
		ctx:         ctx,
		cancel:      cancel,
	}
	a.app.SetTitle("sereno " + profile)

	a.setupBindings()
	a.setupCallbacks()
	a.setupLayout()
	return a
}

func (a *App) setupLayout() {
	a.components = map[string]ui.Component{}
	for _, c := range []struct {
		comp ui.Component
		prim tview.Primitive
	}{
		{a.rooms, a.rooms},
		{a.thread, a.thread},
		{a.help, a.help},
	} {
		a.components[c.comp.Name()] = c.comp
		a.pages.Register(c.comp, c.prim)
	}

	header := tview.NewFlex().SetDirection(tview.FlexColumn).
		AddItem(a.sessionInfo, 40, 0, false).
		AddItem(a.menu, 0, 1, false).
		AddItem(ui.NewLogo(a.theme), 22, 0, false)

	a.root = tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(header, headerHeight, 0, false).
		AddItem(a.prompt, 0, 0, false).
		AddItem(a.pages, 0, 1, true).
		AddItem(a.flashBar, 1, 0, false)

	a.pages.SetOnChange(func(top string) {
		a.menu.Update(a.hints(top))
		if c, ok := a.components[top]; ok {
			c.Refresh()
		}
		if p, ok := a.components[top].(tview.Primitive); ok {
			a.app.SetFocus(p)
		}
	})
	a.pages.Reset(views.RoomListName)
}

func (a *App) hints(page string) []ui.MenuHint {
	var out []ui.MenuHint
	if c, ok := a.components[page]; ok {
		out = append(out, c.Hints()...)
	}
	return append(out, a.registry.Hints(page)...)
}

func (a *App) setupBindings() {
	key := func(r rune, desc string, fn func()) *keys.Action {
		return &keys.Action{Key: tcell.KeyRune, Rune: r, Description: desc, Handler: fn}
	}

	a.registry.AddGlobal(key(':', "Command", func() { a.showPrompt(ui.PromptCommand) }))
	a.registry.AddGlobal(key('?', "Help", func() { a.pages.Push(views.HelpViewName) }))
	a.registry.AddGlobal(&keys.Action{Key: tcell.KeyEscape, Label: "esc", Description: "Back", Handler: a.back})
	a.registry.AddGlobal(key('q', "Quit", a.Stop))
	a.registry.AddGlobal(&keys.Action{Key: tcell.KeyCtrlC, Description: "Quit", Handler: a.Stop, Hidden: true})

	a.registry.AddPage(views.RoomListName, key('/', "Filter", func() { a.showPrompt(ui.PromptFilter) }))
	a.registry.AddPage(views.RoomListName, key('t', "Thread", func() { a.pages.Push(views.MessageThreadName) }))
	a.registry.AddPage(views.RoomListName, &keys.Action{Key: tcell.KeyCtrlR, Label: "ctrl-r", Description: "Reload", Handler: a.reloadRooms})

	a.registry.AddPage(views.MessageThreadName, key('i', "Compose", func() { a.showPrompt(ui.PromptCompose) }))
	a.registry.AddPage(views.MessageThreadName, key('r', "Retry failed", a.retryLastFailed))
	a.registry.AddPage(views.MessageThreadName, key('x', "Dismiss failed", a.dismissLastFailed))
}

func (a *App) setupCallbacks() {
	a.rooms.SetSelectedFunc(func(_, _ int) {
		if id := a.rooms.Selected(); id != "" {
			a.openRoom(id, false)
		}
	})

	a.prompt.SetOnSubmit(func(mode ui.PromptMode, text string) {
		a.hidePrompt()
		switch mode {
		case ui.PromptCommand:
			a.runCommand(text)
		case ui.PromptFilter:
			a.rooms.SetFilter(text)
		case ui.PromptCompose:
			a.send(text)
		}
	})
	a.prompt.SetOnCancel(a.hidePrompt)

	a.app.SetInputCapture(func(ev *tcell.EventKey) *tcell.EventKey {
		if a.prompt.HasFocus() {
			if ev.Key() == tcell.KeyCtrlC {
				a.Stop()
				return nil
			}
			return ev
		}
		page := a.pages.Current()
		if a.registry.HandleEvent(page, ev) {
			return nil
		}
		if page == views.RoomListName && ev.Key() == tcell.KeyRune && ev.Rune() >= '1' && ev.Rune() <= '9' {
			n, _ := strconv.Atoi(string(ev.Rune()))
			if id := a.rooms.RoomByIndex(n); id != "" {
				a.openRoom(id, false)
			}
			return nil
		}
		return ev
	})
}

// Run loads the initial state and blocks until the TUI exits.
func (a *App) Run() error {
	if err := a.vm.LoadStatus(a.ctx); err != nil {
		return fmt.Errorf("load status: %w", err)
	}
	if err := a.vm.LoadMessages(a.ctx); err != nil {
		return fmt.Errorf("load messages: %w", err)
	}
	if err := a.vm.LoadRooms(a.ctx); err != nil {
		a.flash.Warn("room directory unavailable: %v", err)
	}
	a.refresh()
	if a.vm.Status().Room != "" {
		a.pages.Push(views.MessageThreadName)
	}

	go a.watchLoop()
	go a.flashLoop()
	go a.refreshLoop()

	defer a.cancel()
	return a.app.SetRoot(a.root, true).EnableMouse(false).Run()
}

// Stop exits the TUI.
func (a *App) Stop() {
	a.cancel()
	a.app.Stop()
}

func (a *App) back() {
	if a.pages.Current() == views.RoomListName && a.rooms.Filter() != "" {
		a.rooms.SetFilter("")
		return
	}
	a.pages.Pop()
}

func (a *App) showPrompt(mode ui.PromptMode) {
	if mode == ui.PromptCompose && a.vm.Status().Room == "" {
		a.flash.Warn("no room open, use :open <room> or :dm <user>")
		a.redrawFlash()
		return
	}
	a.prompt.Activate(mode)
	a.root.ResizeItem(a.prompt, promptHeight, 0)
	a.app.SetFocus(a.prompt)
}

func (a *App) hidePrompt() {
	a.root.ResizeItem(a.prompt, 0, 0)
	if p, ok := a.components[a.pages.Current()].(tview.Primitive); ok {
		a.app.SetFocus(p)
	}
}

func (a *App) runCommand(line string) {
	cmd, err := ParseCommand(line)
	if err != nil {
		a.flash.Err(err)
		a.redrawFlash()
		return
	}
	switch cmd.Name {
	case "open":
		a.openRoom(cmd.Args, false)
	case "dm":
		a.openRoom(cmd.Args, true)
	case "close":
		a.async("close", func(ctx context.Context) error {
			if err := a.vm.Close(ctx); err != nil {
				return err
			}
			a.flash.Info("left room")
			return nil
		}, func() { a.pages.Reset(views.RoomListName) })
	case "rooms":
		a.pages.Reset(views.RoomListName)
		a.reloadRooms()
	case "help":
		a.pages.Push(views.HelpViewName)
	case "quit":
		a.Stop()
	}
}

func (a *App) openRoom(target string, dm bool) {
	a.async("open", func(ctx context.Context) error {
		id, err := a.vm.Open(ctx, target, dm)
		if err != nil {
			return err
		}
		a.flash.Info("opened %s", id)
		return a.vm.LoadMessages(ctx)
	}, func() { a.pages.Push(views.MessageThreadName) })
}

func (a *App) send(text string) {
	a.async("send", func(ctx context.Context) error {
		m, err := a.vm.Send(ctx, text)
		if err != nil {
			return err
		}
		if m.Status == "failed" {
			a.flash.Warn("not sent (%s), press r to retry", m.FailReason)
		}
		return nil
	}, nil)
}

func (a *App) retryLastFailed() {
	a.async("retry", func(ctx context.Context) error {
		_, ok, err := a.vm.RetryLastFailed(ctx)
		if !ok {
			a.flash.Info("no failed message to retry")
		}
		return err
	}, nil)
}

func (a *App) dismissLastFailed() {
	a.async("dismiss", func(ctx context.Context) error {
		ok, err := a.vm.DismissLastFailed(ctx)
		if !ok {
			a.flash.Info("no failed message to dismiss")
		}
		return err
	}, nil)
}

func (a *App) reloadRooms() {
	a.async("reload rooms", a.vm.LoadRooms, nil)
}

// async runs fn off the UI goroutine, then redraws and calls after on the
// UI goroutine if fn succeeded.
func (a *App) async(what string, fn func(context.Context) error, after func()) {
	go func() {
		ctx, cancel := context.WithTimeout(a.ctx, callTimeout)
		defer cancel()
		err := fn(ctx)
		if err != nil {
			a.flash.Err(fmt.Errorf("%s: %w", what, err))
		}
		a.app.QueueUpdateDraw(func() {
			if err == nil && after != nil {
				after()
			}
			a.refresh()
		})
	}()
}

// watchLoop folds daemon events into the view model, resubscribing when
// the stream drops.
func (a *App) watchLoop() {
	for a.ctx.Err() == nil {
		events, errc, err := a.client.Watch(a.ctx, "")
		if err == nil {
			a.consume(events)
			select {
			case err = <-errc:
			default:
			}
		}
		if a.ctx.Err() != nil {
			return
		}
		if err != nil {
			a.flash.Err(fmt.Errorf("event stream: %w", err))
		}
		select {
		case <-a.ctx.Done():
			return
		case <-time.After(rewatchDelay):
		}
		// Catch up on anything missed while the stream was down.
		_ = a.vm.LoadStatus(a.ctx)
		_ = a.vm.LoadMessages(a.ctx)
		a.app.QueueUpdateDraw(a.refresh)
	}
}

func (a *App) consume(events <-chan api.Envelope) {
	for env := range events {
		switch a.vm.Apply(env) {
		case model.ChangeNone:
			continue
		case model.ChangeError:
			ev := a.vm.LastError()
			a.flash.Warn("%s: %s", ev.Kind, ev.Message)
		}
		if env.Kind == chat.KindRoomOpened || env.Kind == chat.KindRoomClosed {
			_ = a.vm.LoadRooms(a.ctx)
		}
		a.app.QueueUpdateDraw(a.refresh)
	}
}

func (a *App) flashLoop() {
	for {
		select {
		case <-a.ctx.Done():
			return
		case <-a.flash.Changed():
			a.app.QueueUpdateDraw(a.redrawFlash)
		}
	}
}

// refreshLoop keeps the uptime current and expires flash messages.
func (a *App) refreshLoop() {
	ticker := time.NewTicker(refreshInterval)
	defer ticker.Stop()
	for {
		select {
		case <-a.ctx.Done():
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(a.ctx, callTimeout)
			err := a.vm.LoadStatus(ctx)
			cancel()
			if err != nil {
				a.flash.Err(fmt.Errorf("daemon: %w", err))
			}
			a.app.QueueUpdateDraw(a.refresh)
		}
	}
}

// refresh redraws everything from the view model. It must run on the UI
// goroutine.
func (a *App) refresh() {
	a.sessionInfo.Update(a.vm.Status())
	if c, ok := a.components[a.pages.Current()]; ok {
		c.Refresh()
	}
	a.redrawFlash()
}

func (a *App) redrawFlash() {
	a.flashBar.Show(a.flash.Current())
}
