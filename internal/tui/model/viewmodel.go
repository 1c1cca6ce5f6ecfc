package model

import (
	"context"
	"slices"
	"sync"

	"github.com/sereno-app/sereno/internal/api"
	"github.com/sereno-app/sereno/internal/chat"
)

// Backend is the subset of the daemon client the view model uses.
type Backend interface {
	Status(ctx context.Context) (api.StatusView, error)
	ListRooms(ctx context.Context, limit, offset int) ([]api.RoomView, error)
	ListMessages(ctx context.Context, limit int) ([]api.MessageView, error)
	Open(ctx context.Context, roomID string) (string, error)
	OpenParticipants(ctx context.Context, participants ...string) (string, error)
	Send(ctx context.Context, text string) (api.MessageView, error)
	Retry(ctx context.Context, id string) (api.MessageView, error)
	Dismiss(ctx context.Context, id string) error
	CloseRoom(ctx context.Context) error
}

// Change says which part of the view model an event touched.
type Change int

const (
	ChangeNone Change = iota
	ChangeStatus
	ChangeMessages
	ChangeError
)

// ViewModel caches daemon state and folds Watch events into it.
type ViewModel struct {
	mu sync.RWMutex

	backend  Backend
	status   api.StatusView
	rooms    []api.RoomView
	messages []api.MessageView
	lastErr  api.ErrorView
}

// NewViewModel creates a new view model connected to the daemon client.
func NewViewModel(b Backend) *ViewModel {
	return &ViewModel{backend: b}
}

// LoadStatus fetches the current session status.
func (vm *ViewModel) LoadStatus(ctx context.Context) error {
	st, err := vm.backend.Status(ctx)
	if err != nil {
		return err
	}
	vm.mu.Lock()
	vm.status = st
	vm.mu.Unlock()
	return nil
}

// LoadRooms fetches the room directory.
func (vm *ViewModel) LoadRooms(ctx context.Context) error {
	rooms, err := vm.backend.ListRooms(ctx, 100, 0)
	if err != nil {
		return err
	}
	vm.mu.Lock()
	vm.rooms = rooms
	vm.mu.Unlock()
	return nil
}

// LoadMessages replaces the cached log with the daemon's.
func (vm *ViewModel) LoadMessages(ctx context.Context) error {
	msgs, err := vm.backend.ListMessages(ctx, 0)
	if err != nil {
		return err
	}
	vm.mu.Lock()
	vm.messages = msgs
	vm.mu.Unlock()
	return nil
}

// Open opens a room id, or the direct room with user when dm is set.
func (vm *ViewModel) Open(ctx context.Context, target string, dm bool) (string, error) {
	var (
		id  string
		err error
	)
	if dm {
		self := vm.Status().SelfID
		id, err = vm.backend.OpenParticipants(ctx, self, target)
	} else {
		id, err = vm.backend.Open(ctx, target)
	}
	if err != nil {
		return "", err
	}
	vm.mu.Lock()
	vm.status.Room = id
	vm.messages = nil
	vm.mu.Unlock()
	return id, nil
}

// Close leaves the current room.
func (vm *ViewModel) Close(ctx context.Context) error {
	if err := vm.backend.CloseRoom(ctx); err != nil {
		return err
	}
	vm.mu.Lock()
	vm.status.Room = ""
	vm.messages = nil
	vm.mu.Unlock()
	return nil
}

// Send posts text. The message itself arrives through Apply.
func (vm *ViewModel) Send(ctx context.Context, text string) (api.MessageView, error) {
	return vm.backend.Send(ctx, text)
}

// RetryLastFailed retries the newest failed own message.
func (vm *ViewModel) RetryLastFailed(ctx context.Context) (api.MessageView, bool, error) {
	m, ok := vm.LastFailed()
	if !ok {
		return api.MessageView{}, false, nil
	}
	out, err := vm.backend.Retry(ctx, m.ID)
	return out, true, err
}

// DismissLastFailed drops the newest failed own message.
func (vm *ViewModel) DismissLastFailed(ctx context.Context) (bool, error) {
	m, ok := vm.LastFailed()
	if !ok {
		return false, nil
	}
	return true, vm.backend.Dismiss(ctx, m.ID)
}

// Apply folds a Watch event into the cache.
func (vm *ViewModel) Apply(env api.Envelope) Change {
	vm.mu.Lock()
	defer vm.mu.Unlock()

	switch env.Kind {
	case chat.KindStateChanged:
		var sv api.StateView
		if env.Decode(&sv) != nil {
			return ChangeNone
		}
		vm.status.State = sv.To
		return ChangeStatus
	case chat.KindRoomOpened:
		var rv api.RoomEventView
		if env.Decode(&rv) != nil {
			return ChangeNone
		}
		vm.status.Room = rv.Room
		return ChangeStatus
	case chat.KindRoomClosed:
		vm.status.Room = ""
		return ChangeStatus
	case chat.KindMessageCleared:
		vm.messages = nil
		return ChangeMessages
	case chat.KindMessageAppended, chat.KindMessageUpdated, chat.KindMessageRemoved:
		var m api.MessageView
		if env.Decode(&m) != nil {
			return ChangeNone
		}
		vm.applyMessageLocked(env.Kind, m)
		return ChangeMessages
	case chat.KindError:
		var ev api.ErrorView
		if env.Decode(&ev) != nil {
			return ChangeNone
		}
		vm.lastErr = ev
		return ChangeError
	}
	return ChangeNone
}

func (vm *ViewModel) applyMessageLocked(kind string, m api.MessageView) {
	idx := slices.IndexFunc(vm.messages, func(x api.MessageView) bool { return x.ID == m.ID })
	switch kind {
	case chat.KindMessageAppended:
		if idx < 0 {
			vm.messages = append(vm.messages, m)
		}
	case chat.KindMessageUpdated:
		if idx >= 0 {
			vm.messages[idx] = m
		}
	case chat.KindMessageRemoved:
		if idx >= 0 {
			vm.messages = slices.Delete(vm.messages, idx, idx+1)
		}
	}
	vm.status.MessageCount = len(vm.messages)
}

// LastFailed returns the newest failed own message.
func (vm *ViewModel) LastFailed() (api.MessageView, bool) {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	for i := len(vm.messages) - 1; i >= 0; i-- {
		if m := vm.messages[i]; m.IsOwn() && m.Status == "failed" {
			return m, true
		}
	}
	return api.MessageView{}, false
}

// Status returns a snapshot of the session status.
func (vm *ViewModel) Status() api.StatusView {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.status
}

// Rooms returns a snapshot of the room directory.
func (vm *ViewModel) Rooms() []api.RoomView {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return slices.Clone(vm.rooms)
}

// Messages returns a snapshot of the current room's log.
func (vm *ViewModel) Messages() []api.MessageView {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return slices.Clone(vm.messages)
}

// LastError returns the most recent session error event.
func (vm *ViewModel) LastError() api.ErrorView {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.lastErr
}
