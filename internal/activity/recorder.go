// Package activity feeds the room directory from session events.
package activity

import (
	"context"
	"sync"
	"time"

	"github.com/sereno-app/sereno/internal/bus"
	"github.com/sereno-app/sereno/internal/chat"
	"github.com/sereno-app/sereno/internal/message"
	"github.com/sereno-app/sereno/internal/store"
	"go.uber.org/zap"
)

// Recorder subscribes to room and message events and updates store.DB.
// It only records counts and times.
type Recorder struct {
	db     *store.DB
	bus    *bus.Bus
	logger *zap.Logger
	now    func() time.Time

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewRecorder creates a recorder. Start must be called to begin recording.
func NewRecorder(db *store.DB, b *bus.Bus, logger *zap.Logger) *Recorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Recorder{db: db, bus: b, logger: logger, now: time.Now}
}

// Start follows every bus event until Stop.
func (r *Recorder) Start(ctx context.Context) {
	ctx, r.cancel = context.WithCancel(ctx)
	ch, unsub := r.bus.Follow("")

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer unsub()
		for {
			select {
			case evt := <-ch:
				r.handleEvent(evt)
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop stops recording and waits for the in-flight event.
func (r *Recorder) Stop() {
	if r.cancel != nil {
		r.cancel()
	}
	r.wg.Wait()
}

func (r *Recorder) handleEvent(evt bus.Event) {
	switch evt.Kind {
	case chat.KindRoomOpened:
		re, ok := evt.Payload.(chat.RoomEvent)
		if !ok {
			return
		}
		at := evt.Timestamp
		if at.IsZero() {
			at = r.now()
		}
		if err := r.db.RecordOpen(re.Room.String(), re.Room.Participants(), at); err != nil {
			r.logger.Error("failed to record room open", zap.Error(err), zap.String("room", re.Room.String()))
		}
	case chat.KindMessageAppended:
		m, ok := evt.Payload.(message.Message)
		if !ok || m.RoomID == "" {
			return
		}
		at := m.CreatedAt
		if at.IsZero() {
			at = r.now()
		}
		if err := r.db.RecordMessage(m.RoomID, at); err != nil {
			r.logger.Error("failed to record message", zap.Error(err), zap.String("room", m.RoomID))
		}
	}
}
