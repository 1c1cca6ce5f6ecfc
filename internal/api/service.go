package api

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sereno-app/sereno/internal/bus"
	"github.com/sereno-app/sereno/internal/chat"
	"github.com/sereno-app/sereno/internal/message"
	"github.com/sereno-app/sereno/internal/status"
	"github.com/sereno-app/sereno/internal/store"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

// Service implements ControlServer on top of a chat session.
type Service struct {
	profile   string
	selfID    string
	startedAt time.Time
	session   *chat.Session
	db        *store.DB
	logger    *zap.Logger

	done     chan struct{}
	shutdown sync.Once
}

// NewService creates the control service. db may be nil, in which case
// ListRooms reports Unavailable.
func NewService(profile, selfID string, s *chat.Session, db *store.DB, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		profile:   profile,
		selfID:    selfID,
		startedAt: time.Now(),
		session:   s,
		db:        db,
		logger:    logger,
		done:      make(chan struct{}),
	}
}

// Shutdown ends all Watch streams so a graceful server stop can finish.
func (s *Service) Shutdown() {
	s.shutdown.Do(func() { close(s.done) })
}

var _ ControlServer = (*Service)(nil)

func (s *Service) Status(_ context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	return encode(StatusView{
		Profile:      s.profile,
		State:        string(s.session.State()),
		Room:         s.session.Room().String(),
		SelfID:       s.selfID,
		UptimeMs:     time.Since(s.startedAt).Milliseconds(),
		MessageCount: len(s.session.Messages()),
		PendingCount: len(s.session.Pending()),
	})
}

func (s *Service) Open(_ context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req OpenRequest
	if err := decode(in, &req); err != nil {
		return nil, err
	}
	if req.Room != "" {
		if err := s.session.Open(req.Room); err != nil {
			return nil, toStatus(err)
		}
		return encode(OpenResponse{Room: s.session.Room().String()})
	}
	id, err := s.session.OpenParticipants(req.Participants...)
	if err != nil {
		return nil, toStatus(err)
	}
	return encode(OpenResponse{Room: id.String()})
}

func (s *Service) Send(_ context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req SendRequest
	if err := decode(in, &req); err != nil {
		return nil, err
	}
	m, err := s.session.Send(req.Text)
	if err != nil {
		return nil, toStatus(err)
	}
	return encode(NewMessageView(m))
}

func (s *Service) Retry(_ context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req IDRequest
	if err := decode(in, &req); err != nil {
		return nil, err
	}
	m, err := s.session.Retry(req.ID)
	if err != nil {
		return nil, toStatus(err)
	}
	return encode(NewMessageView(m))
}

func (s *Service) Dismiss(_ context.Context, in *structpb.Struct) (*emptypb.Empty, error) {
	var req IDRequest
	if err := decode(in, &req); err != nil {
		return nil, err
	}
	if err := s.session.Dismiss(req.ID); err != nil {
		return nil, toStatus(err)
	}
	return &emptypb.Empty{}, nil
}

func (s *Service) Close(_ context.Context, _ *emptypb.Empty) (*emptypb.Empty, error) {
	s.session.Close()
	return &emptypb.Empty{}, nil
}

func (s *Service) ListMessages(_ context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req ListMessagesRequest
	if err := decode(in, &req); err != nil {
		return nil, err
	}
	msgs := s.session.Messages()
	if req.Limit > 0 && len(msgs) > req.Limit {
		msgs = msgs[len(msgs)-req.Limit:]
	}
	resp := ListMessagesResponse{Messages: make([]MessageView, 0, len(msgs))}
	for _, m := range msgs {
		resp.Messages = append(resp.Messages, NewMessageView(m))
	}
	return encode(resp)
}

func (s *Service) ListRooms(_ context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	if s.db == nil {
		return nil, grpcstatus.Error(codes.Unavailable, "room directory not available")
	}
	var req ListRoomsRequest
	if err := decode(in, &req); err != nil {
		return nil, err
	}
	rooms, err := s.db.ListRooms(req.Limit, req.Offset)
	if err != nil {
		return nil, grpcstatus.Errorf(codes.Internal, "list rooms: %v", err)
	}
	resp := ListRoomsResponse{Rooms: make([]RoomView, 0, len(rooms))}
	for _, r := range rooms {
		resp.Rooms = append(resp.Rooms, NewRoomView(r))
	}
	return encode(resp)
}

func (s *Service) Watch(in *structpb.Struct, stream WatchStream) error {
	var req WatchRequest
	if err := decode(in, &req); err != nil {
		return err
	}
	ch, unsub := s.session.Follow(req.Namespace)
	defer unsub()

	ctx := stream.Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-s.done:
			return nil
		case evt := <-ch:
			env, ok := envelopeFor(evt)
			if !ok {
				continue
			}
			out, err := ToStruct(env)
			if err != nil {
				s.logger.Warn("failed to encode event", zap.String("kind", evt.Kind), zap.Error(err))
				continue
			}
			if err := stream.Send(out); err != nil {
				return err
			}
		}
	}
}

// envelopeFor converts a bus event. Events with payloads clients cannot
// use are skipped.
func envelopeFor(evt bus.Event) (Envelope, bool) {
	var payload any
	switch p := evt.Payload.(type) {
	case status.Change:
		payload = StateView{From: string(p.From), To: string(p.To)}
	case message.Message:
		payload = NewMessageView(p)
	case chat.ErrorEvent:
		ev := ErrorView{Kind: string(p.Kind)}
		if p.Err != nil {
			ev.Message = p.Err.Error()
		}
		payload = ev
	case chat.RoomEvent:
		payload = RoomEventView{Room: p.Room.String()}
	default:
		return Envelope{}, false
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, false
	}
	at := evt.Timestamp
	if at.IsZero() {
		at = time.Now()
	}
	return Envelope{
		EventID:          uuid.NewString(),
		Kind:             evt.Kind,
		OccurredAtUnixMs: at.UnixMilli(),
		Payload:          data,
	}, true
}

func encode(v any) (*structpb.Struct, error) {
	out, err := ToStruct(v)
	if err != nil {
		return nil, grpcstatus.Errorf(codes.Internal, "%v", err)
	}
	return out, nil
}

func decode(in *structpb.Struct, v any) error {
	if err := FromStruct(in, v); err != nil {
		return grpcstatus.Errorf(codes.InvalidArgument, "%v", err)
	}
	return nil
}
