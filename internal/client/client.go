// Package client is the typed gRPC client for the daemon's Control service.
package client

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/sereno-app/sereno/internal/api"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

// Client wraps the gRPC connection to the daemon.
type Client struct {
	conn grpc.ClientConnInterface
	cc   *grpc.ClientConn
}

// New dials the daemon's Unix domain socket.
func New(socketPath string) (*Client, error) {
	cc, err := grpc.NewClient(
		"unix://"+socketPath,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		return nil, fmt.Errorf("dial daemon: %w", err)
	}
	return &Client{conn: cc, cc: cc}, nil
}

// NewWithConn wraps an existing connection, e.g. over bufconn in tests.
func NewWithConn(conn grpc.ClientConnInterface) *Client {
	return &Client{conn: conn}
}

// Close closes the gRPC connection if the client owns it.
func (c *Client) Close() error {
	if c.cc == nil {
		return nil
	}
	return c.cc.Close()
}

func (c *Client) Status(ctx context.Context) (api.StatusView, error) {
	var out api.StatusView
	err := c.call(ctx, api.MethodStatus, &emptypb.Empty{}, &out)
	return out, err
}

// Open opens roomID.
func (c *Client) Open(ctx context.Context, roomID string) (string, error) {
	var out api.OpenResponse
	err := c.call(ctx, api.MethodOpen, api.OpenRequest{Room: roomID}, &out)
	return out.Room, err
}

// OpenParticipants opens the room shared by participants.
func (c *Client) OpenParticipants(ctx context.Context, participants ...string) (string, error) {
	var out api.OpenResponse
	err := c.call(ctx, api.MethodOpen, api.OpenRequest{Participants: participants}, &out)
	return out.Room, err
}

func (c *Client) Send(ctx context.Context, text string) (api.MessageView, error) {
	var out api.MessageView
	err := c.call(ctx, api.MethodSend, api.SendRequest{Text: text}, &out)
	return out, err
}

func (c *Client) Retry(ctx context.Context, id string) (api.MessageView, error) {
	var out api.MessageView
	err := c.call(ctx, api.MethodRetry, api.IDRequest{ID: id}, &out)
	return out, err
}

func (c *Client) Dismiss(ctx context.Context, id string) error {
	return c.call(ctx, api.MethodDismiss, api.IDRequest{ID: id}, nil)
}

func (c *Client) CloseRoom(ctx context.Context) error {
	return c.call(ctx, api.MethodClose, &emptypb.Empty{}, nil)
}

// ListMessages returns the newest limit messages; zero returns all.
func (c *Client) ListMessages(ctx context.Context, limit int) ([]api.MessageView, error) {
	var out api.ListMessagesResponse
	err := c.call(ctx, api.MethodListMessages, api.ListMessagesRequest{Limit: limit}, &out)
	return out.Messages, err
}

func (c *Client) ListRooms(ctx context.Context, limit, offset int) ([]api.RoomView, error) {
	var out api.ListRoomsResponse
	err := c.call(ctx, api.MethodListRooms, api.ListRoomsRequest{Limit: limit, Offset: offset}, &out)
	return out.Rooms, err
}

// Watch streams events whose kind starts with namespace until ctx is done.
// The channel is closed when the stream ends; a non-nil error is sent on
// errc first unless the stream ended because ctx was cancelled.
func (c *Client) Watch(ctx context.Context, namespace string) (<-chan api.Envelope, <-chan error, error) {
	req, err := api.ToStruct(api.WatchRequest{Namespace: namespace})
	if err != nil {
		return nil, nil, err
	}
	stream, err := c.conn.NewStream(ctx, &api.ControlServiceDesc.Streams[0], api.MethodWatch)
	if err != nil {
		return nil, nil, fmt.Errorf("watch: %w", err)
	}
	if err := stream.SendMsg(req); err != nil {
		return nil, nil, fmt.Errorf("watch: %w", err)
	}
	if err := stream.CloseSend(); err != nil {
		return nil, nil, fmt.Errorf("watch: %w", err)
	}

	out := make(chan api.Envelope, 64)
	errc := make(chan error, 1)
	go func() {
		defer close(out)
		for {
			msg := new(structpb.Struct)
			if err := stream.RecvMsg(msg); err != nil {
				if !errors.Is(err, io.EOF) && ctx.Err() == nil {
					errc <- err
				}
				return
			}
			var env api.Envelope
			if err := api.FromStruct(msg, &env); err != nil {
				continue
			}
			select {
			case out <- env:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, errc, nil
}

// call invokes a unary method. req is either a proto message or a view
// that is converted to a Struct; out is a view decoded from the Struct
// response, or nil when the method returns Empty.
func (c *Client) call(ctx context.Context, method string, req any, out any) error {
	var in any = req
	if _, ok := req.(*emptypb.Empty); !ok {
		s, err := api.ToStruct(req)
		if err != nil {
			return err
		}
		in = s
	}
	if out == nil {
		return c.conn.Invoke(ctx, method, in, &emptypb.Empty{})
	}
	resp := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, method, in, resp); err != nil {
		return err
	}
	return api.FromStruct(resp, out)
}
