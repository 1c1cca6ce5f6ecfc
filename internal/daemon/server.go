package daemon

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"time"

	"github.com/sereno-app/sereno/internal/api"
	"github.com/sereno-app/sereno/internal/session"
	"go.uber.org/zap"
	"google.golang.org/grpc"
)

// Server exposes the Control service on the profile's unix socket.
type Server struct {
	grpc   *grpc.Server
	lis    net.Listener
	path   string
	logger *zap.Logger
}

// NewServer binds the control socket. The profile lock is held by the time
// this runs, so a socket file left on disk belongs to a dead daemon.
func NewServer(p Params, logger *zap.Logger, svc *api.Service) (*Server, error) {
	path := p.SocketPath
	if path == "" {
		path = session.SocketPath(p.Profile)
	}
	lis, err := listenUnix(path)
	if err != nil {
		return nil, err
	}

	srv := grpc.NewServer(grpc.ChainUnaryInterceptor(unaryLogger(logger)))
	api.RegisterControlServer(srv, svc)
	return &Server{grpc: srv, lis: lis, path: path, logger: logger}, nil
}

// listenUnix replaces any stale socket at path and restricts it to the owner.
func listenUnix(path string) (net.Listener, error) {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("remove stale socket: %w", err)
	}
	lis, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", path, err)
	}
	if err := os.Chmod(path, 0o600); err != nil {
		_ = lis.Close()
		return nil, fmt.Errorf("chmod %s: %w", path, err)
	}
	return lis, nil
}

func (s *Server) SocketPath() string { return s.path }

// Start serves until Stop is called.
func (s *Server) Start() error {
	s.logger.Info("control server listening", zap.String("socket", s.path))
	if err := s.grpc.Serve(s.lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return err
	}
	return nil
}

// Stop drains in-flight calls and removes the socket. Open Watch streams
// never finish on their own, so they are cut once ctx is done.
func (s *Server) Stop(ctx context.Context) {
	drained := make(chan struct{})
	go func() {
		defer close(drained)
		s.grpc.GracefulStop()
	}()
	select {
	case <-drained:
	case <-ctx.Done():
		s.logger.Warn("forcing control server shutdown")
		s.grpc.Stop()
		<-drained
	}
	_ = os.Remove(s.path)
	s.logger.Info("control server stopped")
}

func unaryLogger(logger *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		if err != nil {
			logger.Debug("rpc failed",
				zap.String("method", info.FullMethod),
				zap.Duration("took", time.Since(start)),
				zap.Error(err))
		}
		return resp, err
	}
}
