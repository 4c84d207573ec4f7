package grpc

import (
	"context"
	"errors"
	"log/slog"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/mr1hm/go-citymap/internal/render"
)

type Server struct {
	store       *render.Store
	broadcaster *Broadcaster
	grpcServer  *grpc.Server
}

func NewServer(store *render.Store, broadcaster *Broadcaster) *Server {
	s := &Server{
		store:       store,
		broadcaster: broadcaster,
	}
	s.grpcServer = grpc.NewServer(grpc.ForceServerCodec(jsonCodec{}))
	s.grpcServer.RegisterService(&MapServiceDesc, s)
	return s
}

func (s *Server) Start(addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}

	slog.Info("gRPC server listening", "addr", addr)
	return s.Serve(lis)
}

func (s *Server) Serve(lis net.Listener) error {
	return s.grpcServer.Serve(lis)
}

func (s *Server) Stop() {
	s.grpcServer.GracefulStop()
}

func (s *Server) session(id string) (*render.Session, error) {
	if id == "" {
		return nil, status.Error(codes.InvalidArgument, "session_id is required")
	}
	sess, err := s.store.Get(id)
	if err != nil {
		if errors.Is(err, render.ErrSessionNotFound) {
			return nil, status.Errorf(codes.NotFound, "session not found: %s", id)
		}
		return nil, status.Errorf(codes.Internal, "failed to get session: %v", err)
	}
	return sess, nil
}

func (s *Server) GetScene(ctx context.Context, req *GetSceneRequest) (*render.Scene, error) {
	sess, err := s.session(req.SessionID)
	if err != nil {
		return nil, err
	}
	return sess.Render(), nil
}

// StreamScenes sends the session's current scene, then every re-render
// until the client goes away or the session expires.
func (s *Server) StreamScenes(req *StreamScenesRequest, stream SceneStream) error {
	sess, err := s.session(req.SessionID)
	if err != nil {
		return err
	}

	id, ch := s.broadcaster.Subscribe(sess.ID)
	defer s.broadcaster.Unsubscribe(id)

	slog.Info("client subscribed to scene stream", "subscriber_id", id, "session", sess.ID)

	last := uint64(0)
	send := func(scene *render.Scene) error {
		// renders can finish out of order; never step a client backwards
		if scene.Version <= last {
			return nil
		}
		last = scene.Version
		return stream.Send(scene)
	}

	if err := send(sess.Render()); err != nil {
		return err
	}

	for {
		select {
		case <-stream.Context().Done():
			slog.Info("client disconnected from scene stream", "subscriber_id", id)
			return nil
		case scene, ok := <-ch:
			if !ok {
				return nil
			}
			if _, err := s.store.Get(sess.ID); err != nil {
				return status.Error(codes.NotFound, "session expired")
			}
			if err := send(scene); err != nil {
				slog.Error("failed to send scene to stream", "error", err, "subscriber_id", id)
				return err
			}
		}
	}
}
