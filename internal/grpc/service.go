package grpc

import (
	"context"

	"google.golang.org/grpc"

	"github.com/mr1hm/go-citymap/internal/render"
)

const serviceName = "citymap.v1.MapService"

type StreamScenesRequest struct {
	SessionID string `json:"session_id"`
}

type GetSceneRequest struct {
	SessionID string `json:"session_id"`
}

// SceneStream is the server side of StreamScenes.
type SceneStream interface {
	Send(*render.Scene) error
	Context() context.Context
}

type MapServiceServer interface {
	GetScene(ctx context.Context, req *GetSceneRequest) (*render.Scene, error)
	StreamScenes(req *StreamScenesRequest, stream SceneStream) error
}

type sceneStream struct {
	grpc.ServerStream
}

func (s *sceneStream) Send(scene *render.Scene) error {
	return s.ServerStream.SendMsg(scene)
}

func getSceneHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	req := new(GetSceneRequest)
	if err := dec(req); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(MapServiceServer).GetScene(ctx, req)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: "/" + serviceName + "/GetScene",
	}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(MapServiceServer).GetScene(ctx, req.(*GetSceneRequest))
	}
	return interceptor(ctx, req, info, handler)
}

func streamScenesHandler(srv any, stream grpc.ServerStream) error {
	req := new(StreamScenesRequest)
	if err := stream.RecvMsg(req); err != nil {
		return err
	}
	return srv.(MapServiceServer).StreamScenes(req, &sceneStream{stream})
}

var MapServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*MapServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "GetScene", Handler: getSceneHandler},
	},
	Streams: []grpc.StreamDesc{
		{StreamName: "StreamScenes", Handler: streamScenesHandler, ServerStreams: true},
	},
	Metadata: "citymap/v1/map.proto",
}
