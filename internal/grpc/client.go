package grpc

import (
	"context"

	"google.golang.org/grpc"

	"github.com/mr1hm/go-citymap/internal/render"
)

// Client talks to the map service over an existing connection.
type Client struct {
	conn *grpc.ClientConn
}

func NewClient(conn *grpc.ClientConn) *Client {
	return &Client{conn: conn}
}

func (c *Client) GetScene(ctx context.Context, sessionID string) (*render.Scene, error) {
	out := new(render.Scene)
	err := c.conn.Invoke(ctx, "/"+serviceName+"/GetScene", &GetSceneRequest{SessionID: sessionID}, out,
		grpc.ForceCodec(jsonCodec{}))
	if err != nil {
		return nil, err
	}
	return out, nil
}

type SceneReceiver struct {
	stream grpc.ClientStream
}

func (r *SceneReceiver) Recv() (*render.Scene, error) {
	scene := new(render.Scene)
	if err := r.stream.RecvMsg(scene); err != nil {
		return nil, err
	}
	return scene, nil
}

func (c *Client) StreamScenes(ctx context.Context, sessionID string) (*SceneReceiver, error) {
	stream, err := c.conn.NewStream(ctx, &MapServiceDesc.Streams[0], "/"+serviceName+"/StreamScenes",
		grpc.ForceCodec(jsonCodec{}))
	if err != nil {
		return nil, err
	}
	if err := stream.SendMsg(&StreamScenesRequest{SessionID: sessionID}); err != nil {
		return nil, err
	}
	if err := stream.CloseSend(); err != nil {
		return nil, err
	}
	return &SceneReceiver{stream: stream}, nil
}
