package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"

	"github.com/mr1hm/go-citymap/internal/config"
	internalgrpc "github.com/mr1hm/go-citymap/internal/grpc"
	"github.com/mr1hm/go-citymap/internal/logging"
	"github.com/mr1hm/go-citymap/internal/models"
	"github.com/mr1hm/go-citymap/internal/render"
)

// citymap-watch follows one session's scene stream and logs each scene.
func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		logging.Fatalf("Fatal while loading config: %v", err)
	}
	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

	addr := flag.String("addr", fmt.Sprintf("localhost:%d", cfg.GRPC.Port), "map service address")
	sessionID := flag.String("session", "", "session id to follow")
	flag.Parse()

	if *sessionID == "" {
		logging.Fatalf("-session is required")
	}

	conn, err := grpc.NewClient(*addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		logging.Fatalf("Failed to connect to %s: %v", *addr, err)
	}
	defer conn.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client := internalgrpc.NewClient(conn)
	stream, err := client.StreamScenes(ctx, *sessionID)
	if err != nil {
		logging.Fatalf("Failed to open scene stream: %v", err)
	}

	slog.Info("watching session", "addr", *addr, "session", *sessionID)
	for {
		scene, err := stream.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) || status.Code(err) == codes.Canceled || ctx.Err() != nil {
				slog.Info("stream closed")
				return
			}
			slog.Error("stream failed", "error", err)
			os.Exit(1)
		}
		logScene(scene)
	}
}

func logScene(scene *render.Scene) {
	attrs := []any{"version", scene.Version, "markers", len(scene.Markers)}
	if scene.Viewport != nil {
		attrs = append(attrs, "zoom", scene.Viewport.Zoom)
	}
	for _, l := range models.ClusteredLayers {
		attrs = append(attrs, string(l), len(scene.MarkersFor(l)))
	}
	if scene.Route != nil {
		attrs = append(attrs, "route", scene.Route.Key)
	}
	if scene.Selected != nil {
		attrs = append(attrs, "selected", scene.Selected.ID)
	}
	slog.Info("scene", attrs...)
}
