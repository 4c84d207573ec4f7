package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/mr1hm/go-citymap/internal/api"
	"github.com/mr1hm/go-citymap/internal/cache"
	"github.com/mr1hm/go-citymap/internal/cluster"
	"github.com/mr1hm/go-citymap/internal/config"
	internalgrpc "github.com/mr1hm/go-citymap/internal/grpc"
	"github.com/mr1hm/go-citymap/internal/logging"
	"github.com/mr1hm/go-citymap/internal/models"
	"github.com/mr1hm/go-citymap/internal/projection"
	"github.com/mr1hm/go-citymap/internal/render"
	"github.com/mr1hm/go-citymap/internal/repository"
	"github.com/mr1hm/go-citymap/internal/source"
	"github.com/mr1hm/go-citymap/internal/viewport"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		logging.Fatalf("Fatal while loading config: %v", err)
	}
	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

	slog.Info("Server starting", "host", cfg.Server.Host, "port", cfg.Server.Port)

	db, err := repository.NewSQLiteDB(cfg.DB.Path)
	if err != nil {
		logging.Fatalf("Failed to initialize database: %v", err)
	}
	defer db.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := render.NewStore(render.NewDataset(projection.Default(), clusterOptions(cfg)), renderOptions(cfg))

	// Create broadcaster for gRPC streaming
	broadcaster := internalgrpc.NewBroadcaster()
	store.OnScene(broadcaster.Broadcast)

	sources, closeSources := buildSources(cfg)
	defer closeSources()

	// Restore the last snapshots, then start polling
	mgr := source.NewManager(cfg, sources, store, db)
	mgr.Restore(ctx)
	mgr.Start(ctx)

	go sweepSessions(ctx, store, cfg.Session)

	// Start gRPC server
	grpcServer := internalgrpc.NewServer(store, broadcaster)
	go func() {
		grpcAddr := fmt.Sprintf(":%d", cfg.GRPC.Port)
		if err := grpcServer.Start(grpcAddr); err != nil {
			logging.Fatalf("gRPC server error: %v", err)
		}
	}()

	sceneCache := cache.Open(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.TTL)
	if sceneCache.Enabled() {
		pingCtx, pingCancel := context.WithTimeout(ctx, 3*time.Second)
		if err := sceneCache.Ping(pingCtx); err != nil {
			slog.Warn("redis unreachable, cluster responses will not be cached", "addr", cfg.Redis.Addr, "error", err)
		}
		pingCancel()
	}
	defer sceneCache.Close()

	// Gin router
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins:  cfg.Server.CORSOrigins,
		AllowMethods:  []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type"},
		ExposeHeaders: []string{"Content-Length", "X-Cache"},
	}))
	router.Use(api.RateLimitMiddleware(cfg.Server.RateLimitRPS, cfg.Server.RateBurst))

	handler := api.NewHandler(store, sceneCache)
	handler.RegisterRoutes(router)

	srv := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler: router,
	}

	go func() {
		slog.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down...")

	cancel()
	mgr.Stop()
	stats := mgr.Stats()
	slog.Info("fetch jobs", "processed", stats.Processed, "failed", stats.Failed, "dropped", stats.Dropped)
	broadcaster.Close() // Close all streams gracefully
	grpcServer.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	slog.Info("shutdown complete")
}

func clusterOptions(cfg *config.Config) cluster.Options {
	opts := cluster.DefaultOptions()
	opts.MinZoom = cfg.Cluster.MinZoom
	opts.MaxZoom = cfg.Cluster.MaxZoom
	opts.MinPoints = cfg.Cluster.MinPoints
	opts.Radius = cfg.Cluster.Radius
	opts.Extent = cfg.Cluster.Extent
	return opts
}

func renderOptions(cfg *config.Config) render.Options {
	opts := render.DefaultOptions()
	opts.Geometry = viewport.Geometry{
		Size:    viewport.Size{Width: cfg.Viewport.Width, Height: cfg.Viewport.Height},
		MinZoom: cfg.Cluster.MinZoom,
		MaxZoom: cfg.Cluster.MaxZoom,
	}
	opts.InitialZoom = cfg.Viewport.InitialZoom
	opts.ClusterClickZoom = cfg.Cluster.ClickZoom
	return opts
}

// buildSources wires a fetcher per layer. Fields stay nil for layers
// without a configured upstream.
func buildSources(cfg *config.Config) (source.Sources, func()) {
	var sources source.Sources
	closeFn := func() {}

	if cfg.Sources.APIURL != "" {
		signer := source.NewTokenSigner(cfg.Sources.JWTSecret, time.Hour)
		client := source.NewAPIClient(cfg.Sources.APIURL, cfg.Sources.RequestTimeout, signer)
		sources.Incidents = client
		sources.Sensors = client
		sources.AQI = client
	}

	switch {
	case cfg.Sources.ServicesDSN != "":
		pg, err := source.OpenPostgresServices(cfg.Sources.ServicesDSN)
		if err != nil {
			slog.Error("services database unavailable, falling back to demo services", "error", err)
			sources.Services = demoServices{}
			break
		}
		sources.Services = pg
		closeFn = func() { pg.Close() }
	case cfg.Sources.ServicesURL != "":
		sources.Services = source.NewRESTServices(cfg.Sources.ServicesURL, cfg.Sources.ServicesKey, cfg.Sources.RequestTimeout)
	default:
		sources.Services = demoServices{}
	}

	return sources, closeFn
}

func sweepSessions(ctx context.Context, store *render.Store, cfg config.SessionConfig) {
	ticker := time.NewTicker(cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := store.Sweep(cfg.TTL); n > 0 {
				slog.Info("expired idle sessions", "count", n, "active", store.Len())
			}
		}
	}
}

// demoServices serves the bundled Hyderabad services when no services
// backend is configured.
type demoServices struct{}

func (demoServices) FetchServices(context.Context) ([]models.Service, error) {
	return projection.DemoServices(), nil
}
