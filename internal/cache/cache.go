package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mr1hm/go-citymap/internal/models"
)

const keyPrefix = "citymap:clusters:v2"

// SceneCache keeps encoded cluster responses in Redis. A nil client turns
// every call into a miss.
type SceneCache struct {
	rc  *redis.Client
	ttl time.Duration
}

func New(rc *redis.Client, ttl time.Duration) *SceneCache {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &SceneCache{rc: rc, ttl: ttl}
}

// Open connects to addr. An empty addr gives a disabled cache.
func Open(addr, password string, db int, ttl time.Duration) *SceneCache {
	if addr == "" {
		return New(nil, ttl)
	}
	return New(redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db}), ttl)
}

func (c *SceneCache) Enabled() bool {
	return c != nil && c.rc != nil
}

// Key identifies a cluster query against one version of a layer. The
// fingerprint changes with the indexed content, so entries written by another
// process or replica are only reused when the data is identical. Coordinates
// are written at full precision.
func Key(layer models.Layer, fingerprint uint64, bbox models.BoundingBox, zoom int) string {
	return fmt.Sprintf("%s:%s:%016x:%d:%s,%s,%s,%s",
		keyPrefix, layer, fingerprint, zoom,
		formatCoord(bbox.West), formatCoord(bbox.South), formatCoord(bbox.East), formatCoord(bbox.North))
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func (c *SceneCache) Get(ctx context.Context, key string) ([]byte, bool) {
	if !c.Enabled() {
		return nil, false
	}
	b, err := c.rc.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			slog.Warn("cache read failed", "key", key, "error", err)
		}
		return nil, false
	}
	return b, true
}

func (c *SceneCache) Set(ctx context.Context, key string, value []byte) {
	if !c.Enabled() {
		return
	}
	if err := c.rc.Set(ctx, key, value, c.ttl).Err(); err != nil {
		slog.Warn("cache write failed", "key", key, "error", err)
	}
}

func (c *SceneCache) Ping(ctx context.Context) error {
	if !c.Enabled() {
		return nil
	}
	if err := c.rc.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("error pinging redis: %w", err)
	}
	return nil
}

func (c *SceneCache) Close() error {
	if !c.Enabled() {
		return nil
	}
	return c.rc.Close()
}
