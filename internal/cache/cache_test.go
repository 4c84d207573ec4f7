package cache

import (
	"context"
	"testing"
	"time"

	"github.com/mr1hm/go-citymap/internal/models"
)

func TestKey(t *testing.T) {
	bbox := models.NewBoundingBox(78.3, 17.2, 78.8, 17.8)

	got := Key(models.LayerServices, 3, bbox, 11)
	want := "citymap:clusters:v2:services:0000000000000003:11:78.3,17.2,78.8,17.8"
	if got != want {
		t.Errorf("expected %q, got %q", want, got)
	}

	if Key(models.LayerServices, 4, bbox, 11) == got {
		t.Error("expected a new layer version to change the key")
	}
}

func TestKey_NearbyBoxesDiffer(t *testing.T) {
	a := models.NewBoundingBox(78.400001, 17.3, 78.5, 17.5)
	b := models.NewBoundingBox(78.400005, 17.3, 78.5, 17.5)

	if Key(models.LayerSensors, 1, a, 12) == Key(models.LayerSensors, 1, b, 12) {
		t.Errorf("boxes %v and %v share a cache key", a, b)
	}
}

func TestSceneCache_DisabledIsAMiss(t *testing.T) {
	c := Open("", "", 0, time.Minute)
	if c.Enabled() {
		t.Fatal("expected cache disabled without an address")
	}

	ctx := context.Background()
	c.Set(ctx, "k", []byte("v"))
	if _, ok := c.Get(ctx, "k"); ok {
		t.Error("expected a miss from a disabled cache")
	}
	if err := c.Ping(ctx); err != nil {
		t.Errorf("expected nil ping, got %v", err)
	}
	if err := c.Close(); err != nil {
		t.Errorf("expected nil close, got %v", err)
	}
}

func TestSceneCache_NilReceiver(t *testing.T) {
	var c *SceneCache
	if c.Enabled() {
		t.Error("expected nil cache disabled")
	}
	if _, ok := c.Get(context.Background(), "k"); ok {
		t.Error("expected a miss")
	}
}
