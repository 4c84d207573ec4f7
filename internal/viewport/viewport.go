package viewport

import (
	"math"
	"sync"

	"github.com/mr1hm/go-citymap/internal/models"
)

type Viewport struct {
	BBox models.BoundingBox `json:"bbox"`
	Zoom int                `json:"zoom"`
}

type Listener func(Viewport)

// Tracker republishes the map viewport after pan and zoom events. Listeners
// are only called when the box or the rounded zoom actually changed; a
// listener that falls behind sees the newest viewport, never a backlog.
type Tracker struct {
	mu        sync.Mutex
	bbox      models.BoundingBox
	hasBBox   bool
	zoom      int
	minZoom   int
	maxZoom   int
	listeners map[uint64]Listener
	nextID    uint64
}

func NewTracker(initialZoom, minZoom, maxZoom int) *Tracker {
	t := &Tracker{
		minZoom:   minZoom,
		maxZoom:   maxZoom,
		listeners: make(map[uint64]Listener),
	}
	t.zoom = t.clamp(float64(initialZoom))
	return t
}

func (t *Tracker) Subscribe(fn Listener) uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.nextID++
	t.listeners[t.nextID] = fn
	return t.nextID
}

func (t *Tracker) Unsubscribe(id uint64) {
	t.mu.Lock()
	delete(t.listeners, id)
	t.mu.Unlock()
}

// Current returns the viewport once a bounding box is known.
func (t *Tracker) Current() (Viewport, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return Viewport{BBox: t.bbox, Zoom: t.zoom}, t.hasBBox
}

func (t *Tracker) Zoom() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.zoom
}

// MoveEnd records the box and zoom reported after a pan.
func (t *Tracker) MoveEnd(bbox models.BoundingBox, zoom float64) bool {
	return t.update(&bbox, zoom)
}

// ZoomEnd records a zoom change; the box is left as it was.
func (t *Tracker) ZoomEnd(zoom float64) bool {
	return t.update(nil, zoom)
}

// Set applies a viewport computed by the server, e.g. when fitting a route.
func (t *Tracker) Set(v Viewport) bool {
	return t.update(&v.BBox, float64(v.Zoom))
}

func (t *Tracker) update(bbox *models.BoundingBox, zoom float64) bool {
	t.mu.Lock()

	changed := false
	if bbox != nil {
		b := models.NewBoundingBox(bbox.West, bbox.South, bbox.East, bbox.North)
		if !t.hasBBox || b != t.bbox {
			t.bbox = b
			t.hasBBox = true
			changed = true
		}
	}
	if !math.IsNaN(zoom) {
		if z := t.clamp(zoom); z != t.zoom {
			t.zoom = z
			changed = true
		}
	}
	if !changed || !t.hasBBox {
		t.mu.Unlock()
		return changed
	}

	v := Viewport{BBox: t.bbox, Zoom: t.zoom}
	listeners := make([]Listener, 0, len(t.listeners))
	for _, fn := range t.listeners {
		listeners = append(listeners, fn)
	}
	t.mu.Unlock()

	for _, fn := range listeners {
		fn(v)
	}
	return true
}

func (t *Tracker) clamp(zoom float64) int {
	z := int(math.Round(zoom))
	if z < t.minZoom {
		return t.minZoom
	}
	if z > t.maxZoom {
		return t.maxZoom
	}
	return z
}
