package render

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mr1hm/go-citymap/internal/cluster"
	"github.com/mr1hm/go-citymap/internal/models"
	"github.com/mr1hm/go-citymap/internal/overlay"
	"github.com/mr1hm/go-citymap/internal/spatial"
	"github.com/mr1hm/go-citymap/internal/viewport"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrUnknownLayer    = errors.New("unknown layer")
	ErrMarkerNotFound  = errors.New("marker not found")
)

const routeFitPadding = 0.2

type Options struct {
	Geometry         viewport.Geometry
	InitialCenter    models.Coordinates
	InitialZoom      int
	ClusterClickZoom bool
}

func DefaultOptions() Options {
	return Options{
		Geometry: viewport.Geometry{
			Size:    viewport.Size{Width: 1024, Height: 520},
			MinZoom: 0,
			MaxZoom: 17,
		},
		InitialCenter:    DefaultCenter,
		InitialZoom:      4,
		ClusterClickZoom: true,
	}
}

// SelectOutcome says what a marker click did.
type SelectOutcome string

const (
	SelectedIncident SelectOutcome = "selected"
	ZoomedToCluster  SelectOutcome = "zoomed"
	SelectIgnored    SelectOutcome = "ignored"
)

// selectable remembers what a rendered marker stood for.
type selectable struct {
	layer  models.Layer
	result cluster.Result
}

// Session is one client's map: its viewport, layer toggles, overlays and
// selection, rendered against a shared Dataset.
type Session struct {
	ID string

	mu       sync.Mutex
	opts     Options
	data     *Dataset
	tracker  *viewport.Tracker
	visible  map[models.Layer]bool
	route    overlay.Route
	dest     *overlay.Destination
	selected *Detail
	rendered map[string]selectable
	version  uint64
	lastUsed time.Time

	publish func(*Scene)
}

func NewSession(id string, data *Dataset, opts Options, publish func(*Scene)) *Session {
	g := opts.Geometry
	s := &Session{
		ID:       id,
		opts:     opts,
		data:     data,
		tracker:  viewport.NewTracker(opts.InitialZoom, g.MinZoom, g.MaxZoom),
		visible:  make(map[models.Layer]bool, len(models.AllLayers)),
		rendered: map[string]selectable{},
		lastUsed: time.Now(),
		publish:  publish,
	}
	for _, l := range models.AllLayers {
		s.visible[l] = true
	}

	zoom := s.tracker.Zoom()
	s.tracker.Set(viewport.Viewport{BBox: g.BBoxAt(opts.InitialCenter, zoom), Zoom: zoom})
	s.tracker.Subscribe(func(viewport.Viewport) { s.refresh() })
	return s
}

func (s *Session) Tracker() *viewport.Tracker {
	return s.tracker
}

func (s *Session) touch() {
	s.mu.Lock()
	s.lastUsed = time.Now()
	s.mu.Unlock()
}

func (s *Session) idleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastUsed
}

// MoveEnd and ZoomEnd forward map events to the viewport tracker, which
// triggers a re-render when the viewport changed.
func (s *Session) MoveEnd(bbox models.BoundingBox, zoom float64) bool {
	return s.tracker.MoveEnd(bbox, zoom)
}

func (s *Session) ZoomEnd(zoom float64) bool {
	return s.tracker.ZoomEnd(zoom)
}

func (s *Session) SetLayerVisible(layer models.Layer, visible bool) error {
	s.mu.Lock()
	if _, ok := s.visible[layer]; !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownLayer, layer)
	}
	changed := s.visible[layer] != visible
	s.visible[layer] = visible
	s.mu.Unlock()

	if changed {
		s.refresh()
	}
	return nil
}

// SetRoute shows a route. A newly shown route frames the viewport once.
func (s *Session) SetRoute(route overlay.Route) {
	s.mu.Lock()
	if route.Key == s.route.Key && len(route.Coordinates) == len(s.route.Coordinates) {
		s.mu.Unlock()
		return
	}
	s.route = route
	s.mu.Unlock()

	if route.Drawable() {
		bounds, _ := models.BoundsOf(route.Coordinates)
		if s.tracker.Set(s.opts.Geometry.FitBounds(bounds, routeFitPadding)) {
			return
		}
	}
	s.refresh()
}

// SetDestination shows a destination marker and pans to it when it first
// appears or moves, keeping the current zoom.
func (s *Session) SetDestination(dest *overlay.Destination) {
	s.mu.Lock()
	if dest == nil && s.dest == nil {
		s.mu.Unlock()
		return
	}
	moved := dest != nil && (s.dest == nil || s.dest.Coordinates != dest.Coordinates)
	s.dest = dest
	s.mu.Unlock()

	if moved {
		v, ok := s.tracker.Current()
		if !ok {
			v.Zoom = s.tracker.Zoom()
		} else {
			slog.Debug("panning to destination", "session", s.ID, "label", dest.Label,
				"distance_m", spatial.Distance(v.BBox.Center(), dest.Coordinates))
		}
		if s.tracker.Set(s.opts.Geometry.PanTo(v, dest.Coordinates)) {
			return
		}
	}
	s.refresh()
}

func (s *Session) ApplyOverlay(q overlay.Query) {
	s.SetRoute(q.Route)
	s.SetDestination(q.Destination)
}

// UseDataset swaps in a new data snapshot and re-renders.
func (s *Session) UseDataset(d *Dataset) {
	s.mu.Lock()
	s.data = d
	scene := s.renderLocked()
	s.mu.Unlock()
	s.emit(scene)
}

func (s *Session) Dataset() *Dataset {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data
}

func (s *Session) ApplyIncidents(seq uint64, incidents []models.Incident, err error) bool {
	return s.apply(func(d *Dataset) (*Dataset, bool) { return d.WithIncidents(seq, incidents, err) })
}

func (s *Session) ApplySensors(seq uint64, sensors []models.Sensor, err error) bool {
	return s.apply(func(d *Dataset) (*Dataset, bool) { return d.WithSensors(seq, sensors, err) })
}

func (s *Session) ApplyServices(seq uint64, services []models.Service, err error) bool {
	return s.apply(func(d *Dataset) (*Dataset, bool) { return d.WithServices(seq, services, err) })
}

func (s *Session) ApplyAQI(seq uint64, readings []models.AQIReading, err error) bool {
	return s.apply(func(d *Dataset) (*Dataset, bool) { return d.WithAQI(seq, readings, err) })
}

func (s *Session) apply(update func(*Dataset) (*Dataset, bool)) bool {
	s.mu.Lock()
	next, ok := update(s.data)
	if !ok {
		s.mu.Unlock()
		return false
	}
	s.data = next
	scene := s.renderLocked()
	s.mu.Unlock()

	s.emit(scene)
	return true
}

// Select handles a click on a rendered marker.
func (s *Session) Select(key string) (SelectOutcome, error) {
	s.mu.Lock()
	sel, ok := s.rendered[key]
	if !ok {
		s.mu.Unlock()
		return SelectIgnored, fmt.Errorf("%w: %s", ErrMarkerNotFound, key)
	}

	if sel.result.IsCluster() {
		if !s.opts.ClusterClickZoom {
			s.mu.Unlock()
			return SelectIgnored, nil
		}
		idx := s.data.Index(sel.layer)
		zoom := idx.ExpansionZoom(sel.result)
		target := viewport.Viewport{
			BBox: s.opts.Geometry.BBoxAt(sel.result.Coordinates, zoom),
			Zoom: zoom,
		}
		s.mu.Unlock()

		if !s.tracker.Set(target) {
			s.refresh()
		}
		return ZoomedToCluster, nil
	}

	if sel.layer != models.LayerIncidents || sel.result.Feature == nil {
		s.mu.Unlock()
		return SelectIgnored, nil
	}
	inc, ok := s.data.Incident(sel.result.Feature.Ref.ID)
	if !ok {
		s.mu.Unlock()
		return SelectIgnored, nil
	}
	title := inc.Title
	if title == "" {
		title = inc.Type
	}
	s.selected = &Detail{ID: inc.ID, Title: title, Status: inc.Status, Severity: inc.Severity}
	s.mu.Unlock()

	s.refresh()
	return SelectedIncident, nil
}

// Leaves lists the point markers behind a rendered marker. A point marker
// yields itself.
func (s *Session) Leaves(key string) ([]Marker, error) {
	s.mu.Lock()
	sel, ok := s.rendered[key]
	data := s.data
	s.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMarkerNotFound, key)
	}

	features := data.Index(sel.layer).Leaves(sel.result)
	markers := make([]Marker, 0, len(features))
	for i := range features {
		f := &features[i]
		markers = append(markers, MarkerFor(sel.layer, cluster.Result{
			ID:          f.Key,
			Coordinates: f.Coordinates,
			Count:       1,
			Zoom:        sel.result.Zoom,
			Feature:     f,
		}))
	}
	return markers, nil
}

func (s *Session) ClearSelection() {
	s.mu.Lock()
	changed := s.selected != nil
	s.selected = nil
	s.mu.Unlock()

	if changed {
		s.refresh()
	}
}

// Render builds the scene for the current state.
func (s *Session) Render() *Scene {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.renderLocked()
}

// refresh re-renders and hands the scene to the publisher.
func (s *Session) refresh() {
	s.emit(s.Render())
}

func (s *Session) emit(scene *Scene) {
	if s.publish != nil {
		s.publish(scene)
	}
}

func (s *Session) renderLocked() *Scene {
	s.version++
	scene := &Scene{
		SessionID: s.ID,
		Version:   s.version,
		Layers:    make(map[models.Layer]bool, len(s.visible)),
		Selected:  s.selected,
	}
	for l, on := range s.visible {
		scene.Layers[l] = on
	}

	rendered := make(map[string]selectable)
	v, hasViewport := s.tracker.Current()
	if hasViewport {
		scene.Viewport = &v
		for _, layer := range models.ClusteredLayers {
			if !s.visible[layer] {
				continue
			}
			for _, r := range s.data.Index(layer).Query(v.BBox, v.Zoom) {
				m := MarkerFor(layer, r)
				rendered[m.Key] = selectable{layer: layer, result: r}
				scene.Markers = append(scene.Markers, m)
			}
		}
	}
	s.rendered = rendered

	if s.visible[models.LayerAQI] {
		for _, r := range s.data.AQI() {
			scene.Markers = append(scene.Markers, Marker{
				Key:         aqiKey(r.City),
				Layer:       models.LayerAQI,
				Kind:        MarkerAQI,
				Coordinates: aqiPosition(r.City),
				Count:       1,
				Style:       Style{Color: aqiColor(r.Category)},
				Radius:      haloRadius,
				Label:       fmt.Sprintf("%s: %d", r.City, r.AQI),
				Properties:  map[string]string{"category": r.Category},
			})
		}
	}

	scene.Route = RoutePolyline(s.route)

	if s.dest != nil {
		label := s.dest.Label
		if label == "" {
			label = "Destination"
		}
		props := map[string]string{"halo_color": destinationColor}
		if s.dest.Address != "" {
			props["address"] = s.dest.Address
		}
		scene.Destination = &Marker{
			Key:         destinationKey,
			Kind:        MarkerDestination,
			Coordinates: s.dest.Coordinates,
			Count:       1,
			Style:       destinationStyle(s.dest.Category),
			Radius:      haloRadius,
			Label:       label,
			Properties:  props,
		}
	}

	slog.Debug("scene rendered", "session", s.ID, "version", s.version, "markers", len(scene.Markers))
	return scene
}

// RoutePolyline styles a route for drawing; nil when it has too few points.
func RoutePolyline(route overlay.Route) *Polyline {
	if !route.Drawable() {
		return nil
	}
	return &Polyline{
		Key:          "route-" + route.Key,
		Coordinates:  route.Coordinates,
		Color:        routeColor,
		Weight:       5,
		Opacity:      0.8,
		LengthMeters: route.Length(),
	}
}

// MarkerFor turns one cluster query result into a marker.
func MarkerFor(layer models.Layer, r cluster.Result) Marker {
	if r.IsCluster() {
		return Marker{
			Key:         clusterKey(layer, r.ID),
			Layer:       layer,
			Kind:        MarkerCluster,
			Coordinates: r.Coordinates,
			Count:       r.Count,
			Style:       Style{Color: layerBadgeColors[layer]},
			Label:       fmt.Sprintf("%d", r.Count),
		}
	}

	f := r.Feature
	ref := f.Ref
	m := Marker{
		Key:         pointKey(layer, f.Key),
		Layer:       layer,
		Kind:        MarkerPoint,
		Coordinates: f.Coordinates,
		Count:       1,
		Category:    f.Category,
		Style:       StyleFor(f.Category),
		Radius:      pointRadius,
		Ref:         &ref,
		Properties:  f.Extra,
	}
	for _, k := range []string{"name", "label", "title"} {
		if v, ok := f.Extra[k]; ok {
			m.Label = v
			break
		}
	}
	return m
}
