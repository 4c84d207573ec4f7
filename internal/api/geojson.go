package api

import (
	"github.com/mr1hm/go-citymap/internal/models"
	"github.com/mr1hm/go-citymap/internal/render"
	"github.com/mr1hm/go-citymap/internal/viewport"
)

type FeatureCollection struct {
	Type     string    `json:"type"`
	Features []Feature `json:"features"`
}
type Feature struct {
	Type       string         `json:"type"`
	Geometry   Geometry       `json:"geometry"`
	Properties map[string]any `json:"properties"`
}

// Geometry coordinates are [lng, lat] for a Point and a list of those for a
// LineString.
type Geometry struct {
	Type        string `json:"type"`
	Coordinates any    `json:"coordinates"`
}

type ViewportJSON struct {
	West  float64 `json:"west"`
	South float64 `json:"south"`
	East  float64 `json:"east"`
	North float64 `json:"north"`
	Zoom  int     `json:"zoom"`
}

type SceneResponse struct {
	SessionID   string                `json:"session_id"`
	Version     uint64                `json:"version"`
	Viewport    *ViewportJSON         `json:"viewport"`
	Layers      map[models.Layer]bool `json:"layers"`
	Markers     FeatureCollection     `json:"markers"`
	Route       *Feature              `json:"route"`
	Destination *Feature              `json:"destination"`
	Selected    *render.Detail        `json:"selected"`
}

func lngLat(c models.Coordinates) []float64 {
	return []float64{c.Longitude, c.Latitude}
}

func toViewportJSON(v *viewport.Viewport) *ViewportJSON {
	if v == nil {
		return nil
	}
	return &ViewportJSON{West: v.BBox.West, South: v.BBox.South, East: v.BBox.East, North: v.BBox.North, Zoom: v.Zoom}
}

func markerFeature(m render.Marker) Feature {
	props := make(map[string]any, len(m.Properties)+10)
	for k, v := range m.Properties {
		props[k] = v
	}
	props["key"] = m.Key
	props["kind"] = m.Kind
	props["count"] = m.Count
	props["icon"] = m.Style.Icon
	props["color"] = m.Style.Color
	if m.Layer != "" {
		props["layer"] = m.Layer
	}
	if m.Category != "" {
		props["category"] = m.Category
	}
	if m.Radius > 0 {
		props["radius"] = m.Radius
	}
	if m.Label != "" {
		props["label"] = m.Label
	}
	if m.Kind == render.MarkerCluster {
		props["cluster"] = true
		props["point_count"] = m.Count
	}
	if m.Ref != nil {
		props["id"] = m.Ref.ID
	}

	return Feature{
		Type:       "Feature",
		Geometry:   Geometry{Type: "Point", Coordinates: lngLat(m.Coordinates)},
		Properties: props,
	}
}

func routeFeature(p *render.Polyline) *Feature {
	if p == nil {
		return nil
	}
	coords := make([][]float64, 0, len(p.Coordinates))
	for _, c := range p.Coordinates {
		coords = append(coords, lngLat(c))
	}
	return &Feature{
		Type:     "Feature",
		Geometry: Geometry{Type: "LineString", Coordinates: coords},
		Properties: map[string]any{
			"key":           p.Key,
			"color":         p.Color,
			"weight":        p.Weight,
			"opacity":       p.Opacity,
			"length_meters": p.LengthMeters,
		},
	}
}

func toGeoJSON(markers []render.Marker) FeatureCollection {
	features := make([]Feature, 0, len(markers))
	for _, m := range markers {
		features = append(features, markerFeature(m))
	}

	return FeatureCollection{
		Type:     "FeatureCollection",
		Features: features,
	}
}

func toSceneResponse(s *render.Scene) SceneResponse {
	resp := SceneResponse{
		SessionID: s.SessionID,
		Version:   s.Version,
		Viewport:  toViewportJSON(s.Viewport),
		Layers:    s.Layers,
		Markers:   toGeoJSON(s.Markers),
		Route:     routeFeature(s.Route),
		Selected:  s.Selected,
	}
	if s.Destination != nil {
		f := markerFeature(*s.Destination)
		resp.Destination = &f
	}
	return resp
}
