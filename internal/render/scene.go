package render

import (
	"fmt"

	"github.com/mr1hm/go-citymap/internal/models"
	"github.com/mr1hm/go-citymap/internal/viewport"
)

type MarkerKind string

const (
	MarkerCluster     MarkerKind = "cluster"
	MarkerPoint       MarkerKind = "point"
	MarkerAQI         MarkerKind = "aqi"
	MarkerDestination MarkerKind = "destination"
)

type Marker struct {
	Key         string             `json:"key"`
	Layer       models.Layer       `json:"layer,omitempty"`
	Kind        MarkerKind         `json:"kind"`
	Coordinates models.Coordinates `json:"coordinates"`
	Count       int                `json:"count"`
	Category    models.Category    `json:"category,omitempty"`
	Style       Style              `json:"style"`
	Radius      int                `json:"radius,omitempty"`
	Label       string             `json:"label,omitempty"`
	Ref         *models.SourceRef  `json:"ref,omitempty"`
	Properties  map[string]string  `json:"properties,omitempty"`
}

type Polyline struct {
	Key          string               `json:"key"`
	Coordinates  []models.Coordinates `json:"coordinates"`
	Color        string               `json:"color"`
	Weight       int                  `json:"weight"`
	Opacity      float64              `json:"opacity"`
	LengthMeters float64              `json:"length_meters"`
}

// Detail is the panel shown for a selected incident.
type Detail struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Status   string `json:"status"`
	Severity string `json:"severity"`
}

type Scene struct {
	SessionID   string                `json:"session_id"`
	Version     uint64                `json:"version"`
	Viewport    *viewport.Viewport    `json:"viewport,omitempty"`
	Layers      map[models.Layer]bool `json:"layers"`
	Markers     []Marker              `json:"markers"`
	Route       *Polyline             `json:"route,omitempty"`
	Destination *Marker               `json:"destination,omitempty"`
	Selected    *Detail               `json:"selected,omitempty"`
}

// MarkersFor returns the markers of a single layer.
func (s *Scene) MarkersFor(layer models.Layer) []Marker {
	var out []Marker
	for _, m := range s.Markers {
		if m.Layer == layer {
			out = append(out, m)
		}
	}
	return out
}

func clusterKey(layer models.Layer, id string) string {
	return fmt.Sprintf("c-%s-%s", layer, id)
}

// pointKey uses the feature key, which is unique per layer even for
// entities without an id.
func pointKey(layer models.Layer, key string) string {
	return fmt.Sprintf("p-%s-%s", layer, key)
}

func aqiKey(city string) string {
	return "aqi-" + city
}

const destinationKey = "destination"
