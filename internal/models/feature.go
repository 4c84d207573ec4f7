package models

import (
	"fmt"
	"math"
	"strings"
)

type Category string

const (
	CategoryIncident  Category = "incident"
	CategorySensor    Category = "sensor"
	CategoryHospital  Category = "hospital"
	CategoryPharmacy  Category = "pharmacy"
	CategoryShelter   Category = "shelter"
	CategoryCommunity Category = "community"
	CategoryOther     Category = "other"
)

// ParseServiceCategory normalises a free-form service type from the hosted store.
// An empty value maps to community, anything unrecognised to other.
func ParseServiceCategory(s string) Category {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return CategoryCommunity
	case "hospital":
		return CategoryHospital
	case "pharmacy":
		return CategoryPharmacy
	case "shelter":
		return CategoryShelter
	case "community":
		return CategoryCommunity
	default:
		return CategoryOther
	}
}

type Layer string

const (
	LayerIncidents Layer = "incidents"
	LayerSensors   Layer = "sensors"
	LayerServices  Layer = "services"
	LayerAQI       Layer = "aqi"
)

// ClusteredLayers are the layers backed by a cluster index, in render order.
var ClusteredLayers = []Layer{LayerIncidents, LayerSensors, LayerServices}

// AllLayers lists every toggleable layer.
var AllLayers = []Layer{LayerIncidents, LayerSensors, LayerServices, LayerAQI}

func ParseLayer(s string) (Layer, bool) {
	l := Layer(strings.ToLower(s))
	for _, known := range AllLayers {
		if l == known {
			return l, true
		}
	}
	return "", false
}

type Coordinates struct {
	Latitude  float64 `json:"lat"`
	Longitude float64 `json:"lng"`
}

// Valid reports whether the coordinate is finite and within WGS84 ranges.
func (c Coordinates) Valid() bool {
	if math.IsNaN(c.Latitude) || math.IsNaN(c.Longitude) ||
		math.IsInf(c.Latitude, 0) || math.IsInf(c.Longitude, 0) {
		return false
	}
	return c.Latitude >= -90 && c.Latitude <= 90 && c.Longitude >= -180 && c.Longitude <= 180
}

func (c Coordinates) String() string {
	return fmt.Sprintf("%.5f,%.5f", c.Latitude, c.Longitude)
}

// BoundingBox is (west, south, east, north) in degrees.
type BoundingBox struct {
	West  float64 `json:"west"`
	South float64 `json:"south"`
	East  float64 `json:"east"`
	North float64 `json:"north"`
}

// NewBoundingBox orders the edges so that West <= East and South <= North.
func NewBoundingBox(west, south, east, north float64) BoundingBox {
	if west > east {
		west, east = east, west
	}
	if south > north {
		south, north = north, south
	}
	return BoundingBox{West: west, South: south, East: east, North: north}
}

// BoundsOf returns the smallest box containing all coordinates.
func BoundsOf(coords []Coordinates) (BoundingBox, bool) {
	if len(coords) == 0 {
		return BoundingBox{}, false
	}
	b := BoundingBox{
		West:  coords[0].Longitude,
		South: coords[0].Latitude,
		East:  coords[0].Longitude,
		North: coords[0].Latitude,
	}
	for _, c := range coords[1:] {
		b.West = math.Min(b.West, c.Longitude)
		b.East = math.Max(b.East, c.Longitude)
		b.South = math.Min(b.South, c.Latitude)
		b.North = math.Max(b.North, c.Latitude)
	}
	return b, true
}

func (b BoundingBox) Contains(c Coordinates) bool {
	return c.Longitude >= b.West && c.Longitude <= b.East &&
		c.Latitude >= b.South && c.Latitude <= b.North
}

func (b BoundingBox) Center() Coordinates {
	return Coordinates{
		Latitude:  (b.South + b.North) / 2,
		Longitude: (b.West + b.East) / 2,
	}
}

// Pad grows the box by ratio of its size on every side.
func (b BoundingBox) Pad(ratio float64) BoundingBox {
	dLat := (b.North - b.South) * ratio
	dLon := (b.East - b.West) * ratio
	return BoundingBox{
		West:  b.West - dLon,
		South: b.South - dLat,
		East:  b.East + dLon,
		North: b.North + dLat,
	}
}

// SourceRef points back at the entity a feature was projected from.
type SourceRef struct {
	Layer Layer  `json:"layer"`
	ID    string `json:"id"`
}

type PointFeature struct {
	Category    Category
	Coordinates Coordinates
	Ref         SourceRef
	Key         string // unique within a layer index, assigned by cluster.Build
	Fallback    bool   // coordinates came from the id hash
	Extra       map[string]string
}
