package models

import (
	"strconv"
	"strings"
)

type Incident struct {
	ID       string  `json:"id"`
	Title    string  `json:"title,omitempty"`
	Type     string  `json:"type,omitempty"`
	Severity string  `json:"severity,omitempty"`
	Status   string  `json:"status,omitempty"`
	Location *string `json:"location,omitempty"`
}

// Coordinates parses a "lat,lon" location. Free-text locations have no coordinates.
func (i *Incident) Coordinates() (Coordinates, bool) {
	if i.Location == nil {
		return Coordinates{}, false
	}
	parts := strings.Split(*i.Location, ",")
	if len(parts) != 2 {
		return Coordinates{}, false
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return Coordinates{}, false
	}
	lon, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return Coordinates{}, false
	}
	c := Coordinates{Latitude: lat, Longitude: lon}
	return c, c.Valid()
}

type Sensor struct {
	ID     string   `json:"id"`
	Type   string   `json:"type,omitempty"`
	Label  string   `json:"label,omitempty"`
	Zone   string   `json:"zone,omitempty"`
	Lat    *float64 `json:"lat,omitempty"`
	Lon    *float64 `json:"lon,omitempty"`
	Status string   `json:"status,omitempty"`
}

func (s *Sensor) Coordinates() (Coordinates, bool) {
	return optionalCoordinates(s.Lat, s.Lon)
}

type Service struct {
	ID       string   `json:"id"`
	Name     string   `json:"name,omitempty"`
	Category string   `json:"category,omitempty"`
	Lat      *float64 `json:"lat,omitempty"`
	Lng      *float64 `json:"lng,omitempty"`
}

func (s *Service) Coordinates() (Coordinates, bool) {
	return optionalCoordinates(s.Lat, s.Lng)
}

type AQIReading struct {
	City     string `json:"city"`
	AQI      int    `json:"aqi"`
	Category string `json:"category"`
}

func optionalCoordinates(lat, lon *float64) (Coordinates, bool) {
	if lat == nil || lon == nil {
		return Coordinates{}, false
	}
	c := Coordinates{Latitude: *lat, Longitude: *lon}
	return c, c.Valid()
}
