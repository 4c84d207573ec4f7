package render

import (
	"strings"

	"github.com/mr1hm/go-citymap/internal/models"
)

type Style struct {
	Icon  string `json:"icon"`
	Color string `json:"color"`
}

var categoryStyles = map[models.Category]Style{
	models.CategoryIncident:  {Icon: "⚠️", Color: "#dc2626"},
	models.CategorySensor:    {Icon: "📡", Color: "#0891b2"},
	models.CategoryHospital:  {Icon: "🏥", Color: "#ef4444"},
	models.CategoryPharmacy:  {Icon: "💊", Color: "#22c55e"},
	models.CategoryShelter:   {Icon: "🏠", Color: "#2563eb"},
	models.CategoryCommunity: {Icon: "👥", Color: "#9333ea"},
	models.CategoryOther:     {Icon: "📍", Color: "#0ea5e9"},
}

// cluster badges take the layer colour since a services cluster can mix categories
var layerBadgeColors = map[models.Layer]string{
	models.LayerIncidents: "#dc2626",
	models.LayerSensors:   "#0891b2",
	models.LayerServices:  "#0ea5e9",
}

const (
	routeColor       = "#7c3aed"
	destinationColor = "#2563eb"
	aqiUnknownColor  = "#7c3aed"

	pointRadius = 6
	haloRadius  = 10
)

func StyleFor(c models.Category) Style {
	if s, ok := categoryStyles[c]; ok {
		return s
	}
	return categoryStyles[models.CategoryOther]
}

// destinationStyle keeps the pin for destinations without a category.
func destinationStyle(cat string) Style {
	if strings.TrimSpace(cat) == "" {
		return categoryStyles[models.CategoryOther]
	}
	return StyleFor(models.ParseServiceCategory(cat))
}

func aqiColor(category string) string {
	switch category {
	case "Good":
		return "#16a34a"
	case "Satisfactory":
		return "#22c55e"
	case "Moderate":
		return "#eab308"
	case "Poor":
		return "#f97316"
	case "Very Poor":
		return "#dc2626"
	default:
		return aqiUnknownColor
	}
}

// DefaultCenter is the centre of India, also used for AQI cities without a known position.
var DefaultCenter = models.Coordinates{Latitude: 21.1458, Longitude: 79.0882}

var aqiCities = map[string]models.Coordinates{
	"Mumbai":    {Latitude: 19.0760, Longitude: 72.8777},
	"Pune":      {Latitude: 18.5204, Longitude: 73.8567},
	"Hyderabad": {Latitude: 17.3850, Longitude: 78.4867},
	"Delhi":     {Latitude: 28.6139, Longitude: 77.2090},
	"Kolkata":   {Latitude: 22.5726, Longitude: 88.3639},
}

// AQICities lists the cities with a known map position.
func AQICities() []string {
	return []string{"Mumbai", "Pune", "Hyderabad", "Delhi", "Kolkata"}
}

func aqiPosition(city string) models.Coordinates {
	if c, ok := aqiCities[city]; ok {
		return c
	}
	return DefaultCenter
}
