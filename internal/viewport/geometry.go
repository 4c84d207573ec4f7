package viewport

import (
	"math"

	"github.com/mr1hm/go-citymap/internal/models"
	"github.com/mr1hm/go-citymap/internal/spatial"
)

const tileSize = 256

// Size is the rendered map size in CSS pixels.
type Size struct {
	Width  int
	Height int
}

// Geometry does the fit and pan calculations a map widget would otherwise do.
type Geometry struct {
	Size    Size
	MinZoom int
	MaxZoom int
}

func worldSize(zoom int) float64 {
	return tileSize * math.Pow(2, float64(zoom))
}

// BBoxAt is the box visible at zoom when the map is centred on center.
func (g Geometry) BBoxAt(center models.Coordinates, zoom int) models.BoundingBox {
	world := worldSize(zoom)
	cx := spatial.LngX(center.Longitude) * world
	cy := spatial.LatY(center.Latitude) * world
	halfW := float64(g.Size.Width) / 2
	halfH := float64(g.Size.Height) / 2

	return models.NewBoundingBox(
		spatial.XLng((cx-halfW)/world),
		spatial.YLat(math.Min(1, (cy+halfH)/world)),
		spatial.XLng((cx+halfW)/world),
		spatial.YLat(math.Max(0, (cy-halfH)/world)),
	)
}

// FitBounds picks the highest zoom at which the padded box fits the map and
// centres the map on it.
func (g Geometry) FitBounds(b models.BoundingBox, pad float64) Viewport {
	padded := b.Pad(pad)

	x0, x1 := spatial.LngX(padded.West), spatial.LngX(padded.East)
	y0, y1 := spatial.LatY(padded.North), spatial.LatY(padded.South)
	center := models.Coordinates{
		Latitude:  spatial.YLat((y0 + y1) / 2),
		Longitude: spatial.XLng((x0 + x1) / 2),
	}

	zoom := g.MinZoom
	for z := g.MaxZoom; z >= g.MinZoom; z-- {
		world := worldSize(z)
		if (x1-x0)*world <= float64(g.Size.Width) && (y1-y0)*world <= float64(g.Size.Height) {
			zoom = z
			break
		}
	}

	return Viewport{BBox: g.BBoxAt(center, zoom), Zoom: zoom}
}

// PanTo recentres v on center and keeps its zoom.
func (g Geometry) PanTo(v Viewport, center models.Coordinates) Viewport {
	return Viewport{BBox: g.BBoxAt(center, v.Zoom), Zoom: v.Zoom}
}
