package spatial

import "math"

// Spherical mercator onto the unit square. X grows east, Y grows south;
// latitudes beyond the mercator limit are clamped to the square edge.

func LngX(lng float64) float64 {
	return lng/360 + 0.5
}

func LatY(lat float64) float64 {
	sin := math.Sin(lat * math.Pi / 180)
	y := 0.5 - 0.25*math.Log((1+sin)/(1-sin))/math.Pi
	switch {
	case math.IsNaN(y):
		return 0
	case y < 0:
		return 0
	case y > 1:
		return 1
	}
	return y
}

func XLng(x float64) float64 {
	return (x - 0.5) * 360
}

func YLat(y float64) float64 {
	y2 := (180 - y*360) * math.Pi / 180
	return 360*math.Atan(math.Exp(y2))/math.Pi - 90
}
