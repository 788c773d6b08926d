package canvas

import "math"

const (
	MinZoom = 0.3
	MaxZoom = 3.0

	// ZoomStep is applied per zoom button click.
	ZoomStep = 1.2
	// WheelStep is applied per wheel notch; only the sign of the delta matters.
	WheelStep = 1.1
)

// Point is a 2D coordinate, in screen or document space depending on context.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

func (p Point) Sub(o Point) Point { return Point{X: p.X - o.X, Y: p.Y - o.Y} }
func (p Point) Add(o Point) Point { return Point{X: p.X + o.X, Y: p.Y + o.Y} }

// View is the local pan/zoom transform. It never affects document coordinates.
type View struct {
	Offset Point   `json:"offset"`
	Zoom   float64 `json:"zoom"`
}

func DefaultView() View {
	return View{Zoom: 1}
}

// ToDocument converts a screen point into document space.
func (v View) ToDocument(screen Point) Point {
	return Point{
		X: (screen.X - v.Offset.X) / v.Zoom,
		Y: (screen.Y - v.Offset.Y) / v.Zoom,
	}
}

// ToScreen converts a document point into screen space.
func (v View) ToScreen(doc Point) Point {
	return Point{
		X: doc.X*v.Zoom + v.Offset.X,
		Y: doc.Y*v.Zoom + v.Offset.Y,
	}
}

func clampZoom(z float64) float64 {
	if math.IsNaN(z) {
		return 1
	}
	return math.Min(MaxZoom, math.Max(MinZoom, z))
}

func (v *View) zoomBy(factor float64) {
	v.Zoom = clampZoom(v.Zoom * factor)
}

func clampPosition(p Point) Point {
	return Point{X: math.Max(0, p.X), Y: math.Max(0, p.Y)}
}
