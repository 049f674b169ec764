// Package projection maps the 3D editor state onto the two 2D views (XY and
// XZ) the operator edits in, and converts pointer positions back into data
// coordinates.
package projection

import "math"

// View names one of the two projections.
type View string

const (
	ViewXY View = "xy"
	ViewXZ View = "xz"
)

// Views lists every projection in render order.
var Views = []View{ViewXY, ViewXZ}

// Valid reports whether v names a known projection.
func (v View) Valid() bool { return v == ViewXY || v == ViewXZ }

// VerticalAxis returns the name of the data axis drawn vertically.
func (v View) VerticalAxis() string {
	if v == ViewXZ {
		return "z"
	}
	return "y"
}

// Vec2 is a 2D position in either data or pixel space.
type Vec2 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

func (a Vec2) dist(b Vec2) float64 { return math.Hypot(a.X-b.X, a.Y-b.Y) }

// Bounds is a data-space interval.
type Bounds struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

func (b Bounds) span() float64 {
	if s := b.Max - b.Min; s != 0 {
		return s
	}
	return 1
}

// LineStyle selects how a polyline is stroked.
type LineStyle string

const (
	LineDashed LineStyle = "dashed"
	LineSolid  LineStyle = "solid"
)

// Series names.
const (
	SeriesControl     = "control"
	SeriesTrajectory  = "trajectory"
	SeriesEndEffector = "end_effector"
)

// Marker symbols.
const (
	SymbolCircle = "circle"
	SymbolPin    = "pin"
)

// Polyline is a drawn line in both coordinate spaces.
type Polyline struct {
	Series string    `json:"series"`
	Style  LineStyle `json:"style"`
	Data   []Vec2    `json:"data"`
	Pixels []Vec2    `json:"pixels"`
}

// Marker is a drawn symbol. ID carries the control point id for the control
// series and the sample index for the trajectory series.
type Marker struct {
	Series    string  `json:"series"`
	ID        int     `json:"id"`
	Data      Vec2    `json:"data"`
	Pixel     Vec2    `json:"pixel"`
	Radius    float64 `json:"radius"`
	Symbol    string  `json:"symbol"`
	Hidden    bool    `json:"hidden"`
	Hoverable bool    `json:"hoverable"`
	Draggable bool    `json:"draggable"`
}

// Frame is everything a scene has drawn since its last Clear.
type Frame struct {
	View       View       `json:"view"`
	Horizontal string     `json:"horizontal"`
	Vertical   string     `json:"vertical"`
	HBounds    Bounds     `json:"h_bounds"`
	VBounds    Bounds     `json:"v_bounds"`
	Width      int        `json:"width"`
	Height     int        `json:"height"`
	Lines      []Polyline `json:"lines"`
	Markers    []Marker   `json:"markers"`
}

// Clone returns a deep copy of f.
func (f Frame) Clone() Frame {
	c := f
	c.Lines = make([]Polyline, len(f.Lines))
	for i, l := range f.Lines {
		l.Data = append([]Vec2(nil), l.Data...)
		l.Pixels = append([]Vec2(nil), l.Pixels...)
		c.Lines[i] = l
	}
	c.Markers = append([]Marker(nil), f.Markers...)
	return c
}

// Line returns the polyline of a series, if drawn.
func (f Frame) Line(series string) (Polyline, bool) {
	for _, l := range f.Lines {
		if l.Series == series {
			return l, true
		}
	}
	return Polyline{}, false
}

// MarkersOf returns the markers of one series in draw order.
func (f Frame) MarkersOf(series string) []Marker {
	var out []Marker
	for _, m := range f.Markers {
		if m.Series == series {
			out = append(out, m)
		}
	}
	return out
}

// Scene is the drawing surface of one projection.
type Scene interface {
	Resize(width, height int)
	ToPixel(data Vec2) Vec2
	ToData(pixel Vec2) Vec2
	Clear()
	DrawPolyline(series string, style LineStyle, data []Vec2)
	DrawMarker(m Marker)
	Frame() Frame
}

// GridMargin is the fraction of the viewport left empty on every side of
// the plotting grid.
const GridMargin = 0.1

// GridScene maps data linearly onto a grid inset by GridMargin, with the
// pixel y axis pointing down, and records what it draws.
type GridScene struct {
	frame Frame
}

// NewGridScene creates a scene for view with the given axis bounds.
func NewGridScene(view View, h, v Bounds, width, height int) *GridScene {
	return &GridScene{frame: Frame{
		View:       view,
		Horizontal: "x",
		Vertical:   view.VerticalAxis(),
		HBounds:    h,
		VBounds:    v,
		Width:      width,
		Height:     height,
	}}
}

// Resize changes the viewport. Already drawn pixels are stale until the
// next render.
func (s *GridScene) Resize(width, height int) {
	s.frame.Width, s.frame.Height = width, height
}

func (s *GridScene) grid() (left, top, w, h float64) {
	fw, fh := float64(s.frame.Width), float64(s.frame.Height)
	left, top = fw*GridMargin, fh*GridMargin
	w, h = fw*(1-2*GridMargin), fh*(1-2*GridMargin)
	if w <= 0 {
		w = 1
	}
	if h <= 0 {
		h = 1
	}
	return left, top, w, h
}

// ToPixel converts data coordinates to viewport pixels.
func (s *GridScene) ToPixel(d Vec2) Vec2 {
	left, top, w, h := s.grid()
	hb, vb := s.frame.HBounds, s.frame.VBounds
	return Vec2{
		X: left + (d.X-hb.Min)/hb.span()*w,
		Y: top + h - (d.Y-vb.Min)/vb.span()*h,
	}
}

// ToData converts viewport pixels to data coordinates.
func (s *GridScene) ToData(p Vec2) Vec2 {
	left, top, w, h := s.grid()
	hb, vb := s.frame.HBounds, s.frame.VBounds
	return Vec2{
		X: hb.Min + (p.X-left)/w*hb.span(),
		Y: vb.Min + (top+h-p.Y)/h*vb.span(),
	}
}

// Clear drops everything drawn.
func (s *GridScene) Clear() {
	s.frame.Lines = nil
	s.frame.Markers = nil
}

// DrawPolyline records a line through data.
func (s *GridScene) DrawPolyline(series string, style LineStyle, data []Vec2) {
	pixels := make([]Vec2, len(data))
	for i, d := range data {
		pixels[i] = s.ToPixel(d)
	}
	s.frame.Lines = append(s.frame.Lines, Polyline{
		Series: series,
		Style:  style,
		Data:   append([]Vec2(nil), data...),
		Pixels: pixels,
	})
}

// DrawMarker records m, filling in its pixel position.
func (s *GridScene) DrawMarker(m Marker) {
	m.Pixel = s.ToPixel(m.Data)
	s.frame.Markers = append(s.frame.Markers, m)
}

// Frame returns a deep copy of the recorded state.
func (s *GridScene) Frame() Frame {
	return s.frame.Clone()
}
