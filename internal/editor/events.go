package editor

import "github.com/banshee-data/trajectory.editor/internal/projection"

// Event is an operator gesture delivered to Editor.HandleEvent.
type Event interface {
	event()
}

// PointDragged reports that control point ID was dragged to Pixel in View.
type PointDragged struct {
	ID    int             `json:"id"`
	View  projection.View `json:"view"`
	Pixel projection.Vec2 `json:"pixel"`
}

// ViewportResized reports a new pixel size for View, or for both views when
// View is empty.
type ViewportResized struct {
	View   projection.View `json:"view,omitempty"`
	Width  int             `json:"width"`
	Height int             `json:"height"`
}

func (PointDragged) event()    {}
func (ViewportResized) event() {}

// Refreshable is implemented by anything the host re-draws on a refresh
// request.
type Refreshable interface {
	Refresh()
}
