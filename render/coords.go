package render

import (
	"fmt"

	"github.com/esignkit/signcore/internal/pdfio"
)

// Default size of the web previewer, in pixels.
const (
	ViewerWidth  = 600.0
	ViewerHeight = 800.0
)

// Mode is the coordinate system a field position is expressed in.
type Mode int

const (
	// Relative positions are fractions of the page size.
	Relative Mode = iota
	// ViewerPixel positions are pixels of the default previewer.
	ViewerPixel
	// Absolute positions are PDF points.
	Absolute
)

func (m Mode) String() string {
	switch m {
	case Relative:
		return "relative"
	case ViewerPixel:
		return "viewer-pixel"
	case Absolute:
		return "absolute"
	}
	return fmt.Sprintf("mode(%d)", int(m))
}

func (m Mode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// Rect is a rectangle in PDF user space, origin bottom-left.
type Rect struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

// DetectMode picks the coordinate mode from the numeric range of a field.
func DetectMode(x, y, w, h float64) Mode {
	if x <= 1 && y <= 1 && w <= 1 && h <= 1 {
		return Relative
	}
	if x <= ViewerWidth && w <= ViewerWidth && y <= ViewerHeight && h <= ViewerHeight {
		return ViewerPixel
	}
	return Absolute
}

// ToPDFRect converts a field position to PDF user space on a page with
// the given media box.
func ToPDFRect(f Field, box pdfio.Box) (Rect, Mode) {
	pw, ph := box.Width(), box.Height()
	x, y, w, h := f.X, f.Y, f.Width, f.Height

	mode := DetectMode(x, y, w, h)
	switch mode {
	case Relative:
		x, w = x*pw, w*pw
		y, h = y*ph, h*ph
	case ViewerPixel:
		x, w = x/ViewerWidth*pw, w/ViewerWidth*pw
		y, h = y/ViewerHeight*ph, h/ViewerHeight*ph
	}

	return Rect{
		X: box.LLX + x,
		Y: box.LLY + ph - y - h,
		W: w,
		H: h,
	}, mode
}
