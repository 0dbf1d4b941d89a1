package render

import (
	"bytes"
	"fmt"

	"github.com/esignkit/signcore/fonts"
	"github.com/esignkit/signcore/internal/pdfio"
)

// Color represents an RGB color.
type Color struct {
	R, G, B uint8
}

var (
	black = Color{0, 0, 0}
	red   = Color{200, 30, 30}
)

func (c Color) operands() string {
	return fmt.Sprintf("%.3f %.3f %.3f", float64(c.R)/255, float64(c.G)/255, float64(c.B)/255)
}

// Element is a visual element of a field's content stream.
type Element interface {
	isElement()
}

// TextElement draws a single line with its baseline at (X, Y).
type TextElement struct {
	Content string
	Font    *fonts.Font
	Size    float64
	X, Y    float64
	Color   Color
}

func (TextElement) isElement() {}

// PathElement strokes an open polyline.
type PathElement struct {
	Points [][2]float64
	Width  float64
	Color  Color
}

func (PathElement) isElement() {}

// RectElement strokes and/or fills a rectangle.
type RectElement struct {
	X, Y, W, H float64
	Width      float64
	Stroke     *Color
	Fill       *Color
}

func (RectElement) isElement() {}

// writeContent serializes elements as page content operators. The output
// is wrapped in q/Q so the page's graphics state is left untouched.
func writeContent(elements []Element) []byte {
	var stream bytes.Buffer
	stream.WriteString("q\n")

	for _, el := range elements {
		switch e := el.(type) {
		case TextElement:
			font := e.Font
			if font == nil {
				font = fonts.Get(fonts.Sans)
			}
			stream.WriteString("BT\n")
			fmt.Fprintf(&stream, "/%s %.2f Tf\n", font.Resource, e.Size)
			fmt.Fprintf(&stream, "%s rg\n", e.Color.operands())
			// Absolute text matrix per line.
			fmt.Fprintf(&stream, "1 0 0 1 %.2f %.2f Tm\n", e.X, e.Y)
			fmt.Fprintf(&stream, "%s Tj\n", pdfio.TextOperand(e.Content))
			stream.WriteString("ET\n")

		case PathElement:
			if len(e.Points) == 0 {
				continue
			}
			stream.WriteString("q\n")
			fmt.Fprintf(&stream, "%.2f w 1 J 1 j\n", e.Width)
			fmt.Fprintf(&stream, "%s RG\n", e.Color.operands())
			fmt.Fprintf(&stream, "%.2f %.2f m\n", e.Points[0][0], e.Points[0][1])
			if len(e.Points) == 1 {
				// A dot: zero-length segment with round caps.
				fmt.Fprintf(&stream, "%.2f %.2f l\n", e.Points[0][0], e.Points[0][1])
			}
			for _, p := range e.Points[1:] {
				fmt.Fprintf(&stream, "%.2f %.2f l\n", p[0], p[1])
			}
			stream.WriteString("S\nQ\n")

		case RectElement:
			stream.WriteString("q\n")
			if e.Width > 0 {
				fmt.Fprintf(&stream, "%.2f w\n", e.Width)
			}
			if e.Fill != nil {
				fmt.Fprintf(&stream, "%s rg\n", e.Fill.operands())
			}
			if e.Stroke != nil {
				fmt.Fprintf(&stream, "%s RG\n", e.Stroke.operands())
			}
			fmt.Fprintf(&stream, "%.2f %.2f %.2f %.2f re\n", e.X, e.Y, e.W, e.H)
			switch {
			case e.Fill != nil && e.Stroke != nil:
				stream.WriteString("B\n")
			case e.Fill != nil:
				stream.WriteString("f\n")
			default:
				stream.WriteString("S\n")
			}
			stream.WriteString("Q\n")
		}
	}

	stream.WriteString("Q\n")
	return stream.Bytes()
}
