package pdfio

import (
	"bytes"
	"compress/zlib"
	"fmt"

	"github.com/digitorus/pdf"
)

// Box is a page rectangle in default user space.
type Box struct {
	LLX, LLY, URX, URY float64
}

// Letter is used when a page tree carries no MediaBox.
var Letter = Box{0, 0, 612, 792}

func (b Box) Width() float64  { return b.URX - b.LLX }
func (b Box) Height() float64 { return b.URY - b.LLY }

// NumPage returns the number of pages.
func (u *Update) NumPage() (n int, err error) {
	defer Recover(&err)
	return u.Reader.NumPage(), nil
}

// Page returns the dictionary of page n, counting from 1.
func (u *Update) Page(n int) (page pdf.Value, err error) {
	defer Recover(&err)

	if n < 1 || n > u.Reader.NumPage() {
		return pdf.Value{}, structuref("page %d out of range", n)
	}
	page = u.Reader.Page(n).V
	if page.Kind() != pdf.Dict {
		return pdf.Value{}, structuref("page %d is not a dictionary", n)
	}
	return page, nil
}

// Inherited looks up key on the page and then on its ancestors.
func Inherited(page pdf.Value, key string) pdf.Value {
	for node, depth := page, 0; !node.IsNull() && depth < maxValueDepth; node, depth = node.Key("Parent"), depth+1 {
		if v := node.Key(key); !v.IsNull() {
			return v
		}
	}
	return pdf.Value{}
}

// MediaBox returns the page's effective media box, falling back to Letter.
func MediaBox(page pdf.Value) Box {
	v := Inherited(page, "MediaBox")
	if v.Kind() != pdf.Array || v.Len() != 4 {
		return Letter
	}
	b := Box{v.Index(0).Float64(), v.Index(1).Float64(), v.Index(2).Float64(), v.Index(3).Float64()}
	if b.URX < b.LLX {
		b.LLX, b.URX = b.URX, b.LLX
	}
	if b.URY < b.LLY {
		b.LLY, b.URY = b.URY, b.LLY
	}
	if b.Width() <= 0 || b.Height() <= 0 {
		return Letter
	}
	return b
}

// AddStream appends a stream object. extra holds additional dictionary
// entries such as " /Type /XObject".
func (u *Update) AddStream(extra string, data []byte) (uint32, error) {
	var body bytes.Buffer
	filter := ""
	if u.CompressLevel != 0 {
		var packed bytes.Buffer
		w, err := zlib.NewWriterLevel(&packed, u.CompressLevel)
		if err != nil {
			return 0, fmt.Errorf("failed to create compressor: %w", err)
		}
		if _, err := w.Write(data); err != nil {
			return 0, err
		}
		if err := w.Close(); err != nil {
			return 0, err
		}
		data = packed.Bytes()
		filter = " /Filter /FlateDecode"
	}
	fmt.Fprintf(&body, "<<%s%s /Length %d >>\nstream\n", extra, filter, len(data))
	body.Write(data)
	body.WriteString("\nendstream")
	return u.AddObject(body.Bytes())
}
