// Package testpdf builds small, well-formed PDF documents for tests.
package testpdf

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"strings"
)

// Options controls the generated document. The zero value produces a
// single Letter page with a classic xref table.
type Options struct {
	Pages  int
	Width  float64
	Height float64

	// XRefStream writes a cross-reference stream instead of a table.
	XRefStream bool
	// InheritMediaBox puts the MediaBox on the page tree root.
	InheritMediaBox bool
	// IndirectResources stores the page resources in their own object.
	IndirectResources bool
	// ExistingField adds an AcroForm with one text field on page 1.
	ExistingField bool
	// Info adds a document information dictionary and a file ID.
	Info bool
}

type builder struct {
	bodies []string
}

func (b *builder) reserve() int {
	b.bodies = append(b.bodies, "")
	return len(b.bodies)
}

func (b *builder) set(id int, body string) {
	b.bodies[id-1] = body
}

// Build returns the document described by opts.
func Build(opts Options) []byte {
	if opts.Pages <= 0 {
		opts.Pages = 1
	}
	if opts.Width <= 0 {
		opts.Width = 612
	}
	if opts.Height <= 0 {
		opts.Height = 792
	}

	b := &builder{}
	catalog := b.reserve()
	pages := b.reserve()
	font := b.reserve()
	b.set(font, "<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica /Encoding /WinAnsiEncoding >>")

	resources := "<< /Font << /F1 " + ref(font) + " >> >>"
	if opts.IndirectResources {
		id := b.reserve()
		b.set(id, resources)
		resources = ref(id)
	}

	mediaBox := fmt.Sprintf("[0 0 %s %s]", num(opts.Width), num(opts.Height))

	var kids []string
	var field int
	for i := 1; i <= opts.Pages; i++ {
		page := b.reserve()
		content := b.reserve()
		stream := fmt.Sprintf("BT /F1 12 Tf 72 %s Td (Page %d) Tj ET", num(opts.Height-72), i)
		b.set(content, fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(stream), stream))

		dict := "<< /Type /Page /Parent " + ref(pages)
		if !opts.InheritMediaBox {
			dict += " /MediaBox " + mediaBox
		}
		dict += " /Resources " + resources + " /Contents " + ref(content)
		if i == 1 && opts.ExistingField {
			field = b.reserve()
			b.set(field, "<< /Type /Annot /Subtype /Widget /FT /Tx /T (Existing) /V (value) /Rect [72 600 272 620] /F 4 /P "+ref(page)+" >>")
			dict += " /Annots [" + ref(field) + "]"
		}
		dict += " >>"
		b.set(page, dict)
		kids = append(kids, ref(page))
	}

	tree := fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d", strings.Join(kids, " "), opts.Pages)
	if opts.InheritMediaBox {
		tree += " /MediaBox " + mediaBox
	}
	b.set(pages, tree+" >>")

	cat := "<< /Type /Catalog /Pages " + ref(pages)
	if opts.ExistingField {
		cat += " /AcroForm << /Fields [" + ref(field) + "] >>"
	}
	b.set(catalog, cat+" >>")

	info := 0
	if opts.Info {
		info = b.reserve()
		b.set(info, "<< /Producer (testpdf) /Title (Fixture) >>")
	}

	return b.serialize(catalog, info, opts.XRefStream)
}

func (b *builder) serialize(root, info int, stream bool) []byte {
	var out bytes.Buffer
	out.WriteString("%PDF-1.7\n%\xe2\xe3\xcf\xd3\n")

	offsets := make([]int, len(b.bodies)+1)
	for i, body := range b.bodies {
		offsets[i+1] = out.Len()
		fmt.Fprintf(&out, "%d 0 obj\n%s\nendobj\n", i+1, body)
	}

	trailer := fmt.Sprintf(" /Root %s", ref(root))
	if info > 0 {
		trailer += " /Info " + ref(info) + " /ID [<0123456789ABCDEF0123456789ABCDEF> <0123456789ABCDEF0123456789ABCDEF>]"
	}

	start := out.Len()
	if !stream {
		fmt.Fprintf(&out, "xref\n0 %d\n", len(offsets))
		out.WriteString("0000000000 65535 f\r\n")
		for _, off := range offsets[1:] {
			fmt.Fprintf(&out, "%010d 00000 n\r\n", off)
		}
		fmt.Fprintf(&out, "trailer\n<< /Size %d%s >>\n", len(offsets), trailer)
	} else {
		id := len(offsets)
		offsets = append(offsets, start)
		var rows bytes.Buffer
		rows.Write([]byte{0, 0, 0, 0, 0, 0xff})
		for _, off := range offsets[1:] {
			rows.WriteByte(1)
			var o [4]byte
			binary.BigEndian.PutUint32(o[:], uint32(off))
			rows.Write(o[:])
			rows.WriteByte(0)
		}
		fmt.Fprintf(&out, "%d 0 obj\n<< /Type /XRef /Size %d /W [1 4 1]%s /Length %d >>\nstream\n", id, len(offsets), trailer, rows.Len())
		out.Write(rows.Bytes())
		out.WriteString("\nendstream\nendobj\n")
	}
	fmt.Fprintf(&out, "startxref\n%d\n%%%%EOF\n", start)
	return out.Bytes()
}

func ref(id int) string {
	return fmt.Sprintf("%d 0 R", id)
}

func num(f float64) string {
	return strings.TrimSuffix(strings.TrimRight(fmt.Sprintf("%.2f", f), "0"), ".")
}
