// Package render draws signer-supplied values onto PDF pages.
//
// Each rendered field becomes one new content stream appended to its
// page's /Contents array in an incremental update. Signature and initials
// fields additionally receive a metadata caption at the bottom of their box.
package render

import (
	"bytes"
	"context"
	"fmt"

	"github.com/digitorus/pdf"
	"github.com/esignkit/signcore/fonts"
	"github.com/esignkit/signcore/internal/pdfio"
	"go.uber.org/zap"
)

// Renderer draws items onto documents. It holds no per-document state and
// is safe for concurrent use.
type Renderer struct {
	logger   *zap.Logger
	compress int
}

// Option configures a Renderer.
type Option func(*Renderer)

// WithLogger sets the logger used for skipped and unsupported fields.
func WithLogger(l *zap.Logger) Option {
	return func(r *Renderer) {
		if l != nil {
			r.logger = l.With(zap.String("component", "render"))
		}
	}
}

// WithCompression compresses new content streams at the given zlib level.
func WithCompression(level int) Option {
	return func(r *Renderer) { r.compress = level }
}

// NewRenderer returns a Renderer.
func NewRenderer(opts ...Option) *Renderer {
	r := &Renderer{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// pageWork collects the streams added to one page.
type pageWork struct {
	page    pdf.Value
	streams []uint32
}

// Render draws items onto document. Field-level problems never fail the
// call: they are drawn as error boxes or reported in Result.Skipped. An
// error is returned only for an unreadable document or a canceled context.
// When nothing is drawn the input is returned unchanged.
func (r *Renderer) Render(ctx context.Context, document []byte, items []Item, settings Settings) (*Result, error) {
	u, err := pdfio.Open(document)
	if err != nil {
		return nil, err
	}
	u.CompressLevel = r.compress

	numPages, err := u.NumPage()
	if err != nil {
		return nil, err
	}

	result := &Result{}
	pages := make(map[int]*pageWork)
	var order []int

	for _, it := range items {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if it.Field.Page < 1 || it.Field.Page > numPages {
			r.logger.Warn("skipping field on missing page",
				zap.String("field", it.Field.Name),
				zap.Int("page", it.Field.Page),
				zap.Int("pages", numPages))
			result.Skipped = append(result.Skipped, Skip{Field: it.Field.Name, Page: it.Field.Page, Reason: "page out of range"})
			continue
		}

		work, ok := pages[it.Field.Page]
		if !ok {
			page, err := u.Page(it.Field.Page)
			if err != nil {
				return nil, err
			}
			work = &pageWork{page: page}
			pages[it.Field.Page] = work
			order = append(order, it.Field.Page)
		}

		rect, mode := ToPDFRect(it.Field, pdfio.MediaBox(work.page))
		placement := Placement{Field: it.Field.Name, Page: it.Field.Page, Mode: mode, Rect: rect}

		l, err := r.layout(it, rect, settings)
		var elements []Element
		if err != nil {
			r.logger.Warn("field could not be drawn", zap.String("field", it.Field.Name), zap.Error(err))
			placement.Error = err.Error()
			elements = errorBox(rect, err)
		} else {
			placement.Caption = l.caption
			placement.TextHeight = l.textHeight
			elements = l.elements
			if l.visualErr != nil {
				r.logger.Warn("signature could not be drawn", zap.String("field", it.Field.Name), zap.Error(l.visualErr))
				placement.Error = l.visualErr.Error()
			}
		}

		if len(elements) == 0 {
			result.Skipped = append(result.Skipped, Skip{Field: it.Field.Name, Page: it.Field.Page, Reason: "empty value"})
			continue
		}

		id, err := u.AddStream("", writeContent(elements))
		if err != nil {
			return nil, fmt.Errorf("failed to add content stream: %w", err)
		}
		work.streams = append(work.streams, id)
		result.Placements = append(result.Placements, placement)
	}

	if len(order) > 0 && len(result.Placements) > 0 {
		fontRefs, err := addFonts(u)
		if err != nil {
			return nil, err
		}
		for _, n := range order {
			work := pages[n]
			if len(work.streams) == 0 {
				continue
			}
			if err := rewritePage(u, work, fontRefs); err != nil {
				return nil, fmt.Errorf("failed to update page %d: %w", n, err)
			}
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	result.PDF, err = u.Finish()
	if err != nil {
		return nil, err
	}
	return result, nil
}

func addFonts(u *pdfio.Update) (map[string]uint32, error) {
	refs := make(map[string]uint32)
	for _, f := range fonts.All() {
		id, err := u.AddObject([]byte(f.Dict()))
		if err != nil {
			return nil, fmt.Errorf("failed to add font %s: %w", f.BaseFont, err)
		}
		refs[f.Resource] = id
	}
	return refs, nil
}

// rewritePage appends a replacement page dictionary whose /Contents lists
// the original streams followed by the new ones and whose resources
// include the renderer's fonts.
func rewritePage(u *pdfio.Update, work *pageWork, fontRefs map[string]uint32) (err error) {
	defer pdfio.Recover(&err)

	page := work.page
	var body bytes.Buffer
	body.WriteString("<<")
	if err := pdfio.WriteDictEntries(&body, page, "Contents", "Resources"); err != nil {
		return err
	}

	body.WriteString(" /Resources ")
	if err := writeResources(&body, pdfio.Inherited(page, "Resources"), fontRefs); err != nil {
		return err
	}

	body.WriteString(" /Contents [")
	contents := page.Key("Contents")
	switch contents.Kind() {
	case pdf.Array:
		for i := 0; i < contents.Len(); i++ {
			if err := pdfio.WriteValue(&body, contents.Index(i), contents); err != nil {
				return err
			}
			body.WriteString(" ")
		}
	case pdf.Stream:
		body.WriteString(pdfio.RefOf(contents) + " ")
	}
	for i, id := range work.streams {
		if i > 0 {
			body.WriteString(" ")
		}
		body.WriteString(pdfio.Ref(id))
	}
	body.WriteString("] >>")

	id, gen := pdfio.ObjectID(page)
	return u.UpdateObject(id, gen, body.Bytes())
}

// writeResources writes a direct copy of res with the renderer's fonts
// merged into /Font.
func writeResources(w *bytes.Buffer, res pdf.Value, fontRefs map[string]uint32) error {
	w.WriteString("<<")
	if res.Kind() == pdf.Dict {
		if err := pdfio.WriteDictEntries(w, res, "Font"); err != nil {
			return err
		}
	}

	w.WriteString(" /Font <<")
	if existing := res.Key("Font"); existing.Kind() == pdf.Dict {
		var skip []string
		for name := range fontRefs {
			skip = append(skip, name)
		}
		if err := pdfio.WriteDictEntries(w, existing, skip...); err != nil {
			return err
		}
	}
	for _, f := range fonts.All() {
		fmt.Fprintf(w, " /%s %s", f.Resource, pdfio.Ref(fontRefs[f.Resource]))
	}
	w.WriteString(" >> >>")
	return nil
}
