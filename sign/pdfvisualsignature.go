package sign

import (
	"bytes"
	"fmt"

	"github.com/digitorus/pdf"
	"github.com/esignkit/signcore/internal/pdfio"
)

// createVisualSignature writes the widget annotation that is also the
// signature field. Visible widgets get an empty appearance because the
// signature graphics already live in the page content.
func (sc *signContext) createVisualSignature(page pdf.Value, name string) (uint32, error) {
	r := sc.req.Rect
	var b bytes.Buffer
	b.WriteString("<< /Type /Annot /Subtype /Widget /FT /Sig")
	b.WriteString(" /T ")
	b.WriteString(pdfio.String(name))
	fmt.Fprintf(&b, " /Rect [%s %s %s %s]",
		pdfio.FormatNumber(r[0]), pdfio.FormatNumber(r[1]), pdfio.FormatNumber(r[2]), pdfio.FormatNumber(r[3]))
	b.WriteString(" /P ")
	b.WriteString(pdfio.RefOf(page))
	b.WriteString(" /F 4")
	b.WriteString(" /V ")
	b.WriteString(pdfio.Ref(sc.sigID))

	if w, h := r[2]-r[0], r[3]-r[1]; w > 0 && h > 0 {
		ap, err := sc.update.AddStream(
			fmt.Sprintf(" /Type /XObject /Subtype /Form /BBox [0 0 %s %s]", pdfio.FormatNumber(w), pdfio.FormatNumber(h)),
			nil)
		if err != nil {
			return 0, err
		}
		b.WriteString(" /AP << /N ")
		b.WriteString(pdfio.Ref(ap))
		b.WriteString(" >>")
	}
	b.WriteString(" >>")

	return sc.update.AddObject(b.Bytes())
}

// createIncPageUpdate appends the page with the widget added to /Annots.
func (sc *signContext) createIncPageUpdate(page pdf.Value) (err error) {
	defer pdfio.Recover(&err)

	var b bytes.Buffer
	b.WriteString("<<")
	if err := pdfio.WriteDictEntries(&b, page, "Annots"); err != nil {
		return err
	}

	b.WriteString(" /Annots [")
	annots := page.Key("Annots")
	for i := 0; i < annots.Len(); i++ {
		if err := pdfio.WriteValue(&b, annots.Index(i), annots); err != nil {
			return err
		}
		b.WriteString(" ")
	}
	b.WriteString(pdfio.Ref(sc.widgetID))
	b.WriteString("] >>")

	id, gen := pdfio.ObjectID(page)
	return sc.update.UpdateObject(id, gen, b.Bytes())
}
