package sign

import (
	"bytes"
	"strconv"

	"github.com/digitorus/pdf"
	"github.com/esignkit/signcore/internal/pdfio"
)

// existingFields returns the top-level AcroForm fields of the document.
func existingFields(root pdf.Value) pdf.Value {
	return root.Key("AcroForm").Key("Fields")
}

// fieldName picks the first unused "SignatureN" name.
func fieldName(fields pdf.Value) string {
	taken := map[string]bool{}
	for i := 0; i < fields.Len(); i++ {
		taken[fields.Index(i).Key("T").Text()] = true
	}
	for n := 1; ; n++ {
		name := "Signature" + strconv.Itoa(n)
		if !taken[name] {
			return name
		}
	}
}

// updateCatalog appends a catalog whose AcroForm lists the existing fields
// followed by the new signature field.
func (sc *signContext) updateCatalog(root pdf.Value) (err error) {
	defer pdfio.Recover(&err)

	var b bytes.Buffer
	b.WriteString("<<")
	if err := pdfio.WriteDictEntries(&b, root, "AcroForm"); err != nil {
		return err
	}

	b.WriteString(" /AcroForm <<")
	acroForm := root.Key("AcroForm")
	if acroForm.Kind() == pdf.Dict {
		if err := pdfio.WriteDictEntries(&b, acroForm, "Fields", "SigFlags", "NeedAppearances"); err != nil {
			return err
		}
	}

	b.WriteString(" /Fields [")
	fields := existingFields(root)
	for i := 0; i < fields.Len(); i++ {
		if err := pdfio.WriteValue(&b, fields.Index(i), fields); err != nil {
			return err
		}
		b.WriteString(" ")
	}
	b.WriteString(pdfio.Ref(sc.widgetID))
	b.WriteString("]")

	// SignaturesExist | AppendOnly
	b.WriteString(" /SigFlags 3")
	b.WriteString(" >> >>")

	id, gen := pdfio.ObjectID(root)
	return sc.update.UpdateObject(id, gen, b.Bytes())
}
