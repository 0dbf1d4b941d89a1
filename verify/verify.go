// Package verify checks the PKCS#7 signatures of a PDF document against a
// set of trust anchors.
package verify

import (
	"bytes"
	"context"
	"crypto/x509"
	"os"
	"strings"

	"github.com/digitorus/pdf"
	"github.com/esignkit/signcore/internal/pdfio"
)

// maxFieldDepth bounds the walk through nested /Kids.
const maxFieldDepth = 32

// signatureField is a terminal /FT /Sig field with a value dictionary.
type signatureField struct {
	name  string
	value pdf.Value
}

// VerifyFile reads the file at path and verifies it.
func VerifyFile(ctx context.Context, path string, anchors []*x509.Certificate) (*Response, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Verify(ctx, data, anchors)
}

// Verify checks every signature field of document. Only an unreadable
// document, a document without signatures or a canceled context return an
// error; per-signature outcomes are reported in the Response.
func Verify(ctx context.Context, document []byte, anchors []*x509.Certificate) (resp *Response, err error) {
	defer func() {
		if err != nil {
			resp = nil
		}
	}()
	defer pdfio.Recover(&err)

	rdr, err := pdf.NewReader(bytes.NewReader(document), int64(len(document)))
	if err != nil {
		return nil, &pdfio.StructureError{Msg: "failed to open document", Err: err}
	}

	resp = &Response{}
	if info := rdr.Trailer().Key("Info"); info.Kind() == pdf.Dict {
		parseDocumentInfo(info, &resp.DocumentInfo)
	}
	resp.DocumentInfo.Pages = rdr.NumPage()

	var fields []signatureField
	seen := map[[2]uint32]bool{}
	collectFields(rdr.Trailer().Key("Root").Key("AcroForm").Key("Fields"), "", "", 0, seen, &fields)
	if len(fields) == 0 {
		return nil, ErrNoSignatures
	}

	roots := x509.NewCertPool()
	for _, c := range anchors {
		roots.AddCert(c)
	}

	for _, f := range fields {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		resp.Signatures = append(resp.Signatures, verifySignature(f, document, roots))
	}
	return resp, nil
}

// collectFields walks the field tree depth first. Field type is inherited
// from ancestors, names are joined with dots.
func collectFields(fields pdf.Value, parent, ft string, depth int, seen map[[2]uint32]bool, out *[]signatureField) {
	if depth > maxFieldDepth {
		return
	}
	for i := 0; i < fields.Len(); i++ {
		f := fields.Index(i)
		if f.Kind() != pdf.Dict {
			continue
		}
		if id, gen := pdfio.ObjectID(f); id != 0 {
			key := [2]uint32{id, uint32(gen)}
			if seen[key] {
				continue
			}
			seen[key] = true
		}

		name := parent
		if t := f.Key("T").Text(); t != "" {
			name = strings.TrimPrefix(parent+"."+t, ".")
		}
		fieldType := ft
		if n := f.Key("FT").Name(); n != "" {
			fieldType = n
		}

		if fieldType == "Sig" && f.Key("V").Kind() == pdf.Dict {
			*out = append(*out, signatureField{name: name, value: f.Key("V")})
			continue
		}
		if kids := f.Key("Kids"); kids.Kind() == pdf.Array {
			collectFields(kids, name, fieldType, depth+1, seen, out)
		}
	}
}
