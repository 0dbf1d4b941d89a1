// Package sign adds detached PKCS#7 approval signatures to PDF documents
// as incremental updates.
package sign

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/digitorus/pdf"
	"github.com/esignkit/signcore/ca"
	"github.com/esignkit/signcore/internal/pdfio"
	"go.uber.org/zap"
)

// SignFile signs the PDF at input and writes the result to output.
func (s *Signer) SignFile(ctx context.Context, input, output string, req Request) error {
	data, err := os.ReadFile(input)
	if err != nil {
		return err
	}
	signed, err := s.Sign(ctx, data, req)
	if err != nil {
		return err
	}
	return os.WriteFile(output, signed, 0o644)
}

// Sign returns document with one more signature. On error no bytes are
// returned and document is left untouched.
func (s *Signer) Sign(ctx context.Context, document []byte, req Request) ([]byte, error) {
	if s.Issuer == nil {
		return nil, ca.ErrSigningDisabled
	}
	logger := s.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("component", "sign"))

	size := s.PlaceholderSize
	if size <= 0 {
		size = DefaultPlaceholderSize
	}
	if req.SignedAt.IsZero() {
		req.SignedAt = time.Now()
	}

	u, err := pdfio.Open(document)
	if err != nil {
		return nil, err
	}
	u.CompressLevel = s.CompressLevel

	sc := &signContext{
		update:   u,
		req:      req,
		size:     size,
		signedAt: req.SignedAt,
	}

	name, err := sc.preparePDF()
	if err != nil {
		return nil, err
	}

	out, err := u.Finish()
	if err != nil {
		return nil, fmt.Errorf("failed to finish update: %w", err)
	}
	if err := sc.updateByteRange(out); err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	issued, err := s.Issuer.IssueSigningCert(ctx, req.Email, req.Name)
	if err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	der, err := createSignature(sc.signedContent(out), issued)
	if err != nil {
		return nil, err
	}
	if err := sc.replaceSignature(out, der); err != nil {
		var cmsErr *CmsError
		if errors.As(err, &cmsErr) {
			logger.Error("signature does not fit", zap.Int("placeholder", size), zap.Int("cms", len(der)))
		}
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	br := sc.byteRange(int64(len(out)))
	logger.Info("signed document",
		zap.String("field", name),
		zap.Int("page", sc.page()),
		zap.String("serial", issued.Certificate.SerialNumber.String()),
		zap.Int64s("byte_range", br[:]),
		zap.Int("cms_bytes", len(der)))
	return out, nil
}

func (sc *signContext) page() int {
	if sc.req.Page <= 0 {
		return 1
	}
	return sc.req.Page
}

// preparePDF writes the signature dictionary, the widget, the page and the
// catalog. Children are written before the objects referring to them.
func (sc *signContext) preparePDF() (name string, err error) {
	defer pdfio.Recover(&err)

	page, err := sc.update.Page(sc.page())
	if err != nil {
		return "", err
	}
	root := sc.update.Reader.Trailer().Key("Root")
	if root.Kind() != pdf.Dict {
		return "", &pdfio.StructureError{Msg: "document has no catalog"}
	}

	name = sc.req.FieldName
	if name == "" {
		name = fieldName(existingFields(root))
	}

	body, byteRangeAt, contentsAt := sc.createSignaturePlaceholder()
	if sc.sigID, err = sc.update.AddObject(body); err != nil {
		return "", err
	}
	offset, _ := sc.update.BodyOffset(sc.sigID)
	sc.byteRangeStart = offset + int64(byteRangeAt)
	sc.contentsStart = offset + int64(contentsAt)
	sc.contentsEnd = sc.contentsStart + int64(2*sc.size+2)

	if sc.widgetID, err = sc.createVisualSignature(page, name); err != nil {
		return "", fmt.Errorf("failed to add signature field: %w", err)
	}
	if err := sc.createIncPageUpdate(page); err != nil {
		return "", fmt.Errorf("failed to update page: %w", err)
	}
	if err := sc.updateCatalog(root); err != nil {
		return "", fmt.Errorf("failed to update catalog: %w", err)
	}
	return name, nil
}
