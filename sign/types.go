package sign

import (
	"context"
	"fmt"
	"time"

	"github.com/esignkit/signcore/ca"
	"github.com/esignkit/signcore/internal/pdfio"
	"go.uber.org/zap"
)

// DefaultPlaceholderSize is the number of bytes reserved for the CMS blob.
// The /Contents hex string is twice as long.
const DefaultPlaceholderSize = 16384

// CertIssuer mints the certificate a single signature is made with.
type CertIssuer interface {
	IssueSigningCert(ctx context.Context, email, commonName string) (*ca.Issued, error)
}

// Signer adds approval signatures to PDF documents.
type Signer struct {
	Issuer CertIssuer

	// PlaceholderSize is the reserved CMS size in bytes. Zero means
	// DefaultPlaceholderSize.
	PlaceholderSize int

	// CompressLevel is the zlib level for written streams.
	CompressLevel int

	Logger *zap.Logger
}

// Request describes one signature.
type Request struct {
	// Page is 1-based. Zero selects the first page.
	Page int

	// Rect is the widget rectangle in PDF user space
	// (lower-left x, lower-left y, upper-right x, upper-right y). A zero
	// rectangle makes the signature invisible.
	Rect [4]float64

	// FieldName is the /T of the new signature field. Empty picks an
	// unused "SignatureN" name.
	FieldName string

	Name        string
	Email       string
	Reason      string
	Location    string
	ContactInfo string
	SignedAt    time.Time
}

// PdfStructureError reports an unreadable input or a placeholder that went
// missing during patching.
type PdfStructureError = pdfio.StructureError

// CmsErrorKind classifies CMS failures.
type CmsErrorKind int

const (
	Generation CmsErrorKind = iota + 1
	Encoding
	PlaceholderTooSmall
)

func (k CmsErrorKind) String() string {
	switch k {
	case Generation:
		return "Generation"
	case Encoding:
		return "Encoding"
	case PlaceholderTooSmall:
		return "PlaceholderTooSmall"
	}
	return fmt.Sprintf("CmsErrorKind(%d)", int(k))
}

// CmsError reports a failure to produce or embed the signature blob.
type CmsError struct {
	Kind CmsErrorKind
	Msg  string
	Err  error
}

func (e *CmsError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("cms %s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("cms %s: %s", e.Kind, e.Msg)
}

func (e *CmsError) Unwrap() error {
	return e.Err
}

// signContext carries the state of one signing run.
type signContext struct {
	update   *pdfio.Update
	req      Request
	size     int
	signedAt time.Time

	sigID    uint32
	widgetID uint32

	// Offsets into the finished document.
	byteRangeStart int64
	contentsStart  int64
	contentsEnd    int64
}
