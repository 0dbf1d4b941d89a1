package sign

import (
	"bytes"
	"crypto/sha256"
	"encoding/asn1"
	"strings"

	"github.com/digitorus/pkcs7"
	"github.com/esignkit/signcore/ca"
	"github.com/esignkit/signcore/internal/pdfio"
	"golang.org/x/crypto/cryptobyte"
	cryptobyte_asn1 "golang.org/x/crypto/cryptobyte/asn1"
)

const byteRangePlaceholder = "[0 0000000000 0000000000 0000000000]"

var oidSigningCertificateV2 = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 9, 16, 2, 47}

// createSignaturePlaceholder builds the signature value dictionary and
// returns the offsets of the ByteRange array and of the /Contents hex
// string inside it.
func (sc *signContext) createSignaturePlaceholder() (body []byte, byteRangeAt, contentsAt int) {
	var b bytes.Buffer
	b.WriteString("<< /Type /Sig")
	b.WriteString(" /Filter /Adobe.PPKLite")
	b.WriteString(" /SubFilter /adbe.pkcs7.detached")

	b.WriteString(" /ByteRange ")
	byteRangeAt = b.Len()
	b.WriteString(byteRangePlaceholder)

	b.WriteString(" /Contents ")
	contentsAt = b.Len()
	b.WriteString("<")
	b.WriteString(strings.Repeat("0", 2*sc.size))
	b.WriteString(">")

	b.WriteString(" /M ")
	b.WriteString(pdfio.DateTime(sc.signedAt))

	info := sc.req
	if info.Name != "" {
		b.WriteString(" /Name ")
		b.WriteString(pdfio.String(info.Name))
	}
	if info.Reason != "" {
		b.WriteString(" /Reason ")
		b.WriteString(pdfio.String(info.Reason))
	}
	if info.Location != "" {
		b.WriteString(" /Location ")
		b.WriteString(pdfio.String(info.Location))
	}
	if info.ContactInfo != "" {
		b.WriteString(" /ContactInfo ")
		b.WriteString(pdfio.String(info.ContactInfo))
	}
	b.WriteString(" >>")

	return b.Bytes(), byteRangeAt, contentsAt
}

// createSigningCertificateAttribute builds the ESS signingCertificateV2
// attribute. SHA-256 is the default hash so the AlgorithmIdentifier is
// omitted.
func createSigningCertificateAttribute(issued *ca.Issued) (*pkcs7.Attribute, error) {
	hash := sha256.Sum256(issued.Certificate.Raw)

	var b cryptobyte.Builder
	b.AddASN1(cryptobyte_asn1.SEQUENCE, func(b *cryptobyte.Builder) { // SigningCertificateV2
		b.AddASN1(cryptobyte_asn1.SEQUENCE, func(b *cryptobyte.Builder) { // SEQUENCE OF ESSCertIDv2
			b.AddASN1(cryptobyte_asn1.SEQUENCE, func(b *cryptobyte.Builder) { // ESSCertIDv2
				b.AddASN1OctetString(hash[:])
			})
		})
	})

	sse, err := b.Bytes()
	if err != nil {
		return nil, err
	}
	return &pkcs7.Attribute{
		Type:  oidSigningCertificateV2,
		Value: asn1.RawValue{FullBytes: sse},
	}, nil
}

// createSignature returns the detached CMS SignedData over content.
func createSignature(content []byte, issued *ca.Issued) ([]byte, error) {
	signedData, err := pkcs7.NewSignedData(content)
	if err != nil {
		return nil, &CmsError{Kind: Generation, Msg: "new signed data", Err: err}
	}
	signedData.SetDigestAlgorithm(pkcs7.OIDDigestAlgorithmSHA256)

	signingCertificate, err := createSigningCertificateAttribute(issued)
	if err != nil {
		return nil, &CmsError{Kind: Encoding, Msg: "signing certificate attribute", Err: err}
	}

	config := pkcs7.SignerInfoConfig{
		ExtraSignedAttributes: []pkcs7.Attribute{*signingCertificate},
	}
	if err := signedData.AddSignerChain(issued.Certificate, issued.PrivateKey, issued.Chain, config); err != nil {
		return nil, &CmsError{Kind: Generation, Msg: "add signer chain", Err: err}
	}

	// PDF needs a detached signature, meaning the content isn't included.
	signedData.Detach()

	der, err := signedData.Finish()
	if err != nil {
		return nil, &CmsError{Kind: Encoding, Msg: "finish signed data", Err: err}
	}
	return der, nil
}
