package verify

import (
	"bytes"
	"crypto/x509"
	"encoding/asn1"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/digitorus/pdf"
	"github.com/digitorus/pkcs7"
	"github.com/digitorus/timestamp"
	"github.com/esignkit/signcore/internal/pdfio"
	"golang.org/x/crypto/cryptobyte"
	cryptobyte_asn1 "golang.org/x/crypto/cryptobyte/asn1"
)

var (
	oidTimeStampToken = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 9, 16, 2, 14}
	oidEmailAddress   = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 9, 1}
)

// verifySignature checks one signature value dictionary against the
// document bytes.
func verifySignature(f signatureField, document []byte, roots *x509.CertPool) (sig Signature) {
	v := f.value
	sig.FieldName = f.name
	sig.Info = SignatureInfo{
		Name:        v.Key("Name").Text(),
		Reason:      v.Key("Reason").Text(),
		Location:    v.Key("Location").Text(),
		ContactInfo: v.Key("ContactInfo").Text(),
	}
	if t, err := pdfio.ParseDate(v.Key("M").Text()); err == nil {
		sig.Info.Date = &t
	}

	content, err := readByteRange(v, document, &sig)
	if err != nil {
		sig.fail(ParseFailed, err)
		return sig
	}

	blob, err := cmsBlob([]byte(v.Key("Contents").RawString()))
	if err != nil {
		sig.fail(ParseFailed, err)
		return sig
	}
	p7, err := pkcs7.Parse(blob)
	if err != nil {
		sig.fail(ParseFailed, fmt.Errorf("failed to parse PKCS#7: %w", err))
		return sig
	}
	p7.Content = content

	leaf := p7.GetOnlySigner()
	if leaf == nil {
		sig.fail(ParseFailed, errors.New("signature does not name exactly one signer certificate"))
		return sig
	}
	describeSigner(&sig, leaf)

	var signingTime time.Time
	if err := p7.UnmarshalSignedAttribute(pkcs7.OIDAttributeSigningTime, &signingTime); err == nil {
		sig.SigningTime = &signingTime
	}
	sig.Timestamp = processTimestamp(p7)

	if err := p7.Verify(); err != nil {
		var mismatch *pkcs7.MessageDigestMismatchError
		if errors.As(err, &mismatch) {
			sig.fail(DigestMismatch, err)
		} else {
			sig.fail(InvalidSignature, err)
		}
		return sig
	}
	sig.IsValid = true

	at := time.Now()
	switch {
	case sig.Timestamp != nil && sig.Timestamp.HashMatches:
		at = sig.Timestamp.Time
	case sig.SigningTime != nil:
		at = *sig.SigningTime
	}

	intermediates := x509.NewCertPool()
	for _, c := range p7.Certificates {
		if c != leaf {
			intermediates.AddCert(c)
		}
	}
	chains, err := leaf.Verify(x509.VerifyOptions{
		Roots:         roots,
		Intermediates: intermediates,
		CurrentTime:   at,
		KeyUsages:     []x509.ExtKeyUsage{x509.ExtKeyUsageAny},
	})
	if err != nil {
		for _, c := range p7.Certificates {
			sig.Chain = append(sig.Chain, c.Subject.String())
		}
		sig.fail(UntrustedChain, err)
		return sig
	}

	chain := chains[0]
	for _, c := range chain {
		sig.Chain = append(sig.Chain, c.Subject.String())
	}
	sig.IsTrusted = true
	sig.TrustedAnchor = chain[len(chain)-1].Subject.CommonName
	return sig
}

// readByteRange validates the ByteRange pairs and concatenates the bytes
// they cover.
func readByteRange(v pdf.Value, document []byte, sig *Signature) ([]byte, error) {
	br := v.Key("ByteRange")
	if br.Kind() != pdf.Array || br.Len() == 0 || br.Len()%2 != 0 {
		return nil, fmt.Errorf("invalid ByteRange length: %d", br.Len())
	}

	size := int64(len(document))
	var content []byte
	var prevEnd int64
	for i := 0; i < br.Len(); i += 2 {
		offset := br.Index(i).Int64()
		length := br.Index(i + 1).Int64()
		sig.ByteRange = append(sig.ByteRange, offset, length)

		if offset < prevEnd || length < 0 || offset+length > size {
			return nil, fmt.Errorf("ByteRange [%d %d] is outside the document", offset, length)
		}
		content = append(content, document[offset:offset+length]...)
		prevEnd = offset + length
	}

	if err := checkContentsGap(v, document, sig.ByteRange); err != nil {
		return nil, err
	}

	sig.CoversWholeDocument = len(sig.ByteRange) == 4 &&
		sig.ByteRange[0] == 0 && prevEnd == size
	return content, nil
}

// checkContentsGap requires the bytes between the first two ranges to be
// exactly the hex string of /Contents.
func checkContentsGap(v pdf.Value, document []byte, br []int64) error {
	if len(br) < 4 {
		return errors.New("ByteRange leaves no room for /Contents")
	}
	start, end := br[0]+br[1], br[2]
	if end-start < 2 || document[start] != '<' || document[end-1] != '>' {
		return fmt.Errorf("ByteRange gap [%d %d) is not a hex string", start, end)
	}
	digits := bytes.Join(bytes.Fields(document[start+1:end-1]), nil)
	gap := make([]byte, hex.DecodedLen(len(digits)))
	if _, err := hex.Decode(gap, digits); err != nil {
		return fmt.Errorf("ByteRange gap is not a hex string: %w", err)
	}
	if !bytes.Equal(gap, []byte(v.Key("Contents").RawString())) {
		return errors.New("ByteRange gap is not the /Contents of this signature")
	}
	return nil
}

// cmsBlob returns the DER SignedData at the start of contents. Only zero
// padding may follow it.
func cmsBlob(contents []byte) ([]byte, error) {
	in := cryptobyte.String(contents)
	var blob cryptobyte.String
	if !in.ReadASN1Element(&blob, cryptobyte_asn1.SEQUENCE) {
		return nil, errors.New("/Contents does not start with a DER sequence")
	}
	for _, b := range in {
		if b != 0 {
			return nil, errors.New("unexpected data after the CMS structure in /Contents")
		}
	}
	return blob, nil
}

// processTimestamp reports the RFC 3161 token of the signer, if any. The
// token must be over the signature value.
func processTimestamp(p7 *pkcs7.PKCS7) *Timestamp {
	for _, s := range p7.Signers {
		for _, attr := range s.UnauthenticatedAttributes {
			if !attr.Type.Equal(oidTimeStampToken) {
				continue
			}
			ts, err := timestamp.Parse(attr.Value.Bytes)
			if err != nil {
				return nil
			}
			h := ts.HashAlgorithm.New()
			h.Write(s.EncryptedDigest)
			return &Timestamp{
				Time:          ts.Time,
				HashAlgorithm: ts.HashAlgorithm.String(),
				HashMatches:   bytes.Equal(h.Sum(nil), ts.HashedMessage),
			}
		}
	}
	return nil
}

func describeSigner(sig *Signature, leaf *x509.Certificate) {
	sig.SignerName = leaf.Subject.CommonName
	sig.Subject = leaf.Subject.String()
	sig.Issuer = leaf.Issuer.String()
	sig.IssuerCN = leaf.Issuer.CommonName
	sig.Serial = fmt.Sprintf("%X", leaf.SerialNumber)
	sig.NotBefore = leaf.NotBefore
	sig.NotAfter = leaf.NotAfter

	for _, n := range leaf.Subject.Names {
		if n.Type.Equal(oidEmailAddress) {
			if s, ok := n.Value.(string); ok {
				sig.Email = s
				return
			}
		}
	}
	if len(leaf.EmailAddresses) > 0 {
		sig.Email = leaf.EmailAddresses[0]
	}
}
