package verify

import (
	"crypto"
	"crypto/sha256"
	"encoding/asn1"
	"testing"
	"time"

	"github.com/digitorus/pkcs7"
	"github.com/digitorus/timestamp"
	"github.com/esignkit/signcore/internal/testpki"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProcessTimestamp(t *testing.T) {
	pki := testpki.NewTestPKI(t)
	signer := pki.IssueLeaf("jane@example.com", "Jane Doe")
	tsa := pki.IssueLeaf("tsa@example.com", "Test TSA")

	sd, err := pkcs7.NewSignedData([]byte("signed content"))
	require.NoError(t, err)
	sd.SetDigestAlgorithm(pkcs7.OIDDigestAlgorithmSHA256)
	require.NoError(t, sd.AddSigner(signer.Certificate, signer.PrivateKey, pkcs7.SignerInfoConfig{}))
	der, err := sd.Finish()
	require.NoError(t, err)

	p7, err := pkcs7.Parse(der)
	require.NoError(t, err)
	require.Len(t, p7.Signers, 1)
	require.NotEmpty(t, p7.Signers[0].AuthenticatedAttributes)

	stampedAt := time.Date(2024, 5, 1, 12, 30, 0, 0, time.UTC)
	token := func(t *testing.T, hashed []byte) []byte {
		resp, err := (&timestamp.Timestamp{
			HashAlgorithm:     crypto.SHA256,
			HashedMessage:     hashed,
			Time:              stampedAt,
			Policy:            asn1.ObjectIdentifier{1, 3, 6, 1, 4, 1, 99999, 1},
			AddTSACertificate: true,
		}).CreateResponseWithOpts(tsa.Certificate, tsa.PrivateKey, crypto.SHA256)
		require.NoError(t, err)
		ts, err := timestamp.ParseResponse(resp)
		require.NoError(t, err)
		return ts.RawToken
	}

	// withToken returns a copy of p7 whose signer carries tok as an
	// unsigned timestamp attribute.
	withToken := func(tok []byte) *pkcs7.PKCS7 {
		cp := *p7
		s := p7.Signers[0]
		attr := s.AuthenticatedAttributes[0]
		attr.Type = oidTimeStampToken
		attr.Value = asn1.RawValue{Class: asn1.ClassUniversal, Tag: asn1.TagSet, IsCompound: true, Bytes: tok}
		s.UnauthenticatedAttributes = append(s.UnauthenticatedAttributes[:0:0], attr)
		cp.Signers = append(p7.Signers[:0:0], s)
		return &cp
	}

	digest := sha256.Sum256(p7.Signers[0].EncryptedDigest)

	t.Run("matching token", func(t *testing.T) {
		ts := processTimestamp(withToken(token(t, digest[:])))
		require.NotNil(t, ts)
		assert.True(t, ts.Time.Equal(stampedAt))
		assert.Equal(t, "SHA-256", ts.HashAlgorithm)
		assert.True(t, ts.HashMatches)
	})

	t.Run("token over other data", func(t *testing.T) {
		other := sha256.Sum256([]byte("something else"))
		ts := processTimestamp(withToken(token(t, other[:])))
		require.NotNil(t, ts)
		assert.False(t, ts.HashMatches)
	})

	t.Run("garbage token", func(t *testing.T) {
		assert.Nil(t, processTimestamp(withToken([]byte{0x30, 0x03, 0x02, 0x01, 0x01})))
	})

	t.Run("no token", func(t *testing.T) {
		assert.Nil(t, processTimestamp(p7))
	})
}
