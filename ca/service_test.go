package ca

import (
	"bytes"
	"context"
	"crypto/x509"
	"encoding/asn1"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/esignkit/signcore/ca/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

const testPassphrase = "correct horse battery staple"

func newService(t *testing.T, repo store.Repository, opts ...Option) *Service {
	t.Helper()
	opts = append([]Option{WithPassphrase(testPassphrase), WithOrganization("Acme")}, opts...)
	s := NewService(repo, opts...)
	require.NoError(t, s.Initialize(context.Background()))
	return s
}

func extension(cert *x509.Certificate, id asn1.ObjectIdentifier) (bool, bool) {
	for _, ext := range cert.Extensions {
		if ext.Id.Equal(id) {
			return true, ext.Critical
		}
	}
	return false, false
}

var (
	oidKeyUsage         = asn1.ObjectIdentifier{2, 5, 29, 15}
	oidBasicConstraints = asn1.ObjectIdentifier{2, 5, 29, 19}
)

func TestInitializeBootstrap(t *testing.T) {
	repo := store.NewMemory()
	s := newService(t, repo)

	snap := s.Snapshot()
	require.NotNil(t, snap)

	root := snap.Root
	assert.Equal(t, "Acme Root CA", root.Subject.CommonName)
	assert.Equal(t, []string{"Acme"}, root.Subject.Organization)
	assert.True(t, root.IsCA)
	assert.Equal(t, x509.KeyUsageCertSign|x509.KeyUsageCRLSign, root.KeyUsage)
	assert.Equal(t, subjectKeyID(&snap.RootKey.PublicKey), root.SubjectKeyId)
	assert.InDelta(t, 10*365, root.NotAfter.Sub(root.NotBefore).Hours()/24, 1)
	_, critical := extension(root, oidBasicConstraints)
	assert.True(t, critical)

	inter := snap.Intermediate
	assert.Equal(t, "Acme Intermediate CA", inter.Subject.CommonName)
	assert.Equal(t, root.Subject.String(), inter.Issuer.String())
	assert.Equal(t, root.SubjectKeyId, inter.AuthorityKeyId)
	assert.Equal(t, 0, inter.MaxPathLen)
	assert.True(t, inter.MaxPathLenZero)
	assert.InDelta(t, 5*365, inter.NotAfter.Sub(inter.NotBefore).Hours()/24, 1)
	require.NoError(t, inter.CheckSignatureFrom(root))

	rootRec, err := repo.FindByRole(context.Background(), store.RoleRoot)
	require.NoError(t, err)
	assert.True(t, rootRec.IsDefault)
	assert.True(t, bytes.HasPrefix(rootRec.PrivateKey, []byte("v1$")))

	interRec, err := repo.FindByRole(context.Background(), store.RoleIntermediate)
	require.NoError(t, err)
	assert.Equal(t, rootRec.SubjectDN, interRec.IssuerDN)
	assert.Less(t, rootRec.ID, interRec.ID, "root is stored first")
}

func TestInitializeIdempotent(t *testing.T) {
	ctx := context.Background()
	repo := store.NewMemory()

	first := newService(t, repo)
	rootRaw := first.Snapshot().Root.Raw
	interRaw := first.Snapshot().Intermediate.Raw

	t.Run("same service", func(t *testing.T) {
		require.NoError(t, first.Initialize(ctx))
		assert.Equal(t, rootRaw, first.Snapshot().Root.Raw)
	})

	t.Run("new service on same repository", func(t *testing.T) {
		second := newService(t, repo)
		assert.Equal(t, rootRaw, second.Snapshot().Root.Raw)
		assert.Equal(t, interRaw, second.Snapshot().Intermediate.Raw)
		assert.True(t, first.Snapshot().RootKey.Equal(second.Snapshot().RootKey))
	})

	for _, role := range []store.Role{store.RoleRoot, store.RoleIntermediate} {
		recs, err := repo.ListByRole(ctx, role)
		require.NoError(t, err)
		assert.Len(t, recs, 1, role)
	}
}

func TestInitializeRecreatesMissingIntermediate(t *testing.T) {
	ctx := context.Background()
	repo := store.NewMemory()
	first := newService(t, repo)

	require.NoError(t, repo.UpdateStatus(ctx, first.Snapshot().IntermediateRecord.ID, store.StatusRevoked))

	second := newService(t, repo)
	assert.Equal(t, first.Snapshot().Root.Raw, second.Snapshot().Root.Raw)
	assert.NotEqual(t, first.Snapshot().Intermediate.Raw, second.Snapshot().Intermediate.Raw)
	require.NoError(t, second.Snapshot().Intermediate.CheckSignatureFrom(second.Snapshot().Root))
}

func TestInitializeWrongPassphrase(t *testing.T) {
	repo := store.NewMemory()
	newService(t, repo)

	s := NewService(repo, WithPassphrase("wrong"))
	err := s.Initialize(context.Background())
	assert.ErrorIs(t, err, ErrCANotInitialized)
	assert.Nil(t, s.Snapshot())
}

type failingRepo struct {
	store.Repository
	findErr   error
	upsertErr error
}

func (f *failingRepo) FindByRole(ctx context.Context, role store.Role) (*store.Record, error) {
	if f.findErr != nil {
		return nil, f.findErr
	}
	return f.Repository.FindByRole(ctx, role)
}

func (f *failingRepo) UpsertByNameAndRole(ctx context.Context, rec *store.Record) (*store.Record, error) {
	if f.upsertErr != nil {
		return nil, f.upsertErr
	}
	return f.Repository.UpsertByNameAndRole(ctx, rec)
}

func TestInitializeRepositoryErrors(t *testing.T) {
	boom := errors.New("database is locked")

	tests := []struct {
		name string
		repo *failingRepo
	}{
		{"lookup", &failingRepo{Repository: store.NewMemory(), findErr: boom}},
		{"persist", &failingRepo{Repository: store.NewMemory(), upsertErr: boom}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewService(tt.repo, WithPassphrase(testPassphrase))
			err := s.Initialize(context.Background())
			assert.ErrorIs(t, err, ErrCANotInitialized)
			assert.ErrorIs(t, err, boom)
			assert.Nil(t, s.Snapshot())
		})
	}
}

func TestInitializeCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s := NewService(store.NewMemory())
	assert.ErrorIs(t, s.Initialize(ctx), context.Canceled)
}

func TestIssueSigningCert(t *testing.T) {
	ctx := context.Background()
	repo := store.NewMemory()
	s := newService(t, repo)

	issued, err := s.IssueSigningCert(ctx, "alice@example.com", "Alice")
	require.NoError(t, err)
	cert := issued.Certificate

	t.Run("subject", func(t *testing.T) {
		require.Len(t, cert.Subject.Names, 2)
		assert.True(t, cert.Subject.Names[0].Type.Equal(oidEmailAddress))
		assert.Equal(t, "alice@example.com", cert.Subject.Names[0].Value)
		assert.Equal(t, "Alice", cert.Subject.CommonName)
		assert.Equal(t, []string{"alice@example.com"}, cert.EmailAddresses)
		assert.Equal(t, s.Snapshot().Intermediate.Subject.String(), cert.Issuer.String())
	})

	t.Run("extensions", func(t *testing.T) {
		assert.False(t, cert.IsCA)
		assert.True(t, cert.BasicConstraintsValid)
		assert.Equal(t, x509.KeyUsageDigitalSignature|x509.KeyUsageContentCommitment, cert.KeyUsage)
		_, critical := extension(cert, oidKeyUsage)
		assert.True(t, critical)
		_, critical = extension(cert, oidBasicConstraints)
		assert.True(t, critical)
		assert.Equal(t, x509.SHA256WithRSA, cert.SignatureAlgorithm)
	})

	t.Run("serial and validity", func(t *testing.T) {
		assert.Positive(t, cert.SerialNumber.Sign())
		assert.LessOrEqual(t, cert.SerialNumber.BitLen(), 32)
		assert.True(t, cert.NotBefore.Before(time.Now()))
		assert.InDelta(t, 365, cert.NotAfter.Sub(cert.NotBefore).Hours()/24, 1)
	})

	t.Run("chain verifies", func(t *testing.T) {
		require.Len(t, issued.Chain, 2)
		roots := x509.NewCertPool()
		roots.AddCert(issued.Chain[1])
		inter := x509.NewCertPool()
		inter.AddCert(issued.Chain[0])
		_, err := cert.Verify(x509.VerifyOptions{
			Roots:         roots,
			Intermediates: inter,
			KeyUsages:     []x509.ExtKeyUsage{x509.ExtKeyUsageAny},
		})
		require.NoError(t, err)
		assert.True(t, issued.PrivateKey.PublicKey.Equal(cert.PublicKey))
	})

	t.Run("audit row without key", func(t *testing.T) {
		recs, err := repo.ListByRole(ctx, store.RoleSigning)
		require.NoError(t, err)
		require.Len(t, recs, 1)
		assert.Empty(t, recs[0].PrivateKey)
		assert.Equal(t, cert.SerialNumber.String(), recs[0].Serial)
		assert.True(t, strings.HasPrefix(recs[0].Name, "Alice #"))
	})

	t.Run("distinct keys per call", func(t *testing.T) {
		other, err := s.IssueSigningCert(ctx, "alice@example.com", "Alice")
		require.NoError(t, err)
		assert.False(t, issued.PrivateKey.Equal(other.PrivateKey))
	})
}

func TestIssueSigningCertErrors(t *testing.T) {
	ctx := context.Background()

	t.Run("not initialized", func(t *testing.T) {
		s := NewService(store.NewMemory())
		_, err := s.IssueSigningCert(ctx, "a@example.com", "A")
		assert.ErrorIs(t, err, ErrCANotInitialized)
	})

	s := newService(t, store.NewMemory())

	t.Run("invalid email", func(t *testing.T) {
		_, err := s.IssueSigningCert(ctx, "not-an-email", "A")
		var ie *CertIssuanceError
		require.ErrorAs(t, err, &ie)
		assert.Contains(t, ie.Error(), "not-an-email")
	})

	t.Run("no identity", func(t *testing.T) {
		_, err := s.IssueSigningCert(ctx, "", "")
		var ie *CertIssuanceError
		assert.ErrorAs(t, err, &ie)
	})

	t.Run("email only", func(t *testing.T) {
		issued, err := s.IssueSigningCert(ctx, "bob@example.com", "")
		require.NoError(t, err)
		assert.Equal(t, "bob@example.com", issued.Certificate.Subject.CommonName)
	})

	t.Run("canceled", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		_, err := s.IssueSigningCert(cctx, "a@example.com", "A")
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestIssueAuditFailureIsLogged(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	repo := &failingRepo{Repository: store.NewMemory()}
	s := newService(t, repo, WithLogger(zap.New(core)))

	repo.upsertErr = errors.New("disk full")
	issued, err := s.IssueSigningCert(context.Background(), "a@example.com", "A")
	require.NoError(t, err)
	assert.NotNil(t, issued.Certificate)
	assert.Equal(t, 1, logs.FilterMessage("failed to record issued certificate").Len())
}

func TestTrustAnchors(t *testing.T) {
	ctx := context.Background()
	repo := store.NewMemory()
	s := newService(t, repo)

	other := newService(t, store.NewMemory(), WithOrganization("Partner"))
	rec, err := s.AddTrustedCertificate(ctx, "", EncodePEM(other.Snapshot().Root))
	require.NoError(t, err)
	assert.Equal(t, "Partner Root CA", rec.Name)
	assert.Equal(t, store.RoleTrustedExternal, rec.Role)

	anchors, err := s.TrustAnchors(ctx)
	require.NoError(t, err)
	require.Len(t, anchors, 2)
	assert.Equal(t, s.Snapshot().Root.Raw, anchors[0].Raw)
	assert.Equal(t, other.Snapshot().Root.Raw, anchors[1].Raw)

	t.Run("revoked external is dropped", func(t *testing.T) {
		require.NoError(t, s.Revoke(ctx, rec.ID))
		anchors, err := s.TrustAnchors(ctx)
		require.NoError(t, err)
		assert.Len(t, anchors, 1)
	})

	t.Run("expired external is marked", func(t *testing.T) {
		_, err := s.AddTrustedCertificate(ctx, "partner-der", other.Snapshot().Root.Raw)
		require.NoError(t, err)

		later := NewService(repo, WithPassphrase(testPassphrase),
			WithClock(func() time.Time { return time.Now().Add(11 * 365 * 24 * time.Hour) }))
		anchors, err := later.TrustAnchors(ctx)
		require.NoError(t, err)
		assert.Empty(t, anchors)

		recs, err := repo.ListByRole(ctx, store.RoleTrustedExternal)
		require.NoError(t, err)
		for _, r := range recs {
			if r.Name == "partner-der" {
				assert.Equal(t, store.StatusExpired, r.Status)
			}
		}
	})

	t.Run("revoke missing", func(t *testing.T) {
		assert.ErrorIs(t, s.Revoke(ctx, 4242), store.ErrNotFound)
	})
}

func TestAddTrustedCertificateRejectsGarbage(t *testing.T) {
	s := NewService(store.NewMemory())
	_, err := s.AddTrustedCertificate(context.Background(), "junk", []byte("not a certificate"))
	assert.Error(t, err)
}

func TestSealKey(t *testing.T) {
	s := newService(t, store.NewMemory())
	key := s.Snapshot().IntermediateKey

	sealed, err := sealKey("pw", key)
	require.NoError(t, err)
	parts := strings.Split(string(sealed), "$")
	require.Len(t, parts, 4)
	assert.Equal(t, "v1", parts[0])

	opened, err := openKey("pw", sealed)
	require.NoError(t, err)
	assert.True(t, key.Equal(opened))

	_, err = openKey("other", sealed)
	assert.Error(t, err)

	for _, bad := range []string{"", "v2$a$b$c", "v1$!!$b$c", "v1$YQ$YQ$YQ"} {
		_, err := openKey("pw", []byte(bad))
		assert.Error(t, err, bad)
	}
}

func TestParseCertificates(t *testing.T) {
	s := newService(t, store.NewMemory())
	snap := s.Snapshot()

	bundle := append(EncodePEM(snap.Intermediate), EncodePEM(snap.Root)...)
	certs, err := ParseCertificates(bundle)
	require.NoError(t, err)
	require.Len(t, certs, 2)
	assert.Equal(t, snap.Root.Raw, certs[1].Raw)

	certs, err = ParseCertificates(snap.Root.Raw)
	require.NoError(t, err)
	assert.Len(t, certs, 1)
}
