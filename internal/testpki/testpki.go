// Package testpki builds throwaway certificate authorities for tests.
package testpki

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"errors"
	"log"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/esignkit/signcore/ca"
	"github.com/esignkit/signcore/ca/store"
)

// TestPKI is a CA service on an in-memory repository.
type TestPKI struct {
	T    testing.TB
	CA   *ca.Service
	Repo *store.Memory
}

// NewTestPKI creates and initializes a CA for the "Test" organization.
func NewTestPKI(t testing.TB) *TestPKI {
	return NewTestPKIWithOrganization(t, "Test")
}

// NewTestPKIWithOrganization creates and initializes a CA with the given
// organization name.
func NewTestPKIWithOrganization(t testing.TB, org string) *TestPKI {
	repo := store.NewMemory()
	svc := ca.NewService(repo, ca.WithOrganization(org), ca.WithPassphrase("testpki"))
	if err := svc.Initialize(context.Background()); err != nil {
		Fail(t, "failed to initialize CA: %v", err)
	}
	return &TestPKI{T: t, CA: svc, Repo: repo}
}

// Root returns the root certificate.
func (p *TestPKI) Root() *x509.Certificate {
	return p.CA.Snapshot().Root
}

// Anchors returns the CA's trust anchors.
func (p *TestPKI) Anchors() []*x509.Certificate {
	anchors, err := p.CA.TrustAnchors(context.Background())
	if err != nil {
		Fail(p.T, "failed to load trust anchors: %v", err)
	}
	return anchors
}

// IssueLeaf mints a signing certificate.
func (p *TestPKI) IssueLeaf(email, commonName string) *ca.Issued {
	issued, err := p.CA.IssueSigningCert(context.Background(), email, commonName)
	if err != nil {
		Fail(p.T, "failed to issue leaf: %v", err)
	}
	return issued
}

// StaticIssuer hands out the same identity on every call and counts the
// calls.
type StaticIssuer struct {
	Issued *ca.Issued

	mu    sync.Mutex
	calls int
}

func (s *StaticIssuer) IssueSigningCert(ctx context.Context, email, commonName string) (*ca.Issued, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return s.Issued, nil
}

// Calls reports how often IssueSigningCert ran.
func (s *StaticIssuer) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// FailingIssuer always returns Err.
type FailingIssuer struct {
	Err error
}

func (f FailingIssuer) IssueSigningCert(ctx context.Context, email, commonName string) (*ca.Issued, error) {
	if f.Err == nil {
		return nil, errors.New("issuer unavailable")
	}
	return nil, f.Err
}

// SelfSigned returns an identity whose certificate signs itself and has no
// chain.
func SelfSigned(t testing.TB, commonName string) *ca.Issued {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		Fail(t, "failed to generate key: %v", err)
	}
	serial, _ := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 64))
	template := &x509.Certificate{
		SerialNumber:          serial,
		Subject:               pkix.Name{CommonName: commonName},
		NotBefore:             time.Now().Add(-1 * time.Hour),
		NotAfter:              time.Now().Add(24 * time.Hour),
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
		BasicConstraintsValid: true,
		IsCA:                  true,
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	if err != nil {
		Fail(t, "failed to create certificate: %v", err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		Fail(t, "failed to parse certificate: %v", err)
	}
	return &ca.Issued{Certificate: cert, PrivateKey: key}
}

func Fail(t testing.TB, format string, args ...interface{}) {
	if t != nil {
		t.Helper()
		t.Fatalf(format, args...)
	} else {
		log.Fatalf(format, args...)
	}
}
