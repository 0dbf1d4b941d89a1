// Package ca is a private certificate authority. It bootstraps a root and
// an intermediate once, keeps them in an immutable in-process snapshot and
// mints short-lived end-entity certificates for each signature.
package ca

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/asaskevich/govalidator"
	"github.com/esignkit/signcore/ca/store"
	"go.uber.org/zap"
)

// DefaultOrganization names the CA when no organization is configured.
const DefaultOrganization = "SignCore"

// Snapshot is the loaded CA material. It is never modified after it is
// published.
type Snapshot struct {
	Root               *x509.Certificate
	RootKey            *rsa.PrivateKey
	Intermediate       *x509.Certificate
	IntermediateKey    *rsa.PrivateKey
	RootRecord         *store.Record
	IntermediateRecord *store.Record
	LoadedAt           time.Time
}

// Issued is a freshly minted signing identity. The private key is never
// persisted.
type Issued struct {
	Certificate *x509.Certificate
	PrivateKey  *rsa.PrivateKey
	// Chain is [intermediate, root].
	Chain []*x509.Certificate
}

// Service manages the CA hierarchy.
type Service struct {
	repo       store.Repository
	org        string
	passphrase string
	logger     *zap.Logger
	now        func() time.Time
	strict     bool
	keyBits    int

	mu       sync.Mutex
	snapshot atomic.Pointer[Snapshot]
}

// Option configures a Service.
type Option func(*Service)

// WithOrganization sets the organization used in CA subjects.
func WithOrganization(org string) Option {
	return func(s *Service) {
		if org != "" {
			s.org = org
		}
	}
}

// WithPassphrase sets the passphrase protecting CA keys at rest.
func WithPassphrase(p string) Option {
	return func(s *Service) { s.passphrase = p }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l.With(zap.String("component", "ca"))
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithStrict makes callers refuse to run when the CA fails to initialize.
func WithStrict(strict bool) Option {
	return func(s *Service) { s.strict = strict }
}

// WithKeySize sets the RSA modulus size for every generated key.
func WithKeySize(bits int) Option {
	return func(s *Service) {
		if bits >= 2048 {
			s.keyBits = bits
		}
	}
}

// NewService creates a CA service on top of repo. Call Initialize before
// issuing certificates.
func NewService(repo store.Repository, opts ...Option) *Service {
	s := &Service{
		repo:    repo,
		org:     DefaultOrganization,
		logger:  zap.NewNop(),
		now:     time.Now,
		keyBits: 2048,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.passphrase == "" {
		s.logger.Warn("CA keys are sealed with an empty passphrase")
	}
	return s
}

// Strict reports whether initialization failures must stop the caller.
func (s *Service) Strict() bool {
	return s.strict
}

// Snapshot returns the current CA material or nil before Initialize.
func (s *Service) Snapshot() *Snapshot {
	return s.snapshot.Load()
}

// Initialize loads the active root and intermediate, creating them on first
// use. It is safe to call repeatedly.
func (s *Service) Initialize(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	var snap *Snapshot
	rootRec, err := s.repo.FindByRole(ctx, store.RoleRoot)
	switch {
	case err == nil:
		snap, err = s.load(ctx, rootRec)
	case errors.Is(err, store.ErrNotFound):
		snap, err = s.bootstrap(ctx)
	default:
		err = notInitialized("failed to look up root certificate", err)
	}
	if err != nil {
		s.logger.Error("CA initialization failed", zap.Error(err))
		return err
	}

	s.snapshot.Store(snap)
	s.logger.Info("CA ready",
		zap.String("root", snap.Root.Subject.CommonName),
		zap.String("intermediate", snap.Intermediate.Subject.CommonName),
		zap.Time("root_not_after", snap.Root.NotAfter))
	return nil
}

func (s *Service) load(ctx context.Context, rootRec *store.Record) (*Snapshot, error) {
	root, err := rootRec.ParseCertificate()
	if err != nil {
		return nil, notInitialized("failed to parse root certificate", err)
	}
	rootKey, err := openKey(s.passphrase, rootRec.PrivateKey)
	if err != nil {
		return nil, notInitialized("failed to unseal root key", err)
	}

	snap := &Snapshot{
		Root:       root,
		RootKey:    rootKey,
		RootRecord: rootRec,
		LoadedAt:   s.now(),
	}

	interRec, err := s.repo.FindByRole(ctx, store.RoleIntermediate)
	if errors.Is(err, store.ErrNotFound) {
		s.logger.Warn("no active intermediate, issuing a new one")
		if err := s.createIntermediate(ctx, snap); err != nil {
			return nil, err
		}
		return snap, nil
	}
	if err != nil {
		return nil, notInitialized("failed to look up intermediate certificate", err)
	}

	if interRec.IssuerDN != rootRec.SubjectDN {
		return nil, notInitialized("intermediate does not chain to the active root",
			fmt.Errorf("issuer %q, root %q", interRec.IssuerDN, rootRec.SubjectDN))
	}
	inter, err := interRec.ParseCertificate()
	if err != nil {
		return nil, notInitialized("failed to parse intermediate certificate", err)
	}
	if err := inter.CheckSignatureFrom(root); err != nil {
		return nil, notInitialized("intermediate signature does not verify", err)
	}
	interKey, err := openKey(s.passphrase, interRec.PrivateKey)
	if err != nil {
		return nil, notInitialized("failed to unseal intermediate key", err)
	}

	snap.Intermediate = inter
	snap.IntermediateKey = interKey
	snap.IntermediateRecord = interRec
	return snap, nil
}

func (s *Service) bootstrap(ctx context.Context) (*Snapshot, error) {
	s.logger.Info("bootstrapping CA", zap.String("organization", s.org))

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rootKey, err := rsa.GenerateKey(rand.Reader, s.keyBits)
	if err != nil {
		return nil, notInitialized("failed to generate root key", err)
	}

	now := s.now()
	tmpl, err := rootTemplate(s.org, rootKey, now)
	if err != nil {
		return nil, notInitialized("failed to create root serial", err)
	}
	root, err := createCertificate(tmpl, tmpl, &rootKey.PublicKey, rootKey)
	if err != nil {
		return nil, notInitialized("failed to create root certificate", err)
	}

	rootRec, err := s.persist(ctx, root, rootKey, store.RoleRoot)
	if err != nil {
		return nil, err
	}

	snap := &Snapshot{
		Root:       root,
		RootKey:    rootKey,
		RootRecord: rootRec,
		LoadedAt:   now,
	}
	if err := s.createIntermediate(ctx, snap); err != nil {
		return nil, err
	}
	return snap, nil
}

// createIntermediate fills the intermediate part of snap.
func (s *Service) createIntermediate(ctx context.Context, snap *Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	key, err := rsa.GenerateKey(rand.Reader, s.keyBits)
	if err != nil {
		return notInitialized("failed to generate intermediate key", err)
	}
	tmpl, err := intermediateTemplate(s.org, key, snap.Root, s.now())
	if err != nil {
		return notInitialized("failed to create intermediate serial", err)
	}
	cert, err := createCertificate(tmpl, snap.Root, &key.PublicKey, snap.RootKey)
	if err != nil {
		return notInitialized("failed to create intermediate certificate", err)
	}
	rec, err := s.persist(ctx, cert, key, store.RoleIntermediate)
	if err != nil {
		return err
	}

	snap.Intermediate = cert
	snap.IntermediateKey = key
	snap.IntermediateRecord = rec
	return nil
}

func (s *Service) persist(ctx context.Context, cert *x509.Certificate, key *rsa.PrivateKey, role store.Role) (*store.Record, error) {
	sealed, err := sealKey(s.passphrase, key)
	if err != nil {
		return nil, notInitialized("failed to seal "+string(role)+" key", err)
	}
	rec := store.NewRecord(cert, role, cert.Subject.CommonName)
	rec.PrivateKey = sealed
	rec.IsDefault = true

	stored, err := s.repo.UpsertByNameAndRole(ctx, rec)
	if err != nil {
		return nil, notInitialized("failed to store "+string(role)+" certificate", err)
	}
	s.logger.Info("stored CA certificate",
		zap.String("role", string(role)),
		zap.Int64("id", stored.ID),
		zap.String("subject", stored.SubjectDN))
	return stored, nil
}

// IssueSigningCert mints a one-year end-entity certificate signed by the
// intermediate. Only an audit record of it is stored.
func (s *Service) IssueSigningCert(ctx context.Context, email, commonName string) (*Issued, error) {
	snap := s.snapshot.Load()
	if snap == nil {
		return nil, ErrCANotInitialized
	}
	if commonName == "" {
		commonName = email
	}
	if commonName == "" {
		return nil, &CertIssuanceError{Msg: "signer has neither name nor email"}
	}
	if email != "" && !govalidator.IsEmail(email) {
		return nil, &CertIssuanceError{Msg: fmt.Sprintf("invalid email address %q", email)}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	key, err := rsa.GenerateKey(rand.Reader, s.keyBits)
	if err != nil {
		return nil, &CertIssuanceError{Msg: "key generation", Err: err}
	}
	serial, err := signingSerial(rand.Reader)
	if err != nil {
		return nil, &CertIssuanceError{Msg: "serial generation", Err: err}
	}

	tmpl := signingTemplate(serial, email, commonName, s.now())
	cert, err := createCertificate(tmpl, snap.Intermediate, &key.PublicKey, snap.IntermediateKey)
	if err != nil {
		return nil, &CertIssuanceError{Msg: "certificate creation", Err: err}
	}

	audit := store.NewRecord(cert, store.RoleSigning, fmt.Sprintf("%s #%s", commonName, cert.SerialNumber.Text(16)))
	if _, err := s.repo.UpsertByNameAndRole(ctx, audit); err != nil {
		s.logger.Warn("failed to record issued certificate", zap.String("serial", audit.Serial), zap.Error(err))
	}

	s.logger.Info("issued signing certificate",
		zap.String("subject", cert.Subject.String()),
		zap.String("serial", cert.SerialNumber.String()),
		zap.Time("not_after", cert.NotAfter))

	return &Issued{
		Certificate: cert,
		PrivateKey:  key,
		Chain:       []*x509.Certificate{snap.Intermediate, snap.Root},
	}, nil
}

// TrustAnchors returns the active root and every active externally trusted
// certificate. Expired external certificates are marked as such and left
// out.
func (s *Service) TrustAnchors(ctx context.Context) ([]*x509.Certificate, error) {
	var anchors []*x509.Certificate
	if snap := s.snapshot.Load(); snap != nil {
		anchors = append(anchors, snap.Root)
	}

	recs, err := s.repo.ListByRole(ctx, store.RoleTrustedExternal)
	if err != nil {
		return nil, fmt.Errorf("failed to list trusted certificates: %w", err)
	}

	now := s.now()
	for _, rec := range recs {
		if rec.Status != store.StatusActive {
			continue
		}
		if now.After(rec.NotAfter) {
			if err := s.repo.UpdateStatus(ctx, rec.ID, store.StatusExpired); err != nil {
				s.logger.Warn("failed to mark certificate expired", zap.Int64("id", rec.ID), zap.Error(err))
			}
			continue
		}
		cert, err := rec.ParseCertificate()
		if err != nil {
			s.logger.Warn("skipping unreadable trusted certificate", zap.Int64("id", rec.ID), zap.Error(err))
			continue
		}
		anchors = append(anchors, cert)
	}
	return anchors, nil
}

// AddTrustedCertificate stores cert (DER or PEM) as an additional trust
// anchor.
func (s *Service) AddTrustedCertificate(ctx context.Context, name string, data []byte) (*store.Record, error) {
	certs, err := ParseCertificates(data)
	if err != nil {
		return nil, err
	}
	cert := certs[0]
	if name == "" {
		name = cert.Subject.CommonName
	}
	if name == "" {
		name = cert.Subject.String()
	}

	rec, err := s.repo.UpsertByNameAndRole(ctx, store.NewRecord(cert, store.RoleTrustedExternal, name))
	if err != nil {
		return nil, err
	}
	s.logger.Info("added trusted certificate", zap.String("name", name), zap.String("subject", rec.SubjectDN))
	return rec, nil
}

// Revoke flags a stored certificate as revoked.
func (s *Service) Revoke(ctx context.Context, id int64) error {
	if err := s.repo.UpdateStatus(ctx, id, store.StatusRevoked); err != nil {
		return fmt.Errorf("failed to revoke certificate %d: %w", id, err)
	}
	if snap := s.snapshot.Load(); snap != nil &&
		((snap.RootRecord != nil && snap.RootRecord.ID == id) || (snap.IntermediateRecord != nil && snap.IntermediateRecord.ID == id)) {
		s.logger.Warn("revoked a certificate of the running CA; it stays in use until the next Initialize", zap.Int64("id", id))
	}
	return nil
}
