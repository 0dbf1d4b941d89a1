// Package store persists the certificates managed by the CA service.
package store

import (
	"context"
	"crypto/sha256"
	"crypto/x509"
	"encoding/hex"
	"errors"
	"time"
)

// Role tags what a stored certificate is used for.
type Role string

const (
	RoleRoot            Role = "ROOT_CA"
	RoleIntermediate    Role = "INTERMEDIATE_CA"
	RoleSigning         Role = "SIGNING"
	RoleTrustedExternal Role = "TRUSTED_EXTERNAL"
)

// Status of a stored certificate.
type Status string

const (
	StatusActive  Status = "active"
	StatusExpired Status = "expired"
	StatusRevoked Status = "revoked"
)

// Errors
var (
	ErrNotFound      = errors.New("certificate not found")
	ErrInvalidRecord = errors.New("invalid certificate record")
)

// Record is one stored certificate. PrivateKey holds the sealed key of CA
// roles and is empty for everything else.
type Record struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Certificate []byte    `json:"-"`
	PrivateKey  []byte    `json:"-"`
	Role        Role      `json:"role"`
	IssuerDN    string    `json:"issuer_dn"`
	SubjectDN   string    `json:"subject_dn"`
	Serial      string    `json:"serial"`
	NotBefore   time.Time `json:"not_before"`
	NotAfter    time.Time `json:"not_after"`
	Fingerprint string    `json:"fingerprint"`
	Status      Status    `json:"status"`
	IsDefault   bool      `json:"is_default"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Repository stores certificate records. Name is unique per role.
type Repository interface {
	// FindByRole returns the active record of a role, preferring the
	// default one and then the most recent.
	FindByRole(ctx context.Context, role Role) (*Record, error)

	// ListByRole returns every record of a role, oldest first.
	ListByRole(ctx context.Context, role Role) ([]*Record, error)

	// UpsertByNameAndRole inserts rec or replaces the record with the same
	// name and role, and returns the stored record.
	UpsertByNameAndRole(ctx context.Context, rec *Record) (*Record, error)

	// Get returns a record by ID.
	Get(ctx context.Context, id int64) (*Record, error)

	// UpdateStatus changes the status of a record.
	UpdateStatus(ctx context.Context, id int64, status Status) error
}

// NewRecord describes cert as a record of the given role.
func NewRecord(cert *x509.Certificate, role Role, name string) *Record {
	fingerprint := sha256.Sum256(cert.Raw)
	return &Record{
		Name:        name,
		Certificate: cert.Raw,
		Role:        role,
		IssuerDN:    cert.Issuer.String(),
		SubjectDN:   cert.Subject.String(),
		Serial:      cert.SerialNumber.String(),
		NotBefore:   cert.NotBefore.UTC(),
		NotAfter:    cert.NotAfter.UTC(),
		Fingerprint: hex.EncodeToString(fingerprint[:]),
		Status:      StatusActive,
	}
}

// ParseCertificate decodes the stored certificate.
func (r *Record) ParseCertificate() (*x509.Certificate, error) {
	return x509.ParseCertificate(r.Certificate)
}

func validate(rec *Record) error {
	if rec == nil || rec.Name == "" || rec.Role == "" || len(rec.Certificate) == 0 {
		return ErrInvalidRecord
	}
	if rec.Status == "" {
		rec.Status = StatusActive
	}
	return nil
}

func copyRecord(r *Record) *Record {
	c := *r
	c.Certificate = append([]byte(nil), r.Certificate...)
	if r.PrivateKey != nil {
		c.PrivateKey = append([]byte(nil), r.PrivateKey...)
	}
	return &c
}
