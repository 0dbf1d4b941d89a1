package store

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func selfSigned(t *testing.T, cn string) *x509.Certificate {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	tmpl := &x509.Certificate{
		SerialNumber:          big.NewInt(time.Now().UnixNano()),
		Subject:               pkix.Name{CommonName: cn},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(time.Hour),
		IsCA:                  true,
		BasicConstraintsValid: true,
		KeyUsage:              x509.KeyUsageCertSign,
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	require.NoError(t, err)
	cert, err := x509.ParseCertificate(der)
	require.NoError(t, err)
	return cert
}

func repositories(t *testing.T) map[string]Repository {
	t.Helper()
	db, err := OpenSQLite(filepath.Join(t.TempDir(), "ca.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return map[string]Repository{
		"memory": NewMemory(),
		"sqlite": db,
	}
}

func TestRepository(t *testing.T) {
	for name, repo := range repositories(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			rootCert := selfSigned(t, "Test Root CA")

			t.Run("find missing role", func(t *testing.T) {
				_, err := repo.FindByRole(ctx, RoleRoot)
				assert.ErrorIs(t, err, ErrNotFound)
			})

			t.Run("upsert inserts", func(t *testing.T) {
				rec := NewRecord(rootCert, RoleRoot, "root")
				rec.PrivateKey = []byte("v1$sealed")
				rec.IsDefault = true

				stored, err := repo.UpsertByNameAndRole(ctx, rec)
				require.NoError(t, err)
				assert.NotZero(t, stored.ID)
				assert.Equal(t, rootCert.Raw, stored.Certificate)
				assert.Equal(t, []byte("v1$sealed"), stored.PrivateKey)
				assert.Equal(t, StatusActive, stored.Status)
				assert.Equal(t, "CN=Test Root CA", stored.SubjectDN)
				assert.False(t, stored.CreatedAt.IsZero())

				found, err := repo.FindByRole(ctx, RoleRoot)
				require.NoError(t, err)
				assert.Equal(t, stored.ID, found.ID)
				assert.True(t, found.IsDefault)
				assert.WithinDuration(t, rootCert.NotAfter, found.NotAfter, time.Second)
			})

			t.Run("upsert replaces same name and role", func(t *testing.T) {
				first, err := repo.FindByRole(ctx, RoleRoot)
				require.NoError(t, err)

				other := selfSigned(t, "Replacement Root CA")
				rec := NewRecord(other, RoleRoot, "root")
				rec.IsDefault = true
				stored, err := repo.UpsertByNameAndRole(ctx, rec)
				require.NoError(t, err)
				assert.Equal(t, first.ID, stored.ID)
				assert.Equal(t, other.Raw, stored.Certificate)
				assert.Empty(t, stored.PrivateKey)

				list, err := repo.ListByRole(ctx, RoleRoot)
				require.NoError(t, err)
				assert.Len(t, list, 1)
			})

			t.Run("same name different role", func(t *testing.T) {
				_, err := repo.UpsertByNameAndRole(ctx, NewRecord(rootCert, RoleTrustedExternal, "root"))
				require.NoError(t, err)

				list, err := repo.ListByRole(ctx, RoleTrustedExternal)
				require.NoError(t, err)
				require.Len(t, list, 1)
				assert.Equal(t, RoleTrustedExternal, list[0].Role)
			})

			t.Run("update status", func(t *testing.T) {
				list, err := repo.ListByRole(ctx, RoleTrustedExternal)
				require.NoError(t, err)
				require.Len(t, list, 1)

				require.NoError(t, repo.UpdateStatus(ctx, list[0].ID, StatusRevoked))
				got, err := repo.Get(ctx, list[0].ID)
				require.NoError(t, err)
				assert.Equal(t, StatusRevoked, got.Status)

				_, err = repo.FindByRole(ctx, RoleTrustedExternal)
				assert.ErrorIs(t, err, ErrNotFound)
			})

			t.Run("missing ids", func(t *testing.T) {
				_, err := repo.Get(ctx, 9999)
				assert.ErrorIs(t, err, ErrNotFound)
				assert.ErrorIs(t, repo.UpdateStatus(ctx, 9999, StatusRevoked), ErrNotFound)
			})

			t.Run("invalid record", func(t *testing.T) {
				_, err := repo.UpsertByNameAndRole(ctx, &Record{Name: "x", Role: RoleSigning})
				assert.ErrorIs(t, err, ErrInvalidRecord)
				_, err = repo.UpsertByNameAndRole(ctx, nil)
				assert.ErrorIs(t, err, ErrInvalidRecord)
			})

			t.Run("default preferred over newer", func(t *testing.T) {
				a := NewRecord(selfSigned(t, "A"), RoleIntermediate, "a")
				a.IsDefault = true
				_, err := repo.UpsertByNameAndRole(ctx, a)
				require.NoError(t, err)
				_, err = repo.UpsertByNameAndRole(ctx, NewRecord(selfSigned(t, "B"), RoleIntermediate, "b"))
				require.NoError(t, err)

				found, err := repo.FindByRole(ctx, RoleIntermediate)
				require.NoError(t, err)
				assert.Equal(t, "a", found.Name)
			})
		})
	}
}

func TestMemoryReturnsCopies(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	stored, err := m.UpsertByNameAndRole(ctx, NewRecord(selfSigned(t, "Root"), RoleRoot, "root"))
	require.NoError(t, err)

	stored.Certificate[0] ^= 0xff
	stored.Status = StatusRevoked

	got, err := m.Get(ctx, stored.ID)
	require.NoError(t, err)
	assert.NotEqual(t, stored.Certificate[0], got.Certificate[0])
	assert.Equal(t, StatusActive, got.Status)
}

func TestSQLitePersists(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "ca.db")
	cert := selfSigned(t, "Persistent Root")

	db, err := OpenSQLite(path)
	require.NoError(t, err)
	_, err = db.UpsertByNameAndRole(ctx, NewRecord(cert, RoleRoot, "root"))
	require.NoError(t, err)
	require.NoError(t, db.Close())

	db, err = OpenSQLite(path)
	require.NoError(t, err)
	defer db.Close()

	found, err := db.FindByRole(ctx, RoleRoot)
	require.NoError(t, err)
	parsed, err := found.ParseCertificate()
	require.NoError(t, err)
	assert.Equal(t, "Persistent Root", parsed.Subject.CommonName)
}
