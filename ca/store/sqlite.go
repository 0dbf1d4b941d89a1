package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// SQLite is a Repository backed by a SQLite database file.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the database at path and makes
// sure the schema exists.
func OpenSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// SQLite allows a single writer.
	db.SetMaxOpenConns(1)

	s := &SQLite{db: db}
	if err := s.createTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return s, nil
}

func (s *SQLite) createTables() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS certificates (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL,
			certificate_data BLOB NOT NULL,
			private_key BLOB,
			role TEXT NOT NULL,
			issuer_dn TEXT NOT NULL DEFAULT '',
			subject_dn TEXT NOT NULL DEFAULT '',
			serial TEXT NOT NULL DEFAULT '',
			not_before DATETIME,
			not_after DATETIME,
			fingerprint TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL DEFAULT 'active',
			is_default BOOLEAN NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL,
			UNIQUE (name, role)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_certificates_role_status ON certificates (role, status)`,
	}

	for _, query := range queries {
		if _, err := s.db.Exec(query); err != nil {
			return fmt.Errorf("failed to execute query: %w", err)
		}
	}
	return nil
}

const selectColumns = `SELECT id, name, certificate_data, private_key, role, issuer_dn, subject_dn,
	serial, not_before, not_after, fingerprint, status, is_default, created_at, updated_at
	FROM certificates`

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (*Record, error) {
	var r Record
	var role, status string
	err := row.Scan(&r.ID, &r.Name, &r.Certificate, &r.PrivateKey, &role, &r.IssuerDN, &r.SubjectDN,
		&r.Serial, &r.NotBefore, &r.NotAfter, &r.Fingerprint, &status, &r.IsDefault, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, err
	}
	r.Role = Role(role)
	r.Status = Status(status)
	return &r, nil
}

// FindByRole returns the active record of a role.
func (s *SQLite) FindByRole(ctx context.Context, role Role) (*Record, error) {
	row := s.db.QueryRowContext(ctx, selectColumns+`
		WHERE role = ? AND status = ?
		ORDER BY is_default DESC, id DESC
		LIMIT 1`, string(role), string(StatusActive))

	r, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find %s certificate: %w", role, err)
	}
	return r, nil
}

// ListByRole returns all records of a role ordered by ID.
func (s *SQLite) ListByRole(ctx context.Context, role Role) ([]*Record, error) {
	rows, err := s.db.QueryContext(ctx, selectColumns+` WHERE role = ? ORDER BY id`, string(role))
	if err != nil {
		return nil, fmt.Errorf("failed to list %s certificates: %w", role, err)
	}
	defer rows.Close()

	result := []*Record{}
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan certificate: %w", err)
		}
		result = append(result, r)
	}
	return result, rows.Err()
}

// UpsertByNameAndRole inserts rec or replaces the row with the same name
// and role.
func (s *SQLite) UpsertByNameAndRole(ctx context.Context, rec *Record) (*Record, error) {
	if err := validate(rec); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO certificates (name, certificate_data, private_key, role, issuer_dn, subject_dn,
			serial, not_before, not_after, fingerprint, status, is_default, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (name, role) DO UPDATE SET
			certificate_data = excluded.certificate_data,
			private_key = excluded.private_key,
			issuer_dn = excluded.issuer_dn,
			subject_dn = excluded.subject_dn,
			serial = excluded.serial,
			not_before = excluded.not_before,
			not_after = excluded.not_after,
			fingerprint = excluded.fingerprint,
			status = excluded.status,
			is_default = excluded.is_default,
			updated_at = excluded.updated_at`,
		rec.Name, rec.Certificate, rec.PrivateKey, string(rec.Role), rec.IssuerDN, rec.SubjectDN,
		rec.Serial, rec.NotBefore.UTC(), rec.NotAfter.UTC(), rec.Fingerprint, string(rec.Status), rec.IsDefault, now, now)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert certificate %q: %w", rec.Name, err)
	}

	row := s.db.QueryRowContext(ctx, selectColumns+` WHERE name = ? AND role = ?`, rec.Name, string(rec.Role))
	stored, err := scanRecord(row)
	if err != nil {
		return nil, fmt.Errorf("failed to read back certificate %q: %w", rec.Name, err)
	}
	return stored, nil
}

// Get retrieves a record by ID.
func (s *SQLite) Get(ctx context.Context, id int64) (*Record, error) {
	r, err := scanRecord(s.db.QueryRowContext(ctx, selectColumns+` WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get certificate %d: %w", id, err)
	}
	return r, nil
}

// UpdateStatus changes the status of a record.
func (s *SQLite) UpdateStatus(ctx context.Context, id int64, status Status) error {
	res, err := s.db.ExecContext(ctx, `UPDATE certificates SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to update certificate %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Close closes the database connection.
func (s *SQLite) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
