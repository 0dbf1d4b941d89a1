package cli

import (
	"context"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"

	"github.com/esignkit/signcore/ca"
	"github.com/esignkit/signcore/ca/store"
	"github.com/esignkit/signcore/engine"
)

// CACmd groups the certificate authority commands.
type CACmd struct {
	Init   CAInitCmd   `cmd:"" help:"Create or load the CA and print its root certificate"`
	Issue  CAIssueCmd  `cmd:"" help:"Issue a signing certificate"`
	Trust  CATrustCmd  `cmd:"" help:"Trust an external CA certificate"`
	Revoke CARevokeCmd `cmd:"" help:"Mark a stored certificate as revoked"`
}

func (g *Globals) openCA(ctx context.Context) (*ca.Service, *store.SQLite, error) {
	cfg, logger, err := g.load()
	if err != nil {
		return nil, nil, err
	}
	return engine.OpenCA(ctx, cfg, logger)
}

// CAInitCmd initializes the CA. Running it again is a no-op.
type CAInitCmd struct {
	Out string `help:"Also write the root certificate PEM to this file." type:"path"`
}

func (c *CAInitCmd) Run(ctx context.Context, globals *Globals) error {
	svc, repo, err := globals.openCA(ctx)
	if err != nil {
		return err
	}
	defer repo.Close()

	root := ca.EncodePEM(svc.Snapshot().Root)
	if c.Out != "" {
		if err := os.WriteFile(c.Out, root, 0o644); err != nil {
			return fmt.Errorf("failed to write root certificate: %w", err)
		}
	}
	_, err = globals.stdout().Write(root)
	return err
}

// CAIssueCmd issues a signing certificate and writes it with its chain and
// private key.
type CAIssueCmd struct {
	Email   string `arg:"" help:"Email address of the signer"`
	Name    string `help:"Common name, defaults to the email address"`
	KeyOut  string `help:"Write the PKCS#8 private key PEM to this file." type:"path" required:""`
	CertOut string `help:"Write the certificate chain PEM to this file instead of stdout." type:"path"`
}

func (c *CAIssueCmd) Run(ctx context.Context, globals *Globals) error {
	svc, repo, err := globals.openCA(ctx)
	if err != nil {
		return err
	}
	defer repo.Close()

	issued, err := svc.IssueSigningCert(ctx, c.Email, c.Name)
	if err != nil {
		return err
	}

	der, err := x509.MarshalPKCS8PrivateKey(issued.PrivateKey)
	if err != nil {
		return fmt.Errorf("failed to encode private key: %w", err)
	}
	if err := os.WriteFile(c.KeyOut, pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der}), 0o600); err != nil {
		return fmt.Errorf("failed to write private key: %w", err)
	}

	chain := ca.EncodePEM(issued.Certificate)
	for _, parent := range issued.Chain {
		chain = append(chain, ca.EncodePEM(parent)...)
	}
	if c.CertOut != "" {
		return os.WriteFile(c.CertOut, chain, 0o644)
	}
	_, err = globals.stdout().Write(chain)
	return err
}

// CATrustCmd adds an external certificate to the trust set.
type CATrustCmd struct {
	File string `arg:"" help:"PEM or DER certificate" type:"existingfile"`
	Name string `help:"Name to store it under, defaults to its common name"`
}

func (c *CATrustCmd) Run(ctx context.Context, globals *Globals) error {
	data, err := os.ReadFile(c.File)
	if err != nil {
		return err
	}
	svc, repo, err := globals.openCA(ctx)
	if err != nil {
		return err
	}
	defer repo.Close()

	rec, err := svc.AddTrustedCertificate(ctx, c.Name, data)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(globals.stdout(), "trusted %q (id %d, fingerprint %s)\n", rec.Name, rec.ID, rec.Fingerprint)
	return err
}

// CARevokeCmd marks a stored certificate as revoked.
type CARevokeCmd struct {
	ID int64 `arg:"" help:"Record id"`
}

func (c *CARevokeCmd) Run(ctx context.Context, globals *Globals) error {
	svc, repo, err := globals.openCA(ctx)
	if err != nil {
		return err
	}
	defer repo.Close()

	if err := svc.Revoke(ctx, c.ID); err != nil {
		return err
	}
	_, err = fmt.Fprintf(globals.stdout(), "revoked %d\n", c.ID)
	return err
}
