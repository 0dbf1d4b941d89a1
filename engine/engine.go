// Package engine ties the renderer, the signer and the verifier to one
// certificate authority.
package engine

import (
	"context"
	"crypto/x509"
	"errors"
	"fmt"

	"github.com/esignkit/signcore/ca"
	"github.com/esignkit/signcore/ca/store"
	"github.com/esignkit/signcore/config"
	"github.com/esignkit/signcore/render"
	"github.com/esignkit/signcore/sign"
	"github.com/esignkit/signcore/verify"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Engine runs complete signing operations. A nil CA leaves rendering and
// verification working but disables signing.
type Engine struct {
	ca       *ca.Service
	renderer *render.Renderer
	signer   *sign.Signer
	logger   *zap.Logger
	closer   func() error

	location    string
	contactInfo string
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger handed to every component.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithPlaceholderSize sets the bytes reserved for each CMS blob.
func WithPlaceholderSize(size int) Option {
	return func(e *Engine) { e.signer.PlaceholderSize = size }
}

// WithSignatureDefaults fills Location and ContactInfo of requests that
// leave them empty.
func WithSignatureDefaults(location, contactInfo string) Option {
	return func(e *Engine) {
		e.location = location
		e.contactInfo = contactInfo
	}
}

// New returns an Engine issuing certificates from svc.
func New(svc *ca.Service, opts ...Option) *Engine {
	e := &Engine{
		ca:     svc,
		signer: &sign.Signer{},
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.renderer = render.NewRenderer(render.WithLogger(e.logger))
	e.signer.Logger = e.logger
	if svc != nil {
		e.signer.Issuer = svc
	}
	return e
}

// Open opens the CA store named by cfg, initializes the CA and returns an
// engine on top of it. In strict mode a CA failure is returned; otherwise
// it is logged and the engine runs with signing disabled.
func Open(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Engine, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	opts := []Option{
		WithLogger(logger),
		WithPlaceholderSize(cfg.Signer.PlaceholderSize),
		WithSignatureDefaults(cfg.Signer.Location, cfg.Signer.ContactInfo),
	}

	svc, repo, err := OpenCA(ctx, cfg, logger)
	if err != nil {
		if cfg.CA.Strict {
			return nil, err
		}
		logger.Error("certificate authority unavailable, signing disabled", zap.Error(err))
		return New(nil, opts...), nil
	}

	e := New(svc, opts...)
	e.closer = repo.Close
	return e, nil
}

// OpenCA opens the SQLite store of cfg and initializes a CA service on it.
func OpenCA(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*ca.Service, *store.SQLite, error) {
	repo, err := store.OpenSQLite(cfg.CA.Database)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ca.ErrCANotInitialized, err)
	}
	svc := ca.NewService(repo,
		ca.WithOrganization(cfg.CA.Organization),
		ca.WithPassphrase(cfg.CA.ResolvePassphrase()),
		ca.WithKeySize(cfg.CA.KeySize),
		ca.WithStrict(cfg.CA.Strict),
		ca.WithLogger(logger))
	if err := svc.Initialize(ctx); err != nil {
		_ = repo.Close()
		return nil, nil, err
	}
	return svc, repo, nil
}

// Close releases the CA store.
func (e *Engine) Close() error {
	if e.closer == nil {
		return nil
	}
	return e.closer()
}

// SigningEnabled reports whether a CA is available.
func (e *Engine) SigningEnabled() bool {
	return e.ca != nil
}

// CA returns the certificate authority, nil when signing is disabled.
func (e *Engine) CA() *ca.Service {
	return e.ca
}

// Sign adds a signature without drawing anything first.
func (e *Engine) Sign(ctx context.Context, document []byte, req sign.Request) ([]byte, error) {
	if e.ca == nil {
		return nil, ca.ErrSigningDisabled
	}
	if req.Location == "" {
		req.Location = e.location
	}
	if req.ContactInfo == "" {
		req.ContactInfo = e.contactInfo
	}
	return e.signer.Sign(ctx, document, req)
}

// Result is the outcome of Complete.
type Result struct {
	OperationID string             `json:"operation_id"`
	PDF         []byte             `json:"-"`
	Placements  []render.Placement `json:"placements"`
	Skipped     []render.Skip      `json:"skipped,omitempty"`
}

// Render draws items without signing.
func (e *Engine) Render(ctx context.Context, document []byte, items []render.Item, settings render.Settings) (*render.Result, error) {
	return e.renderer.Render(ctx, document, items, settings)
}

// Complete draws the items meant for the signer of req and signs the
// result. When req has no rectangle the signature widget is placed over
// the first drawn signature field.
func (e *Engine) Complete(ctx context.Context, document []byte, items []render.Item, settings render.Settings, req sign.Request) (*Result, error) {
	if e.ca == nil {
		return nil, ca.ErrSigningDisabled
	}
	opID := uuid.NewString()
	opLogger := e.logger.With(zap.String("operation_id", opID))
	logger := opLogger.With(zap.String("component", "engine"))

	renderer := render.NewRenderer(render.WithLogger(opLogger))
	signer := *e.signer
	signer.Logger = opLogger

	items = render.FilterByPartner(items, req.Name, req.Email)
	rendered, err := renderer.Render(ctx, document, items, settings)
	if err != nil {
		logger.Error("failed to render", zap.Error(err))
		return nil, fmt.Errorf("failed to render: %w", err)
	}

	if req.Rect == ([4]float64{}) {
		if p, ok := signaturePlacement(items, rendered.Placements); ok {
			req.Page = p.Page
			req.Rect = [4]float64{p.Rect.X, p.Rect.Y, p.Rect.X + p.Rect.W, p.Rect.Y + p.Rect.H}
		}
	}
	if req.Location == "" {
		req.Location = e.location
	}
	if req.ContactInfo == "" {
		req.ContactInfo = e.contactInfo
	}

	signed, err := signer.Sign(ctx, rendered.PDF, req)
	if err != nil {
		logger.Error("failed to sign", zap.Error(err))
		return nil, err
	}

	logger.Info("completed document",
		zap.Int("placements", len(rendered.Placements)),
		zap.Int("skipped", len(rendered.Skipped)))
	return &Result{
		OperationID: opID,
		PDF:         signed,
		Placements:  rendered.Placements,
		Skipped:     rendered.Skipped,
	}, nil
}

// Verify checks document against the CA's current trust anchors. Without
// a CA no chain can be trusted.
func (e *Engine) Verify(ctx context.Context, document []byte) (*verify.Response, error) {
	var anchors []*x509.Certificate
	if e.ca != nil {
		var err error
		anchors, err = e.ca.TrustAnchors(ctx)
		if err != nil && !errors.Is(err, ca.ErrCANotInitialized) {
			return nil, err
		}
	}
	return verify.Verify(ctx, document, anchors)
}

func signaturePlacement(items []render.Item, placements []render.Placement) (render.Placement, bool) {
	types := make(map[string]string, len(items))
	for _, it := range items {
		types[it.Field.Name] = it.Field.Type
	}
	for _, p := range placements {
		if types[p.Field] == "signature" && p.Rect.W > 0 && p.Rect.H > 0 {
			return p, true
		}
	}
	return render.Placement{}, false
}
