package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/esignkit/signcore/engine"
	"github.com/esignkit/signcore/render"
	"github.com/esignkit/signcore/sign"
)

// RenderCmd draws item values without signing.
type RenderCmd struct {
	Input  string `arg:"" help:"Input PDF" type:"existingfile"`
	Output string `arg:"" help:"Output PDF" type:"path"`
	Items  string `help:"JSON file with the items to draw." type:"existingfile" required:""`
}

func (c *RenderCmd) Run(ctx context.Context, globals *Globals) error {
	cfg, logger, err := globals.load()
	if err != nil {
		return err
	}
	document, items, err := readInputs(c.Input, c.Items)
	if err != nil {
		return err
	}

	res, err := engine.New(nil, engine.WithLogger(logger)).Render(ctx, document, items, cfg.Render)
	if err != nil {
		return err
	}
	if err := os.WriteFile(c.Output, res.PDF, 0o644); err != nil {
		return err
	}
	return writeJSON(globals, res)
}

// SignCmd signs a document, optionally drawing item values first.
type SignCmd struct {
	Input  string `arg:"" help:"Input PDF" type:"existingfile"`
	Output string `arg:"" help:"Output PDF" type:"path"`

	Email    string    `help:"Signer email address." required:""`
	Name     string    `help:"Signer name."`
	Reason   string    `help:"Reason for signing."`
	Location string    `help:"Location of the signer."`
	Contact  string    `help:"Contact information of the signer."`
	Page     int       `help:"Page of the signature widget." default:"1"`
	Rect     []float64 `help:"Widget rectangle llx,lly,urx,ury in PDF points."`
	Field    string    `help:"Name of the new signature field."`
	Items    string    `help:"JSON file with items to draw before signing." type:"existingfile"`
}

func (c *SignCmd) Run(ctx context.Context, globals *Globals) (err error) {
	req := sign.Request{
		Page:        c.Page,
		FieldName:   c.Field,
		Name:        c.Name,
		Email:       c.Email,
		Reason:      c.Reason,
		Location:    c.Location,
		ContactInfo: c.Contact,
		SignedAt:    time.Now(),
	}
	switch len(c.Rect) {
	case 0:
	case 4:
		copy(req.Rect[:], c.Rect)
	default:
		return fmt.Errorf("--rect needs 4 numbers, got %d", len(c.Rect))
	}

	e, cfg, err := globals.open(ctx)
	if err != nil {
		return err
	}
	defer closeEngine(e, &err)
	if !e.SigningEnabled() {
		return errNoCA
	}

	if c.Items == "" {
		document, err := os.ReadFile(c.Input)
		if err != nil {
			return err
		}
		signed, err := e.Sign(ctx, document, req)
		if err != nil {
			return err
		}
		return os.WriteFile(c.Output, signed, 0o644)
	}

	document, items, err := readInputs(c.Input, c.Items)
	if err != nil {
		return err
	}
	for i := range items {
		if items[i].Signer.SignedAt.IsZero() {
			items[i].Signer.SignedAt = req.SignedAt
		}
	}
	res, err := e.Complete(ctx, document, items, cfg.Render, req)
	if err != nil {
		return err
	}
	if err := os.WriteFile(c.Output, res.PDF, 0o644); err != nil {
		return err
	}
	return writeJSON(globals, res)
}

// VerifyCmd prints the verification report as JSON.
type VerifyCmd struct {
	Input string `arg:"" help:"Signed PDF" type:"existingfile"`
}

func (c *VerifyCmd) Run(ctx context.Context, globals *Globals) (err error) {
	document, err := os.ReadFile(c.Input)
	if err != nil {
		return err
	}
	e, _, err := globals.open(ctx)
	if err != nil {
		return err
	}
	defer closeEngine(e, &err)

	resp, err := e.Verify(ctx, document)
	if err != nil {
		return err
	}
	return writeJSON(globals, resp)
}

func readInputs(input, itemsFile string) ([]byte, []render.Item, error) {
	document, err := os.ReadFile(input)
	if err != nil {
		return nil, nil, err
	}
	data, err := os.ReadFile(itemsFile)
	if err != nil {
		return nil, nil, err
	}
	var items []render.Item
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, nil, fmt.Errorf("failed to parse items: %w", err)
	}
	return document, items, nil
}

func writeJSON(globals *Globals, v any) error {
	enc := json.NewEncoder(globals.stdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
