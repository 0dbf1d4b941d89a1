package render

import (
	"errors"
	"time"
)

// ErrUnsupportedFieldType is logged when a field carries a type the
// renderer has no visual for. Such fields are drawn as plain text.
var ErrUnsupportedFieldType = errors.New("unsupported field type")

// Field is a logical box on a page. Position and size are in one of the
// coordinate modes detected by DetectMode, with a top-left origin.
type Field struct {
	Page         int     `json:"page"`
	X            float64 `json:"x"`
	Y            float64 `json:"y"`
	Width        float64 `json:"width"`
	Height       float64 `json:"height"`
	Type         string  `json:"type,omitempty"`
	Name         string  `json:"name,omitempty"`
	Partner      string  `json:"partner,omitempty"`
	DefaultValue string  `json:"default_value,omitempty"`
}

// Signer identifies who filled a field and when.
type Signer struct {
	ID       int64     `json:"id"`
	Name     string    `json:"name,omitempty"`
	Email    string    `json:"email,omitempty"`
	SignedAt time.Time `json:"signed_at"`
	Reason   string    `json:"reason,omitempty"`

	// Carried for audit purposes only, never drawn.
	IP        string `json:"ip,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`
}

// Item is one value to draw.
type Item struct {
	Field  Field  `json:"field"`
	Value  string `json:"value"`
	Signer Signer `json:"signer"`
}

// Signature ID display modes.
const (
	IDModeHash = "hash"
	IDModeUUID = "uuid"
)

// Settings govern the metadata caption drawn beneath signature fields.
// AllowTypedTextSignatures is an intake policy for whoever accepts signer
// submissions; values already submitted are drawn either way.
type Settings struct {
	AddSignatureID           bool   `json:"add_signature_id" toml:"add_signature_id"`
	RequireSigningReason     bool   `json:"require_signing_reason" toml:"require_signing_reason"`
	AllowTypedTextSignatures bool   `json:"allow_typed_text_signatures" toml:"allow_typed_text_signatures"`
	Timezone                 string `json:"timezone" toml:"timezone"`
	Locale                   string `json:"locale" toml:"locale"`
	SignatureIDMode          string `json:"signature_id_mode" toml:"signature_id_mode"`
}

// Placement describes where a field was drawn, in PDF user space.
type Placement struct {
	Field      string   `json:"field"`
	Page       int      `json:"page"`
	Mode       Mode     `json:"mode"`
	Rect       Rect     `json:"rect"`
	Caption    []string `json:"caption,omitempty"`
	TextHeight float64  `json:"text_height"`
	Error      string   `json:"error,omitempty"`
}

// Skip records an item that produced no output.
type Skip struct {
	Field  string `json:"field"`
	Page   int    `json:"page"`
	Reason string `json:"reason"`
}

// Result is the outcome of a render pass.
type Result struct {
	PDF        []byte      `json:"-"`
	Placements []Placement `json:"placements"`
	Skipped    []Skip      `json:"skipped,omitempty"`
}

// FilterByPartner keeps the items meant for the given signer. Fields
// without a partner tag are kept for everyone.
func FilterByPartner(items []Item, name, email string) []Item {
	var out []Item
	for _, it := range items {
		p := it.Field.Partner
		if p == "" || (name != "" && p == name) || (email != "" && p == email) {
			out = append(out, it)
		}
	}
	return out
}
