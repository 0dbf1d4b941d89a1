package verify

import (
	"errors"
	"time"
)

// ErrorKind classifies why a signature did not verify.
type ErrorKind string

const (
	ParseFailed      ErrorKind = "ParseFailed"
	DigestMismatch   ErrorKind = "DigestMismatch"
	InvalidSignature ErrorKind = "InvalidSignature"
	UntrustedChain   ErrorKind = "UntrustedChain"
)

// ErrNoSignatures is returned for documents without signature fields.
var ErrNoSignatures = errors.New("no digital signature in document")

// Response is the verification report of one document.
type Response struct {
	DocumentInfo DocumentInfo `json:"document_info"`
	Signatures   []Signature  `json:"signatures"`
}

// Signature reports one signature field. Per-signature failures are
// recorded in ErrorKind and Error rather than returned.
type Signature struct {
	FieldName     string     `json:"field_name"`
	SignerName    string     `json:"signer_name"`
	SigningTime   *time.Time `json:"signing_time,omitempty"`
	Issuer        string     `json:"issuer"`
	IssuerCN      string     `json:"issuer_cn"`
	Subject       string     `json:"subject"`
	Serial        string     `json:"serial"`
	NotBefore     time.Time  `json:"not_before"`
	NotAfter      time.Time  `json:"not_after"`
	Email         string     `json:"email"`
	IsValid       bool       `json:"is_valid"`
	IsTrusted     bool       `json:"is_trusted"`
	TrustedAnchor string     `json:"trusted_anchor,omitempty"`
	Chain         []string   `json:"chain"`
	ErrorKind     ErrorKind  `json:"error_kind,omitempty"`
	Error         string     `json:"error,omitempty"`

	Info      SignatureInfo `json:"info"`
	Timestamp *Timestamp    `json:"timestamp,omitempty"`

	ByteRange           []int64 `json:"byte_range"`
	CoversWholeDocument bool    `json:"covers_whole_document"`
}

// SignatureInfo is the metadata of the signature dictionary.
type SignatureInfo struct {
	Name        string     `json:"name"`
	Reason      string     `json:"reason"`
	Location    string     `json:"location"`
	ContactInfo string     `json:"contact_info"`
	Date        *time.Time `json:"date,omitempty"`
}

// Timestamp is an RFC 3161 token embedded as an unsigned attribute.
type Timestamp struct {
	Time          time.Time `json:"time"`
	HashAlgorithm string    `json:"hash_algorithm"`
	HashMatches   bool      `json:"hash_matches"`
}

// DocumentInfo contains document information.
type DocumentInfo struct {
	Author   string `json:"author"`
	Creator  string `json:"creator"`
	Producer string `json:"producer"`
	Subject  string `json:"subject"`
	Title    string `json:"title"`

	Pages        int       `json:"pages"`
	Keywords     []string  `json:"keywords"`
	ModDate      time.Time `json:"mod_date"`
	CreationDate time.Time `json:"creation_date"`
}

func (s *Signature) fail(kind ErrorKind, err error) {
	s.ErrorKind = kind
	s.Error = err.Error()
}
