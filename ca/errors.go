package ca

import (
	"errors"
	"fmt"
)

var (
	// ErrCANotInitialized is returned when the root and intermediate
	// material could not be created or loaded.
	ErrCANotInitialized = errors.New("certificate authority is not initialized")

	// ErrSigningDisabled is returned by callers running without a CA.
	ErrSigningDisabled = errors.New("signing is disabled: certificate authority unavailable")

	errBadSealedKey = errors.New("malformed sealed key")
)

// CertIssuanceError reports a failure while minting an end-entity
// certificate.
type CertIssuanceError struct {
	Msg string
	Err error
}

func (e *CertIssuanceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("certificate issuance failed: %s: %v", e.Msg, e.Err)
	}
	return "certificate issuance failed: " + e.Msg
}

func (e *CertIssuanceError) Unwrap() error {
	return e.Err
}

func notInitialized(msg string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrCANotInitialized, msg, err)
}
