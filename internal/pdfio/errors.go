package pdfio

import "fmt"

// StructureError reports a malformed input PDF, a missing page, or a
// placeholder that could not be found again after serialization.
type StructureError struct {
	Msg string
	Err error
}

func (e *StructureError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("pdf structure: %s: %v", e.Msg, e.Err)
	}
	return "pdf structure: " + e.Msg
}

func (e *StructureError) Unwrap() error {
	return e.Err
}

func structuref(format string, args ...any) error {
	return &StructureError{Msg: fmt.Sprintf(format, args...)}
}
