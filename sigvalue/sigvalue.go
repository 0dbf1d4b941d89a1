// Package sigvalue decodes the values signers submit for form fields.
//
// Values travel as opaque strings. A string starting with '[' is an ink
// payload (an array of strokes of {"x","y"} points in 0..1 space), a string
// starting with '{' is an object carrying the value under "text",
// "initials" or "signature", and anything else is the plain value. The
// field's declared type decides how a plain value is interpreted.
package sigvalue

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrMalformedPayload is returned alongside a plain-text fallback when a
// JSON payload cannot be decoded.
var ErrMalformedPayload = errors.New("malformed signature payload")

// Kind tags the variant held by a Value.
type Kind int

const (
	Empty Kind = iota
	Text
	Checkbox
	Radio
	Multiple
	Cells
	Image
	File
	Ink
)

var kindNames = [...]string{"empty", "text", "checkbox", "radio", "multiple", "cells", "image", "file", "ink"}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Point is a position in normalized 0..1 space. The renderer maps (0,0)
// to the bottom-left corner of the drawing area and y grows upwards.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Stroke is one continuous pen movement.
type Stroke []Point

// Value is a signer's contribution to one field.
type Value struct {
	Kind    Kind
	Text    string   // Text, Radio, Cells
	Checked bool     // Checkbox
	Items   []string // Multiple
	URL     string   // Image, File
	Strokes []Stroke // Ink
}

// IsEmpty reports whether there is nothing to draw.
func (v Value) IsEmpty() bool {
	switch v.Kind {
	case Empty:
		return true
	case Ink:
		for _, s := range v.Strokes {
			if len(s) > 0 {
				return false
			}
		}
		return true
	case Multiple:
		return len(v.Items) == 0
	case Checkbox:
		return false
	case Image, File:
		return v.URL == ""
	}
	return v.Text == ""
}

// Parse decodes raw for a field of the given semantic type. On malformed
// JSON the returned Value holds raw as plain text and the error wraps
// ErrMalformedPayload; callers may render the value anyway.
func Parse(raw, fieldType string) (Value, error) {
	fieldType = strings.ToLower(strings.TrimSpace(fieldType))
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		if fieldType == "checkbox" {
			return Value{Kind: Checkbox}, nil
		}
		return Value{Kind: Empty}, nil
	}

	switch trimmed[0] {
	case '[':
		if strokes, err := parseInk(trimmed); err == nil {
			return Value{Kind: Ink, Strokes: strokes}, nil
		}
		if fieldType == "multiple" {
			var items []string
			if err := json.Unmarshal([]byte(trimmed), &items); err == nil {
				return Value{Kind: Multiple, Items: compact(items)}, nil
			}
		}
		return plain(raw, fieldType), fmt.Errorf("%w: not an ink payload", ErrMalformedPayload)

	case '{':
		v, err := parseObject(trimmed, fieldType)
		if err != nil {
			return plain(raw, fieldType), err
		}
		return v, nil
	}

	return plain(raw, fieldType), nil
}

func parseInk(s string) ([]Stroke, error) {
	var strokes []Stroke
	if err := json.Unmarshal([]byte(s), &strokes); err != nil {
		// A flat list of points is a single stroke.
		var single Stroke
		if json.Unmarshal([]byte(s), &single) != nil {
			return nil, err
		}
		return []Stroke{single}, nil
	}
	return strokes, nil
}

var objectKeys = []string{"text", "initials", "signature"}

func parseObject(s, fieldType string) (Value, error) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal([]byte(s), &obj); err != nil {
		return Value{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}

	for _, key := range objectKeys {
		msg, ok := obj[key]
		if !ok {
			continue
		}
		// The payload may embed ink directly or as a string.
		if strokes, err := parseInk(string(msg)); err == nil {
			return Value{Kind: Ink, Strokes: strokes}, nil
		}
		var text string
		if err := json.Unmarshal(msg, &text); err != nil {
			return Value{}, fmt.Errorf("%w: %q is not a string", ErrMalformedPayload, key)
		}
		if t := strings.TrimSpace(text); strings.HasPrefix(t, "[") {
			if strokes, err := parseInk(t); err == nil {
				return Value{Kind: Ink, Strokes: strokes}, nil
			}
		}
		if text == "" {
			return Value{Kind: Empty}, nil
		}
		return plain(text, fieldType), nil
	}
	return Value{}, fmt.Errorf("%w: no text, initials or signature key", ErrMalformedPayload)
}

// plain interprets a textual value according to the field type.
func plain(s, fieldType string) Value {
	switch fieldType {
	case "checkbox":
		return Value{Kind: Checkbox, Checked: strings.EqualFold(strings.TrimSpace(s), "true")}
	case "multiple":
		return Value{Kind: Multiple, Items: compact(strings.Split(s, ","))}
	case "radio":
		return Value{Kind: Radio, Text: s}
	case "cells":
		return Value{Kind: Cells, Text: s}
	case "image":
		return Value{Kind: Image, URL: strings.TrimSpace(s)}
	case "file":
		return Value{Kind: File, URL: strings.TrimSpace(s)}
	}
	return Value{Kind: Text, Text: s}
}

func compact(items []string) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		if it = strings.TrimSpace(it); it != "" {
			out = append(out, it)
		}
	}
	return out
}
