package sigvalue

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_Ink(t *testing.T) {
	v, err := Parse(`[[{"x":0,"y":0},{"x":1,"y":1}],[{"x":0.5,"y":0.25}]]`, "signature")
	require.NoError(t, err)
	assert.Equal(t, Ink, v.Kind)
	require.Len(t, v.Strokes, 2)
	assert.Equal(t, Point{X: 1, Y: 1}, v.Strokes[0][1])
	assert.False(t, v.IsEmpty())
}

func TestParse_InkFlatPoints(t *testing.T) {
	v, err := Parse(`[{"x":0.1,"y":0.2},{"x":0.3,"y":0.4}]`, "initials")
	require.NoError(t, err)
	assert.Equal(t, Ink, v.Kind)
	require.Len(t, v.Strokes, 1)
	assert.Len(t, v.Strokes[0], 2)
}

func TestParse_Object(t *testing.T) {
	tests := []struct {
		name  string
		raw   string
		ftype string
		want  Value
	}{
		{"text key", `{"text":"Jane Roe"}`, "text", Value{Kind: Text, Text: "Jane Roe"}},
		{"initials key", `{"initials":"JR"}`, "initials", Value{Kind: Text, Text: "JR"}},
		{"signature key", `{"signature":"Jane"}`, "signature", Value{Kind: Text, Text: "Jane"}},
		{"text wins over signature", `{"signature":"b","text":"a"}`, "signature", Value{Kind: Text, Text: "a"}},
		{"nested ink string", `{"signature":"[[{\"x\":0,\"y\":0}]]"}`, "signature", Value{Kind: Ink, Strokes: []Stroke{{{X: 0, Y: 0}}}}},
		{"nested ink array", `{"signature":[[{"x":1,"y":0}]]}`, "signature", Value{Kind: Ink, Strokes: []Stroke{{{X: 1, Y: 0}}}}},
		{"checkbox in object", `{"text":"TRUE"}`, "checkbox", Value{Kind: Checkbox, Checked: true}},
		{"empty text", `{"text":""}`, "text", Value{Kind: Empty}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.raw, tt.ftype)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParse_Plain(t *testing.T) {
	tests := []struct {
		raw   string
		ftype string
		want  Value
	}{
		{"Jane Roe", "text", Value{Kind: Text, Text: "Jane Roe"}},
		{"Jane Roe", "", Value{Kind: Text, Text: "Jane Roe"}},
		{"true", "checkbox", Value{Kind: Checkbox, Checked: true}},
		{"True", "CHECKBOX", Value{Kind: Checkbox, Checked: true}},
		{"false", "checkbox", Value{Kind: Checkbox}},
		{"", "checkbox", Value{Kind: Checkbox}},
		{"a, b,,c", "multiple", Value{Kind: Multiple, Items: []string{"a", "b", "c"}}},
		{"Option 2", "radio", Value{Kind: Radio, Text: "Option 2"}},
		{"12345", "cells", Value{Kind: Cells, Text: "12345"}},
		{" https://files.example.com/a.png ", "image", Value{Kind: Image, URL: "https://files.example.com/a.png"}},
		{"https://files.example.com/doc.pdf", "file", Value{Kind: File, URL: "https://files.example.com/doc.pdf"}},
		{"", "text", Value{Kind: Empty}},
		{"   ", "signature", Value{Kind: Empty}},
	}
	for _, tt := range tests {
		t.Run(tt.ftype+"/"+tt.raw, func(t *testing.T) {
			got, err := Parse(tt.raw, tt.ftype)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParse_MultipleJSONArray(t *testing.T) {
	v, err := Parse(`["red", "green"]`, "multiple")
	require.NoError(t, err)
	assert.Equal(t, Value{Kind: Multiple, Items: []string{"red", "green"}}, v)
}

func TestParse_Malformed(t *testing.T) {
	tests := []struct {
		raw   string
		ftype string
	}{
		{`[not json`, "signature"},
		{`{"text":`, "text"},
		{`{"other":"x"}`, "text"},
		{`{"text":42}`, "text"},
		{`["a","b"]`, "signature"},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := Parse(tt.raw, tt.ftype)
			require.ErrorIs(t, err, ErrMalformedPayload)
			assert.Equal(t, Text, got.Kind)
			assert.Equal(t, tt.raw, got.Text)
		})
	}
}

func TestIsEmpty(t *testing.T) {
	assert.True(t, Value{}.IsEmpty())
	assert.True(t, Value{Kind: Ink, Strokes: []Stroke{{}}}.IsEmpty())
	assert.True(t, Value{Kind: Text}.IsEmpty())
	assert.True(t, Value{Kind: Image}.IsEmpty())
	assert.False(t, Value{Kind: Checkbox}.IsEmpty())
	assert.False(t, Value{Kind: Radio, Text: "x"}.IsEmpty())
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "ink", Ink.String())
	assert.Equal(t, "kind(42)", Kind(42).String())
}
