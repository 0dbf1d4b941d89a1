// Package fonts describes the standard fonts used by rendered fields and
// measures text set in them.
//
// Text is drawn with the base-14 Helvetica and Times faces, which every
// viewer provides without embedding. Widths are measured with the metrics
// of the Go fonts, whose proportions are close enough to centre captions
// and typed signatures.
package fonts

import (
	"fmt"
	"sync"
	"unicode/utf8"

	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goitalic"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/sfnt"
	"golang.org/x/image/math/fixed"
	"golang.org/x/text/encoding/charmap"
)

// Face selects one of the fonts available to the renderer.
type Face int

const (
	// Sans is Helvetica, used for field values and captions.
	Sans Face = iota
	// Script is Times Italic, used for typed signatures.
	Script
)

// Font is a font resource that can be referenced from page content.
type Font struct {
	Resource string // resource name in the page /Font dictionary, without slash
	BaseFont string
	Metrics  *Metrics
}

// Dict returns the font dictionary to store in the page resources.
func (f *Font) Dict() string {
	return fmt.Sprintf("<< /Type /Font /Subtype /Type1 /BaseFont /%s /Encoding /WinAnsiEncoding >>", f.BaseFont)
}

// Width returns the width of text in points at size.
func (f *Font) Width(text string, size float64) float64 {
	return f.Metrics.StringWidth(text, size)
}

var (
	loadOnce sync.Once
	loaded   map[Face]*Font
)

// Get returns the font for face. Unknown faces fall back to Sans.
func Get(face Face) *Font {
	loadOnce.Do(func() {
		loaded = map[Face]*Font{
			Sans:   {Resource: "SCHelv", BaseFont: "Helvetica", Metrics: mustMetrics(goregular.TTF)},
			Script: {Resource: "SCTimes", BaseFont: "Times-Italic", Metrics: mustMetrics(goitalic.TTF)},
		}
	})
	if f, ok := loaded[face]; ok {
		return f
	}
	return loaded[Sans]
}

// All returns every font in resource order.
func All() []*Font {
	return []*Font{Get(Sans), Get(Script)}
}

func mustMetrics(data []byte) *Metrics {
	m, err := ParseTTFMetrics(data)
	if err != nil {
		// The embedded Go fonts always parse; a nil Metrics approximates.
		return nil
	}
	return m
}

// Metrics holds advance widths for the characters of the WinAnsi code
// page, keyed by rune.
type Metrics struct {
	UnitsPerEm  int
	GlyphWidths map[rune]int
	// Fallback is the advance of '?', which is what content streams show
	// for runes outside the code page.
	Fallback int
}

// Encodable reports whether r can be shown by a WinAnsi-encoded base-14
// font.
func Encodable(r rune) bool {
	_, ok := charmap.Windows1252.EncodeRune(r)
	return ok
}

// ParseTTFMetrics parses a TrueType font and measures the glyph of every
// printable byte of the WinAnsi code page.
func ParseTTFMetrics(data []byte) (*Metrics, error) {
	f, err := sfnt.Parse(data)
	if err != nil {
		return nil, err
	}

	upem := f.UnitsPerEm()
	ppem := fixed.Int26_6(upem) << 6
	m := &Metrics{UnitsPerEm: int(upem), GlyphWidths: make(map[rune]int)}

	var buf sfnt.Buffer
	for b := 0x20; b <= 0xFF; b++ {
		r := charmap.Windows1252.DecodeByte(byte(b))
		if r == utf8.RuneError {
			continue
		}
		idx, err := f.GlyphIndex(&buf, r)
		if err != nil || idx == 0 {
			continue
		}
		adv, err := f.GlyphAdvance(&buf, idx, ppem, font.HintingNone)
		if err != nil {
			continue
		}
		m.GlyphWidths[r] = int(adv >> 6)
	}

	m.Fallback = m.UnitsPerEm / 2
	if w, ok := m.GlyphWidths['?']; ok {
		m.Fallback = w
	}
	return m, nil
}

// StringWidth returns the width of text in points at fontSize, measured
// the way the text is encoded: control characters as spaces and runes
// outside the code page as '?'.
func (m *Metrics) StringWidth(text string, fontSize float64) float64 {
	if m == nil || m.UnitsPerEm == 0 {
		return float64(utf8.RuneCountInString(text)) * fontSize * 0.5
	}

	total := 0
	for _, r := range text {
		if r < 0x20 {
			r = ' '
		}
		w, ok := m.GlyphWidths[r]
		if !ok {
			w = m.Fallback
		}
		total += w
	}
	return float64(total) / float64(m.UnitsPerEm) * fontSize
}
