package pdfio

import (
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// String formats text as a PDF text string. ASCII is written as an escaped
// literal, anything else as UTF-16BE with a byte order mark.
func String(text string) string {
	if !isASCII(text) {
		enc := unicode.UTF16(unicode.BigEndian, unicode.UseBOM).NewEncoder()
		res, _, err := transform.String(enc, text)
		if err == nil {
			return "<" + strings.ToUpper(hex.EncodeToString([]byte(res))) + ">"
		}
	}

	text = strings.ReplaceAll(text, "\\", "\\\\")
	text = strings.ReplaceAll(text, ")", "\\)")
	text = strings.ReplaceAll(text, "(", "\\(")
	text = strings.ReplaceAll(text, "\r", "\\r")
	return "(" + text + ")"
}

// DateTime formats t as a PDF date string, D:YYYYMMDDHHmmSS+HH'mm'.
func DateTime(t time.Time) string {
	_, offset := t.Zone()
	sign := "+"
	if offset < 0 {
		sign = "-"
		offset = -offset
	}
	return String(fmt.Sprintf("D:%s%s%02d'%02d'", t.Format("20060102150405"), sign, offset/3600, (offset%3600)/60))
}

// ParseDate reads a PDF date string. A trailing Z or a missing offset is
// taken as UTC.
func ParseDate(v string) (time.Time, error) {
	v = strings.TrimPrefix(v, "D:")
	v = strings.ReplaceAll(strings.TrimSuffix(v, "'"), "'", ":")
	for _, layout := range []string{"20060102150405Z07:00", "20060102150405Z07", "20060102150405"} {
		if t, err := time.Parse(layout, v); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid date %q", v)
}

// TextOperand encodes text for a Tj operator using a WinAnsi font.
// Characters outside the code page become '?'.
func TextOperand(text string) string {
	out := make([]byte, 0, len(text))
	for _, r := range text {
		if r < 0x20 {
			out = append(out, ' ')
			continue
		}
		b, ok := charmap.Windows1252.EncodeRune(r)
		if !ok {
			out = append(out, '?')
			continue
		}
		out = append(out, b)
	}
	return "<" + strings.ToUpper(hex.EncodeToString(out)) + ">"
}

func isASCII(s string) bool {
	for _, r := range s {
		if r > '\u007F' {
			return false
		}
	}
	return true
}
