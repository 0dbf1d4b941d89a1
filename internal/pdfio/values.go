package pdfio

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/digitorus/pdf"
)

const maxValueDepth = 32

// Ref formats an indirect reference.
func Ref(id uint32) string {
	return strconv.FormatUint(uint64(id), 10) + " 0 R"
}

// RefOf formats an indirect reference to the object v was loaded from.
func RefOf(v pdf.Value) string {
	ptr := v.GetPtr()
	return fmt.Sprintf("%d %d R", ptr.GetID(), ptr.GetGen())
}

// ObjectID returns the object number and generation v was loaded from.
func ObjectID(v pdf.Value) (uint32, uint16) {
	ptr := v.GetPtr()
	return uint32(ptr.GetID()), uint16(ptr.GetGen())
}

// IsIndirect reports whether v, read as an entry of owner, is stored in a
// separate object.
func IsIndirect(v, owner pdf.Value) bool {
	return v.GetPtr() != owner.GetPtr()
}

// WriteValue serializes v as it appears inside owner. Values stored in
// another object are written as references, everything else inline.
func WriteValue(w *bytes.Buffer, v, owner pdf.Value) error {
	return writeValue(w, v, owner, 0)
}

// WriteDictEntries writes every " /Key value" pair of dict except the
// skipped keys. The caller writes the surrounding << >>.
func WriteDictEntries(w *bytes.Buffer, dict pdf.Value, skip ...string) error {
	for _, key := range dict.Keys() {
		if contains(skip, key) {
			continue
		}
		w.WriteString(" ")
		w.WriteString(Name(key))
		w.WriteString(" ")
		if err := writeValue(w, dict.Key(key), dict, 1); err != nil {
			return fmt.Errorf("failed to write /%s: %w", key, err)
		}
	}
	return nil
}

func writeValue(w *bytes.Buffer, v, owner pdf.Value, depth int) error {
	if depth > maxValueDepth {
		return structuref("value nesting exceeds %d levels", maxValueDepth)
	}
	if IsIndirect(v, owner) {
		w.WriteString(RefOf(v))
		return nil
	}

	switch v.Kind() {
	case pdf.Null:
		w.WriteString("null")
	case pdf.Bool:
		w.WriteString(strconv.FormatBool(v.Bool()))
	case pdf.Integer:
		w.WriteString(strconv.FormatInt(v.Int64(), 10))
	case pdf.Real:
		w.WriteString(FormatNumber(v.Float64()))
	case pdf.String:
		w.WriteString("<" + hex.EncodeToString([]byte(v.RawString())) + ">")
	case pdf.Name:
		w.WriteString(Name(v.Name()))
	case pdf.Array:
		w.WriteString("[")
		for i := 0; i < v.Len(); i++ {
			if i > 0 {
				w.WriteString(" ")
			}
			if err := writeValue(w, v.Index(i), v, depth+1); err != nil {
				return err
			}
		}
		w.WriteString("]")
	case pdf.Dict:
		w.WriteString("<<")
		for _, key := range v.Keys() {
			w.WriteString(" " + Name(key) + " ")
			if err := writeValue(w, v.Key(key), v, depth+1); err != nil {
				return err
			}
		}
		w.WriteString(" >>")
	default:
		// Streams are always indirect and caught above.
		return structuref("cannot inline value of kind %v", v.Kind())
	}
	return nil
}

// Name formats a PDF name, escaping delimiters and non-printable bytes.
func Name(s string) string {
	var b bytes.Buffer
	b.WriteByte('/')
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c < 0x21 || c > 0x7e || bytes.IndexByte([]byte("()<>[]{}/%#"), c) >= 0 {
			fmt.Fprintf(&b, "#%02X", c)
			continue
		}
		b.WriteByte(c)
	}
	return b.String()
}

// FormatNumber writes a real with at most four decimals and no exponent.
func FormatNumber(f float64) string {
	s := strconv.FormatFloat(f, 'f', 4, 64)
	s = strings.TrimRight(s, "0")
	s = strings.TrimSuffix(s, ".")
	if s == "-0" || s == "" {
		return "0"
	}
	return s
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
