package pdfio

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/digitorus/pdf"
	"github.com/esignkit/signcore/internal/testpdf"
)

func reopen(t *testing.T, data []byte) *pdf.Reader {
	t.Helper()
	rdr, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("failed to reopen updated document: %v", err)
	}
	return rdr
}

func TestIncrementalUpdate(t *testing.T) {
	tests := []struct {
		name string
		opts testpdf.Options
	}{
		{"xref table", testpdf.Options{}},
		{"xref table with info", testpdf.Options{Info: true}},
		{"xref stream", testpdf.Options{XRefStream: true}},
		{"xref stream with info", testpdf.Options{XRefStream: true, Info: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			input := testpdf.Build(tt.opts)
			u, err := Open(input)
			if err != nil {
				t.Fatalf("Open: %v", err)
			}

			extra, err := u.AddObject([]byte("<< /Marker (hello) >>"))
			if err != nil {
				t.Fatalf("AddObject: %v", err)
			}

			root := u.Reader.Trailer().Key("Root")
			id, gen := ObjectID(root)
			var body bytes.Buffer
			body.WriteString("<<")
			if err := WriteDictEntries(&body, root); err != nil {
				t.Fatalf("WriteDictEntries: %v", err)
			}
			body.WriteString(" /Extra " + Ref(extra) + " >>")
			if err := u.UpdateObject(id, gen, body.Bytes()); err != nil {
				t.Fatalf("UpdateObject: %v", err)
			}

			out, err := u.Finish()
			if err != nil {
				t.Fatalf("Finish: %v", err)
			}
			if !bytes.HasPrefix(out, input) {
				t.Fatal("original bytes were not preserved")
			}

			rdr := reopen(t, out)
			if got := rdr.Trailer().Key("Root").Key("Extra").Key("Marker").Text(); got != "hello" {
				t.Errorf("marker = %q, want hello", got)
			}
			if rdr.NumPage() != 1 {
				t.Errorf("NumPage = %d, want 1", rdr.NumPage())
			}
			if tt.opts.Info {
				if got := rdr.Trailer().Key("Info").Key("Producer").Text(); got != "testpdf" {
					t.Errorf("Info lost: producer = %q", got)
				}
			}
		})
	}
}

func TestFinishWithoutChanges(t *testing.T) {
	input := testpdf.Build(testpdf.Options{})
	u, err := Open(input)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	out, err := u.Finish()
	if err != nil {
		t.Fatalf("Finish: %v", err)
	}
	if !bytes.Equal(out, input) {
		t.Error("unchanged document should be returned as is")
	}
	if _, err := u.Finish(); err == nil {
		t.Error("second Finish should fail")
	}
}

func TestOpenMalformed(t *testing.T) {
	for _, input := range [][]byte{
		nil,
		[]byte("not a pdf"),
		[]byte("%PDF-1.7\n1 0 obj\n<< >>\nendobj\nstartxref\n999999\n%%EOF\n"),
	} {
		_, err := Open(input)
		var se *StructureError
		if !errors.As(err, &se) {
			t.Errorf("Open(%q) error = %v, want StructureError", truncate(input), err)
		}
	}
}

func truncate(b []byte) string {
	if len(b) > 20 {
		return string(b[:20])
	}
	return string(b)
}

func TestBodyOffset(t *testing.T) {
	u, err := Open(testpdf.Build(testpdf.Options{}))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	id, err := u.AddObject([]byte("<< /Probe true >>"))
	if err != nil {
		t.Fatalf("AddObject: %v", err)
	}
	off, ok := u.BodyOffset(id)
	if !ok {
		t.Fatal("offset not recorded")
	}
	out, err := u.Finish()
	if err != nil {
		t.Fatalf("Finish: %v", err)
	}
	if !bytes.HasPrefix(out[off:], []byte("<< /Probe true >>")) {
		t.Errorf("body offset %d points at %q", off, out[off:off+16])
	}
	if _, ok := u.BodyOffset(1); ok {
		t.Error("untouched object should have no offset")
	}
}

func TestPageAndMediaBox(t *testing.T) {
	tests := []struct {
		name string
		opts testpdf.Options
		want Box
	}{
		{"letter", testpdf.Options{}, Letter},
		{"inherited", testpdf.Options{InheritMediaBox: true, Width: 1224, Height: 1584}, Box{0, 0, 1224, 1584}},
		{"a4", testpdf.Options{Width: 595.28, Height: 841.89}, Box{0, 0, 595.28, 841.89}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u, err := Open(testpdf.Build(tt.opts))
			if err != nil {
				t.Fatalf("Open: %v", err)
			}
			page, err := u.Page(1)
			if err != nil {
				t.Fatalf("Page: %v", err)
			}
			if got := MediaBox(page); got != tt.want {
				t.Errorf("MediaBox = %+v, want %+v", got, tt.want)
			}
			if _, err := u.Page(2); err == nil {
				t.Error("page 2 should be out of range")
			}
		})
	}
}

func TestName(t *testing.T) {
	tests := map[string]string{
		"Type":        "/Type",
		"Signature 1": "/Signature#201",
		"a/b":         "/a#2Fb",
		"50%":         "/50#25",
	}
	for in, want := range tests {
		if got := Name(in); got != want {
			t.Errorf("Name(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestFormatNumber(t *testing.T) {
	tests := map[float64]string{
		0:        "0",
		612:      "612",
		61.2:     "61.2",
		-3.5:     "-3.5",
		0.00001:  "0",
		183.6001: "183.6001",
	}
	for in, want := range tests {
		if got := FormatNumber(in); got != want {
			t.Errorf("FormatNumber(%v) = %q, want %q", in, got, want)
		}
	}
}

func TestString(t *testing.T) {
	if got := String("a(b)\\c"); got != `(a\(b\)\\c)` {
		t.Errorf("String = %s", got)
	}
	if got := String("é"); got != "<FEFF00E9>" {
		t.Errorf("String(é) = %s", got)
	}
	if got := TextOperand("Ký"); got != "<4BFD>" {
		t.Errorf("TextOperand = %s", got)
	}
	if got := TextOperand("日"); got != "<3F>" {
		t.Errorf("TextOperand(unencodable) = %s", got)
	}
}

func TestDateTime(t *testing.T) {
	loc := time.FixedZone("ICT", 7*3600)
	d := time.Date(2024, 3, 5, 14, 30, 0, 0, loc)
	got := DateTime(d)
	if got != "(D:20240305143000+07'00')" {
		t.Fatalf("DateTime = %s", got)
	}

	parsed, err := ParseDate(strings.Trim(got, "()"))
	if err != nil {
		t.Fatalf("ParseDate: %v", err)
	}
	if !parsed.Equal(d) {
		t.Errorf("ParseDate = %v, want %v", parsed, d)
	}

	india := time.Date(2024, 1, 1, 0, 0, 0, 0, time.FixedZone("IST", 5*3600+1800))
	parsed, err = ParseDate(strings.Trim(DateTime(india), "()"))
	if err != nil || !parsed.Equal(india) {
		t.Errorf("half hour offset: %v %v", parsed, err)
	}
}
