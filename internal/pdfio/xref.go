package pdfio

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"io"
	"strconv"

	"github.com/digitorus/pdf"
)

// writeXrefTable appends a classic cross-reference table followed by the
// trailer dictionary.
func (u *Update) writeXrefTable() error {
	start := u.Len()

	var buf bytes.Buffer
	buf.WriteString("xref\n")
	for _, section := range subsections(u.sortedEntries()) {
		fmt.Fprintf(&buf, "%d %d\n", section[0].ID, len(section))
		for _, e := range section {
			// Each entry is exactly 20 bytes.
			fmt.Fprintf(&buf, "%010d %05d n\r\n", e.Offset, e.Gen)
		}
	}

	buf.WriteString("trailer\n")
	buf.WriteString("<<")
	u.writeTrailerEntries(&buf)
	buf.WriteString(" >>\n")

	fmt.Fprintf(&buf, "startxref\n%d\n%%%%EOF\n", start)
	_, err := u.output.Write(buf.Bytes())
	return err
}

// writeXrefStream appends an xref stream object carrying the trailer
// entries, for documents whose previous section is a stream.
func (u *Update) writeXrefStream() error {
	id := u.nextID
	u.nextID++
	start := u.Len()
	u.entries[id] = xrefEntry{ID: id, Offset: start}

	entries := u.sortedEntries()

	var rows bytes.Buffer
	for _, e := range entries {
		writeXrefStreamLine(&rows, 1, e.Offset, e.Gen)
	}

	var packed bytes.Buffer
	w := zlib.NewWriter(&packed)
	if _, err := w.Write(rows.Bytes()); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}

	var buf bytes.Buffer
	buf.WriteString(objectHeader(id, 0))
	buf.WriteString("<< /Type /XRef")
	buf.WriteString(" /W [1 4 1]")
	buf.WriteString(" /Index [")
	for _, section := range subsections(entries) {
		fmt.Fprintf(&buf, " %d %d", section[0].ID, len(section))
	}
	buf.WriteString(" ]")
	u.writeTrailerEntries(&buf)
	buf.WriteString(" /Filter /FlateDecode")
	fmt.Fprintf(&buf, " /Length %d >>\n", packed.Len())
	buf.WriteString("stream\n")
	buf.Write(packed.Bytes())
	buf.WriteString("\nendstream\nendobj\n")

	fmt.Fprintf(&buf, "startxref\n%d\n%%%%EOF\n", start)
	_, err := u.output.Write(buf.Bytes())
	return err
}

func writeXrefStreamLine(b *bytes.Buffer, kind byte, offset int64, gen uint16) {
	b.WriteByte(kind)
	var off [4]byte
	binary.BigEndian.PutUint32(off[:], uint32(offset))
	b.Write(off[:])
	b.WriteByte(byte(gen))
}

// writeTrailerEntries writes /Size, /Root, /Prev and, when present in the
// previous trailer, /Info and /ID.
func (u *Update) writeTrailerEntries(w io.Writer) {
	trailer := u.Reader.Trailer()

	fmt.Fprintf(w, " /Size %d", u.nextID)

	root := trailer.Key("Root").GetPtr()
	fmt.Fprintf(w, " /Root %d %d R", root.GetID(), root.GetGen())

	if info := trailer.Key("Info"); !info.IsNull() && info.GetPtr() != trailer.GetPtr() {
		ptr := info.GetPtr()
		fmt.Fprintf(w, " /Info %d %d R", ptr.GetID(), ptr.GetGen())
	}

	if id := trailer.Key("ID"); id.Kind() == pdf.Array && id.Len() == 2 {
		fmt.Fprintf(w, " /ID [<%s> <%s>]",
			hex.EncodeToString([]byte(id.Index(0).RawString())),
			hex.EncodeToString([]byte(id.Index(1).RawString())))
	}

	io.WriteString(w, " /Prev "+strconv.FormatInt(u.prevXref, 10))
}
