// Package pdfio appends incremental updates to existing PDF documents.
//
// An Update copies the original bytes untouched, appends new or replaced
// objects after them and finishes with a cross-reference section (classic
// table or xref stream, matching the input) and a trailer pointing back at
// the previous section.
package pdfio

import (
	"bytes"
	"fmt"
	"io"
	"sort"
	"strconv"

	"github.com/digitorus/pdf"
	"github.com/mattetti/filebuffer"
)

type xrefKind int

const (
	xrefTable xrefKind = iota
	xrefStream
)

type xrefEntry struct {
	ID     uint32
	Gen    uint16
	Offset int64
}

// Update accumulates appended objects on top of an existing document.
type Update struct {
	Reader *pdf.Reader

	input    []byte
	output   *filebuffer.Buffer
	nextID   uint32
	prevXref int64
	kind     xrefKind
	entries  map[uint32]xrefEntry
	finished bool

	// CompressLevel is the zlib level used for streams added with AddStream.
	// Zero leaves streams uncompressed.
	CompressLevel int
}

// Open parses data and prepares an incremental update on top of it.
func Open(data []byte) (u *Update, err error) {
	defer Recover(&err)

	rdr, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, &StructureError{Msg: "failed to parse document", Err: err}
	}

	prev, kind, err := lastXref(data)
	if err != nil {
		return nil, err
	}

	size := rdr.Trailer().Key("Size").Int64()
	if size <= 0 {
		return nil, structuref("trailer has no /Size")
	}

	u = &Update{
		Reader:   rdr,
		input:    data,
		output:   filebuffer.New([]byte{}),
		nextID:   uint32(size),
		prevXref: prev,
		kind:     kind,
		entries:  make(map[uint32]xrefEntry),
	}

	if _, err := u.output.Write(data); err != nil {
		return nil, err
	}
	// Appended sections always start on a fresh line.
	if len(data) > 0 && data[len(data)-1] != '\n' {
		if _, err := u.output.Write([]byte("\n")); err != nil {
			return nil, err
		}
	}
	return u, nil
}

// Recover converts a panic raised by the PDF reader on malformed input into
// a StructureError stored in *err.
func Recover(err *error) {
	if r := recover(); r != nil {
		if e, ok := r.(error); ok {
			*err = &StructureError{Msg: "malformed document", Err: e}
			return
		}
		*err = structuref("malformed document: %v", r)
	}
}

// lastXref finds the offset named by the final startxref keyword and
// reports whether it points at a classic table or an xref stream.
func lastXref(data []byte) (int64, xrefKind, error) {
	idx := bytes.LastIndex(data, []byte("startxref"))
	if idx < 0 {
		return 0, 0, structuref("startxref not found")
	}
	rest := bytes.TrimLeft(data[idx+len("startxref"):], " \t\r\n")
	end := 0
	for end < len(rest) && rest[end] >= '0' && rest[end] <= '9' {
		end++
	}
	offset, err := strconv.ParseInt(string(rest[:end]), 10, 64)
	if err != nil || offset < 0 || offset >= int64(len(data)) {
		return 0, 0, structuref("invalid startxref offset")
	}
	if bytes.HasPrefix(data[offset:], []byte("xref")) {
		return offset, xrefTable, nil
	}
	return offset, xrefStream, nil
}

// Len returns the current size of the output.
func (u *Update) Len() int64 {
	return int64(u.output.Buff.Len())
}

// NextID reports the object number the next AddObject call will use.
func (u *Update) NextID() uint32 {
	return u.nextID
}

// AddObject appends body as a new indirect object and returns its number.
func (u *Update) AddObject(body []byte) (uint32, error) {
	id := u.nextID
	u.nextID++
	if err := u.writeObject(id, 0, body); err != nil {
		return 0, fmt.Errorf("failed to add object %d: %w", id, err)
	}
	return id, nil
}

// UpdateObject appends a replacement for an existing object.
func (u *Update) UpdateObject(id uint32, gen uint16, body []byte) error {
	if id == 0 || id >= u.nextID {
		return structuref("object %d does not exist", id)
	}
	if err := u.writeObject(id, gen, body); err != nil {
		return fmt.Errorf("failed to update object %d: %w", id, err)
	}
	return nil
}

// BodyOffset returns the absolute offset of the first byte of the body of
// an object written by this update.
func (u *Update) BodyOffset(id uint32) (int64, bool) {
	e, ok := u.entries[id]
	if !ok {
		return 0, false
	}
	return e.Offset + int64(len(objectHeader(e.ID, e.Gen))), true
}

func objectHeader(id uint32, gen uint16) string {
	return strconv.FormatUint(uint64(id), 10) + " " + strconv.FormatUint(uint64(gen), 10) + " obj\n"
}

func (u *Update) writeObject(id uint32, gen uint16, body []byte) error {
	if u.finished {
		return fmt.Errorf("update already finished")
	}
	offset := u.Len()
	if _, err := io.WriteString(u.output, objectHeader(id, gen)); err != nil {
		return err
	}
	if _, err := u.output.Write(body); err != nil {
		return err
	}
	if _, err := io.WriteString(u.output, "\nendobj\n"); err != nil {
		return err
	}
	u.entries[id] = xrefEntry{ID: id, Gen: gen, Offset: offset}
	return nil
}

// Changed reports whether any object has been written.
func (u *Update) Changed() bool {
	return len(u.entries) > 0
}

// Finish writes the cross-reference section and trailer and returns the
// complete document. Without any written object the input is returned as is.
func (u *Update) Finish() ([]byte, error) {
	if u.finished {
		return nil, fmt.Errorf("update already finished")
	}
	if !u.Changed() {
		u.finished = true
		return u.input, nil
	}

	var err error
	switch u.kind {
	case xrefStream:
		err = u.writeXrefStream()
	default:
		err = u.writeXrefTable()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to write xref: %w", err)
	}
	u.finished = true

	out := u.output.Buff.Bytes()
	result := make([]byte, len(out))
	copy(result, out)
	return result, nil
}

func (u *Update) sortedEntries() []xrefEntry {
	list := make([]xrefEntry, 0, len(u.entries))
	for _, e := range u.entries {
		list = append(list, e)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	return list
}

// subsections groups entries into runs of consecutive object numbers.
func subsections(entries []xrefEntry) [][]xrefEntry {
	var out [][]xrefEntry
	for i, e := range entries {
		if i == 0 || e.ID != entries[i-1].ID+1 {
			out = append(out, nil)
		}
		out[len(out)-1] = append(out[len(out)-1], e)
	}
	return out
}
