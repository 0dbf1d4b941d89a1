package sign

import (
	"bytes"
	"encoding/hex"
	"fmt"

	"github.com/esignkit/signcore/internal/pdfio"
)

// byteRange returns [0, start of /Contents, end of /Contents, rest].
func (sc *signContext) byteRange(size int64) [4]int64 {
	return [4]int64{0, sc.contentsStart, sc.contentsEnd, size - sc.contentsEnd}
}

// updateByteRange overwrites the ByteRange placeholder in out.
func (sc *signContext) updateByteRange(out []byte) error {
	start, end := sc.byteRangeStart, sc.byteRangeStart+int64(len(byteRangePlaceholder))
	if end > int64(len(out)) || !bytes.Equal(out[start:end], []byte(byteRangePlaceholder)) {
		return &pdfio.StructureError{Msg: "ByteRange placeholder not found"}
	}

	br := sc.byteRange(int64(len(out)))
	value := fmt.Sprintf("[%d %010d %010d %010d]", br[0], br[1], br[2], br[3])
	if len(value) != len(byteRangePlaceholder) {
		return &pdfio.StructureError{Msg: "document too large for ByteRange placeholder"}
	}
	copy(out[start:end], value)
	return nil
}

// signedContent concatenates the two covered ranges.
func (sc *signContext) signedContent(out []byte) []byte {
	content := make([]byte, 0, int64(len(out))-(sc.contentsEnd-sc.contentsStart))
	content = append(content, out[:sc.contentsStart]...)
	content = append(content, out[sc.contentsEnd:]...)
	return content
}

// replaceSignature writes the upper-case hex of der into the /Contents
// placeholder, right-padded with zeros.
func (sc *signContext) replaceSignature(out, der []byte) error {
	if !sc.placeholderIntact(out) {
		return &pdfio.StructureError{Msg: "Contents placeholder not found"}
	}

	dst := bytes.ToUpper([]byte(hex.EncodeToString(der)))
	if len(dst) > 2*sc.size {
		return &CmsError{
			Kind: PlaceholderTooSmall,
			Msg:  fmt.Sprintf("signature needs %d bytes, placeholder holds %d", len(der), sc.size),
		}
	}
	copy(out[sc.contentsStart+1:], dst)
	return nil
}

func (sc *signContext) placeholderIntact(out []byte) bool {
	if sc.contentsEnd > int64(len(out)) || sc.contentsEnd-sc.contentsStart != int64(2*sc.size+2) {
		return false
	}
	if out[sc.contentsStart] != '<' || out[sc.contentsEnd-1] != '>' {
		return false
	}
	for _, c := range out[sc.contentsStart+1 : sc.contentsEnd-1] {
		if c != '0' {
			return false
		}
	}
	return true
}
