package verify

import (
	"strings"

	"github.com/digitorus/pdf"
	"github.com/esignkit/signcore/internal/pdfio"
)

// parseDocumentInfo reads the document information dictionary.
func parseDocumentInfo(v pdf.Value, info *DocumentInfo) {
	info.Author = v.Key("Author").Text()
	info.Creator = v.Key("Creator").Text()
	info.Producer = v.Key("Producer").Text()
	info.Subject = v.Key("Subject").Text()
	info.Title = v.Key("Title").Text()

	if kw := v.Key("Keywords"); !kw.IsNull() {
		info.Keywords = parseKeywords(kw.Text())
	}
	if t, err := pdfio.ParseDate(v.Key("CreationDate").Text()); err == nil {
		info.CreationDate = t
	}
	if t, err := pdfio.ParseDate(v.Key("ModDate").Text()); err == nil {
		info.ModDate = t
	}
}

// parseKeywords splits the Keywords entry. Producers separate keywords
// with commas, semicolons or plain spaces.
func parseKeywords(value string) []string {
	separators := []string{", ", "; ", ",", ";", " "}
	for _, s := range separators {
		if strings.Contains(value, s) {
			var out []string
			for _, k := range strings.Split(value, s) {
				if k = strings.TrimSpace(k); k != "" {
					out = append(out, k)
				}
			}
			return out
		}
	}
	return []string{value}
}
