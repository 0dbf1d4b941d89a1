package render

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/language"
)

// Caption layout, in points.
const (
	captionFontSize    = 10.0
	captionLineSpacing = 14.0
	captionPadLeft     = 5.0
	captionPadBottom   = 3.0
	captionLift        = 5.0
)

// TextHeight returns the height of a caption with the given number of lines.
func TextHeight(lines int) float64 {
	if lines <= 0 {
		return 0
	}
	return float64(lines-1)*captionLineSpacing + 22
}

// CaptionLines returns the caption lines in bottom-up order.
func CaptionLines(s Settings, sg Signer, signatureID string) []string {
	var lines []string
	if s.RequireSigningReason && strings.TrimSpace(sg.Reason) != "" {
		lines = append(lines, "Reason: "+sg.Reason)
	}
	if s.AddSignatureID {
		lines = append(lines, "ID: "+signatureID)
		if sg.Email != "" {
			lines = append(lines, sg.Email)
		}
		lines = append(lines, FormatDate(sg.SignedAt, s.Timezone, s.Locale))
	}
	return lines
}

// SignatureID derives the display identifier of a submitter. It is a djb2
// hash of the decimal form of id+1, repeated to fill a UUID-shaped string.
func SignatureID(id int64) string {
	var hash int32
	for _, c := range fmt.Sprintf("%d", id+1) {
		hash = (hash << 5) - hash + c
	}
	h := fmt.Sprintf("%08X", uint32(hash))
	s := strings.Repeat(h, 4)
	return s[0:8] + "-" + s[8:12] + "-" + s[12:16] + "-" + s[16:20] + "-" + s[20:32]
}

func (s Settings) signatureID(sg Signer) string {
	if s.SignatureIDMode == IDModeUUID {
		return strings.ToUpper(uuid.NewString())
	}
	return SignatureID(sg.ID)
}

const (
	dateLayoutDMY = "02/01/2006, 15:04:05"
	dateLayoutMDY = "01/02/2006, 15:04:05"
)

// FormatDate renders t in the named timezone, day first for Vietnamese
// locales and month first otherwise.
func FormatDate(t time.Time, timezone, locale string) string {
	t = t.In(Location(timezone))
	if isVietnamese(locale) {
		return t.Format(dateLayoutDMY)
	}
	return t.Format(dateLayoutMDY)
}

var vietnamese, _ = language.Vietnamese.Base()

func isVietnamese(locale string) bool {
	tag, err := language.Parse(strings.ReplaceAll(locale, "_", "-"))
	if err != nil {
		return strings.HasPrefix(strings.ToLower(locale), "vi")
	}
	base, _ := tag.Base()
	return base == vietnamese
}

// Location resolves a timezone name against a closed table of fixed
// offsets. Unknown names resolve to UTC.
func Location(name string) *time.Location {
	key := strings.ToLower(strings.TrimSpace(name))
	if z, ok := zones[key]; ok {
		return time.FixedZone(z.abbr, z.hours*3600)
	}
	return time.UTC
}

type zone struct {
	abbr  string
	hours int
}

var zones = func() map[string]zone {
	table := []struct {
		z     zone
		names []string
	}{
		{zone{"ICT", 7}, []string{"Asia/Ho_Chi_Minh", "Asia/Saigon", "Ho Chi Minh", "Hanoi", "Bangkok", "Asia/Bangkok"}},
		{zone{"UTC", 0}, []string{"UTC", "GMT", "Etc/UTC"}},
		{zone{"GMT", 0}, []string{"Europe/London", "London", "Edinburgh", "Lisbon", "Europe/Lisbon"}},
		{zone{"CET", 1}, []string{"Europe/Berlin", "Europe/Paris", "Europe/Rome", "Europe/Madrid", "Europe/Amsterdam", "Berlin", "Paris", "Rome", "Madrid", "Amsterdam"}},
		{zone{"MSK", 3}, []string{"Europe/Moscow", "Moscow"}},
		{zone{"JST", 9}, []string{"Asia/Tokyo", "Tokyo", "Osaka"}},
		{zone{"CST", 8}, []string{"Asia/Shanghai", "Asia/Hong_Kong", "Asia/Singapore", "Beijing", "Hong Kong", "Singapore"}},
		{zone{"AEST", 10}, []string{"Australia/Sydney", "Sydney", "Melbourne", "Australia/Melbourne"}},
		{zone{"EST", -5}, []string{"America/New_York", "US/Eastern", "Eastern Time (US & Canada)"}},
		{zone{"CST", -6}, []string{"America/Chicago", "US/Central", "Central Time (US & Canada)"}},
		{zone{"MST", -7}, []string{"America/Denver", "America/Phoenix", "US/Mountain", "Mountain Time (US & Canada)", "Arizona"}},
		{zone{"PST", -8}, []string{"America/Los_Angeles", "US/Pacific", "Pacific Time (US & Canada)"}},
		{zone{"AKST", -9}, []string{"America/Anchorage", "US/Alaska", "Alaska"}},
		{zone{"HST", -10}, []string{"Pacific/Honolulu", "US/Hawaii", "Hawaii"}},
		{zone{"SST", -11}, []string{"Pacific/Midway", "Pacific/Pago_Pago", "Midway Island", "American Samoa"}},
	}
	m := make(map[string]zone)
	for _, row := range table {
		for _, n := range row.names {
			m[strings.ToLower(n)] = row.z
		}
	}
	return m
}()
