package edgar

import (
	"math"
	"path"
	"regexp"
	"strconv"
	"strings"
)

// CIKWidth is the fixed width of a zero-padded Central Index Key
const CIKWidth = 10

var memberCIK = regexp.MustCompile(`(?i)^(?:CIK)?(\d{1,10})\.json$`)

// IsRecordMember reports whether an archive member holds one entity document:
// a JSON file named after a CIK, outside macOS resource-fork metadata.
func IsRecordMember(name string) bool {
	if strings.HasPrefix(name, "__MACOSX") || strings.HasSuffix(name, "/") {
		return false
	}
	if strings.HasPrefix(path.Base(name), "._") {
		return false
	}
	_, ok := CIKFromMember(name)
	return ok
}

// CIKFromMember extracts the CIK from names like CIK0000320193.json or 320193.json.
// Paginated overflow files such as CIK0000320193-submissions-001.json do not match.
func CIKFromMember(name string) (string, bool) {
	m := memberCIK.FindStringSubmatch(path.Base(name))
	if m == nil {
		return "", false
	}
	return PadCIK(m[1])
}

// PadCIK normalizes a string or numeric CIK to ten zero-padded digits
func PadCIK(raw any) (string, bool) {
	var digits string
	switch v := raw.(type) {
	case string:
		digits = strings.TrimSpace(v)
	case float64:
		if v < 0 || v != math.Trunc(v) || v >= 1e10 {
			return "", false
		}
		digits = strconv.FormatInt(int64(v), 10)
	case int:
		if v < 0 {
			return "", false
		}
		digits = strconv.Itoa(v)
	case int64:
		if v < 0 {
			return "", false
		}
		digits = strconv.FormatInt(v, 10)
	default:
		return "", false
	}

	if digits == "" || len(digits) > CIKWidth {
		return "", false
	}
	for _, r := range digits {
		if r < '0' || r > '9' {
			return "", false
		}
	}
	return strings.Repeat("0", CIKWidth-len(digits)) + digits, true
}

// ResolveCIK prefers the identifier inside the document and falls back to the
// one derived from the member name.
func ResolveCIK(docCIK any, memberCIK string) string {
	if cik, ok := PadCIK(docCIK); ok {
		return cik
	}
	return memberCIK
}
