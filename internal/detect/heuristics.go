package detect

import (
	"strings"
	"time"

	"logwarden/internal/types"
	"logwarden/internal/window"
)

// sqlTokens are matched case-sensitively as plain substrings
var sqlTokens = []string{"'", " OR ", "--", "UNION", "SELECT"}

// IsSQLInjection reports whether the URL contains any SQL injection token.
// Legitimate URLs carrying these tokens are flagged too.
func IsSQLInjection(url string) bool {
	for _, tok := range sqlTokens {
		if strings.Contains(url, tok) {
			return true
		}
	}
	return false
}

// IsXSS reports whether the URL contains a script tag, ignoring case
func IsXSS(url string) bool {
	return strings.Contains(strings.ToLower(url), "<script>")
}

// indexed ties a record to its position in the batch
type indexed struct {
	pos int
	rec types.RequestRecord
}

func index(records []types.RequestRecord, keep func(types.RequestRecord) bool) []indexed {
	var out []indexed
	for i, r := range records {
		if keep == nil || keep(r) {
			out = append(out, indexed{pos: i, rec: r})
		}
	}
	return out
}

func byIP(x indexed) string      { return x.rec.IP }
func byTime(x indexed) time.Time { return x.rec.Time }
func positions(xs []indexed) []int {
	out := make([]int, len(xs))
	for i, x := range xs {
		out[i] = x.pos
	}
	return out
}

// matchBurst flags every failed-auth record of an IP inside a window where that
// IP failed more than burstThreshold times. Each window is judged on its own.
func (e *Engine) matchBurst(records []types.RequestRecord) []int {
	failed := index(records, types.RequestRecord.IsFailedAuth)

	var flagged []indexed
	for _, bucket := range window.Partition(failed, e.burstWindow, byTime) {
		groups := window.GroupBy(bucket.Items, byIP)
		over := window.FilterGroups(groups, window.MoreThan[string, indexed](e.burstThreshold))
		flagged = append(flagged, window.Flatten(over)...)
	}
	return ascending(positions(flagged))
}

// matchVolume flags every record of an IP that made more than dosThreshold
// requests over the whole batch
func (e *Engine) matchVolume(records []types.RequestRecord) []int {
	groups := window.GroupBy(index(records, nil), byIP)
	over := window.FilterGroups(groups, window.MoreThan[string, indexed](e.dosThreshold))
	return ascending(positions(window.Flatten(over)))
}
