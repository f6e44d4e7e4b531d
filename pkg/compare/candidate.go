package compare

import (
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/sdejongh/replisync/pkg/models"
)

// SelectCandidate picks the remote record to compare the local replica against.
//
// Records are filtered by pattern (case-insensitive glob, empty matches everything),
// except that a record named exactly like the local file is always eligible.
// Exact-name matches are preferred; when there are several, or none, the record with
// the greatest ModifiedTime wins. Equal times keep the earliest record in catalog order.
// The boolean is false when no record is eligible.
func SelectCandidate(records []models.RemoteReplica, localName, pattern string) (models.RemoteReplica, bool) {
	var exact, eligible []models.RemoteReplica

	for _, rec := range records {
		if rec.Name == localName {
			exact = append(exact, rec)
			eligible = append(eligible, rec)
			continue
		}
		if MatchPattern(pattern, rec.Name) {
			eligible = append(eligible, rec)
		}
	}

	switch {
	case len(exact) == 1:
		return exact[0], true
	case len(exact) > 1:
		return newest(exact), true
	case len(eligible) > 0:
		return newest(eligible), true
	default:
		return models.RemoteReplica{}, false
	}
}

// MatchPattern reports whether name matches the glob pattern, ignoring case.
// An empty or malformed pattern matches everything and nothing respectively.
func MatchPattern(pattern, name string) bool {
	if pattern == "" {
		return true
	}
	ok, err := doublestar.Match(strings.ToLower(pattern), strings.ToLower(name))
	return err == nil && ok
}

// newest returns the record with the greatest ModifiedTime, first one on ties
func newest(records []models.RemoteReplica) models.RemoteReplica {
	best := records[0]
	for _, rec := range records[1:] {
		if rec.ModifiedTime > best.ModifiedTime {
			best = rec
		}
	}
	return best
}
