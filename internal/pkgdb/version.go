package pkgdb

import (
	"strconv"
	"strings"
)

// Version is an epoch:version-release triple with ALPM/dpkg-style
// segment-wise ordering (§3: "Version has its own ordered algebra").
//
// This comparison is core domain logic specific to package version schemes,
// not an ambient concern any library in the example pack addresses, so it is
// implemented directly against the standard library (see DESIGN.md).
type Version struct {
	Epoch   int
	Upstream string
	Release string
}

// ParseVersion parses "[epoch:]version[-release]".
func ParseVersion(s string) Version {
	v := Version{Epoch: 0}
	rest := s

	if idx := strings.IndexByte(rest, ':'); idx >= 0 {
		if epoch, err := strconv.Atoi(rest[:idx]); err == nil {
			v.Epoch = epoch
			rest = rest[idx+1:]
		}
	}

	if idx := strings.LastIndexByte(rest, '-'); idx >= 0 {
		v.Upstream = rest[:idx]
		v.Release = rest[idx+1:]
	} else {
		v.Upstream = rest
	}

	return v
}

func (v Version) String() string {
	s := v.Upstream
	if v.Epoch != 0 {
		s = strconv.Itoa(v.Epoch) + ":" + s
	}
	if v.Release != "" {
		s = s + "-" + v.Release
	}
	return s
}

// Compare returns -1, 0, or 1 comparing a to b, following ALPM's vercmp /
// Debian's dpkg version-compare rules: epoch first, then a segment-wise
// comparison of the upstream version splitting on transitions between
// digit and non-digit runs (numeric segments compare numerically, others
// lexically), then the release field with the same algorithm.
func (a Version) Compare(b Version) int {
	if a.Epoch != b.Epoch {
		if a.Epoch < b.Epoch {
			return -1
		}
		return 1
	}

	if c := compareSegments(a.Upstream, b.Upstream); c != 0 {
		return c
	}

	return compareSegments(a.Release, b.Release)
}

func compareSegments(a, b string) int {
	as, bs := splitSegments(a), splitSegments(b)

	for i := 0; i < len(as) || i < len(bs); i++ {
		var sa, sb string
		if i < len(as) {
			sa = as[i]
		}
		if i < len(bs) {
			sb = bs[i]
		}

		if sa == sb {
			continue
		}

		// A missing trailing segment sorts lower, matching dpkg/vercmp.
		if sa == "" {
			return -1
		}
		if sb == "" {
			return 1
		}

		na, aIsNum := isNumeric(sa)
		nb, bIsNum := isNumeric(sb)

		switch {
		case aIsNum && bIsNum:
			if na != nb {
				if na < nb {
					return -1
				}
				return 1
			}
		case aIsNum && !bIsNum:
			// Numeric segments sort after alphabetic ones at the same
			// position (matches RPM/ALPM vercmp semantics).
			return 1
		case !aIsNum && bIsNum:
			return -1
		default:
			if sa < sb {
				return -1
			}
			return 1
		}
	}

	return 0
}

// splitSegments breaks a version string into alternating digit/non-digit
// runs, the unit of comparison in vercmp-style algorithms.
func splitSegments(s string) []string {
	var segments []string
	var current strings.Builder
	var currentIsDigit bool
	started := false

	flush := func() {
		if current.Len() > 0 {
			segments = append(segments, current.String())
			current.Reset()
		}
	}

	for _, r := range s {
		isDigit := r >= '0' && r <= '9'
		if !started {
			currentIsDigit = isDigit
			started = true
		} else if isDigit != currentIsDigit {
			flush()
			currentIsDigit = isDigit
		}
		current.WriteRune(r)
	}
	flush()

	return segments
}

func isNumeric(s string) (int, bool) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	return n, true
}

// ClassifyUpdate buckets a version jump into Major/Minor/Patch for §8
// invariant 4 ("never Unknown" when old < new under a strict ordering). It
// compares the first three numeric segments of the upstream version,
// treating a missing segment as 0, and falls back to Patch when upstream is
// identical but the release or epoch changed.
func ClassifyUpdate(oldV, newV Version) UpdateType {
	oldParts := numericParts(oldV.Upstream)
	newParts := numericParts(newV.Upstream)

	if part(oldParts, 0) != part(newParts, 0) {
		return UpdateMajor
	}
	if part(oldParts, 1) != part(newParts, 1) {
		return UpdateMinor
	}
	return UpdatePatch
}

func numericParts(s string) []int {
	var parts []int
	for _, seg := range strings.FieldsFunc(s, func(r rune) bool { return r < '0' || r > '9' }) {
		if n, err := strconv.Atoi(seg); err == nil {
			parts = append(parts, n)
		}
	}
	return parts
}

func part(parts []int, i int) int {
	if i < len(parts) {
		return parts[i]
	}
	return 0
}
