// Package versions compares forum and package version strings and matches
// them against the version specs used in package manifests.
//
// A version reads as major[.minor[.patch]][alpha|beta|rc N[.M]][dev]. Specs
// are comma separated lists of exact versions, inclusive low-high ranges
// and "*" wildcards; the token "all" matches any version.
package versions

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/arthur-debert/modman/pkg/errors"
)

const (
	TypeAlpha  = "alpha"
	TypeBeta   = "beta"
	TypeRC     = "rc"
	TypeStable = "stable"
)

var grammar = regexp.MustCompile(`(\d+)(?:\.(\d+|))?(?:\.)?(\d+|)(?:(alpha|beta|rc)(\d+|)(?:\.)?(\d+|))?(?:(dev))?(\d+|)`)

// Version is a parsed version string. Missing numeric parts are zero and a
// version without a pre-release tag has type "stable".
type Version struct {
	Major     int
	Minor     int
	Patch     int
	Type      string
	TypeMajor int
	TypeMinor int
	Dev       bool

	Raw string
}

// Normalize lowercases s and removes spaces
func Normalize(s string) string {
	return strings.ReplaceAll(strings.ToLower(s), " ", "")
}

// Parse reads a version string. Strings that do not contain a version at
// all parse as 0.0.0 stable.
func Parse(s string) Version {
	v := Version{Type: TypeStable, Raw: s}

	m := grammar.FindStringSubmatch(Normalize(s))
	if m == nil {
		return v
	}

	v.Major = atoi(m[1])
	v.Minor = atoi(m[2])
	v.Patch = atoi(m[3])
	if m[4] != "" {
		v.Type = m[4]
	}
	v.TypeMajor = atoi(m[5])
	v.TypeMinor = atoi(m[6])
	v.Dev = m[7] != ""
	return v
}

// Validate reports a VERSION_INVALID error when s holds no version at all,
// where Parse would silently read it as 0.0.0.
func Validate(s string) error {
	if !grammar.MatchString(Normalize(s)) {
		return errors.Newf(errors.ErrVersionInvalid, "%q is not a version", s)
	}
	return nil
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}

func (v Version) String() string {
	var b strings.Builder
	b.WriteString(strconv.Itoa(v.Major) + "." + strconv.Itoa(v.Minor) + "." + strconv.Itoa(v.Patch))
	if v.Type != TypeStable {
		b.WriteString(" " + v.Type + " " + strconv.Itoa(v.TypeMajor) + "." + strconv.Itoa(v.TypeMinor))
	}
	if v.Dev {
		b.WriteString(" dev")
	}
	return b.String()
}

// Compare returns -1, 0 or 1 as a is older than, the same as, or newer than
// b. Categories are compared in order: major, minor, patch, release type,
// type major, type minor, dev flag. A dev build of a stable release is
// older than the release; a dev build of a pre-release equals it.
func Compare(a, b string) int {
	return CompareVersions(Parse(a), Parse(b))
}

// CompareVersions is Compare for parsed versions
func CompareVersions(a, b Version) int {
	if c := cmpInt(a.Major, b.Major); c != 0 {
		return c
	}
	if c := cmpInt(a.Minor, b.Minor); c != 0 {
		return c
	}
	if c := cmpInt(a.Patch, b.Patch); c != 0 {
		return c
	}

	if a.Type != b.Type {
		if a.Type > b.Type {
			if a.Dev {
				return -1
			}
			return 1
		}
		if b.Dev {
			return 1
		}
		return -1
	}

	if c := cmpInt(a.TypeMajor, b.TypeMajor); c != 0 {
		return c
	}
	if c := cmpInt(a.TypeMinor, b.TypeMinor); c != 0 {
		return c
	}

	if a.Dev != b.Dev {
		if a.Dev {
			if b.Type == TypeStable {
				return -1
			}
			return 0
		}
		if a.Type == TypeStable {
			return 1
		}
		return 0
	}
	return 0
}

func cmpInt(a, b int) int {
	switch {
	case a > b:
		return 1
	case a < b:
		return -1
	}
	return 0
}

// bound is one element of a version spec
type bound struct {
	all   bool
	low   string
	high  string
	exact bool

	// wildcard bounds have no concrete upper version to offer
	wildcard bool
}

// parseSpec splits a spec into bounds, expanding wildcards into the widest
// range they cover.
func parseSpec(spec string) []bound {
	spec = strings.ReplaceAll(Normalize(spec), "2.0rc1-1", "2.0rc1.1")

	var bounds []bound
	for _, item := range strings.Split(spec, ",") {
		if item == "" {
			continue
		}
		if item == "all" {
			bounds = append(bounds, bound{all: true})
			continue
		}

		var b bound
		if strings.Contains(item, "*") {
			b.wildcard = true
			item = strings.ReplaceAll(item, "*", "0dev0") + "-" + strings.ReplaceAll(item, "*", "999")
		}
		if low, high, ok := strings.Cut(item, "-"); ok {
			if i := strings.Index(high, "-"); i >= 0 {
				high = high[:i]
			}
			b.low, b.high = low, high
		} else {
			b.low, b.high, b.exact = item, item, true
		}
		bounds = append(bounds, b)
	}
	return bounds
}

// Matches reports whether version satisfies spec
func Matches(version, spec string) bool {
	v := Parse(version)
	for _, b := range parseSpec(spec) {
		switch {
		case b.all:
			return true
		case b.exact:
			if CompareVersions(v, Parse(b.low)) == 0 {
				return true
			}
		default:
			if CompareVersions(v, Parse(b.low)) > -1 && CompareVersions(v, Parse(b.high)) < 1 {
				return true
			}
		}
	}
	return false
}

// HighestSatisfying returns the newest concrete version named by spec that
// does not exceed ceiling. It is used to suggest a host version to emulate
// when a package has no block for the running one.
func HighestSatisfying(spec, ceiling string) (string, bool) {
	top := Parse(ceiling)

	var best string
	var bestV Version
	consider := func(candidate string) {
		if candidate == "" {
			return
		}
		cv := Parse(candidate)
		if CompareVersions(cv, top) > 0 {
			return
		}
		if best == "" || CompareVersions(cv, bestV) > 0 {
			best, bestV = candidate, cv
		}
	}

	for _, b := range parseSpec(spec) {
		if b.all {
			return ceiling, true
		}
		if !b.wildcard && CompareVersions(Parse(b.high), top) <= 0 {
			consider(b.high)
			continue
		}
		consider(strings.ReplaceAll(b.low, "0dev0", "0"))
	}
	return best, best != ""
}
