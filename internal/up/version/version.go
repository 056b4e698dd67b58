// Package version implements the version-spec matching spec.md §4.2
// describes: "latest"/"*" gated by prerelease/build/prefix flags, semver
// range matching, and a literal-prefix fallback for tags a strict semver
// parser rejects (e.g. "jq-1.2.3", "v1").
package version

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// completeVersionRegex pulls the major[.minor[.patch]] prefix (plus any
// trailing pre-release/build suffix) out of a possibly-shortened version
// string so "1" and "1.2" become valid semver ("1.0.0", "1.2.0") before
// being handed to the strict parser.
var completeVersionRegex = regexp.MustCompile(`^(\d+)(?:\.(\d+)(?:\.(\d+))?)?(.*)$`)

// Options gates which kinds of versions "latest"/"*" and range matching are
// allowed to select, mirroring spec.md §4.2's AllowPrerelease/AllowBuild/
// AllowPrefix backend settings.
type Options struct {
	Prerelease bool
	Build      bool
	Prefix     bool
}

// Parsed is a version string split into an optional non-numeric prefix
// (e.g. "v", "jq-") and the semver value following it.
type Parsed struct {
	Original string
	Prefix   string
	Version  *semver.Version
}

// HasPrefix reports whether the version carried a non-numeric prefix.
func (p *Parsed) HasPrefix() bool { return p.Prefix != "" }

// HasPrerelease reports whether the version carries a pre-release component.
func (p *Parsed) HasPrerelease() bool { return p.Version.Prerelease() != "" }

// HasBuild reports whether the version carries build metadata.
func (p *Parsed) HasBuild() bool { return p.Version.Metadata() != "" }

// Parse splits s into a prefix and a completed semver value. It returns
// false if no numeric version could be extracted at all.
func Parse(s string) (*Parsed, bool) {
	firstDigit := strings.IndexFunc(s, func(r rune) bool { return r >= '0' && r <= '9' })
	if firstDigit < 0 {
		return nil, false
	}

	prefix := s[:firstDigit]
	rest := s[firstDigit:]

	completed, ok := completeVersion(rest)
	if !ok {
		return nil, false
	}

	v, err := semver.NewVersion(completed)
	if err != nil {
		return nil, false
	}
	return &Parsed{Original: s, Prefix: prefix, Version: v}, true
}

// completeVersion fills in missing minor/patch components ("1" -> "1.0.0",
// "1.2" -> "1.2.0") so a shortened version string still parses as semver.
func completeVersion(s string) (string, bool) {
	m := completeVersionRegex.FindStringSubmatch(s)
	if m == nil {
		return "", false
	}
	major, minor, patch, suffix := m[1], m[2], m[3], m[4]
	if minor == "" {
		minor = "0"
	}
	if patch == "" {
		patch = "0"
	}
	return major + "." + minor + "." + patch + suffix, true
}

// Satisfies reports whether p matches constraint under opts' gates. An
// empty constraint string matches everything (subject to the gates).
func Satisfies(p *Parsed, constraint string, opts Options) bool {
	if (!opts.Prefix && p.HasPrefix()) ||
		(!opts.Build && p.HasBuild()) ||
		(!opts.Prerelease && p.HasPrerelease()) {
		return false
	}

	c, err := semver.NewConstraint(constraint)
	if err != nil {
		return false
	}
	if c.Check(p.Version) {
		return true
	}

	// The spec's original allows a constraint to match a version once its
	// pre-release/build component is stripped, when that component is the
	// only thing the gates would otherwise allow through (Masterminds'
	// Check already ignores build metadata, but pre-release needs an
	// explicit retry against the cleared value).
	if opts.Prerelease && p.HasPrerelease() {
		stripped, err := p.Version.SetPrerelease("")
		if err == nil && c.Check(&stripped) {
			return true
		}
	}
	return false
}

// Matcher resolves one manifest version-spec string against a list of
// candidate version strings, honoring spec.md §4.2's "latest"/"*" (a)(d),
// explicit string (a), semver range (b), and prefix-fallback edge cases.
type Matcher struct {
	spec string
	opts Options
}

// NewMatcher normalizes expectedVersion the way the original does: comma-
// and semicolon-separated range lists become space-separated (Masterminds'
// AND-constraint syntax), and surrounding quotes are stripped, so
// `pyproject.toml`-style specs like ">=3.4.5,<4.0.0" parse correctly.
func NewMatcher(expectedVersion string, opts Options) *Matcher {
	s := expectedVersion
	s = strings.NewReplacer(",", " ", ";", " ").Replace(s)
	s = strings.NewReplacer(`"`, "", "'", "").Replace(s)
	return &Matcher{spec: s, opts: opts}
}

// Matches reports whether candidate satisfies the matcher's spec.
func (m *Matcher) Matches(candidate string) bool {
	if m.spec == "latest" || m.spec == "*" {
		if p, ok := Parse(candidate); ok {
			return (m.opts.Build || !p.HasBuild()) &&
				(m.opts.Prerelease || !p.HasPrerelease()) &&
				(m.opts.Prefix || !p.HasPrefix())
		}
		return validateVersionChars(candidate, m.opts)
	}

	if m.spec == candidate {
		return true
	}

	if p, ok := Parse(candidate); ok && Satisfies(p, m.spec, m.opts) {
		return true
	}

	// Literal-prefix fallback: the expected spec is itself a prefix of the
	// candidate (e.g. spec "jq-1" against candidate "jq-1.2.3", or spec "v1"
	// against candidate "v1.2.3" parsed with a prefix allowance upstream).
	if rest, ok := strings.CutPrefix(candidate, m.spec); ok {
		return matchPrefixRemainder(rest, m.opts)
	}

	return false
}

// matchPrefixRemainder validates the portion of candidate left over after
// stripping the literal spec prefix: it must continue with a dot (deeper
// version component) or, if allowed, a pre-release/build separator.
func matchPrefixRemainder(rest string, opts Options) bool {
	if rest == "" {
		return false
	}
	switch rest[0] {
	case '.':
		return validateVersionChars(rest[1:], opts)
	case '-':
		return opts.Prerelease && len(rest) > 1 && isAlphaNumeric(rune(rest[1]))
	case '+':
		return opts.Build && len(rest) > 1 && isAlphaNumeric(rune(rest[1]))
	default:
		return false
	}
}

// validateVersionChars accepts a run of digits and dots (optionally
// followed by a pre-release/build suffix when allowed), mirroring the
// original's character-by-character validator for candidates that don't
// parse as strict semver.
func validateVersionChars(s string, opts Options) bool {
	if s == "" {
		return false
	}
	prev := rune('.')
	any := false
	runes := []rune(s)
	last := len(runes) - 1
	for i, c := range runes {
		switch {
		case c >= '0' && c <= '9':
		case c == '.':
			if !isAlphaNumeric(prev) {
				return false
			}
		case c == '-':
			if !opts.Prerelease || i == last || !isAlphaNumeric(prev) {
				return false
			}
			any = true
		case c == '+':
			if !opts.Build || i == last || !isAlphaNumeric(prev) {
				return false
			}
			any = true
		default:
			if any {
				if !isAlphaNumeric(c) && c != '_' {
					return false
				}
			} else {
				return false
			}
		}
		prev = c
	}
	return true
}

func isAlphaNumeric(r rune) bool {
	return (r >= '0' && r <= '9') || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}

// Compare orders two version strings the way the original's VersionParser
// does: unparseable strings sort before parseable ones, prefixes compare
// lexically before the numeric value, and two unparseable strings fall back
// to plain string comparison.
func Compare(a, b string) int {
	pa, okA := Parse(a)
	pb, okB := Parse(b)
	switch {
	case okA && okB:
		if pa.Prefix != pb.Prefix {
			return strings.Compare(pa.Prefix, pb.Prefix)
		}
		return pa.Version.Compare(pb.Version)
	case okA && !okB:
		return 1
	case !okA && okB:
		return -1
	default:
		return strings.Compare(a, b)
	}
}

// BestMatch returns the greatest candidate satisfying the matcher's spec,
// using Compare for ordering, or ok=false if none match. This is the
// entry point the language-package and release-archive backends use to
// pick a version out of a remote registry's listing (spec.md §4.2 (3)).
func (m *Matcher) BestMatch(candidates []string) (best string, ok bool) {
	for _, c := range candidates {
		if !m.Matches(c) {
			continue
		}
		if !ok || Compare(c, best) > 0 {
			best, ok = c, true
		}
	}
	return best, ok
}

// MustAtoi parses s, with surrounding whitespace trimmed, as an int or
// returns 0 (e.g. a bare major version file containing just "3" gives 3).
func MustAtoi(s string) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0
	}
	return n
}
