package version

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func test123Matches(t *testing.T, spec string) {
	t.Helper()

	m := NewMatcher(spec, Options{})
	assert.True(t, m.Matches("1.2.3"), "%s should match 1.2.3 with default matcher", spec)
	assert.False(t, m.Matches("1.2.3-alpha"), "%s should NOT match 1.2.3-alpha with default matcher", spec)
	assert.False(t, m.Matches("1.2.3+build"), "%s should NOT match 1.2.3+build with default matcher", spec)

	mPre := NewMatcher(spec, Options{Prerelease: true})
	assert.True(t, mPre.Matches("1.2.3"))
	assert.True(t, mPre.Matches("1.2.3-alpha"))
	assert.False(t, mPre.Matches("1.2.3+build"))

	mBuild := NewMatcher(spec, Options{Build: true})
	assert.True(t, mBuild.Matches("1.2.3"))
	assert.False(t, mBuild.Matches("1.2.3-alpha"))
	assert.True(t, mBuild.Matches("1.2.3+build"))

	mBoth := NewMatcher(spec, Options{Prerelease: true, Build: true})
	assert.True(t, mBoth.Matches("1.2.3"))
	assert.True(t, mBoth.Matches("1.2.3-alpha"))
	assert.True(t, mBoth.Matches("1.2.3+build"))
}

func TestMatchLatest(t *testing.T) { test123Matches(t, "latest") }
func TestMatchStar(t *testing.T)   { test123Matches(t, "*") }
func TestMatch1(t *testing.T)      { test123Matches(t, "1") }
func TestMatch1_2(t *testing.T)    { test123Matches(t, "1.2") }
func TestMatch1_2_3(t *testing.T)  { test123Matches(t, "1.2.3") }

func TestPrefixV(t *testing.T) {
	m := NewMatcher("v1", Options{})
	assert.True(t, m.Matches("1.2.3"))
}

func TestPrefixAnyArbitraryTag(t *testing.T) {
	m := NewMatcher("jq-1", Options{})
	assert.True(t, m.Matches("jq-1.2.3"), "jq-1 should match jq-1.2.3")
}

func TestExactMatch(t *testing.T) {
	m := NewMatcher("meerkat", Options{})
	assert.True(t, m.Matches("meerkat"))
}

func TestExactMatchWithBuildAndNoBuildMatcher(t *testing.T) {
	m := NewMatcher("1.2+build", Options{})
	assert.True(t, m.Matches("1.2+build"))
}

func TestCaret(t *testing.T) {
	m := NewMatcher("^1.2.3", Options{})
	assert.True(t, m.Matches("1.2.3"))
	assert.True(t, m.Matches("1.2.4"))
	assert.True(t, m.Matches("1.3.0"))
	assert.False(t, m.Matches("2.0.0"))
}

func TestTilde(t *testing.T) {
	m := NewMatcher("~1.2.3", Options{})
	assert.True(t, m.Matches("1.2.3"))
	assert.True(t, m.Matches("1.2.4"))
	assert.False(t, m.Matches("1.3.0"))
	assert.False(t, m.Matches("2.0.0"))
}

func TestGreaterThan(t *testing.T) {
	m := NewMatcher(">1.2.3", Options{})
	assert.False(t, m.Matches("1.2.3"))
	assert.True(t, m.Matches("1.2.4"))
	assert.True(t, m.Matches("2.0.0"))
}

func TestGreaterThanOrEqual(t *testing.T) {
	m := NewMatcher(">=1.2.3", Options{})
	assert.True(t, m.Matches("1.2.3"))
	assert.True(t, m.Matches("1.3.0"))
}

func TestLessThan(t *testing.T) {
	m := NewMatcher("<1.2.3", Options{})
	assert.False(t, m.Matches("1.2.3"))
	assert.True(t, m.Matches("1.2.2"))
	assert.False(t, m.Matches("1.2.2-alpha"), "without prerelease allowance, <1.2.3 should not match 1.2.2-alpha")

	mPre := NewMatcher("<1.2.3", Options{Prerelease: true})
	assert.True(t, mPre.Matches("1.2.2-alpha"))
}

func TestLessThanOrEqual(t *testing.T) {
	m := NewMatcher("<=1.2.3", Options{})
	assert.True(t, m.Matches("1.2.3"))
	assert.True(t, m.Matches("1.1.0"))
	assert.False(t, m.Matches("1.3.0"))
}

func TestMatch1x(t *testing.T) {
	m := NewMatcher("1.x", Options{})
	assert.True(t, m.Matches("1.2.3"))
	assert.False(t, m.Matches("2.0.0"))
}

func TestVersionParserCompareOrdersPrereleaseBeforeRelease(t *testing.T) {
	values := []string{
		"v0.0.9", "v0.0.11", "awesome", "v0.0.1",
		"v0.0.9-rc1", "v0.0.9-beta", "v0.0.9-alpha", "v0.0.9-alpha.2",
	}
	expected := []string{
		"awesome", "v0.0.1", "v0.0.9-alpha", "v0.0.9-alpha.2",
		"v0.0.9-beta", "v0.0.9-rc1", "v0.0.9", "v0.0.11",
	}

	actual := append([]string(nil), values...)
	bubbleSort(actual, Compare)
	assert.Equal(t, expected, actual)
}

func bubbleSort(s []string, cmp func(a, b string) int) {
	for i := 0; i < len(s); i++ {
		for j := 0; j < len(s)-i-1; j++ {
			if cmp(s[j], s[j+1]) > 0 {
				s[j], s[j+1] = s[j+1], s[j]
			}
		}
	}
}

func TestNewMatcherNormalizesCommaSeparatedRanges(t *testing.T) {
	m := NewMatcher(">=3.4.5,<4.0.0", Options{})
	assert.Equal(t, ">=3.4.5 <4.0.0", m.spec)
}

func TestNewMatcherStripsQuotes(t *testing.T) {
	m := NewMatcher(`">=2.7,!=3.0.*,!=3.1.*,!=3.2.*"`, Options{})
	assert.Equal(t, ">=2.7 !=3.0.* !=3.1.* !=3.2.*", m.spec)
}

func TestBestMatchPicksGreatestSatisfying(t *testing.T) {
	m := NewMatcher("^1.0.0", Options{})
	best, ok := m.BestMatch([]string{"1.0.0", "1.4.2", "2.0.0", "1.9.9"})
	assert.True(t, ok)
	assert.Equal(t, "1.9.9", best)
}

func TestBestMatchExcludesYankedCandidatesUpstream(t *testing.T) {
	// The matcher itself doesn't know about yanked status; callers filter
	// the candidate slice before calling BestMatch (spec.md §4.2: "Yanked
	// versions are excluded").
	m := NewMatcher("latest", Options{})
	candidates := []string{"1.0.0", "2.0.0"} // 2.1.0 yanked, excluded by caller
	best, ok := m.BestMatch(candidates)
	assert.True(t, ok)
	assert.Equal(t, "2.0.0", best)
}

func TestBestMatchNoCandidatesSatisfy(t *testing.T) {
	m := NewMatcher("^5.0.0", Options{})
	_, ok := m.BestMatch([]string{"1.0.0", "2.0.0"})
	assert.False(t, ok)
}
