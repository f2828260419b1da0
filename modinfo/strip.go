package modinfo

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"mcm/version"
)

var (
	fileExt      = regexp.MustCompile(`\.[a-z]{3}$`)
	hasVer       = regexp.MustCompile(`\d\.\d`)
	releaseWords = regexp.MustCompile(`forge|rift|fabric|alpha|beta|rc|release|pre|mc`)
	leadingJunk  = regexp.MustCompile(`^[a-z_.+-]+`)
	modVerTokens = regexp.MustCompile(`[a-z_-]+|\d+`)
)

func isVerBoundary(b byte) bool { return b == '.' || (b >= '0' && b <= '9') }

// removeIsolated deletes matches of re that are not part of a longer dotted
// number.
func removeIsolated(re *regexp.Regexp, s string) string {
	var b strings.Builder
	last, pos := 0, 0
	for pos <= len(s) {
		loc := re.FindStringIndex(s[pos:])
		if loc == nil {
			break
		}
		start, end := pos+loc[0], pos+loc[1]
		if (start == 0 || !isVerBoundary(s[start-1])) && (end == len(s) || !isVerBoundary(s[end])) {
			b.WriteString(s[last:start])
			last, pos = end, end
			continue
		}
		pos = start + 1
	}
	b.WriteString(s[last:])
	return b.String()
}

// stripMcVer tokenizes a raw version string after removing loader names, a
// file extension and any game version embedded in it ("mod-1.19.2-4.1.0"
// becomes 4.1.0). Game versions are only removed while something that looks
// like a version remains.
func stripMcVer(raw string, mcvers []version.McVer) []version.Token {
	s := fileExt.ReplaceAllString(strings.ToLower(raw), "")

	bases := make(map[string]struct{})
	for _, v := range mcvers {
		bases[fmt.Sprintf(`%d\.%d`, v.Major, v.Minor)] = struct{}{}
	}
	sorted := make([]string, 0, len(bases))
	for b := range bases {
		sorted = append(sorted, b)
	}
	sort.Strings(sorted)
	for _, base := range sorted {
		for _, pattern := range []string{base + `\.\d`, base} {
			stripped := removeIsolated(regexp.MustCompile(pattern), s)
			if hasVer.MatchString(stripped) {
				s = stripped
			}
		}
	}

	s = releaseWords.ReplaceAllString(s, "")
	s = leadingJunk.ReplaceAllString(s, "")
	s = strings.ReplaceAll(s, "-", ".")

	parts := modVerTokens.FindAllString(s, -1)
	tokens := make([]version.Token, 0, len(parts))
	for _, p := range parts {
		if n, err := strconv.Atoi(p); err == nil {
			tokens = append(tokens, version.NumToken(n))
		} else {
			tokens = append(tokens, version.StrToken(p))
		}
	}
	return tokens
}
