package version

import (
	"cmp"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// VerType is the maturity of a mod release.
type VerType int

const (
	Alpha   VerType = 1
	Beta    VerType = 2
	Release VerType = 3
)

func (t VerType) String() string {
	switch t {
	case Release:
		return "release"
	case Beta:
		return "beta"
	case Alpha:
		return "alpha"
	default:
		return fmt.Sprintf("VerType(%d)", int(t))
	}
}

// ParseVerType accepts the long and single-letter forms used by registries
// and manifests. An empty string is a release.
func ParseVerType(s string) (VerType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "release", "r", "":
		return Release, nil
	case "beta", "b":
		return Beta, nil
	case "alpha", "a":
		return Alpha, nil
	}
	if n, err := strconv.Atoi(s); err == nil && n >= int(Alpha) && n <= int(Release) {
		return VerType(n), nil
	}
	return 0, fmt.Errorf("unknown version type %q", s)
}

func (t VerType) MarshalText() ([]byte, error) {
	if t < Alpha || t > Release {
		return nil, fmt.Errorf("invalid version type %d", int(t))
	}
	return []byte(t.String()), nil
}

func (t *VerType) UnmarshalText(b []byte) error {
	v, err := ParseVerType(string(b))
	if err != nil {
		return err
	}
	*t = v
	return nil
}

// Token is one component of a Ver: either a number or a run of letters.
type Token struct {
	Num   int
	Str   string
	IsNum bool
}

func NumToken(n int) Token    { return Token{Num: n, IsNum: true} }
func StrToken(s string) Token { return Token{Str: s} }

func (t Token) String() string {
	if t.IsNum {
		return strconv.Itoa(t.Num)
	}
	return t.Str
}

func maybeInt(s string) Token {
	if n, err := strconv.Atoi(s); err == nil && s != "" && isDigits(s) {
		return NumToken(n)
	}
	return StrToken(s)
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// Ver is a free-form mod version reduced to comparable tokens. The zero
// value has no tokens and is treated as "no version".
type Ver struct {
	tokens []Token
	typ    VerType
}

var (
	verDecorations = regexp.MustCompile(`[ '":,()_]+|\+?(?:forge|fabric|rift)|\.jar`)
	verTokens      = regexp.MustCompile(`[a-z_]+|\d+`)
)

// NewVer builds a Ver from already split tokens.
func NewVer(typ VerType, tokens ...Token) Ver {
	if typ == 0 {
		typ = Release
	}
	return Ver{tokens: append([]Token(nil), tokens...), typ: typ}
}

// ParseVer normalizes a raw version string. Normalization is best effort:
// creative version strings may produce surprising token sequences.
func ParseVer(raw string, typ VerType) Ver {
	s := verDecorations.ReplaceAllString(strings.ToLower(raw), "")
	return NewVer(typ, tokenize(verTokens, s)...)
}

func tokenize(re *regexp.Regexp, s string) []Token {
	parts := re.FindAllString(s, -1)
	tokens := make([]Token, 0, len(parts))
	for _, p := range parts {
		tokens = append(tokens, maybeInt(p))
	}
	return tokens
}

// MustParseVerText is ParseVerText for constants and tests.
func MustParseVerText(s string) Ver {
	v, err := ParseVerText(s)
	if err != nil {
		panic(err)
	}
	return v
}

// ParseVerText reads the text form produced by Ver.MarshalText
// ("1.2.3-BETA"). A missing type suffix means release.
func ParseVerText(s string) (Ver, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Ver{}, fmt.Errorf("empty version")
	}
	body, typ := s, Release
	if i := strings.LastIndexByte(s, '-'); i >= 0 {
		t, err := ParseVerType(s[i+1:])
		if err != nil {
			return Ver{}, fmt.Errorf("version %q: %w", s, err)
		}
		body, typ = s[:i], t
	}
	var tokens []Token
	if body == "" {
		return NewVer(typ), nil
	}
	for _, part := range strings.Split(body, ".") {
		tokens = append(tokens, maybeInt(part))
	}
	return NewVer(typ, tokens...), nil
}

func (v Ver) Tokens() []Token { return append([]Token(nil), v.tokens...) }
func (v Ver) Type() VerType {
	if v.typ == 0 {
		return Release
	}
	return v.typ
}
func (v Ver) IsZero() bool { return len(v.tokens) == 0 }

func (v Ver) body() string {
	parts := make([]string, len(v.tokens))
	for i, t := range v.tokens {
		parts[i] = t.String()
	}
	return strings.Join(parts, ".")
}

func (v Ver) String() string {
	switch v.Type() {
	case Beta:
		return v.body() + "-BETA"
	case Alpha:
		return v.body() + "-ALPHA"
	default:
		return v.body()
	}
}

func (v Ver) MarshalText() ([]byte, error) {
	return []byte(v.body() + "-" + strings.ToUpper(v.Type().String())), nil
}

func (v *Ver) UnmarshalText(b []byte) error {
	p, err := ParseVerText(string(b))
	if err != nil {
		return err
	}
	*v = p
	return nil
}

func isPreToken(t Token) bool { return !t.IsNum && (t.Str == "a" || t.Str == "b") }

func compareTokens(a, b Token) int {
	switch {
	case a.IsNum && b.IsNum:
		return cmp.Compare(a.Num, b.Num)
	case isPreToken(a) && b.IsNum:
		return -1
	case a.IsNum && isPreToken(b):
		return 1
	}
	return strings.Compare(a.String(), b.String())
}

// Compare orders versions component-wise. A missing component sorts lowest
// and "a"/"b" sort below numbers at the same position; equal token
// sequences are ordered by maturity.
func (v Ver) Compare(o Ver) int {
	n := max(len(v.tokens), len(o.tokens))
	for i := range n {
		if i >= len(v.tokens) {
			return -1
		}
		if i >= len(o.tokens) {
			return 1
		}
		if c := compareTokens(v.tokens[i], o.tokens[i]); c != 0 {
			return c
		}
	}
	return cmp.Compare(int(v.Type()), int(o.Type()))
}

func (v Ver) Equal(o Ver) bool { return v.Compare(o) == 0 }
func (v Ver) Less(o Ver) bool  { return v.Compare(o) < 0 }
