package version

import (
	"fmt"
	"strings"
)

// Op is a comparison operator of a VerCmp.
type Op string

const (
	OpEq Op = ""
	OpLt Op = "<"
	OpLe Op = "<="
	OpGt Op = ">"
	OpGe Op = ">="
)

// VerCmp compares a version against a fixed bound. The zero value matches
// every version.
type VerCmp struct {
	Ver Ver
	Op  Op
}

// Any reports whether c has no bound.
func (c VerCmp) Any() bool { return c.Ver.IsZero() }

// Match reports whether other satisfies c. Ordering operators read as
// "other <op> bound".
func (c VerCmp) Match(other Ver) bool {
	if c.Any() {
		return true
	}
	r := other.Compare(c.Ver)
	switch c.Op {
	case OpEq:
		return r == 0
	case OpLt:
		return r < 0
	case OpLe:
		return r <= 0
	case OpGt:
		return r > 0
	case OpGe:
		return r >= 0
	}
	return false
}

func (c VerCmp) String() string {
	if c.Any() {
		return "*"
	}
	return string(c.Op) + c.Ver.String()
}

// ParseVerCmp reads "*", "1.2", ">=1.2", "<1.3-BETA" and friends.
func ParseVerCmp(s string) (VerCmp, error) {
	s = strings.TrimSpace(s)
	if s == "*" || s == "" {
		return VerCmp{}, nil
	}
	op := OpEq
	for _, candidate := range []Op{OpLe, OpGe, OpLt, OpGt, "="} {
		if strings.HasPrefix(s, string(candidate)) {
			op = candidate
			s = s[len(candidate):]
			break
		}
	}
	if op == "=" {
		op = OpEq
	}
	v, err := ParseVerText(s)
	if err != nil {
		return VerCmp{}, err
	}
	return VerCmp{Ver: v, Op: op}, nil
}

// VerMatch is a conjunction of comparisons plus a minimum maturity. The
// zero value is ANY.
type VerMatch struct {
	Criteria []VerCmp
	MinType  VerType
}

// AnyVer matches every version.
var AnyVer = VerMatch{}

func (m VerMatch) minType() VerType {
	if m.MinType == 0 {
		return Alpha
	}
	return m.MinType
}

// Any reports whether m accepts everything.
func (m VerMatch) Any() bool {
	return len(m.Criteria) == 0 && m.minType() == Alpha
}

func (m VerMatch) Match(v Ver) bool {
	if m.minType() > v.Type() {
		return false
	}
	for _, c := range m.Criteria {
		if !c.Match(v) {
			return false
		}
	}
	return true
}

// And combines two matchers; the stricter maturity floor wins.
func (m VerMatch) And(o VerMatch) VerMatch {
	criteria := make([]VerCmp, 0, len(m.Criteria)+len(o.Criteria))
	criteria = append(criteria, m.Criteria...)
	criteria = append(criteria, o.Criteria...)
	return VerMatch{Criteria: criteria, MinType: max(m.minType(), o.minType())}
}

func (m VerMatch) String() string {
	if m.Any() {
		return "*"
	}
	parts := make([]string, len(m.Criteria))
	for i, c := range m.Criteria {
		parts[i] = c.String()
	}
	s := strings.Join(parts, " AND ")
	if m.minType() != Alpha {
		s += "@" + strings.ToUpper(m.minType().String())
	}
	return s
}

// ParseVerMatch reads "*", ">=1.2", ">=1.2 AND <2@BETA", "@release".
func ParseVerMatch(s string) (VerMatch, error) {
	s = strings.TrimSpace(s)
	if s == "*" || s == "" {
		return AnyVer, nil
	}
	body, typ, _ := strings.Cut(s, "@")
	var m VerMatch
	switch strings.ToLower(strings.TrimSpace(typ)) {
	case "", "a", "alpha":
		m.MinType = Alpha
	case "b", "beta":
		m.MinType = Beta
	case "r", "release":
		m.MinType = Release
	default:
		return VerMatch{}, fmt.Errorf("unknown version type %q in %q", typ, s)
	}
	body = strings.ReplaceAll(body, " AND ", ",")
	for _, part := range strings.Split(body, ",") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		c, err := ParseVerCmp(part)
		if err != nil {
			return VerMatch{}, fmt.Errorf("version range %q: %w", s, err)
		}
		if !c.Any() {
			m.Criteria = append(m.Criteria, c)
		}
	}
	if m.MinType == Alpha {
		m.MinType = 0
	}
	return m, nil
}

func MustParseVerMatch(s string) VerMatch {
	m, err := ParseVerMatch(s)
	if err != nil {
		panic(err)
	}
	return m
}

func (m VerMatch) MarshalText() ([]byte, error) { return []byte(m.String()), nil }

func (m *VerMatch) UnmarshalText(b []byte) error {
	p, err := ParseVerMatch(string(b))
	if err != nil {
		return err
	}
	*m = p
	return nil
}

// McOp is the operator of a McVerMatch.
type McOp string

const (
	McExact      McOp = ""
	McCompatible McOp = "^"
)

// McVerMatch accepts game versions. A nil Ver is ANY; "^" accepts versions
// of the same major.minor line that are at least Ver.
type McVerMatch struct {
	Ver *McVer
	Op  McOp
}

// AnyMc matches every game version.
var AnyMc = McVerMatch{}

func ExactMc(v McVer) McVerMatch      { return McVerMatch{Ver: &v} }
func CompatibleMc(v McVer) McVerMatch { return McVerMatch{Ver: &v, Op: McCompatible} }

func (m McVerMatch) Any() bool { return m.Ver == nil }

func (m McVerMatch) Match(o McVer) bool {
	if m.Ver == nil {
		return true
	}
	switch m.Op {
	case McExact:
		return m.Ver.Compare(o) == 0
	case McCompatible:
		return o.Major == m.Ver.Major && o.Minor == m.Ver.Minor && o.Compare(*m.Ver) >= 0
	}
	return false
}

// MatchAny reports whether any of vs is accepted.
func (m McVerMatch) MatchAny(vs []McVer) bool {
	for _, v := range vs {
		if m.Match(v) {
			return true
		}
	}
	return false
}

// Versions lists the known releases accepted by m.
func (m McVerMatch) Versions() []McVer {
	var out []McVer
	for _, v := range Releases {
		if m.Match(v) {
			out = append(out, v)
		}
	}
	return out
}

func (m McVerMatch) String() string {
	if m.Ver == nil {
		return "*"
	}
	return string(m.Op) + m.Ver.Text()
}

func ParseMcVerMatch(s string) (McVerMatch, error) {
	s = strings.TrimSpace(s)
	if s == "*" || s == "" {
		return AnyMc, nil
	}
	op := McExact
	if rest, ok := strings.CutPrefix(s, "^"); ok {
		op, s = McCompatible, rest
	}
	v, err := ParseMcVer(s)
	if err != nil {
		return McVerMatch{}, err
	}
	return McVerMatch{Ver: &v, Op: op}, nil
}

func MustParseMcVerMatch(s string) McVerMatch {
	m, err := ParseMcVerMatch(s)
	if err != nil {
		panic(err)
	}
	return m
}

func (m McVerMatch) MarshalText() ([]byte, error) { return []byte(m.String()), nil }

func (m *McVerMatch) UnmarshalText(b []byte) error {
	p, err := ParseMcVerMatch(string(b))
	if err != nil {
		return err
	}
	*m = p
	return nil
}
