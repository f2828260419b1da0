package version

import (
	"cmp"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// McVerType classifies game versions. It is only used for display.
type McVerType int

const (
	McUnknown McVerType = iota
	McPre
	McSnapshot
	McRC
	McRelease
)

func (t McVerType) String() string {
	switch t {
	case McRelease:
		return "release"
	case McRC:
		return "rc"
	case McSnapshot:
		return "snapshot"
	case McPre:
		return "pre"
	default:
		return "unknown"
	}
}

// McVer is a Minecraft game version.
type McVer struct {
	Major    int
	Minor    int
	Patch    int
	Suffix   string
	Snapshot string
}

// Releases lists the game releases known to McVerMatch.Versions.
var Releases = []McVer{
	{1, 12, 0, "", ""}, {1, 12, 1, "", ""}, {1, 12, 2, "", ""},
	{1, 13, 0, "", ""}, {1, 13, 1, "", ""}, {1, 13, 2, "", ""},
	{1, 14, 0, "", ""}, {1, 14, 1, "", ""}, {1, 14, 2, "", ""}, {1, 14, 3, "", ""}, {1, 14, 4, "", ""},
	{1, 15, 0, "", ""}, {1, 15, 1, "", ""}, {1, 15, 2, "", ""},
	{1, 16, 0, "", ""}, {1, 16, 2, "", ""}, {1, 16, 3, "", ""}, {1, 16, 4, "", ""}, {1, 16, 5, "", ""},
	{1, 17, 0, "", ""}, {1, 17, 1, "", ""},
	{1, 18, 0, "", ""}, {1, 18, 1, "", ""}, {1, 18, 2, "", ""},
	{1, 19, 0, "", ""}, {1, 19, 1, "", ""}, {1, 19, 2, "", ""}, {1, 19, 3, "", ""},
}

// snapshots maps the first snapshot of each development cycle to the
// release it leads up to, newest first.
var snapshots = []McVer{
	{1, 19, 3, "pre1", "22w42a"},
	{1, 19, 1, "pre1", "22w24a"},
	{1, 19, 0, "pre1", "22w11a"},
	{1, 18, 2, "pre1", "22w03a"},
	{1, 18, 0, "pre1", "21w37a"},
	{1, 17, 0, "pre1", "20w45a"},
	{1, 16, 2, "pre1", "20w27a"},
	{1, 16, 0, "pre1", "20w06a"},
	{1, 15, 0, "pre1", "19w34a"},
	{1, 14, 0, "pre1", "18w43a"},
	{1, 13, 1, "pre1", "18w30a"},
	{1, 13, 0, "pre1", "17w43a"},
	{1, 12, 1, "pre1", "17w31a"},
	{1, 12, 0, "pre1", "17w06a"},
	{1, 11, 1, "", "16w50a"},
	{1, 11, 0, "pre1", "16w32a"},
	{1, 10, 0, "pre1", "16w20a"},
	{1, 9, 3, "pre1", "16w14a"},
	{1, 9, 0, "pre1", "15w31a"},
	{1, 8, 0, "pre1", "14w02a"},
}

var snapshotRe = regexp.MustCompile(`^\d\dw\d\d[a-z]$`)

// snapshotSentinel sorts after every real snapshot label.
const snapshotSentinel = "zzzzzz"

func NewMcVer(major, minor, patch int) McVer {
	return McVer{Major: major, Minor: minor, Patch: patch}
}

// ParseMcVer reads dotted versions ("1.19", "1.19.2", "1.19-pre1") and bare
// snapshot labels ("22w42a").
func ParseMcVer(s string) (McVer, error) {
	s = strings.TrimSpace(s)
	base, suffix, _ := strings.Cut(s, "-")
	if strings.Contains(base, ".") {
		if strings.Count(base, ".") > 2 {
			return McVer{}, fmt.Errorf("invalid game version %q", s)
		}
		sv, err := semver.NewVersion(base)
		if err != nil {
			return McVer{}, fmt.Errorf("invalid game version %q: %w", s, err)
		}
		return McVer{
			Major:  int(sv.Major()),
			Minor:  int(sv.Minor()),
			Patch:  int(sv.Patch()),
			Suffix: suffix,
		}, nil
	}
	if !snapshotRe.MatchString(base) {
		return McVer{}, fmt.Errorf("invalid game version %q", s)
	}
	for _, snap := range snapshots {
		if snap.Snapshot <= base {
			snap.Snapshot = base
			return snap, nil
		}
	}
	return McVer{}, fmt.Errorf("unknown snapshot %q", s)
}

func MustParseMcVer(s string) McVer {
	v, err := ParseMcVer(s)
	if err != nil {
		panic(err)
	}
	return v
}

func (v McVer) Type() McVerType {
	switch {
	case v.Snapshot != "":
		return McSnapshot
	case v.Suffix == "":
		return McRelease
	case strings.HasPrefix(v.Suffix, "rc"):
		return McRC
	case strings.HasPrefix(v.Suffix, "pre"):
		return McPre
	}
	return McUnknown
}

func (v McVer) String() string {
	var b strings.Builder
	b.WriteString(strconv.Itoa(v.Major))
	b.WriteByte('.')
	b.WriteString(strconv.Itoa(v.Minor))
	if v.Patch != 0 {
		b.WriteByte('.')
		b.WriteString(strconv.Itoa(v.Patch))
	}
	if v.Suffix != "" {
		b.WriteString("-" + v.Suffix)
	}
	if v.Snapshot != "" {
		b.WriteString("-" + v.Snapshot)
	}
	return b.String()
}

// Text is the persisted form: the snapshot label for snapshots, else the
// dotted version.
func (v McVer) Text() string {
	if v.Snapshot != "" {
		return v.Snapshot
	}
	return v.String()
}

func (v McVer) MarshalText() ([]byte, error) { return []byte(v.Text()), nil }

func (v *McVer) UnmarshalText(b []byte) error {
	p, err := ParseMcVer(string(b))
	if err != nil {
		return err
	}
	*v = p
	return nil
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

// Compare orders releases after their pre-releases and snapshots after the
// release line they belong to.
func (v McVer) Compare(o McVer) int {
	if c := cmp.Compare(v.Major, o.Major); c != 0 {
		return c
	}
	if c := cmp.Compare(v.Minor, o.Minor); c != 0 {
		return c
	}
	if c := cmp.Compare(v.Patch, o.Patch); c != 0 {
		return c
	}
	if c := strings.Compare(orDefault(v.Suffix, "release"), orDefault(o.Suffix, "release")); c != 0 {
		return c
	}
	return strings.Compare(orDefault(v.Snapshot, snapshotSentinel), orDefault(o.Snapshot, snapshotSentinel))
}

func (v McVer) Less(o McVer) bool { return v.Compare(o) < 0 }

// MinorLine returns major.minor.0 of v.
func (v McVer) MinorLine() McVer { return McVer{Major: v.Major, Minor: v.Minor} }
