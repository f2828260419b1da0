// Package modinfo holds the project and version records served by the
// registries and persisted in the metadata cache.
package modinfo

import (
	"slices"
	"strings"
	"time"

	"mcm/codec"
	"mcm/version"
)

func init() {
	codec.MustPrepare[ModInfo]()
	codec.MustPrepare[ModVerInfo]()
	codec.MustPrepare[Source]()
}

type ModFile struct {
	Filename string `codec:"filename,required"`
	Size     *int64 `codec:"size"`
	Hash     Hash   `codec:"hash,required"`
	URL      string `codec:"url"`
}

// Dep is a dependency of a version. ID is the project name (slug).
type Dep struct {
	Required bool   `codec:"is_required"`
	ID       string `codec:"id,required"`
	VerID    string `codec:"ver_id"`
}

// ModVerInfo is the per-version detail that costs an extra request.
type ModVerInfo struct {
	File         ModFile `codec:"file,required"`
	Dependencies []Dep   `codec:"dependencies"`
	Changelog    string  `codec:"changelog"`
}

func (i ModVerInfo) RequiredDeps() []Dep {
	var out []Dep
	for _, d := range i.Dependencies {
		if d.Required {
			out = append(out, d)
		}
	}
	return out
}

type ModVer struct {
	ID            string          `codec:"id,required"`
	VersionString string          `codec:"version_string,required"`
	VersionType   version.VerType `codec:"version_type"`
	Title         string          `codec:"title"`
	Loaders       Loaders         `codec:"loaders"`
	Published     time.Time       `codec:"published"`
	McVersions    []version.McVer `codec:"mcversions"`
}

// Version derives the comparable version from the raw string.
func (v ModVer) Version() version.Ver {
	return version.NewVer(v.VersionType, stripMcVer(v.VersionString, v.McVersions)...)
}

// Compare orders by Version, then by publish time.
func (v ModVer) Compare(o ModVer) int {
	if c := v.Version().Compare(o.Version()); c != 0 {
		return c
	}
	return v.Published.Compare(o.Published)
}

// ModVerPair is a version together with its detail, when known.
type ModVerPair struct {
	Ver  ModVer
	Info *ModVerInfo
}

func (p ModVerPair) ID() string           { return p.Ver.ID }
func (p ModVerPair) Version() version.Ver { return p.Ver.Version() }

func (p ModVerPair) File() *ModFile {
	if p.Info == nil {
		return nil
	}
	return &p.Info.File
}

func (p ModVerPair) Filename() string {
	if p.Info == nil {
		return ""
	}
	return p.Info.File.Filename
}

type ModDesc struct {
	ID         string      `codec:"id,required"`
	Type       Type        `codec:"type"`
	Name       string      `codec:"name,required"`
	Title      string      `codec:"title"`
	Updated    time.Time   `codec:"updated"`
	Created    time.Time   `codec:"created"`
	License    *License    `codec:"license"`
	ShortDesc  string      `codec:"short_desc"`
	Desc       string      `codec:"desc"`
	ClientSide SideSupport `codec:"client_side"`
	ServerSide SideSupport `codec:"server_side"`
	IssuesURL  string      `codec:"issues_url"`
	SourceURL  string      `codec:"source_url"`
	WikiURL    string      `codec:"wiki_url"`
	DiscordURL string      `codec:"discord_url"`
}

// ModInfo is everything cached about one project. Versions are kept sorted
// newest first.
type ModInfo struct {
	Checked     time.Time             `codec:"checked,required"`
	Desc        ModDesc               `codec:"mod_desc,required"`
	Versions    []ModVer              `codec:"versions"`
	VersionInfo map[string]ModVerInfo `codec:"version_info"`
}

func NewModInfo(checked time.Time, desc ModDesc, versions []ModVer, info map[string]ModVerInfo) *ModInfo {
	if info == nil {
		info = make(map[string]ModVerInfo)
	}
	m := &ModInfo{Checked: checked, Desc: desc, Versions: versions, VersionInfo: info}
	m.SortVersions()
	return m
}

func (m *ModInfo) AfterDecode() error {
	if m.VersionInfo == nil {
		m.VersionInfo = make(map[string]ModVerInfo)
	}
	m.SortVersions()
	return nil
}

// SortVersions restores the newest-first order.
func (m *ModInfo) SortVersions() {
	type keyed struct {
		v   ModVer
		ver version.Ver
	}
	ks := make([]keyed, len(m.Versions))
	for i, v := range m.Versions {
		ks[i] = keyed{v, v.Version()}
	}
	slices.SortStableFunc(ks, func(a, b keyed) int {
		if c := b.ver.Compare(a.ver); c != 0 {
			return c
		}
		return b.v.Published.Compare(a.v.Published)
	})
	for i, k := range ks {
		m.Versions[i] = k.v
	}
}

func (m *ModInfo) ID() string   { return m.Desc.ID }
func (m *ModInfo) Name() string { return m.Desc.Name }
func (m *ModInfo) Type() Type   { return m.Desc.Type }

func (m *ModInfo) Title() string {
	if m.Desc.Title != "" {
		return m.Desc.Title
	}
	return m.Desc.Name
}

func (m *ModInfo) GetVersion(id string) (ModVer, bool) {
	for _, v := range m.Versions {
		if v.ID == id {
			return v, true
		}
	}
	return ModVer{}, false
}

// MatchingVersions returns the versions accepted by match without its
// fallback or, when there are none, those accepted with it. The result is
// newest first.
func (m *ModInfo) MatchingVersions(match ModVerMatch) []ModVer {
	var primary, fallback []ModVer
	for _, v := range m.Versions {
		switch match.Test(v, true) {
		case MatchSuccess:
			primary = append(primary, v)
		case MatchFallback:
			fallback = append(fallback, v)
		}
	}
	if len(primary) > 0 {
		return primary
	}
	return fallback
}

func (m *ModInfo) LatestVersion(match ModVerMatch) (ModVer, bool) {
	vs := m.MatchingVersions(match)
	if len(vs) == 0 {
		return ModVer{}, false
	}
	return vs[0], true
}

// MatchResult is the outcome of testing a version against a ModVerMatch.
type MatchResult int

const (
	MatchFail MatchResult = iota
	MatchFallback
	MatchSuccess
)

func (r MatchResult) String() string {
	switch r {
	case MatchSuccess:
		return "success"
	case MatchFallback:
		return "fallback"
	}
	return "fail"
}

// ModVerMatch selects versions of a project. An empty Loader accepts any
// loader and an empty VerStr disables the substring filter.
type ModVerMatch struct {
	Ver      version.VerMatch
	Loader   Loader
	McVer    version.McVerMatch
	Fallback *version.McVerMatch
	VerStr   string

	// ignoreMcVer accepts versions that declare no game version at all.
	ignoreMcVer bool
}

func (m ModVerMatch) Test(v ModVer, fallback bool) MatchResult {
	if !m.Ver.Match(v.Version()) {
		return MatchFail
	}
	if m.Loader != "" && len(v.Loaders) > 0 && !v.Loaders.Has(m.Loader) {
		return MatchFail
	}
	if m.VerStr != "" && !strings.Contains(strings.ToLower(v.VersionString), strings.ToLower(m.VerStr)) {
		return MatchFail
	}
	if m.ignoreMcVer || m.McVer.MatchAny(v.McVersions) {
		return MatchSuccess
	}
	if fallback && m.Fallback != nil && m.Fallback.MatchAny(v.McVersions) {
		return MatchFallback
	}
	return MatchFail
}

// IgnoringMcVer returns m with game-version matching disabled.
func (m ModVerMatch) IgnoringMcVer() ModVerMatch {
	m.McVer = version.AnyMc
	m.Fallback = nil
	m.ignoreMcVer = true
	return m
}
