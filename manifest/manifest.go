// Package manifest loads the modpack definition: the mod list, the target
// game version and loader, output directories and build types.
package manifest

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"mcm/codec"
	"mcm/modinfo"
	"mcm/version"
)

func init() {
	codec.MustPrepare[Manifest]()
	codec.MustPrepare[ModConf]()
	codec.MustPrepare[ModGroup]()
}

var (
	ErrUnknownBuildType = errors.New("unknown build type")
	ErrDuplicateMod     = errors.New("mod listed twice")
)

type TargetDirs struct {
	Datapacks     string `codec:"datapacks"`
	Resourcepacks string `codec:"resourcepacks"`
	Shaderpacks   string `codec:"shaderpacks"`
	Mods          string `codec:"mods"`
	DefaultConfig string `codec:"defaultconfig"`
	Config        string `codec:"config"`
}

var DefaultTargetDirs = TargetDirs{
	Datapacks:     "datapacks",
	Resourcepacks: "resourcepacks",
	Shaderpacks:   "shaderpacks",
	Mods:          "mods",
	DefaultConfig: "defaultconfigs",
	Config:        "config",
}

func (TargetDirs) CodecDefaults() any { return DefaultTargetDirs }

// Dir returns the directory files of type t are installed to.
func (d TargetDirs) Dir(t modinfo.Type) string {
	switch t {
	case modinfo.TypeShaderpack:
		return d.Shaderpacks
	case modinfo.TypeDatapack:
		return d.Datapacks
	case modinfo.TypeResourcepack:
		return d.Resourcepacks
	}
	return d.Mods
}

func (d TargetDirs) All() []string {
	return []string{d.Datapacks, d.Resourcepacks, d.Shaderpacks, d.Mods, d.DefaultConfig, d.Config}
}

// Resolve joins every directory onto base, which must be absolute.
func (d TargetDirs) Resolve(base string) (TargetDirs, error) {
	base = filepath.Clean(base)
	if !filepath.IsAbs(base) {
		return TargetDirs{}, fmt.Errorf("target directory %q is not absolute", base)
	}
	join := func(p string) string {
		if filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(base, p)
	}
	return TargetDirs{
		Datapacks:     join(d.Datapacks),
		Resourcepacks: join(d.Resourcepacks),
		Shaderpacks:   join(d.Shaderpacks),
		Mods:          join(d.Mods),
		DefaultConfig: join(d.DefaultConfig),
		Config:        join(d.Config),
	}, nil
}

type BuildType struct {
	Name  string       `codec:"-"`
	Side  modinfo.Side `codec:"side,required"`
	Title string       `codec:"title"`
}

func (b BuildType) HasClient() bool { return b.Side&modinfo.SideClient != 0 }
func (b BuildType) HasServer() bool { return b.Side&modinfo.SideServer != 0 }

func (b BuildType) DisplayName() string {
	if b.Title != "" {
		return b.Title
	}
	return b.Name
}

// Disabled is false, true, or a reason string (which disables the entry).
type Disabled struct {
	Yes    bool
	Reason string
}

func (d Disabled) EncodeValue() (any, error) {
	if d.Reason != "" {
		return d.Reason, nil
	}
	return d.Yes, nil
}

func (d *Disabled) DecodeValue(in any) error {
	switch v := in.(type) {
	case bool:
		*d = Disabled{Yes: v}
	case string:
		if b, err := strconv.ParseBool(v); err == nil {
			*d = Disabled{Yes: b}
		} else {
			*d = Disabled{Yes: true, Reason: v}
		}
	default:
		return fmt.Errorf("expected bool or string, got %T", in)
	}
	return nil
}

// ModConf is one manifest entry. The pointer fields are filled from the
// group and manifest defaults when the manifest is loaded.
type ModConf struct {
	Name          string              `codec:"name,required"`
	Version       version.VerMatch    `codec:"version"`
	Match         string              `codec:"match"`
	McVer         *version.McVerMatch `codec:"mcver"`
	FallbackMcVer *version.McVerMatch `codec:"fallback_mcver"`
	Type          *modinfo.Type       `codec:"type"`
	Side          *modinfo.Side       `codec:"side"`
	Source        *modinfo.Source     `codec:"source"`
	Comment       string              `codec:"comment"`
	Disabled      Disabled            `codec:"disabled"`
	InBuilds      []string            `codec:"in_builds"`
	NotInBuilds   []string            `codec:"not_in_builds"`

	// Group is the name of the enclosing group, if any.
	Group string `codec:"-"`
}

// ParseModConf reads the "source/name:range" shorthand. Source and range
// are optional; the source is split at the last "/" so local paths work.
func ParseModConf(s string) (ModConf, error) {
	c := ModConf{Name: strings.TrimSpace(s)}
	if err := c.expandName(); err != nil {
		return ModConf{}, err
	}
	return c, nil
}

func (c *ModConf) expandName() error {
	name := c.Name
	if i := strings.LastIndex(name, "/"); c.Source == nil && i >= 0 {
		src := modinfo.ParseSource(name[:i])
		if src.IsLocal() {
			// The whole path names the local file or directory.
			file, _, _ := strings.Cut(name[i+1:], ":")
			src = modinfo.LocalSource(name[:i] + "/" + file)
		}
		c.Source = &src
		name = name[i+1:]
	}
	if n, rng, ok := strings.Cut(name, ":"); ok {
		m, err := version.ParseVerMatch(rng)
		if err != nil {
			return fmt.Errorf("mod %s: %w", n, err)
		}
		c.Version = m
		name = n
	}
	if name == "" {
		return fmt.Errorf("mod entry %q has no name", c.Name)
	}
	c.Name = name
	if c.McVer != nil && c.FallbackMcVer == nil {
		fb := *c.McVer
		c.FallbackMcVer = &fb
	}
	return nil
}

func (c ModConf) EncodeValue() (any, error) { return codec.EncodeStructural(c) }

func (c *ModConf) DecodeValue(in any) error {
	if s, ok := in.(string); ok {
		v, err := ParseModConf(s)
		if err != nil {
			return err
		}
		*c = v
		return nil
	}
	var v ModConf
	if err := codec.DecodeStructural(in, &v); err != nil {
		return err
	}
	if err := v.expandName(); err != nil {
		return err
	}
	*c = v
	return nil
}

func (c ModConf) ModType() modinfo.Type {
	if c.Type == nil {
		return modinfo.TypeMod
	}
	return *c.Type
}

func (c ModConf) ModSide() modinfo.Side {
	if c.Side == nil {
		return modinfo.SideBoth
	}
	return *c.Side
}

func (c ModConf) ModSource() modinfo.Source {
	if c.Source == nil {
		return modinfo.Modrinth
	}
	return *c.Source
}

func (c ModConf) IsEnabled() bool { return !c.Disabled.Yes }

// IsEnabledFor reports whether the entry is part of builds of type bt.
func (c ModConf) IsEnabledFor(bt BuildType) bool {
	return c.ModSide()&bt.Side != 0 &&
		(c.InBuilds == nil || slices.Contains(c.InBuilds, bt.Name)) &&
		(c.NotInBuilds == nil || !slices.Contains(c.NotInBuilds, bt.Name))
}

// VerMatch builds the version predicate of the entry. The loader only
// applies to mods.
func (c ModConf) VerMatch(loader modinfo.Loader) modinfo.ModVerMatch {
	m := modinfo.ModVerMatch{Ver: c.Version, VerStr: c.Match, Fallback: c.FallbackMcVer}
	if c.McVer != nil {
		m.McVer = *c.McVer
	}
	if c.ModType() == modinfo.TypeMod {
		m.Loader = loader
	}
	return m
}

type defaults struct {
	typ      *modinfo.Type
	side     *modinfo.Side
	source   *modinfo.Source
	mcver    *version.McVerMatch
	fallback *version.McVerMatch
}

func coalesce[T any](v, def *T) *T {
	if v != nil {
		return v
	}
	return def
}

func ptr[T any](v T) *T { return &v }

func (c ModConf) withDefaults(d defaults, group string) ModConf {
	if t := coalesce(c.Type, d.typ); c.Side == nil && t != nil &&
		(*t == modinfo.TypeShaderpack || *t == modinfo.TypeResourcepack) {
		c.Side = ptr(modinfo.SideClient)
	}
	c.Type = coalesce(c.Type, d.typ)
	c.Side = coalesce(c.Side, d.side)
	c.Source = coalesce(c.Source, d.source)
	c.McVer = coalesce(c.McVer, d.mcver)
	c.FallbackMcVer = coalesce(c.FallbackMcVer, d.fallback)
	if c.Group == "" {
		c.Group = group
	}
	return c
}

type ModGroup struct {
	Name          string              `codec:"group,required"`
	Mods          []Entry             `codec:"mods"`
	Desc          string              `codec:"desc"`
	DefaultType   *modinfo.Type       `codec:"default_type"`
	DefaultSource *modinfo.Source     `codec:"default_source"`
	DefaultSide   *modinfo.Side       `codec:"default_side"`
	DefaultMcVer  *version.McVerMatch `codec:"default_mcver"`
}

func (g ModGroup) withDefaults(d defaults) ModGroup {
	d.typ = coalesce(g.DefaultType, d.typ)
	d.source = coalesce(g.DefaultSource, d.source)
	d.side = coalesce(g.DefaultSide, d.side)
	d.mcver = coalesce(g.DefaultMcVer, d.mcver)
	mods := make([]Entry, len(g.Mods))
	for i, e := range g.Mods {
		mods[i] = e.withDefaults(d, g.Name)
	}
	g.Mods = mods
	return g
}

// Entry is a mod list item: a single mod or a group, told apart by the
// "group" key.
type Entry struct {
	Mod   *ModConf
	Group *ModGroup
}

func (e Entry) EncodeValue() (any, error) {
	if e.Group != nil {
		return codec.Encode(*e.Group)
	}
	if e.Mod != nil {
		return codec.Encode(*e.Mod)
	}
	return nil, fmt.Errorf("empty mod list entry")
}

func (e *Entry) DecodeValue(in any) error {
	if m, ok := in.(map[string]any); ok {
		if _, isGroup := m["group"]; isGroup {
			var g ModGroup
			if err := codec.Decode(in, &g); err != nil {
				return err
			}
			*e = Entry{Group: &g}
			return nil
		}
	}
	var c ModConf
	if err := codec.Decode(in, &c); err != nil {
		return err
	}
	*e = Entry{Mod: &c}
	return nil
}

func (e Entry) withDefaults(d defaults, group string) Entry {
	if e.Group != nil {
		g := e.Group.withDefaults(d)
		return Entry{Group: &g}
	}
	c := e.Mod.withDefaults(d, group)
	return Entry{Mod: &c}
}

func flatten(entries []Entry, out []ModConf) []ModConf {
	for _, e := range entries {
		if e.Group != nil {
			out = flatten(e.Group.Mods, out)
		} else if e.Mod != nil {
			out = append(out, *e.Mod)
		}
	}
	return out
}

var defaultBuildTypes = map[string]BuildType{
	"client": {Name: "client", Side: modinfo.SideClient, Title: "Client"},
	"server": {Name: "server", Side: modinfo.SideServer, Title: "Server"},
}

type Manifest struct {
	Mods       []Entry              `codec:"mods"`
	Mc         version.McVer        `codec:"mc,required"`
	Loader     modinfo.Loader       `codec:"loader"`
	TargetDirs TargetDirs           `codec:"target_dirs"`
	Copy       map[string]string    `codec:"copy"`
	BuildTypes map[string]BuildType `codec:"build_types"`

	// Path is the file the manifest was loaded from.
	Path  string             `codec:"-"`
	index map[string]ModConf
}

func (Manifest) CodecDefaults() any {
	return Manifest{Loader: modinfo.Forge, TargetDirs: DefaultTargetDirs}
}

// AfterDecode applies the default cascade and indexes the mods by name.
func (m *Manifest) AfterDecode() error {
	if len(m.BuildTypes) == 0 {
		m.BuildTypes = make(map[string]BuildType, len(defaultBuildTypes))
		for k, v := range defaultBuildTypes {
			m.BuildTypes[k] = v
		}
	}
	for k, bt := range m.BuildTypes {
		bt.Name = k
		m.BuildTypes[k] = bt
	}

	d := defaults{
		typ:      ptr(modinfo.TypeMod),
		side:     ptr(modinfo.SideBoth),
		source:   ptr(modinfo.Modrinth),
		mcver:    ptr(m.DefaultMcVer()),
		fallback: ptr(m.DefaultFallbackMcVer()),
	}
	mods := make([]Entry, len(m.Mods))
	for i, e := range m.Mods {
		mods[i] = e.withDefaults(d, "")
	}
	m.Mods = mods

	m.index = make(map[string]ModConf)
	for _, c := range m.FlatMods() {
		if _, dup := m.index[c.Name]; dup {
			return fmt.Errorf("%w: %s", ErrDuplicateMod, c.Name)
		}
		m.index[c.Name] = c
	}
	return nil
}

// DefaultMcVer accepts exactly the pack's game version.
func (m *Manifest) DefaultMcVer() version.McVerMatch { return version.ExactMc(m.Mc) }

// DefaultFallbackMcVer accepts any version on the pack's minor line.
func (m *Manifest) DefaultFallbackMcVer() version.McVerMatch {
	return version.CompatibleMc(m.Mc.MinorLine())
}

// DependencyMatch is the predicate used for transitive dependencies: any
// version range, the pack's loader and its default game-version matches.
func (m *Manifest) DependencyMatch() modinfo.ModVerMatch {
	fb := m.DefaultFallbackMcVer()
	return modinfo.ModVerMatch{
		Ver:      version.AnyVer,
		Loader:   m.Loader,
		McVer:    m.DefaultMcVer(),
		Fallback: &fb,
	}
}

func (m *Manifest) FlatMods() []ModConf { return flatten(m.Mods, nil) }

func (m *Manifest) EnabledMods() []ModConf {
	var out []ModConf
	for _, c := range m.FlatMods() {
		if c.IsEnabled() {
			out = append(out, c)
		}
	}
	return out
}

// Lookup finds an entry by name.
func (m *Manifest) Lookup(name string) (ModConf, bool) {
	c, ok := m.index[name]
	return c, ok
}

func (m *Manifest) BuildType(name string) (BuildType, error) {
	bt, ok := m.BuildTypes[name]
	if !ok {
		return BuildType{}, fmt.Errorf("%w: %s", ErrUnknownBuildType, name)
	}
	return bt, nil
}

// BuildTypeNames returns the build type names in sorted order.
func (m *Manifest) BuildTypeNames() []string {
	names := make([]string, 0, len(m.BuildTypes))
	for k := range m.BuildTypes {
		names = append(names, k)
	}
	slices.Sort(names)
	return names
}

// BuildTypeMods returns the enabled entries that are part of bt.
func (m *Manifest) BuildTypeMods(bt BuildType) []ModConf {
	var out []ModConf
	for _, c := range m.EnabledMods() {
		if c.IsEnabledFor(bt) {
			out = append(out, c)
		}
	}
	return out
}

// LocalPath resolves a local source relative to the manifest's directory.
func (m *Manifest) LocalPath(src modinfo.Source) string {
	p := src.LocalPath()
	if filepath.IsAbs(p) || m.Path == "" {
		return p
	}
	return filepath.Join(filepath.Dir(m.Path), p)
}

// Parse reads a manifest from YAML.
func Parse(data []byte) (*Manifest, error) {
	raw, err := parseYAML(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}
	var m Manifest
	if err := codec.Decode(raw, &m); err != nil {
		return nil, fmt.Errorf("invalid manifest: %w", err)
	}
	return &m, nil
}

// Load reads the manifest at path.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}
	m, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	m.Path = path
	return m, nil
}
