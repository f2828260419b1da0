package modinfo

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"mcm/codec"
)

// Type is the kind of project. The zero value is a mod.
type Type int

const (
	TypeMod Type = iota
	TypeShaderpack
	TypeDatapack
	TypeResourcepack
)

var typeNames = []string{"mod", "shaderpack", "datapack", "resourcepack"}

// Types lists every project type in declaration order.
var Types = []Type{TypeMod, TypeShaderpack, TypeDatapack, TypeResourcepack}

func (t Type) String() string {
	if int(t) < len(typeNames) {
		return typeNames[t]
	}
	return fmt.Sprintf("Type(%d)", int(t))
}

func ParseType(s string) (Type, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return TypeMod, nil
	}
	for i, n := range typeNames {
		if n == s {
			return Type(i), nil
		}
	}
	return 0, fmt.Errorf("unknown project type %q", s)
}

func (t Type) MarshalText() ([]byte, error) { return []byte(t.String()), nil }

func (t *Type) UnmarshalText(b []byte) error {
	v, err := ParseType(string(b))
	if err != nil {
		return err
	}
	*t = v
	return nil
}

// Loader is a mod-loading runtime.
type Loader string

const (
	Forge      Loader = "forge"
	Fabric     Loader = "fabric"
	LiteLoader Loader = "liteloader"
	ModLoader  Loader = "modloader"
	Quilt      Loader = "quilt"
	Rift       Loader = "rift"
)

var knownLoaders = map[Loader]struct{}{
	Forge: {}, Fabric: {}, LiteLoader: {}, ModLoader: {}, Quilt: {}, Rift: {},
}

func ParseLoader(s string) (Loader, error) {
	l := Loader(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := knownLoaders[l]; !ok {
		return "", fmt.Errorf("unknown loader %q", s)
	}
	return l, nil
}

func (l Loader) MarshalText() ([]byte, error) { return []byte(l), nil }

func (l *Loader) UnmarshalText(b []byte) error {
	v, err := ParseLoader(string(b))
	if err != nil {
		return err
	}
	*l = v
	return nil
}

// Loaders is a set of loaders.
type Loaders map[Loader]struct{}

func NewLoaders(ls ...Loader) Loaders {
	s := make(Loaders, len(ls))
	for _, l := range ls {
		s[l] = struct{}{}
	}
	return s
}

func (s Loaders) Has(l Loader) bool {
	_, ok := s[l]
	return ok
}

func (s Loaders) names() []string {
	names := make([]string, 0, len(s))
	for l := range s {
		names = append(names, string(l))
	}
	sort.Strings(names)
	return names
}

func (s Loaders) String() string { return strings.Join(s.names(), ", ") }

// EncodeValue writes the sorted loader names. Registries report loaders
// this package does not know, which are kept as-is so that loader checks
// still reject them.
func (s Loaders) EncodeValue() (any, error) {
	out := make([]any, 0, len(s))
	for _, n := range s.names() {
		out = append(out, n)
	}
	return out, nil
}

func (s *Loaders) DecodeValue(in any) error {
	list, ok := in.([]any)
	if !ok {
		return fmt.Errorf("expected list of loaders, got %T", in)
	}
	out := make(Loaders, len(list))
	for _, v := range list {
		name, ok := v.(string)
		if !ok {
			return fmt.Errorf("expected loader name, got %T", v)
		}
		if name = strings.ToLower(strings.TrimSpace(name)); name == "" {
			return fmt.Errorf("empty loader name")
		}
		out[Loader(name)] = struct{}{}
	}
	*s = out
	return nil
}

// Side is a bit set of the sides a mod is installed on.
type Side uint8

const (
	SideNone   Side = 0
	SideClient Side = 1
	SideServer Side = 2
	SideBoth        = SideClient | SideServer
)

func (s Side) String() string {
	switch s {
	case SideNone:
		return "none"
	case SideClient:
		return "client"
	case SideServer:
		return "server"
	case SideBoth:
		return "both"
	}
	return fmt.Sprintf("Side(%d)", uint8(s))
}

// ParseSide accepts the flag names. An empty string is both sides.
func ParseSide(s string) (Side, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "both":
		return SideBoth, nil
	case "client":
		return SideClient, nil
	case "server":
		return SideServer, nil
	case "none":
		return SideNone, nil
	}
	return 0, fmt.Errorf("unknown side %q", s)
}

func (s Side) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *Side) UnmarshalText(b []byte) error {
	v, err := ParseSide(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// SideSupport is how a project declares support for one side.
type SideSupport string

const (
	SideUnsupported SideSupport = "unsupported"
	SideOptional    SideSupport = "optional"
	SideRequired    SideSupport = "required"
)

func ParseSideSupport(s string) (SideSupport, error) {
	switch v := SideSupport(strings.ToLower(s)); v {
	case SideUnsupported, SideOptional, SideRequired:
		return v, nil
	case "unknown":
		return SideOptional, nil
	}
	return "", fmt.Errorf("unknown side support %q", s)
}

func (s SideSupport) MarshalText() ([]byte, error) { return []byte(s), nil }

func (s *SideSupport) UnmarshalText(b []byte) error {
	v, err := ParseSideSupport(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// SourceType names a registry. The zero value is Modrinth.
type SourceType int

const (
	SourceModrinth SourceType = iota
	SourceCurseForge
	SourceLocal
)

func (t SourceType) String() string {
	switch t {
	case SourceModrinth:
		return "modrinth"
	case SourceCurseForge:
		return "curseforge"
	case SourceLocal:
		return "local"
	}
	return fmt.Sprintf("SourceType(%d)", int(t))
}

// Source is where a manifest entry comes from: a registry, or a local path.
type Source struct {
	Type SourceType
	Path string
}

var (
	Modrinth   = Source{Type: SourceModrinth}
	CurseForge = Source{Type: SourceCurseForge}
)

func LocalSource(path string) Source { return Source{Type: SourceLocal, Path: path} }

func ParseSource(s string) Source {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "modrinth":
		return Modrinth
	case "curse", "curseforge":
		return CurseForge
	}
	return LocalSource(s)
}

func (s Source) IsLocal() bool { return s.Type == SourceLocal }

func (s Source) String() string {
	if s.IsLocal() {
		return s.Path
	}
	return s.Type.String()
}

// LocalPath expands a leading "~" in a local source path.
func (s Source) LocalPath() string {
	if rest, ok := strings.CutPrefix(s.Path, "~"); ok {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, rest)
		}
	}
	return s.Path
}

func (s Source) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *Source) UnmarshalText(b []byte) error {
	*s = ParseSource(string(b))
	return nil
}

// LicenseType groups licenses by how they may be redistributed.
type LicenseType string

const (
	LicenseClosed     LicenseType = "closed"
	LicensePermissive LicenseType = "permissive"
	LicenseCopyleft   LicenseType = "copyleft"
	LicenseLGPL       LicenseType = "lgpl"
	LicenseCustom     LicenseType = "custom"
	LicenseDangerous  LicenseType = "dangerous"
)

func (t LicenseType) MarshalText() ([]byte, error) { return []byte(t), nil }

func (t *LicenseType) UnmarshalText(b []byte) error {
	switch v := LicenseType(b); v {
	case LicenseClosed, LicensePermissive, LicenseCopyleft, LicenseLGPL, LicenseCustom, LicenseDangerous:
		*t = v
		return nil
	}
	return fmt.Errorf("unknown license type %q", b)
}

// License is encoded as {"std": key} for well-known licenses and
// {"custom": {"type": ..., "name": ...}} otherwise.
type License struct {
	Type LicenseType
	Name string
}

// StdLicenses are the well-known licenses, keyed by their encoded name.
var StdLicenses = map[string]License{
	"Closed":    {LicenseClosed, "Closed"},
	"PD":        {LicensePermissive, "Public Domain"},
	"MIT":       {LicensePermissive, "MIT"},
	"BSD":       {LicensePermissive, "BSD"},
	"ISC":       {LicensePermissive, "ISC"},
	"zlib":      {LicensePermissive, "zlib"},
	"Apache":    {LicensePermissive, "Apache"},
	"CC0":       {LicensePermissive, "CC0"},
	"Unlicense": {LicensePermissive, "Unlicense"},
	"GPL":       {LicenseCopyleft, "GPL"},
	"CC":        {LicenseLGPL, "CreativeCommons"},
	"MPL":       {LicenseLGPL, "MPL"},
	"LGPL":      {LicenseLGPL, "LGPL"},
	"AGPL":      {LicenseDangerous, "AGPL"},
}

func (l License) String() string { return l.Name }

// StdKey returns the key of l in StdLicenses, if any.
func (l License) StdKey() (string, bool) {
	for k, v := range StdLicenses {
		if v == l {
			return k, true
		}
	}
	return "", false
}

func (l License) EncodeValue() (any, error) {
	if k, ok := l.StdKey(); ok {
		return map[string]any{"std": k}, nil
	}
	custom, err := codec.EncodeStructural(l)
	if err != nil {
		return nil, err
	}
	return map[string]any{"custom": custom}, nil
}

func (l *License) DecodeValue(in any) error {
	m, ok := in.(map[string]any)
	if !ok {
		return fmt.Errorf("expected license variant, got %T", in)
	}
	if k, ok := m["std"]; ok {
		key, _ := k.(string)
		v, ok := StdLicenses[key]
		if !ok {
			return fmt.Errorf("unknown standard license %q", key)
		}
		*l = v
		return nil
	}
	if c, ok := m["custom"]; ok {
		return codec.DecodeStructural(c, l)
	}
	return fmt.Errorf("license variant needs a std or custom key")
}
