package resolve

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"mcm/manifest"
	"mcm/modinfo"
	"mcm/version"
)

var errNotFound = errors.New("not found")

type registry struct {
	mu    sync.Mutex
	mods  map[string]*modinfo.ModInfo
	calls map[string]int
}

func newRegistry() *registry {
	return &registry{mods: map[string]*modinfo.ModInfo{}, calls: map[string]int{}}
}

type fakeVer struct {
	id, ver, mc string
	deps        []string
}

func (r *registry) add(name string, vers ...fakeVer) {
	var list []modinfo.ModVer
	detail := map[string]modinfo.ModVerInfo{}
	for i, v := range vers {
		list = append(list, modinfo.ModVer{
			ID:            v.id,
			VersionString: v.ver,
			Published:     time.Date(2022, 1, i+1, 0, 0, 0, 0, time.UTC),
			McVersions:    []version.McVer{version.MustParseMcVer(v.mc)},
		})
		info := modinfo.ModVerInfo{File: modinfo.ModFile{Filename: v.id + ".jar", Hash: modinfo.Hash{Type: modinfo.SHA1, Value: v.id}}}
		for _, d := range v.deps {
			info.Dependencies = append(info.Dependencies, modinfo.Dep{Required: true, ID: d})
		}
		info.Dependencies = append(info.Dependencies, modinfo.Dep{Required: false, ID: "optional-extra"})
		detail[v.id] = info
	}
	desc := modinfo.ModDesc{ID: "id-" + name, Name: name, Type: modinfo.TypeMod}
	r.mods[name] = modinfo.NewModInfo(time.Time{}, desc, list, detail)
}

func (r *registry) GetModInfo(ctx context.Context, src modinfo.SourceType, typ modinfo.Type, name string) (*modinfo.ModInfo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls[name]++
	m, ok := r.mods[name]
	if !ok {
		return nil, fmt.Errorf("%s: %w", name, errNotFound)
	}
	return m, nil
}

func (r *registry) GetVersionInfo(ctx context.Context, src modinfo.SourceType, info *modinfo.ModInfo, ver modinfo.ModVer) (modinfo.ModVerPair, error) {
	d := info.VersionInfo[ver.ID]
	return modinfo.ModVerPair{Ver: ver, Info: &d}, nil
}

func pack(t *testing.T, doc string) (*manifest.Manifest, manifest.BuildType) {
	t.Helper()
	m, err := manifest.Parse([]byte(doc))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	bt, err := m.BuildType("client")
	if err != nil {
		t.Fatal(err)
	}
	return m, bt
}

func resolve(t *testing.T, reg *registry, doc string, opts ...Option) (*Result, error) {
	t.Helper()
	m, bt := pack(t, doc)
	return New(reg, zap.NewNop().Sugar(), opts...).Resolve(context.Background(), m, bt)
}

func names(res *Result) []string {
	var out []string
	for _, m := range res.Downloaded {
		out = append(out, m.Name())
	}
	return out
}

func TestDependencyPulledIn(t *testing.T) {
	reg := newRegistry()
	reg.add("a", fakeVer{id: "a1", ver: "1.0", mc: "1.19.2", deps: []string{"b"}})
	reg.add("b", fakeVer{id: "b1", ver: "1.0", mc: "1.19.2"}, fakeVer{id: "b2", ver: "2.0", mc: "1.19.2"})

	res, err := resolve(t, reg, "mc: 1.19.2\nloader: fabric\nmods: [a]\n")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if got := names(res); !slices.Equal(got, []string{"a", "b"}) {
		t.Fatalf("Downloaded = %v", got)
	}
	a, _ := res.Lookup("a")
	b, _ := res.Lookup("b")
	if !a.IsExplicit() || b.IsExplicit() {
		t.Error("only a should be explicit")
	}
	if b.Ver.ID() != "b2" || !slices.Equal(b.Dependents, []string{"a"}) {
		t.Errorf("b = %s dependents %v", b.Ver.ID(), b.Dependents)
	}
	if reg.calls["optional-extra"] != 0 {
		t.Error("optional dependencies should not be fetched")
	}
}

func TestSharedDependency(t *testing.T) {
	reg := newRegistry()
	reg.add("a", fakeVer{id: "a1", ver: "1.0", mc: "1.19.2", deps: []string{"b"}})
	reg.add("c", fakeVer{id: "c1", ver: "1.0", mc: "1.19.2", deps: []string{"b"}})
	reg.add("b", fakeVer{id: "b1", ver: "1.0", mc: "1.19.2"}, fakeVer{id: "b2", ver: "2.0", mc: "1.19.2"})

	res, err := resolve(t, reg, "mc: 1.19.2\nmods: [a, c]\n")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if got := names(res); !slices.Equal(got, []string{"a", "c", "b"}) {
		t.Fatalf("Downloaded = %v", got)
	}
	b, _ := res.Lookup("b")
	if b.Ver.ID() != "b2" || !slices.Equal(b.Dependents, []string{"a", "c"}) {
		t.Errorf("b = %s dependents %v", b.Ver.ID(), b.Dependents)
	}
	if reg.calls["b"] != 1 {
		t.Errorf("b fetched %d times", reg.calls["b"])
	}
}

func TestExplicitDependencyKeepsItsVersion(t *testing.T) {
	reg := newRegistry()
	reg.add("a", fakeVer{id: "a1", ver: "1.0", mc: "1.19.2", deps: []string{"b"}})
	reg.add("b", fakeVer{id: "b1", ver: "1.0", mc: "1.19.2"}, fakeVer{id: "b2", ver: "2.0", mc: "1.19.2"})

	res, err := resolve(t, reg, "mc: 1.19.2\nmods: [a, 'b:<2']\n")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	b, _ := res.Lookup("b")
	if !b.IsExplicit() || b.Ver.ID() != "b1" || !slices.Equal(b.Dependents, []string{"a"}) {
		t.Errorf("b = %s explicit=%v dependents %v", b.Ver.ID(), b.IsExplicit(), b.Dependents)
	}
	if len(res.Downloaded) != 2 {
		t.Errorf("Downloaded = %v", names(res))
	}
}

func TestFallbackAndWarnings(t *testing.T) {
	reg := newRegistry()
	reg.add("old", fakeVer{id: "o1", ver: "1.0", mc: "1.19.2"})
	reg.add("lagging", fakeVer{id: "l1", ver: "1.0", mc: "1.19.3"}, fakeVer{id: "l2", ver: "2.0", mc: "1.20.1"})

	res, err := resolve(t, reg, "mc: 1.19.3\nmods: [old, lagging]\n")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	old, _ := res.Lookup("old")
	if old.Ver.ID() != "o1" {
		t.Errorf("old resolved to %s", old.Ver.ID())
	}
	if len(res.Warnings.Get("old")) != 0 {
		t.Errorf("fallback match should not warn: %v", res.Warnings.Get("old"))
	}
	lag, _ := res.Lookup("lagging")
	if lag.Ver.ID() != "l1" {
		t.Errorf("lagging resolved to %s", lag.Ver.ID())
	}
	w := res.Warnings.Get("lagging")
	if len(w) != 1 || w[0] != "version 1.0 is older than 2.0" {
		t.Errorf("warnings = %v", w)
	}
	if res.Warnings.Len() != 1 {
		t.Errorf("Len = %d", res.Warnings.Len())
	}
	for mod := range res.Warnings.All() {
		if mod != "lagging" {
			t.Errorf("unexpected warning for %s", mod)
		}
	}
}

func TestNoMatch(t *testing.T) {
	reg := newRegistry()
	reg.add("a", fakeVer{id: "a1", ver: "1.0", mc: "1.19.2", deps: []string{"b"}})
	reg.add("b", fakeVer{id: "b1", ver: "1.0", mc: "1.20.1"})
	reg.add("z", fakeVer{id: "z1", ver: "1.0", mc: "1.20.1"})

	tests := map[string]struct {
		doc string
		mod string
	}{
		"explicit":   {"mc: 1.19.2\nmods: [z]\n", "z"},
		"dependency": {"mc: 1.19.2\nmods: [a]\n", "b"},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := resolve(t, reg, tt.doc)
			if !errors.Is(err, ErrNoMatchingVersion) {
				t.Fatalf("expected ErrNoMatchingVersion, got %v", err)
			}
			var nm *NoMatchError
			if !errors.As(err, &nm) || nm.Mod != tt.mod {
				t.Errorf("expected a NoMatchError for %s, got %v", tt.mod, err)
			}
		})
	}

	if _, err := resolve(t, reg, "mc: 1.19.2\nmods: [missing]\n"); !errors.Is(err, errNotFound) {
		t.Errorf("lookup errors should propagate, got %v", err)
	}
}

func TestLocalEntries(t *testing.T) {
	reg := newRegistry()
	res, err := resolve(t, reg, "mc: 1.19.2\nmods: [./local/thing.jar]\n")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if len(res.Downloaded) != 0 || len(res.Local) != 1 || res.Local[0].Name != "thing.jar" {
		t.Errorf("unexpected result %+v", res)
	}
	if len(reg.calls) != 0 {
		t.Error("local entries should not hit the registry")
	}
}

func TestDeterministicOrderAndProgress(t *testing.T) {
	reg := newRegistry()
	reg.add("a", fakeVer{id: "a1", ver: "1.0", mc: "1.19.2", deps: []string{"z", "y"}})
	reg.add("b", fakeVer{id: "b1", ver: "1.0", mc: "1.19.2", deps: []string{"x"}})
	for _, n := range []string{"x", "y"} {
		reg.add(n, fakeVer{id: n + "1", ver: "1.0", mc: "1.19.2"})
	}
	reg.add("z", fakeVer{id: "z1", ver: "1.0", mc: "1.19.2", deps: []string{"w"}})
	reg.add("w", fakeVer{id: "w1", ver: "1.0", mc: "1.19.2"})

	doc := "mc: 1.19.2\nmods: [a, b]\n"
	var resolved int
	serial, err := resolve(t, reg, doc, WithConcurrency(1), WithProgress(func(e Event) {
		if e.Kind == EventResolved {
			resolved++
		}
	}))
	if err != nil {
		t.Fatal(err)
	}
	parallel, err := resolve(t, reg, doc, WithConcurrency(16))
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"a", "b", "x", "y", "z", "w"}
	if !slices.Equal(names(serial), want) || !slices.Equal(names(parallel), want) {
		t.Errorf("order %v / %v, want %v", names(serial), names(parallel), want)
	}
	if resolved != len(want) {
		t.Errorf("got %d resolved events", resolved)
	}
}

func TestMerge(t *testing.T) {
	reg := newRegistry()
	reg.add("b", fakeVer{id: "b1", ver: "1.0", mc: "1.19.2"}, fakeVer{id: "b2", ver: "2.0", mc: "1.19.2"})
	reg.add("c", fakeVer{id: "c1", ver: "1.0", mc: "1.19.2"})
	info := reg.mods["b"]
	pair := func(id string) modinfo.ModVerPair {
		v, _ := info.GetVersion(id)
		return modinfo.ModVerPair{Ver: v}
	}
	conf := &manifest.ModConf{Name: "b"}

	x := ResolvedMod{Mod: info, Ver: pair("b1"), Conf: conf, Dependents: []string{"c"}}
	y := ResolvedMod{Mod: info, Ver: pair("b2"), Dependents: []string{"a", "c"}}

	xy, err := x.Merge(y)
	if err != nil {
		t.Fatal(err)
	}
	yx, err := y.Merge(x)
	if err != nil {
		t.Fatal(err)
	}
	for _, got := range []ResolvedMod{xy, yx} {
		if got.Ver.ID() != "b2" || got.Conf != conf || !slices.Equal(got.Dependents, []string{"a", "c"}) {
			t.Errorf("merge = %s %v %v", got.Ver.ID(), got.Conf, got.Dependents)
		}
	}
	if xx, _ := x.Merge(x); xx.Ver.ID() != "b1" || !slices.Equal(xx.Dependents, x.Dependents) {
		t.Errorf("merge should be idempotent, got %+v", xx)
	}

	other := ResolvedMod{Mod: reg.mods["c"], Ver: modinfo.ModVerPair{Ver: reg.mods["c"].Versions[0]}}
	if _, err := x.Merge(other); err == nil {
		t.Error("merging different mods should fail")
	}
}
