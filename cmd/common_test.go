package cmd

import (
	"strings"
	"testing"

	"mcm/manifest"
	"mcm/modinfo"
	"mcm/modrinth"
	"mcm/version"
)

func TestParseSourceFlag(t *testing.T) {
	tests := []struct {
		input    string
		expected modinfo.SourceType
		wantErr  bool
	}{
		{"modrinth", modinfo.SourceModrinth, false},
		{"", modinfo.SourceModrinth, false},
		{"CurseForge", modinfo.SourceCurseForge, false},
		{"curse", modinfo.SourceCurseForge, false},
		{"./mods/local.jar", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := parseSourceFlag(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseSourceFlag(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.expected {
				t.Errorf("parseSourceFlag(%q) = %v, want %v", tt.input, got, tt.expected)
			}
		})
	}
}

func TestParseTypeFlag(t *testing.T) {
	tests := []struct {
		input    string
		expected modinfo.Type
		wantErr  bool
	}{
		{"mod", modinfo.TypeMod, false},
		{"shaderpack", modinfo.TypeShaderpack, false},
		{"Resourcepack", modinfo.TypeResourcepack, false},
		{"plugin", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := parseTypeFlag(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseTypeFlag(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.expected {
				t.Errorf("parseTypeFlag(%q) = %v, want %v", tt.input, got, tt.expected)
			}
		})
	}
}

func TestMatchFlags(t *testing.T) {
	t.Run("unset matches anything", func(t *testing.T) {
		var f matchFlags
		if f.set() {
			t.Fatal("empty flags reported as set")
		}
		m, err := f.parse()
		if err != nil {
			t.Fatalf("parse failed: %v", err)
		}
		if !m.McVer.Any() || m.Loader != "" {
			t.Errorf("unexpected match %+v", m)
		}
	})

	t.Run("all filters", func(t *testing.T) {
		f := matchFlags{version: ">=1.0,<2", mcver: "1.19.2", loader: "fabric", match: "beta"}
		if !f.set() {
			t.Fatal("flags not reported as set")
		}
		m, err := f.parse()
		if err != nil {
			t.Fatalf("parse failed: %v", err)
		}
		if m.Loader != modinfo.Fabric || m.VerStr != "beta" {
			t.Errorf("unexpected match %+v", m)
		}
		v := modinfo.ModVer{
			ID:            "x",
			VersionString: "1.5-beta",
			Loaders:       modinfo.NewLoaders(modinfo.Fabric),
			McVersions:    []version.McVer{version.MustParseMcVer("1.19.2")},
		}
		if got := m.Test(v, false); got != modinfo.MatchSuccess {
			t.Errorf("Test = %v, want success", got)
		}
		v.Loaders = modinfo.NewLoaders(modinfo.Forge)
		if got := m.Test(v, false); got != modinfo.MatchFail {
			t.Errorf("Test with other loader = %v, want fail", got)
		}
	})

	t.Run("invalid", func(t *testing.T) {
		for _, f := range []matchFlags{{version: "1.0@gamma"}, {mcver: "one"}, {loader: "bukkit"}} {
			if _, err := f.parse(); err == nil {
				t.Errorf("parse(%+v) should fail", f)
			}
		}
	})
}

func TestSearchCriteria(t *testing.T) {
	setSearchFlags := func(typ, loader, mcver string) {
		oldType, oldLoader, oldMcVer := searchType, searchLoader, searchMcVer
		t.Cleanup(func() { searchType, searchLoader, searchMcVer = oldType, oldLoader, oldMcVer })
		searchType, searchLoader, searchMcVer = typ, loader, mcver
	}

	t.Run("mod with loader", func(t *testing.T) {
		setSearchFlags("mod", "fabric", "1.19.2")
		c, err := searchCriteria([]string{"sodium", "extra"})
		if err != nil {
			t.Fatalf("searchCriteria failed: %v", err)
		}
		if c.Query != "sodium extra" || c.Loader != modinfo.Fabric || c.McVer.Any() {
			t.Errorf("unexpected criteria %+v", c)
		}
	})

	t.Run("loader ignored for shaders", func(t *testing.T) {
		setSearchFlags("shaderpack", "fabric", "")
		c, err := searchCriteria([]string{"bsl"})
		if err != nil {
			t.Fatalf("searchCriteria failed: %v", err)
		}
		if c.Type != modinfo.TypeShaderpack || c.Loader != "" || !c.McVer.Any() {
			t.Errorf("unexpected criteria %+v", c)
		}
	})

	t.Run("bad type", func(t *testing.T) {
		setSearchFlags("plugin", "", "")
		if _, err := searchCriteria(nil); err == nil {
			t.Error("expected an error")
		}
	})

	if searchSort != string(modrinth.SortRelevance) {
		t.Errorf("default sort = %q", searchSort)
	}
}

func TestDumpManifest(t *testing.T) {
	m, err := manifest.Parse([]byte(`
mc: 1.19.2
loader: fabric
mods:
  - sodium
  - name: iris
    side: client
  - name: lithium
    disabled: true
`))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	out, err := dumpManifest(m, "", false)
	if err != nil {
		t.Fatalf("dumpManifest failed: %v", err)
	}
	for _, name := range []string{"sodium", "iris", "lithium"} {
		if !strings.Contains(out, name) {
			t.Errorf("table is missing %s:\n%s", name, out)
		}
	}

	out, err = dumpManifest(m, "server", false)
	if err != nil {
		t.Fatalf("dumpManifest failed: %v", err)
	}
	if strings.Contains(out, "iris") {
		t.Errorf("client-only entry listed for server:\n%s", out)
	}

	if _, err := dumpManifest(m, "nope", false); err == nil {
		t.Error("expected an error for an unknown build type")
	}

	out, err = dumpManifest(m, "", true)
	if err != nil {
		t.Fatalf("dumpManifest yaml failed: %v", err)
	}
	for _, want := range []string{"mods:", "1.19.2", "fabric", "iris"} {
		if !strings.Contains(out, want) {
			t.Errorf("yaml is missing %q:\n%s", want, out)
		}
	}
}
