package build

import (
	"archive/zip"
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"

	"go.uber.org/zap"

	"mcm/db"
	"mcm/manifest"
	"mcm/modinfo"
	"mcm/resolve"
)

type fakeFiles map[string]string

func (f fakeFiles) CopyFile(ctx context.Context, dest string, src modinfo.SourceType, info *modinfo.ModInfo, ver modinfo.ModVer) error {
	return os.WriteFile(dest, []byte(f[ver.ID]), 0o644)
}

func sha1Hex(s string) string {
	sum := sha1.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}

func resolved(name, verID, filename, content string, typ modinfo.Type, explicit bool) *resolve.ResolvedMod {
	v := modinfo.ModVer{ID: verID, VersionString: "1.0"}
	info := modinfo.NewModInfo(time.Time{}, modinfo.ModDesc{ID: "id-" + name, Name: name, Type: typ}, []modinfo.ModVer{v}, nil)
	rm := &resolve.ResolvedMod{
		Mod:    info,
		Source: modinfo.SourceModrinth,
		Ver: modinfo.ModVerPair{Ver: v, Info: &modinfo.ModVerInfo{
			File: modinfo.ModFile{Filename: filename, Hash: modinfo.Hash{Type: modinfo.SHA1, Value: sha1Hex(content)}},
		}},
	}
	if explicit {
		rm.Conf = &manifest.ModConf{Name: name}
	} else {
		rm.Dependents = []string{"iris", "sodium"}
	}
	return rm
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

const packYAML = `mc: 1.19.2
copy:
  extra/options.txt: options.txt
mods:
  - ./local/thing.jar
  - {name: ./res/mypack, type: resourcepack}
`

func setup(t *testing.T) (dir string, m *manifest.Manifest, bt manifest.BuildType, res *resolve.Result) {
	t.Helper()
	dir = t.TempDir()
	writeFile(t, filepath.Join(dir, "pack", "modpak.yml"), packYAML)
	writeFile(t, filepath.Join(dir, "pack", "local", "thing.jar"), "thing")
	writeFile(t, filepath.Join(dir, "pack", "res", "mypack", "pack.mcmeta"), "{}")
	writeFile(t, filepath.Join(dir, "pack", "res", "mypack", "assets", "a.txt"), "a")
	writeFile(t, filepath.Join(dir, "pack", "extra", "options.txt"), "fov:90")

	m, err := manifest.Load(filepath.Join(dir, "pack", "modpak.yml"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	bt, err = m.BuildType("client")
	if err != nil {
		t.Fatal(err)
	}
	res = &resolve.Result{
		Local: m.BuildTypeMods(bt),
		Downloaded: []*resolve.ResolvedMod{
			resolved("sodium", "s1", "sodium.jar", "sodium-bytes", modinfo.TypeMod, true),
			resolved("fabric-api", "f1", "fabric-api.jar", "fapi", modinfo.TypeMod, false),
			resolved("bsl", "b1", "bsl.zip", "shader", modinfo.TypeShaderpack, true),
		},
		Warnings: resolve.NewWarnings(),
	}
	return dir, m, bt, res
}

func TestBuild(t *testing.T) {
	dir, m, bt, res := setup(t)
	out := filepath.Join(dir, "out")
	target := filepath.Join(out, "client")

	writeFile(t, filepath.Join(target, "mods", "stale.jar"), "old")
	writeFile(t, filepath.Join(target, "mods", "notes.txt"), "keep")
	writeFile(t, filepath.Join(target, "config", "old", "x.cfg"), "old")
	writeFile(t, filepath.Join(target, "shaderpacks", "olddir", "shader.txt"), "old")

	conn, err := db.Open(filepath.Join(dir, "history.db"), zap.NewNop().Sugar())
	if err != nil {
		t.Fatal(err)
	}
	files := fakeFiles{"s1": "sodium-bytes", "f1": "fapi", "b1": "shader"}
	b := New(files, zap.NewNop().Sugar(), WithHistory(conn), WithConcurrency(2))

	record, err := b.Build(context.Background(), m, bt, res, out)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	for _, p := range []string{"mods/stale.jar", "config/old", "shaderpacks/olddir", "defaultconfigs"} {
		if exists(filepath.Join(target, p)) {
			t.Errorf("%s should have been removed", p)
		}
	}
	for _, p := range []string{"mods/notes.txt", "mods/thing.jar", "mods/sodium.jar", "mods/fabric-api.jar", "shaderpacks/bsl.zip", "resourcepacks/mypack.zip", "options.txt"} {
		if !exists(filepath.Join(target, p)) {
			t.Errorf("%s should exist", p)
		}
	}

	zr, err := zip.OpenReader(filepath.Join(target, "resourcepacks", "mypack.zip"))
	if err != nil {
		t.Fatal(err)
	}
	defer zr.Close()
	var names []string
	for _, f := range zr.File {
		names = append(names, f.Name)
	}
	for _, want := range []string{"pack.mcmeta", "assets/a.txt"} {
		if !slices.Contains(names, want) {
			t.Errorf("zip is missing %s: %v", want, names)
		}
	}

	if len(record.Artifacts) != 5 {
		t.Fatalf("got %d artifacts", len(record.Artifacts))
	}
	latest, err := db.LatestBuild(conn, "client", target)
	if err != nil {
		t.Fatal(err)
	}
	if len(latest.Artifacts) != 5 || latest.McVersion != "1.19.2" {
		t.Errorf("recorded build = %+v", latest)
	}
	for _, a := range latest.Artifacts {
		if a.Name == "fabric-api" && (a.Explicit || a.Dependents != "iris,sodium") {
			t.Errorf("fabric-api artifact = %+v", a)
		}
	}
}

func TestCheck(t *testing.T) {
	dir, m, bt, res := setup(t)
	out := filepath.Join(dir, "out")
	files := fakeFiles{"s1": "sodium-bytes", "f1": "fapi", "b1": "shader"}
	if _, err := New(files, zap.NewNop().Sugar()).Build(context.Background(), m, bt, res, out); err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	problems, err := Check(m, bt, res, out)
	if err != nil || len(problems) != 0 {
		t.Fatalf("fresh build should verify, got %v, %v", problems, err)
	}

	target := filepath.Join(out, "client")
	writeFile(t, filepath.Join(target, "mods", "sodium.jar"), "tampered")
	if err := os.Remove(filepath.Join(target, "shaderpacks", "bsl.zip")); err != nil {
		t.Fatal(err)
	}
	problems, err = Check(m, bt, res, out)
	if err != nil {
		t.Fatal(err)
	}
	if len(problems) != 2 {
		t.Fatalf("got problems %v", problems)
	}
	if problems[0].Mod != "sodium" || !errors.Is(problems[0].Err, ErrHashInvalid) {
		t.Errorf("problem[0] = %s", problems[0])
	}
	if problems[1].Mod != "bsl" || !errors.Is(problems[1].Err, ErrMissing) {
		t.Errorf("problem[1] = %s", problems[1])
	}
}

func TestCopyMustStayInTarget(t *testing.T) {
	dir, m, bt, res := setup(t)
	m.Copy = map[string]string{"extra/options.txt": "../escape.txt"}
	files := fakeFiles{"s1": "sodium-bytes", "f1": "fapi", "b1": "shader"}
	if _, err := New(files, zap.NewNop().Sugar()).Build(context.Background(), m, bt, res, filepath.Join(dir, "out")); err == nil {
		t.Error("expected an error for a copy leaving the target")
	}
}

func TestEnsureEmptyDir(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "file")
	writeFile(t, file, "x")
	if err := ensureEmptyDir(file, "*", true); err == nil {
		t.Error("a file should not be accepted as a directory")
	}
	fresh := filepath.Join(dir, "a", "b")
	if err := ensureEmptyDir(fresh, "*", true); err != nil || !exists(fresh) {
		t.Errorf("missing directories should be created: %v", err)
	}
	writeFile(t, filepath.Join(fresh, "sub", "x.zip"), "x")
	if err := ensureEmptyDir(fresh, "*", false); err != nil || !exists(filepath.Join(fresh, "sub")) {
		t.Errorf("non-recursive clear should keep directories: %v", err)
	}
}
