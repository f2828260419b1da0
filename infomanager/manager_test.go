package infomanager

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"mcm/cache"
	"mcm/modinfo"
	"mcm/version"
)

type fakeBackend struct {
	mu       sync.Mutex
	desc     modinfo.ModDesc
	versions []modinfo.ModVer
	detail   map[string]modinfo.ModVerInfo
	fail     bool
	// delay holds GetModDesc back unless its context ends first.
	delay time.Duration

	descCalls    atomic.Int32
	versionCalls atomic.Int32
	infoCalls    atomic.Int32
	fileCalls    atomic.Int32
}

var errUpstream = errors.New("upstream down")

func (f *fakeBackend) GetModDesc(ctx context.Context, typ modinfo.Type, name string) (modinfo.ModDesc, error) {
	f.descCalls.Add(1)
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return modinfo.ModDesc{}, ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return modinfo.ModDesc{}, errUpstream
	}
	return f.desc, nil
}

func (f *fakeBackend) GetVersions(ctx context.Context, desc modinfo.ModDesc) ([]modinfo.ModVer, map[string]modinfo.ModVerInfo, error) {
	f.versionCalls.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]modinfo.ModVer(nil), f.versions...), f.detail, nil
}

func (f *fakeBackend) GetVersionInfo(ctx context.Context, desc modinfo.ModDesc, ver modinfo.ModVer) (modinfo.ModVerInfo, error) {
	f.infoCalls.Add(1)
	return modinfo.ModVerInfo{
		File: modinfo.ModFile{Filename: ver.ID + ".jar", Hash: modinfo.Hash{Type: modinfo.SHA1, Value: "x"}},
	}, nil
}

func (f *fakeBackend) GetFile(ctx context.Context, dest string, pair modinfo.ModVerPair) error {
	f.fileCalls.Add(1)
	return os.WriteFile(dest, []byte(pair.ID()), 0o644)
}

func newFake() *fakeBackend {
	return &fakeBackend{
		desc: modinfo.ModDesc{ID: "id-a", Name: "a", Updated: time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC)},
		versions: []modinfo.ModVer{
			{ID: "v1", VersionString: "1.0", VersionType: version.Release, McVersions: []version.McVer{version.MustParseMcVer("1.19.2")}},
		},
		detail: map[string]modinfo.ModVerInfo{
			"v1": {File: modinfo.ModFile{Filename: "a-1.0.jar", Hash: modinfo.Hash{Type: modinfo.SHA1, Value: "x"}}},
		},
	}
}

type clock struct{ t time.Time }

func (c *clock) now() time.Time          { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newManager(t *testing.T, b Backend, c *clock) *Manager {
	t.Helper()
	store, err := cache.Open(t.TempDir(), zap.NewNop().Sugar())
	if err != nil {
		t.Fatal(err)
	}
	return New(store, map[modinfo.SourceType]Backend{modinfo.SourceModrinth: b}, zap.NewNop().Sugar(),
		WithClock(c.now),
		WithRecheckInterval(RandomInterval(DefaultRecheckMin, DefaultRecheckMax)))
}

func TestFreshEntriesSkipBackend(t *testing.T) {
	fake := newFake()
	c := &clock{t: time.Date(2022, 10, 1, 0, 0, 0, 0, time.UTC)}
	m := newManager(t, fake, c)
	ctx := context.Background()

	if _, err := m.GetModInfo(ctx, modinfo.SourceModrinth, modinfo.TypeMod, "a"); err != nil {
		t.Fatalf("first GetModInfo failed: %v", err)
	}
	if fake.descCalls.Load() != 1 || fake.versionCalls.Load() != 1 {
		t.Fatalf("expected one fetch, got desc=%d versions=%d", fake.descCalls.Load(), fake.versionCalls.Load())
	}

	c.advance(DefaultRecheckMin - time.Minute)
	if _, err := m.GetModInfo(ctx, modinfo.SourceModrinth, modinfo.TypeMod, "a"); err != nil {
		t.Fatal(err)
	}
	if fake.descCalls.Load() != 1 {
		t.Errorf("fresh entry should not hit the backend, desc calls = %d", fake.descCalls.Load())
	}
}

func TestStaleEntriesRevalidate(t *testing.T) {
	fake := newFake()
	c := &clock{t: time.Date(2022, 10, 1, 0, 0, 0, 0, time.UTC)}
	m := newManager(t, fake, c)
	ctx := context.Background()

	if _, err := m.GetModInfo(ctx, modinfo.SourceModrinth, modinfo.TypeMod, "a"); err != nil {
		t.Fatal(err)
	}

	// Unchanged update time: descriptor only.
	c.advance(DefaultRecheckMax + time.Minute)
	info, err := m.GetModInfo(ctx, modinfo.SourceModrinth, modinfo.TypeMod, "a")
	if err != nil {
		t.Fatal(err)
	}
	if fake.descCalls.Load() != 2 || fake.versionCalls.Load() != 1 {
		t.Errorf("expected cheap revalidation, got desc=%d versions=%d", fake.descCalls.Load(), fake.versionCalls.Load())
	}
	if !info.Checked.Equal(c.t) {
		t.Errorf("checked should be refreshed, got %v", info.Checked)
	}

	// New update time: versions are refetched and detail merged.
	fake.mu.Lock()
	fake.desc.Updated = fake.desc.Updated.Add(time.Hour)
	fake.versions = append(fake.versions, modinfo.ModVer{ID: "v2", VersionString: "2.0", VersionType: version.Release})
	fake.detail = map[string]modinfo.ModVerInfo{
		"v2": {File: modinfo.ModFile{Filename: "a-2.0.jar", Hash: modinfo.Hash{Type: modinfo.SHA1, Value: "y"}}},
	}
	fake.mu.Unlock()

	c.advance(DefaultRecheckMax + time.Minute)
	info, err = m.GetModInfo(ctx, modinfo.SourceModrinth, modinfo.TypeMod, "a")
	if err != nil {
		t.Fatal(err)
	}
	if fake.versionCalls.Load() != 2 {
		t.Errorf("expected versions refetch, got %d", fake.versionCalls.Load())
	}
	if len(info.Versions) != 2 || info.Versions[0].ID != "v2" {
		t.Errorf("unexpected versions %+v", info.Versions)
	}
	if _, ok := info.VersionInfo["v1"]; !ok {
		t.Error("detail for v1 should be retained")
	}
	if _, ok := info.VersionInfo["v2"]; !ok {
		t.Error("detail for v2 should be merged")
	}
}

func TestRevalidationFailureServesStale(t *testing.T) {
	fake := newFake()
	c := &clock{t: time.Date(2022, 10, 1, 0, 0, 0, 0, time.UTC)}
	m := newManager(t, fake, c)
	ctx := context.Background()

	first, err := m.GetModInfo(ctx, modinfo.SourceModrinth, modinfo.TypeMod, "a")
	if err != nil {
		t.Fatal(err)
	}

	fake.mu.Lock()
	fake.fail = true
	fake.mu.Unlock()
	c.advance(DefaultRecheckMax + time.Minute)

	stale, err := m.GetModInfo(ctx, modinfo.SourceModrinth, modinfo.TypeMod, "a")
	if err != nil {
		t.Fatalf("stale data should be served, got %v", err)
	}
	if !stale.Checked.Equal(first.Checked) {
		t.Error("stale entry should keep its checked time")
	}

	if _, err := m.GetModInfo(ctx, modinfo.SourceModrinth, modinfo.TypeMod, "never-seen"); !errors.Is(err, errUpstream) {
		t.Errorf("uncached failure should propagate, got %v", err)
	}
}

func TestNoBackend(t *testing.T) {
	m := newManager(t, newFake(), &clock{t: time.Now()})
	_, err := m.GetModInfo(context.Background(), modinfo.SourceCurseForge, modinfo.TypeMod, "a")
	if !errors.Is(err, ErrNoBackend) {
		t.Errorf("expected ErrNoBackend, got %v", err)
	}
}

func TestVersionInfoAndFiles(t *testing.T) {
	fake := newFake()
	fake.versions = append(fake.versions, modinfo.ModVer{ID: "v0", VersionString: "0.9", VersionType: version.Release})
	c := &clock{t: time.Date(2022, 10, 1, 0, 0, 0, 0, time.UTC)}
	m := newManager(t, fake, c)
	ctx := context.Background()

	info, err := m.GetModInfo(ctx, modinfo.SourceModrinth, modinfo.TypeMod, "a")
	if err != nil {
		t.Fatal(err)
	}
	v0, ok := info.GetVersion("v0")
	if !ok {
		t.Fatal("v0 missing")
	}

	for range 2 {
		pair, err := m.GetVersionInfo(ctx, modinfo.SourceModrinth, info, v0)
		if err != nil {
			t.Fatal(err)
		}
		if pair.Filename() != "v0.jar" {
			t.Errorf("unexpected filename %q", pair.Filename())
		}
	}
	if fake.infoCalls.Load() != 1 {
		t.Errorf("version info should be fetched once, got %d", fake.infoCalls.Load())
	}

	v1, _ := info.GetVersion("v1")
	dest := filepath.Join(t.TempDir(), "out.jar")
	for range 2 {
		if err := m.CopyFile(ctx, dest, modinfo.SourceModrinth, info, v1); err != nil {
			t.Fatalf("CopyFile failed: %v", err)
		}
	}
	if fake.fileCalls.Load() != 1 {
		t.Errorf("file should be downloaded once, got %d", fake.fileCalls.Load())
	}
	b, err := os.ReadFile(dest)
	if err != nil || string(b) != "v1" {
		t.Errorf("copied content = %q, %v", b, err)
	}

	if err := m.CopyFile(ctx, "relative.jar", modinfo.SourceModrinth, info, v1); err == nil {
		t.Error("relative destinations should be rejected")
	}
}

func TestRandomIntervalBounds(t *testing.T) {
	next := RandomInterval(time.Hour, 2*time.Hour)
	for range 100 {
		if d := next(); d < time.Hour || d >= 2*time.Hour {
			t.Fatalf("interval %v out of range", d)
		}
	}
}

func TestConcurrentLookupsShareOneFetch(t *testing.T) {
	fake := newFake()
	fake.delay = 50 * time.Millisecond
	c := &clock{t: time.Date(2022, 10, 1, 0, 0, 0, 0, time.UTC)}
	m := newManager(t, fake, c)

	const callers = 8
	var wg sync.WaitGroup
	infos := make([]*modinfo.ModInfo, callers)
	errs := make([]error, callers)
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			infos[i], errs[i] = m.GetModInfo(context.Background(), modinfo.SourceModrinth, modinfo.TypeMod, "a")
		}()
	}
	wg.Wait()

	for i := range callers {
		if errs[i] != nil {
			t.Fatalf("caller %d failed: %v", i, errs[i])
		}
		if infos[i] != infos[0] {
			t.Errorf("caller %d got a different ModInfo", i)
		}
	}
	if n := fake.descCalls.Load(); n != 1 {
		t.Errorf("desc calls = %d, want 1", n)
	}
}

func TestCanceledLookupDoesNotFailOthers(t *testing.T) {
	fake := newFake()
	fake.delay = 100 * time.Millisecond
	c := &clock{t: time.Date(2022, 10, 1, 0, 0, 0, 0, time.UTC)}
	m := newManager(t, fake, c)

	ctx, cancel := context.WithCancel(context.Background())
	first := make(chan error, 1)
	go func() {
		_, err := m.GetModInfo(ctx, modinfo.SourceModrinth, modinfo.TypeMod, "a")
		first <- err
	}()
	time.Sleep(20 * time.Millisecond)

	second := make(chan error, 1)
	go func() {
		_, err := m.GetModInfo(context.Background(), modinfo.SourceModrinth, modinfo.TypeMod, "a")
		second <- err
	}()
	time.Sleep(20 * time.Millisecond)
	cancel()

	if err := <-first; !errors.Is(err, context.Canceled) {
		t.Errorf("canceled caller got %v, want context.Canceled", err)
	}
	if err := <-second; err != nil {
		t.Errorf("other caller failed: %v", err)
	}
	if n := fake.descCalls.Load(); n != 1 {
		t.Errorf("desc calls = %d, want 1", n)
	}
}
