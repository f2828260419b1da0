// Package infomanager is the single entry point for project metadata,
// version detail and downloaded files. It serves cached data while it is
// fresh and revalidates it against the registry backends once it is stale.
package infomanager

import (
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"math/rand/v2"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"mcm/cache"
	"mcm/modinfo"
)

// ErrNoBackend is returned for sources without a registry backend.
var ErrNoBackend = errors.New("no backend for source")

// Backend is a registry that serves project metadata and files.
type Backend interface {
	GetModDesc(ctx context.Context, typ modinfo.Type, idOrName string) (modinfo.ModDesc, error)
	// GetVersions may return detail for some or all of the versions.
	GetVersions(ctx context.Context, desc modinfo.ModDesc) ([]modinfo.ModVer, map[string]modinfo.ModVerInfo, error)
	GetVersionInfo(ctx context.Context, desc modinfo.ModDesc, ver modinfo.ModVer) (modinfo.ModVerInfo, error)
	GetFile(ctx context.Context, dest string, pair modinfo.ModVerPair) error
}

const (
	DefaultRecheckMin = 6 * time.Hour
	DefaultRecheckMax = 10 * time.Hour
)

// RandomInterval draws recheck intervals uniformly from [lo, hi) so that
// entries cached together do not all expire together.
func RandomInterval(lo, hi time.Duration) func() time.Duration {
	if hi <= lo {
		return func() time.Duration { return lo }
	}
	return func() time.Duration { return lo + rand.N(hi-lo) }
}

type Option func(*Manager)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithRecheckInterval replaces the interval source.
func WithRecheckInterval(interval func() time.Duration) Option {
	return func(m *Manager) { m.interval = interval }
}

type Manager struct {
	store    *cache.Store
	backends map[modinfo.SourceType]Backend
	logger   *zap.SugaredLogger
	now      func() time.Time
	interval func() time.Duration

	group singleflight.Group
	// mu guards the VersionInfo maps of ModInfo values handed out by the
	// manager.
	mu sync.Mutex
}

func New(store *cache.Store, backends map[modinfo.SourceType]Backend, logger *zap.SugaredLogger, opts ...Option) *Manager {
	m := &Manager{
		store:    store,
		backends: backends,
		logger:   logger,
		now:      time.Now,
		interval: RandomInterval(DefaultRecheckMin, DefaultRecheckMax),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Manager) backend(src modinfo.SourceType) (Backend, error) {
	b, ok := m.backends[src]
	if !ok || b == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoBackend, src)
	}
	return b, nil
}

// shared runs fn once for all concurrent callers of key. fn runs detached
// from the cancellation of whichever caller started it; each caller still
// stops waiting when its own ctx is done.
func (m *Manager) shared(ctx context.Context, key string, fn func(context.Context) (any, error)) (any, error) {
	ch := m.group.DoChan(key, func() (any, error) {
		return fn(context.WithoutCancel(ctx))
	})
	select {
	case r := <-ch:
		return r.Val, r.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// GetModInfo returns the metadata of a project by name. Concurrent calls for
// the same project share one fetch.
func (m *Manager) GetModInfo(ctx context.Context, src modinfo.SourceType, typ modinfo.Type, name string) (*modinfo.ModInfo, error) {
	v, err := m.shared(ctx, "info/"+src.String()+"/"+name, func(ctx context.Context) (any, error) {
		return m.getModInfo(ctx, src, typ, name)
	})
	if err != nil {
		return nil, err
	}
	return v.(*modinfo.ModInfo), nil
}

func (m *Manager) getModInfo(ctx context.Context, src modinfo.SourceType, typ modinfo.Type, name string) (*modinfo.ModInfo, error) {
	now := m.now()
	cached, err := m.store.GetByName(src, name)
	if err != nil {
		m.logger.Warnw("Failed to read cached mod info", "source", src, "name", name, "error", err)
		cached = nil
	}
	if cached != nil && now.Sub(cached.Checked) < m.interval() {
		return cached, nil
	}

	info, err := m.fetch(ctx, src, typ, name, cached, now)
	if err != nil {
		if cached != nil {
			m.logger.Warnw("Revalidation failed, serving stale mod info",
				"source", src, "name", name, "checked", cached.Checked, "error", err)
			return cached, nil
		}
		return nil, err
	}
	return info, nil
}

// fetch revalidates cached (which may be nil). The version list is only
// refetched when the project reports a new update time; new detail is
// merged over the detail already known.
func (m *Manager) fetch(ctx context.Context, src modinfo.SourceType, typ modinfo.Type, name string, cached *modinfo.ModInfo, now time.Time) (*modinfo.ModInfo, error) {
	b, err := m.backend(src)
	if err != nil {
		return nil, err
	}
	m.logger.Debugw("Fetching mod info", "source", src, "name", name, "cached", cached != nil)

	desc, err := b.GetModDesc(ctx, typ, name)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s from %s: %w", name, src, err)
	}

	var versions []modinfo.ModVer
	detail := make(map[string]modinfo.ModVerInfo)
	if cached != nil {
		m.mu.Lock()
		versions = slices.Clone(cached.Versions)
		maps.Copy(detail, cached.VersionInfo)
		m.mu.Unlock()
	}
	if cached == nil || !cached.Desc.Updated.Equal(desc.Updated) {
		vs, fresh, err := b.GetVersions(ctx, desc)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch versions of %s from %s: %w", name, src, err)
		}
		versions = vs
		maps.Copy(detail, fresh)
	}

	info := modinfo.NewModInfo(now, desc, versions, detail)
	if err := m.store.Put(src, info); err != nil {
		return nil, err
	}
	return info, nil
}

// GetVersionInfo returns ver together with its detail, fetching and caching
// the detail on first use.
func (m *Manager) GetVersionInfo(ctx context.Context, src modinfo.SourceType, info *modinfo.ModInfo, ver modinfo.ModVer) (modinfo.ModVerPair, error) {
	m.mu.Lock()
	vi, ok := info.VersionInfo[ver.ID]
	m.mu.Unlock()
	if ok {
		return modinfo.ModVerPair{Ver: ver, Info: &vi}, nil
	}

	v, err := m.shared(ctx, "verinfo/"+src.String()+"/"+info.ID()+"/"+ver.ID, func(ctx context.Context) (any, error) {
		b, err := m.backend(src)
		if err != nil {
			return nil, err
		}
		vi, err := b.GetVersionInfo(ctx, info.Desc, ver)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch version %s of %s: %w", ver.ID, info.Name(), err)
		}
		m.mu.Lock()
		defer m.mu.Unlock()
		info.VersionInfo[ver.ID] = vi
		if err := m.store.Put(src, info); err != nil {
			m.logger.Warnw("Failed to persist version info", "name", info.Name(), "error", err)
		}
		return vi, nil
	})
	if err != nil {
		return modinfo.ModVerPair{}, err
	}
	vi = v.(modinfo.ModVerInfo)
	return modinfo.ModVerPair{Ver: ver, Info: &vi}, nil
}

// GetFile returns the local path of ver's file, downloading it once.
func (m *Manager) GetFile(ctx context.Context, src modinfo.SourceType, info *modinfo.ModInfo, ver modinfo.ModVer) (string, error) {
	pair, err := m.GetVersionInfo(ctx, src, info, ver)
	if err != nil {
		return "", err
	}
	filename := pair.Filename()
	p, exists, err := m.store.LookupFile(filename)
	if err != nil {
		return "", err
	}
	if exists {
		return p, nil
	}

	_, err = m.shared(ctx, "file/"+filename, func(ctx context.Context) (any, error) {
		b, err := m.backend(src)
		if err != nil {
			return nil, err
		}
		m.logger.Infow("Downloading file", "name", info.Name(), "file", filename)
		if err := b.GetFile(ctx, p, pair); err != nil {
			return nil, fmt.Errorf("failed to download %s: %w", filename, err)
		}
		if _, err := os.Stat(p); err != nil {
			return nil, fmt.Errorf("download of %s left no file: %w", filename, err)
		}
		m.store.MarkFile(filename)
		return nil, nil
	})
	if err != nil {
		return "", err
	}
	return p, nil
}

// CopyFile copies ver's file to dest, which must be absolute. The copy is
// not hash checked.
func (m *Manager) CopyFile(ctx context.Context, dest string, src modinfo.SourceType, info *modinfo.ModInfo, ver modinfo.ModVer) error {
	if !filepath.IsAbs(dest) {
		return fmt.Errorf("copy destination %q is not absolute", dest)
	}
	p, err := m.GetFile(ctx, src, info, ver)
	if err != nil {
		return err
	}
	return copyFile(p, dest)
}

func copyFile(from, to string) error {
	in, err := os.Open(from)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(to)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("failed to copy %s to %s: %w", from, to, err)
	}
	return out.Close()
}
