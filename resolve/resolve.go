// Package resolve turns the entries of a build type into a concrete set of
// files, pulling in required dependencies.
//
// There is no backtracking: every mod gets the best version its own
// predicate accepts, dependencies get the best version the pack defaults
// accept, and duplicate resolutions of one mod are merged.
package resolve

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"mcm/manifest"
	"mcm/modinfo"
)

var ErrNoMatchingVersion = errors.New("no matching version")

// NoMatchError reports a mod none of whose versions are accepted.
type NoMatchError struct {
	Mod   string
	Match modinfo.ModVerMatch
}

func (e *NoMatchError) Error() string {
	fb := "none"
	if e.Match.Fallback != nil {
		fb = e.Match.Fallback.String()
	}
	return fmt.Sprintf("%s: no version matches %s (mc %s, fallback %s, loader %q)",
		e.Mod, e.Match.Ver, e.Match.McVer, fb, e.Match.Loader)
}

func (e *NoMatchError) Unwrap() error { return ErrNoMatchingVersion }

// InfoSource is the subset of the info manager the resolver needs.
type InfoSource interface {
	GetModInfo(ctx context.Context, src modinfo.SourceType, typ modinfo.Type, name string) (*modinfo.ModInfo, error)
	GetVersionInfo(ctx context.Context, src modinfo.SourceType, info *modinfo.ModInfo, ver modinfo.ModVer) (modinfo.ModVerPair, error)
}

// ResolvedMod is one mod of the result. Conf is nil for mods that are only
// present as dependencies.
type ResolvedMod struct {
	Mod        *modinfo.ModInfo
	Ver        modinfo.ModVerPair
	Source     modinfo.SourceType
	Conf       *manifest.ModConf
	Dependents []string
}

func (r *ResolvedMod) Name() string       { return r.Mod.Name() }
func (r *ResolvedMod) Type() modinfo.Type { return r.Mod.Type() }
func (r *ResolvedMod) IsExplicit() bool   { return r.Conf != nil }

// Merge combines two resolutions of the same mod: the higher version wins,
// a manifest entry wins over none, and the dependents are united. Merge is
// commutative and idempotent.
func (r ResolvedMod) Merge(o ResolvedMod) (ResolvedMod, error) {
	if r.Mod.ID() != o.Mod.ID() {
		return ResolvedMod{}, fmt.Errorf("cannot merge resolutions of %s and %s", r.Name(), o.Name())
	}
	out := r
	if c := o.Ver.Ver.Compare(r.Ver.Ver); c > 0 || (c == 0 && o.Ver.ID() > r.Ver.ID()) {
		out.Ver = o.Ver
		out.Mod = o.Mod
	}
	switch {
	case out.Conf == nil:
		out.Conf = o.Conf
	case o.Conf != nil && o.Conf.Name < out.Conf.Name:
		out.Conf = o.Conf
	}
	out.Dependents = union(r.Dependents, o.Dependents)
	return out, nil
}

func union(a, b []string) []string {
	out := make([]string, 0, len(a)+len(b))
	out = append(out, a...)
	out = append(out, b...)
	slices.Sort(out)
	return slices.Compact(out)
}

type Result struct {
	Downloaded []*ResolvedMod
	Local      []manifest.ModConf
	Warnings   *Warnings
}

// Lookup finds a resolved mod by name.
func (r *Result) Lookup(name string) (*ResolvedMod, bool) {
	for _, m := range r.Downloaded {
		if m.Name() == name {
			return m, true
		}
	}
	return nil, false
}

type EventKind int

const (
	EventFinding EventKind = iota
	EventResolved
)

// Event reports progress. Version is set for EventResolved.
type Event struct {
	Kind       EventKind
	Name       string
	Version    string
	Dependency bool
}

const DefaultConcurrency = 8

type Option func(*Resolver)

// WithConcurrency bounds the number of mods looked up at once.
func WithConcurrency(n int) Option {
	return func(r *Resolver) {
		if n > 0 {
			r.concurrency = n
		}
	}
}

// WithProgress installs a callback for progress events. Calls are
// serialized.
func WithProgress(fn func(Event)) Option {
	return func(r *Resolver) { r.progress = fn }
}

type Resolver struct {
	info        InfoSource
	log         *zap.SugaredLogger
	concurrency int

	progressMu sync.Mutex
	progress   func(Event)
}

func New(info InfoSource, log *zap.SugaredLogger, opts ...Option) *Resolver {
	r := &Resolver{info: info, log: log, concurrency: DefaultConcurrency}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Resolver) emit(e Event) {
	if r.progress == nil {
		return
	}
	r.progressMu.Lock()
	defer r.progressMu.Unlock()
	r.progress(e)
}

// request is one mod to look up.
type request struct {
	name   string
	src    modinfo.SourceType
	typ    modinfo.Type
	match  modinfo.ModVerMatch
	dep    bool
	conf   *manifest.ModConf
	parent []string
}

type found struct {
	info    *modinfo.ModInfo
	pair    modinfo.ModVerPair
	warning string
}

// find selects the best version of one mod.
func (r *Resolver) find(ctx context.Context, req request) (found, error) {
	r.emit(Event{Kind: EventFinding, Name: req.name, Dependency: req.dep})
	info, err := r.info.GetModInfo(ctx, req.src, req.typ, req.name)
	if err != nil {
		return found{}, err
	}
	ver, ok := info.LatestVersion(req.match)
	if !ok {
		return found{}, &NoMatchError{Mod: req.name, Match: req.match}
	}

	var warning string
	if newest, ok := info.LatestVersion(req.match.IgnoringMcVer()); ok && newest.Version().Compare(ver.Version()) > 0 {
		warning = fmt.Sprintf("version %s is older than %s", ver.VersionString, newest.VersionString)
	}

	pair, err := r.info.GetVersionInfo(ctx, req.src, info, ver)
	if err != nil {
		return found{}, err
	}
	r.emit(Event{Kind: EventResolved, Name: req.name, Version: ver.VersionString, Dependency: req.dep})
	return found{info: info, pair: pair, warning: warning}, nil
}

// findAll looks up a wave of requests concurrently. The first failure
// cancels the rest of the wave.
func (r *Resolver) findAll(ctx context.Context, reqs []request) ([]found, error) {
	out := make([]found, len(reqs))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	for i, req := range reqs {
		g.Go(func() error {
			f, err := r.find(ctx, req)
			if err != nil {
				return err
			}
			out[i] = f
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

type state struct {
	byName   map[string]*ResolvedMod
	order    []string
	warnings *Warnings
	queue    []edge
}

// edge is a required dependency of a resolved mod.
type edge struct {
	id        string
	requester string
	src       modinfo.SourceType
}

func (s *state) add(req request, f found) error {
	if f.warning != "" {
		s.warnings.Add(req.name, f.warning)
	}
	rm := &ResolvedMod{Mod: f.info, Ver: f.pair, Source: req.src, Conf: req.conf, Dependents: union(req.parent, nil)}
	name := rm.Name()
	if prev, ok := s.byName[name]; ok {
		merged, err := prev.Merge(*rm)
		if err != nil {
			return err
		}
		*prev = merged
	} else {
		s.byName[name] = rm
		s.order = append(s.order, name)
	}
	if req.name != name {
		// Looked up by id; later edges may use either.
		s.byName[req.name] = s.byName[name]
	}
	if f.pair.Info != nil {
		for _, d := range f.pair.Info.RequiredDeps() {
			s.queue = append(s.queue, edge{id: d.ID, requester: name, src: req.src})
		}
	}
	return nil
}

// Resolve resolves the entries of build type bt.
func (r *Resolver) Resolve(ctx context.Context, m *manifest.Manifest, bt manifest.BuildType) (*Result, error) {
	s := &state{byName: make(map[string]*ResolvedMod), warnings: NewWarnings()}
	res := &Result{Warnings: s.warnings}

	var wave []request
	for _, c := range m.BuildTypeMods(bt) {
		src := c.ModSource()
		if src.IsLocal() {
			res.Local = append(res.Local, c)
			continue
		}
		conf := c
		wave = append(wave, request{
			name:  c.Name,
			src:   src.Type,
			typ:   c.ModType(),
			match: c.VerMatch(m.Loader),
			conf:  &conf,
		})
	}
	r.log.Infow("Resolving", "build_type", bt.Name, "mods", len(wave), "local", len(res.Local))

	depMatch := m.DependencyMatch()
	for len(wave) > 0 {
		found, err := r.findAll(ctx, wave)
		if err != nil {
			return nil, err
		}
		for i, req := range wave {
			if err := s.add(req, found[i]); err != nil {
				return nil, err
			}
		}
		wave = s.nextWave(depMatch)
	}

	res.Downloaded = make([]*ResolvedMod, 0, len(s.order))
	for _, name := range s.order {
		res.Downloaded = append(res.Downloaded, s.byName[name])
	}
	r.log.Infow("Resolved", "build_type", bt.Name, "mods", len(res.Downloaded), "warnings", s.warnings.Len())
	return res, nil
}

// nextWave drains the queue: edges to resolved mods extend their
// dependents, the rest become requests, one per id, in sorted order.
func (s *state) nextWave(match modinfo.ModVerMatch) []request {
	pending := make(map[string]*request)
	for _, e := range s.queue {
		if rm, ok := s.byName[e.id]; ok {
			rm.Dependents = union(rm.Dependents, []string{e.requester})
			continue
		}
		req, ok := pending[e.id]
		if !ok {
			req = &request{name: e.id, src: e.src, typ: modinfo.TypeMod, match: match, dep: true}
			pending[e.id] = req
		}
		req.parent = append(req.parent, e.requester)
	}
	s.queue = nil

	wave := make([]request, 0, len(pending))
	for _, req := range pending {
		wave = append(wave, *req)
	}
	slices.SortFunc(wave, func(a, b request) int { return cmp.Compare(a.name, b.name) })
	return wave
}
