// Package build materializes a resolved pack into its target directories
// and verifies the installed files.
package build

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"mcm/db"
	"mcm/manifest"
	"mcm/modinfo"
	"mcm/resolve"
)

// Files provides the downloaded files of resolved versions.
type Files interface {
	CopyFile(ctx context.Context, dest string, src modinfo.SourceType, info *modinfo.ModInfo, ver modinfo.ModVer) error
}

type Option func(*Builder)

// WithHistory records every build in conn.
func WithHistory(conn *gorm.DB) Option {
	return func(b *Builder) { b.history = conn }
}

func WithClock(now func() time.Time) Option {
	return func(b *Builder) { b.now = now }
}

// WithConcurrency bounds the number of files copied at once.
func WithConcurrency(n int) Option {
	return func(b *Builder) {
		if n > 0 {
			b.concurrency = n
		}
	}
}

type Builder struct {
	files       Files
	log         *zap.SugaredLogger
	history     *gorm.DB
	now         func() time.Time
	concurrency int
}

func New(files Files, log *zap.SugaredLogger, opts ...Option) *Builder {
	b := &Builder{files: files, log: log, now: time.Now, concurrency: resolve.DefaultConcurrency}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// TargetDir is the directory build type bt is written to below output.
func TargetDir(output string, bt manifest.BuildType) (string, error) {
	abs, err := filepath.Abs(output)
	if err != nil {
		return "", err
	}
	return filepath.Join(abs, bt.Name), nil
}

// InstallPath is where a resolved mod's file goes.
func InstallPath(dirs manifest.TargetDirs, rm *resolve.ResolvedMod) string {
	return filepath.Join(dirs.Dir(rm.Type()), rm.Ver.Filename())
}

type clearStep struct {
	dir       string
	pattern   string
	recursive bool
}

func clearTargets(dirs manifest.TargetDirs, bt manifest.BuildType) error {
	steps := []clearStep{
		{dirs.Config, "*", true},
		{dirs.Mods, "*.jar", false},
		{dirs.Shaderpacks, "*", true},
		{dirs.Datapacks, "*.zip", false},
		{dirs.Resourcepacks, "*.zip", false},
	}
	if bt.HasServer() {
		steps = append(steps, clearStep{dirs.DefaultConfig, "*", true})
	}
	for _, s := range steps {
		if err := ensureEmptyDir(s.dir, s.pattern, s.recursive); err != nil {
			return fmt.Errorf("failed to clear %s: %w", s.dir, err)
		}
	}
	return nil
}

// Build writes res for build type bt into output/<build type>.
func (b *Builder) Build(ctx context.Context, m *manifest.Manifest, bt manifest.BuildType, res *resolve.Result, output string) (*db.Build, error) {
	started := b.now()
	target, err := TargetDir(output, bt)
	if err != nil {
		return nil, err
	}
	dirs, err := m.TargetDirs.Resolve(target)
	if err != nil {
		return nil, err
	}
	b.log.Infow("Building", "build_type", bt.Name, "target", target)

	if err := clearTargets(dirs, bt); err != nil {
		return nil, err
	}

	record := &db.Build{
		BuildType: bt.Name,
		TargetDir: target,
		Manifest:  m.Path,
		McVersion: m.Mc.Text(),
		Loader:    string(m.Loader),
		StartedAt: started,
	}

	for _, c := range res.Local {
		dest, err := b.installLocal(m, dirs, c)
		if err != nil {
			return nil, err
		}
		record.Artifacts = append(record.Artifacts, db.BuildArtifact{
			Name:        c.Name,
			FileName:    filepath.Base(dest),
			InstallPath: dest,
			Source:      c.ModSource().String(),
			Explicit:    true,
		})
	}

	arts, err := b.installResolved(ctx, dirs, res.Downloaded)
	if err != nil {
		return nil, err
	}
	record.Artifacts = append(record.Artifacts, arts...)

	if err := b.applyCopies(m, target); err != nil {
		return nil, err
	}

	record.FinishedAt = b.now()
	if b.history != nil {
		if err := db.Record(b.history, record); err != nil {
			return nil, err
		}
	}
	b.log.Infow("Build finished", "build_type", bt.Name, "artifacts", len(record.Artifacts), "took", record.FinishedAt.Sub(started))
	return record, nil
}

// installLocal copies a local entry. Directory resource and data packs are
// zipped.
func (b *Builder) installLocal(m *manifest.Manifest, dirs manifest.TargetDirs, c manifest.ModConf) (string, error) {
	src := m.LocalPath(c.ModSource())
	typ := c.ModType()
	dest := filepath.Join(dirs.Dir(typ), filepath.Base(src))

	fi, err := os.Stat(src)
	if err != nil {
		return "", fmt.Errorf("local entry %s: %w", c.Name, err)
	}
	if fi.IsDir() {
		if typ != modinfo.TypeResourcepack && typ != modinfo.TypeDatapack {
			return "", fmt.Errorf("local entry %s: %s is a directory", c.Name, src)
		}
		dest += ".zip"
		b.log.Debugw("Zipping local pack", "name", c.Name, "from", src, "to", dest)
		return dest, zipDir(src, dest)
	}
	b.log.Debugw("Copying local file", "name", c.Name, "from", src, "to", dest)
	return dest, copyFile(src, dest)
}

func (b *Builder) installResolved(ctx context.Context, dirs manifest.TargetDirs, mods []*resolve.ResolvedMod) ([]db.BuildArtifact, error) {
	arts := make([]db.BuildArtifact, len(mods))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(b.concurrency)
	for i, rm := range mods {
		g.Go(func() error {
			if rm.Ver.Filename() == "" {
				return fmt.Errorf("%s: version %s has no file", rm.Name(), rm.Ver.ID())
			}
			dest := InstallPath(dirs, rm)
			if err := b.files.CopyFile(ctx, dest, rm.Source, rm.Mod, rm.Ver.Ver); err != nil {
				return fmt.Errorf("%s: %w", rm.Name(), err)
			}
			b.log.Debugw("Installed", "name", rm.Name(), "version", rm.Ver.Ver.VersionString, "path", dest)
			arts[i] = db.BuildArtifact{
				Name:          rm.Name(),
				ProjectID:     rm.Mod.ID(),
				VersionID:     rm.Ver.ID(),
				VersionNumber: rm.Ver.Ver.VersionString,
				FileName:      rm.Ver.Filename(),
				InstallPath:   dest,
				Source:        rm.Source.String(),
				Explicit:      rm.IsExplicit(),
				Dependents:    strings.Join(rm.Dependents, ","),
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return arts, nil
}

// applyCopies copies the manifest's extra files. Sources are relative to
// the manifest, destinations to the build's target directory.
func (b *Builder) applyCopies(m *manifest.Manifest, target string) error {
	base := "."
	if m.Path != "" {
		base = filepath.Dir(m.Path)
	}
	for from, to := range m.Copy {
		src := from
		if !filepath.IsAbs(src) {
			src = filepath.Join(base, from)
		}
		dest := filepath.Join(target, to)
		if !within(target, dest) {
			return fmt.Errorf("copy destination %q leaves the target directory", to)
		}
		if err := copyTree(src, dest); err != nil {
			return fmt.Errorf("copy %s: %w", from, err)
		}
	}
	return nil
}

// Problem is an installed file that failed verification.
type Problem struct {
	Mod  string
	File string
	Err  error
}

var (
	ErrMissing     = errors.New("missing")
	ErrHashInvalid = errors.New("hash mismatch")
	ErrNoFileInfo  = errors.New("no file info")
)

func (p Problem) String() string {
	return fmt.Sprintf("file %s of %s: %v", p.File, p.Mod, p.Err)
}

// Check verifies the hash of every resolved file installed for bt below
// output.
func Check(m *manifest.Manifest, bt manifest.BuildType, res *resolve.Result, output string) ([]Problem, error) {
	target, err := TargetDir(output, bt)
	if err != nil {
		return nil, err
	}
	dirs, err := m.TargetDirs.Resolve(target)
	if err != nil {
		return nil, err
	}
	var problems []Problem
	for _, rm := range res.Downloaded {
		f := rm.Ver.File()
		if f == nil {
			problems = append(problems, Problem{Mod: rm.Name(), Err: ErrNoFileInfo})
			continue
		}
		p := InstallPath(dirs, rm)
		if _, err := os.Stat(p); errors.Is(err, fs.ErrNotExist) {
			problems = append(problems, Problem{Mod: rm.Name(), File: f.Filename, Err: ErrMissing})
			continue
		}
		ok, err := f.Hash.CheckFile(p)
		if err != nil {
			return nil, err
		}
		if !ok {
			problems = append(problems, Problem{Mod: rm.Name(), File: f.Filename, Err: ErrHashInvalid})
		}
	}
	return problems, nil
}
