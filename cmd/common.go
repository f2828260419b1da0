package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"mcm/cache"
	"mcm/config"
	"mcm/db"
	"mcm/infomanager"
	"mcm/logger"
	"mcm/manifest"
	"mcm/modinfo"
	"mcm/modrinth"
	"mcm/resolve"
	"mcm/ui"
	"mcm/version"
)

// app bundles what the commands share.
type app struct {
	cfg     config.Config
	log     *zap.SugaredLogger
	client  *modrinth.Client
	manager *infomanager.Manager
}

// fatal reports err on stderr and in the log, then exits.
func fatal(msg string, err error) {
	fmt.Fprintln(os.Stderr, ui.ErrorStyle.Render(msg+":"), err)
	logger.Log.Fatalw(msg, zap.Error(err))
}

// bootstrap handles shared initialization logic for commands.
func bootstrap(path string) *app {
	cfg, err := config.LoadConfig(path)
	if err != nil {
		fatal("Failed to load configuration", err)
	}

	store, err := cache.Open(cfg.CacheDir, logger.Log)
	if err != nil {
		fatal("Failed to open cache", err)
	}
	client, err := modrinth.NewClient(cfg, logger.Log)
	if err != nil {
		fatal("Failed to create Modrinth client", err)
	}
	manager := infomanager.New(store,
		map[modinfo.SourceType]infomanager.Backend{modinfo.SourceModrinth: client},
		logger.Log,
		infomanager.WithRecheckInterval(infomanager.RandomInterval(cfg.RecheckMin, cfg.RecheckMax)),
	)
	logger.Log.Infow("Initialized", "cache", cfg.CacheDir, "concurrency", cfg.Concurrency)
	return &app{cfg: cfg, log: logger.Log, client: client, manager: manager}
}

func (a *app) openHistory() *gorm.DB {
	conn, err := db.Open(a.cfg.DatabasePath, a.log)
	if err != nil {
		fatal("Failed to open build history", err)
	}
	a.log.Infow("Database initialized", "path", a.cfg.DatabasePath)
	return conn
}

func (a *app) loadManifest() *manifest.Manifest {
	path := manifestPath
	if path == "" {
		path = a.cfg.Manifest
	}
	m, err := manifest.Load(path)
	if err != nil {
		fatal("Failed to load manifest", err)
	}
	return m
}

func buildTypeArg(m *manifest.Manifest, name string) manifest.BuildType {
	bt, err := m.BuildType(name)
	if err != nil {
		fatal("Invalid build type", fmt.Errorf("%w (have %v)", err, m.BuildTypeNames()))
	}
	return bt
}

func (a *app) resolver(opts ...resolve.Option) *resolve.Resolver {
	opts = append([]resolve.Option{resolve.WithConcurrency(a.cfg.Concurrency)}, opts...)
	return resolve.New(a.manager, a.log, opts...)
}

// interactive reports whether progress can be drawn on stdout.
func interactive(plain bool) bool {
	return !plain && isatty.IsTerminal(os.Stdout.Fd())
}

// resolvePack resolves bt, showing a progress view on terminals.
func (a *app) resolvePack(ctx context.Context, m *manifest.Manifest, bt manifest.BuildType, plain bool) *resolve.Result {
	var (
		res *resolve.Result
		err error
	)
	if interactive(plain) {
		res, err = runResolveTUI(ctx, "Resolving "+bt.DisplayName(), func(ctx context.Context, progress func(resolve.Event)) (*resolve.Result, error) {
			return a.resolver(resolve.WithProgress(progress)).Resolve(ctx, m, bt)
		})
	} else {
		res, err = a.resolver().Resolve(ctx, m, bt)
	}
	if err != nil {
		fatal("Failed to resolve "+bt.Name, err)
	}
	return res
}

func parseTypeFlag(s string) (modinfo.Type, error) {
	return modinfo.ParseType(s)
}

// parseSourceFlag accepts registry names only.
func parseSourceFlag(s string) (modinfo.SourceType, error) {
	src := modinfo.ParseSource(s)
	if src.IsLocal() {
		return 0, fmt.Errorf("unknown source %q", s)
	}
	return src.Type, nil
}

// matchFlags are the version filters shared by info and download.
type matchFlags struct {
	version string
	mcver   string
	loader  string
	match   string
}

func (f *matchFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.version, "version", "", "Version range, e.g. '>=1.0,<2'")
	cmd.Flags().StringVar(&f.mcver, "mcver", "", "Game version, e.g. 1.19.2 or ^1.19")
	cmd.Flags().StringVar(&f.loader, "loader", "", "Mod loader")
	cmd.Flags().StringVar(&f.match, "match", "", "Substring the version string must contain")
}

func (f *matchFlags) set() bool {
	return f.version != "" || f.mcver != "" || f.loader != "" || f.match != ""
}

func (f *matchFlags) parse() (modinfo.ModVerMatch, error) {
	m := modinfo.ModVerMatch{Ver: version.AnyVer, McVer: version.AnyMc, VerStr: f.match}
	if f.version != "" {
		v, err := version.ParseVerMatch(f.version)
		if err != nil {
			return m, err
		}
		m.Ver = v
	}
	if f.mcver == "" {
		m = m.IgnoringMcVer()
	} else {
		mc, err := version.ParseMcVerMatch(f.mcver)
		if err != nil {
			return m, err
		}
		m.McVer = mc
	}
	if f.loader != "" {
		l, err := modinfo.ParseLoader(f.loader)
		if err != nil {
			return m, err
		}
		m.Loader = l
	}
	return m, nil
}
