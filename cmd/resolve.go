package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"mcm/build"
	"mcm/db"
	"mcm/ui"
)

var plainOutput bool

var resolveCmd = &cobra.Command{
	Use:   "resolve BUILD_TYPE",
	Short: "Resolve the mods of a build type and list the chosen versions",
	Long: `Looks up every enabled entry of the build type, picks the best matching
version, pulls in required dependencies, and prints the result.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		a := bootstrap(envDir)
		m := a.loadManifest()
		bt := buildTypeArg(m, args[0])
		res := a.resolvePack(cmd.Context(), m, bt, plainOutput)

		fmt.Println(ui.ResolvedTable(res.Downloaded))
		if len(res.Local) > 0 {
			fmt.Println(ui.LocalTable(res.Local))
		}
		fmt.Print(ui.WarningsView(res.Warnings))
	},
}

var buildCmd = &cobra.Command{
	Use:   "build BUILD_TYPE",
	Short: "Resolve and install a build type into the output directory",
	Long: `Resolves the build type, clears its target directories below
<output>/<build type>, installs every file, and records the build in the
history database.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		a := bootstrap(envDir)
		m := a.loadManifest()
		bt := buildTypeArg(m, args[0])
		res := a.resolvePack(cmd.Context(), m, bt, plainOutput)

		conn := a.openHistory()
		b := build.New(a.manager, a.log, build.WithHistory(conn), build.WithConcurrency(a.cfg.Concurrency))
		record, err := b.Build(cmd.Context(), m, bt, res, outputDir)
		if err != nil {
			fatal("Build failed", err)
		}

		fmt.Printf("%s %d files into %s\n", ui.GoodStyle.Render("Built"), len(record.Artifacts), record.TargetDir)
		prev, err := db.PreviousBuild(conn, record)
		if err != nil {
			a.log.Warnw("Failed to load previous build", "error", err)
		} else if prev != nil {
			fmt.Print(ui.DiffView(db.Diff(prev, record)))
		}
		fmt.Print(ui.WarningsView(res.Warnings))
	},
}

var checkCmd = &cobra.Command{
	Use:   "check BUILD_TYPE",
	Short: "Verify the installed files of a build type",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		a := bootstrap(envDir)
		m := a.loadManifest()
		bt := buildTypeArg(m, args[0])
		res := a.resolvePack(cmd.Context(), m, bt, plainOutput)

		problems, err := build.Check(m, bt, res, outputDir)
		if err != nil {
			fatal("Check failed", err)
		}
		fmt.Print(ui.ProblemsView(problems))
		fmt.Print(ui.WarningsView(res.Warnings))
		if len(problems) > 0 {
			a.log.Warnw("Check found invalid files", "build_type", bt.Name, "count", len(problems))
			os.Exit(1)
		}
		target, _ := build.TargetDir(outputDir, bt)
		fmt.Printf("%s %d files in %s\n", ui.GoodStyle.Render("Verified"), len(res.Downloaded), filepath.Clean(target))
	},
}

func init() {
	for _, c := range []*cobra.Command{resolveCmd, buildCmd, checkCmd} {
		c.Flags().BoolVar(&plainOutput, "plain", false, "Do not show the progress view")
		rootCmd.AddCommand(c)
	}
}
