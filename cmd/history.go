package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"mcm/db"
	"mcm/ui"
)

var (
	historyLimit int
	historyDiff  bool
)

var historyCmd = &cobra.Command{
	Use:   "history [BUILD_TYPE]",
	Short: "List recorded builds",
	Long: `Lists the builds recorded in the history database, newest first.
With --diff, shows what changed in the latest build of the build type.`,
	Args: cobra.MaximumNArgs(1),
	Run: func(_ *cobra.Command, args []string) {
		a := bootstrap(envDir)
		conn := a.openHistory()
		buildType := ""
		if len(args) == 1 {
			buildType = args[0]
		}

		if historyDiff {
			if buildType == "" {
				fatal("Invalid arguments", fmt.Errorf("--diff needs a build type"))
			}
			latest, err := db.LatestBuild(conn, buildType, "")
			if err != nil {
				fatal("Failed to load build", err)
			}
			prev, err := db.PreviousBuild(conn, latest)
			if err != nil {
				fatal("Failed to load build", err)
			}
			fmt.Print(ui.DiffView(db.Diff(prev, latest)))
			return
		}

		builds, err := db.ListBuilds(conn, buildType, historyLimit)
		if err != nil {
			fatal("Failed to list builds", err)
		}
		if len(builds) == 0 {
			fmt.Println(ui.MutedStyle.Render("No builds recorded."))
			return
		}
		fmt.Println(ui.HistoryTable(builds))
	},
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Maximum number of builds to list")
	historyCmd.Flags().BoolVar(&historyDiff, "diff", false, "Show the changes of the latest build")
	rootCmd.AddCommand(historyCmd)
}
