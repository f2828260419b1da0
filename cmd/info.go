package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"mcm/modinfo"
	"mcm/ui"
)

var (
	infoSource    string
	infoType      string
	infoVersions  int
	infoMatch     matchFlags
	downloadDest  string
	downloadMatch matchFlags
)

// lookupArgs parses the flags naming a project.
func lookupArgs() (modinfo.SourceType, modinfo.Type) {
	src, err := parseSourceFlag(infoSource)
	if err != nil {
		fatal("Invalid source", err)
	}
	typ, err := parseTypeFlag(infoType)
	if err != nil {
		fatal("Invalid type", err)
	}
	return src, typ
}

var infoCmd = &cobra.Command{
	Use:   "info NAME",
	Short: "Show a project and its versions",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		a := bootstrap(envDir)
		src, typ := lookupArgs()
		info, err := a.manager.GetModInfo(cmd.Context(), src, typ, args[0])
		if err != nil {
			fatal("Failed to get mod info", err)
		}

		vers := info.Versions
		if infoMatch.set() {
			match, err := infoMatch.parse()
			if err != nil {
				fatal("Invalid version filter", err)
			}
			vers = info.MatchingVersions(match)
		}
		fmt.Print(ui.ModInfoView(info))
		fmt.Println(ui.VersionTable(vers, infoVersions))
	},
}

var downloadCmd = &cobra.Command{
	Use:   "download NAME",
	Short: "Download the best matching version of a project",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		a := bootstrap(envDir)
		src, typ := lookupArgs()
		match, err := downloadMatch.parse()
		if err != nil {
			fatal("Invalid version filter", err)
		}
		info, err := a.manager.GetModInfo(cmd.Context(), src, typ, args[0])
		if err != nil {
			fatal("Failed to get mod info", err)
		}
		ver, ok := info.LatestVersion(match)
		if !ok {
			fatal("Nothing to download", fmt.Errorf("no version of %s matches", info.Name()))
		}
		pair, err := a.manager.GetVersionInfo(cmd.Context(), src, info, ver)
		if err != nil {
			fatal("Failed to get version info", err)
		}
		dest, err := filepath.Abs(filepath.Join(downloadDest, pair.Filename()))
		if err != nil {
			fatal("Invalid destination", err)
		}
		if err := a.manager.CopyFile(cmd.Context(), dest, src, info, ver); err != nil {
			fatal("Download failed", err)
		}
		fmt.Printf("%s %s %s to %s\n", ui.GoodStyle.Render("Downloaded"), info.Name(), ver.VersionString, dest)
	},
}

func init() {
	for _, c := range []*cobra.Command{infoCmd, downloadCmd} {
		c.Flags().StringVarP(&infoSource, "source", "s", "modrinth", "Registry to query")
		c.Flags().StringVarP(&infoType, "type", "t", "mod", "Project type")
		rootCmd.AddCommand(c)
	}
	infoCmd.Flags().IntVarP(&infoVersions, "versions", "n", 10, "Number of versions to list (0 for all)")
	infoMatch.register(infoCmd)
	downloadCmd.Flags().StringVarP(&downloadDest, "dest", "d", ".", "Directory to download to")
	downloadMatch.register(downloadCmd)
}
