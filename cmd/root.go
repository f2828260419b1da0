package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"mcm/logger"
)

var (
	envDir       string
	manifestPath string
	outputDir    string
	logFile      string
	verbose      bool
)

var rootCmd = &cobra.Command{
	Use:   "mcm",
	Short: "Minecraft modpack manager",
	Long: `mcm resolves the mods listed in a modpak.yml manifest against Modrinth,
caches their metadata and files, and builds client and server packs.`,
	SilenceUsage: true,
	PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
		return logger.InitLogger(logFile, verbose)
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&envDir, "env-dir", ".", "Directory containing the .env file")
	pf.StringVarP(&manifestPath, "manifest", "m", "", "Manifest path (default $MCM_MANIFEST or modpak.yml)")
	pf.StringVarP(&outputDir, "output", "o", "build", "Directory builds are written to")
	pf.StringVar(&logFile, "log-file", logger.DefaultLogFile, "Log file")
	pf.BoolVarP(&verbose, "verbose", "v", false, "Log debug messages")
}

// Execute runs the root command, cancelling its context on interrupt.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		logger.Sync()
		os.Exit(1)
	}
}
