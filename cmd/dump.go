package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.yaml.in/yaml/v3"

	"mcm/codec"
	"mcm/manifest"
	"mcm/ui"
)

var (
	dumpBuildType string
	dumpYAML      bool
)

// dumpManifest renders the entries of m, optionally only those of a build
// type, or the whole normalized manifest as YAML.
func dumpManifest(m *manifest.Manifest, buildType string, asYAML bool) (string, error) {
	if asYAML {
		doc, err := codec.Encode(m)
		if err != nil {
			return "", err
		}
		out, err := yaml.Marshal(doc)
		if err != nil {
			return "", err
		}
		return string(out), nil
	}

	mods := m.FlatMods()
	if buildType != "" {
		bt, err := m.BuildType(buildType)
		if err != nil {
			return "", err
		}
		mods = m.BuildTypeMods(bt)
	}
	return ui.ConfTable(mods) + "\n", nil
}

var dumpCmd = &cobra.Command{
	Use:   "dump",
	Short: "Print the manifest entries with their defaults applied",
	Args:  cobra.NoArgs,
	Run: func(_ *cobra.Command, _ []string) {
		a := bootstrap(envDir)
		out, err := dumpManifest(a.loadManifest(), dumpBuildType, dumpYAML)
		if err != nil {
			fatal("Failed to dump manifest", err)
		}
		fmt.Print(out)
	},
}

func init() {
	dumpCmd.Flags().StringVarP(&dumpBuildType, "build-type", "b", "", "Only list the entries of this build type")
	dumpCmd.Flags().BoolVar(&dumpYAML, "yaml", false, "Print the normalized manifest as YAML")
	rootCmd.AddCommand(dumpCmd)
}
