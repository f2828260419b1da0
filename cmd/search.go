package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"mcm/modinfo"
	"mcm/modrinth"
	"mcm/ui"
	"mcm/version"
)

var (
	searchType       string
	searchLoader     string
	searchMcVer      string
	searchSort       string
	searchLimit      int
	searchCategories []string
)

func searchCriteria(query []string) (modrinth.SearchCriteria, error) {
	c := modrinth.SearchCriteria{
		Query:      strings.Join(query, " "),
		Categories: searchCategories,
		Sort:       modrinth.SortIndex(searchSort),
		Limit:      searchLimit,
		McVer:      version.AnyMc,
	}
	typ, err := parseTypeFlag(searchType)
	if err != nil {
		return c, err
	}
	c.Type = typ
	if searchMcVer != "" {
		if c.McVer, err = version.ParseMcVerMatch(searchMcVer); err != nil {
			return c, err
		}
	}
	// Loaders only apply to mods.
	if searchLoader != "" && typ == modinfo.TypeMod {
		if c.Loader, err = modinfo.ParseLoader(searchLoader); err != nil {
			return c, err
		}
	}
	return c, nil
}

var searchCmd = &cobra.Command{
	Use:   "search QUERY...",
	Short: "Search Modrinth for projects",
	Run: func(cmd *cobra.Command, args []string) {
		a := bootstrap(envDir)
		criteria, err := searchCriteria(args)
		if err != nil {
			fatal("Invalid search", err)
		}
		res, err := a.client.Search(cmd.Context(), criteria)
		if err != nil {
			fatal("Search failed", err)
		}
		fmt.Println(ui.SearchTable(res))
	},
}

func init() {
	f := searchCmd.Flags()
	f.StringVarP(&searchType, "type", "t", "mod", "Project type")
	f.StringVarP(&searchLoader, "loader", "l", "", "Mod loader")
	f.StringVar(&searchMcVer, "mcver", "", "Game version match")
	f.StringVarP(&searchSort, "sort", "s", string(modrinth.SortRelevance), "relevance, downloads, follows, newest or updated")
	f.IntVarP(&searchLimit, "limit", "n", 20, "Maximum number of results")
	f.StringSliceVarP(&searchCategories, "category", "c", nil, "Categories to require")
	rootCmd.AddCommand(searchCmd)
}
