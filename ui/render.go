package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"mcm/build"
	"mcm/db"
	"mcm/manifest"
	"mcm/modinfo"
	"mcm/modrinth"
	"mcm/resolve"
	"mcm/version"
)

const dateLayout = "2006-01-02"

func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(MutedStyle).
		Headers(headers...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})
}

// McVersions lists game versions compactly: long lists show their ends.
func McVersions(vs []version.McVer) string {
	if len(vs) == 0 {
		return "*"
	}
	texts := make([]string, len(vs))
	for i, v := range vs {
		texts[i] = v.Text()
	}
	if len(texts) > 4 {
		return texts[0] + " .. " + texts[len(texts)-1]
	}
	return strings.Join(texts, ", ")
}

// ResolvedTable lists resolved mods. E marks entries from the manifest.
func ResolvedTable(mods []*resolve.ResolvedMod) string {
	t := newTable("Name", "E", "Dependents", "Version", "Game versions")
	for _, m := range mods {
		explicit := ""
		if m.IsExplicit() {
			explicit = "✓"
		}
		t.Row(m.Name(), explicit, strings.Join(m.Dependents, ", "), m.Ver.Ver.VersionString, McVersions(m.Ver.Ver.McVersions))
	}
	return t.String()
}

func LocalTable(confs []manifest.ModConf) string {
	t := newTable("Name", "Side", "Source")
	for _, c := range confs {
		t.Row(c.Name, c.ModSide().String(), c.ModSource().String())
	}
	return t.String()
}

// ConfTable lists manifest entries.
func ConfTable(confs []manifest.ModConf) string {
	t := newTable("Name", "Version", "Type", "Side", "Source", "Group")
	for _, c := range confs {
		name := c.Name
		if !c.IsEnabled() {
			name = MutedStyle.Render(name + " (disabled)")
		}
		t.Row(name, c.Version.String(), c.ModType().String(), c.ModSide().String(), c.ModSource().String(), c.Group)
	}
	return t.String()
}

// WarningsView renders one line per warning, or "" when there are none.
func WarningsView(w *resolve.Warnings) string {
	if w == nil || w.Len() == 0 {
		return ""
	}
	var b strings.Builder
	for mod, msgs := range w.All() {
		for _, msg := range msgs {
			fmt.Fprintf(&b, "%s %s: %s\n", WarnStyle.Render("warning"), mod, msg)
		}
	}
	return b.String()
}

func compactCount(n int64) string {
	switch {
	case n >= 1_000_000:
		return fmt.Sprintf("%.1fM", float64(n)/1_000_000)
	case n >= 1_000:
		return fmt.Sprintf("%.1fk", float64(n)/1_000)
	}
	return fmt.Sprint(n)
}

func SearchTable(res modrinth.SearchResults) string {
	t := newTable("Name", "Title", "Type", "Downloads", "Updated", "Description")
	for _, r := range res.Results {
		t.Row(r.Name, r.Title, r.Type.String(), compactCount(r.Downloads), r.Updated.Format(dateLayout), Truncate(r.Description, 60))
	}
	return t.String() + "\n" + MutedStyle.Render(fmt.Sprintf("%d of %d results", len(res.Results), res.Total))
}

// ModInfoView renders the description of a project.
func ModInfoView(info *modinfo.ModInfo) string {
	d := info.Desc
	var b strings.Builder
	b.WriteString(TitleStyle.Render(info.Title()) + "\n")
	if d.ShortDesc != "" {
		b.WriteString(d.ShortDesc + "\n")
	}
	b.WriteString("\n")

	prop := func(k, v string) {
		if v != "" {
			fmt.Fprintf(&b, "%s %s\n", MutedStyle.Render(fmt.Sprintf("%-10s", k)), v)
		}
	}
	prop("name", d.Name)
	prop("id", d.ID)
	prop("type", d.Type.String())
	if d.License != nil {
		prop("license", Colorize(d.License.Name, LicenseColor(d.License.Type)))
	}
	prop("client", Colorize(string(d.ClientSide), SideSupportColor(d.ClientSide)))
	prop("server", Colorize(string(d.ServerSide), SideSupportColor(d.ServerSide)))
	if !d.Updated.IsZero() {
		prop("updated", d.Updated.Format(dateLayout))
	}
	prop("issues", d.IssuesURL)
	prop("source", d.SourceURL)
	prop("wiki", d.WikiURL)
	prop("discord", d.DiscordURL)
	return b.String()
}

// VersionTable lists up to limit versions; limit <= 0 lists all.
func VersionTable(vers []modinfo.ModVer, limit int) string {
	t := newTable("ID", "Version", "Type", "Loaders", "Game versions", "Published")
	for i, v := range vers {
		if limit > 0 && i >= limit {
			break
		}
		t.Row(v.ID, v.VersionString, v.VersionType.String(), v.Loaders.String(), McVersions(v.McVersions), v.Published.Format(dateLayout))
	}
	return t.String()
}

func ProblemsView(ps []build.Problem) string {
	var b strings.Builder
	for _, p := range ps {
		b.WriteString(ErrorStyle.Render("error") + " " + p.String() + "\n")
	}
	return b.String()
}

// DiffView renders the changes between two builds.
func DiffView(d db.BuildDiff) string {
	if d.Empty() {
		return MutedStyle.Render("no changes") + "\n"
	}
	var b strings.Builder
	for _, a := range d.Added {
		b.WriteString(GoodStyle.Render("+ "+a.Name) + " " + a.VersionNumber + "\n")
	}
	for _, a := range d.Removed {
		b.WriteString(ErrorStyle.Render("- "+a.Name) + " " + a.VersionNumber + "\n")
	}
	for _, c := range d.Changed {
		b.WriteString(WarnStyle.Render("~ "+c.New.Name) + fmt.Sprintf(" %s -> %s\n", c.Old.VersionNumber, c.New.VersionNumber))
	}
	return b.String()
}

func HistoryTable(builds []db.Build) string {
	t := newTable("ID", "Build type", "Game", "Loader", "Files", "Finished", "Target")
	for _, bld := range builds {
		t.Row(fmt.Sprint(bld.ID), bld.BuildType, bld.McVersion, bld.Loader, fmt.Sprint(len(bld.Artifacts)),
			bld.FinishedAt.Format("2006-01-02 15:04"), bld.TargetDir)
	}
	return t.String()
}
