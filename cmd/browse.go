package cmd

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"mcm/logger"
	"mcm/manifest"
	"mcm/modinfo"
	"mcm/ui"
)

// browseCmd represents the browse command
var browseCmd = &cobra.Command{
	Use:   "browse [BUILD_TYPE]",
	Short: "Browse the manifest entries and their available versions",
	Long: `Launch an interactive TUI listing the manifest entries, the newest
version each one would resolve to, and whether it lags behind.`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		runBrowse(cmd.Context(), args)
	},
}

func init() {
	rootCmd.AddCommand(browseCmd)
}

// Row statuses.
const (
	statusOK       = "up-to-date"
	statusFallback = "fallback"
	statusOlder    = "older"
	statusNoMatch  = "no-match"
	statusLocal    = "local"
	statusError    = "error"
	statusLoading  = "loading"
)

// browseRow is one manifest entry in the browser.
type browseRow struct {
	Conf    manifest.ModConf
	Latest  string // Version the entry resolves to
	Newest  string // Newest version ignoring the game version
	Status  string
	Info    *modinfo.ModInfo
	Message string
}

// classify determines which version an entry would get and how it relates
// to the newest release.
func classify(info *modinfo.ModInfo, match modinfo.ModVerMatch) (latest, newest, status string) {
	ver, ok := info.LatestVersion(match)
	if !ok {
		return "", "", statusNoMatch
	}
	latest = ver.VersionString
	newest = latest
	status = statusOK
	if match.Test(ver, true) == modinfo.MatchFallback {
		status = statusFallback
	}
	if n, ok := info.LatestVersion(match.IgnoringMcVer()); ok && n.Version().Compare(ver.Version()) > 0 {
		newest = n.VersionString
		status = statusOlder
	}
	return latest, newest, status
}

type rowLoader func(ctx context.Context, row browseRow) browseRow

// BrowseModel represents the state of the TUI
type BrowseModel struct {
	ctx           context.Context
	rows          []browseRow
	load          rowLoader
	selectedIndex int
	offset        int
	showDetail    bool
	loaded        int
	width         int
	height        int
	spinnerFrame  int
}

var spinnerFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

// Message types
type rowLoadedMsg struct {
	index int
	row   browseRow
}

type spinnerTickMsg struct{}

func tickSpinner() tea.Cmd {
	return tea.Tick(100*time.Millisecond, func(time.Time) tea.Msg {
		return spinnerTickMsg{}
	})
}

func newBrowseModel(ctx context.Context, confs []manifest.ModConf, load rowLoader) BrowseModel {
	rows := make([]browseRow, len(confs))
	for i, c := range confs {
		rows[i] = browseRow{Conf: c, Status: statusLoading}
		if c.ModSource().IsLocal() {
			rows[i].Status = statusLocal
		}
	}
	sort.SliceStable(rows, func(i, j int) bool {
		return strings.ToLower(rows[i].Conf.Name) < strings.ToLower(rows[j].Conf.Name)
	})
	return BrowseModel{ctx: ctx, rows: rows, load: load, width: 80, height: 24}
}

func (m BrowseModel) Init() tea.Cmd {
	cmds := []tea.Cmd{tickSpinner()}
	for i, r := range m.rows {
		if r.Status != statusLoading {
			continue
		}
		cmds = append(cmds, func() tea.Msg {
			return rowLoadedMsg{index: i, row: m.load(m.ctx, r)}
		})
	}
	return tea.Batch(cmds...)
}

func (m BrowseModel) loading() bool {
	for _, r := range m.rows {
		if r.Status == statusLoading {
			return true
		}
	}
	return false
}

// Update handles messages
func (m BrowseModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKeyMsg(msg)
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
	case rowLoadedMsg:
		m.rows[msg.index] = msg.row
		m.loaded++
	case spinnerTickMsg:
		m.spinnerFrame = (m.spinnerFrame + 1) % len(spinnerFrames)
		if m.loading() {
			return m, tickSpinner()
		}
	}
	return m, nil
}

func (m BrowseModel) handleKeyMsg(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "q":
		return m, tea.Quit
	case "esc":
		m.showDetail = false
	case "up", "k":
		if m.selectedIndex > 0 {
			m.selectedIndex--
		}
	case "down", "j":
		if m.selectedIndex < len(m.rows)-1 {
			m.selectedIndex++
		}
	case "enter", " ":
		m.showDetail = !m.showDetail
	}
	m.scroll()
	return m, nil
}

// listHeight is the number of rows that fit below the header and above
// the footer.
func (m BrowseModel) listHeight() int {
	return max(m.height-5, 1)
}

// scroll keeps the selection visible.
func (m *BrowseModel) scroll() {
	h := m.listHeight()
	if m.selectedIndex < m.offset {
		m.offset = m.selectedIndex
	}
	if m.selectedIndex >= m.offset+h {
		m.offset = m.selectedIndex - h + 1
	}
}

// View renders the UI
func (m BrowseModel) View() string {
	if len(m.rows) == 0 {
		return "No entries in the manifest.\n"
	}
	if m.showDetail {
		return m.renderDetail()
	}

	var output string
	if m.loading() {
		output += ui.TitleStyle.Render(fmt.Sprintf("%s Loading %d/%d entries...", spinnerFrames[m.spinnerFrame], m.loaded, len(m.rows))) + "\n"
	}
	output += renderHeader() + "\n"

	end := min(m.offset+m.listHeight(), len(m.rows))
	for i := m.offset; i < end; i++ {
		output += m.renderRow(i, m.rows[i]) + "\n"
	}
	output += "\n" + renderFooter()
	return output
}

func renderHeader() string {
	headerStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color(ui.ColorAccent)).
		Padding(0, 1)

	return headerStyle.Render(fmt.Sprintf("%-32s %-14s %-20s %-20s %-12s", "Name", "Type", "Resolves to", "Newest", "Status"))
}

func renderFooter() string {
	return ui.FooterStyle.Render("↑/k: up  ↓/j: down  enter: details  esc: back  q: quit")
}

func statusColor(status string) string {
	switch status {
	case statusOK:
		return ui.ColorGood
	case statusFallback, statusOlder:
		return ui.ColorWarn
	case statusNoMatch, statusError:
		return ui.ColorBad
	case statusLocal, statusLoading:
		return ui.ColorMuted
	}
	return ui.ColorPlain
}

func (m BrowseModel) renderRow(index int, row browseRow) string {
	rowStyle := lipgloss.NewStyle().Padding(0, 1)
	if index == m.selectedIndex {
		rowStyle = rowStyle.
			Background(lipgloss.Color(ui.ColorMuted)).
			Bold(true)
	}

	name := row.Conf.Name
	if !row.Conf.IsEnabled() {
		name += " (disabled)"
	}
	// Pad status before applying color to maintain column alignment
	coloredStatus := ui.Colorize(fmt.Sprintf("%-12s", row.Status), statusColor(row.Status))

	line := fmt.Sprintf("%-32s %-14s %-20s %-20s %s",
		ui.Truncate(name, 32),
		row.Conf.ModType().String(),
		ui.Truncate(row.Latest, 20),
		ui.Truncate(row.Newest, 20),
		coloredStatus,
	)
	return rowStyle.Render(line)
}

func (m BrowseModel) renderDetail() string {
	row := m.rows[m.selectedIndex]
	var b strings.Builder
	switch {
	case row.Info != nil:
		b.WriteString(ui.ModInfoView(row.Info))
		b.WriteString("\n" + ui.VersionTable(row.Info.Versions, max(m.height-20, 5)) + "\n")
	case row.Message != "":
		b.WriteString(ui.ErrorStyle.Render(row.Message) + "\n")
	default:
		b.WriteString(ui.TitleStyle.Render(row.Conf.Name) + "\n" + row.Conf.ModSource().String() + "\n")
	}
	if row.Conf.Comment != "" {
		b.WriteString("\n" + ui.MutedStyle.Render(row.Conf.Comment) + "\n")
	}
	return b.String() + "\n" + renderFooter()
}

// loadRow looks an entry up, bounded by sem.
func (a *app) loadRow(m *manifest.Manifest, sem chan struct{}) rowLoader {
	return func(ctx context.Context, row browseRow) browseRow {
		sem <- struct{}{}
		defer func() { <-sem }()

		c := row.Conf
		info, err := a.manager.GetModInfo(ctx, c.ModSource().Type, c.ModType(), c.Name)
		if err != nil {
			logger.Log.Warnw("Failed to load entry", zap.String("name", c.Name), zap.Error(err))
			row.Status = statusError
			row.Message = err.Error()
			return row
		}
		row.Info = info
		row.Latest, row.Newest, row.Status = classify(info, c.VerMatch(m.Loader))
		return row
	}
}

func runBrowse(ctx context.Context, args []string) {
	a := bootstrap(envDir)
	m := a.loadManifest()

	confs := m.FlatMods()
	if len(args) == 1 {
		confs = m.BuildTypeMods(buildTypeArg(m, args[0]))
	}

	sem := make(chan struct{}, a.cfg.Concurrency)
	p := tea.NewProgram(newBrowseModel(ctx, confs, a.loadRow(m, sem)), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		fatal("Failed to run browser", err)
	}
}
