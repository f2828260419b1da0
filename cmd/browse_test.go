package cmd

import (
	"context"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"mcm/manifest"
	"mcm/modinfo"
	"mcm/version"
)

func testInfo(vers ...[2]string) *modinfo.ModInfo {
	var list []modinfo.ModVer
	for i, v := range vers {
		list = append(list, modinfo.ModVer{
			ID:            "v" + v[0],
			VersionString: v[0],
			Published:     time.Date(2023, 1, i+1, 0, 0, 0, 0, time.UTC),
			McVersions:    []version.McVer{version.MustParseMcVer(v[1])},
		})
	}
	return modinfo.NewModInfo(time.Now(), modinfo.ModDesc{ID: "P1", Name: "test-mod", Title: "Test Mod"}, list, nil)
}

func TestClassify(t *testing.T) {
	m, err := manifest.Parse([]byte("mc: 1.19.2\nmods: [test-mod]\n"))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	match := m.FlatMods()[0].VerMatch(m.Loader)

	tests := []struct {
		name   string
		info   *modinfo.ModInfo
		latest string
		newest string
		status string
	}{
		{"up-to-date", testInfo([2]string{"1.0", "1.19.2"}), "1.0", "1.0", statusOK},
		{"fallback", testInfo([2]string{"1.0", "1.19.1"}), "1.0", "1.0", statusFallback},
		{"older", testInfo([2]string{"1.0", "1.19.2"}, [2]string{"2.0", "1.20.1"}), "1.0", "2.0", statusOlder},
		{"no match", testInfo([2]string{"1.0", "1.18.2"}), "", "", statusNoMatch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			latest, newest, status := classify(tt.info, match)
			if latest != tt.latest || newest != tt.newest || status != tt.status {
				t.Errorf("classify() = (%q, %q, %q), want (%q, %q, %q)",
					latest, newest, status, tt.latest, tt.newest, tt.status)
			}
		})
	}
}

func testBrowseModel(t *testing.T) BrowseModel {
	t.Helper()
	local := modinfo.LocalSource("local/thing.jar")
	confs := []manifest.ModConf{
		{Name: "sodium"},
		{Name: "Iris"},
		{Name: "thing", Source: &local},
		{Name: "lithium", Disabled: manifest.Disabled{Yes: true}},
	}
	load := func(_ context.Context, row browseRow) browseRow {
		row.Latest, row.Newest, row.Status = "1.0", "1.0", statusOK
		return row
	}
	return newBrowseModel(context.Background(), confs, load)
}

func TestBrowseModelInitialization(t *testing.T) {
	m := testBrowseModel(t)

	var names []string
	for _, r := range m.rows {
		names = append(names, r.Conf.Name)
	}
	if got := strings.Join(names, ","); got != "Iris,lithium,sodium,thing" {
		t.Fatalf("rows = %s", got)
	}
	if m.rows[3].Status != statusLocal {
		t.Errorf("local entry status = %q", m.rows[3].Status)
	}
	if !m.loading() {
		t.Error("model should be loading initially")
	}
	if m.Init() == nil {
		t.Error("Init should return load commands")
	}
}

func TestBrowseRowLoaded(t *testing.T) {
	m := testBrowseModel(t)
	for i, r := range m.rows {
		if r.Status != statusLoading {
			continue
		}
		next, _ := m.Update(rowLoadedMsg{index: i, row: m.load(context.Background(), r)})
		m = next.(BrowseModel)
	}
	if m.loading() {
		t.Fatal("model still loading after every row arrived")
	}
	if m.loaded != 3 {
		t.Errorf("loaded = %d, want 3", m.loaded)
	}

	view := m.View()
	for _, want := range []string{"sodium", "lithium (disabled)", statusOK, statusLocal} {
		if !strings.Contains(view, want) {
			t.Errorf("view is missing %q", want)
		}
	}
	if strings.Contains(view, "Loading") {
		t.Error("view still shows the loading line")
	}
}

func TestBrowseNavigation(t *testing.T) {
	m := testBrowseModel(t)
	press := func(keys ...tea.KeyMsg) {
		for _, k := range keys {
			next, _ := m.Update(k)
			m = next.(BrowseModel)
		}
	}
	down := tea.KeyMsg{Type: tea.KeyDown}
	up := tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("k")}
	j := tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("j")}

	press(up)
	if m.selectedIndex != 0 {
		t.Fatalf("selectedIndex = %d after moving above the top", m.selectedIndex)
	}
	press(down, j, j, j, j)
	if m.selectedIndex != len(m.rows)-1 {
		t.Fatalf("selectedIndex = %d, want the last row", m.selectedIndex)
	}

	press(tea.KeyMsg{Type: tea.KeyEnter})
	if !m.showDetail {
		t.Fatal("enter should open the detail view")
	}
	if view := m.View(); !strings.Contains(view, "thing") {
		t.Errorf("detail view is missing the entry name:\n%s", view)
	}
	press(tea.KeyMsg{Type: tea.KeyEsc})
	if m.showDetail {
		t.Fatal("esc should close the detail view")
	}

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	if cmd == nil {
		t.Error("q should quit")
	}
}

func TestBrowseScroll(t *testing.T) {
	m := testBrowseModel(t)
	next, _ := m.Update(tea.WindowSizeMsg{Width: 100, Height: 7})
	m = next.(BrowseModel)
	if m.listHeight() != 2 {
		t.Fatalf("listHeight = %d", m.listHeight())
	}
	for range 3 {
		next, _ = m.Update(tea.KeyMsg{Type: tea.KeyDown})
		m = next.(BrowseModel)
	}
	if m.offset != 2 {
		t.Errorf("offset = %d, want 2", m.offset)
	}
	if view := m.View(); strings.Contains(view, "Iris") {
		t.Error("scrolled-out row is still rendered")
	}
}

func TestStatusColor(t *testing.T) {
	if statusColor(statusOK) == statusColor(statusNoMatch) {
		t.Error("ok and no-match share a color")
	}
	if statusColor("unknown") == "" {
		t.Error("unknown status has no color")
	}
}
