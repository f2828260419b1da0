package modrinth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"slices"
	"strings"
	"sync"
	"time"

	"mcm/modinfo"
	"mcm/version"
)

// Project is a Modrinth project.
type Project struct {
	ID          string          `json:"id"`
	Slug        string          `json:"slug"`
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Body        string          `json:"body"`
	ProjectType string          `json:"project_type"`
	Updated     time.Time       `json:"updated"`
	Published   time.Time       `json:"published"`
	License     *ProjectLicense `json:"license"`
	ClientSide  string          `json:"client_side"`
	ServerSide  string          `json:"server_side"`
	IssuesURL   string          `json:"issues_url"`
	SourceURL   string          `json:"source_url"`
	WikiURL     string          `json:"wiki_url"`
	DiscordURL  string          `json:"discord_url"`
}

type ProjectLicense struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	URL  string `json:"url"`
}

// Version is a Modrinth project version.
type Version struct {
	ID            string       `json:"id"`
	ProjectID     string       `json:"project_id"`
	Name          string       `json:"name"`
	VersionNumber string       `json:"version_number"`
	VersionType   string       `json:"version_type"`
	Changelog     string       `json:"changelog"`
	Loaders       []string     `json:"loaders"`
	GameVersions  []string     `json:"game_versions"`
	DatePublished time.Time    `json:"date_published"`
	Files         []File       `json:"files"`
	Dependencies  []Dependency `json:"dependencies"`
}

// File is a file within a Modrinth version.
type File struct {
	Filename string            `json:"filename"`
	URL      string            `json:"url"`
	Primary  bool              `json:"primary"`
	Size     int64             `json:"size"`
	Hashes   map[string]string `json:"hashes"` // e.g., {"sha512": "...", "sha1": "..."}
}

type Dependency struct {
	VersionID      *string `json:"version_id"`
	ProjectID      *string `json:"project_id"`
	DependencyType string  `json:"dependency_type"`
}

// licenseKeys maps license ids to StdLicenses keys. Both the short ids and
// the SPDX identifiers the API reports are listed.
var licenseKeys = map[string]string{
	"arr":          "Closed",
	"mpl-2":        "MPL",
	"mpl-2.0":      "MPL",
	"mit":          "MIT",
	"isc":          "ISC",
	"bsd-2-clause": "BSD",
	"bsd-3-clause": "BSD",
	"unlicense":    "Unlicense",
	"zlib":         "zlib",
	"apache":       "Apache",
	"apache-2.0":   "Apache",
	"lgpl-2.1":     "LGPL",
	"lgpl-3":       "LGPL",
	"lgpl-3.0":     "LGPL",
	"cc0":          "CC0",
	"cc0-1.0":      "CC0",
	"gpl-2":        "GPL",
	"gpl-2.0":      "GPL",
	"gpl-3":        "GPL",
	"gpl-3.0":      "GPL",
	"agpl-3.0":     "AGPL",
}

func parseLicense(l *ProjectLicense) *modinfo.License {
	if l == nil || l.ID == "" {
		return nil
	}
	id := strings.ToLower(l.ID)
	id = strings.TrimSuffix(strings.TrimSuffix(id, "-only"), "-or-later")
	if key, ok := licenseKeys[id]; ok {
		std := modinfo.StdLicenses[key]
		return &std
	}
	name := l.URL
	if name == "" {
		name = l.Name
	}
	if name == "" {
		name = l.ID
	}
	return &modinfo.License{Type: modinfo.LicenseCustom, Name: name}
}

func parseSideSupport(s string) modinfo.SideSupport {
	v, err := modinfo.ParseSideSupport(s)
	if err != nil {
		return modinfo.SideOptional
	}
	return v
}

func parseProject(typ modinfo.Type, p Project) modinfo.ModDesc {
	return modinfo.ModDesc{
		ID:         p.ID,
		Type:       typ,
		Name:       p.Slug,
		Title:      p.Title,
		Updated:    p.Updated,
		Created:    p.Published,
		License:    parseLicense(p.License),
		ShortDesc:  p.Description,
		Desc:       p.Body,
		ClientSide: parseSideSupport(p.ClientSide),
		ServerSide: parseSideSupport(p.ServerSide),
		IssuesURL:  p.IssuesURL,
		SourceURL:  p.SourceURL,
		WikiURL:    p.WikiURL,
		DiscordURL: p.DiscordURL,
	}
}

func (c *Client) parseVersion(v Version) modinfo.ModVer {
	var loaders []modinfo.Loader
	for _, l := range v.Loaders {
		loader, err := modinfo.ParseLoader(l)
		if err != nil {
			// Kept so that packs on another loader do not pick the version.
			loader = modinfo.Loader(strings.ToLower(l))
		}
		loaders = append(loaders, loader)
	}
	var mcvers []version.McVer
	for _, gv := range v.GameVersions {
		mv, err := version.ParseMcVer(gv)
		if err != nil {
			c.log.Debugw("Skipping unknown game version", "version", v.ID, "game_version", gv, "error", err)
			continue
		}
		mcvers = append(mcvers, mv)
	}
	typ, err := version.ParseVerType(v.VersionType)
	if err != nil {
		typ = version.Release
	}
	return modinfo.ModVer{
		ID:            v.ID,
		VersionString: v.VersionNumber,
		VersionType:   typ,
		Title:         v.Name,
		Loaders:       modinfo.NewLoaders(loaders...),
		Published:     v.DatePublished,
		McVersions:    mcvers,
	}
}

func parseFile(files []File) (modinfo.ModFile, error) {
	if len(files) == 0 {
		return modinfo.ModFile{}, fmt.Errorf("version has no files")
	}
	f := files[0]
	if i := slices.IndexFunc(files, func(f File) bool { return f.Primary }); i >= 0 {
		f = files[i]
	}
	hash := modinfo.Hash{Type: modinfo.SHA512, Value: f.Hashes["sha512"]}
	if hash.Value == "" {
		hash = modinfo.Hash{Type: modinfo.SHA1, Value: f.Hashes["sha1"]}
	}
	size := f.Size
	return modinfo.ModFile{Filename: f.Filename, Size: &size, Hash: hash, URL: f.URL}, nil
}

// slugCache remembers project id to slug lookups across requests.
type slugCache struct {
	mu sync.Mutex
	m  map[string]string
}

func (s *slugCache) get(id string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	slug, ok := s.m[id]
	return slug, ok
}

func (s *slugCache) put(id, slug string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[id] = slug
}

func idsQuery(ids []string) url.Values {
	b, _ := json.Marshal(ids)
	return url.Values{"ids": {string(b)}}
}

// resolveDependencies maps the project ids named by the dependencies of
// versions to slugs. Dependencies naming only a version are first resolved
// to their project. Both lookups are batched.
func (c *Client) resolveDependencies(ctx context.Context, versions []Version) (map[string]string, map[string]string, error) {
	verProject := make(map[string]string)
	var verIDs []string
	projectIDs := make(map[string]struct{})
	for _, v := range versions {
		for _, d := range v.Dependencies {
			switch {
			case d.ProjectID != nil && *d.ProjectID != "":
				projectIDs[*d.ProjectID] = struct{}{}
			case d.VersionID != nil && *d.VersionID != "":
				verIDs = append(verIDs, *d.VersionID)
			}
		}
	}

	if len(verIDs) > 0 {
		slices.Sort(verIDs)
		verIDs = slices.Compact(verIDs)
		var vs []Version
		if err := c.get(ctx, "/versions", idsQuery(verIDs), &vs); err != nil {
			return nil, nil, fmt.Errorf("failed to resolve dependency versions: %w", err)
		}
		for _, v := range vs {
			verProject[v.ID] = v.ProjectID
			projectIDs[v.ProjectID] = struct{}{}
		}
	}

	var missing []string
	for id := range projectIDs {
		if _, ok := c.slugs.get(id); !ok {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		slices.Sort(missing)
		var ps []Project
		if err := c.get(ctx, "/projects", idsQuery(missing), &ps); err != nil {
			return nil, nil, fmt.Errorf("failed to resolve dependency projects: %w", err)
		}
		for _, p := range ps {
			c.slugs.put(p.ID, p.Slug)
		}
	}

	slugs := make(map[string]string, len(projectIDs))
	for id := range projectIDs {
		if slug, ok := c.slugs.get(id); ok {
			slugs[id] = slug
		}
	}
	return slugs, verProject, nil
}

func (c *Client) parseVersionInfo(v Version, name string, slugs, verProject map[string]string) (modinfo.ModVerInfo, error) {
	file, err := parseFile(v.Files)
	if err != nil {
		return modinfo.ModVerInfo{}, err
	}
	info := modinfo.ModVerInfo{File: file, Changelog: v.Changelog}
	for _, d := range v.Dependencies {
		if d.DependencyType != "required" && d.DependencyType != "optional" {
			continue
		}
		var projectID, verID string
		if d.VersionID != nil {
			verID = *d.VersionID
		}
		if d.ProjectID != nil && *d.ProjectID != "" {
			projectID = *d.ProjectID
		} else if verID != "" {
			projectID = verProject[verID]
		}
		slug, ok := slugs[projectID]
		if projectID == "" || !ok {
			c.log.Warnw("Version has an invalid dependency", "mod", name, "version", v.ID)
			continue
		}
		info.Dependencies = append(info.Dependencies, modinfo.Dep{
			Required: d.DependencyType == "required",
			ID:       slug,
			VerID:    verID,
		})
	}
	return info, nil
}

// GetModDesc fetches a project by id or slug.
func (c *Client) GetModDesc(ctx context.Context, typ modinfo.Type, idOrName string) (modinfo.ModDesc, error) {
	var p Project
	if err := c.get(ctx, "/project/"+url.PathEscape(idOrName), nil, &p); err != nil {
		return modinfo.ModDesc{}, fmt.Errorf("failed to get project '%s': %w", idOrName, err)
	}
	c.slugs.put(p.ID, p.Slug)
	return parseProject(typ, p), nil
}

// GetVersions fetches every version of a project together with its detail.
// Versions without files are left out.
func (c *Client) GetVersions(ctx context.Context, desc modinfo.ModDesc) ([]modinfo.ModVer, map[string]modinfo.ModVerInfo, error) {
	var raw []Version
	if err := c.get(ctx, "/project/"+url.PathEscape(desc.ID)+"/version", nil, &raw); err != nil {
		return nil, nil, fmt.Errorf("failed to get project versions for '%s': %w", desc.Name, err)
	}
	slugs, verProject, err := c.resolveDependencies(ctx, raw)
	if err != nil {
		return nil, nil, err
	}

	versions := make([]modinfo.ModVer, 0, len(raw))
	detail := make(map[string]modinfo.ModVerInfo, len(raw))
	for _, v := range raw {
		info, err := c.parseVersionInfo(v, desc.Name, slugs, verProject)
		if err != nil {
			c.log.Warnw("Skipping version", "mod", desc.Name, "version", v.ID, "error", err)
			continue
		}
		versions = append(versions, c.parseVersion(v))
		detail[v.ID] = info
	}
	return versions, detail, nil
}

func (c *Client) GetVersionInfo(ctx context.Context, desc modinfo.ModDesc, ver modinfo.ModVer) (modinfo.ModVerInfo, error) {
	return modinfo.ModVerInfo{}, ErrVersionInfoUnsupported
}

// GetFile downloads the file of pair to dest.
func (c *Client) GetFile(ctx context.Context, dest string, pair modinfo.ModVerPair) error {
	f := pair.File()
	if f == nil || f.URL == "" {
		return fmt.Errorf("version %s has no download url", pair.ID())
	}
	return c.download(ctx, dest, f.URL)
}
