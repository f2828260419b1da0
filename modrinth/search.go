package modrinth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"mcm/modinfo"
	"mcm/version"
)

const (
	searchPageSize = 20
	projectBaseURL = "https://modrinth.com/"
)

// SortIndex is the ordering of search results.
type SortIndex string

const (
	SortRelevance SortIndex = "relevance"
	SortDownloads SortIndex = "downloads"
	SortFollows   SortIndex = "follows"
	SortNewest    SortIndex = "newest"
	SortUpdated   SortIndex = "updated"
)

type SearchCriteria struct {
	Query      string
	Type       modinfo.Type
	Loader     modinfo.Loader
	Categories []string
	McVer      version.McVerMatch
	Sort       SortIndex
	Limit      int
}

type SearchResult struct {
	ID          string
	Name        string
	Downloads   int64
	Updated     time.Time
	Title       string
	Description string
	Type        modinfo.Type
	URL         string
}

type SearchResults struct {
	Results []SearchResult
	Total   int
}

type searchHit struct {
	ProjectID    string    `json:"project_id"`
	Slug         string    `json:"slug"`
	Downloads    int64     `json:"downloads"`
	DateModified time.Time `json:"date_modified"`
	Title        string    `json:"title"`
	Description  string    `json:"description"`
	ProjectType  string    `json:"project_type"`
}

type searchResponse struct {
	Hits      []searchHit `json:"hits"`
	TotalHits int         `json:"total_hits"`
}

func projectType(t modinfo.Type) string {
	switch t {
	case modinfo.TypeShaderpack:
		return "shader"
	case modinfo.TypeDatapack:
		return "datapack"
	case modinfo.TypeResourcepack:
		return "resourcepack"
	}
	return "mod"
}

func parseProjectType(s string) modinfo.Type {
	switch s {
	case "shader":
		return modinfo.TypeShaderpack
	case "datapack":
		return modinfo.TypeDatapack
	case "resourcepack":
		return modinfo.TypeResourcepack
	}
	return modinfo.TypeMod
}

func facets(c SearchCriteria) [][]string {
	out := [][]string{{"project_type:" + projectType(c.Type)}}
	if c.Loader != "" {
		out = append(out, []string{"categories:" + string(c.Loader)})
	}
	if len(c.Categories) > 0 {
		var cs []string
		for _, cat := range c.Categories {
			cs = append(cs, "categories:"+cat)
		}
		out = append(out, cs)
	}
	if !c.McVer.Any() {
		var vs []string
		for _, v := range c.McVer.Versions() {
			vs = append(vs, "versions:"+v.Text())
		}
		if len(vs) > 0 {
			out = append(out, vs)
		}
	}
	return out
}

// Search pages through the search endpoint until Limit results or the
// total hit count is reached.
func (c *Client) Search(ctx context.Context, criteria SearchCriteria) (SearchResults, error) {
	if criteria.Limit <= 0 {
		criteria.Limit = searchPageSize
	}
	if criteria.Sort == "" {
		criteria.Sort = SortRelevance
	}
	f, err := json.Marshal(facets(criteria))
	if err != nil {
		return SearchResults{}, err
	}

	var res SearchResults
	for offset := 0; ; offset += searchPageSize {
		q := url.Values{}
		if criteria.Query != "" {
			q.Set("query", criteria.Query)
		}
		q.Set("facets", string(f))
		q.Set("index", string(criteria.Sort))
		q.Set("offset", strconv.Itoa(offset))
		q.Set("limit", strconv.Itoa(min(searchPageSize, criteria.Limit-offset)))

		var page searchResponse
		if err := c.get(ctx, "/search", q, &page); err != nil {
			return SearchResults{}, fmt.Errorf("search failed: %w", err)
		}
		for _, h := range page.Hits {
			typ := parseProjectType(h.ProjectType)
			res.Results = append(res.Results, SearchResult{
				ID:          h.ProjectID,
				Name:        h.Slug,
				Downloads:   h.Downloads,
				Updated:     h.DateModified,
				Title:       h.Title,
				Description: h.Description,
				Type:        typ,
				URL:         projectBaseURL + projectType(typ) + "/" + h.Slug,
			})
		}
		res.Total = page.TotalHits
		if len(page.Hits) == 0 || min(criteria.Limit, page.TotalHits) <= offset+searchPageSize {
			return res, nil
		}
	}
}
