package modrinth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"mcm/config"
	"mcm/infomanager"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const (
	modrinthAPIURL = "https://api.modrinth.com/v2"
	defaultTimeout = 30 * time.Second
)

var (
	// ErrNotFound is returned when the API answers 404.
	ErrNotFound = errors.New("not found on modrinth")
	// ErrVersionInfoUnsupported is returned by GetVersionInfo: the version
	// list already carries the full detail of every version.
	ErrVersionInfoUnsupported = errors.New("version info requests are not supported by modrinth")
)

var _ infomanager.Backend = (*Client)(nil)

// Client handles communication with the Modrinth API.
type Client struct {
	BaseURL    string
	APIKey     string
	UserAgent  string
	HTTPClient *http.Client

	log *zap.SugaredLogger
	// inflight coalesces identical GET requests.
	inflight singleflight.Group
	slugs    slugCache
}

// NewClient creates a new Modrinth API client using the provided configuration.
func NewClient(cfg config.Config, log *zap.SugaredLogger) (*Client, error) {
	if cfg.UserAgent == "" {
		return nil, fmt.Errorf("MCM_USER_AGENT is not configured")
	}

	return &Client{
		BaseURL:   modrinthAPIURL,
		APIKey:    cfg.ModrinthAPIKey,
		UserAgent: cfg.UserAgent,
		HTTPClient: &http.Client{
			Timeout: defaultTimeout,
		},
		log:   log,
		slugs: slugCache{m: make(map[string]string)},
	}, nil
}

func (c *Client) newRequest(ctx context.Context, fullURL string, binary bool) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", c.UserAgent)
	if c.APIKey != "" && !binary {
		req.Header.Set("Authorization", c.APIKey)
	}
	if binary {
		req.Header.Set("Accept", "application/octet-stream")
	} else {
		req.Header.Set("Accept", "application/json")
	}
	return req, nil
}

func (c *Client) do(req *http.Request) (*http.Response, error) {
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		if resp.StatusCode == http.StatusNotFound {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, req.URL.Path)
		}
		return nil, fmt.Errorf("api request failed: status %d, body: %s", resp.StatusCode, string(bodyBytes))
	}
	return resp, nil
}

// getJSON fetches path below BaseURL and returns the raw body. Concurrent
// requests for the same URL share one round trip.
func (c *Client) getJSON(ctx context.Context, path string, query url.Values) ([]byte, error) {
	fullURL := c.BaseURL + path
	if len(query) > 0 {
		fullURL += "?" + query.Encode()
	}
	// The shared request outlives a canceled caller so that joiners are
	// not failed with someone else's cancellation. HTTPClient's timeout
	// still bounds it.
	ch := c.inflight.DoChan(fullURL, func() (any, error) {
		req, err := c.newRequest(context.WithoutCancel(ctx), fullURL, false)
		if err != nil {
			return nil, err
		}
		c.log.Debugw("Modrinth request", "url", fullURL)
		resp, err := c.do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to read response: %w", err)
		}
		return body, nil
	})
	select {
	case r := <-ch:
		if r.Err != nil {
			return nil, r.Err
		}
		return r.Val.([]byte), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *Client) get(ctx context.Context, path string, query url.Values, target any) error {
	body, err := c.getJSON(ctx, path, query)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, target); err != nil {
		return fmt.Errorf("failed to decode json response from %s: %w", path, err)
	}
	return nil
}

// download writes the body of downloadURL to dest through dest.part, so an
// interrupted download never leaves a truncated file under the final name.
func (c *Client) download(ctx context.Context, dest, downloadURL string) error {
	dir := filepath.Dir(dest)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create target directory '%s': %w", dir, err)
	}

	req, err := c.newRequest(ctx, downloadURL, true)
	if err != nil {
		return err
	}
	resp, err := c.do(req)
	if err != nil {
		return fmt.Errorf("failed to start download for '%s' from %s: %w", filepath.Base(dest), downloadURL, err)
	}
	defer resp.Body.Close()

	part := dest + ".part"
	outFile, err := os.Create(part)
	if err != nil {
		return fmt.Errorf("failed to create file '%s': %w", part, err)
	}
	if _, err := io.Copy(outFile, resp.Body); err != nil {
		outFile.Close()
		os.Remove(part)
		return fmt.Errorf("failed to write downloaded content to '%s': %w", part, err)
	}
	if err := outFile.Close(); err != nil {
		os.Remove(part)
		return err
	}
	return os.Rename(part, dest)
}
