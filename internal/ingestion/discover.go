package ingestion

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
)

// fallbackPaths is the known corpus layout, used when the sitemap cannot be
// fetched. Kept in page order so ingestion runs are reproducible.
var fallbackPaths = []string{
	"/docs/introduction/",
	"/docs/module1-ros2-fundamentals/chapter1-ros2-basics",
	"/docs/module1-ros2-fundamentals/chapter2-ros2-navigation",
	"/docs/module1-ros2-fundamentals/chapter3-ros2-manipulation",
	"/docs/module2-simulation-gazebo-unity/chapter4-gazebo-simulation",
	"/docs/module2-simulation-gazebo-unity/chapter5-unity-simulation",
	"/docs/module2-simulation-gazebo-unity/chapter6-sim-environments",
	"/docs/module3-advanced-robotics-nvidia-isaac/chapter7-isaac-sdk",
	"/docs/module3-advanced-robotics-nvidia-isaac/chapter8-isaac-manipulation",
	"/docs/module4-vla-systems/chapter9-vision-language",
	"/docs/module4-vla-systems/chapter10-action-systems",
	"/docs/resources/",
	"/docs/conclusion/",
}

// excludedPathParts marks sitemap entries that are not documentation content.
var excludedPathParts = []string{"/search", "/tags/", "/blog/"}

// sitemapURLSet mirrors the <urlset> structure of sitemap.xml.
type sitemapURLSet struct {
	URLs []struct {
		Loc string `xml:"loc"`
	} `xml:"url"`
}

// DiscoverURLs returns the documentation URLs to ingest. It prefers the
// site's sitemap.xml, filtered to /docs/ pages; when the sitemap is
// unavailable it falls back to the known corpus layout. URLs are rewritten
// onto the configured base URL because the sitemap may carry a stale domain.
func (p *Pipeline) DiscoverURLs(ctx context.Context) []string {
	base := strings.TrimRight(p.cfg.BaseURL, "/")

	urls, err := p.fetchSitemap(ctx, base)
	if err != nil {
		p.log.Warn("ingestion: sitemap fetch failed, using fallback",
			slog.String("error", err.Error()))
	} else if len(urls) > 0 {
		p.log.Info("ingestion: discovered URLs from sitemap", slog.Int("count", len(urls)))
		return urls
	}

	out := make([]string, 0, len(fallbackPaths))
	for _, path := range fallbackPaths {
		out = append(out, base+path)
	}
	p.log.Info("ingestion: using fallback URLs", slog.Int("count", len(out)))
	return out
}

func (p *Pipeline) fetchSitemap(ctx context.Context, base string) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"/sitemap.xml", nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", p.cfg.UserAgent)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http get: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading body: %w", err)
	}

	var set sitemapURLSet
	if err := xml.Unmarshal(body, &set); err != nil {
		return nil, fmt.Errorf("parsing sitemap: %w", err)
	}

	seen := make(map[string]bool)
	var urls []string
	for _, entry := range set.URLs {
		parsed, err := url.Parse(strings.TrimSpace(entry.Loc))
		if err != nil {
			continue
		}
		if !strings.Contains(parsed.Path, "/docs/") || isExcludedPath(parsed.Path) {
			continue
		}
		corrected := base + parsed.Path
		if !seen[corrected] {
			seen[corrected] = true
			urls = append(urls, corrected)
		}
	}
	return urls, nil
}

func isExcludedPath(path string) bool {
	for _, part := range excludedPathParts {
		if strings.Contains(path, part) {
			return true
		}
	}
	return false
}
