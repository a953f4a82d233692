package ingestion

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestDiscoverURLsFromSitemap(t *testing.T) {
	t.Parallel()

	// The sitemap deliberately carries a stale domain: entries must be
	// rewritten onto the pipeline's base URL.
	sitemap := `<?xml version="1.0" encoding="UTF-8"?>
<urlset xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">
  <url><loc>https://stale-domain.example.com/docs/introduction/</loc></url>
  <url><loc>https://stale-domain.example.com/docs/module1-ros2-fundamentals/chapter1-ros2-basics</loc></url>
  <url><loc>https://stale-domain.example.com/docs/introduction/</loc></url>
  <url><loc>https://stale-domain.example.com/blog/launch-post</loc></url>
  <url><loc>https://stale-domain.example.com/docs/tags/ros2</loc></url>
  <url><loc>https://stale-domain.example.com/search</loc></url>
  <url><loc>https://stale-domain.example.com/about</loc></url>
</urlset>`

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/sitemap.xml" {
			http.NotFound(w, r)
			return
		}
		fmt.Fprint(w, sitemap)
	}))
	defer srv.Close()

	p := newTestPipeline(t, srv.URL, newFakeVectorStore(), &fakeEmbedder{})
	urls := p.DiscoverURLs(context.Background())

	want := []string{
		srv.URL + "/docs/introduction/",
		srv.URL + "/docs/module1-ros2-fundamentals/chapter1-ros2-basics",
	}
	if len(urls) != len(want) {
		t.Fatalf("discovered %d URLs, want %d: %v", len(urls), len(want), urls)
	}
	for i := range want {
		if urls[i] != want[i] {
			t.Errorf("url[%d] = %q, want %q", i, urls[i], want[i])
		}
	}
}

func TestDiscoverURLsFallback(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	p := newTestPipeline(t, srv.URL, newFakeVectorStore(), &fakeEmbedder{})
	urls := p.DiscoverURLs(context.Background())

	if len(urls) != len(fallbackPaths) {
		t.Fatalf("fallback returned %d URLs, want %d", len(urls), len(fallbackPaths))
	}
	if urls[0] != srv.URL+"/docs/introduction/" {
		t.Errorf("first fallback URL = %q", urls[0])
	}
	if urls[len(urls)-1] != srv.URL+"/docs/conclusion/" {
		t.Errorf("last fallback URL = %q", urls[len(urls)-1])
	}
}

func TestDiscoverURLsEmptySitemapFallsBack(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<?xml version="1.0"?><urlset></urlset>`)
	}))
	defer srv.Close()

	p := newTestPipeline(t, srv.URL, newFakeVectorStore(), &fakeEmbedder{})
	urls := p.DiscoverURLs(context.Background())

	if len(urls) != len(fallbackPaths) {
		t.Fatalf("empty sitemap should fall back, got %d URLs", len(urls))
	}
}
