package ingestion

import (
	"context"
	"crypto/sha256"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"golang.org/x/net/html"
)

// minContentChars is the minimum amount of extracted text for a page to be
// worth embedding. Redirect stubs and empty category pages fall below this.
const minContentChars = 100

// Page is the cleaned result of fetching one documentation URL.
type Page struct {
	// Title is the page title, with the site-name suffix stripped.
	Title string

	// Section is the top-level docs section, derived from the URL path.
	Section string

	// Text is the extracted plain-text content.
	Text string

	// ContentHash is the SHA-256 hex digest of Text, used to skip
	// re-embedding unchanged pages.
	ContentHash string
}

// fetchPage retrieves a documentation page and extracts its text content.
func (p *Pipeline) fetchPage(ctx context.Context, pageURL string) (*Page, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", p.cfg.UserAgent)
	req.Header.Set("Accept", "text/html")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http get: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d for %s", resp.StatusCode, pageURL)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading body: %w", err)
	}

	return extractPage(string(body), pageURL)
}

// extractPage parses HTML and pulls out the title, section, and main text.
func extractPage(rawHTML, pageURL string) (*Page, error) {
	doc, err := html.Parse(strings.NewReader(rawHTML))
	if err != nil {
		return nil, fmt.Errorf("parsing html: %w", err)
	}

	title := cleanTitle(findTitle(doc))
	content := findContent(doc)
	if content == nil {
		content = doc
	}

	text := normalizeWhitespace(collectText(content))
	if len(text) < minContentChars {
		return nil, fmt.Errorf("insufficient content: %d chars", len(text))
	}

	return &Page{
		Title:       title,
		Section:     SectionFromURL(pageURL),
		Text:        text,
		ContentHash: fmt.Sprintf("%x", sha256.Sum256([]byte(text))),
	}, nil
}

// SectionFromURL derives the top-level docs section from a URL path, e.g.
// "module1-ros2-fundamentals" from /docs/module1-ros2-fundamentals/chapter1.
// Returns "general" when the path carries no section.
func SectionFromURL(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "general"
	}
	for _, seg := range strings.Split(parsed.Path, "/") {
		if seg == "" || seg == "docs" {
			continue
		}
		return seg
	}
	return "general"
}

// findTitle returns the text of the first <title> element, or failing that
// the first <h1>.
func findTitle(doc *html.Node) string {
	if t := firstElement(doc, "title"); t != nil {
		return collectText(t)
	}
	if h1 := firstElement(doc, "h1"); h1 != nil {
		return collectText(h1)
	}
	return "Untitled"
}

// cleanTitle strips the " | Site Name" suffix Docusaurus appends to titles.
func cleanTitle(title string) string {
	title = strings.TrimSpace(title)
	if title == "" {
		return "Untitled"
	}
	if idx := strings.Index(title, " | "); idx > 0 {
		title = title[:idx]
	}
	return title
}

// findContent locates the main content element, preferring <article> over
// <main>. Docusaurus wraps doc bodies in an article inside main.
func findContent(doc *html.Node) *html.Node {
	if a := firstElement(doc, "article"); a != nil {
		return a
	}
	return firstElement(doc, "main")
}

// skipElements are stripped from content before text extraction.
var skipElements = map[string]bool{
	"script": true,
	"style":  true,
	"nav":    true,
	"footer": true,
	"aside":  true,
}

// firstElement returns the first element with the given tag name in
// depth-first order.
func firstElement(n *html.Node, tag string) *html.Node {
	if n.Type == html.ElementNode && n.Data == tag {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := firstElement(c, tag); found != nil {
			return found
		}
	}
	return nil
}

// collectText walks the node tree gathering text, separating block-level
// pieces with newlines and skipping navigation chrome.
func collectText(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && skipElements[n.Data] {
			return
		}
		if n.Type == html.TextNode {
			if t := strings.TrimSpace(n.Data); t != "" {
				sb.WriteString(t)
				sb.WriteString("\n")
			}
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return sb.String()
}

var (
	spaceRuns   = regexp.MustCompile(`[ \t]+`)
	newlineRuns = regexp.MustCompile(`\n{3,}`)
)

// normalizeWhitespace collapses runs of spaces and excess blank lines while
// keeping single newlines intact so chunk boundaries stay meaningful.
func normalizeWhitespace(text string) string {
	text = spaceRuns.ReplaceAllString(text, " ")
	text = newlineRuns.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}
