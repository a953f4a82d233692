package ingestion

import (
	"strings"
	"testing"
)

const samplePage = `<!DOCTYPE html>
<html>
<head><title>Chapter 1: ROS2 Basics | Physical AI Book</title></head>
<body>
<nav>Home Docs Blog</nav>
<main>
<article>
<h1>Chapter 1: ROS2 Basics</h1>
<p>ROS2 is the second generation of the Robot Operating System. It provides
a middleware layer for distributed robotics applications, including nodes,
topics, services, and actions for inter-process communication.</p>
<script>window.analytics = true;</script>
<p>Nodes communicate over DDS, which handles discovery and transport.</p>
<footer>Previous | Next</footer>
</article>
</main>
<footer>Copyright 2025</footer>
</body>
</html>`

func TestExtractPage(t *testing.T) {
	t.Parallel()

	page, err := extractPage(samplePage, "https://site/docs/module1-ros2-fundamentals/chapter1-ros2-basics")
	if err != nil {
		t.Fatalf("extractPage failed: %v", err)
	}

	if page.Title != "Chapter 1: ROS2 Basics" {
		t.Errorf("title = %q, want site-name suffix stripped", page.Title)
	}
	if page.Section != "module1-ros2-fundamentals" {
		t.Errorf("section = %q, want module1-ros2-fundamentals", page.Section)
	}
	if !strings.Contains(page.Text, "Robot Operating System") {
		t.Error("extracted text missing article content")
	}
	for _, chrome := range []string{"window.analytics", "Home Docs Blog", "Previous | Next", "Copyright 2025"} {
		if strings.Contains(page.Text, chrome) {
			t.Errorf("extracted text contains stripped element content %q", chrome)
		}
	}
	if len(page.ContentHash) != 64 {
		t.Errorf("content hash length = %d, want 64 hex chars", len(page.ContentHash))
	}

	// Hash must be stable for identical content.
	again, err := extractPage(samplePage, "https://site/docs/module1-ros2-fundamentals/chapter1-ros2-basics")
	if err != nil {
		t.Fatal(err)
	}
	if again.ContentHash != page.ContentHash {
		t.Error("content hash differs for identical input")
	}
}

func TestExtractPageInsufficientContent(t *testing.T) {
	t.Parallel()

	_, err := extractPage("<html><head><title>Stub</title></head><body><main>tiny</main></body></html>", "https://site/docs/stub")
	if err == nil {
		t.Fatal("expected error for page below the content floor")
	}
	if !strings.Contains(err.Error(), "insufficient content") {
		t.Errorf("error = %v, want insufficient content", err)
	}
}

func TestSectionFromURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		url  string
		want string
	}{
		{"https://site/docs/module1-ros2-fundamentals/chapter1-ros2-basics", "module1-ros2-fundamentals"},
		{"https://site/docs/introduction/", "introduction"},
		{"https://site/docs/", "general"},
		{"https://site/", "general"},
		{"://bad url", "general"},
	}
	for _, tc := range tests {
		if got := SectionFromURL(tc.url); got != tc.want {
			t.Errorf("SectionFromURL(%q) = %q, want %q", tc.url, got, tc.want)
		}
	}
}

func TestCleanTitle(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{"Chapter 1 | Physical AI Book", "Chapter 1"},
		{"Plain Title", "Plain Title"},
		{"  padded  ", "padded"},
		{"", "Untitled"},
	}
	for _, tc := range tests {
		if got := cleanTitle(tc.in); got != tc.want {
			t.Errorf("cleanTitle(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestNormalizeWhitespace(t *testing.T) {
	t.Parallel()

	in := "one   two\t\tthree\n\n\n\n\nfour"
	want := "one two three\n\nfour"
	if got := normalizeWhitespace(in); got != want {
		t.Errorf("normalizeWhitespace = %q, want %q", got, want)
	}
}
