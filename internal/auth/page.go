package auth

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"regexp"

	"github.com/PuerkitoBio/goquery"
	"github.com/italolelis/media_archiver/internal/logctx"
)

// tokenPatterns match the places the landing page is known to embed a
// credential: header maps, runtime config objects, and inline assignments.
var tokenPatterns = []*regexp.Regexp{
	regexp.MustCompile(`"x-service-info":\s*"([a-zA-Z0-9_-]{28})"`),
	regexp.MustCompile(`'x-service-info':\s*'([a-zA-Z0-9_-]{28})'`),
	regexp.MustCompile(`serviceInfo["']?\s*[:=]\s*["']([a-zA-Z0-9_-]{28})["']`),
	regexp.MustCompile(`SERVICE_INFO["']?\s*[:=]\s*["']([a-zA-Z0-9_-]{28})["']`),
	regexp.MustCompile(`xServiceInfo["']?\s*[:=]\s*["']([a-zA-Z0-9_-]{28})["']`),
	regexp.MustCompile(`token["']?\s*[:=]\s*["']([a-zA-Z0-9_-]{28})["']`),
}

const maxLinkedScripts = 5

// PageStrategy is the last-resort fallback: load the service's landing page
// and pattern-match the page source and its embedded scripts for a
// credential string. It hides all scraping behind the Strategy boundary so
// it can be swapped or removed without touching the rest of the chain.
type PageStrategy struct {
	Client  *http.Client
	PageURL string
}

func (s *PageStrategy) Name() string { return "page-extraction" }

func (s *PageStrategy) Acquire(ctx context.Context) (string, error) {
	logger := logctx.LoggerFromContext(ctx)

	doc, err := s.fetchDocument(ctx, s.PageURL)
	if err != nil {
		return "", err
	}

	// Inline scripts and the raw page markup first.
	if token, ok := scanDocument(doc); ok {
		return token, nil
	}

	// Then same-host linked scripts, bounded so a pathological page cannot
	// turn acquisition into a crawl.
	base, err := url.Parse(s.PageURL)
	if err != nil {
		return "", fmt.Errorf("invalid page url: %w", err)
	}

	var scripts []string

	doc.Find("script[src]").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		src, _ := sel.Attr("src")

		ref, err := base.Parse(src)
		if err != nil || ref.Host != base.Host {
			return true
		}

		scripts = append(scripts, ref.String())

		return len(scripts) < maxLinkedScripts
	})

	for _, scriptURL := range scripts {
		token, err := s.scanScript(ctx, scriptURL)
		if err != nil {
			logger.Debug("failed to scan linked script", "url", scriptURL, "err", err)

			continue
		}

		if token != "" {
			return token, nil
		}
	}

	return "", fmt.Errorf("no credential found in page")
}

func (s *PageStrategy) fetchDocument(ctx context.Context, pageURL string) (*goquery.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build page request: %w", err)
	}

	resp, err := s.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to load page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("page returned status %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse page: %w", err)
	}

	return doc, nil
}

func (s *PageStrategy) scanScript(ctx context.Context, scriptURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, scriptURL, nil)
	if err != nil {
		return "", err
	}

	resp, err := s.Client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("script returned status %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return "", err
	}

	if token, ok := matchToken(doc.Text()); ok {
		return token, nil
	}

	return "", nil
}

func scanDocument(doc *goquery.Document) (string, bool) {
	var found string

	doc.Find("script").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		if token, ok := matchToken(sel.Text()); ok {
			found = token

			return false
		}

		return true
	})

	if found != "" {
		return found, true
	}

	if html, err := doc.Html(); err == nil {
		return matchToken(html)
	}

	return "", false
}

func matchToken(source string) (string, bool) {
	for _, pattern := range tokenPatterns {
		if m := pattern.FindStringSubmatch(source); m != nil && ValidShape(m[1]) {
			return m[1], true
		}
	}

	return "", false
}
