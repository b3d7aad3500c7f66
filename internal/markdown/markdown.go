// Package markdown turns fetched HTML pages into Markdown text suitable for
// an LLM context window.
package markdown

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/PuerkitoBio/goquery"
	"github.com/go-shiori/go-readability"
)

// ErrConversion is matched by every *ConversionError.
var ErrConversion = errors.New("markdown conversion failed")

// ErrEmptyOutput means the page produced no text after cleanup.
var ErrEmptyOutput = errors.New("empty markdown output")

// ConversionError wraps a failure to produce non-empty Markdown.
type ConversionError struct {
	Err error
}

func (e *ConversionError) Error() string {
	return fmt.Sprintf("markdown conversion: %v", e.Err)
}

func (e *ConversionError) Unwrap() error { return e.Err }

func (e *ConversionError) Is(target error) bool { return target == ErrConversion }

// noise is removed before conversion. Navigation chrome, scripts and embeds
// only add tokens.
const noise = "script, style, noscript, nav, footer, aside, form, iframe, svg, template"

// Converter is stateless and safe for concurrent use.
type Converter struct {
	// Readability narrows the page to its main article before conversion,
	// falling back to the whole cleaned page when extraction finds nothing.
	Readability bool
}

// Convert renders html as Markdown. Relative links are resolved against
// pageURL when it is a valid absolute URL. Malformed markup is parsed best
// effort; only blank output is an error.
func (c Converter) Convert(html, pageURL string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", &ConversionError{Err: err}
	}
	doc.Find(noise).Remove()

	base := baseURL(pageURL)
	if base != nil {
		resolveLinks(doc, base)
	}

	cleaned, err := doc.Html()
	if err != nil {
		return "", &ConversionError{Err: err}
	}

	if c.Readability {
		if article, ok := mainContent(cleaned, base); ok {
			cleaned = article
		}
	}

	md, err := htmltomarkdown.ConvertString(cleaned)
	if err != nil {
		return "", &ConversionError{Err: err}
	}

	md = strings.TrimSpace(md)
	if md == "" {
		return "", &ConversionError{Err: ErrEmptyOutput}
	}
	return md, nil
}

func baseURL(raw string) *url.URL {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return nil
	}
	return u
}

// resolveLinks rewrites link and image targets to absolute URLs relative to
// the page itself, so "../x.html" keeps its directory.
func resolveLinks(doc *goquery.Document, base *url.URL) {
	rewrite := func(attr string) func(int, *goquery.Selection) {
		return func(_ int, s *goquery.Selection) {
			raw, _ := s.Attr(attr)
			ref, err := url.Parse(strings.TrimSpace(raw))
			if err != nil {
				return
			}
			s.SetAttr(attr, base.ResolveReference(ref).String())
		}
	}
	doc.Find("a[href]").Each(rewrite("href"))
	doc.Find("img[src]").Each(rewrite("src"))
}

func mainContent(html string, base *url.URL) (string, bool) {
	if base == nil {
		base = &url.URL{Scheme: "https", Host: "localhost"}
	}
	parser := readability.NewParser()
	article, err := parser.Parse(strings.NewReader(html), base)
	if err != nil || strings.TrimSpace(article.TextContent) == "" {
		return "", false
	}
	return article.Content, true
}
