// Package scanner extracts media references from HTML content.
package scanner

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Scanner finds the media URLs a content body references.
type Scanner interface {
	MediaRefs(content string) ([]string, error)
}

// HTMLScanner reads src and srcset attributes with goquery.
type HTMLScanner struct{}

// NewHTMLScanner returns a Scanner backed by an HTML tokenizer.
func NewHTMLScanner() *HTMLScanner {
	return &HTMLScanner{}
}

// MediaRefs returns unique media URLs in document order. Ephemeral schemes
// (blob:, data:) are dropped.
func (HTMLScanner) MediaRefs(content string) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("parse content: %w", err)
	}

	seen := map[string]struct{}{}
	var refs []string
	add := func(u string) {
		u = strings.TrimSpace(u)
		if u == "" || Ephemeral(u) {
			return
		}
		if _, ok := seen[u]; ok {
			return
		}
		seen[u] = struct{}{}
		refs = append(refs, u)
	}

	doc.Find("img[src], video[poster]").Each(func(_ int, s *goquery.Selection) {
		if src, ok := s.Attr("src"); ok {
			add(src)
		}
		if poster, ok := s.Attr("poster"); ok {
			add(poster)
		}
	})
	doc.Find("img[srcset], source[srcset]").Each(func(_ int, s *goquery.Selection) {
		srcset, _ := s.Attr("srcset")
		for _, u := range ParseSrcset(srcset) {
			add(u)
		}
	})

	return refs, nil
}

// ParseSrcset returns the URL of every candidate in a srcset attribute,
// discarding width ("640w") and density ("2x") descriptors. Commas inside a
// URL are kept; trailing commas end the candidate.
func ParseSrcset(srcset string) []string {
	var urls []string
	i, n := 0, len(srcset)
	for i < n {
		for i < n && (isSpace(srcset[i]) || srcset[i] == ',') {
			i++
		}
		if i >= n {
			break
		}

		start := i
		for i < n && !isSpace(srcset[i]) {
			i++
		}
		u := srcset[start:i]
		if trimmed := strings.TrimRight(u, ","); len(trimmed) != len(u) {
			if trimmed != "" {
				urls = append(urls, trimmed)
			}
			continue
		}
		urls = append(urls, u)

		// Skip the descriptor list up to the next top-level comma.
		depth := 0
		for i < n {
			c := srcset[i]
			if c == '(' {
				depth++
			} else if c == ')' && depth > 0 {
				depth--
			} else if c == ',' && depth == 0 {
				i++
				break
			}
			i++
		}
	}
	return urls
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\f'
}

// Ephemeral reports whether u points at in-memory data that cannot be
// fetched again later.
func Ephemeral(u string) bool {
	lower := strings.ToLower(strings.TrimSpace(u))
	return strings.HasPrefix(lower, "blob:") || strings.HasPrefix(lower, "data:")
}
