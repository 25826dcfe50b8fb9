package webpage

import (
	"encoding/json"
	"regexp"
	"strings"
	"time"

	"golang.org/x/net/html"
)

// dateLayouts are tried in order when parsing extracted date strings.
var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"January 2, 2006",
	"Jan 2, 2006",
	"2 January 2006",
	"02 Jan 2006",
}

var looseDatePatterns = []*regexp.Regexp{
	regexp.MustCompile(`\b(\d{4}-\d{2}-\d{2})\b`),
	regexp.MustCompile(`\b((?:January|February|March|April|May|June|July|August|September|October|November|December)\s+\d{1,2},\s+\d{4})\b`),
	regexp.MustCompile(`\b((?:Jan|Feb|Mar|Apr|May|Jun|Jul|Aug|Sep|Oct|Nov|Dec)\s+\d{1,2},\s+\d{4})\b`),
}

// ExtractPublishedDate pulls a publication date out of an HTML document.
// Sources, in order of trust: JSON-LD datePublished, OpenGraph
// article:published_time, a <time datetime> attribute, then loose date text.
func ExtractPublishedDate(htmlContent string) (time.Time, bool) {
	doc, err := html.Parse(strings.NewReader(htmlContent))
	if err == nil {
		if t, ok := fromJSONLD(doc); ok {
			return t, true
		}
		if t, ok := fromMetaTags(doc); ok {
			return t, true
		}
		if t, ok := fromTimeElements(doc); ok {
			return t, true
		}
	}
	return fromLooseText(htmlContent)
}

func fromJSONLD(doc *html.Node) (time.Time, bool) {
	for _, script := range findElements(doc, "script", nil) {
		if getAttr(script, "type") != "application/ld+json" {
			continue
		}
		if script.FirstChild == nil {
			continue
		}
		if t, ok := parseJSONLDDate(script.FirstChild.Data); ok {
			return t, true
		}
	}
	return time.Time{}, false
}

func parseJSONLDDate(raw string) (time.Time, bool) {
	var payload any
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return time.Time{}, false
	}
	if s := findJSONLDField(payload, "datePublished"); s != "" {
		if t, ok := parseDate(s); ok {
			return t, true
		}
	}
	if s := findJSONLDField(payload, "dateModified"); s != "" {
		if t, ok := parseDate(s); ok {
			return t, true
		}
	}
	return time.Time{}, false
}

// findJSONLDField walks objects and arrays looking for the first string at
// the given key.
func findJSONLDField(payload any, key string) string {
	switch v := payload.(type) {
	case map[string]any:
		if s, ok := v[key].(string); ok {
			return s
		}
		for _, child := range v {
			if s := findJSONLDField(child, key); s != "" {
				return s
			}
		}
	case []any:
		for _, child := range v {
			if s := findJSONLDField(child, key); s != "" {
				return s
			}
		}
	}
	return ""
}

func fromMetaTags(doc *html.Node) (time.Time, bool) {
	for _, meta := range findElements(doc, "meta", nil) {
		prop := getAttr(meta, "property")
		if prop == "" {
			prop = getAttr(meta, "name")
		}
		switch prop {
		case "article:published_time", "og:published_time", "date", "publish-date", "publication_date":
			if t, ok := parseDate(getAttr(meta, "content")); ok {
				return t, true
			}
		}
	}
	return time.Time{}, false
}

func fromTimeElements(doc *html.Node) (time.Time, bool) {
	for _, el := range findElements(doc, "time", nil) {
		if t, ok := parseDate(getAttr(el, "datetime")); ok {
			return t, true
		}
	}
	return time.Time{}, false
}

func fromLooseText(content string) (time.Time, bool) {
	// Bound the scan; publication dates live near the top of the page.
	if len(content) > 20000 {
		content = content[:20000]
	}
	for _, pattern := range looseDatePatterns {
		if m := pattern.FindStringSubmatch(content); m != nil {
			if t, ok := parseDate(m[1]); ok {
				return t, true
			}
		}
	}
	return time.Time{}, false
}

func parseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			// Reject implausible years from stray matches.
			if t.Year() >= 1990 && t.Year() <= time.Now().Year()+1 {
				return t, true
			}
		}
	}
	return time.Time{}, false
}

func findElements(n *html.Node, name string, acc []*html.Node) []*html.Node {
	if n.Type == html.ElementNode && n.Data == name {
		acc = append(acc, n)
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		acc = findElements(c, name, acc)
	}
	return acc
}

func getAttr(n *html.Node, key string) string {
	for _, attr := range n.Attr {
		if attr.Key == key {
			return attr.Val
		}
	}
	return ""
}
