// Package normalize maps raw product payloads into canonical records.
package normalize

import (
	"encoding/json"
	"html"
	"strconv"
	"strings"
	"unicode"

	"github.com/PuerkitoBio/goquery"
	nethtml "golang.org/x/net/html"
	"golang.org/x/text/unicode/norm"

	"github.com/Sternrassler/catalog-crawler/pkg/product"
)

// DefaultMaxLen is the default description length limit in characters.
const DefaultMaxLen = 2000

// Payload is one decoded API response body.
type Payload map[string]any

// Normalize projects a payload into a canonical record. It never fails:
// missing or mistyped fields become zero values.
func Normalize(p Payload, maxLen int) product.Record {
	return product.Record{
		ID:          product.ID(scalarString(p["id"])),
		Name:        scalarString(p["name"]),
		URLKey:      scalarString(p["url_key"]),
		Price:       number(p["price"]),
		Description: CleanDescription(scalarString(p["description"]), maxLen),
		Images:      SelectImages(p["images"]),
	}
}

// imageKeys lists image URL fields from highest to lowest resolution.
var imageKeys = []string{"large_url", "base_url", "thumbnail_url"}

// SelectImages picks one URL per image entry, preferring the largest variant.
// Entries without any URL are dropped; source order is kept.
func SelectImages(v any) []string {
	images := []string{}

	list, ok := v.([]any)
	if !ok {
		return images
	}

	for _, item := range list {
		entry, ok := item.(map[string]any)
		if !ok {
			continue
		}
		for _, key := range imageKeys {
			if url := strings.TrimSpace(scalarString(entry[key])); url != "" {
				images = append(images, url)
				break
			}
		}
	}

	return images
}

// maxCleanPasses bounds the unescape and strip loop for nested escaping.
const maxCleanPasses = 8

// CleanDescription converts an HTML fragment into plain text of at most maxLen characters.
//
// Entities are unescaped, markup is reduced to visible text joined by spaces,
// the text is NFKC-normalized and whitespace runs are collapsed, repeatedly
// until nothing changes. Overlong text
// is cut after the last period at or before maxLen when that period lies in
// the second half of the limit, and hard-truncated otherwise.
func CleanDescription(raw string, maxLen int) string {
	if strings.TrimSpace(raw) == "" {
		return ""
	}

	// Escaped markup decodes to new tags, so strip until the text is stable.
	text := raw
	for range maxCleanPasses {
		next := collapseSpace(norm.NFKC.String(visibleText(html.UnescapeString(text))))
		if next == text {
			break
		}
		text = next
	}

	if maxLen > 0 {
		text = truncate(text, maxLen)
	}
	return text
}

// visibleText extracts text nodes outside script-like elements, separated by spaces.
func visibleText(fragment string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return fragment
	}
	doc.Find("script,style,noscript,template").Remove()

	var parts []string
	var walk func(n *nethtml.Node)
	walk = func(n *nethtml.Node) {
		if n.Type == nethtml.TextNode {
			if s := strings.TrimSpace(n.Data); s != "" {
				parts = append(parts, s)
			}
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for _, n := range doc.Nodes {
		walk(n)
	}

	return strings.Join(parts, " ")
}

func collapseSpace(s string) string {
	return strings.Join(strings.FieldsFunc(s, unicode.IsSpace), " ")
}

func truncate(text string, maxLen int) string {
	runes := []rune(text)
	if len(runes) <= maxLen {
		return text
	}

	cut := -1
	for i := maxLen - 1; i >= 0; i-- {
		if runes[i] == '.' {
			cut = i
			break
		}
	}

	if cut == -1 || float64(cut) < float64(maxLen)*0.5 {
		return strings.TrimRightFunc(string(runes[:maxLen]), unicode.IsSpace)
	}
	return string(runes[:cut+1])
}

// scalarString renders JSON scalars as text. Objects, arrays and null become "".
func scalarString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case json.Number:
		return t.String()
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		return ""
	}
}

func number(v any) float64 {
	switch t := v.(type) {
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return 0
		}
		return f
	case float64:
		return t
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0
		}
		return f
	default:
		return 0
	}
}
