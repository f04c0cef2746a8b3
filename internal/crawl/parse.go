package crawl

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/entityscope/entityscope/internal/audit"
)

// ExtractPage parses a fetched body once and normalizes it into a PageRecord.
// Malformed JSON-LD blocks are counted as parse errors but never abort the
// page.
func ExtractPage(rawURL string, mode audit.FetchMode, res audit.FetchResult) audit.PageRecord {
	rec := audit.PageRecord{
		URL:        rawURL,
		Mode:       mode,
		HTTPStatus: res.StatusCode,
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(res.Body))
	if err != nil {
		rec.Error = "parse html: " + err.Error()
		rec.Diagnostics.ErrorKind = audit.KindParse
		return rec
	}

	rec.Title = strings.TrimSpace(doc.Find("title").First().Text())
	rec.Description = strings.TrimSpace(doc.Find(`meta[name="description"]`).First().AttrOr("content", ""))
	rec.CanonicalHref = strings.TrimSpace(doc.Find(`link[rel="canonical"]`).First().AttrOr("href", ""))

	// Structural counters come before any DOM pruning below.
	rec.Diagnostics.ScriptCount = doc.Find("script").Length()
	rec.Diagnostics.HasNoscript = doc.Find("noscript").Length() > 0

	doc.Find(`script[type="application/ld+json"]`).Each(func(_ int, sel *goquery.Selection) {
		rec.Diagnostics.SchemaBlockCount++
		objs, parseErr := parseJSONLD(sel.Text())
		if parseErr != nil {
			rec.Diagnostics.ParseErrors++
			return
		}
		rec.SchemaObjects = append(rec.SchemaObjects, objs...)
	})

	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href := strings.TrimSpace(sel.AttrOr("href", ""))
		if href == "" || href == "#" ||
			strings.HasPrefix(href, "javascript:") || strings.HasPrefix(href, "mailto:") {
			return
		}
		rec.PageLinks = append(rec.PageLinks, href)
	})
	rec.Diagnostics.LinkCount = len(rec.PageLinks)

	// Visible word count: strip non-content nodes, then count fields.
	doc.Find("script, style, noscript").Remove()
	rec.Diagnostics.WordCount = len(strings.Fields(doc.Find("body").Text()))

	return rec
}

// parseJSONLD accepts a single node, an array of nodes, or a node wrapping a
// @graph array, and flattens all of them into SchemaObjects.
func parseJSONLD(raw string) ([]audit.SchemaObject, error) {
	var parsed any
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return nil, err
	}
	return flattenJSONLD(parsed), nil
}

func flattenJSONLD(node any) []audit.SchemaObject {
	switch v := node.(type) {
	case map[string]any:
		if graph, ok := v["@graph"].([]any); ok {
			var out []audit.SchemaObject
			for _, item := range graph {
				out = append(out, flattenJSONLD(item)...)
			}
			return out
		}
		return []audit.SchemaObject{audit.SchemaObject(v)}
	case []any:
		var out []audit.SchemaObject
		for _, item := range v {
			out = append(out, flattenJSONLD(item)...)
		}
		return out
	default:
		return nil
	}
}
