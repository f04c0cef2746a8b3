// Package aggregate synthesizes entity-level signals from per-surface crawl
// results. It performs no I/O.
package aggregate

import (
	"net/url"
	"sort"
	"strings"

	"github.com/entityscope/entityscope/internal/audit"
)

// Social platforms recognized in sameAs references.
var socialHosts = []string{
	"twitter.com",
	"x.com",
	"linkedin.com",
	"facebook.com",
	"instagram.com",
	"youtube.com",
	"github.com",
	"tiktok.com",
}

// Result is the entity-level synthesis plus a confidence weight reflecting
// how many surfaces contributed.
type Result struct {
	Signals    audit.EntitySignals `json:"signals"`
	Confidence float64             `json:"confidence"`
}

// Aggregate folds all successful surfaces into one entity-level signal set.
// Unsuccessful surfaces are skipped; an empty input yields zeroed totals and,
// per the exactly-one-canonical rule, CanonicalConsistency false.
func Aggregate(surfaces []audit.SurfacePage) Result {
	var (
		signals    audit.EntitySignals
		canonicals = map[string]struct{}{}
		titles     []string
		schemaSet  = map[string]struct{}{}
		socialSet  = map[string]struct{}{}
	)

	for _, surface := range surfaces {
		page := surface.Page
		if !page.OK() {
			continue
		}
		signals.SurfacesCounted++
		signals.TotalWordCount += page.Diagnostics.WordCount
		signals.SchemaBlockCount += page.Diagnostics.SchemaBlockCount

		if page.CanonicalHref != "" {
			canonicals[page.CanonicalHref] = struct{}{}
		}
		if page.Title != "" {
			titles = append(titles, page.Title)
		}

		internal, external := splitLinks(page.URL, page.PageLinks)
		signals.InternalLinks += internal
		signals.ExternalLinks += external

		for _, obj := range page.SchemaObjects {
			for _, typ := range obj.Types() {
				schemaSet[typ] = struct{}{}
			}
			for _, ref := range obj.SameAs() {
				if host, ok := socialHost(ref); ok {
					socialSet[host] = struct{}{}
				}
			}
		}
	}

	signals.SchemaTypes = sortedKeys(schemaSet)
	signals.SocialHosts = sortedKeys(socialSet)
	signals.CanonicalConsistency = len(canonicals) == 1
	signals.InternalLinkStrength = linkStrength(signals.InternalLinks, signals.ExternalLinks)
	signals.TitleConsistency = titleConsistency(titles)

	return Result{
		Signals:    signals,
		Confidence: confidence(signals.SurfacesCounted),
	}
}

func linkStrength(internal, external int) float64 {
	total := internal + external
	if total == 0 {
		return 0
	}
	return float64(internal) / float64(total)
}

// titleConsistency is a diversity ratio: 1.0 means every surface carries a
// unique title, smaller values mean titles repeat across surfaces.
func titleConsistency(titles []string) float64 {
	if len(titles) <= 1 {
		return 1
	}
	distinct := map[string]struct{}{}
	for _, t := range titles {
		distinct[t] = struct{}{}
	}
	return float64(len(distinct)) / float64(len(titles))
}

func confidence(surfaces int) float64 {
	switch {
	case surfaces >= 4:
		return 1.0
	case surfaces == 3:
		return 0.85
	case surfaces == 2:
		return 0.7
	case surfaces == 1:
		return 0.5
	default:
		return 0
	}
}

func splitLinks(pageURL string, links []string) (internal, external int) {
	base, err := url.Parse(pageURL)
	if err != nil {
		return 0, 0
	}
	for _, href := range links {
		ref, err := url.Parse(href)
		if err != nil {
			continue
		}
		resolved := base.ResolveReference(ref)
		if strings.EqualFold(resolved.Host, base.Host) {
			internal++
		} else {
			external++
		}
	}
	return internal, external
}

func socialHost(ref string) (string, bool) {
	u, err := url.Parse(ref)
	if err != nil || u.Host == "" {
		return "", false
	}
	host := strings.ToLower(strings.TrimPrefix(u.Host, "www."))
	for _, known := range socialHosts {
		if host == known || strings.HasSuffix(host, "."+known) {
			return known, true
		}
	}
	return "", false
}

func sortedKeys(set map[string]struct{}) []string {
	if len(set) == 0 {
		return nil
	}
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
