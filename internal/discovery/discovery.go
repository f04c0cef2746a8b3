// Package discovery classifies homepage links into a bounded set of identity
// surfaces.
package discovery

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/entityscope/entityscope/internal/audit"
	"github.com/entityscope/entityscope/internal/crawl"
)

// category binds a surface key to the path substrings that identify it.
// Order is classification priority.
type category struct {
	key      audit.SurfaceKey
	patterns []string
}

var categories = []category{
	{audit.SurfaceAbout, []string{"/about", "/company", "/who-we-are", "/our-story"}},
	{audit.SurfaceBlog, []string{"/blog", "/news", "/insights", "/resources"}},
	{audit.SurfaceInvestors, []string{"/investors", "/investor-relations", "/ir"}},
	{audit.SurfaceCareers, []string{"/careers", "/jobs", "/join"}},
	{audit.SurfaceProduct, []string{"/products", "/product", "/solutions", "/services", "/platform"}},
}

// Config controls discovery bounds.
type Config struct {
	// MaxSurfaces caps discovered surfaces beyond home. This bounds crawl
	// radius deterministically.
	MaxSurfaces int
	Timeout     time.Duration
}

// Discoverer fetches a homepage once and maps same-origin links to surface
// categories.
type Discoverer struct {
	fetcher audit.Fetcher
	cfg     Config
	logger  *zap.Logger
}

// New constructs a Discoverer.
func New(fetcher audit.Fetcher, cfg Config, logger *zap.Logger) *Discoverer {
	if cfg.MaxSurfaces <= 0 {
		cfg.MaxSurfaces = 4
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 20 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Discoverer{fetcher: fetcher, cfg: cfg, logger: logger}
}

// Discover returns the surface set for a base URL. Home is always included;
// a failed homepage fetch yields home-only with Degraded set, never an error.
func (d *Discoverer) Discover(ctx context.Context, baseURL string) (audit.DiscoveryResult, error) {
	normalized, base, err := NormalizeURL(baseURL)
	if err != nil {
		return audit.DiscoveryResult{}, fmt.Errorf("%w: %s", audit.ErrInvalidInput, err)
	}

	result := audit.DiscoveryResult{
		Surfaces: []audit.Surface{{Key: audit.SurfaceHome, URL: normalized}},
	}

	fetchCtx, cancel := context.WithTimeout(ctx, d.cfg.Timeout)
	defer cancel()

	res, err := d.fetcher.Fetch(fetchCtx, normalized)
	if err != nil || res.StatusCode >= 400 {
		d.logger.Warn("homepage fetch failed, discovery degraded",
			zap.String("url", normalized),
			zap.Int("status", res.StatusCode),
			zap.Error(err),
		)
		result.Degraded = true
		return result, nil
	}

	links := crawl.ExtractPage(normalized, audit.ModeStatic, res).PageLinks
	seen := map[audit.SurfaceKey]bool{audit.SurfaceHome: true}

	for _, href := range links {
		if len(result.Surfaces)-1 >= d.cfg.MaxSurfaces {
			break
		}
		resolved, ok := resolveSameOrigin(base, href)
		if !ok {
			continue
		}
		key, matched := classify(resolved.Path)
		if !matched || seen[key] {
			continue
		}
		seen[key] = true
		result.Surfaces = append(result.Surfaces, audit.Surface{Key: key, URL: resolved.String()})
	}
	return result, nil
}

func classify(path string) (audit.SurfaceKey, bool) {
	lower := strings.ToLower(path)
	for _, cat := range categories {
		for _, pattern := range cat.patterns {
			if strings.HasPrefix(lower, pattern) || strings.Contains(lower, pattern+"/") {
				return cat.key, true
			}
		}
	}
	return "", false
}

func resolveSameOrigin(base *url.URL, href string) (*url.URL, bool) {
	ref, err := url.Parse(href)
	if err != nil {
		return nil, false
	}
	resolved := base.ResolveReference(ref)
	if resolved.Scheme != "http" && resolved.Scheme != "https" {
		return nil, false
	}
	if !strings.EqualFold(resolved.Host, base.Host) {
		return nil, false
	}
	resolved.Fragment = ""
	return resolved, true
}

// NormalizeURL standardizes a URL: lowercases scheme and host, strips default
// ports and fragments, and sorts query parameters. It returns the normalized
// string and the parsed URL.
func NormalizeURL(rawURL string) (string, *url.URL, error) {
	if strings.TrimSpace(rawURL) == "" {
		return "", nil, fmt.Errorf("empty url")
	}
	if !strings.Contains(rawURL, "://") {
		rawURL = "https://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", nil, fmt.Errorf("parse url: %w", err)
	}
	if u.Host == "" {
		return "", nil, fmt.Errorf("url has no host: %q", rawURL)
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)

	if u.Scheme == "http" && strings.HasSuffix(u.Host, ":80") {
		u.Host = strings.TrimSuffix(u.Host, ":80")
	}
	if u.Scheme == "https" && strings.HasSuffix(u.Host, ":443") {
		u.Host = strings.TrimSuffix(u.Host, ":443")
	}

	u.Fragment = ""
	q := u.Query()
	u.RawQuery = q.Encode()

	return u.String(), u, nil
}
