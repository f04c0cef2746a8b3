package scoring

import (
	"fmt"
	"math"
	"slices"

	"github.com/entityscope/entityscope/internal/audit"
)

// Input is everything the scorer consumes: the home page record plus the
// entity-level synthesis across surfaces.
type Input struct {
	Home     audit.PageRecord
	Entity   audit.EntitySignals
	Degraded bool
}

// Result is the scored audit.
type Result struct {
	EntityScore int
	Band        string
	Breakdown   []audit.SignalResult
	Tiers       audit.TierScores
}

// Score evaluates every configured signal, normalizes the total to [0,100],
// regroups the same points into tier totals, and classifies the band.
func Score(in Input, cfg Config) Result {
	var (
		breakdown = make([]audit.SignalResult, 0, len(signalOrder))
		sum       float64
		tiers     audit.TierScores
	)

	for _, name := range signalOrder {
		max, ok := cfg.Weights[name]
		if !ok || max <= 0 {
			continue
		}
		res := evaluate(name, in, cfg.Thresholds, max)
		res.Points = clampPoints(res.Points, max)
		breakdown = append(breakdown, res)
		sum += res.Points

		// Tiers only regroup the same points; they never rescore.
		switch cfg.Tiers[name] {
		case 1:
			tiers.Tier1 += res.Points
		case 2:
			tiers.Tier2 += res.Points
		case 3:
			tiers.Tier3 += res.Points
		}
	}

	score := normalize(sum, cfg.TotalWeight())
	return Result{
		EntityScore: score,
		Band:        classifyBand(score, cfg.Bands),
		Breakdown:   breakdown,
		Tiers:       tiers,
	}
}

func normalize(sum, totalWeight float64) int {
	if totalWeight <= 0 {
		return 0
	}
	score := int(math.Round(sum * 100 / totalWeight))
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

func clampPoints(points, max float64) float64 {
	if points < 0 {
		return 0
	}
	if points > max {
		return max
	}
	return points
}

func classifyBand(score int, bands []Band) string {
	name := ""
	for _, b := range bands {
		if score >= b.Min {
			name = b.Name
		}
	}
	return name
}

func evaluate(name string, in Input, t Thresholds, max float64) audit.SignalResult {
	res := audit.SignalResult{Name: name, Max: max}
	switch name {
	case SignalTitlePrecision:
		scoreTitle(&res, in.Home.Title, t, max)
	case SignalMetaDescription:
		scoreDescription(&res, in.Home.Description, t, max)
	case SignalCanonicalClarity:
		scoreCanonical(&res, in, max)
	case SignalSchemaPresence:
		scoreSchemaPresence(&res, in.Entity, t, max)
	case SignalOrganization:
		scoreSchemaType(&res, in.Entity, "Organization", max)
	case SignalBreadcrumb:
		scoreSchemaType(&res, in.Entity, "BreadcrumbList", max)
	case SignalAuthor:
		scoreSchemaType(&res, in.Entity, "Person", max)
	case SignalSocialLinks:
		scoreSocial(&res, in.Entity, t, max)
	case SignalAICrawlFidelity:
		scoreFidelity(&res, in, max)
	case SignalContentDepth:
		scoreContentDepth(&res, in.Entity, t, max)
	case SignalInternalLattice:
		scoreInternalLattice(&res, in.Entity, t, max)
	case SignalExternalAuthority:
		scoreExternalAuthority(&res, in.Entity, t, max)
	case SignalBrandConsistency:
		scoreBrandConsistency(&res, in, max)
	}
	return res
}

func scoreTitle(res *audit.SignalResult, title string, t Thresholds, max float64) {
	n := len(title)
	res.Raw = n
	switch {
	case n >= t.TitleMinLen && n <= t.TitleMaxLen:
		res.Points = max
		res.Notes = "title length in precision window"
	case n > 0:
		res.Points = max / 2
		res.Notes = fmt.Sprintf("title present but %d chars is outside %d-%d", n, t.TitleMinLen, t.TitleMaxLen)
	default:
		res.Notes = "no title"
	}
}

func scoreDescription(res *audit.SignalResult, desc string, t Thresholds, max float64) {
	n := len(desc)
	res.Raw = n
	switch {
	case n >= t.DescriptionMinLen && n <= t.DescriptionMaxLen:
		res.Points = max
		res.Notes = "meta description length in window"
	case n > 0:
		res.Points = max / 2
		res.Notes = fmt.Sprintf("meta description present but %d chars is outside %d-%d", n, t.DescriptionMinLen, t.DescriptionMaxLen)
	default:
		res.Notes = "no meta description"
	}
}

func scoreCanonical(res *audit.SignalResult, in Input, max float64) {
	res.Raw = in.Home.CanonicalHref
	switch {
	case in.Home.CanonicalHref != "" && in.Entity.CanonicalConsistency:
		res.Points = max
		res.Notes = "single canonical across all surfaces"
	case in.Home.CanonicalHref != "":
		res.Points = max / 2
		res.Notes = "canonical present but inconsistent across surfaces"
	default:
		res.Notes = "no canonical link"
	}
}

func scoreSchemaPresence(res *audit.SignalResult, e audit.EntitySignals, t Thresholds, max float64) {
	res.Raw = e.SchemaTypes
	switch {
	case len(e.SchemaTypes) >= t.SchemaDiverseTypes:
		res.Points = max
		res.Notes = fmt.Sprintf("%d distinct schema types", len(e.SchemaTypes))
	case e.SchemaBlockCount > 0:
		res.Points = max / 2
		res.Notes = "structured data present but narrow"
	default:
		res.Notes = "no structured data found"
	}
}

func scoreSchemaType(res *audit.SignalResult, e audit.EntitySignals, typ string, max float64) {
	res.Raw = typ
	if slices.Contains(e.SchemaTypes, typ) {
		res.Points = max
		res.Notes = typ + " schema present"
		return
	}
	res.Notes = typ + " schema missing"
}

func scoreSocial(res *audit.SignalResult, e audit.EntitySignals, t Thresholds, max float64) {
	res.Raw = e.SocialHosts
	switch {
	case len(e.SocialHosts) >= t.SocialFullCount:
		res.Points = max
		res.Notes = fmt.Sprintf("%d social profiles referenced via sameAs", len(e.SocialHosts))
	case len(e.SocialHosts) > 0:
		res.Points = max / 2
		res.Notes = "some social profiles referenced"
	default:
		res.Notes = "no sameAs social references"
	}
}

// scoreFidelity rewards pages whose signals are visible to non-rendering
// crawlers: full points when the static fetch already carried structured
// data, half when signals only appeared after rendering.
func scoreFidelity(res *audit.SignalResult, in Input, max float64) {
	res.Raw = string(in.Home.Mode)
	switch {
	case in.Degraded:
		res.Notes = "homepage unreachable during discovery"
	case in.Home.Mode == audit.ModeStatic && in.Home.Diagnostics.SchemaBlockCount > 0:
		res.Points = max
		res.Notes = "structured data visible without rendering"
	case in.Home.Mode == audit.ModeRendered && len(in.Home.SchemaObjects) > 0:
		res.Points = max / 2
		res.Notes = "structured data requires JS rendering"
	default:
		res.Notes = "no crawlable structured data"
	}
}

func scoreContentDepth(res *audit.SignalResult, e audit.EntitySignals, t Thresholds, max float64) {
	res.Raw = e.TotalWordCount
	switch {
	case e.TotalWordCount >= t.ContentDepthFullWords:
		res.Points = max
		res.Notes = fmt.Sprintf("%d words across surfaces", e.TotalWordCount)
	case e.TotalWordCount >= t.ContentDepthHalfWords:
		res.Points = max / 2
		res.Notes = fmt.Sprintf("moderate depth: %d words", e.TotalWordCount)
	default:
		res.Notes = fmt.Sprintf("thin content: %d words", e.TotalWordCount)
	}
}

func scoreInternalLattice(res *audit.SignalResult, e audit.EntitySignals, t Thresholds, max float64) {
	res.Raw = e.InternalLinkStrength
	switch {
	case e.InternalLinks+e.ExternalLinks == 0:
		res.Notes = "no links observed"
	case e.InternalLinkStrength >= t.InternalStrengthFull:
		res.Points = max
		res.Notes = fmt.Sprintf("internal link strength %.2f", e.InternalLinkStrength)
	case e.InternalLinkStrength >= t.InternalStrengthHalf:
		res.Points = max / 2
		res.Notes = fmt.Sprintf("weak internal lattice: %.2f", e.InternalLinkStrength)
	default:
		res.Notes = fmt.Sprintf("internal link strength %.2f below floor", e.InternalLinkStrength)
	}
}

func scoreExternalAuthority(res *audit.SignalResult, e audit.EntitySignals, t Thresholds, max float64) {
	res.Raw = e.ExternalLinks
	switch {
	case e.ExternalLinks >= t.ExternalLinksFullCount:
		res.Points = max
		res.Notes = fmt.Sprintf("%d outbound references", e.ExternalLinks)
	case e.ExternalLinks > 0:
		res.Points = max / 2
		res.Notes = "few outbound references"
	default:
		res.Notes = "no outbound references"
	}
}

func scoreBrandConsistency(res *audit.SignalResult, in Input, max float64) {
	res.Raw = in.Entity.TitleConsistency
	switch {
	case in.Entity.SurfacesCounted >= 2 && in.Entity.TitleConsistency < 1:
		res.Points = max
		res.Notes = "brand title reinforced across surfaces"
	case in.Home.Title != "":
		res.Points = max / 2
		res.Notes = "single-surface title only"
	default:
		res.Notes = "no brand title signal"
	}
}
