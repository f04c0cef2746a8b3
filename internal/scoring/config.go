// Package scoring turns crawl diagnostics into a bounded entity score and
// classification band. All numeric thresholds and weights live in Config so
// calibration never touches control flow.
package scoring

// Signal names. The set is fixed; the weights behind them are configuration.
const (
	SignalTitlePrecision    = "title_precision"
	SignalMetaDescription   = "meta_description_integrity"
	SignalCanonicalClarity  = "canonical_clarity"
	SignalSchemaPresence    = "schema_presence"
	SignalOrganization      = "organization_schema"
	SignalBreadcrumb        = "breadcrumb_schema"
	SignalAuthor            = "author_person_schema"
	SignalSocialLinks       = "social_links"
	SignalAICrawlFidelity   = "ai_crawl_fidelity"
	SignalContentDepth      = "content_depth"
	SignalInternalLattice   = "internal_lattice_integrity"
	SignalExternalAuthority = "external_authority_signal"
	SignalBrandConsistency  = "brand_consistency"
)

// signalOrder fixes the breakdown ordering for stable output.
var signalOrder = []string{
	SignalTitlePrecision,
	SignalMetaDescription,
	SignalCanonicalClarity,
	SignalSchemaPresence,
	SignalOrganization,
	SignalBreadcrumb,
	SignalAuthor,
	SignalSocialLinks,
	SignalAICrawlFidelity,
	SignalContentDepth,
	SignalInternalLattice,
	SignalExternalAuthority,
	SignalBrandConsistency,
}

// Thresholds carries every numeric cut point used by the signal rules.
type Thresholds struct {
	TitleMinLen            int     `mapstructure:"title_min_len"`
	TitleMaxLen            int     `mapstructure:"title_max_len"`
	DescriptionMinLen      int     `mapstructure:"description_min_len"`
	DescriptionMaxLen      int     `mapstructure:"description_max_len"`
	ContentDepthFullWords  int     `mapstructure:"content_depth_full_words"`
	ContentDepthHalfWords  int     `mapstructure:"content_depth_half_words"`
	SchemaDiverseTypes     int     `mapstructure:"schema_diverse_types"`
	SocialFullCount        int     `mapstructure:"social_full_count"`
	InternalStrengthFull   float64 `mapstructure:"internal_strength_full"`
	InternalStrengthHalf   float64 `mapstructure:"internal_strength_half"`
	ExternalLinksFullCount int     `mapstructure:"external_links_full_count"`
}

// Band is one rung of the classification ladder.
type Band struct {
	Name string `mapstructure:"name"`
	Min  int    `mapstructure:"min"`
}

// Config is the injectable scoring table: signal weights, the name-to-tier
// mapping, the band ladder, and the threshold values.
type Config struct {
	Weights    map[string]float64 `mapstructure:"weights"`
	Tiers      map[string]int     `mapstructure:"tiers"`
	Bands      []Band             `mapstructure:"bands"`
	Thresholds Thresholds         `mapstructure:"thresholds"`
}

// DefaultConfig returns the calibrated default tables.
func DefaultConfig() Config {
	return Config{
		Weights: map[string]float64{
			SignalTitlePrecision:    5,
			SignalMetaDescription:   5,
			SignalCanonicalClarity:  10,
			SignalSchemaPresence:    10,
			SignalOrganization:      10,
			SignalBreadcrumb:        5,
			SignalAuthor:            5,
			SignalSocialLinks:       5,
			SignalAICrawlFidelity:   10,
			SignalContentDepth:      10,
			SignalInternalLattice:   10,
			SignalExternalAuthority: 5,
			SignalBrandConsistency:  5,
		},
		Tiers: map[string]int{
			// Tier 1: comprehension and trust.
			SignalSchemaPresence:  1,
			SignalOrganization:    1,
			SignalAuthor:          1,
			SignalSocialLinks:     1,
			SignalAICrawlFidelity: 1,
			SignalContentDepth:    1,
			// Tier 2: structural fidelity.
			SignalCanonicalClarity:  2,
			SignalBreadcrumb:        2,
			SignalInternalLattice:   2,
			SignalExternalAuthority: 2,
			SignalBrandConsistency:  2,
			// Tier 3: page hygiene.
			SignalTitlePrecision:  3,
			SignalMetaDescription: 3,
		},
		Bands: []Band{
			{Name: "Obscure", Min: 0},
			{Name: "Bronze", Min: 20},
			{Name: "Silver", Min: 40},
			{Name: "Gold", Min: 60},
			{Name: "Platinum", Min: 80},
		},
		Thresholds: Thresholds{
			TitleMinLen:            10,
			TitleMaxLen:            70,
			DescriptionMinLen:      50,
			DescriptionMaxLen:      160,
			ContentDepthFullWords:  1200,
			ContentDepthHalfWords:  300,
			SchemaDiverseTypes:     3,
			SocialFullCount:        3,
			InternalStrengthFull:   0.6,
			InternalStrengthHalf:   0.3,
			ExternalLinksFullCount: 5,
		},
	}
}

// TotalWeight sums the configured signal maxima.
func (c Config) TotalWeight() float64 {
	var total float64
	for _, w := range c.Weights {
		total += w
	}
	return total
}
