package audit

// PromotionGate decides whether a lite crawl result justifies the expensive
// heavy-audit path. It is intentionally a cheap, conservative filter.
type PromotionGate struct {
	minSchemaObjects int
}

// NewPromotionGate constructs a gate with the configured schema-object floor.
func NewPromotionGate(minSchemaObjects int) *PromotionGate {
	if minSchemaObjects <= 0 {
		minSchemaObjects = 2
	}
	return &PromotionGate{minSchemaObjects: minSchemaObjects}
}

// ShouldPromote returns false for any failed lite result, and otherwise true
// iff the page exposed at least the configured number of structured-data
// objects.
func (g *PromotionGate) ShouldPromote(lite PageRecord) bool {
	if !lite.OK() {
		return false
	}
	return len(lite.SchemaObjects) >= g.minSchemaObjects
}
