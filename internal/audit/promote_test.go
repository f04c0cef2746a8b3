package audit

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPromotionGate(t *testing.T) {
	t.Parallel()

	gate := NewPromotionGate(2)

	tests := []struct {
		name string
		rec  PageRecord
		want bool
	}{
		{
			name: "failed lite result never promotes",
			rec: PageRecord{
				Error:         "connection refused",
				SchemaObjects: []SchemaObject{{}, {}, {}},
			},
			want: false,
		},
		{
			name: "two schema objects promote",
			rec:  PageRecord{SchemaObjects: []SchemaObject{{}, {}}},
			want: true,
		},
		{
			name: "one schema object does not promote",
			rec:  PageRecord{SchemaObjects: []SchemaObject{{}}},
			want: false,
		},
		{
			name: "zero schema objects do not promote",
			rec:  PageRecord{},
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, gate.ShouldPromote(tt.rec))
		})
	}
}

func TestPromotionGateDefaultsFloor(t *testing.T) {
	t.Parallel()

	gate := NewPromotionGate(0)
	require.False(t, gate.ShouldPromote(PageRecord{SchemaObjects: []SchemaObject{{}}}))
	require.True(t, gate.ShouldPromote(PageRecord{SchemaObjects: []SchemaObject{{}, {}}}))
}

func TestSchemaObjectTypes(t *testing.T) {
	t.Parallel()

	require.Equal(t, []string{"Organization"}, SchemaObject{"@type": "Organization"}.Types())
	require.Equal(
		t,
		[]string{"Organization", "Corporation"},
		SchemaObject{"@type": []any{"Organization", "Corporation"}}.Types(),
	)
	require.Nil(t, SchemaObject{}.Types())
}

func TestSchemaObjectSameAs(t *testing.T) {
	t.Parallel()

	obj := SchemaObject{"sameAs": []any{"https://twitter.com/acme", "https://linkedin.com/company/acme"}}
	require.Len(t, obj.SameAs(), 2)
	require.Equal(t, []string{"https://x.com/acme"}, SchemaObject{"sameAs": "https://x.com/acme"}.SameAs())
}
