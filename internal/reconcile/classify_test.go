package reconcile

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/agentic-research/figport/internal/graph"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		rec  graph.Record
		want Category
	}{
		{"button keyword", graph.Record{"name": "Primary BTN"}, Button},
		{"first rule wins", graph.Record{"name": "Card Button"}, Button},
		{"card keyword", graph.Record{"name": "Product Tile"}, Card},
		{"input keyword", graph.Record{"name": "Search bar"}, Input},
		{"navigation keyword", graph.Record{"name": "Top Menu"}, Navigation},
		{"feedback keyword", graph.Record{"name": "Error state"}, Feedback},
		{"structural card", graph.Record{"name": "Frame 12", "cornerRadius": 4.0, "fills": []any{"x"}}, Card},
		{"rounded without fill", graph.Record{"name": "Frame 12", "cornerRadius": 4.0}, Unclassified},
		{"square with fill", graph.Record{"name": "Frame 12", "cornerRadius": 0.0, "fills": []any{"x"}}, Unclassified},
		{"no name", graph.Record{}, Unclassified},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.rec))
		})
	}
}

func TestIsComponentLike(t *testing.T) {
	assert.True(t, IsComponentLike("instance"))
	assert.True(t, IsComponentLike("COMPONENT_SET"))
	assert.False(t, IsComponentLike("TEXT"))
	assert.False(t, IsComponentLike(""))
}
