package reconcile

import (
	"strings"

	"github.com/agentic-research/figport/internal/graph"
)

// Category is a best-effort UI role guessed from a node's name and shape.
// It is a label for grouping output, not a guarantee about the node.
type Category string

const (
	Button       Category = "button"
	Card         Category = "card"
	Input        Category = "input"
	Navigation   Category = "navigation"
	Feedback     Category = "feedback"
	Unclassified Category = "unclassified"
)

// Categories lists every category in rule order.
var Categories = []Category{Button, Card, Input, Navigation, Feedback, Unclassified}

var keywordRules = []struct {
	category Category
	keywords []string
}{
	{Button, []string{"button", "btn", "cta"}},
	{Card, []string{"card", "tile", "panel"}},
	{Input, []string{"input", "field", "textbox", "search", "checkbox", "select", "dropdown", "toggle"}},
	{Navigation, []string{"nav", "menu", "header", "footer", "tab", "breadcrumb", "sidebar"}},
	{Feedback, []string{"alert", "toast", "modal", "dialog", "notification", "snackbar", "tooltip", "badge", "banner", "error", "success"}},
}

var componentLike = map[string]bool{
	"FRAME":         true,
	"GROUP":         true,
	"COMPONENT":     true,
	"COMPONENT_SET": true,
	"INSTANCE":      true,
}

// IsComponentLike reports whether nodes of this type are classified.
func IsComponentLike(nodeType string) bool {
	return componentLike[strings.ToUpper(nodeType)]
}

// Classify applies the keyword rules to the name, first match wins, then
// falls back to a card when the node is rounded and filled.
func Classify(r graph.Record) Category {
	name := strings.ToLower(r.Name())
	for _, rule := range keywordRules {
		for _, kw := range rule.keywords {
			if strings.Contains(name, kw) {
				return rule.category
			}
		}
	}
	if radius, ok := r.Float("cornerRadius"); ok && radius > 0 && len(r.List("fills")) > 0 {
		return Card
	}
	return Unclassified
}

// Component is a classified node or local component definition.
type Component struct {
	ID       string
	Name     string
	Type     string
	Category Category
	// Local is set for definitions that only the local components artifact knows.
	Local  bool
	Record graph.Record
}

func classifyAll(nodes *graph.Store, locals []graph.Record) []Component {
	var out []Component
	for _, r := range nodes.Records() {
		if !IsComponentLike(r.Type()) {
			continue
		}
		out = append(out, Component{ID: r.ID(), Name: r.Name(), Type: r.Type(), Category: Classify(r), Record: r})
	}
	for _, r := range locals {
		if nodes.Has(r.ID()) {
			continue
		}
		t := r.Type()
		if t == "" {
			t = "COMPONENT"
		}
		out = append(out, Component{ID: r.ID(), Name: r.Name(), Type: t, Category: Classify(r), Local: true, Record: r})
	}
	return out
}
