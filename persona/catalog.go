// Package persona exposes the static catalog of AI discussion personas.
// Pure read-only lookup; unknown types are filtered out, never an error.
package persona

import (
	"github.com/samber/lo"
)

type Type string

const (
	TypeOptimist    Type = "optimist"
	TypeSkeptic     Type = "skeptic"
	TypeAnalyst     Type = "analyst"
	TypeFacilitator Type = "facilitator"
	TypeDomain      Type = "domain_expert"
)

// Descriptor describes one AI-simulated discussion participant.
type Descriptor struct {
	Type      Type   `json:"type"`
	Name      string `json:"name"`
	Role      string `json:"role"`
	Expertise string `json:"expertise"`
	Style     string `json:"style"`
}

var catalog = []Descriptor{
	{
		Type:      TypeOptimist,
		Name:      "Maya",
		Role:      "Optimist",
		Expertise: "opportunity framing, team morale",
		Style:     "enthusiastic, builds on others' points",
	},
	{
		Type:      TypeSkeptic,
		Name:      "Viktor",
		Role:      "Skeptic",
		Expertise: "risk analysis, failure modes",
		Style:     "blunt, asks for evidence",
	},
	{
		Type:      TypeAnalyst,
		Name:      "Priya",
		Role:      "Analyst",
		Expertise: "data, trade-off quantification",
		Style:     "structured, cites numbers",
	},
	{
		Type:      TypeFacilitator,
		Name:      "Jonas",
		Role:      "Facilitator",
		Expertise: "group dynamics, synthesis",
		Style:     "calm, redirects to quieter voices",
	},
	{
		Type:      TypeDomain,
		Name:      "Amara",
		Role:      "Domain Expert",
		Expertise: "industry practice, case studies",
		Style:     "concrete, anecdotal",
	},
}

// Catalog returns the full fixed persona set.
func Catalog() []Descriptor {
	out := make([]Descriptor, len(catalog))
	copy(out, catalog)
	return out
}

// Lookup resolves a single persona type.
func Lookup(t Type) (Descriptor, bool) {
	return lo.Find(catalog, func(d Descriptor) bool { return d.Type == t })
}

// Select resolves the requested types in catalog order.
// Unknown types are silently excluded.
func Select(types []string) []Descriptor {
	requested := lo.SliceToMap(types, func(t string) (Type, struct{}) { return Type(t), struct{}{} })
	return lo.Filter(catalog, func(d Descriptor, _ int) bool {
		_, ok := requested[d.Type]
		return ok
	})
}

// Defaults is the persona set used when a join request selects none.
func Defaults() []Descriptor {
	return Select([]string{string(TypeOptimist), string(TypeSkeptic), string(TypeAnalyst)})
}
