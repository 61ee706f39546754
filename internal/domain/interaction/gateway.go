package interaction

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
)

// ErrLookupUnavailable means the external reference database could not be
// queried. A check that hits it fails as a whole: the caller must treat
// the interaction status as unknown, never as "no interaction".
var ErrLookupUnavailable = errors.New("interaction lookup unavailable")

// Fact is one interaction fact as returned by the reference database.
type Fact struct {
	Type            Type     `json:"type"`
	Severity        string   `json:"severity"`
	Evidence        string   `json:"evidence"`
	Description     string   `json:"description"`
	Recommendations []string `json:"recommendations,omitempty"`
}

// Profile is detailed reference information about one substance, used for
// safer-alternative suggestions.
type Profile struct {
	Name         string   `json:"name"`
	Class        string   `json:"class,omitempty"`
	Herbal       bool     `json:"herbal"`
	Alternatives []string `json:"alternatives,omitempty"`
}

// Gateway is the interaction lookup oracle. The engine queries it
// per-pair and never assumes a bulk endpoint.
type Gateway interface {
	// Lookup returns known facts for the unordered pair (medA, medB).
	Lookup(ctx context.Context, medA, medB string) ([]Fact, error)
	IsHerbalSupplement(ctx context.Context, name string) (bool, error)
	DetailedInfo(ctx context.Context, name string) (*Profile, error)
}

// StaticGateway is an in-memory Gateway seeded with a small curated fact
// table so the server can run without an external reference service.
type StaticGateway struct {
	mu       sync.RWMutex
	facts    map[string][]Fact
	profiles map[string]*Profile
}

func pairKey(a, b string) string {
	names := []string{strings.ToLower(strings.TrimSpace(a)), strings.ToLower(strings.TrimSpace(b))}
	sort.Strings(names)
	return names[0] + "|" + names[1]
}

// NewStaticGateway returns a gateway pre-seeded with well-known
// interactions. The seed list is illustrative, not a clinical reference.
func NewStaticGateway() *StaticGateway {
	g := &StaticGateway{
		facts:    make(map[string][]Fact),
		profiles: make(map[string]*Profile),
	}

	g.AddFact("warfarin", "aspirin", Fact{
		Type:        TypeDrugDrug,
		Severity:    "severe",
		Evidence:    "strong",
		Description: "Concurrent use significantly increases bleeding risk.",
		Recommendations: []string{
			"Avoid combination unless specifically directed by a physician",
			"Monitor for signs of bleeding",
		},
	})
	g.AddFact("warfarin", "ibuprofen", Fact{
		Type:        TypeDrugDrug,
		Severity:    "high",
		Evidence:    "strong",
		Description: "NSAIDs increase anticoagulant effect and GI bleeding risk.",
		Recommendations: []string{
			"Prefer acetaminophen for pain relief",
		},
	})
	g.AddFact("st john's wort", "warfarin", Fact{
		Type:        TypeHerbDrug,
		Severity:    "high",
		Evidence:    "moderate",
		Description: "St John's Wort induces CYP enzymes and reduces warfarin effectiveness.",
		Recommendations: []string{
			"Do not combine without INR monitoring",
		},
	})
	g.AddFact("lisinopril", "ibuprofen", Fact{
		Type:        TypeDrugDrug,
		Severity:    "moderate",
		Evidence:    "moderate",
		Description: "NSAIDs can blunt the antihypertensive effect of ACE inhibitors.",
	})

	g.AddProfile(&Profile{Name: "warfarin", Class: "anticoagulant", Alternatives: []string{"apixaban", "rivaroxaban"}})
	g.AddProfile(&Profile{Name: "aspirin", Class: "antiplatelet", Alternatives: []string{"acetaminophen"}})
	g.AddProfile(&Profile{Name: "ibuprofen", Class: "nsaid", Alternatives: []string{"acetaminophen", "naproxen"}})
	g.AddProfile(&Profile{Name: "st john's wort", Herbal: true, Alternatives: []string{"consult provider for mood support options"}})

	return g
}

// AddFact registers a fact under the unordered pair key.
func (g *StaticGateway) AddFact(medA, medB string, f Fact) {
	g.mu.Lock()
	defer g.mu.Unlock()
	key := pairKey(medA, medB)
	g.facts[key] = append(g.facts[key], f)
}

// AddProfile registers or replaces a substance profile.
func (g *StaticGateway) AddProfile(p *Profile) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.profiles[strings.ToLower(p.Name)] = p
}

func (g *StaticGateway) Lookup(_ context.Context, medA, medB string) ([]Fact, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	facts := g.facts[pairKey(medA, medB)]
	out := make([]Fact, len(facts))
	copy(out, facts)
	return out, nil
}

func (g *StaticGateway) IsHerbalSupplement(_ context.Context, name string) (bool, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if p, ok := g.profiles[strings.ToLower(name)]; ok {
		return p.Herbal, nil
	}
	return false, nil
}

func (g *StaticGateway) DetailedInfo(_ context.Context, name string) (*Profile, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if p, ok := g.profiles[strings.ToLower(name)]; ok {
		cp := *p
		return &cp, nil
	}
	return nil, errors.New("no profile for " + name)
}
