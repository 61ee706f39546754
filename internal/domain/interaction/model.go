package interaction

// Severity is the qualitative danger level of an interaction. Unknown is
// an explicit member of the enumeration: every scoring switch handles it
// by name, never through a default branch.
type Severity string

const (
	SeveritySevere   Severity = "severe"
	SeverityHigh     Severity = "high"
	SeverityModerate Severity = "moderate"
	SeverityLow      Severity = "low"
	SeverityUnknown  Severity = "unknown"
)

// ParseSeverity maps free-form gateway severities onto the enumeration.
func ParseSeverity(s string) Severity {
	switch Severity(s) {
	case SeveritySevere, SeverityHigh, SeverityModerate, SeverityLow:
		return Severity(s)
	default:
		return SeverityUnknown
	}
}

// Evidence is how well-supported an interaction claim is.
type Evidence string

const (
	EvidenceStrong      Evidence = "strong"
	EvidenceModerate    Evidence = "moderate"
	EvidenceLimited     Evidence = "limited"
	EvidenceTheoretical Evidence = "theoretical"
	EvidenceUnknown     Evidence = "unknown"
)

// ParseEvidence maps free-form gateway evidence levels onto the enumeration.
func ParseEvidence(s string) Evidence {
	switch Evidence(s) {
	case EvidenceStrong, EvidenceModerate, EvidenceLimited, EvidenceTheoretical:
		return Evidence(s)
	default:
		return EvidenceUnknown
	}
}

// Type classifies what kind of risk a record describes.
type Type string

const (
	TypeDrugDrug Type = "drug-drug"
	TypeHerbDrug Type = "herb-drug"
	TypeTiming   Type = "timing"
)

// Record is one detected interaction between an unordered pair of
// medications. Derived data: recomputed or cache-fetched, never treated
// as a source of truth.
type Record struct {
	MedicationA     string   `json:"medication_a"`
	MedicationB     string   `json:"medication_b"`
	Severity        Severity `json:"severity"`
	Type            Type     `json:"type"`
	Description     string   `json:"description"`
	Evidence        Evidence `json:"evidence"`
	Recommendations []string `json:"recommendations,omitempty"`
	// RequiresAttention is true for drug-drug or herb-drug records of
	// severe or high severity.
	RequiresAttention bool `json:"requires_immediate_attention"`
}

// requiresAttention computes the attention flag from type and severity.
func requiresAttention(t Type, s Severity) bool {
	if t == TypeTiming {
		return false
	}
	return s == SeveritySevere || s == SeverityHigh
}

// Result is a Record enhanced with scoring and next-step guidance, the
// form returned by the checker.
type Result struct {
	Record
	SafetyScore       float64  `json:"safety_score"`
	Alternatives      []string `json:"alternatives,omitempty"`
	EmergencyContacts []string `json:"emergency_contacts"`
	NextSteps         string   `json:"next_steps"`
}

// Assessment reduces a result set to a single gate for downstream
// actions. Recomputed on demand, not persisted.
type Assessment struct {
	Score                 float64  `json:"score"`
	Issues                []string `json:"issues"`
	Recommendations       []string `json:"recommendations"`
	RequiresAttention     bool     `json:"requires_attention"`
	AlternativesAvailable bool     `json:"alternatives_available"`
}

// ReferenceContacts is the fixed emergency reference list attached to
// every enhanced result.
var ReferenceContacts = []string{
	"Poison Control: 1-800-222-1222",
	"Emergency Services: 911",
}
