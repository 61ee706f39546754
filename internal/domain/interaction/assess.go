package interaction

import "fmt"

// SeverityScore maps severity onto [0,1]; higher severity yields a lower
// (less safe) score. Unknown scores 1.0: an unrecognized severity label
// carries no evidence of danger by itself, the evidence score pulls the
// combined value down instead.
func SeverityScore(s Severity) float64 {
	switch s {
	case SeveritySevere:
		return 0.2
	case SeverityHigh:
		return 0.4
	case SeverityModerate:
		return 0.6
	case SeverityLow:
		return 0.8
	case SeverityUnknown:
		return 1.0
	}
	return 1.0
}

// EvidenceScore maps evidence strength onto [0,1].
func EvidenceScore(e Evidence) float64 {
	switch e {
	case EvidenceStrong:
		return 1.0
	case EvidenceModerate:
		return 0.8
	case EvidenceLimited:
		return 0.6
	case EvidenceTheoretical:
		return 0.4
	case EvidenceUnknown:
		return 0.5
	}
	return 0.5
}

// ScoreRecord is the per-interaction safety score: the arithmetic mean of
// the severity and evidence scores. Always a finite value in [0,1].
func ScoreRecord(r Record) float64 {
	return (SeverityScore(r.Severity) + EvidenceScore(r.Evidence)) / 2
}

// Assess reduces a result set to a single SafetyAssessment. With zero
// interactions the set is maximally safe (score 1.0).
func Assess(results []Result) Assessment {
	a := Assessment{Score: 1.0}
	if len(results) == 0 {
		return a
	}

	var sum float64
	for _, r := range results {
		sum += r.SafetyScore
		a.Issues = append(a.Issues, fmt.Sprintf("%s + %s: %s (%s, evidence %s)",
			r.MedicationA, r.MedicationB, r.Description, r.Severity, r.Evidence))
		a.Recommendations = append(a.Recommendations, r.Recommendations...)
		if r.RequiresAttention {
			a.RequiresAttention = true
		}
		if len(r.Alternatives) > 0 {
			a.AlternativesAvailable = true
		}
	}
	a.Score = sum / float64(len(results))
	return a
}
