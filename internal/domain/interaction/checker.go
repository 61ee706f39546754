package interaction

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/meditrack/meditrack/internal/domain/audit"
	"github.com/meditrack/meditrack/internal/domain/medication"
	"github.com/meditrack/meditrack/internal/domain/timing"
)

// Checker orchestrates pairwise gateway lookups and timing validation
// across one patient's medication set, caching result sets by
// fingerprint.
type Checker struct {
	gateway   Gateway
	store     ResultStore
	validator *timing.Validator
	recorder  audit.Recorder
	logger    zerolog.Logger
}

func NewChecker(gateway Gateway, store ResultStore, validator *timing.Validator, recorder audit.Recorder, logger zerolog.Logger) *Checker {
	return &Checker{
		gateway:   gateway,
		store:     store,
		validator: validator,
		recorder:  recorder,
		logger:    logger,
	}
}

// Check runs the full interaction check over a medication set. Fewer than
// two medications is an empty result, not an error, and never touches the
// gateway. A gateway failure fails the whole check: the caller must treat
// it as "interaction status unknown", never as "no interaction".
//
// Concurrent identical checks are not deduplicated; the computed set is a
// pure function of the inputs and the gateway's current data, so racing
// writers waste work but cannot cache a wrong value.
func (c *Checker) Check(ctx context.Context, meds []*medication.Medication) ([]Result, error) {
	if len(meds) < 2 {
		return []Result{}, nil
	}

	names := make([]string, 0, len(meds))
	for _, m := range meds {
		names = append(names, m.Name)
	}
	fp := Fingerprint(names)

	if cached, ok := c.store.Get(ctx, fp); ok {
		c.record(ctx, audit.ActionInteractionCheck, names, outcomeFor(cached),
			fmt.Sprintf("%d interactions found (cached)", len(cached)))
		return cached, nil
	}

	results, err := c.compute(ctx, meds)
	if err != nil {
		c.record(ctx, audit.ActionInteractionCheck, names, audit.OutcomeError, err.Error())
		return nil, err
	}
	c.store.Set(ctx, fp, results)

	c.record(ctx, audit.ActionInteractionCheck, names, outcomeFor(results),
		fmt.Sprintf("%d interactions found", len(results)))
	return results, nil
}

// Evaluate runs the same check as Check but never reads or writes the
// result cache. Schedule edits check hypothetical medication lists whose
// fingerprint collides with the stored set's; caching those results
// would let an abandoned proposal answer later checks of the real
// schedules, and vice versa.
func (c *Checker) Evaluate(ctx context.Context, meds []*medication.Medication) ([]Result, error) {
	if len(meds) < 2 {
		return []Result{}, nil
	}
	return c.compute(ctx, meds)
}

func (c *Checker) compute(ctx context.Context, meds []*medication.Medication) ([]Result, error) {
	records, err := c.collectRecords(ctx, meds)
	if err != nil {
		return nil, err
	}
	return c.enhance(ctx, records), nil
}

// ValidateTiming runs only the schedule-gap validation over a medication
// set, without gateway lookups, and records the outcome.
func (c *Checker) ValidateTiming(ctx context.Context, meds []*medication.Medication) ([]timing.Conflict, error) {
	conflicts, err := c.validator.Validate(meds)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(meds))
	for _, m := range meds {
		names = append(names, m.Name)
	}
	outcome := audit.OutcomePass
	if len(conflicts) > 0 {
		outcome = audit.OutcomeWarned
	}
	c.record(ctx, audit.ActionTimingValidation, names, outcome,
		fmt.Sprintf("%d timing conflicts found", len(conflicts)))
	return conflicts, nil
}

func outcomeFor(results []Result) string {
	for _, r := range results {
		if r.RequiresAttention {
			return audit.OutcomeWarned
		}
	}
	return audit.OutcomePass
}

func (c *Checker) collectRecords(ctx context.Context, meds []*medication.Medication) ([]Record, error) {
	herbal := make(map[string]bool, len(meds))
	for _, m := range meds {
		h, err := c.gateway.IsHerbalSupplement(ctx, m.Name)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrLookupUnavailable, err)
		}
		herbal[m.Name] = h
	}

	seen := make(map[string]bool)
	var records []Record
	add := func(a, b string, facts []Fact) {
		for _, f := range facts {
			r := Record{
				MedicationA:     a,
				MedicationB:     b,
				Severity:        ParseSeverity(f.Severity),
				Type:            f.Type,
				Description:     f.Description,
				Evidence:        ParseEvidence(f.Evidence),
				Recommendations: append([]string(nil), f.Recommendations...),
			}
			r.RequiresAttention = requiresAttention(r.Type, r.Severity)
			key := Fingerprint([]string{a, b}) + "|" + string(r.Type) + "|" + strings.ToLower(r.Description)
			if seen[key] {
				continue
			}
			seen[key] = true
			records = append(records, r)
		}
	}

	for i := 0; i < len(meds); i++ {
		for j := i + 1; j < len(meds); j++ {
			a, b := meds[i], meds[j]
			facts, err := c.gateway.Lookup(ctx, a.Name, b.Name)
			if err != nil {
				return nil, fmt.Errorf("%w: %s/%s: %v", ErrLookupUnavailable, a.Name, b.Name, err)
			}
			add(a.Name, b.Name, facts)

			// Herbal supplements are checked in both directions; the
			// reference databases index herb-drug facts under either
			// substance.
			if herbal[a.Name] || herbal[b.Name] {
				reverse, err := c.gateway.Lookup(ctx, b.Name, a.Name)
				if err != nil {
					return nil, fmt.Errorf("%w: %s/%s: %v", ErrLookupUnavailable, b.Name, a.Name, err)
				}
				add(a.Name, b.Name, reverse)
			}
		}
	}

	conflicts, err := c.validator.Validate(meds)
	if err != nil {
		return nil, fmt.Errorf("timing validation: %w", err)
	}
	for _, tc := range conflicts {
		records = append(records, Record{
			MedicationA: tc.MedicationAName,
			MedicationB: tc.MedicationBName,
			Severity:    SeverityModerate,
			Type:        TypeTiming,
			Description: fmt.Sprintf("doses at %s (%s) and %s (%s) are %.1f hours apart (minimum %.1f)",
				tc.TimeA.Clock, tc.TimeA.Zone, tc.TimeB.Clock, tc.TimeB.Zone,
				tc.ActualGapHours(), tc.RequiredGap.Hours()),
			Evidence:        EvidenceUnknown,
			Recommendations: []string{tc.Recommendation},
		})
	}

	return records, nil
}

// enhance augments raw records with scores, alternatives, and next-step
// guidance. A failed profile lookup only costs the alternatives for that
// record; it does not abort the check.
func (c *Checker) enhance(ctx context.Context, records []Record) []Result {
	results := make([]Result, 0, len(records))
	for _, r := range records {
		res := Result{
			Record:            r,
			SafetyScore:       ScoreRecord(r),
			EmergencyContacts: append([]string(nil), ReferenceContacts...),
			NextSteps:         nextSteps(r),
		}
		if r.RequiresAttention {
			res.Alternatives = c.alternatives(ctx, r.MedicationA, r.MedicationB)
		}
		results = append(results, res)
	}
	return results
}

func (c *Checker) alternatives(ctx context.Context, names ...string) []string {
	var out []string
	for _, name := range names {
		p, err := c.gateway.DetailedInfo(ctx, name)
		if err != nil {
			c.logger.Debug().Err(err).Str("medication", name).Msg("no profile for alternatives")
			continue
		}
		for _, alt := range p.Alternatives {
			out = append(out, fmt.Sprintf("%s instead of %s", alt, name))
		}
	}
	return out
}

func nextSteps(r Record) string {
	if r.Type == TypeTiming {
		return "Adjust dose times to restore the minimum safe gap between these medications."
	}
	switch r.Severity {
	case SeveritySevere:
		return "Contact your healthcare provider immediately before taking these medications together."
	case SeverityHigh:
		return "Consult your pharmacist or provider within 24 hours."
	case SeverityModerate:
		return "Discuss this combination at your next appointment."
	case SeverityLow, SeverityUnknown:
		return "No immediate action required; monitor for unusual symptoms."
	}
	return "No immediate action required; monitor for unusual symptoms."
}

// AssessSafety runs a check and reduces it to a single assessment.
func (c *Checker) AssessSafety(ctx context.Context, meds []*medication.Medication) (*Assessment, error) {
	results, err := c.Check(ctx, meds)
	if err != nil {
		return nil, err
	}
	a := Assess(results)
	return &a, nil
}

func (c *Checker) record(ctx context.Context, action string, names []string, outcome, evidence string) {
	err := c.recorder.Record(ctx, audit.Entry{
		Actor:      "engine",
		Action:     action,
		SubjectIDs: names,
		Outcome:    outcome,
		Evidence:   evidence,
	})
	if err != nil {
		c.logger.Error().Err(err).Msg("failed to record interaction check audit entry")
	}
}
