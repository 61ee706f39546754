// Package timing detects scheduled dose times of different medications
// that fall closer together than a configured minimum safe gap. Detection
// is pairwise and symmetric; it does not attempt a globally optimal
// schedule, only violation reporting.
package timing

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/meditrack/meditrack/internal/domain/medication"
)

// DefaultMinGap is the minimum spacing required between doses of two
// different medications unless configured otherwise.
const DefaultMinGap = 4 * time.Hour

// Conflict reports two scheduled dose times that violate the minimum gap.
// Both times keep their originating zones so either caregiver's view can
// be rendered from the same record.
type Conflict struct {
	MedicationAID   uuid.UUID            `json:"medication_a_id"`
	MedicationAName string               `json:"medication_a_name"`
	MedicationBID   uuid.UUID            `json:"medication_b_id"`
	MedicationBName string               `json:"medication_b_name"`
	TimeA           medication.TimeOfDay `json:"time_a"`
	TimeB           medication.TimeOfDay `json:"time_b"`
	RequiredGap     time.Duration        `json:"required_gap"`
	ActualGap       time.Duration        `json:"actual_gap"`
	Recommendation  string               `json:"recommendation"`
}

// ActualGapHours is the conflict gap expressed in hours.
func (c Conflict) ActualGapHours() float64 {
	return c.ActualGap.Hours()
}

// Validator finds pairwise timing violations between medications that
// expose concrete daily dose times.
type Validator struct {
	minGap time.Duration
	now    func() time.Time
}

func NewValidator(minGap time.Duration) *Validator {
	if minGap <= 0 {
		minGap = DefaultMinGap
	}
	return &Validator{minGap: minGap, now: time.Now}
}

// WithClock overrides the reference clock used to anchor wall-clock times
// on a concrete day, for tests.
func (v *Validator) WithClock(now func() time.Time) *Validator {
	v.now = now
	return v
}

// MinGap returns the configured minimum safe gap.
func (v *Validator) MinGap() time.Duration { return v.minGap }

// Validate checks every unordered pair of medications. Each local time is
// converted to a UTC instant on a common reference day before comparison;
// the gap between two daily times is circular (23:00 and 01:00 are two
// hours apart, not twenty-two).
func (v *Validator) Validate(meds []*medication.Medication) ([]Conflict, error) {
	ref := v.now()
	var out []Conflict
	for i := 0; i < len(meds); i++ {
		timesA := meds[i].Schedule.DailyTimes()
		if len(timesA) == 0 {
			continue
		}
		for j := i + 1; j < len(meds); j++ {
			timesB := meds[j].Schedule.DailyTimes()
			if len(timesB) == 0 {
				continue
			}
			conflicts, err := v.checkPair(meds[i], meds[j], timesA, timesB, ref)
			if err != nil {
				return nil, err
			}
			out = append(out, conflicts...)
		}
	}
	return out, nil
}

func (v *Validator) checkPair(a, b *medication.Medication, timesA, timesB []medication.TimeOfDay, ref time.Time) ([]Conflict, error) {
	var out []Conflict
	for _, ta := range timesA {
		instA, err := ta.Instant(ref)
		if err != nil {
			return nil, fmt.Errorf("medication %s: %w", a.Name, err)
		}
		for _, tb := range timesB {
			instB, err := tb.Instant(ref)
			if err != nil {
				return nil, fmt.Errorf("medication %s: %w", b.Name, err)
			}
			gap := circularGap(instA, instB)
			if gap < v.minGap {
				out = append(out, Conflict{
					MedicationAID:   a.ID,
					MedicationAName: a.Name,
					MedicationBID:   b.ID,
					MedicationBName: b.Name,
					TimeA:           ta,
					TimeB:           tb,
					RequiredGap:     v.minGap,
					ActualGap:       gap,
					Recommendation: fmt.Sprintf("schedule %s and %s at least %g hours apart",
						a.Name, b.Name, v.minGap.Hours()),
				})
			}
		}
	}
	return out, nil
}

// circularGap returns the distance between two daily-recurring instants,
// wrapping around midnight.
func circularGap(a, b time.Time) time.Duration {
	const day = 24 * time.Hour
	d := a.Sub(b) % day
	if d < 0 {
		d = -d
	}
	if d > day/2 {
		d = day - d
	}
	return d
}
