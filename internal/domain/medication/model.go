package medication

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Safety ceilings applied when validating schedules. These are hard floors
// and ceilings, not preferences: a schedule that crosses them is rejected
// outright rather than coerced.
const (
	// MaxImpliedDosesPerDay caps how many doses per day an interval
	// schedule may imply (24 / IntervalHours).
	MaxImpliedDosesPerDay = 12
	// MinPRNGapHours is the hard floor for the minimum spacing of an
	// as-needed schedule.
	MinPRNGapHours = 2
	// MinFixedTimeSpacing is the minimum distance between two fixed dose
	// times of the same medication.
	MinFixedTimeSpacing = time.Minute
	// DefaultRedoseInterval is used for schedules that do not carry an
	// explicit minimum spacing (fixed-time and complex schedules).
	DefaultRedoseInterval = 4 * time.Hour
	// MaxComplexDailyDose caps the summed dose amount of a complex
	// schedule within one day, in the medication's own dosage unit.
	MaxComplexDailyDose = 10
)

// ScheduleKind discriminates the DoseSchedule variants.
type ScheduleKind string

const (
	KindFixedTime ScheduleKind = "fixed_time"
	KindInterval  ScheduleKind = "interval"
	KindPRN       ScheduleKind = "prn"
	KindComplex   ScheduleKind = "complex"
)

// TimeOfDay is a local wall-clock dose time ("HH:MM") together with the
// IANA zone it was entered in. Comparisons across medications always go
// through UTC (see Instant), never through the raw string.
type TimeOfDay struct {
	Clock string `json:"time" db:"time"`
	Zone  string `json:"zone" db:"zone"`
}

// Minutes returns the wall-clock time as minutes after local midnight.
func (t TimeOfDay) Minutes() (int, error) {
	parts := strings.SplitN(t.Clock, ":", 2)
	if len(parts) != 2 {
		return 0, fmt.Errorf("invalid time %q, want HH:MM", t.Clock)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, fmt.Errorf("invalid hour in %q", t.Clock)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, fmt.Errorf("invalid minute in %q", t.Clock)
	}
	return h*60 + m, nil
}

// Instant anchors the wall-clock time on the given reference day in its
// own zone and returns the resulting UTC instant.
func (t TimeOfDay) Instant(ref time.Time) (time.Time, error) {
	mins, err := t.Minutes()
	if err != nil {
		return time.Time{}, err
	}
	zone := t.Zone
	if zone == "" {
		zone = "UTC"
	}
	loc, err := time.LoadLocation(zone)
	if err != nil {
		return time.Time{}, fmt.Errorf("load zone %q: %w", zone, err)
	}
	local := ref.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), mins/60, mins%60, 0, 0, loc).UTC(), nil
}

// InZone re-renders the wall-clock time as seen from another zone,
// round-tripping through the UTC instant so the conversion is exact.
func (t TimeOfDay) InZone(zone string, ref time.Time) (TimeOfDay, error) {
	instant, err := t.Instant(ref)
	if err != nil {
		return TimeOfDay{}, err
	}
	loc, err := time.LoadLocation(zone)
	if err != nil {
		return TimeOfDay{}, fmt.Errorf("load zone %q: %w", zone, err)
	}
	local := instant.In(loc)
	return TimeOfDay{Clock: local.Format("15:04"), Zone: zone}, nil
}

// FixedTimeSchedule is a set of unique local clock times, one dose each.
type FixedTimeSchedule struct {
	Times      []TimeOfDay `json:"times"`
	DoseAmount float64     `json:"dose_amount"`
}

// IntervalSchedule doses every Hours hours.
type IntervalSchedule struct {
	Hours      float64 `json:"hours"`
	DoseAmount float64 `json:"dose_amount"`
}

// PRNSchedule is "as needed" dosing bounded by a daily count and a
// minimum spacing.
type PRNSchedule struct {
	MaxDailyDoses   int     `json:"max_daily_doses"`
	MinHoursBetween float64 `json:"min_hours_between"`
	DoseAmount      float64 `json:"dose_amount"`
}

// TimedDose is one (time, dose) pair of a complex schedule.
type TimedDose struct {
	Time TimeOfDay `json:"time"`
	Dose float64   `json:"dose"`
}

// ComplexSchedule is an ordered list of (time, dose) pairs.
type ComplexSchedule struct {
	Doses []TimedDose `json:"doses"`
}

// DoseSchedule is a tagged union over the four schedule kinds. Exactly the
// variant named by Kind is set; the others are nil.
type DoseSchedule struct {
	Kind      ScheduleKind       `json:"kind"`
	FixedTime *FixedTimeSchedule `json:"fixed_time,omitempty"`
	Interval  *IntervalSchedule  `json:"interval,omitempty"`
	PRN       *PRNSchedule       `json:"prn,omitempty"`
	Complex   *ComplexSchedule   `json:"complex,omitempty"`
}

// Validate enforces the schedule invariants. Schedules that fail are
// rejected at create/update time, never silently coerced.
func (s *DoseSchedule) Validate() error {
	switch s.Kind {
	case KindFixedTime:
		if s.FixedTime == nil {
			return fmt.Errorf("%w: fixed_time variant missing", ErrInvalidSchedule)
		}
		if len(s.FixedTime.Times) == 0 {
			return fmt.Errorf("%w: fixed_time needs at least one time", ErrInvalidSchedule)
		}
		if s.FixedTime.DoseAmount <= 0 {
			return fmt.Errorf("%w: dose_amount must be positive", ErrInvalidSchedule)
		}
		return validateSpacing(s.FixedTime.Times)
	case KindInterval:
		if s.Interval == nil {
			return fmt.Errorf("%w: interval variant missing", ErrInvalidSchedule)
		}
		if s.Interval.Hours <= 0 {
			return fmt.Errorf("%w: interval hours must be > 0", ErrInvalidSchedule)
		}
		if implied := 24 / s.Interval.Hours; implied > MaxImpliedDosesPerDay {
			return fmt.Errorf("%w: interval of %vh implies %.0f doses/day (max %d)",
				ErrInvalidSchedule, s.Interval.Hours, implied, MaxImpliedDosesPerDay)
		}
		if s.Interval.DoseAmount <= 0 {
			return fmt.Errorf("%w: dose_amount must be positive", ErrInvalidSchedule)
		}
		return nil
	case KindPRN:
		if s.PRN == nil {
			return fmt.Errorf("%w: prn variant missing", ErrInvalidSchedule)
		}
		if s.PRN.MaxDailyDoses < 1 {
			return fmt.Errorf("%w: prn max_daily_doses must be >= 1", ErrInvalidSchedule)
		}
		if s.PRN.MinHoursBetween < MinPRNGapHours {
			return fmt.Errorf("%w: prn min_hours_between must be >= %d", ErrInvalidSchedule, MinPRNGapHours)
		}
		if s.PRN.DoseAmount <= 0 {
			return fmt.Errorf("%w: dose_amount must be positive", ErrInvalidSchedule)
		}
		return nil
	case KindComplex:
		if s.Complex == nil {
			return fmt.Errorf("%w: complex variant missing", ErrInvalidSchedule)
		}
		if len(s.Complex.Doses) == 0 {
			return fmt.Errorf("%w: complex needs at least one dose", ErrInvalidSchedule)
		}
		var total float64
		times := make([]TimeOfDay, 0, len(s.Complex.Doses))
		for _, d := range s.Complex.Doses {
			if d.Dose <= 0 {
				return fmt.Errorf("%w: dose must be positive", ErrInvalidSchedule)
			}
			total += d.Dose
			times = append(times, d.Time)
		}
		if total > MaxComplexDailyDose {
			return fmt.Errorf("%w: daily total %.2f exceeds maximum %d", ErrInvalidSchedule, total, MaxComplexDailyDose)
		}
		return validateSpacing(times)
	default:
		return fmt.Errorf("%w: unknown schedule kind %q", ErrInvalidSchedule, s.Kind)
	}
}

// validateSpacing rejects duplicate (or near-duplicate) fixed times. Two
// times of the same medication must be at least MinFixedTimeSpacing apart.
func validateSpacing(times []TimeOfDay) error {
	mins := make([]int, 0, len(times))
	for _, t := range times {
		m, err := t.Minutes()
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidSchedule, err)
		}
		mins = append(mins, m)
	}
	sort.Ints(mins)
	floor := int(MinFixedTimeSpacing / time.Minute)
	for i := 1; i < len(mins); i++ {
		if mins[i]-mins[i-1] < floor {
			return fmt.Errorf("%w: dose times %d and %d minutes after midnight are less than %v apart",
				ErrInvalidSchedule, mins[i-1], mins[i], MinFixedTimeSpacing)
		}
	}
	return nil
}

// DailyTimes returns the concrete daily dose times a schedule exposes, or
// nil for schedules without fixed wall-clock times.
func (s *DoseSchedule) DailyTimes() []TimeOfDay {
	switch s.Kind {
	case KindFixedTime:
		if s.FixedTime == nil {
			return nil
		}
		out := make([]TimeOfDay, len(s.FixedTime.Times))
		copy(out, s.FixedTime.Times)
		return out
	case KindComplex:
		if s.Complex == nil {
			return nil
		}
		out := make([]TimeOfDay, 0, len(s.Complex.Doses))
		for _, d := range s.Complex.Doses {
			out = append(out, d.Time)
		}
		return out
	default:
		return nil
	}
}

// MinRedoseInterval is the shortest safe spacing between two taken doses.
func (s *DoseSchedule) MinRedoseInterval() time.Duration {
	switch s.Kind {
	case KindInterval:
		if s.Interval != nil && s.Interval.Hours > 0 {
			return time.Duration(s.Interval.Hours * float64(time.Hour))
		}
	case KindPRN:
		if s.PRN != nil && s.PRN.MinHoursBetween > 0 {
			return time.Duration(s.PRN.MinHoursBetween * float64(time.Hour))
		}
	}
	return DefaultRedoseInterval
}

// MaxDailyDoses returns the daily dose-count ceiling and whether the
// schedule defines one.
func (s *DoseSchedule) MaxDailyDoses() (int, bool) {
	switch s.Kind {
	case KindFixedTime:
		if s.FixedTime != nil {
			return len(s.FixedTime.Times), true
		}
	case KindInterval:
		if s.Interval != nil && s.Interval.Hours > 0 {
			return int(24 / s.Interval.Hours), true
		}
	case KindPRN:
		if s.PRN != nil {
			return s.PRN.MaxDailyDoses, true
		}
	case KindComplex:
		if s.Complex != nil {
			return len(s.Complex.Doses), true
		}
	}
	return 0, false
}

// Medication is one entry on a patient's active list. The identifier is
// immutable once created; everything else changes only through explicit
// update operations.
type Medication struct {
	ID           uuid.UUID    `db:"id" json:"id"`
	PatientID    uuid.UUID    `db:"patient_id" json:"patient_id"`
	Name         string       `db:"name" json:"name"`
	DosageAmount float64      `db:"dosage_amount" json:"dosage_amount"`
	DosageUnit   string       `db:"dosage_unit" json:"dosage_unit"`
	Critical     bool         `db:"critical" json:"critical"`
	Schedule     DoseSchedule `db:"schedule" json:"schedule"`
	CreatedAt    time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time    `db:"updated_at" json:"updated_at"`
}

// DoseStatus is the terminal status of a logged dose event.
type DoseStatus string

const (
	DoseTaken   DoseStatus = "taken"
	DoseMissed  DoseStatus = "missed"
	DoseSkipped DoseStatus = "skipped"
)

// DoseLogEntry is append-only: entries are never mutated after creation,
// only superseded by newer entries.
type DoseLogEntry struct {
	ID           uuid.UUID  `db:"id" json:"id"`
	MedicationID uuid.UUID  `db:"medication_id" json:"medication_id"`
	PatientID    uuid.UUID  `db:"patient_id" json:"patient_id"`
	TakenAt      time.Time  `db:"taken_at" json:"taken_at"`
	Status       DoseStatus `db:"status" json:"status"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
}
