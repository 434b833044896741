package compliance

import (
	"fmt"
	"strings"
	"time"

	"github.com/jwalitptl/vaccination-api/internal/model"
)

// State is the compliance outcome of a timeline.
type State string

const (
	StateOverdue           State = "overdue"
	StateDueSoon           State = "due_soon"
	StateCompliant         State = "compliant"
	StateCompliantExternal State = "compliant_external"
)

// Compliant reports whether the state counts as compliant.
func (s State) Compliant() bool {
	return s == StateCompliant || s == StateCompliantExternal
}

// Status is the evaluated compliance of one timeline at a reference date.
type Status struct {
	State       State           `json:"state"`
	NextDue     *time.Time      `json:"next_due,omitempty"`
	DaysLeft    *int            `json:"days_left,omitempty"`
	PendingSlot *model.DoseSlot `json:"pending_slot,omitempty"`
	Detail      string          `json:"detail"`
}

// SlotAccessor exposes the dose dates of a schema version to the evaluator.
type SlotAccessor interface {
	DoseDate(s model.DoseSlot) (time.Time, bool)
	GoverningOrigin() string
}

// SchemaVersion selects how a stored record is read.
type SchemaVersion int

const (
	// SchemaFlat reads only dates plus the row-level origin.
	SchemaFlat SchemaVersion = iota + 1
	// SchemaSlotted reads per-slot origins and observations.
	SchemaSlotted
)

// ParseSchemaVersion maps a configuration value to a schema version.
func ParseSchemaVersion(v string) (SchemaVersion, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "", "slotted":
		return SchemaSlotted, nil
	case "flat":
		return SchemaFlat, nil
	}
	return 0, fmt.Errorf("unknown schema version %q", v)
}

func (v SchemaVersion) String() string {
	if v == SchemaFlat {
		return "flat"
	}
	return "slotted"
}

// AccessorFor reads a single stored record through the given schema version.
func AccessorFor(rec *model.VaccinationRecord, v SchemaVersion) SlotAccessor {
	return &recordAccessor{rec: rec, version: v}
}

type recordAccessor struct {
	rec     *model.VaccinationRecord
	version SchemaVersion
}

func (a *recordAccessor) DoseDate(s model.DoseSlot) (time.Time, bool) {
	return ParseDate(a.rec.Slot(s).Date)
}

func (a *recordAccessor) GoverningOrigin() string {
	row := strings.TrimSpace(model.Deref(a.rec.Origin))
	if a.version == SchemaFlat {
		return row
	}
	for _, s := range []model.DoseSlot{model.SlotBooster, model.SlotDose5, model.SlotDose4, model.SlotDose3, model.SlotDose2, model.SlotDose1} {
		raw := a.rec.Slot(s)
		if _, ok := ParseDate(raw.Date); !ok {
			continue
		}
		if origin := strings.TrimSpace(raw.Origin); origin != "" {
			return origin
		}
		return row
	}
	return row
}

func (a *recordAccessor) QualityIssues() []string {
	var issues []string
	for _, s := range slotOrder {
		raw := strings.TrimSpace(a.rec.Slot(s).Date)
		if raw == "" {
			continue
		}
		if _, ok := ParseDate(raw); !ok {
			issues = append(issues, fmt.Sprintf("data quality: invalid date %q in %s", raw, s))
		}
	}
	return issues
}

// DefaultDueSoonDays is the window in which a pending dose is due soon.
const DefaultDueSoonDays = 15

// DefaultLocalOrigins are the origin literals treated as doses applied locally.
var DefaultLocalOrigins = []string{"local", "esta regional"}

// Evaluator maps a timeline and its schedule rule to a Status.
type Evaluator struct {
	dueSoonDays  int
	localOrigins map[string]bool
}

// NewEvaluator builds an evaluator. Non-positive windows and empty literal
// lists fall back to the defaults.
func NewEvaluator(dueSoonDays int, localOrigins []string) *Evaluator {
	if dueSoonDays <= 0 {
		dueSoonDays = DefaultDueSoonDays
	}
	if len(localOrigins) == 0 {
		localOrigins = DefaultLocalOrigins
	}
	e := &Evaluator{dueSoonDays: dueSoonDays, localOrigins: make(map[string]bool, len(localOrigins))}
	for _, o := range localOrigins {
		e.localOrigins[strings.ToLower(strings.TrimSpace(o))] = true
	}
	return e
}

// Evaluate computes the status of acc at today. A nil rule resolves through
// the built-in fallback table of the family.
func (e *Evaluator) Evaluate(acc SlotAccessor, family Family, rule *model.ScheduleRule, today time.Time) Status {
	today = Day(today)
	if rule == nil {
		rule = Fallback(family)
	}
	if rule == nil {
		return Status{State: StateCompliant, Detail: "no schedule defined"}
	}

	required := requiredDoses(rule)
	first, ok := acc.DoseDate(model.SlotDose1)
	if !ok {
		slot := model.SlotDose1
		return Status{
			State:       StateOverdue,
			NextDue:     &today,
			DaysLeft:    intPtr(0),
			PendingSlot: &slot,
			Detail:      "missing first dose",
		}
	}

	last := first
	for n := 2; n <= required; n++ {
		slot := model.DoseSlot(n)
		date, ok := acc.DoseDate(slot)
		if !ok {
			expected := AddMonths(last, rule.IntervalAfter(n-1))
			return e.classify(acc, today, expected, slot, fmt.Sprintf("pending dose %d", n), true)
		}
		last = date
	}

	if !rule.HasBooster() {
		return e.complete(acc)
	}

	booster := model.SlotBooster
	if date, ok := acc.DoseDate(model.SlotBooster); ok {
		if !rule.Recurring {
			return e.complete(acc)
		}
		expected := AddMonths(date, *rule.BoosterMonths)
		return e.classify(acc, today, expected, booster, "scheme complete, next booster due", false)
	}

	expected := AddMonths(last, *rule.BoosterMonths)
	return e.classify(acc, today, expected, booster, "booster pending", true)
}

// classify applies the due-soon threshold to an expected date. A compliant
// outcome keeps the slot pending unless the scheme itself is already complete.
func (e *Evaluator) classify(acc SlotAccessor, today, expected time.Time, slot model.DoseSlot, detail string, pending bool) Status {
	expected = Day(expected)
	days := DaysUntil(today, expected)
	st := Status{NextDue: &expected, DaysLeft: &days, Detail: detail}

	switch {
	case days < 0:
		st.State = StateOverdue
		st.PendingSlot = &slot
	case days <= e.dueSoonDays:
		st.State = StateDueSoon
		st.PendingSlot = &slot
	default:
		st.State = StateCompliant
		if e.external(acc.GoverningOrigin()) {
			st.State = StateCompliantExternal
		}
		if pending {
			st.PendingSlot = &slot
		}
	}
	return st
}

func (e *Evaluator) complete(acc SlotAccessor) Status {
	st := Status{State: StateCompliant, Detail: "scheme complete"}
	if e.external(acc.GoverningOrigin()) {
		st.State = StateCompliantExternal
	}
	return st
}

func (e *Evaluator) external(origin string) bool {
	origin = strings.ToLower(strings.TrimSpace(origin))
	return origin != "" && !e.localOrigins[origin]
}

func intPtr(n int) *int {
	return &n
}
