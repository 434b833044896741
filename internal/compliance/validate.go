package compliance

import (
	"fmt"
	"strings"
	"time"

	"github.com/jwalitptl/vaccination-api/internal/model"
)

// ReportSeparator joins the parts of a rendered Report.
const ReportSeparator = " - "

// Report is the diagnostic line of one timeline. Issues are advisory only.
type Report struct {
	Issues  []string `json:"issues"`
	Verdict string   `json:"verdict"`
	Status  Status   `json:"status"`
}

// String renders the issues followed by the verdict.
func (r Report) String() string {
	parts := make([]string, 0, len(r.Issues)+1)
	parts = append(parts, r.Issues...)
	parts = append(parts, r.Verdict)
	return strings.Join(parts, ReportSeparator)
}

// Valid reports whether no issue was found.
func (r Report) Valid() bool {
	return len(r.Issues) == 0
}

type qualityReporter interface {
	QualityIssues() []string
}

// Validator checks chronology and gaps, then appends the evaluator verdict.
type Validator struct {
	evaluator *Evaluator
}

func NewValidator(evaluator *Evaluator) *Validator {
	if evaluator == nil {
		evaluator = NewEvaluator(DefaultDueSoonDays, nil)
	}
	return &Validator{evaluator: evaluator}
}

// Validate produces the report of acc against rule at today.
func (v *Validator) Validate(acc SlotAccessor, family Family, rule *model.ScheduleRule, today time.Time) Report {
	var (
		issues []string
		filled []model.DoseSlot
		dates  = make(map[model.DoseSlot]time.Time)
	)
	firstIdx, lastIdx := -1, -1

	for s := model.SlotDose1; s <= model.SlotDose5; s++ {
		date, ok := acc.DoseDate(s)
		if !ok {
			continue
		}
		if n := len(filled); n > 0 && date.Before(dates[filled[n-1]]) {
			issues = append(issues, fmt.Sprintf("error: dates out of order between dose %d and dose %d", int(filled[n-1]), int(s)))
		}
		filled = append(filled, s)
		dates[s] = date
		if firstIdx < 0 {
			firstIdx = int(s)
		}
		lastIdx = int(s)
	}

	if booster, ok := acc.DoseDate(model.SlotBooster); ok && len(filled) > 0 {
		last := filled[len(filled)-1]
		if booster.Before(dates[last]) {
			issues = append(issues, fmt.Sprintf("error: booster date precedes dose %d", int(last)))
		}
	}

	for n := firstIdx + 1; firstIdx > 0 && n < lastIdx; n++ {
		if _, ok := dates[model.DoseSlot(n)]; !ok {
			issues = append(issues, fmt.Sprintf("error: skipped dose detected (missing dose %d)", n))
		}
	}

	if q, ok := acc.(qualityReporter); ok {
		issues = append(issues, q.QualityIssues()...)
	}

	status := v.evaluator.Evaluate(acc, family, rule, today)
	// A compliant status reads as current even while a later slot is scheduled.
	verdict := "scheme complete and current"
	if !status.State.Compliant() {
		verdict = "scheme pending: " + status.Detail
	}
	return Report{Issues: issues, Verdict: verdict, Status: status}
}

// HasGap reports whether a raw dose array has an empty slot between its first
// and last filled slot. Aggregation uses it without consolidating.
func HasGap(doses [model.MaxDoses]string) bool {
	first, last := -1, -1
	for i, d := range doses {
		if strings.TrimSpace(d) == "" {
			continue
		}
		if first < 0 {
			first = i
		}
		last = i
	}
	for i := first + 1; first >= 0 && i < last; i++ {
		if strings.TrimSpace(doses[i]) == "" {
			return true
		}
	}
	return false
}
