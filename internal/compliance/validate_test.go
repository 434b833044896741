package compliance

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/vaccination-api/internal/model"
)

func countContaining(issues []string, substr string) int {
	n := 0
	for _, issue := range issues {
		if strings.Contains(issue, substr) {
			n++
		}
	}
	return n
}

func TestValidate_SkippedDose(t *testing.T) {
	v := NewValidator(nil)
	tl := timelineOf("", "2024-01-01", "", "2024-03-01")

	report := v.Validate(tl, FamilyTetanus, nil, day("2024-04-01"))
	require.Len(t, report.Issues, 1)
	assert.Equal(t, "error: skipped dose detected (missing dose 2)", report.Issues[0])
	assert.False(t, report.Valid())
}

func TestValidate_BoosterBeforeLastDose(t *testing.T) {
	v := NewValidator(nil)
	tl := timelineOf("", "2024-01-01", "2024-02-01")
	tl.Booster = &Dose{Date: day("2024-01-15")}

	report := v.Validate(tl, FamilyHepatitisB, nil, day("2024-03-01"))
	require.Len(t, report.Issues, 1)
	assert.Equal(t, "error: booster date precedes dose 2", report.Issues[0])
}

func TestValidate_DatesOutOfOrder(t *testing.T) {
	v := NewValidator(nil)
	tl := timelineOf("", "2024-03-01", "2024-02-01", "2024-04-01", "", "2024-01-01")

	report := v.Validate(tl, FamilyTetanus, nil, day("2024-06-01"))
	assert.Equal(t, 1, countContaining(report.Issues, "between dose 1 and dose 2"))
	assert.Equal(t, 1, countContaining(report.Issues, "between dose 3 and dose 5"))
	assert.Equal(t, 1, countContaining(report.Issues, "missing dose 4"))
	assert.Len(t, report.Issues, 3)
}

func TestValidate_Verdict(t *testing.T) {
	v := NewValidator(NewEvaluator(15, nil))

	complete := timelineOf("", "2010-01-01", "2010-02-01", "2010-08-01", "2011-08-01", "2012-08-01")
	report := v.Validate(complete, FamilyTetanus, nil, day("2024-06-01"))
	assert.True(t, report.Valid())
	assert.Equal(t, "scheme complete and current", report.String())

	pending := timelineOf("", "2024-01-01", "", "2024-03-01")
	report = v.Validate(pending, FamilyTetanus, nil, day("2024-06-01"))
	assert.Equal(t, "error: skipped dose detected (missing dose 2) - scheme pending: pending dose 2", report.String())
	assert.Equal(t, StateOverdue, report.Status.State)

	// Compliant timelines with a scheduled slot still read as current
	next := timelineOf("", "2024-01-01")
	report = v.Validate(next, FamilyTetanus, nil, day("2024-01-02"))
	assert.Equal(t, StateCompliant, report.Status.State)
	require.NotNil(t, report.Status.PendingSlot)
	assert.Equal(t, model.SlotDose2, *report.Status.PendingSlot)
	assert.Equal(t, "scheme complete and current", report.String())

	hepB := timelineOf("", "2024-01-01", "2024-02-01", "2024-08-01")
	report = v.Validate(hepB, FamilyHepatitisB, nil, day("2024-09-01"))
	assert.Equal(t, StateCompliant, report.Status.State)
	assert.Equal(t, "booster pending", report.Status.Detail)
	assert.Equal(t, "scheme complete and current", report.String())

	external := timelineOf("Clinica Privada", "2024-01-01")
	report = v.Validate(external, FamilyTetanus, nil, day("2024-01-02"))
	assert.Equal(t, StateCompliantExternal, report.Status.State)
	assert.Equal(t, "scheme complete and current", report.String())

	dueSoon := timelineOf("", "2024-01-01")
	report = v.Validate(dueSoon, FamilyTetanus, nil, day("2024-01-25"))
	assert.Equal(t, StateDueSoon, report.Status.State)
	assert.Equal(t, "scheme pending: pending dose 2", report.String())
}

func TestValidate_QualityIssues(t *testing.T) {
	v := NewValidator(nil)
	rec := newRecord("1", "TETANOS", map[model.DoseSlot]string{
		model.SlotDose1: "2024-01-01",
		model.SlotDose2: "soon",
	})

	report := v.Validate(AccessorFor(rec, SchemaFlat), FamilyTetanus, nil, day("2024-01-20"))
	require.Len(t, report.Issues, 1)
	assert.Contains(t, report.Issues[0], "data quality")
	assert.True(t, strings.HasSuffix(report.String(), "scheme pending: pending dose 2"))
}

func TestValidate_Idempotent(t *testing.T) {
	v := NewValidator(nil)
	tl := timelineOf("", "2024-01-01", "", "2024-03-01")
	today := day("2024-06-01")

	assert.Equal(t, v.Validate(tl, FamilyTetanus, nil, today).String(), v.Validate(tl, FamilyTetanus, nil, today).String())
}

func TestHasGap(t *testing.T) {
	assert.False(t, HasGap([model.MaxDoses]string{}))
	assert.False(t, HasGap([model.MaxDoses]string{"2024-01-01", "2024-02-01"}))
	assert.False(t, HasGap([model.MaxDoses]string{"", "", "2024-02-01"}))
	assert.True(t, HasGap([model.MaxDoses]string{"2024-01-01", " ", "2024-02-01"}))
	assert.True(t, HasGap([model.MaxDoses]string{"", "2024-01-01", "", "", "2024-02-01"}))
}
