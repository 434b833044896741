package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// ScheduleRule configures the dose scheme of one vaccine family.
type ScheduleRule struct {
	ID            uuid.UUID     `db:"id" json:"id"`
	VaccineType   string        `db:"vaccine_type" json:"vaccine_type" validate:"required"`
	Name          string        `db:"name" json:"name"`
	RequiredDoses int           `db:"required_doses" json:"required_doses" validate:"min=1,max=5"`
	Intervals     pq.Int64Array `db:"intervals" json:"intervals" validate:"dive,min=1,max=240"`
	BoosterMonths *int          `db:"booster_months" json:"booster_months,omitempty" validate:"omitempty,min=1,max=240"`
	SingleDose    bool          `db:"single_dose" json:"single_dose"`
	Recurring     bool          `db:"recurring" json:"recurring"`
	UpdatedAt     time.Time     `db:"updated_at" json:"updated_at"`
}

// IntervalAfter returns the months between dose n and dose n+1 (1-based).
// Missing or non-positive entries default to one month.
func (r *ScheduleRule) IntervalAfter(n int) int {
	if n < 1 || n > len(r.Intervals) || r.Intervals[n-1] <= 0 {
		return 1
	}
	return int(r.Intervals[n-1])
}

// HasBooster reports whether a booster interval is configured.
func (r *ScheduleRule) HasBooster() bool {
	return r.BoosterMonths != nil && *r.BoosterMonths > 0
}

// UpdateScheduleRuleRequest edits the configurable part of a rule.
type UpdateScheduleRuleRequest struct {
	RequiredDoses int     `json:"required_doses" binding:"required,min=1,max=5"`
	Intervals     []int64 `json:"intervals" binding:"dive,min=1,max=240"`
	BoosterMonths *int    `json:"booster_months" binding:"omitempty,min=1,max=240"`
	Reason        string  `json:"reason" binding:"max=1000"`
}
