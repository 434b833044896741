package compliance

import (
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/vaccination-api/internal/model"
)

func newRecord(doc, vaccineType string, slots map[model.DoseSlot]string) *model.VaccinationRecord {
	rec := &model.VaccinationRecord{
		ID:             uuid.New(),
		DocumentNumber: doc,
		FullName:       "Worker " + doc,
		VaccineType:    vaccineType,
	}
	for slot, date := range slots {
		rec.SetSlot(slot, model.RawSlot{Date: date})
	}
	return rec
}

func day(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func timelineOf(origin string, dates ...string) *Timeline {
	t := &Timeline{Family: FamilyTetanus}
	for i, d := range dates {
		if d == "" {
			continue
		}
		t.Doses[i] = &Dose{Date: day(d), Origin: origin}
	}
	return t
}

func rule(required int, intervals []int64, booster int) *model.ScheduleRule {
	r := &model.ScheduleRule{VaccineType: "TEST", RequiredDoses: required, Intervals: intervals}
	if booster > 0 {
		r.BoosterMonths = &booster
	}
	return r
}
