package compliance

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/vaccination-api/internal/model"
)

// Dose is one filled slot of a Timeline.
type Dose struct {
	Date           time.Time `json:"date"`
	Origin         string    `json:"origin,omitempty"`
	Observation    string    `json:"observation,omitempty"`
	SourceRecordID uuid.UUID `json:"source_record_id"`
	SourceSubtype  string    `json:"source_subtype"`
}

// Timeline is the canonical per-person, per-family dose record. Sequence 0 is
// the primary timeline; overflow candidates land in secondary timelines.
type Timeline struct {
	Key         string                `json:"key"`
	Family      Family                `json:"family"`
	DisplayName string                `json:"display_name"`
	Mixed       bool                  `json:"mixed"`
	Sequence    int                   `json:"sequence"`
	RecordID    uuid.UUID             `json:"record_id"`
	Person      model.Person          `json:"person"`
	Doses       [model.MaxDoses]*Dose `json:"doses"`
	Booster     *Dose                 `json:"booster,omitempty"`
	Issues      []string              `json:"issues,omitempty"`
}

// Slot returns the dose stored in a slot, or nil.
func (t *Timeline) Slot(s model.DoseSlot) *Dose {
	if s == model.SlotBooster {
		return t.Booster
	}
	if s < model.SlotDose1 || s > model.SlotDose5 {
		return nil
	}
	return t.Doses[s-1]
}

// DoseDate implements SlotAccessor.
func (t *Timeline) DoseDate(s model.DoseSlot) (time.Time, bool) {
	d := t.Slot(s)
	if d == nil {
		return time.Time{}, false
	}
	return d.Date, true
}

// GoverningOrigin is the origin of the booster when present, otherwise of the
// last filled dose slot.
func (t *Timeline) GoverningOrigin() string {
	if t.Booster != nil {
		return t.Booster.Origin
	}
	for i := model.MaxDoses - 1; i >= 0; i-- {
		if t.Doses[i] != nil {
			return t.Doses[i].Origin
		}
	}
	return ""
}

// FilledDoses counts filled dose slots, booster excluded.
func (t *Timeline) FilledDoses() int {
	n := 0
	for _, d := range t.Doses {
		if d != nil {
			n++
		}
	}
	return n
}

// QualityIssues returns the data-quality issues found while consolidating.
func (t *Timeline) QualityIssues() []string {
	return t.Issues
}

// Empty reports whether no slot is filled.
func (t *Timeline) Empty() bool {
	return t.FilledDoses() == 0 && t.Booster == nil
}

// SourceRecords lists the distinct records that fed the timeline, in slot order.
func (t *Timeline) SourceRecords() []uuid.UUID {
	seen := make(map[uuid.UUID]bool)
	var out []uuid.UUID
	add := func(d *Dose) {
		if d == nil || seen[d.SourceRecordID] {
			return
		}
		seen[d.SourceRecordID] = true
		out = append(out, d.SourceRecordID)
	}
	for _, d := range t.Doses {
		add(d)
	}
	add(t.Booster)
	return out
}

// Records lists the source records followed by the descriptive record. These
// are the rows whose stored validation text describes the timeline.
func (t *Timeline) Records() []uuid.UUID {
	out := t.SourceRecords()
	for _, id := range out {
		if id == t.RecordID {
			return out
		}
	}
	return append(out, t.RecordID)
}

// TimelineOf returns the first timeline a record feeds or describes, or nil.
func TimelineOf(timelines []*Timeline, id uuid.UUID) *Timeline {
	for _, t := range timelines {
		for _, rid := range t.Records() {
			if rid == id {
				return t
			}
		}
	}
	return nil
}

func (t *Timeline) subtypes() []string {
	seen := make(map[string]bool)
	var out []string
	for s := model.SlotDose1; s <= model.SlotDose5; s++ {
		if d := t.Slot(s); d != nil && !seen[d.SourceSubtype] {
			seen[d.SourceSubtype] = true
			out = append(out, d.SourceSubtype)
		}
	}
	if t.Booster != nil && !seen[t.Booster.SourceSubtype] {
		out = append(out, t.Booster.SourceSubtype)
	}
	return out
}

func timelineKey(document string, family Family, seq int) string {
	return fmt.Sprintf("%s:%s:%d", document, family, seq)
}

var dateLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05.000Z",
}

// ParseDate reads stored date text and truncates it to a UTC calendar day.
func ParseDate(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return Day(t), true
		}
	}
	return time.Time{}, false
}

// Day truncates t to midnight UTC of its calendar date.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// AddMonths adds calendar months, clamping to the last day of the target
// month (Jan 31 + 1 month = Feb 28/29).
func AddMonths(t time.Time, n int) time.Time {
	y, m, d := t.Date()
	first := time.Date(y, m+time.Month(n), 1, 0, 0, 0, 0, t.Location())
	if last := first.AddDate(0, 1, -1).Day(); d > last {
		d = last
	}
	return time.Date(first.Year(), first.Month(), d, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}

// DaysUntil is the number of whole days from today to target.
func DaysUntil(today, target time.Time) int {
	return int(Day(target).Sub(Day(today)).Hours() / 24)
}
