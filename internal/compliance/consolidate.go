package compliance

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/jwalitptl/vaccination-api/internal/model"
)

// Options tunes Consolidate.
type Options struct {
	// KeepEmpty lists records that must produce a Timeline even without any
	// date, typically a record that was just created.
	KeepEmpty map[uuid.UUID]bool
}

func (o Options) keep(id uuid.UUID) bool {
	return o.KeepEmpty != nil && o.KeepEmpty[id]
}

type candidate struct {
	date      time.Time
	slot      model.DoseSlot
	recordIdx int
	dose      Dose
}

type familyGroup struct {
	family  Family
	records []*model.VaccinationRecord
	indexes []int
}

// Consolidate folds all records of one person into Timelines, one or more per
// family, in first-seen family order. The input is never modified.
func Consolidate(records []*model.VaccinationRecord, opts Options) ([]*Timeline, error) {
	var groups []*familyGroup
	byFamily := make(map[Family]*familyGroup)

	for i, rec := range records {
		if rec == nil {
			continue
		}
		family, err := FamilyOf(rec.VaccineType)
		if err != nil {
			return nil, fmt.Errorf("record %s: %w", rec.ID, err)
		}
		g, ok := byFamily[family]
		if !ok {
			g = &familyGroup{family: family}
			byFamily[family] = g
			groups = append(groups, g)
		}
		g.records = append(g.records, rec)
		g.indexes = append(g.indexes, i)
	}

	var out []*Timeline
	for _, g := range groups {
		out = append(out, consolidateFamily(g, opts)...)
	}
	return out, nil
}

func consolidateFamily(g *familyGroup, opts Options) []*Timeline {
	descriptive := g.records[0]
	for _, rec := range g.records {
		if NormalizeSubtype(rec.VaccineType) == g.family.Canonical() {
			descriptive = rec
			break
		}
	}

	candidates, issues := collectCandidates(g)

	if len(candidates) == 0 {
		for _, rec := range g.records {
			if opts.keep(rec.ID) {
				t := newTimeline(g.family, descriptive, 0)
				t.RecordID = rec.ID
				t.DisplayName = NormalizeSubtype(rec.VaccineType)
				t.Issues = issues
				return []*Timeline{t}
			}
		}
		return nil
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if !a.date.Equal(b.date) {
			return a.date.Before(b.date)
		}
		if a.slot.Order() != b.slot.Order() {
			return a.slot.Order() < b.slot.Order()
		}
		return a.recordIdx < b.recordIdx
	})

	current := newTimeline(g.family, descriptive, 0)
	current.Issues = issues
	timelines := []*Timeline{current}
	next := func() *Timeline {
		current = newTimeline(g.family, descriptive, len(timelines))
		timelines = append(timelines, current)
		return current
	}

	for i := range candidates {
		c := candidates[i]
		dose := c.dose
		if c.slot == model.SlotBooster {
			if current.Booster != nil {
				next()
			}
			current.Booster = &dose
			continue
		}
		if n := current.FilledDoses(); n < model.MaxDoses {
			current.Doses[n] = &dose
			continue
		}
		if current.Booster == nil {
			current.Booster = &dose
			continue
		}
		next().Doses[0] = &dose
	}

	for _, t := range timelines {
		subtypes := t.subtypes()
		switch {
		case len(subtypes) > 1:
			t.Mixed = true
			t.DisplayName = g.family.Canonical()
		case len(subtypes) == 1:
			t.DisplayName = subtypes[0]
		default:
			t.DisplayName = g.family.Canonical()
		}
	}
	return timelines
}

func collectCandidates(g *familyGroup) ([]candidate, []string) {
	var (
		candidates []candidate
		issues     []string
	)
	for i, rec := range g.records {
		subtype := NormalizeSubtype(rec.VaccineType)
		rowOrigin := strings.TrimSpace(model.Deref(rec.Origin))
		for _, slot := range slotOrder {
			raw := rec.Slot(slot)
			if strings.TrimSpace(raw.Date) == "" {
				continue
			}
			date, ok := ParseDate(raw.Date)
			if !ok {
				issues = append(issues, fmt.Sprintf("data quality: invalid date %q in %s", raw.Date, slot))
				continue
			}
			origin := strings.TrimSpace(raw.Origin)
			if origin == "" {
				origin = rowOrigin
			}
			source := subtype
			if override := NormalizeSubtype(raw.Subtype); override != "" {
				source = override
			}
			candidates = append(candidates, candidate{
				date:      date,
				slot:      slot,
				recordIdx: g.indexes[i],
				dose: Dose{
					Date:           date,
					Origin:         origin,
					Observation:    strings.TrimSpace(raw.Observation),
					SourceRecordID: rec.ID,
					SourceSubtype:  source,
				},
			})
		}
	}
	return candidates, issues
}

// slotOrder is the order candidates are read from a record.
var slotOrder = []model.DoseSlot{
	model.SlotDose1, model.SlotDose2, model.SlotDose3, model.SlotDose4, model.SlotDose5, model.SlotBooster,
}

func newTimeline(family Family, descriptive *model.VaccinationRecord, seq int) *Timeline {
	document := strings.TrimSpace(descriptive.DocumentNumber)
	return &Timeline{
		Key:      timelineKey(document, family, seq),
		Family:   family,
		Sequence: seq,
		RecordID: descriptive.ID,
		Person:   descriptive.Person(),
	}
}

// ConsolidateAll groups records by document number and consolidates each
// person concurrently. Persons appear in first-seen order.
func ConsolidateAll(ctx context.Context, records []*model.VaccinationRecord, opts Options, parallelism int) ([]*Timeline, error) {
	var (
		order   []string
		persons = make(map[string][]*model.VaccinationRecord)
	)
	for _, rec := range records {
		if rec == nil {
			continue
		}
		doc := strings.TrimSpace(rec.DocumentNumber)
		if _, ok := persons[doc]; !ok {
			order = append(order, doc)
		}
		persons[doc] = append(persons[doc], rec)
	}

	results := make([][]*Timeline, len(order))
	g, ctx := errgroup.WithContext(ctx)
	if parallelism > 0 {
		g.SetLimit(parallelism)
	}
	for i, doc := range order {
		i, recs := i, persons[doc]
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			timelines, err := Consolidate(recs, opts)
			if err != nil {
				return err
			}
			results[i] = timelines
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var out []*Timeline
	for _, timelines := range results {
		out = append(out, timelines...)
	}
	return out, nil
}
