package compliance

import (
	"math"
	"sort"
	"strings"

	"github.com/jwalitptl/vaccination-api/internal/model"
)

// UnknownLocation groups rows without a region or sub-region.
const UnknownLocation = "Unknown"

// NamedValue is one entry of a grouped statistic.
type NamedValue struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
	Total int     `json:"total"`
}

// CohortStats summarizes a filtered set of raw rows.
type CohortStats struct {
	TotalRows     int                 `json:"total_rows"`
	UniquePersons int                 `json:"unique_persons"`
	Enrolled      int                 `json:"enrolled"`
	Complete      int                 `json:"complete"`
	Coverage      float64             `json:"coverage"`
	Attrition     float64             `json:"attrition"`
	Funnel        [model.MaxDoses]int `json:"funnel"`
	ByFamily      []NamedValue        `json:"by_family"`
	ByRegion      []NamedValue        `json:"by_region"`
	BySubRegion   []NamedValue        `json:"by_sub_region"`
	QualityAlerts int                 `json:"quality_alerts"`
}

type ratio struct {
	complete, total int
}

// Aggregate computes cohort statistics directly over raw rows, without
// consolidating them. Percentages are in the 0..100 range.
func Aggregate(rows []*model.VaccinationRecord, registry *Registry) CohortStats {
	var stats CohortStats
	persons := make(map[string]bool)
	families := make(map[string]int)
	regions := make(map[string]*ratio)
	subRegions := make(map[string]*ratio)

	for _, row := range rows {
		if row == nil {
			continue
		}
		stats.TotalRows++
		persons[strings.TrimSpace(row.DocumentNumber)] = true

		family, err := FamilyOf(row.VaccineType)
		if err != nil {
			family = FamilyTetanus
		}
		families[string(family)]++

		doses := row.DoseDates()
		var filled [model.MaxDoses]bool
		// Enrollment counts dose slots only; a lone booster does not enroll.
		enrolled := false
		for i, d := range doses {
			filled[i] = strings.TrimSpace(d) != ""
			enrolled = enrolled || filled[i]
		}

		required := registry.RequiredDoses(family)
		complete := filled[required-1]
		if enrolled {
			stats.Enrolled++
		}
		if complete {
			stats.Complete++
		}
		if required > 1 {
			for i := range filled {
				if filled[i] {
					stats.Funnel[i]++
				}
			}
		}
		if HasGap(doses) {
			stats.QualityAlerts++
		}

		tally(regions, location(row.Region), complete)
		tally(subRegions, location(row.SubRegion), complete)
	}

	stats.UniquePersons = len(persons)
	stats.Coverage = percent(stats.Complete, stats.TotalRows)
	stats.Attrition = percent(stats.Enrolled-stats.Complete, stats.Enrolled)
	if stats.Attrition < 0 {
		stats.Attrition = 0
	}

	for name, n := range families {
		stats.ByFamily = append(stats.ByFamily, NamedValue{Name: name, Value: float64(n), Total: n})
	}
	stats.ByRegion = ratios(regions)
	stats.BySubRegion = ratios(subRegions)
	sortNamed(stats.ByFamily)
	return stats
}

func location(v *string) string {
	name := strings.ToUpper(strings.TrimSpace(model.Deref(v)))
	if name == "" {
		return UnknownLocation
	}
	return name
}

func tally(m map[string]*ratio, key string, complete bool) {
	r, ok := m[key]
	if !ok {
		r = &ratio{}
		m[key] = r
	}
	r.total++
	if complete {
		r.complete++
	}
}

func ratios(m map[string]*ratio) []NamedValue {
	out := make([]NamedValue, 0, len(m))
	for name, r := range m {
		out = append(out, NamedValue{Name: name, Value: percent(r.complete, r.total), Total: r.total})
	}
	sortNamed(out)
	return out
}

// sortNamed orders by value descending, then by name.
func sortNamed(values []NamedValue) {
	sort.Slice(values, func(i, j int) bool {
		if values[i].Value != values[j].Value {
			return values[i].Value > values[j].Value
		}
		return values[i].Name < values[j].Name
	})
}

func percent(part, total int) float64 {
	if total <= 0 {
		return 0
	}
	return math.Round(float64(part)/float64(total)*1000) / 10
}
