package compliance

import (
	"github.com/jwalitptl/vaccination-api/internal/model"
)

// Registry resolves the schedule rule of a family. It is built per request
// from the configured rules and falls back to the built-in table.
type Registry struct {
	rules map[Family]*model.ScheduleRule
}

// NewRegistry indexes configured rules by family. When several rules map to
// the same family, the one named after the family's canonical subtype wins,
// otherwise the first one.
func NewRegistry(rules []*model.ScheduleRule) *Registry {
	reg := &Registry{rules: make(map[Family]*model.ScheduleRule, len(rules))}
	for _, rule := range rules {
		if rule == nil {
			continue
		}
		family, err := FamilyOf(rule.VaccineType)
		if err != nil {
			continue
		}
		existing, ok := reg.rules[family]
		if ok && NormalizeSubtype(existing.VaccineType) == family.Canonical() {
			continue
		}
		if ok && NormalizeSubtype(rule.VaccineType) != family.Canonical() {
			continue
		}
		reg.rules[family] = rule
	}
	return reg
}

// Configured returns the rule stored in the configuration store, if any.
func (r *Registry) Configured(f Family) (*model.ScheduleRule, bool) {
	if r == nil {
		return nil, false
	}
	rule, ok := r.rules[f]
	return rule, ok
}

// Resolve returns the configured rule or the built-in fallback. It returns nil
// when the family has no schedule at all.
func (r *Registry) Resolve(f Family) *model.ScheduleRule {
	if rule, ok := r.Configured(f); ok {
		return rule
	}
	return Fallback(f)
}

// RequiredDoses is the number of dose slots that must be filled for the family
// to count as complete. Families without a schedule need one dose.
func (r *Registry) RequiredDoses(f Family) int {
	return requiredDoses(r.Resolve(f))
}

func requiredDoses(rule *model.ScheduleRule) int {
	if rule == nil || rule.SingleDose {
		return 1
	}
	switch {
	case rule.RequiredDoses < 1:
		return 1
	case rule.RequiredDoses > model.MaxDoses:
		return model.MaxDoses
	}
	return rule.RequiredDoses
}

func months(n int) *int {
	return &n
}

// fallbackRules mirrors the hardcoded schemes used before schedules became
// configurable.
var fallbackRules = map[Family]model.ScheduleRule{
	FamilyTetanus: {
		VaccineType:   string(FamilyTetanus),
		Name:          "Tetanus / diphtheria",
		RequiredDoses: 5,
		Intervals:     []int64{1, 6, 12, 12},
	},
	FamilyHepatitisB: {
		VaccineType:   string(FamilyHepatitisB),
		Name:          "Hepatitis B",
		RequiredDoses: 3,
		Intervals:     []int64{1, 6},
		BoosterMonths: months(12),
	},
	FamilyHepatitisA: {
		VaccineType:   string(FamilyHepatitisA),
		Name:          "Hepatitis A",
		RequiredDoses: 3,
		Intervals:     []int64{1, 6},
		BoosterMonths: months(12),
	},
	FamilyYellowFever: {
		VaccineType:   string(FamilyYellowFever),
		Name:          "Yellow fever",
		RequiredDoses: 1,
		BoosterMonths: months(120),
		SingleDose:    true,
		Recurring:     true,
	},
	FamilyInfluenza: {
		VaccineType:   string(FamilyInfluenza),
		Name:          "Influenza",
		RequiredDoses: 1,
		BoosterMonths: months(12),
		Recurring:     true,
	},
}

// Fallback returns a copy of the built-in rule of a family, or nil.
func Fallback(f Family) *model.ScheduleRule {
	rule, ok := fallbackRules[f]
	if !ok {
		return nil
	}
	out := rule
	out.Intervals = append([]int64(nil), rule.Intervals...)
	if rule.BoosterMonths != nil {
		out.BoosterMonths = months(*rule.BoosterMonths)
	}
	return &out
}
