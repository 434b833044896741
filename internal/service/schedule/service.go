package schedule

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"

	"github.com/jwalitptl/vaccination-api/internal/compliance"
	"github.com/jwalitptl/vaccination-api/internal/model"
	"github.com/jwalitptl/vaccination-api/internal/repository"
	"github.com/jwalitptl/vaccination-api/internal/service/audit"
	apperrors "github.com/jwalitptl/vaccination-api/pkg/errors"
)

const rulesKey = "schedule_rules"

type ScheduleServicer interface {
	List(ctx context.Context) ([]*model.ScheduleRule, error)
	Registry(ctx context.Context) (*compliance.Registry, error)
	Update(ctx context.Context, id uuid.UUID, req *model.UpdateScheduleRuleRequest) (*model.ScheduleRule, error)
}

type Service struct {
	repo     repository.ScheduleRuleRepository
	auditor  *audit.Service
	cache    *cache.Cache
	validate *validator.Validate
}

func NewService(repo repository.ScheduleRuleRepository, auditor *audit.Service, ttl time.Duration) *Service {
	v := validator.New()
	v.RegisterStructValidation(validateIntervals, model.ScheduleRule{})

	return &Service{
		repo:     repo,
		auditor:  auditor,
		cache:    cache.New(ttl, 2*ttl),
		validate: v,
	}
}

// validateIntervals requires one interval between each pair of required doses.
func validateIntervals(sl validator.StructLevel) {
	rule := sl.Current().Interface().(model.ScheduleRule)
	if rule.SingleDose {
		return
	}
	if len(rule.Intervals) != rule.RequiredDoses-1 {
		sl.ReportError(rule.Intervals, "Intervals", "intervals", "len_required", "")
	}
}

// List returns the configured rules, served from cache when fresh.
func (s *Service) List(ctx context.Context) ([]*model.ScheduleRule, error) {
	if cached, ok := s.cache.Get(rulesKey); ok {
		return cached.([]*model.ScheduleRule), nil
	}

	rules, err := s.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list schedule rules: %w", err)
	}
	s.cache.SetDefault(rulesKey, rules)
	return rules, nil
}

// Registry builds a request-scoped registry from the configured rules.
func (s *Service) Registry(ctx context.Context) (*compliance.Registry, error) {
	rules, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	return compliance.NewRegistry(rules), nil
}

func (s *Service) Update(ctx context.Context, id uuid.UUID, req *model.UpdateScheduleRuleRequest) (*model.ScheduleRule, error) {
	current, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	updated := *current
	updated.RequiredDoses = req.RequiredDoses
	updated.Intervals = append([]int64(nil), req.Intervals...)
	updated.BoosterMonths = req.BoosterMonths
	if updated.SingleDose && updated.RequiredDoses > 1 {
		updated.SingleDose = false
	}

	if err := s.validate.Struct(updated); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			return nil, apperrors.BadRequest(describe(verrs), err)
		}
		return nil, apperrors.BadRequest("invalid schedule rule", err)
	}

	if err := s.repo.Update(ctx, &updated); err != nil {
		return nil, err
	}
	s.cache.Delete(rulesKey)

	s.auditor.Record(ctx, audit.Entry{
		Action:     model.AuditActionUpdateScheduleRule,
		EntityType: model.AuditEntityScheduleRule,
		RecordID:   id.String(),
		Prior:      current,
		New:        &updated,
		Reason:     req.Reason,
	})

	return &updated, nil
}

func describe(verrs validator.ValidationErrors) string {
	fe := verrs[0]
	switch fe.Tag() {
	case "len_required":
		return "intervals must have one entry per dose after the first"
	case "min", "max":
		return fmt.Sprintf("%s out of range (%s %s)", fe.Field(), fe.Tag(), fe.Param())
	default:
		return fmt.Sprintf("%s is invalid", fe.Field())
	}
}
