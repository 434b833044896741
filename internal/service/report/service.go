package report

import (
	"context"
	"fmt"

	"github.com/jwalitptl/vaccination-api/internal/compliance"
	"github.com/jwalitptl/vaccination-api/internal/model"
	"github.com/jwalitptl/vaccination-api/internal/repository"
	apperrors "github.com/jwalitptl/vaccination-api/pkg/errors"
)

type ReportServicer interface {
	Compliance(ctx context.Context, filters model.ReportFilters) (*compliance.CohortStats, error)
}

// RegistrySource supplies the schedule rules in force.
type RegistrySource interface {
	Registry(ctx context.Context) (*compliance.Registry, error)
}

type Service struct {
	repo  repository.VaccinationRepository
	rules RegistrySource
}

func NewService(repo repository.VaccinationRepository, rules RegistrySource) *Service {
	return &Service{repo: repo, rules: rules}
}

// Compliance aggregates the cohort selected by filters.
func (s *Service) Compliance(ctx context.Context, filters model.ReportFilters) (*compliance.CohortStats, error) {
	if !filters.StartDate.IsZero() && !filters.EndDate.IsZero() && filters.EndDate.Before(filters.StartDate) {
		return nil, apperrors.BadRequest("end_date must not precede start_date", nil)
	}

	rows, err := s.repo.ListForReport(ctx, filters)
	if err != nil {
		return nil, fmt.Errorf("failed to load report rows: %w", err)
	}
	registry, err := s.rules.Registry(ctx)
	if err != nil {
		return nil, err
	}

	stats := compliance.Aggregate(rows, registry)
	return &stats, nil
}
