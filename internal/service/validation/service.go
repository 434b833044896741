package validation

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/jwalitptl/vaccination-api/internal/compliance"
	"github.com/jwalitptl/vaccination-api/internal/email"
	"github.com/jwalitptl/vaccination-api/internal/model"
	"github.com/jwalitptl/vaccination-api/internal/repository"
	"github.com/jwalitptl/vaccination-api/internal/service/audit"
	apperrors "github.com/jwalitptl/vaccination-api/pkg/errors"
	"github.com/jwalitptl/vaccination-api/pkg/logger"
	"github.com/jwalitptl/vaccination-api/pkg/metrics"
)

type ValidationServicer interface {
	Revalidate(ctx context.Context) (*Result, error)
}

// RegistrySource supplies the schedule rules in force.
type RegistrySource interface {
	Registry(ctx context.Context) (*compliance.Registry, error)
}

// Result counts the rows visited by one revalidation run.
type Result struct {
	Updated   int           `json:"updated"`
	Unchanged int           `json:"unchanged"`
	Failed    int           `json:"failed"`
	Overdue   int           `json:"overdue"`
	Duration  time.Duration `json:"duration"`
}

type Config struct {
	PageSize      int
	Timeout       time.Duration
	SchemaVersion compliance.SchemaVersion
}

type Service struct {
	repo      repository.VaccinationRepository
	rules     RegistrySource
	validator *compliance.Validator
	auditor   *audit.Service
	notifier  email.Service
	metrics   *metrics.Metrics
	logger    *logger.Logger
	config    Config
	now       func() time.Time
	running   sync.Mutex
}

// NewService builds the revalidation job. notifier may be nil.
func NewService(
	repo repository.VaccinationRepository,
	rules RegistrySource,
	validator *compliance.Validator,
	auditor *audit.Service,
	notifier email.Service,
	m *metrics.Metrics,
	log *logger.Logger,
	config Config,
) *Service {
	if config.PageSize <= 0 {
		config.PageSize = 200
	}
	if config.SchemaVersion == 0 {
		config.SchemaVersion = compliance.SchemaSlotted
	}
	return &Service{
		repo:      repo,
		rules:     rules,
		validator: validator,
		auditor:   auditor,
		notifier:  notifier,
		metrics:   m,
		logger:    log.With("component", "revalidation"),
		config:    config,
		now:       time.Now,
	}
}

// Revalidate recomputes the validation line of every stored record and writes
// the ones that changed. A failed write is counted and the run continues.
// Cancellation stops the run and returns the partial counts with the error.
func (s *Service) Revalidate(ctx context.Context) (*Result, error) {
	if !s.running.TryLock() {
		return nil, apperrors.Conflict("revalidation already running", nil)
	}
	defer s.running.Unlock()

	if s.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.Timeout)
		defer cancel()
	}

	start := s.now()
	timer := prometheus.NewTimer(s.metrics.RevalidationLatency)
	defer timer.ObserveDuration()

	res, overdue, err := s.run(ctx)
	res.Duration = s.now().Sub(start)
	s.metrics.RevalidationRows.WithLabelValues("updated").Add(float64(res.Updated))
	s.metrics.RevalidationRows.WithLabelValues("unchanged").Add(float64(res.Unchanged))
	s.metrics.RevalidationRows.WithLabelValues("failed").Add(float64(res.Failed))

	if err != nil {
		s.metrics.RevalidationRuns.WithLabelValues("error").Inc()
		s.logger.Error(err, "Revalidation stopped",
			"updated", res.Updated,
			"failed", res.Failed)
		return res, err
	}
	s.metrics.RevalidationRuns.WithLabelValues("success").Inc()

	s.logger.Info("Revalidation finished",
		"updated", res.Updated,
		"unchanged", res.Unchanged,
		"failed", res.Failed,
		"overdue", res.Overdue,
		"duration", res.Duration.String())

	s.auditor.Record(ctx, audit.Entry{
		Action:     model.AuditActionRevalidate,
		EntityType: model.AuditEntityVaccinationRecord,
		RecordID:   "*",
		New:        res,
	})

	if s.notifier != nil && len(overdue) > 0 {
		if err := s.notifier.SendOverdueDigest(ctx, overdue); err != nil {
			s.logger.Error(err, "Failed to send overdue digest")
		}
	}
	return res, nil
}

func (s *Service) run(ctx context.Context) (*Result, []email.OverdueEntry, error) {
	res := &Result{}
	var overdue []email.OverdueEntry

	registry, err := s.rules.Registry(ctx)
	if err != nil {
		return res, nil, fmt.Errorf("failed to load schedule rules: %w", err)
	}
	today := compliance.Day(s.now())

	after := ""
	for {
		documents, err := s.repo.ListDocumentsAfter(ctx, after, s.config.PageSize)
		if err != nil {
			return res, overdue, err
		}
		if len(documents) == 0 {
			return res, overdue, nil
		}
		after = documents[len(documents)-1]

		records, err := s.repo.ListByDocuments(ctx, documents)
		if err != nil {
			return res, overdue, err
		}

		for _, rows := range byDocument(records) {
			outcome := s.assess(rows, registry, today)
			overdue = append(overdue, outcome.overdue...)
			res.Overdue += len(outcome.overdue)

			for _, row := range rows {
				if err := ctx.Err(); err != nil {
					return res, overdue, err
				}
				line, ok := outcome.lines[row.ID]
				if !ok {
					res.Failed++
					continue
				}
				if model.Deref(row.ValidationText) == line {
					res.Unchanged++
					continue
				}
				if err := s.repo.UpdateValidation(ctx, row.ID, line); err != nil {
					s.logger.Error(err, "Failed to store validation text", "record_id", row.ID.String())
					res.Failed++
					continue
				}
				res.Updated++
			}
		}

		if len(documents) < s.config.PageSize {
			return res, overdue, nil
		}
	}
}

type outcome struct {
	lines   map[uuid.UUID]string
	overdue []email.OverdueEntry
}

// assess computes the validation line of every row of one person. Rows whose
// vaccine type cannot be resolved get no line.
func (s *Service) assess(rows []*model.VaccinationRecord, registry *compliance.Registry, today time.Time) outcome {
	out := outcome{lines: make(map[uuid.UUID]string, len(rows))}

	if s.config.SchemaVersion == compliance.SchemaSlotted {
		timelines, err := compliance.Consolidate(rows, compliance.Options{})
		if err == nil {
			for _, t := range timelines {
				report := s.validator.Validate(t, t.Family, registry.Resolve(t.Family), today)
				s.observe(t.Family, report.Status)
				line := report.String()
				for _, id := range t.Records() {
					if _, ok := out.lines[id]; !ok {
						out.lines[id] = line
					}
				}
				if report.Status.State == compliance.StateOverdue {
					out.overdue = append(out.overdue, entry(t.Person, t.DisplayName, report.Status))
				}
			}
		}
	}

	// Flat schema, rows without dated doses and rows of a person that could
	// not be consolidated are evaluated on their own.
	for _, row := range rows {
		if _, ok := out.lines[row.ID]; ok {
			continue
		}
		family, err := compliance.FamilyOf(row.VaccineType)
		if err != nil {
			continue
		}
		report := s.validator.Validate(compliance.AccessorFor(row, s.config.SchemaVersion), family, registry.Resolve(family), today)
		s.observe(family, report.Status)
		out.lines[row.ID] = report.String()
		if report.Status.State == compliance.StateOverdue {
			out.overdue = append(out.overdue, entry(row.Person(), strings.TrimSpace(row.VaccineType), report.Status))
		}
	}
	return out
}

func entry(p model.Person, vaccine string, st compliance.Status) email.OverdueEntry {
	return email.OverdueEntry{
		DocumentNumber: strings.TrimSpace(p.DocumentNumber),
		FullName:       p.FullName,
		Vaccine:        vaccine,
		Detail:         st.Detail,
		NextDue:        st.NextDue,
	}
}

func (s *Service) observe(family compliance.Family, status compliance.Status) {
	s.metrics.StatusEvaluations.WithLabelValues(string(family), string(status.State)).Inc()
}

// byDocument splits rows ordered by document into per-person groups.
func byDocument(records []*model.VaccinationRecord) [][]*model.VaccinationRecord {
	var (
		groups [][]*model.VaccinationRecord
		index  = make(map[string]int)
	)
	for _, rec := range records {
		doc := strings.TrimSpace(rec.DocumentNumber)
		i, ok := index[doc]
		if !ok {
			i = len(groups)
			index[doc] = i
			groups = append(groups, nil)
		}
		groups[i] = append(groups[i], rec)
	}
	return groups
}
