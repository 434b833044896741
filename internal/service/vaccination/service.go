package vaccination

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/vaccination-api/internal/compliance"
	"github.com/jwalitptl/vaccination-api/internal/model"
	"github.com/jwalitptl/vaccination-api/internal/repository"
	"github.com/jwalitptl/vaccination-api/internal/service/audit"
	apperrors "github.com/jwalitptl/vaccination-api/pkg/errors"
	"github.com/jwalitptl/vaccination-api/pkg/logger"
	"github.com/jwalitptl/vaccination-api/pkg/metrics"
)

type VaccinationServicer interface {
	Search(ctx context.Context, filters model.RecordFilters) (*SearchResult, error)
	Create(ctx context.Context, req *model.CreateRecordRequest) (*WorkerView, error)
	RegisterDose(ctx context.Context, id uuid.UUID, req *model.RegisterDoseRequest) (*RecordResult, error)
	UpdateWorker(ctx context.Context, document string, req *model.UpdateWorkerRequest) (int64, error)
}

// RegistrySource supplies the schedule rules in force.
type RegistrySource interface {
	Registry(ctx context.Context) (*compliance.Registry, error)
}

// TimelineView is a consolidated timeline with its evaluation.
type TimelineView struct {
	*compliance.Timeline
	Status     compliance.Status `json:"status"`
	Validation string            `json:"validation"`
	Valid      bool              `json:"valid"`
}

// WorkerView groups the timelines of one person.
type WorkerView struct {
	Person    model.Person   `json:"person"`
	Timelines []TimelineView `json:"timelines"`
}

type SearchResult struct {
	Workers []WorkerView `json:"workers"`
	Total   int64        `json:"total"`
}

// RecordResult is returned after a dose was stored.
type RecordResult struct {
	Record     *model.VaccinationRecord `json:"record"`
	Status     compliance.Status        `json:"status"`
	Validation string                   `json:"validation"`
}

type Config struct {
	Parallelism   int
	SchemaVersion compliance.SchemaVersion
}

type Service struct {
	repo      repository.VaccinationRepository
	rules     RegistrySource
	validator *compliance.Validator
	auditor   *audit.Service
	metrics   *metrics.Metrics
	logger    *logger.Logger
	config    Config
	now       func() time.Time
}

func NewService(
	repo repository.VaccinationRepository,
	rules RegistrySource,
	validator *compliance.Validator,
	auditor *audit.Service,
	m *metrics.Metrics,
	log *logger.Logger,
	config Config,
) *Service {
	if config.SchemaVersion == 0 {
		config.SchemaVersion = compliance.SchemaSlotted
	}
	return &Service{
		repo:      repo,
		rules:     rules,
		validator: validator,
		auditor:   auditor,
		metrics:   m,
		logger:    log.With("component", "vaccination"),
		config:    config,
		now:       time.Now,
	}
}

func (s *Service) today() time.Time {
	return compliance.Day(s.now())
}

// Search returns the consolidated timelines of the matching persons.
func (s *Service) Search(ctx context.Context, filters model.RecordFilters) (*SearchResult, error) {
	documents, total, err := s.repo.SearchDocuments(ctx, filters)
	if err != nil {
		return nil, err
	}
	result := &SearchResult{Workers: []WorkerView{}, Total: total}
	if len(documents) == 0 {
		return result, nil
	}

	records, err := s.repo.ListByDocuments(ctx, documents)
	if err != nil {
		return nil, err
	}
	workers, err := s.views(ctx, records, compliance.Options{})
	if err != nil {
		return nil, err
	}
	result.Workers = workers
	return result, nil
}

func (s *Service) views(ctx context.Context, records []*model.VaccinationRecord, opts compliance.Options) ([]WorkerView, error) {
	registry, err := s.rules.Registry(ctx)
	if err != nil {
		return nil, err
	}
	timelines, err := compliance.ConsolidateAll(ctx, records, opts, s.config.Parallelism)
	if err != nil {
		if errors.Is(err, compliance.ErrInvalidFamily) {
			return nil, apperrors.Internal(err)
		}
		return nil, fmt.Errorf("failed to consolidate records: %w", err)
	}

	today := s.today()
	var (
		workers []WorkerView
		index   = make(map[string]int)
	)
	for _, t := range timelines {
		report := s.validator.Validate(t, t.Family, registry.Resolve(t.Family), today)
		s.observe(t.Family, report.Status)

		doc := strings.TrimSpace(t.Person.DocumentNumber)
		i, ok := index[doc]
		if !ok {
			i = len(workers)
			index[doc] = i
			workers = append(workers, WorkerView{Person: t.Person})
		}
		workers[i].Timelines = append(workers[i].Timelines, TimelineView{
			Timeline:   t,
			Status:     report.Status,
			Validation: report.String(),
			Valid:      report.Valid(),
		})
	}

	for i := range workers {
		tl := workers[i].Timelines
		sort.SliceStable(tl, func(a, b int) bool {
			return !tl[a].Empty() && tl[b].Empty()
		})
	}
	return workers, nil
}

func (s *Service) observe(family compliance.Family, status compliance.Status) {
	if s.metrics == nil {
		return
	}
	s.metrics.StatusEvaluations.WithLabelValues(string(family), string(status.State)).Inc()
}

// Create enrolls a person into a vaccine subtype. Missing descriptive fields
// are copied from the person's existing records.
func (s *Service) Create(ctx context.Context, req *model.CreateRecordRequest) (*WorkerView, error) {
	document := strings.TrimSpace(req.DocumentNumber)
	if document == "" {
		return nil, apperrors.BadRequest("document_number is required", nil)
	}
	if _, err := compliance.FamilyOf(req.VaccineType); err != nil {
		return nil, apperrors.BadRequest("vaccine_type is required", err)
	}

	existing, err := s.repo.ListByDocuments(ctx, []string{document})
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	rec := &model.VaccinationRecord{
		ID:               uuid.New(),
		DocumentNumber:   document,
		FullName:         strings.TrimSpace(req.FullName),
		VaccineType:      strings.TrimSpace(req.VaccineType),
		Sex:              req.Sex,
		Region:           req.Region,
		SubRegion:        req.SubRegion,
		Position:         req.Position,
		Allergies:        req.Allergies,
		Contraindication: req.Contraindication,
		EmploymentStatus: req.EmploymentStatus,
		ActiveYear:       req.ActiveYear,
		ResponsibleNurse: req.ResponsibleNurse,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if len(existing) > 0 {
		copyProfile(rec, existing[0])
	}

	if err := s.repo.Create(ctx, rec); err != nil {
		return nil, err
	}

	s.auditor.Record(ctx, audit.Entry{
		Action:     model.AuditActionCreateRecord,
		EntityType: model.AuditEntityVaccinationRecord,
		RecordID:   rec.ID.String(),
		New:        rec,
	})

	workers, err := s.views(ctx, append(existing, rec), compliance.Options{
		KeepEmpty: map[uuid.UUID]bool{rec.ID: true},
	})
	if err != nil {
		return nil, err
	}
	if len(workers) == 0 {
		return &WorkerView{Person: rec.Person()}, nil
	}
	return &workers[0], nil
}

func copyProfile(dst, src *model.VaccinationRecord) {
	fill := func(dst **string, src *string) {
		if *dst == nil {
			*dst = src
		}
	}
	fill(&dst.Sex, src.Sex)
	fill(&dst.Region, src.Region)
	fill(&dst.SubRegion, src.SubRegion)
	fill(&dst.Position, src.Position)
	fill(&dst.Allergies, src.Allergies)
	fill(&dst.Contraindication, src.Contraindication)
	fill(&dst.EmploymentStatus, src.EmploymentStatus)
	fill(&dst.ResponsibleNurse, src.ResponsibleNurse)
	if dst.ActiveYear == nil {
		dst.ActiveYear = src.ActiveYear
	}
}

// RegisterDose stores a dose on one slot of a record.
func (s *Service) RegisterDose(ctx context.Context, id uuid.UUID, req *model.RegisterDoseRequest) (*RecordResult, error) {
	if req.Slot == nil || !model.DoseSlot(*req.Slot).Valid() {
		return nil, apperrors.BadRequest("slot must be between 0 (booster) and 5", nil)
	}
	slot := model.DoseSlot(*req.Slot)

	date, ok := compliance.ParseDate(req.Date)
	if !ok {
		return nil, apperrors.BadRequest("date must use the YYYY-MM-DD format", nil)
	}
	today := s.today()
	if date.After(today) {
		return nil, apperrors.BadRequest("date cannot be in the future", nil)
	}

	rec, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	family, err := compliance.FamilyOf(rec.VaccineType)
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	registry, err := s.rules.Registry(ctx)
	if err != nil {
		return nil, err
	}

	prior := rec.Slot(slot)
	if err := checkSlot(rec, slot, prior, req.IsUpdate, registry.RequiredDoses(family)); err != nil {
		return nil, err
	}

	next := model.RawSlot{
		Date:        date.Format("2006-01-02"),
		Origin:      strings.TrimSpace(req.Origin),
		Observation: strings.TrimSpace(req.Observation),
		Subtype:     strings.TrimSpace(req.Subtype),
	}
	if err := s.repo.UpdateSlot(ctx, id, slot, next, strings.TrimSpace(req.Responsible)); err != nil {
		return nil, err
	}
	rec.SetSlot(slot, next)
	if r := strings.TrimSpace(req.Responsible); r != "" {
		rec.ResponsibleNurse = &r
	}

	action := model.AuditActionRegisterDose
	if req.IsUpdate {
		action = model.AuditActionUpdateDose
	}
	var priorValue interface{}
	if !prior.Empty() {
		priorValue = prior
	}
	s.auditor.Record(ctx, audit.Entry{
		Action:     action,
		EntityType: model.AuditEntityVaccinationRecord,
		RecordID:   id.String(),
		Prior:      priorValue,
		New:        map[string]interface{}{"slot": slot.String(), "value": next},
		Reason:     req.Observation,
	})

	var acc compliance.SlotAccessor = compliance.AccessorFor(rec, s.config.SchemaVersion)
	if s.config.SchemaVersion == compliance.SchemaSlotted {
		if t := s.timelineOf(ctx, rec); t != nil {
			acc = t
		}
	}
	report := s.validator.Validate(acc, family, registry.Resolve(family), today)
	s.observe(family, report.Status)
	line := report.String()
	if err := s.repo.UpdateValidation(ctx, id, line); err != nil {
		s.logger.Error(err, "Failed to store validation text", "record_id", id.String())
	} else {
		rec.ValidationText = &line
	}

	return &RecordResult{Record: rec, Status: report.Status, Validation: line}, nil
}

// timelineOf consolidates the person's records with rec in its updated form
// and returns the timeline rec feeds, so the stored line matches what a full
// revalidation writes. Nil means rec is validated on its own.
func (s *Service) timelineOf(ctx context.Context, rec *model.VaccinationRecord) *compliance.Timeline {
	stored, err := s.repo.ListByDocuments(ctx, []string{strings.TrimSpace(rec.DocumentNumber)})
	if err != nil {
		s.logger.Error(err, "Failed to load person records", "record_id", rec.ID.String())
		return nil
	}

	rows := make([]*model.VaccinationRecord, 0, len(stored)+1)
	found := false
	for _, row := range stored {
		if row.ID == rec.ID {
			row, found = rec, true
		}
		rows = append(rows, row)
	}
	if !found {
		rows = append(rows, rec)
	}

	timelines, err := compliance.Consolidate(rows, compliance.Options{})
	if err != nil {
		s.logger.Error(err, "Failed to consolidate person records", "record_id", rec.ID.String())
		return nil
	}
	return compliance.TimelineOf(timelines, rec.ID)
}

// checkSlot enforces the registration order of doses.
func checkSlot(rec *model.VaccinationRecord, slot model.DoseSlot, prior model.RawSlot, isUpdate bool, required int) error {
	if isUpdate {
		if prior.Empty() {
			return apperrors.BadRequest(fmt.Sprintf("%s has no registered date to update", slot), nil)
		}
		return nil
	}
	if !prior.Empty() {
		return apperrors.Conflict(fmt.Sprintf("%s is already registered", slot), nil)
	}

	last := int(slot) - 1
	if slot == model.SlotBooster {
		last = required
	}
	for n := 1; n <= last; n++ {
		if rec.Slot(model.DoseSlot(n)).Empty() {
			if slot == model.SlotBooster {
				return apperrors.BadRequest(fmt.Sprintf("booster requires the %d scheduled doses, dose %d is missing", required, n), nil)
			}
			return apperrors.BadRequest(fmt.Sprintf("dose %d must be registered first", n), nil)
		}
	}
	return nil
}

// UpdateWorker edits the descriptive fields on every record of a person.
func (s *Service) UpdateWorker(ctx context.Context, document string, req *model.UpdateWorkerRequest) (int64, error) {
	document = strings.TrimSpace(document)
	existing, err := s.repo.ListByDocuments(ctx, []string{document})
	if err != nil {
		return 0, err
	}
	if len(existing) == 0 {
		return 0, apperrors.NotFound("worker", nil)
	}

	n, err := s.repo.UpdatePerson(ctx, document, req)
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, apperrors.BadRequest("no fields to update", nil)
	}

	s.auditor.Record(ctx, audit.Entry{
		Action:     model.AuditActionEditWorker,
		EntityType: model.AuditEntityVaccinationRecord,
		RecordID:   document,
		Prior:      existing[0].Person(),
		New:        req,
		Reason:     req.Reason,
	})
	return n, nil
}
