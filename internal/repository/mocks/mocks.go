// Package mocks holds testify mocks of the repository interfaces.
package mocks

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/jwalitptl/vaccination-api/internal/model"
)

type VaccinationRepository struct {
	mock.Mock
}

func (m *VaccinationRepository) Create(ctx context.Context, rec *model.VaccinationRecord) error {
	args := m.Called(ctx, rec)
	return args.Error(0)
}

func (m *VaccinationRepository) Get(ctx context.Context, id uuid.UUID) (*model.VaccinationRecord, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.VaccinationRecord), args.Error(1)
}

func (m *VaccinationRepository) SearchDocuments(ctx context.Context, filters model.RecordFilters) ([]string, int64, error) {
	args := m.Called(ctx, filters)
	docs, _ := args.Get(0).([]string)
	return docs, args.Get(1).(int64), args.Error(2)
}

func (m *VaccinationRepository) ListByDocuments(ctx context.Context, documents []string) ([]*model.VaccinationRecord, error) {
	args := m.Called(ctx, documents)
	records, _ := args.Get(0).([]*model.VaccinationRecord)
	return records, args.Error(1)
}

func (m *VaccinationRepository) ListDocumentsAfter(ctx context.Context, after string, limit int) ([]string, error) {
	args := m.Called(ctx, after, limit)
	docs, _ := args.Get(0).([]string)
	return docs, args.Error(1)
}

func (m *VaccinationRepository) ListForReport(ctx context.Context, filters model.ReportFilters) ([]*model.VaccinationRecord, error) {
	args := m.Called(ctx, filters)
	records, _ := args.Get(0).([]*model.VaccinationRecord)
	return records, args.Error(1)
}

func (m *VaccinationRepository) ListLocations(ctx context.Context, offset, limit int) ([]model.LocationRow, error) {
	args := m.Called(ctx, offset, limit)
	rows, _ := args.Get(0).([]model.LocationRow)
	return rows, args.Error(1)
}

func (m *VaccinationRepository) UpdateSlot(ctx context.Context, id uuid.UUID, slot model.DoseSlot, raw model.RawSlot, responsible string) error {
	args := m.Called(ctx, id, slot, raw, responsible)
	return args.Error(0)
}

func (m *VaccinationRepository) UpdatePerson(ctx context.Context, document string, req *model.UpdateWorkerRequest) (int64, error) {
	args := m.Called(ctx, document, req)
	return args.Get(0).(int64), args.Error(1)
}

func (m *VaccinationRepository) UpdateValidation(ctx context.Context, id uuid.UUID, text string) error {
	args := m.Called(ctx, id, text)
	return args.Error(0)
}

func (m *VaccinationRepository) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

type ScheduleRuleRepository struct {
	mock.Mock
}

func (m *ScheduleRuleRepository) List(ctx context.Context) ([]*model.ScheduleRule, error) {
	args := m.Called(ctx)
	rules, _ := args.Get(0).([]*model.ScheduleRule)
	return rules, args.Error(1)
}

func (m *ScheduleRuleRepository) Get(ctx context.Context, id uuid.UUID) (*model.ScheduleRule, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.ScheduleRule), args.Error(1)
}

func (m *ScheduleRuleRepository) Update(ctx context.Context, rule *model.ScheduleRule) error {
	args := m.Called(ctx, rule)
	return args.Error(0)
}

type AuditRepository struct {
	mock.Mock
}

func (m *AuditRepository) CreateWithOutbox(ctx context.Context, event *model.AuditEvent, outbox *model.OutboxEvent) error {
	args := m.Called(ctx, event, outbox)
	return args.Error(0)
}

func (m *AuditRepository) List(ctx context.Context, filters model.AuditFilters) ([]*model.AuditEvent, int64, error) {
	args := m.Called(ctx, filters)
	events, _ := args.Get(0).([]*model.AuditEvent)
	return events, args.Get(1).(int64), args.Error(2)
}

func (m *AuditRepository) Cleanup(ctx context.Context, before time.Time) (int64, error) {
	args := m.Called(ctx, before)
	return args.Get(0).(int64), args.Error(1)
}

type OutboxRepository struct {
	mock.Mock
}

func (m *OutboxRepository) Create(ctx context.Context, event *model.OutboxEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

func (m *OutboxRepository) ClaimPending(ctx context.Context, limit int) ([]*model.OutboxEvent, error) {
	args := m.Called(ctx, limit)
	events, _ := args.Get(0).([]*model.OutboxEvent)
	return events, args.Error(1)
}

func (m *OutboxRepository) MarkProcessed(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *OutboxRepository) MarkFailed(ctx context.Context, id uuid.UUID, errMsg string, maxRetries int) error {
	args := m.Called(ctx, id, errMsg, maxRetries)
	return args.Error(0)
}

func (m *OutboxRepository) DeleteProcessedBefore(ctx context.Context, before time.Time) (int64, error) {
	args := m.Called(ctx, before)
	return args.Get(0).(int64), args.Error(1)
}
