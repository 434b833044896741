package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/vaccination-api/internal/model"
)

// All repository interfaces in one file
type (
	// VaccinationRepository stores raw vaccination rows.
	VaccinationRepository interface {
		Create(ctx context.Context, rec *model.VaccinationRecord) error
		Get(ctx context.Context, id uuid.UUID) (*model.VaccinationRecord, error)
		// SearchDocuments returns the page of distinct document numbers
		// matching the filters and the total number of matching persons.
		SearchDocuments(ctx context.Context, filters model.RecordFilters) ([]string, int64, error)
		// ListByDocuments returns every row of the given persons, ordered by
		// document, creation time and id.
		ListByDocuments(ctx context.Context, documents []string) ([]*model.VaccinationRecord, error)
		// ListDocumentsAfter pages through all document numbers in order.
		ListDocumentsAfter(ctx context.Context, after string, limit int) ([]string, error)
		ListForReport(ctx context.Context, filters model.ReportFilters) ([]*model.VaccinationRecord, error)
		ListLocations(ctx context.Context, offset, limit int) ([]model.LocationRow, error)
		UpdateSlot(ctx context.Context, id uuid.UUID, slot model.DoseSlot, raw model.RawSlot, responsible string) error
		UpdatePerson(ctx context.Context, document string, req *model.UpdateWorkerRequest) (int64, error)
		UpdateValidation(ctx context.Context, id uuid.UUID, text string) error
		Ping(ctx context.Context) error
	}

	// ScheduleRuleRepository is the configuration store of schedule rules.
	ScheduleRuleRepository interface {
		List(ctx context.Context) ([]*model.ScheduleRule, error)
		Get(ctx context.Context, id uuid.UUID) (*model.ScheduleRule, error)
		Update(ctx context.Context, rule *model.ScheduleRule) error
	}

	// AuditRepository persists audit events.
	AuditRepository interface {
		// CreateWithOutbox stores the event and enqueues its outbox entry in
		// one transaction. A nil outbox event only stores the audit row.
		CreateWithOutbox(ctx context.Context, event *model.AuditEvent, outbox *model.OutboxEvent) error
		List(ctx context.Context, filters model.AuditFilters) ([]*model.AuditEvent, int64, error)
		Cleanup(ctx context.Context, before time.Time) (int64, error)
	}

	// OutboxRepository feeds the outbox processor.
	OutboxRepository interface {
		Create(ctx context.Context, event *model.OutboxEvent) error
		// ClaimPending marks up to limit pending events as processing and
		// returns them. Concurrent claimers never receive the same event.
		ClaimPending(ctx context.Context, limit int) ([]*model.OutboxEvent, error)
		MarkProcessed(ctx context.Context, id uuid.UUID) error
		// MarkFailed records an attempt; the event returns to pending until
		// maxRetries attempts were made.
		MarkFailed(ctx context.Context, id uuid.UUID, errMsg string, maxRetries int) error
		DeleteProcessedBefore(ctx context.Context, before time.Time) (int64, error)
	}
)
