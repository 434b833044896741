//go:build integration

package postgres

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/suite"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/jwalitptl/vaccination-api/internal/model"
	apperrors "github.com/jwalitptl/vaccination-api/pkg/errors"
)

type RepositorySuite struct {
	suite.Suite
	container *tcpostgres.PostgresContainer
	db        *sqlx.DB
	records   *vaccinationRepository
	rules     *scheduleRuleRepository
	audit     *auditRepository
	outbox    *outboxRepository
}

func TestRepositorySuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RepositorySuite))
}

func (s *RepositorySuite) SetupSuite() {
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("vaccination"),
		tcpostgres.WithUsername("postgres"),
		tcpostgres.WithPassword("postgres"),
		tcpostgres.BasicWaitStrategies(),
	)
	s.Require().NoError(err)
	s.container = container

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	s.Require().NoError(err)

	s.db, err = sqlx.Connect("postgres", dsn)
	s.Require().NoError(err)
	s.Require().NoError(Migrate(ctx, s.db))

	base := NewBaseRepository(s.db)
	s.records = &vaccinationRepository{base}
	s.rules = &scheduleRuleRepository{db: s.db}
	s.audit = &auditRepository{base}
	s.outbox = &outboxRepository{base}
}

func (s *RepositorySuite) TearDownSuite() {
	if s.db != nil {
		_ = s.db.Close()
	}
	if s.container != nil {
		_ = s.container.Terminate(context.Background())
	}
}

func (s *RepositorySuite) SetupTest() {
	_, err := s.db.Exec(`TRUNCATE vaccination_records, audit_events, outbox_events`)
	s.Require().NoError(err)
}

func (s *RepositorySuite) insert(document, name, subtype, region string) *model.VaccinationRecord {
	now := time.Now().UTC()
	rec := &model.VaccinationRecord{
		ID:             uuid.New(),
		DocumentNumber: document,
		FullName:       name,
		VaccineType:    subtype,
		Region:         model.Ref(region),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	s.Require().NoError(s.records.Create(context.Background(), rec))
	return rec
}

func (s *RepositorySuite) TestMigrateIsRepeatable() {
	s.NoError(Migrate(context.Background(), s.db))

	rules, err := s.rules.List(context.Background())
	s.Require().NoError(err)
	s.Len(rules, 5)
}

func (s *RepositorySuite) TestSearchDocuments() {
	ctx := context.Background()
	s.insert("100", "Ana Perez", "DPT", " north ")
	s.insert("100", "Ana Perez", "TT", "NORTH")
	s.insert("200", "Bruno Diaz", "INFLUENZA", "south")
	s.insert("300", "Carla Ruiz", "INFLUENZA", "North")

	docs, total, err := s.records.SearchDocuments(ctx, model.RecordFilters{Region: "north"})
	s.Require().NoError(err)
	s.Equal(int64(2), total)
	s.Equal([]string{"100", "300"}, docs)

	from, to := 1, 1
	docs, total, err = s.records.SearchDocuments(ctx, model.RecordFilters{From: &from, To: &to})
	s.Require().NoError(err)
	s.Equal(int64(3), total)
	s.Equal([]string{"200"}, docs)

	docs, _, err = s.records.SearchDocuments(ctx, model.RecordFilters{Query: "ruiz"})
	s.Require().NoError(err)
	s.Equal([]string{"300"}, docs)
}

func (s *RepositorySuite) TestUpdateSlotAndValidation() {
	ctx := context.Background()
	rec := s.insert("100", "Ana Perez", "HEPATITIS_B", "NORTH")

	err := s.records.UpdateSlot(ctx, rec.ID, model.SlotDose1, model.RawSlot{Date: "2024-01-10", Origin: "local"}, "Nurse Joy")
	s.Require().NoError(err)
	s.Require().NoError(s.records.UpdateValidation(ctx, rec.ID, "scheme pending: pending dose 2"))

	got, err := s.records.Get(ctx, rec.ID)
	s.Require().NoError(err)
	s.Equal("2024-01-10", model.Deref(got.Dose1))
	s.Equal("local", model.Deref(got.Dose1Origin))
	s.Nil(got.Dose1Obs)
	s.Equal("Nurse Joy", model.Deref(got.ResponsibleNurse))
	s.Equal("scheme pending: pending dose 2", model.Deref(got.ValidationText))

	err = s.records.UpdateSlot(ctx, uuid.New(), model.SlotDose1, model.RawSlot{Date: "2024-01-10"}, "")
	s.True(apperrors.HasCode(err, apperrors.ErrNotFound))
}

func (s *RepositorySuite) TestUpdatePersonAndDocuments() {
	ctx := context.Background()
	s.insert("100", "Ana Perez", "DPT", "NORTH")
	s.insert("100 ", "Ana Perez", "TT", "NORTH")
	s.insert("200", "Bruno Diaz", "INFLUENZA", "SOUTH")

	region := "EAST"
	n, err := s.records.UpdatePerson(ctx, "100", &model.UpdateWorkerRequest{Region: &region, Reason: "moved"})
	s.Require().NoError(err)
	s.Equal(int64(2), n)

	rows, err := s.records.ListByDocuments(ctx, []string{"100"})
	s.Require().NoError(err)
	s.Len(rows, 2)
	for _, row := range rows {
		s.Equal("EAST", model.Deref(row.Region))
	}

	docs, err := s.records.ListDocumentsAfter(ctx, "", 10)
	s.Require().NoError(err)
	s.Equal([]string{"100", "200"}, docs)

	docs, err = s.records.ListDocumentsAfter(ctx, "100", 10)
	s.Require().NoError(err)
	s.Equal([]string{"200"}, docs)

	locations, err := s.records.ListLocations(ctx, 0, 1000)
	s.Require().NoError(err)
	s.Len(locations, 2)
}

func (s *RepositorySuite) TestScheduleRuleUpdate() {
	ctx := context.Background()
	rules, err := s.rules.List(ctx)
	s.Require().NoError(err)

	rule := rules[0]
	before := rule.UpdatedAt
	rule.RequiredDoses = 2
	rule.Intervals = []int64{3}
	s.Require().NoError(s.rules.Update(ctx, rule))
	s.True(!rule.UpdatedAt.Before(before))

	got, err := s.rules.Get(ctx, rule.ID)
	s.Require().NoError(err)
	s.Equal(2, got.RequiredDoses)
	s.Equal([]int64{3}, []int64(got.Intervals))

	_, err = s.rules.Get(ctx, uuid.New())
	s.True(apperrors.HasCode(err, apperrors.ErrNotFound))
}

func (s *RepositorySuite) TestAuditWithOutboxLifecycle() {
	ctx := context.Background()
	event := &model.AuditEvent{
		ID:         uuid.New(),
		Action:     model.AuditActionRegisterDose,
		EntityType: model.AuditEntityVaccinationRecord,
		RecordID:   uuid.NewString(),
		ActorID:    model.AnonymousActor,
		NewValue:   json.RawMessage(`{"date":"2024-01-10"}`),
		CreatedAt:  time.Now().UTC(),
	}
	payload, err := json.Marshal(event)
	s.Require().NoError(err)

	s.Require().NoError(s.audit.CreateWithOutbox(ctx, event, &model.OutboxEvent{
		EventType: model.EventTypeAudit,
		Payload:   payload,
	}))

	events, total, err := s.audit.List(ctx, model.AuditFilters{RecordID: event.RecordID})
	s.Require().NoError(err)
	s.Equal(int64(1), total)
	s.Require().Len(events, 1)
	s.JSONEq(`{"date":"2024-01-10"}`, string(events[0].NewValue))
	s.JSONEq(`null`, string(events[0].PriorValue))

	claimed, err := s.outbox.ClaimPending(ctx, 10)
	s.Require().NoError(err)
	s.Require().Len(claimed, 1)
	s.Equal(string(model.OutboxStatusProcessing), claimed[0].Status)

	again, err := s.outbox.ClaimPending(ctx, 10)
	s.Require().NoError(err)
	s.Empty(again)

	s.Require().NoError(s.outbox.MarkFailed(ctx, claimed[0].ID, "broker down", 3))
	claimed, err = s.outbox.ClaimPending(ctx, 10)
	s.Require().NoError(err)
	s.Require().Len(claimed, 1)
	s.Equal(1, claimed[0].RetryCount)

	s.Require().NoError(s.outbox.MarkProcessed(ctx, claimed[0].ID))
	n, err := s.outbox.DeleteProcessedBefore(ctx, time.Now().Add(time.Minute))
	s.Require().NoError(err)
	s.Equal(int64(1), n)

	n, err = s.audit.Cleanup(ctx, time.Now().Add(time.Minute))
	s.Require().NoError(err)
	s.Equal(int64(1), n)
}
