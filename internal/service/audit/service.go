package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/vaccination-api/internal/model"
	"github.com/jwalitptl/vaccination-api/internal/repository"
	"github.com/jwalitptl/vaccination-api/pkg/logger"
)

// Entry is the domain part of an audit event; the actor comes from the
// request context.
type Entry struct {
	Action     string
	EntityType string
	RecordID   string
	Prior      interface{}
	New        interface{}
	Reason     string
}

type Service struct {
	repo    repository.AuditRepository
	logger  *logger.Logger
	enqueue bool
	now     func() time.Time
}

// NewService builds the audit sink. When enqueue is set every event is also
// placed on the outbox for publishing.
func NewService(repo repository.AuditRepository, log *logger.Logger, enqueue bool) *Service {
	return &Service{
		repo:    repo,
		logger:  log.With("component", "audit"),
		enqueue: enqueue,
		now:     time.Now,
	}
}

// Record stores an audit event. Failures are logged and never surface to the
// caller.
func (s *Service) Record(ctx context.Context, e Entry) {
	if err := s.record(ctx, e); err != nil {
		s.logger.Error(err, "Failed to record audit event",
			"action", e.Action,
			"record_id", e.RecordID)
	}
}

func (s *Service) record(ctx context.Context, e Entry) error {
	prior, err := marshal(e.Prior)
	if err != nil {
		return err
	}
	next, err := marshal(e.New)
	if err != nil {
		return err
	}

	actor := model.ActorFrom(ctx)
	event := &model.AuditEvent{
		ID:         uuid.New(),
		Action:     e.Action,
		EntityType: e.EntityType,
		RecordID:   e.RecordID,
		ActorID:    actor.ID,
		ActorEmail: actor.Email,
		PriorValue: prior,
		NewValue:   next,
		Reason:     e.Reason,
		IPAddress:  actor.IPAddress,
		UserAgent:  actor.UserAgent,
		CreatedAt:  s.now().UTC(),
	}

	var outbox *model.OutboxEvent
	if s.enqueue {
		payload, err := json.Marshal(event)
		if err != nil {
			return fmt.Errorf("failed to marshal outbox payload: %w", err)
		}
		outbox = &model.OutboxEvent{
			EventType: model.EventTypeAudit,
			Payload:   payload,
		}
	}

	return s.repo.CreateWithOutbox(ctx, event, outbox)
}

func marshal(v interface{}) (json.RawMessage, error) {
	if v == nil {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal audit value: %w", err)
	}
	return b, nil
}

func (s *Service) List(ctx context.Context, filters model.AuditFilters) ([]*model.AuditEvent, int64, error) {
	return s.repo.List(ctx, filters)
}

func (s *Service) Cleanup(ctx context.Context, before time.Time) (int64, error) {
	return s.repo.Cleanup(ctx, before)
}
