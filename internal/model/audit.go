package model

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// AuditEvent is the structured record handed to the audit sink.
type AuditEvent struct {
	ID         uuid.UUID       `json:"id" db:"id"`
	Action     string          `json:"action" db:"action"`
	EntityType string          `json:"entity_type" db:"entity_type"`
	RecordID   string          `json:"record_id" db:"record_id"`
	ActorID    string          `json:"actor_id" db:"actor_id"`
	ActorEmail string          `json:"actor_email" db:"actor_email"`
	PriorValue json.RawMessage `json:"prior_value,omitempty" db:"prior_value"`
	NewValue   json.RawMessage `json:"new_value,omitempty" db:"new_value"`
	Reason     string          `json:"reason,omitempty" db:"reason"`
	IPAddress  string          `json:"ip_address,omitempty" db:"ip_address"`
	UserAgent  string          `json:"user_agent,omitempty" db:"user_agent"`
	CreatedAt  time.Time       `json:"created_at" db:"created_at"`
}

const (
	// Action types
	AuditActionCreateRecord       = "CREATE_RECORD"
	AuditActionRegisterDose       = "REGISTER_DOSE"
	AuditActionUpdateDose         = "UPDATE_DOSE"
	AuditActionEditWorker         = "EDIT_WORKER"
	AuditActionUpdateScheduleRule = "UPDATE_SCHEDULE_RULE"
	AuditActionRevalidate         = "REVALIDATE"

	// Entity types
	AuditEntityVaccinationRecord = "vaccination_records"
	AuditEntityScheduleRule      = "schedule_rules"

	// AnonymousActor is recorded when no bearer token was presented.
	AnonymousActor = "ANON"
)

// AuditFilters narrows an audit listing.
type AuditFilters struct {
	RecordID  string    `form:"record_id"`
	Action    string    `form:"action"`
	StartDate time.Time `form:"start_date" time_format:"2006-01-02"`
	EndDate   time.Time `form:"end_date" time_format:"2006-01-02"`
	Limit     int       `form:"limit" binding:"omitempty,min=1,max=500"`
	Offset    int       `form:"offset" binding:"omitempty,min=0"`
}

// Actor identifies who triggered a mutation.
type Actor struct {
	ID        string
	Email     string
	IPAddress string
	UserAgent string
}

type actorKey struct{}

// WithActor stores the actor on the context.
func WithActor(ctx context.Context, a Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, a)
}

// ActorFrom returns the actor on the context; unauthenticated calls are
// attributed to AnonymousActor.
func ActorFrom(ctx context.Context) Actor {
	a, _ := ctx.Value(actorKey{}).(Actor)
	if a.ID == "" {
		a.ID = AnonymousActor
	}
	return a
}
