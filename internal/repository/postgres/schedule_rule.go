package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/vaccination-api/internal/model"
	"github.com/jwalitptl/vaccination-api/internal/repository"
	apperrors "github.com/jwalitptl/vaccination-api/pkg/errors"
)

type scheduleRuleRepository struct {
	db *sqlx.DB
}

func NewScheduleRuleRepository(db *sqlx.DB) repository.ScheduleRuleRepository {
	return &scheduleRuleRepository{db: db}
}

func (r *scheduleRuleRepository) List(ctx context.Context) ([]*model.ScheduleRule, error) {
	var rules []*model.ScheduleRule
	if err := r.db.SelectContext(ctx, &rules, `SELECT * FROM schedule_rules ORDER BY vaccine_type`); err != nil {
		return nil, fmt.Errorf("failed to list schedule rules: %w", err)
	}
	return rules, nil
}

func (r *scheduleRuleRepository) Get(ctx context.Context, id uuid.UUID) (*model.ScheduleRule, error) {
	var rule model.ScheduleRule
	err := r.db.GetContext(ctx, &rule, `SELECT * FROM schedule_rules WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NotFound("schedule rule", err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get schedule rule: %w", err)
	}
	return &rule, nil
}

func (r *scheduleRuleRepository) Update(ctx context.Context, rule *model.ScheduleRule) error {
	query := `
		UPDATE schedule_rules
		SET required_doses = $1, intervals = $2, booster_months = $3, updated_at = NOW()
		WHERE id = $4
		RETURNING updated_at`

	err := r.db.QueryRowxContext(ctx, query,
		rule.RequiredDoses,
		rule.Intervals,
		rule.BoosterMonths,
		rule.ID,
	).Scan(&rule.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return apperrors.NotFound("schedule rule", err)
	}
	if err != nil {
		return fmt.Errorf("failed to update schedule rule: %w", err)
	}
	return nil
}
