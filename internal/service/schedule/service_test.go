package schedule

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/vaccination-api/internal/compliance"
	"github.com/jwalitptl/vaccination-api/internal/model"
	"github.com/jwalitptl/vaccination-api/internal/repository/mocks"
	"github.com/jwalitptl/vaccination-api/internal/service/audit"
	apperrors "github.com/jwalitptl/vaccination-api/pkg/errors"
	"github.com/jwalitptl/vaccination-api/pkg/logger"
)

func newService(t *testing.T) (*Service, *mocks.ScheduleRuleRepository, *mocks.AuditRepository) {
	t.Helper()
	repo := new(mocks.ScheduleRuleRepository)
	auditRepo := new(mocks.AuditRepository)
	auditRepo.On("CreateWithOutbox", mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()
	return NewService(repo, audit.NewService(auditRepo, logger.Nop(), false), time.Minute), repo, auditRepo
}

func hepatitisB() *model.ScheduleRule {
	booster := 12
	return &model.ScheduleRule{
		ID:            uuid.New(),
		VaccineType:   "HEPATITIS_B",
		RequiredDoses: 3,
		Intervals:     []int64{1, 6},
		BoosterMonths: &booster,
	}
}

func TestListIsCached(t *testing.T) {
	svc, repo, _ := newService(t)
	repo.On("List", mock.Anything).Return([]*model.ScheduleRule{hepatitisB()}, nil).Once()

	for i := 0; i < 3; i++ {
		rules, err := svc.List(context.Background())
		require.NoError(t, err)
		assert.Len(t, rules, 1)
	}
	repo.AssertNumberOfCalls(t, "List", 1)
}

func TestRegistryUsesConfiguredRules(t *testing.T) {
	svc, repo, _ := newService(t)
	rule := hepatitisB()
	rule.RequiredDoses = 2
	rule.Intervals = []int64{2}
	repo.On("List", mock.Anything).Return([]*model.ScheduleRule{rule}, nil)

	reg, err := svc.Registry(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, reg.RequiredDoses(compliance.FamilyHepatitisB))
	assert.Equal(t, 5, reg.RequiredDoses(compliance.FamilyTetanus))
}

func TestUpdateInvalidatesCacheAndAudits(t *testing.T) {
	svc, repo, auditRepo := newService(t)
	rule := hepatitisB()
	repo.On("List", mock.Anything).Return([]*model.ScheduleRule{rule}, nil).Twice()
	repo.On("Get", mock.Anything, rule.ID).Return(rule, nil)
	repo.On("Update", mock.Anything, mock.MatchedBy(func(r *model.ScheduleRule) bool {
		return r.RequiredDoses == 2 && len(r.Intervals) == 1
	})).Return(nil)

	_, err := svc.List(context.Background())
	require.NoError(t, err)

	updated, err := svc.Update(context.Background(), rule.ID, &model.UpdateScheduleRuleRequest{
		RequiredDoses: 2,
		Intervals:     []int64{3},
		Reason:        "new guideline",
	})
	require.NoError(t, err)
	assert.Equal(t, 2, updated.RequiredDoses)
	assert.Equal(t, 3, rule.RequiredDoses, "stored rule is not mutated in place")

	_, err = svc.List(context.Background())
	require.NoError(t, err)
	repo.AssertNumberOfCalls(t, "List", 2)
	auditRepo.AssertCalled(t, "CreateWithOutbox", mock.Anything, mock.MatchedBy(func(e *model.AuditEvent) bool {
		return e.Action == model.AuditActionUpdateScheduleRule && e.Reason == "new guideline"
	}), mock.Anything)
}

func TestUpdateRejectsInvalidRules(t *testing.T) {
	tests := []struct {
		name string
		req  model.UpdateScheduleRuleRequest
	}{
		{"too many doses", model.UpdateScheduleRuleRequest{RequiredDoses: 6, Intervals: []int64{1, 1, 1, 1, 1}}},
		{"interval count", model.UpdateScheduleRuleRequest{RequiredDoses: 3, Intervals: []int64{1}}},
		{"zero interval", model.UpdateScheduleRuleRequest{RequiredDoses: 2, Intervals: []int64{0}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, repo, _ := newService(t)
			rule := hepatitisB()
			repo.On("Get", mock.Anything, rule.ID).Return(rule, nil)

			req := tt.req
			_, err := svc.Update(context.Background(), rule.ID, &req)
			require.Error(t, err)
			assert.True(t, apperrors.HasCode(err, apperrors.ErrBadRequest))
			repo.AssertNotCalled(t, "Update", mock.Anything, mock.Anything)
		})
	}
}

func TestUpdateUnknownRule(t *testing.T) {
	svc, repo, _ := newService(t)
	id := uuid.New()
	repo.On("Get", mock.Anything, id).Return(nil, apperrors.NotFound("schedule rule", nil))

	_, err := svc.Update(context.Background(), id, &model.UpdateScheduleRuleRequest{RequiredDoses: 1})
	assert.True(t, apperrors.HasCode(err, apperrors.ErrNotFound))
}
