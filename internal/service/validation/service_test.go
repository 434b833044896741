package validation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/vaccination-api/internal/compliance"
	"github.com/jwalitptl/vaccination-api/internal/email"
	"github.com/jwalitptl/vaccination-api/internal/model"
	"github.com/jwalitptl/vaccination-api/internal/repository/mocks"
	"github.com/jwalitptl/vaccination-api/internal/service/audit"
	apperrors "github.com/jwalitptl/vaccination-api/pkg/errors"
	"github.com/jwalitptl/vaccination-api/pkg/logger"
	"github.com/jwalitptl/vaccination-api/pkg/metrics"
)

type staticRules []*model.ScheduleRule

func (r staticRules) Registry(context.Context) (*compliance.Registry, error) {
	return compliance.NewRegistry(r), nil
}

type digestRecorder struct {
	entries []email.OverdueEntry
}

func (d *digestRecorder) SendOverdueDigest(_ context.Context, entries []email.OverdueEntry) error {
	d.entries = append(d.entries, entries...)
	return nil
}

func record(doc, subtype, text string, dates ...string) *model.VaccinationRecord {
	rec := &model.VaccinationRecord{
		ID:             uuid.New(),
		DocumentNumber: doc,
		FullName:       "Worker " + doc,
		VaccineType:    subtype,
		ValidationText: model.Ref(text),
	}
	for i, d := range dates {
		if d != "" {
			rec.SetSlot(model.DoseSlot(i+1), model.RawSlot{Date: d})
		}
	}
	return rec
}

func newService(t *testing.T, repo *mocks.VaccinationRepository, notifier email.Service, cfg Config) (*Service, *metrics.Metrics) {
	t.Helper()
	auditRepo := new(mocks.AuditRepository)
	auditRepo.On("CreateWithOutbox", mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()
	m := metrics.NewMetrics("test", prometheus.NewRegistry())

	svc := NewService(
		repo,
		staticRules(nil),
		compliance.NewValidator(nil),
		audit.NewService(auditRepo, logger.Nop(), false),
		notifier,
		m,
		logger.Nop(),
		cfg,
	)
	svc.now = func() time.Time { return time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC) }
	return svc, m
}

func TestRevalidateCountsOutcomes(t *testing.T) {
	repo := new(mocks.VaccinationRepository)
	digest := &digestRecorder{}
	svc, m := newService(t, repo, digest, Config{PageSize: 2})

	current := record("100", "INFLUENZA", "scheme complete and current", "2024-01-10")
	stale := record("200", "HEPATITIS_B", "old text", "2022-01-01", "2022-02-01", "2022-08-01")
	broken := record("300", "HEPATITIS_A", "", "2024-01-01")
	empty := record("400", "TETANOS", "")

	repo.On("ListDocumentsAfter", mock.Anything, "", 2).Return([]string{"100", "200"}, nil)
	repo.On("ListDocumentsAfter", mock.Anything, "200", 2).Return([]string{"300", "400"}, nil)
	repo.On("ListDocumentsAfter", mock.Anything, "400", 2).Return(nil, nil)
	repo.On("ListByDocuments", mock.Anything, []string{"100", "200"}).Return([]*model.VaccinationRecord{current, stale}, nil)
	repo.On("ListByDocuments", mock.Anything, []string{"300", "400"}).Return([]*model.VaccinationRecord{broken, empty}, nil)

	repo.On("UpdateValidation", mock.Anything, stale.ID, "scheme pending: booster pending").Return(nil)
	repo.On("UpdateValidation", mock.Anything, broken.ID, mock.Anything).Return(errors.New("deadlock detected"))
	repo.On("UpdateValidation", mock.Anything, empty.ID, "scheme pending: missing first dose").Return(nil)

	res, err := svc.Revalidate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, res.Updated)
	assert.Equal(t, 1, res.Unchanged)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, 3, res.Overdue)

	require.Len(t, digest.entries, 3)
	assert.Equal(t, "200", digest.entries[0].DocumentNumber)
	assert.Equal(t, "booster pending", digest.entries[0].Detail)
	assert.Equal(t, "missing first dose", digest.entries[2].Detail)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.RevalidationRows.WithLabelValues("updated")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RevalidationRuns.WithLabelValues("success")))
	repo.AssertExpectations(t)
}

func TestRevalidateFlatSchema(t *testing.T) {
	repo := new(mocks.VaccinationRepository)
	svc, _ := newService(t, repo, nil, Config{PageSize: 10, SchemaVersion: compliance.SchemaFlat})

	origin := "external clinic"
	rec := record("100", "INFLUENZA", "", "2024-01-10")
	rec.Origin = &origin
	rec.SetSlot(model.SlotDose1, model.RawSlot{Date: "2024-01-10", Origin: "local"})

	repo.On("ListDocumentsAfter", mock.Anything, "", 10).Return([]string{"100"}, nil)
	repo.On("ListByDocuments", mock.Anything, []string{"100"}).Return([]*model.VaccinationRecord{rec}, nil)
	repo.On("UpdateValidation", mock.Anything, rec.ID, "scheme complete and current").Return(nil)

	res, err := svc.Revalidate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Updated)
	assert.Equal(t, 0, res.Overdue)
	repo.AssertExpectations(t)
}

func TestRevalidateMergedFamilyShareLine(t *testing.T) {
	repo := new(mocks.VaccinationRepository)
	svc, _ := newService(t, repo, nil, Config{PageSize: 10})

	dt := record("100", "DT", "", "2022-01-01", "2022-02-01")
	tet := record("100", "TETANOS", "", "2022-03-01")
	repo.On("ListDocumentsAfter", mock.Anything, "", 10).Return([]string{"100"}, nil)
	repo.On("ListByDocuments", mock.Anything, []string{"100"}).Return([]*model.VaccinationRecord{dt, tet}, nil)
	repo.On("UpdateValidation", mock.Anything, dt.ID, "scheme pending: pending dose 4").Return(nil)
	repo.On("UpdateValidation", mock.Anything, tet.ID, "scheme pending: pending dose 4").Return(nil)

	res, err := svc.Revalidate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, res.Updated)
	assert.Equal(t, 1, res.Overdue)
	repo.AssertExpectations(t)
}

func TestRevalidateCancelled(t *testing.T) {
	repo := new(mocks.VaccinationRepository)
	svc, m := newService(t, repo, nil, Config{PageSize: 10})

	ctx, cancel := context.WithCancel(context.Background())
	rec := record("100", "INFLUENZA", "", "2024-01-10")
	repo.On("ListDocumentsAfter", mock.Anything, "", 10).Return([]string{"100"}, nil)
	repo.On("ListByDocuments", mock.Anything, []string{"100"}).
		Run(func(mock.Arguments) { cancel() }).
		Return([]*model.VaccinationRecord{rec}, nil)

	res, err := svc.Revalidate(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, res)
	assert.Zero(t, res.Updated)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RevalidationRuns.WithLabelValues("error")))
	repo.AssertNotCalled(t, "UpdateValidation", mock.Anything, mock.Anything, mock.Anything)
}

func TestRevalidateRejectsConcurrentRuns(t *testing.T) {
	repo := new(mocks.VaccinationRepository)
	svc, _ := newService(t, repo, nil, Config{})

	svc.running.Lock()
	defer svc.running.Unlock()

	_, err := svc.Revalidate(context.Background())
	assert.True(t, apperrors.HasCode(err, apperrors.ErrConflict))
}
