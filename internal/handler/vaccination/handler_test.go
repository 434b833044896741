package vaccination

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/vaccination-api/internal/model"
	"github.com/jwalitptl/vaccination-api/internal/service/vaccination"
	apperrors "github.com/jwalitptl/vaccination-api/pkg/errors"
)

type mockService struct {
	mock.Mock
}

func (m *mockService) Search(ctx context.Context, filters model.RecordFilters) (*vaccination.SearchResult, error) {
	args := m.Called(ctx, filters)
	res, _ := args.Get(0).(*vaccination.SearchResult)
	return res, args.Error(1)
}

func (m *mockService) Create(ctx context.Context, req *model.CreateRecordRequest) (*vaccination.WorkerView, error) {
	args := m.Called(ctx, req)
	res, _ := args.Get(0).(*vaccination.WorkerView)
	return res, args.Error(1)
}

func (m *mockService) RegisterDose(ctx context.Context, id uuid.UUID, req *model.RegisterDoseRequest) (*vaccination.RecordResult, error) {
	args := m.Called(ctx, id, req)
	res, _ := args.Get(0).(*vaccination.RecordResult)
	return res, args.Error(1)
}

func (m *mockService) UpdateWorker(ctx context.Context, document string, req *model.UpdateWorkerRequest) (int64, error) {
	args := m.Called(ctx, document, req)
	return args.Get(0).(int64), args.Error(1)
}

func setup() (*gin.Engine, *mockService) {
	gin.SetMode(gin.TestMode)
	svc := new(mockService)
	r := gin.New()
	NewHandler(svc).RegisterRoutes(r.Group("/api/v1"))
	return r, svc
}

func do(r *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestSearchWorkers(t *testing.T) {
	r, svc := setup()
	svc.On("Search", mock.Anything, mock.MatchedBy(func(f model.RecordFilters) bool {
		return f.Query == "ana" && f.Region == "north" && f.From != nil && *f.From == 0 && f.To != nil && *f.To == 9 &&
			f.StartDate.Format("2006-01-02") == "2024-01-01"
	})).Return(&vaccination.SearchResult{
		Workers: []vaccination.WorkerView{{Person: model.Person{DocumentNumber: "100", FullName: "Ana"}}},
		Total:   1,
	}, nil)

	w := do(r, http.MethodGet, "/api/v1/workers?query=ana&region=north&from=0&to=9&start_date=2024-01-01", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"document_number":"100"`)
	assert.Contains(t, w.Body.String(), `"total":1`)
	svc.AssertExpectations(t)
}

func TestSearchWorkersBadQuery(t *testing.T) {
	r, svc := setup()

	assert.Equal(t, http.StatusBadRequest, do(r, http.MethodGet, "/api/v1/workers?from=-1", "").Code)
	assert.Equal(t, http.StatusBadRequest, do(r, http.MethodGet, "/api/v1/workers?from=10&to=2", "").Code)
	assert.Equal(t, http.StatusBadRequest, do(r, http.MethodGet, "/api/v1/workers?start_date=01/02/2024", "").Code)
	svc.AssertNotCalled(t, "Search", mock.Anything, mock.Anything)
}

func TestCreateRecord(t *testing.T) {
	r, svc := setup()
	svc.On("Create", mock.Anything, mock.MatchedBy(func(req *model.CreateRecordRequest) bool {
		return req.DocumentNumber == "100" && req.VaccineType == "INFLUENZA"
	})).Return(&vaccination.WorkerView{Person: model.Person{DocumentNumber: "100"}}, nil)

	w := do(r, http.MethodPost, "/api/v1/records", `{"document_number":"100","full_name":"Ana","vaccine_type":"INFLUENZA"}`)
	assert.Equal(t, http.StatusCreated, w.Code)

	w = do(r, http.MethodPost, "/api/v1/records", `{"full_name":"Ana"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	svc.AssertNumberOfCalls(t, "Create", 1)
}

func TestRegisterDose(t *testing.T) {
	r, svc := setup()
	id := uuid.New()
	svc.On("RegisterDose", mock.Anything, id, mock.MatchedBy(func(req *model.RegisterDoseRequest) bool {
		return req.Slot != nil && *req.Slot == 0 && req.Date == "2024-02-01"
	})).Return(&vaccination.RecordResult{Validation: "scheme complete and current"}, nil)

	w := do(r, http.MethodPost, "/api/v1/records/"+id.String()+"/doses", `{"slot":0,"date":"2024-02-01"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "scheme complete and current")
	svc.AssertExpectations(t)
}

func TestRegisterDoseErrors(t *testing.T) {
	r, svc := setup()
	id := uuid.New()
	svc.On("RegisterDose", mock.Anything, id, mock.Anything).
		Return(nil, apperrors.Conflict("dose 1 is already registered", nil))

	w := do(r, http.MethodPost, "/api/v1/records/not-a-uuid/doses", `{"slot":1,"date":"2024-02-01"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(r, http.MethodPost, "/api/v1/records/"+id.String()+"/doses", `{"slot":7,"date":"2024-02-01"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(r, http.MethodPost, "/api/v1/records/"+id.String()+"/doses", `{"slot":1,"date":"01-02-2024"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(r, http.MethodPost, "/api/v1/records/"+id.String()+"/doses", `{"slot":1,"date":"2024-02-01"}`)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), "dose 1 is already registered")
}

func TestUpdateWorker(t *testing.T) {
	r, svc := setup()
	svc.On("UpdateWorker", mock.Anything, "100", mock.MatchedBy(func(req *model.UpdateWorkerRequest) bool {
		return req.Reason == "moved" && model.Deref(req.Region) == "SOUTH"
	})).Return(int64(2), nil)

	w := do(r, http.MethodPut, "/api/v1/workers/100", `{"region":"SOUTH","reason":"moved"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"updated":2`)

	w = do(r, http.MethodPut, "/api/v1/workers/100", `{"region":"SOUTH"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	svc.AssertNumberOfCalls(t, "UpdateWorker", 1)
}

func TestUpdateWorkerNotFound(t *testing.T) {
	r, svc := setup()
	svc.On("UpdateWorker", mock.Anything, "404", mock.Anything).Return(int64(0), apperrors.NotFound("worker", nil))

	w := do(r, http.MethodPut, "/api/v1/workers/404", `{"full_name":"X","reason":"typo"}`)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "worker not found")
}
