package validation

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/vaccination-api/internal/service/validation"
	apperrors "github.com/jwalitptl/vaccination-api/pkg/errors"
)

type fakeService struct {
	result *validation.Result
	err    error
}

func (f fakeService) Revalidate(context.Context) (*validation.Result, error) {
	return f.result, f.err
}

func recompute(svc fakeService) *httptest.ResponseRecorder {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	NewHandler(svc).RegisterRoutes(r.Group("/api/v1"))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/validations/recompute", nil))
	return w
}

func TestRecompute(t *testing.T) {
	w := recompute(fakeService{result: &validation.Result{Updated: 3, Unchanged: 7, Overdue: 1}})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"updated":3`)
	assert.Contains(t, w.Body.String(), `"unchanged":7`)
}

func TestRecomputeAlreadyRunning(t *testing.T) {
	w := recompute(fakeService{err: apperrors.Conflict("revalidation already running", nil)})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), "already running")
}
