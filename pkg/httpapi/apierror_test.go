package httpapi_test

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Atom1250/Compliance-App/pkg/domain"
	"github.com/Atom1250/Compliance-App/pkg/httpapi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteFromError_MapsKindToStatus(t *testing.T) {
	cases := []struct {
		kind   domain.ErrorKind
		status int
	}{
		{domain.KindValidation, http.StatusBadRequest},
		{domain.KindNotFound, http.StatusNotFound},
		{domain.KindAuthz, http.StatusForbidden},
		{domain.KindConflict, http.StatusConflict},
		{domain.KindIntegrity, http.StatusUnprocessableEntity},
		{domain.KindDependency, http.StatusBadGateway},
		{domain.KindCancelled, http.StatusGone},
	}
	for _, c := range cases {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/runs/r1", nil)
		httpapi.WriteFromError(rec, req, domain.NewError(c.kind, "", errors.New("boom")))
		assert.Equal(t, c.status, rec.Code, "kind=%s", c.kind)
		assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))

		var problem httpapi.ProblemDetail
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &problem))
		assert.Equal(t, c.status, problem.Status)
		assert.Equal(t, "/runs/r1", problem.Instance)
	}
}

func TestWriteFromError_UnclassifiedFallsBackTo500(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/runs/r1", nil)
	httpapi.WriteFromError(rec, req, errors.New("unwrapped failure"))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	var problem httpapi.ProblemDetail
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &problem))
	assert.Equal(t, "an unexpected error occurred", problem.Detail)
}
