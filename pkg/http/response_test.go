package http

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type historyQuery struct {
	Days int `query:"days" default:"30" validate:"gte=1,lte=365"`
}

func runQuery(t *testing.T, target string) (*httptest.ResponseRecorder, historyQuery, interface{}) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	var q historyQuery
	verr := ReadAndValidateRequest(c, &q)
	return rec, q, verr
}

func TestReadAndValidateRequestDefaults(t *testing.T) {
	_, q, verr := runQuery(t, "/history")
	assert.Nil(t, verr)
	assert.Equal(t, 30, q.Days)
}

func TestReadAndValidateRequestRejectsOutOfRange(t *testing.T) {
	for _, target := range []string{"/history?days=0", "/history?days=366"} {
		_, _, verr := runQuery(t, target)
		errs, ok := verr.([]ValidationError)
		require.True(t, ok, target)
		require.Len(t, errs, 1)
		assert.Equal(t, "Days", errs[0].Field)
	}
}

func TestReadAndValidateRequestRejectsNonNumeric(t *testing.T) {
	_, _, verr := runQuery(t, "/history?days=abc")
	errs, ok := verr.([]ValidationError)
	require.True(t, ok)
	assert.NotEmpty(t, errs)
}

func TestAppErrorResponseUsesErrorStatus(t *testing.T) {
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodPost, "/collect", nil), rec)

	require.NoError(t, AppErrorResponse(c, ConflictError("cycle already running").WithRetryAfter(1500*time.Millisecond)))
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "2", rec.Header().Get("Retry-After"))

	var body APIResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, http.StatusConflict, body.Status)
}

func TestAppErrorResponseHidesUnknownErrors(t *testing.T) {
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)

	require.NoError(t, AppErrorResponse(c, assert.AnError))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), assert.AnError.Error())
}
