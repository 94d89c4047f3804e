package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BartekS5/ticketflow/pkg/etlerr"
	"github.com/BartekS5/ticketflow/pkg/ledger"
	"github.com/BartekS5/ticketflow/pkg/models"
)

type runnerFunc func(ctx context.Context, trigger string) (*models.RunReport, error)

func (f runnerFunc) Run(ctx context.Context, trigger string) (*models.RunReport, error) {
	return f(ctx, trigger)
}

func do(t *testing.T, s *Server, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestTrigger_Success(t *testing.T) {
	var triggers []string
	s := New(runnerFunc(func(_ context.Context, trigger string) (*models.RunReport, error) {
		triggers = append(triggers, trigger)
		return &models.RunReport{RunID: "run-1", Status: models.RunSucceeded}, nil
	}), nil, 8080)

	for _, method := range []string{http.MethodGet, http.MethodPost} {
		rec := do(t, s, method, "/")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "ETL pipeline executed successfully", rec.Body.String())
		assert.Equal(t, "run-1", rec.Header().Get("X-Run-ID"))
	}
	assert.Equal(t, []string{"http", "http"}, triggers)
}

func TestTrigger_Failure(t *testing.T) {
	s := New(runnerFunc(func(context.Context, string) (*models.RunReport, error) {
		return &models.RunReport{RunID: "run-2", Status: models.RunFailed},
			etlerr.New(etlerr.KindTransport, "fetch events page 0", errors.New("connection refused"))
	}), nil, 8080)

	rec := do(t, s, http.MethodPost, "/")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "ETL pipeline failed: fetch events page 0: connection refused", rec.Body.String())
}

func TestTrigger_PanicStillResponds(t *testing.T) {
	s := New(runnerFunc(func(context.Context, string) (*models.RunReport, error) {
		panic("unexpected")
	}), nil, 8080)

	rec := do(t, s, http.MethodGet, "/")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestHealthAndMetrics(t *testing.T) {
	s := New(runnerFunc(func(context.Context, string) (*models.RunReport, error) { return nil, nil }), nil, 8080)

	rec := do(t, s, http.MethodGet, "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	rec = do(t, s, http.MethodGet, "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestRuns(t *testing.T) {
	l := ledger.NewMemory()
	base := time.Date(2025, 4, 11, 8, 0, 0, 0, time.UTC)
	require.NoError(t, l.Record(context.Background(), &models.RunReport{RunID: "old", StartedAt: base}))
	require.NoError(t, l.Record(context.Background(), &models.RunReport{RunID: "new", StartedAt: base.Add(time.Hour)}))
	s := New(runnerFunc(func(context.Context, string) (*models.RunReport, error) { return nil, nil }), l, 8080)

	rec := do(t, s, http.MethodGet, "/runs?limit=1")
	require.Equal(t, http.StatusOK, rec.Code)
	var got []models.RunReport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got, 1)
	assert.Equal(t, "new", got[0].RunID)

	rec = do(t, s, http.MethodGet, "/runs?limit=zero")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
