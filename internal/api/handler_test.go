package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/bayneri/slareport/internal/analyze"
	"github.com/bayneri/slareport/internal/jobs"
	"github.com/bayneri/slareport/internal/spec"
)

type MockSubmitter struct {
	mock.Mock
}

func (m *MockSubmitter) Submit(ctx context.Context, req spec.Spec) (*jobs.Task, error) {
	args := m.Called(ctx, req)
	if task := args.Get(0); task != nil {
		return task.(*jobs.Task), args.Error(1)
	}
	return nil, args.Error(1)
}

var testConfig = HandlerConfig{
	Defaults:      spec.Defaults{WindowDays: 30, MaxWorkers: 5},
	MaxWorkersCap: 32,
	ListLimit:     2,
	ListMax:       3,
}

func newTestRouter(submitter Submitter, store JobReader) *gin.Engine {
	gin.SetMode(gin.TestMode)
	handler := NewReportHandler(submitter, store, spec.DefaultTypes(), testConfig, zap.NewNop())
	return NewRouter(handler, nil, nil, zap.NewNop())
}

func doRequest(router http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		raw, _ := json.Marshal(body)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func validBody() map[string]interface{} {
	return map[string]interface{}{
		"projects": []map[string]interface{}{{
			"id": "shop-prod",
			"services": []map[string]interface{}{
				{"name": "checkout", "type": "cloud_run_revision", "threshold": 99.9},
			},
		}},
	}
}

func TestHandleSubmit_Accepted(t *testing.T) {
	submitter := new(MockSubmitter)
	submitter.On("Submit", mock.Anything, mock.MatchedBy(func(req spec.Spec) bool {
		return req.WindowDays == 30 && req.MaxWorkers == 5 && len(req.Projects) == 1
	})).Return(&jobs.Task{ID: "job-123"}, nil)

	w := doRequest(newTestRouter(submitter, jobs.NewMemoryStore()), http.MethodPost, "/api/v1/reports", validBody())

	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, "/api/v1/reports/job-123", w.Header().Get("Location"))
	var resp submitResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "job-123", resp.JobID)
	assert.Equal(t, jobs.StatusProcessing, resp.Status)
	submitter.AssertExpectations(t)
}

func TestHandleSubmit_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		body    interface{}
		wantErr string
	}{
		{name: "no projects", body: map[string]interface{}{"projects": []interface{}{}}, wantErr: "at least one project"},
		{name: "unknown type", body: map[string]interface{}{
			"projects": []map[string]interface{}{{
				"id":       "p",
				"services": []map[string]interface{}{{"name": "db", "type": "cloud_sql", "threshold": 99}},
			}},
		}, wantErr: "type must be one of"},
		{name: "too many workers", body: func() interface{} {
			body := validBody()
			body["maxWorkers"] = 64
			return body
		}(), wantErr: "maxWorkers must be between 1 and 32"},
		{name: "not json", body: "projects", wantErr: "invalid request body"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			submitter := new(MockSubmitter)
			w := doRequest(newTestRouter(submitter, jobs.NewMemoryStore()), http.MethodPost, "/api/v1/reports", tt.body)

			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Contains(t, w.Body.String(), tt.wantErr)
			submitter.AssertNotCalled(t, "Submit", mock.Anything, mock.Anything)
		})
	}
}

func TestHandleSubmit_StoreFailure(t *testing.T) {
	submitter := new(MockSubmitter)
	submitter.On("Submit", mock.Anything, mock.Anything).Return(nil, errors.New("redis down"))

	w := doRequest(newTestRouter(submitter, jobs.NewMemoryStore()), http.MethodPost, "/api/v1/reports", validBody())

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "redis down")
}

func seedStore(t *testing.T) *jobs.MemoryStore {
	t.Helper()
	store := jobs.NewMemoryStore()
	ctx := context.Background()
	start := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"old", "mid", "new"} {
		started := start.Add(time.Duration(i) * time.Hour)
		require.NoError(t, store.Create(ctx, jobs.Job{
			ID:         id,
			Status:     jobs.StatusProcessing,
			StartedAt:  started,
			WindowDays: 30,
			Window:     analyze.WindowFor(30, started),
		}))
	}
	pct := 100.0
	var down int64
	data := []analyze.ProjectResult{{ProjectID: "shop-prod", Services: []analyze.ServiceResult{{
		Service: "checkout", Type: "cloud_run_revision", Status: analyze.StatusOK,
		UptimePct: &pct, DowntimeMinutes: &down, Threshold: 99.9, Compliant: true,
	}}}}
	require.NoError(t, store.Finalize(ctx, "old", jobs.Completed(data, start.Add(time.Minute))))
	return store
}

func TestHandleGet(t *testing.T) {
	router := newTestRouter(new(MockSubmitter), seedStore(t))

	w := doRequest(router, http.MethodGet, "/api/v1/reports/old", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var job jobs.Job
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &job))
	assert.Equal(t, jobs.StatusCompleted, job.Status)
	require.Len(t, job.Data, 1)

	w = doRequest(router, http.MethodGet, "/api/v1/reports/new", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), `"data"`)

	w = doRequest(router, http.MethodGet, "/api/v1/reports/unknown", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandleGet_Markdown(t *testing.T) {
	router := newTestRouter(new(MockSubmitter), seedStore(t))

	w := doRequest(router, http.MethodGet, "/api/v1/reports/old?format=md", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.HasPrefix(w.Header().Get("Content-Type"), "text/markdown"))
	assert.Contains(t, w.Body.String(), "- Job: old")
	assert.Contains(t, w.Body.String(), "| checkout | cloud_run_revision | 100.0000% | 0 | 99.9000% | COMPLIANT |")

	w = doRequest(router, http.MethodGet, "/api/v1/reports/new?format=md", nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = doRequest(router, http.MethodGet, "/api/v1/reports/old?format=pdf", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleList(t *testing.T) {
	router := newTestRouter(new(MockSubmitter), seedStore(t))

	ids := func(w *httptest.ResponseRecorder) []string {
		var resp listResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		var out []string
		for _, job := range resp.Jobs {
			out = append(out, job.ID)
		}
		return out
	}

	w := doRequest(router, http.MethodGet, "/api/v1/reports", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"new", "mid"}, ids(w))

	w = doRequest(router, http.MethodGet, "/api/v1/reports?limit=50", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"new", "mid", "old"}, ids(w))

	w = doRequest(router, http.MethodGet, "/api/v1/reports?limit=0", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHealthz(t *testing.T) {
	w := doRequest(newTestRouter(new(MockSubmitter), jobs.NewMemoryStore()), http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}
