package proxy

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/geoengine/geoengine/config"
	"github.com/geoengine/geoengine/engine"
	"github.com/geoengine/geoengine/jobs"
)

const testProjectYAML = `
name: terrain
version: 1.0.0

scripts:
  hillshade: python hillshade.py

gis:
  tools:
    - name: hillshade
      label: Hillshade
      script: hillshade
      inputs:
        - name: dem
          type: file
`

type stubExecution struct{}

func (stubExecution) Wait(ctx context.Context) (int, error) { return 0, nil }

func (stubExecution) Stop(ctx context.Context, g time.Duration) error { return nil }

func (stubExecution) Logs(ctx context.Context, f bool) (io.ReadCloser, error) {
	return nil, nil
}

type stubRuntime struct{}

func (stubRuntime) Start(ctx context.Context, plan *engine.Plan) (engine.Execution, error) {
	return stubExecution{}, nil
}

func newTestServer(t *testing.T) (*Server, *http.ServeMux) {
	t.Helper()

	projectDir := t.TempDir()
	require.NoError(t, os.WriteFile(
		filepath.Join(projectDir, config.ProjectFileName), []byte(testProjectYAML), 0644))

	settings, err := config.LoadSettings(filepath.Join(t.TempDir(), "settings.yaml"))
	require.NoError(t, err)
	require.NoError(t, settings.Register("terrain", projectDir))

	manager := jobs.NewManager(stubRuntime{}, jobs.Options{MaxWorkers: 2})
	srv := New(manager, settings, nil, Config{Addr: ":0", MaxWorkers: 2})
	srv.startedAt = time.Now()

	mux := http.NewServeMux()
	srv.registerRoutes(mux)
	return srv, mux
}

func do(mux *http.ServeMux, method, path, body string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	_, mux := newTestServer(t)

	rec := do(mux, http.MethodGet, "/api/health", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var health HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	assert.Equal(t, "ok", health.Status)
	assert.Equal(t, 2, health.MaxWorkers)
}

func TestSubmitJob(t *testing.T) {
	_, mux := newTestServer(t)

	rec := do(mux, http.MethodPost, "/api/jobs",
		`{"project":"terrain","tool":"hillshade","inputs":{"dem":"dem.tif"}}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	var resp SubmitJobResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, strings.HasPrefix(resp.ID, "job-"))
	assert.Equal(t, "queued", resp.State)

	// The job shows up in the listing and individually.
	rec = do(mux, http.MethodGet, "/api/jobs", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list []jobs.Job
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list, 1)
	assert.Equal(t, resp.ID, list[0].ID)
	assert.Equal(t, "terrain", list[0].Project)

	rec = do(mux, http.MethodGet, "/api/jobs/"+resp.ID, "")
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestSubmitJobValidation(t *testing.T) {
	_, mux := newTestServer(t)

	tests := []struct {
		name string
		body string
		code int
	}{
		{"invalid json", `{`, http.StatusBadRequest},
		{"missing tool", `{"project":"terrain"}`, http.StatusBadRequest},
		{"unknown project", `{"project":"nope","tool":"hillshade"}`, http.StatusNotFound},
		{"unknown tool", `{"project":"terrain","tool":"slope"}`, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(mux, http.MethodPost, "/api/jobs", tt.body)
			assert.Equal(t, tt.code, rec.Code)

			var errResp ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &errResp))
			assert.NotEmpty(t, errResp.Error)
		})
	}
}

func TestGetJobNotFound(t *testing.T) {
	_, mux := newTestServer(t)
	rec := do(mux, http.MethodGet, "/api/jobs/job-missing", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCancelJob(t *testing.T) {
	_, mux := newTestServer(t)

	rec := do(mux, http.MethodPost, "/api/jobs", `{"project":"terrain","tool":"hillshade"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	var resp SubmitJobResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))

	// Queued job cancels cleanly.
	rec = do(mux, http.MethodDelete, "/api/jobs/"+resp.ID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var job jobs.Job
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &job))
	assert.Equal(t, jobs.StateCancelled, job.State)

	// Cancelling again conflicts.
	rec = do(mux, http.MethodDelete, "/api/jobs/"+resp.ID, "")
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = do(mux, http.MethodDelete, "/api/jobs/job-missing", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestJobOutputBeforeTerminal(t *testing.T) {
	_, mux := newTestServer(t)

	outDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(outDir, "result.tif"), []byte("x"), 0644))

	body, err := json.Marshal(SubmitJobRequest{
		Project:   "terrain",
		Tool:      "hillshade",
		OutputDir: outDir,
	})
	require.NoError(t, err)

	rec := do(mux, http.MethodPost, "/api/jobs", string(body))
	require.Equal(t, http.StatusCreated, rec.Code)
	var resp SubmitJobResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))

	// Queued: no files yet even though the directory has one.
	rec = do(mux, http.MethodGet, "/api/jobs/"+resp.ID+"/output", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var out OutputResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Empty(t, out.Files)

	// Terminal (cancelled) jobs expose whatever is in the directory.
	do(mux, http.MethodDelete, "/api/jobs/"+resp.ID, "")
	rec = do(mux, http.MethodGet, "/api/jobs/"+resp.ID+"/output", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.Len(t, out.Files, 1)
	assert.Equal(t, "result.tif", out.Files[0].Name)
}

func TestListProjects(t *testing.T) {
	_, mux := newTestServer(t)

	rec := do(mux, http.MethodGet, "/api/projects", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var list []ProjectResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list, 1)
	assert.Equal(t, "terrain", list[0].Name)
	assert.Equal(t, 1, list[0].ToolsCount)
}

func TestGetProject(t *testing.T) {
	_, mux := newTestServer(t)

	rec := do(mux, http.MethodGet, "/api/projects/terrain", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var detail ProjectDetailResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &detail))
	assert.Equal(t, "terrain", detail.Name)
	assert.Equal(t, []string{"hillshade"}, detail.Scripts)
	assert.Equal(t, 1, detail.Tools)
	assert.False(t, detail.GPU)

	rec = do(mux, http.MethodGet, "/api/projects/nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestProjectTools(t *testing.T) {
	_, mux := newTestServer(t)

	rec := do(mux, http.MethodGet, "/api/projects/terrain/tools", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var tools []ToolResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &tools))
	require.Len(t, tools, 1)
	assert.Equal(t, "hillshade", tools[0].Name)
	require.Len(t, tools[0].Inputs, 1)
	assert.Equal(t, "dem", tools[0].Inputs[0].Name)
	assert.True(t, tools[0].Inputs[0].Required)
}

func TestEventsWithoutHistory(t *testing.T) {
	_, mux := newTestServer(t)

	rec := do(mux, http.MethodGet, "/api/events", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "[]\n", rec.Body.String())
}

func TestCORSPreflight(t *testing.T) {
	_, mux := newTestServer(t)

	handler := corsMiddleware(mux)
	req := httptest.NewRequest(http.MethodOptions, "/api/jobs", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}
