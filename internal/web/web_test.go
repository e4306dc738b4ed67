package web

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/norton62/demo2video/internal/job"
	"github.com/norton62/demo2video/internal/queue"
	"github.com/norton62/demo2video/internal/results"
	"github.com/norton62/demo2video/internal/status"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

type fixture struct {
	server  *Server
	queue   *queue.Queue[job.Job]
	status  *status.Broadcaster
	results *results.Store
}

func newFixture(t *testing.T, defaultMode job.PublishMode) *fixture {
	t.Helper()
	logger := testLogger()
	q := queue.New[job.Job](logger)
	st := status.New(logger)
	rs := results.NewStore(filepath.Join(t.TempDir(), "results.json"), 10, logger)

	return &fixture{
		server:  NewServer("127.0.0.1:0", q, st, rs, defaultMode, logger),
		queue:   q,
		status:  st,
		results: rs,
	}
}

func (f *fixture) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)
	return rec
}

func postForm(path string, form url.Values) *http.Request {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

func TestIndexRenders(t *testing.T) {
	f := newFixture(t, job.PublishUpload)

	rec := f.do(httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "<form")
}

func TestAddDemoSuccess(t *testing.T) {
	f := newFixture(t, job.PublishUpload)

	rec := f.do(postForm("/add_demo", url.Values{
		"share_code":       {"CSGO-AbCd1-Ef2Gh-3iJkL-4mNoP-5qRsT"},
		"suspect_steam_id": {"76561198000000001"},
		"submitted_by":     {"tester"},
	}))

	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Success bool   `json:"success"`
		Message string `json:"message"`
		JobID   string `json:"job_id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.True(t, body.Success)
	assert.Equal(t, "Demo added to the queue.", body.Message)
	assert.NotEmpty(t, body.JobID)

	pending := f.queue.Snapshot()
	require.Len(t, pending, 1)
	assert.Equal(t, body.JobID, pending[0].ID)
	assert.Equal(t, "76561198000000001", pending[0].SuspectID)
	assert.Equal(t, job.PublishUpload, pending[0].PublishMode)
	assert.NoError(t, pending[0].Validate())
}

func TestAddDemoMissingFields(t *testing.T) {
	f := newFixture(t, job.PublishUpload)

	rec := f.do(postForm("/add_demo", url.Values{
		"share_code": {"CSGO-AbCd1-Ef2Gh-3iJkL-4mNoP-5qRsT"},
	}))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "All fields are required.")
	assert.Zero(t, f.queue.Len())
}

func TestAddDemoPublishModeOverride(t *testing.T) {
	f := newFixture(t, job.PublishUpload)

	rec := f.do(postForm("/add_demo", url.Values{
		"share_code":       {"CSGO-AbCd1-Ef2Gh-3iJkL-4mNoP-5qRsT"},
		"suspect_steam_id": {"76561198000000001"},
		"submitted_by":     {"tester"},
		"youtube_upload":   {"false"},
	}))

	require.Equal(t, http.StatusOK, rec.Code)
	pending := f.queue.Snapshot()
	require.Len(t, pending, 1)
	assert.Equal(t, job.PublishSaveLocally, pending[0].PublishMode)
}

func TestRunEnqueuesAndRedirects(t *testing.T) {
	f := newFixture(t, job.PublishSaveLocally)

	rec := f.do(httptest.NewRequest(http.MethodGet,
		"/run?demo=CSGO-AbCd1-Ef2Gh-3iJkL-4mNoP-5qRsT&steam64=76561198000000001&name=Someone", nil))

	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/", rec.Header().Get("Location"))

	pending := f.queue.Snapshot()
	require.Len(t, pending, 1)
	assert.Equal(t, "Someone", pending[0].SubmittedBy)
	assert.Equal(t, job.PublishSaveLocally, pending[0].PublishMode)
}

func TestRunMissingParams(t *testing.T) {
	f := newFixture(t, job.PublishUpload)

	rec := f.do(httptest.NewRequest(http.MethodGet, "/run?demo=CSGO-AbCd1-Ef2Gh-3iJkL-4mNoP-5qRsT", nil))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "Missing required parameters")
	assert.Zero(t, f.queue.Len())
}

func TestRunRejectsMalformedSteam64(t *testing.T) {
	f := newFixture(t, job.PublishUpload)

	for _, bad := range []string{"1234", "7656119800000000a", "765611980000000012"} {
		rec := f.do(httptest.NewRequest(http.MethodGet,
			"/run?demo=CSGO-AbCd1-Ef2Gh-3iJkL-4mNoP-5qRsT&steam64="+bad+"&name=Someone", nil))

		assert.Equal(t, http.StatusBadRequest, rec.Code, bad)
		assert.Contains(t, rec.Body.String(), "Invalid Steam64 ID format. Must be 17 digits.")
	}
	assert.Zero(t, f.queue.Len())
}

func TestStatusEndpoint(t *testing.T) {
	f := newFixture(t, job.PublishUpload)

	f.status.Set(job.PhaseRecording, "Recording...", "76561198000000001")
	require.NoError(t, f.results.Append(job.Result{
		SuspectID:   "76561198000000002",
		TaskStatus:  job.StatusUploaded,
		Outcome:     "https://videos.example/v/abc",
		PublishMode: job.PublishUpload,
		SubmittedBy: "tester",
	}))
	f.queue.Enqueue(job.Job{ID: "queued-1", ShareCode: "x", SuspectID: "y", SubmittedBy: "z"})

	rec := f.do(httptest.NewRequest(http.MethodGet, "/status", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		CurrentJob job.Status   `json:"current_job"`
		Queue      []job.Job    `json:"queue"`
		Results    []job.Result `json:"results"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))

	assert.Equal(t, job.PhaseRecording, body.CurrentJob.Status)
	require.Len(t, body.Queue, 1)
	assert.Equal(t, "queued-1", body.Queue[0].ID)
	require.Len(t, body.Results, 1)
	assert.Equal(t, "76561198000000002", body.Results[0].SuspectID)
}

func TestStatusStartsIdle(t *testing.T) {
	f := newFixture(t, job.PublishUpload)

	rec := f.do(httptest.NewRequest(http.MethodGet, "/status", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		CurrentJob job.Status `json:"current_job"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, job.PhaseIdle, body.CurrentJob.Status)
}
