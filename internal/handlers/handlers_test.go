package handlers

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YohanV1/TissueLab-Scheduler/internal/common"
	"github.com/YohanV1/TissueLab-Scheduler/internal/events"
	"github.com/YohanV1/TissueLab-Scheduler/internal/files"
	"github.com/YohanV1/TissueLab-Scheduler/internal/models"
	"github.com/YohanV1/TissueLab-Scheduler/internal/store"
)

// fakeScheduler records calls and returns a canned queue status.
type fakeScheduler struct {
	enqueued []string
	removed  []string
	status   models.QueueStatus
}

func (f *fakeScheduler) Enqueue(jobID string) { f.enqueued = append(f.enqueued, jobID) }
func (f *fakeScheduler) Remove(jobID string)  { f.removed = append(f.removed, jobID) }
func (f *fakeScheduler) QueueStatus(jobID string) models.QueueStatus {
	return f.status
}
func (f *fakeScheduler) Stop() {}

type handlerFixture struct {
	st    *store.Store
	bus   *events.Bus
	fs    *files.Service
	sch   *fakeScheduler
	wfH   *WorkflowHandler
	jobH  *JobHandler
	fileH *FileHandler
}

func newHandlerFixture(t *testing.T) *handlerFixture {
	t.Helper()
	dir := t.TempDir()
	fs, err := files.NewService(common.StorageConfig{
		UploadsDir: filepath.Join(dir, "uploads"),
		Badger:     common.BadgerConfig{Path: filepath.Join(dir, "db")},
	})
	require.NoError(t, err)

	bus := events.NewBus(64)
	st := store.New(bus, 10)
	sch := &fakeScheduler{}
	t.Cleanup(func() {
		st.Close()
		bus.Close()
		fs.Close()
	})

	return &handlerFixture{
		st:    st,
		bus:   bus,
		fs:    fs,
		sch:   sch,
		wfH:   NewWorkflowHandler(st),
		jobH:  NewJobHandler(st, sch, fs),
		fileH: NewFileHandler(fs),
	}
}

func (f *handlerFixture) uploadFile(t *testing.T, tenant string) models.FileRecord {
	t.Helper()
	record, err := f.fs.SaveUpload(tenant, "slide.png", "image/png", strings.NewReader("png bytes"))
	require.NoError(t, err)
	return record
}

func doJSON(t *testing.T, h http.HandlerFunc, method, path, tenant string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if tenant != "" {
		req.Header.Set("X-Tenant-ID", tenant)
	}
	rec := httptest.NewRecorder()
	h(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v))
}

func TestCreateWorkflowRequiresTenant(t *testing.T) {
	f := newHandlerFixture(t)

	rec := doJSON(t, f.wfH.CreateHandler, http.MethodPost, "/api/workflows", "",
		map[string]string{"name": "slides"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateAndGetWorkflow(t *testing.T) {
	f := newHandlerFixture(t)

	rec := doJSON(t, f.wfH.CreateHandler, http.MethodPost, "/api/workflows", "alice",
		map[string]string{"name": "slides"})
	require.Equal(t, http.StatusCreated, rec.Code)

	var wf models.Workflow
	decodeBody(t, rec, &wf)
	assert.True(t, strings.HasPrefix(wf.ID, "wf_"))

	rec = doJSON(t, f.wfH.GetHandler(wf.ID), http.MethodGet, "/api/workflows/"+wf.ID, "alice", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var snap models.WorkflowSnapshot
	decodeBody(t, rec, &snap)
	assert.Equal(t, models.WorkflowPending, snap.State)

	// Another tenant gets FORBIDDEN, not a silent 404.
	rec = doJSON(t, f.wfH.GetHandler(wf.ID), http.MethodGet, "/api/workflows/"+wf.ID, "bob", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestCreateJobValidation(t *testing.T) {
	f := newHandlerFixture(t)
	wf := f.st.CreateWorkflow("alice", "slides")
	file := f.uploadFile(t, "alice")

	// Unknown job type.
	rec := doJSON(t, f.jobH.CreateHandler, http.MethodPost, "/api/jobs", "alice", map[string]string{
		"workflow_id": wf.ID, "file_id": file.ID, "job_type": "SHARPEN",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Missing file.
	rec = doJSON(t, f.jobH.CreateHandler, http.MethodPost, "/api/jobs", "alice", map[string]string{
		"workflow_id": wf.ID, "file_id": "file_missing", "job_type": "TISSUE_MASK",
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// File owned by another tenant.
	bobFile := f.uploadFile(t, "bob")
	rec = doJSON(t, f.jobH.CreateHandler, http.MethodPost, "/api/jobs", "alice", map[string]string{
		"workflow_id": wf.ID, "file_id": bobFile.ID, "job_type": "TISSUE_MASK",
	})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// Valid request.
	rec = doJSON(t, f.jobH.CreateHandler, http.MethodPost, "/api/jobs", "alice", map[string]string{
		"workflow_id": wf.ID, "file_id": file.ID, "job_type": "TISSUE_MASK", "branch": "main",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var job models.Job
	decodeBody(t, rec, &job)
	assert.Equal(t, models.JobPending, job.State)
	assert.Empty(t, f.sch.enqueued, "create must not queue the job")
}

func TestJobCapReturnsLimitExceeded(t *testing.T) {
	f := newHandlerFixture(t)
	wf := f.st.CreateWorkflow("alice", "slides")
	file := f.uploadFile(t, "alice")

	for i := 0; i < 10; i++ {
		rec := doJSON(t, f.jobH.CreateHandler, http.MethodPost, "/api/jobs", "alice", map[string]string{
			"workflow_id": wf.ID, "file_id": file.ID, "job_type": "TISSUE_MASK",
		})
		require.Equal(t, http.StatusCreated, rec.Code)
	}

	rec := doJSON(t, f.jobH.CreateHandler, http.MethodPost, "/api/jobs", "alice", map[string]string{
		"workflow_id": wf.ID, "file_id": file.ID, "job_type": "TISSUE_MASK",
	})
	assert.Equal(t, http.StatusConflict, rec.Code)

	var body map[string]string
	decodeBody(t, rec, &body)
	assert.Equal(t, "LIMIT_EXCEEDED", body["kind"])
}

func createJob(t *testing.T, f *handlerFixture, tenant string) models.Job {
	t.Helper()
	wf := f.st.CreateWorkflow(tenant, "slides")
	file := f.uploadFile(t, tenant)
	job, err := f.st.CreateJob(tenant, wf.ID, file.ID, models.JobTypeTissueMask, "main")
	require.NoError(t, err)
	return job
}

func TestStartEnqueuesPendingJob(t *testing.T) {
	f := newHandlerFixture(t)
	job := createJob(t, f, "alice")

	rec := doJSON(t, f.jobH.StartHandler(job.ID), http.MethodPost, "/api/jobs/"+job.ID+"/start", "alice", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{job.ID}, f.sch.enqueued)
}

func TestStartNonPendingConflicts(t *testing.T) {
	f := newHandlerFixture(t)
	job := createJob(t, f, "alice")
	_, err := f.st.Transition(job.ID, []models.JobState{models.JobPending}, models.JobRunning, nil)
	require.NoError(t, err)

	rec := doJSON(t, f.jobH.StartHandler(job.ID), http.MethodPost, "/api/jobs/"+job.ID+"/start", "alice", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestCancelPendingJob(t *testing.T) {
	f := newHandlerFixture(t)
	job := createJob(t, f, "alice")

	rec := doJSON(t, f.jobH.CancelHandler(job.ID), http.MethodPost, "/api/jobs/"+job.ID+"/cancel", "alice", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{job.ID}, f.sch.removed)

	var got models.Job
	decodeBody(t, rec, &got)
	assert.Equal(t, models.JobCanceled, got.State)
}

func TestCancelRunningJobConflicts(t *testing.T) {
	f := newHandlerFixture(t)
	job := createJob(t, f, "alice")
	_, err := f.st.Transition(job.ID, []models.JobState{models.JobPending}, models.JobRunning, nil)
	require.NoError(t, err)

	rec := doJSON(t, f.jobH.CancelHandler(job.ID), http.MethodPost, "/api/jobs/"+job.ID+"/cancel", "alice", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Empty(t, f.sch.removed)
}

func TestRetryTerminalJobEnqueues(t *testing.T) {
	f := newHandlerFixture(t)
	job := createJob(t, f, "alice")
	_, err := f.st.Transition(job.ID, []models.JobState{models.JobPending}, models.JobCanceled, nil)
	require.NoError(t, err)

	rec := doJSON(t, f.jobH.RetryHandler(job.ID), http.MethodPost, "/api/jobs/"+job.ID+"/retry", "alice", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{job.ID}, f.sch.enqueued)

	var got models.Job
	decodeBody(t, rec, &got)
	assert.Equal(t, models.JobPending, got.State)
}

func TestRetryPendingJobConflicts(t *testing.T) {
	f := newHandlerFixture(t)
	job := createJob(t, f, "alice")

	rec := doJSON(t, f.jobH.RetryHandler(job.ID), http.MethodPost, "/api/jobs/"+job.ID+"/retry", "alice", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestQueueStatusPassesThrough(t *testing.T) {
	f := newHandlerFixture(t)
	job := createJob(t, f, "alice")
	f.sch.status = models.QueueStatus{
		Queued:         true,
		WaitingFor:     []string{models.WaitBranch},
		ActiveUsers:    1,
		MaxActiveUsers: 3,
		ActiveWorkers:  2,
		MaxWorkers:     4,
	}

	rec := doJSON(t, f.jobH.QueueStatusHandler(job.ID), http.MethodGet, "/api/jobs/"+job.ID+"/queue-status", "alice", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var status models.QueueStatus
	decodeBody(t, rec, &status)
	assert.Equal(t, f.sch.status, status)
}

func TestManifestOnlyOnSucceeded(t *testing.T) {
	f := newHandlerFixture(t)
	job := createJob(t, f, "alice")

	rec := doJSON(t, f.jobH.ManifestHandler(job.ID), http.MethodGet, "/api/jobs/"+job.ID+"/manifest", "alice", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	_, err := f.st.Transition(job.ID, []models.JobState{models.JobPending}, models.JobRunning, nil)
	require.NoError(t, err)
	_, err = f.st.Transition(job.ID, []models.JobState{models.JobRunning}, models.JobSucceeded, func(j *models.Job) {
		j.Manifest = &models.Manifest{JobID: j.ID, TilesTotal: 4, FinishedAt: time.Now().UTC()}
	})
	require.NoError(t, err)

	rec = doJSON(t, f.jobH.ManifestHandler(job.ID), http.MethodGet, "/api/jobs/"+job.ID+"/manifest", "alice", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var manifest models.Manifest
	decodeBody(t, rec, &manifest)
	assert.Equal(t, 4, manifest.TilesTotal)
}

func TestUploadMultipart(t *testing.T) {
	f := newHandlerFixture(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "slide.png")
	require.NoError(t, err)
	_, err = fw.Write([]byte("png bytes"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/files", &buf)
	req.Header.Set("X-Tenant-ID", "alice")
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	f.fileH.UploadHandler(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code)

	var record models.FileRecord
	decodeBody(t, rec, &record)
	assert.True(t, strings.HasPrefix(record.ID, "file_"))
	assert.Equal(t, "alice", record.TenantID)
}

func TestUploadRejectsUnsupportedExtension(t *testing.T) {
	f := newHandlerFixture(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "slide.exe")
	require.NoError(t, err)
	_, err = fw.Write([]byte("nope"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/files", &buf)
	req.Header.Set("X-Tenant-ID", "alice")
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	f.fileH.UploadHandler(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTenantFromQueryParam(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/jobs/x/events?tenant=alice", nil)
	assert.Equal(t, "alice", TenantID(req))

	req = httptest.NewRequest(http.MethodGet, "/api/jobs/x", nil)
	req.Header.Set("X-Tenant-ID", "bob")
	assert.Equal(t, "bob", TenantID(req))
}

func TestKindErrorStatusMapping(t *testing.T) {
	cases := map[models.ErrorKind]int{
		models.KindNotFound:      http.StatusNotFound,
		models.KindForbidden:     http.StatusForbidden,
		models.KindConflict:      http.StatusConflict,
		models.KindLimitExceeded: http.StatusConflict,
		models.KindInvalid:       http.StatusBadRequest,
		models.KindInternal:      http.StatusInternalServerError,
	}
	for kind, want := range cases {
		rec := httptest.NewRecorder()
		WriteKindError(rec, models.NewError(kind, "boom"))
		assert.Equal(t, want, rec.Code, string(kind))
	}
}
