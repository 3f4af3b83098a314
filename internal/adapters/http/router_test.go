package httpadapter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/modelvault/model-ingest/internal/config"
	"github.com/modelvault/model-ingest/internal/core/domain"
)

type stubIngestor struct {
	model *domain.Model
	err   error
}

func (s *stubIngestor) Upload(_ context.Context, filename string, _ io.Reader) (*domain.Model, error) {
	if s.err != nil {
		return nil, s.err
	}
	m := *s.model
	m.Filename = filename
	return &m, nil
}

type stubDispatcher struct {
	stats  domain.QuickStats
	err    error
	status *domain.JobStatus
	calls  int

	lastModelID string
	lastSource  string
	lastOpts    domain.ProcessOptions
}

func (s *stubDispatcher) Process(_ context.Context, modelID, source string, opts domain.ProcessOptions) (domain.QuickStats, error) {
	s.calls++
	s.lastModelID = modelID
	s.lastSource = source
	s.lastOpts = opts
	return s.stats, s.err
}

func (s *stubDispatcher) GetStatus(_ context.Context, modelID string) (*domain.JobStatus, error) {
	if s.status != nil {
		return s.status, nil
	}
	return &domain.JobStatus{ModelID: modelID, State: domain.JobNotFound}, nil
}

func (s *stubDispatcher) ClearStatus(_ context.Context, _ string) error {
	return s.err
}

type stubSyncProcessor struct {
	result domain.ProcessResult
}

func (s *stubSyncProcessor) ProcessSync(_ context.Context, _, _ string, _ domain.ProcessOptions) domain.ProcessResult {
	return s.result
}

type stubReprocessor struct {
	result domain.ProcessResult
	err    error
}

func (s *stubReprocessor) Reprocess(_ context.Context, _, _ string, _ domain.ProcessOptions) (domain.ProcessResult, error) {
	return s.result, s.err
}

type stubModelReader struct {
	model *domain.Model
	err   error
}

func (s *stubModelReader) GetByID(_ context.Context, _ string) (*domain.Model, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.model, nil
}

type stubReportStore struct {
	report *domain.ProcessingReport
	err    error
}

func (s *stubReportStore) CreateReport(_ context.Context, _ *domain.ProcessingReport) error {
	return nil
}

func (s *stubReportStore) GetReportByID(_ context.Context, _ string) (*domain.ProcessingReport, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.report, nil
}

func newTestRouter(
	ingest *stubIngestor,
	dispatcher *stubDispatcher,
	syncProc *stubSyncProcessor,
	reproc *stubReprocessor,
	models *stubModelReader,
) http.Handler {
	if ingest == nil {
		ingest = &stubIngestor{model: &domain.Model{ID: "model-1", SourcePath: "key.ifc", Status: domain.StatusPending}}
	}
	if dispatcher == nil {
		dispatcher = &stubDispatcher{stats: domain.QuickStats{Success: true}}
	}
	if syncProc == nil {
		syncProc = &stubSyncProcessor{result: domain.ProcessResult{Success: true, Status: domain.StatusReady}}
	}
	if reproc == nil {
		reproc = &stubReprocessor{result: domain.ProcessResult{Success: true, Status: domain.StatusReady}}
	}
	if models == nil {
		models = &stubModelReader{model: &domain.Model{ID: "model-1", SourcePath: "key.ifc", Status: domain.StatusReady}}
	}
	reports := &stubReportStore{report: &domain.ProcessingReport{ID: "report-1", ModelID: "model-1", Summary: domain.ReportSuccess}}
	return NewRouter(config.Config{}, ingest, dispatcher, dispatcher, syncProc, reproc, models, reports).Handler()
}

func multipartBody(t *testing.T, fields map[string]string, filename, content string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			t.Fatal(err)
		}
	}
	fw, err := w.CreateFormFile("file", filename)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := fw.Write([]byte(content)); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	return &buf, w.FormDataContentType()
}

func TestHealthz(t *testing.T) {
	handler := newTestRouter(nil, nil, nil, nil, nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestUploadModelFastAck(t *testing.T) {
	dispatcher := &stubDispatcher{stats: domain.QuickStats{Success: true, Schema: "IFC4", TotalElements: 7}}
	handler := newTestRouter(nil, dispatcher, nil, nil, nil)

	body, contentType := multipartBody(t, map[string]string{"callback_url": "http://cb", "skip_geometry": "true"}, "plan.ifc", "ISO-10303-21;")
	req := httptest.NewRequest(http.MethodPost, "/v1/models", body)
	req.Header.Set("Content-Type", contentType)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Model      domain.Model      `json:"model"`
		QuickStats domain.QuickStats `json:"quick_stats"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Model.Filename != "plan.ifc" {
		t.Fatalf("model = %+v", resp.Model)
	}
	if resp.QuickStats.TotalElements != 7 {
		t.Fatalf("quick stats = %+v", resp.QuickStats)
	}
	if dispatcher.lastOpts.CallbackURL != "http://cb" || !dispatcher.lastOpts.SkipGeometry {
		t.Fatalf("opts = %+v", dispatcher.lastOpts)
	}
	if dispatcher.lastSource != "key.ifc" {
		t.Fatalf("source = %q, want stored key", dispatcher.lastSource)
	}
}

func TestUploadModelRequiresFile(t *testing.T) {
	handler := newTestRouter(nil, nil, nil, nil, nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/models", strings.NewReader("raw")))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestGetModel(t *testing.T) {
	handler := newTestRouter(nil, nil, nil, nil, nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/models/model-1", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var m domain.Model
	if err := json.Unmarshal(rec.Body.Bytes(), &m); err != nil {
		t.Fatal(err)
	}
	if m.ID != "model-1" {
		t.Fatalf("model = %+v", m)
	}
}

func TestGetModelNotFound(t *testing.T) {
	models := &stubModelReader{err: domain.WrapError(domain.ErrModelNotFound, "get model", errors.New("no rows"))}
	handler := newTestRouter(nil, nil, nil, nil, models)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/models/ghost", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestProcessModelFastAck(t *testing.T) {
	dispatcher := &stubDispatcher{stats: domain.QuickStats{Success: true}}
	handler := newTestRouter(nil, dispatcher, nil, nil, nil)

	body := strings.NewReader(`{"source":"other.ifc","skip_geometry":true}`)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/models/model-1/process", body))

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if dispatcher.lastSource != "other.ifc" || !dispatcher.lastOpts.SkipGeometry {
		t.Fatalf("dispatch = %q %+v", dispatcher.lastSource, dispatcher.lastOpts)
	}
}

func TestProcessModelDefaultsToStoredSource(t *testing.T) {
	dispatcher := &stubDispatcher{stats: domain.QuickStats{Success: true}}
	handler := newTestRouter(nil, dispatcher, nil, nil, nil)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/models/model-1/process", nil))

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d", rec.Code)
	}
	if dispatcher.lastSource != "key.ifc" {
		t.Fatalf("source = %q, want stored key", dispatcher.lastSource)
	}
}

func TestProcessModelConflict(t *testing.T) {
	dispatcher := &stubDispatcher{
		stats: domain.QuickStats{Success: true},
		err:   domain.WrapError(domain.ErrConflict, "schedule", errors.New("busy")),
	}
	handler := newTestRouter(nil, dispatcher, nil, nil, nil)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/models/model-1/process", nil))
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestProcessModelSync(t *testing.T) {
	syncProc := &stubSyncProcessor{result: domain.ProcessResult{Success: true, Status: domain.StatusReady, ElementCount: 5}}
	handler := newTestRouter(nil, nil, syncProc, nil, nil)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/models/model-1/process-sync", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var result domain.ProcessResult
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatal(err)
	}
	if !result.Success || result.ElementCount != 5 {
		t.Fatalf("result = %+v", result)
	}
}

func TestReprocessModel(t *testing.T) {
	handler := newTestRouter(nil, nil, nil, nil, nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/models/model-1/reprocess", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestReprocessInvalidReplacement(t *testing.T) {
	reproc := &stubReprocessor{err: domain.WrapError(domain.ErrInvalidInput, "validate", errors.New("truncated"))}
	handler := newTestRouter(nil, nil, nil, reproc, nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/models/model-1/reprocess", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestJobStatusLifecycle(t *testing.T) {
	dispatcher := &stubDispatcher{status: &domain.JobStatus{ModelID: "model-1", State: domain.JobCompleted}}
	handler := newTestRouter(nil, dispatcher, nil, nil, nil)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/models/model-1/status", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var status domain.JobStatus
	if err := json.Unmarshal(rec.Body.Bytes(), &status); err != nil {
		t.Fatal(err)
	}
	if status.State != domain.JobCompleted {
		t.Fatalf("state = %s", status.State)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/v1/models/model-1/status", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("delete status = %d", rec.Code)
	}
}

func TestGetReport(t *testing.T) {
	handler := newTestRouter(nil, nil, nil, nil, nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/reports/report-1", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var report domain.ProcessingReport
	if err := json.Unmarshal(rec.Body.Bytes(), &report); err != nil {
		t.Fatal(err)
	}
	if report.ID != "report-1" || report.Summary != domain.ReportSuccess {
		t.Fatalf("report = %+v", report)
	}
}

func TestGetReportNotFound(t *testing.T) {
	reports := &stubReportStore{err: domain.WrapError(domain.ErrModelNotFound, "get report", errors.New("no rows"))}
	ingest := &stubIngestor{model: &domain.Model{ID: "model-1"}}
	dispatcher := &stubDispatcher{}
	syncProc := &stubSyncProcessor{}
	reproc := &stubReprocessor{}
	models := &stubModelReader{model: &domain.Model{ID: "model-1"}}
	handler := NewRouter(config.Config{}, ingest, dispatcher, dispatcher, syncProc, reproc, models, reports).Handler()

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/reports/ghost", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestGetReportRejectsEmptyID(t *testing.T) {
	handler := newTestRouter(nil, nil, nil, nil, nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/reports/", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestUnknownSubresource(t *testing.T) {
	handler := newTestRouter(nil, nil, nil, nil, nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/models/model-1/bogus", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	handler := newTestRouter(nil, nil, nil, nil, nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/v1/models/model-1", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestRequestIDHeaderIsSet(t *testing.T) {
	handler := newTestRouter(nil, nil, nil, nil, nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Header().Get("X-Request-Id") == "" {
		t.Fatalf("request id header missing")
	}
}
