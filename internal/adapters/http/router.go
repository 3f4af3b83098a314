package httpadapter

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/modelvault/model-ingest/internal/config"
	"github.com/modelvault/model-ingest/internal/core/domain"
	"github.com/modelvault/model-ingest/internal/core/ports"
)

type Router struct {
	cfg        config.Config
	ingest     ports.ModelIngestor
	dispatcher ports.ModelProcessor
	jobs       ports.JobReader
	syncProc   ports.SyncProcessor
	reproc     ports.Reprocessor
	models     ports.ModelReader
	reports    ports.ReportStore
}

func NewRouter(
	cfg config.Config,
	ingest ports.ModelIngestor,
	dispatcher ports.ModelProcessor,
	jobs ports.JobReader,
	syncProc ports.SyncProcessor,
	reproc ports.Reprocessor,
	models ports.ModelReader,
	reports ports.ReportStore,
) *Router {
	return &Router{
		cfg:        cfg,
		ingest:     ingest,
		dispatcher: dispatcher,
		jobs:       jobs,
		syncProc:   syncProc,
		reproc:     reproc,
		models:     models,
		reports:    reports,
	}
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", rt.healthz)
	mux.HandleFunc("/v1/models", rt.uploadModel)
	mux.HandleFunc("/v1/models/", rt.modelSubresource)
	mux.HandleFunc("/v1/reports/", rt.getReport)

	var handler http.Handler = mux
	handler = backpressureMiddleware(handler, rt.cfg.APIMaxConcurrent, rt.cfg.APIBackpressureWait)
	handler = rateLimitMiddleware(handler, rt.cfg.APIRateLimitRPS, rt.cfg.APIRateLimitBurst)
	handler = accessLogMiddleware(handler)
	handler = requestIDMiddleware(handler)
	return handler
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// uploadModel stores the file, creates the artifact row and answers with
// the fast-ack quick scan; the full pipeline finishes in background.
func (rt *Router) uploadModel(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	file, fileHeader, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "multipart field 'file' is required"})
		return
	}
	defer file.Close()

	model, err := rt.ingest.Upload(r.Context(), fileHeader.Filename, file)
	if err != nil {
		writeJSON(w, mapErrorToHTTPStatus(err), map[string]string{"error": err.Error()})
		return
	}

	opts := domain.ProcessOptions{
		SkipGeometry: r.FormValue("skip_geometry") == "true",
		CallbackURL:  r.FormValue("callback_url"),
	}
	stats, err := rt.dispatcher.Process(r.Context(), model.ID, model.SourcePath, opts)
	if err != nil {
		writeJSON(w, mapErrorToHTTPStatus(err), map[string]any{
			"model":       model,
			"quick_stats": stats,
			"error":       err.Error(),
		})
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"model":       model,
		"quick_stats": stats,
	})
}

func (rt *Router) modelSubresource(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/models/")
	if rest == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "model id is required"})
		return
	}

	id, action, _ := strings.Cut(rest, "/")
	switch action {
	case "":
		rt.getModel(w, r, id)
	case "process":
		rt.processModel(w, r, id)
	case "process-sync":
		rt.processModelSync(w, r, id)
	case "reprocess":
		rt.reprocessModel(w, r, id)
	case "status":
		rt.jobStatus(w, r, id)
	default:
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown resource"})
	}
}

func (rt *Router) getReport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/v1/reports/")
	if id == "" || strings.Contains(id, "/") {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "report id is required"})
		return
	}
	report, err := rt.reports.GetReportByID(r.Context(), id)
	if err != nil {
		writeJSON(w, mapErrorToHTTPStatus(err), map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (rt *Router) getModel(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	model, err := rt.models.GetByID(r.Context(), id)
	if err != nil {
		writeJSON(w, mapErrorToHTTPStatus(err), map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, model)
}

type processRequest struct {
	Source       string `json:"source"`
	SkipGeometry bool   `json:"skip_geometry"`
	CallbackURL  string `json:"callback_url"`
}

// resolveSource falls back to the stored upload when no explicit source is
// given.
func (rt *Router) resolveSource(r *http.Request, id string, req processRequest) (string, error) {
	if req.Source != "" {
		return req.Source, nil
	}
	model, err := rt.models.GetByID(r.Context(), id)
	if err != nil {
		return "", err
	}
	return model.SourcePath, nil
}

func decodeProcessRequest(r *http.Request) processRequest {
	var req processRequest
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}
	return req
}

func (rt *Router) processModel(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	req := decodeProcessRequest(r)
	source, err := rt.resolveSource(r, id, req)
	if err != nil {
		writeJSON(w, mapErrorToHTTPStatus(err), map[string]string{"error": err.Error()})
		return
	}

	stats, err := rt.dispatcher.Process(r.Context(), id, source, domain.ProcessOptions{
		SkipGeometry: req.SkipGeometry,
		CallbackURL:  req.CallbackURL,
	})
	if err != nil {
		writeJSON(w, mapErrorToHTTPStatus(err), stats)
		return
	}
	writeJSON(w, http.StatusAccepted, stats)
}

func (rt *Router) processModelSync(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	req := decodeProcessRequest(r)
	source, err := rt.resolveSource(r, id, req)
	if err != nil {
		writeJSON(w, mapErrorToHTTPStatus(err), map[string]string{"error": err.Error()})
		return
	}

	result := rt.syncProc.ProcessSync(r.Context(), id, source, domain.ProcessOptions{
		SkipGeometry: req.SkipGeometry,
		CallbackURL:  req.CallbackURL,
	})
	writeJSON(w, http.StatusOK, result)
}

func (rt *Router) reprocessModel(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	req := decodeProcessRequest(r)
	source, err := rt.resolveSource(r, id, req)
	if err != nil {
		writeJSON(w, mapErrorToHTTPStatus(err), map[string]string{"error": err.Error()})
		return
	}

	result, err := rt.reproc.Reprocess(r.Context(), id, source, domain.ProcessOptions{
		SkipGeometry: req.SkipGeometry,
		CallbackURL:  req.CallbackURL,
	})
	if err != nil {
		writeJSON(w, mapErrorToHTTPStatus(err), map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (rt *Router) jobStatus(w http.ResponseWriter, r *http.Request, id string) {
	switch r.Method {
	case http.MethodGet:
		status, err := rt.jobs.GetStatus(r.Context(), id)
		if err != nil {
			writeJSON(w, mapErrorToHTTPStatus(err), map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, status)
	case http.MethodDelete:
		if err := rt.jobs.ClearStatus(r.Context(), id); err != nil {
			writeJSON(w, mapErrorToHTTPStatus(err), map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
	default:
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
