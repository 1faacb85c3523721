package main

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/c3dc-labs/hubloader-go/internal/domain"
	"github.com/c3dc-labs/hubloader-go/internal/manifest"
	"github.com/c3dc-labs/hubloader-go/internal/platform/auth"
	"github.com/c3dc-labs/hubloader-go/internal/repo"
)

const manifestMaxBytes = 1 << 20

type registryAPI struct {
	logger *slog.Logger
	svc    *registryService
}

func newRegistryAPI(logger *slog.Logger, svc *registryService) *registryAPI {
	return &registryAPI{logger: logger, svc: svc}
}

func (api *registryAPI) register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/manifests/apply", api.handleApplyManifest)

	mux.HandleFunc("GET /api/v1/deployments", api.handleListDeployments)
	mux.HandleFunc("GET /api/v1/deployments/{deployment_id}", api.handleGetDeployment)
	mux.HandleFunc("POST /api/v1/deployments/{deployment_id}/runs", api.handleCreateRun)

	mux.HandleFunc("GET /api/v1/runs", api.handleListRuns)
	mux.HandleFunc("GET /api/v1/runs/{run_id}", api.handleGetRun)

	mux.HandleFunc("GET /api/v1/variables", api.handleListVariables)
	mux.HandleFunc("GET /api/v1/variables/{name}", api.handleGetVariable)
	mux.HandleFunc("PUT /api/v1/variables/{name}", api.handleSetVariable)
	mux.HandleFunc("DELETE /api/v1/variables/{name}", api.handleDeleteVariable)
}

type deploymentResponse struct {
	DeploymentID    string            `json:"deployment_id"`
	Name            string            `json:"name"`
	Version         string            `json:"version"`
	ManifestName    string            `json:"manifest_name"`
	PlatformVersion string            `json:"platform_version"`
	Tags            []string          `json:"tags,omitempty"`
	Description     string            `json:"description,omitempty"`
	ScheduleCron    string            `json:"schedule_cron,omitempty"`
	ScheduleTZ      string            `json:"schedule_timezone,omitempty"`
	FlowName        string            `json:"flow_name"`
	Entrypoint      string            `json:"entrypoint"`
	WorkPool        string            `json:"work_pool"`
	WorkQueue       string            `json:"work_queue"`
	Env             map[string]string `json:"env,omitempty"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
	CreatedBy       string            `json:"created_by,omitempty"`
}

type runResponse struct {
	RunID        string     `json:"run_id"`
	DeploymentID string     `json:"deployment_id"`
	WorkPool     string     `json:"work_pool"`
	WorkQueue    string     `json:"work_queue"`
	Status       string     `json:"status"`
	ScheduledAt  time.Time  `json:"scheduled_at"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	LogLocation  string     `json:"log_location,omitempty"`
	Failure      string     `json:"failure,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	CreatedBy    string     `json:"created_by,omitempty"`
}

type applyResponse struct {
	DeploymentID string `json:"deployment_id"`
	Name         string `json:"name"`
	Version      string `json:"version"`
	Created      bool   `json:"created"`
}

func (api *registryAPI) handleApplyManifest(w http.ResponseWriter, r *http.Request) {
	auditCtx, ok := api.auditContext(w, r)
	if !ok {
		return
	}

	raw, err := io.ReadAll(io.LimitReader(r.Body, manifestMaxBytes))
	if err != nil {
		api.writeError(w, r, http.StatusBadRequest, "unreadable_body")
		return
	}
	if len(raw) == 0 {
		api.writeError(w, r, http.StatusBadRequest, "empty_manifest")
		return
	}

	results, err := api.svc.ApplyManifest(r.Context(), raw, auditCtx)
	if err != nil {
		api.writeManifestError(w, r, err)
		return
	}

	out := make([]applyResponse, 0, len(results))
	for _, result := range results {
		out = append(out, applyResponse{
			DeploymentID: result.Record.ID,
			Name:         result.Record.Name,
			Version:      result.Record.Version,
			Created:      result.Created,
		})
	}
	api.writeJSON(w, http.StatusOK, map[string]any{"deployments": out})
}

func (api *registryAPI) handleListDeployments(w http.ResponseWriter, r *http.Request) {
	filter := repo.DeploymentFilter{
		Name:     strings.TrimSpace(r.URL.Query().Get("name")),
		WorkPool: strings.TrimSpace(r.URL.Query().Get("work_pool")),
		Tag:      strings.TrimSpace(r.URL.Query().Get("tag")),
		Limit:    queryLimit(r),
	}

	records, err := api.svc.ListDeployments(r.Context(), filter)
	if err != nil {
		api.logger.Error("list deployments failed", "error", err)
		api.writeError(w, r, http.StatusInternalServerError, "internal_error")
		return
	}

	out := make([]deploymentResponse, 0, len(records))
	for _, record := range records {
		out = append(out, toDeploymentResponse(record))
	}
	api.writeJSON(w, http.StatusOK, map[string]any{"deployments": out})
}

func (api *registryAPI) handleGetDeployment(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.PathValue("deployment_id"))
	if id == "" {
		api.writeError(w, r, http.StatusBadRequest, "deployment_id_required")
		return
	}

	record, err := api.svc.GetDeployment(r.Context(), id)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			api.writeError(w, r, http.StatusNotFound, "not_found")
			return
		}
		api.logger.Error("get deployment failed", "deployment_id", id, "error", err)
		api.writeError(w, r, http.StatusInternalServerError, "internal_error")
		return
	}
	api.writeJSON(w, http.StatusOK, toDeploymentResponse(record))
}

type createRunRequest struct {
	Parameters map[string]any `json:"parameters,omitempty"`
}

func (api *registryAPI) handleCreateRun(w http.ResponseWriter, r *http.Request) {
	auditCtx, ok := api.auditContext(w, r)
	if !ok {
		return
	}
	id := strings.TrimSpace(r.PathValue("deployment_id"))
	if id == "" {
		api.writeError(w, r, http.StatusBadRequest, "deployment_id_required")
		return
	}

	var req createRunRequest
	if err := decodeJSON(r, &req); err != nil {
		api.writeError(w, r, http.StatusBadRequest, "invalid_json")
		return
	}

	run, err := api.svc.CreateRun(r.Context(), id, req.Parameters, auditCtx)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			api.writeError(w, r, http.StatusNotFound, "not_found")
			return
		}
		if isParameterError(err) {
			api.writeErrorDetail(w, r, http.StatusUnprocessableEntity, "invalid_parameters", err.Error())
			return
		}
		api.logger.Error("create run failed", "deployment_id", id, "error", err)
		api.writeError(w, r, http.StatusInternalServerError, "internal_error")
		return
	}

	w.Header().Set("Location", "/api/v1/runs/"+run.ID)
	api.writeJSON(w, http.StatusCreated, toRunResponse(run))
}

func (api *registryAPI) handleListRuns(w http.ResponseWriter, r *http.Request) {
	filter := repo.FlowRunFilter{
		DeploymentID: strings.TrimSpace(r.URL.Query().Get("deployment_id")),
		Status:       domain.RunStatus(strings.TrimSpace(r.URL.Query().Get("status"))),
		Limit:        queryLimit(r),
	}

	runs, err := api.svc.ListRuns(r.Context(), filter)
	if err != nil {
		api.logger.Error("list runs failed", "error", err)
		api.writeError(w, r, http.StatusInternalServerError, "internal_error")
		return
	}

	out := make([]runResponse, 0, len(runs))
	for _, run := range runs {
		out = append(out, toRunResponse(run))
	}
	api.writeJSON(w, http.StatusOK, map[string]any{"runs": out})
}

func (api *registryAPI) handleGetRun(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.PathValue("run_id"))
	if id == "" {
		api.writeError(w, r, http.StatusBadRequest, "run_id_required")
		return
	}

	run, err := api.svc.GetRun(r.Context(), id)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			api.writeError(w, r, http.StatusNotFound, "not_found")
			return
		}
		api.logger.Error("get run failed", "run_id", id, "error", err)
		api.writeError(w, r, http.StatusInternalServerError, "internal_error")
		return
	}
	api.writeJSON(w, http.StatusOK, toRunResponse(run))
}

type setVariableRequest struct {
	Value string `json:"value"`
}

func (api *registryAPI) handleListVariables(w http.ResponseWriter, r *http.Request) {
	variables, err := api.svc.ListVariables(r.Context())
	if err != nil {
		api.logger.Error("list variables failed", "error", err)
		api.writeError(w, r, http.StatusInternalServerError, "internal_error")
		return
	}
	api.writeJSON(w, http.StatusOK, map[string]any{"variables": variables})
}

func (api *registryAPI) handleGetVariable(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimSpace(r.PathValue("name"))
	value, err := api.svc.GetVariable(r.Context(), name)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			api.writeError(w, r, http.StatusNotFound, "not_found")
			return
		}
		api.logger.Error("get variable failed", "name", name, "error", err)
		api.writeError(w, r, http.StatusInternalServerError, "internal_error")
		return
	}
	api.writeJSON(w, http.StatusOK, map[string]any{"name": name, "value": value})
}

func (api *registryAPI) handleSetVariable(w http.ResponseWriter, r *http.Request) {
	auditCtx, ok := api.auditContext(w, r)
	if !ok {
		return
	}
	name := strings.TrimSpace(r.PathValue("name"))
	if name == "" {
		api.writeError(w, r, http.StatusBadRequest, "name_required")
		return
	}

	var req setVariableRequest
	if err := decodeJSON(r, &req); err != nil {
		api.writeError(w, r, http.StatusBadRequest, "invalid_json")
		return
	}

	if err := api.svc.SetVariable(r.Context(), name, req.Value, auditCtx); err != nil {
		api.logger.Error("set variable failed", "name", name, "error", err)
		api.writeError(w, r, http.StatusInternalServerError, "internal_error")
		return
	}
	api.writeJSON(w, http.StatusOK, map[string]any{"name": name, "value": req.Value})
}

func (api *registryAPI) handleDeleteVariable(w http.ResponseWriter, r *http.Request) {
	auditCtx, ok := api.auditContext(w, r)
	if !ok {
		return
	}
	name := strings.TrimSpace(r.PathValue("name"))

	if err := api.svc.DeleteVariable(r.Context(), name, auditCtx); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			api.writeError(w, r, http.StatusNotFound, "not_found")
			return
		}
		api.logger.Error("delete variable failed", "name", name, "error", err)
		api.writeError(w, r, http.StatusInternalServerError, "internal_error")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (api *registryAPI) auditContext(w http.ResponseWriter, r *http.Request) (auditContext, bool) {
	identity, ok := auth.IdentityFromContext(r.Context())
	actor := strings.TrimSpace(identity.Subject)
	if !ok || actor == "" {
		actor = "anonymous"
	}
	return auditContext{
		Actor:     actor,
		RequestID: r.Header.Get("X-Request-Id"),
	}, true
}

func (api *registryAPI) writeManifestError(w http.ResponseWriter, r *http.Request, err error) {
	var validationErr *manifest.ValidationError
	if errors.As(err, &validationErr) {
		api.writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"error":      "invalid_manifest",
			"issues":     validationErr.Issues,
			"request_id": r.Header.Get("X-Request-Id"),
		})
		return
	}
	api.writeErrorDetail(w, r, http.StatusUnprocessableEntity, "invalid_manifest", err.Error())
}

func toDeploymentResponse(record repo.DeploymentRecord) deploymentResponse {
	dep := record.Deployment
	return deploymentResponse{
		DeploymentID:    record.ID,
		Name:            record.Name,
		Version:         record.Version,
		ManifestName:    record.ManifestName,
		PlatformVersion: record.PlatformVersion,
		Tags:            dep.Tags,
		Description:     dep.Description,
		ScheduleCron:    dep.Schedule.Cron,
		ScheduleTZ:      dep.Schedule.Timezone,
		FlowName:        dep.FlowName,
		Entrypoint:      dep.Entrypoint.String(),
		WorkPool:        dep.WorkPool.Name,
		WorkQueue:       dep.WorkPool.WorkQueue,
		Env:             dep.WorkPool.Env,
		CreatedAt:       record.CreatedAt,
		UpdatedAt:       record.UpdatedAt,
		CreatedBy:       record.CreatedBy,
	}
}

func toRunResponse(run domain.FlowRun) runResponse {
	return runResponse{
		RunID:        run.ID,
		DeploymentID: run.DeploymentID,
		WorkPool:     run.WorkPool,
		WorkQueue:    run.WorkQueue,
		Status:       string(run.Status),
		ScheduledAt:  run.ScheduledAt,
		StartedAt:    run.StartedAt,
		CompletedAt:  run.CompletedAt,
		LogLocation:  run.LogLocation,
		Failure:      run.Failure,
		CreatedAt:    run.CreatedAt,
		CreatedBy:    run.CreatedBy,
	}
}

func isParameterError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "parameter") ||
		strings.Contains(msg, "mode must be one of") ||
		strings.Contains(msg, "secret_name is required")
}

func queryLimit(r *http.Request) int {
	raw := strings.TrimSpace(r.URL.Query().Get("limit"))
	if raw == "" {
		return 0
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 0 {
		return 0
	}
	return limit
}

func decodeJSON(r *http.Request, dst any) error {
	if r.Body == nil {
		return nil
	}
	decoder := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return err
	}
	return nil
}

func (api *registryAPI) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(true)
	_ = enc.Encode(body)
}

func (api *registryAPI) writeError(w http.ResponseWriter, r *http.Request, status int, code string) {
	api.writeJSON(w, status, map[string]any{
		"error":      code,
		"request_id": r.Header.Get("X-Request-Id"),
	})
}

func (api *registryAPI) writeErrorDetail(w http.ResponseWriter, r *http.Request, status int, code, detail string) {
	api.writeJSON(w, status, map[string]any{
		"error":      code,
		"detail":     detail,
		"request_id": r.Header.Get("X-Request-Id"),
	})
}
