package controllers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/iota-uz/taskimport/modules/taskimport/domain/entities/candidate"
	"github.com/iota-uz/taskimport/modules/taskimport/domain/entities/report"
	"github.com/iota-uz/taskimport/modules/taskimport/presentation/controllers/dtos"
	"github.com/iota-uz/taskimport/modules/taskimport/services"
	"github.com/iota-uz/taskimport/pkg/application"
	"github.com/iota-uz/taskimport/pkg/composables"
	"github.com/iota-uz/taskimport/pkg/httpapi"
	"github.com/iota-uz/taskimport/pkg/tabular"
)

type TaskImportAPIControllerOptions struct {
	BasePath       string
	MaxBodyBytes   int64
	MaxUploadBytes int64
	MaxRows        int
	// Middleware wraps every import route, e.g. rate limiting.
	Middleware []mux.MiddlewareFunc
}

type TaskImportAPIController struct {
	app     application.Application
	imports *services.ImportService
	opts    TaskImportAPIControllerOptions
}

func NewTaskImportAPIController(app application.Application, opts TaskImportAPIControllerOptions) application.Controller {
	if opts.BasePath == "" {
		opts.BasePath = "/api/v1/task-csv-import"
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = 32 << 20
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = opts.MaxBodyBytes
	}
	return &TaskImportAPIController{
		app:     app,
		imports: app.Service(services.ImportService{}).(*services.ImportService),
		opts:    opts,
	}
}

func (c *TaskImportAPIController) Key() string {
	return c.opts.BasePath
}

func (c *TaskImportAPIController) Register(r *mux.Router) {
	api := r.PathPrefix(c.opts.BasePath).Subrouter()
	api.Use(c.opts.Middleware...)

	api.HandleFunc("/{projectId}/template", c.GetTemplate).Methods(http.MethodGet)
	api.HandleFunc("/{projectId}/validate", c.Validate).Methods(http.MethodPost)
	api.HandleFunc("/{projectId}/tasks", c.Import).Methods(http.MethodPost)
	api.HandleFunc("/{projectId}/suggest", c.Suggest).Methods(http.MethodPost)
	api.HandleFunc("/{projectId}/parse", c.Parse).Methods(http.MethodPost)
}

func (c *TaskImportAPIController) GetTemplate(w http.ResponseWriter, r *http.Request) {
	requestID := requestIDFrom(r)
	projectID, ok := projectIDFrom(w, r, requestID)
	if !ok {
		return
	}

	tpl, err := c.imports.Template(r.Context(), projectID)
	if err != nil {
		writeServiceError(w, r, requestID, err)
		return
	}

	resp := dtos.TemplateResponse{
		ProjectName:    tpl.ProjectName,
		Statuses:       make([]dtos.StatusResponse, 0, len(tpl.Statuses)),
		Priorities:     make([]dtos.PriorityResponse, 0, len(tpl.Priorities)),
		TeamMembers:    make([]dtos.MemberResponse, 0, len(tpl.TeamMembers)),
		RequiredFields: tpl.RequiredFields,
		OptionalFields: tpl.OptionalFields,
	}
	for _, s := range tpl.Statuses {
		resp.Statuses = append(resp.Statuses, dtos.StatusResponse{ID: s.ID, Name: s.Name, Category: s.Category, SortOrder: s.SortOrder, IsDone: s.IsDone})
	}
	for _, p := range tpl.Priorities {
		resp.Priorities = append(resp.Priorities, dtos.PriorityResponse{ID: p.ID, Name: p.Name, Value: p.Value, Color: p.Color})
	}
	for _, m := range tpl.TeamMembers {
		resp.TeamMembers = append(resp.TeamMembers, dtos.MemberResponse{TeamMemberID: m.TeamMemberID, UserID: m.UserID, Name: m.Name, Email: m.Email})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (c *TaskImportAPIController) Validate(w http.ResponseWriter, r *http.Request) {
	requestID := requestIDFrom(r)
	req, ok := c.decodeImportRequest(w, r, requestID)
	if !ok {
		return
	}

	validation, err := c.imports.Validate(r.Context(), req)
	if err != nil {
		writeServiceError(w, r, requestID, err)
		return
	}
	writeJSON(w, http.StatusOK, validation)
}

func (c *TaskImportAPIController) Import(w http.ResponseWriter, r *http.Request) {
	requestID := requestIDFrom(r)
	req, ok := c.decodeImportRequest(w, r, requestID)
	if !ok {
		return
	}

	rep, err := c.imports.Import(r.Context(), req)
	if err != nil {
		writeServiceError(w, r, requestID, err)
		return
	}

	writeJSON(w, http.StatusCreated, dtos.ImportResponse{
		Message:            rep.Message(),
		ImportedCount:      rep.ImportedCount(),
		InsertedTaskIDs:    rep.InsertedTaskIDs(),
		ValidationWarnings: nonNilIssues(rep.Warnings()),
		ImportErrors:       nonNilIssues(rep.Errors()),
		ProjectName:        rep.ProjectName(),
	})
}

func (c *TaskImportAPIController) Suggest(w http.ResponseWriter, r *http.Request) {
	requestID := requestIDFrom(r)
	projectID, ok := projectIDFrom(w, r, requestID)
	if !ok || !requireActor(w, r, requestID) {
		return
	}

	var body dtos.SuggestRequest
	if !decodeBody(w, r, requestID, c.opts.MaxBodyBytes, &body) {
		return
	}
	if errs, ok := dtos.Ok(body); !ok {
		writeAPIError(w, http.StatusBadRequest, requestID, "IMPORT_INVALID_REQUEST", joinFieldErrors(errs))
		return
	}

	set, err := c.imports.Suggest(r.Context(), projectID, body.Headers, toRawRows(body.Rows))
	if err != nil {
		writeServiceError(w, r, requestID, err)
		return
	}
	writeJSON(w, http.StatusOK, set)
}

func (c *TaskImportAPIController) Parse(w http.ResponseWriter, r *http.Request) {
	requestID := requestIDFrom(r)
	if _, ok := projectIDFrom(w, r, requestID); !ok {
		return
	}
	if !requireActor(w, r, requestID) {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, c.opts.MaxUploadBytes)
	if err := r.ParseMultipartForm(c.opts.MaxUploadBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeAPIError(w, http.StatusRequestEntityTooLarge, requestID, "IMPORT_FILE_TOO_LARGE", "uploaded file is too large")
			return
		}
		writeAPIError(w, http.StatusBadRequest, requestID, "IMPORT_INVALID_UPLOAD", "multipart form with a file field is required")
		return
	}
	file, _, err := r.FormFile("file")
	if err != nil {
		writeAPIError(w, http.StatusBadRequest, requestID, "IMPORT_INVALID_UPLOAD", "file field is required")
		return
	}
	defer file.Close()

	table, err := tabular.Parse(file, tabular.Options{MaxRows: c.opts.MaxRows})
	switch {
	case err == nil:
	case errors.Is(err, tabular.ErrUnsupportedFormat):
		writeAPIError(w, http.StatusUnsupportedMediaType, requestID, "IMPORT_UNSUPPORTED_FORMAT", "only CSV and XLSX files are supported")
		return
	case errors.Is(err, tabular.ErrTooManyRows):
		writeAPIError(w, http.StatusRequestEntityTooLarge, requestID, "IMPORT_TOO_MANY_ROWS", err.Error())
		return
	default:
		writeAPIError(w, http.StatusBadRequest, requestID, "IMPORT_INVALID_FILE", err.Error())
		return
	}

	rows := make([]map[string]string, 0, len(table.Rows))
	for _, row := range table.Rows {
		rows = append(rows, row)
	}
	writeJSON(w, http.StatusOK, dtos.ParseResponse{
		Format:   string(table.Format),
		Headers:  table.Headers,
		Rows:     rows,
		RowCount: len(rows),
	})
}

func (c *TaskImportAPIController) decodeImportRequest(w http.ResponseWriter, r *http.Request, requestID string) (services.Request, bool) {
	projectID, ok := projectIDFrom(w, r, requestID)
	if !ok || !requireActor(w, r, requestID) {
		return services.Request{}, false
	}
	var body dtos.ImportRequest
	if !decodeBody(w, r, requestID, c.opts.MaxBodyBytes, &body) {
		return services.Request{}, false
	}
	if errs, ok := dtos.Ok(body); !ok {
		writeAPIError(w, http.StatusBadRequest, requestID, "IMPORT_ROWS_REQUIRED", joinFieldErrors(errs))
		return services.Request{}, false
	}
	return services.Request{
		ProjectID: projectID,
		Rows:      toRawRows(body.Rows),
		Mappings:  body.Set,
	}, true
}

func decodeBody(w http.ResponseWriter, r *http.Request, requestID string, maxBytes int64, dst any) bool {
	err := httpapi.DecodeJSON(r, maxBytes, dst)
	switch {
	case err == nil:
		return true
	case errors.Is(err, httpapi.ErrBodyTooLarge):
		writeAPIError(w, http.StatusRequestEntityTooLarge, requestID, "IMPORT_BODY_TOO_LARGE", "request body is too large")
	case errors.Is(err, io.EOF):
		writeAPIError(w, http.StatusBadRequest, requestID, "IMPORT_INVALID_REQUEST", "request body is required")
	default:
		writeAPIError(w, http.StatusBadRequest, requestID, "IMPORT_INVALID_REQUEST", "request body is not valid JSON")
	}
	return false
}

func projectIDFrom(w http.ResponseWriter, r *http.Request, requestID string) (uuid.UUID, bool) {
	raw := strings.TrimSpace(mux.Vars(r)["projectId"])
	id, err := uuid.Parse(raw)
	if err != nil || id == uuid.Nil {
		writeAPIError(w, http.StatusBadRequest, requestID, "IMPORT_PROJECT_REQUIRED", "Project ID is required")
		return uuid.Nil, false
	}
	return id, true
}

// requireActor rejects the request before its body is read.
func requireActor(w http.ResponseWriter, r *http.Request, requestID string) bool {
	if _, err := composables.UseActor(r.Context()); err != nil {
		writeAPIError(w, http.StatusUnauthorized, requestID, "IMPORT_UNAUTHENTICATED", "authentication required")
		return false
	}
	return true
}

func requestIDFrom(r *http.Request) string {
	id, _ := composables.UseRequestID(r.Context())
	return id
}

func toRawRows(in []map[string]string) []candidate.RawRow {
	out := make([]candidate.RawRow, 0, len(in))
	for _, row := range in {
		out = append(out, candidate.RawRow(row))
	}
	return out
}

func nonNilIssues(in []report.Issue) []report.Issue {
	if in == nil {
		return []report.Issue{}
	}
	return in
}

func joinFieldErrors(errs map[string]string) string {
	parts := make([]string, 0, len(errs))
	for field, msg := range errs {
		parts = append(parts, field+" "+msg)
	}
	sort.Strings(parts)
	return strings.Join(parts, "; ")
}

func writeServiceError(w http.ResponseWriter, r *http.Request, requestID string, err error) {
	var valErr *services.ValidationFailedError
	if errors.As(err, &valErr) {
		writeJSON(w, http.StatusBadRequest, dtos.ValidationFailedResponse{
			Code:     "IMPORT_VALIDATION_FAILED",
			Message:  "CSV data validation failed",
			Errors:   nonNilIssues(valErr.Validation.Errors),
			Warnings: nonNilIssues(valErr.Validation.Warnings),
			Meta:     requestMeta(requestID),
		})
		return
	}

	var svcErr *services.ServiceError
	if errors.As(err, &svcErr) {
		if svcErr.Status >= http.StatusInternalServerError {
			composables.UseLogger(r.Context()).WithError(err).WithField("code", svcErr.Code).Error("task import request failed")
		}
		writeAPIError(w, svcErr.Status, requestID, svcErr.Code, svcErr.Message)
		return
	}
	composables.UseLogger(r.Context()).WithFields(logrus.Fields{"error": err.Error()}).Error("task import request failed")
	writeAPIError(w, http.StatusInternalServerError, requestID, "IMPORT_INTERNAL", "internal error")
}

func writeAPIError(w http.ResponseWriter, status int, requestID, code, message string) {
	_ = httpapi.WriteError(w, status, code, message, requestMeta(requestID))
}

func requestMeta(requestID string) map[string]string {
	meta := map[string]string{}
	if requestID != "" {
		meta["request_id"] = requestID
	}
	return meta
}

func writeJSON[T any](w http.ResponseWriter, status int, payload T) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
