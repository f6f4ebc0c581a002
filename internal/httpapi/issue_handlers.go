package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"issuedesk.org/internal/audit"
	"issuedesk.org/internal/auth"
	"issuedesk.org/internal/issue"
)

type createIssueRequest struct {
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Label       *string `json:"label"`
	AssignedTo  *string `json:"assigned_to"`
	Priority    *string `json:"priority"`
}

// updateIssueRequest keeps label and assigned_to raw so an explicit
// JSON null (clear the field) stays distinguishable from the field
// being absent (leave it alone).
type updateIssueRequest struct {
	Title       *string         `json:"title"`
	Description *string         `json:"description"`
	Status      *string         `json:"status"`
	Priority    *string         `json:"priority"`
	Label       json.RawMessage `json:"label"`
	AssignedTo  json.RawMessage `json:"assigned_to"`
}

type listIssuesResponse struct {
	Items []issue.View   `json:"items"`
	Meta  issue.PageMeta `json:"meta"`
}

type listAssigneesResponse struct {
	Items []issue.Participant `json:"items"`
}

func (a *API) handleIssuesCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		a.listIssues(w, r)
	case http.MethodPost:
		a.createIssue(w, r)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleIssueResource(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/v1/issues/")
	if path == "" || strings.Contains(path, "/") {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}

	switch path {
	case "assignees":
		if r.Method != http.MethodGet {
			methodNotAllowed(w, r, http.MethodGet)
			return
		}
		a.listAssignees(w, r)
		return
	case "stats":
		if r.Method != http.MethodGet {
			methodNotAllowed(w, r, http.MethodGet)
			return
		}
		a.issueStats(w, r)
		return
	}

	switch r.Method {
	case http.MethodGet:
		a.getIssue(w, r, path)
	case http.MethodPatch:
		a.updateIssue(w, r, path)
	case http.MethodDelete:
		a.deleteIssue(w, r, path)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPatch, http.MethodDelete)
	}
}

func (a *API) listIssues(w http.ResponseWriter, r *http.Request) {
	subjectID, ok := requireSubject(w, r)
	if !ok {
		return
	}

	f, err := filterFromQuery(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	items, meta, err := a.issues.List(r.Context(), subjectID, f)
	if err != nil {
		a.handleIssueError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, listIssuesResponse{Items: items, Meta: meta})
}

func (a *API) createIssue(w http.ResponseWriter, r *http.Request) {
	subjectID, ok := requireSubject(w, r)
	if !ok {
		return
	}

	var req createIssueRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	in := issue.CreateInput{
		Title:       req.Title,
		Description: req.Description,
		Label:       req.Label,
		AssignedTo:  req.AssignedTo,
	}
	if req.Priority != nil {
		p := issue.Priority(strings.ToUpper(strings.TrimSpace(*req.Priority)))
		in.Priority = &p
	}

	view, err := a.issues.Create(r.Context(), subjectID, in)
	if err != nil {
		a.handleIssueError(w, r, err)
		return
	}

	_ = audit.LogEvent(r.Context(), "issue.create", map[string]any{
		"issue_id": view.ID,
	})

	w.Header().Set("Location", "/api/v1/issues/"+view.ID)
	writeJSON(w, http.StatusCreated, view)
}

func (a *API) getIssue(w http.ResponseWriter, r *http.Request, id string) {
	subjectID, ok := requireSubject(w, r)
	if !ok {
		return
	}

	view, err := a.issues.Get(r.Context(), subjectID, id)
	if err != nil {
		a.handleIssueError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (a *API) updateIssue(w http.ResponseWriter, r *http.Request, id string) {
	subjectID, ok := requireSubject(w, r)
	if !ok {
		return
	}

	var req updateIssueRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	in := issue.UpdateInput{
		Title:       req.Title,
		Description: req.Description,
	}
	if req.Status != nil {
		st := issue.Status(strings.ToUpper(strings.TrimSpace(*req.Status)))
		in.Status = &st
	}
	if req.Priority != nil {
		p := issue.Priority(strings.ToUpper(strings.TrimSpace(*req.Priority)))
		in.Priority = &p
	}
	var err error
	if in.Label, in.LabelSet, err = optionalString(req.Label, "label"); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if in.AssignedTo, in.AssigneeSet, err = optionalString(req.AssignedTo, "assigned_to"); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	view, err := a.issues.Update(r.Context(), subjectID, id, in)
	if err != nil {
		a.handleIssueError(w, r, err)
		return
	}

	_ = audit.LogEvent(r.Context(), "issue.update", map[string]any{
		"issue_id": view.ID,
	})

	writeJSON(w, http.StatusOK, view)
}

func (a *API) deleteIssue(w http.ResponseWriter, r *http.Request, id string) {
	subjectID, ok := requireSubject(w, r)
	if !ok {
		return
	}

	if err := a.issues.Delete(r.Context(), subjectID, id); err != nil {
		a.handleIssueError(w, r, err)
		return
	}

	_ = audit.LogEvent(r.Context(), "issue.delete", map[string]any{
		"issue_id": id,
	})

	w.WriteHeader(http.StatusNoContent)
}

func (a *API) listAssignees(w http.ResponseWriter, r *http.Request) {
	subjectID, ok := requireSubject(w, r)
	if !ok {
		return
	}

	items, err := a.issues.Assignees(r.Context(), subjectID)
	if err != nil {
		a.handleIssueError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, listAssigneesResponse{Items: items})
}

func (a *API) issueStats(w http.ResponseWriter, r *http.Request) {
	subjectID, ok := requireSubject(w, r)
	if !ok {
		return
	}

	stats, err := a.issues.Stats(r.Context(), subjectID)
	if err != nil {
		a.handleIssueError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// handleIssueError maps issue-layer failures to HTTP statuses. A
// missing caller account means the credential no longer corresponds
// to a user, which is an authentication problem, not a 404.
func (a *API) handleIssueError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, issue.ErrInvalidInput):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, issue.ErrForbidden):
		writeError(w, r, http.StatusForbidden, "forbidden")
	case errors.Is(err, issue.ErrNotFound):
		writeError(w, r, http.StatusNotFound, "issue not found")
	case errors.Is(err, auth.ErrNotFound):
		writeError(w, r, http.StatusUnauthorized, "unauthorized")
	default:
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}

func filterFromQuery(r *http.Request) (issue.Filter, error) {
	q := r.URL.Query()
	f := issue.Filter{
		Status:   issue.Status(strings.ToUpper(strings.TrimSpace(q.Get("status")))),
		Priority: issue.Priority(strings.ToUpper(strings.TrimSpace(q.Get("priority")))),
		Label:    strings.TrimSpace(q.Get("label")),
		Query:    strings.TrimSpace(q.Get("q")),
		Sort:     strings.TrimSpace(q.Get("sort")),
	}

	var err error
	if f.Page, err = queryInt(q.Get("page"), "page"); err != nil {
		return issue.Filter{}, err
	}
	if f.Limit, err = queryInt(q.Get("limit"), "limit"); err != nil {
		return issue.Filter{}, err
	}
	return f, nil
}

func queryInt(raw, name string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	val, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errors.New(name + " must be an integer")
	}
	return val, nil
}

// optionalString decodes a raw JSON field that may be absent, null or
// a string.
func optionalString(raw json.RawMessage, name string) (*string, bool, error) {
	if len(raw) == 0 {
		return nil, false, nil
	}
	if string(raw) == "null" {
		return nil, true, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, false, errors.New(name + " must be a string or null")
	}
	return &s, true, nil
}
