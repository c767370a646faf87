package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/starford/pagetree/internal/exportservice"
	"github.com/starford/pagetree/internal/partition"
)

// Handler holds API route handlers.
type Handler struct {
	svc *exportservice.Service
}

// NewHandler creates a new Handler.
func NewHandler(svc *exportservice.Service) *Handler {
	return &Handler{svc: svc}
}

// ListGroups handles GET /api/groups.
//
//	@Summary		List the groups of the latest export
//	@Tags			groups
//	@Produce		json
//	@Success		200	{object}	GroupListResponse
//	@Failure		503	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/groups [get]
func (h *Handler) ListGroups(w http.ResponseWriter, r *http.Request) {
	groups, err := h.svc.ListGroups(r.Context())
	if err != nil {
		writeServiceError(w, "list groups", err)
		return
	}
	writeJSON(w, http.StatusOK, GroupListResponse{Groups: groups})
}

// GetGroup handles GET /api/groups/{key}.
//
//	@Summary		Get a group and a page of its records in export order
//	@Tags			groups
//	@Produce		json
//	@Param			key		path		string	true	"Group key"
//	@Param			limit	query		int		false	"Page size"
//	@Param			offset	query		int		false	"Page offset"
//	@Success		200		{object}	GroupDetail
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/groups/{key} [get]
func (h *Handler) GetGroup(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))

	detail, err := h.svc.GetGroup(r.Context(), chi.URLParam(r, "key"), limit, offset)
	if err != nil {
		writeServiceError(w, "get group", err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

// GroupCSV handles GET /api/groups/{key}/csv.
//
//	@Summary		Download a group's CSV file
//	@Tags			groups
//	@Produce		text/csv
//	@Param			key	path	string	true	"Group key"
//	@Success		200
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/groups/{key}/csv [get]
func (h *Handler) GroupCSV(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	data, err := h.svc.GroupCSV(r.Context(), key)
	if err != nil {
		writeServiceError(w, "group csv", err)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+key+`.csv"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// Search handles GET /api/search.
//
//	@Summary		Search exported pages by title
//	@Tags			search
//	@Produce		json
//	@Param			q		query		string	true	"Search query"
//	@Param			limit	query		int		false	"Max results"
//	@Success		200		{object}	SearchResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/search [get]
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("query parameter 'q' is required"))
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	results, err := h.svc.Search(r.Context(), q, limit)
	if err != nil {
		writeServiceError(w, "search", err)
		return
	}
	writeJSON(w, http.StatusOK, SearchResponse{Results: results})
}

// Duplicates handles GET /api/duplicates.
//
//	@Summary		List pages exported into more than one group
//	@Tags			groups
//	@Produce		json
//	@Success		200	{object}	DuplicatesResponse
//	@Security		BearerAuth
//	@Router			/duplicates [get]
func (h *Handler) Duplicates(w http.ResponseWriter, r *http.Request) {
	dups, err := h.svc.Duplicates(r.Context())
	if err != nil {
		writeServiceError(w, "duplicates", err)
		return
	}
	writeJSON(w, http.StatusOK, DuplicatesResponse{Duplicates: dups})
}

// LatestRun handles GET /api/runs/latest.
func (h *Handler) LatestRun(w http.ResponseWriter, r *http.Request) {
	run, err := h.svc.LatestRun(r.Context())
	if err != nil {
		writeServiceError(w, "latest run", err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// Export handles POST /api/export.
//
//	@Summary		Re-export the input document
//	@Tags			export
//	@Accept			json
//	@Produce		json
//	@Param			body	body		ExportRequest	false	"Export options"
//	@Success		200		{object}	ExportResponse
//	@Failure		422		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/export [post]
func (h *Handler) Export(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<10)
	var req ExportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}

	// A client disconnect must not leave a half-written export behind.
	sum, err := h.svc.Export(context.WithoutCancel(r.Context()), req.Force)
	if sum == nil {
		if errors.Is(err, partition.ErrDuplicateGroupKey) {
			writeJSON(w, http.StatusUnprocessableEntity, errorBody(err.Error()))
			return
		}
		slog.Error("export failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("export failed"))
		return
	}

	resp := ExportResponse{Summary: *sum}
	if sum.Report != nil {
		resp.Groups = len(sum.Report.Groups)
		resp.Records = sum.Report.RecordCount()
	}
	if err != nil {
		resp.Error = err.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}
