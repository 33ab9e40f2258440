package forms

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	apperrors "inspection-gateway/internal/common/errors"
	"inspection-gateway/internal/common/logger"
	"inspection-gateway/internal/listing"
	"inspection-gateway/internal/pathupdate"
	"inspection-gateway/internal/proxy"
)

// OwnerHeader carries the user a new draft belongs to.
const OwnerHeader = "X-User-ID"

// Handler exposes the Service under /api/forms.
type Handler struct {
	service *Service
	errs    *apperrors.ErrorHandler
	maxBody int64
	logger  logger.Logger
}

func NewHandler(service *Service, errs *apperrors.ErrorHandler, maxBody int64, log logger.Logger) *Handler {
	if maxBody <= 0 {
		maxBody = 1 << 20
	}
	return &Handler{
		service: service,
		errs:    errs,
		maxBody: maxBody,
		logger:  log,
	}
}

// Register mounts the form endpoints on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/forms/templates/{id}", h.getTemplate)
	mux.HandleFunc("POST /api/forms/drafts", h.createDraft)
	mux.HandleFunc("GET /api/forms/drafts/{id}", h.getDraft)
	mux.HandleFunc("PATCH /api/forms/drafts/{id}", h.patchDraft)
	mux.HandleFunc("POST /api/forms/drafts/{id}/submit", h.submitDraft)
	mux.HandleFunc("POST /api/forms/patch", h.patch)
	mux.HandleFunc("GET /api/forms/submissions", h.searchSubmissions)
}

func (h *Handler) getTemplate(w http.ResponseWriter, r *http.Request) {
	tmpl, err := h.service.Template(r.Context(), r.PathValue("id"))
	if err != nil {
		h.errs.Write(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tmpl)
}

func (h *Handler) createDraft(w http.ResponseWriter, r *http.Request) {
	var req CreateDraftRequest
	if err := h.decode(w, r, &req); err != nil {
		h.errs.Write(w, r, err)
		return
	}
	d, err := h.service.CreateDraft(r.Context(), req.TemplateID, r.Header.Get(OwnerHeader))
	if err != nil {
		h.errs.Write(w, r, err)
		return
	}
	w.Header().Set("Location", "/api/forms/drafts/"+d.ID)
	writeJSON(w, http.StatusCreated, d)
}

func (h *Handler) getDraft(w http.ResponseWriter, r *http.Request) {
	d, err := h.service.GetDraft(r.Context(), r.PathValue("id"))
	if err != nil {
		h.errs.Write(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (h *Handler) patchDraft(w http.ResponseWriter, r *http.Request) {
	var req PatchDraftRequest
	if err := h.decode(w, r, &req); err != nil {
		h.errs.Write(w, r, err)
		return
	}
	if req.Version < 1 {
		h.errs.Write(w, r, apperrors.NewInvalidRequestError("version is required"))
		return
	}
	d, err := h.service.PatchDraft(r.Context(), r.PathValue("id"), req.Version, req.Changes)
	if err != nil {
		h.errs.Write(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (h *Handler) submitDraft(w http.ResponseWriter, r *http.Request) {
	header := proxy.OutboundHeader(r)
	header.Del("Content-Type")

	res, err := h.service.SubmitDraft(r.Context(), r.PathValue("id"), header)
	if err != nil {
		h.errs.Write(w, r, err)
		return
	}
	if !res.Accepted {
		proxy.WriteResponse(w, res.Backend)
		return
	}

	out := SubmitResponse{Draft: res.Draft, BackendStatus: res.Backend.StatusCode}
	var backend interface{}
	if len(res.Backend.Body) > 0 && json.Unmarshal(res.Backend.Body, &backend) == nil {
		out.Backend = backend
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) patch(w http.ResponseWriter, r *http.Request) {
	var req PatchRequest
	if err := h.decode(w, r, &req); err != nil {
		h.errs.Write(w, r, err)
		return
	}
	doc, err := h.service.Patch(req.Document, req.Changes)
	if err != nil {
		h.errs.Write(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, PatchResponse{Document: doc})
}

func (h *Handler) searchSubmissions(w http.ResponseWriter, r *http.Request) {
	q, err := listing.ParseQuery(r.URL.Query())
	if err != nil {
		h.errs.Write(w, r, apperrors.NewInvalidRequestError(err.Error()))
		return
	}
	res, err := h.service.SearchSubmissions(r.Context(), q.Search, q.Page, q.PageSize)
	if err != nil {
		h.errs.Write(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// decode reads a JSON body into v. Malformed paths are reported as
// INVALID_PATH, everything else as INVALID_REQUEST.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v interface{}) error {
	err := json.NewDecoder(http.MaxBytesReader(w, r.Body, h.maxBody)).Decode(v)
	if err == nil {
		return nil
	}
	log := logger.FromContext(r.Context(), h.logger).WithFields(map[string]interface{}{"component": "forms-http"})
	log.Debug("rejected request body", map[string]interface{}{
		"path":  r.URL.Path,
		"error": err.Error(),
	})
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		return apperrors.NewInvalidRequestError(fmt.Sprintf("request body exceeds %d bytes", h.maxBody))
	case errors.Is(err, io.EOF):
		return apperrors.NewInvalidRequestError("request body is required")
	case errors.Is(err, pathupdate.ErrInvalidPath), errors.Is(err, pathupdate.ErrEmptyPath):
		return apperrors.NewInvalidPathError(err)
	}
	return apperrors.NewInvalidRequestError(fmt.Sprintf("malformed JSON body: %v", err))
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
