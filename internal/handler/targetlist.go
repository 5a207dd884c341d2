package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	apperrors "github.com/Luckybob666/wa-bot-sub000/internal/errors"
	"github.com/Luckybob666/wa-bot-sub000/internal/service"
)

type TargetListHandler struct {
	targetLists *service.TargetListService
}

func NewTargetListHandler(targetLists *service.TargetListService) *TargetListHandler {
	return &TargetListHandler{targetLists: targetLists}
}

func (h *TargetListHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/", h.Create)
	r.Get("/{listID}", h.Get)

	return r
}

// GroupRoutes covers the per-group binding and comparison surface.
func (h *TargetListHandler) GroupRoutes() chi.Router {
	r := chi.NewRouter()

	r.Post("/{groupID}/target-list", h.Bind)
	r.Get("/{groupID}/comparison", h.Comparison)

	return r
}

type createTargetListRequest struct {
	Name   string   `json:"name"`
	Phones []string `json:"phones"`
}

// POST /v1/target-lists
func (h *TargetListHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createTargetListRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	list, err := h.targetLists.Create(r.Context(), req.Name, req.Phones)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, list)
}

// GET /v1/target-lists/{listID}
func (h *TargetListHandler) Get(w http.ResponseWriter, r *http.Request) {
	listID, err := strconv.ParseInt(chi.URLParam(r, "listID"), 10, 64)
	if err != nil || listID <= 0 {
		writeError(w, apperrors.InvalidInput("listID", "must be a positive integer"))
		return
	}

	list, err := h.targetLists.Get(r.Context(), listID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, list)
}

type bindRequest struct {
	TargetListID *int64 `json:"targetListId"`
}

// POST /v1/groups/{groupID}/target-list
func (h *TargetListHandler) Bind(w http.ResponseWriter, r *http.Request) {
	groupID, err := groupIDParam(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var req bindRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	group, err := h.targetLists.Bind(r.Context(), groupID, req.TargetListID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, group)
}

// GET /v1/groups/{groupID}/comparison
func (h *TargetListHandler) Comparison(w http.ResponseWriter, r *http.Request) {
	groupID, err := groupIDParam(r)
	if err != nil {
		writeError(w, err)
		return
	}

	result, err := h.targetLists.Comparison(r.Context(), groupID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func groupIDParam(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "groupID"), 10, 64)
	if err != nil || id <= 0 {
		return 0, apperrors.InvalidInput("groupID", "must be a positive integer")
	}
	return id, nil
}
