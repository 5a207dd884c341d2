package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	apperrors "github.com/Luckybob666/wa-bot-sub000/internal/errors"
	"github.com/Luckybob666/wa-bot-sub000/internal/model"
	"github.com/Luckybob666/wa-bot-sub000/internal/service"
)

type BotHandler struct {
	manager *service.Manager
}

func NewBotHandler(manager *service.Manager) *BotHandler {
	return &BotHandler{manager: manager}
}

func (h *BotHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/{botID}/start", h.Start)
	r.Post("/{botID}/stop", h.Stop)
	r.Get("/{botID}/status", h.Status)
	r.Delete("/{botID}", h.Delete)
	r.Post("/{botID}/sync-groups", h.SyncGroups)
	r.Post("/{botID}/groups/{groupID}/sync-members", h.SyncGroupMembers)

	return r
}

func botIDParam(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "botID"), 10, 64)
	if err != nil || id <= 0 {
		return 0, apperrors.InvalidInput("botID", "must be a positive integer")
	}
	return id, nil
}

type startRequest struct {
	Mode        model.BotMode `json:"mode"`
	PhoneNumber string        `json:"phoneNumber"`
}

// POST /v1/bots/{botID}/start
func (h *BotHandler) Start(w http.ResponseWriter, r *http.Request) {
	botID, err := botIDParam(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var req startRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	if err := h.manager.Start(r.Context(), botID, req.Mode, req.PhoneNumber); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{"botId": botID, "accepted": true})
}

type stopRequest struct {
	PurgeCredentials bool `json:"purgeCredentials"`
}

// POST /v1/bots/{botID}/stop
func (h *BotHandler) Stop(w http.ResponseWriter, r *http.Request) {
	botID, err := botIDParam(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var req stopRequest
	if r.ContentLength > 0 {
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, err)
			return
		}
	}

	if err := h.manager.Stop(r.Context(), botID, req.PurgeCredentials); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{"botId": botID, "accepted": true})
}

// GET /v1/bots/{botID}/status
func (h *BotHandler) Status(w http.ResponseWriter, r *http.Request) {
	botID, err := botIDParam(r)
	if err != nil {
		writeError(w, err)
		return
	}

	status, err := h.manager.Status(r.Context(), botID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, status)
}

// DELETE /v1/bots/{botID}
//
// Upstream identity deletion: retires the id, tears the session down and
// purges credentials.
func (h *BotHandler) Delete(w http.ResponseWriter, r *http.Request) {
	botID, err := botIDParam(r)
	if err != nil {
		writeError(w, err)
		return
	}

	if err := h.manager.NotifyDeleted(r.Context(), botID); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{"botId": botID, "retired": true})
}

// POST /v1/bots/{botID}/sync-groups
func (h *BotHandler) SyncGroups(w http.ResponseWriter, r *http.Request) {
	botID, err := botIDParam(r)
	if err != nil {
		writeError(w, err)
		return
	}

	counts, err := h.manager.SyncGroups(r.Context(), botID)
	if err != nil {
		writeError(w, err)
		return
	}

	log.Info().Int64("botId", botID).Interface("counts", counts).Msg("group sync completed")
	writeJSON(w, http.StatusOK, counts)
}

// POST /v1/bots/{botID}/groups/{groupID}/sync-members
func (h *BotHandler) SyncGroupMembers(w http.ResponseWriter, r *http.Request) {
	botID, err := botIDParam(r)
	if err != nil {
		writeError(w, err)
		return
	}
	groupID, err := strconv.ParseInt(chi.URLParam(r, "groupID"), 10, 64)
	if err != nil || groupID <= 0 {
		writeError(w, apperrors.InvalidInput("groupID", "must be a positive integer"))
		return
	}

	counts, err := h.manager.SyncGroupMembers(r.Context(), botID, groupID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, counts)
}
