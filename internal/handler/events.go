package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	apperrors "github.com/Luckybob666/wa-bot-sub000/internal/errors"
	"github.com/Luckybob666/wa-bot-sub000/internal/repository"
	"github.com/Luckybob666/wa-bot-sub000/internal/sse"
)

const recentEventLimit = 50

// EventsHandler streams one bot's status and credential pushes over SSE.
// On connect it replays the most recent persisted events so a reconnecting
// watcher does not start blind.
type EventsHandler struct {
	broker    *sse.Broker
	eventRepo repository.EventRepository
}

func NewEventsHandler(broker *sse.Broker, eventRepo repository.EventRepository) *EventsHandler {
	return &EventsHandler{broker: broker, eventRepo: eventRepo}
}

// GET /v1/bots/{botID}/events
func (h *EventsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	botID, err := strconv.ParseInt(chi.URLParam(r, "botID"), 10, 64)
	if err != nil || botID <= 0 {
		writeError(w, apperrors.InvalidInput("botID", "must be a positive integer"))
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, apperrors.Internal("Streaming not supported"))
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	client := h.broker.Subscribe(botID)
	defer h.broker.Unsubscribe(client)

	log.Info().Int64("botId", botID).Msg("sse connection established")

	ctx := r.Context()

	if err := h.sendRecentEvents(w, flusher, r, botID); err != nil {
		log.Error().Err(err).Int64("botId", botID).Msg("failed to replay recent events")
	}

	heartbeat := time.NewTicker(sse.HeartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Int64("botId", botID).Msg("sse connection closed by client")
			return

		case <-client.Done:
			log.Info().Int64("botId", botID).Msg("sse connection closed by broker")
			return

		case event := <-client.Events:
			if err := h.sendEvent(w, flusher, event); err != nil {
				log.Error().Err(err).Msg("failed to send event")
				return
			}

		case <-heartbeat.C:
			if _, err := fmt.Fprintf(w, ": ping\n\n"); err != nil {
				log.Debug().Int64("botId", botID).Msg("heartbeat failed, closing connection")
				return
			}
			flusher.Flush()
		}
	}
}

func (h *EventsHandler) sendRecentEvents(w http.ResponseWriter, flusher http.Flusher, r *http.Request, botID int64) error {
	events, err := h.eventRepo.RecentByBot(r.Context(), botID, recentEventLimit)
	if err != nil {
		return err
	}

	// Oldest first so the client sees them in order.
	for i := len(events) - 1; i >= 0; i-- {
		data, err := json.Marshal(events[i])
		if err != nil {
			return err
		}
		if err := h.sendEvent(w, flusher, sse.Event{Type: "history", Data: data}); err != nil {
			return err
		}
	}
	return nil
}

func (h *EventsHandler) sendEvent(w http.ResponseWriter, flusher http.Flusher, event sse.Event) error {
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Type, event.Data); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}
