package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"chat-playback-engine/pkg/models"
	"chat-playback-engine/pkg/playback"
	"chat-playback-engine/pkg/service"
)

const defaultEventsLimit = 50

type Handler struct {
	service *service.Service
	logger  *logrus.Logger
}

func NewHandler(service *service.Service, logger *logrus.Logger) *Handler {
	return &Handler{
		service: service,
		logger:  logger,
	}
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func (h *Handler) host(w http.ResponseWriter, r *http.Request) (*playback.Host, bool) {
	slot := mux.Vars(r)["slot"]
	host, ok := h.service.Host(slot)
	if !ok {
		http.Error(w, "Unknown slot", http.StatusNotFound)
		return nil, false
	}
	return host, true
}

func (h *Handler) Activate(w http.ResponseWriter, r *http.Request) {
	host, ok := h.host(w, r)
	if !ok {
		return
	}

	var request struct {
		ScenarioIndex *int `json:"scenario_index"`
	}
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil || request.ScenarioIndex == nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	playing := host.Activate(*request.ScenarioIndex)

	response := map[string]interface{}{
		"success":     true,
		"no_scenario": !playing,
		"state":       host.State(),
	}
	writeJSON(w, http.StatusOK, response)

	h.logger.WithFields(logrus.Fields{
		"slot":           host.Slot(),
		"scenario_index": *request.ScenarioIndex,
		"playing":        playing,
	}).Debug("Activated slot")
}

func (h *Handler) Deactivate(w http.ResponseWriter, r *http.Request) {
	host, ok := h.host(w, r)
	if !ok {
		return
	}

	host.Deactivate()

	response := map[string]interface{}{
		"success": true,
		"state":   host.State(),
	}
	writeJSON(w, http.StatusOK, response)

	h.logger.WithField("slot", host.Slot()).Debug("Deactivated slot")
}

func (h *Handler) Snapshot(w http.ResponseWriter, r *http.Request) {
	host, ok := h.host(w, r)
	if !ok {
		return
	}

	snap, playing := host.Snapshot()
	response := map[string]interface{}{
		"slot":        host.Slot(),
		"no_scenario": !playing,
	}
	if playing {
		response["snapshot"] = snap
	}
	writeJSON(w, http.StatusOK, response)
}

type scenarioSummary struct {
	Index       int           `json:"index"`
	ID          int           `json:"id"`
	Name        string        `json:"name"`
	PointOfView string        `json:"pov"`
	Thread      models.Thread `json:"thread"`
	Turns       int           `json:"turns"`
}

func (h *Handler) Scenarios(w http.ResponseWriter, r *http.Request) {
	all := h.service.Catalog().All()
	summaries := make([]scenarioSummary, len(all))
	for i, sc := range all {
		summaries[i] = scenarioSummary{
			Index:       i,
			ID:          sc.ID,
			Name:        sc.Name,
			PointOfView: sc.PointOfView,
			Thread:      sc.Thread,
			Turns:       len(sc.Turns),
		}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"scenarios": summaries})
}

func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.Store().Stats(r.Context())
	if err != nil {
		h.logger.WithError(err).Error("Failed to read playback stats")
		http.Error(w, "Failed to get stats", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *Handler) Events(w http.ResponseWriter, r *http.Request) {
	limit := int64(defaultEventsLimit)
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || parsed < 1 {
			http.Error(w, "Invalid limit", http.StatusBadRequest)
			return
		}
		limit = parsed
	}

	events, err := h.service.Store().Recent(r.Context(), limit)
	if err != nil {
		h.logger.WithError(err).Error("Failed to read playback events")
		http.Error(w, "Failed to get events", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"events": events})
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Ping(r.Context()); err != nil {
		h.logger.WithError(err).Warn("Health check failed")
		http.Error(w, "Health check failed", http.StatusServiceUnavailable)
		return
	}

	response := map[string]interface{}{
		"status":      "healthy",
		"instance_id": h.service.Config().InstanceID,
		"redis":       h.service.Config().RedisEnabled(),
		"timestamp":   time.Now(),
	}
	writeJSON(w, http.StatusOK, response)
}

func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	hosts := h.service.Hosts()
	slots := make([]playback.HostState, len(hosts))
	for i, host := range hosts {
		slots[i] = host.State()
	}

	response := map[string]interface{}{
		"instance_id":    h.service.Config().InstanceID,
		"slots":          slots,
		"scenarios":      h.service.Catalog().Len(),
		"dropped_events": h.service.DroppedEvents(),
		"timestamp":      time.Now(),
	}
	writeJSON(w, http.StatusOK, response)
}
