package web

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strings"

	"github.com/mberg/product-importer/internal/catalog"
)

var knownEventTypes = map[string]bool{
	catalog.EventImportCompleted:    true,
	catalog.EventProductCreated:     true,
	catalog.EventProductUpdated:     true,
	catalog.EventProductDeleted:     true,
	catalog.EventProductBulkDeleted: true,
}

type webhookRequest struct {
	URL        string   `json:"url"`
	EventTypes []string `json:"event_types"`
	Enabled    *bool    `json:"enabled"`
}

func (wr *webhookRequest) validate() string {
	wr.URL = strings.TrimSpace(wr.URL)
	if wr.URL == "" {
		return "url is required"
	}
	u, err := url.Parse(wr.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "url must be a valid http or https URL"
	}
	if len(wr.EventTypes) == 0 {
		return "event_types is required"
	}
	for _, et := range wr.EventTypes {
		if !knownEventTypes[et] {
			return "unknown event type: " + et
		}
	}
	return ""
}

func (s *Server) handleListWebhooks(w http.ResponseWriter, r *http.Request) {
	hooks, err := s.webhooks.List(r.Context())
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if hooks == nil {
		hooks = []catalog.Webhook{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"webhooks": hooks})
}

func (s *Server) handleCreateWebhook(w http.ResponseWriter, r *http.Request) {
	var req webhookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if msg := req.validate(); msg != "" {
		writeError(w, r, http.StatusBadRequest, msg)
		return
	}

	hook := catalog.Webhook{URL: req.URL, EventTypes: req.EventTypes, Enabled: true}
	if req.Enabled != nil {
		hook.Enabled = *req.Enabled
	}
	if err := s.webhooks.Create(r.Context(), &hook); err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, hook)
}

func (s *Server) handleGetWebhook(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "webhookID")
	if !ok {
		return
	}
	hook, err := s.webhooks.Get(r.Context(), id)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, hook)
}

func (s *Server) handleUpdateWebhook(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "webhookID")
	if !ok {
		return
	}

	var req webhookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if msg := req.validate(); msg != "" {
		writeError(w, r, http.StatusBadRequest, msg)
		return
	}

	hook, err := s.webhooks.Get(r.Context(), id)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	hook.URL = req.URL
	hook.EventTypes = req.EventTypes
	if req.Enabled != nil {
		hook.Enabled = *req.Enabled
	}
	if err := s.webhooks.Update(r.Context(), hook); err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, hook)
}

func (s *Server) handleDeleteWebhook(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "webhookID")
	if !ok {
		return
	}
	if err := s.webhooks.Delete(r.Context(), id); err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": true, "id": id})
}

// handleTestWebhook fires a synchronous test delivery so operators can
// verify an endpoint before relying on it.
func (s *Server) handleTestWebhook(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "webhookID")
	if !ok {
		return
	}
	hook, err := s.webhooks.Get(r.Context(), id)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	result := s.dispatcher.DispatchTest(*hook)
	outcome := "success"
	if !result.Success {
		outcome = "failure"
	}
	s.metrics.WebhookDeliveries.WithLabelValues(catalog.EventWebhookTest, outcome).Inc()
	writeJSON(w, http.StatusOK, result)
}
