package gateway

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/haasonsaas/aide/internal/behavior"
	"github.com/haasonsaas/aide/internal/learning"
	"github.com/haasonsaas/aide/internal/storage"
	"github.com/haasonsaas/aide/pkg/models"
)

// errorResponse is the uniform error payload.
type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("response encode failed", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, errorResponse{Error: msg})
}

func (s *Server) decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}

// handleAuthToken exchanges the bootstrap token for a JWT.
func (s *Server) handleAuthToken(w http.ResponseWriter, r *http.Request) {
	if !s.jwt.Enabled() {
		s.writeError(w, http.StatusNotFound, "auth disabled")
		return
	}
	var req struct {
		BootstrapToken string `json:"bootstrap_token"`
	}
	if !s.decodeBody(w, r, &req) {
		return
	}
	expected := s.config.Auth.BootstrapToken
	if expected == "" ||
		subtle.ConstantTimeCompare([]byte(req.BootstrapToken), []byte(expected)) != 1 {
		s.writeError(w, http.StatusUnauthorized, "invalid bootstrap token")
		return
	}
	token, err := s.jwt.Generate("owner")
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "token generation failed")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

func (s *Server) handleListBehaviors(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"behaviors": s.engine.Registry().List(),
	})
}

func (s *Server) handleTriggerBehavior(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	result, err := s.engine.Trigger(r.Context(), name)
	if err != nil {
		if errors.Is(err, behavior.ErrNotFound) {
			s.writeError(w, http.StatusNotFound, "unknown behavior: "+name)
			return
		}
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"name": name, "result": result})
}

func (s *Server) handleUpdateContext(w http.ResponseWriter, r *http.Request) {
	var updates map[string]any
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(&updates); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if len(updates) == 0 {
		s.writeError(w, http.StatusBadRequest, "empty context update")
		return
	}
	fired := s.engine.UpdateContext(r.Context(), updates)
	s.writeJSON(w, http.StatusOK, map[string]any{
		"updated":         len(updates),
		"behaviors_fired": fired,
	})
}

func (s *Server) handleSimulateEvent(w http.ResponseWriter, r *http.Request) {
	var body map[string]any
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(&body); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	eventType, _ := body["type"].(string)
	if eventType == "" {
		s.writeError(w, http.StatusBadRequest, "event type required")
		return
	}
	delete(body, "type")
	fired := s.engine.PublishEvent(r.Context(), &behavior.Event{
		Type:    eventType,
		Payload: body,
	})
	s.writeJSON(w, http.StatusOK, map[string]any{
		"type":            eventType,
		"behaviors_fired": fired,
	})
}

func (s *Server) handleProcessMessage(w http.ResponseWriter, r *http.Request) {
	var req ProcessRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	result, err := s.processor.Process(r.Context(), &req)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, ErrInvalidRequest) {
			status = http.StatusBadRequest
		}
		s.writeError(w, status, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			s.writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}
	messages, err := s.messages.ListMessages(r.Context(), limit)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"messages": messages})
}

func (s *Server) handleGetMessage(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	msg, err := s.messages.GetMessage(r.Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.writeError(w, http.StatusNotFound, "unknown message: "+id)
			return
		}
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, msg)
}

func (s *Server) handleSubmitFeedback(w http.ResponseWriter, r *http.Request) {
	var req struct {
		MessageID string  `json:"message_id"`
		Kind      string  `json:"kind"`
		Original  string  `json:"original_response"`
		Edited    string  `json:"edited_response,omitempty"`
		Rating    float64 `json:"rating,omitempty"`
		Platform  string  `json:"platform,omitempty"`
		Sender    string  `json:"sender,omitempty"`
	}
	if !s.decodeBody(w, r, &req) {
		return
	}
	fb := &models.Feedback{
		MessageID: req.MessageID,
		Kind:      models.FeedbackKind(strings.ToLower(strings.TrimSpace(req.Kind))),
		Original:  req.Original,
		Edited:    req.Edited,
		Rating:    req.Rating,
		Platform:  models.NormalizePlatform(req.Platform),
		Sender:    req.Sender,
	}
	insights, err := s.learner.SubmitFeedback(r.Context(), fb)
	if err != nil {
		if errors.Is(err, learning.ErrInvalidFeedback) {
			s.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if insights == nil {
		insights = []models.Insight{}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"insights": insights})
}

func (s *Server) handleTrends(w http.ResponseWriter, r *http.Request) {
	days := 30
	if raw := r.URL.Query().Get("days"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			s.writeError(w, http.StatusBadRequest, "invalid days")
			return
		}
		days = n
	}
	report, err := s.learner.Trends(r.Context(), days)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleGetAutonomy(w http.ResponseWriter, _ *http.Request) {
	levels := s.gate.Levels()
	out := make(map[string]any, len(levels))
	for platform, level := range levels {
		out[string(platform)] = map[string]any{
			"level": int(level),
			"name":  level.String(),
		}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"platforms": out})
}

func (s *Server) handleSetAutonomy(w http.ResponseWriter, r *http.Request) {
	platform := models.NormalizePlatform(r.PathValue("platform"))
	// Accepts either a numeric level or a level name.
	var req struct {
		Level json.RawMessage `json:"level"`
	}
	if !s.decodeBody(w, r, &req) {
		return
	}
	level, err := models.ParseAutonomyLevel(strings.Trim(string(req.Level), `"`))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.gate.SetLevel(platform, level); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"platform": string(platform),
		"level":    int(level),
		"name":     level.String(),
	})
}
