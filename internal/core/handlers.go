package core

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"bloodlink/internal/types"
)

// emitEventRequest is the body of POST /v1/events.
type emitEventRequest struct {
	EventID    string         `json:"event_id" validate:"omitempty,max=64,printascii"`
	Kind       string         `json:"kind" validate:"required,event_kind"`
	SubjectID  string         `json:"subject_id" validate:"required,max=64,printascii"`
	OccurredAt *time.Time     `json:"occurred_at"`
	Attributes map[string]any `json:"attributes"`
}

type outcomeView struct {
	Transport string `json:"transport"`
	Address   string `json:"address"`
	Status    string `json:"status"`
	Reason    string `json:"reason,omitempty"`
}

type emitEventResponse struct {
	EventID  string        `json:"event_id,omitempty"`
	Outcomes []outcomeView `json:"outcomes"`
}

// HandleEmitEvent dispatches a change notice on behalf of a service that
// cannot publish to Kafka. It answers 202 with one outcome per target once
// immediate sends are done and deferred ones are queued. Transport failures
// are reported in the outcomes, not as an error status.
func (s *Server) HandleEmitEvent(w http.ResponseWriter, r *http.Request) {
	var req emitEventRequest
	if err := DecodeJSON(w, r, &req); err != nil {
		Error(w, r, err)
		return
	}
	if err := s.Validator.ValidateStruct(req); err != nil {
		Error(w, r, err)
		return
	}

	notice := types.ChangeNotice{
		EventID:    req.EventID,
		Kind:       types.EventKind(req.Kind),
		SubjectID:  req.SubjectID,
		Attributes: req.Attributes,
	}
	if req.OccurredAt != nil {
		notice.OccurredAt = req.OccurredAt.UTC()
	}

	outcomes, err := s.Emitter.Emit(r.Context(), notice)
	if err != nil {
		s.Logger.Warn("emit rejected",
			"event_kind", req.Kind,
			"subject_id", req.SubjectID,
			"error", err.Error(),
			"request_id", types.GetRequestID(r.Context()),
		)
		Error(w, r, err)
		return
	}

	resp := emitEventResponse{EventID: req.EventID, Outcomes: make([]outcomeView, 0, len(outcomes))}
	for _, o := range outcomes {
		resp.Outcomes = append(resp.Outcomes, outcomeView{
			Transport: string(o.Transport),
			Address:   types.RedactAddress(o.Transport, o.Address),
			Status:    string(o.Status),
			Reason:    o.Reason(),
		})
	}
	JSON(w, r, http.StatusAccepted, APIResponse{Data: resp})
}

// HandleListNotifications serves GET /v1/users/{userID}/notifications.
// Query parameters: unread=true, limit (1-100). Users may only read their
// own inbox.
func (s *Server) HandleListNotifications(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	if !s.canAccessUser(r, userID) {
		s.writeForbidden(w, r, "Notifications belong to another user")
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 100 {
			Error(w, r, types.NewAppErrorWithDetails(types.ErrCodeValidationInvalidEvent,
				"limit must be an integer between 1 and 100", err, map[string]any{"field": "limit"}))
			return
		}
		limit = n
	}
	unreadOnly := r.URL.Query().Get("unread") == "true"

	recs, err := s.Notifications.ListForUser(r.Context(), userID, unreadOnly, limit)
	if err != nil {
		Error(w, r, err)
		return
	}
	if recs == nil {
		recs = []*types.NotificationRecord{}
	}
	JSON(w, r, http.StatusOK, APIResponse{Data: recs})
}

// HandleMarkRead serves POST /v1/notifications/{notificationID}/read.
// Another user's notification answers 404 so its existence stays hidden.
func (s *Server) HandleMarkRead(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "notificationID")
	rec, err := s.Notifications.Get(r.Context(), id)
	if err != nil {
		Error(w, r, err)
		return
	}
	if !s.canAccessUser(r, rec.UserID) {
		Error(w, r, types.NewAppError(types.ErrCodeNotFoundNotification, "notification not found", nil))
		return
	}
	if err := s.Notifications.MarkRead(r.Context(), id, s.Clock.Now()); err != nil {
		Error(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
