package api

import (
	"errors"
	"net/http"

	"github.com/twilio/twilio-go/twiml"

	"github.com/LeventeLantos/service-reminders/internal/model"
	"github.com/LeventeLantos/service-reminders/internal/phone"
	"github.com/LeventeLantos/service-reminders/internal/repo"
)

// InboundSMS stores a carrier-delivered SMS and answers with a TwiML auto-reply.
func (h *Handler) InboundSMS(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form body", http.StatusBadRequest)
		return
	}

	from := r.PostForm.Get("From")
	if from == "" {
		http.Error(w, "From is required", http.StatusBadRequest)
		return
	}

	msg := model.IncomingMessage{
		FromNumber: from,
		ToNumber:   r.PostForm.Get("To"),
		Body:       r.PostForm.Get("Body"),
	}

	if num, err := phone.Normalize(from); err == nil {
		c, err := h.inbound.FindContactByNational(r.Context(), num.National())
		switch {
		case err == nil:
			msg.ContactID = &c.ID
		case errors.Is(err, repo.ErrNotFound):
		default:
			h.log.Warn("inbound contact lookup failed", "from", from, "err", err)
		}
	}

	if err := h.inbound.SaveInbound(r.Context(), &msg); err != nil {
		h.log.Error("save inbound message failed", "from", from, "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	h.log.Info("inbound sms stored", "id", msg.ID, "from", from, "matched", msg.ContactID != nil)

	var verbs []twiml.Element
	if h.autoReply != "" {
		verbs = append(verbs, &twiml.MessagingMessage{Body: h.autoReply})
	}
	body, err := twiml.Messages(verbs)
	if err != nil {
		h.log.Error("render twiml failed", "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(body))
}

func (h *Handler) ListInbound(w http.ResponseWriter, r *http.Request) {
	items, err := h.inbound.ListInbound(r.Context(),
		parseInt(r.URL.Query().Get("limit"), 50),
		parseInt(r.URL.Query().Get("offset"), 0),
	)
	if err != nil {
		h.fail(w, "list inbound failed", err)
		return
	}
	for i := range items {
		if items[i].ContactName == "" {
			items[i].ContactName = "Unknown"
		}
	}
	if items == nil {
		items = []model.IncomingMessage{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *Handler) UnreadCount(w http.ResponseWriter, r *http.Request) {
	n, err := h.inbound.UnreadCount(r.Context())
	if err != nil {
		h.fail(w, "unread count failed", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"unreadCount": n})
}

func (h *Handler) MarkInboundRead(w http.ResponseWriter, r *http.Request) {
	n, err := h.inbound.MarkAllRead(r.Context())
	if err != nil {
		h.fail(w, "mark inbound read failed", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "updated": n})
}
