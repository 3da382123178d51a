package api

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func Router(h *Handler) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /v1/health", h.Health)

	mux.HandleFunc("GET /v1/scheduler/status", h.SchedulerStatus)
	mux.HandleFunc("POST /v1/scheduler/start", h.SchedulerStart)
	mux.HandleFunc("POST /v1/scheduler/stop", h.SchedulerStop)
	mux.HandleFunc("POST /v1/scheduler/run", h.SchedulerRun)

	mux.HandleFunc("POST /v1/service-records", h.CreateServiceRecord)

	mux.HandleFunc("POST /v1/messages/send", h.SendPickupMessage)
	mux.HandleFunc("GET /v1/messages", h.ListMessages)
	mux.HandleFunc("GET /v1/messages/sent", h.ListSentMessages)
	mux.HandleFunc("POST /v1/messages/{id}/cancel", h.CancelMessage)

	mux.HandleFunc("POST /v1/webhooks/twilio/sms", h.InboundSMS)
	mux.HandleFunc("GET /v1/messages/inbound", h.ListInbound)
	mux.HandleFunc("GET /v1/messages/inbound/unread-count", h.UnreadCount)
	mux.HandleFunc("POST /v1/messages/inbound/mark-as-read", h.MarkInboundRead)

	mux.HandleFunc("GET /v1/costs/summary", h.CostSummary)

	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("GET /", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("service-reminders"))
	})

	return mux
}
