package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/LeventeLantos/service-reminders/internal/dispatch"
	"github.com/LeventeLantos/service-reminders/internal/model"
	"github.com/LeventeLantos/service-reminders/internal/reminder"
	"github.com/LeventeLantos/service-reminders/internal/repo"
	"github.com/LeventeLantos/service-reminders/internal/scheduler"
	"github.com/LeventeLantos/service-reminders/internal/service"
)

type Notifications interface {
	RecordService(ctx context.Context, rec *model.ServiceRecord, pickupText string) (*service.Outcome, error)
	SendPickup(ctx context.Context, req service.PickupRequest) (*service.Outcome, error)
}

type CycleReporter interface {
	LastCycle() (dispatch.Summary, bool)
}

type Deps struct {
	Scheduler     *scheduler.Scheduler
	Cycles        CycleReporter
	Notifications Notifications
	Messages      repo.MessageRepository
	Inbound       repo.InboundRepository
	CostCents     int
	AutoReply     string
	Location      *time.Location
	Logger        *slog.Logger
}

type Handler struct {
	sched     *scheduler.Scheduler
	cycles    CycleReporter
	notify    Notifications
	messages  repo.MessageRepository
	inbound   repo.InboundRepository
	costCents int
	autoReply string
	loc       *time.Location
	log       *slog.Logger
	now       func() time.Time
	validator *validator.Validate
}

func NewHandler(d Deps) *Handler {
	h := &Handler{
		sched:     d.Scheduler,
		cycles:    d.Cycles,
		notify:    d.Notifications,
		messages:  d.Messages,
		inbound:   d.Inbound,
		costCents: d.CostCents,
		autoReply: d.AutoReply,
		loc:       d.Location,
		log:       d.Logger,
		now:       time.Now,
	}
	if h.loc == nil {
		h.loc = time.UTC
	}
	if h.log == nil {
		h.log = slog.Default()
	}
	h.validator = h.newValidator()
	return h
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (h *Handler) schedulerBody() map[string]any {
	st := h.sched.Status()
	body := map[string]any{
		"running":  st.Running,
		"interval": st.Interval,
		"ticks":    st.Ticks,
	}
	if !st.LastTick.IsZero() {
		body["lastTick"] = st.LastTick
	}
	if h.cycles != nil {
		if last, ok := h.cycles.LastCycle(); ok {
			body["lastCycle"] = last
		}
	}
	return body
}

func (h *Handler) SchedulerStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.schedulerBody())
}

func (h *Handler) SchedulerStart(w http.ResponseWriter, r *http.Request) {
	h.sched.Start()
	writeJSON(w, http.StatusOK, h.schedulerBody())
}

func (h *Handler) SchedulerStop(w http.ResponseWriter, r *http.Request) {
	h.sched.Stop()
	writeJSON(w, http.StatusOK, h.schedulerBody())
}

func (h *Handler) SchedulerRun(w http.ResponseWriter, r *http.Request) {
	h.sched.RunOnce(r.Context())
	writeJSON(w, http.StatusOK, h.schedulerBody())
}

type serviceRecordRequest struct {
	VehicleID             int64   `json:"vehicleId" validate:"required,gt=0"`
	ServiceDate           string  `json:"serviceDate" validate:"omitempty,datetime=2006-01-02"`
	OilType               string  `json:"oilType" validate:"required,oneof=synthetic synthetic-blend 'full synthetic' 'high-mileage synthetic-blend' 'high-mileage full-synthetic'"`
	OilViscosity          string  `json:"oilViscosity" validate:"required,oneof=0W-20 5W-20 5W-30 10W-30 15W-40"`
	MileageAtService      int     `json:"mileageAtService" validate:"gte=0"`
	NextServiceMileageDue int     `json:"nextServiceMileageDue" validate:"required,gte=2999,gtfield=MileageAtService"`
	NextServiceDateDue    string  `json:"nextServiceDateDue" validate:"required,datetime=2006-01-02,future_date"`
	Notes                 *string `json:"notes"`
	PickupMessage         string  `json:"pickupMessage"`
}

func (h *Handler) CreateServiceRecord(w http.ResponseWriter, r *http.Request) {
	var req serviceRecordRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	req.OilType = strings.ToLower(strings.TrimSpace(req.OilType))
	req.OilViscosity = strings.ToUpper(strings.TrimSpace(req.OilViscosity))
	if msgs := h.validate(&req); msgs != nil {
		writeValidation(w, msgs)
		return
	}

	rec := model.ServiceRecord{
		VehicleID:             req.VehicleID,
		OilType:               req.OilType,
		OilViscosity:          req.OilViscosity,
		MileageAtService:      req.MileageAtService,
		NextServiceMileageDue: req.NextServiceMileageDue,
		Notes:                 req.Notes,
	}
	// Both dates already passed the datetime rule.
	rec.NextServiceDateDue, _ = time.Parse(time.DateOnly, req.NextServiceDateDue)
	today := h.now().In(h.loc)
	rec.ServiceDate = time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, time.UTC)
	if req.ServiceDate != "" {
		rec.ServiceDate, _ = time.Parse(time.DateOnly, req.ServiceDate)
	}

	out, err := h.notify.RecordService(r.Context(), &rec, req.PickupMessage)
	if err != nil {
		h.fail(w, "record service failed", err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"serviceRecord":     out.Record,
		"smsSent":           out.SMSSent(),
		"pickups":           out.Pickups,
		"reminder":          out.Reminder,
		"reminderScheduled": out.Reminder != nil,
	})
}

type sendMessageRequest struct {
	ServiceRecordID int64  `json:"serviceRecordId" validate:"required,gt=0"`
	ContactID       int64  `json:"contactId" validate:"required,gt=0"`
	Message         string `json:"message" validate:"required"`
}

func (h *Handler) SendPickupMessage(w http.ResponseWriter, r *http.Request) {
	var req sendMessageRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	req.Message = strings.TrimSpace(req.Message)
	if msgs := h.validate(&req); msgs != nil {
		writeValidation(w, msgs)
		return
	}

	out, err := h.notify.SendPickup(r.Context(), service.PickupRequest{
		ServiceRecordID: req.ServiceRecordID,
		ContactID:       req.ContactID,
		Message:         req.Message,
	})
	if err != nil {
		h.fail(w, "send pickup failed", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":           true,
		"smsSent":           out.SMSSent(),
		"pickup":            out.Pickups[0],
		"reminder":          out.Reminder,
		"reminderScheduled": out.Reminder != nil,
	})
}

func (h *Handler) ListMessages(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	f := repo.MessageFilter{
		Kind:   repo.Kind(q.Get("kind")),
		Status: model.Status(q.Get("status")),
		Limit:  parseInt(q.Get("limit"), 50),
		Offset: parseInt(q.Get("offset"), 0),
	}
	switch f.Kind {
	case repo.KindAny, repo.KindReminder, repo.KindPickup:
	default:
		writeError(w, http.StatusBadRequest, errors.New("kind must be reminder or pickup"))
		return
	}
	if f.Status != "" && !f.Status.Valid() {
		writeError(w, http.StatusBadRequest, errors.New("unknown status"))
		return
	}
	if raw := q.Get("vehicle_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, errors.New("vehicle_id must be an integer"))
			return
		}
		f.VehicleID = &id
	}
	day, err := h.parseDay(q.Get("date"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	f.Since = day

	h.listMessages(w, r, f)
}

func (h *Handler) ListSentMessages(w http.ResponseWriter, r *http.Request) {
	h.listMessages(w, r, repo.MessageFilter{
		Status: model.Sent,
		Limit:  parseInt(r.URL.Query().Get("limit"), 50),
		Offset: parseInt(r.URL.Query().Get("offset"), 0),
	})
}

func (h *Handler) listMessages(w http.ResponseWriter, r *http.Request, f repo.MessageFilter) {
	items, err := h.messages.ListMessages(r.Context(), f)
	if err != nil {
		h.fail(w, "list messages failed", err)
		return
	}
	if items == nil {
		items = []model.MessageView{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *Handler) CancelMessage(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := uuid.Parse(id); err != nil {
		writeError(w, http.StatusBadRequest, errors.New("message id must be a UUID"))
		return
	}
	if err := h.messages.Cancel(r.Context(), id); err != nil {
		h.fail(w, "cancel message failed", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "status": model.Canceled})
}

func (h *Handler) CostSummary(w http.ResponseWriter, r *http.Request) {
	day, err := h.parseDay(r.URL.Query().Get("date"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	outbound, err := h.messages.CountSent(r.Context(), day)
	if err != nil {
		h.fail(w, "count sent failed", err)
		return
	}
	inbound, err := h.inbound.CountInbound(r.Context(), day)
	if err != nil {
		h.fail(w, "count inbound failed", err)
		return
	}

	line := func(n int) map[string]any {
		cents := n * h.costCents
		return map[string]any{
			"count":        n,
			"totalCents":   cents,
			"totalDollars": float64(cents) / 100,
		}
	}

	body := map[string]any{
		"outbound": line(outbound),
		"inbound":  line(inbound),
		"totals":   line(outbound + inbound),
	}
	if day != nil {
		body["date"] = day.Format(time.DateOnly)
	}
	writeJSON(w, http.StatusOK, body)
}

// parseDay reads a YYYY-MM-DD filter as a calendar day in the handler's zone.
func (h *Handler) parseDay(raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	t, err := time.ParseInLocation(time.DateOnly, raw, h.loc)
	if err != nil {
		return nil, errors.New("date must be YYYY-MM-DD")
	}
	return &t, nil
}

// fail maps domain errors to HTTP statuses and hides everything else behind a 500.
func (h *Handler) fail(w http.ResponseWriter, msg string, err error) {
	switch {
	case errors.Is(err, repo.ErrNotFound):
		writeError(w, http.StatusNotFound, err)
	case errors.Is(err, repo.ErrNotPending):
		writeError(w, http.StatusConflict, err)
	case errors.Is(err, reminder.ErrMalformedTrigger),
		errors.Is(err, service.ErrNoContacts):
		writeError(w, http.StatusUnprocessableEntity, err)
	default:
		h.log.Error(msg, "err", err)
		writeError(w, http.StatusInternalServerError, errors.New("internal error"))
	}
}

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return errors.New("invalid JSON body: " + err.Error())
	}
	return nil
}

func parseInt(raw string, def int) int {
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return v
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]any{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
