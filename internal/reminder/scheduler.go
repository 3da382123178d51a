// Package reminder turns finished service visits into pending reminder messages.
package reminder

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"text/template"
	"time"
	_ "time/tzdata"

	"github.com/LeventeLantos/service-reminders/internal/metrics"
	"github.com/LeventeLantos/service-reminders/internal/model"
)

const (
	DefaultSendTime = "11:00"
	DefaultTimezone = "Etc/GMT+8"

	DefaultTemplate = "Reminder: Hi {{.Name}}, your {{.Make}} {{.Model}} ({{.VINSuffix}}) " +
		"is due for service on {{.DueDate}} or at {{.DueMileage}} miles."
)

var ErrMalformedTrigger = errors.New("malformed service trigger")

// Store persists a vehicle's new reminder, canceling whatever was pending for it.
type Store interface {
	ScheduleReminder(ctx context.Context, m *model.ScheduledMessage) (int64, error)
}

// Event describes a finished service visit. Contact is the one person the
// vehicle's reminder is addressed to.
type Event struct {
	Vehicle         *model.Vehicle
	Contact         *model.Contact
	ServiceRecordID *int64
	DueDate         time.Time
	DueMileage      int
}

// CheckDue rejects a next-service trigger without a due date or a positive due mileage.
func CheckDue(date time.Time, mileage int) error {
	if date.IsZero() {
		return fmt.Errorf("%w: missing due date", ErrMalformedTrigger)
	}
	if mileage <= 0 {
		return fmt.Errorf("%w: due mileage %d", ErrMalformedTrigger, mileage)
	}
	return nil
}

func (e Event) validate() error {
	if e.Vehicle == nil {
		return fmt.Errorf("%w: missing vehicle", ErrMalformedTrigger)
	}
	if err := CheckDue(e.DueDate, e.DueMileage); err != nil {
		return err
	}
	if e.Contact == nil {
		return fmt.Errorf("%w: vehicle %d has no contact to remind", ErrMalformedTrigger, e.Vehicle.ID)
	}
	return nil
}

type Config struct {
	SendTime string
	Timezone string
	Template string
}

type Scheduler struct {
	store  Store
	hour   int
	minute int
	loc    *time.Location
	tmpl   *template.Template
	log    *slog.Logger
}

func New(store Store, cfg Config, log *slog.Logger) (*Scheduler, error) {
	if store == nil {
		return nil, errors.New("store must not be nil")
	}
	if cfg.SendTime == "" {
		cfg.SendTime = DefaultSendTime
	}
	if cfg.Timezone == "" {
		cfg.Timezone = DefaultTimezone
	}
	if cfg.Template == "" {
		cfg.Template = DefaultTemplate
	}
	if log == nil {
		log = slog.Default()
	}

	hour, minute, err := ParseSendTime(cfg.SendTime)
	if err != nil {
		return nil, err
	}
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("reminder timezone: %w", err)
	}
	tmpl, err := template.New("reminder").Option("missingkey=error").Parse(cfg.Template)
	if err != nil {
		return nil, fmt.Errorf("reminder template: %w", err)
	}

	return &Scheduler{
		store:  store,
		hour:   hour,
		minute: minute,
		loc:    loc,
		tmpl:   tmpl,
		log:    log,
	}, nil
}

// ParseSendTime parses an HH:MM wall-clock time.
func ParseSendTime(s string) (int, int, error) {
	hh, mm, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return 0, 0, fmt.Errorf("send time %q: want HH:MM", s)
	}
	hour, err := strconv.Atoi(hh)
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("send time %q: invalid hour", s)
	}
	minute, err := strconv.Atoi(mm)
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("send time %q: invalid minute", s)
	}
	return hour, minute, nil
}

// DueAt returns the send time on the calendar day of date in the reference zone, as a UTC instant.
func (s *Scheduler) DueAt(date time.Time) time.Time {
	y, m, d := date.Date()
	return time.Date(y, m, d, s.hour, s.minute, 0, 0, s.loc).UTC()
}

type templateData struct {
	Name       string
	Make       string
	Model      string
	VINSuffix  string
	DueDate    string
	DueMileage int
}

func (s *Scheduler) Compose(c model.Contact, v model.Vehicle, dueDate time.Time, dueMileage int) (string, error) {
	var buf bytes.Buffer
	err := s.tmpl.Execute(&buf, templateData{
		Name:       c.Name,
		Make:       v.Make,
		Model:      v.Model,
		VINSuffix:  v.VINSuffix(),
		DueDate:    dueDate.Format(time.DateOnly),
		DueMileage: dueMileage,
	})
	if err != nil {
		return "", err
	}
	return buf.String(), nil
}

// OnServiceRecorded supersedes the vehicle's pending messages with a single reminder.
// A malformed event persists nothing.
func (s *Scheduler) OnServiceRecorded(ctx context.Context, ev Event) (*model.ScheduledMessage, error) {
	if err := ev.validate(); err != nil {
		return nil, err
	}

	body, err := s.Compose(*ev.Contact, *ev.Vehicle, ev.DueDate, ev.DueMileage)
	if err != nil {
		return nil, fmt.Errorf("compose reminder for contact %d: %w", ev.Contact.ID, err)
	}

	due := s.DueAt(ev.DueDate)
	m := &model.ScheduledMessage{
		ContactID:       ev.Contact.ID,
		VehicleID:       ev.Vehicle.ID,
		ServiceRecordID: ev.ServiceRecordID,
		Content:         body,
		ScheduledTime:   due,
		CreatedAt:       time.Now().UTC(),
		IsReminder:      true,
		Status:          model.Pending,
	}

	canceled, err := s.store.ScheduleReminder(ctx, m)
	if err != nil {
		return nil, fmt.Errorf("schedule reminder for vehicle %d: %w", ev.Vehicle.ID, err)
	}

	metrics.RemindersScheduled.Inc()
	metrics.RemindersSuperseded.Add(float64(canceled))

	s.log.Info("reminder scheduled",
		"vehicle_id", ev.Vehicle.ID,
		"contact_id", ev.Contact.ID,
		"superseded", canceled,
		"due", due.Format(time.RFC3339),
	)

	out := *m
	return &out, nil
}
