package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/LeventeLantos/service-reminders/internal/model"
	"github.com/LeventeLantos/service-reminders/internal/reminder"
	"github.com/LeventeLantos/service-reminders/internal/repo"
)

var ErrNoContacts = errors.New("vehicle has no contacts")

type Sender interface {
	Send(ctx context.Context, phoneNumber, body string) (string, error)
}

type ReminderScheduler interface {
	OnServiceRecorded(ctx context.Context, ev reminder.Event) (*model.ScheduledMessage, error)
}

// Notifier runs the service-completion workflow: an immediate pickup text followed by
// the next-service reminder.
type Notifier struct {
	sender    Sender
	messages  repo.MessageRepository
	records   repo.ServiceRecordRepository
	reminders ReminderScheduler
	log       *slog.Logger
	now       func() time.Time
}

func NewNotifier(
	sender Sender,
	messages repo.MessageRepository,
	records repo.ServiceRecordRepository,
	reminders ReminderScheduler,
	log *slog.Logger,
) *Notifier {
	if log == nil {
		log = slog.Default()
	}
	return &Notifier{
		sender:    sender,
		messages:  messages,
		records:   records,
		reminders: reminders,
		log:       log,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

type Outcome struct {
	Record   model.ServiceRecord      `json:"serviceRecord"`
	Pickups  []model.ScheduledMessage `json:"pickups"`
	Reminder *model.ScheduledMessage  `json:"reminder"`
}

// SMSSent reports whether at least one pickup text reached the carrier.
func (o Outcome) SMSSent() bool {
	for _, p := range o.Pickups {
		if p.Status == model.Sent {
			return true
		}
	}
	return false
}

// RecordService persists rec, texts every contact of its vehicle and schedules the
// vehicle's reminder for its primary contact. An empty pickupText skips the pickup
// texts. A record without a usable next-service trigger is rejected before anything
// is stored or sent.
func (n *Notifier) RecordService(ctx context.Context, rec *model.ServiceRecord, pickupText string) (*Outcome, error) {
	if err := reminder.CheckDue(rec.NextServiceDateDue, rec.NextServiceMileageDue); err != nil {
		return nil, err
	}

	vehicle, err := n.messages.GetVehicle(ctx, rec.VehicleID)
	if err != nil {
		return nil, fmt.Errorf("vehicle %d: %w", rec.VehicleID, err)
	}
	contacts, err := n.records.ContactsForVehicle(ctx, vehicle.ID)
	if err != nil {
		return nil, err
	}
	if len(contacts) == 0 {
		return nil, fmt.Errorf("%w: vehicle %d", ErrNoContacts, vehicle.ID)
	}

	if err := n.records.CreateServiceRecord(ctx, rec); err != nil {
		return nil, fmt.Errorf("create service record: %w", err)
	}

	out := &Outcome{Record: *rec}
	if strings.TrimSpace(pickupText) != "" {
		for _, c := range contacts {
			p, err := n.pickup(ctx, rec, c, pickupText)
			if err != nil {
				return nil, err
			}
			out.Pickups = append(out.Pickups, p)
		}
	}

	primary := PrimaryContact(contacts)
	out.Reminder, err = n.schedule(ctx, rec, vehicle, &primary)
	if err != nil {
		return nil, err
	}
	return out, nil
}

type PickupRequest struct {
	ServiceRecordID int64
	ContactID       int64
	Message         string
}

// SendPickup texts one contact about an existing service record and then
// reschedules the vehicle's reminder, addressed to that contact.
func (n *Notifier) SendPickup(ctx context.Context, req PickupRequest) (*Outcome, error) {
	rec, err := n.records.GetServiceRecord(ctx, req.ServiceRecordID)
	if err != nil {
		return nil, fmt.Errorf("service record %d: %w", req.ServiceRecordID, err)
	}
	if err := reminder.CheckDue(rec.NextServiceDateDue, rec.NextServiceMileageDue); err != nil {
		return nil, err
	}
	vehicle, err := n.messages.GetVehicle(ctx, rec.VehicleID)
	if err != nil {
		return nil, fmt.Errorf("vehicle %d: %w", rec.VehicleID, err)
	}
	contact, err := n.messages.GetContact(ctx, req.ContactID)
	if err != nil {
		return nil, fmt.Errorf("contact %d: %w", req.ContactID, err)
	}

	p, err := n.pickup(ctx, rec, *contact, req.Message)
	if err != nil {
		return nil, err
	}

	r, err := n.schedule(ctx, rec, vehicle, contact)
	if err != nil {
		return nil, err
	}
	return &Outcome{Record: *rec, Pickups: []model.ScheduledMessage{p}, Reminder: r}, nil
}

// pickup sends body right away and stores the terminal result. Carrier failures are
// recorded on the message, not returned.
func (n *Notifier) pickup(ctx context.Context, rec *model.ServiceRecord, c model.Contact, body string) (model.ScheduledMessage, error) {
	now := n.now()
	recordID := rec.ID
	m := model.ScheduledMessage{
		ContactID:       c.ID,
		VehicleID:       rec.VehicleID,
		ServiceRecordID: &recordID,
		Content:         body,
		ScheduledTime:   now,
		CreatedAt:       now,
		Status:          model.Failed,
	}

	var sendErr error
	if strings.TrimSpace(c.PhoneNumber) == "" {
		sendErr = fmt.Errorf("%w: contact %d has no phone number", ErrInvalidRecipient, c.ID)
	} else {
		var remoteID string
		remoteID, sendErr = n.sender.Send(ctx, c.PhoneNumber, body)
		if sendErr == nil {
			m.Status = model.Sent
			m.SentAt = &now
			m.ProviderMessageID = &remoteID
		}
	}
	if sendErr != nil {
		reason := Reason(sendErr) + ": " + sendErr.Error()
		m.FailureReason = &reason
		n.log.Warn("pickup message not delivered", "contact_id", c.ID, "vehicle_id", rec.VehicleID, "err", sendErr)
	}

	if err := n.messages.CreateMessage(ctx, &m); err != nil {
		return m, fmt.Errorf("store pickup message: %w", err)
	}
	return m, nil
}

func (n *Notifier) schedule(ctx context.Context, rec *model.ServiceRecord, v *model.Vehicle, c *model.Contact) (*model.ScheduledMessage, error) {
	recordID := rec.ID
	return n.reminders.OnServiceRecorded(ctx, reminder.Event{
		Vehicle:         v,
		Contact:         c,
		ServiceRecordID: &recordID,
		DueDate:         rec.NextServiceDateDue,
		DueMileage:      rec.NextServiceMileageDue,
	})
}

// PrimaryContact picks the first contact with a phone number, falling back to the
// first contact. cs must not be empty.
func PrimaryContact(cs []model.Contact) model.Contact {
	for _, c := range cs {
		if strings.TrimSpace(c.PhoneNumber) != "" {
			return c
		}
	}
	return cs[0]
}
