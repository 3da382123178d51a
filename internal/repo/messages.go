package repo

import (
	"context"
	"errors"
	"time"

	"github.com/LeventeLantos/service-reminders/internal/model"
)

var (
	ErrNotFound   = errors.New("not found")
	ErrNotPending = errors.New("message is not pending")
)

// Kind filters history rows by the is_reminder flag.
type Kind string

const (
	KindAny      Kind = ""
	KindReminder Kind = "reminder"
	KindPickup   Kind = "pickup"
)

type MessageFilter struct {
	VehicleID *int64
	Kind      Kind
	Status    model.Status
	Since     *time.Time
	Limit     int
	Offset    int
}

type MessageRepository interface {
	ListDue(ctx context.Context, now time.Time, limit int) ([]model.ScheduledMessage, error)
	GetContact(ctx context.Context, id int64) (*model.Contact, error)
	GetVehicle(ctx context.Context, id int64) (*model.Vehicle, error)

	MarkSent(ctx context.Context, id, remoteMessageID string, sentAt time.Time) error
	MarkFailed(ctx context.Context, id, reason string) error
	Cancel(ctx context.Context, id string) error
	CancelPendingForVehicle(ctx context.Context, vehicleID int64) (int64, error)

	// ScheduleReminder cancels every pending message of m's vehicle and inserts m
	// as its only pending reminder, atomically. It returns the number of canceled messages.
	ScheduleReminder(ctx context.Context, m *model.ScheduledMessage) (int64, error)
	CreateMessage(ctx context.Context, m *model.ScheduledMessage) error

	ListMessages(ctx context.Context, f MessageFilter) ([]model.MessageView, error)
	CountSent(ctx context.Context, day *time.Time) (int, error)
}

type ServiceRecordRepository interface {
	CreateServiceRecord(ctx context.Context, r *model.ServiceRecord) error
	GetServiceRecord(ctx context.Context, id int64) (*model.ServiceRecord, error)
	ContactsForVehicle(ctx context.Context, vehicleID int64) ([]model.Contact, error)
}

type InboundRepository interface {
	SaveInbound(ctx context.Context, m *model.IncomingMessage) error
	FindContactByNational(ctx context.Context, national string) (*model.Contact, error)
	ListInbound(ctx context.Context, limit, offset int) ([]model.IncomingMessage, error)
	UnreadCount(ctx context.Context) (int, error)
	MarkAllRead(ctx context.Context) (int64, error)
	CountInbound(ctx context.Context, day *time.Time) (int, error)
}
