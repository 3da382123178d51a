package model

import "time"

type Status string

const (
	Pending  Status = "pending"
	Sent     Status = "sent"
	Failed   Status = "failed"
	Canceled Status = "canceled"
)

// Terminal reports whether no further transition is allowed from s.
func (s Status) Terminal() bool {
	return s == Sent || s == Failed || s == Canceled
}

func (s Status) Valid() bool {
	return s == Pending || s.Terminal()
}

type ScheduledMessage struct {
	ID              string     `json:"id"`
	ContactID       int64      `json:"contactId"`
	VehicleID       int64      `json:"vehicleId"`
	ServiceRecordID *int64     `json:"serviceRecordId,omitempty"`
	Content         string     `json:"content"`
	ScheduledTime   time.Time  `json:"scheduledTime"`
	CreatedAt       time.Time  `json:"createdAt"`
	SentAt          *time.Time `json:"sentAt,omitempty"`
	IsReminder      bool       `json:"isReminder"`
	Status          Status     `json:"status"`

	ProviderMessageID *string `json:"providerMessageId,omitempty"`
	FailureReason     *string `json:"failureReason,omitempty"`
}

// IsDue reports whether m is pending and its scheduled time is not after now.
func (m ScheduledMessage) IsDue(now time.Time) bool {
	return m.Status == Pending && !m.ScheduledTime.After(now)
}

// MessageView is a history row joined with its contact and vehicle.
type MessageView struct {
	ScheduledMessage
	ContactName  string `json:"contactName"`
	ContactPhone string `json:"contactPhone"`
	VIN          string `json:"vin"`
	VehicleInfo  string `json:"vehicleInfo"`
}

type IncomingMessage struct {
	ID          int64     `json:"id"`
	FromNumber  string    `json:"fromNumber"`
	ToNumber    string    `json:"toNumber"`
	Body        string    `json:"body"`
	ContactID   *int64    `json:"contactId,omitempty"`
	ContactName string    `json:"contactName,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	IsRead      bool      `json:"isRead"`
}
