package repotest

import (
	"context"
	"testing"
	"time"

	"github.com/LeventeLantos/service-reminders/internal/model"
)

func reminderFor(contactID int64) *model.ScheduledMessage {
	return &model.ScheduledMessage{
		ContactID:     contactID,
		VehicleID:     7,
		Content:       "Reminder",
		ScheduledTime: time.Date(2025, 3, 10, 19, 0, 0, 0, time.UTC),
		IsReminder:    true,
		Status:        model.Pending,
	}
}

func TestStore_OnePendingReminderPerVehicle(t *testing.T) {
	t.Parallel()

	s := NewStore()
	ctx := context.Background()

	if err := s.CreateMessage(ctx, reminderFor(1)); err != nil {
		t.Fatalf("first reminder: %v", err)
	}
	if err := s.CreateMessage(ctx, reminderFor(2)); err == nil {
		t.Fatalf("expected a second pending reminder for the vehicle to be refused")
	}

	canceled, err := s.ScheduleReminder(ctx, reminderFor(2))
	if err != nil {
		t.Fatalf("ScheduleReminder: %v", err)
	}
	if canceled != 1 {
		t.Fatalf("expected 1 superseded reminder, got %d", canceled)
	}

	pending := 0
	for _, m := range s.Messages(7) {
		if m.Status == model.Pending {
			pending++
			if m.ContactID != 2 {
				t.Fatalf("expected the surviving reminder to be contact 2's, got %d", m.ContactID)
			}
		}
	}
	if pending != 1 {
		t.Fatalf("expected exactly one pending reminder, got %d", pending)
	}
}
