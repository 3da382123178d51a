package reminder_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/LeventeLantos/service-reminders/internal/model"
	"github.com/LeventeLantos/service-reminders/internal/reminder"
	"github.com/LeventeLantos/service-reminders/internal/repo/repotest"
)

var (
	civic = model.Vehicle{ID: 1, VIN: "1HGCM82633A004352", Make: "Honda", Model: "Civic", Year: 2019}
	alice = model.Contact{ID: 10, Name: "Alice", PhoneNumber: "213-555-1212"}
	bob   = model.Contact{ID: 11, Name: "Bob", PhoneNumber: "323-555-0000"}
)

func newScheduler(t *testing.T, store reminder.Store, cfg reminder.Config) *reminder.Scheduler {
	t.Helper()
	s, err := reminder.New(store, cfg, nil)
	if err != nil {
		t.Fatalf("reminder.New error: %v", err)
	}
	return s
}

func event(due time.Time, c model.Contact) reminder.Event {
	v := civic
	return reminder.Event{
		Vehicle:    &v,
		Contact:    &c,
		DueDate:    due,
		DueMileage: 45000,
	}
}

func TestDueAt_FixedOffsetZone(t *testing.T) {
	t.Parallel()

	s := newScheduler(t, repotest.NewStore(), reminder.Config{Timezone: "Etc/GMT+8"})

	got := s.DueAt(time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC))
	want := time.Date(2025, 3, 10, 19, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestDueAt_DefaultZoneIgnoresDaylightSaving(t *testing.T) {
	t.Parallel()

	s := newScheduler(t, repotest.NewStore(), reminder.Config{})

	for _, date := range []time.Time{
		time.Date(2025, 3, 8, 0, 0, 0, 0, time.UTC),
		time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC),
		time.Date(2025, 7, 4, 0, 0, 0, 0, time.UTC),
	} {
		y, m, d := date.Date()
		want := time.Date(y, m, d, 19, 0, 0, 0, time.UTC)
		if got := s.DueAt(date); !got.Equal(want) {
			t.Fatalf("DueAt(%s): expected %v, got %v", date.Format(time.DateOnly), want, got)
		}
	}
}

func TestDueAt_FollowsDaylightSaving(t *testing.T) {
	t.Parallel()

	s := newScheduler(t, repotest.NewStore(), reminder.Config{Timezone: "America/Los_Angeles"})

	cases := []struct {
		date time.Time
		want time.Time
	}{
		// PST, the day before the 2025 spring-forward.
		{time.Date(2025, 3, 8, 0, 0, 0, 0, time.UTC), time.Date(2025, 3, 8, 19, 0, 0, 0, time.UTC)},
		// PDT.
		{time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC), time.Date(2025, 3, 10, 18, 0, 0, 0, time.UTC)},
		{time.Date(2025, 11, 3, 0, 0, 0, 0, time.UTC), time.Date(2025, 11, 3, 19, 0, 0, 0, time.UTC)},
	}
	for _, tc := range cases {
		if got := s.DueAt(tc.date); !got.Equal(tc.want) {
			t.Fatalf("DueAt(%s): expected %v, got %v", tc.date.Format(time.DateOnly), tc.want, got)
		}
	}
}

func TestDueAt_CustomSendTime(t *testing.T) {
	t.Parallel()

	s := newScheduler(t, repotest.NewStore(), reminder.Config{SendTime: "09:30", Timezone: "UTC"})

	got := s.DueAt(time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC))
	if want := time.Date(2025, 6, 1, 9, 30, 0, 0, time.UTC); !got.Equal(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestNew_InvalidConfig(t *testing.T) {
	t.Parallel()

	cases := map[string]reminder.Config{
		"send time":     {SendTime: "25:00"},
		"send time fmt": {SendTime: "1100"},
		"zone":          {Timezone: "Mars/Olympus"},
		"template":      {Template: "{{.Name"},
	}
	for name, cfg := range cases {
		if _, err := reminder.New(repotest.NewStore(), cfg, nil); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func TestOnServiceRecorded_ComposesReminder(t *testing.T) {
	t.Parallel()

	store := repotest.NewStore()
	s := newScheduler(t, store, reminder.Config{})

	due := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	m, err := s.OnServiceRecorded(context.Background(), event(due, alice))
	if err != nil {
		t.Fatalf("OnServiceRecorded error: %v", err)
	}

	want := "Reminder: Hi Alice, your Honda Civic (004352) is due for service on 2025-03-10 or at 45000 miles."
	if m.Content != want {
		t.Fatalf("unexpected content:\n got %q\nwant %q", m.Content, want)
	}
	if !m.IsReminder || m.Status != model.Pending {
		t.Fatalf("expected pending reminder, got %+v", m)
	}
	if m.ID == "" {
		t.Fatalf("expected id assigned by the store")
	}
	if _, ok := store.Message(m.ID); !ok {
		t.Fatalf("reminder not persisted")
	}
}

func TestOnServiceRecorded_CustomTemplate(t *testing.T) {
	t.Parallel()

	s := newScheduler(t, repotest.NewStore(), reminder.Config{Template: "{{.Name}}: oil change by {{.DueDate}}"})

	m, err := s.OnServiceRecorded(context.Background(), event(time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC), bob))
	if err != nil {
		t.Fatalf("OnServiceRecorded error: %v", err)
	}
	if m.Content != "Bob: oil change by 2025-04-01" {
		t.Fatalf("unexpected content %q", m.Content)
	}
}

func TestOnServiceRecorded_Supersedes(t *testing.T) {
	t.Parallel()

	store := repotest.NewStore()
	s := newScheduler(t, store, reminder.Config{})
	ctx := context.Background()

	first, err := s.OnServiceRecorded(ctx, event(time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC), alice))
	if err != nil {
		t.Fatalf("first OnServiceRecorded error: %v", err)
	}
	second, err := s.OnServiceRecorded(ctx, event(time.Date(2025, 9, 10, 0, 0, 0, 0, time.UTC), alice))
	if err != nil {
		t.Fatalf("second OnServiceRecorded error: %v", err)
	}

	old, _ := store.Message(first.ID)
	if old.Status != model.Canceled {
		t.Fatalf("expected old reminder canceled, got %s", old.Status)
	}

	pending := 0
	for _, m := range store.Messages(civic.ID) {
		if m.Status == model.Pending {
			pending++
			if m.ID != second.ID {
				t.Fatalf("unexpected pending message %s", m.ID)
			}
		}
	}
	if pending != 1 {
		t.Fatalf("expected exactly one pending reminder, got %d", pending)
	}
}

func TestOnServiceRecorded_OneReminderPerVehicle(t *testing.T) {
	t.Parallel()

	store := repotest.NewStore()
	s := newScheduler(t, store, reminder.Config{})
	ctx := context.Background()
	due := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)

	if _, err := s.OnServiceRecorded(ctx, event(due, alice)); err != nil {
		t.Fatalf("OnServiceRecorded(alice) error: %v", err)
	}
	latest, err := s.OnServiceRecorded(ctx, event(due, bob))
	if err != nil {
		t.Fatalf("OnServiceRecorded(bob) error: %v", err)
	}

	var pending []model.ScheduledMessage
	for _, m := range store.Messages(civic.ID) {
		if m.Status == model.Pending {
			pending = append(pending, m)
		}
	}
	if len(pending) != 1 {
		t.Fatalf("expected exactly one pending reminder, got %d", len(pending))
	}
	if pending[0].ID != latest.ID || pending[0].ContactID != bob.ID {
		t.Fatalf("expected the pending reminder to be Bob's latest, got %+v", pending[0])
	}
}

func TestOnServiceRecorded_MalformedTrigger(t *testing.T) {
	t.Parallel()

	due := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)

	noVehicle := event(due, alice)
	noVehicle.Vehicle = nil
	noMileage := event(due, alice)
	noMileage.DueMileage = 0
	noContact := event(due, alice)
	noContact.Contact = nil

	cases := map[string]reminder.Event{
		"missing due date": event(time.Time{}, alice),
		"missing vehicle":  noVehicle,
		"no contact":       noContact,
		"no mileage":       noMileage,
	}

	for name, ev := range cases {
		t.Run(name, func(t *testing.T) {
			store := repotest.NewStore()
			s := newScheduler(t, store, reminder.Config{})

			_, err := s.OnServiceRecorded(context.Background(), ev)
			if !errors.Is(err, reminder.ErrMalformedTrigger) {
				t.Fatalf("expected ErrMalformedTrigger, got %v", err)
			}
			if got := store.Messages(civic.ID); len(got) != 0 {
				t.Fatalf("malformed trigger persisted %d messages", len(got))
			}
		})
	}
}

func TestOnServiceRecorded_StoreError(t *testing.T) {
	t.Parallel()

	store := repotest.NewStore()
	store.ScheduleErr = errors.New("db down")
	s := newScheduler(t, store, reminder.Config{})

	_, err := s.OnServiceRecorded(context.Background(), event(time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC), alice))
	if err == nil || errors.Is(err, reminder.ErrMalformedTrigger) {
		t.Fatalf("expected store error, got %v", err)
	}
}

func TestCheckDue(t *testing.T) {
	t.Parallel()

	due := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	if err := reminder.CheckDue(due, 45000); err != nil {
		t.Fatalf("expected valid trigger, got %v", err)
	}
	if err := reminder.CheckDue(time.Time{}, 45000); !errors.Is(err, reminder.ErrMalformedTrigger) {
		t.Fatalf("zero date: expected ErrMalformedTrigger, got %v", err)
	}
	if err := reminder.CheckDue(due, -1); !errors.Is(err, reminder.ErrMalformedTrigger) {
		t.Fatalf("negative mileage: expected ErrMalformedTrigger, got %v", err)
	}
}
