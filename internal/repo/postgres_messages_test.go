package repo

import (
	"io/fs"
	"strings"
	"testing"
	"time"

	"github.com/LeventeLantos/service-reminders/internal/model"
)

func TestBuildListQuery_Defaults(t *testing.T) {
	q, args := buildListQuery(MessageFilter{})

	if strings.Contains(q, "WHERE") {
		t.Fatalf("unexpected WHERE in unfiltered query:\n%s", q)
	}
	if !strings.Contains(q, "LIMIT $1 OFFSET $2") {
		t.Fatalf("expected limit/offset placeholders:\n%s", q)
	}
	if len(args) != 2 || args[0] != 50 || args[1] != 0 {
		t.Fatalf("unexpected args %v", args)
	}
}

func TestBuildListQuery_AllFilters(t *testing.T) {
	vid := int64(7)
	since := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

	q, args := buildListQuery(MessageFilter{
		VehicleID: &vid,
		Kind:      KindReminder,
		Status:    model.Pending,
		Since:     &since,
		Limit:     10,
		Offset:    20,
	})

	for _, want := range []string{
		"m.vehicle_id = $1",
		"m.is_reminder",
		"m.status = $2",
		"m.scheduled_time >= $3",
		"LIMIT $4 OFFSET $5",
		"LEFT JOIN contacts",
		"LEFT JOIN vehicles",
	} {
		if !strings.Contains(q, want) {
			t.Fatalf("query missing %q:\n%s", want, q)
		}
	}
	if len(args) != 5 {
		t.Fatalf("expected 5 args, got %d", len(args))
	}
	if args[0] != vid || args[1] != "pending" || args[3] != 10 || args[4] != 20 {
		t.Fatalf("unexpected args %v", args)
	}
}

func TestBuildListQuery_PickupKind(t *testing.T) {
	q, args := buildListQuery(MessageFilter{Kind: KindPickup, Offset: -5})
	if !strings.Contains(q, "NOT m.is_reminder") {
		t.Fatalf("expected pickup filter:\n%s", q)
	}
	if args[1] != 0 {
		t.Fatalf("negative offset must clamp to 0, got %v", args[1])
	}
}

func TestDayBounds(t *testing.T) {
	loc := time.FixedZone("UTC-8", -8*3600)
	start, end := dayBounds(time.Date(2025, 3, 10, 23, 30, 0, 0, loc))

	if !start.Equal(time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected start %v", start)
	}
	if end.Sub(start) != 24*time.Hour {
		t.Fatalf("unexpected span %v", end.Sub(start))
	}
}

func TestMigrationsEmbedded(t *testing.T) {
	files, err := fs.Glob(migrationsFS, "migrations/*.sql")
	if err != nil {
		t.Fatalf("glob: %v", err)
	}
	if len(files) != 2 {
		t.Fatalf("expected up and down migration, got %v", files)
	}

	up, err := fs.ReadFile(migrationsFS, "migrations/000001_init.up.sql")
	if err != nil {
		t.Fatalf("read up migration: %v", err)
	}
	if !strings.Contains(string(up), "uq_scheduled_messages_live_reminder") {
		t.Fatalf("up migration must carry the live reminder index")
	}
	// One pending reminder per vehicle, regardless of contact.
	if !strings.Contains(string(up), "ON scheduled_messages (vehicle_id)\n    WHERE status = 'pending' AND is_reminder") {
		t.Fatalf("live reminder index must be keyed on vehicle_id alone")
	}
}
