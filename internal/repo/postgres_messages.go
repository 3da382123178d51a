package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/LeventeLantos/service-reminders/internal/model"
)

type PostgresMessageRepo struct {
	db *sql.DB
}

func NewPostgresMessageRepo(db *sql.DB) *PostgresMessageRepo {
	return &PostgresMessageRepo{db: db}
}

const messageColumns = `
	m.id, m.contact_id, m.vehicle_id, m.service_record_id, m.content,
	m.scheduled_time, m.created_at, m.sent_at, m.is_reminder, m.status,
	m.provider_message_id, m.failure_reason`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMessage(s rowScanner, extra ...any) (model.ScheduledMessage, error) {
	var (
		m        model.ScheduledMessage
		recordID sql.NullInt64
		sentAt   sql.NullTime
		remoteID sql.NullString
		reason   sql.NullString
		status   string
	)

	dest := []any{
		&m.ID, &m.ContactID, &m.VehicleID, &recordID, &m.Content,
		&m.ScheduledTime, &m.CreatedAt, &sentAt, &m.IsReminder, &status,
		&remoteID, &reason,
	}
	if err := s.Scan(append(dest, extra...)...); err != nil {
		return m, err
	}

	m.Status = model.Status(status)
	if recordID.Valid {
		id := recordID.Int64
		m.ServiceRecordID = &id
	}
	if sentAt.Valid {
		t := sentAt.Time
		m.SentAt = &t
	}
	if remoteID.Valid {
		s := remoteID.String
		m.ProviderMessageID = &s
	}
	if reason.Valid {
		s := reason.String
		m.FailureReason = &s
	}
	return m, nil
}

func (r *PostgresMessageRepo) ListDue(ctx context.Context, now time.Time, limit int) ([]model.ScheduledMessage, error) {
	if limit <= 0 {
		return nil, errors.New("limit must be > 0")
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT `+messageColumns+`
		FROM scheduled_messages m
		WHERE m.status = 'pending' AND m.scheduled_time <= $1
		ORDER BY m.scheduled_time ASC
		LIMIT $2
	`, now.UTC(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var msgs []model.ScheduledMessage
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

func (r *PostgresMessageRepo) GetContact(ctx context.Context, id int64) (*model.Contact, error) {
	return getContact(ctx, r.db, `WHERE id = $1`, id)
}

func getContact(ctx context.Context, db *sql.DB, where string, arg any) (*model.Contact, error) {
	var (
		c     model.Contact
		email sql.NullString
	)
	err := db.QueryRowContext(ctx, `SELECT id, name, phone_number, email FROM contacts `+where+` LIMIT 1`, arg).
		Scan(&c.ID, &c.Name, &c.PhoneNumber, &email)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if email.Valid {
		s := email.String
		c.Email = &s
	}
	return &c, nil
}

func (r *PostgresMessageRepo) GetVehicle(ctx context.Context, id int64) (*model.Vehicle, error) {
	var (
		v     model.Vehicle
		trim  sql.NullString
		plate sql.NullString
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT id, vin, make, model, year, trim, plate
		FROM vehicles WHERE id = $1
	`, id).Scan(&v.ID, &v.VIN, &v.Make, &v.Model, &v.Year, &trim, &plate)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if trim.Valid {
		s := trim.String
		v.Trim = &s
	}
	if plate.Valid {
		s := plate.String
		v.Plate = &s
	}
	return &v, nil
}

func (r *PostgresMessageRepo) MarkSent(ctx context.Context, id, remoteMessageID string, sentAt time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE scheduled_messages
		SET status = 'sent',
		    sent_at = $2,
		    provider_message_id = $3,
		    failure_reason = NULL
		WHERE id = $1 AND status = 'pending'
	`, id, sentAt.UTC(), remoteMessageID)
	return r.transitioned(ctx, res, err, id)
}

func (r *PostgresMessageRepo) MarkFailed(ctx context.Context, id, reason string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE scheduled_messages
		SET status = 'failed',
		    failure_reason = $2
		WHERE id = $1 AND status = 'pending'
	`, id, reason)
	return r.transitioned(ctx, res, err, id)
}

func (r *PostgresMessageRepo) Cancel(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE scheduled_messages
		SET status = 'canceled'
		WHERE id = $1 AND status = 'pending'
	`, id)
	return r.transitioned(ctx, res, err, id)
}

// transitioned turns a zero-row conditional update into ErrNotFound or ErrNotPending.
func (r *PostgresMessageRepo) transitioned(ctx context.Context, res sql.Result, err error, id string) error {
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 1 {
		return nil
	}

	var exists bool
	if err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM scheduled_messages WHERE id = $1)`, id,
	).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return ErrNotFound
	}
	return ErrNotPending
}

func (r *PostgresMessageRepo) CancelPendingForVehicle(ctx context.Context, vehicleID int64) (int64, error) {
	return cancelPendingForVehicle(ctx, r.db, vehicleID)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func cancelPendingForVehicle(ctx context.Context, db execer, vehicleID int64) (int64, error) {
	res, err := db.ExecContext(ctx, `
		UPDATE scheduled_messages
		SET status = 'canceled'
		WHERE vehicle_id = $1 AND status = 'pending'
	`, vehicleID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *PostgresMessageRepo) ScheduleReminder(ctx context.Context, m *model.ScheduledMessage) (int64, error) {
	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	canceled, err := cancelPendingForVehicle(ctx, tx, m.VehicleID)
	if err != nil {
		return 0, fmt.Errorf("supersede pending messages for vehicle %d: %w", m.VehicleID, err)
	}

	m.Status = model.Pending
	m.IsReminder = true
	m.SentAt = nil
	if err := insertMessage(ctx, tx, m); err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return canceled, nil
}

func (r *PostgresMessageRepo) CreateMessage(ctx context.Context, m *model.ScheduledMessage) error {
	if !m.Status.Valid() {
		return fmt.Errorf("invalid status %q", m.Status)
	}
	return insertMessage(ctx, r.db, m)
}

func insertMessage(ctx context.Context, db execer, m *model.ScheduledMessage) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	if m.Status == "" {
		m.Status = model.Pending
	}

	_, err := db.ExecContext(ctx, `
		INSERT INTO scheduled_messages (
			id, contact_id, vehicle_id, service_record_id, content,
			scheduled_time, created_at, sent_at, is_reminder, status,
			provider_message_id, failure_reason
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`,
		m.ID, m.ContactID, m.VehicleID, m.ServiceRecordID, m.Content,
		m.ScheduledTime.UTC(), m.CreatedAt.UTC(), m.SentAt, m.IsReminder, string(m.Status),
		m.ProviderMessageID, m.FailureReason,
	)
	return err
}

func (r *PostgresMessageRepo) ListMessages(ctx context.Context, f MessageFilter) ([]model.MessageView, error) {
	query, args := buildListQuery(f)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.MessageView
	for rows.Next() {
		var (
			v                         model.MessageView
			name, phoneNum, vin, info sql.NullString
		)
		m, err := scanMessage(rows, &name, &phoneNum, &vin, &info)
		if err != nil {
			return nil, err
		}
		v.ScheduledMessage = m
		v.ContactName = nullOr(name, "Unknown")
		v.ContactPhone = nullOr(phoneNum, "Unknown")
		v.VIN = nullOr(vin, "Unknown")
		v.VehicleInfo = nullOr(info, "Unknown")
		out = append(out, v)
	}
	return out, rows.Err()
}

func buildListQuery(f MessageFilter) (string, []any) {
	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if f.VehicleID != nil {
		where = append(where, "m.vehicle_id = "+arg(*f.VehicleID))
	}
	switch f.Kind {
	case KindReminder:
		where = append(where, "m.is_reminder")
	case KindPickup:
		where = append(where, "NOT m.is_reminder")
	}
	if f.Status != "" {
		where = append(where, "m.status = "+arg(string(f.Status)))
	}
	if f.Since != nil {
		where = append(where, "m.scheduled_time >= "+arg(f.Since.UTC()))
	}

	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	offset := f.Offset
	if offset < 0 {
		offset = 0
	}

	var b strings.Builder
	b.WriteString(`
		SELECT ` + messageColumns + `,
		       c.name, c.phone_number, v.vin,
		       v.year::text || ' ' || v.make || ' ' || v.model
		FROM scheduled_messages m
		LEFT JOIN contacts c ON c.id = m.contact_id
		LEFT JOIN vehicles v ON v.id = m.vehicle_id`)
	if len(where) > 0 {
		b.WriteString("\n\t\tWHERE ")
		b.WriteString(strings.Join(where, " AND "))
	}
	b.WriteString("\n\t\tORDER BY m.scheduled_time DESC")
	b.WriteString("\n\t\tLIMIT " + arg(limit) + " OFFSET " + arg(offset))

	return b.String(), args
}

func (r *PostgresMessageRepo) CountSent(ctx context.Context, day *time.Time) (int, error) {
	q := `SELECT count(*) FROM scheduled_messages WHERE status = 'sent'`
	var args []any
	if day != nil {
		q += ` AND sent_at >= $1 AND sent_at < $2`
		start, end := dayBounds(*day)
		args = append(args, start, end)
	}
	var n int
	err := r.db.QueryRowContext(ctx, q, args...).Scan(&n)
	return n, err
}

// dayBounds returns the half-open [start, end) range of the calendar day of t in t's location.
func dayBounds(t time.Time) (time.Time, time.Time) {
	start := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	return start.UTC(), start.AddDate(0, 0, 1).UTC()
}

func nullOr(s sql.NullString, def string) string {
	if s.Valid {
		return s.String
	}
	return def
}
