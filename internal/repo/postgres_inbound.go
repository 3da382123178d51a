package repo

import (
	"context"
	"database/sql"
	"time"

	"github.com/LeventeLantos/service-reminders/internal/model"
)

type PostgresInboundRepo struct {
	db *sql.DB
}

func NewPostgresInboundRepo(db *sql.DB) *PostgresInboundRepo {
	return &PostgresInboundRepo{db: db}
}

func (r *PostgresInboundRepo) SaveInbound(ctx context.Context, m *model.IncomingMessage) error {
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	return r.db.QueryRowContext(ctx, `
		INSERT INTO incoming_messages (from_number, to_number, body, contact_id, created_at, is_read)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`, m.FromNumber, m.ToNumber, m.Body, m.ContactID, m.CreatedAt, m.IsRead).Scan(&m.ID)
}

// FindContactByNational matches a contact whose stored number has the given
// ten national digits, regardless of how it was formatted on entry.
func (r *PostgresInboundRepo) FindContactByNational(ctx context.Context, national string) (*model.Contact, error) {
	return getContact(ctx, r.db,
		`WHERE right(regexp_replace(phone_number, '\D', '', 'g'), 10) = $1`, national)
}

func (r *PostgresInboundRepo) ListInbound(ctx context.Context, limit, offset int) ([]model.IncomingMessage, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT i.id, i.from_number, i.to_number, i.body, i.contact_id,
		       COALESCE(c.name, ''), i.created_at, i.is_read
		FROM incoming_messages i
		LEFT JOIN contacts c ON c.id = i.contact_id
		ORDER BY i.created_at DESC
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.IncomingMessage
	for rows.Next() {
		var (
			m         model.IncomingMessage
			contactID sql.NullInt64
		)
		if err := rows.Scan(&m.ID, &m.FromNumber, &m.ToNumber, &m.Body, &contactID,
			&m.ContactName, &m.CreatedAt, &m.IsRead); err != nil {
			return nil, err
		}
		if contactID.Valid {
			id := contactID.Int64
			m.ContactID = &id
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (r *PostgresInboundRepo) UnreadCount(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT count(*) FROM incoming_messages WHERE NOT is_read`).Scan(&n)
	return n, err
}

func (r *PostgresInboundRepo) MarkAllRead(ctx context.Context) (int64, error) {
	res, err := r.db.ExecContext(ctx, `UPDATE incoming_messages SET is_read = TRUE WHERE NOT is_read`)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *PostgresInboundRepo) CountInbound(ctx context.Context, day *time.Time) (int, error) {
	q := `SELECT count(*) FROM incoming_messages`
	var args []any
	if day != nil {
		start, end := dayBounds(*day)
		q += ` WHERE created_at >= $1 AND created_at < $2`
		args = append(args, start, end)
	}
	var n int
	err := r.db.QueryRowContext(ctx, q, args...).Scan(&n)
	return n, err
}
