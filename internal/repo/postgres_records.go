package repo

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/LeventeLantos/service-reminders/internal/model"
)

type PostgresServiceRecordRepo struct {
	db *sql.DB
}

func NewPostgresServiceRecordRepo(db *sql.DB) *PostgresServiceRecordRepo {
	return &PostgresServiceRecordRepo{db: db}
}

func (r *PostgresServiceRecordRepo) CreateServiceRecord(ctx context.Context, rec *model.ServiceRecord) error {
	if rec.ServiceDate.IsZero() {
		rec.ServiceDate = time.Now().UTC()
	}
	return r.db.QueryRowContext(ctx, `
		INSERT INTO service_records (
			vehicle_id, service_date, oil_type, oil_viscosity,
			mileage_at_service, next_service_mileage_due, next_service_date_due, notes
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`,
		rec.VehicleID, rec.ServiceDate, rec.OilType, rec.OilViscosity,
		rec.MileageAtService, rec.NextServiceMileageDue, rec.NextServiceDateDue, rec.Notes,
	).Scan(&rec.ID)
}

func (r *PostgresServiceRecordRepo) GetServiceRecord(ctx context.Context, id int64) (*model.ServiceRecord, error) {
	var (
		rec   model.ServiceRecord
		notes sql.NullString
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT id, vehicle_id, service_date, oil_type, oil_viscosity,
		       mileage_at_service, next_service_mileage_due, next_service_date_due, notes
		FROM service_records WHERE id = $1
	`, id).Scan(
		&rec.ID, &rec.VehicleID, &rec.ServiceDate, &rec.OilType, &rec.OilViscosity,
		&rec.MileageAtService, &rec.NextServiceMileageDue, &rec.NextServiceDateDue, &notes,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if notes.Valid {
		s := notes.String
		rec.Notes = &s
	}
	return &rec, nil
}

func (r *PostgresServiceRecordRepo) ContactsForVehicle(ctx context.Context, vehicleID int64) ([]model.Contact, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT c.id, c.name, c.phone_number, c.email
		FROM contacts c
		JOIN vehicle_contacts vc ON vc.contact_id = c.id
		WHERE vc.vehicle_id = $1
		ORDER BY c.id
	`, vehicleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Contact
	for rows.Next() {
		var (
			c     model.Contact
			email sql.NullString
		)
		if err := rows.Scan(&c.ID, &c.Name, &c.PhoneNumber, &email); err != nil {
			return nil, err
		}
		if email.Valid {
			s := email.String
			c.Email = &s
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
