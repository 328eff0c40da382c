package repositories

import (
	"context"
	"database/sql"
	"errors"
	"field-service-router/internal/domain"
	"field-service-router/internal/platform/db"
	"field-service-router/internal/platform/obs"
	"field-service-router/internal/ports"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var _ ports.AppointmentStore = (*SQLAppointmentRepository)(nil)

const appointmentColumns = `
	id,
	client_name,
	address,
	lon,
	lat,
	status,
	date,
	scheduled_at,
	urgent,
	service_type,
	priority,
	service_minutes,
	technician_id
`

// SQL implementation of the appointment ports for Postgres (pgx) and SQLite.
// Queries are written with '?' and rebound for the configured driver.
type SQLAppointmentRepository struct {
	DB     *sql.DB
	Driver string
}

func NewSQLAppointmentRepository(conn *sql.DB, driver string) *SQLAppointmentRepository {
	return &SQLAppointmentRepository{DB: conn, Driver: driver}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAppointment(r rowScanner) (domain.Appointment, error) {
	var (
		a           domain.Appointment
		status      string
		serviceType string
		lon, lat    sql.NullFloat64
		scheduledAt sql.NullString
	)

	err := r.Scan(
		&a.ID,
		&a.ClientName,
		&a.Address,
		&lon,
		&lat,
		&status,
		&a.Date,
		&scheduledAt,
		&a.Urgent,
		&serviceType,
		&a.Priority,
		&a.ServiceMinutes,
		&a.TechnicianID,
	)
	if err != nil {
		return domain.Appointment{}, err
	}

	a.Status = domain.AppointmentStatus(status)
	a.ServiceType = domain.ServiceType(serviceType)
	if lon.Valid && lat.Valid {
		a.Coordinates = &domain.Coordinates{Lon: lon.Float64, Lat: lat.Float64}
	}
	if scheduledAt.Valid && scheduledAt.String != "" {
		at, err := time.Parse(time.RFC3339, scheduledAt.String)
		if err != nil {
			return domain.Appointment{}, fmt.Errorf("parse scheduled_at %q for id=%s: %w", scheduledAt.String, a.ID, err)
		}
		a.ScheduledAt = &at
	}
	return a, nil
}

func appointmentArgs(a domain.Appointment) []any {
	var lon, lat, scheduledAt any
	if a.Coordinates != nil {
		lon, lat = a.Coordinates.Lon, a.Coordinates.Lat
	}
	if a.ScheduledAt != nil {
		scheduledAt = a.ScheduledAt.Format(time.RFC3339)
	}
	return []any{
		a.ID,
		a.ClientName,
		a.Address,
		lon,
		lat,
		string(a.Status),
		a.Date,
		scheduledAt,
		a.Urgent,
		string(a.ServiceType),
		a.Priority,
		a.ServiceMinutes,
		a.TechnicianID,
	}
}

func (s *SQLAppointmentRepository) query(
	ctx context.Context,
	op string,
	q string,
	args ...any,
) ([]domain.Appointment, error) {
	if s.DB == nil {
		return nil, errors.New("sql appointment repository: DB is nil")
	}

	rows, err := s.DB.QueryContext(ctx, db.Rebind(s.Driver, q), args...)
	if err != nil {
		return nil, fmt.Errorf("%s: query appointments table: %w", op, err)
	}
	defer rows.Close()

	out := make([]domain.Appointment, 0, 64)
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: scan row: %w", op, err)
		}
		out = append(out, a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: row iteration: %w", op, err)
	}

	return out, nil
}

// Return all appointments stored in the database.
func (s *SQLAppointmentRepository) ListAppointments(ctx context.Context) (_ []domain.Appointment, err error) {
	defer obs.Time(ctx, "appointments.List")(&err)

	return s.query(ctx, "list appointments", `
	SELECT`+appointmentColumns+`
	FROM appointments
	ORDER BY date, id;
	`)
}

func (s *SQLAppointmentRepository) ListAppointmentsByDate(
	ctx context.Context,
	day string,
	status domain.AppointmentStatus,
) (_ []domain.Appointment, err error) {
	defer obs.Time(ctx, "appointments.ListByDate")(&err)

	return s.query(ctx, "list appointments by date", `
	SELECT`+appointmentColumns+`
	FROM appointments
	WHERE date = ? AND status = ?
	ORDER BY id;
	`, day, string(status))
}

func (s *SQLAppointmentRepository) GetAppointment(ctx context.Context, id string) (domain.Appointment, error) {
	if s.DB == nil {
		return domain.Appointment{}, errors.New("sql appointment repository: DB is nil")
	}

	row := s.DB.QueryRowContext(ctx, db.Rebind(s.Driver, `
	SELECT`+appointmentColumns+`
	FROM appointments
	WHERE id = ?;
	`), id)

	a, err := scanAppointment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Appointment{}, fmt.Errorf("get appointment id=%s: %w", id, ports.ErrNotFound)
	}
	if err != nil {
		return domain.Appointment{}, fmt.Errorf("get appointment id=%s: %w", id, err)
	}
	return a, nil
}

// CreateAppointment inserts a new record. An empty id is replaced by a UUID.
func (s *SQLAppointmentRepository) CreateAppointment(ctx context.Context, a domain.Appointment) (domain.Appointment, error) {
	if s.DB == nil {
		return domain.Appointment{}, errors.New("sql appointment repository: DB is nil")
	}
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if err := normalize(&a); err != nil {
		return domain.Appointment{}, fmt.Errorf("create appointment: %w", err)
	}

	q := db.Rebind(s.Driver, `
	INSERT INTO appointments (`+appointmentColumns+`)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?);
	`)
	if _, err := s.DB.ExecContext(ctx, q, appointmentArgs(a)...); err != nil {
		return domain.Appointment{}, fmt.Errorf("create appointment id=%s: %w", a.ID, err)
	}
	return a, nil
}

// UpdateAppointment applies a partial update inside a transaction.
func (s *SQLAppointmentRepository) UpdateAppointment(
	ctx context.Context,
	id string,
	patch domain.AppointmentPatch,
) (_ domain.Appointment, err error) {
	defer obs.Time(ctx, "appointments.Update")(&err)

	if s.DB == nil {
		return domain.Appointment{}, errors.New("sql appointment repository: DB is nil")
	}

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Appointment{}, fmt.Errorf("update appointment: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	selectQuery := `
	SELECT` + appointmentColumns + `
	FROM appointments
	WHERE id = ?`
	if s.Driver == db.DriverPostgres {
		selectQuery += " FOR UPDATE"
	}

	current, err := scanAppointment(tx.QueryRowContext(ctx, db.Rebind(s.Driver, selectQuery), id))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Appointment{}, fmt.Errorf("update appointment id=%s: %w", id, ports.ErrNotFound)
	}
	if err != nil {
		return domain.Appointment{}, fmt.Errorf("update appointment id=%s: load: %w", id, err)
	}

	updated := current.Apply(patch)
	if err := normalize(&updated); err != nil {
		return domain.Appointment{}, fmt.Errorf("update appointment: %w", err)
	}

	args := appointmentArgs(updated)
	updateQuery := db.Rebind(s.Driver, `
	UPDATE appointments
	SET status = ?, date = ?, scheduled_at = ?
	WHERE id = ?;
	`)
	if _, err := tx.ExecContext(ctx, updateQuery, args[5], args[6], args[7], id); err != nil {
		return domain.Appointment{}, fmt.Errorf("update appointment id=%s: exec: %w", id, err)
	}

	if err := tx.Commit(); err != nil {
		return domain.Appointment{}, fmt.Errorf("update appointment: commit tx: %w", err)
	}

	return updated, nil
}

// UpsertMany writes records in one transaction, replacing existing ids.
func (s *SQLAppointmentRepository) UpsertMany(ctx context.Context, items []domain.Appointment) error {
	if s.DB == nil {
		return errors.New("sql appointment repository: DB is nil")
	}
	if len(items) == 0 {
		return nil
	}

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("upsert appointments: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, db.Rebind(s.Driver, `
	INSERT INTO appointments (`+appointmentColumns+`)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (id) DO UPDATE
	SET client_name = excluded.client_name,
		address = excluded.address,
		lon = excluded.lon,
		lat = excluded.lat,
		status = excluded.status,
		date = excluded.date,
		scheduled_at = excluded.scheduled_at,
		urgent = excluded.urgent,
		service_type = excluded.service_type,
		priority = excluded.priority,
		service_minutes = excluded.service_minutes,
		technician_id = excluded.technician_id;
	`))
	if err != nil {
		return fmt.Errorf("upsert appointments: prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, a := range items {
		if err := normalize(&a); err != nil {
			return fmt.Errorf("upsert appointments: %w", err)
		}
		if _, err := stmt.ExecContext(ctx, appointmentArgs(a)...); err != nil {
			return fmt.Errorf("upsert appointments: insert id=%s: %w", a.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("upsert appointments: commit tx: %w", err)
	}

	return nil
}
