package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"field-service-router/internal/domain"
	"fmt"
	"os"
	"strings"
	"time"
)

// Initialize the appointment and geocode cache schema.
// The DDL is portable between SQLite and Postgres.
func InitSchema(ctx context.Context, db *sql.DB) error {
	if db == nil {
		return errors.New("init schema: DB is nil")
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("init schema: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	createAppointmentsQuery := `
	CREATE TABLE IF NOT EXISTS appointments (
		id TEXT PRIMARY KEY,
		client_name TEXT NOT NULL DEFAULT '',
		address TEXT NOT NULL DEFAULT '',
		lon DOUBLE PRECISION,
		lat DOUBLE PRECISION,
		status TEXT NOT NULL,
		date TEXT NOT NULL,
		scheduled_at TEXT,
		urgent BOOLEAN NOT NULL DEFAULT FALSE,
		service_type TEXT NOT NULL DEFAULT 'in-home',
		priority INTEGER NOT NULL DEFAULT 1,
		service_minutes INTEGER NOT NULL DEFAULT 0,
		technician_id TEXT NOT NULL DEFAULT ''
	);
	`

	createGeocodeCacheQuery := `
	CREATE TABLE IF NOT EXISTS geocode_cache (
		address TEXT PRIMARY KEY,
		lon DOUBLE PRECISION NOT NULL,
		lat DOUBLE PRECISION NOT NULL
	);
	`

	createIndexQuery := `
	CREATE INDEX IF NOT EXISTS idx_appointments_date_status
	ON appointments(date, status);
	`

	statements := []string{
		createAppointmentsQuery,
		createGeocodeCacheQuery,
		createIndexQuery,
	}

	for i, stmt := range statements {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("init schema: exec statement #%d: %w", i+1, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("init schema: commit tx: %w", err)
	}

	return nil
}

type AppointmentSeed struct {
	ID             string     `json:"id"`
	ClientName     string     `json:"client_name"`
	Address        string     `json:"address"`
	Lon            *float64   `json:"lon"`
	Lat            *float64   `json:"lat"`
	Status         string     `json:"status"`
	Date           string     `json:"date"`
	ScheduledAt    *time.Time `json:"scheduled_at"`
	Urgent         bool       `json:"urgent"`
	ServiceType    string     `json:"service_type"`
	Priority       int        `json:"priority"`
	ServiceMinutes int        `json:"service_minutes"`
	TechnicianID   string     `json:"technician_id"`
}

// LoadSeedFile reads and validates appointment seeds from a JSON file.
func LoadSeedFile(jsonPath string) ([]domain.Appointment, error) {
	bytes, err := os.ReadFile(jsonPath)
	if err != nil {
		return nil, fmt.Errorf("seed appointments: read %q: %w", jsonPath, err)
	}

	var data []AppointmentSeed
	if err := json.Unmarshal(bytes, &data); err != nil {
		return nil, fmt.Errorf("seed appointments: parse json: %w", err)
	}

	out := make([]domain.Appointment, 0, len(data))
	for i, item := range data {
		a, err := item.toAppointment()
		if err != nil {
			return nil, fmt.Errorf("seed appointments: item at index %d: %w", i+1, err)
		}
		out = append(out, a)
	}
	return out, nil
}

func (s AppointmentSeed) toAppointment() (domain.Appointment, error) {
	id := strings.TrimSpace(s.ID)
	if id == "" {
		return domain.Appointment{}, errors.New("id cannot be empty")
	}

	if (s.Lon == nil) != (s.Lat == nil) {
		return domain.Appointment{}, fmt.Errorf("id=%s: lon and lat must be set together", id)
	}

	a := domain.Appointment{
		ID:             id,
		ClientName:     strings.TrimSpace(s.ClientName),
		Address:        strings.TrimSpace(s.Address),
		Status:         domain.AppointmentStatus(strings.TrimSpace(s.Status)),
		Date:           strings.TrimSpace(s.Date),
		ScheduledAt:    s.ScheduledAt,
		Urgent:         s.Urgent,
		ServiceType:    domain.ServiceType(strings.TrimSpace(s.ServiceType)),
		Priority:       s.Priority,
		ServiceMinutes: s.ServiceMinutes,
		TechnicianID:   strings.TrimSpace(s.TechnicianID),
	}
	if s.Lon != nil {
		a.Coordinates = &domain.Coordinates{Lon: *s.Lon, Lat: *s.Lat}
	}

	if err := normalize(&a); err != nil {
		return domain.Appointment{}, err
	}
	return a, nil
}

// normalize applies defaults and validates a record before it is written.
func normalize(a *domain.Appointment) error {
	switch a.Status {
	case "":
		a.Status = domain.StatusPending
	case domain.StatusPending, domain.StatusConfirmed, domain.StatusCancelled, domain.StatusCompleted:
	default:
		return fmt.Errorf("id=%s: unknown status %q", a.ID, a.Status)
	}

	if a.ServiceType == "" {
		a.ServiceType = domain.ServiceInHome
	}
	if a.Priority <= 0 {
		a.Priority = 1
	}

	if a.Date == "" && a.ScheduledAt != nil {
		a.Date = a.ScheduledAt.Format(domain.DayLayout)
	}
	if _, err := time.Parse(domain.DayLayout, a.Date); err != nil {
		return fmt.Errorf("id=%s: invalid date %q: %w", a.ID, a.Date, err)
	}

	if a.Status == domain.StatusConfirmed && a.ScheduledAt == nil {
		return fmt.Errorf("id=%s: confirmed appointment needs scheduled_at", a.ID)
	}
	if a.Coordinates != nil && !a.Coordinates.Valid() {
		return fmt.Errorf("id=%s: %w", a.ID, domain.ErrInvalidCoordinates)
	}
	return nil
}

// Populate the database with appointment data from a JSON file.
func SeedFromJSON(ctx context.Context, repo *SQLAppointmentRepository, jsonPath string) error {
	rows, err := LoadSeedFile(jsonPath)
	if err != nil {
		return err
	}

	if err := repo.UpsertMany(ctx, rows); err != nil {
		return fmt.Errorf("seed appointments: %w", err)
	}
	return nil
}
