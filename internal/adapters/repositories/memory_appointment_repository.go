package repositories

import (
	"context"
	"field-service-router/internal/domain"
	"field-service-router/internal/ports"
	"fmt"
	"log"
	"sync"

	"github.com/google/uuid"
)

var _ ports.AppointmentStore = (*MemoryAppointmentRepository)(nil)

// MemoryAppointmentRepository keeps appointments in process memory.
// Used for local demos and tests. Safe for concurrent use.
type MemoryAppointmentRepository struct {
	mu    sync.RWMutex
	items map[string]domain.Appointment
	order []string
}

func NewMemoryAppointmentRepository(seed ...domain.Appointment) *MemoryAppointmentRepository {
	r := &MemoryAppointmentRepository{items: make(map[string]domain.Appointment, len(seed))}
	for _, a := range seed {
		if err := normalize(&a); err != nil {
			log.Printf("memory repository: skip seed id=%s err=%v", a.ID, err)
			continue
		}
		r.put(a)
	}
	return r
}

func (r *MemoryAppointmentRepository) put(a domain.Appointment) {
	if _, ok := r.items[a.ID]; !ok {
		r.order = append(r.order, a.ID)
	}
	r.items[a.ID] = clone(a)
}

// clone copies pointer fields so callers never share state with the store.
func clone(a domain.Appointment) domain.Appointment {
	if a.Coordinates != nil {
		c := *a.Coordinates
		a.Coordinates = &c
	}
	if a.ScheduledAt != nil {
		t := *a.ScheduledAt
		a.ScheduledAt = &t
	}
	return a
}

func (r *MemoryAppointmentRepository) ListAppointments(ctx context.Context) ([]domain.Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.Appointment, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, clone(r.items[id]))
	}
	return out, nil
}

func (r *MemoryAppointmentRepository) ListAppointmentsByDate(
	ctx context.Context,
	day string,
	status domain.AppointmentStatus,
) ([]domain.Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := []domain.Appointment{}
	for _, id := range r.order {
		a := r.items[id]
		if a.Date == day && a.Status == status {
			out = append(out, clone(a))
		}
	}
	return out, nil
}

func (r *MemoryAppointmentRepository) GetAppointment(ctx context.Context, id string) (domain.Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.items[id]
	if !ok {
		return domain.Appointment{}, fmt.Errorf("get appointment id=%s: %w", id, ports.ErrNotFound)
	}
	return clone(a), nil
}

func (r *MemoryAppointmentRepository) CreateAppointment(ctx context.Context, a domain.Appointment) (domain.Appointment, error) {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if err := normalize(&a); err != nil {
		return domain.Appointment{}, fmt.Errorf("create appointment: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.items[a.ID]; ok {
		return domain.Appointment{}, fmt.Errorf("create appointment: id=%s already exists", a.ID)
	}
	r.put(a)
	return clone(a), nil
}

func (r *MemoryAppointmentRepository) UpdateAppointment(
	ctx context.Context,
	id string,
	patch domain.AppointmentPatch,
) (domain.Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.items[id]
	if !ok {
		return domain.Appointment{}, fmt.Errorf("update appointment id=%s: %w", id, ports.ErrNotFound)
	}

	updated := current.Apply(patch)
	if err := normalize(&updated); err != nil {
		return domain.Appointment{}, fmt.Errorf("update appointment: %w", err)
	}
	r.put(updated)
	return clone(updated), nil
}
