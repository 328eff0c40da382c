package services

import (
	"context"
	"field-service-router/internal/domain"
	"field-service-router/internal/mapview"
	"field-service-router/internal/ports"
	"fmt"
	"sync"
	"time"
)

// memRepo is a minimal in-memory repository that only supports the base
// port, so callers go through the client-side filter path.
type memRepo struct {
	mu        sync.Mutex
	items     []domain.Appointment
	listErr   error
	updateErr map[string]error
	updates   []string
}

func newMemRepo(items ...domain.Appointment) *memRepo {
	return &memRepo{items: items, updateErr: map[string]error{}}
}

func (r *memRepo) ListAppointments(ctx context.Context) ([]domain.Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.listErr != nil {
		return nil, r.listErr
	}
	return append([]domain.Appointment(nil), r.items...), nil
}

func (r *memRepo) UpdateAppointment(ctx context.Context, id string, patch domain.AppointmentPatch) (domain.Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.updateErr[id]; err != nil {
		return domain.Appointment{}, err
	}
	for i := range r.items {
		if r.items[i].ID == id {
			r.items[i] = r.items[i].Apply(patch)
			r.updates = append(r.updates, id)
			return r.items[i], nil
		}
	}
	return domain.Appointment{}, ports.ErrNotFound
}

func (r *memRepo) get(id string) domain.Appointment {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.items {
		if a.ID == id {
			return a
		}
	}
	return domain.Appointment{}
}

// queryRepo adds the push-down extension and records its calls.
type queryRepo struct {
	*memRepo
	calls []string
}

func (r *queryRepo) ListAppointmentsByDate(ctx context.Context, day string, status domain.AppointmentStatus) ([]domain.Appointment, error) {
	r.calls = append(r.calls, fmt.Sprintf("%s/%s", day, status))
	all, err := r.ListAppointments(ctx)
	if err != nil {
		return nil, err
	}
	out := []domain.Appointment{}
	for _, a := range all {
		if a.Status == status && a.Date == day {
			out = append(out, a)
		}
	}
	return out, nil
}

type failingAvailability struct{ err error }

func (f failingAvailability) GetAvailableTimeSlots(ctx context.Context, day time.Time, technicianID string) ([]domain.TimeSlot, error) {
	return nil, f.err
}

func (f failingAvailability) IsTimeSlotAvailable(ctx context.Context, slot domain.TimeSlot) (bool, error) {
	return false, f.err
}

// fakeSession answers prompts through choose. A nil choose cancels every prompt.
type fakeSession struct {
	mu      sync.Mutex
	scenes  []mapview.Scene
	clears  int
	prompts []string
	offered map[string][]domain.TimeSlot
	choose  func(ctx context.Context, id string, candidates []domain.TimeSlot) (*domain.TimeSlot, error)
}

func (s *fakeSession) Render(ctx context.Context, scene mapview.Scene) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scenes = append(s.scenes, scene)
	return nil
}

func (s *fakeSession) ClearMarkers(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clears++
	return nil
}

func (s *fakeSession) SelectSlot(ctx context.Context, id string, candidates []domain.TimeSlot) (*domain.TimeSlot, error) {
	s.mu.Lock()
	s.prompts = append(s.prompts, id)
	if s.offered == nil {
		s.offered = map[string][]domain.TimeSlot{}
	}
	s.offered[id] = candidates
	choose := s.choose
	s.mu.Unlock()

	if choose == nil {
		return nil, nil
	}
	return choose(ctx, id, candidates)
}

func (s *fakeSession) Dispose() error { return nil }

func pickFirst(ctx context.Context, id string, candidates []domain.TimeSlot) (*domain.TimeSlot, error) {
	slot := candidates[0]
	return &slot, nil
}

type fakeLocker struct {
	mu     sync.Mutex
	held   map[string]bool
	locks  int
	unlock int
}

func (l *fakeLocker) Lock(ctx context.Context, day string) (ports.Unlock, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held == nil {
		l.held = map[string]bool{}
	}
	if l.held[day] {
		return nil, ports.ErrDateLocked
	}
	l.held[day] = true
	l.locks++
	return func(ctx context.Context) error {
		l.mu.Lock()
		defer l.mu.Unlock()
		delete(l.held, day)
		l.unlock++
		return nil
	}, nil
}

type fakeGeocoder struct {
	coords domain.Coordinates
	err    error
	calls  int
}

func (g *fakeGeocoder) Geocode(ctx context.Context, address string) (domain.Coordinates, error) {
	g.calls++
	return g.coords, g.err
}

var testDay = time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

func at(hour, minute int) time.Time {
	return time.Date(2026, 3, 2, hour, minute, 0, 0, time.UTC)
}

func coordsPtr(lon, lat float64) *domain.Coordinates {
	return &domain.Coordinates{Lon: lon, Lat: lat}
}
