package handlers

import (
	"field-service-router/internal/api/dto"
	"field-service-router/internal/domain"
	"field-service-router/internal/ports"
	"log"
	"net/http"
	"strings"
	"time"
)

// AppointmentHandler exposes read-only appointment retrieval endpoints.
type AppointmentHandler struct {
	Repo     ports.AppointmentRepository
	Location *time.Location
}

// List returns appointments, optionally filtered by ?date=YYYY-MM-DD and ?status=.
func (h *AppointmentHandler) List(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	q := r.URL.Query()
	date := strings.TrimSpace(q.Get("date"))
	status := domain.AppointmentStatus(strings.TrimSpace(q.Get("status")))

	if date != "" {
		if _, err := parseDay(date, h.Location); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
	}
	switch status {
	case "", domain.StatusPending, domain.StatusConfirmed, domain.StatusCancelled, domain.StatusCompleted:
	default:
		writeError(w, r, http.StatusBadRequest, "unknown status")
		return
	}

	var (
		appts []domain.Appointment
		err   error
	)
	if querier, ok := h.Repo.(ports.AppointmentQuerier); ok && date != "" && status != "" {
		appts, err = querier.ListAppointmentsByDate(r.Context(), date, status)
	} else {
		appts, err = h.Repo.ListAppointments(r.Context())
	}
	if err != nil {
		log.Printf("list appointments failed: %v", err)
		writeError(w, r, http.StatusInternalServerError, "internal server error")
		return
	}

	res := dto.ListAppointmentsResponse{
		Appointments: make([]dto.AppointmentResponse, 0, len(appts)),
	}
	for _, a := range appts {
		if status != "" && a.Status != status {
			continue
		}
		if date != "" && !a.OnDay(date, h.Location) {
			continue
		}
		res.Appointments = append(res.Appointments, appointmentResponse(a))
	}

	writeJSON(w, r, http.StatusOK, res)
}
