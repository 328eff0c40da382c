package handlers

import (
	"field-service-router/internal/api/dto"
	"field-service-router/internal/domain"
	"field-service-router/internal/services"
)

func appointmentResponse(a domain.Appointment) dto.AppointmentResponse {
	res := dto.AppointmentResponse{
		ID:             a.ID,
		ClientName:     a.ClientName,
		Address:        a.Address,
		Status:         string(a.Status),
		Date:           a.Date,
		ScheduledAt:    a.ScheduledAt,
		Urgent:         a.Urgent,
		ServiceType:    string(a.ServiceType),
		Priority:       a.Priority,
		ServiceMinutes: a.ServiceMinutes,
		TechnicianID:   a.TechnicianID,
	}
	if a.Coordinates != nil {
		res.Coordinates = a.Coordinates.CoordsToList()
	}
	return res
}

func slotResponse(s domain.TimeSlot) dto.TimeSlotResponse {
	return dto.TimeSlotResponse{Start: s.Start, End: s.End, Period: string(s.Period), TechnicianID: s.TechnicianID}
}

func slotResponses(slots []domain.TimeSlot) []dto.TimeSlotResponse {
	out := make([]dto.TimeSlotResponse, 0, len(slots))
	for _, s := range slots {
		out = append(out, slotResponse(s))
	}
	return out
}

func planResponse(r *services.RunReport) dto.PlanResponse {
	res := dto.PlanResponse{
		RunID:           r.RunID,
		Date:            r.Date,
		Summary:         r.Summary(),
		Route:           make([]dto.ServicePointResponse, 0, len(r.Route)),
		TotalDistanceKm: r.TotalDistanceKm,
		TotalMinutes:    r.TotalMinutes,
		Suggestions:     make(map[string][]dto.TimeSlotResponse, len(r.Suggestions)),
		Unscheduled:     append([]string{}, r.Unscheduled...),
		Confirmations:   make([]dto.ConfirmationResponse, 0, len(r.Confirmations)),
		Cancelled:       append([]string{}, r.Cancelled...),
		Failures:        make([]dto.FailureResponse, 0, len(r.Failures)),
		ClusterErrors:   make([]dto.FailureResponse, 0, len(r.ClusterErrors)),
		Skipped:         make([]dto.FailureResponse, 0, len(r.Skipped)),
		States:          make([]string, 0, len(r.States)),
	}

	for _, p := range r.Route {
		res.Route = append(res.Route, dto.ServicePointResponse{
			ID:             p.ID,
			ClientName:     p.ClientName,
			Address:        p.Address,
			Coordinates:    p.Coordinates.CoordsToList(),
			Type:           string(p.Type),
			ServiceType:    string(p.ServiceType),
			ServiceMinutes: p.ServiceMinutes,
			Priority:       p.Priority,
			Urgent:         p.Urgent,
			ScheduledAt:    p.ScheduledAt,
		})
	}
	for id, slots := range r.Suggestions {
		res.Suggestions[id] = slotResponses(slots)
	}
	for _, c := range r.Confirmations {
		res.Confirmations = append(res.Confirmations, dto.ConfirmationResponse{AppointmentID: c.AppointmentID, Slot: slotResponse(c.Slot)})
	}
	for _, f := range r.Failures {
		res.Failures = append(res.Failures, dto.FailureResponse{ID: f.AppointmentID, Error: f.Err.Error()})
	}
	for _, ce := range r.ClusterErrors {
		res.ClusterErrors = append(res.ClusterErrors, dto.FailureResponse{ID: string(ce.Group), Error: ce.Err.Error()})
	}
	for _, s := range r.Skipped {
		res.Skipped = append(res.Skipped, dto.FailureResponse{ID: s.AppointmentID, Error: s.Reason})
	}
	for _, st := range r.States {
		res.States = append(res.States, string(st))
	}
	return res
}
