package dto

import "time"

type AppointmentResponse struct {
	ID             string     `json:"id"`
	ClientName     string     `json:"client_name"`
	Address        string     `json:"address"`
	Coordinates    []float64  `json:"coordinates"`
	Status         string     `json:"status"`
	Date           string     `json:"date"`
	ScheduledAt    *time.Time `json:"scheduled_at"`
	Urgent         bool       `json:"urgent"`
	ServiceType    string     `json:"service_type"`
	Priority       int        `json:"priority"`
	ServiceMinutes int        `json:"service_minutes,omitempty"`
	TechnicianID   string     `json:"technician_id,omitempty"`
}

type ListAppointmentsResponse struct {
	Appointments []AppointmentResponse `json:"appointments"`
}
