package dto

import "time"

type PlanRequest struct {
	Date string `json:"date"`
}

type ServicePointResponse struct {
	ID             string     `json:"id"`
	ClientName     string     `json:"client_name"`
	Address        string     `json:"address"`
	Coordinates    []float64  `json:"coordinates"`
	Type           string     `json:"type"`
	ServiceType    string     `json:"service_type"`
	ServiceMinutes int        `json:"service_minutes"`
	Priority       int        `json:"priority"`
	Urgent         bool       `json:"urgent"`
	ScheduledAt    *time.Time `json:"scheduled_at"`
}

type TimeSlotResponse struct {
	Start        time.Time `json:"start"`
	End          time.Time `json:"end"`
	Period       string    `json:"period"`
	TechnicianID string    `json:"technician_id,omitempty"`
}

type ConfirmationResponse struct {
	AppointmentID string           `json:"appointment_id"`
	Slot          TimeSlotResponse `json:"slot"`
}

type FailureResponse struct {
	ID    string `json:"id"`
	Error string `json:"error"`
}

type PlanResponse struct {
	RunID           string                        `json:"run_id"`
	Date            string                        `json:"date"`
	Summary         string                        `json:"summary"`
	Route           []ServicePointResponse        `json:"route"`
	TotalDistanceKm float64                       `json:"total_distance_km"`
	TotalMinutes    int                           `json:"total_minutes"`
	Suggestions     map[string][]TimeSlotResponse `json:"suggestions"`
	Unscheduled     []string                      `json:"unscheduled"`
	Confirmations   []ConfirmationResponse        `json:"confirmations"`
	Cancelled       []string                      `json:"cancelled"`
	Failures        []FailureResponse             `json:"failures"`
	ClusterErrors   []FailureResponse             `json:"cluster_errors"`
	Skipped         []FailureResponse             `json:"skipped"`
	States          []string                      `json:"states"`
}
