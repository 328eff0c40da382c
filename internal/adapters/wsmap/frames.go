package wsmap

import (
	"encoding/json"
	"field-service-router/internal/domain"
	"time"
)

// Frame types sent to the browser.
const (
	FrameRender     = "render"
	FrameClear      = "clear"
	FrameSelectSlot = "select_slot"
	FramePong       = "pong"
)

// Frame types sent by the browser.
const (
	FrameSlotSelected = "slot_selected"
	FramePing         = "ping"
)

// Frame is the envelope of every message in both directions.
type Frame struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type Slot struct {
	Start        time.Time `json:"start"`
	End          time.Time `json:"end"`
	Period       string    `json:"period"`
	TechnicianID string    `json:"technician_id,omitempty"`
}

func slotFrom(s domain.TimeSlot) Slot {
	return Slot{Start: s.Start, End: s.End, Period: string(s.Period), TechnicianID: s.TechnicianID}
}

type selectSlotPayload struct {
	AppointmentID string `json:"appointment_id"`
	Candidates    []Slot `json:"candidates"`
}

// selection answers a select_slot prompt. A null index cancels. Start may
// move the visit later inside the chosen candidate.
type selection struct {
	Index *int       `json:"index"`
	Start *time.Time `json:"start,omitempty"`
}
