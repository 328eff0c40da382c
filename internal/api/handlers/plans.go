package handlers

import (
	"context"
	"encoding/json"
	"field-service-router/internal/api/dto"
	"field-service-router/internal/services"
	"io"
	"log"
	"net/http"
	"time"
)

// Previewer computes a plan for a day without prompting or writing.
type Previewer interface {
	Preview(ctx context.Context, day time.Time) (*services.RunReport, error)
}

type PlanHandler struct {
	Planner  Previewer
	Location *time.Location
}

// Plan returns the suggested route and slot suggestions for one day.
func (h *PlanHandler) Plan(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req dto.PlanRequest

	dec := json.NewDecoder(r.Body)
	defer r.Body.Close()
	dec.DisallowUnknownFields()

	if err := dec.Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid json body")
		return
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		writeError(w, r, http.StatusBadRequest, "body must contain only one JSON object")
		return
	}

	day, err := parseDay(req.Date, h.Location)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	report, err := h.Planner.Preview(r.Context(), day)
	if err != nil {
		log.Printf("preview plan failed date=%s: %v", req.Date, err)
		if report != nil && len(report.ClusterErrors) > 0 {
			writeError(w, r, http.StatusBadGateway, "every cluster failed to optimize")
			return
		}
		writeError(w, r, http.StatusInternalServerError, "internal server error")
		return
	}

	writeJSON(w, r, http.StatusOK, planResponse(report))
}
