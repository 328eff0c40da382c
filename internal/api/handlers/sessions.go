package handlers

import (
	"context"
	"field-service-router/internal/ports"
	"field-service-router/internal/services"
	"log"
	"net/http"
	"time"
)

// MapAcceptor turns an HTTP request into a parked map connection that
// Initialize can claim.
type MapAcceptor interface {
	ports.MapRenderer
	Accept(w http.ResponseWriter, r *http.Request) (string, error)
}

// Runner plans a day interactively against a map session.
type Runner interface {
	Run(ctx context.Context, day time.Time, session ports.MapSession) (*services.RunReport, error)
}

// frameSender is implemented by sessions that can push extra frames.
type frameSender interface {
	Send(ctx context.Context, frameType string, payload any) error
}

type SessionHandler struct {
	Renderer MapAcceptor
	Runner   Runner
	Location *time.Location
}

// Serve upgrades to a WebSocket and runs an interactive planning session for
// ?date=YYYY-MM-DD. The final report (or error) is sent as the last frame.
func (h *SessionHandler) Serve(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	day, err := parseDay(r.URL.Query().Get("date"), h.Location)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	// The upgrader has already answered the request when Accept fails.
	container, err := h.Renderer.Accept(w, r)
	if err != nil {
		log.Printf("map session upgrade failed: %v", err)
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	session, err := h.Renderer.Initialize(ctx, container)
	if err != nil {
		log.Printf("map session init failed container=%s: %v", container, err)
		return
	}
	defer func() {
		if err := session.Dispose(); err != nil {
			log.Printf("map session dispose failed container=%s: %v", container, err)
		}
	}()

	// Stop the run as soon as the browser goes away.
	if d, ok := session.(interface{ Done() <-chan struct{} }); ok {
		go func() {
			select {
			case <-d.Done():
				cancel()
			case <-ctx.Done():
			}
		}()
	}

	report, runErr := h.Runner.Run(ctx, day, session)

	sender, ok := session.(frameSender)
	if !ok {
		return
	}
	sendCtx, sendCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer sendCancel()

	if runErr != nil {
		log.Printf("map session run failed container=%s: %v", container, runErr)
		if err := sender.Send(sendCtx, "error", map[string]string{"error": runErr.Error()}); err != nil {
			log.Printf("map session send error frame failed: %v", err)
		}
	}
	if report != nil {
		if err := sender.Send(sendCtx, "report", planResponse(report)); err != nil {
			log.Printf("map session send report failed run_id=%s: %v", report.RunID, err)
		}
	}
}
