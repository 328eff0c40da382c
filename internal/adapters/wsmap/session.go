package wsmap

import (
	"context"
	"encoding/json"
	"errors"
	"field-service-router/internal/domain"
	"field-service-router/internal/mapview"
	"field-service-router/internal/ports"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const readLimit = 1 << 20

var (
	ErrSessionClosed = errors.New("map session closed")
	ErrBadSelection  = errors.New("selection index out of range")
)

var _ ports.MapSession = (*Session)(nil)

// Session drives one browser map over a WebSocket connection.
// Writes are serialized; a single read loop routes answers to waiting prompts.
type Session struct {
	conn         *websocket.Conn
	writeTimeout time.Duration

	writeMu sync.Mutex

	mu      sync.Mutex
	pending map[string]chan selection

	done        chan struct{}
	doneOnce    sync.Once
	disposeOnce sync.Once
}

func newSession(conn *websocket.Conn, writeTimeout time.Duration) *Session {
	s := &Session{
		conn:         conn,
		writeTimeout: writeTimeout,
		pending:      map[string]chan selection{},
		done:         make(chan struct{}),
	}
	go s.readLoop()
	return s
}

// Done is closed once the connection is gone.
func (s *Session) Done() <-chan struct{} { return s.done }

func (s *Session) Render(ctx context.Context, scene mapview.Scene) error {
	return s.Send(ctx, FrameRender, scene)
}

func (s *Session) ClearMarkers(ctx context.Context) error {
	return s.write(ctx, Frame{Type: FrameClear})
}

// Send writes an arbitrary typed frame, e.g. the final run report.
func (s *Session) Send(ctx context.Context, frameType string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s frame: %w", frameType, err)
	}
	return s.write(ctx, Frame{Type: frameType, Payload: raw})
}

func (s *Session) SelectSlot(
	ctx context.Context,
	appointmentID string,
	candidates []domain.TimeSlot,
) (*domain.TimeSlot, error) {
	promptID := uuid.NewString()
	answer := make(chan selection, 1)

	s.mu.Lock()
	s.pending[promptID] = answer
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.pending, promptID)
		s.mu.Unlock()
	}()

	payload := selectSlotPayload{AppointmentID: appointmentID, Candidates: make([]Slot, 0, len(candidates))}
	for _, c := range candidates {
		payload.Candidates = append(payload.Candidates, slotFrom(c))
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode select_slot frame: %w", err)
	}
	if err := s.write(ctx, Frame{Type: FrameSelectSlot, ID: promptID, Payload: raw}); err != nil {
		return nil, err
	}

	var sel selection
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-s.done:
		return nil, ErrSessionClosed
	case sel = <-answer:
	}

	if sel.Index == nil {
		return nil, nil
	}
	if *sel.Index < 0 || *sel.Index >= len(candidates) {
		return nil, fmt.Errorf("appointment %s index %d: %w", appointmentID, *sel.Index, ErrBadSelection)
	}

	slot := candidates[*sel.Index]
	if sel.Start != nil {
		slot.Start = *sel.Start
	}
	return &slot, nil
}

// Dispose closes the connection. Safe to call more than once.
func (s *Session) Dispose() error {
	var err error
	s.disposeOnce.Do(func() {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		err = s.conn.Close()
		s.shutdown()
	})
	return err
}

func (s *Session) write(ctx context.Context, f Frame) error {
	select {
	case <-s.done:
		return ErrSessionClosed
	default:
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	deadline := time.Now().Add(s.writeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = s.conn.SetWriteDeadline(deadline)

	if err := s.conn.WriteJSON(f); err != nil {
		return fmt.Errorf("write %s frame: %w", f.Type, err)
	}
	return nil
}

func (s *Session) shutdown() {
	s.doneOnce.Do(func() { close(s.done) })
}

func (s *Session) readLoop() {
	defer s.shutdown()

	s.conn.SetReadLimit(readLimit)
	for {
		var f Frame
		if err := s.conn.ReadJSON(&f); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Printf("map session read ended: %v", err)
			}
			return
		}

		switch f.Type {
		case FramePing:
			_ = s.write(context.Background(), Frame{Type: FramePong})
		case FrameSlotSelected:
			var sel selection
			if len(f.Payload) > 0 {
				if err := json.Unmarshal(f.Payload, &sel); err != nil {
					log.Printf("map session: bad slot_selected payload id=%s err=%v", f.ID, err)
					continue
				}
			}
			s.deliver(f.ID, sel)
		default:
			log.Printf("map session: ignoring frame type=%s", f.Type)
		}
	}
}

func (s *Session) deliver(promptID string, sel selection) {
	s.mu.Lock()
	answer, ok := s.pending[promptID]
	s.mu.Unlock()
	if !ok {
		log.Printf("map session: answer for unknown prompt id=%s", promptID)
		return
	}

	select {
	case answer <- sel:
	default:
	}
}
