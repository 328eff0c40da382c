package wsmap

import (
	"context"
	"encoding/json"
	"field-service-router/internal/domain"
	"field-service-router/internal/mapview"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// connect starts a server that hands its session to the test and dials it.
func connect(t *testing.T) (*Session, *websocket.Conn) {
	t.Helper()

	renderer := NewRenderer()
	sessions := make(chan *Session, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		container, err := renderer.Accept(w, r)
		if err != nil {
			return
		}
		s, err := renderer.Initialize(r.Context(), container)
		if err != nil {
			return
		}
		sessions <- s.(*Session)
	}))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	client, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	select {
	case s := <-sessions:
		t.Cleanup(func() { _ = s.Dispose() })
		return s, client
	case <-time.After(2 * time.Second):
		t.Fatal("session not initialized")
		return nil, nil
	}
}

func readFrame(t *testing.T, c *websocket.Conn) Frame {
	t.Helper()
	require.NoError(t, c.SetReadDeadline(time.Now().Add(2*time.Second)))
	var f Frame
	require.NoError(t, c.ReadJSON(&f))
	return f
}

func candidates() []domain.TimeSlot {
	day := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	return []domain.TimeSlot{
		{Start: day.Add(9 * time.Hour), End: day.Add(10 * time.Hour), Period: domain.PeriodMorning},
		{Start: day.Add(13 * time.Hour), End: day.Add(17 * time.Hour), Period: domain.PeriodAfternoon},
	}
}

type selectResult struct {
	slot *domain.TimeSlot
	err  error
}

func startSelect(ctx context.Context, s *Session) <-chan selectResult {
	out := make(chan selectResult, 1)
	go func() {
		slot, err := s.SelectSlot(ctx, "p1", candidates())
		out <- selectResult{slot, err}
	}()
	return out
}

func answer(t *testing.T, c *websocket.Conn, promptID string, payload string) {
	t.Helper()
	require.NoError(t, c.WriteJSON(Frame{Type: FrameSlotSelected, ID: promptID, Payload: json.RawMessage(payload)}))
}

func TestRenderAndClearFrames(t *testing.T) {
	s, client := connect(t)
	scene := mapview.Scene{
		Markers:  []mapview.Marker{{ID: "c1", Number: 1, Color: mapview.ColorConfirmed, Coordinates: [2]float64{-46.6, -23.5}}},
		Polyline: [][2]float64{{-46.6, -23.5}},
	}

	require.NoError(t, s.ClearMarkers(context.Background()))
	require.NoError(t, s.Render(context.Background(), scene))

	assert.Equal(t, FrameClear, readFrame(t, client).Type)
	f := readFrame(t, client)
	assert.Equal(t, FrameRender, f.Type)
	var got mapview.Scene
	require.NoError(t, json.Unmarshal(f.Payload, &got))
	assert.Equal(t, scene, got)
}

func TestSelectSlotByIndex(t *testing.T) {
	// build test data
	s, client := connect(t)

	// call the method under test
	result := startSelect(context.Background(), s)
	prompt := readFrame(t, client)
	require.Equal(t, FrameSelectSlot, prompt.Type)
	var payload selectSlotPayload
	require.NoError(t, json.Unmarshal(prompt.Payload, &payload))
	assert.Equal(t, "p1", payload.AppointmentID)
	require.Len(t, payload.Candidates, 2)
	answer(t, client, prompt.ID, `{"index": 1}`)

	// verify behavior
	r := <-result
	require.NoError(t, r.err)
	require.NotNil(t, r.slot)
	assert.Equal(t, candidates()[1], *r.slot)
}

func TestSelectSlotWithLaterStart(t *testing.T) {
	s, client := connect(t)

	result := startSelect(context.Background(), s)
	prompt := readFrame(t, client)
	answer(t, client, prompt.ID, `{"index": 0, "start": "2026-03-02T09:15:00Z"}`)

	r := <-result
	require.NoError(t, r.err)
	assert.True(t, r.slot.Start.Equal(time.Date(2026, 3, 2, 9, 15, 0, 0, time.UTC)))
	assert.True(t, r.slot.End.Equal(candidates()[0].End))
}

func TestSelectSlotNullIndexCancels(t *testing.T) {
	s, client := connect(t)

	result := startSelect(context.Background(), s)
	prompt := readFrame(t, client)
	answer(t, client, "someone-else", `{"index": 0}`)
	answer(t, client, prompt.ID, `{"index": null}`)

	r := <-result
	require.NoError(t, r.err)
	assert.Nil(t, r.slot)
}

func TestSelectSlotRejectsOutOfRangeIndex(t *testing.T) {
	s, client := connect(t)

	result := startSelect(context.Background(), s)
	prompt := readFrame(t, client)
	answer(t, client, prompt.ID, `{"index": 7}`)

	r := <-result
	require.ErrorIs(t, r.err, ErrBadSelection)
}

func TestSelectSlotHonoursContext(t *testing.T) {
	s, client := connect(t)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	result := startSelect(ctx, s)
	readFrame(t, client)

	r := <-result
	require.ErrorIs(t, r.err, context.DeadlineExceeded)
}

func TestSelectSlotFailsWhenClientLeaves(t *testing.T) {
	s, client := connect(t)

	result := startSelect(context.Background(), s)
	readFrame(t, client)
	require.NoError(t, client.Close())

	select {
	case r := <-result:
		require.ErrorIs(t, r.err, ErrSessionClosed)
	case <-time.After(2 * time.Second):
		t.Fatal("select did not return after disconnect")
	}
	<-s.Done()
}

func TestPingAndDispose(t *testing.T) {
	s, client := connect(t)

	require.NoError(t, client.WriteJSON(Frame{Type: FramePing}))
	assert.Equal(t, FramePong, readFrame(t, client).Type)

	require.NoError(t, s.Dispose())
	require.NoError(t, s.Dispose())
	require.ErrorIs(t, s.Render(context.Background(), mapview.Scene{}), ErrSessionClosed)
}

func TestInitializeUnknownContainer(t *testing.T) {
	_, err := NewRenderer().Initialize(context.Background(), "nope")
	require.ErrorIs(t, err, ErrUnknownContainer)
}
