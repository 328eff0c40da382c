package wsmap

import (
	"context"
	"errors"
	"field-service-router/internal/ports"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const DefaultWriteTimeout = 10 * time.Second

var ErrUnknownContainer = errors.New("unknown map container")

var _ ports.MapRenderer = (*Renderer)(nil)

// Renderer accepts browser map connections and hands them out as sessions.
// A connection is parked under a container id by Accept until Initialize
// claims it; each container can be claimed once.
type Renderer struct {
	upgrader     websocket.Upgrader
	writeTimeout time.Duration

	mu     sync.Mutex
	parked map[string]*websocket.Conn
}

// NewRenderer allows every origin when none are listed.
func NewRenderer(allowedOrigins ...string) *Renderer {
	allowed := make(map[string]struct{}, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[o] = struct{}{}
	}

	return &Renderer{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				if len(allowed) == 0 {
					return true
				}
				_, ok := allowed[r.Header.Get("Origin")]
				return ok
			},
		},
		writeTimeout: DefaultWriteTimeout,
		parked:       map[string]*websocket.Conn{},
	}
}

// Accept upgrades the request and returns the container id of the new connection.
func (r *Renderer) Accept(w http.ResponseWriter, req *http.Request) (string, error) {
	conn, err := r.upgrader.Upgrade(w, req, nil)
	if err != nil {
		return "", fmt.Errorf("upgrade map connection: %w", err)
	}

	container := uuid.NewString()
	r.mu.Lock()
	r.parked[container] = conn
	r.mu.Unlock()
	return container, nil
}

func (r *Renderer) Initialize(ctx context.Context, container string) (ports.MapSession, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	conn, ok := r.parked[container]
	delete(r.parked, container)
	r.mu.Unlock()

	if !ok {
		return nil, fmt.Errorf("initialize %q: %w", container, ErrUnknownContainer)
	}
	return newSession(conn, r.writeTimeout), nil
}
