package handlers

import (
	"sync"
	"time"

	"github.com/uptrace/bun"

	"github.com/aarunya/kartapi/notify"
	"github.com/aarunya/kartapi/race"
)

// confirmWindow is how long a destructive action stays armed after the
// first invocation before it must be re-armed.
const confirmWindow = 5 * time.Second

// Handler holds shared dependencies used by all route handlers.
// db may be nil when running on the in-memory store; only operator
// account routes need it.
type Handler struct {
	db     *bun.DB
	engine *race.Engine
	bus    *notify.Broker
	JWTKey []byte

	mu    sync.Mutex
	armed map[string]time.Time
}

// New creates a Handler wired to the race engine and change broker.
func New(db *bun.DB, engine *race.Engine, bus *notify.Broker, jwtKey []byte) *Handler {
	return &Handler{
		db:     db,
		engine: engine,
		bus:    bus,
		JWTKey: jwtKey,
		armed:  make(map[string]time.Time),
	}
}

// arm implements the two-step confirmation gate: the first call for a
// key arms it and returns false; a second call within the window
// consumes the arm and returns true.
func (h *Handler) arm(key string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	now := time.Now()
	if at, ok := h.armed[key]; ok && now.Sub(at) <= confirmWindow {
		delete(h.armed, key)
		return true
	}
	h.armed[key] = now
	return false
}
