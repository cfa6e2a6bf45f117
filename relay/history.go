package relay

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultHistorySize is the number of exchanges kept when unconfigured.
const DefaultHistorySize = 100

// Exchange records the outcome of one relay call.
type Exchange struct {
	ID         string        `json:"id"`
	Time       time.Time     `json:"time"`
	Key        string        `json:"key"`
	Matched    bool          `json:"matched"`
	Method     string        `json:"method"`
	URL        string        `json:"url"`
	StatusCode int           `json:"status_code,omitempty"`
	Error      string        `json:"error,omitempty"`
	Duration   time.Duration `json:"duration_ns"`
}

// History is a bounded ring of recent exchanges; the oldest entries are
// dropped once max is reached.
type History struct {
	mu   sync.Mutex
	data []Exchange
	max  int
}

// NewHistory returns a history holding at most max exchanges, or nil when
// max is not positive. A nil *History is valid and records nothing.
func NewHistory(max int) *History {
	if max <= 0 {
		return nil
	}
	return &History{max: max}
}

// Add stores e, assigning an ID if it has none.
func (h *History) Add(e Exchange) {
	if h == nil {
		return
	}
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.data = append(h.data, e)
	if len(h.data) > h.max {
		excess := len(h.data) - h.max
		h.data = append([]Exchange(nil), h.data[excess:]...)
	}
}

// Snapshot returns a copy of the stored exchanges, newest first.
func (h *History) Snapshot() []Exchange {
	if h == nil {
		return []Exchange{}
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]Exchange, len(h.data))
	for i, e := range h.data {
		out[len(h.data)-1-i] = e
	}
	return out
}

func (h *History) Len() int {
	if h == nil {
		return 0
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.data)
}
