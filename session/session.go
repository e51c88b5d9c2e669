package session

import (
	"sync"
	"time"
)

// State is a step of the session script.
type State string

const (
	StateStart                 State = "start"
	StatePageOpened            State = "page-opened"
	StateNavigatedHome         State = "navigated-home"
	StateAgreed                State = "agreed"
	StateJoined                State = "joined"
	StateLoginFormOpened       State = "login-form-opened"
	StateCredentialsFilled     State = "credentials-filled"
	StateLoggedIn              State = "logged-in"
	StatePostLoginWait         State = "post-login-wait"
	StateNavigatedToTargetPage State = "navigated-to-target-page"
	StatePreLoopWait           State = "pre-loop-wait"
	StateClickLoopRunning      State = "click-loop-running"
	StateCompleted             State = "completed"
	StateFailed                State = "failed"
)

// IsValid checks if the state is known.
func (s State) IsValid() bool {
	switch s {
	case StateStart, StatePageOpened, StateNavigatedHome, StateAgreed, StateJoined,
		StateLoginFormOpened, StateCredentialsFilled, StateLoggedIn, StatePostLoginWait,
		StateNavigatedToTargetPage, StatePreLoopWait, StateClickLoopRunning,
		StateCompleted, StateFailed:
		return true
	default:
		return false
	}
}

// IsFinal checks if the state ends a session.
func (s State) IsFinal() bool {
	return s == StateCompleted || s == StateFailed
}

// Result is the outcome of one session. It is never modified once recorded.
type Result struct {
	ID       int    `json:"id"`
	Username string `json:"username"`
	Success  bool   `json:"success"`

	// State is completed or failed. Reached is the last state entered
	// before the session ended.
	State   State `json:"state"`
	Reached State `json:"reached"`

	Clicks      int       `json:"clicks"`
	SignalFound bool      `json:"signal_found"`
	Error       string    `json:"error,omitempty"`
	StartedAt   time.Time `json:"started_at"`
	CompletedAt time.Time `json:"completed_at"`
}

// Duration returns how long the session ran.
func (r Result) Duration() time.Duration {
	return r.CompletedAt.Sub(r.StartedAt)
}

// ResultStore collects results from concurrently running sessions in the
// order they complete.
type ResultStore struct {
	mu      sync.RWMutex
	results []Result
	seen    map[int]struct{}
}

// NewResultStore creates an empty store.
func NewResultStore() *ResultStore {
	return &ResultStore{
		seen: make(map[int]struct{}),
	}
}

// Add appends a result. A second result for the same id is ignored and
// Add reports false.
func (s *ResultStore) Add(r Result) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.seen[r.ID]; exists {
		return false
	}
	s.seen[r.ID] = struct{}{}
	s.results = append(s.results, r)
	return true
}

// All returns results in completion order.
func (s *ResultStore) All() []Result {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Result, len(s.results))
	copy(out, s.results)
	return out
}
