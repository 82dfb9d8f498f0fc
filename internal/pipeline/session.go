package pipeline

import (
	"context"
	"sync"
	"time"

	"repolens/internal/artifact"
)

// Event reports a task status change to subscribers.
type Event struct {
	SessionID string    `json:"sessionId"`
	Task      TaskName  `json:"task"`
	Status    Status    `json:"status"`
	Error     string    `json:"error,omitempty"`
	At        time.Time `json:"at"`
}

// Session is one analysis run. It is owned by the request that created it
// and must not be shared across users.
type Session struct {
	ID        string
	Ref       artifact.RepositoryRef
	Role      string
	UserID    string
	StartedAt time.Time
	FromCache bool

	ctx    context.Context
	cancel context.CancelFunc
	inputs *sourceInputs

	mu       sync.Mutex
	results  map[TaskName]*TaskResult
	changed  chan struct{} // closed and replaced on every state change
	closed   bool
	dirty    bool // a task ran in this session
	cachedAt time.Time
	subs     map[int]chan Event
	nextSub  int
}

func newSession(id string, ref artifact.RepositoryRef, role, userID string, tasks []TaskName, inputs *sourceInputs) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		ID:        id,
		Ref:       ref,
		Role:      role,
		UserID:    userID,
		StartedAt: time.Now().UTC(),
		ctx:       ctx,
		cancel:    cancel,
		inputs:    inputs,
		results:   make(map[TaskName]*TaskResult, len(tasks)),
		changed:   make(chan struct{}),
		subs:      make(map[int]chan Event),
	}
	for _, t := range tasks {
		s.results[t] = &TaskResult{Name: t, Status: NotStarted}
	}
	return s
}

// Snapshot copies the current task results.
func (s *Session) Snapshot() map[TaskName]TaskResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[TaskName]TaskResult, len(s.results))
	for k, v := range s.results {
		out[k] = *v
	}
	return out
}

// Result returns a copy of one task's result.
func (s *Session) Result(task TaskName) (TaskResult, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.results[task]
	if !ok {
		return TaskResult{}, false
	}
	return *r, true
}

func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Subscribe streams status changes until the returned cancel func is called
// or the session closes. Slow readers miss events rather than block tasks.
func (s *Session) Subscribe() (<-chan Event, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch := make(chan Event, 32)
	if s.closed {
		close(ch)
		return ch, func() {}
	}
	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch
	return ch, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if c, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(c)
		}
	}
}

// Wait blocks until no task is running or ctx is done.
func (s *Session) Wait(ctx context.Context) error {
	for {
		s.mu.Lock()
		if s.closed || !s.runningLocked() {
			s.mu.Unlock()
			return nil
		}
		ch := s.changed
		s.mu.Unlock()
		select {
		case <-ch:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// waitTask blocks until task leaves Running.
func (s *Session) waitTask(ctx context.Context, task TaskName) (TaskResult, error) {
	for {
		s.mu.Lock()
		r := *s.results[task]
		ch := s.changed
		closed := s.closed
		s.mu.Unlock()
		if r.Status != Running || closed {
			return r, nil
		}
		select {
		case <-ch:
		case <-ctx.Done():
			return r, ctx.Err()
		}
	}
}

func (s *Session) runningLocked() bool {
	for _, r := range s.results {
		if r.Status == Running {
			return true
		}
	}
	return false
}

// notifyLocked wakes waiters and publishes the task's status.
func (s *Session) notifyLocked(task TaskName) {
	close(s.changed)
	s.changed = make(chan struct{})
	r := s.results[task]
	ev := Event{SessionID: s.ID, Task: task, Status: r.Status, Error: r.Error, At: time.Now().UTC()}
	for _, ch := range s.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// closeLocked cancels in-flight work and ends every subscription.
func (s *Session) closeLocked() {
	if s.closed {
		return
	}
	s.closed = true
	s.cancel()
	close(s.changed)
	s.changed = make(chan struct{})
	for id, ch := range s.subs {
		delete(s.subs, id)
		close(ch)
	}
}
