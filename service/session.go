// Package service runs agent tasks as addressable sessions and streams
// their step events to observers. Each session owns one agent run, an
// unbounded append-only event queue, and terminal state; the HTTP front-end
// is a thin shell over the session registry.
package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dmcode/reagent/agent"
)

// Event is one entry of a session's event stream. The last event of every
// session has Final set; it carries the final answer or the run error.
type Event struct {
	StepNumber  int         `json:"step_number,omitempty"`
	Step        *agent.Step `json:"step,omitempty"`
	Final       bool        `json:"final,omitempty"`
	FinalAnswer string      `json:"final_answer,omitempty"`
	Error       string      `json:"error,omitempty"`
}

// Session is one task run. Events are appended by the run goroutine and
// consumed by any number of pollers, each holding its own cursor.
type Session struct {
	ID        string    `json:"id"`
	Task      string    `json:"task"`
	CreatedAt time.Time `json:"created_at"`

	mu      sync.Mutex
	cond    *sync.Cond
	events  []Event
	running bool
	result  *agent.Result
	err     error
}

func newSession(task string) *Session {
	s := &Session{
		ID:        uuid.NewString(),
		Task:      task,
		CreatedAt: time.Now(),
		running:   true,
	}
	s.cond = sync.NewCond(&s.mu)
	return s
}

func (s *Session) append(e Event) {
	s.mu.Lock()
	s.events = append(s.events, e)
	s.mu.Unlock()
	s.cond.Broadcast()
}

func (s *Session) finish(result *agent.Result, err error) {
	final := Event{Final: true}
	if err != nil {
		final.Error = err.Error()
	} else {
		final.FinalAnswer = result.FinalAnswer
	}

	s.mu.Lock()
	s.running = false
	s.result = result
	s.err = err
	s.events = append(s.events, final)
	s.mu.Unlock()
	s.cond.Broadcast()
}

// IsRunning reports whether the session's task is still executing.
func (s *Session) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Result returns the run outcome once the session has finished.
func (s *Session) Result() (*agent.Result, error, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil, nil, false
	}
	return s.result, s.err, true
}

// PollEvent returns the event at cursor, waiting up to timeout for one to
// be appended. It reports false on timeout; the caller decides whether to
// keep polling based on session liveness.
func (s *Session) PollEvent(cursor int, timeout time.Duration) (Event, bool) {
	deadline := time.Now().Add(timeout)
	// The timer takes the lock before broadcasting so the wakeup cannot slip
	// into the window between the deadline check and cond.Wait registering.
	timer := time.AfterFunc(timeout, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.cond.Broadcast()
	})
	defer timer.Stop()

	s.mu.Lock()
	defer s.mu.Unlock()
	for cursor >= len(s.events) {
		if !time.Now().Before(deadline) {
			return Event{}, false
		}
		s.cond.Wait()
	}
	return s.events[cursor], true
}

// Stream consumption defaults.
const (
	DefaultPollTimeout = 500 * time.Millisecond
	DefaultIdleBudget  = 30 * time.Second
)

// Stream delivers the session's events to fn in order, starting from the
// beginning. It returns when the final event has been delivered, the
// context is cancelled, the idle budget is spent, or the session stops
// running with no events left.
func (s *Session) Stream(ctx context.Context, fn func(Event) error) error {
	cursor := 0
	idle := time.Duration(0)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		event, ok := s.PollEvent(cursor, DefaultPollTimeout)
		if !ok {
			idle += DefaultPollTimeout
			if !s.IsRunning() || idle >= DefaultIdleBudget {
				return nil
			}
			continue
		}
		idle = 0
		cursor++

		if err := fn(event); err != nil {
			return err
		}
		if event.Final {
			return nil
		}
	}
}

// Registry tracks live sessions by id.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

// NewRegistry creates an empty session registry.
func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*Session)}
}

// AgentFactory builds a fresh agent for one session. The step callback must
// be installed via the provided option so the session sees every step.
type AgentFactory func(stepCallback agent.Option) *agent.ReactAgent

// StartTask creates a session and runs the task on a fresh agent in the
// background.
func (r *Registry) StartTask(ctx context.Context, task string, factory AgentFactory) *Session {
	s := newSession(task)
	r.mu.Lock()
	r.sessions[s.ID] = s
	r.mu.Unlock()

	a := factory(agent.WithStepCallback(func(n int, step agent.Step) {
		recorded := step
		s.append(Event{StepNumber: n, Step: &recorded})
	}))

	go func() {
		result, err := a.Run(ctx, task)
		s.finish(result, err)
	}()
	return s
}

// Get returns a session by id.
func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	return s, ok
}

// List returns all sessions, newest first.
func (r *Registry) List() []*Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

// Remove drops a finished session from the registry.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
}
