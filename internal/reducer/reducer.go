package reducer

import (
	"context"
	"errors"
	"sync"
)

// ErrBusy is returned by TryEmit while another event is being reduced.
var ErrBusy = errors.New("another event is in flight")

// Func computes the next state. A non-nil error leaves the state untouched
// and subscribers are not notified.
type Func[S, E any] func(ctx context.Context, state S, event E) (S, error)

// Machine serializes events through a reducer. An event is fully reduced,
// stored and delivered to every subscriber before the next one is accepted.
type Machine[S, E any] struct {
	reduce Func[S, E]
	turn   chan struct{}

	mu       sync.RWMutex
	state    S
	subs     []subscription[S]
	nextSub  int
	inflight context.CancelFunc
}

type subscription[S any] struct {
	id int
	fn func(S)
}

func New[S, E any](initial S, reduce Func[S, E]) *Machine[S, E] {
	return &Machine[S, E]{
		reduce: reduce,
		turn:   make(chan struct{}, 1),
		state:  initial,
	}
}

// State returns the current state.
func (m *Machine[S, E]) State() S {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Emit waits for its turn, then reduces event.
func (m *Machine[S, E]) Emit(ctx context.Context, event E) (S, error) {
	select {
	case m.turn <- struct{}{}:
	case <-ctx.Done():
		return m.State(), ctx.Err()
	}
	return m.run(ctx, event)
}

// TryEmit reduces event only if nothing else is in flight.
func (m *Machine[S, E]) TryEmit(ctx context.Context, event E) (S, error) {
	select {
	case m.turn <- struct{}{}:
	default:
		return m.State(), ErrBusy
	}
	return m.run(ctx, event)
}

func (m *Machine[S, E]) run(ctx context.Context, event E) (S, error) {
	defer func() { <-m.turn }()

	ctx, cancel := context.WithCancel(ctx)
	m.mu.Lock()
	m.inflight = cancel
	current := m.state
	m.mu.Unlock()
	defer func() {
		cancel()
		m.mu.Lock()
		m.inflight = nil
		m.mu.Unlock()
	}()

	next, err := m.reduce(ctx, current, event)
	if err != nil {
		return current, err
	}

	m.mu.Lock()
	m.state = next
	subs := make([]subscription[S], len(m.subs))
	copy(subs, m.subs)
	m.mu.Unlock()

	for _, s := range subs {
		s.fn(next)
	}
	return next, nil
}

// Subscribe registers fn for every future state. The returned func unsubscribes.
// fn runs on the emitting goroutine and must not emit into the same machine.
func (m *Machine[S, E]) Subscribe(fn func(S)) func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextSub++
	id := m.nextSub
	m.subs = append(m.subs, subscription[S]{id: id, fn: fn})
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		for i, s := range m.subs {
			if s.id == id {
				m.subs = append(m.subs[:i:i], m.subs[i+1:]...)
				return
			}
		}
	}
}

// Cancel cancels the context of the event currently being reduced, if any.
func (m *Machine[S, E]) Cancel() bool {
	m.mu.RLock()
	cancel := m.inflight
	m.mu.RUnlock()
	if cancel == nil {
		return false
	}
	cancel()
	return true
}

// Busy reports whether an event is being reduced.
func (m *Machine[S, E]) Busy() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.inflight != nil
}
