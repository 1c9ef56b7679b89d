package resilience

import (
	"context"
	"errors"
	"sync"
	"time"
)

var (
	ErrCircuitOpen     = errors.New("circuit breaker is open")
	ErrTooManyRequests = errors.New("too many requests")
)

// State represents the circuit breaker state
type State int

const (
	StateClosed State = iota
	StateHalfOpen
	StateOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateHalfOpen:
		return "half-open"
	case StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

// Settings configures a breaker
type Settings struct {
	// Failures is the number of consecutive failures that opens the circuit
	Failures uint32
	// Cooldown is how long the circuit stays open before probing
	Cooldown time.Duration
	// Probes is the number of successful half-open calls needed to close
	Probes uint32
	// IsFailure classifies errors; nil counts every non-nil error except
	// context cancellation by the caller
	IsFailure func(err error) bool
	// OnStateChange is called with the breaker lock released
	OnStateChange func(name string, from, to State)
}

func (s Settings) withDefaults() Settings {
	if s.Failures == 0 {
		s.Failures = 5
	}
	if s.Cooldown == 0 {
		s.Cooldown = 30 * time.Second
	}
	if s.Probes == 0 {
		s.Probes = 1
	}
	if s.IsFailure == nil {
		s.IsFailure = func(err error) bool {
			return err != nil && !errors.Is(err, context.Canceled)
		}
	}
	return s
}

// Counts holds breaker statistics
type Counts struct {
	Calls               uint32
	Failures            uint32
	ConsecutiveFailures uint32
	ProbeSuccesses      uint32
	Rejected            uint32
}

// Breaker fails calls fast while a dependency is known to be down
type Breaker struct {
	name     string
	settings Settings
	now      func() time.Time

	mu       sync.Mutex
	state    State
	counts   Counts
	openedAt time.Time
	inFlight uint32
}

// New creates a breaker
func New(name string, settings Settings) *Breaker {
	return &Breaker{
		name:     name,
		settings: settings.withDefaults(),
		now:      time.Now,
	}
}

// Name returns the breaker name
func (b *Breaker) Name() string {
	return b.name
}

// State returns the current state, advancing open to half-open once the
// cooldown has elapsed
func (b *Breaker) State() State {
	b.mu.Lock()
	state, change := b.advance()
	b.mu.Unlock()
	b.notify(change)
	return state
}

// Counts returns a copy of the internal counts
func (b *Breaker) Counts() Counts {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.counts
}

// Do runs fn if the breaker admits the call
func (b *Breaker) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := b.admit(); err != nil {
		return err
	}

	var err error
	defer func() {
		if r := recover(); r != nil {
			b.record(errors.New("panic"))
			panic(r)
		}
		b.record(err)
	}()

	err = fn(ctx)
	return err
}

// Call runs fn through b and returns its value
func Call[T any](ctx context.Context, b *Breaker, fn func(ctx context.Context) (T, error)) (T, error) {
	var out T
	err := b.Do(ctx, func(ctx context.Context) error {
		v, err := fn(ctx)
		out = v
		return err
	})
	return out, err
}

type transition struct {
	from, to State
	changed  bool
}

func (b *Breaker) admit() error {
	b.mu.Lock()
	state, change := b.advance()
	var err error
	switch {
	case state == StateOpen:
		b.counts.Rejected++
		err = ErrCircuitOpen
	case state == StateHalfOpen && b.inFlight >= b.settings.Probes:
		b.counts.Rejected++
		err = ErrTooManyRequests
	default:
		b.counts.Calls++
		b.inFlight++
	}
	b.mu.Unlock()
	b.notify(change)
	return err
}

func (b *Breaker) record(err error) {
	b.mu.Lock()
	if b.inFlight > 0 {
		b.inFlight--
	}

	var change transition
	if b.settings.IsFailure(err) {
		b.counts.Failures++
		b.counts.ConsecutiveFailures++
		switch b.state {
		case StateClosed:
			if b.counts.ConsecutiveFailures >= b.settings.Failures {
				change = b.setState(StateOpen)
			}
		case StateHalfOpen:
			change = b.setState(StateOpen)
		}
	} else {
		b.counts.ConsecutiveFailures = 0
		if b.state == StateHalfOpen {
			b.counts.ProbeSuccesses++
			if b.counts.ProbeSuccesses >= b.settings.Probes {
				change = b.setState(StateClosed)
			}
		}
	}
	b.mu.Unlock()
	b.notify(change)
}

// advance must be called with mu held
func (b *Breaker) advance() (State, transition) {
	if b.state == StateOpen && b.now().Sub(b.openedAt) >= b.settings.Cooldown {
		return StateHalfOpen, b.setState(StateHalfOpen)
	}
	return b.state, transition{}
}

// setState must be called with mu held
func (b *Breaker) setState(to State) transition {
	from := b.state
	if from == to {
		return transition{}
	}
	b.state = to
	b.counts.ConsecutiveFailures = 0
	b.counts.ProbeSuccesses = 0
	if to == StateOpen {
		b.openedAt = b.now()
	}
	return transition{from: from, to: to, changed: true}
}

func (b *Breaker) notify(t transition) {
	if t.changed && b.settings.OnStateChange != nil {
		b.settings.OnStateChange(b.name, t.from, t.to)
	}
}
