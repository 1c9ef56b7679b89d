package jsvm

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dop251/goja"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/launcher/internal/domain/rpc"
	"github.com/GriffinCanCode/launcher/internal/domain/session"
	"github.com/GriffinCanCode/launcher/internal/infrastructure/logging"
	"github.com/GriffinCanCode/launcher/internal/shared/id"
	"github.com/GriffinCanCode/launcher/internal/shared/types"
)

var errScriptTimeout = errors.New("script timeout exceeded")

type job func() error

type loadError struct {
	url string
	err error
}

func (e *loadError) Error() string { return fmt.Sprintf("load %s: %v", e.url, e.err) }
func (e *loadError) Unwrap() error { return e.err }

// Surface is one plugin execution context: a goja VM driven by its own loop
// goroutine. Everything touching the VM runs as a job on that loop; the
// exported methods only enqueue.
type Surface struct {
	id      id.SurfaceID
	cfg     Config
	session *session.Handle
	preload string
	log     *zap.Logger

	// loop goroutine only
	vm       *goja.Runtime
	handlers map[string]goja.Callable
	features map[string]goja.Callable
	mode     goja.Value

	ctx    context.Context
	cancel context.CancelFunc

	mu            sync.Mutex
	queue         []job
	closed        bool
	terminated    bool
	preloadQueued bool
	url           string
	timers        map[int64]*time.Timer
	nextTimer     int64
	console       []LogEntry
	onMessage     func(rpc.Message)
	onTerminated  func(types.Termination)
	onFocus       func()

	wake     chan struct{}
	done     chan struct{}
	exited   chan struct{}
	stopOnce sync.Once
}

func newSurface(cfg Config, sess *session.Handle, preload string, log *zap.Logger) (*Surface, error) {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Surface{
		id:       id.NewSurfaceID(),
		cfg:      cfg,
		session:  sess,
		preload:  preload,
		vm:       goja.New(),
		handlers: make(map[string]goja.Callable),
		features: make(map[string]goja.Callable),
		ctx:      ctx,
		cancel:   cancel,
		timers:   make(map[int64]*time.Timer),
		wake:     make(chan struct{}, 1),
		done:     make(chan struct{}),
		exited:   make(chan struct{}),
	}
	s.log = log.With(logging.SurfaceID(s.id.String()))
	if sess != nil {
		s.log = s.log.With(logging.PluginName(sess.Name))
	}

	s.vm.SetMaxCallStackSize(cfg.MaxCallStackSize)
	if err := s.setupGlobals(); err != nil {
		cancel()
		return nil, fmt.Errorf("setup globals: %w", err)
	}

	go s.run()
	return s, nil
}

func (s *Surface) ID() id.SurfaceID { return s.id }

// Load fetches url (and the preload on first use) off the loop, then runs
// the scripts as one job. onReady runs on the loop after they finish.
func (s *Surface) Load(rawURL string, onReady func()) error {
	s.mu.Lock()
	if s.closed || s.terminated {
		s.mu.Unlock()
		return ErrClosed
	}
	withPreload := !s.preloadQueued
	s.preloadQueued = true
	s.mu.Unlock()

	go func() {
		scripts, err := s.fetchScripts(s.ctx, rawURL, withPreload)
		if err != nil {
			_ = s.enqueue(func() error { return &loadError{url: rawURL, err: err} })
			return
		}
		_ = s.enqueue(func() error {
			for _, sc := range scripts {
				if _, err := s.vm.RunScript(sc.name, sc.src); err != nil {
					return err
				}
			}
			s.mu.Lock()
			s.url = rawURL
			s.mu.Unlock()

			s.log.Debug("Surface loaded", zap.String("url", rawURL), zap.Int("scripts", len(scripts)))
			if onReady != nil {
				onReady()
			}
			return nil
		})
	}()
	return nil
}

// Send queues msg for the plugin
func (s *Surface) Send(msg rpc.Message) error {
	return s.enqueue(func() error { return s.dispatch(msg) })
}

// Focus marks the surface focused and notifies OnFocus from the loop
func (s *Surface) Focus() {
	_ = s.enqueue(func() error {
		s.mu.Lock()
		fn := s.onFocus
		s.mu.Unlock()
		if fn != nil {
			fn()
		}
		return s.emitLocal("focus", goja.Undefined())
	})
}

// SendInputEvent delivers evt to the plugin's "input" handler
func (s *Surface) SendInputEvent(evt types.InputEvent) error {
	return s.enqueue(func() error {
		return s.emitLocal("input", s.valueOf(evt))
	})
}

// Close stops the loop and interrupts any running script. No termination is
// reported for an explicit close.
func (s *Surface) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	s.vm.Interrupt("surface closed")
	s.stop()
}

// Destroyed reports whether the surface was closed or died
func (s *Surface) Destroyed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed || s.terminated
}

func (s *Surface) OnMessage(fn func(rpc.Message)) {
	s.mu.Lock()
	s.onMessage = fn
	s.mu.Unlock()
}

func (s *Surface) OnTerminated(fn func(types.Termination)) {
	s.mu.Lock()
	s.onTerminated = fn
	s.mu.Unlock()
}

func (s *Surface) OnFocus(fn func()) {
	s.mu.Lock()
	s.onFocus = fn
	s.mu.Unlock()
}

// URL returns the last successfully loaded URL
func (s *Surface) URL() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.url
}

// Console returns the retained console output
func (s *Surface) Console() []LogEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]LogEntry(nil), s.console...)
}

// Exited is closed once the loop goroutine has returned
func (s *Surface) Exited() <-chan struct{} {
	return s.exited
}

// ============================================================================
// Event loop
// ============================================================================

func (s *Surface) enqueue(j job) error {
	s.mu.Lock()
	if s.closed || s.terminated {
		s.mu.Unlock()
		return ErrClosed
	}
	s.queue = append(s.queue, j)
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
	return nil
}

func (s *Surface) next() (job, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.terminated || len(s.queue) == 0 {
		return nil, false
	}
	j := s.queue[0]
	s.queue[0] = nil
	s.queue = s.queue[1:]
	return j, true
}

func (s *Surface) run() {
	defer close(s.exited)
	for {
		select {
		case <-s.done:
			return
		case <-s.wake:
		}
		for {
			j, ok := s.next()
			if !ok {
				break
			}
			if err := s.exec(j); err != nil {
				s.fail(err)
				return
			}
		}
	}
}

// exec runs one job under the script watchdog. A watchdog firing after the
// job returned must not poison the next job.
func (s *Surface) exec(j job) (err error) {
	var (
		mu       sync.Mutex
		finished bool
	)
	watchdog := time.AfterFunc(s.cfg.ScriptTimeout, func() {
		mu.Lock()
		defer mu.Unlock()
		if !finished {
			s.vm.Interrupt(errScriptTimeout)
		}
	})
	defer func() {
		watchdog.Stop()
		mu.Lock()
		finished = true
		mu.Unlock()
		if err == nil {
			s.vm.ClearInterrupt()
		}
	}()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("surface panic: %v", r)
		}
	}()
	return j()
}

// fail reports a termination unless the surface was closed on purpose
func (s *Surface) fail(err error) {
	term := classify(err)

	s.mu.Lock()
	if s.closed || s.terminated {
		s.mu.Unlock()
		return
	}
	s.terminated = true
	fn := s.onTerminated
	s.mu.Unlock()

	s.stop()
	s.log.Warn("Surface terminated", zap.String("reason", term.Reason), zap.Error(err))
	if fn != nil {
		fn(term)
	}
}

func (s *Surface) stop() {
	s.stopOnce.Do(func() {
		close(s.done)
		s.cancel()

		s.mu.Lock()
		for tid, t := range s.timers {
			t.Stop()
			delete(s.timers, tid)
		}
		s.queue = nil
		s.mu.Unlock()
	})
}

func classify(err error) types.Termination {
	var (
		lerr        *loadError
		interrupted *goja.InterruptedError
	)
	switch {
	case errors.As(err, &lerr):
		return types.Termination{Reason: ReasonLoadFailed, ExitCode: exitLoadFailed}
	case errors.As(err, &interrupted):
		return types.Termination{Reason: ReasonUnresponsive, ExitCode: exitUnresponsive}
	default:
		return types.Termination{Reason: ReasonCrashed, ExitCode: exitCrashed}
	}
}
