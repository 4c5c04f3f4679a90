package watcher

import (
	"errors"
	"fmt"
	"log"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ManouchehrRasoulli/rfskeeper/pkg/logger"
	"github.com/ManouchehrRasoulli/rfskeeper/pkg/metrics"
	"github.com/ManouchehrRasoulli/rfskeeper/pkg/model"
	"github.com/ManouchehrRasoulli/rfskeeper/pkg/pool"
	"github.com/ManouchehrRasoulli/rfskeeper/pkg/registry"
)

const (
	DefaultPollTimeout = time.Second
	// the receive loop keeps one worker busy for the monitor's lifetime.
	minPoolSize = 2
)

var (
	ErrClosed      = errors.New("monitor is closed")
	ErrNilCallback = errors.New("callback is nil")
	ErrEmptyMask   = errors.New("event mask selects no events")
)

// Callback receives one event. It runs on the monitor's pool, never on the
// receive loop.
type Callback func(e model.Event)

type Option func(m *Monitor)

// WithPool runs the receive loop and callbacks on a caller owned pool. The
// pool must outlive the monitor.
func WithPool(p *pool.Pool) Option {
	return func(m *Monitor) {
		m.pool = p
	}
}

// WithPoolSize sizes the pool the monitor creates for itself when WithPool is
// not given. Sizes below 2 are raised to 2.
func WithPoolSize(size int) Option {
	return func(m *Monitor) {
		m.poolSize = size
	}
}

func WithBackend(b Backend) Option {
	return func(m *Monitor) {
		m.backend = b
	}
}

func WithPollTimeout(d time.Duration) Option {
	return func(m *Monitor) {
		if d > 0 {
			m.timeout = d
		}
	}
}

func WithLogger(lg *log.Logger) Option {
	return func(m *Monitor) {
		m.logger = logger.NewColorLogger(lg)
	}
}

func WithMetrics(c *metrics.Collector) Option {
	return func(m *Monitor) {
		m.metrics = c
	}
}

type registration struct {
	path     string
	mask     model.Op
	callback Callback
	serial   *serial
}

// serial queues the events of one registration so its callback runs once at
// a time, in the order the backend reported them.
type serial struct {
	mutex     sync.Mutex
	events    []model.Event
	running   bool
	cancelled bool
}

// push queues e and reports whether a drain task has to be scheduled.
func (s *serial) push(e model.Event) bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.cancelled {
		return false
	}
	s.events = append(s.events, e)
	if s.running {
		return false
	}
	s.running = true
	return true
}

func (s *serial) pop() (model.Event, bool) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.cancelled || len(s.events) == 0 {
		s.running = false
		return model.Event{}, false
	}
	e := s.events[0]
	s.events[0] = model.Event{}
	s.events = s.events[1:]
	return e, true
}

// cancel drops the queued events and returns how many there were.
func (s *serial) cancel() int {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	n := len(s.events)
	s.cancelled = true
	s.events = nil
	return n
}

// stall forgets a drain that could not be scheduled.
func (s *serial) stall() int {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	n := len(s.events)
	s.running = false
	s.events = nil
	return n
}

// Monitor multiplexes many path registrations onto one Backend and dispatches
// matching events to their callbacks through a worker pool.
type Monitor struct {
	backend  Backend
	pool     *pool.Pool
	ownsPool bool
	poolSize int
	timeout  time.Duration
	logger   *logger.ColorLogger
	metrics  *metrics.Collector

	owners *registry.Registry[registration]

	// handleWd and wdHandles always change together under mutex.
	mutex     sync.Mutex
	handleWd  map[registry.Handle]int
	wdHandles map[int][]registry.Handle

	closed  atomic.Bool
	closing chan struct{}
	done    chan struct{}
	once    sync.Once
}

// New opens the backend (the platform default unless WithBackend is given)
// and schedules the receive loop.
func New(options ...Option) (*Monitor, error) {
	m := &Monitor{
		poolSize:  minPoolSize,
		timeout:   DefaultPollTimeout,
		logger:    logger.NewColorLogger(nil),
		owners:    registry.New[registration](),
		handleWd:  make(map[registry.Handle]int),
		wdHandles: make(map[int][]registry.Handle),
		closing:   make(chan struct{}),
		done:      make(chan struct{}),
	}

	for _, op := range options {
		op(m)
	}

	if m.backend == nil {
		b, err := NewBackend("")
		if err != nil {
			m.logger.Errorf("watcher :: got error %v on opening notification backend", err)
			return nil, err
		}
		m.backend = b
	}

	if m.pool == nil {
		m.pool = pool.New(max(m.poolSize, minPoolSize),
			pool.WithLogger(m.logger.Logger),
			pool.WithMetrics(m.metrics))
		m.ownsPool = true
	} else if m.pool.Size() < minPoolSize {
		m.logger.Warnf("watcher :: shared pool of size %d is fully taken by the receive loop", m.pool.Size())
	}

	if f := m.pool.Go(m.run); !f.Valid() {
		_ = m.backend.Close()
		if m.ownsPool {
			m.pool.Close()
		}
		return nil, fmt.Errorf("watcher :: schedule receive loop: %w", pool.ErrRejected)
	}

	return m, nil
}

// Pool returns the pool callbacks are dispatched on.
func (m *Monitor) Pool() *pool.Pool {
	return m.pool
}

func (m *Monitor) IsRegistered(handle registry.Handle) bool {
	return m.owners.IsRegistered(handle)
}

// Register watches path for the events in mask and returns the handle that
// identifies the registration. Registering the same path again yields a new,
// independent handle. On failure nothing is retained.
//
// Events for one handle reach callback one at a time and in backend order.
// A watch on a file ends with the file: once it is deleted the backend drops
// the watch, the handle is released after its pending events and
// IsRegistered reports false. Watch the parent directory to follow a file
// across replacements.
func (m *Monitor) Register(path string, mask model.Op, callback Callback) (registry.Handle, error) {
	if callback == nil {
		return 0, ErrNilCallback
	}
	if !mask.Any(model.All) {
		return 0, ErrEmptyMask
	}

	m.mutex.Lock()
	defer m.mutex.Unlock()

	if m.closed.Load() {
		return 0, ErrClosed
	}

	handle := m.owners.Register(registration{
		path:     path,
		mask:     mask,
		callback: callback,
		serial:   &serial{},
	})

	wd, err := m.backend.Add(path, mask)
	if err != nil {
		m.owners.Remove(handle)
		m.logger.Warnf("watcher :: got error %v on watching %s", err, path)
		return 0, err
	}

	m.handleWd[handle] = wd
	m.wdHandles[wd] = append(m.wdHandles[wd], handle)
	m.metrics.SetRegistrations(len(m.handleWd))
	return handle, nil
}

// Remove drops the registration. Events already decoded for it are not
// delivered once Remove returned. Unknown handles are ignored.
func (m *Monitor) Remove(handle registry.Handle) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if reg, err := m.owners.Get(handle); err == nil {
		m.skipped(reg.serial.cancel(), metrics.OutcomeRemoved)
	}
	m.owners.Remove(handle)

	wd, ok := m.handleWd[handle]
	if !ok {
		return
	}
	delete(m.handleWd, handle)
	m.metrics.SetRegistrations(len(m.handleWd))

	remaining := make([]registry.Handle, 0, len(m.wdHandles[wd]))
	for _, h := range m.wdHandles[wd] {
		if h != handle {
			remaining = append(remaining, h)
		}
	}
	if len(remaining) > 0 {
		m.wdHandles[wd] = remaining
		return
	}

	delete(m.wdHandles, wd)
	if m.closed.Load() {
		return
	}
	if err := m.backend.Remove(wd); err != nil {
		m.logger.Warnf("watcher :: got error %v on removing watch %d", err, wd)
	}
}

// Close stops the receive loop, which takes up to one poll timeout, and
// releases the backend. A pool created by the monitor is closed too.
func (m *Monitor) Close() error {
	var err error
	m.once.Do(func() {
		m.closed.Store(true)
		close(m.closing)
		<-m.done

		m.mutex.Lock()
		err = m.backend.Close()
		for handle := range m.handleWd {
			if reg, err := m.owners.Get(handle); err == nil {
				reg.serial.cancel()
			}
			m.owners.Remove(handle)
		}
		m.handleWd = make(map[registry.Handle]int)
		m.wdHandles = make(map[int][]registry.Handle)
		m.metrics.SetRegistrations(0)
		m.mutex.Unlock()

		if m.ownsPool {
			m.pool.Close()
		}
	})
	return err
}

func (m *Monitor) run() {
	defer close(m.done)

	for {
		select {
		case <-m.closing:
			return
		default:
		}

		events, err := m.backend.Read(m.timeout)
		if err != nil {
			if errors.Is(err, ErrBackendClosed) {
				if !m.closed.Load() {
					m.logger.Errorf("watcher :: notification backend closed under the receive loop")
				}
				return
			}
			m.metrics.ReadError()
			m.logger.Warnf("watcher :: got error %v on reading events", err)
			if len(events) == 0 {
				m.pause()
			}
		}

		for _, e := range events {
			m.dispatch(e)
		}
	}
}

// pause keeps a failing backend from spinning the loop.
func (m *Monitor) pause() {
	t := time.NewTimer(m.timeout / 10)
	defer t.Stop()

	select {
	case <-m.closing:
	case <-t.C:
	}
}

func (m *Monitor) dispatch(e RawEvent) {
	if e.Op.Has(model.Overflow) {
		m.metrics.Event(metrics.OutcomeOverflow)
		m.logger.Warnf("watcher :: event queue overflowed, changes may have been lost")
		return
	}
	if e.Dropped {
		m.release(e.Wd)
		return
	}

	m.mutex.Lock()
	handles := m.wdHandles[e.Wd]
	targets := make([]registration, 0, len(handles))
	for _, h := range handles {
		reg, err := m.owners.Get(h)
		if err != nil {
			continue
		}
		targets = append(targets, reg)
	}
	m.mutex.Unlock()

	if len(targets) == 0 {
		m.metrics.Event(metrics.OutcomeUnknownWatch)
		return
	}

	for _, reg := range targets {
		if !e.Op.Any(reg.mask) {
			m.metrics.Event(metrics.OutcomeMasked)
			continue
		}

		ev := model.Event{
			Op:     e.Op,
			Cookie: e.Cookie,
			Name:   e.Name,
			Path:   reg.path,
		}
		if ev.Name == "" {
			ev.Name = filepath.Base(reg.path)
		}

		if !reg.serial.push(ev) {
			continue
		}
		if f := m.pool.Go(func() { m.drain(reg) }); !f.Valid() {
			m.skipped(reg.serial.stall(), metrics.OutcomeRemoved)
			m.logger.Warnf("watcher :: dropped events for %s, pool is shut down", reg.path)
		}
	}
}

// drain runs the queued callbacks of one registration. Only one drain per
// registration is scheduled at a time.
func (m *Monitor) drain(reg registration) {
	for {
		e, ok := reg.serial.pop()
		if !ok {
			return
		}
		m.metrics.Event(metrics.OutcomeDispatched)
		m.call(reg.callback, e)
	}
}

func (m *Monitor) call(callback Callback, e model.Event) {
	defer func() {
		if r := recover(); r != nil {
			m.metrics.TaskPanicked()
			m.logger.Errorf("watcher :: recovered callback panic %v on event %s", r, e)
		}
	}()
	callback(e)
}

// release forgets a watch the backend dropped on its own, e.g. because the
// watched file was deleted. Events already queued are still delivered.
func (m *Monitor) release(wd int) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	handles, ok := m.wdHandles[wd]
	if !ok {
		return
	}
	delete(m.wdHandles, wd)
	for _, h := range handles {
		if reg, err := m.owners.Get(h); err == nil {
			m.logger.Infof("watcher :: watch on %s ended, path is gone", reg.path)
		}
		m.owners.Remove(h)
		delete(m.handleWd, h)
		m.metrics.Event(metrics.OutcomeReleased)
	}
	m.metrics.SetRegistrations(len(m.handleWd))
}

func (m *Monitor) skipped(n int, outcome string) {
	for i := 0; i < n; i++ {
		m.metrics.Event(outcome)
	}
}
