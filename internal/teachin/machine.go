package teachin

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ESDN83/enocean-mqtt-core/internal/device"
	"github.com/ESDN83/enocean-mqtt-core/internal/eep"
	"github.com/ESDN83/enocean-mqtt-core/internal/enocean"
)

// State names a position in the teach-in FSM.
type State string

// Teach-in session states. Committed, TimedOut and Cancelled are
// terminal; a new activation starts a fresh session.
const (
	StateIdle                 State = "idle"
	StateListening            State = "listening"
	StateCandidateFound       State = "candidate_found"
	StateAwaitingConfirmation State = "awaiting_confirmation"
	StateCommitted            State = "committed"
	StateTimedOut             State = "timed_out"
	StateCancelled            State = "cancelled"
)

// active reports whether the state blocks a new activation.
func (s State) active() bool {
	return s == StateListening || s == StateCandidateFound || s == StateAwaitingConfirmation
}

// Clock abstracts wall time so deadline behaviour is testable.
type Clock interface {
	Now() time.Time
}

// systemClock is the production clock.
type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// Candidate is the unknown transmitter surfaced for confirmation.
type Candidate struct {
	Address  uint32           `json:"address"`
	Profile  eep.ProfileID    `json:"profile"`
	Telegram enocean.Telegram `json:"-"`
	SeenAt   time.Time        `json:"seen_at"`
}

// Session is a snapshot of one teach-in session.
type Session struct {
	ID        string     `json:"id"`
	State     State      `json:"state"`
	StartedAt time.Time  `json:"started_at"`
	Deadline  time.Time  `json:"deadline"`
	Candidate *Candidate `json:"candidate,omitempty"`
}

// deepCopy returns an independent snapshot.
func (s Session) deepCopy() Session {
	out := s
	if s.Candidate != nil {
		c := *s.Candidate
		c.Telegram = s.Candidate.Telegram.DeepCopy()
		out.Candidate = &c
	}
	return out
}

// Registry is the slice of the device registry the machine needs.
type Registry interface {
	Has(address uint32) bool
	Register(ctx context.Context, dev *device.Device) error
}

// ProfileStore is the profile lookup used to validate candidates.
type ProfileStore interface {
	Has(id eep.ProfileID) bool
}

// Logger defines the logging interface used by the Machine.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Machine drives teach-in sessions.
//
// Thread Safety: all methods are safe for concurrent use, but the
// machine is single-writer by design; telegrams must reach Observe
// from one serialized pipeline.
type Machine struct {
	mu       sync.Mutex
	store    ProfileStore
	registry Registry
	clock    Clock
	session  Session
	notify   func(Session)
	logger   Logger
}

// NewMachine creates an idle teach-in machine using the system clock.
func NewMachine(store ProfileStore, registry Registry) *Machine {
	return &Machine{
		store:    store,
		registry: registry,
		clock:    systemClock{},
		session:  Session{State: StateIdle},
		logger:   noopLogger{},
	}
}

// SetClock injects a clock. For tests.
func (m *Machine) SetClock(clock Clock) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if clock != nil {
		m.clock = clock
	}
}

// SetLogger sets a logger for session events.
func (m *Machine) SetLogger(logger Logger) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if logger != nil {
		m.logger = logger
	}
}

// SetNotifier registers a callback invoked with a session snapshot on
// every transition. The callback runs on the caller's goroutine and
// must not call back into the machine.
func (m *Machine) SetNotifier(notify func(Session)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notify = notify
}

// Activate starts a new listening session with the given window.
//
// Fails with ErrSessionActive while a session is listening or awaiting
// confirmation; terminal sessions are replaced.
func (m *Machine) Activate(window time.Duration) (Session, error) {
	if window <= 0 {
		return Session{}, fmt.Errorf("%w: %v", ErrInvalidWindow, window)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.expireLocked()
	if m.session.State.active() {
		return Session{}, fmt.Errorf("%w: session %s is %s",
			ErrSessionActive, m.session.ID, m.session.State)
	}

	now := m.clock.Now()
	m.session = Session{
		ID:        uuid.NewString(),
		State:     StateListening,
		StartedAt: now,
		Deadline:  now.Add(window),
	}
	m.logger.Info("teach-in session started",
		"session", m.session.ID,
		"window", window.String(),
	)
	m.notifyLocked()

	return m.session.deepCopy(), nil
}

// Observe feeds one telegram to the machine.
//
// While listening, a telegram from an unregistered sender whose
// teach-in announcement yields a profile known to the store becomes
// the candidate and the session advances to awaiting confirmation.
// Everything else leaves the session unchanged. Returns the session
// snapshot and whether this telegram became the candidate.
func (m *Machine) Observe(t enocean.Telegram) (Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.expireLocked()
	if m.session.State != StateListening {
		return m.session.deepCopy(), false
	}
	if m.registry.Has(t.SenderID) {
		return m.session.deepCopy(), false
	}

	profile, ok := t.TeachInProfile()
	if !ok || !m.store.Has(profile) {
		return m.session.deepCopy(), false
	}

	m.session.Candidate = &Candidate{
		Address:  t.SenderID,
		Profile:  profile,
		Telegram: t.DeepCopy(),
		SeenAt:   t.ReceivedAt,
	}
	m.session.State = StateCandidateFound
	m.notifyLocked()

	// Candidate found advances automatically; the candidate is
	// surfaced to the UI for confirmation.
	m.session.State = StateAwaitingConfirmation
	m.logger.Info("teach-in candidate found",
		"session", m.session.ID,
		"address", enocean.FormatAddress(t.SenderID),
		"profile", profile.String(),
	)
	m.notifyLocked()

	return m.session.deepCopy(), true
}

// Confirm registers the candidate under the given name and commits
// the session.
//
// A registration failure (duplicate address, invalid name) is returned
// to the caller and the session stays awaiting confirmation, so the
// user can retry with a different name or cancel.
func (m *Machine) Confirm(ctx context.Context, name string) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.expireLocked()
	if m.session.State != StateAwaitingConfirmation || m.session.Candidate == nil {
		return m.session.deepCopy(), fmt.Errorf("%w: session is %s",
			ErrNoCandidate, m.session.State)
	}

	candidate := m.session.Candidate
	dev := &device.Device{
		Address: candidate.Address,
		Name:    name,
		Profile: candidate.Profile,
	}
	if err := m.registry.Register(ctx, dev); err != nil {
		return m.session.deepCopy(), fmt.Errorf("registering candidate: %w", err)
	}

	m.session.State = StateCommitted
	m.logger.Info("teach-in committed",
		"session", m.session.ID,
		"address", enocean.FormatAddress(candidate.Address),
		"name", name,
	)
	m.notifyLocked()

	return m.session.deepCopy(), nil
}

// Cancel aborts a listening or awaiting session.
func (m *Machine) Cancel() (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.expireLocked()
	if !m.session.State.active() {
		return m.session.deepCopy(), fmt.Errorf("%w: session is %s",
			ErrNoActiveSession, m.session.State)
	}

	m.session.State = StateCancelled
	m.logger.Info("teach-in cancelled", "session", m.session.ID)
	m.notifyLocked()

	return m.session.deepCopy(), nil
}

// Current returns a snapshot of the session, applying deadline expiry.
func (m *Machine) Current() Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.expireLocked()
	return m.session.deepCopy()
}

// expireLocked moves a listening session past its deadline to timed
// out. Caller must hold the lock.
func (m *Machine) expireLocked() {
	if m.session.State == StateListening && m.clock.Now().After(m.session.Deadline) {
		m.session.State = StateTimedOut
		m.logger.Info("teach-in session timed out", "session", m.session.ID)
		m.notifyLocked()
	}
}

// notifyLocked publishes the current snapshot. Caller must hold the lock.
func (m *Machine) notifyLocked() {
	if m.notify != nil {
		m.notify(m.session.deepCopy())
	}
}
