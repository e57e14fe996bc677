package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
)

var (
	// ErrSuperseded is returned by Login when a newer login, logout or
	// external change landed while the backend call was in flight
	ErrSuperseded = errors.New("session mutation superseded by a newer one")

	// ErrClosed is returned once the store has been closed
	ErrClosed = errors.New("session store closed")
)

// Backend authenticates users. Validate returns a nil user when there is no
// session.
type Backend interface {
	Login(ctx context.Context, creds Credentials) (*User, error)
	Validate(ctx context.Context) (*User, error)
	Logout(ctx context.Context) error
}

// Persister is implemented by backends that keep the user in storage the
// store must update atomically with its in-memory state. A nil user removes
// the stored entry.
type Persister interface {
	Persist(user *User) error
}

// Options configures a Store
type Options struct {
	Backend Backend

	// Demo skips the backend entirely and uses DemoUser
	Demo bool

	// Feed reports storage writes made by other holders of the same storage
	Feed ChangeFeed

	// StorageKey selects which feed changes concern this store
	StorageKey string

	Logger zerolog.Logger
}

type subscriber struct {
	id   uint64
	fn   func(State)
	last uint64
}

// Store owns the authentication state of one page session
type Store struct {
	backend    Backend
	persister  Persister
	demo       bool
	feed       ChangeFeed
	storageKey string
	log        zerolog.Logger

	mu       sync.Mutex
	user     *User
	loading  bool
	version  uint64
	seq      uint64
	started  bool
	closed   bool
	stopFeed func()

	ready     chan struct{}
	readyOnce sync.Once

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	deliverMu sync.Mutex
	subs      []*subscriber
	nextSubID uint64
}

// New creates a store in the Loading state. Call Start (or Bootstrap) to
// resolve it.
func New(opts Options) (*Store, error) {
	if !opts.Demo && opts.Backend == nil {
		return nil, fmt.Errorf("session store requires a backend outside demo mode")
	}

	feed := opts.Feed
	if feed == nil {
		feed = NopFeed{}
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Store{
		backend:    opts.Backend,
		demo:       opts.Demo,
		feed:       feed,
		storageKey: opts.StorageKey,
		log:        opts.Logger,
		loading:    true,
		version:    1,
		ready:      make(chan struct{}),
		ctx:        ctx,
		cancel:     cancel,
	}
	if p, ok := opts.Backend.(Persister); ok && !opts.Demo {
		s.persister = p
	}
	return s, nil
}

// Start subscribes to the change feed and runs the bootstrap in the
// background. The returned error only concerns the feed.
func (s *Store) Start() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	s.mu.Unlock()

	if !s.demo {
		stop, err := s.feed.Watch(s.applyChange)
		if err != nil {
			return fmt.Errorf("failed to watch session storage: %w", err)
		}
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			stop()
			return ErrClosed
		}
		s.stopFeed = stop
		s.mu.Unlock()
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.Bootstrap(s.ctx)
	}()
	return nil
}

// Bootstrap resolves the initial session. It runs at most once per store;
// later calls return immediately without waiting.
func (s *Store) Bootstrap(ctx context.Context) {
	s.mu.Lock()
	if s.started || s.closed {
		s.mu.Unlock()
		return
	}
	s.started = true
	token := s.seq
	s.mu.Unlock()

	if s.demo {
		s.resolve(token, DemoUser())
		return
	}

	ctx, cancel := s.callContext(ctx)
	defer cancel()

	user, err := s.backend.Validate(ctx)
	if err != nil {
		s.log.Debug().Err(err).Msg("Session validation failed, treating as signed out")
		user = nil
	}
	s.resolve(token, user)
}

// resolve ends the Loading phase. A mutation that happened during bootstrap
// wins over the bootstrap result.
func (s *Store) resolve(token uint64, user *User) {
	s.mu.Lock()
	if s.closed || !s.loading {
		s.mu.Unlock()
		return
	}
	if token == s.seq {
		s.user = user.Clone()
	}
	s.loading = false
	st := s.bumpLocked()
	s.mu.Unlock()

	s.closeReady()
	s.publish(st)
}

// Ready is closed once bootstrap resolved or the store was closed
func (s *Store) Ready() <-chan struct{} {
	return s.ready
}

// Wait blocks until bootstrap resolved
func (s *Store) Wait(ctx context.Context) error {
	select {
	case <-s.ready:
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.loading {
			return ErrClosed
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Login signs a user in. On failure the error is returned and the state is
// left untouched.
func (s *Store) Login(ctx context.Context, creds Credentials) (*User, error) {
	s.Bootstrap(ctx)
	if err := s.Wait(ctx); err != nil {
		return nil, err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrClosed
	}
	s.seq++
	token := s.seq

	if s.demo {
		st, changed := s.setUserLocked(DemoUser())
		s.mu.Unlock()
		if changed {
			s.publish(st)
		}
		return DemoUser(), nil
	}
	s.mu.Unlock()

	callCtx, cancel := s.callContext(ctx)
	defer cancel()

	user, err := s.backend.Login(callCtx, creds)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, fmt.Errorf("login returned no user")
	}
	user = user.Clone()
	if user.Email == "" {
		user.Email = creds.Email
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrClosed
	}
	if token != s.seq {
		s.mu.Unlock()
		return nil, ErrSuperseded
	}
	if s.persister != nil {
		if err := s.persister.Persist(user); err != nil {
			s.mu.Unlock()
			return nil, fmt.Errorf("failed to persist session: %w", err)
		}
	}
	st, changed := s.setUserLocked(user)
	s.mu.Unlock()

	if changed {
		s.publish(st)
	}
	return user.Clone(), nil
}

// Logout clears the session. Backend failures are logged, never returned;
// the user is cleared regardless.
func (s *Store) Logout(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.seq++
	token := s.seq

	if s.demo {
		st, changed := s.setUserLocked(nil)
		s.mu.Unlock()
		if changed {
			s.publish(st)
		}
		return nil
	}
	s.mu.Unlock()

	callCtx, cancel := s.callContext(ctx)
	defer cancel()

	if err := s.backend.Logout(callCtx); err != nil {
		s.log.Warn().Err(err).Msg("Logout request failed, clearing local session anyway")
	}

	s.mu.Lock()
	if s.closed || token != s.seq {
		s.mu.Unlock()
		return nil
	}
	if s.persister != nil {
		if err := s.persister.Persist(nil); err != nil {
			s.log.Warn().Err(err).Msg("Failed to remove stored session")
		}
	}
	st, changed := s.setUserLocked(nil)
	s.mu.Unlock()

	if changed {
		s.publish(st)
	}
	return nil
}

// Snapshot returns the current state
func (s *Store) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stateLocked()
}

// Subscribe registers fn for state changes. fn is called immediately with the
// current state and then with every newer state, in version order. fn runs on
// the goroutine that made the change and must not call Login or Logout.
func (s *Store) Subscribe(fn func(State)) (unsubscribe func()) {
	s.deliverMu.Lock()
	defer s.deliverMu.Unlock()

	s.nextSubID++
	sub := &subscriber{id: s.nextSubID, fn: fn}

	st := s.Snapshot()
	sub.last = st.Version
	fn(st)

	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return func() {}
	}

	s.subs = append(s.subs, sub)

	var once sync.Once
	return func() {
		once.Do(func() {
			s.deliverMu.Lock()
			defer s.deliverMu.Unlock()
			for i, existing := range s.subs {
				if existing.id == sub.id {
					s.subs = append(s.subs[:i:i], s.subs[i+1:]...)
					break
				}
			}
		})
	}
}

// Close tears the store down. An in-flight bootstrap is cancelled and any
// backend result arriving afterwards is dropped without a state change.
func (s *Store) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	stop := s.stopFeed
	s.stopFeed = nil
	s.mu.Unlock()

	s.cancel()
	if stop != nil {
		stop()
	}
	s.closeReady()
	s.wg.Wait()

	s.deliverMu.Lock()
	s.subs = nil
	s.deliverMu.Unlock()
}

// applyChange handles a storage write made elsewhere (another tab or process)
func (s *Store) applyChange(c Change) {
	if c.Key != s.storageKey {
		return
	}

	var user *User
	if c.NewValue != nil {
		u, err := DecodeUser(*c.NewValue)
		if err != nil {
			s.log.Warn().Err(err).Str("key", c.Key).Msg("Ignoring corrupt session written by another tab")
		} else {
			user = u
		}
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.seq++
	st, changed := s.setUserLocked(user)
	s.mu.Unlock()

	if changed {
		s.publish(st)
	}
}

// setUserLocked must be called with mu held
func (s *Store) setUserLocked(user *User) (State, bool) {
	if s.user.Equal(user) {
		return s.stateLocked(), false
	}
	s.user = user.Clone()
	return s.bumpLocked(), true
}

func (s *Store) bumpLocked() State {
	s.version++
	return s.stateLocked()
}

func (s *Store) stateLocked() State {
	return State{
		User:    s.user.Clone(),
		Loading: s.loading,
		Version: s.version,
	}
}

func (s *Store) publish(st State) {
	s.deliverMu.Lock()
	defer s.deliverMu.Unlock()

	for _, sub := range s.subs {
		if st.Version <= sub.last {
			continue
		}
		sub.last = st.Version
		sub.fn(State{User: st.User.Clone(), Loading: st.Loading, Version: st.Version})
	}
}

func (s *Store) closeReady() {
	s.readyOnce.Do(func() { close(s.ready) })
}

// callContext derives a context that is also cancelled when the store closes
func (s *Store) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(s.ctx, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}
