package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fakeBackend lets each test script the backend responses
type fakeBackend struct {
	mu          sync.Mutex
	validate    func(ctx context.Context) (*User, error)
	login       func(ctx context.Context, creds Credentials) (*User, error)
	logout      func(ctx context.Context) error
	validations int
	logouts     int
}

func (f *fakeBackend) Validate(ctx context.Context) (*User, error) {
	f.mu.Lock()
	f.validations++
	fn := f.validate
	f.mu.Unlock()
	if fn == nil {
		return nil, nil
	}
	return fn(ctx)
}

func (f *fakeBackend) Login(ctx context.Context, creds Credentials) (*User, error) {
	f.mu.Lock()
	fn := f.login
	f.mu.Unlock()
	if fn == nil {
		return &User{ID: "u-" + creds.Email, Role: RoleViewer}, nil
	}
	return fn(ctx, creds)
}

func (f *fakeBackend) Logout(ctx context.Context) error {
	f.mu.Lock()
	f.logouts++
	fn := f.logout
	f.mu.Unlock()
	if fn == nil {
		return nil
	}
	return fn(ctx)
}

func newTestStore(t *testing.T, opts Options) *Store {
	t.Helper()
	opts.Logger = zerolog.Nop()
	s, err := New(opts)
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

func TestNewRequiresBackendOutsideDemo(t *testing.T) {
	_, err := New(Options{})
	require.Error(t, err)

	s, err := New(Options{Demo: true})
	require.NoError(t, err)
	s.Close()
}

func TestBootstrap(t *testing.T) {
	admin := &User{ID: "u1", Role: RoleAdmin}

	tests := []struct {
		name     string
		validate func(ctx context.Context) (*User, error)
		want     *User
		status   Status
	}{
		{
			name:     "valid session",
			validate: func(context.Context) (*User, error) { return admin, nil },
			want:     admin,
			status:   StatusAuthenticated,
		},
		{
			name:     "no session",
			validate: func(context.Context) (*User, error) { return nil, nil },
			status:   StatusUnauthenticated,
		},
		{
			name:     "validation error means no session",
			validate: func(context.Context) (*User, error) { return nil, errors.New("connection refused") },
			status:   StatusUnauthenticated,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend := &fakeBackend{validate: tt.validate}
			s := newTestStore(t, Options{Backend: backend})

			require.Equal(t, StatusLoading, s.Snapshot().Status())
			require.False(t, s.Snapshot().IsAuthenticated())

			s.Bootstrap(context.Background())
			s.Bootstrap(context.Background())

			st := s.Snapshot()
			require.Equal(t, tt.status, st.Status())
			if diff := cmp.Diff(tt.want, st.User); diff != "" {
				t.Errorf("user mismatch (-want +got):\n%s", diff)
			}
			require.Equal(t, 1, backend.validations, "bootstrap must validate exactly once")
			require.NoError(t, s.Wait(context.Background()))
		})
	}
}

func TestDemoModeNeverCallsBackend(t *testing.T) {
	s := newTestStore(t, Options{Demo: true})
	require.NoError(t, s.Start())
	require.NoError(t, s.Wait(context.Background()))

	st := s.Snapshot()
	require.Equal(t, StatusAuthenticated, st.Status())
	require.Equal(t, DemoUser(), st.User)

	require.NoError(t, s.Logout(context.Background()))
	require.Equal(t, StatusUnauthenticated, s.Snapshot().Status())

	user, err := s.Login(context.Background(), Credentials{Email: "whoever@x.io", Password: "ignored"})
	require.NoError(t, err)
	require.Equal(t, "demo-admin", user.ID)
	require.Equal(t, RoleAdmin, s.Snapshot().User.Role)
}

func TestLogin(t *testing.T) {
	t.Run("fills email from credentials", func(t *testing.T) {
		backend := &fakeBackend{
			login: func(context.Context, Credentials) (*User, error) {
				return &User{ID: "42", Role: RoleFacilitiesManager}, nil
			},
		}
		s := newTestStore(t, Options{Backend: backend})

		user, err := s.Login(context.Background(), Credentials{Email: "fm@spaceflow.local", Password: "pw"})
		require.NoError(t, err)
		require.Equal(t, "fm@spaceflow.local", user.Email)

		st := s.Snapshot()
		require.Equal(t, StatusAuthenticated, st.Status())
		require.Equal(t, &User{ID: "42", Role: RoleFacilitiesManager, Email: "fm@spaceflow.local"}, st.User)
	})

	t.Run("keeps backend email", func(t *testing.T) {
		backend := &fakeBackend{
			login: func(context.Context, Credentials) (*User, error) {
				return &User{ID: "42", Role: RoleAdmin, Email: "canonical@spaceflow.local"}, nil
			},
		}
		s := newTestStore(t, Options{Backend: backend})

		user, err := s.Login(context.Background(), Credentials{Email: "Canonical@SpaceFlow.local"})
		require.NoError(t, err)
		require.Equal(t, "canonical@spaceflow.local", user.Email)
	})

	t.Run("failure leaves state unchanged", func(t *testing.T) {
		errBadCreds := errors.New("invalid credentials")
		backend := &fakeBackend{
			login: func(context.Context, Credentials) (*User, error) { return nil, errBadCreds },
		}
		s := newTestStore(t, Options{Backend: backend})
		s.Bootstrap(context.Background())
		before := s.Snapshot()

		_, err := s.Login(context.Background(), Credentials{Email: "a@b.co", Password: "nope"})
		require.ErrorIs(t, err, errBadCreds)
		require.Equal(t, before, s.Snapshot())
	})
}

func TestLoginWaitsForBootstrap(t *testing.T) {
	release := make(chan struct{})
	backend := &fakeBackend{
		validate: func(ctx context.Context) (*User, error) {
			<-release
			return &User{ID: "stale", Role: RoleViewer}, nil
		},
	}
	s := newTestStore(t, Options{Backend: backend})
	require.NoError(t, s.Start())

	done := make(chan *User)
	go func() {
		u, err := s.Login(context.Background(), Credentials{Email: "new@spaceflow.local", Password: "pw"})
		if err != nil {
			t.Errorf("login: %v", err)
		}
		done <- u
	}()

	select {
	case <-done:
		t.Fatal("login completed before bootstrap resolved")
	case <-time.After(30 * time.Millisecond):
	}

	close(release)
	u := <-done
	require.Equal(t, "u-new@spaceflow.local", u.ID)
	require.Equal(t, "u-new@spaceflow.local", s.Snapshot().User.ID)
}

func TestOverlappingLoginsLastOneWins(t *testing.T) {
	firstStarted := make(chan struct{})
	releaseFirst := make(chan struct{})

	backend := &fakeBackend{
		login: func(ctx context.Context, creds Credentials) (*User, error) {
			if creds.Email == "first@spaceflow.local" {
				close(firstStarted)
				<-releaseFirst
			}
			return &User{ID: creds.Email, Role: RoleViewer}, nil
		},
	}
	s := newTestStore(t, Options{Backend: backend})
	s.Bootstrap(context.Background())

	firstErr := make(chan error, 1)
	go func() {
		_, err := s.Login(context.Background(), Credentials{Email: "first@spaceflow.local"})
		firstErr <- err
	}()
	<-firstStarted

	_, err := s.Login(context.Background(), Credentials{Email: "second@spaceflow.local"})
	require.NoError(t, err)

	close(releaseFirst)
	require.ErrorIs(t, <-firstErr, ErrSuperseded)
	require.Equal(t, "second@spaceflow.local", s.Snapshot().User.ID)
}

func TestLogout(t *testing.T) {
	t.Run("clears user even when backend fails", func(t *testing.T) {
		backend := &fakeBackend{
			validate: func(context.Context) (*User, error) { return &User{ID: "u1", Role: RoleAdmin}, nil },
			logout:   func(context.Context) error { return errors.New("503 service unavailable") },
		}
		s := newTestStore(t, Options{Backend: backend})
		s.Bootstrap(context.Background())
		require.True(t, s.Snapshot().IsAuthenticated())

		require.NoError(t, s.Logout(context.Background()))
		require.Equal(t, StatusUnauthenticated, s.Snapshot().Status())
		require.Equal(t, 1, backend.logouts)
	})

	t.Run("logged out is a no-op", func(t *testing.T) {
		backend := &fakeBackend{}
		s := newTestStore(t, Options{Backend: backend})
		s.Bootstrap(context.Background())
		before := s.Snapshot()

		require.NoError(t, s.Logout(context.Background()))
		require.NoError(t, s.Logout(context.Background()))
		require.Equal(t, before, s.Snapshot())
	})

	t.Run("supersedes in-flight login", func(t *testing.T) {
		started := make(chan struct{})
		release := make(chan struct{})
		backend := &fakeBackend{
			login: func(context.Context, Credentials) (*User, error) {
				close(started)
				<-release
				return &User{ID: "late", Role: RoleViewer}, nil
			},
		}
		s := newTestStore(t, Options{Backend: backend})
		s.Bootstrap(context.Background())

		errCh := make(chan error, 1)
		go func() {
			_, err := s.Login(context.Background(), Credentials{Email: "late@spaceflow.local"})
			errCh <- err
		}()
		<-started

		require.NoError(t, s.Logout(context.Background()))
		close(release)

		require.ErrorIs(t, <-errCh, ErrSuperseded)
		require.False(t, s.Snapshot().IsAuthenticated())
	})
}

func TestCloseDropsLateBootstrapResult(t *testing.T) {
	entered := make(chan struct{})
	backend := &fakeBackend{
		validate: func(ctx context.Context) (*User, error) {
			close(entered)
			<-ctx.Done()
			return &User{ID: "too-late", Role: RoleAdmin}, nil
		},
	}
	s, err := New(Options{Backend: backend, Logger: zerolog.Nop()})
	require.NoError(t, err)

	var mu sync.Mutex
	var seen []State
	unsubscribe := s.Subscribe(func(st State) {
		mu.Lock()
		seen = append(seen, st)
		mu.Unlock()
	})
	defer unsubscribe()

	require.NoError(t, s.Start())
	<-entered
	s.Close()

	st := s.Snapshot()
	require.True(t, st.Loading, "a closed store must not resolve")
	require.Nil(t, st.User)

	mu.Lock()
	require.Len(t, seen, 1, "only the initial state is delivered")
	mu.Unlock()

	require.ErrorIs(t, s.Wait(context.Background()), ErrClosed)

	_, err = s.Login(context.Background(), Credentials{Email: "a@b.co"})
	require.ErrorIs(t, err, ErrClosed)
	require.NoError(t, s.Logout(context.Background()))

	s.Close()
}

func TestSubscribeDeliversInVersionOrder(t *testing.T) {
	backend := &fakeBackend{
		validate: func(context.Context) (*User, error) { return &User{ID: "u1", Role: RoleAdmin}, nil },
	}
	s := newTestStore(t, Options{Backend: backend})

	var mu sync.Mutex
	var versions []uint64
	var statuses []Status
	unsubscribe := s.Subscribe(func(st State) {
		mu.Lock()
		defer mu.Unlock()
		versions = append(versions, st.Version)
		statuses = append(statuses, st.Status())
	})

	s.Bootstrap(context.Background())
	require.NoError(t, s.Logout(context.Background()))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = s.Login(context.Background(), Credentials{Email: "c@spaceflow.local"})
			_ = s.Logout(context.Background())
		}()
	}
	wg.Wait()

	unsubscribe()
	unsubscribe()

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []Status{StatusLoading, StatusAuthenticated, StatusUnauthenticated}, statuses[:3])
	for i := 1; i < len(versions); i++ {
		require.Greater(t, versions[i], versions[i-1], "versions must strictly increase")
	}
}

func TestWaitHonoursContext(t *testing.T) {
	backend := &fakeBackend{
		validate: func(ctx context.Context) (*User, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
	}
	s := newTestStore(t, Options{Backend: backend})
	require.NoError(t, s.Start())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, s.Wait(ctx), context.DeadlineExceeded)
}
