package guard

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/spaceflow-dev/spaceflow/internal/session"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubBackend struct {
	validate func(ctx context.Context) (*session.User, error)
}

func (b stubBackend) Validate(ctx context.Context) (*session.User, error) { return b.validate(ctx) }
func (b stubBackend) Login(context.Context, session.Credentials) (*session.User, error) {
	return nil, errors.New("not used")
}
func (b stubBackend) Logout(context.Context) error { return nil }

func TestDecide(t *testing.T) {
	admin := &session.User{ID: "1", Role: session.RoleAdmin}

	loading := session.State{Loading: true}
	loadingWithUser := session.State{Loading: true, User: admin}
	anonymous := session.State{}
	signedIn := session.State{User: admin}

	tests := []struct {
		name   string
		policy Policy
		state  session.State
		want   Decision
	}{
		{"demo loading", AlwaysAllow{}, loading, Pending},
		{"demo loading with user", AlwaysAllow{}, loadingWithUser, Pending},
		{"demo anonymous", AlwaysAllow{}, anonymous, Render},
		{"demo signed in", AlwaysAllow{}, signedIn, Render},
		{"session loading", SessionBacked{}, loading, Pending},
		{"session anonymous", SessionBacked{}, anonymous, Redirect},
		{"session signed in", SessionBacked{}, signedIn, Render},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Decide(tt.policy, tt.state); got != tt.want {
				t.Errorf("Decide() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestForMode(t *testing.T) {
	require.IsType(t, AlwaysAllow{}, ForMode(true))
	require.IsType(t, SessionBacked{}, ForMode(false))
}

func newRouter(t *testing.T, g *Guard) *gin.Engine {
	t.Helper()
	r := gin.New()
	app := r.Group("/app", g.Middleware())
	app.GET("/dashboard", func(c *gin.Context) {
		st, ok := StateFrom(c)
		require.True(t, ok)
		_, ok = StoreFrom(c)
		require.True(t, ok)
		c.String(http.StatusOK, "dashboard for %s", st.User.DisplayName())
	})
	return r
}

func newStore(t *testing.T, opts session.Options) *session.Store {
	t.Helper()
	opts.Logger = zerolog.Nop()
	s, err := session.New(opts)
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

func fixed(s *session.Store) StoreResolver {
	return func(*gin.Context) (*session.Store, error) { return s, nil }
}

func TestMiddlewareRedirectsAnonymous(t *testing.T) {
	store := newStore(t, session.Options{Backend: stubBackend{validate: func(context.Context) (*session.User, error) {
		return nil, nil
	}}})
	store.Bootstrap(context.Background())

	r := newRouter(t, New(SessionBacked{}, fixed(store), Options{Logger: zerolog.Nop()}))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/app/dashboard?range=7d", nil))

	require.Equal(t, http.StatusFound, w.Code)
	require.Equal(t, "/login?next=%2Fapp%2Fdashboard%3Frange%3D7d", w.Header().Get("Location"))
}

func TestMiddlewareRendersAuthenticated(t *testing.T) {
	store := newStore(t, session.Options{Backend: stubBackend{validate: func(context.Context) (*session.User, error) {
		return &session.User{ID: "1", Role: session.RoleAdmin, Email: "admin@spaceflow.local"}, nil
	}}})
	store.Bootstrap(context.Background())

	r := newRouter(t, New(SessionBacked{}, fixed(store), Options{Logger: zerolog.Nop()}))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/app/dashboard", nil))

	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "dashboard for admin@spaceflow.local", w.Body.String())
}

func TestMiddlewareDemoRendersAfterFailedValidation(t *testing.T) {
	// A failed validation leaves the store anonymous; demo policy still renders
	store := newStore(t, session.Options{Backend: stubBackend{validate: func(context.Context) (*session.User, error) {
		return nil, errors.New("connection refused")
	}}})
	store.Bootstrap(context.Background())

	r := gin.New()
	r.GET("/app/dashboard", New(AlwaysAllow{}, fixed(store), Options{Logger: zerolog.Nop()}).Middleware(), func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/app/dashboard", nil))
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "ok", w.Body.String())
}

func TestMiddlewarePendingShowsPlaceholder(t *testing.T) {
	store := newStore(t, session.Options{Backend: stubBackend{validate: func(ctx context.Context) (*session.User, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}}})
	require.NoError(t, store.Start())

	r := newRouter(t, New(SessionBacked{}, fixed(store), Options{OptimisticWait: 10 * time.Millisecond, Logger: zerolog.Nop()}))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/app/dashboard", nil))

	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "1", w.Header().Get("Refresh"))
	require.Empty(t, w.Header().Get("Location"), "must not redirect while loading")
	require.Contains(t, w.Body.String(), "progressbar")
	require.NotContains(t, w.Body.String(), "dashboard for")
}

func TestMiddlewareOptimisticWait(t *testing.T) {
	release := make(chan struct{})
	store := newStore(t, session.Options{Backend: stubBackend{validate: func(context.Context) (*session.User, error) {
		<-release
		return &session.User{ID: "1", Role: session.RoleViewer, Email: "v@spaceflow.local"}, nil
	}}})
	require.NoError(t, store.Start())

	r := newRouter(t, New(SessionBacked{}, fixed(store), Options{OptimisticWait: 2 * time.Second, Logger: zerolog.Nop()}))

	go func() {
		time.Sleep(20 * time.Millisecond)
		close(release)
	}()

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/app/dashboard", nil))

	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "dashboard for v@spaceflow.local", w.Body.String())
}

func TestMiddlewareResolverError(t *testing.T) {
	g := New(SessionBacked{}, func(*gin.Context) (*session.Store, error) {
		return nil, errors.New("registry closed")
	}, Options{Logger: zerolog.Nop()})

	r := newRouter(t, g)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/app/dashboard", nil))
	require.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestMiddlewareResolverUnavailable(t *testing.T) {
	g := New(SessionBacked{}, func(*gin.Context) (*session.Store, error) {
		return nil, fmt.Errorf("%w: registry full", ErrUnavailable)
	}, Options{Logger: zerolog.Nop()})

	r := newRouter(t, g)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/app/dashboard", nil))
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	require.Equal(t, "60", w.Header().Get("Retry-After"))
}
