package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/spaceflow-dev/spaceflow/internal/guard"
	"github.com/spaceflow-dev/spaceflow/internal/session"
)

func demoFactory(string) (*session.Store, error) {
	return session.New(session.Options{Demo: true})
}

func resolveWith(t *testing.T, r *PageRegistry, cookie *http.Cookie) (*session.Store, *httptest.ResponseRecorder) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/app/dashboard", nil)
	if cookie != nil {
		c.Request.AddCookie(cookie)
	}

	store, err := r.Resolve(c)
	require.NoError(t, err)
	return store, w
}

func pageCookie(t *testing.T, w *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range w.Result().Cookies() {
		if c.Name == pageCookieName {
			return c
		}
	}
	t.Fatal("no page cookie set")
	return nil
}

func TestPageRegistryReusesStoreForSameCookie(t *testing.T) {
	r := NewPageRegistry(demoFactory, time.Minute, 0, false, zerolog.Nop())
	defer r.Close()

	first, w := resolveWith(t, r, nil)
	cookie := pageCookie(t, w)
	require.True(t, cookie.HttpOnly)
	require.Len(t, cookie.Value, 32)

	again, w2 := resolveWith(t, r, cookie)
	require.Same(t, first, again)
	require.Empty(t, w2.Result().Cookies(), "known pages keep their cookie")

	other, _ := resolveWith(t, r, &http.Cookie{Name: pageCookieName, Value: "unknown"})
	require.NotSame(t, first, other)
	require.Equal(t, 2, r.Len())
}

func TestPageRegistrySweepClosesIdlePages(t *testing.T) {
	now := time.Date(2025, 1, 13, 9, 0, 0, 0, time.UTC)
	r := NewPageRegistry(demoFactory, 10*time.Minute, 0, false, zerolog.Nop())
	r.now = func() time.Time { return now }
	defer r.Close()

	idle, _ := resolveWith(t, r, nil)
	now = now.Add(8 * time.Minute)
	_, w := resolveWith(t, r, nil)
	active := pageCookie(t, w)

	now = now.Add(5 * time.Minute)
	require.Equal(t, 1, r.Sweep())
	require.Equal(t, 1, r.Len())

	// A closed store stays closed
	_, err := idle.Login(context.Background(), session.Credentials{Email: "a@b.co"})
	require.ErrorIs(t, err, session.ErrClosed)

	store, _ := resolveWith(t, r, active)
	require.NotNil(t, store)
	require.Equal(t, 1, r.Len())
}

func TestPageRegistryClose(t *testing.T) {
	r := NewPageRegistry(demoFactory, time.Minute, 0, false, zerolog.Nop())
	store, _ := resolveWith(t, r, nil)
	r.Close()

	require.Equal(t, 0, r.Len())
	<-store.Ready()

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	_, err := r.Resolve(c)
	require.ErrorIs(t, err, session.ErrClosed)
}

func newPageContext(cookie *http.Cookie) (*gin.Context, *httptest.ResponseRecorder) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	if cookie != nil {
		c.Request.AddCookie(cookie)
	}
	return c, w
}

func TestPageRegistryLookupNeverCreates(t *testing.T) {
	r := NewPageRegistry(demoFactory, time.Minute, 0, false, zerolog.Nop())
	defer r.Close()

	c, w := newPageContext(nil)
	_, ok := r.Lookup(c)
	require.False(t, ok)
	require.Empty(t, w.Result().Cookies())

	c, _ = newPageContext(&http.Cookie{Name: pageCookieName, Value: "unknown"})
	_, ok = r.Lookup(c)
	require.False(t, ok)
	require.Equal(t, 0, r.Len())

	store, w := resolveWith(t, r, nil)
	c, _ = newPageContext(pageCookie(t, w))
	found, ok := r.Lookup(c)
	require.True(t, ok)
	require.Same(t, store, found)
}

func TestPageRegistryCap(t *testing.T) {
	now := time.Date(2025, 1, 13, 9, 0, 0, 0, time.UTC)
	r := NewPageRegistry(demoFactory, 10*time.Minute, 2, false, zerolog.Nop())
	r.now = func() time.Time { return now }
	defer r.Close()

	_, w := resolveWith(t, r, nil)
	first := pageCookie(t, w)
	resolveWith(t, r, nil)

	c, w := newPageContext(nil)
	_, err := r.Resolve(c)
	require.ErrorIs(t, err, ErrTooManyPages)
	require.ErrorIs(t, err, guard.ErrUnavailable)
	require.Empty(t, w.Result().Cookies())
	require.Equal(t, 2, r.Len())

	// Known pages are still served when full
	c, _ = newPageContext(first)
	_, err = r.Resolve(c)
	require.NoError(t, err)

	// Idle pages make room for new ones
	now = now.Add(11 * time.Minute)
	resolveWith(t, r, nil)
	require.Equal(t, 1, r.Len())
}
