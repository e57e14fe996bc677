package server

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/spaceflow-dev/spaceflow/internal/assert"
	"github.com/spaceflow-dev/spaceflow/internal/guard"
	"github.com/spaceflow-dev/spaceflow/internal/session"
)

// pageCookieName identifies the browser a page session belongs to
const pageCookieName = "spaceflow_page"

// pageIDLength is 16 random bytes, hex encoded
const pageIDLength = 32

// ErrTooManyPages is returned by Resolve when the registry is full
var ErrTooManyPages = fmt.Errorf("%w: too many page sessions", guard.ErrUnavailable)

// StoreFactory builds the session store for a new page session
type StoreFactory func(pageID string) (*session.Store, error)

type page struct {
	store    *session.Store
	lastSeen time.Time
}

// PageRegistry owns one session store per browser. Tabs of the same browser
// share the page cookie and therefore the store.
type PageRegistry struct {
	factory      StoreFactory
	idle         time.Duration
	maxPages     int
	cookieSecure bool
	logger       zerolog.Logger
	now          func() time.Time

	mu     sync.Mutex
	pages  map[string]*page
	closed bool
}

// NewPageRegistry creates a registry holding at most maxPages live pages;
// zero means no limit
func NewPageRegistry(factory StoreFactory, idle time.Duration, maxPages int, cookieSecure bool, logger zerolog.Logger) *PageRegistry {
	return &PageRegistry{
		factory:      factory,
		idle:         idle,
		maxPages:     maxPages,
		cookieSecure: cookieSecure,
		logger:       logger,
		now:          time.Now,
		pages:        make(map[string]*page),
	}
}

// Lookup returns the store of the request's page session without creating
// one. Pages that only read the session use it so cookieless traffic costs
// nothing.
func (r *PageRegistry) Lookup(c *gin.Context) (*session.Store, bool) {
	id, err := c.Cookie(pageCookieName)
	if err != nil || id == "" {
		return nil, false
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.pages[id]
	if !ok {
		return nil, false
	}
	p.lastSeen = r.now()
	return p.store, true
}

// Resolve returns the store of the request's page session, creating a new
// page (and cookie) when the request carries none or an unknown one. A full
// registry first drops idle pages, then refuses with ErrTooManyPages.
func (r *PageRegistry) Resolve(c *gin.Context) (*session.Store, error) {
	if store, ok := r.Lookup(c); ok {
		return store, nil
	}

	if r.full() {
		if r.Sweep() == 0 || r.full() {
			return nil, ErrTooManyPages
		}
	}

	id, err := newPageID()
	if err != nil {
		return nil, err
	}

	store, err := r.factory(id)
	if err != nil {
		return nil, fmt.Errorf("failed to create session store: %w", err)
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		store.Close()
		return nil, session.ErrClosed
	}
	if r.fullLocked() {
		r.mu.Unlock()
		store.Close()
		return nil, ErrTooManyPages
	}
	r.pages[id] = &page{store: store, lastSeen: r.now()}
	r.mu.Unlock()

	if err := store.Start(); err != nil {
		r.drop(id)
		return nil, fmt.Errorf("failed to start session store: %w", err)
	}

	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(pageCookieName, id, 0, "/", "", r.cookieSecure, true)

	r.logger.Debug().Str("page_id", id).Msg("Opened page session")
	return store, nil
}

// Len is the number of live page sessions
func (r *PageRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pages)
}

func (r *PageRegistry) full() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.fullLocked()
}

func (r *PageRegistry) fullLocked() bool {
	return r.maxPages > 0 && len(r.pages) >= r.maxPages
}

// Sweep closes page sessions idle for longer than the idle timeout
func (r *PageRegistry) Sweep() int {
	cutoff := r.now().Add(-r.idle)

	r.mu.Lock()
	var stale []*session.Store
	for id, p := range r.pages {
		if p.lastSeen.Before(cutoff) {
			stale = append(stale, p.store)
			delete(r.pages, id)
		}
	}
	r.mu.Unlock()

	for _, store := range stale {
		store.Close()
	}
	return len(stale)
}

// Close closes every page session; later Resolve calls fail
func (r *PageRegistry) Close() {
	r.mu.Lock()
	r.closed = true
	pages := r.pages
	r.pages = make(map[string]*page)
	r.mu.Unlock()

	for _, p := range pages {
		p.store.Close()
	}
}

func (r *PageRegistry) drop(id string) {
	r.mu.Lock()
	p, ok := r.pages[id]
	delete(r.pages, id)
	r.mu.Unlock()
	if ok {
		p.store.Close()
	}
}

func newPageID() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate page id: %w", err)
	}
	id := hex.EncodeToString(b)
	assert.Length(id, pageIDLength)
	return id, nil
}
