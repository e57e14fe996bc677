package guard

import (
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/spaceflow-dev/spaceflow/internal/session"
)

const (
	stateKey = "session_state"
	storeKey = "session_store"
)

// ErrUnavailable marks resolver errors that are temporary; the guard answers
// them with 503 instead of 500
var ErrUnavailable = errors.New("session temporarily unavailable")

// StoreResolver finds the session store that owns a request
type StoreResolver func(c *gin.Context) (*session.Store, error)

// Options configures a Guard
type Options struct {
	// LoginPath receives unauthenticated visitors
	LoginPath string

	// OptimisticWait is how long a request waits for an outstanding bootstrap
	// before the placeholder page is served
	OptimisticWait time.Duration

	Logger zerolog.Logger
}

// Guard is the route guard for the dashboard pages
type Guard struct {
	policy  Policy
	resolve StoreResolver
	opts    Options
}

func New(policy Policy, resolve StoreResolver, opts Options) *Guard {
	if opts.LoginPath == "" {
		opts.LoginPath = "/login"
	}
	return &Guard{policy: policy, resolve: resolve, opts: opts}
}

func (g *Guard) Policy() Policy {
	return g.policy
}

// Middleware applies the policy to every request in the group
func (g *Guard) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		store, err := g.resolve(c)
		if errors.Is(err, ErrUnavailable) {
			g.opts.Logger.Warn().Err(err).Str("path", c.Request.URL.Path).Msg("Page session refused")
			c.Header("Retry-After", "60")
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "Server busy, try again later"})
			return
		}
		if err != nil {
			g.opts.Logger.Error().Err(err).Str("path", c.Request.URL.Path).Msg("Failed to resolve page session")
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to load session"})
			return
		}

		st := store.Snapshot()
		if st.Loading && g.opts.OptimisticWait > 0 {
			st = g.waitForBootstrap(c, store)
		}

		decision := Decide(g.policy, st)
		g.opts.Logger.Debug().
			Str("path", c.Request.URL.Path).
			Str("policy", g.policy.Name()).
			Str("decision", decision.String()).
			Msg("Route guard decision")

		switch decision {
		case Pending:
			c.Header("Cache-Control", "no-store")
			c.Header("Refresh", "1")
			c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(placeholderPage))
			c.Abort()

		case Redirect:
			target := g.opts.LoginPath + "?next=" + url.QueryEscape(c.Request.URL.RequestURI())
			c.Header("Cache-Control", "no-store")
			c.Redirect(http.StatusFound, target)
			c.Abort()

		default:
			c.Set(stateKey, st)
			c.Set(storeKey, store)
			c.Next()
		}
	}
}

func (g *Guard) waitForBootstrap(c *gin.Context, store *session.Store) session.State {
	timer := time.NewTimer(g.opts.OptimisticWait)
	defer timer.Stop()

	select {
	case <-store.Ready():
	case <-timer.C:
	case <-c.Request.Context().Done():
	}
	return store.Snapshot()
}

// StateFrom returns the session state the guard admitted the request with
func StateFrom(c *gin.Context) (session.State, bool) {
	v, ok := c.Get(stateKey)
	if !ok {
		return session.State{}, false
	}
	st, ok := v.(session.State)
	return st, ok
}

// StoreFrom returns the store the guard resolved for the request
func StoreFrom(c *gin.Context) (*session.Store, bool) {
	v, ok := c.Get(storeKey)
	if !ok {
		return nil, false
	}
	s, ok := v.(*session.Store)
	return s, ok
}

const placeholderPage = `<!doctype html>
<html lang="en">
<head><meta charset="utf-8"><title>SpaceFlow</title></head>
<body>
<div role="progressbar" aria-busy="true" style="display:flex;align-items:center;justify-content:center;min-height:100vh">Loading&hellip;</div>
</body>
</html>
`
