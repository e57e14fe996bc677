// Package guard gates the dashboard routes on the session state.
package guard

import "github.com/spaceflow-dev/spaceflow/internal/session"

// Policy decides whether a resolved session may see guarded pages
type Policy interface {
	Allow(st session.State) bool
	Name() string
}

// AlwaysAllow admits every visitor. Used in demo mode.
type AlwaysAllow struct{}

func (AlwaysAllow) Allow(session.State) bool { return true }
func (AlwaysAllow) Name() string             { return "always-allow" }

// SessionBacked admits authenticated sessions only
type SessionBacked struct{}

func (SessionBacked) Allow(st session.State) bool { return st.IsAuthenticated() }
func (SessionBacked) Name() string                { return "session-backed" }

// ForMode picks the policy once at startup
func ForMode(demo bool) Policy {
	if demo {
		return AlwaysAllow{}
	}
	return SessionBacked{}
}

// Decision is the outcome of evaluating a guarded request
type Decision int

const (
	// Pending: bootstrap is outstanding; neither redirect nor render
	Pending Decision = iota
	Render
	Redirect
)

func (d Decision) String() string {
	switch d {
	case Pending:
		return "pending"
	case Render:
		return "render"
	case Redirect:
		return "redirect"
	default:
		return "unknown"
	}
}

// Decide never redirects while the session is still loading
func Decide(p Policy, st session.State) Decision {
	if st.Loading {
		return Pending
	}
	if p.Allow(st) {
		return Render
	}
	return Redirect
}
