package session

// Status is the observable lifecycle of a session store
type Status int

const (
	StatusLoading Status = iota
	StatusUnauthenticated
	StatusAuthenticated
)

func (s Status) String() string {
	switch s {
	case StatusLoading:
		return "loading"
	case StatusUnauthenticated:
		return "unauthenticated"
	case StatusAuthenticated:
		return "authenticated"
	default:
		return "unknown"
	}
}

// State is an immutable snapshot of a store. Version increases with every
// published change.
type State struct {
	User    *User
	Loading bool
	Version uint64
}

// IsAuthenticated is derived from the user, never stored
func (s State) IsAuthenticated() bool {
	return s.User != nil
}

func (s State) Status() Status {
	switch {
	case s.Loading:
		return StatusLoading
	case s.User != nil:
		return StatusAuthenticated
	default:
		return StatusUnauthenticated
	}
}

// Credentials submitted on login
type Credentials struct {
	Email    string
	Password string
}
