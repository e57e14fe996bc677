package auth

// SessionData is the authenticated session behind a request
type SessionData struct {
	SessionID string `json:"session_id"`
	UserID    string `json:"user_id"`
	Email     string `json:"email"`
	Role      string `json:"role"`
}
