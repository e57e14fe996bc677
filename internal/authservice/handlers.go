package authservice

import (
	"errors"
	"math"
	"net"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/spaceflow-dev/spaceflow/internal/auth"
	"github.com/spaceflow-dev/spaceflow/internal/models"
)

// CookieConfig controls the session cookie
type CookieConfig struct {
	Name   string
	Secure bool
}

// LoginRequest represents a login request
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// UserDetail is the user shape returned to clients
type UserDetail struct {
	ID    string `json:"id"`
	Role  string `json:"role"`
	Email string `json:"email"`
}

// UserResponse wraps the user. User is null when there is no session.
type UserResponse struct {
	User *UserDetail `json:"user"`
}

// Handler serves the auth endpoints
type Handler struct {
	service       *Service
	cookie        CookieConfig
	limiter       *LoginLimiter
	trustLoopback bool
	logger        zerolog.Logger
}

// NewHandler creates the auth HTTP handler
func NewHandler(service *Service, cookie CookieConfig, limit RateLimitConfig, logger zerolog.Logger) *Handler {
	return &Handler{
		service: service,
		cookie:  cookie,
		limiter: NewLoginLimiter(limit),
		logger:  logger,
	}
}

// TrustLoopback skips the login limit for callers on this host. Use it when
// the endpoints are embedded in the dashboard server, which throttles logins
// itself on the browser's address before relaying them over loopback.
func (h *Handler) TrustLoopback() *Handler {
	h.trustLoopback = true
	return h
}

// Register mounts the endpoints on rg
func (h *Handler) Register(rg *gin.RouterGroup) {
	rg.POST("/login", h.login)
	rg.GET("/validate", h.validate)
	rg.POST("/logout", h.logout)
}

func toUserDetail(u *models.User) *UserDetail {
	return &UserDetail{ID: u.ID, Role: u.Role, Email: u.Email}
}

func respondWithError(c *gin.Context, log zerolog.Logger, statusCode int, err error, message string) {
	log.Warn().Err(err).Msg(message)
	c.JSON(statusCode, gin.H{"error": message})
	c.Abort()
}

// @Summary Sign in
// @Description Checks credentials and sets the session cookie
// @Tags auth
// @Accept json
// @Produce json
// @Param request body LoginRequest true "Login request"
// @Success 200 {object} UserResponse
// @Failure 400 {object} map[string]interface{}
// @Failure 401 {object} map[string]interface{}
// @Failure 429 {object} map[string]interface{}
// @Router /auth/login [post]
func (h *Handler) login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, h.logger, http.StatusBadRequest, err, "Invalid login request")
		return
	}

	if !(h.trustLoopback && loopbackCaller(c)) {
		if ok, wait := h.limiter.Allow(LoginKey(c.ClientIP(), req.Email)); !ok {
			c.Header("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
			respondWithError(c, h.logger, http.StatusTooManyRequests, nil, "Too many login attempts, try again later")
			return
		}
	}

	user, token, err := h.service.Authenticate(c.Request.Context(), req.Email, req.Password, ClientMeta{
		IP:        c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	})
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			respondWithError(c, h.logger, http.StatusUnauthorized, err, "Invalid email or password")
			return
		}
		h.logger.Error().Err(err).Msg("Login failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	h.setCookie(c, token, int(h.service.TTL().Seconds()))
	c.JSON(http.StatusOK, UserResponse{User: toUserDetail(user)})
}

// @Summary Validate session
// @Description Returns the user behind the session cookie, or null
// @Tags auth
// @Produce json
// @Success 200 {object} UserResponse
// @Router /auth/validate [get]
func (h *Handler) validate(c *gin.Context) {
	token, err := c.Cookie(h.cookie.Name)
	if err != nil || token == "" {
		c.JSON(http.StatusOK, UserResponse{})
		return
	}

	user, data, err := h.service.Validate(c.Request.Context(), token)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidToken) || errors.Is(err, ErrSessionNotFound) || errors.Is(err, ErrSessionExpired) {
			h.logger.Debug().Err(err).Msg("Rejected session cookie")
			h.setCookie(c, "", -1)
			c.JSON(http.StatusOK, UserResponse{})
			return
		}
		h.logger.Error().Err(err).Msg("Session validation failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	h.logger.Debug().Str("session_id", data.SessionID).Str("user_id", data.UserID).Msg("Session validated")
	c.JSON(http.StatusOK, UserResponse{User: toUserDetail(user)})
}

// @Summary Sign out
// @Description Revokes the session and clears the cookie
// @Tags auth
// @Success 204
// @Router /auth/logout [post]
func (h *Handler) logout(c *gin.Context) {
	if token, err := c.Cookie(h.cookie.Name); err == nil && token != "" {
		if err := h.service.Revoke(c.Request.Context(), token); err != nil {
			h.logger.Error().Err(err).Msg("Failed to revoke session")
		}
	}

	h.setCookie(c, "", -1)
	c.Status(http.StatusNoContent)
}

// setCookie drops the Secure flag for plain HTTP callers on this host: the
// dashboard server's cookie jar would otherwise never send the cookie back and
// logout could not revoke the session.
func (h *Handler) setCookie(c *gin.Context, value string, maxAge int) {
	secure := h.cookie.Secure && !loopbackCaller(c)
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(h.cookie.Name, value, maxAge, "/", "", secure, true)
}

// loopbackCaller reports a plain HTTP request made from this host. Behind a
// trusted proxy ClientIP is the forwarded browser address, so proxied
// browsers never match.
func loopbackCaller(c *gin.Context) bool {
	ip := net.ParseIP(c.ClientIP())
	return ip != nil && ip.IsLoopback() && c.Request.TLS == nil
}
