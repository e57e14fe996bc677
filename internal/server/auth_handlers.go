package server

import (
	"errors"
	"math"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/spaceflow-dev/spaceflow/internal/authclient"
	"github.com/spaceflow-dev/spaceflow/internal/authservice"
	"github.com/spaceflow-dev/spaceflow/internal/guard"
	"github.com/spaceflow-dev/spaceflow/internal/session"
)

// Sign-in messages shown inline on the login page
const (
	LoginFailedMessage    = "Unable to sign in. Please check your credentials and try again."
	LoginThrottledMessage = "Too many sign-in attempts. Please wait a minute and try again."
)

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// LoginForm is the sign-in form body
type LoginForm struct {
	Email    string `form:"email"`
	Password string `form:"password"`
	Next     string `form:"next"`
}

// SessionResponse describes the page session
type SessionResponse struct {
	Status          string        `json:"status"`
	Loading         bool          `json:"loading"`
	IsAuthenticated bool          `json:"isAuthenticated"`
	User            *session.User `json:"user"`
	Demo            bool          `json:"demo"`
	IsAdmin         bool          `json:"isAdmin"`
	IsFacilities    bool          `json:"isFacilitiesManager"`
	IsViewer        bool          `json:"isViewer"`
}

// peekState returns the state of the request's page session, waiting briefly
// for an outstanding bootstrap. A request without a page is signed out, or
// the demo user in demo mode; no page is created for it.
func (s *Server) peekState(c *gin.Context) session.State {
	store, ok := s.pages.Lookup(c)
	if !ok {
		if s.config.Auth.DemoMode {
			return session.State{User: session.DemoUser()}
		}
		return session.State{}
	}

	st := store.Snapshot()
	if st.Loading && s.config.HTTP.OptimisticWait > 0 {
		timer := time.NewTimer(s.config.HTTP.OptimisticWait)
		defer timer.Stop()
		select {
		case <-store.Ready():
		case <-timer.C:
		case <-c.Request.Context().Done():
		}
		st = store.Snapshot()
	}
	return st
}

func (s *Server) homePage(c *gin.Context) {
	c.HTML(http.StatusOK, "home.html", viewData{
		Title: "SpaceFlow",
		User:  s.peekState(c).User,
		Demo:  s.config.Auth.DemoMode,
	})
}

func (s *Server) loginPage(c *gin.Context) {
	next := safeNext(c.Query("next"))
	if s.peekState(c).IsAuthenticated() {
		c.Redirect(http.StatusFound, next)
		return
	}

	c.HTML(http.StatusOK, "login.html", viewData{
		Title: "Sign in",
		Demo:  s.config.Auth.DemoMode,
		Next:  next,
	})
}

func (s *Server) submitLogin(c *gin.Context) {
	var form LoginForm
	if err := c.ShouldBind(&form); err != nil {
		s.renderLoginError(c, http.StatusBadRequest, form)
		return
	}
	form.Email = strings.TrimSpace(form.Email)

	if !emailPattern.MatchString(form.Email) || strings.TrimSpace(form.Password) == "" {
		s.renderLoginError(c, http.StatusBadRequest, form)
		return
	}

	key := authservice.LoginKey(c.ClientIP(), form.Email)
	if ok, wait := s.loginLimiter.Allow(key); !ok {
		s.logger.Warn().Str("client_ip", c.ClientIP()).Str("email", form.Email).Msg("Sign-in throttled")
		s.renderRateLimited(c, form, wait)
		return
	}

	store, err := s.pages.Resolve(c)
	if errors.Is(err, guard.ErrUnavailable) {
		c.Header("Retry-After", "60")
		c.String(http.StatusServiceUnavailable, "Server busy, try again later")
		return
	}
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to resolve page session")
		c.String(http.StatusInternalServerError, "Internal server error")
		return
	}

	_, err = store.Login(c.Request.Context(), session.Credentials{Email: form.Email, Password: form.Password})
	if err != nil {
		// A newer mutation won; follow whatever it left behind
		if errors.Is(err, session.ErrSuperseded) && store.Snapshot().IsAuthenticated() {
			c.Redirect(http.StatusSeeOther, safeNext(form.Next))
			return
		}
		if errors.Is(err, authclient.ErrRateLimited) {
			s.logger.Warn().Err(err).Str("email", form.Email).Msg("Sign-in throttled by the auth service")
			s.renderRateLimited(c, form, time.Minute)
			return
		}
		s.logger.Warn().Err(err).Str("email", form.Email).Msg("Sign-in failed")
		s.renderLoginError(c, http.StatusUnauthorized, form)
		return
	}

	c.Redirect(http.StatusSeeOther, safeNext(form.Next))
}

func (s *Server) renderLoginError(c *gin.Context, status int, form LoginForm) {
	s.renderLoginMessage(c, status, form, LoginFailedMessage)
}

func (s *Server) renderRateLimited(c *gin.Context, form LoginForm, wait time.Duration) {
	c.Header("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
	s.renderLoginMessage(c, http.StatusTooManyRequests, form, LoginThrottledMessage)
}

func (s *Server) renderLoginMessage(c *gin.Context, status int, form LoginForm, message string) {
	c.HTML(status, "login.html", viewData{
		Title: "Sign in",
		Demo:  s.config.Auth.DemoMode,
		Email: form.Email,
		Next:  safeNext(form.Next),
		Error: message,
	})
}

func (s *Server) submitLogout(c *gin.Context) {
	// Logout never fails from the visitor's point of view
	if store, ok := s.pages.Lookup(c); ok {
		_ = store.Logout(c.Request.Context())
	}
	c.Redirect(http.StatusSeeOther, "/login")
}

// @Summary Current page session
// @Description Returns the session state of the calling browser
// @Tags auth
// @Produce json
// @Success 200 {object} SessionResponse
// @Router /api/session [get]
func (s *Server) getSession(c *gin.Context) {
	st := s.peekState(c)

	c.Header("Cache-Control", "no-store")
	c.JSON(http.StatusOK, SessionResponse{
		Status:          st.Status().String(),
		Loading:         st.Loading,
		IsAuthenticated: st.IsAuthenticated(),
		User:            st.User,
		Demo:            s.config.Auth.DemoMode,
		IsAdmin:         st.User.IsAdmin(),
		IsFacilities:    st.User.IsFacilitiesManager(),
		IsViewer:        st.User.IsViewer(),
	})
}

// safeNext keeps post-login redirects on this site
func safeNext(next string) string {
	const fallback = "/app/dashboard"
	if next == "" || !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") || strings.Contains(next, "\\") {
		return fallback
	}
	u, err := url.Parse(next)
	if err != nil || u.Scheme != "" || u.Host != "" {
		return fallback
	}
	if u.Path == "/login" {
		return fallback
	}
	return next
}
