package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	"github.com/spaceflow-dev/spaceflow/internal/analytics"
	"github.com/spaceflow-dev/spaceflow/internal/recommendations"
)

const (
	patternsMessage  = "Long-term occupancy and behavior patterns will appear here."
	segmentsMessage  = "Workplace user and space segments will appear here."
	snapshotsMessage = "Point-in-time workspace snapshots will appear here."
)

// pageDataTimeout bounds the backend calls made while rendering one page
const pageDataTimeout = 10 * time.Second

func (s *Server) view(c *gin.Context, title, active string) viewData {
	return viewData{
		Title:  title,
		User:   currentUser(c),
		Demo:   s.config.Auth.DemoMode,
		Nav:    dashboardNav,
		Active: active,
	}
}

// workspaceQuery is the analytics window shown on the dashboard pages
func workspaceQuery(now time.Time) analytics.Query {
	scopeType, scopeID, _ := strings.Cut(analytics.DefaultScope, ":")
	return analytics.LastWeek(scopeType, scopeID, now)
}

// loadUtilization falls back to the demo dataset when the analytics service
// is unavailable
func (s *Server) loadUtilization(ctx context.Context, q analytics.Query) *analytics.UtilizationResponse {
	resp, err := s.analytics.Utilization(ctx, q)
	if err != nil {
		if !errors.Is(err, analytics.ErrNotConfigured) {
			s.logger.Warn().Err(err).Msg("Utilization request failed, showing demo data")
		}
		return analytics.DemoUtilization(q)
	}
	return resp
}

func (s *Server) loadBookingUsage(ctx context.Context, q analytics.Query) *analytics.BookingUsageResponse {
	resp, err := s.analytics.BookingUsage(ctx, q)
	if err != nil {
		if !errors.Is(err, analytics.ErrNotConfigured) {
			s.logger.Warn().Err(err).Msg("Booking usage request failed, showing demo data")
		}
		return analytics.DemoBookingUsage(q)
	}
	return resp
}

func (s *Server) dashboardPage(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), pageDataTimeout)
	defer cancel()

	q := workspaceQuery(time.Now())
	data := s.view(c, "Dashboard", "/app/dashboard")

	// Both loaders fall back to demo data, so the group never fails
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		data.Utilization = s.loadUtilization(gctx, q)
		return nil
	})
	g.Go(func() error {
		data.BookingUsage = s.loadBookingUsage(gctx, q)
		return nil
	})
	_ = g.Wait()

	c.HTML(http.StatusOK, "dashboard.html", data)
}

func (s *Server) utilizationPage(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), pageDataTimeout)
	defer cancel()

	data := s.view(c, "Utilization", "/app/utilization")
	data.Utilization = s.loadUtilization(ctx, workspaceQuery(time.Now()))
	c.HTML(http.StatusOK, "dashboard.html", data)
}

func (s *Server) bookingUsagePage(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), pageDataTimeout)
	defer cancel()

	data := s.view(c, "Booking vs usage", "/app/booking-usage")
	data.BookingUsage = s.loadBookingUsage(ctx, workspaceQuery(time.Now()))
	c.HTML(http.StatusOK, "dashboard.html", data)
}

func (s *Server) recommendationsPage(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), pageDataTimeout)
	defer cancel()

	data := s.view(c, "AI recommendations", "/app/recommendations")

	list, err := s.aiEngine.Recommendations(ctx, analytics.RecommendationsQuery{
		Scope: c.DefaultQuery("scope", analytics.DefaultScope),
		Focus: c.Query("focus"),
	})
	if err != nil {
		s.logger.Warn().Err(err).
			Bool("malformed", errors.Is(err, recommendations.ErrMalformedPayload)).
			Msg("Failed to load recommendations")
		data.Error = recommendations.LoadErrorMessage
	} else {
		data.Recommendations = list
	}

	c.HTML(http.StatusOK, "recommendations.html", data)
}

func (s *Server) explanationPage(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), pageDataTimeout)
	defer cancel()

	data := s.view(c, "Why this recommendation", "/app/recommendations")

	exp, err := s.aiEngine.Explanation(ctx, c.Param("id"), c.DefaultQuery("scope", analytics.DefaultScope))
	if err != nil {
		s.logger.Warn().Err(err).Str("recommendation_id", c.Param("id")).Msg("Failed to load explanation")
		data.Error = recommendations.ExplanationErrorMessage
	} else {
		data.Explanation = exp
	}

	c.HTML(http.StatusOK, "explanation.html", data)
}

func (s *Server) placeholderPage(title, path, message string) gin.HandlerFunc {
	return func(c *gin.Context) {
		data := s.view(c, title, path)
		data.Message = message
		c.HTML(http.StatusOK, "placeholder.html", data)
	}
}
