package server

import (
	"embed"
	"fmt"
	"html/template"

	"github.com/spaceflow-dev/spaceflow/internal/analytics"
	"github.com/spaceflow-dev/spaceflow/internal/recommendations"
	"github.com/spaceflow-dev/spaceflow/internal/session"
)

//go:embed templates/*.html
var templateFS embed.FS

type navItem struct {
	Path  string
	Label string
}

// dashboardNav is the sidebar of the guarded pages
var dashboardNav = []navItem{
	{Path: "/app/dashboard", Label: "Dashboard"},
	{Path: "/app/utilization", Label: "Utilization"},
	{Path: "/app/booking-usage", Label: "Booking vs usage"},
	{Path: "/app/recommendations", Label: "AI recommendations"},
	{Path: "/app/patterns", Label: "Patterns"},
	{Path: "/app/segments", Label: "Segments"},
	{Path: "/app/snapshots", Label: "Snapshots"},
}

// viewData is passed to every template
type viewData struct {
	Title  string
	User   *session.User
	Demo   bool
	Nav    []navItem
	Active string

	// login
	Email string
	Next  string
	Error string

	// placeholder pages
	Message string

	Utilization     *analytics.UtilizationResponse
	BookingUsage    *analytics.BookingUsageResponse
	Recommendations *recommendations.List
	Explanation     *recommendations.Explanation
}

func loadTemplates() (*template.Template, error) {
	funcs := template.FuncMap{
		"percent": func(ratio float64) string {
			return fmt.Sprintf("%.0f%%", ratio*100)
		},
		"suggestedAction": recommendations.SuggestedAction,
	}

	t, err := template.New("").Funcs(funcs).ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("failed to parse templates: %w", err)
	}
	return t, nil
}
