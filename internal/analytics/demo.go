package analytics

const demoNotes = "Demo data shown while the analytics service is unavailable."

// DemoUtilization is the static dataset shown when the analytics service
// cannot be reached
func DemoUtilization(q Query) *UtilizationResponse {
	group := q.ScopeType
	if group == "" {
		group = "workspace"
	}
	return &UtilizationResponse{
		Scope:       Scope{Type: q.ScopeType, ID: q.ScopeID},
		TimeRange:   queryRange(q),
		Granularity: granularityOrDefault(q.Granularity),
		Notes:       demoNotes,
		Points: []UtilizationPoint{
			{Timestamp: "2025-01-13T09:00:00Z", GroupKey: group, UtilizationPercent: 0.42, OccupiedCount: 42, Capacity: 100, SampleSize: 84},
			{Timestamp: "2025-01-13T13:00:00Z", GroupKey: group, UtilizationPercent: 0.67, OccupiedCount: 67, Capacity: 100, SampleSize: 120},
			{Timestamp: "2025-01-13T17:00:00Z", GroupKey: group, UtilizationPercent: 0.51, OccupiedCount: 51, Capacity: 100, SampleSize: 95, Partial: true},
		},
	}
}

// DemoBookingUsage is the static booking-vs-usage dataset
func DemoBookingUsage(q Query) *BookingUsageResponse {
	return &BookingUsageResponse{
		Scope:       Scope{Type: q.ScopeType, ID: q.ScopeID},
		TimeRange:   queryRange(q),
		Granularity: granularityOrDefault(q.Granularity),
		Notes:       demoNotes,
		Buckets: []BookingUsageBucket{
			{PeriodStart: "2025-01-13T09:00:00Z", PeriodEnd: "2025-01-13T10:00:00Z", BookedCount: 40, UsedCount: 32, NoShowCount: 4, CancelledCount: 4},
			{PeriodStart: "2025-01-13T13:00:00Z", PeriodEnd: "2025-01-13T14:00:00Z", BookedCount: 55, UsedCount: 48, NoShowCount: 5, CancelledCount: 2},
			{PeriodStart: "2025-01-13T17:00:00Z", PeriodEnd: "2025-01-13T18:00:00Z", BookedCount: 30, UsedCount: 20, NoShowCount: 6, CancelledCount: 4},
		},
	}
}

func granularityOrDefault(g string) string {
	if g == "" {
		return "daily"
	}
	return g
}
