package analytics

import "time"

// Scope of an analytics query, e.g. WORKSPACE demo
type Scope struct {
	Type string `json:"type,omitempty"`
	ID   string `json:"id,omitempty"`
}

type TimeRange struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// Query selects the slice of analytics to fetch
type Query struct {
	ScopeType   string
	ScopeID     string
	From        time.Time
	To          time.Time
	Granularity string // hourly, daily, weekly
	GroupBy     string
}

// UtilizationPoint is one time bucket. UtilizationPercent is a 0..1 ratio.
type UtilizationPoint struct {
	Timestamp          string  `json:"timestamp"`
	GroupKey           string  `json:"groupKey"`
	UtilizationPercent float64 `json:"utilizationPercent"`
	OccupiedCount      int64   `json:"occupiedCount"`
	Capacity           int64   `json:"capacity"`
	SampleSize         int64   `json:"sampleSize"`
	Partial            bool    `json:"isPartial"`
}

type UtilizationResponse struct {
	Scope       Scope              `json:"scope"`
	TimeRange   TimeRange          `json:"timeRange"`
	Granularity string             `json:"granularity"`
	Notes       string             `json:"notes"`
	Points      []UtilizationPoint `json:"points"`
}

// AverageUtilization is the mean ratio across points, 0 when empty
func (r *UtilizationResponse) AverageUtilization() float64 {
	if len(r.Points) == 0 {
		return 0
	}
	var sum float64
	for _, p := range r.Points {
		sum += p.UtilizationPercent
	}
	return sum / float64(len(r.Points))
}

type BookingUsageBucket struct {
	PeriodStart    string `json:"periodStart"`
	PeriodEnd      string `json:"periodEnd"`
	BookedCount    int64  `json:"bookedCount"`
	UsedCount      int64  `json:"usedCount"`
	NoShowCount    int64  `json:"noShowCount"`
	CancelledCount int64  `json:"cancelledCount"`
}

type BookingUsageResponse struct {
	Scope       Scope                `json:"scope"`
	TimeRange   TimeRange            `json:"timeRange"`
	Granularity string               `json:"granularity"`
	Notes       string               `json:"notes"`
	Buckets     []BookingUsageBucket `json:"buckets"`
}

// Totals sums the buckets
func (r *BookingUsageResponse) Totals() BookingUsageBucket {
	var t BookingUsageBucket
	for _, b := range r.Buckets {
		t.BookedCount += b.BookedCount
		t.UsedCount += b.UsedCount
		t.NoShowCount += b.NoShowCount
		t.CancelledCount += b.CancelledCount
	}
	return t
}

// NoShowRate is no-shows over bookings, 0 without bookings
func (r *BookingUsageResponse) NoShowRate() float64 {
	t := r.Totals()
	if t.BookedCount == 0 {
		return 0
	}
	return float64(t.NoShowCount) / float64(t.BookedCount)
}
