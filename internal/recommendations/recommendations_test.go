package recommendations

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

const sampleList = `{
  "scope": {"type": "WORKSPACE", "id": "demo"},
  "timeRange": {"start": "2025-01-06T00:00:00Z", "end": "2025-01-13T00:00:00Z"},
  "focus": "utilization",
  "recommendations": [
    {
      "id": "peak-congestion-demo",
      "category": "PEAK_CONGESTION",
      "title": "Relieve recurring peak congestion",
      "description": "Several time windows exceed 80% occupancy.",
      "confidence": 0.8,
      "impactLevel": "HIGH",
      "primaryReasons": ["Repeated high-utilization buckets"],
      "createdAt": "2025-01-13T09:00:00Z"
    },
    {
      "id": "underutilized-demo",
      "title": "Review an underutilized space"
    }
  ]
}`

func floatPtr(f float64) *float64 { return &f }

func TestParseList(t *testing.T) {
	list, err := ParseList([]byte(sampleList))
	require.NoError(t, err)

	want := &List{
		Scope:     &Scope{Type: "WORKSPACE", ID: "demo"},
		TimeRange: &TimeRange{Start: "2025-01-06T00:00:00Z", End: "2025-01-13T00:00:00Z"},
		Focus:     "utilization",
		Recommendations: []Recommendation{
			{
				ID:             "peak-congestion-demo",
				Category:       "PEAK_CONGESTION",
				Title:          "Relieve recurring peak congestion",
				Description:    "Several time windows exceed 80% occupancy.",
				Confidence:     floatPtr(0.8),
				ImpactLevel:    "HIGH",
				PrimaryReasons: []string{"Repeated high-utilization buckets"},
				CreatedAt:      "2025-01-13T09:00:00Z",
			},
			{ID: "underutilized-demo", Title: "Review an underutilized space"},
		},
	}
	if diff := cmp.Diff(want, list); diff != "" {
		t.Errorf("ParseList mismatch (-want +got):\n%s", diff)
	}

	require.Equal(t, "WORKSPACE demo", list.ScopeLabel())
	require.Equal(t, "recent activity between 6 Jan 2025 and 13 Jan 2025", list.TimeRangeLabel())
}

func TestParseListMalformed(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "empty body", body: ""},
		{name: "not json", body: "<html>502 Bad Gateway</html>"},
		{name: "bare array", body: `[{"id":"x","title":"t"}]`},
		{name: "missing recommendations", body: `{"items":[{"id":"x","title":"t"}]}`},
		{name: "recommendations is an object", body: `{"recommendations":{"id":"x"}}`},
		{name: "item without id", body: `{"recommendations":[{"recommendationId":"x","title":"t"}]}`},
		{name: "numeric id", body: `{"recommendations":[{"id":7,"title":"t"}]}`},
		{name: "item without title", body: `{"recommendations":[{"id":"x"}]}`},
		{name: "confidence out of range", body: `{"recommendations":[{"id":"x","title":"t","confidence":82}]}`},
		{name: "confidence as string", body: `{"recommendations":[{"id":"x","title":"t","confidence":"high"}]}`},
		{name: "reasons with numbers", body: `{"recommendations":[{"id":"x","title":"t","primaryReasons":["ok",3]}]}`},
		{name: "scope without id", body: `{"scope":{"type":"WORKSPACE"},"recommendations":[]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseList([]byte(tt.body))
			require.ErrorIs(t, err, ErrMalformedPayload)

			var mpe *MalformedPayloadError
			require.True(t, errors.As(err, &mpe))
			require.Equal(t, "recommendations", mpe.Payload)
		})
	}
}

func TestParseListEmpty(t *testing.T) {
	list, err := ParseList([]byte(`{"recommendations":[]}`))
	require.NoError(t, err)
	require.Empty(t, list.Recommendations)
	require.Equal(t, "", list.ScopeLabel())
	require.Equal(t, "", list.TimeRangeLabel())
}

func TestParseExplanation(t *testing.T) {
	body := `{
	  "recommendationId": "no-show-pattern-demo",
	  "summary": "High or recurring no-show patterns detected.",
	  "detailedExplanation": "Aggregated booking vs usage data indicates an elevated no-show rate.",
	  "contributingSignals": [
	    {"label": "Elevated no-show share", "influence": "No-shows exceed a configured percentage of total bookings."},
	    {"label": "Persistence over time", "influence": "High no-show rates appear in multiple buckets."}
	  ],
	  "confidenceBreakdown": {"overall": 0.78, "notes": "Heuristic thresholding on no-show ratios."},
	  "caveats": ["External factors are not modeled."]
	}`

	exp, err := ParseExplanation([]byte(body))
	require.NoError(t, err)
	require.Equal(t, "High or recurring no-show patterns detected.", exp.SummaryText())
	require.Equal(t, []string{"Elevated no-show share", "Persistence over time"}, exp.SignalLabels())
	require.Equal(t, "Heuristic thresholding on no-show ratios.", exp.ConfidenceNotes())
}

func TestParseExplanationDefaults(t *testing.T) {
	exp, err := ParseExplanation([]byte(`{"recommendationId":"x"}`))
	require.NoError(t, err)
	require.Equal(t, NoExplanationSummary, exp.SummaryText())
	require.Empty(t, exp.SignalLabels())
	require.Equal(t, "", exp.ConfidenceNotes())
}

func TestParseExplanationMalformed(t *testing.T) {
	tests := []string{
		``,
		`null`,
		`{"summary":"no id"}`,
		`{"recommendationId":"x","contributingSignals":["plain string"]}`,
		`{"recommendationId":"x","contributingSignals":[{"influence":"no label"}]}`,
		`{"recommendationId":"x","confidenceBreakdown":{"overall":1.5}}`,
	}

	for _, body := range tests {
		_, err := ParseExplanation([]byte(body))
		if !errors.Is(err, ErrMalformedPayload) {
			t.Errorf("ParseExplanation(%q) error = %v, want ErrMalformedPayload", body, err)
		}
	}
}
