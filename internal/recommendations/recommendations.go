// Package recommendations parses AI engine payloads into typed values and
// derives the advisory presentation shown next to them.
package recommendations

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// ErrMalformedPayload matches every MalformedPayloadError
var ErrMalformedPayload = errors.New("malformed payload")

// MalformedPayloadError reports a payload that does not match the expected
// schema
type MalformedPayloadError struct {
	Payload string // "recommendations" or "explanation"
	Err     error
}

func (e *MalformedPayloadError) Error() string {
	return fmt.Sprintf("malformed %s payload: %v", e.Payload, e.Err)
}

func (e *MalformedPayloadError) Unwrap() error {
	return e.Err
}

func (e *MalformedPayloadError) Is(target error) bool {
	return target == ErrMalformedPayload
}

// User-facing messages
const (
	LoadErrorMessage        = "Unable to load AI recommendations."
	ExplanationErrorMessage = "We couldn't load the explanation for this recommendation."
	NoExplanationSummary    = "Explanation is not available for this recommendation."
)

var validate = validator.New()

// Scope identifies what the recommendations are about, e.g. WORKSPACE demo
type Scope struct {
	Type string `json:"type" validate:"required"`
	ID   string `json:"id" validate:"required"`
}

type TimeRange struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// Recommendation is one advisory item. Confidence is 0..1 when present.
type Recommendation struct {
	ID             string   `json:"id" validate:"required"`
	Category       string   `json:"category"`
	Title          string   `json:"title" validate:"required"`
	Description    string   `json:"description"`
	Confidence     *float64 `json:"confidence" validate:"omitempty,gte=0,lte=1"`
	ImpactLevel    string   `json:"impactLevel"`
	PrimaryReasons []string `json:"primaryReasons"`
	CreatedAt      string   `json:"createdAt"`
}

// List is the recommendations response
type List struct {
	Scope           *Scope           `json:"scope"`
	TimeRange       *TimeRange       `json:"timeRange"`
	Focus           string           `json:"focus"`
	Recommendations []Recommendation `json:"recommendations" validate:"required,dive"`
}

type Signal struct {
	Label     string `json:"label" validate:"required"`
	Influence string `json:"influence"`
}

type ConfidenceBreakdown struct {
	Overall *float64 `json:"overall" validate:"omitempty,gte=0,lte=1"`
	Notes   string   `json:"notes"`
}

// Explanation details why a recommendation was made
type Explanation struct {
	RecommendationID    string               `json:"recommendationId" validate:"required"`
	Summary             string               `json:"summary"`
	DetailedExplanation string               `json:"detailedExplanation"`
	ContributingSignals []Signal             `json:"contributingSignals" validate:"dive"`
	ConfidenceBreakdown *ConfidenceBreakdown `json:"confidenceBreakdown"`
	Caveats             []string             `json:"caveats"`
}

// ParseList decodes and validates a recommendations response
func ParseList(data []byte) (*List, error) {
	var list List
	if err := decode(data, &list); err != nil {
		return nil, &MalformedPayloadError{Payload: "recommendations", Err: err}
	}
	return &list, nil
}

// ParseExplanation decodes and validates an explanation response
func ParseExplanation(data []byte) (*Explanation, error) {
	var exp Explanation
	if err := decode(data, &exp); err != nil {
		return nil, &MalformedPayloadError{Payload: "explanation", Err: err}
	}
	return &exp, nil
}

func decode(data []byte, v any) error {
	if len(strings.TrimSpace(string(data))) == 0 {
		return errors.New("empty body")
	}
	if err := json.Unmarshal(data, v); err != nil {
		return err
	}
	return validate.Struct(v)
}

// SummaryText falls back to a fixed sentence when the engine sent none
func (e *Explanation) SummaryText() string {
	if strings.TrimSpace(e.Summary) == "" {
		return NoExplanationSummary
	}
	return e.Summary
}

// SignalLabels returns the labels of the contributing signals
func (e *Explanation) SignalLabels() []string {
	labels := make([]string, 0, len(e.ContributingSignals))
	for _, s := range e.ContributingSignals {
		labels = append(labels, s.Label)
	}
	return labels
}

// ConfidenceNotes returns the breakdown notes, if any
func (e *Explanation) ConfidenceNotes() string {
	if e.ConfidenceBreakdown == nil {
		return ""
	}
	return e.ConfidenceBreakdown.Notes
}

// ScopeLabel renders the scope as "TYPE id"
func (l *List) ScopeLabel() string {
	if l.Scope == nil {
		return ""
	}
	return l.Scope.Type + " " + l.Scope.ID
}

// TimeRangeLabel renders the analysed window, or "" when it is unknown
func (l *List) TimeRangeLabel() string {
	if l.TimeRange == nil {
		return ""
	}
	start, ok1 := parseDate(l.TimeRange.Start)
	end, ok2 := parseDate(l.TimeRange.End)
	if !ok1 || !ok2 {
		return ""
	}
	return fmt.Sprintf("recent activity between %s and %s", start.Format("2 Jan 2006"), end.Format("2 Jan 2006"))
}

func parseDate(s string) (time.Time, bool) {
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
