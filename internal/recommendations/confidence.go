package recommendations

import "fmt"

// Level is the visual confidence band
type Level string

const (
	LevelHigh    Level = "high"
	LevelMedium  Level = "medium"
	LevelLow     Level = "low"
	LevelUnknown Level = ""
)

// ConfidencePercent converts the 0..1 engine confidence to 0..100
func (r Recommendation) ConfidencePercent() (float64, bool) {
	if r.Confidence == nil {
		return 0, false
	}
	return *r.Confidence * 100, true
}

// LevelFor bands a 0..100 percentage: above 75 high, 40 and up medium
func LevelFor(percent float64) Level {
	switch {
	case percent > 75:
		return LevelHigh
	case percent >= 40:
		return LevelMedium
	default:
		return LevelLow
	}
}

func (r Recommendation) Level() Level {
	p, ok := r.ConfidencePercent()
	if !ok {
		return LevelUnknown
	}
	return LevelFor(p)
}

func (r Recommendation) ConfidenceLabel() string {
	switch r.Level() {
	case LevelHigh:
		return "High"
	case LevelMedium:
		return "Medium"
	case LevelLow:
		return "Low"
	default:
		return "Confidence not provided"
	}
}

func (r Recommendation) ConfidenceCaption() string {
	switch r.Level() {
	case LevelHigh:
		return "Based on strong and consistent patterns in aggregated workspace behaviour. Advisory only."
	case LevelMedium:
		return "Based on noticeable patterns in aggregated workspace behaviour and should be cross-checked with your context."
	case LevelLow:
		return "Based on weaker or noisier patterns in aggregated workspace behaviour. Treat as a light suggestion."
	default:
		return "Confidence was not provided for this suggestion."
	}
}

// ConfidenceText renders e.g. "82%" or "" when absent
func (r Recommendation) ConfidenceText() string {
	p, ok := r.ConfidencePercent()
	if !ok {
		return ""
	}
	return fmt.Sprintf("%.0f%%", p)
}

// SuggestedAction phrases a non-binding follow-up from the title
func SuggestedAction(r Recommendation) string {
	if r.Title == "" {
		return ""
	}
	return fmt.Sprintf("Consider taking a light, non-binding follow-up related to \"%s\" with your workspace or operations team.", r.Title)
}
