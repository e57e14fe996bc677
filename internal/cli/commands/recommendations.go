package commands

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/spaceflow-dev/spaceflow/internal/analytics"
	"github.com/spaceflow-dev/spaceflow/internal/guard"
	"github.com/spaceflow-dev/spaceflow/internal/recommendations"
)

// ErrNotSignedIn is returned by commands that need a session
var ErrNotSignedIn = errors.New("not signed in. Please run 'spaceflow login' first")

// NewRecommendationsCmd creates the recommendations command
func NewRecommendationsCmd(env *Env) *cobra.Command {
	var scope, focus, explain string
	var limit int

	cmd := &cobra.Command{
		Use:     "recommendations",
		Aliases: []string{"recs"},
		Short:   "List AI recommendations for a workspace",
		RunE: func(cmd *cobra.Command, args []string) error {
			if explain != "" {
				return runExplain(cmd.Context(), env, explain, scope)
			}
			return runRecommendations(cmd.Context(), env, analytics.RecommendationsQuery{
				Scope: scope,
				Focus: focus,
				Limit: limit,
			})
		},
	}

	cmd.Flags().StringVar(&scope, "scope", analytics.DefaultScope, "Scope as TYPE:id")
	cmd.Flags().StringVar(&focus, "focus", "", "Optional focus area")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum number of recommendations")
	cmd.Flags().StringVar(&explain, "explain", "", "Show the explanation for one recommendation ID")

	return cmd
}

// requireSession applies the same gate as the dashboard pages
func requireSession(ctx context.Context, env *Env) error {
	store, err := env.bootstrap(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	policy := guard.ForMode(env.Config.Auth.DemoMode)
	if guard.Decide(policy, store.Snapshot()) != guard.Render {
		return ErrNotSignedIn
	}
	return nil
}

func runRecommendations(ctx context.Context, env *Env, q analytics.RecommendationsQuery) error {
	if err := requireSession(ctx, env); err != nil {
		return err
	}

	engine := analytics.NewAIEngine(env.Config.Services.AIEngineBaseURL)
	list, err := engine.Recommendations(ctx, q)
	if err != nil {
		env.Logger.Debug().Err(err).Msg("Recommendations request failed")
		return errors.New(recommendations.LoadErrorMessage)
	}

	if label := list.ScopeLabel(); label != "" {
		fmt.Fprintf(env.Out, "Scope: %s\n", label)
	}
	if label := list.TimeRangeLabel(); label != "" {
		fmt.Fprintf(env.Out, "Based on %s\n", label)
	}
	if len(list.Recommendations) == 0 {
		fmt.Fprintln(env.Out, "No recommendations for this scope yet.")
		return nil
	}

	for _, rec := range list.Recommendations {
		fmt.Fprintln(env.Out)
		fmt.Fprintf(env.Out, "%s  %s\n", rec.ID, rec.Title)
		confidence := rec.ConfidenceLabel()
		if text := rec.ConfidenceText(); text != "" {
			confidence += " (" + text + ")"
		}
		fmt.Fprintf(env.Out, "  Confidence: %s\n", confidence)
		fmt.Fprintf(env.Out, "  %s\n", rec.ConfidenceCaption())
		if len(rec.PrimaryReasons) > 0 {
			fmt.Fprintf(env.Out, "  Reasons: %s\n", strings.Join(rec.PrimaryReasons, "; "))
		}
		fmt.Fprintf(env.Out, "  %s\n", recommendations.SuggestedAction(rec))
	}
	return nil
}

func runExplain(ctx context.Context, env *Env, id, scope string) error {
	if err := requireSession(ctx, env); err != nil {
		return err
	}

	engine := analytics.NewAIEngine(env.Config.Services.AIEngineBaseURL)
	exp, err := engine.Explanation(ctx, id, scope)
	if err != nil {
		env.Logger.Debug().Err(err).Str("recommendation_id", id).Msg("Explanation request failed")
		return errors.New(recommendations.ExplanationErrorMessage)
	}

	fmt.Fprintln(env.Out, exp.SummaryText())
	if exp.DetailedExplanation != "" {
		fmt.Fprintln(env.Out)
		fmt.Fprintln(env.Out, exp.DetailedExplanation)
	}
	if labels := exp.SignalLabels(); len(labels) > 0 {
		fmt.Fprintln(env.Out)
		fmt.Fprintln(env.Out, "Contributing signals:")
		for _, l := range labels {
			fmt.Fprintf(env.Out, "  - %s\n", l)
		}
	}
	if notes := exp.ConfidenceNotes(); notes != "" {
		fmt.Fprintf(env.Out, "\nConfidence: %s\n", notes)
	}
	for _, c := range exp.Caveats {
		fmt.Fprintf(env.Out, "Caveat: %s\n", c)
	}
	return nil
}
