package agent

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/veloxpay/guestpay/api/schemas"
	"github.com/veloxpay/guestpay/internal/config"
)

// Orchestrator runs the observe-decide-act loop that drives a payment goal
// to completion, a pause, or a budget limit.
type Orchestrator struct {
	cfg      config.AgentConfig
	logger   *zap.Logger
	sessions SessionFactory
	snap     Snapshotter
	runner   ActionRunner
	decider  Decider
	recorder Recorder
}

// NewOrchestrator assembles the loop from its collaborators.
func NewOrchestrator(
	cfg config.AgentConfig,
	logger *zap.Logger,
	sessions SessionFactory,
	snap Snapshotter,
	runner ActionRunner,
	decider Decider,
	recorder Recorder,
) *Orchestrator {
	return &Orchestrator{
		cfg:      cfg,
		logger:   logger.Named("agent"),
		sessions: sessions,
		snap:     snap,
		runner:   runner,
		decider:  decider,
		recorder: recorder,
	}
}

// Execute opens a fresh browser session, navigates to the starting URL, and
// works through the goal chain beginning at the given goal. The returned
// result is always populated, including on error; the error return is
// non-nil only for fatal failures (setup, snapshot, or decision errors), not
// for pauses or exhausted budgets.
func (o *Orchestrator) Execute(ctx context.Context, startURL string, goal schemas.Goal) (*schemas.AgentResult, error) {
	result := &schemas.AgentResult{}

	if !goal.Type.Valid() {
		result.Error = fmt.Sprintf("invalid goal type: %q", goal.Type)
		return result, fmt.Errorf("invalid goal type: %q", goal.Type)
	}

	maxIterations := o.cfg.MaxIterations
	if maxIterations <= 0 {
		maxIterations = 25
	}
	maxWallClock := o.cfg.MaxWallClock
	if maxWallClock <= 0 {
		maxWallClock = 3 * time.Minute
	}

	session, err := o.sessions.NewSession(ctx)
	if err != nil {
		result.Error = fmt.Sprintf("failed to open browser session: %v", err)
		return result, fmt.Errorf("failed to open browser session: %w", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if cerr := session.Close(closeCtx); cerr != nil {
			o.logger.Warn("Session close failed", zap.Error(cerr))
		}
	}()

	loopCtx, cancel := context.WithTimeout(ctx, maxWallClock)
	defer cancel()

	o.logger.Info("Starting goal execution",
		zap.String("session_id", session.ID()),
		zap.String("goal", string(goal.Type)),
		zap.String("start_url", startURL),
		zap.Int("max_iterations", maxIterations),
		zap.Duration("max_wall_clock", maxWallClock),
	)

	if err := session.Navigate(loopCtx, startURL); err != nil {
		result.Error = fmt.Sprintf("initial navigation to %s failed: %v", startURL, err)
		o.finalize(session, result)
		return result, fmt.Errorf("initial navigation to %s failed: %w", startURL, err)
	}

	state := NewFormState()

	for iter := 1; iter <= maxIterations; iter++ {
		result.Iterations = iter

		if loopCtx.Err() != nil {
			result.Error = "wall clock budget exhausted"
			o.finalize(session, result)
			return result, nil
		}

		snapshot, err := o.snap.Snapshot(loopCtx, session)
		if err != nil {
			if loopCtx.Err() != nil {
				result.Error = "wall clock budget exhausted"
				o.finalize(session, result)
				return result, nil
			}
			result.Error = fmt.Sprintf("page snapshot failed: %v", err)
			o.finalize(session, result)
			return result, fmt.Errorf("page snapshot failed: %w", err)
		}

		o.logger.Info("Iteration",
			zap.Int("n", iter),
			zap.String("goal", string(goal.Type)),
			zap.String("url", snapshot.URL),
			zap.String("title", snapshot.Title),
		)

		// A page that already shows the guest bill lookup form makes the
		// portal hunt moot; skip straight to filling it.
		if goal.Type == schemas.GoalFindGuestPayURL && DetectBillForm(snapshot) {
			o.logger.Info("Bill lookup form detected, skipping portal search")
			goal = schemas.Goal{Type: schemas.GoalFillBillInfo, Context: goal.Context}
			state = NewFormState()
			result.ActionHistory = append(result.ActionHistory, schemas.ActionRecord{
				Iteration: iter,
				URL:       snapshot.URL,
				Succeeded: true,
				Detail:    "bill lookup form detected; proceeding to fill it",
				Timestamp: time.Now().UTC(),
			})
			continue
		}

		outcome, err := o.decider.Decide(loopCtx, DecisionInput{
			Goal:     goal,
			Snapshot: snapshot,
			History:  result.ActionHistory,
			State:    state,
		})
		if err != nil {
			if loopCtx.Err() != nil {
				result.Error = "wall clock budget exhausted"
				o.finalize(session, result)
				return result, nil
			}
			result.Error = fmt.Sprintf("decision failed: %v", err)
			o.finalize(session, result)
			return result, fmt.Errorf("decision failed: %w", err)
		}

		if outcome.Pause != nil {
			result.Success = outcome.Pause.Success
			result.PausedForUser = true
			result.PauseReason = outcome.Pause.Reason
			o.logger.Info("Pausing for user", zap.Bool("success", result.Success), zap.String("reason", result.PauseReason))
			o.finalize(session, result)
			return result, nil
		}

		if outcome.Decision.GoalAchieved {
			next, pause, err := NextGoal(goal)
			if err != nil {
				result.Error = err.Error()
				o.finalize(session, result)
				return result, err
			}
			if pause != nil {
				result.Success = pause.Success
				result.PausedForUser = true
				result.PauseReason = pause.Reason
				o.logger.Info("Goal chain complete, pausing for user", zap.String("reason", pause.Reason))
				o.finalize(session, result)
				return result, nil
			}
			o.logger.Info("Goal achieved, advancing", zap.String("from", string(goal.Type)), zap.String("to", string(next.Type)))
			goal = next
			state = NewFormState()
			continue
		}

		detail, runErr := o.runner.Run(loopCtx, session, outcome.Decision.Action)

		record := schemas.ActionRecord{
			Iteration: iter,
			URL:       snapshot.URL,
			Action:    outcome.Decision.Action,
			Succeeded: runErr == nil,
			Detail:    detail,
			Timestamp: time.Now().UTC(),
		}
		if outcome.RedactValue {
			record.Action.Value = MaskSensitive(outcome.Decision.Action.Value)
		}
		if runErr != nil {
			record.Detail = runErr.Error()
		}
		result.ActionHistory = append(result.ActionHistory, record)

		if runErr != nil {
			o.logger.Warn("Action failed",
				zap.Int("iteration", iter),
				zap.String("action", string(outcome.Decision.Action.Type)),
				zap.String("target", outcome.Decision.Action.Target),
				zap.Error(runErr),
			)
			o.captureStep(loopCtx, session, result, fmt.Sprintf("step-%02d-error", iter))
			if outcome.ProgressKey != "" {
				state.MarkFailed(outcome.ProgressKey)
			}
			continue
		}

		o.captureStep(loopCtx, session, result, fmt.Sprintf("step-%02d", iter))
		if outcome.ProgressKey != "" {
			state.MarkFilled(outcome.ProgressKey)
		}
	}

	result.Error = "iteration budget exhausted"
	o.finalize(session, result)
	return result, nil
}

// captureStep records a screenshot and appends its path, best effort.
func (o *Orchestrator) captureStep(ctx context.Context, session PageSession, result *schemas.AgentResult, label string) {
	path, err := o.recorder.Capture(ctx, session, label)
	if err != nil {
		o.logger.Debug("Screenshot failed", zap.String("label", label), zap.Error(err))
		return
	}
	result.Screenshots = append(result.Screenshots, path)
}

// finalize records the terminal page state on every exit path. The loop
// context may already be dead; a short background context keeps the final
// evidence capture alive.
func (o *Orchestrator) finalize(session PageSession, result *schemas.AgentResult) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if url, err := session.CurrentURL(ctx); err == nil {
		result.FinalURL = url
	}
	o.captureStep(ctx, session, result, "final")
}
