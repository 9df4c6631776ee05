package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/veloxpay/guestpay/api/schemas"
	"github.com/veloxpay/guestpay/internal/agent"
	"github.com/veloxpay/guestpay/internal/store"
)

// PaymentAgent is the slice of the orchestrator the runner depends on.
type PaymentAgent interface {
	Execute(ctx context.Context, startURL string, goal schemas.Goal) (*schemas.AgentResult, error)
}

// RunStore persists finished runs. *store.Store satisfies it.
type RunStore interface {
	SaveRun(ctx context.Context, rec store.RunRecord) error
}

// RunRequest describes one payment run: where to start and what to achieve.
// An empty ID is assigned a fresh uuid before execution.
type RunRequest struct {
	ID       string
	StartURL string
	Goal     schemas.Goal
}

// RunOutcome pairs a request with how its run ended.
type RunOutcome struct {
	ID     string
	Result *schemas.AgentResult
	Err    error
}

// Runner executes payment runs, optionally several at once, and records each
// finished run when a store is configured. Each run gets its own browser
// session, so runs are independent of one another.
type Runner struct {
	agent       PaymentAgent
	store       RunStore
	logger      *zap.Logger
	concurrency int
}

// NewRunner creates a runner. store may be nil, in which case runs are not
// persisted. concurrency values below 1 are treated as 1.
func NewRunner(agent PaymentAgent, store RunStore, logger *zap.Logger, concurrency int) *Runner {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Runner{
		agent:       agent,
		store:       store,
		logger:      logger.Named("runner"),
		concurrency: concurrency,
	}
}

// RunAll executes every request and returns one outcome per request, in
// request order. A failed run never cancels its siblings; its error is
// reported in the corresponding outcome instead.
func (r *Runner) RunAll(ctx context.Context, reqs []RunRequest) []RunOutcome {
	outcomes := make([]RunOutcome, len(reqs))

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)

	for i, req := range reqs {
		g.Go(func() error {
			if req.ID == "" {
				req.ID = uuid.New().String()
			}
			log := r.logger.With(zap.String("run_id", req.ID))
			log.Info("Starting payment run",
				zap.String("url", req.StartURL),
				zap.String("goal", string(req.Goal.Type)),
			)

			result, err := r.agent.Execute(gCtx, req.StartURL, req.Goal)
			outcomes[i] = RunOutcome{ID: req.ID, Result: result, Err: err}
			if err != nil {
				log.Error("Payment run failed.", zap.Error(err))
			}

			// Persist whatever we have, even from a fatal run.
			if r.store != nil && result != nil {
				rec := store.RunRecord{
					ID:           req.ID,
					Provider:     req.Goal.Context.Provider,
					AccountLast4: agent.MaskSensitive(req.Goal.Context.AccountNumber),
					Goal:         req.Goal.Type,
					Result:       *result,
					CreatedAt:    time.Now().UTC(),
				}
				if saveErr := r.store.SaveRun(gCtx, rec); saveErr != nil {
					log.Warn("Failed to persist run history", zap.Error(saveErr))
				}
			}
			return nil
		})
	}

	// Workers only ever return nil; Wait is used purely as a barrier.
	_ = g.Wait()
	return outcomes
}
