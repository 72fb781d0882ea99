package engine

import (
	"context"
	"sync"
	"time"

	logger "github.com/sirupsen/logrus"

	"botcontrol/internal/models"
)

// batchDeadline bounds one full batch. A bot stuck on a slow exchange call
// cannot hold the next scheduled batch hostage.
const batchDeadline = 90 * time.Second

// Summary aggregates one batch run across all running bots.
type Summary struct {
	Total    int           `json:"total"`
	Traded   int           `json:"traded"`
	NoSignal int           `json:"no_signal"`
	Blocked  int           `json:"blocked"`
	Skipped  int           `json:"skipped"`
	Failed   int           `json:"failed"`
	Duration time.Duration `json:"duration"`
	Results  []RunResult   `json:"results"`
}

// Scheduler fans one execution pass out to every running bot. Bots run
// concurrently and in isolation: one bot's failure or timeout never touches
// another's pass.
type Scheduler struct {
	store    Storage
	executor *Executor
}

func NewScheduler(store Storage, executor *Executor) *Scheduler {
	return &Scheduler{store: store, executor: executor}
}

// RunAll executes every running bot once and returns the batch summary.
func (s *Scheduler) RunAll(ctx context.Context) (*Summary, error) {
	start := time.Now()
	bots, err := s.store.RunningBots(ctx)
	if err != nil {
		return nil, err
	}

	batchCtx, cancel := context.WithTimeout(ctx, batchDeadline)
	defer cancel()

	results := make([]RunResult, len(bots))
	var wg sync.WaitGroup
	for i := range bots {
		wg.Add(1)
		go func(i int, bot models.BotConfig) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					logger.WithFields(logger.Fields{"bot_id": bot.ID, "panic": r}).
						Error("bot execution panicked")
					results[i] = RunResult{BotID: bot.ID, BotName: bot.Name, Outcome: OutcomeFailed, Reason: "internal panic"}
				}
			}()
			res, err := s.executor.Execute(batchCtx, &bot)
			if err != nil {
				logger.WithFields(logger.Fields{"bot_id": bot.ID, "outcome": res.Outcome}).
					WithError(err).Warn("bot execution failed")
			}
			results[i] = *res
		}(i, bots[i])
	}
	wg.Wait()

	sum := &Summary{Total: len(bots), Duration: time.Since(start), Results: results}
	for _, r := range results {
		switch r.Outcome {
		case OutcomeTraded:
			sum.Traded++
		case OutcomeNoSignal:
			sum.NoSignal++
		case OutcomeBlocked:
			sum.Blocked++
		case OutcomeSkipped:
			sum.Skipped++
		default:
			sum.Failed++
		}
	}

	logger.WithFields(logger.Fields{
		"total":    sum.Total,
		"traded":   sum.Traded,
		"blocked":  sum.Blocked,
		"failed":   sum.Failed,
		"duration": sum.Duration.String(),
	}).Info("batch run complete")
	return sum, nil
}

// RunLoop runs batches at a fixed interval until the context is done or
// maxTicks batches have run. maxTicks <= 0 means run until cancelled.
func (s *Scheduler) RunLoop(ctx context.Context, interval time.Duration, maxTicks int) ([]Summary, error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var summaries []Summary
	for tick := 0; maxTicks <= 0 || tick < maxTicks; tick++ {
		sum, err := s.RunAll(ctx)
		if err != nil {
			logger.WithError(err).Error("batch run failed")
		} else {
			summaries = append(summaries, *sum)
		}

		select {
		case <-ctx.Done():
			return summaries, ctx.Err()
		case <-ticker.C:
		}
	}
	return summaries, nil
}
