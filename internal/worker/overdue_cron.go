package worker

// overdue_cron.go
// Background goroutine that periodically refreshes days_overdue on indebted
// accounts and auto-suspends the ones past the policy threshold. The same
// recalculation also runs inline on every movement; the cron catches
// accounts that simply stopped moving.

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"posledger/internal/service"
)

// StartOverdueCron launches a goroutine that runs the overdue recalculation
// once at startup and then on every tick. It respects the context for
// graceful shutdown.
func StartOverdueCron(ctx context.Context, accounts service.AccountService, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		log.Info().Dur("interval", interval).Msg("overdue_cron: started")
		runOverdueRecalc(ctx, accounts)

		for {
			select {
			case <-ctx.Done():
				log.Info().Msg("overdue_cron: shutting down")
				return
			case <-ticker.C:
				runOverdueRecalc(ctx, accounts)
			}
		}
	}()
}

func runOverdueRecalc(ctx context.Context, accounts service.AccountService) {
	updated, suspended, err := accounts.RecalculateOverdue(ctx)
	if err != nil {
		log.Error().Err(err).Msg("overdue_cron: recalculation failed")
		return
	}
	if updated > 0 || suspended > 0 {
		log.Info().
			Int("updated", updated).
			Int("suspended", suspended).
			Msg("overdue_cron: accounts refreshed")
	}
}
