package engine

import (
	"errors"

	"botcontrol/internal/models"
	"botcontrol/pkg/exchange"
)

// Run outcomes. Every execution ends in exactly one of these.
const (
	OutcomeTraded   = "traded"
	OutcomeNoSignal = "no_signal"
	OutcomeBlocked  = "blocked"
	OutcomeSkipped  = "skipped"
	OutcomeFailed   = "failed"
)

// classify maps a run failure onto the activity-log severity and category
// used for its single audit entry. The failure taxonomy of the exchange
// layer drives the mapping; anything unrecognized is a plain error.
func classify(err error) (severity, category string) {
	var apiErr *exchange.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Category {
		case exchange.CategoryTransient:
			return models.SeverityWarning, models.CategoryTrade
		case exchange.CategoryRestricted:
			return models.SeverityWarning, models.CategoryRestriction
		case exchange.CategoryConfig:
			return models.SeverityError, models.CategorySystem
		case exchange.CategoryFatal:
			return models.SeverityError, models.CategorySystem
		}
	}
	return models.SeverityError, models.CategorySystem
}

// isTransient reports whether the failure is expected to clear on its own,
// so the run counts as degraded rather than broken.
func isTransient(err error) bool {
	var apiErr *exchange.APIError
	return errors.As(err, &apiErr) && apiErr.Category == exchange.CategoryTransient
}
