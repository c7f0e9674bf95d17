package service

import (
	"time"

	"github.com/lumera-ai/lumera/internal/config"
	"github.com/lumera-ai/lumera/internal/entitlement/domain"
)

// monthWindow returns the UTC calendar month containing now as [from, to).
func monthWindow(now time.Time) (time.Time, time.Time) {
	now = now.UTC()
	from := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	return from, from.AddDate(0, 1, 0)
}

// usageCost prices a single record in display credits.
func usageCost(r domain.UsageRecord, pricing config.PricingConfig) float64 {
	switch r.Kind {
	case domain.UsageKindVideo:
		seconds := pricing.DefaultVideoSeconds
		if r.DurationSeconds != nil && *r.DurationSeconds > 0 {
			seconds = *r.DurationSeconds
		}
		return pricing.VideoCreditsPerSecond * seconds
	default:
		return pricing.ImageCredits
	}
}

// computeSnapshot derives the credit balance for one billing month.
//
// Display credits are what the customer sees; actual credits are the
// billing-side allotment. Usage is priced in display credits and converted
// with the plan's actual/display ratio. One-time plans carry no recurring
// allotment, so only prepaid ledger credits contribute to their totals.
func computeSnapshot(plan config.PlanSpec, pricing config.PricingConfig, ledger []domain.CreditLedgerEntry, usage []domain.UsageRecord, now time.Time) domain.Snapshot {
	from, to := monthWindow(now)

	var displayUsed float64
	for _, r := range usage {
		if !r.Billable() {
			continue
		}
		created := r.CreatedAt.UTC()
		if created.Before(from) || !created.Before(to) {
			continue
		}
		displayUsed += usageCost(r, pricing)
	}

	var prepaid float64
	for _, e := range ledger {
		if e.Usable(now) {
			prepaid += e.Credits
		}
	}

	planDisplay := plan.DisplayCreditsTotal
	planActual := plan.ActualCreditsTotal
	if plan.Kind == config.PlanKindOneTime {
		planDisplay = 0
		planActual = 0
	}

	displayTotal := planDisplay + prepaid

	// Actual credits track the plan allotment only; prepaid grants live in
	// display units. A plan without a display allotment has no meaningful
	// conversion ratio, so fall back to 1:1.
	actualTotal := planActual
	ratio := 1.0
	if planDisplay > 0 {
		ratio = actualTotal / planDisplay
	}
	actualUsed := displayUsed * ratio

	return domain.Snapshot{
		DisplayTotal:     clampZero(displayTotal),
		DisplayUsed:      clampZero(displayUsed),
		DisplayRemaining: clampZero(displayTotal - displayUsed),
		ActualTotal:      clampZero(actualTotal),
		ActualUsed:       clampZero(actualUsed),
		ActualRemaining:  clampZero(actualTotal - actualUsed),
	}
}

func clampZero(v float64) float64 {
	if v < 0 {
		return 0
	}
	return v
}
