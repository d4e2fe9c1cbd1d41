// Package period derives billing period bounds from the partial timing
// data subscription events carry. The provider only sends explicit period
// bounds on invoice events, so subscription handlers reconstruct them from
// creation time plus either the next-payment date or the plan interval.
package period

import (
	"strings"
	"time"
)

// Calculate returns [start, end] for the billing period opening at
// createdAt. Start is the creation date truncated to day start. End is the
// day before the next payment, end of day, when the next-payment date is
// known; otherwise one interval after start, minus a day. Both are nil when
// createdAt is nil: callers must treat nil bounds as unknown and not write
// them.
func Calculate(createdAt, nextPayment *time.Time, interval string) (*time.Time, *time.Time) {
	if createdAt == nil {
		return nil, nil
	}

	start := dayStart(createdAt.UTC())

	var end time.Time
	if nextPayment != nil {
		end = dayEnd(nextPayment.UTC().AddDate(0, 0, -1))
	} else {
		end = dayEnd(addInterval(start, interval).AddDate(0, 0, -1))
	}

	if end.Before(start) {
		end = dayEnd(start)
	}

	return &start, &end
}

func addInterval(t time.Time, interval string) time.Time {
	switch strings.ToLower(strings.TrimSpace(interval)) {
	case "annually", "yearly":
		return t.AddDate(1, 0, 0)
	case "weekly":
		return t.AddDate(0, 0, 7)
	case "daily":
		return t.AddDate(0, 0, 1)
	default:
		// The provider's plans are monthly unless stated otherwise.
		return t.AddDate(0, 1, 0)
	}
}

func dayStart(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func dayEnd(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 23, 59, 59, 0, time.UTC)
}
