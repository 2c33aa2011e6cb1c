// Package billingperiod computes billing period boundaries, proration and
// trial windows. Everything here is a pure function of its inputs; all
// boundaries are UTC.
package billingperiod

import (
	"time"

	subdomain "github.com/smallbiznis/meterflow/internal/subscription/domain"
	"github.com/shopspring/decimal"
)

// Period returns the half-open billing period [start, end) containing ref.
// CALENDAR subscriptions snap to calendar boundaries; ANNIVERSARY
// subscriptions walk whole intervals from the subscription anchor.
func Period(sub subdomain.Subscription, interval subdomain.Interval, ref time.Time) (time.Time, time.Time, error) {
	if !interval.Valid() {
		return time.Time{}, time.Time{}, subdomain.ErrInvalidInterval
	}
	ref = ref.UTC()

	switch sub.BillingTime {
	case subdomain.BillingTimeCalendar:
		start, end := calendarPeriod(interval, ref)
		return start, end, nil
	case subdomain.BillingTimeAnniversary:
		anchor := sub.Anchor()
		if anchor == nil {
			return time.Time{}, time.Time{}, subdomain.ErrInvalidBillingTime
		}
		start, end := anniversaryPeriod(anchor.UTC(), interval, ref)
		return start, end, nil
	default:
		return time.Time{}, time.Time{}, subdomain.ErrInvalidBillingTime
	}
}

func calendarPeriod(interval subdomain.Interval, ref time.Time) (time.Time, time.Time) {
	switch interval {
	case subdomain.IntervalWeekly:
		// Monday 00:00 UTC.
		offset := (int(ref.Weekday()) + 6) % 7
		start := time.Date(ref.Year(), ref.Month(), ref.Day()-offset, 0, 0, 0, 0, time.UTC)
		return start, start.AddDate(0, 0, 7)
	case subdomain.IntervalMonthly:
		start := time.Date(ref.Year(), ref.Month(), 1, 0, 0, 0, 0, time.UTC)
		return start, start.AddDate(0, 1, 0)
	case subdomain.IntervalQuarterly:
		quarterMonth := time.Month((int(ref.Month())-1)/3*3 + 1)
		start := time.Date(ref.Year(), quarterMonth, 1, 0, 0, 0, 0, time.UTC)
		return start, start.AddDate(0, 3, 0)
	default: // YEARLY
		start := time.Date(ref.Year(), time.January, 1, 0, 0, 0, 0, time.UTC)
		return start, start.AddDate(1, 0, 0)
	}
}

func anniversaryPeriod(anchor time.Time, interval subdomain.Interval, ref time.Time) (time.Time, time.Time) {
	n := estimateOffset(anchor, interval, ref)
	for {
		start := addIntervals(anchor, interval, n)
		end := addIntervals(anchor, interval, n+1)
		if ref.Before(start) {
			n--
			continue
		}
		if !ref.Before(end) {
			n++
			continue
		}
		return start, end
	}
}

func estimateOffset(anchor time.Time, interval subdomain.Interval, ref time.Time) int {
	if interval == subdomain.IntervalWeekly {
		return int(ref.Sub(anchor).Hours() / (24 * 7))
	}
	months := (ref.Year()-anchor.Year())*12 + int(ref.Month()) - int(anchor.Month())
	return months / interval.Months()
}

// addIntervals advances n whole intervals from the anchor. Month arithmetic
// always starts from the anchor so a Jan 31 anchor yields Feb 28, not a
// drifted Mar date; the day of month clamps to the target month's last day.
func addIntervals(anchor time.Time, interval subdomain.Interval, n int) time.Time {
	if interval == subdomain.IntervalWeekly {
		return anchor.AddDate(0, 0, 7*n)
	}
	months := interval.Months() * n
	year := anchor.Year()
	month := int(anchor.Month()) - 1 + months
	year += month / 12
	month = month % 12
	if month < 0 {
		month += 12
		year--
	}
	day := anchor.Day()
	if last := lastDayOfMonth(year, time.Month(month+1)); day > last {
		day = last
	}
	return time.Date(year, time.Month(month+1), day,
		anchor.Hour(), anchor.Minute(), anchor.Second(), anchor.Nanosecond(), time.UTC)
}

func lastDayOfMonth(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// Prorate scales amountCents by sliceDays/periodDays, rounding half-up to
// whole cents. Non-positive durations prorate to zero.
func Prorate(amountCents int64, periodStart, periodEnd, sliceStart, sliceEnd time.Time) int64 {
	periodDays := daysBetween(periodStart, periodEnd)
	sliceDays := daysBetween(sliceStart, sliceEnd)
	if periodDays <= 0 || sliceDays <= 0 {
		return 0
	}
	amount := decimal.NewFromInt(amountCents).
		Mul(decimal.NewFromInt(sliceDays)).
		Div(decimal.NewFromInt(periodDays))
	return amount.Round(0).IntPart()
}

// daysBetween counts whole days between hour-truncated UTC instants, so a
// few minutes of clock skew inside an hour never changes the count.
func daysBetween(from, to time.Time) int64 {
	from = from.UTC().Truncate(time.Hour)
	to = to.UTC().Truncate(time.Hour)
	return int64(to.Sub(from).Hours()) / 24
}

// InTrial reports whether the subscription is inside its trial at now.
func InTrial(sub subdomain.Subscription, now time.Time) bool {
	if sub.TrialPeriodDays <= 0 || sub.TrialEndedAt != nil {
		return false
	}
	end := TrialEndDate(sub)
	if end == nil {
		return false
	}
	return now.UTC().Before(*end)
}

// TrialEndDate returns the instant the trial lapses, nil when the
// subscription has no trial or no anchor date.
func TrialEndDate(sub subdomain.Subscription) *time.Time {
	if sub.TrialPeriodDays <= 0 {
		return nil
	}
	anchor := sub.Anchor()
	if anchor == nil {
		return nil
	}
	end := anchor.UTC().AddDate(0, 0, int(sub.TrialPeriodDays))
	return &end
}
