package invoice

import (
	"time"

	"recurring-billing/internal/domain/schedule"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// SurchargeTerms carries a schedule's overdue penalty configuration.
// Percentages are only read when their apply flag is set.
type SurchargeTerms struct {
	ApplyLateFee            bool
	LateFeePercentage       decimal.Decimal
	ApplyDailyInterest      bool
	DailyInterestPercentage decimal.Decimal
}

// TermsFromSchedule lifts the penalty fields off a billing schedule.
func TermsFromSchedule(s *schedule.BillingSchedule) SurchargeTerms {
	return SurchargeTerms{
		ApplyLateFee:            s.ApplyLateFee,
		LateFeePercentage:       s.LateFeePercentage,
		ApplyDailyInterest:      s.ApplyDailyInterest,
		DailyInterestPercentage: s.DailyInterestPercentage,
	}
}

// OverdueSurcharge computes the penalty owed on an invoice as of a given date.
//
// The late fee is flat: a single percentage of the amount, charged once the
// invoice is a day late, regardless of how late. Daily interest is simple,
// never compounding: percentage of the amount per day late. On or before the
// due date both are zero.
func OverdueSurcharge(amount decimal.Decimal, dueDate, asOf time.Time, terms SurchargeTerms) decimal.Decimal {
	daysLate := schedule.DaysBetween(dueDate, asOf)
	if daysLate <= 0 {
		return decimal.Zero
	}

	surcharge := decimal.Zero
	if terms.ApplyLateFee {
		surcharge = surcharge.Add(amount.Mul(terms.LateFeePercentage).Div(hundred))
	}
	if terms.ApplyDailyInterest {
		daily := amount.Mul(terms.DailyInterestPercentage).Div(hundred)
		surcharge = surcharge.Add(daily.Mul(decimal.NewFromInt(int64(daysLate))))
	}
	return surcharge.Round(2)
}
