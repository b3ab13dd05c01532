// Package usage reports embedding token consumption against the
// configured budget windows.
package usage

import (
	"context"
	"time"
)

// Period selects a reporting window.
type Period string

// Reporting windows.
const (
	PeriodDay   Period = "day"
	PeriodMonth Period = "month"
)

// Report is one window's token consumption. Remaining is -1 when the
// window is unlimited; ResetsAt is the window end in unix milliseconds.
type Report struct {
	Period      Period `json:"period"`
	PeriodStart int64  `json:"period_start"`
	PeriodEnd   int64  `json:"period_end"`
	TokensLimit int64  `json:"tokens_limit"`
	TokensUsed  int64  `json:"tokens_used"`
	Remaining   int64  `json:"tokens_remaining"`
	Exhausted   bool   `json:"exhausted"`
	ResetsAt    int64  `json:"resets_at"`
}

// Service handles usage reporting.
type Service struct {
	br BudgetReader
}

// New creates a Service. br can be nil (unlimited mode).
func New(br BudgetReader) *Service {
	return &Service{br: br}
}

// GetReport builds a usage report for the given period. Unknown periods
// fall back to the monthly window.
func (s *Service) GetReport(_ context.Context, period Period) Report {
	now := time.Now().UTC()
	r := Report{Period: period}

	switch period {
	case PeriodDay:
		start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
		r.PeriodStart = start.UnixMilli()
		r.PeriodEnd = start.Add(24 * time.Hour).UnixMilli()
		if s.br != nil {
			r.TokensLimit = s.br.DailyLimit()
			r.TokensUsed = s.br.DailyUsed()
			r.Remaining = s.br.RemainingDaily()
		}
	default:
		r.Period = PeriodMonth
		start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
		r.PeriodStart = start.UnixMilli()
		r.PeriodEnd = start.AddDate(0, 1, 0).UnixMilli()
		if s.br != nil {
			r.TokensLimit = s.br.MonthlyLimit()
			r.TokensUsed = s.br.MonthlyUsed()
			r.Remaining = s.br.RemainingMonthly()
		}
	}

	if s.br == nil {
		r.Remaining = -1
	}
	r.Exhausted = r.TokensLimit > 0 && r.Remaining == 0
	r.ResetsAt = r.PeriodEnd
	return r
}
