package usage

import (
	"context"
	"testing"
	"time"
)

type mockBudgetReader struct {
	dailyLimit       int64
	monthlyLimit     int64
	dailyUsed        int64
	monthlyUsed      int64
	remainingDaily   int64
	remainingMonthly int64
}

func (m *mockBudgetReader) DailyLimit() int64       { return m.dailyLimit }
func (m *mockBudgetReader) MonthlyLimit() int64     { return m.monthlyLimit }
func (m *mockBudgetReader) DailyUsed() int64        { return m.dailyUsed }
func (m *mockBudgetReader) MonthlyUsed() int64      { return m.monthlyUsed }
func (m *mockBudgetReader) RemainingDaily() int64   { return m.remainingDaily }
func (m *mockBudgetReader) RemainingMonthly() int64 { return m.remainingMonthly }

func TestGetReport_DailyPeriod(t *testing.T) {
	br := &mockBudgetReader{
		dailyLimit:     10000,
		dailyUsed:      3000,
		remainingDaily: 7000,
	}
	r := New(br).GetReport(context.Background(), PeriodDay)

	if r.Period != PeriodDay {
		t.Errorf("period = %q, want %q", r.Period, PeriodDay)
	}
	now := time.Now().UTC()
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	if r.PeriodStart != dayStart.UnixMilli() {
		t.Errorf("period start = %d, want %d", r.PeriodStart, dayStart.UnixMilli())
	}
	if r.PeriodEnd != dayStart.Add(24*time.Hour).UnixMilli() {
		t.Errorf("period end = %d", r.PeriodEnd)
	}
	if r.TokensLimit != 10000 || r.TokensUsed != 3000 || r.Remaining != 7000 {
		t.Errorf("budget = %+v", r)
	}
	if r.Exhausted {
		t.Error("not exhausted at 3000/10000")
	}
	if r.ResetsAt != r.PeriodEnd {
		t.Errorf("resets_at = %d, want period end %d", r.ResetsAt, r.PeriodEnd)
	}
}

func TestGetReport_MonthlyPeriod(t *testing.T) {
	br := &mockBudgetReader{
		monthlyLimit:     100000,
		monthlyUsed:      100000,
		remainingMonthly: 0,
	}
	r := New(br).GetReport(context.Background(), PeriodMonth)

	if r.Period != PeriodMonth {
		t.Errorf("period = %q, want %q", r.Period, PeriodMonth)
	}
	if !r.Exhausted {
		t.Error("expected exhausted at 100000/100000")
	}
	now := time.Now().UTC()
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	if r.PeriodStart != monthStart.UnixMilli() {
		t.Errorf("period start = %d, want %d", r.PeriodStart, monthStart.UnixMilli())
	}
}

func TestGetReport_UnknownPeriodFallsBackToMonth(t *testing.T) {
	r := New(&mockBudgetReader{monthlyLimit: 5}).GetReport(context.Background(), Period("year"))
	if r.Period != PeriodMonth {
		t.Errorf("period = %q, want fallback to %q", r.Period, PeriodMonth)
	}
}

func TestGetReport_NilReader(t *testing.T) {
	r := New(nil).GetReport(context.Background(), PeriodDay)
	if r.TokensLimit != 0 || r.TokensUsed != 0 {
		t.Errorf("unlimited mode should report zero limit/used, got %+v", r)
	}
	if r.Remaining != -1 {
		t.Errorf("remaining = %d, want -1 (unlimited)", r.Remaining)
	}
	if r.Exhausted {
		t.Error("unlimited mode can never be exhausted")
	}
}
