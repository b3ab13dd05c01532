package usage

// BudgetReader exposes the embedding budget counters for reporting.
// The budget tracker in usecase/embedding satisfies it.
type BudgetReader interface {
	DailyLimit() int64
	MonthlyLimit() int64
	DailyUsed() int64
	MonthlyUsed() int64
	RemainingDaily() int64
	RemainingMonthly() int64
}
