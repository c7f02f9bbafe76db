package core

// CategoryAmount represents an amount aggregated by category name.
type CategoryAmount struct {
	Name   string `json:"name"`
	Amount Money  `json:"amount"`
}

// MonthOverview is a compact ledger summary for a specific month.
type MonthOverview struct {
	MonthKey        string           `json:"monthKey"`
	TotalCredit     Money            `json:"totalCredit"`
	TotalDebit      Money            `json:"totalDebit"`
	Net             Money            `json:"net"`
	DebitByCategory []CategoryAmount `json:"debitByCategory"`
}
