// Package seed generates plausible demo data for a fresh installation.
package seed

import (
	"fmt"
	"strings"

	"github.com/brianvoe/gofakeit/v7"

	"ispledger/internal/core"
	"ispledger/internal/store"
)

var (
	areas      = []string{"North Block", "South Block", "Market Road", "Lake View", "Station Para"}
	lineTypes  = []string{"Cat5", "Cat6", "Fiber"}
	clientType = []string{"Home User", "Business", "Corporate"}
)

// Generator produces demo records from a seeded faker, so the same seed
// yields the same data.
type Generator struct {
	faker *gofakeit.Faker
}

func New(seed uint64) *Generator {
	return &Generator{faker: gofakeit.New(seed)}
}

// Clients returns n client inputs with unique usernames. Fees come from
// packages when any are given.
func (g *Generator) Clients(n int, packages []core.BandwidthPackage) []store.ClientInput {
	out := make([]store.ClientInput, 0, n)
	seen := make(map[string]struct{}, n)
	for len(out) < n {
		username := strings.ToLower(g.faker.Username())
		if _, dup := seen[username]; dup {
			username = fmt.Sprintf("%s%d", username, len(out))
		}
		seen[username] = struct{}{}

		in := store.ClientInput{
			Username:      username,
			Name:          g.faker.Name(),
			ContactNumber: g.faker.Phone(),
			FullAddress:   g.faker.Street() + ", " + g.faker.City(),
			Area:          g.faker.RandomString(areas),
			LineType:      g.faker.RandomString(lineTypes),
			ClientType:    g.faker.RandomString(clientType),
		}
		if len(packages) > 0 {
			pkg := packages[g.faker.IntRange(0, len(packages)-1)]
			in.BandwidthPackage = pkg.Name
			in.BaseMonthlyFee = pkg.Price
		} else {
			in.BaseMonthlyFee = core.NewMoney(int64(g.faker.IntRange(5, 20) * 100))
		}
		out = append(out, in)
	}
	return out
}

// Expenses returns n debits dated within monthKey.
func (g *Generator) Expenses(n int, monthKey string) ([]store.ExpenseInput, error) {
	if _, err := core.ParseMonthKey(monthKey); err != nil {
		return nil, err
	}
	out := make([]store.ExpenseInput, 0, n)
	for range n {
		category := g.faker.RandomString(core.ExpenseCategories)
		out = append(out, store.ExpenseInput{
			Date:        fmt.Sprintf("%s-%02d", monthKey, g.faker.IntRange(1, 28)),
			Amount:      core.NewMoney(int64(g.faker.IntRange(2, 50) * 100)),
			Type:        core.Debit,
			Category:    category,
			Description: category + " - " + g.faker.Company(),
		})
	}
	return out, nil
}
