package models

import "github.com/shopspring/decimal"

// BalanceSheet maps member IDs to signed net balances: positive means the
// member is owed money, negative means they owe. It is derived, never
// persisted, and recomputed from scratch on every observed change to the
// group's effective transaction set.
type BalanceSheet map[string]decimal.Decimal

// Sum returns the total of all entries. For shared groups this must be
// exactly zero; personal sheets carry a single net-worth entry with no
// such constraint.
func (b BalanceSheet) Sum() decimal.Decimal {
	sum := decimal.Zero
	for _, v := range b {
		sum = sum.Add(v)
	}
	return sum
}

// Equal reports whether two sheets have identical entries.
func (b BalanceSheet) Equal(other BalanceSheet) bool {
	if len(b) != len(other) {
		return false
	}
	for id, v := range b {
		ov, ok := other[id]
		if !ok || !v.Equal(ov) {
			return false
		}
	}
	return true
}
