package ledger

import (
	"github.com/shopspring/decimal"

	"github.com/splitbook/splitbook/internal/models"
)

// MinorUnits converts an amount to integer cents. The second return is
// false when the amount carries more than two fractional digits and
// cannot be represented exactly.
func MinorUnits(d decimal.Decimal) (int64, bool) {
	shifted := d.Shift(2)
	if !shifted.IsInteger() {
		return 0, false
	}
	return shifted.IntPart(), true
}

// Effective reports whether a transaction contributes to balances:
// archived records are excluded, and two-party kinds count only once
// accepted. A pending loan is a proposal, not a fact; a rejected one
// never happened.
func Effective(t *models.Transaction) bool {
	if t.IsArchived {
		return false
	}
	if t.Kind.RequiresConfirmation() {
		return t.Status == models.StatusCompleted
	}
	return true
}

// ComputeBalances folds a group's transactions into a balance sheet.
// The fold is pure, commutative per kind, and runs in integer minor units
// so the shared-group zero-sum invariant holds exactly.
//
// Equal splits that do not divide evenly assign the remainder cents to
// the payer (expense) or receiver (income), deterministically preserving
// zero-sum.
//
// A transaction referencing a member absent from the roster yields an
// integrity error: silently skipping the record would corrupt balances
// undetected.
func ComputeBalances(group *models.Group, txns []*models.Transaction) (models.BalanceSheet, error) {
	cents := make(map[string]int64, len(group.Members))
	for _, m := range group.Members {
		cents[m.ID] = 0
	}

	for _, t := range txns {
		if !Effective(t) {
			continue
		}
		amount, ok := MinorUnits(t.Amount)
		if !ok {
			return nil, Integrityf("transaction %s: amount %s is not representable in minor units", t.ID, t.Amount)
		}
		for _, r := range t.Roles() {
			if _, member := cents[r.ID]; !member {
				return nil, Integrityf("transaction %s references non-member %s", t.ID, r.ID)
			}
		}

		var err error
		if group.Kind == models.GroupPersonal {
			err = applyPersonal(cents, t, amount)
		} else {
			err = applyShared(cents, t, amount)
		}
		if err != nil {
			return nil, err
		}
	}

	sheet := make(models.BalanceSheet, len(cents))
	for id, c := range cents {
		sheet[id] = decimal.New(c, -2)
	}
	return sheet, nil
}

// applyShared applies one transaction to a shared group's fold.
func applyShared(cents map[string]int64, t *models.Transaction, amount int64) error {
	switch t.Kind {
	case models.KindExpense:
		n := int64(len(t.Participants))
		if n == 0 {
			return Integrityf("transaction %s: expense with no participants", t.ID)
		}
		share := amount / n
		rem := amount - share*n
		cents[t.Payer.ID] += amount - rem
		for _, p := range t.Participants {
			cents[p.ID] -= share
		}
	case models.KindIncome:
		n := int64(len(t.Participants))
		if n == 0 {
			return Integrityf("transaction %s: income with no participants", t.ID)
		}
		share := amount / n
		rem := amount - share*n
		cents[t.Receiver.ID] -= amount - rem
		for _, p := range t.Participants {
			cents[p.ID] += share
		}
	case models.KindLoan:
		cents[t.Lender.ID] += amount
		cents[t.Borrower.ID] -= amount
	case models.KindSettleUp:
		cents[t.Payer.ID] += amount
		cents[t.Receiver.ID] -= amount
	default:
		return Integrityf("transaction %s: unknown kind %q", t.ID, t.Kind)
	}
	return nil
}

// applyPersonal applies one transaction to a personal group's single
// net-worth entry: spending decreases it, income increases it. The
// two-party kinds never reach here; submission rejects them for personal
// groups.
func applyPersonal(cents map[string]int64, t *models.Transaction, amount int64) error {
	switch t.Kind {
	case models.KindExpense:
		cents[t.Payer.ID] -= amount
	case models.KindIncome:
		cents[t.Receiver.ID] += amount
	default:
		return Integrityf("transaction %s: kind %q not allowed in a personal group", t.ID, t.Kind)
	}
	return nil
}
