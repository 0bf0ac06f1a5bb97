package service

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/splitbook/splitbook/internal/changefeed"
	"github.com/splitbook/splitbook/internal/models"
	"github.com/splitbook/splitbook/internal/storage"
	"github.com/splitbook/splitbook/internal/storage/sqlite"
)

// fixture wires real services over a temp-file sqlite store and an
// in-process change feed, with three registered users.
type fixture struct {
	store     storage.Store
	feed      *changefeed.Memory
	groups    *GroupService
	reconcile *ReconcileService

	alice *models.User
	bob   *models.User
	carol *models.User
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store, err := sqlite.New(filepath.Join(t.TempDir(), "service_test.db"))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	feed := changefeed.NewMemory()
	f := &fixture{
		store:     store,
		feed:      feed,
		groups:    NewGroupService(store, feed),
		reconcile: NewReconcileService(store, feed),
	}

	ctx := context.Background()
	f.alice = &models.User{DisplayName: "Alice", Email: "alice@example.com"}
	f.bob = &models.User{DisplayName: "Bob", Email: "bob@example.com"}
	f.carol = &models.User{DisplayName: "Carol", Email: "carol@example.com"}
	for _, u := range []*models.User{f.alice, f.bob, f.carol} {
		if err := store.CreateUser(ctx, u); err != nil {
			t.Fatalf("failed to create user %s: %v", u.Email, err)
		}
	}
	return f
}

// sharedGroup creates a shared group with alice as creator and the
// given extra users as members.
func (f *fixture) sharedGroup(t *testing.T, extras ...*models.User) *models.Group {
	t.Helper()
	ctx := context.Background()
	group, err := f.groups.Create(ctx, f.alice.ID, "Trip", models.GroupShared)
	if err != nil {
		t.Fatalf("failed to create group: %v", err)
	}
	for _, u := range extras {
		if group, err = f.groups.AddMember(ctx, group.ID, f.alice.ID, u.Email); err != nil {
			t.Fatalf("failed to add %s: %v", u.Email, err)
		}
	}
	return group
}

func amt(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func expenseDraft(payer *models.User, amount string, participants ...*models.User) TransactionDraft {
	d := TransactionDraft{
		Kind:        models.KindExpense,
		Amount:      amt(amount),
		Description: "dinner",
		PayerID:     payer.ID,
	}
	for _, p := range participants {
		d.ParticipantIDs = append(d.ParticipantIDs, p.ID)
	}
	return d
}

func loanDraft(lender, borrower *models.User, amount string) TransactionDraft {
	return TransactionDraft{
		Kind:       models.KindLoan,
		Amount:     amt(amount),
		LenderID:   lender.ID,
		BorrowerID: borrower.ID,
	}
}

func settleDraft(payer, receiver *models.User, amount string) TransactionDraft {
	return TransactionDraft{
		Kind:       models.KindSettleUp,
		Amount:     amt(amount),
		PayerID:    payer.ID,
		ReceiverID: receiver.ID,
	}
}

func checkBalance(t *testing.T, sheet models.BalanceSheet, memberID, want string) {
	t.Helper()
	got, ok := sheet[memberID]
	if !ok {
		t.Fatalf("no balance entry for %s", memberID)
	}
	if !got.Equal(amt(want)) {
		t.Errorf("balance for %s = %s, want %s", memberID, got, want)
	}
}
