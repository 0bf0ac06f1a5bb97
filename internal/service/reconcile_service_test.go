package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/splitbook/splitbook/internal/ledger"
	"github.com/splitbook/splitbook/internal/models"
	"github.com/splitbook/splitbook/internal/storage"
)

func TestSubmitValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	group := f.sharedGroup(t, f.bob)

	tests := []struct {
		name    string
		actor   string
		draft   TransactionDraft
		wantErr error
	}{
		{
			name:    "unknown kind",
			actor:   f.alice.ID,
			draft:   TransactionDraft{Kind: "transfer", Amount: amt("10")},
			wantErr: ledger.ErrValidation,
		},
		{
			name:    "zero amount",
			actor:   f.alice.ID,
			draft:   expenseDraft(f.alice, "0", f.alice, f.bob),
			wantErr: ledger.ErrValidation,
		},
		{
			name:    "negative amount",
			actor:   f.alice.ID,
			draft:   expenseDraft(f.alice, "-5", f.alice, f.bob),
			wantErr: ledger.ErrValidation,
		},
		{
			name:    "sub-cent amount",
			actor:   f.alice.ID,
			draft:   expenseDraft(f.alice, "10.005", f.alice, f.bob),
			wantErr: ledger.ErrValidation,
		},
		{
			name:    "no participants",
			actor:   f.alice.ID,
			draft:   TransactionDraft{Kind: models.KindExpense, Amount: amt("10"), PayerID: f.alice.ID},
			wantErr: ledger.ErrValidation,
		},
		{
			name:    "duplicate participant",
			actor:   f.alice.ID,
			draft:   expenseDraft(f.alice, "10", f.bob, f.bob),
			wantErr: ledger.ErrValidation,
		},
		{
			name:    "payer outside roster",
			actor:   f.alice.ID,
			draft:   expenseDraft(f.carol, "10", f.alice, f.bob),
			wantErr: ledger.ErrNotMember,
		},
		{
			name:    "participant outside roster",
			actor:   f.alice.ID,
			draft:   expenseDraft(f.alice, "10", f.alice, f.carol),
			wantErr: ledger.ErrNotMember,
		},
		{
			name:    "actor outside roster",
			actor:   f.carol.ID,
			draft:   expenseDraft(f.alice, "10", f.alice, f.bob),
			wantErr: ledger.ErrForbidden,
		},
		{
			name:    "loan to self",
			actor:   f.alice.ID,
			draft:   loanDraft(f.alice, f.alice, "10"),
			wantErr: ledger.ErrValidation,
		},
		{
			name:    "settle up to self",
			actor:   f.alice.ID,
			draft:   settleDraft(f.bob, f.bob, "10"),
			wantErr: ledger.ErrValidation,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.reconcile.Submit(ctx, group.ID, tt.actor, tt.draft)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Submit() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestSubmitPersonalGroupRejectsTwoPartyKinds(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	group, err := f.groups.Create(ctx, f.alice.ID, "Wallet", models.GroupPersonal)
	if err != nil {
		t.Fatalf("failed to create personal group: %v", err)
	}

	for _, draft := range []TransactionDraft{
		loanDraft(f.alice, f.bob, "10"),
		settleDraft(f.alice, f.bob, "10"),
	} {
		if _, err := f.reconcile.Submit(ctx, group.ID, f.alice.ID, draft); !errors.Is(err, ledger.ErrValidation) {
			t.Errorf("Submit(%s) error = %v, want %v", draft.Kind, err, ledger.ErrValidation)
		}
	}
}

func TestSubmitFreezesRoleSnapshots(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	group := f.sharedGroup(t, f.bob)

	txn, err := f.reconcile.Submit(ctx, group.ID, f.alice.ID, expenseDraft(f.alice, "60", f.alice, f.bob))
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if txn.ID == "" || txn.CreatedAt == 0 {
		t.Error("expected store-assigned id and createdAt")
	}
	if txn.Status != "" {
		t.Errorf("expense status = %q, want empty", txn.Status)
	}
	if txn.Payer == nil || txn.Payer.DisplayName != "Alice" {
		t.Errorf("payer snapshot = %+v, want Alice's profile", txn.Payer)
	}
	if len(txn.Participants) != 2 || txn.Participants[1].DisplayName != "Bob" {
		t.Errorf("participants = %+v, want frozen Alice and Bob", txn.Participants)
	}
	if txn.Initiator.ID != f.alice.ID {
		t.Errorf("initiator = %s, want %s", txn.Initiator.ID, f.alice.ID)
	}
}

func TestExpenseAffectsBalancesImmediately(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	group := f.sharedGroup(t, f.bob)

	if _, err := f.reconcile.Submit(ctx, group.ID, f.alice.ID, expenseDraft(f.alice, "100.00", f.alice, f.bob)); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	sheet, err := f.reconcile.Balances(ctx, group.ID)
	if err != nil {
		t.Fatalf("Balances() error = %v", err)
	}
	checkBalance(t, sheet, f.alice.ID, "50.00")
	checkBalance(t, sheet, f.bob.ID, "-50.00")
}

func TestLoanLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	group := f.sharedGroup(t, f.bob)

	txn, err := f.reconcile.Submit(ctx, group.ID, f.alice.ID, loanDraft(f.alice, f.bob, "40"))
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if txn.Status != models.StatusPending {
		t.Fatalf("loan status = %q, want %q", txn.Status, models.StatusPending)
	}

	// Pending: balance-neutral.
	sheet, err := f.reconcile.Balances(ctx, group.ID)
	if err != nil {
		t.Fatalf("Balances() error = %v", err)
	}
	checkBalance(t, sheet, f.alice.ID, "0.00")
	checkBalance(t, sheet, f.bob.ID, "0.00")

	// Only the counterparty may accept.
	if _, err := f.reconcile.Accept(ctx, group.ID, txn.ID, f.alice.ID); !errors.Is(err, ledger.ErrForbidden) {
		t.Errorf("Accept by initiator error = %v, want %v", err, ledger.ErrForbidden)
	}

	accepted, err := f.reconcile.Accept(ctx, group.ID, txn.ID, f.bob.ID)
	if err != nil {
		t.Fatalf("Accept() error = %v", err)
	}
	if accepted.Status != models.StatusCompleted || accepted.AcceptedAt == 0 {
		t.Errorf("accepted = status %q acceptedAt %d, want completed with timestamp", accepted.Status, accepted.AcceptedAt)
	}

	sheet, err = f.reconcile.Balances(ctx, group.ID)
	if err != nil {
		t.Fatalf("Balances() error = %v", err)
	}
	checkBalance(t, sheet, f.alice.ID, "40.00")
	checkBalance(t, sheet, f.bob.ID, "-40.00")

	// Accepting a completed transaction is an invalid transition.
	if _, err := f.reconcile.Accept(ctx, group.ID, txn.ID, f.bob.ID); !errors.Is(err, ledger.ErrInvalidTransition) {
		t.Errorf("second Accept error = %v, want %v", err, ledger.ErrInvalidTransition)
	}
}

func TestRejectThenReRequest(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	group := f.sharedGroup(t, f.bob)

	txn, err := f.reconcile.Submit(ctx, group.ID, f.alice.ID, settleDraft(f.alice, f.bob, "25.50"))
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if _, err := f.reconcile.Reject(ctx, group.ID, txn.ID, f.bob.ID); err != nil {
		t.Fatalf("Reject() error = %v", err)
	}

	// Only the initiator may re-request.
	if _, err := f.reconcile.ReRequest(ctx, group.ID, txn.ID, f.bob.ID); !errors.Is(err, ledger.ErrForbidden) {
		t.Errorf("ReRequest by counterparty error = %v, want %v", err, ledger.ErrForbidden)
	}

	fresh, err := f.reconcile.ReRequest(ctx, group.ID, txn.ID, f.alice.ID)
	if err != nil {
		t.Fatalf("ReRequest() error = %v", err)
	}
	if fresh.ID == txn.ID {
		t.Error("re-request must create a new record, got same id")
	}
	if fresh.Status != models.StatusPending {
		t.Errorf("fresh status = %q, want %q", fresh.Status, models.StatusPending)
	}
	if !fresh.Amount.Equal(txn.Amount) {
		t.Errorf("fresh amount = %s, want %s", fresh.Amount, txn.Amount)
	}

	// The rejected original survives for the audit trail.
	original, err := f.store.GetTransaction(ctx, group.ID, txn.ID)
	if err != nil {
		t.Fatalf("GetTransaction() error = %v", err)
	}
	if original.Status != models.StatusRejected {
		t.Errorf("original status = %q, want %q", original.Status, models.StatusRejected)
	}

	// Rejected transactions never affect balances.
	sheet, err := f.reconcile.Balances(ctx, group.ID)
	if err != nil {
		t.Fatalf("Balances() error = %v", err)
	}
	checkBalance(t, sheet, f.alice.ID, "0.00")
	checkBalance(t, sheet, f.bob.ID, "0.00")
}

func TestArchiveExcludesFromBalances(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	group := f.sharedGroup(t, f.bob)

	txn, err := f.reconcile.Submit(ctx, group.ID, f.alice.ID, expenseDraft(f.alice, "100", f.alice, f.bob))
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	if _, err := f.reconcile.Archive(ctx, group.ID, txn.ID, f.bob.ID); !errors.Is(err, ledger.ErrForbidden) {
		t.Errorf("Archive by non-initiator error = %v, want %v", err, ledger.ErrForbidden)
	}
	if _, err := f.reconcile.Archive(ctx, group.ID, txn.ID, f.alice.ID); err != nil {
		t.Fatalf("Archive() error = %v", err)
	}

	sheet, err := f.reconcile.Balances(ctx, group.ID)
	if err != nil {
		t.Fatalf("Balances() error = %v", err)
	}
	checkBalance(t, sheet, f.alice.ID, "0.00")
	checkBalance(t, sheet, f.bob.ID, "0.00")

	// Archived records are hidden from the default listing but reachable
	// when explicitly requested.
	visible, err := f.reconcile.List(ctx, group.ID, f.alice.ID, false)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(visible) != 0 {
		t.Errorf("default listing has %d transactions, want 0", len(visible))
	}
	all, err := f.reconcile.List(ctx, group.ID, f.alice.ID, true)
	if err != nil {
		t.Fatalf("List(includeArchived) error = %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("full listing has %d transactions, want 1", len(all))
	}

	if _, err := f.reconcile.Unarchive(ctx, group.ID, txn.ID, f.alice.ID); err != nil {
		t.Fatalf("Unarchive() error = %v", err)
	}
	sheet, err = f.reconcile.Balances(ctx, group.ID)
	if err != nil {
		t.Fatalf("Balances() error = %v", err)
	}
	checkBalance(t, sheet, f.alice.ID, "50.00")
	checkBalance(t, sheet, f.bob.ID, "-50.00")
}

func TestEditMutableFieldsOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	group := f.sharedGroup(t, f.bob)

	txn, err := f.reconcile.Submit(ctx, group.ID, f.alice.ID, expenseDraft(f.alice, "30", f.alice, f.bob))
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	desc := "groceries"
	newAmount := amt("45.10")
	if _, err := f.reconcile.Edit(ctx, group.ID, txn.ID, f.bob.ID, TransactionEdit{Description: &desc}); !errors.Is(err, ledger.ErrForbidden) {
		t.Errorf("Edit by non-initiator error = %v, want %v", err, ledger.ErrForbidden)
	}

	edited, err := f.reconcile.Edit(ctx, group.ID, txn.ID, f.alice.ID, TransactionEdit{Description: &desc, Amount: &newAmount})
	if err != nil {
		t.Fatalf("Edit() error = %v", err)
	}
	if edited.Description != desc || !edited.Amount.Equal(newAmount) {
		t.Errorf("edited = %q %s, want %q %s", edited.Description, edited.Amount, desc, newAmount)
	}
	if edited.UpdatedAt == 0 {
		t.Error("expected updatedAt to be set")
	}

	bad := amt("1.005")
	if _, err := f.reconcile.Edit(ctx, group.ID, txn.ID, f.alice.ID, TransactionEdit{Amount: &bad}); !errors.Is(err, ledger.ErrValidation) {
		t.Errorf("Edit with sub-cent amount error = %v, want %v", err, ledger.ErrValidation)
	}
}

func TestDeleteRemovesBalanceContribution(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	group := f.sharedGroup(t, f.bob)

	txn, err := f.reconcile.Submit(ctx, group.ID, f.alice.ID, expenseDraft(f.alice, "100", f.alice, f.bob))
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if err := f.reconcile.Delete(ctx, group.ID, txn.ID, f.bob.ID); !errors.Is(err, ledger.ErrForbidden) {
		t.Errorf("Delete by non-initiator error = %v, want %v", err, ledger.ErrForbidden)
	}
	if err := f.reconcile.Delete(ctx, group.ID, txn.ID, f.alice.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := f.store.GetTransaction(ctx, group.ID, txn.ID); !errors.Is(err, ledger.ErrNotFound) {
		t.Errorf("GetTransaction after delete error = %v, want %v", err, ledger.ErrNotFound)
	}

	sheet, err := f.reconcile.Balances(ctx, group.ID)
	if err != nil {
		t.Fatalf("Balances() error = %v", err)
	}
	checkBalance(t, sheet, f.alice.ID, "0.00")
	checkBalance(t, sheet, f.bob.ID, "0.00")
}

func TestReportFilters(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	group := f.sharedGroup(t, f.bob)

	card := expenseDraft(f.alice, "10", f.alice, f.bob)
	card.PaymentMethod = "card"
	cash := expenseDraft(f.bob, "20", f.alice, f.bob)
	cash.PaymentMethod = "cash"
	loanTxn := loanDraft(f.alice, f.bob, "30")

	first, err := f.reconcile.Submit(ctx, group.ID, f.alice.ID, card)
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	second, err := f.reconcile.Submit(ctx, group.ID, f.bob.ID, cash)
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	third, err := f.reconcile.Submit(ctx, group.ID, f.alice.ID, loanTxn)
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	// Non-members cannot run reports.
	if _, err := f.reconcile.Report(ctx, group.ID, f.carol.ID, storage.TransactionFilter{}); !errors.Is(err, ledger.ErrForbidden) {
		t.Errorf("Report by non-member error = %v, want %v", err, ledger.ErrForbidden)
	}

	tests := []struct {
		name   string
		filter storage.TransactionFilter
		want   []string
	}{
		{
			name:   "all newest first",
			filter: storage.TransactionFilter{},
			want:   []string{third.ID, second.ID, first.ID},
		},
		{
			name:   "by kind",
			filter: storage.TransactionFilter{Kinds: []models.TransactionKind{models.KindLoan}},
			want:   []string{third.ID},
		},
		{
			name:   "by initiator",
			filter: storage.TransactionFilter{Initiators: []string{f.bob.ID}},
			want:   []string{second.ID},
		},
		{
			name:   "by payment method",
			filter: storage.TransactionFilter{PaymentMethods: []string{"cash"}},
			want:   []string{second.ID},
		},
		{
			name: "kind and initiator combined",
			filter: storage.TransactionFilter{
				Kinds:      []models.TransactionKind{models.KindExpense},
				Initiators: []string{f.alice.ID},
			},
			want: []string{first.ID},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := f.reconcile.Report(ctx, group.ID, f.alice.ID, tt.filter)
			if err != nil {
				t.Fatalf("Report() error = %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("Report() returned %d transactions, want %d", len(got), len(tt.want))
			}
			for i, txn := range got {
				if txn.ID != tt.want[i] {
					t.Errorf("Report()[%d] = %s, want %s", i, txn.ID, tt.want[i])
				}
			}
		})
	}
}

func TestPersonalGroupNetWorth(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	group, err := f.groups.Create(ctx, f.alice.ID, "Wallet", models.GroupPersonal)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	if _, err := f.reconcile.Submit(ctx, group.ID, f.alice.ID, TransactionDraft{
		Kind: models.KindIncome, Amount: amt("1500.75"), ReceiverID: f.alice.ID,
	}); err != nil {
		t.Fatalf("Submit(income) error = %v", err)
	}
	if _, err := f.reconcile.Submit(ctx, group.ID, f.alice.ID, TransactionDraft{
		Kind: models.KindExpense, Amount: amt("199.99"), PayerID: f.alice.ID,
	}); err != nil {
		t.Fatalf("Submit(expense) error = %v", err)
	}

	sheet, err := f.reconcile.Balances(ctx, group.ID)
	if err != nil {
		t.Fatalf("Balances() error = %v", err)
	}
	checkBalance(t, sheet, f.alice.ID, "1300.76")
}

func TestWatchBalancesDeliversUpdates(t *testing.T) {
	f := newFixture(t)
	ctx, cancelCtx := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelCtx()
	group := f.sharedGroup(t, f.bob)

	updates, cancel, err := f.reconcile.WatchBalances(ctx, group.ID)
	if err != nil {
		t.Fatalf("WatchBalances() error = %v", err)
	}
	defer cancel()

	// Initial snapshot arrives without any change.
	sheet := <-updates
	checkBalance(t, sheet, f.alice.ID, "0.00")

	if _, err := f.reconcile.Submit(ctx, group.ID, f.alice.ID, expenseDraft(f.alice, "100", f.alice, f.bob)); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	sheet = <-updates
	checkBalance(t, sheet, f.alice.ID, "50.00")
	checkBalance(t, sheet, f.bob.ID, "-50.00")

	cancel()
	// Cancellation drains into a closed channel.
	for range updates {
	}
}

func TestWatchBalancesUnknownGroup(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if _, _, err := f.reconcile.WatchBalances(ctx, "missing"); !errors.Is(err, ledger.ErrNotFound) {
		t.Errorf("WatchBalances() error = %v, want %v", err, ledger.ErrNotFound)
	}
}
