// Package service orchestrates the domain: the reconciliation service is
// the only component that mutates transactions and the only trigger for
// balance recomputation; the group service owns rosters.
package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/splitbook/splitbook/internal/changefeed"
	"github.com/splitbook/splitbook/internal/ledger"
	"github.com/splitbook/splitbook/internal/metrics"
	"github.com/splitbook/splitbook/internal/models"
	"github.com/splitbook/splitbook/internal/storage"
)

// TransactionDraft is the caller's description of a new transaction.
// Role references are member IDs; the service freezes them into role
// snapshots from the current roster.
type TransactionDraft struct {
	Kind          models.TransactionKind `json:"kind"`
	Amount        decimal.Decimal        `json:"amount"`
	Description   string                 `json:"description"`
	Category      string                 `json:"category"`
	PaymentMethod string                 `json:"paymentMethod"`

	PayerID        string   `json:"payerId,omitempty"`
	ReceiverID     string   `json:"receiverId,omitempty"`
	LenderID       string   `json:"lenderId,omitempty"`
	BorrowerID     string   `json:"borrowerId,omitempty"`
	ParticipantIDs []string `json:"participantIds,omitempty"`
}

// TransactionEdit carries the mutable detail fields; nil means leave
// unchanged. Role fields and kind are deliberately absent.
type TransactionEdit struct {
	Description   *string          `json:"description,omitempty"`
	Amount        *decimal.Decimal `json:"amount,omitempty"`
	Category      *string          `json:"category,omitempty"`
	PaymentMethod *string          `json:"paymentMethod,omitempty"`
}

// ReconcileService validates, persists and transitions transactions, and
// recomputes balances when the underlying set changes. Every mutation
// ends with a change notification on the feed; recomputation is always a
// full recompute so a missed delta can never make a balance drift.
type ReconcileService struct {
	store storage.Store
	feed  changefeed.Feed
}

// NewReconcileService creates a ReconcileService over the given store
// and change feed.
func NewReconcileService(store storage.Store, feed changefeed.Feed) *ReconcileService {
	return &ReconcileService{store: store, feed: feed}
}

// Submit validates a draft against the group, freezes role snapshots,
// persists the transaction and notifies subscribers. Two-party kinds
// start pending; expenses and incomes are effective immediately.
func (s *ReconcileService) Submit(ctx context.Context, groupID, actorID string, draft TransactionDraft) (*models.Transaction, error) {
	group, err := s.store.GetGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if !group.HasMember(actorID) {
		return nil, ledger.Forbiddenf("member %s does not belong to group %s", actorID, groupID)
	}

	txn, err := buildTransaction(group, actorID, draft)
	if err != nil {
		return nil, err
	}

	if err := s.store.CreateTransaction(ctx, txn); err != nil {
		return nil, err
	}
	metrics.TransactionsSubmitted.WithLabelValues(string(txn.Kind)).Inc()
	slog.Info("transaction submitted",
		"group_id", groupID, "transaction_id", txn.ID, "kind", txn.Kind, "amount", txn.Amount)
	s.feed.Publish(groupID)
	return txn, nil
}

// buildTransaction validates the draft and produces a persistable
// transaction with frozen role snapshots.
func buildTransaction(group *models.Group, actorID string, draft TransactionDraft) (*models.Transaction, error) {
	if !draft.Kind.Valid() {
		return nil, ledger.Validationf("unknown transaction kind %q", draft.Kind)
	}
	if !draft.Amount.IsPositive() {
		return nil, ledger.Validationf("amount must be positive, got %s", draft.Amount)
	}
	if _, ok := ledger.MinorUnits(draft.Amount); !ok {
		return nil, ledger.Validationf("amount %s has more than two decimal places", draft.Amount)
	}
	if group.Kind == models.GroupPersonal && draft.Kind.RequiresConfirmation() {
		return nil, ledger.Validationf("kind %q is not allowed in a personal group", draft.Kind)
	}

	// snapshot resolves a member ID against the current roster, freezing
	// the display profile as of creation time.
	snapshot := func(role, memberID string) (*models.RoleSnapshot, error) {
		if memberID == "" {
			return nil, ledger.Validationf("%s is required for kind %q", role, draft.Kind)
		}
		m, ok := group.MemberByID(memberID)
		if !ok {
			return nil, ledger.NotMemberf("%s %s is not a member of group %s", role, memberID, group.ID)
		}
		snap := m.Snapshot()
		return &snap, nil
	}

	initiator, err := snapshot("initiator", actorID)
	if err != nil {
		return nil, err
	}
	txn := &models.Transaction{
		GroupID:       group.ID,
		Kind:          draft.Kind,
		Amount:        draft.Amount,
		Description:   draft.Description,
		Category:      draft.Category,
		PaymentMethod: draft.PaymentMethod,
		Initiator:     *initiator,
	}

	// Personal groups have no split: the payer or receiver is the whole
	// story and a participant list is not required.
	participants := func() error {
		if len(draft.ParticipantIDs) == 0 {
			if group.Kind == models.GroupPersonal {
				return nil
			}
			return ledger.Validationf("participants are required for kind %q", draft.Kind)
		}
		seen := make(map[string]bool, len(draft.ParticipantIDs))
		for _, id := range draft.ParticipantIDs {
			if seen[id] {
				return ledger.Validationf("duplicate participant %s", id)
			}
			seen[id] = true
			snap, err := snapshot("participant", id)
			if err != nil {
				return err
			}
			txn.Participants = append(txn.Participants, *snap)
		}
		return nil
	}

	switch draft.Kind {
	case models.KindExpense:
		if txn.Payer, err = snapshot("payer", draft.PayerID); err != nil {
			return nil, err
		}
		if err := participants(); err != nil {
			return nil, err
		}
	case models.KindIncome:
		if txn.Receiver, err = snapshot("receiver", draft.ReceiverID); err != nil {
			return nil, err
		}
		if err := participants(); err != nil {
			return nil, err
		}
	case models.KindLoan:
		if txn.Lender, err = snapshot("lender", draft.LenderID); err != nil {
			return nil, err
		}
		if txn.Borrower, err = snapshot("borrower", draft.BorrowerID); err != nil {
			return nil, err
		}
		if draft.LenderID == draft.BorrowerID {
			return nil, ledger.Validationf("lender and borrower must differ")
		}
		txn.Status = models.StatusPending
	case models.KindSettleUp:
		if txn.Payer, err = snapshot("payer", draft.PayerID); err != nil {
			return nil, err
		}
		if txn.Receiver, err = snapshot("receiver", draft.ReceiverID); err != nil {
			return nil, err
		}
		if draft.PayerID == draft.ReceiverID {
			return nil, ledger.Validationf("payer and receiver must differ")
		}
		txn.Status = models.StatusPending
	}
	return txn, nil
}

// Edit updates the mutable detail fields of a transaction. Initiator
// only; role fields and kind are immutable post-creation.
func (s *ReconcileService) Edit(ctx context.Context, groupID, txnID, actorID string, edit TransactionEdit) (*models.Transaction, error) {
	txn, err := s.store.GetTransaction(ctx, groupID, txnID)
	if err != nil {
		return nil, err
	}
	if err := ledger.AuthorizeEdit(txn, actorID); err != nil {
		return nil, err
	}

	if edit.Amount != nil {
		if !edit.Amount.IsPositive() {
			return nil, ledger.Validationf("amount must be positive, got %s", edit.Amount)
		}
		if _, ok := ledger.MinorUnits(*edit.Amount); !ok {
			return nil, ledger.Validationf("amount %s has more than two decimal places", edit.Amount)
		}
		txn.Amount = *edit.Amount
	}
	if edit.Description != nil {
		txn.Description = *edit.Description
	}
	if edit.Category != nil {
		txn.Category = *edit.Category
	}
	if edit.PaymentMethod != nil {
		txn.PaymentMethod = *edit.PaymentMethod
	}
	txn.UpdatedAt = time.Now().UnixNano()

	if err := s.store.UpdateTransaction(ctx, txn); err != nil {
		return nil, err
	}
	slog.Info("transaction edited", "group_id", groupID, "transaction_id", txnID)
	s.feed.Publish(groupID)
	return txn, nil
}

// Accept applies the counterparty's acceptance of a pending two-party
// transaction; the transaction starts affecting balances.
func (s *ReconcileService) Accept(ctx context.Context, groupID, txnID, actorID string) (*models.Transaction, error) {
	return s.transition(ctx, groupID, txnID, "accept", func(txn *models.Transaction) error {
		return ledger.Accept(txn, actorID, time.Now().UnixNano())
	})
}

// Reject applies the counterparty's rejection of a pending two-party
// transaction.
func (s *ReconcileService) Reject(ctx context.Context, groupID, txnID, actorID string) (*models.Transaction, error) {
	return s.transition(ctx, groupID, txnID, "reject", func(txn *models.Transaction) error {
		return ledger.Reject(txn, actorID, time.Now().UnixNano())
	})
}

// Archive soft-excludes a transaction from default views and balances.
func (s *ReconcileService) Archive(ctx context.Context, groupID, txnID, actorID string) (*models.Transaction, error) {
	return s.transition(ctx, groupID, txnID, "archive", func(txn *models.Transaction) error {
		return ledger.Archive(txn, actorID, time.Now().UnixNano())
	})
}

// Unarchive reverses Archive; the transaction's balance impact resumes.
func (s *ReconcileService) Unarchive(ctx context.Context, groupID, txnID, actorID string) (*models.Transaction, error) {
	return s.transition(ctx, groupID, txnID, "unarchive", func(txn *models.Transaction) error {
		return ledger.Unarchive(txn, actorID)
	})
}

// transition loads, applies a state-machine step and persists. The
// idempotent terminal-state check inside the step resolves concurrent
// double submissions without locks.
func (s *ReconcileService) transition(ctx context.Context, groupID, txnID, action string, apply func(*models.Transaction) error) (*models.Transaction, error) {
	txn, err := s.store.GetTransaction(ctx, groupID, txnID)
	if err != nil {
		return nil, err
	}
	if err := apply(txn); err != nil {
		return nil, err
	}
	if err := s.store.UpdateTransaction(ctx, txn); err != nil {
		return nil, err
	}
	metrics.StateTransitions.WithLabelValues(action).Inc()
	slog.Info("transaction transitioned",
		"group_id", groupID, "transaction_id", txnID, "action", action, "status", txn.Status)
	s.feed.Publish(groupID)
	return txn, nil
}

// ReRequest spawns a fresh pending copy of a rejected transaction. The
// rejected original is preserved untouched for the audit trail. Role
// membership is re-validated: if a referenced member has since left the
// group, the re-request fails rather than recreating a dangling
// reference.
func (s *ReconcileService) ReRequest(ctx context.Context, groupID, txnID, actorID string) (*models.Transaction, error) {
	txn, err := s.store.GetTransaction(ctx, groupID, txnID)
	if err != nil {
		return nil, err
	}
	fresh, err := ledger.ReRequest(txn, actorID)
	if err != nil {
		return nil, err
	}

	group, err := s.store.GetGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}
	for _, r := range fresh.Roles() {
		if !group.HasMember(r.ID) {
			return nil, ledger.NotMemberf("member %s has left group %s", r.ID, groupID)
		}
	}

	if err := s.store.CreateTransaction(ctx, fresh); err != nil {
		return nil, err
	}
	metrics.StateTransitions.WithLabelValues("re_request").Inc()
	slog.Info("transaction re-requested",
		"group_id", groupID, "rejected_id", txnID, "transaction_id", fresh.ID)
	s.feed.Publish(groupID)
	return fresh, nil
}

// Delete permanently removes a transaction and its balance
// contribution. Initiator only.
func (s *ReconcileService) Delete(ctx context.Context, groupID, txnID, actorID string) error {
	txn, err := s.store.GetTransaction(ctx, groupID, txnID)
	if err != nil {
		return err
	}
	if err := ledger.AuthorizeDelete(txn, actorID); err != nil {
		return err
	}
	if err := s.store.DeleteTransaction(ctx, groupID, txnID); err != nil {
		return err
	}
	metrics.StateTransitions.WithLabelValues("delete").Inc()
	slog.Info("transaction deleted", "group_id", groupID, "transaction_id", txnID)
	s.feed.Publish(groupID)
	return nil
}

// Get returns a single transaction. Any member may read.
func (s *ReconcileService) Get(ctx context.Context, groupID, txnID, actorID string) (*models.Transaction, error) {
	group, err := s.store.GetGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if !group.HasMember(actorID) {
		return nil, ledger.Forbiddenf("member %s does not belong to group %s", actorID, groupID)
	}
	return s.store.GetTransaction(ctx, groupID, txnID)
}

// List returns the group's transactions for display, newest first. Any
// member may read; includeArchived widens the default view.
func (s *ReconcileService) List(ctx context.Context, groupID, actorID string, includeArchived bool) ([]*models.Transaction, error) {
	filter := storage.TransactionFilter{}
	if !includeArchived {
		live := false
		filter.Archived = &live
	}
	return s.Report(ctx, groupID, actorID, filter)
}

// Report returns the group's transactions matching the export filter
// dimensions (date range, kinds, participants, initiators, payment
// methods), combined with logical AND.
func (s *ReconcileService) Report(ctx context.Context, groupID, actorID string, filter storage.TransactionFilter) ([]*models.Transaction, error) {
	group, err := s.store.GetGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if !group.HasMember(actorID) {
		return nil, ledger.Forbiddenf("member %s does not belong to group %s", actorID, groupID)
	}
	return s.store.ListTransactions(ctx, groupID, filter)
}

// Balances recomputes the group's balance sheet from scratch over the
// non-archived transaction set.
func (s *ReconcileService) Balances(ctx context.Context, groupID string) (models.BalanceSheet, error) {
	start := time.Now()
	group, err := s.store.GetGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}
	live := false
	txns, err := s.store.ListTransactions(ctx, groupID, storage.TransactionFilter{Archived: &live})
	if err != nil {
		return nil, err
	}

	sheet, err := ledger.ComputeBalances(group, txns)
	if err != nil {
		if errors.Is(err, ledger.ErrIntegrity) {
			metrics.IntegrityErrors.Inc()
			slog.Error("balance recomputation aborted", "group_id", groupID, "error", err)
		}
		return nil, err
	}
	metrics.BalanceRecomputes.Inc()
	metrics.RecomputeDuration.Observe(time.Since(start).Seconds())
	return sheet, nil
}

// WatchBalances delivers the current balance sheet and then a fresh full
// recompute after every observed change to the group's ledger. The
// channel closes when ctx ends, cancel is called, or the group
// disappears. Slow consumers only ever see the latest sheet; stale
// intermediate sheets are dropped.
//
// An integrity error is fatal to that recomputation only: it is logged
// and counted, and the watch continues so a later corrective change can
// recover.
func (s *ReconcileService) WatchBalances(ctx context.Context, groupID string) (<-chan models.BalanceSheet, changefeed.CancelFunc, error) {
	if _, err := s.store.GetGroup(ctx, groupID); err != nil {
		return nil, nil, err
	}

	out := make(chan models.BalanceSheet, 1)
	kick := make(chan struct{}, 1)
	done := make(chan struct{})

	unsubscribe := s.feed.Subscribe(groupID, func() {
		select {
		case kick <- struct{}{}:
		default:
		}
	})
	var once sync.Once
	cancel := func() {
		once.Do(func() {
			unsubscribe()
			close(done)
		})
	}

	go func() {
		defer close(out)
		defer cancel()
		for {
			sheet, err := s.Balances(ctx, groupID)
			switch {
			case err == nil:
				// Replace a pending sheet the consumer has not read yet.
				select {
				case <-out:
				default:
				}
				out <- sheet
			case errors.Is(err, ledger.ErrIntegrity):
				// Reported in Balances; wait for the next change.
			case errors.Is(err, ledger.ErrNotFound):
				return
			default:
				slog.Error("balance watch recompute failed", "group_id", groupID, "error", err)
			}

			select {
			case <-ctx.Done():
				return
			case <-done:
				return
			case <-kick:
			}
		}
	}()

	return out, cancel, nil
}
