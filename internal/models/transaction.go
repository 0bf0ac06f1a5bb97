package models

import "github.com/shopspring/decimal"

// TransactionKind identifies the shape of a ledger entry.
type TransactionKind string

const (
	KindExpense  TransactionKind = "expense"
	KindIncome   TransactionKind = "income"
	KindLoan     TransactionKind = "loan"
	KindSettleUp TransactionKind = "settle_up"
)

// RequiresConfirmation reports whether the kind goes through the
// pending/completed/rejected confirmation workflow before it affects
// balances. Expenses and incomes are effective immediately.
func (k TransactionKind) RequiresConfirmation() bool {
	return k == KindLoan || k == KindSettleUp
}

// Valid reports whether k is one of the known kinds.
func (k TransactionKind) Valid() bool {
	switch k {
	case KindExpense, KindIncome, KindLoan, KindSettleUp:
		return true
	}
	return false
}

// TransactionStatus is the confirmation-workflow state of a two-party
// transaction. Expenses and incomes carry StatusNone.
type TransactionStatus string

const (
	StatusNone      TransactionStatus = ""
	StatusPending   TransactionStatus = "pending"
	StatusCompleted TransactionStatus = "completed"
	StatusRejected  TransactionStatus = "rejected"
)

// Terminal reports whether the status ends the confirmation workflow.
func (s TransactionStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusRejected
}

// RoleSnapshot is a member's display profile frozen at transaction
// creation time. It intentionally diverges from the live roster if the
// member later changes their profile.
type RoleSnapshot struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	PhotoURL    string `json:"photoUrl,omitempty"`
}

// Transaction is one financial event in a group's ledger. Role fields and
// Kind are immutable after creation; Status, IsArchived and the mutable
// detail fields (Description, Amount, Category, PaymentMethod) change only
// through the reconciliation service.
//
// Role fields by kind:
//
//	expense   — Payer + Participants
//	income    — Receiver + Participants
//	loan      — Lender + Borrower
//	settle_up — Payer + Receiver
type Transaction struct {
	ID            string          `json:"id"`
	GroupID       string          `json:"groupId"`
	Kind          TransactionKind `json:"kind"`
	Amount        decimal.Decimal `json:"amount"`
	Description   string          `json:"description"`
	Category      string          `json:"category,omitempty"`
	PaymentMethod string          `json:"paymentMethod,omitempty"`

	// Initiator is the member who created the record. Only the initiator
	// may edit, archive, delete or re-request it.
	Initiator RoleSnapshot `json:"initiator"`

	Payer        *RoleSnapshot  `json:"payer,omitempty"`
	Receiver     *RoleSnapshot  `json:"receiver,omitempty"`
	Lender       *RoleSnapshot  `json:"lender,omitempty"`
	Borrower     *RoleSnapshot  `json:"borrower,omitempty"`
	Participants []RoleSnapshot `json:"participants,omitempty"`

	Status     TransactionStatus `json:"status,omitempty"`
	IsArchived bool              `json:"isArchived"`

	// CreatedAt is assigned by the store at write time (Unix nanoseconds),
	// giving a per-store monotonic display order. Balance math does not
	// depend on it.
	CreatedAt  int64 `json:"createdAt"`
	UpdatedAt  int64 `json:"updatedAt,omitempty"`
	AcceptedAt int64 `json:"acceptedAt,omitempty"`
	RejectedAt int64 `json:"rejectedAt,omitempty"`
	ArchivedAt int64 `json:"archivedAt,omitempty"`
}

// Counterparty returns the member who must accept or reject the
// transaction: the borrower of a loan, the receiver of a settle-up.
// Returns nil for kinds without a confirmation step.
func (t *Transaction) Counterparty() *RoleSnapshot {
	switch t.Kind {
	case KindLoan:
		return t.Borrower
	case KindSettleUp:
		return t.Receiver
	}
	return nil
}

// Roles returns every role snapshot referenced by the transaction,
// including participants. Used for membership validation, integrity
// checks and the participant report filter.
func (t *Transaction) Roles() []RoleSnapshot {
	roles := make([]RoleSnapshot, 0, len(t.Participants)+4)
	for _, r := range []*RoleSnapshot{t.Payer, t.Receiver, t.Lender, t.Borrower} {
		if r != nil {
			roles = append(roles, *r)
		}
	}
	roles = append(roles, t.Participants...)
	return roles
}

// Involves reports whether memberID appears in any role field.
func (t *Transaction) Involves(memberID string) bool {
	for _, r := range t.Roles() {
		if r.ID == memberID {
			return true
		}
	}
	return false
}
