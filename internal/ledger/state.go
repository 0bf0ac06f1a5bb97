package ledger

import (
	"github.com/splitbook/splitbook/internal/models"
)

// The confirmation workflow for two-party kinds:
//
//	create          -> pending
//	pending  --accept-->  completed   (counterparty only)
//	pending  --reject-->  rejected    (counterparty only)
//	rejected --re-request--> a NEW pending transaction (initiator only)
//
// completed and rejected are terminal; accept/reject on a terminal record
// fails with ErrInvalidTransition so concurrent double submissions resolve
// without locks. Archival is an orthogonal flag permitted on any
// non-pending record; it is initiator-only, like edit and delete.

// Accept transitions a pending transaction to completed. Only the
// counterparty may accept.
func Accept(t *models.Transaction, actorID string, now int64) error {
	if err := authorizeCounterparty(t, actorID, "accept"); err != nil {
		return err
	}
	if t.Status != models.StatusPending {
		return Transitionf("cannot accept transaction %s in state %q", t.ID, t.Status)
	}
	t.Status = models.StatusCompleted
	t.AcceptedAt = now
	return nil
}

// Reject transitions a pending transaction to rejected. Only the
// counterparty may reject.
func Reject(t *models.Transaction, actorID string, now int64) error {
	if err := authorizeCounterparty(t, actorID, "reject"); err != nil {
		return err
	}
	if t.Status != models.StatusPending {
		return Transitionf("cannot reject transaction %s in state %q", t.ID, t.Status)
	}
	t.Status = models.StatusRejected
	t.RejectedAt = now
	return nil
}

// ReRequest builds a fresh pending transaction from a rejected one,
// carrying over the roles, amount and details but none of the lifecycle
// fields. The rejected original is never mutated, preserving the audit
// trail. Only the original initiator may re-request. The store assigns
// the new ID and CreatedAt.
func ReRequest(t *models.Transaction, actorID string) (*models.Transaction, error) {
	if t.Initiator.ID != actorID {
		return nil, Forbiddenf("only the initiator may re-request transaction %s", t.ID)
	}
	if t.Status != models.StatusRejected {
		return nil, Transitionf("cannot re-request transaction %s in state %q", t.ID, t.Status)
	}
	fresh := &models.Transaction{
		GroupID:       t.GroupID,
		Kind:          t.Kind,
		Amount:        t.Amount,
		Description:   t.Description,
		Category:      t.Category,
		PaymentMethod: t.PaymentMethod,
		Initiator:     t.Initiator,
		Payer:         t.Payer,
		Receiver:      t.Receiver,
		Lender:        t.Lender,
		Borrower:      t.Borrower,
		Participants:  t.Participants,
		Status:        models.StatusPending,
	}
	return fresh, nil
}

// Archive soft-excludes a transaction from default views and from the
// balance fold. A pending confirmation-required transaction cannot be
// archived. Initiator only.
func Archive(t *models.Transaction, actorID string, now int64) error {
	if t.Initiator.ID != actorID {
		return Forbiddenf("only the initiator may archive transaction %s", t.ID)
	}
	if t.Status == models.StatusPending {
		return Transitionf("cannot archive pending transaction %s", t.ID)
	}
	if t.IsArchived {
		return Transitionf("transaction %s is already archived", t.ID)
	}
	t.IsArchived = true
	t.ArchivedAt = now
	return nil
}

// Unarchive reverses Archive; balance impact resumes. Initiator only.
func Unarchive(t *models.Transaction, actorID string) error {
	if t.Initiator.ID != actorID {
		return Forbiddenf("only the initiator may unarchive transaction %s", t.ID)
	}
	if !t.IsArchived {
		return Transitionf("transaction %s is not archived", t.ID)
	}
	t.IsArchived = false
	t.ArchivedAt = 0
	return nil
}

// AuthorizeDelete checks that the actor may permanently remove the
// record. Initiator only; any state.
func AuthorizeDelete(t *models.Transaction, actorID string) error {
	if t.Initiator.ID != actorID {
		return Forbiddenf("only the initiator may delete transaction %s", t.ID)
	}
	return nil
}

// AuthorizeEdit checks that the actor may change the mutable detail
// fields. Role fields and kind are immutable post-creation to preserve
// ledger auditability; that restriction is enforced by the service, which
// only copies the mutable fields.
func AuthorizeEdit(t *models.Transaction, actorID string) error {
	if t.Initiator.ID != actorID {
		return Forbiddenf("only the initiator may edit transaction %s", t.ID)
	}
	return nil
}

func authorizeCounterparty(t *models.Transaction, actorID, action string) error {
	cp := t.Counterparty()
	if cp == nil {
		return Transitionf("transaction %s of kind %q has no confirmation step", t.ID, t.Kind)
	}
	if cp.ID != actorID {
		return Forbiddenf("only the counterparty may %s transaction %s", action, t.ID)
	}
	return nil
}
