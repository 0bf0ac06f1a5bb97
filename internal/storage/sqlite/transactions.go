package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/splitbook/splitbook/internal/ledger"
	"github.com/splitbook/splitbook/internal/models"
	"github.com/splitbook/splitbook/internal/storage"
)

const (
	rolePayer       = "payer"
	roleReceiver    = "receiver"
	roleLender      = "lender"
	roleBorrower    = "borrower"
	roleParticipant = "participant"
)

// CreateTransaction persists a transaction and its role snapshots
// atomically, assigning the ID and the per-store monotonic createdAt.
func (s *SQLiteStore) CreateTransaction(ctx context.Context, txn *models.Transaction) error {
	if txn.ID == "" {
		txn.ID = uuid.New().String()
	}
	if txn.CreatedAt == 0 {
		txn.CreatedAt = s.now()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := insertTransaction(ctx, tx, txn); err != nil {
		return err
	}
	if err := insertRoles(ctx, tx, txn); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func insertTransaction(ctx context.Context, tx *sql.Tx, txn *models.Transaction) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO transactions
		 (id, group_id, kind, amount, description, category, payment_method,
		  initiator_id, initiator_name, initiator_photo,
		  status, is_archived, created_at, updated_at, accepted_at, rejected_at, archived_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		txn.ID, txn.GroupID, txn.Kind, txn.Amount.String(), txn.Description, txn.Category, txn.PaymentMethod,
		txn.Initiator.ID, txn.Initiator.DisplayName, txn.Initiator.PhotoURL,
		txn.Status, boolToInt(txn.IsArchived), txn.CreatedAt, txn.UpdatedAt, txn.AcceptedAt, txn.RejectedAt, txn.ArchivedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert transaction: %w", err)
	}
	return nil
}

func insertRoles(ctx context.Context, tx *sql.Tx, txn *models.Transaction) error {
	add := func(role string, snap *models.RoleSnapshot, position int) error {
		if snap == nil {
			return nil
		}
		_, err := tx.ExecContext(ctx,
			"INSERT INTO transaction_roles (group_id, transaction_id, role, member_id, display_name, photo_url, position) VALUES (?, ?, ?, ?, ?, ?, ?)",
			txn.GroupID, txn.ID, role, snap.ID, snap.DisplayName, snap.PhotoURL, position,
		)
		if err != nil {
			return fmt.Errorf("failed to insert %s role: %w", role, err)
		}
		return nil
	}

	if err := add(rolePayer, txn.Payer, 0); err != nil {
		return err
	}
	if err := add(roleReceiver, txn.Receiver, 0); err != nil {
		return err
	}
	if err := add(roleLender, txn.Lender, 0); err != nil {
		return err
	}
	if err := add(roleBorrower, txn.Borrower, 0); err != nil {
		return err
	}
	for i := range txn.Participants {
		if err := add(roleParticipant, &txn.Participants[i], i); err != nil {
			return err
		}
	}
	return nil
}

// GetTransaction retrieves a transaction keyed by (groupID, id).
func (s *SQLiteStore) GetTransaction(ctx context.Context, groupID, id string) (*models.Transaction, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, group_id, kind, amount, description, category, payment_method,
		        initiator_id, initiator_name, initiator_photo,
		        status, is_archived, created_at, updated_at, accepted_at, rejected_at, archived_at
		 FROM transactions WHERE group_id = ? AND id = ?`,
		groupID, id,
	)
	txn, err := scanTransaction(row.Scan)
	if err == sql.ErrNoRows {
		return nil, ledger.NotFoundf("transaction %s in group %s", id, groupID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}
	if err := s.loadRoles(ctx, txn); err != nil {
		return nil, err
	}
	return txn, nil
}

// UpdateTransaction rewrites the stored state of an existing
// transaction. Role rows are rewritten too so the record stays
// internally consistent, even though roles are immutable above the
// storage layer.
func (s *SQLiteStore) UpdateTransaction(ctx context.Context, txn *models.Transaction) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE transactions SET
		   amount = ?, description = ?, category = ?, payment_method = ?,
		   status = ?, is_archived = ?, updated_at = ?, accepted_at = ?, rejected_at = ?, archived_at = ?
		 WHERE group_id = ? AND id = ?`,
		txn.Amount.String(), txn.Description, txn.Category, txn.PaymentMethod,
		txn.Status, boolToInt(txn.IsArchived), txn.UpdatedAt, txn.AcceptedAt, txn.RejectedAt, txn.ArchivedAt,
		txn.GroupID, txn.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update transaction: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result: %w", err)
	}
	if n == 0 {
		return ledger.NotFoundf("transaction %s in group %s", txn.ID, txn.GroupID)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// DeleteTransaction permanently removes a transaction and its roles.
func (s *SQLiteStore) DeleteTransaction(ctx context.Context, groupID, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		"DELETE FROM transaction_roles WHERE group_id = ? AND transaction_id = ?", groupID, id); err != nil {
		return fmt.Errorf("failed to delete transaction roles: %w", err)
	}
	res, err := tx.ExecContext(ctx,
		"DELETE FROM transactions WHERE group_id = ? AND id = ?", groupID, id)
	if err != nil {
		return fmt.Errorf("failed to delete transaction: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check delete result: %w", err)
	}
	if n == 0 {
		return ledger.NotFoundf("transaction %s in group %s", id, groupID)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// ListTransactions returns the group's transactions matching the filter,
// ordered by createdAt descending.
func (s *SQLiteStore) ListTransactions(ctx context.Context, groupID string, filter storage.TransactionFilter) ([]*models.Transaction, error) {
	var sb strings.Builder
	sb.WriteString(
		`SELECT id, group_id, kind, amount, description, category, payment_method,
		        initiator_id, initiator_name, initiator_photo,
		        status, is_archived, created_at, updated_at, accepted_at, rejected_at, archived_at
		 FROM transactions WHERE group_id = ?`)
	args := []any{groupID}

	if !filter.From.IsZero() {
		sb.WriteString(" AND created_at >= ?")
		args = append(args, filter.From.UnixNano())
	}
	if !filter.To.IsZero() {
		sb.WriteString(" AND created_at <= ?")
		args = append(args, filter.To.UnixNano())
	}
	if len(filter.Kinds) > 0 {
		sb.WriteString(" AND kind IN (" + placeholders(len(filter.Kinds)) + ")")
		for _, k := range filter.Kinds {
			args = append(args, string(k))
		}
	}
	if len(filter.Initiators) > 0 {
		sb.WriteString(" AND initiator_id IN (" + placeholders(len(filter.Initiators)) + ")")
		for _, id := range filter.Initiators {
			args = append(args, id)
		}
	}
	if len(filter.PaymentMethods) > 0 {
		sb.WriteString(" AND payment_method IN (" + placeholders(len(filter.PaymentMethods)) + ")")
		for _, m := range filter.PaymentMethods {
			args = append(args, m)
		}
	}
	if len(filter.Participants) > 0 {
		sb.WriteString(` AND EXISTS (
			SELECT 1 FROM transaction_roles r
			WHERE r.group_id = transactions.group_id AND r.transaction_id = transactions.id
			  AND r.member_id IN (` + placeholders(len(filter.Participants)) + "))")
		for _, id := range filter.Participants {
			args = append(args, id)
		}
	}
	if filter.Archived != nil {
		sb.WriteString(" AND is_archived = ?")
		args = append(args, boolToInt(*filter.Archived))
	}
	sb.WriteString(" ORDER BY created_at DESC")

	rows, err := s.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	defer rows.Close()

	var txns []*models.Transaction
	for rows.Next() {
		txn, err := scanTransaction(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		txns = append(txns, txn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate transactions: %w", err)
	}

	for _, txn := range txns {
		if err := s.loadRoles(ctx, txn); err != nil {
			return nil, err
		}
	}
	return txns, nil
}

func scanTransaction(scan func(...any) error) (*models.Transaction, error) {
	txn := &models.Transaction{}
	var amount string
	var archived int
	err := scan(
		&txn.ID, &txn.GroupID, &txn.Kind, &amount, &txn.Description, &txn.Category, &txn.PaymentMethod,
		&txn.Initiator.ID, &txn.Initiator.DisplayName, &txn.Initiator.PhotoURL,
		&txn.Status, &archived, &txn.CreatedAt, &txn.UpdatedAt, &txn.AcceptedAt, &txn.RejectedAt, &txn.ArchivedAt,
	)
	if err != nil {
		return nil, err
	}
	txn.IsArchived = archived != 0
	txn.Amount, err = decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("stored amount %q is not a decimal: %w", amount, err)
	}
	return txn, nil
}

func (s *SQLiteStore) loadRoles(ctx context.Context, txn *models.Transaction) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT role, member_id, display_name, photo_url
		 FROM transaction_roles
		 WHERE group_id = ? AND transaction_id = ?
		 ORDER BY role, position`,
		txn.GroupID, txn.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to get transaction roles: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var role string
		var snap models.RoleSnapshot
		if err := rows.Scan(&role, &snap.ID, &snap.DisplayName, &snap.PhotoURL); err != nil {
			return fmt.Errorf("failed to scan transaction role: %w", err)
		}
		switch role {
		case rolePayer:
			txn.Payer = &snap
		case roleReceiver:
			txn.Receiver = &snap
		case roleLender:
			txn.Lender = &snap
		case roleBorrower:
			txn.Borrower = &snap
		case roleParticipant:
			txn.Participants = append(txn.Participants, snap)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to iterate transaction roles: %w", err)
	}
	return nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
