package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
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

const transactionColumns = `id, group_id, kind, amount, description, category, payment_method,
	initiator_id, initiator_name, initiator_photo,
	status, is_archived, created_at, updated_at, accepted_at, rejected_at, archived_at`

// CreateTransaction persists a transaction and its role snapshots
// atomically, assigning the ID and the per-store monotonic createdAt.
func (s *PostgresStore) CreateTransaction(ctx context.Context, txn *models.Transaction) error {
	if txn.ID == "" {
		txn.ID = uuid.New().String()
	}
	if txn.CreatedAt == 0 {
		txn.CreatedAt = s.now()
	}

	return s.inTx(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx,
			`INSERT INTO transactions (`+transactionColumns+`)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`,
			txn.ID, txn.GroupID, txn.Kind, txn.Amount.String(), txn.Description, txn.Category, txn.PaymentMethod,
			txn.Initiator.ID, txn.Initiator.DisplayName, txn.Initiator.PhotoURL,
			txn.Status, txn.IsArchived, txn.CreatedAt, txn.UpdatedAt, txn.AcceptedAt, txn.RejectedAt, txn.ArchivedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert transaction: %w", err)
		}
		return insertRoles(ctx, tx, txn)
	})
}

func insertRoles(ctx context.Context, tx pgx.Tx, txn *models.Transaction) error {
	add := func(role string, snap *models.RoleSnapshot, position int) error {
		if snap == nil {
			return nil
		}
		_, err := tx.Exec(ctx,
			"INSERT INTO transaction_roles (group_id, transaction_id, role, member_id, display_name, photo_url, position) VALUES ($1, $2, $3, $4, $5, $6, $7)",
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
func (s *PostgresStore) GetTransaction(ctx context.Context, groupID, id string) (*models.Transaction, error) {
	row := s.pool.QueryRow(ctx,
		"SELECT "+transactionColumns+" FROM transactions WHERE group_id = $1 AND id = $2",
		groupID, id,
	)
	txn, err := scanTransaction(row.Scan)
	if isNoRows(err) {
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

// UpdateTransaction rewrites the stored state of an existing transaction.
func (s *PostgresStore) UpdateTransaction(ctx context.Context, txn *models.Transaction) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE transactions SET
		   amount = $1, description = $2, category = $3, payment_method = $4,
		   status = $5, is_archived = $6, updated_at = $7, accepted_at = $8, rejected_at = $9, archived_at = $10
		 WHERE group_id = $11 AND id = $12`,
		txn.Amount.String(), txn.Description, txn.Category, txn.PaymentMethod,
		txn.Status, txn.IsArchived, txn.UpdatedAt, txn.AcceptedAt, txn.RejectedAt, txn.ArchivedAt,
		txn.GroupID, txn.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update transaction: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ledger.NotFoundf("transaction %s in group %s", txn.ID, txn.GroupID)
	}
	return nil
}

// DeleteTransaction permanently removes a transaction and its roles.
func (s *PostgresStore) DeleteTransaction(ctx context.Context, groupID, id string) error {
	return s.inTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			"DELETE FROM transaction_roles WHERE group_id = $1 AND transaction_id = $2", groupID, id); err != nil {
			return fmt.Errorf("failed to delete transaction roles: %w", err)
		}
		tag, err := tx.Exec(ctx,
			"DELETE FROM transactions WHERE group_id = $1 AND id = $2", groupID, id)
		if err != nil {
			return fmt.Errorf("failed to delete transaction: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return ledger.NotFoundf("transaction %s in group %s", id, groupID)
		}
		return nil
	})
}

// ListTransactions returns the group's transactions matching the filter,
// ordered by createdAt descending.
func (s *PostgresStore) ListTransactions(ctx context.Context, groupID string, filter storage.TransactionFilter) ([]*models.Transaction, error) {
	var sb strings.Builder
	sb.WriteString("SELECT " + transactionColumns + " FROM transactions WHERE group_id = $1")
	args := []any{groupID}

	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	in := func(values []string) string {
		ps := make([]string, len(values))
		for i, v := range values {
			ps[i] = arg(v)
		}
		return strings.Join(ps, ", ")
	}

	if !filter.From.IsZero() {
		sb.WriteString(" AND created_at >= " + arg(filter.From.UnixNano()))
	}
	if !filter.To.IsZero() {
		sb.WriteString(" AND created_at <= " + arg(filter.To.UnixNano()))
	}
	if len(filter.Kinds) > 0 {
		kinds := make([]string, len(filter.Kinds))
		for i, k := range filter.Kinds {
			kinds[i] = string(k)
		}
		sb.WriteString(" AND kind IN (" + in(kinds) + ")")
	}
	if len(filter.Initiators) > 0 {
		sb.WriteString(" AND initiator_id IN (" + in(filter.Initiators) + ")")
	}
	if len(filter.PaymentMethods) > 0 {
		sb.WriteString(" AND payment_method IN (" + in(filter.PaymentMethods) + ")")
	}
	if len(filter.Participants) > 0 {
		sb.WriteString(` AND EXISTS (
			SELECT 1 FROM transaction_roles r
			WHERE r.group_id = transactions.group_id AND r.transaction_id = transactions.id
			  AND r.member_id IN (` + in(filter.Participants) + "))")
	}
	if filter.Archived != nil {
		sb.WriteString(" AND is_archived = " + arg(*filter.Archived))
	}
	sb.WriteString(" ORDER BY created_at DESC")

	rows, err := s.pool.Query(ctx, sb.String(), args...)
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
	err := scan(
		&txn.ID, &txn.GroupID, &txn.Kind, &amount, &txn.Description, &txn.Category, &txn.PaymentMethod,
		&txn.Initiator.ID, &txn.Initiator.DisplayName, &txn.Initiator.PhotoURL,
		&txn.Status, &txn.IsArchived, &txn.CreatedAt, &txn.UpdatedAt, &txn.AcceptedAt, &txn.RejectedAt, &txn.ArchivedAt,
	)
	if err != nil {
		return nil, err
	}
	txn.Amount, err = decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("stored amount %q is not a decimal: %w", amount, err)
	}
	return txn, nil
}

func (s *PostgresStore) loadRoles(ctx context.Context, txn *models.Transaction) error {
	rows, err := s.pool.Query(ctx,
		`SELECT role, member_id, display_name, photo_url
		 FROM transaction_roles
		 WHERE group_id = $1 AND transaction_id = $2
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
