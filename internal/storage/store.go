// Package storage provides abstractions for persistent data storage.
package storage

import (
	"context"
	"time"

	"github.com/splitbook/splitbook/internal/models"
)

// TransactionFilter narrows a transaction listing. Dimensions combine
// with logical AND; the slice dimensions match any of their values.
// The zero value matches the group's full history.
type TransactionFilter struct {
	// From and To bound createdAt (inclusive). Zero values mean unbounded.
	From time.Time
	To   time.Time

	// Kinds restricts to the given transaction kinds.
	Kinds []models.TransactionKind

	// Participants matches transactions where any role field (payer,
	// receiver, lender, borrower, participants) references one of the
	// given member IDs.
	Participants []string

	// Initiators restricts by the member who created the record.
	Initiators []string

	// PaymentMethods restricts by payment method.
	PaymentMethods []string

	// Archived filters on the archival flag; nil returns both.
	Archived *bool
}

// Store is the ledger store contract. Implementations must key
// transactions by (groupID, id), order listings by createdAt descending,
// and execute multi-record mutations (member removal, group deletion
// cascade) atomically so the balance engine never observes dangling role
// references.
//
// Missing records are reported by wrapping ledger.ErrNotFound.
type Store interface {
	// CreateUser persists a new user, assigning ID and CreatedAt if unset.
	CreateUser(ctx context.Context, user *models.User) error

	// GetUserByEmail retrieves a user by their unique email.
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)

	// GetUserByID retrieves a user by ID.
	GetUserByID(ctx context.Context, id string) (*models.User, error)

	// CreateGroup persists a new group with its initial roster, assigning
	// ID and CreatedAt if unset.
	CreateGroup(ctx context.Context, group *models.Group) error

	// GetGroup retrieves a group and its roster.
	GetGroup(ctx context.Context, id string) (*models.Group, error)

	// ListGroupsByMember returns every group the member belongs to,
	// newest first.
	ListGroupsByMember(ctx context.Context, memberID string) ([]*models.Group, error)

	// RenameGroup updates the group's display name.
	RenameGroup(ctx context.Context, id, name string) error

	// DeleteGroup removes the group, its roster and its entire
	// transaction ledger in one atomic batch.
	DeleteGroup(ctx context.Context, id string) error

	// AddMember appends a member to the roster.
	AddMember(ctx context.Context, groupID string, member models.Member) error

	// RemoveMember removes a member from the roster atomically. Removing
	// a member who is already absent is a no-op so concurrent retries
	// cannot corrupt the group.
	RemoveMember(ctx context.Context, groupID, memberID string) error

	// CreateTransaction persists a new transaction, assigning its ID and
	// the per-store monotonic CreatedAt.
	CreateTransaction(ctx context.Context, txn *models.Transaction) error

	// GetTransaction retrieves a transaction keyed by (groupID, id).
	GetTransaction(ctx context.Context, groupID, id string) (*models.Transaction, error)

	// UpdateTransaction rewrites an existing transaction's stored state.
	UpdateTransaction(ctx context.Context, txn *models.Transaction) error

	// DeleteTransaction permanently removes a transaction.
	DeleteTransaction(ctx context.Context, groupID, id string) error

	// ListTransactions returns the group's transactions matching the
	// filter, ordered by createdAt descending.
	ListTransactions(ctx context.Context, groupID string, filter TransactionFilter) ([]*models.Transaction, error)

	// Close releases any resources held by the store.
	Close() error
}
