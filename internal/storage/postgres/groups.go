package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/splitbook/splitbook/internal/ledger"
	"github.com/splitbook/splitbook/internal/models"
)

// CreateGroup persists a new group and its initial roster atomically.
func (s *PostgresStore) CreateGroup(ctx context.Context, group *models.Group) error {
	if group.ID == "" {
		group.ID = uuid.New().String()
	}
	if group.CreatedAt == 0 {
		group.CreatedAt = s.now()
	}

	return s.inTx(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx,
			"INSERT INTO groups (id, name, kind, created_by, created_at) VALUES ($1, $2, $3, $4, $5)",
			group.ID, group.Name, group.Kind, group.CreatedBy, group.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert group: %w", err)
		}

		for i, m := range group.Members {
			_, err := tx.Exec(ctx,
				"INSERT INTO group_members (group_id, member_id, display_name, email, photo_url, position) VALUES ($1, $2, $3, $4, $5, $6)",
				group.ID, m.ID, m.DisplayName, m.Email, m.PhotoURL, i,
			)
			if err != nil {
				return fmt.Errorf("failed to insert group member: %w", err)
			}
		}
		return nil
	})
}

// GetGroup retrieves a group by ID, including its member roster.
func (s *PostgresStore) GetGroup(ctx context.Context, id string) (*models.Group, error) {
	group := &models.Group{}
	err := s.pool.QueryRow(ctx,
		"SELECT id, name, kind, created_by, created_at FROM groups WHERE id = $1",
		id,
	).Scan(&group.ID, &group.Name, &group.Kind, &group.CreatedBy, &group.CreatedAt)
	if isNoRows(err) {
		return nil, ledger.NotFoundf("group %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get group: %w", err)
	}

	members, err := s.groupMembers(ctx, id)
	if err != nil {
		return nil, err
	}
	group.Members = members
	return group, nil
}

func (s *PostgresStore) groupMembers(ctx context.Context, groupID string) ([]models.Member, error) {
	rows, err := s.pool.Query(ctx,
		"SELECT member_id, display_name, email, photo_url FROM group_members WHERE group_id = $1 ORDER BY position",
		groupID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get group members: %w", err)
	}
	defer rows.Close()

	var members []models.Member
	for rows.Next() {
		var m models.Member
		if err := rows.Scan(&m.ID, &m.DisplayName, &m.Email, &m.PhotoURL); err != nil {
			return nil, fmt.Errorf("failed to scan group member: %w", err)
		}
		members = append(members, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate group members: %w", err)
	}
	return members, nil
}

// ListGroupsByMember returns every group the member belongs to, newest first.
func (s *PostgresStore) ListGroupsByMember(ctx context.Context, memberID string) ([]*models.Group, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT g.id FROM groups g
		 JOIN group_members gm ON gm.group_id = g.id
		 WHERE gm.member_id = $1
		 ORDER BY g.created_at DESC`,
		memberID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list groups: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan group id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate groups: %w", err)
	}

	groups := make([]*models.Group, 0, len(ids))
	for _, id := range ids {
		g, err := s.GetGroup(ctx, id)
		if err != nil {
			return nil, err
		}
		groups = append(groups, g)
	}
	return groups, nil
}

// RenameGroup updates the group's display name.
func (s *PostgresStore) RenameGroup(ctx context.Context, id, name string) error {
	tag, err := s.pool.Exec(ctx, "UPDATE groups SET name = $1 WHERE id = $2", name, id)
	if err != nil {
		return fmt.Errorf("failed to rename group: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ledger.NotFoundf("group %s", id)
	}
	return nil
}

// DeleteGroup removes the group, its roster and its entire transaction
// ledger in one atomic batch.
func (s *PostgresStore) DeleteGroup(ctx context.Context, id string) error {
	return s.inTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, "DELETE FROM transaction_roles WHERE group_id = $1", id); err != nil {
			return fmt.Errorf("failed to delete transaction roles: %w", err)
		}
		if _, err := tx.Exec(ctx, "DELETE FROM transactions WHERE group_id = $1", id); err != nil {
			return fmt.Errorf("failed to delete transactions: %w", err)
		}
		if _, err := tx.Exec(ctx, "DELETE FROM group_members WHERE group_id = $1", id); err != nil {
			return fmt.Errorf("failed to delete group members: %w", err)
		}
		tag, err := tx.Exec(ctx, "DELETE FROM groups WHERE id = $1", id)
		if err != nil {
			return fmt.Errorf("failed to delete group: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return ledger.NotFoundf("group %s", id)
		}
		return nil
	})
}

// AddMember appends a member to the group roster.
func (s *PostgresStore) AddMember(ctx context.Context, groupID string, member models.Member) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO group_members (group_id, member_id, display_name, email, photo_url, position)
		 SELECT $1, $2, $3, $4, $5, COALESCE(MAX(position), -1) + 1 FROM group_members WHERE group_id = $6`,
		groupID, member.ID, member.DisplayName, member.Email, member.PhotoURL, groupID,
	)
	if err != nil {
		return fmt.Errorf("failed to add group member: %w", err)
	}
	return nil
}

// RemoveMember removes a member from the roster. Removing an already
// absent member is a no-op so a concurrent retry cannot fail or corrupt
// the group.
func (s *PostgresStore) RemoveMember(ctx context.Context, groupID, memberID string) error {
	_, err := s.pool.Exec(ctx,
		"DELETE FROM group_members WHERE group_id = $1 AND member_id = $2",
		groupID, memberID,
	)
	if err != nil {
		return fmt.Errorf("failed to remove group member: %w", err)
	}
	return nil
}
