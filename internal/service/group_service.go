package service

import (
	"context"
	"log/slog"
	"strings"

	"github.com/splitbook/splitbook/internal/changefeed"
	"github.com/splitbook/splitbook/internal/ledger"
	"github.com/splitbook/splitbook/internal/models"
	"github.com/splitbook/splitbook/internal/storage"
)

// GroupService owns group lifecycle and roster management.
type GroupService struct {
	store storage.Store
	feed  changefeed.Feed
}

// NewGroupService creates a GroupService over the given store and
// change feed.
func NewGroupService(store storage.Store, feed changefeed.Feed) *GroupService {
	return &GroupService{store: store, feed: feed}
}

// Create makes a new group with the actor as creator and sole initial
// member. Personal groups stay single-member for their lifetime.
func (s *GroupService) Create(ctx context.Context, actorID, name string, kind models.GroupKind) (*models.Group, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ledger.Validationf("group name is required")
	}
	if kind != models.GroupShared && kind != models.GroupPersonal {
		return nil, ledger.Validationf("unknown group kind %q", kind)
	}
	creator, err := s.store.GetUserByID(ctx, actorID)
	if err != nil {
		return nil, err
	}

	group := &models.Group{
		Name:      name,
		Kind:      kind,
		CreatedBy: actorID,
		Members:   []models.Member{creator.Member()},
	}
	if err := s.store.CreateGroup(ctx, group); err != nil {
		return nil, err
	}
	slog.Info("group created", "group_id", group.ID, "kind", kind, "created_by", actorID)
	return group, nil
}

// Get returns the group with its roster. Members only.
func (s *GroupService) Get(ctx context.Context, groupID, actorID string) (*models.Group, error) {
	group, err := s.store.GetGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if !group.HasMember(actorID) {
		return nil, ledger.Forbiddenf("member %s does not belong to group %s", actorID, groupID)
	}
	return group, nil
}

// List returns every group the actor belongs to, newest first.
func (s *GroupService) List(ctx context.Context, actorID string) ([]*models.Group, error) {
	return s.store.ListGroupsByMember(ctx, actorID)
}

// Rename changes the group's display name. Any member may rename.
func (s *GroupService) Rename(ctx context.Context, groupID, actorID, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return ledger.Validationf("group name is required")
	}
	if _, err := s.Get(ctx, groupID, actorID); err != nil {
		return err
	}
	if err := s.store.RenameGroup(ctx, groupID, name); err != nil {
		return err
	}
	slog.Info("group renamed", "group_id", groupID, "name", name)
	return nil
}

// Delete removes the group, its roster and its entire transaction
// ledger. Creator only.
func (s *GroupService) Delete(ctx context.Context, groupID, actorID string) error {
	group, err := s.store.GetGroup(ctx, groupID)
	if err != nil {
		return err
	}
	if group.CreatedBy != actorID {
		return ledger.Forbiddenf("only the creator can delete group %s", groupID)
	}
	if err := s.store.DeleteGroup(ctx, groupID); err != nil {
		return err
	}
	slog.Info("group deleted", "group_id", groupID, "deleted_by", actorID)
	s.feed.Publish(groupID)
	return nil
}

// AddMember adds the registered user with the given email to a shared
// group's roster. Any current member may add.
func (s *GroupService) AddMember(ctx context.Context, groupID, actorID, email string) (*models.Group, error) {
	group, err := s.store.GetGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if group.Kind == models.GroupPersonal {
		return nil, ledger.Validationf("cannot add members to a personal group")
	}
	if !group.HasMember(actorID) {
		return nil, ledger.Forbiddenf("member %s does not belong to group %s", actorID, groupID)
	}

	user, err := s.store.GetUserByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		return nil, err
	}
	if group.HasMember(user.ID) {
		return nil, ledger.Validationf("user %s is already a member of group %s", user.ID, groupID)
	}
	if err := s.store.AddMember(ctx, groupID, user.Member()); err != nil {
		return nil, err
	}
	slog.Info("member added", "group_id", groupID, "member_id", user.ID, "added_by", actorID)
	s.feed.Publish(groupID)
	return s.store.GetGroup(ctx, groupID)
}

// RemoveMember removes a member from a shared group. Creator only; the
// creator cannot be removed. Past transactions keep the departed
// member's frozen snapshots, but the balance fold will fail loudly if a
// non-archived transaction still references them, so callers should
// settle or archive those first.
func (s *GroupService) RemoveMember(ctx context.Context, groupID, actorID, memberID string) error {
	group, err := s.store.GetGroup(ctx, groupID)
	if err != nil {
		return err
	}
	if group.CreatedBy != actorID {
		return ledger.Forbiddenf("only the creator can remove members from group %s", groupID)
	}
	if memberID == group.CreatedBy {
		return ledger.Validationf("the group creator cannot be removed")
	}
	if err := s.store.RemoveMember(ctx, groupID, memberID); err != nil {
		return err
	}
	slog.Info("member removed", "group_id", groupID, "member_id", memberID, "removed_by", actorID)
	s.feed.Publish(groupID)
	return nil
}
