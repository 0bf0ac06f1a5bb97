package models

// GroupKind distinguishes multi-member groups from single-member
// personal ledgers.
type GroupKind string

const (
	// GroupShared is a multi-member group whose balances must sum to zero.
	GroupShared GroupKind = "shared"

	// GroupPersonal has exactly one member and tracks absolute net worth.
	// Personal groups do not allow the two-party transaction kinds.
	GroupPersonal GroupKind = "personal"
)

// Member is one entry of a group's member roster, carrying the display
// profile used for balance attribution.
type Member struct {
	// ID is the stable member identifier supplied by the identity provider.
	ID string `json:"id"`

	// DisplayName is the member's current display name.
	DisplayName string `json:"displayName"`

	// Email is used to look members up when adding them to a group.
	Email string `json:"email,omitempty"`

	// PhotoURL is an optional avatar URL.
	PhotoURL string `json:"photoUrl,omitempty"`
}

// Snapshot freezes the member's display profile into a role snapshot.
func (m Member) Snapshot() RoleSnapshot {
	return RoleSnapshot{ID: m.ID, DisplayName: m.DisplayName, PhotoURL: m.PhotoURL}
}

// Group is a named collection of members sharing a transaction ledger.
//
// Invariant: Members and MemberIDs() are in bijection; every mutation of the
// roster goes through the store as an atomic batch so the two never diverge.
type Group struct {
	// ID is the unique identifier for the group (UUID format).
	ID string `json:"id"`

	// Name is the display name of the group.
	Name string `json:"name"`

	// Kind is GroupShared or GroupPersonal.
	Kind GroupKind `json:"kind"`

	// CreatedBy is the member ID of the group creator. The creator cannot
	// be removed from a shared group.
	CreatedBy string `json:"createdBy"`

	// Members is the ordered roster with display details.
	Members []Member `json:"members"`

	// CreatedAt is the Unix timestamp in nanoseconds, assigned by the store.
	CreatedAt int64 `json:"createdAt"`
}

// MemberIDs returns the set of member identifiers in roster order.
func (g *Group) MemberIDs() []string {
	ids := make([]string, len(g.Members))
	for i, m := range g.Members {
		ids[i] = m.ID
	}
	return ids
}

// HasMember reports whether id is a current member of the group.
func (g *Group) HasMember(id string) bool {
	for _, m := range g.Members {
		if m.ID == id {
			return true
		}
	}
	return false
}

// MemberByID returns the roster entry for id, if present.
func (g *Group) MemberByID(id string) (Member, bool) {
	for _, m := range g.Members {
		if m.ID == id {
			return m, true
		}
	}
	return Member{}, false
}
