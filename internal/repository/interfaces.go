package repository

import (
	"context"

	"gotrip-be/internal/domain"
)

// VoteStore defines the interface for plan vote persistence
type VoteStore interface {
	// UpsertVote inserts or replaces the member's vote for a group. The
	// passed record is populated with the stored row on return.
	UpsertVote(ctx context.Context, vote *domain.PlanVote) error

	// GetVote retrieves a member's current vote, or nil when absent
	GetVote(ctx context.Context, groupID, userID string) (*domain.PlanVote, error)

	// ListVotes retrieves all current votes for a group
	ListVotes(ctx context.Context, groupID string) ([]domain.PlanVote, error)

	// ClearVotes removes every vote for a group
	ClearVotes(ctx context.Context, groupID string) error
}

// GroupStore defines the interface for group and membership persistence
type GroupStore interface {
	// CreateGroup creates a group together with its leader membership
	CreateGroup(ctx context.Context, group *domain.Group, leader *domain.GroupMember) error

	// GetGroup retrieves a group by ID, or nil when absent
	GetGroup(ctx context.Context, id string) (*domain.Group, error)

	// GetGroupByInviteCode retrieves a group by invite code, or nil when absent
	GetGroupByInviteCode(ctx context.Context, code string) (*domain.Group, error)

	// AddMember adds a user to a group
	AddMember(ctx context.Context, member *domain.GroupMember) error

	// GetMember retrieves a membership record, or nil when absent
	GetMember(ctx context.Context, groupID, userID string) (*domain.GroupMember, error)

	// ListMembers retrieves the member roster of a group
	ListMembers(ctx context.Context, groupID string) ([]domain.GroupMember, error)

	// CountMembers returns the number of members in a group
	CountMembers(ctx context.Context, groupID string) (int, error)
}

// Repositories aggregates all repository interfaces
type Repositories struct {
	Votes  VoteStore
	Groups GroupStore
}
