package service

import (
	"context"

	"gotrip-be/internal/domain"
)

// AuthService defines the interface for authentication operations
type AuthService interface {
	// ValidateToken validates a Supabase JWT or Google access token and
	// returns the authenticated user's profile
	ValidateToken(ctx context.Context, token string) (*domain.UserProfile, error)
}

// ApprovalService defines the interface for the plan approval workflow
type ApprovalService interface {
	// CastVote records or replaces the caller's vote, stamped with their
	// display name. Voting is refused while the plan is fixed, for the
	// leader as much as anyone else.
	CastVote(ctx context.Context, groupID string, user *domain.UserProfile, req *domain.VoteRequest) (*domain.VoteResponse, error)

	// Unlock clears every vote, returning the plan to editable. Leader only.
	Unlock(ctx context.Context, groupID, userID string) (*domain.UnlockResponse, error)

	// GetStatus returns the aggregated approval status plus the caller's own vote
	GetStatus(ctx context.Context, groupID, userID string) (*domain.ApprovalStatusResponse, error)

	// ListVotes returns the raw vote records of a group along with the
	// group's member count
	ListVotes(ctx context.Context, groupID, userID string) ([]domain.PlanVote, int, error)

	// Snapshot loads a fresh approval status straight from the store,
	// bypassing caches. Used by the realtime feed.
	Snapshot(ctx context.Context, groupID string) (*domain.ApprovalStatus, error)
}

// GroupService defines the interface for group and membership operations
type GroupService interface {
	// CreateGroup creates a group with the caller as leader
	CreateGroup(ctx context.Context, user *domain.UserProfile, req *domain.CreateGroupRequest) (*domain.GroupDetail, error)

	// JoinGroup adds the caller to the group behind an invite code.
	// Joining a group the caller already belongs to is a no-op.
	JoinGroup(ctx context.Context, user *domain.UserProfile, req *domain.JoinGroupRequest) (*domain.GroupDetail, error)

	// GetGroup returns a group with its member roster, members only
	GetGroup(ctx context.Context, groupID, userID string) (*domain.GroupDetail, error)
}

// Services aggregates all service interfaces
type Services struct {
	Auth     AuthService
	Approval ApprovalService
	Group    GroupService
}
