package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"gotrip-be/internal/domain"
	"gotrip-be/internal/repository"
	"gotrip-be/pkg/redis"
)

type approvalService struct {
	votes        repository.VoteStore
	groups       repository.GroupStore
	redis        *redis.Client
	cacheService *CacheService
	logger       *zap.Logger
}

// NewApprovalService creates a new approval service
func NewApprovalService(repos *repository.Repositories, redisClient *redis.Client, logger *zap.Logger) ApprovalService {
	return &approvalService{
		votes:        repos.Votes,
		groups:       repos.Groups,
		redis:        redisClient,
		cacheService: NewCacheService(redisClient, logger),
		logger:       logger,
	}
}

// CastVote records or replaces the caller's vote on the group plan. The vote
// is refused while the plan is locked, for the leader as much as anyone else.
func (s *approvalService) CastVote(ctx context.Context, groupID string, user *domain.UserProfile, req *domain.VoteRequest) (*domain.VoteResponse, error) {
	group, err := s.groups.GetGroup(ctx, groupID)
	if err != nil {
		return nil, fmt.Errorf("failed to load group: %w", err)
	}
	if group == nil {
		return nil, domain.ErrGroupNotFound
	}

	member, err := s.groups.GetMember(ctx, groupID, user.Sub)
	if err != nil {
		return nil, fmt.Errorf("failed to load membership: %w", err)
	}
	if member == nil {
		return nil, domain.ErrNotMember
	}

	// Lock check against a fresh snapshot, never the cache. A stale cached
	// status must not let a vote slip into a locked plan.
	status, err := s.loadStatus(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if status.IsFixed {
		s.logger.Warn("Vote rejected, plan is locked",
			zap.String("group_id", groupID),
			zap.String("user_id", user.Sub))
		return nil, domain.ErrPlanLocked
	}

	// The vote snapshots the caller's display name under the same
	// normalization the member roster uses
	vote := &domain.PlanVote{
		ID:       uuid.NewString(),
		GroupID:  groupID,
		UserID:   user.Sub,
		UserName: displayName(user),
		Choice:   req.Vote,
		Comment:  req.Comment,
	}

	if err := s.votes.UpsertVote(ctx, vote); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			// Group row vanished between the check and the write
			return nil, domain.ErrGroupNotFound
		}
		return nil, fmt.Errorf("failed to record vote: %w", err)
	}

	updated, err := s.loadStatus(ctx, groupID)
	if err != nil {
		return nil, fmt.Errorf("failed to recompute approval status: %w", err)
	}

	// Cache and notification failures shouldn't fail the vote
	s.cacheService.InvalidateApprovalCaches(groupID)
	notifyPlanChange(s.redis, s.logger, groupID)

	s.logger.Info("Vote recorded",
		zap.String("group_id", groupID),
		zap.String("user_id", user.Sub),
		zap.String("vote", string(vote.Choice)),
		zap.Int("agreed_count", updated.AgreedCount),
		zap.Int("total_members", updated.TotalMembers))

	message := "vote recorded"
	if updated.IsFixed {
		message = "vote recorded, plan is now locked"
		s.logger.Info("Plan locked by unanimous agreement",
			zap.String("group_id", groupID),
			zap.Int("total_members", updated.TotalMembers))
	}

	// The response carries the authoritative status so an optimistic
	// client can settle without waiting for the stream
	return &domain.VoteResponse{
		Vote:    *vote,
		Status:  *updated,
		Message: message,
	}, nil
}

// Unlock clears every vote in the group and returns the plan to editable.
// Only the group leader may unlock. Unlocking an editable plan is allowed
// and acts as a vote reset.
func (s *approvalService) Unlock(ctx context.Context, groupID, userID string) (*domain.UnlockResponse, error) {
	group, err := s.groups.GetGroup(ctx, groupID)
	if err != nil {
		return nil, fmt.Errorf("failed to load group: %w", err)
	}
	if group == nil {
		return nil, domain.ErrGroupNotFound
	}

	member, err := s.groups.GetMember(ctx, groupID, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load membership: %w", err)
	}
	if member == nil {
		return nil, domain.ErrNotMember
	}
	if member.Role != domain.RoleLeader {
		s.logger.Warn("Unlock rejected, caller is not the leader",
			zap.String("group_id", groupID),
			zap.String("user_id", userID))
		return nil, domain.ErrNotLeader
	}

	if err := s.votes.ClearVotes(ctx, groupID); err != nil {
		return nil, fmt.Errorf("failed to clear votes: %w", err)
	}

	updated, err := s.loadStatus(ctx, groupID)
	if err != nil {
		return nil, fmt.Errorf("failed to recompute approval status: %w", err)
	}

	s.cacheService.InvalidateApprovalCaches(groupID)
	notifyPlanChange(s.redis, s.logger, groupID)

	s.logger.Info("Plan unlocked, votes cleared",
		zap.String("group_id", groupID),
		zap.String("user_id", userID))

	return &domain.UnlockResponse{
		Status:  *updated,
		Message: "plan unlocked, all votes cleared",
	}, nil
}

// GetStatus returns the aggregated approval status for a group member,
// served through the cache when one is configured.
func (s *approvalService) GetStatus(ctx context.Context, groupID, userID string) (*domain.ApprovalStatusResponse, error) {
	group, err := s.groups.GetGroup(ctx, groupID)
	if err != nil {
		return nil, fmt.Errorf("failed to load group: %w", err)
	}
	if group == nil {
		return nil, domain.ErrGroupNotFound
	}

	member, err := s.groups.GetMember(ctx, groupID, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load membership: %w", err)
	}
	if member == nil {
		return nil, domain.ErrNotMember
	}

	status, err := s.cacheService.GetApprovalStatusWithCache(ctx, groupID, s.loadStatus)
	if err != nil {
		return nil, err
	}

	// The caller's own vote reads straight from the store. Cache
	// invalidation after a write is asynchronous, so the cached aggregate
	// may not carry a vote the caller just cast.
	vote, err := s.votes.GetVote(ctx, groupID, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load caller vote: %w", err)
	}

	resp := &domain.ApprovalStatusResponse{ApprovalStatus: *status}
	if vote != nil {
		resp.UserVote = vote
		resp.UserHasVoted = true
	}

	return resp, nil
}

// ListVotes returns the raw vote records for a group member along with the
// member count the client needs to render progress.
func (s *approvalService) ListVotes(ctx context.Context, groupID, userID string) ([]domain.PlanVote, int, error) {
	member, err := s.groups.GetMember(ctx, groupID, userID)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to load membership: %w", err)
	}
	if member == nil {
		return nil, 0, domain.ErrNotMember
	}

	votes, err := s.votes.ListVotes(ctx, groupID)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list votes: %w", err)
	}

	totalMembers, err := s.cacheService.GetMemberCountWithCache(ctx, groupID, s.groups.CountMembers)
	if err != nil {
		return nil, 0, err
	}

	return votes, totalMembers, nil
}

// Snapshot recomputes the approval status straight from the store and
// refreshes the cache with it. Used by the realtime feed, which must never
// serve a subscriber a stale snapshot of its own making.
func (s *approvalService) Snapshot(ctx context.Context, groupID string) (*domain.ApprovalStatus, error) {
	status, err := s.loadStatus(ctx, groupID)
	if err != nil {
		return nil, err
	}
	s.cacheService.CacheApprovalStatus(status)
	return status, nil
}

// loadStatus aggregates the current votes and member count into an approval
// status, bypassing every cache.
func (s *approvalService) loadStatus(ctx context.Context, groupID string) (*domain.ApprovalStatus, error) {
	votes, err := s.votes.ListVotes(ctx, groupID)
	if err != nil {
		return nil, fmt.Errorf("failed to list votes: %w", err)
	}

	totalMembers, err := s.groups.CountMembers(ctx, groupID)
	if err != nil {
		return nil, fmt.Errorf("failed to count members: %w", err)
	}

	status := domain.AggregateApproval(groupID, votes, totalMembers)
	return &status, nil
}

// notifyPlanChange publishes the group id on the plan-changes channel so the
// realtime feed re-snapshots the group. Delivery is best effort and never
// blocks the caller.
func notifyPlanChange(redisClient *redis.Client, log *zap.Logger, groupID string) {
	if redisClient == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		channel := redisClient.KeyBuilder.ChannelPlanChanges()
		if err := redisClient.Publish(ctx, channel, groupID); err != nil {
			log.Warn("Failed to publish plan change notification",
				zap.String("group_id", groupID),
				zap.Error(err))
		}
	}()
}
