package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"gotrip-be/internal/domain"
	"gotrip-be/internal/repository"
	"gotrip-be/pkg/redis"
)

// inviteCodeAttempts bounds retries when a generated code collides with an
// existing group
const inviteCodeAttempts = 3

type groupService struct {
	groups       repository.GroupStore
	redis        *redis.Client
	cacheService *CacheService
	logger       *zap.Logger
}

// NewGroupService creates a new group service
func NewGroupService(repos *repository.Repositories, redisClient *redis.Client, logger *zap.Logger) GroupService {
	return &groupService{
		groups:       repos.Groups,
		redis:        redisClient,
		cacheService: NewCacheService(redisClient, logger),
		logger:       logger,
	}
}

// CreateGroup creates a travel group with the caller as its leader
func (s *groupService) CreateGroup(ctx context.Context, user *domain.UserProfile, req *domain.CreateGroupRequest) (*domain.GroupDetail, error) {
	group := &domain.Group{
		ID:          uuid.NewString(),
		Name:        strings.TrimSpace(req.Name),
		Description: strings.TrimSpace(req.Description),
		CreatedBy:   user.Sub,
	}

	leader := &domain.GroupMember{
		GroupID:     group.ID,
		UserID:      user.Sub,
		DisplayName: displayName(user),
		Role:        domain.RoleLeader,
	}

	var err error
	for attempt := 0; attempt < inviteCodeAttempts; attempt++ {
		group.InviteCode, err = generateInviteCode()
		if err != nil {
			return nil, err
		}

		err = s.groups.CreateGroup(ctx, group, leader)
		if err == nil {
			break
		}

		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			// Invite code collision, try a fresh one
			s.logger.Warn("Invite code collision, regenerating",
				zap.String("group_id", group.ID),
				zap.Int("attempt", attempt+1))
			continue
		}
		return nil, fmt.Errorf("failed to create group: %w", err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create group: %w", err)
	}

	s.logger.Info("Group created",
		zap.String("group_id", group.ID),
		zap.String("created_by", user.Sub),
		zap.String("name", group.Name))

	return &domain.GroupDetail{
		Group:       *group,
		Members:     []domain.GroupMember{*leader},
		MemberCount: 1,
	}, nil
}

// JoinGroup adds the caller to the group behind an invite code. Joining a
// group the caller already belongs to returns the group unchanged.
func (s *groupService) JoinGroup(ctx context.Context, user *domain.UserProfile, req *domain.JoinGroupRequest) (*domain.GroupDetail, error) {
	code := strings.ToUpper(strings.TrimSpace(req.InviteCode))
	if code == "" {
		return nil, domain.ErrInvalidInviteCode
	}

	group, err := s.groups.GetGroupByInviteCode(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to look up invite code: %w", err)
	}
	if group == nil {
		return nil, domain.ErrInvalidInviteCode
	}

	existing, err := s.groups.GetMember(ctx, group.ID, user.Sub)
	if err != nil {
		return nil, fmt.Errorf("failed to load membership: %w", err)
	}
	if existing != nil {
		s.logger.Debug("Join request from existing member",
			zap.String("group_id", group.ID),
			zap.String("user_id", user.Sub))
		return s.loadGroupDetail(ctx, group.ID)
	}

	member := &domain.GroupMember{
		GroupID:     group.ID,
		UserID:      user.Sub,
		DisplayName: displayName(user),
		Role:        domain.RoleMember,
	}

	if err := s.groups.AddMember(ctx, member); err != nil {
		var pgErr *pgconn.PgError
		if !errors.As(err, &pgErr) || pgErr.Code != "23505" {
			return nil, fmt.Errorf("failed to add member: %w", err)
		}
		// Concurrent join of the same user, the membership already exists
	}

	// A new member raises the unanimity bar, so the approval status of the
	// group changed shape. Refresh caches and wake the feed.
	s.cacheService.InvalidateGroupCaches(group.ID)
	notifyPlanChange(s.redis, s.logger, group.ID)

	detail, err := s.loadGroupDetail(ctx, group.ID)
	if err != nil {
		return nil, err
	}

	s.logger.Info("Member joined group",
		zap.String("group_id", group.ID),
		zap.String("user_id", user.Sub),
		zap.Int("member_count", detail.MemberCount))

	return detail, nil
}

// GetGroup returns a group with its member roster. Members only.
func (s *groupService) GetGroup(ctx context.Context, groupID, userID string) (*domain.GroupDetail, error) {
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

	return s.cacheService.GetGroupDetailWithCache(ctx, groupID, s.loadGroupDetail)
}

// loadGroupDetail assembles a group and its roster straight from the store
func (s *groupService) loadGroupDetail(ctx context.Context, groupID string) (*domain.GroupDetail, error) {
	group, err := s.groups.GetGroup(ctx, groupID)
	if err != nil {
		return nil, fmt.Errorf("failed to load group: %w", err)
	}
	if group == nil {
		return nil, domain.ErrGroupNotFound
	}

	members, err := s.groups.ListMembers(ctx, groupID)
	if err != nil {
		return nil, fmt.Errorf("failed to list members: %w", err)
	}

	return &domain.GroupDetail{
		Group:       *group,
		Members:     members,
		MemberCount: len(members),
	}, nil
}

// generateInviteCode produces a short shareable code like "TRIP-9F2C41AB"
func generateInviteCode() (string, error) {
	bytes := make([]byte, 4)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("failed to generate invite code: %w", err)
	}
	return "TRIP-" + strings.ToUpper(hex.EncodeToString(bytes)), nil
}

// displayName picks the best available name for a member record
func displayName(user *domain.UserProfile) string {
	if user.Name != "" {
		return user.Name
	}
	if user.Email != "" {
		return user.Email
	}
	return "member"
}
