package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"gotrip-be/internal/domain"
	"gotrip-be/internal/repository"
)

// fakeVoteStore keeps votes in memory with the same replace-on-revote
// contract as the Postgres repository.
type fakeVoteStore struct {
	mu        sync.Mutex
	votes     []domain.PlanVote
	clock     time.Time
	upserts   int
	upsertErr error
}

func newFakeVoteStore() *fakeVoteStore {
	return &fakeVoteStore{clock: time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)}
}

func (f *fakeVoteStore) UpsertVote(ctx context.Context, vote *domain.PlanVote) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.upsertErr != nil {
		return f.upsertErr
	}
	f.upserts++

	f.clock = f.clock.Add(time.Second)
	for i := range f.votes {
		if f.votes[i].GroupID == vote.GroupID && f.votes[i].UserID == vote.UserID {
			vote.ID = f.votes[i].ID
			vote.CreatedAt = f.votes[i].CreatedAt
			vote.UpdatedAt = f.clock
			f.votes[i] = *vote
			return nil
		}
	}

	vote.CreatedAt = f.clock
	vote.UpdatedAt = f.clock
	f.votes = append(f.votes, *vote)
	return nil
}

func (f *fakeVoteStore) GetVote(ctx context.Context, groupID, userID string) (*domain.PlanVote, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for i := range f.votes {
		if f.votes[i].GroupID == groupID && f.votes[i].UserID == userID {
			vote := f.votes[i]
			return &vote, nil
		}
	}
	return nil, nil
}

func (f *fakeVoteStore) ListVotes(ctx context.Context, groupID string) ([]domain.PlanVote, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []domain.PlanVote
	for _, vote := range f.votes {
		if vote.GroupID == groupID {
			out = append(out, vote)
		}
	}
	return out, nil
}

func (f *fakeVoteStore) ClearVotes(ctx context.Context, groupID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	kept := f.votes[:0]
	for _, vote := range f.votes {
		if vote.GroupID != groupID {
			kept = append(kept, vote)
		}
	}
	f.votes = kept
	return nil
}

// fakeGroupStore keeps groups and memberships in memory. AddMember returns
// the same unique-violation error the Postgres repository surfaces for a
// duplicate membership.
type fakeGroupStore struct {
	mu         sync.Mutex
	groups     map[string]domain.Group
	members    map[string][]domain.GroupMember
	createErrs []error
}

func newFakeGroupStore() *fakeGroupStore {
	return &fakeGroupStore{
		groups:  map[string]domain.Group{},
		members: map[string][]domain.GroupMember{},
	}
}

func (f *fakeGroupStore) CreateGroup(ctx context.Context, group *domain.Group, leader *domain.GroupMember) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if len(f.createErrs) > 0 {
		err := f.createErrs[0]
		f.createErrs = f.createErrs[1:]
		if err != nil {
			return err
		}
	}

	now := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	group.CreatedAt = now
	group.UpdatedAt = now
	leader.JoinedAt = now

	f.groups[group.ID] = *group
	f.members[group.ID] = []domain.GroupMember{*leader}
	return nil
}

func (f *fakeGroupStore) GetGroup(ctx context.Context, id string) (*domain.Group, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	group, ok := f.groups[id]
	if !ok {
		return nil, nil
	}
	return &group, nil
}

func (f *fakeGroupStore) GetGroupByInviteCode(ctx context.Context, code string) (*domain.Group, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, group := range f.groups {
		if group.InviteCode == code {
			found := group
			return &found, nil
		}
	}
	return nil, nil
}

func (f *fakeGroupStore) AddMember(ctx context.Context, member *domain.GroupMember) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, existing := range f.members[member.GroupID] {
		if existing.UserID == member.UserID {
			return &pgconn.PgError{Code: "23505"}
		}
	}

	member.JoinedAt = time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	f.members[member.GroupID] = append(f.members[member.GroupID], *member)
	return nil
}

func (f *fakeGroupStore) GetMember(ctx context.Context, groupID, userID string) (*domain.GroupMember, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, member := range f.members[groupID] {
		if member.UserID == userID {
			found := member
			return &found, nil
		}
	}
	return nil, nil
}

func (f *fakeGroupStore) ListMembers(ctx context.Context, groupID string) ([]domain.GroupMember, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]domain.GroupMember, len(f.members[groupID]))
	copy(out, f.members[groupID])
	return out, nil
}

func (f *fakeGroupStore) CountMembers(ctx context.Context, groupID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	return len(f.members[groupID]), nil
}

type approvalFixture struct {
	votes   *fakeVoteStore
	groups  *fakeGroupStore
	service ApprovalService
}

func newApprovalFixture() *approvalFixture {
	votes := newFakeVoteStore()
	groups := newFakeGroupStore()
	repos := &repository.Repositories{Votes: votes, Groups: groups}

	return &approvalFixture{
		votes:   votes,
		groups:  groups,
		service: NewApprovalService(repos, nil, zap.NewNop()),
	}
}

func (f *approvalFixture) seedGroup(groupID, leaderID string, memberIDs ...string) {
	f.groups.groups[groupID] = domain.Group{
		ID:         groupID,
		Name:       "Chiang Mai Trip",
		InviteCode: "TRIP-" + groupID,
		CreatedBy:  leaderID,
	}

	members := []domain.GroupMember{
		{GroupID: groupID, UserID: leaderID, DisplayName: leaderID, Role: domain.RoleLeader},
	}
	for _, id := range memberIDs {
		members = append(members, domain.GroupMember{
			GroupID: groupID, UserID: id, DisplayName: id, Role: domain.RoleMember,
		})
	}
	f.groups.members[groupID] = members
}

// voter builds the authenticated profile CastVote receives for a member id
func voter(id string) *domain.UserProfile {
	return testProfile(id, id)
}

func TestApprovalService_CastVote(t *testing.T) {
	ctx := context.Background()

	t.Run("records a vote and reports progress", func(t *testing.T) {
		fx := newApprovalFixture()
		fx.seedGroup("g1", "leader", "m1", "m2")

		resp, err := fx.service.CastVote(ctx, "g1", testProfile("m1", "Nid"), &domain.VoteRequest{
			Vote:    domain.VoteAgree,
			Comment: "works for me",
		})
		require.NoError(t, err)

		assert.Equal(t, domain.VoteAgree, resp.Vote.Choice)
		assert.Equal(t, "works for me", resp.Vote.Comment)
		assert.Equal(t, "Nid", resp.Vote.UserName)
		assert.NotEmpty(t, resp.Vote.ID)
		assert.Equal(t, "vote recorded", resp.Message)

		require.Len(t, resp.Status.Votes, 1)
		assert.Equal(t, "Nid", resp.Status.Votes[0].UserName)

		assert.Equal(t, domain.StateEditable, resp.Status.State)
		assert.False(t, resp.Status.IsFixed)
		assert.Equal(t, 1, resp.Status.AgreedCount)
		assert.Equal(t, 3, resp.Status.TotalMembers)
		assert.Equal(t, 2, resp.Status.PendingCount)
	})

	t.Run("re-vote replaces the previous vote", func(t *testing.T) {
		fx := newApprovalFixture()
		fx.seedGroup("g1", "leader", "m1")

		_, err := fx.service.CastVote(ctx, "g1", voter("m1"), &domain.VoteRequest{Vote: domain.VoteAgree})
		require.NoError(t, err)

		resp, err := fx.service.CastVote(ctx, "g1", voter("m1"), &domain.VoteRequest{
			Vote:    domain.VoteRequestChanges,
			Comment: "dates clash with work",
		})
		require.NoError(t, err)

		assert.Equal(t, 2, fx.votes.upserts)
		assert.Equal(t, 0, resp.Status.AgreedCount)
		assert.Equal(t, 1, resp.Status.ChangesRequestedCount)
		assert.Len(t, resp.Status.Votes, 1)
		assert.Equal(t, domain.VoteRequestChanges, resp.Status.Votes[0].Choice)
	})

	t.Run("unanimous agreement locks the plan", func(t *testing.T) {
		fx := newApprovalFixture()
		fx.seedGroup("g1", "leader", "m1")

		_, err := fx.service.CastVote(ctx, "g1", voter("leader"), &domain.VoteRequest{Vote: domain.VoteAgree})
		require.NoError(t, err)

		resp, err := fx.service.CastVote(ctx, "g1", voter("m1"), &domain.VoteRequest{Vote: domain.VoteAgree})
		require.NoError(t, err)

		assert.True(t, resp.Status.IsFixed)
		assert.Equal(t, domain.StateFixed, resp.Status.State)
		assert.Equal(t, "vote recorded, plan is now locked", resp.Message)
	})

	t.Run("single member group locks on its only vote", func(t *testing.T) {
		fx := newApprovalFixture()
		fx.seedGroup("g1", "leader")

		resp, err := fx.service.CastVote(ctx, "g1", voter("leader"), &domain.VoteRequest{Vote: domain.VoteAgree})
		require.NoError(t, err)

		assert.True(t, resp.Status.IsFixed)
		assert.Equal(t, 1, resp.Status.TotalMembers)
	})

	t.Run("votes are rejected while the plan is locked", func(t *testing.T) {
		fx := newApprovalFixture()
		fx.seedGroup("g1", "leader", "m1")

		_, err := fx.service.CastVote(ctx, "g1", voter("leader"), &domain.VoteRequest{Vote: domain.VoteAgree})
		require.NoError(t, err)
		_, err = fx.service.CastVote(ctx, "g1", voter("m1"), &domain.VoteRequest{Vote: domain.VoteAgree})
		require.NoError(t, err)

		recorded := fx.votes.upserts

		// The leader gets no special pass on a locked plan
		_, err = fx.service.CastVote(ctx, "g1", voter("leader"), &domain.VoteRequest{Vote: domain.VoteRequestChanges})
		assert.ErrorIs(t, err, domain.ErrPlanLocked)
		assert.Equal(t, recorded, fx.votes.upserts)

		_, err = fx.service.CastVote(ctx, "g1", voter("m1"), &domain.VoteRequest{Vote: domain.VoteRequestChanges})
		assert.ErrorIs(t, err, domain.ErrPlanLocked)
	})

	t.Run("unknown group is refused", func(t *testing.T) {
		fx := newApprovalFixture()

		_, err := fx.service.CastVote(ctx, "missing", voter("m1"), &domain.VoteRequest{Vote: domain.VoteAgree})
		assert.ErrorIs(t, err, domain.ErrGroupNotFound)
	})

	t.Run("non-member is refused", func(t *testing.T) {
		fx := newApprovalFixture()
		fx.seedGroup("g1", "leader")

		_, err := fx.service.CastVote(ctx, "g1", voter("stranger"), &domain.VoteRequest{Vote: domain.VoteAgree})
		assert.ErrorIs(t, err, domain.ErrNotMember)
	})

	t.Run("foreign key violation maps to group not found", func(t *testing.T) {
		fx := newApprovalFixture()
		fx.seedGroup("g1", "leader")
		fx.votes.upsertErr = fmt.Errorf("failed to upsert vote: %w: %w", domain.ErrPersistence, &pgconn.PgError{Code: "23503"})

		_, err := fx.service.CastVote(ctx, "g1", voter("leader"), &domain.VoteRequest{Vote: domain.VoteAgree})
		assert.ErrorIs(t, err, domain.ErrGroupNotFound)
	})

	t.Run("store failure surfaces as a persistence error", func(t *testing.T) {
		fx := newApprovalFixture()
		fx.seedGroup("g1", "leader")
		fx.votes.upsertErr = fmt.Errorf("failed to upsert vote: %w: %w", domain.ErrPersistence, errors.New("connection refused"))

		_, err := fx.service.CastVote(ctx, "g1", voter("leader"), &domain.VoteRequest{Vote: domain.VoteAgree})
		assert.ErrorIs(t, err, domain.ErrPersistence)
	})
}

func TestApprovalService_Unlock(t *testing.T) {
	ctx := context.Background()

	t.Run("leader unlock clears every vote", func(t *testing.T) {
		fx := newApprovalFixture()
		fx.seedGroup("g1", "leader", "m1")

		_, err := fx.service.CastVote(ctx, "g1", voter("leader"), &domain.VoteRequest{Vote: domain.VoteAgree})
		require.NoError(t, err)
		_, err = fx.service.CastVote(ctx, "g1", voter("m1"), &domain.VoteRequest{Vote: domain.VoteAgree})
		require.NoError(t, err)

		resp, err := fx.service.Unlock(ctx, "g1", "leader")
		require.NoError(t, err)

		assert.Equal(t, domain.StateEditable, resp.Status.State)
		assert.False(t, resp.Status.IsFixed)
		assert.Equal(t, 0, resp.Status.AgreedCount)
		assert.Empty(t, resp.Status.Votes)
		assert.Equal(t, 2, resp.Status.PendingCount)

		// Voting reopens once the plan is unlocked
		voteResp, err := fx.service.CastVote(ctx, "g1", voter("m1"), &domain.VoteRequest{Vote: domain.VoteRequestChanges})
		require.NoError(t, err)
		assert.Equal(t, 1, voteResp.Status.ChangesRequestedCount)
	})

	t.Run("regular member cannot unlock", func(t *testing.T) {
		fx := newApprovalFixture()
		fx.seedGroup("g1", "leader", "m1")

		_, err := fx.service.CastVote(ctx, "g1", voter("m1"), &domain.VoteRequest{Vote: domain.VoteAgree})
		require.NoError(t, err)

		_, err = fx.service.Unlock(ctx, "g1", "m1")
		assert.ErrorIs(t, err, domain.ErrNotLeader)

		votes, listErr := fx.votes.ListVotes(ctx, "g1")
		require.NoError(t, listErr)
		assert.Len(t, votes, 1, "votes must survive a refused unlock")
	})

	t.Run("unlock while editable acts as a vote reset", func(t *testing.T) {
		fx := newApprovalFixture()
		fx.seedGroup("g1", "leader", "m1", "m2")

		_, err := fx.service.CastVote(ctx, "g1", voter("m1"), &domain.VoteRequest{Vote: domain.VoteRequestChanges})
		require.NoError(t, err)

		resp, err := fx.service.Unlock(ctx, "g1", "leader")
		require.NoError(t, err)

		assert.Empty(t, resp.Status.Votes)
		assert.Equal(t, 3, resp.Status.PendingCount)
	})

	t.Run("unknown group is refused", func(t *testing.T) {
		fx := newApprovalFixture()

		_, err := fx.service.Unlock(ctx, "missing", "leader")
		assert.ErrorIs(t, err, domain.ErrGroupNotFound)
	})

	t.Run("non-member is refused", func(t *testing.T) {
		fx := newApprovalFixture()
		fx.seedGroup("g1", "leader")

		_, err := fx.service.Unlock(ctx, "g1", "stranger")
		assert.ErrorIs(t, err, domain.ErrNotMember)
	})
}

func TestApprovalService_GetStatus(t *testing.T) {
	ctx := context.Background()

	t.Run("includes the caller's own vote", func(t *testing.T) {
		fx := newApprovalFixture()
		fx.seedGroup("g1", "leader", "m1")

		_, err := fx.service.CastVote(ctx, "g1", voter("m1"), &domain.VoteRequest{Vote: domain.VoteAgree, Comment: "ok"})
		require.NoError(t, err)

		resp, err := fx.service.GetStatus(ctx, "g1", "m1")
		require.NoError(t, err)

		assert.True(t, resp.UserHasVoted)
		require.NotNil(t, resp.UserVote)
		assert.Equal(t, domain.VoteAgree, resp.UserVote.Choice)
		assert.Equal(t, "ok", resp.UserVote.Comment)
		assert.Equal(t, 1, resp.AgreedCount)
	})

	t.Run("caller without a vote", func(t *testing.T) {
		fx := newApprovalFixture()
		fx.seedGroup("g1", "leader", "m1")

		_, err := fx.service.CastVote(ctx, "g1", voter("m1"), &domain.VoteRequest{Vote: domain.VoteAgree})
		require.NoError(t, err)

		resp, err := fx.service.GetStatus(ctx, "g1", "leader")
		require.NoError(t, err)

		assert.False(t, resp.UserHasVoted)
		assert.Nil(t, resp.UserVote)
		assert.Equal(t, 1, resp.AgreedCount)
	})

	t.Run("own vote reads through a stale cached aggregate", func(t *testing.T) {
		_, client, _ := newCacheFixture(t)

		fx := newApprovalFixture()
		fx.seedGroup("g1", "leader", "m1")
		svc := NewApprovalService(&repository.Repositories{Votes: fx.votes, Groups: fx.groups}, client, zap.NewNop())

		// The cache still holds the pre-vote snapshot, as it does between a
		// write and its asynchronous invalidation
		stale := domain.AggregateApproval("g1", nil, 2)
		data, err := json.Marshal(&stale)
		require.NoError(t, err)
		require.NoError(t, client.Set(ctx, client.KeyBuilder.KeyApprovalStatus("g1"), string(data), time.Minute))

		require.NoError(t, fx.votes.UpsertVote(ctx, &domain.PlanVote{
			ID: "v1", GroupID: "g1", UserID: "m1", UserName: "Nid", Choice: domain.VoteAgree,
		}))

		resp, err := svc.GetStatus(ctx, "g1", "m1")
		require.NoError(t, err)

		// The group aggregate comes from the cache, the caller's own vote
		// from the store
		assert.Empty(t, resp.Votes)
		assert.Equal(t, 0, resp.AgreedCount)
		assert.True(t, resp.UserHasVoted)
		require.NotNil(t, resp.UserVote)
		assert.Equal(t, domain.VoteAgree, resp.UserVote.Choice)
		assert.Equal(t, "Nid", resp.UserVote.UserName)
	})

	t.Run("non-member is refused", func(t *testing.T) {
		fx := newApprovalFixture()
		fx.seedGroup("g1", "leader")

		_, err := fx.service.GetStatus(ctx, "g1", "stranger")
		assert.ErrorIs(t, err, domain.ErrNotMember)
	})
}

func TestApprovalService_ListVotes(t *testing.T) {
	ctx := context.Background()
	fx := newApprovalFixture()
	fx.seedGroup("g1", "leader", "m1", "m2")

	_, err := fx.service.CastVote(ctx, "g1", voter("leader"), &domain.VoteRequest{Vote: domain.VoteAgree})
	require.NoError(t, err)
	_, err = fx.service.CastVote(ctx, "g1", voter("m1"), &domain.VoteRequest{Vote: domain.VoteRequestChanges})
	require.NoError(t, err)

	votes, totalMembers, err := fx.service.ListVotes(ctx, "g1", "m1")
	require.NoError(t, err)

	assert.Len(t, votes, 2)
	assert.Equal(t, 3, totalMembers)

	_, _, err = fx.service.ListVotes(ctx, "g1", "stranger")
	assert.ErrorIs(t, err, domain.ErrNotMember)
}

func TestApprovalService_Snapshot(t *testing.T) {
	ctx := context.Background()
	fx := newApprovalFixture()
	fx.seedGroup("g1", "leader", "m1")

	_, err := fx.service.CastVote(ctx, "g1", voter("m1"), &domain.VoteRequest{Vote: domain.VoteAgree})
	require.NoError(t, err)

	status, err := fx.service.Snapshot(ctx, "g1")
	require.NoError(t, err)

	assert.Equal(t, "g1", status.GroupID)
	assert.Equal(t, 1, status.AgreedCount)
	assert.Equal(t, 2, status.TotalMembers)
	assert.False(t, status.IsFixed)
}
