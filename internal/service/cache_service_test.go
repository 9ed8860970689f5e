package service

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"gotrip-be/internal/domain"
	"gotrip-be/pkg/redis"
)

func newCacheFixture(t *testing.T) (*miniredis.Miniredis, *redis.Client, *CacheService) {
	t.Helper()

	mr := miniredis.RunT(t)
	client, err := redis.NewClient("redis://"+mr.Addr(), "test", zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	return mr, client, NewCacheService(client, zap.NewNop())
}

func sampleStatus(groupID string, agreed, total int) *domain.ApprovalStatus {
	votes := make([]domain.PlanVote, 0, agreed)
	base := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	for i := 0; i < agreed; i++ {
		votes = append(votes, domain.PlanVote{
			ID:        "vote-" + string(rune('a'+i)),
			GroupID:   groupID,
			UserID:    "user-" + string(rune('a'+i)),
			Choice:    domain.VoteAgree,
			CreatedAt: base,
			UpdatedAt: base.Add(time.Duration(i) * time.Second),
		})
	}
	status := domain.AggregateApproval(groupID, votes, total)
	return &status
}

func TestCacheService_GetApprovalStatusWithCache(t *testing.T) {
	ctx := context.Background()

	t.Run("miss fills the cache and a second read hits it", func(t *testing.T) {
		mr, client, cache := newCacheFixture(t)

		fallbackCalls := 0
		fallback := func(ctx context.Context, groupID string) (*domain.ApprovalStatus, error) {
			fallbackCalls++
			return sampleStatus(groupID, 2, 3), nil
		}

		status, err := cache.GetApprovalStatusWithCache(ctx, "g1", fallback)
		require.NoError(t, err)
		assert.Equal(t, 2, status.AgreedCount)
		assert.Equal(t, 1, fallbackCalls)

		// The fill is fire-and-forget, wait for it to land
		cacheKey := client.KeyBuilder.KeyApprovalStatus("g1")
		require.Eventually(t, func() bool {
			return mr.Exists(cacheKey)
		}, time.Second, 10*time.Millisecond)

		again, err := cache.GetApprovalStatusWithCache(ctx, "g1", fallback)
		require.NoError(t, err)
		assert.Equal(t, 1, fallbackCalls, "cache hit must not touch the database")
		assert.Equal(t, status.AgreedCount, again.AgreedCount)
		assert.Equal(t, status.TotalMembers, again.TotalMembers)
		assert.Equal(t, status.State, again.State)
	})

	t.Run("corrupted entry falls back to the database", func(t *testing.T) {
		mr, client, cache := newCacheFixture(t)

		cacheKey := client.KeyBuilder.KeyApprovalStatus("g1")
		require.NoError(t, mr.Set(cacheKey, "{this is not json"))

		fallbackCalls := 0
		status, err := cache.GetApprovalStatusWithCache(ctx, "g1", func(ctx context.Context, groupID string) (*domain.ApprovalStatus, error) {
			fallbackCalls++
			return sampleStatus(groupID, 1, 2), nil
		})
		require.NoError(t, err)
		assert.Equal(t, 1, fallbackCalls)
		assert.Equal(t, 1, status.AgreedCount)
	})

	t.Run("without redis every read goes to the database", func(t *testing.T) {
		cache := NewCacheService(nil, zap.NewNop())

		fallbackCalls := 0
		fallback := func(ctx context.Context, groupID string) (*domain.ApprovalStatus, error) {
			fallbackCalls++
			return sampleStatus(groupID, 1, 1), nil
		}

		for i := 0; i < 2; i++ {
			status, err := cache.GetApprovalStatusWithCache(ctx, "g1", fallback)
			require.NoError(t, err)
			assert.True(t, status.IsFixed)
		}
		assert.Equal(t, 2, fallbackCalls)
	})
}

func TestCacheService_GetMemberCountWithCache(t *testing.T) {
	ctx := context.Background()

	t.Run("caches the count", func(t *testing.T) {
		mr, client, cache := newCacheFixture(t)

		fallbackCalls := 0
		fallback := func(ctx context.Context, groupID string) (int, error) {
			fallbackCalls++
			return 4, nil
		}

		count, err := cache.GetMemberCountWithCache(ctx, "g1", fallback)
		require.NoError(t, err)
		assert.Equal(t, 4, count)
		assert.Equal(t, 1, fallbackCalls)

		// The fill is fire-and-forget, wait for it to land
		require.Eventually(t, func() bool {
			return mr.Exists(client.KeyBuilder.KeyMemberCount("g1"))
		}, time.Second, 10*time.Millisecond)

		count, err = cache.GetMemberCountWithCache(ctx, "g1", fallback)
		require.NoError(t, err)
		assert.Equal(t, 4, count)
		assert.Equal(t, 1, fallbackCalls, "second read must come from the cache")
	})

	t.Run("corrupted counter falls back to the database", func(t *testing.T) {
		mr, client, cache := newCacheFixture(t)

		cacheKey := client.KeyBuilder.KeyMemberCount("g1")
		require.NoError(t, mr.Set(cacheKey, "not-a-number"))

		count, err := cache.GetMemberCountWithCache(ctx, "g1", func(ctx context.Context, groupID string) (int, error) {
			return 7, nil
		})
		require.NoError(t, err)
		assert.Equal(t, 7, count)
	})
}

func TestCacheService_GetGroupDetailWithCache(t *testing.T) {
	ctx := context.Background()
	mr, client, cache := newCacheFixture(t)

	fallbackCalls := 0
	fallback := func(ctx context.Context, groupID string) (*domain.GroupDetail, error) {
		fallbackCalls++
		return &domain.GroupDetail{
			Group: domain.Group{ID: groupID, Name: "Trip", InviteCode: "TRIP-00000001"},
			Members: []domain.GroupMember{
				{GroupID: groupID, UserID: "leader", Role: domain.RoleLeader},
			},
			MemberCount: 1,
		}, nil
	}

	detail, err := cache.GetGroupDetailWithCache(ctx, "g1", fallback)
	require.NoError(t, err)
	assert.Equal(t, "Trip", detail.Name)
	assert.Equal(t, 1, fallbackCalls)

	cacheKey := client.KeyBuilder.KeyGroupDetail("g1")
	require.Eventually(t, func() bool {
		return mr.Exists(cacheKey)
	}, time.Second, 10*time.Millisecond)

	again, err := cache.GetGroupDetailWithCache(ctx, "g1", fallback)
	require.NoError(t, err)
	assert.Equal(t, 1, fallbackCalls)
	assert.Equal(t, detail.MemberCount, again.MemberCount)
	require.Len(t, again.Members, 1)
	assert.Equal(t, domain.RoleLeader, again.Members[0].Role)
}

func TestCacheService_InvalidateGroupCaches(t *testing.T) {
	mr, client, cache := newCacheFixture(t)

	keys := []string{
		client.KeyBuilder.KeyApprovalStatus("g1"),
		client.KeyBuilder.KeyMemberCount("g1"),
		client.KeyBuilder.KeyGroupDetail("g1"),
	}
	for _, key := range keys {
		require.NoError(t, mr.Set(key, "stale"))
	}

	cache.InvalidateGroupCaches("g1")

	require.Eventually(t, func() bool {
		for _, key := range keys {
			if mr.Exists(key) {
				return false
			}
		}
		return true
	}, time.Second, 10*time.Millisecond)
}

func TestCacheService_InvalidateApprovalCaches(t *testing.T) {
	mr, client, cache := newCacheFixture(t)

	statusKey := client.KeyBuilder.KeyApprovalStatus("g1")
	countKey := client.KeyBuilder.KeyMemberCount("g1")
	require.NoError(t, mr.Set(statusKey, "stale"))
	require.NoError(t, mr.Set(countKey, "3"))

	cache.InvalidateApprovalCaches("g1")

	require.Eventually(t, func() bool {
		return !mr.Exists(statusKey)
	}, time.Second, 10*time.Millisecond)

	// A vote changes the status, not the roster
	assert.True(t, mr.Exists(countKey))
}

func TestCacheService_HealthCheck(t *testing.T) {
	ctx := context.Background()

	t.Run("healthy redis", func(t *testing.T) {
		_, _, cache := newCacheFixture(t)
		assert.NoError(t, cache.HealthCheck(ctx))
	})

	t.Run("no redis configured is healthy", func(t *testing.T) {
		cache := NewCacheService(nil, zap.NewNop())
		assert.NoError(t, cache.HealthCheck(ctx))
	})

	t.Run("unreachable redis reports the failure", func(t *testing.T) {
		mr, _, cache := newCacheFixture(t)
		mr.Close()

		checkCtx, cancel := context.WithTimeout(ctx, time.Second)
		defer cancel()
		assert.Error(t, cache.HealthCheck(checkCtx))
	})
}
