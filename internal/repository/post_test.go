package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/tribes-lab/backend/internal/entity"
	"github.com/tribes-lab/backend/internal/testutil"
	"github.com/tribes-lab/backend/pkg/logger"
	"github.com/tribes-lab/backend/pkg/xcontext"
)

func samplePost(id int64) *entity.Post {
	return &entity.Post{
		ID:      id,
		Author:  "0xauthor",
		TribeID: 3,
		Content: "hello",
		Type:    entity.PostTypeText,
	}
}

func Test_PostRepository_UpsertWritesThroughToRedis(t *testing.T) {
	ctx := testutil.MockContext()
	redisClient := testutil.NewInMemoryRedisClient()
	repo := NewPostRepository(redisClient)

	require.NoError(t, repo.Upsert(ctx, samplePost(5)))

	ok, err := redisClient.Exist(ctx, "post_5")
	require.NoError(t, err)
	require.True(t, ok)

	post, _, err := repo.GetByID(ctx, 5, time.Hour)
	require.NoError(t, err)
	require.Equal(t, "hello", post.Content)
}

func Test_PostRepository_ExpiredRedisRecordFallsToDatabase(t *testing.T) {
	ctx := testutil.MockContext()
	redisClient := testutil.NewInMemoryRedisClient()
	repo := NewPostRepository(redisClient)

	require.NoError(t, repo.Upsert(ctx, samplePost(5)))

	// Age the redis copy past any TTL; the database still has the row.
	stale := cachedRecord[entity.Post]{
		Value:    *samplePost(5),
		StoredAt: time.Now().Add(-48 * time.Hour).UnixMilli(),
	}
	require.NoError(t, redisClient.SetObj(ctx, "post_5", stale, 0))

	post, _, err := repo.GetByID(ctx, 5, 24*time.Hour)
	require.NoError(t, err)
	require.Equal(t, int64(5), post.ID)

	// The database hit refreshed the redis copy.
	var refreshed cachedRecord[entity.Post]
	require.NoError(t, redisClient.GetObj(ctx, "post_5", &refreshed))
	require.False(t, refreshed.expired(24*time.Hour))
}

func Test_PostRepository_MissReturnsNotFound(t *testing.T) {
	ctx := testutil.MockContext()
	repo := NewPostRepository(testutil.NewInMemoryRedisClient())

	_, _, err := repo.GetByID(ctx, 404, time.Hour)
	require.ErrorIs(t, err, ErrRecordNotFound)
}

func Test_PostRepository_WorksWithoutAnyTier(t *testing.T) {
	// No redis, no database: every probe is a miss, nothing panics.
	ctx := xcontext.WithLogger(context.Background(), logger.NewSilenceLogger())
	repo := NewPostRepository(nil)

	_, _, err := repo.GetByID(ctx, 1, time.Hour)
	require.ErrorIs(t, err, ErrRecordNotFound)

	require.NoError(t, repo.Upsert(ctx, samplePost(1)))

	_, ok := repo.GetTribePostIDs(ctx, 3, time.Hour)
	require.False(t, ok)
}

func Test_PostRepository_TribePostIDListTTL(t *testing.T) {
	ctx := testutil.MockContext()
	redisClient := testutil.NewInMemoryRedisClient()
	repo := NewPostRepository(redisClient)

	repo.SetTribePostIDs(ctx, 3, []int64{5, 6})

	ids, ok := repo.GetTribePostIDs(ctx, 3, time.Hour)
	require.True(t, ok)
	require.Equal(t, []int64{5, 6}, ids)

	stale := cachedRecord[[]int64]{
		Value:    []int64{5, 6},
		StoredAt: time.Now().Add(-2 * time.Hour).UnixMilli(),
	}
	require.NoError(t, redisClient.SetObj(ctx, "tribe_posts_3", stale, 0))

	_, ok = repo.GetTribePostIDs(ctx, 3, time.Hour)
	require.False(t, ok)
}

func Test_PostRepository_ClearByID(t *testing.T) {
	ctx := testutil.MockContext()
	redisClient := testutil.NewInMemoryRedisClient()
	repo := NewPostRepository(redisClient)

	require.NoError(t, repo.Upsert(ctx, samplePost(5)))
	repo.ClearByID(ctx, 5)

	ok, err := redisClient.Exist(ctx, "post_5")
	require.NoError(t, err)
	require.False(t, ok)
}

func Test_TribeRepository_GetByMember(t *testing.T) {
	ctx := testutil.MockContext()
	repo := NewTribeRepository(testutil.NewInMemoryRedisClient())

	require.NoError(t, repo.Upsert(ctx, &entity.Tribe{
		ID: 1, Name: "owners", Owner: "0xalice", Admins: entity.Array[string]{"0xalice"},
	}))
	require.NoError(t, repo.Upsert(ctx, &entity.Tribe{
		ID: 2, Name: "admins", Owner: "0xbob", Admins: entity.Array[string]{"0xbob", "0xalice"},
	}))
	require.NoError(t, repo.Upsert(ctx, &entity.Tribe{
		ID: 3, Name: "others", Owner: "0xcarol", Admins: entity.Array[string]{"0xcarol"},
	}))

	tribes, err := repo.GetByMember(ctx, "0xalice")
	require.NoError(t, err)
	require.Len(t, tribes, 2)
}

func Test_ProfileRepository_GetByAddressesSkipsMissing(t *testing.T) {
	ctx := testutil.MockContext()
	repo := NewProfileRepository(testutil.NewInMemoryRedisClient())

	require.NoError(t, repo.Upsert(ctx, &entity.Profile{
		Address: "0xalice", TokenID: 0, Username: "alice",
	}))

	profiles, err := repo.GetByAddresses(ctx, []string{"0xalice", "0xghost"}, time.Hour)
	require.NoError(t, err)
	require.Len(t, profiles, 1)
	require.Equal(t, "alice", profiles[0].Username)
}

func Test_PostRepository_RedisFailureDegradesToDatabase(t *testing.T) {
	ctx := testutil.MockContext()

	redisClient := &testutil.MockRedisClient{
		GetObjFunc: func(ctx context.Context, key string, v any) error {
			return errors.New("connection refused")
		},
	}
	repo := NewPostRepository(redisClient)

	require.NoError(t, repo.Upsert(ctx, samplePost(9)))

	post, _, err := repo.GetByID(ctx, 9, time.Hour)
	require.NoError(t, err)
	require.Equal(t, int64(9), post.ID)
}
