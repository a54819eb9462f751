package domain

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/tribes-lab/backend/internal/domain/taskqueue"
	"github.com/tribes-lab/backend/internal/gateway"
	"github.com/tribes-lab/backend/internal/model"
	"github.com/tribes-lab/backend/internal/repository"
	"github.com/tribes-lab/backend/internal/testutil"
	"github.com/tribes-lab/backend/pkg/errorx"
	"github.com/tribes-lab/backend/pkg/xcontext"
)

func newTestPostsService(
	t *testing.T, ctx context.Context, gw *testutil.MockGateway,
) (*postsService, *taskqueue.Queue) {
	queue := taskqueue.NewQueue(ctx)
	indexer := NewIndexerService(
		gw, repository.NewTribeRepository(nil), repository.NewProfileRepository(nil))

	posts, err := NewPostsService(
		ctx, gw, repository.NewPostRepository(testutil.NewInMemoryRedisClient()), nil, queue, indexer)
	require.NoError(t, err)

	return posts, queue
}

func rawPost(id, tribeID int64) *gateway.RawPost {
	return &gateway.RawPost{
		ID:        big.NewInt(id),
		Author:    "0xauthor",
		TribeID:   big.NewInt(tribeID),
		Timestamp: big.NewInt(1700000000 + id),
		Content:   "content",
	}
}

func Test_PostsService_PromotionIsIdempotent(t *testing.T) {
	ctx := testutil.MockContext()

	chainReads := 0
	gw := &testutil.MockGateway{
		GetPostFunc: func(ctx context.Context, id int64) (*gateway.RawPost, error) {
			chainReads++
			return rawPost(id, 3), nil
		},
	}

	s, _ := newTestPostsService(t, ctx, gw)

	first := s.GetPost(ctx, "5")
	require.NotNil(t, first)
	require.Equal(t, 1, chainReads)

	second := s.GetPost(ctx, "5")
	require.NotNil(t, second)
	require.Equal(t, *first, *second)
	require.Equal(t, 1, chainReads)

	metrics := s.Metrics()
	require.Equal(t, int64(1), metrics.ChainHits)
	require.Equal(t, int64(1), metrics.MemoryHits)
}

func Test_PostsService_ExpiredMemoryEntryFallsThrough(t *testing.T) {
	ctx := testutil.MockContext()

	chainReads := 0
	gw := &testutil.MockGateway{
		GetPostFunc: func(ctx context.Context, id int64) (*gateway.RawPost, error) {
			chainReads++
			return rawPost(id, 3), nil
		},
	}

	s, _ := newTestPostsService(t, ctx, gw)

	ttl := xcontext.Configs(ctx).Cache.MemoryTTL
	stale := model.Post{ID: "5", Author: "0xauthor", TribeID: "3"}
	s.memory.SetAt("5", stale, time.Now().Add(-ttl-time.Millisecond))

	post := s.GetPost(ctx, "5")
	require.NotNil(t, post)
	require.Equal(t, 1, chainReads)
}

func Test_PostsService_SlowTierHitKeepsStoredTime(t *testing.T) {
	ctx := testutil.MockContext()
	gw := &testutil.MockGateway{}
	s, queue := newTestPostsService(t, ctx, gw)

	chainReads := 0
	gw.GetPostFunc = func(ctx context.Context, id int64) (*gateway.RawPost, error) {
		chainReads++
		return rawPost(id, 3), nil
	}

	// Cold read resolves from the chain and queues the slow-tier persist.
	require.NotNil(t, s.GetPost(ctx, "5"))
	queue.Drain(ctx)

	// A fresh service with the same repository resolves without the chain.
	fresh, err := NewPostsService(ctx, gw, s.postRepo, nil, queue, nil)
	require.NoError(t, err)

	post := fresh.GetPost(ctx, "5")
	require.NotNil(t, post)
	require.Equal(t, 1, chainReads)
	require.Equal(t, int64(1), fresh.Metrics().StoreHits)
}

func Test_PostsService_BestEffortCollectionResolution(t *testing.T) {
	ctx := testutil.MockContext()
	gw := &testutil.MockGateway{}
	s, _ := newTestPostsService(t, ctx, gw)

	available := model.Post{ID: "2", Author: "0xauthor", TribeID: "3"}
	s.memory.Set("2", available)
	s.tribeIndex.Store("3", idList{IDs: []string{"1", "2"}, StoredAt: time.Now()})

	posts := s.GetPostsByTribe(ctx, "3", 0, 0)
	require.Len(t, posts, 1)
	require.Equal(t, "2", posts[0].ID)
}

func Test_PostsService_ZeroResolvedIsNotCached(t *testing.T) {
	ctx := testutil.MockContext()

	gw := &testutil.MockGateway{
		GetPostIDsByTribeFunc: func(ctx context.Context, tribeID int64, offset, limit int) ([]int64, error) {
			return []int64{7}, nil
		},
	}

	s, _ := newTestPostsService(t, ctx, gw)

	posts := s.GetPostsByTribe(ctx, "3", 0, 0)
	require.Empty(t, posts)

	_, cached := s.tribeIndex.Load("3")
	require.False(t, cached)
}

func Test_PostsService_ColdFetchPopulatesIndex(t *testing.T) {
	ctx := testutil.MockContext()

	listReads := 0
	gw := &testutil.MockGateway{
		GetPostIDsByTribeFunc: func(ctx context.Context, tribeID int64, offset, limit int) ([]int64, error) {
			listReads++
			return []int64{5, 6}, nil
		},
		GetPostFunc: func(ctx context.Context, id int64) (*gateway.RawPost, error) {
			return rawPost(id, 3), nil
		},
	}

	s, _ := newTestPostsService(t, ctx, gw)

	posts := s.GetPostsByTribe(ctx, "3", 0, 0)
	require.Len(t, posts, 2)
	require.Equal(t, 1, listReads)

	// Warm reads slice the cached list locally without another id-list read.
	posts = s.GetPostsByTribe(ctx, "3", 1, 1)
	require.Len(t, posts, 1)
	require.Equal(t, "6", posts[0].ID)
	require.Equal(t, 1, listReads)
}

func Test_PostsService_UserFeedPagination(t *testing.T) {
	ctx := testutil.MockContext()

	gw := &testutil.MockGateway{
		GetPostIDsByAuthorFunc: func(ctx context.Context, author string, offset, limit int) ([]int64, error) {
			return []int64{1, 2, 3}, nil
		},
		GetPostFunc: func(ctx context.Context, id int64) (*gateway.RawPost, error) {
			return rawPost(id, 3), nil
		},
	}

	s, _ := newTestPostsService(t, ctx, gw)

	feed := s.GetUserFeed(ctx, "0xauthor", 0, 0)
	require.Len(t, feed, 3)

	feed = s.GetUserFeed(ctx, "0xauthor", 2, 5)
	require.Len(t, feed, 1)

	feed = s.GetUserFeed(ctx, "0xauthor", 9, 5)
	require.Empty(t, feed)
}

func Test_PostsService_ClearPostForcesRefetch(t *testing.T) {
	ctx := testutil.MockContext()

	chainReads := 0
	gw := &testutil.MockGateway{
		GetPostFunc: func(ctx context.Context, id int64) (*gateway.RawPost, error) {
			chainReads++
			return rawPost(id, 3), nil
		},
	}

	s, _ := newTestPostsService(t, ctx, gw)

	require.NotNil(t, s.GetPost(ctx, "5"))
	s.ClearPostFromCache(ctx, "5")
	require.NotNil(t, s.GetPost(ctx, "5"))
	require.Equal(t, 2, chainReads)
}

func Test_PostsService_WriteRequiresSigner(t *testing.T) {
	ctx := testutil.MockContext()
	gw := &testutil.MockGateway{
		HasSignerFunc: func() bool { return false },
	}

	s, _ := newTestPostsService(t, ctx, gw)

	_, err := s.CreatePost(ctx, &model.CreatePostRequest{TribeID: "3", Content: "hi"})
	var xerr errorx.Error
	require.ErrorAs(t, err, &xerr)
	require.Equal(t, errorx.NoSigner, xerr.Code)

	require.ErrorAs(t, s.LikePost(ctx, "5"), &xerr)
	require.Equal(t, errorx.NoSigner, xerr.Code)
}

func Test_PostsService_CreatePostReadsBackNewID(t *testing.T) {
	ctx := testutil.MockContext()

	gw := &testutil.MockGateway{
		NextPostIDFunc: func(ctx context.Context) (int64, error) { return 6, nil },
		GetPostFunc: func(ctx context.Context, id int64) (*gateway.RawPost, error) {
			return rawPost(id, 3), nil
		},
	}

	s, _ := newTestPostsService(t, ctx, gw)

	post, err := s.CreatePost(ctx, &model.CreatePostRequest{TribeID: "3", Content: "hi"})
	require.NoError(t, err)
	require.NotNil(t, post)
	require.Equal(t, "5", post.ID)
}

func Test_PostsService_RevertedTransactionSurfaces(t *testing.T) {
	ctx := testutil.MockContext()

	gw := &testutil.MockGateway{
		WaitForReceiptFunc: func(ctx context.Context, txHash string) error {
			return gateway.ErrNotFound
		},
	}

	s, _ := newTestPostsService(t, ctx, gw)

	err := s.SharePost(ctx, "5")
	var xerr errorx.Error
	require.ErrorAs(t, err, &xerr)
	require.Equal(t, errorx.TxReverted, xerr.Code)
}

func Test_PostsService_FeedInvalidationIgnoresAddressCase(t *testing.T) {
	ctx := testutil.MockContext()

	listReads := 0
	gw := &testutil.MockGateway{
		GetPostIDsByAuthorFunc: func(ctx context.Context, author string, offset, limit int) ([]int64, error) {
			listReads++
			return []int64{1}, nil
		},
		GetPostFunc: func(ctx context.Context, id int64) (*gateway.RawPost, error) {
			return rawPost(id, 3), nil
		},
		NextPostIDFunc:    func(ctx context.Context) (int64, error) { return 2, nil },
		SignerAddressFunc: func() string { return "0xAbCd" },
	}

	queue := taskqueue.NewQueue(ctx)
	indexer := NewIndexerService(
		gw, repository.NewTribeRepository(nil), repository.NewProfileRepository(nil))

	// No redis tier, so a stale feed can only be served from the memory index.
	s, err := NewPostsService(
		ctx, gw, repository.NewPostRepository(nil), nil, queue, indexer)
	require.NoError(t, err)

	feed := s.GetUserFeed(ctx, "0xabcd", 0, 10)
	require.Len(t, feed, 1)
	require.Equal(t, 1, listReads)

	// The author's own write invalidates the feed it warmed under another
	// casing of the same address.
	_, err = s.CreatePost(ctx, &model.CreatePostRequest{TribeID: "3", Content: "hi"})
	require.NoError(t, err)

	s.GetUserFeed(ctx, "0xabcd", 0, 10)
	require.Equal(t, 2, listReads)
}
