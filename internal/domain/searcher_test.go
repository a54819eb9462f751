package domain

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tribes-lab/backend/internal/domain/search"
	"github.com/tribes-lab/backend/internal/domain/taskqueue"
	"github.com/tribes-lab/backend/internal/gateway"
	"github.com/tribes-lab/backend/internal/model"
	"github.com/tribes-lab/backend/internal/repository"
	"github.com/tribes-lab/backend/internal/testutil"
)

func Test_SearchService_IndexesCacheUpdates(t *testing.T) {
	ctx := testutil.MockContext()

	contents := map[int64]string{
		1: "gophers ship fast",
		2: "cats sleep all day",
	}

	gw := &testutil.MockGateway{
		NextPostIDFunc: func(ctx context.Context) (int64, error) { return 3, nil },
		GetPostFunc: func(ctx context.Context, id int64) (*gateway.RawPost, error) {
			content, ok := contents[id]
			if !ok {
				return nil, gateway.ErrNotFound
			}

			post := rawPost(id, 1)
			post.Content = content
			return post, nil
		},
	}

	indexer := NewIndexerService(
		gw, repository.NewTribeRepository(nil), repository.NewProfileRepository(nil))
	posts, err := NewPostsService(
		ctx, gw,
		repository.NewPostRepository(testutil.NewInMemoryRedisClient()),
		nil, taskqueue.NewQueue(ctx), indexer)
	require.NoError(t, err)

	searcher := NewSearchService(ctx, search.NewBleveIndex(ctx), posts, indexer)
	defer searcher.Stop()

	// A family rebuild feeds every cached post through the update stream.
	require.Len(t, indexer.GetPostsSince(ctx, 0), 2)

	hits := searcher.SearchPosts(ctx, "gophers", 0, 10)
	require.Len(t, hits, 1)
	require.Equal(t, "1", hits[0].ID)
	require.Equal(t, "gophers ship fast", hits[0].Content)

	require.Empty(t, searcher.SearchPosts(ctx, "dogs", 0, 10))
}

func Test_SearchService_StopDetachesFromUpdates(t *testing.T) {
	ctx := testutil.MockContext()

	gw := &testutil.MockGateway{}
	indexer := NewIndexerService(
		gw, repository.NewTribeRepository(nil), repository.NewProfileRepository(nil))
	posts, err := NewPostsService(
		ctx, gw,
		repository.NewPostRepository(testutil.NewInMemoryRedisClient()),
		nil, taskqueue.NewQueue(ctx), indexer)
	require.NoError(t, err)

	searcher := NewSearchService(ctx, search.NewBleveIndex(ctx), posts, indexer)
	searcher.Stop()

	post := rawPost(7, 1)
	post.Content = "unreachable words"
	indexer.storePost(model.ConvertRawPost(post))

	require.Empty(t, searcher.SearchPosts(ctx, "unreachable", 0, 10))
}
