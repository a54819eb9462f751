package domain

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/tribes-lab/backend/internal/domain/taskqueue"
	"github.com/tribes-lab/backend/internal/gateway"
	"github.com/tribes-lab/backend/internal/model"
	"github.com/tribes-lab/backend/internal/repository"
	"github.com/tribes-lab/backend/internal/testutil"
	"github.com/tribes-lab/backend/pkg/xcontext"
)

// preloadTribes marks the tribes family fresh so a sync pass walks exactly
// the given ids without touching the chain.
func preloadTribes(s *indexerService, ids ...string) {
	for _, id := range ids {
		s.tribes.Store(id, model.Tribe{ID: id, Name: "tribe", Owner: "0xowner"})
	}

	s.updateMutex.Lock()
	s.lastUpdate[FamilyTribes] = time.Now()
	s.updateMutex.Unlock()
}

func newTestSyncer(
	t *testing.T, ctx context.Context, gw *testutil.MockGateway, tribeIDs ...string,
) (*postsService, *indexerService) {
	indexer := newTestIndexer(gw)
	preloadTribes(indexer, tribeIDs...)

	posts, err := NewPostsService(
		ctx, gw,
		repository.NewPostRepository(testutil.NewInMemoryRedisClient()),
		nil, taskqueue.NewQueue(ctx), indexer,
	)
	require.NoError(t, err)

	return posts, indexer
}

func Test_Syncer_PassIsolatesPerTribeErrors(t *testing.T) {
	ctx := testutil.MockContext()

	failing := int64(2)
	gw := &testutil.MockGateway{
		GetPostIDsByTribeFunc: func(ctx context.Context, tribeID int64, offset, limit int) ([]int64, error) {
			if tribeID == atomic.LoadInt64(&failing) {
				return nil, context.DeadlineExceeded
			}
			return []int64{tribeID * 10}, nil
		},
		GetPostFunc: func(ctx context.Context, id int64) (*gateway.RawPost, error) {
			return rawPost(id, id/10), nil
		},
	}

	posts, _ := newTestSyncer(t, ctx, gw, "1", "2", "3")
	posts.syncer.runPass(ctx)

	status := posts.SyncStatus()
	require.False(t, status.IsSyncing)
	require.Equal(t, 3, status.Total)
	require.Equal(t, 3, status.Progress)
	require.Equal(t, 1, status.ErrorCount)
	require.NotEmpty(t, status.LastError)
	require.NotZero(t, status.LastSyncTime)

	// The healthy tribes still synced.
	require.Len(t, posts.GetPostsByTribe(ctx, "1", 0, 0), 1)
	require.Len(t, posts.GetPostsByTribe(ctx, "3", 0, 0), 1)
}

func Test_Syncer_ErrorCounterResetsOnlyAfterCleanPass(t *testing.T) {
	ctx := testutil.MockContext()

	failing := int64(2)
	gw := &testutil.MockGateway{
		GetPostIDsByTribeFunc: func(ctx context.Context, tribeID int64, offset, limit int) ([]int64, error) {
			if tribeID == atomic.LoadInt64(&failing) {
				return nil, context.DeadlineExceeded
			}
			return nil, nil
		},
	}

	posts, _ := newTestSyncer(t, ctx, gw, "1", "2")

	posts.syncer.runPass(ctx)
	require.Equal(t, 1, posts.SyncStatus().ErrorCount)

	// Still failing: the counter accumulates.
	posts.syncer.runPass(ctx)
	require.Equal(t, 2, posts.SyncStatus().ErrorCount)

	atomic.StoreInt64(&failing, -1)
	posts.syncer.runPass(ctx)
	require.Equal(t, 0, posts.SyncStatus().ErrorCount)
	require.Empty(t, posts.SyncStatus().LastError)
}

func Test_Syncer_OverlappingPassIsSkipped(t *testing.T) {
	ctx := testutil.MockContext()
	gw := &testutil.MockGateway{}

	posts, _ := newTestSyncer(t, ctx, gw, "1")

	atomic.StoreInt32(&posts.syncer.isSyncing, 1)
	posts.syncer.runPass(ctx)

	// The skipped pass never touched the status.
	require.Zero(t, posts.SyncStatus().Total)
	require.Zero(t, posts.SyncStatus().LastSyncTime)
}

func Test_Syncer_ListenersSeeTheFinalStatus(t *testing.T) {
	ctx := testutil.MockContext()
	gw := &testutil.MockGateway{}

	posts, _ := newTestSyncer(t, ctx, gw, "1")

	var last model.SyncStatus
	notified := 0
	unsubscribe := posts.AddSyncListener(func(status model.SyncStatus) {
		notified++
		last = status
	})

	posts.syncer.runPass(ctx)
	require.Greater(t, notified, 0)
	require.False(t, last.IsSyncing)
	require.Equal(t, 1, last.Progress)

	unsubscribe()
	before := notified
	posts.syncer.runPass(ctx)
	require.Equal(t, before, notified)
}

func Test_Syncer_StartStopLifecycle(t *testing.T) {
	ctx := testutil.MockContext()

	cfg := xcontext.Configs(ctx)
	cfg.Sync.StartDelay = 10 * time.Millisecond
	cfg.Sync.Interval = 20 * time.Millisecond
	ctx = xcontext.WithConfigs(ctx, cfg)

	gw := &testutil.MockGateway{}
	posts, _ := newTestSyncer(t, ctx, gw, "1")

	posts.StartSync(ctx)
	require.Eventually(t, func() bool {
		return posts.SyncStatus().LastSyncTime != 0
	}, time.Second, 5*time.Millisecond)

	posts.StopSync()
}
