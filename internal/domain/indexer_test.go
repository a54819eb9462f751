package domain

import (
	"context"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/tribes-lab/backend/internal/gateway"
	"github.com/tribes-lab/backend/internal/model"
	"github.com/tribes-lab/backend/internal/repository"
	"github.com/tribes-lab/backend/internal/testutil"
	"github.com/tribes-lab/backend/pkg/errorx"
	"github.com/tribes-lab/backend/pkg/xcontext"
)

func newTestIndexer(gw *testutil.MockGateway) *indexerService {
	return NewIndexerService(
		gw, repository.NewTribeRepository(nil), repository.NewProfileRepository(nil))
}

func Test_Indexer_RebuildServesTribeIndexWithoutSecondRead(t *testing.T) {
	ctx := testutil.MockContext()

	chainReads := 0
	gw := &testutil.MockGateway{
		NextPostIDFunc: func(ctx context.Context) (int64, error) { return 6, nil },
		GetPostFunc: func(ctx context.Context, id int64) (*gateway.RawPost, error) {
			chainReads++
			if id != 5 {
				return nil, gateway.ErrNotFound
			}
			return rawPost(id, 3), nil
		},
	}

	s := newTestIndexer(gw)

	posts := s.GetPostsByTribe(ctx, "3")
	require.Len(t, posts, 1)
	require.Equal(t, "5", posts[0].ID)
	require.Equal(t, 6, chainReads)

	// The family is fresh; no chain traffic for the second read.
	posts = s.GetPostsByTribe(ctx, "3")
	require.Len(t, posts, 1)
	require.Equal(t, 6, chainReads)
}

func Test_Indexer_RebuildSkipsMalformedPosts(t *testing.T) {
	ctx := testutil.MockContext()

	gw := &testutil.MockGateway{
		NextPostIDFunc: func(ctx context.Context) (int64, error) { return 3, nil },
		GetPostFunc: func(ctx context.Context, id int64) (*gateway.RawPost, error) {
			if id == 1 {
				// Essential fields missing; must be skipped, not fatal.
				return &gateway.RawPost{ID: big.NewInt(id)}, nil
			}
			return rawPost(id, 3), nil
		},
	}

	s := newTestIndexer(gw)

	posts := s.GetPostsByTribe(ctx, "3")
	require.Len(t, posts, 2)
}

func Test_Indexer_FamilyTTLTriggersExactlyOneRebuild(t *testing.T) {
	ctx := testutil.MockContext()

	rebuilds := 0
	gw := &testutil.MockGateway{
		NextPostIDFunc: func(ctx context.Context) (int64, error) {
			rebuilds++
			return 0, nil
		},
	}

	s := newTestIndexer(gw)

	s.EnsureCacheValid(ctx, FamilyPosts)
	require.Equal(t, 1, rebuilds)

	s.EnsureCacheValid(ctx, FamilyPosts)
	require.Equal(t, 1, rebuilds)

	ttl := xcontext.Configs(ctx).Cache.FamilyTTL
	s.updateMutex.Lock()
	s.lastUpdate[FamilyPosts] = time.Now().Add(-ttl - time.Millisecond)
	s.updateMutex.Unlock()

	s.EnsureCacheValid(ctx, FamilyPosts)
	require.Equal(t, 2, rebuilds)
}

func Test_Indexer_TribeRebuildToleratesPartialFailure(t *testing.T) {
	ctx := testutil.MockContext()

	gw := &testutil.MockGateway{
		NextTribeIDFunc: func(ctx context.Context) (int64, error) { return 4, nil },
		GetTribeFunc: func(ctx context.Context, id int64) (*gateway.RawTribe, error) {
			if id == 2 {
				return nil, context.DeadlineExceeded
			}
			return &gateway.RawTribe{
				ID:    big.NewInt(id),
				Name:  "tribe",
				Owner: "0xowner",
			}, nil
		},
	}

	s := newTestIndexer(gw)

	tribes := s.GetTribesSince(ctx, 0)
	require.Len(t, tribes, 2)
	require.Equal(t, "1", tribes[0].ID)
	require.Equal(t, "3", tribes[1].ID)
}

func Test_Indexer_ProfileScanStopsAfterConsecutiveMisses(t *testing.T) {
	ctx := testutil.MockContext()

	ownerReads := 0
	gw := &testutil.MockGateway{
		OwnerOfFunc: func(ctx context.Context, tokenID int64) (string, error) {
			ownerReads++
			if tokenID == 0 {
				return "0xuser", nil
			}
			return "", gateway.ErrNotFound
		},
		GetProfileFunc: func(ctx context.Context, tokenID int64) (*gateway.RawProfile, error) {
			return &gateway.RawProfile{
				TokenID:  big.NewInt(tokenID),
				Owner:    "0xuser",
				Username: "alice",
			}, nil
		},
	}

	s := newTestIndexer(gw)
	s.EnsureCacheValid(ctx, FamilyProfiles)

	// Token 0 plus five consecutive misses, then the scan stops.
	require.Equal(t, 6, ownerReads)

	profiles := s.GetProfilesByAddresses(ctx, []string{"0xuser"})
	require.Len(t, profiles, 1)
	require.Equal(t, "alice", profiles[0].Username)
	require.Equal(t, 6, ownerReads)
}

func Test_Indexer_RefreshProfileZeroBalanceCachesEmpty(t *testing.T) {
	ctx := testutil.MockContext()

	balanceReads := 0
	gw := &testutil.MockGateway{
		ProfileBalanceOfFunc: func(ctx context.Context, owner string) (int64, error) {
			balanceReads++
			return 0, nil
		},
	}

	s := newTestIndexer(gw)

	profile, err := s.RefreshProfile(ctx, "0xnobody")
	require.NoError(t, err)
	require.NotNil(t, profile)
	require.Equal(t, "", profile.TokenID)

	cached, ok := s.profiles.Load("0xnobody")
	require.True(t, ok)
	require.Equal(t, "0xnobody", cached.Address)
}

func Test_Indexer_RefreshProfileInconsistencyIsSurfaced(t *testing.T) {
	ctx := testutil.MockContext()

	gw := &testutil.MockGateway{
		ProfileBalanceOfFunc: func(ctx context.Context, owner string) (int64, error) {
			return 1, nil
		},
		OwnerOfFunc: func(ctx context.Context, tokenID int64) (string, error) {
			return "", gateway.ErrNotFound
		},
	}

	s := newTestIndexer(gw)

	_, err := s.RefreshProfile(ctx, "0xghost")
	var xerr errorx.Error
	require.ErrorAs(t, err, &xerr)
	require.Equal(t, errorx.Internal, xerr.Code)
}

func Test_Indexer_OnCacheUpdateNotifiesAndUnsubscribes(t *testing.T) {
	ctx := testutil.MockContext()
	s := newTestIndexer(&testutil.MockGateway{})

	var gotFamily Family
	var gotPost *model.Post
	unsubscribe := s.OnCacheUpdate(func(family Family, payload any) {
		gotFamily = family
		gotPost, _ = payload.(*model.Post)
	})

	post := s.RefreshPost(ctx, "5")
	require.Nil(t, post) // empty chain

	s.storePost(&model.Post{ID: "5", Author: "0xauthor", TribeID: "3"})
	require.Equal(t, FamilyPosts, gotFamily)
	require.NotNil(t, gotPost)
	require.Equal(t, "5", gotPost.ID)

	unsubscribe()
	gotPost = nil
	s.storePost(&model.Post{ID: "6", Author: "0xauthor", TribeID: "3"})
	require.Nil(t, gotPost)
}

func Test_Indexer_UpdateChainIDInvalidatesFamilies(t *testing.T) {
	ctx := testutil.MockContext()

	switched := int64(0)
	gw := &testutil.MockGateway{
		SwitchChainFunc: func(ctx context.Context, chainID int64) error {
			switched = chainID
			return nil
		},
	}

	s := newTestIndexer(gw)
	s.storePost(&model.Post{ID: "5", Author: "0xauthor", TribeID: "3"})

	require.NoError(t, s.UpdateChainID(ctx, 137))
	require.Equal(t, int64(137), switched)

	_, ok := s.posts.Load("5")
	require.False(t, ok)
}

func Test_Indexer_ChainSwitchDuringReadsIsSafe(t *testing.T) {
	ctx := testutil.MockContext()

	gw := &testutil.MockGateway{
		NextPostIDFunc: func(ctx context.Context) (int64, error) { return 2, nil },
		GetPostFunc: func(ctx context.Context, id int64) (*gateway.RawPost, error) {
			return rawPost(id, 3), nil
		},
		SwitchChainFunc: func(ctx context.Context, chainID int64) error { return nil },
	}

	s := newTestIndexer(gw)

	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		for i := 0; i < 50; i++ {
			s.GetPostsSince(ctx, 0)
			s.GetPostsByTribe(ctx, "3")
		}
	}()

	go func() {
		defer wg.Done()
		for i := 0; i < 50; i++ {
			_ = s.UpdateChainID(ctx, int64(i))
		}
	}()

	wg.Wait()

	// The maps are still live after the churn.
	s.storePost(&model.Post{ID: "9", Author: "0xauthor", TribeID: "3"})
	_, ok := s.posts.Load("9")
	require.True(t, ok)
}

func Test_Indexer_ProfileScanAbortIsNotAnInconsistency(t *testing.T) {
	ctx := testutil.MockContext()

	gw := &testutil.MockGateway{
		ProfileBalanceOfFunc: func(ctx context.Context, owner string) (int64, error) {
			return 1, nil
		},
		OwnerOfFunc: func(ctx context.Context, tokenID int64) (string, error) {
			return "", context.DeadlineExceeded
		},
	}

	s := newTestIndexer(gw)

	profile, err := s.RefreshProfile(ctx, "0xflaky")
	require.NoError(t, err)
	require.Nil(t, profile)

	// The miss is not cached; a later healthy read resolves the profile.
	gw.OwnerOfFunc = func(ctx context.Context, tokenID int64) (string, error) {
		if tokenID == 0 {
			return "0xflaky", nil
		}
		return "", gateway.ErrNotFound
	}
	gw.GetProfileFunc = func(ctx context.Context, tokenID int64) (*gateway.RawProfile, error) {
		return &gateway.RawProfile{
			TokenID: big.NewInt(tokenID), Owner: "0xflaky", Username: "flaky",
		}, nil
	}

	profile, err = s.RefreshProfile(ctx, "0xflaky")
	require.NoError(t, err)
	require.NotNil(t, profile)
	require.Equal(t, "flaky", profile.Username)
}
