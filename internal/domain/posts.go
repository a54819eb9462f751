package domain

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/puzpuzpuz/xsync"
	"github.com/tribes-lab/backend/internal/api"
	"github.com/tribes-lab/backend/internal/domain/taskqueue"
	"github.com/tribes-lab/backend/internal/gateway"
	"github.com/tribes-lab/backend/internal/model"
	"github.com/tribes-lab/backend/internal/repository"
	"github.com/tribes-lab/backend/pkg/cache"
	"github.com/tribes-lab/backend/pkg/errorx"
	"github.com/tribes-lab/backend/pkg/xcontext"
	"gorm.io/gorm"
)

// TaskPersistPost queues a write-through of a resolved post into the slower
// tiers. Handler failures are the queue's problem, not the reader's.
const TaskPersistPost = "persist_post"

// syncPageLimit bounds how many post ids one background pass pulls per tribe.
const syncPageLimit = 100

// CacheMetrics counts lookups by the tier that resolved them. Purely for
// observability.
type CacheMetrics struct {
	MemoryHits int64 `json:"memory_hits"`
	StoreHits  int64 `json:"store_hits"`
	ApiHits    int64 `json:"api_hits"`
	ChainHits  int64 `json:"chain_hits"`
	Misses     int64 `json:"misses"`
}

type PostsService interface {
	GetPost(ctx context.Context, id string) *model.Post
	GetPostsByTribe(ctx context.Context, tribeID string, offset, limit int) []model.Post
	GetUserFeed(ctx context.Context, address string, offset, limit int) []model.Post

	ClearPostFromCache(ctx context.Context, id string)
	ClearTribeCache(ctx context.Context, tribeID string)

	CreatePost(ctx context.Context, req *model.CreatePostRequest) (*model.Post, error)
	UpdatePost(ctx context.Context, req *model.UpdatePostRequest) (*model.Post, error)
	DeletePost(ctx context.Context, id string) error
	LikePost(ctx context.Context, id string) error
	AddComment(ctx context.Context, id, comment string) error
	SharePost(ctx context.Context, id string) error

	SyncTribePosts(ctx context.Context, tribeID string) error
	StartSync(ctx context.Context)
	StopSync()
	SyncStatus() model.SyncStatus
	AddSyncListener(listener func(model.SyncStatus)) func()

	Metrics() CacheMetrics
}

// idList is a TTL-stamped ordered id list for one partition (a tribe or a
// user feed). Unlike the indexer's coarse family timestamp, each list
// expires independently.
type idList struct {
	IDs      []string
	StoredAt time.Time
}

func (l idList) expired(ttl time.Duration) bool {
	return time.Since(l.StoredAt) > ttl
}

type postsService struct {
	gateway  gateway.Gateway
	postRepo repository.PostRepository
	caller   *api.Caller
	queue    *taskqueue.Queue
	syncer   *syncScheduler

	memory     *cache.Bounded[model.Post]
	tribeIndex *xsync.MapOf[string, idList]
	userIndex  *xsync.MapOf[string, idList]

	memoryHits int64
	storeHits  int64
	apiHits    int64
	chainHits  int64
	misses     int64
}

// NewPostsService wires the read tiers in probe order: the bounded memory
// cache, the repository (redis then database), the optional posts API of
// another instance, and the chain. A nil caller disables the API tier.
func NewPostsService(
	ctx context.Context,
	gw gateway.Gateway,
	postRepo repository.PostRepository,
	caller *api.Caller,
	queue *taskqueue.Queue,
	indexer IndexerService,
) (*postsService, error) {
	memory, err := cache.NewBounded[model.Post](xcontext.Configs(ctx).Cache.PostCapacity)
	if err != nil {
		return nil, err
	}

	s := &postsService{
		gateway:    gw,
		postRepo:   postRepo,
		caller:     caller,
		queue:      queue,
		memory:     memory,
		tribeIndex: xsync.NewMapOf[idList](),
		userIndex:  xsync.NewMapOf[idList](),
	}

	s.syncer = newSyncScheduler(s, indexer)
	queue.RegisterHandler(TaskPersistPost, s.handlePersistPost)
	return s, nil
}

func (s *postsService) handlePersistPost(ctx context.Context, data any) error {
	post, ok := data.(model.Post)
	if !ok {
		return errors.New("persist task carries unexpected payload")
	}

	record := model.PostToEntity(&post)
	return s.postRepo.Upsert(ctx, &record)
}

// queuePersist schedules the slow-tier write-through without blocking the
// read path. The reader never learns whether it worked.
func (s *postsService) queuePersist(ctx context.Context, post model.Post) {
	s.queue.Enqueue(ctx, TaskPersistPost, post, 1)
}

func isRecordNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound) || errors.Is(err, repository.ErrRecordNotFound)
}

// GetPost resolves one post through the tiers, promoting every slow-tier hit
// into the memory cache. It returns nil when no tier has the post; read
// failures on the way down count as tier misses, not errors.
func (s *postsService) GetPost(ctx context.Context, id string) *model.Post {
	cfg := xcontext.Configs(ctx).Cache

	if entry, ok := s.memory.Get(id); ok && !entry.Expired(cfg.MemoryTTL) {
		atomic.AddInt64(&s.memoryHits, 1)
		post := entry.Value
		return &post
	}

	numericID, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return nil
	}

	record, storedAt, err := s.postRepo.GetByID(ctx, numericID, cfg.PersistentTTL)
	if err == nil {
		post := model.ConvertPost(record)
		s.memory.SetAt(id, post, storedAt)
		atomic.AddInt64(&s.storeHits, 1)
		return &post
	}
	if !isRecordNotFound(err) {
		xcontext.Logger(ctx).Warnf("Post store tier failed for %s: %v", id, err)
	}

	if s.caller != nil {
		post, err := s.caller.GetPost(ctx, id)
		if err != nil {
			xcontext.Logger(ctx).Warnf("Posts api tier failed for %s: %v", id, err)
		} else if post != nil {
			s.memory.Set(id, *post)
			s.queuePersist(ctx, *post)
			atomic.AddInt64(&s.apiHits, 1)
			return post
		}
	}

	raw, err := s.gateway.GetPost(ctx, numericID)
	if err != nil {
		if !errors.Is(err, gateway.ErrNotFound) {
			xcontext.Logger(ctx).Warnf("Cannot read post %s from chain: %v", id, err)
		}

		atomic.AddInt64(&s.misses, 1)
		return nil
	}

	post := model.ConvertRawPost(raw)
	if post == nil {
		atomic.AddInt64(&s.misses, 1)
		return nil
	}

	s.memory.Set(id, *post)
	s.queuePersist(ctx, *post)
	atomic.AddInt64(&s.chainHits, 1)
	return post
}

func paginate(ids []string, offset, limit int) []string {
	if offset >= len(ids) {
		return nil
	}

	ids = ids[offset:]
	if limit > 0 && limit < len(ids) {
		ids = ids[:limit]
	}

	return ids
}

// resolveIDs turns an id list into posts best-effort. An id that no longer
// resolves is dropped, never padded with a placeholder.
func (s *postsService) resolveIDs(ctx context.Context, ids []string) []model.Post {
	posts := []model.Post{}
	for _, id := range ids {
		if post := s.GetPost(ctx, id); post != nil {
			posts = append(posts, *post)
		}
	}

	return posts
}

func formatIDs(ids []int64) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		out = append(out, model.FormatID(id))
	}

	return out
}

// GetPostsByTribe serves a tribe's posts from the freshest id list
// available. Pagination slices the cached list locally; it is pushed to the
// chain only on a cold fetch.
func (s *postsService) GetPostsByTribe(ctx context.Context, tribeID string, offset, limit int) []model.Post {
	cfg := xcontext.Configs(ctx).Cache

	if list, ok := s.tribeIndex.Load(tribeID); ok && !list.expired(cfg.MemoryTTL) {
		return s.resolveIDs(ctx, paginate(list.IDs, offset, limit))
	}

	numericTribe, err := strconv.ParseInt(tribeID, 10, 64)
	if err != nil {
		return []model.Post{}
	}

	if ids, ok := s.postRepo.GetTribePostIDs(ctx, numericTribe, cfg.PersistentTTL); ok {
		listIDs := formatIDs(ids)
		s.tribeIndex.Store(tribeID, idList{IDs: listIDs, StoredAt: time.Now()})
		return s.resolveIDs(ctx, paginate(listIDs, offset, limit))
	}

	chainIDs, err := s.gateway.GetPostIDsByTribe(ctx, numericTribe, offset, limit)
	if err != nil {
		xcontext.Logger(ctx).Warnf("Cannot read post ids of tribe %s: %v", tribeID, err)
		return []model.Post{}
	}

	posts, resolved := s.fetchPosts(ctx, chainIDs)
	if len(posts) == 0 {
		// Nothing resolved. Do not cache, the emptiness may be a transient
		// RPC failure rather than a truly empty tribe.
		return posts
	}

	s.tribeIndex.Store(tribeID, idList{IDs: formatIDs(resolved), StoredAt: time.Now()})
	s.postRepo.SetTribePostIDs(ctx, numericTribe, resolved)
	return posts
}

// feedKey lowercases the address so checksummed and plain hex forms of the
// same account share one feed index entry.
func feedKey(address string) string {
	return strings.ToLower(address)
}

func (s *postsService) GetUserFeed(ctx context.Context, address string, offset, limit int) []model.Post {
	cfg := xcontext.Configs(ctx).Cache
	address = feedKey(address)

	if list, ok := s.userIndex.Load(address); ok && !list.expired(cfg.MemoryTTL) {
		return s.resolveIDs(ctx, paginate(list.IDs, offset, limit))
	}

	if ids, ok := s.postRepo.GetUserPostIDs(ctx, address, cfg.PersistentTTL); ok {
		listIDs := formatIDs(ids)
		s.userIndex.Store(address, idList{IDs: listIDs, StoredAt: time.Now()})
		return s.resolveIDs(ctx, paginate(listIDs, offset, limit))
	}

	chainIDs, err := s.gateway.GetPostIDsByAuthor(ctx, address, offset, limit)
	if err != nil {
		xcontext.Logger(ctx).Warnf("Cannot read post ids of user %s: %v", address, err)
		return []model.Post{}
	}

	posts, resolved := s.fetchPosts(ctx, chainIDs)
	if len(posts) == 0 {
		return posts
	}

	s.userIndex.Store(address, idList{IDs: formatIDs(resolved), StoredAt: time.Now()})
	s.postRepo.SetUserPostIDs(ctx, address, resolved)
	return posts
}

// fetchPosts reads each id straight from the chain, caching and queueing
// persistence per post. Unresolvable ids are discarded.
func (s *postsService) fetchPosts(ctx context.Context, ids []int64) ([]model.Post, []int64) {
	posts := []model.Post{}
	resolved := []int64{}
	for _, id := range ids {
		raw, err := s.gateway.GetPost(ctx, id)
		if err != nil {
			if !errors.Is(err, gateway.ErrNotFound) {
				xcontext.Logger(ctx).Warnf("Cannot read post %d from chain: %v", id, err)
			}
			continue
		}

		post := model.ConvertRawPost(raw)
		if post == nil {
			continue
		}

		s.memory.Set(post.ID, *post)
		s.queuePersist(ctx, *post)
		posts = append(posts, *post)
		resolved = append(resolved, id)
	}

	return posts, resolved
}

func (s *postsService) ClearPostFromCache(ctx context.Context, id string) {
	s.memory.Delete(id)
	if numericID, err := strconv.ParseInt(id, 10, 64); err == nil {
		s.postRepo.ClearByID(ctx, numericID)
	}
}

func (s *postsService) ClearTribeCache(ctx context.Context, tribeID string) {
	s.tribeIndex.Delete(tribeID)
	if numericTribe, err := strconv.ParseInt(tribeID, 10, 64); err == nil {
		s.postRepo.ClearTribePostIDs(ctx, numericTribe)
	}
}

func (s *postsService) requireSigner() error {
	if !s.gateway.HasSigner() {
		return errorx.New(errorx.NoSigner, "No signer key is configured")
	}

	return nil
}

func (s *postsService) waitForReceipt(ctx context.Context, txHash string) error {
	if err := s.gateway.WaitForReceipt(ctx, txHash); err != nil {
		xcontext.Logger(ctx).Errorf("Transaction %s failed: %v", txHash, err)
		return errorx.New(errorx.TxReverted, "Transaction was not confirmed")
	}

	return nil
}

// refreshEntry drops every cached copy of a post and re-reads it from the
// chain, so the caller observes its own write.
func (s *postsService) refreshEntry(ctx context.Context, id string) *model.Post {
	s.ClearPostFromCache(ctx, id)

	numericID, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return nil
	}

	raw, err := s.gateway.GetPost(ctx, numericID)
	if err != nil {
		xcontext.Logger(ctx).Warnf("Cannot re-read post %s after write: %v", id, err)
		return nil
	}

	post := model.ConvertRawPost(raw)
	if post == nil {
		return nil
	}

	s.memory.Set(id, *post)
	s.queuePersist(ctx, *post)
	return post
}

func (s *postsService) CreatePost(ctx context.Context, req *model.CreatePostRequest) (*model.Post, error) {
	if err := s.requireSigner(); err != nil {
		return nil, err
	}

	numericTribe, err := strconv.ParseInt(req.TribeID, 10, 64)
	if err != nil {
		return nil, errorx.New(errorx.BadRequest, "Invalid tribe id %s", req.TribeID)
	}

	metadata, err := json.Marshal(req.Metadata)
	if err != nil {
		return nil, errorx.New(errorx.BadRequest, "Invalid post metadata")
	}

	txHash, err := s.gateway.CreatePost(ctx, numericTribe, req.Content, string(metadata))
	if err != nil {
		xcontext.Logger(ctx).Errorf("Cannot submit create post: %v", err)
		return nil, errorx.Unknown
	}

	if err := s.waitForReceipt(ctx, txHash); err != nil {
		return nil, err
	}

	s.ClearTribeCache(ctx, req.TribeID)
	s.userIndex.Delete(feedKey(s.gateway.SignerAddress()))

	// The contract mints sequential ids, so the freshly confirmed post is
	// next-1. A failed read-back is not a failed write.
	next, err := s.gateway.NextPostID(ctx)
	if err != nil {
		xcontext.Logger(ctx).Warnf("Cannot read back created post: %v", err)
		return nil, nil
	}

	return s.refreshEntry(ctx, model.FormatID(next-1)), nil
}

func (s *postsService) UpdatePost(ctx context.Context, req *model.UpdatePostRequest) (*model.Post, error) {
	if err := s.requireSigner(); err != nil {
		return nil, err
	}

	numericID, err := strconv.ParseInt(req.PostID, 10, 64)
	if err != nil {
		return nil, errorx.New(errorx.BadRequest, "Invalid post id %s", req.PostID)
	}

	metadata, err := json.Marshal(req.Metadata)
	if err != nil {
		return nil, errorx.New(errorx.BadRequest, "Invalid post metadata")
	}

	txHash, err := s.gateway.UpdatePost(ctx, numericID, string(metadata))
	if err != nil {
		xcontext.Logger(ctx).Errorf("Cannot submit update post: %v", err)
		return nil, errorx.Unknown
	}

	if err := s.waitForReceipt(ctx, txHash); err != nil {
		return nil, err
	}

	return s.refreshEntry(ctx, req.PostID), nil
}

// DeletePost tombstones the post on chain. The id stays resolvable so reply
// threads keep their anchor; only content and visibility are cleared.
func (s *postsService) DeletePost(ctx context.Context, id string) error {
	return s.interact(ctx, id, func(numericID int64) (string, error) {
		return s.gateway.DeletePost(ctx, numericID)
	})
}

func (s *postsService) LikePost(ctx context.Context, id string) error {
	return s.interact(ctx, id, func(numericID int64) (string, error) {
		return s.gateway.LikePost(ctx, numericID)
	})
}

func (s *postsService) AddComment(ctx context.Context, id, comment string) error {
	return s.interact(ctx, id, func(numericID int64) (string, error) {
		return s.gateway.CommentPost(ctx, numericID, comment)
	})
}

func (s *postsService) SharePost(ctx context.Context, id string) error {
	return s.interact(ctx, id, func(numericID int64) (string, error) {
		return s.gateway.SharePost(ctx, numericID)
	})
}

// interact runs one counter-changing transaction against a post and
// re-syncs the cache entry afterwards.
func (s *postsService) interact(
	ctx context.Context, id string, submit func(numericID int64) (string, error),
) error {
	if err := s.requireSigner(); err != nil {
		return err
	}

	numericID, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return errorx.New(errorx.BadRequest, "Invalid post id %s", id)
	}

	txHash, err := submit(numericID)
	if err != nil {
		xcontext.Logger(ctx).Errorf("Cannot submit interaction on post %s: %v", id, err)
		return errorx.Unknown
	}

	if err := s.waitForReceipt(ctx, txHash); err != nil {
		return err
	}

	s.refreshEntry(ctx, id)
	return nil
}

// SyncTribePosts re-pulls one tribe's post list from the chain. Called by
// the background scheduler; an error here is counted but never stops the
// pass.
func (s *postsService) SyncTribePosts(ctx context.Context, tribeID string) error {
	numericTribe, err := strconv.ParseInt(tribeID, 10, 64)
	if err != nil {
		return errorx.New(errorx.BadRequest, "Invalid tribe id %s", tribeID)
	}

	chainIDs, err := s.gateway.GetPostIDsByTribe(ctx, numericTribe, 0, syncPageLimit)
	if err != nil {
		return err
	}

	posts, resolved := s.fetchPosts(ctx, chainIDs)
	if len(posts) == 0 {
		return nil
	}

	s.tribeIndex.Store(tribeID, idList{IDs: formatIDs(resolved), StoredAt: time.Now()})
	s.postRepo.SetTribePostIDs(ctx, numericTribe, resolved)
	return nil
}

func (s *postsService) StartSync(ctx context.Context) { s.syncer.Start(ctx) }
func (s *postsService) StopSync()                     { s.syncer.Stop() }

func (s *postsService) SyncStatus() model.SyncStatus {
	return s.syncer.Status()
}

func (s *postsService) AddSyncListener(listener func(model.SyncStatus)) func() {
	return s.syncer.AddListener(listener)
}

func (s *postsService) Metrics() CacheMetrics {
	return CacheMetrics{
		MemoryHits: atomic.LoadInt64(&s.memoryHits),
		StoreHits:  atomic.LoadInt64(&s.storeHits),
		ApiHits:    atomic.LoadInt64(&s.apiHits),
		ChainHits:  atomic.LoadInt64(&s.chainHits),
		Misses:     atomic.LoadInt64(&s.misses),
	}
}
