package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/tribes-lab/backend/internal/entity"
	"github.com/tribes-lab/backend/pkg/xcontext"
	"github.com/tribes-lab/backend/pkg/xredis"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrRecordNotFound = gorm.ErrRecordNotFound

// cachedRecord wraps a persisted payload with its write time so later reads
// can apply tier TTLs.
type cachedRecord[T any] struct {
	Value    T     `json:"value"`
	StoredAt int64 `json:"stored_at"`
}

func (r cachedRecord[T]) storedAt() time.Time {
	return time.UnixMilli(r.StoredAt)
}

func (r cachedRecord[T]) expired(ttl time.Duration) bool {
	return time.Since(r.storedAt()) > ttl
}

func newCachedRecord[T any](value T) cachedRecord[T] {
	return cachedRecord[T]{Value: value, StoredAt: time.Now().UnixMilli()}
}

type PostRepository interface {
	Upsert(ctx context.Context, post *entity.Post) error
	GetByID(ctx context.Context, id int64, ttl time.Duration) (*entity.Post, time.Time, error)
	GetByTribe(ctx context.Context, tribeID int64, offset, limit int) ([]entity.Post, error)
	ClearByID(ctx context.Context, id int64)

	SetTribePostIDs(ctx context.Context, tribeID int64, ids []int64)
	GetTribePostIDs(ctx context.Context, tribeID int64, ttl time.Duration) ([]int64, bool)
	ClearTribePostIDs(ctx context.Context, tribeID int64)

	SetUserPostIDs(ctx context.Context, address string, ids []int64)
	GetUserPostIDs(ctx context.Context, address string, ttl time.Duration) ([]int64, bool)
}

// postRepository fronts the database with redis. Both tiers are optional:
// a nil redis client or an absent DB in the context simply narrows the
// lookup chain.
type postRepository struct {
	redisClient xredis.Client
}

func NewPostRepository(redisClient xredis.Client) *postRepository {
	return &postRepository{redisClient: redisClient}
}

func (r *postRepository) cacheKey(id int64) string {
	return fmt.Sprintf("post_%d", id)
}

func (r *postRepository) tribeListKey(tribeID int64) string {
	return fmt.Sprintf("tribe_posts_%d", tribeID)
}

func (r *postRepository) userListKey(address string) string {
	return fmt.Sprintf("user_posts_%s", address)
}

func (r *postRepository) cache(ctx context.Context, posts ...entity.Post) {
	if r.redisClient == nil {
		return
	}

	kv := map[string]any{}
	for _, post := range posts {
		kv[r.cacheKey(post.ID)] = newCachedRecord(post)
	}

	if err := r.redisClient.MSet(ctx, kv); err != nil {
		xcontext.Logger(ctx).Warnf("Cannot multiple set for post redis: %v", err)
	}
}

func (r *postRepository) Upsert(ctx context.Context, post *entity.Post) error {
	if db := xcontext.DB(ctx); db != nil {
		err := db.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			UpdateAll: true,
		}).Create(post).Error
		if err != nil {
			return err
		}
	}

	r.cache(ctx, *post)
	return nil
}

// GetByID probes redis, then the database. An expired redis record is
// dropped and treated as a miss. The returned time is the tier write time,
// preserved so the memory tier does not re-stamp promoted values as fresh.
func (r *postRepository) GetByID(
	ctx context.Context, id int64, ttl time.Duration,
) (*entity.Post, time.Time, error) {
	if r.redisClient != nil {
		var record cachedRecord[entity.Post]
		err := r.redisClient.GetObj(ctx, r.cacheKey(id), &record)
		switch {
		case err == nil && !record.expired(ttl):
			return &record.Value, record.storedAt(), nil
		case err == nil:
			if err := r.redisClient.Del(ctx, r.cacheKey(id)); err != nil {
				xcontext.Logger(ctx).Warnf("Cannot drop expired post record: %v", err)
			}
		case !xredis.IsMiss(err):
			xcontext.Logger(ctx).Warnf("Cannot get post from redis: %v", err)
		}
	}

	db := xcontext.DB(ctx)
	if db == nil {
		return nil, time.Time{}, ErrRecordNotFound
	}

	var post entity.Post
	if err := db.Take(&post, "id=?", id).Error; err != nil {
		return nil, time.Time{}, err
	}

	r.cache(ctx, post)
	return &post, post.UpdatedAt, nil
}

func (r *postRepository) GetByTribe(ctx context.Context, tribeID int64, offset, limit int) ([]entity.Post, error) {
	db := xcontext.DB(ctx)
	if db == nil {
		return nil, nil
	}

	var posts []entity.Post
	err := db.Where("tribe_id=?", tribeID).
		Order("id DESC").
		Offset(offset).Limit(limit).
		Find(&posts).Error
	if err != nil {
		return nil, err
	}

	return posts, nil
}

func (r *postRepository) ClearByID(ctx context.Context, id int64) {
	if r.redisClient == nil {
		return
	}

	if err := r.redisClient.Del(ctx, r.cacheKey(id)); err != nil {
		xcontext.Logger(ctx).Warnf("Cannot invalidate post redis key: %v", err)
	}
}

func (r *postRepository) setIDList(ctx context.Context, key string, ids []int64) {
	if r.redisClient == nil {
		return
	}

	if err := r.redisClient.SetObj(ctx, key, newCachedRecord(ids), 0); err != nil {
		xcontext.Logger(ctx).Warnf("Cannot set id list %s: %v", key, err)
	}
}

func (r *postRepository) getIDList(ctx context.Context, key string, ttl time.Duration) ([]int64, bool) {
	if r.redisClient == nil {
		return nil, false
	}

	var record cachedRecord[[]int64]
	err := r.redisClient.GetObj(ctx, key, &record)
	if err != nil {
		if !xredis.IsMiss(err) {
			xcontext.Logger(ctx).Warnf("Cannot get id list %s: %v", key, err)
		}

		return nil, false
	}

	if record.expired(ttl) {
		return nil, false
	}

	return record.Value, true
}

func (r *postRepository) SetTribePostIDs(ctx context.Context, tribeID int64, ids []int64) {
	r.setIDList(ctx, r.tribeListKey(tribeID), ids)
}

func (r *postRepository) GetTribePostIDs(ctx context.Context, tribeID int64, ttl time.Duration) ([]int64, bool) {
	return r.getIDList(ctx, r.tribeListKey(tribeID), ttl)
}

func (r *postRepository) ClearTribePostIDs(ctx context.Context, tribeID int64) {
	if r.redisClient == nil {
		return
	}

	if err := r.redisClient.Del(ctx, r.tribeListKey(tribeID)); err != nil {
		xcontext.Logger(ctx).Warnf("Cannot invalidate tribe post list: %v", err)
	}
}

func (r *postRepository) SetUserPostIDs(ctx context.Context, address string, ids []int64) {
	r.setIDList(ctx, r.userListKey(address), ids)
}

func (r *postRepository) GetUserPostIDs(ctx context.Context, address string, ttl time.Duration) ([]int64, bool) {
	return r.getIDList(ctx, r.userListKey(address), ttl)
}
