package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/tribes-lab/backend/internal/entity"
	"github.com/tribes-lab/backend/pkg/xcontext"
	"github.com/tribes-lab/backend/pkg/xredis"
	"gorm.io/gorm/clause"
)

type TribeRepository interface {
	Upsert(ctx context.Context, tribe *entity.Tribe) error
	GetByID(ctx context.Context, id int64, ttl time.Duration) (*entity.Tribe, error)
	GetAll(ctx context.Context) ([]entity.Tribe, error)
	GetByMember(ctx context.Context, address string) ([]entity.Tribe, error)
	ClearByID(ctx context.Context, id int64)
}

type tribeRepository struct {
	redisClient xredis.Client
}

func NewTribeRepository(redisClient xredis.Client) *tribeRepository {
	return &tribeRepository{redisClient: redisClient}
}

func (r *tribeRepository) cacheKey(id int64) string {
	return fmt.Sprintf("tribe_%d", id)
}

func (r *tribeRepository) Upsert(ctx context.Context, tribe *entity.Tribe) error {
	if db := xcontext.DB(ctx); db != nil {
		err := db.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			UpdateAll: true,
		}).Create(tribe).Error
		if err != nil {
			return err
		}
	}

	if r.redisClient != nil {
		if err := r.redisClient.SetObj(ctx, r.cacheKey(tribe.ID), newCachedRecord(*tribe), 0); err != nil {
			xcontext.Logger(ctx).Warnf("Cannot cache tribe: %v", err)
		}
	}

	return nil
}

func (r *tribeRepository) GetByID(ctx context.Context, id int64, ttl time.Duration) (*entity.Tribe, error) {
	if r.redisClient != nil {
		var record cachedRecord[entity.Tribe]
		err := r.redisClient.GetObj(ctx, r.cacheKey(id), &record)
		switch {
		case err == nil && !record.expired(ttl):
			return &record.Value, nil
		case err != nil && !xredis.IsMiss(err):
			xcontext.Logger(ctx).Warnf("Cannot get tribe from redis: %v", err)
		}
	}

	db := xcontext.DB(ctx)
	if db == nil {
		return nil, ErrRecordNotFound
	}

	var tribe entity.Tribe
	if err := db.Take(&tribe, "id=?", id).Error; err != nil {
		return nil, err
	}

	return &tribe, nil
}

func (r *tribeRepository) GetAll(ctx context.Context) ([]entity.Tribe, error) {
	db := xcontext.DB(ctx)
	if db == nil {
		return nil, nil
	}

	var tribes []entity.Tribe
	if err := db.Find(&tribes).Error; err != nil {
		return nil, err
	}

	return tribes, nil
}

func (r *tribeRepository) GetByMember(ctx context.Context, address string) ([]entity.Tribe, error) {
	db := xcontext.DB(ctx)
	if db == nil {
		return nil, nil
	}

	// Admin lists are stored as JSON arrays; membership of the owner or an
	// admin is decided here, everything finer lives on chain.
	var tribes []entity.Tribe
	err := db.Where("owner=? OR admins LIKE ?", address, "%"+address+"%").Find(&tribes).Error
	if err != nil {
		return nil, err
	}

	return tribes, nil
}

func (r *tribeRepository) ClearByID(ctx context.Context, id int64) {
	if r.redisClient == nil {
		return
	}

	if err := r.redisClient.Del(ctx, r.cacheKey(id)); err != nil {
		xcontext.Logger(ctx).Warnf("Cannot invalidate tribe redis key: %v", err)
	}
}
