package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tribes-lab/backend/internal/entity"
	"github.com/tribes-lab/backend/pkg/xcontext"
	"github.com/tribes-lab/backend/pkg/xredis"
	"gorm.io/gorm/clause"
)

type ProfileRepository interface {
	Upsert(ctx context.Context, profile *entity.Profile) error
	GetByAddress(ctx context.Context, address string, ttl time.Duration) (*entity.Profile, error)
	GetByAddresses(ctx context.Context, addresses []string, ttl time.Duration) ([]entity.Profile, error)
	ClearByAddress(ctx context.Context, address string)
}

type profileRepository struct {
	redisClient xredis.Client
}

func NewProfileRepository(redisClient xredis.Client) *profileRepository {
	return &profileRepository{redisClient: redisClient}
}

func (r *profileRepository) cacheKey(address string) string {
	return fmt.Sprintf("profile_%s", address)
}

func (r *profileRepository) Upsert(ctx context.Context, profile *entity.Profile) error {
	if db := xcontext.DB(ctx); db != nil {
		err := db.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "address"}},
			UpdateAll: true,
		}).Create(profile).Error
		if err != nil {
			return err
		}
	}

	if r.redisClient != nil {
		err := r.redisClient.SetObj(ctx, r.cacheKey(profile.Address), newCachedRecord(*profile), 0)
		if err != nil {
			xcontext.Logger(ctx).Warnf("Cannot cache profile: %v", err)
		}
	}

	return nil
}

func (r *profileRepository) GetByAddress(
	ctx context.Context, address string, ttl time.Duration,
) (*entity.Profile, error) {
	if r.redisClient != nil {
		var record cachedRecord[entity.Profile]
		err := r.redisClient.GetObj(ctx, r.cacheKey(address), &record)
		switch {
		case err == nil && !record.expired(ttl):
			return &record.Value, nil
		case err != nil && !xredis.IsMiss(err):
			xcontext.Logger(ctx).Warnf("Cannot get profile from redis: %v", err)
		}
	}

	db := xcontext.DB(ctx)
	if db == nil {
		return nil, ErrRecordNotFound
	}

	var profile entity.Profile
	if err := db.Take(&profile, "address=?", address).Error; err != nil {
		return nil, err
	}

	return &profile, nil
}

func (r *profileRepository) GetByAddresses(
	ctx context.Context, addresses []string, ttl time.Duration,
) ([]entity.Profile, error) {
	profiles := []entity.Profile{}
	for _, address := range addresses {
		profile, err := r.GetByAddress(ctx, address, ttl)
		if err != nil {
			if errors.Is(err, ErrRecordNotFound) {
				continue
			}

			return nil, err
		}

		profiles = append(profiles, *profile)
	}

	return profiles, nil
}

func (r *profileRepository) ClearByAddress(ctx context.Context, address string) {
	if r.redisClient == nil {
		return
	}

	if err := r.redisClient.Del(ctx, r.cacheKey(address)); err != nil {
		xcontext.Logger(ctx).Warnf("Cannot invalidate profile redis key: %v", err)
	}
}
