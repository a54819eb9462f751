package domain

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/puzpuzpuz/xsync"
	"github.com/tribes-lab/backend/internal/gateway"
	"github.com/tribes-lab/backend/internal/model"
	"github.com/tribes-lab/backend/internal/repository"
	"github.com/tribes-lab/backend/pkg/errorx"
	"github.com/tribes-lab/backend/pkg/xcontext"
)

type Family string

const (
	FamilyPosts    Family = "posts"
	FamilyTribes   Family = "tribes"
	FamilyProfiles Family = "profiles"
)

// CacheUpdateListener receives the family name and the entity that was just
// written. Payload is *model.Post, *model.Tribe, or *model.Profile.
type CacheUpdateListener func(family Family, payload any)

type IndexerService interface {
	EnsureCacheValid(ctx context.Context, family Family)

	GetPostsSince(ctx context.Context, since int64) []model.Post
	GetPostsByUser(ctx context.Context, address string) []model.Post
	GetPostsByTribe(ctx context.Context, tribeID string) []model.Post
	GetTribesSince(ctx context.Context, since int64) []model.Tribe
	GetTribesByUser(ctx context.Context, address string) []model.Tribe
	GetProfilesByAddresses(ctx context.Context, addresses []string) []model.Profile

	RefreshPost(ctx context.Context, id string) *model.Post
	RefreshTribe(ctx context.Context, id string) *model.Tribe
	RefreshProfile(ctx context.Context, address string) (*model.Profile, error)

	OnCacheUpdate(listener CacheUpdateListener) func()
	SetConnectedUser(ctx context.Context, address string)
	UpdateChainID(ctx context.Context, chainID int64) error
}

type indexerService struct {
	gateway     gateway.Gateway
	tribeRepo   repository.TribeRepository
	profileRepo repository.ProfileRepository

	posts        *xsync.MapOf[string, model.Post]
	postsByTribe *xsync.MapOf[string, []string]
	postsByUser  *xsync.MapOf[string, []string]
	tribes       *xsync.MapOf[string, model.Tribe]
	tribesByUser *xsync.MapOf[string, []string]
	profiles     *xsync.MapOf[string, model.Profile]

	// lastUpdate is coarse per family. A rebuild refreshes the whole family
	// or nothing; per-entry freshness is the posts service's concern.
	updateMutex sync.Mutex
	lastUpdate  map[Family]time.Time

	listenerMutex sync.Mutex
	listeners     map[int]CacheUpdateListener
	nextListener  int

	userMutex     sync.RWMutex
	connectedUser string
}

func NewIndexerService(
	gw gateway.Gateway,
	tribeRepo repository.TribeRepository,
	profileRepo repository.ProfileRepository,
) *indexerService {
	return &indexerService{
		gateway:      gw,
		tribeRepo:    tribeRepo,
		profileRepo:  profileRepo,
		posts:        xsync.NewMapOf[model.Post](),
		postsByTribe: xsync.NewMapOf[[]string](),
		postsByUser:  xsync.NewMapOf[[]string](),
		tribes:       xsync.NewMapOf[model.Tribe](),
		tribesByUser: xsync.NewMapOf[[]string](),
		profiles:     xsync.NewMapOf[model.Profile](),
		lastUpdate:   map[Family]time.Time{},
		listeners:    map[int]CacheUpdateListener{},
	}
}

func (s *indexerService) OnCacheUpdate(listener CacheUpdateListener) func() {
	s.listenerMutex.Lock()
	defer s.listenerMutex.Unlock()

	id := s.nextListener
	s.nextListener++
	s.listeners[id] = listener

	return func() {
		s.listenerMutex.Lock()
		defer s.listenerMutex.Unlock()
		delete(s.listeners, id)
	}
}

func (s *indexerService) notify(family Family, payload any) {
	s.listenerMutex.Lock()
	listeners := make([]CacheUpdateListener, 0, len(s.listeners))
	for _, l := range s.listeners {
		listeners = append(listeners, l)
	}
	s.listenerMutex.Unlock()

	for _, l := range listeners {
		l(family, payload)
	}
}

// EnsureCacheValid rebuilds the family from the chain when its coarse
// timestamp is older than the configured TTL. Rebuild failures leave the old
// data in place; readers see whatever was there before.
func (s *indexerService) EnsureCacheValid(ctx context.Context, family Family) {
	ttl := xcontext.Configs(ctx).Cache.FamilyTTL

	s.updateMutex.Lock()
	defer s.updateMutex.Unlock()

	if time.Since(s.lastUpdate[family]) <= ttl {
		return
	}

	switch family {
	case FamilyPosts:
		s.rebuildPosts(ctx)
	case FamilyTribes:
		s.rebuildTribes(ctx)
	case FamilyProfiles:
		s.rebuildProfiles(ctx)
	default:
		xcontext.Logger(ctx).Warnf("Unknown cache family %s", family)
		return
	}

	s.lastUpdate[family] = time.Now()
}

func clearMap[V any](m *xsync.MapOf[string, V]) {
	m.Range(func(key string, _ V) bool {
		m.Delete(key)
		return true
	})
}

// invalidateAll empties the maps in place. The map fields are set once in the
// constructor and never reassigned, so concurrent readers stay on valid maps.
func (s *indexerService) invalidateAll() {
	s.updateMutex.Lock()
	defer s.updateMutex.Unlock()

	clearMap(s.posts)
	clearMap(s.postsByTribe)
	clearMap(s.postsByUser)
	clearMap(s.tribes)
	clearMap(s.tribesByUser)
	clearMap(s.profiles)
	s.lastUpdate = map[Family]time.Time{}
}

func appendUnique(list []string, id string) []string {
	for _, existing := range list {
		if existing == id {
			return list
		}
	}

	return append(list, id)
}

func (s *indexerService) storePost(post *model.Post) {
	s.posts.Store(post.ID, *post)

	if tribePosts, ok := s.postsByTribe.Load(post.TribeID); ok {
		s.postsByTribe.Store(post.TribeID, appendUnique(tribePosts, post.ID))
	} else {
		s.postsByTribe.Store(post.TribeID, []string{post.ID})
	}

	if userPosts, ok := s.postsByUser.Load(post.Author); ok {
		s.postsByUser.Store(post.Author, appendUnique(userPosts, post.ID))
	} else {
		s.postsByUser.Store(post.Author, []string{post.ID})
	}

	s.notify(FamilyPosts, post)
}

func (s *indexerService) storeTribe(tribe *model.Tribe) {
	s.tribes.Store(tribe.ID, *tribe)

	members := append([]string{tribe.Owner}, tribe.Admins...)
	for _, member := range members {
		if memberTribes, ok := s.tribesByUser.Load(member); ok {
			s.tribesByUser.Store(member, appendUnique(memberTribes, tribe.ID))
		} else {
			s.tribesByUser.Store(member, []string{tribe.ID})
		}
	}

	s.notify(FamilyTribes, tribe)
}

func (s *indexerService) storeProfile(profile *model.Profile) {
	s.profiles.Store(profile.Address, *profile)
	s.notify(FamilyProfiles, profile)
}

// rebuildPosts walks every minted post id in batches. A post whose tuple
// cannot be read or whose essential fields are missing is skipped without
// aborting the batch.
func (s *indexerService) rebuildPosts(ctx context.Context) {
	next, err := s.gateway.NextPostID(ctx)
	if err != nil {
		xcontext.Logger(ctx).Warnf("Cannot read next post id, keep stale posts: %v", err)
		return
	}

	batchSize := int64(xcontext.Configs(ctx).Cache.RebuildBatchSize)
	for start := int64(0); start < next; start += batchSize {
		end := start + batchSize
		if end > next {
			end = next
		}

		for id := start; id < end; id++ {
			raw, err := s.gateway.GetPost(ctx, id)
			if err != nil {
				if !errors.Is(err, gateway.ErrNotFound) {
					xcontext.Logger(ctx).Warnf("Cannot read post %d: %v", id, err)
				}
				continue
			}

			post := model.ConvertRawPost(raw)
			if post == nil {
				xcontext.Logger(ctx).Warnf("Skipped malformed post %d", id)
				continue
			}

			s.storePost(post)
		}
	}
}

func (s *indexerService) rebuildTribes(ctx context.Context) {
	next, err := s.gateway.NextTribeID(ctx)
	if err != nil {
		xcontext.Logger(ctx).Warnf("Cannot read next tribe id, keep stale tribes: %v", err)
		return
	}

	for id := int64(1); id < next; id++ {
		raw, err := s.gateway.GetTribe(ctx, id)
		if err != nil {
			xcontext.Logger(ctx).Warnf("Cannot read tribe %d, skipped: %v", id, err)
			continue
		}

		tribe := model.ConvertRawTribe(raw)
		if tribe == nil {
			continue
		}

		s.storeTribe(tribe)
		s.persistTribe(ctx, tribe)
	}
}

func (s *indexerService) persistTribe(ctx context.Context, tribe *model.Tribe) {
	record := model.TribeToEntity(tribe)
	if err := s.tribeRepo.Upsert(ctx, &record); err != nil {
		xcontext.Logger(ctx).Warnf("Cannot persist tribe %s: %v", tribe.ID, err)
	}
}

func (s *indexerService) persistProfile(ctx context.Context, profile *model.Profile) {
	record := model.ProfileToEntity(profile)
	if err := s.profileRepo.Upsert(ctx, &record); err != nil {
		xcontext.Logger(ctx).Warnf("Cannot persist profile %s: %v", profile.Address, err)
	}
}

// rebuildProfiles discovers profile tokens by walking token ids from zero.
// There is no counter to bound the walk, so it stops after a run of
// consecutive nonexistent tokens, on the assumption that minted tokens are
// contiguous from zero.
func (s *indexerService) rebuildProfiles(ctx context.Context) {
	errorLimit := xcontext.Configs(ctx).Cache.ProfileScanErrorLimit

	found := 0
	consecutiveErrors := 0
	for tokenID := int64(0); ; tokenID++ {
		owner, err := s.gateway.OwnerOf(ctx, tokenID)
		if err != nil {
			if !errors.Is(err, gateway.ErrNotFound) {
				xcontext.Logger(ctx).Warnf("Profile scan aborted at token %d: %v", tokenID, err)
				return
			}

			consecutiveErrors++
			if consecutiveErrors >= errorLimit {
				xcontext.Logger(ctx).Debugf(
					"Profile scan stopped at token %d after %d profiles", tokenID, found)
				return
			}
			continue
		}

		consecutiveErrors = 0

		raw, err := s.gateway.GetProfile(ctx, tokenID)
		if err != nil {
			xcontext.Logger(ctx).Warnf("Cannot read profile token %d: %v", tokenID, err)
			continue
		}

		profile := model.ConvertRawProfile(owner, raw)
		if profile == nil {
			continue
		}

		found++
		s.storeProfile(profile)
		s.persistProfile(ctx, profile)
	}
}

func (s *indexerService) RefreshPost(ctx context.Context, id string) *model.Post {
	numericID, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return nil
	}

	raw, err := s.gateway.GetPost(ctx, numericID)
	if err != nil {
		if !errors.Is(err, gateway.ErrNotFound) {
			xcontext.Logger(ctx).Warnf("Cannot refresh post %s: %v", id, err)
		}
		return nil
	}

	post := model.ConvertRawPost(raw)
	if post == nil {
		return nil
	}

	s.storePost(post)
	return post
}

func (s *indexerService) RefreshTribe(ctx context.Context, id string) *model.Tribe {
	numericID, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return nil
	}

	raw, err := s.gateway.GetTribe(ctx, numericID)
	if err != nil {
		if !errors.Is(err, gateway.ErrNotFound) {
			xcontext.Logger(ctx).Warnf("Cannot refresh tribe %s: %v", id, err)
		}
		return nil
	}

	tribe := model.ConvertRawTribe(raw)
	if tribe == nil {
		return nil
	}

	s.storeTribe(tribe)
	s.persistTribe(ctx, tribe)

	return tribe
}

// RefreshProfile re-reads one profile by owner address. A zero token balance
// caches a synthetic empty profile so the address is not re-scanned on every
// read. A positive balance whose token the scan cannot locate is an indexing
// inconsistency and is surfaced to the caller.
func (s *indexerService) RefreshProfile(ctx context.Context, address string) (*model.Profile, error) {
	balance, err := s.gateway.ProfileBalanceOf(ctx, address)
	if err != nil {
		xcontext.Logger(ctx).Warnf("Cannot read profile balance of %s: %v", address, err)
		return nil, nil
	}

	if balance == 0 {
		profile := model.EmptyProfile(address)
		s.storeProfile(profile)
		return profile, nil
	}

	profile, err := s.scanProfileOf(ctx, address)
	if err != nil {
		// A transient RPC failure is a miss, not an inconsistency.
		xcontext.Logger(ctx).Warnf("Profile scan of %s aborted: %v", address, err)
		return nil, nil
	}
	if profile == nil {
		return nil, errorx.New(errorx.Internal,
			"Profile balance of %s is positive but no token found", address)
	}

	s.storeProfile(profile)
	s.persistProfile(ctx, profile)

	return profile, nil
}

// scanProfileOf walks token ids looking for one owned by address, bounded by
// the same consecutive-miss heuristic as the family rebuild. A nil profile
// with a nil error means the walk exhausted the token range; a non-nil error
// means the walk could not finish.
func (s *indexerService) scanProfileOf(ctx context.Context, address string) (*model.Profile, error) {
	errorLimit := xcontext.Configs(ctx).Cache.ProfileScanErrorLimit

	consecutiveErrors := 0
	for tokenID := int64(0); ; tokenID++ {
		owner, err := s.gateway.OwnerOf(ctx, tokenID)
		if err != nil {
			if !errors.Is(err, gateway.ErrNotFound) {
				return nil, err
			}

			consecutiveErrors++
			if consecutiveErrors >= errorLimit {
				return nil, nil
			}
			continue
		}

		consecutiveErrors = 0
		if !addressEqual(owner, address) {
			continue
		}

		raw, err := s.gateway.GetProfile(ctx, tokenID)
		if err != nil {
			return nil, err
		}

		return model.ConvertRawProfile(owner, raw), nil
	}
}

func (s *indexerService) GetPostsSince(ctx context.Context, since int64) []model.Post {
	s.EnsureCacheValid(ctx, FamilyPosts)

	posts := []model.Post{}
	s.posts.Range(func(_ string, post model.Post) bool {
		if post.CreatedAt >= since {
			posts = append(posts, post)
		}
		return true
	})

	sortPostsNewestFirst(posts)
	return posts
}

func (s *indexerService) GetPostsByUser(ctx context.Context, address string) []model.Post {
	s.EnsureCacheValid(ctx, FamilyPosts)
	ids, _ := s.postsByUser.Load(address)
	return s.resolvePosts(ids)
}

func (s *indexerService) GetPostsByTribe(ctx context.Context, tribeID string) []model.Post {
	s.EnsureCacheValid(ctx, FamilyPosts)
	ids, _ := s.postsByTribe.Load(tribeID)
	return s.resolvePosts(ids)
}

// resolvePosts drops ids no longer present in the canonical map. An evicted
// or cleared id is "not currently available", not an error.
func (s *indexerService) resolvePosts(ids []string) []model.Post {
	posts := []model.Post{}
	for _, id := range ids {
		if post, ok := s.posts.Load(id); ok {
			posts = append(posts, post)
		}
	}

	sortPostsNewestFirst(posts)
	return posts
}

// GetTribesSince lists cached tribes with ids at or above since. The tribe
// tuple carries no creation timestamp, but ids are minted sequentially so the
// id doubles as a creation cursor.
func (s *indexerService) GetTribesSince(ctx context.Context, since int64) []model.Tribe {
	s.EnsureCacheValid(ctx, FamilyTribes)

	tribes := []model.Tribe{}
	s.tribes.Range(func(id string, tribe model.Tribe) bool {
		if numericID, err := strconv.ParseInt(id, 10, 64); err == nil && numericID >= since {
			tribes = append(tribes, tribe)
		}
		return true
	})

	sort.Slice(tribes, func(i, j int) bool { return tribes[i].ID < tribes[j].ID })
	return tribes
}

func (s *indexerService) GetTribesByUser(ctx context.Context, address string) []model.Tribe {
	s.EnsureCacheValid(ctx, FamilyTribes)

	ids, _ := s.tribesByUser.Load(address)
	tribes := []model.Tribe{}
	for _, id := range ids {
		if tribe, ok := s.tribes.Load(id); ok {
			tribes = append(tribes, tribe)
		}
	}

	return tribes
}

func (s *indexerService) GetProfilesByAddresses(ctx context.Context, addresses []string) []model.Profile {
	s.EnsureCacheValid(ctx, FamilyProfiles)

	profiles := []model.Profile{}
	for _, address := range addresses {
		if profile, ok := s.profiles.Load(address); ok {
			profiles = append(profiles, profile)
			continue
		}

		profile, err := s.RefreshProfile(ctx, address)
		if err != nil {
			xcontext.Logger(ctx).Warnf("Cannot resolve profile %s: %v", address, err)
			continue
		}
		if profile != nil {
			profiles = append(profiles, *profile)
		}
	}

	return profiles
}

// SetConnectedUser records the wallet address and warms that user's profile
// so dependent views do not wait for the next family rebuild.
func (s *indexerService) SetConnectedUser(ctx context.Context, address string) {
	s.userMutex.Lock()
	s.connectedUser = address
	s.userMutex.Unlock()

	if address == "" {
		return
	}

	if _, err := s.RefreshProfile(ctx, address); err != nil {
		xcontext.Logger(ctx).Warnf("Cannot warm profile of %s: %v", address, err)
	}
}

func (s *indexerService) ConnectedUser() string {
	s.userMutex.RLock()
	defer s.userMutex.RUnlock()

	return s.connectedUser
}

// UpdateChainID switches the gateway to another configured chain and drops
// every family, since cached ids are meaningless across chains.
func (s *indexerService) UpdateChainID(ctx context.Context, chainID int64) error {
	if err := s.gateway.SwitchChain(ctx, chainID); err != nil {
		return err
	}

	s.invalidateAll()
	return nil
}

func addressEqual(a, b string) bool {
	return strings.EqualFold(a, b)
}

func sortPostsNewestFirst(posts []model.Post) {
	sort.Slice(posts, func(i, j int) bool {
		if posts[i].CreatedAt != posts[j].CreatedAt {
			return posts[i].CreatedAt > posts[j].CreatedAt
		}
		return posts[i].ID > posts[j].ID
	})
}
