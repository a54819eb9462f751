package domain

import (
	"context"

	"github.com/tribes-lab/backend/internal/domain/search"
	"github.com/tribes-lab/backend/internal/model"
	"github.com/tribes-lab/backend/pkg/xcontext"
)

type SearchService interface {
	SearchPosts(ctx context.Context, query string, offset, limit int) []model.Post
	Stop()
}

// SearchIndex is the slice of the bleve index the search service needs.
type SearchIndex interface {
	Index(document, id string, data any) error
	Search(document, query string, offset, limit int) ([]string, error)
}

// searchService feeds the local full-text index from the indexer's cache
// update stream, so anything the indexer has seen is searchable without
// another chain read.
type searchService struct {
	index       SearchIndex
	posts       PostsService
	unsubscribe func()
}

func NewSearchService(
	ctx context.Context, index SearchIndex, posts PostsService, indexer IndexerService,
) *searchService {
	s := &searchService{index: index, posts: posts}

	s.unsubscribe = indexer.OnCacheUpdate(func(family Family, payload any) {
		var err error
		switch family {
		case FamilyPosts:
			if post, ok := payload.(*model.Post); ok {
				err = index.Index(search.PostDoc, post.ID, search.PostDataOf(post))
			}
		case FamilyTribes:
			if tribe, ok := payload.(*model.Tribe); ok {
				err = index.Index(search.TribeDoc, tribe.ID, search.TribeDataOf(tribe))
			}
		case FamilyProfiles:
			if profile, ok := payload.(*model.Profile); ok {
				err = index.Index(search.ProfileDoc, profile.Address, search.ProfileDataOf(profile))
			}
		}

		if err != nil {
			xcontext.Logger(ctx).Warnf("Cannot index %s update: %v", family, err)
		}
	})

	return s
}

// SearchPosts matches the query against indexed posts and resolves the hits
// through the tiered post lookup. Hits that no longer resolve are dropped.
func (s *searchService) SearchPosts(ctx context.Context, query string, offset, limit int) []model.Post {
	ids, err := s.index.Search(search.PostDoc, query, offset, limit)
	if err != nil {
		xcontext.Logger(ctx).Warnf("Cannot search posts for %q: %v", query, err)
		return []model.Post{}
	}

	posts := []model.Post{}
	for _, id := range ids {
		if post := s.posts.GetPost(ctx, id); post != nil {
			posts = append(posts, *post)
		}
	}

	return posts
}

func (s *searchService) Stop() {
	s.unsubscribe()
}
