package search

import (
	"context"
	"errors"
	"path"

	"github.com/blevesearch/bleve/v2"
	"github.com/puzpuzpuz/xsync"
	"github.com/tribes-lab/backend/internal/model"
	"github.com/tribes-lab/backend/pkg/logger"
	"github.com/tribes-lab/backend/pkg/xcontext"
)

const (
	PostDoc    = "post"
	TribeDoc   = "tribe"
	ProfileDoc = "profile"
)

type PostData struct {
	Title   string
	Content string
	Tags    []string
}

type TribeData struct {
	Name        string
	Description string
}

type ProfileData struct {
	Username string
	Bio      string
}

type bleveIndex struct {
	logger   logger.Logger
	indexDir string
	indexes  *xsync.MapOf[string, bleve.Index]
}

// NewBleveIndex builds a per-document-type bleve index under the configured
// directory, or in memory when no directory is configured.
func NewBleveIndex(ctx context.Context) *bleveIndex {
	return &bleveIndex{
		logger:   xcontext.Logger(ctx),
		indexDir: xcontext.Configs(ctx).Search.IndexDir,
		indexes:  xsync.NewMapOf[bleve.Index](),
	}
}

func (i *bleveIndex) Index(document, id string, data any) error {
	index, err := i.getIndexByDocument(document)
	if err != nil {
		return err
	}

	record, err := index.Document(id)
	if err != nil {
		return err
	}

	// Delete if the record existed.
	if record != nil {
		if err := index.Delete(id); err != nil {
			return err
		}
	}

	return index.Index(id, data)
}

func (i *bleveIndex) Delete(document, id string) error {
	index, err := i.getIndexByDocument(document)
	if err != nil {
		return err
	}

	return index.Delete(id)
}

func (i *bleveIndex) Search(document, query string, offset, limit int) ([]string, error) {
	index, err := i.getIndexByDocument(document)
	if err != nil {
		return nil, err
	}

	req := bleve.NewSearchRequestOptions(bleve.NewMatchQuery(query), limit, offset, false)
	searchResults, err := index.Search(req)
	if err != nil {
		return nil, err
	}

	ids := []string{}
	for _, match := range searchResults.Hits {
		ids = append(ids, match.ID)
	}

	return ids, nil
}

func (i *bleveIndex) Close() {
	i.logger.Infof("Closing all indexers...")

	i.indexes.Range(func(document string, index bleve.Index) bool {
		if err := index.Close(); err != nil {
			i.logger.Errorf("Cannot close indexer %s: %v", document, err)
		}

		return true
	})

	i.logger.Infof("Closing all indexers...done")
}

func (i *bleveIndex) getIndexByDocument(document string) (bleve.Index, error) {
	index, ok := i.indexes.Load(document)
	if !ok {
		i.logger.Infof("A new document index is added: %s", document)

		var err error
		if i.indexDir == "" {
			index, err = bleve.NewMemOnly(bleve.NewIndexMapping())
			if err != nil {
				return nil, err
			}
		} else {
			indexPath := path.Join(i.indexDir, document)
			index, err = bleve.New(indexPath, bleve.NewIndexMapping())
			if err != nil {
				if !errors.Is(err, bleve.ErrorIndexPathExists) {
					return nil, err
				}

				index, err = bleve.Open(indexPath)
				if err != nil {
					return nil, err
				}
			}
		}

		i.indexes.Store(document, index)
	}

	return index, nil
}

func PostDataOf(post *model.Post) PostData {
	return PostData{
		Title:   post.Metadata.Title,
		Content: post.Content,
		Tags:    post.Metadata.Tags,
	}
}

func TribeDataOf(tribe *model.Tribe) TribeData {
	description, _ := tribe.Metadata["description"].(string)
	return TribeData{Name: tribe.Name, Description: description}
}

func ProfileDataOf(profile *model.Profile) ProfileData {
	bio, _ := profile.Metadata["bio"].(string)
	return ProfileData{Username: profile.Username, Bio: bio}
}
