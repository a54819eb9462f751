package model

import (
	"encoding/json"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/tribes-lab/backend/internal/entity"
	"github.com/tribes-lab/backend/internal/gateway"
)

func parseID(s string) int64 {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return -1
	}

	return id
}

func FormatID(id int64) string {
	return strconv.FormatInt(id, 10)
}

// decodeMetadata parses a metadata blob coming from the chain. Blobs written
// by older clients are JSON-encoded twice (a JSON string containing JSON), so
// a failed or string-valued first pass triggers a second one. A blob that
// still does not parse yields an empty map, never an error.
func decodeMetadata(blob string) map[string]any {
	if blob == "" {
		return map[string]any{}
	}

	var meta map[string]any
	if err := json.Unmarshal([]byte(blob), &meta); err == nil {
		return meta
	}

	var inner string
	if err := json.Unmarshal([]byte(blob), &inner); err == nil {
		if err := json.Unmarshal([]byte(inner), &meta); err == nil {
			return meta
		}
	}

	return map[string]any{}
}

func stringSlice(v any) []string {
	items, ok := v.([]any)
	if !ok {
		return nil
	}

	out := []string{}
	for _, item := range items {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}

	return out
}

// ConvertRawPost maps a decoded chain tuple to the public post shape. It
// returns nil only when the essential fields (author, tribe id) are absent;
// everything else falls back to a safe default.
func ConvertRawPost(raw *gateway.RawPost) *Post {
	if raw == nil || raw.Author == "" || raw.TribeID == nil || raw.ID == nil {
		return nil
	}

	meta := decodeMetadata(raw.Metadata)

	content := raw.Content
	if content == "" {
		if c, ok := meta["content"].(string); ok {
			content = c
		}
	}

	title, _ := meta["title"].(string)
	postType, _ := meta["type"].(string)
	if postType == "" {
		postType = string(entity.PostTypeText)
	}

	var createdAt int64
	if raw.Timestamp != nil {
		createdAt = raw.Timestamp.Int64()
	}

	return &Post{
		ID:        raw.ID.String(),
		Author:    raw.Author,
		TribeID:   raw.TribeID.String(),
		CreatedAt: createdAt,
		Content:   content,
		Metadata: PostMetadata{
			Title: title,
			Type:  postType,
			Tags:  stringSlice(meta["tags"]),
			Media: stringSlice(meta["media"]),
			Extra: meta,
		},
		Stats: PostStats{
			Likes:    bigToInt64(raw.Likes),
			Comments: bigToInt64(raw.Comments),
			Shares:   bigToInt64(raw.Shares),
			Views:    bigToInt64(raw.Views),
			Saves:    bigToInt64(raw.Saves),
		},
		Deleted: raw.Deleted,
	}
}

func ConvertRawTribe(raw *gateway.RawTribe) *Tribe {
	if raw == nil || raw.ID == nil || raw.Owner == "" {
		return nil
	}

	admins := raw.Admins
	if !contains(admins, raw.Owner) {
		admins = append([]string{raw.Owner}, admins...)
	}

	gates := []Gate{}
	for _, g := range raw.Gates {
		tokenID := ""
		if g.TokenID != nil && g.TokenID.Sign() > 0 {
			tokenID = g.TokenID.String()
		}

		gates = append(gates, Gate{
			Contract:   g.Contract,
			TokenID:    tokenID,
			MinBalance: bigToInt64(g.MinBalance),
		})
	}

	entryFee := "0"
	if raw.EntryFee != nil {
		entryFee = raw.EntryFee.String()
	}

	return &Tribe{
		ID:          raw.ID.String(),
		Name:        raw.Name,
		Owner:       raw.Owner,
		Admins:      admins,
		Metadata:    decodeMetadata(raw.Metadata),
		MemberCount: int(bigToInt64(raw.MemberCount)),
		JoinPolicy:  joinPolicyName(raw.JoinPolicy),
		EntryFee:    entryFee,
		Gates:       gates,
	}
}

func ConvertRawProfile(address string, raw *gateway.RawProfile) *Profile {
	if raw == nil || raw.TokenID == nil {
		return nil
	}

	return &Profile{
		Address:  address,
		TokenID:  raw.TokenID.String(),
		Username: raw.Username,
		Metadata: decodeMetadata(raw.Metadata),
	}
}

// EmptyProfile is cached for an address whose profile balance is zero, so
// the indexer does not rescan the collection on every lookup.
func EmptyProfile(address string) *Profile {
	return &Profile{Address: address, TokenID: "", Metadata: map[string]any{}}
}

func ConvertPost(e *entity.Post) Post {
	if e == nil {
		return Post{}
	}

	return Post{
		ID:        FormatID(e.ID),
		Author:    e.Author,
		TribeID:   FormatID(e.TribeID),
		CreatedAt: e.CreatedAt.Unix(),
		Content:   e.Content,
		Metadata: PostMetadata{
			Title: e.Title,
			Type:  string(e.Type),
			Tags:  e.Tags,
			Media: e.Media,
			Extra: e.Metadata,
		},
		Stats: PostStats{
			Likes:    e.LikeCount,
			Comments: e.CommentCount,
			Shares:   e.ShareCount,
			Views:    e.ViewCount,
			Saves:    e.SaveCount,
		},
		Deleted: e.Deleted,
	}
}

func PostToEntity(p *Post) entity.Post {
	return entity.Post{
		ID:           parseID(p.ID),
		Author:       p.Author,
		TribeID:      parseID(p.TribeID),
		CreatedAt:    time.Unix(p.CreatedAt, 0),
		Content:      p.Content,
		Title:        p.Metadata.Title,
		Type:         entity.PostType(p.Metadata.Type),
		Tags:         p.Metadata.Tags,
		Media:        p.Metadata.Media,
		Metadata:     p.Metadata.Extra,
		LikeCount:    p.Stats.Likes,
		CommentCount: p.Stats.Comments,
		ShareCount:   p.Stats.Shares,
		ViewCount:    p.Stats.Views,
		SaveCount:    p.Stats.Saves,
		Deleted:      p.Deleted,
	}
}

func ConvertTribe(e *entity.Tribe) Tribe {
	if e == nil {
		return Tribe{}
	}

	gates := []Gate{}
	for _, g := range e.Gates {
		gates = append(gates, Gate{Contract: g.Contract, TokenID: g.TokenID, MinBalance: g.MinBalance})
	}

	return Tribe{
		ID:          FormatID(e.ID),
		Name:        e.Name,
		Owner:       e.Owner,
		Admins:      e.Admins,
		Metadata:    e.Metadata,
		MemberCount: e.MemberCount,
		JoinPolicy:  string(e.JoinPolicy),
		EntryFee:    e.EntryFee,
		Gates:       gates,
	}
}

func TribeToEntity(t *Tribe) entity.Tribe {
	gates := entity.Array[entity.GateRequirement]{}
	for _, g := range t.Gates {
		gates = append(gates, entity.GateRequirement{
			Contract:   g.Contract,
			TokenID:    g.TokenID,
			MinBalance: g.MinBalance,
		})
	}

	return entity.Tribe{
		ID:          parseID(t.ID),
		Name:        t.Name,
		Owner:       t.Owner,
		Admins:      t.Admins,
		Metadata:    t.Metadata,
		MemberCount: t.MemberCount,
		JoinPolicy:  entity.JoinPolicy(t.JoinPolicy),
		EntryFee:    t.EntryFee,
		Gates:       gates,
	}
}

func ConvertProfile(e *entity.Profile) Profile {
	if e == nil {
		return Profile{}
	}

	tokenID := ""
	if e.TokenID >= 0 {
		tokenID = FormatID(e.TokenID)
	}

	return Profile{
		Address:  e.Address,
		TokenID:  tokenID,
		Username: e.Username,
		Metadata: e.Metadata,
	}
}

func ProfileToEntity(p *Profile) entity.Profile {
	return entity.Profile{
		Address:  p.Address,
		TokenID:  parseID(p.TokenID),
		Username: p.Username,
		Metadata: p.Metadata,
	}
}

func bigToInt64(v *big.Int) int64 {
	if v == nil {
		return 0
	}

	return v.Int64()
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if strings.EqualFold(item, s) {
			return true
		}
	}

	return false
}

func joinPolicyName(policy uint8) string {
	switch policy {
	case 1:
		return string(entity.JoinPolicyApproval)
	case 2:
		return string(entity.JoinPolicyClosed)
	default:
		return string(entity.JoinPolicyOpen)
	}
}
