package entity

import (
	"time"
)

type PostType string

const (
	PostTypeText     PostType = "text"
	PostTypeImage    PostType = "image"
	PostTypeVideo    PostType = "video"
	PostTypePoll     PostType = "poll"
	PostTypeLink     PostType = "link"
	PostTypeResource PostType = "resource"
)

// Post mirrors one on-chain post. The id is assigned by the contract and
// never reused; a deleted post keeps its row with cleared content so replies
// stay resolvable.
type Post struct {
	ID int64 `gorm:"primaryKey;autoIncrement:false"`

	Author  string `gorm:"index"`
	TribeID int64  `gorm:"index"`

	CreatedAt time.Time
	UpdatedAt time.Time

	Content  string `gorm:"type:longtext"`
	Title    string
	Type     PostType
	Tags     Array[string] `gorm:"type:longtext"`
	Media    Array[string] `gorm:"type:longtext"`
	Metadata Map           `gorm:"type:longtext"`

	LikeCount    int64
	CommentCount int64
	ShareCount   int64
	ViewCount    int64
	SaveCount    int64

	Deleted bool
}
