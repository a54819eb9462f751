package model

type Post struct {
	ID        string `json:"id"`
	Author    string `json:"author"`
	TribeID   string `json:"tribe_id"`
	CreatedAt int64  `json:"created_at"`
	Content   string `json:"content"`

	Metadata PostMetadata `json:"metadata"`
	Stats    PostStats    `json:"stats"`

	Deleted bool `json:"deleted"`
}

type PostMetadata struct {
	Title string         `json:"title"`
	Type  string         `json:"type"`
	Tags  []string       `json:"tags"`
	Media []string       `json:"media"`
	Extra map[string]any `json:"extra,omitempty"`
}

type PostStats struct {
	Likes    int64 `json:"likes"`
	Comments int64 `json:"comments"`
	Shares   int64 `json:"shares"`
	Views    int64 `json:"views"`
	Saves    int64 `json:"saves"`
}

type SyncStatus struct {
	IsSyncing    bool   `json:"is_syncing"`
	Progress     int    `json:"progress"`
	Total        int    `json:"total"`
	LastSyncTime int64  `json:"last_sync_time"`
	ErrorCount   int    `json:"error_count"`
	LastError    string `json:"last_error"`
}

type CreatePostRequest struct {
	TribeID  string       `json:"tribe_id"`
	Content  string       `json:"content"`
	Metadata PostMetadata `json:"metadata"`
}

type UpdatePostRequest struct {
	PostID   string       `json:"post_id"`
	Metadata PostMetadata `json:"metadata"`
}
