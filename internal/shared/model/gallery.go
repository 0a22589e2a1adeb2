package model

import "time"

// Album 画廊相册
type Album struct {
	ID          string    `json:"id" bson:"_id" db:"id"`
	Title       string    `json:"title" bson:"title" db:"title"`
	Description string    `json:"description,omitempty" bson:"description,omitempty" db:"description"`
	Category    string    `json:"category" bson:"category" db:"category"`
	Tags        []string  `json:"tags" bson:"tags" db:"tags"`
	IsPublic    bool      `json:"isPublic" bson:"is_public" db:"is_public"`
	CoverURL    string    `json:"coverUrl,omitempty" bson:"cover_url,omitempty" db:"cover_url"`
	YearID      string    `json:"yearId,omitempty" bson:"year_id,omitempty" db:"year_id"`
	MediaCount  int       `json:"mediaCount" bson:"media_count" db:"media_count"`
	CreatedBy   string    `json:"createdBy,omitempty" bson:"created_by,omitempty" db:"created_by"`
	CreatedAt   time.Time `json:"createdAt" bson:"created_at" db:"created_at"`
	UpdatedAt   time.Time `json:"updatedAt" bson:"updated_at" db:"updated_at"`
}

// MediaStatus 媒体状态
type MediaStatus string

const (
	MediaStatusActive MediaStatus = "active"
	MediaStatusHidden MediaStatus = "hidden"
)

// Valid 是否为已知状态
func (s MediaStatus) Valid() bool {
	return s == MediaStatusActive || s == MediaStatusHidden
}

// MediaItem 媒体条目，文件本身托管在外部图床，本地只保存 URL
type MediaItem struct {
	ID           string      `json:"id" bson:"_id" db:"id"`
	AlbumID      string      `json:"albumId" bson:"album_id" db:"album_id"`
	URL          string      `json:"url" bson:"url" db:"url"`
	ThumbnailURL string      `json:"thumbnailUrl,omitempty" bson:"thumbnail_url,omitempty" db:"thumbnail_url"`
	Caption      string      `json:"caption,omitempty" bson:"caption,omitempty" db:"caption"`
	Status       MediaStatus `json:"status" bson:"status" db:"status"`
	Likes        int         `json:"likes" bson:"likes" db:"likes"`
	UploadedBy   string      `json:"uploadedBy,omitempty" bson:"uploaded_by,omitempty" db:"uploaded_by"`
	CreatedAt    time.Time   `json:"createdAt" bson:"created_at" db:"created_at"`
}

// MediaLike 点赞记录，(MediaID, UserID) 唯一
type MediaLike struct {
	ID        string    `json:"id" bson:"_id" db:"id"`
	MediaID   string    `json:"mediaId" bson:"media_id" db:"media_id"`
	UserID    string    `json:"userId" bson:"user_id" db:"user_id"`
	CreatedAt time.Time `json:"createdAt" bson:"created_at" db:"created_at"`
}

// AlbumDetail 相册及其媒体
type AlbumDetail struct {
	*Album
	Media []*MediaItem `json:"media"`
}
