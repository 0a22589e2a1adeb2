package mongostore

import (
	"context"
	"time"

	"memoria/internal/shared/model"
	"memoria/internal/shared/storage"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// ============================================================================
// GalleryStore
// ============================================================================

func (s *Store) CreateAlbum(ctx context.Context, a *model.Album) error {
	if a.Tags == nil {
		a.Tags = []string{}
	}
	return insertOne(ctx, s.col(ColAlbums), a)
}

func (s *Store) GetAlbum(ctx context.Context, id string) (*model.Album, error) {
	return findOne[model.Album](ctx, s.col(ColAlbums), byID(id))
}

func (s *Store) ListAlbums(ctx context.Context, f storage.AlbumFilter) ([]*model.Album, error) {
	filter := bson.D{}
	if f.Category != "" {
		filter = append(filter, bson.E{Key: "category", Value: f.Category})
	}
	if f.Tag != "" {
		// 数组字段的等值匹配即成员匹配
		filter = append(filter, bson.E{Key: "tags", Value: f.Tag})
	}
	if f.PublicOnly {
		filter = append(filter, bson.E{Key: "is_public", Value: true})
	}
	if f.YearID != "" {
		filter = append(filter, bson.E{Key: "year_id", Value: f.YearID})
	}
	return findMany[model.Album](ctx, s.col(ColAlbums), filter,
		options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: 1}}))
}

func (s *Store) UpdateAlbum(ctx context.Context, a *model.Album) error {
	tags := a.Tags
	if tags == nil {
		tags = []string{}
	}
	return updateFields(ctx, s.col(ColAlbums), a.ID, bson.D{
		{Key: "title", Value: a.Title},
		{Key: "description", Value: a.Description},
		{Key: "category", Value: a.Category},
		{Key: "tags", Value: tags},
		{Key: "is_public", Value: a.IsPublic},
		{Key: "cover_url", Value: a.CoverURL},
		{Key: "year_id", Value: a.YearID},
		{Key: "updated_at", Value: a.UpdatedAt},
	})
}

// DeleteAlbum 删除相册及其全部媒体和点赞
func (s *Store) DeleteAlbum(ctx context.Context, id string) error {
	return s.WithTransaction(ctx, func(ctx context.Context) error {
		items, err := findMany[model.MediaItem](ctx, s.col(ColMediaItems), bson.D{{Key: "album_id", Value: id}},
			options.Find().SetProjection(bson.D{{Key: "_id", Value: 1}}))
		if err != nil {
			return err
		}
		if len(items) > 0 {
			ids := make(bson.A, 0, len(items))
			for _, m := range items {
				ids = append(ids, m.ID)
			}
			if _, err := s.col(ColMediaLikes).DeleteMany(ctx, bson.D{{Key: "media_id", Value: bson.D{{Key: "$in", Value: ids}}}}); err != nil {
				return wrapError(err)
			}
			if _, err := s.col(ColMediaItems).DeleteMany(ctx, bson.D{{Key: "album_id", Value: id}}); err != nil {
				return wrapError(err)
			}
		}
		return deleteByID(ctx, s.col(ColAlbums), id)
	})
}

// incAlbumMedia 调整相册的 media_count
func (s *Store) incAlbumMedia(ctx context.Context, albumID string, delta int) error {
	filter := byID(albumID)
	if delta < 0 {
		filter = append(filter, bson.E{Key: "media_count", Value: bson.D{{Key: "$gt", Value: 0}}})
	}
	res, err := s.col(ColAlbums).UpdateOne(ctx, filter, bson.D{
		{Key: "$inc", Value: bson.D{{Key: "media_count", Value: delta}}},
		{Key: "$set", Value: bson.D{{Key: "updated_at", Value: time.Now().UTC()}}},
	})
	if err != nil {
		return wrapError(err)
	}
	if delta > 0 && res.MatchedCount == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// CreateMediaItem 添加媒体并递增相册的 media_count
func (s *Store) CreateMediaItem(ctx context.Context, m *model.MediaItem) error {
	return s.WithTransaction(ctx, func(ctx context.Context) error {
		if err := s.incAlbumMedia(ctx, m.AlbumID, 1); err != nil {
			return err
		}
		return insertOne(ctx, s.col(ColMediaItems), m)
	})
}

func (s *Store) GetMediaItem(ctx context.Context, id string) (*model.MediaItem, error) {
	return findOne[model.MediaItem](ctx, s.col(ColMediaItems), byID(id))
}

func (s *Store) ListMediaItems(ctx context.Context, albumID string, status model.MediaStatus) ([]*model.MediaItem, error) {
	filter := bson.D{{Key: "album_id", Value: albumID}}
	if status != "" {
		filter = append(filter, bson.E{Key: "status", Value: status})
	}
	return findMany[model.MediaItem](ctx, s.col(ColMediaItems), filter,
		options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}}))
}

func (s *Store) UpdateMediaStatus(ctx context.Context, id string, status model.MediaStatus) error {
	return updateFields(ctx, s.col(ColMediaItems), id, bson.D{{Key: "status", Value: status}})
}

// DeleteMediaItem 删除媒体并递减相册的 media_count
func (s *Store) DeleteMediaItem(ctx context.Context, id string) error {
	return s.WithTransaction(ctx, func(ctx context.Context) error {
		m, err := s.GetMediaItem(ctx, id)
		if err != nil {
			return err
		}
		if m == nil {
			return storage.ErrNotFound
		}
		if _, err := s.col(ColMediaLikes).DeleteMany(ctx, bson.D{{Key: "media_id", Value: id}}); err != nil {
			return wrapError(err)
		}
		if err := deleteByID(ctx, s.col(ColMediaItems), id); err != nil {
			return err
		}
		return s.incAlbumMedia(ctx, m.AlbumID, -1)
	})
}

// ToggleMediaLike 切换点赞：已点赞则取消，否则点赞
//
// (media_id, user_id) 唯一索引保证并发下不会重复计数。
func (s *Store) ToggleMediaLike(ctx context.Context, mediaID, userID string) (bool, int, error) {
	var (
		liked bool
		count int
	)
	err := s.WithTransaction(ctx, func(ctx context.Context) error {
		m, err := s.GetMediaItem(ctx, mediaID)
		if err != nil {
			return err
		}
		if m == nil {
			return storage.ErrNotFound
		}

		res, err := s.col(ColMediaLikes).DeleteOne(ctx, bson.D{{Key: "media_id", Value: mediaID}, {Key: "user_id", Value: userID}})
		if err != nil {
			return wrapError(err)
		}
		delta := -1
		if res.DeletedCount == 0 {
			liked, delta = true, 1
			if err := insertOne(ctx, s.col(ColMediaLikes), &model.MediaLike{
				ID: mediaID + ":" + userID, MediaID: mediaID, UserID: userID, CreatedAt: time.Now().UTC(),
			}); err != nil {
				return err
			}
		}

		var updated model.MediaItem
		err = s.col(ColMediaItems).FindOneAndUpdate(ctx, byID(mediaID),
			bson.D{{Key: "$inc", Value: bson.D{{Key: "likes", Value: delta}}}},
			options.FindOneAndUpdate().SetReturnDocument(options.After),
		).Decode(&updated)
		if err != nil {
			return wrapError(err)
		}
		count = updated.Likes
		return nil
	})
	return liked, count, err
}
