package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"memoria/internal/shared/model"
	"memoria/internal/shared/storage"
	"memoria/internal/shared/storage/dbutil"
)

// ============================================================================
// GalleryStore - 相册
// ============================================================================

const albumColumns = `id, title, description, category, tags, is_public, cover_url, year_id,
	media_count, created_by, created_at, updated_at`

func scanAlbum(row rowScanner) (*model.Album, error) {
	a := &model.Album{}
	var tags NullableJSON
	if err := row.Scan(&a.ID, &a.Title, &a.Description, &a.Category, &tags, &a.IsPublic, &a.CoverURL, &a.YearID,
		&a.MediaCount, &a.CreatedBy, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return nil, err
	}
	if err := tags.Decode(&a.Tags); err != nil {
		return nil, err
	}
	if a.Tags == nil {
		a.Tags = []string{}
	}
	return a, nil
}

func tagsJSON(tags []string) (any, error) {
	if tags == nil {
		tags = []string{}
	}
	return toJSON(tags)
}

// CreateAlbum 创建相册
func (s *Store) CreateAlbum(ctx context.Context, a *model.Album) error {
	tags, err := tagsJSON(a.Tags)
	if err != nil {
		return err
	}
	_, err = s.exec(ctx,
		`INSERT INTO albums (`+albumColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		a.ID, a.Title, a.Description, a.Category, tags, a.IsPublic, a.CoverURL, a.YearID,
		a.MediaCount, a.CreatedBy, utc(a.CreatedAt), utc(a.UpdatedAt),
	)
	return err
}

// GetAlbum 获取相册
func (s *Store) GetAlbum(ctx context.Context, id string) (*model.Album, error) {
	a, err := scanAlbum(s.q(ctx).QueryRowContext(ctx,
		s.rebind(`SELECT `+albumColumns+` FROM albums WHERE id = $1`), id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return a, nil
}

// ListAlbums 列出相册（按创建时间倒序）
//
// 标签过滤在内存中完成：tags 以 JSON 文本存储，两种数据库的数组查询语法不同。
func (s *Store) ListAlbums(ctx context.Context, filter storage.AlbumFilter) ([]*model.Album, error) {
	var w dbutil.Where
	if filter.Category != "" {
		w.Add("category = ?", filter.Category)
	}
	if filter.PublicOnly {
		w.Add("is_public = " + s.dialect.BooleanLiteral(true))
	}
	if filter.YearID != "" {
		w.Add("year_id = ?", filter.YearID)
	}

	rows, err := s.q(ctx).QueryContext(ctx,
		s.rebind(`SELECT `+albumColumns+` FROM albums`+w.SQL()+` ORDER BY created_at DESC, id`), w.Args()...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	albums := []*model.Album{}
	for rows.Next() {
		a, err := scanAlbum(rows)
		if err != nil {
			return nil, err
		}
		if filter.Tag != "" && !hasTag(a.Tags, filter.Tag) {
			continue
		}
		albums = append(albums, a)
	}
	return albums, rows.Err()
}

func hasTag(tags []string, tag string) bool {
	for _, t := range tags {
		if t == tag {
			return true
		}
	}
	return false
}

// UpdateAlbum 更新相册信息（media_count 由媒体增删维护）
func (s *Store) UpdateAlbum(ctx context.Context, a *model.Album) error {
	tags, err := tagsJSON(a.Tags)
	if err != nil {
		return err
	}
	return s.execAffect(ctx,
		`UPDATE albums SET title = $1, description = $2, category = $3, tags = $4, is_public = $5,
			cover_url = $6, year_id = $7, updated_at = $8 WHERE id = $9`,
		a.Title, a.Description, a.Category, tags, a.IsPublic, a.CoverURL, a.YearID, utc(a.UpdatedAt), a.ID,
	)
}

// DeleteAlbum 删除相册及其全部媒体和点赞
func (s *Store) DeleteAlbum(ctx context.Context, id string) error {
	return s.WithTransaction(ctx, func(ctx context.Context) error {
		if _, err := s.exec(ctx,
			`DELETE FROM media_likes WHERE media_id IN (SELECT id FROM media_items WHERE album_id = $1)`, id); err != nil {
			return err
		}
		if _, err := s.exec(ctx, `DELETE FROM media_items WHERE album_id = $1`, id); err != nil {
			return err
		}
		return s.execAffect(ctx, `DELETE FROM albums WHERE id = $1`, id)
	})
}

// ============================================================================
// GalleryStore - 媒体
// ============================================================================

const mediaColumns = `id, album_id, url, thumbnail_url, caption, status, likes, uploaded_by, created_at`

func scanMedia(row rowScanner) (*model.MediaItem, error) {
	m := &model.MediaItem{}
	err := row.Scan(&m.ID, &m.AlbumID, &m.URL, &m.ThumbnailURL, &m.Caption, &m.Status, &m.Likes, &m.UploadedBy, &m.CreatedAt)
	return m, err
}

// CreateMediaItem 添加媒体并递增相册的 media_count
func (s *Store) CreateMediaItem(ctx context.Context, m *model.MediaItem) error {
	return s.WithTransaction(ctx, func(ctx context.Context) error {
		if err := s.execAffect(ctx,
			`UPDATE albums SET media_count = media_count + 1, updated_at = $1 WHERE id = $2`,
			time.Now().UTC(), m.AlbumID); err != nil {
			return err
		}
		_, err := s.exec(ctx,
			`INSERT INTO media_items (`+mediaColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			m.ID, m.AlbumID, m.URL, m.ThumbnailURL, m.Caption, string(m.Status), m.Likes, m.UploadedBy, utc(m.CreatedAt),
		)
		return err
	})
}

// GetMediaItem 获取媒体
func (s *Store) GetMediaItem(ctx context.Context, id string) (*model.MediaItem, error) {
	m, err := scanMedia(s.q(ctx).QueryRowContext(ctx,
		s.rebind(`SELECT `+mediaColumns+` FROM media_items WHERE id = $1`), id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return m, nil
}

// ListMediaItems 列出相册中的媒体，status 为空时不过滤
func (s *Store) ListMediaItems(ctx context.Context, albumID string, status model.MediaStatus) ([]*model.MediaItem, error) {
	var w dbutil.Where
	w.Add("album_id = ?", albumID)
	if status != "" {
		w.Add("status = ?", string(status))
	}

	rows, err := s.q(ctx).QueryContext(ctx,
		s.rebind(`SELECT `+mediaColumns+` FROM media_items`+w.SQL()+` ORDER BY created_at, id`), w.Args()...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := []*model.MediaItem{}
	for rows.Next() {
		m, err := scanMedia(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, m)
	}
	return items, rows.Err()
}

// UpdateMediaStatus 修改媒体状态（隐藏/恢复）
func (s *Store) UpdateMediaStatus(ctx context.Context, id string, status model.MediaStatus) error {
	return s.execAffect(ctx, `UPDATE media_items SET status = $1 WHERE id = $2`, string(status), id)
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
		if _, err := s.exec(ctx, `DELETE FROM media_likes WHERE media_id = $1`, id); err != nil {
			return err
		}
		if err := s.execAffect(ctx, `DELETE FROM media_items WHERE id = $1`, id); err != nil {
			return err
		}
		_, err = s.exec(ctx,
			`UPDATE albums SET media_count = media_count - 1, updated_at = $1 WHERE id = $2 AND media_count > 0`,
			time.Now().UTC(), m.AlbumID)
		return err
	})
}

// ToggleMediaLike 切换点赞：已点赞则取消，否则点赞。返回切换后的状态和最新点赞数
func (s *Store) ToggleMediaLike(ctx context.Context, mediaID, userID string) (bool, int, error) {
	var (
		liked bool
		count int
	)
	err := s.WithTransaction(ctx, func(ctx context.Context) error {
		res, err := s.exec(ctx, `DELETE FROM media_likes WHERE media_id = $1 AND user_id = $2`, mediaID, userID)
		if err != nil {
			return err
		}
		removed, err := res.RowsAffected()
		if err != nil {
			return err
		}

		delta := -1
		if removed == 0 {
			liked = true
			delta = 1
			if _, err := s.exec(ctx,
				`INSERT INTO media_likes (id, media_id, user_id, created_at) VALUES ($1, $2, $3, $4)`,
				mediaID+":"+userID, mediaID, userID, time.Now().UTC()); err != nil {
				return err
			}
		}

		if err := s.execAffect(ctx, `UPDATE media_items SET likes = likes + $1 WHERE id = $2`, delta, mediaID); err != nil {
			return err
		}
		return s.q(ctx).QueryRowContext(ctx,
			s.rebind(`SELECT likes FROM media_items WHERE id = $1`), mediaID).Scan(&count)
	})
	return liked, count, err
}
