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
// NotificationStore
// ============================================================================

const notificationColumns = `id, user_id, type, title, message, timestamp, is_read, priority, category, action_url, metadata`

func scanNotification(row rowScanner) (*model.Notification, error) {
	n := &model.Notification{}
	var meta NullableJSON
	if err := row.Scan(&n.ID, &n.UserID, &n.Type, &n.Title, &n.Message, &n.Timestamp, &n.Read,
		&n.Priority, &n.Category, &n.ActionURL, &meta); err != nil {
		return nil, err
	}
	if err := meta.Decode(&n.Metadata); err != nil {
		return nil, err
	}
	return n, nil
}

// CreateNotification 创建通知
func (s *Store) CreateNotification(ctx context.Context, n *model.Notification) error {
	var meta any
	if len(n.Metadata) > 0 {
		var err error
		if meta, err = toJSON(n.Metadata); err != nil {
			return err
		}
	}
	_, err := s.exec(ctx,
		`INSERT INTO notifications (`+notificationColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		n.ID, n.UserID, n.Type, n.Title, n.Message, utc(n.Timestamp), n.Read,
		string(n.Priority), n.Category, n.ActionURL, meta,
	)
	return err
}

// GetNotification 获取通知
func (s *Store) GetNotification(ctx context.Context, id string) (*model.Notification, error) {
	n, err := scanNotification(s.q(ctx).QueryRowContext(ctx,
		s.rebind(`SELECT `+notificationColumns+` FROM notifications WHERE id = $1`), id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return n, nil
}

// audienceWhere 可见范围：发给该用户的，OwnOnly 为 false 时加上发给所有人的
func audienceWhere(w *dbutil.Where, scope storage.NotificationScope) {
	switch {
	case scope.UserID == "":
	case scope.OwnOnly:
		w.Add("user_id = ?", scope.UserID)
	default:
		w.Add("user_id IN (?, ?)", scope.UserID, model.NotificationAudienceAll)
	}
}

// ListNotifications 列出通知（按时间倒序）
func (s *Store) ListNotifications(ctx context.Context, filter storage.NotificationFilter) ([]*model.Notification, error) {
	var w dbutil.Where
	audienceWhere(&w, filter.Scope())
	if filter.UnreadOnly {
		w.Add("is_read = " + s.dialect.BooleanLiteral(false))
	}
	if filter.Category != "" {
		w.Add("category = ?", filter.Category)
	}

	query := `SELECT ` + notificationColumns + ` FROM notifications` + w.SQL() +
		` ORDER BY timestamp DESC, id LIMIT ` + w.Next(limitOr(filter.Limit, 50, 500))
	rows, err := s.q(ctx).QueryContext(ctx, s.rebind(query), w.Args()...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	list := []*model.Notification{}
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, n)
	}
	return list, rows.Err()
}

// CountUnreadNotifications 统计未读通知数
func (s *Store) CountUnreadNotifications(ctx context.Context, scope storage.NotificationScope) (int, error) {
	var w dbutil.Where
	audienceWhere(&w, scope)
	w.Add("is_read = " + s.dialect.BooleanLiteral(false))

	var n int
	err := s.q(ctx).QueryRowContext(ctx, s.rebind(`SELECT COUNT(*) FROM notifications`+w.SQL()), w.Args()...).Scan(&n)
	return n, err
}

// SetNotificationRead 设置已读标记
func (s *Store) SetNotificationRead(ctx context.Context, id string, read bool) error {
	return s.execAffect(ctx, `UPDATE notifications SET is_read = $1 WHERE id = $2`, read, id)
}

// MarkAllNotificationsRead 将用户可见的未读通知全部标记为已读，返回修改数
func (s *Store) MarkAllNotificationsRead(ctx context.Context, scope storage.NotificationScope) (int, error) {
	var w dbutil.Where
	audienceWhere(&w, scope)
	w.Add("is_read = " + s.dialect.BooleanLiteral(false))

	res, err := s.exec(ctx, `UPDATE notifications SET is_read = `+s.dialect.BooleanLiteral(true)+w.SQL(), w.Args()...)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// DeleteNotification 删除通知
func (s *Store) DeleteNotification(ctx context.Context, id string) error {
	return s.execAffect(ctx, `DELETE FROM notifications WHERE id = $1`, id)
}

// DeleteAllNotifications 删除发给该用户的全部通知（不含发给所有人的）
func (s *Store) DeleteAllNotifications(ctx context.Context, userID string) (int, error) {
	res, err := s.exec(ctx, `DELETE FROM notifications WHERE user_id = $1`, userID)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// ============================================================================
// AdminSessionStore
// ============================================================================

// MarkAdminWelcomed 记录管理员已收到欢迎通知，首次记录返回 true
func (s *Store) MarkAdminWelcomed(ctx context.Context, email string) (bool, error) {
	_, err := s.exec(ctx, `INSERT INTO admin_sessions (email, welcomed_at) VALUES ($1, $2)`, email, time.Now().UTC())
	if errors.Is(err, storage.ErrDuplicate) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
