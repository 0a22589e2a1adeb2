package mongostore

import (
	"context"
	"errors"
	"time"

	"memoria/internal/shared/model"
	"memoria/internal/shared/storage"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// ============================================================================
// NotificationStore
// ============================================================================

// audienceFilter 可见范围：发给该用户的，OwnOnly 为 false 时加上发给所有人的
func audienceFilter(scope storage.NotificationScope) bson.D {
	switch {
	case scope.UserID == "":
		return bson.D{}
	case scope.OwnOnly:
		return bson.D{{Key: "user_id", Value: scope.UserID}}
	}
	return bson.D{{Key: "user_id", Value: bson.D{{Key: "$in", Value: bson.A{scope.UserID, model.NotificationAudienceAll}}}}}
}

func (s *Store) CreateNotification(ctx context.Context, n *model.Notification) error {
	return insertOne(ctx, s.col(ColNotifications), n)
}

func (s *Store) GetNotification(ctx context.Context, id string) (*model.Notification, error) {
	return findOne[model.Notification](ctx, s.col(ColNotifications), byID(id))
}

func (s *Store) ListNotifications(ctx context.Context, f storage.NotificationFilter) ([]*model.Notification, error) {
	filter := audienceFilter(f.Scope())
	if f.UnreadOnly {
		filter = append(filter, bson.E{Key: "read", Value: false})
	}
	if f.Category != "" {
		filter = append(filter, bson.E{Key: "category", Value: f.Category})
	}
	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	if limit > 500 {
		limit = 500
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "timestamp", Value: -1}, {Key: "_id", Value: 1}}).
		SetLimit(int64(limit))
	return findMany[model.Notification](ctx, s.col(ColNotifications), filter, opts)
}

func (s *Store) CountUnreadNotifications(ctx context.Context, scope storage.NotificationScope) (int, error) {
	filter := append(audienceFilter(scope), bson.E{Key: "read", Value: false})
	n, err := s.col(ColNotifications).CountDocuments(ctx, filter)
	return int(n), err
}

func (s *Store) SetNotificationRead(ctx context.Context, id string, read bool) error {
	return updateFields(ctx, s.col(ColNotifications), id, bson.D{{Key: "read", Value: read}})
}

func (s *Store) MarkAllNotificationsRead(ctx context.Context, scope storage.NotificationScope) (int, error) {
	filter := append(audienceFilter(scope), bson.E{Key: "read", Value: false})
	res, err := s.col(ColNotifications).UpdateMany(ctx, filter,
		bson.D{{Key: "$set", Value: bson.D{{Key: "read", Value: true}}}})
	if err != nil {
		return 0, wrapError(err)
	}
	return int(res.ModifiedCount), nil
}

func (s *Store) DeleteNotification(ctx context.Context, id string) error {
	return deleteByID(ctx, s.col(ColNotifications), id)
}

// DeleteAllNotifications 删除发给该用户的全部通知（不含发给所有人的）
func (s *Store) DeleteAllNotifications(ctx context.Context, userID string) (int, error) {
	res, err := s.col(ColNotifications).DeleteMany(ctx, bson.D{{Key: "user_id", Value: userID}})
	if err != nil {
		return 0, wrapError(err)
	}
	return int(res.DeletedCount), nil
}

// MarkAdminWelcomed 记录管理员已收到欢迎通知，首次记录返回 true
func (s *Store) MarkAdminWelcomed(ctx context.Context, email string) (bool, error) {
	err := insertOne(ctx, s.col(ColAdminSessions), &model.AdminSession{Email: email, WelcomedAt: time.Now().UTC()})
	if errors.Is(err, storage.ErrDuplicate) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
