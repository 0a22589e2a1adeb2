// Package mongostore 实现基于 MongoDB 的 PersistentStore
//
// 使用 mongo-go-driver v2，通过 bson tag 实现 model 结构体的序列化/反序列化。
// 年鉴档案按部门分布在多个 Collection 中（见 model.ProfileCollections），
// 其余实体各占一个 Collection。所有索引在 ensureIndexes 中统一管理。
package mongostore

import (
	"context"
	"fmt"
	"log"
	"time"

	"memoria/internal/shared/model"
	"memoria/internal/shared/storage"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// Collection 名称常量
const (
	ColSchoolYears   = "SchoolYears"
	ColNotifications = "notifications"
	ColAdminSessions = "admin_sessions"
	ColAlbums        = "albums"
	ColMediaItems    = "media_items"
	ColMediaLikes    = "media_likes"
	ColUsers         = "users"
	ColCourses       = "courses"
	ColCourseMajors  = "course-majors"
	ColSections      = "sections"
	ColReports       = "reports"
	ColAuditLogs     = "AuditLogs"
)

// Store 实现 storage.PersistentStore 接口的 MongoDB 驱动
type Store struct {
	client *mongo.Client
	db     *mongo.Database

	// txEnabled 是否使用多文档事务（需要副本集）
	txEnabled bool
}

var _ storage.PersistentStore = (*Store)(nil)

// NewStore 创建 MongoDB 存储实例
//
// uri: MongoDB 连接 URI，如 "mongodb://localhost:27017"
// dbName: 数据库名称，如 "Memoria"
// transactions: 是否启用多文档事务，单节点部署应关闭
func NewStore(uri, dbName string, transactions bool) (*Store, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongostore: connect failed: %w", err)
	}

	// 验证连接
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongostore: ping failed: %w", err)
	}

	s := &Store{client: client, db: client.Database(dbName), txEnabled: transactions}

	// 创建索引
	if err := s.ensureIndexes(ctx); err != nil {
		log.Printf("WARNING: mongostore: ensure indexes failed: %v", err)
	}

	return s, nil
}

// Close 关闭 MongoDB 连接
func (s *Store) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

// Ping 检查连接
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

// col 获取指定 Collection
func (s *Store) col(name string) *mongo.Collection {
	return s.db.Collection(name)
}

// WithTransaction 在 MongoDB 会话事务中执行 fn
//
// 未启用事务时直接执行 fn，副作用依赖确定性 ID 与唯一索引保证幂等。
// 嵌套调用复用外层会话。
func (s *Store) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if !s.txEnabled || mongo.SessionFromContext(ctx) != nil {
		return fn(ctx)
	}

	sess, err := s.client.StartSession()
	if err != nil {
		return fmt.Errorf("mongostore: start session: %w", err)
	}
	defer sess.EndSession(ctx)

	_, err = sess.WithTransaction(ctx, func(ctx context.Context) (any, error) {
		return nil, fn(ctx)
	})
	return err
}

// ensureIndexes 创建所有必要的索引
func (s *Store) ensureIndexes(ctx context.Context) error {
	type idx struct {
		col     string
		keys    bson.D
		unique  bool
		partial bson.D
	}

	var indexes []idx

	// 各年鉴档案集合
	for _, c := range model.ProfileCollections {
		indexes = append(indexes,
			idx{col: c, keys: bson.D{{Key: "year_id", Value: 1}, {Key: "status", Value: 1}}},
			idx{col: c, keys: bson.D{{Key: "department", Value: 1}}},
			idx{col: c, keys: bson.D{{Key: "user_id", Value: 1}}},
			idx{col: c, keys: bson.D{{Key: "created_at", Value: -1}}},
		)
	}

	indexes = append(indexes,
		// SchoolYears
		idx{col: ColSchoolYears, keys: bson.D{{Key: "is_active", Value: 1}}},

		// notifications
		idx{col: ColNotifications, keys: bson.D{{Key: "user_id", Value: 1}, {Key: "read", Value: 1}}},
		idx{col: ColNotifications, keys: bson.D{{Key: "timestamp", Value: -1}}},

		// gallery
		idx{col: ColAlbums, keys: bson.D{{Key: "category", Value: 1}}},
		idx{col: ColAlbums, keys: bson.D{{Key: "tags", Value: 1}}},
		idx{col: ColMediaItems, keys: bson.D{{Key: "album_id", Value: 1}}},
		idx{col: ColMediaLikes, keys: bson.D{{Key: "media_id", Value: 1}, {Key: "user_id", Value: 1}}, unique: true},

		// users
		idx{col: ColUsers, keys: bson.D{{Key: "email", Value: 1}}, unique: true},
		idx{col: ColUsers, keys: bson.D{{Key: "school_id", Value: 1}}, unique: true,
			partial: bson.D{{Key: "school_id", Value: bson.D{{Key: "$exists", Value: true}}}}},

		// courses / majors / sections
		idx{col: ColCourses, keys: bson.D{{Key: "code", Value: 1}}, unique: true},
		idx{col: ColCourseMajors, keys: bson.D{{Key: "course_id", Value: 1}, {Key: "name", Value: 1}}, unique: true},
		idx{col: ColSections, keys: bson.D{
			{Key: "department", Value: 1}, {Key: "year_level", Value: 1},
			{Key: "course_program", Value: 1}, {Key: "name", Value: 1},
		}, unique: true},

		// reports / audit
		idx{col: ColReports, keys: bson.D{{Key: "status", Value: 1}}},
		idx{col: ColAuditLogs, keys: bson.D{{Key: "created_at", Value: -1}}},
	)

	for _, i := range indexes {
		im := mongo.IndexModel{Keys: i.keys}
		if i.unique {
			opts := options.Index().SetUnique(true)
			if i.partial != nil {
				opts.SetPartialFilterExpression(i.partial)
			}
			im.Options = opts
		}
		if _, err := s.col(i.col).Indexes().CreateOne(ctx, im); err != nil {
			return fmt.Errorf("create index on %s: %w", i.col, err)
		}
	}

	return nil
}
