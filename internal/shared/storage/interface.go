// Package storage 定义持久化存储层抽象接口
//
// 设计原则：依赖倒置 (DIP)
//   - 调用方只依赖接口，不知道具体实现
//   - 具体实现在子包中：mongostore/（默认）、repository/（SQLite/PostgreSQL）
//   - 初始化时通过依赖注入传入实现（见 infra.OpenStore）
//
// 约定：
//   - Get* 在实体不存在时返回 (nil, nil)
//   - Update*/Delete* 在实体不存在时返回 ErrNotFound
//   - 唯一键冲突返回 ErrDuplicate
package storage

import (
	"context"

	"memoria/internal/shared/model"
)

// ============================================================================
// 查询过滤条件
// ============================================================================

// ProfileFilter 档案查询过滤条件
type ProfileFilter struct {
	YearID        string
	Type          model.ProfileType
	Status        model.ProfileStatus
	Department    model.Department
	YearLevel     string
	CourseProgram string
	BlockSection  string
	Query         string // 不区分大小写的子串匹配（search_text）
	UserID        string
	Limit         int
	Offset        int
}

// NotificationScope 通知可见范围
type NotificationScope struct {
	UserID  string // 为空表示全部；非空时范围为该用户 + "all"
	OwnOnly bool   // 只包含发给 UserID 的通知（普通用户看不到发给所有管理员的通知）
}

// NotificationFilter 通知查询过滤条件
type NotificationFilter struct {
	UserID     string
	OwnOnly    bool
	UnreadOnly bool
	Category   string
	Limit      int
}

// Scope 过滤条件对应的可见范围
func (f NotificationFilter) Scope() NotificationScope {
	return NotificationScope{UserID: f.UserID, OwnOnly: f.OwnOnly}
}

// AlbumFilter 相册查询过滤条件
type AlbumFilter struct {
	Category   string
	Tag        string
	PublicOnly bool
	YearID     string
}

// SectionFilter 班级查询过滤条件
type SectionFilter struct {
	Department    model.Department
	YearLevel     string
	CourseProgram string
}

// ============================================================================
// 持久化存储接口
// ============================================================================

// ProfileStore 档案存储接口
type ProfileStore interface {
	CreateProfile(ctx context.Context, p *model.Profile) error
	GetProfile(ctx context.Context, id string) (*model.Profile, error)
	ListProfiles(ctx context.Context, filter ProfileFilter) ([]*model.Profile, int, error)
	UpdateProfileData(ctx context.Context, p *model.Profile) error
	UpdateProfileStatus(ctx context.Context, id string, upd model.StatusUpdate) error
	DeleteProfile(ctx context.Context, id string) error
	ProfileStats(ctx context.Context, yearID string) (*model.ProfileStats, error)
}

// SchoolYearStore 学年存储接口
type SchoolYearStore interface {
	CreateSchoolYear(ctx context.Context, y *model.SchoolYear) error
	GetSchoolYear(ctx context.Context, id string) (*model.SchoolYear, error)
	GetActiveSchoolYear(ctx context.Context) (*model.SchoolYear, error)
	ListSchoolYears(ctx context.Context) ([]*model.SchoolYear, error)
	UpdateSchoolYear(ctx context.Context, y *model.SchoolYear) error
	// SetActiveSchoolYear 激活指定学年并取消其他学年的激活状态
	SetActiveSchoolYear(ctx context.Context, id string) error
	DeleteSchoolYear(ctx context.Context, id string) error
}

// NotificationStore 通知存储接口
type NotificationStore interface {
	CreateNotification(ctx context.Context, n *model.Notification) error
	GetNotification(ctx context.Context, id string) (*model.Notification, error)
	ListNotifications(ctx context.Context, filter NotificationFilter) ([]*model.Notification, error)
	CountUnreadNotifications(ctx context.Context, scope NotificationScope) (int, error)
	SetNotificationRead(ctx context.Context, id string, read bool) error
	MarkAllNotificationsRead(ctx context.Context, scope NotificationScope) (int, error)
	DeleteNotification(ctx context.Context, id string) error
	DeleteAllNotifications(ctx context.Context, userID string) (int, error)
}

// AdminSessionStore 管理员欢迎通知记录
type AdminSessionStore interface {
	// MarkAdminWelcomed 首次记录返回 true，已存在返回 false
	MarkAdminWelcomed(ctx context.Context, email string) (bool, error)
}

// GalleryStore 画廊存储接口
type GalleryStore interface {
	CreateAlbum(ctx context.Context, a *model.Album) error
	GetAlbum(ctx context.Context, id string) (*model.Album, error)
	ListAlbums(ctx context.Context, filter AlbumFilter) ([]*model.Album, error)
	UpdateAlbum(ctx context.Context, a *model.Album) error
	DeleteAlbum(ctx context.Context, id string) error

	CreateMediaItem(ctx context.Context, m *model.MediaItem) error
	GetMediaItem(ctx context.Context, id string) (*model.MediaItem, error)
	ListMediaItems(ctx context.Context, albumID string, status model.MediaStatus) ([]*model.MediaItem, error)
	UpdateMediaStatus(ctx context.Context, id string, status model.MediaStatus) error
	DeleteMediaItem(ctx context.Context, id string) error

	// ToggleMediaLike 切换点赞状态，返回切换后的状态和点赞数
	ToggleMediaLike(ctx context.Context, mediaID, userID string) (bool, int, error)
}

// UserStore 用户存储接口
type UserStore interface {
	CreateUser(ctx context.Context, user *model.User) error
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
	GetUserBySchoolID(ctx context.Context, schoolID string) (*model.User, error)
	GetUserByID(ctx context.Context, id string) (*model.User, error)
	UpdateUserPassword(ctx context.Context, id, passwordHash string) error
	ListUsers(ctx context.Context) ([]*model.User, error)
}

// CourseStore 课程、方向、班级存储接口
type CourseStore interface {
	CreateCourse(ctx context.Context, c *model.Course) error
	GetCourse(ctx context.Context, id string) (*model.Course, error)
	ListCourses(ctx context.Context, dept model.Department) ([]*model.Course, error)
	DeleteCourse(ctx context.Context, id string) error

	CreateMajor(ctx context.Context, m *model.Major) error
	ListMajors(ctx context.Context, courseID string) ([]*model.Major, error)

	CreateSection(ctx context.Context, s *model.Section) error
	ListSections(ctx context.Context, filter SectionFilter) ([]*model.Section, error)
	DeleteSection(ctx context.Context, id string) error
}

// ReportStore 举报存储接口
type ReportStore interface {
	CreateReport(ctx context.Context, r *model.Report) error
	ListReports(ctx context.Context, status model.ReportStatus) ([]*model.Report, error)
	UpdateReportStatus(ctx context.Context, id string, status model.ReportStatus) error
}

// AuditStore 审计日志存储接口
type AuditStore interface {
	CreateAuditLog(ctx context.Context, l *model.AuditLog) error
	ListAuditLogs(ctx context.Context, limit int) ([]*model.AuditLog, error)
}

// Transactor 工作单元
//
// fn 中使用传入的 ctx 调用存储方法，即可参与同一事务。
// fn 返回错误时回滚。
type Transactor interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// PersistentStore 持久化存储组合接口
type PersistentStore interface {
	ProfileStore
	SchoolYearStore
	NotificationStore
	AdminSessionStore
	GalleryStore
	UserStore
	CourseStore
	ReportStore
	AuditStore
	Transactor
	Ping(ctx context.Context) error
	Close() error
}
