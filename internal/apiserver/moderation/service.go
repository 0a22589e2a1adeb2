// Package moderation 档案审核：状态流转、通知与审计
package moderation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"memoria/internal/apiserver/metrics"
	"memoria/internal/shared/cache"
	"memoria/internal/shared/eventbus"
	"memoria/internal/shared/model"
	"memoria/internal/shared/storage"
	"memoria/pkg/logging"
)

var (
	// ErrInvalidTransition 状态不能回退或越过终态
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrInvalidStatus 未知的目标状态
	ErrInvalidStatus = errors.New("invalid status")
)

// TransitionError 非法流转，携带当前状态和目标状态
type TransitionError struct {
	From, To model.ProfileStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%v: %s → %s", ErrInvalidTransition, e.From, e.To)
}

func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }

// Store 审核所需的存储能力
type Store interface {
	storage.ProfileStore
	storage.NotificationStore
	storage.AuditStore
	storage.Transactor
}

// TransitionRequest 状态流转请求
type TransitionRequest struct {
	ProfileID string
	YearID    string // 非空时校验档案所属学年
	Status    model.ProfileStatus
	Reviewer  string
	Reason    string
}

// Result 流转结果
type Result struct {
	Profile *model.Profile
	From    model.ProfileStatus
	Changed bool // 目标状态与当前状态相同时为 false，且不产生任何副作用
}

// Service 审核服务，HTTP 处理器和管理命令共用
type Service struct {
	store  Store
	stats  cache.StatsCache
	bus    eventbus.InvalidationBus
	logger *logging.Logger
}

// NewService 创建审核服务，stats 和 bus 可以为 nil
func NewService(store Store, stats cache.StatsCache, bus eventbus.InvalidationBus) *Service {
	return &Service{
		store:  store,
		stats:  stats,
		bus:    bus,
		logger: logging.Default("moderation"),
	}
}

// Transition 执行状态流转
//
// 状态更新、通知、审计日志在同一个事务中写入；通知和审计 ID 由档案 ID
// 和目标状态确定，重试时重复插入被忽略。提交后使统计缓存失效并发布
// yearbook_profile_changed。
func (s *Service) Transition(ctx context.Context, req TransitionRequest) (*Result, error) {
	if !req.Status.Valid() {
		return nil, ErrInvalidStatus
	}

	start := time.Now()
	var res Result
	err := s.store.WithTransaction(ctx, func(txCtx context.Context) error {
		p, err := s.store.GetProfile(txCtx, req.ProfileID)
		if err != nil {
			return fmt.Errorf("get profile: %w", err)
		}
		if p == nil || (req.YearID != "" && p.YearID != req.YearID) {
			return storage.ErrNotFound
		}
		res = Result{Profile: p, From: p.Status}

		if p.Status == req.Status {
			return nil
		}
		if !p.Status.CanTransitionTo(req.Status) {
			return &TransitionError{From: p.Status, To: req.Status}
		}

		upd := buildUpdate(p, req, time.Now().UTC())
		if err := s.store.UpdateProfileStatus(txCtx, p.ID, upd); err != nil {
			return fmt.Errorf("update status: %w", err)
		}
		applyUpdate(p, upd)

		if n := TransitionNotice(p); n != nil {
			if err := storage.IgnoreDuplicate(s.store.CreateNotification(txCtx, n)); err != nil {
				return fmt.Errorf("create notification: %w", err)
			}
		}
		if err := storage.IgnoreDuplicate(s.store.CreateAuditLog(txCtx, auditEntry(p, res.From, upd))); err != nil {
			return fmt.Errorf("create audit log: %w", err)
		}
		res.Changed = true
		return nil
	})
	if err != nil {
		return nil, err
	}

	if res.Changed {
		s.afterCommit(ctx, res, req.Reviewer, time.Since(start))
	}
	return &res, nil
}

func (s *Service) afterCommit(ctx context.Context, res Result, reviewer string, took time.Duration) {
	p := res.Profile
	logger := s.logger.WithContext(ctx).WithYearID(p.YearID)
	if s.stats != nil {
		if err := s.stats.InvalidateStats(ctx, p.YearID); err != nil {
			logger.WithError(err).Warn("stats invalidation failed", "profile_id", p.ID)
		}
	}
	metrics.RecordTransition(string(p.Status))
	if p.Status == model.ProfileStatusPending {
		metrics.RecordNotification(model.NotificationCategorySubmission)
	} else {
		metrics.RecordNotification(model.NotificationCategoryModeration)
	}
	eventbus.Notify(ctx, s.bus, eventbus.KeyYearbookProfileChanged, p.YearID, string(p.Department))
	logger.WithDuration(took).ModerationLog(p.ID, string(res.From), string(p.Status), reviewer)
}

func buildUpdate(p *model.Profile, req TransitionRequest, now time.Time) model.StatusUpdate {
	upd := model.StatusUpdate{
		From:        p.Status,
		Status:      req.Status,
		SubmittedAt: p.SubmittedAt,
		UpdatedAt:   now,
	}
	switch req.Status {
	case model.ProfileStatusPending:
		upd.SubmittedAt = &now
	case model.ProfileStatusApproved, model.ProfileStatusRejected:
		reviewed := now
		if reviewed.Before(p.CreatedAt) {
			reviewed = p.CreatedAt
		}
		upd.ReviewedAt = &reviewed
		upd.ReviewedBy = req.Reviewer
		if req.Status == model.ProfileStatusRejected {
			upd.RejectionReason = req.Reason
		}
	}
	return upd
}

func applyUpdate(p *model.Profile, upd model.StatusUpdate) {
	p.Status = upd.Status
	p.SubmittedAt = upd.SubmittedAt
	p.ReviewedAt = upd.ReviewedAt
	p.ReviewedBy = upd.ReviewedBy
	p.RejectionReason = upd.RejectionReason
	p.UpdatedAt = upd.UpdatedAt
}

// ============================================================================
// 副作用
// ============================================================================

// NotificationID 档案状态通知的确定性 ID
func NotificationID(profileID string, status model.ProfileStatus) string {
	return "ntf-" + profileID + "-" + string(status)
}

// AuditID 档案状态审计的确定性 ID
func AuditID(profileID string, status model.ProfileStatus) string {
	return "aud-" + profileID + "-" + string(status)
}

// TransitionNotice 档案进入新状态时的通知
// pending 通知所有管理员；approved / rejected 通知档案所有者；draft 不通知
func TransitionNotice(p *model.Profile) *model.Notification {
	n := &model.Notification{
		ID:        NotificationID(p.ID, p.Status),
		Timestamp: p.UpdatedAt,
		Metadata: map[string]string{
			"profileId": p.ID,
			"yearId":    p.YearID,
			"type":      string(p.Type),
		},
	}
	name := p.DisplayName()
	if name == "" {
		name = "A " + string(p.Type)
	}

	switch p.Status {
	case model.ProfileStatusPending:
		n.UserID = model.NotificationAudienceAll
		n.Type = model.NotificationTypeInfo
		n.Title = "New profile submission"
		n.Message = fmt.Sprintf("%s submitted a %s profile for review.", name, p.Type)
		n.Priority = model.NotificationPriorityMedium
		n.Category = model.NotificationCategorySubmission
		n.ActionURL = "/admin/" + p.YearID + "/profiles/" + p.ID
	case model.ProfileStatusApproved:
		n.UserID = p.UserID
		n.Type = model.NotificationTypeSuccess
		n.Title = "Profile approved"
		n.Message = "Your yearbook profile has been approved."
		n.Priority = model.NotificationPriorityMedium
		n.Category = model.NotificationCategoryModeration
	case model.ProfileStatusRejected:
		n.UserID = p.UserID
		n.Type = model.NotificationTypeWarning
		n.Title = "Profile needs changes"
		n.Message = "Your yearbook profile was not approved."
		if p.RejectionReason != "" {
			n.Message += " Reason: " + p.RejectionReason
		}
		n.Priority = model.NotificationPriorityHigh
		n.Category = model.NotificationCategoryModeration
	default:
		return nil
	}
	return n
}

func auditEntry(p *model.Profile, from model.ProfileStatus, upd model.StatusUpdate) *model.AuditLog {
	actor := upd.ReviewedBy
	if actor == "" {
		actor = p.UserID
	}
	details := map[string]string{
		"from":   string(from),
		"to":     string(upd.Status),
		"yearId": p.YearID,
	}
	if upd.RejectionReason != "" {
		details["reason"] = upd.RejectionReason
	}
	return &model.AuditLog{
		ID:         AuditID(p.ID, upd.Status),
		Actor:      actor,
		Action:     "profile." + string(upd.Status),
		TargetType: "profile",
		TargetID:   p.ID,
		Details:    details,
		CreatedAt:  upd.UpdatedAt,
	}
}
