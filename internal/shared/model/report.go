package model

import "time"

// ReportStatus 举报处理状态
type ReportStatus string

const (
	ReportStatusOpen      ReportStatus = "open"
	ReportStatusResolved  ReportStatus = "resolved"
	ReportStatusDismissed ReportStatus = "dismissed"
)

// Valid 是否为已知状态
func (s ReportStatus) Valid() bool {
	switch s {
	case ReportStatusOpen, ReportStatusResolved, ReportStatusDismissed:
		return true
	}
	return false
}

// Report 用户对档案或媒体的举报
type Report struct {
	ID         string       `json:"id" bson:"_id" db:"id"`
	ReporterID string       `json:"reporterId" bson:"reporter_id" db:"reporter_id"`
	TargetType string       `json:"targetType" bson:"target_type" db:"target_type"` // profile / media / album
	TargetID   string       `json:"targetId" bson:"target_id" db:"target_id"`
	Reason     string       `json:"reason" bson:"reason" db:"reason"`
	Status     ReportStatus `json:"status" bson:"status" db:"status"`
	CreatedAt  time.Time    `json:"createdAt" bson:"created_at" db:"created_at"`
	UpdatedAt  time.Time    `json:"updatedAt" bson:"updated_at" db:"updated_at"`
}

// AuditLog 审计日志
type AuditLog struct {
	ID         string            `json:"id" bson:"_id" db:"id"`
	Actor      string            `json:"actor" bson:"actor" db:"actor"`
	Action     string            `json:"action" bson:"action" db:"action"`
	TargetType string            `json:"targetType" bson:"target_type" db:"target_type"`
	TargetID   string            `json:"targetId" bson:"target_id" db:"target_id"`
	Details    map[string]string `json:"details,omitempty" bson:"details,omitempty" db:"details"`
	CreatedAt  time.Time         `json:"createdAt" bson:"created_at" db:"created_at"`
}
