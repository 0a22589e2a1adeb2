package repository

import (
	"context"
	"time"

	"memoria/internal/shared/model"
	"memoria/internal/shared/storage/dbutil"
)

// ============================================================================
// ReportStore
// ============================================================================

// CreateReport 创建举报
func (s *Store) CreateReport(ctx context.Context, r *model.Report) error {
	_, err := s.exec(ctx,
		`INSERT INTO reports (id, reporter_id, target_type, target_id, reason, status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		r.ID, r.ReporterID, r.TargetType, r.TargetID, r.Reason, string(r.Status), utc(r.CreatedAt), utc(r.UpdatedAt),
	)
	return err
}

// ListReports 列出举报，status 为空时返回全部
func (s *Store) ListReports(ctx context.Context, status model.ReportStatus) ([]*model.Report, error) {
	var w dbutil.Where
	if status != "" {
		w.Add("status = ?", string(status))
	}
	rows, err := s.q(ctx).QueryContext(ctx, s.rebind(
		`SELECT id, reporter_id, target_type, target_id, reason, status, created_at, updated_at
		 FROM reports`+w.SQL()+` ORDER BY created_at DESC, id`), w.Args()...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	reports := []*model.Report{}
	for rows.Next() {
		r := &model.Report{}
		if err := rows.Scan(&r.ID, &r.ReporterID, &r.TargetType, &r.TargetID, &r.Reason, &r.Status,
			&r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, err
		}
		reports = append(reports, r)
	}
	return reports, rows.Err()
}

// UpdateReportStatus 更新举报处理状态
func (s *Store) UpdateReportStatus(ctx context.Context, id string, status model.ReportStatus) error {
	return s.execAffect(ctx,
		`UPDATE reports SET status = $1, updated_at = $2 WHERE id = $3`,
		string(status), time.Now().UTC(), id,
	)
}

// ============================================================================
// AuditStore
// ============================================================================

// CreateAuditLog 写入审计日志
func (s *Store) CreateAuditLog(ctx context.Context, l *model.AuditLog) error {
	var details any
	if len(l.Details) > 0 {
		var err error
		if details, err = toJSON(l.Details); err != nil {
			return err
		}
	}
	_, err := s.exec(ctx,
		`INSERT INTO audit_logs (id, actor, action, target_type, target_id, details, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		l.ID, l.Actor, l.Action, l.TargetType, l.TargetID, details, utc(l.CreatedAt),
	)
	return err
}

// ListAuditLogs 列出最近的审计日志
func (s *Store) ListAuditLogs(ctx context.Context, limit int) ([]*model.AuditLog, error) {
	rows, err := s.q(ctx).QueryContext(ctx, s.rebind(
		`SELECT id, actor, action, target_type, target_id, details, created_at
		 FROM audit_logs ORDER BY created_at DESC, id LIMIT $1`), limitOr(limit, 100, 1000))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := []*model.AuditLog{}
	for rows.Next() {
		l := &model.AuditLog{}
		var details NullableJSON
		if err := rows.Scan(&l.ID, &l.Actor, &l.Action, &l.TargetType, &l.TargetID, &details, &l.CreatedAt); err != nil {
			return nil, err
		}
		if err := details.Decode(&l.Details); err != nil {
			return nil, err
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}
