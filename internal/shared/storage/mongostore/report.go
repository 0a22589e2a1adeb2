package mongostore

import (
	"context"
	"time"

	"memoria/internal/shared/model"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// ============================================================================
// ReportStore / AuditStore
// ============================================================================

func (s *Store) CreateReport(ctx context.Context, r *model.Report) error {
	return insertOne(ctx, s.col(ColReports), r)
}

func (s *Store) ListReports(ctx context.Context, status model.ReportStatus) ([]*model.Report, error) {
	filter := bson.D{}
	if status != "" {
		filter = append(filter, bson.E{Key: "status", Value: status})
	}
	return findMany[model.Report](ctx, s.col(ColReports), filter,
		options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: 1}}))
}

func (s *Store) UpdateReportStatus(ctx context.Context, id string, status model.ReportStatus) error {
	return updateFields(ctx, s.col(ColReports), id, bson.D{
		{Key: "status", Value: status},
		{Key: "updated_at", Value: time.Now().UTC()},
	})
}

func (s *Store) CreateAuditLog(ctx context.Context, l *model.AuditLog) error {
	return insertOne(ctx, s.col(ColAuditLogs), l)
}

func (s *Store) ListAuditLogs(ctx context.Context, limit int) ([]*model.AuditLog, error) {
	if limit <= 0 {
		limit = 100
	}
	if limit > 1000 {
		limit = 1000
	}
	return findMany[model.AuditLog](ctx, s.col(ColAuditLogs), bson.D{},
		options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: 1}}).SetLimit(int64(limit)))
}
