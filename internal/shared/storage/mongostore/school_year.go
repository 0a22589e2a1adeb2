package mongostore

import (
	"context"
	"time"

	"memoria/internal/shared/model"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// ============================================================================
// SchoolYearStore
// ============================================================================

func (s *Store) CreateSchoolYear(ctx context.Context, y *model.SchoolYear) error {
	return insertOne(ctx, s.col(ColSchoolYears), y)
}

func (s *Store) GetSchoolYear(ctx context.Context, id string) (*model.SchoolYear, error) {
	return findOne[model.SchoolYear](ctx, s.col(ColSchoolYears), byID(id))
}

func (s *Store) GetActiveSchoolYear(ctx context.Context) (*model.SchoolYear, error) {
	return findOne[model.SchoolYear](ctx, s.col(ColSchoolYears),
		bson.D{{Key: "is_active", Value: true}},
		options.FindOne().SetSort(bson.D{{Key: "updated_at", Value: -1}}))
}

func (s *Store) ListSchoolYears(ctx context.Context) ([]*model.SchoolYear, error) {
	return findMany[model.SchoolYear](ctx, s.col(ColSchoolYears), bson.D{},
		options.Find().SetSort(bson.D{{Key: "start_date", Value: -1}}))
}

func (s *Store) UpdateSchoolYear(ctx context.Context, y *model.SchoolYear) error {
	return updateFields(ctx, s.col(ColSchoolYears), y.ID, bson.D{
		{Key: "year_label", Value: y.YearLabel},
		{Key: "start_date", Value: y.StartDate},
		{Key: "end_date", Value: y.EndDate},
		{Key: "updated_at", Value: y.UpdatedAt},
	})
}

// SetActiveSchoolYear 激活指定学年并取消其他学年的激活状态
func (s *Store) SetActiveSchoolYear(ctx context.Context, id string) error {
	return s.WithTransaction(ctx, func(ctx context.Context) error {
		if err := updateFields(ctx, s.col(ColSchoolYears), id, bson.D{
			{Key: "is_active", Value: true},
			{Key: "updated_at", Value: time.Now().UTC()},
		}); err != nil {
			return err
		}
		_, err := s.col(ColSchoolYears).UpdateMany(ctx,
			bson.D{{Key: "_id", Value: bson.D{{Key: "$ne", Value: id}}}, {Key: "is_active", Value: true}},
			bson.D{{Key: "$set", Value: bson.D{{Key: "is_active", Value: false}}}})
		return wrapError(err)
	})
}

func (s *Store) DeleteSchoolYear(ctx context.Context, id string) error {
	return deleteByID(ctx, s.col(ColSchoolYears), id)
}
