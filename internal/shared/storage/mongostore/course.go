package mongostore

import (
	"context"

	"memoria/internal/shared/model"
	"memoria/internal/shared/storage"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// ============================================================================
// CourseStore
// ============================================================================

func (s *Store) CreateCourse(ctx context.Context, c *model.Course) error {
	return insertOne(ctx, s.col(ColCourses), c)
}

func (s *Store) GetCourse(ctx context.Context, id string) (*model.Course, error) {
	return findOne[model.Course](ctx, s.col(ColCourses), byID(id))
}

func (s *Store) ListCourses(ctx context.Context, dept model.Department) ([]*model.Course, error) {
	filter := bson.D{}
	if dept != "" {
		filter = append(filter, bson.E{Key: "department", Value: dept})
	}
	return findMany[model.Course](ctx, s.col(ColCourses), filter,
		options.Find().SetSort(bson.D{{Key: "code", Value: 1}}))
}

// DeleteCourse 删除课程及其方向
func (s *Store) DeleteCourse(ctx context.Context, id string) error {
	return s.WithTransaction(ctx, func(ctx context.Context) error {
		if _, err := s.col(ColCourseMajors).DeleteMany(ctx, bson.D{{Key: "course_id", Value: id}}); err != nil {
			return wrapError(err)
		}
		return deleteByID(ctx, s.col(ColCourses), id)
	})
}

// CreateMajor 为课程添加方向，课程不存在返回 ErrNotFound
func (s *Store) CreateMajor(ctx context.Context, m *model.Major) error {
	c, err := s.GetCourse(ctx, m.CourseID)
	if err != nil {
		return err
	}
	if c == nil {
		return storage.ErrNotFound
	}
	return insertOne(ctx, s.col(ColCourseMajors), m)
}

func (s *Store) ListMajors(ctx context.Context, courseID string) ([]*model.Major, error) {
	return findMany[model.Major](ctx, s.col(ColCourseMajors), bson.D{{Key: "course_id", Value: courseID}},
		options.Find().SetSort(bson.D{{Key: "name", Value: 1}}))
}

func (s *Store) CreateSection(ctx context.Context, sec *model.Section) error {
	return insertOne(ctx, s.col(ColSections), sec)
}

func (s *Store) ListSections(ctx context.Context, f storage.SectionFilter) ([]*model.Section, error) {
	filter := bson.D{}
	if f.Department != "" {
		filter = append(filter, bson.E{Key: "department", Value: f.Department})
	}
	if f.YearLevel != "" {
		filter = append(filter, bson.E{Key: "year_level", Value: f.YearLevel})
	}
	if f.CourseProgram != "" {
		filter = append(filter, bson.E{Key: "course_program", Value: f.CourseProgram})
	}
	return findMany[model.Section](ctx, s.col(ColSections), filter,
		options.Find().SetSort(bson.D{{Key: "department", Value: 1}, {Key: "year_level", Value: 1}, {Key: "name", Value: 1}}))
}

func (s *Store) DeleteSection(ctx context.Context, id string) error {
	return deleteByID(ctx, s.col(ColSections), id)
}
