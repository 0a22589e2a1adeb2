package repository

import (
	"context"
	"database/sql"
	"errors"

	"memoria/internal/shared/model"
	"memoria/internal/shared/storage"
	"memoria/internal/shared/storage/dbutil"
)

// ============================================================================
// CourseStore - 课程 / 方向 / 班级
// ============================================================================

// CreateCourse 创建课程，代码重复时返回 ErrDuplicate
func (s *Store) CreateCourse(ctx context.Context, c *model.Course) error {
	_, err := s.exec(ctx,
		`INSERT INTO courses (id, code, name, department, created_at) VALUES ($1, $2, $3, $4, $5)`,
		c.ID, c.Code, c.Name, string(c.Department), utc(c.CreatedAt),
	)
	return err
}

// GetCourse 获取课程
func (s *Store) GetCourse(ctx context.Context, id string) (*model.Course, error) {
	c := &model.Course{}
	err := s.q(ctx).QueryRowContext(ctx,
		s.rebind(`SELECT id, code, name, department, created_at FROM courses WHERE id = $1`), id,
	).Scan(&c.ID, &c.Code, &c.Name, &c.Department, &c.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

// ListCourses 列出课程，dept 为空时返回全部
func (s *Store) ListCourses(ctx context.Context, dept model.Department) ([]*model.Course, error) {
	var w dbutil.Where
	if dept != "" {
		w.Add("department = ?", string(dept))
	}
	rows, err := s.q(ctx).QueryContext(ctx,
		s.rebind(`SELECT id, code, name, department, created_at FROM courses`+w.SQL()+` ORDER BY code`), w.Args()...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	courses := []*model.Course{}
	for rows.Next() {
		c := &model.Course{}
		if err := rows.Scan(&c.ID, &c.Code, &c.Name, &c.Department, &c.CreatedAt); err != nil {
			return nil, err
		}
		courses = append(courses, c)
	}
	return courses, rows.Err()
}

// DeleteCourse 删除课程及其方向
func (s *Store) DeleteCourse(ctx context.Context, id string) error {
	return s.WithTransaction(ctx, func(ctx context.Context) error {
		if _, err := s.exec(ctx, `DELETE FROM course_majors WHERE course_id = $1`, id); err != nil {
			return err
		}
		return s.execAffect(ctx, `DELETE FROM courses WHERE id = $1`, id)
	})
}

// CreateMajor 为课程添加方向，课程不存在返回 ErrNotFound，同名返回 ErrDuplicate
func (s *Store) CreateMajor(ctx context.Context, m *model.Major) error {
	return s.WithTransaction(ctx, func(ctx context.Context) error {
		c, err := s.GetCourse(ctx, m.CourseID)
		if err != nil {
			return err
		}
		if c == nil {
			return storage.ErrNotFound
		}
		_, err = s.exec(ctx,
			`INSERT INTO course_majors (id, course_id, name, created_at) VALUES ($1, $2, $3, $4)`,
			m.ID, m.CourseID, m.Name, utc(m.CreatedAt),
		)
		return err
	})
}

// ListMajors 列出课程下的方向
func (s *Store) ListMajors(ctx context.Context, courseID string) ([]*model.Major, error) {
	rows, err := s.q(ctx).QueryContext(ctx,
		s.rebind(`SELECT id, course_id, name, created_at FROM course_majors WHERE course_id = $1 ORDER BY name`), courseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	majors := []*model.Major{}
	for rows.Next() {
		m := &model.Major{}
		if err := rows.Scan(&m.ID, &m.CourseID, &m.Name, &m.CreatedAt); err != nil {
			return nil, err
		}
		majors = append(majors, m)
	}
	return majors, rows.Err()
}

// CreateSection 创建班级
func (s *Store) CreateSection(ctx context.Context, sec *model.Section) error {
	_, err := s.exec(ctx,
		`INSERT INTO sections (id, department, year_level, course_program, name, created_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		sec.ID, string(sec.Department), sec.YearLevel, sec.CourseProgram, sec.Name, utc(sec.CreatedAt),
	)
	return err
}

// ListSections 按部门、年级、课程过滤班级
func (s *Store) ListSections(ctx context.Context, filter storage.SectionFilter) ([]*model.Section, error) {
	var w dbutil.Where
	if filter.Department != "" {
		w.Add("department = ?", string(filter.Department))
	}
	if filter.YearLevel != "" {
		w.Add("year_level = ?", filter.YearLevel)
	}
	if filter.CourseProgram != "" {
		w.Add("course_program = ?", filter.CourseProgram)
	}
	rows, err := s.q(ctx).QueryContext(ctx,
		s.rebind(`SELECT id, department, year_level, course_program, name, created_at FROM sections`+w.SQL()+
			` ORDER BY department, year_level, name`), w.Args()...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sections := []*model.Section{}
	for rows.Next() {
		sec := &model.Section{}
		if err := rows.Scan(&sec.ID, &sec.Department, &sec.YearLevel, &sec.CourseProgram, &sec.Name, &sec.CreatedAt); err != nil {
			return nil, err
		}
		sections = append(sections, sec)
	}
	return sections, rows.Err()
}

// DeleteSection 删除班级
func (s *Store) DeleteSection(ctx context.Context, id string) error {
	return s.execAffect(ctx, `DELETE FROM sections WHERE id = $1`, id)
}
