package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"memoria/internal/shared/model"
)

// ============================================================================
// SchoolYearStore
// ============================================================================

const schoolYearColumns = `id, year_label, start_date, end_date, is_active, created_at, updated_at`

func scanSchoolYear(row rowScanner) (*model.SchoolYear, error) {
	y := &model.SchoolYear{}
	err := row.Scan(&y.ID, &y.YearLabel, &y.StartDate, &y.EndDate, &y.IsActive, &y.CreatedAt, &y.UpdatedAt)
	return y, err
}

// CreateSchoolYear 创建学年
func (s *Store) CreateSchoolYear(ctx context.Context, y *model.SchoolYear) error {
	_, err := s.exec(ctx,
		`INSERT INTO school_years (`+schoolYearColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		y.ID, y.YearLabel, utc(y.StartDate), utc(y.EndDate), y.IsActive, utc(y.CreatedAt), utc(y.UpdatedAt),
	)
	return err
}

func (s *Store) getSchoolYear(ctx context.Context, query string, args ...any) (*model.SchoolYear, error) {
	y, err := scanSchoolYear(s.q(ctx).QueryRowContext(ctx, s.rebind(query), args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return y, nil
}

// GetSchoolYear 获取学年
func (s *Store) GetSchoolYear(ctx context.Context, id string) (*model.SchoolYear, error) {
	return s.getSchoolYear(ctx, `SELECT `+schoolYearColumns+` FROM school_years WHERE id = $1`, id)
}

// GetActiveSchoolYear 获取激活中的学年
func (s *Store) GetActiveSchoolYear(ctx context.Context) (*model.SchoolYear, error) {
	return s.getSchoolYear(ctx,
		`SELECT `+schoolYearColumns+` FROM school_years WHERE is_active = `+s.dialect.BooleanLiteral(true)+
			` ORDER BY updated_at DESC LIMIT 1`)
}

// ListSchoolYears 列出所有学年（按开始日期倒序）
func (s *Store) ListSchoolYears(ctx context.Context) ([]*model.SchoolYear, error) {
	rows, err := s.q(ctx).QueryContext(ctx, s.rebind(
		`SELECT `+schoolYearColumns+` FROM school_years ORDER BY start_date DESC`))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	years := []*model.SchoolYear{}
	for rows.Next() {
		y, err := scanSchoolYear(rows)
		if err != nil {
			return nil, err
		}
		years = append(years, y)
	}
	return years, rows.Err()
}

// UpdateSchoolYear 更新学年基本信息（激活状态通过 SetActiveSchoolYear 修改）
func (s *Store) UpdateSchoolYear(ctx context.Context, y *model.SchoolYear) error {
	return s.execAffect(ctx,
		`UPDATE school_years SET year_label = $1, start_date = $2, end_date = $3, updated_at = $4 WHERE id = $5`,
		y.YearLabel, utc(y.StartDate), utc(y.EndDate), utc(y.UpdatedAt), y.ID,
	)
}

// SetActiveSchoolYear 激活指定学年，同一事务中取消其他学年的激活状态
func (s *Store) SetActiveSchoolYear(ctx context.Context, id string) error {
	return s.WithTransaction(ctx, func(ctx context.Context) error {
		if err := s.execAffect(ctx,
			`UPDATE school_years SET is_active = `+s.dialect.BooleanLiteral(true)+`, updated_at = $1 WHERE id = $2`,
			time.Now().UTC(), id); err != nil {
			return err
		}
		_, err := s.exec(ctx,
			`UPDATE school_years SET is_active = `+s.dialect.BooleanLiteral(false)+` WHERE id <> $1 AND is_active = `+s.dialect.BooleanLiteral(true),
			id)
		return err
	})
}

// DeleteSchoolYear 删除学年（不级联删除档案）
func (s *Store) DeleteSchoolYear(ctx context.Context, id string) error {
	return s.execAffect(ctx, `DELETE FROM school_years WHERE id = $1`, id)
}
