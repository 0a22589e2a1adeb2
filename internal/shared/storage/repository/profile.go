package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"memoria/internal/shared/model"
	"memoria/internal/shared/storage"
	"memoria/internal/shared/storage/dbutil"
)

// ============================================================================
// ProfileStore
// ============================================================================

const profileColumns = `id, user_id, type, status, year_id, collection, department,
	year_level, course_program, block_section, data, search_text,
	created_at, updated_at, submitted_at, reviewed_at, reviewed_by, rejection_reason`

// rowScanner *sql.Row 与 *sql.Rows 的公共方法
type rowScanner interface {
	Scan(dest ...any) error
}

func scanProfile(row rowScanner) (*model.Profile, error) {
	p := &model.Profile{}
	var (
		data                    []byte
		submittedAt, reviewedAt sql.NullTime
	)
	if err := row.Scan(&p.ID, &p.UserID, &p.Type, &p.Status, &p.YearID, &p.Collection, &p.Department,
		&p.YearLevel, &p.CourseProgram, &p.BlockSection, &data, &p.SearchText,
		&p.CreatedAt, &p.UpdatedAt, &submittedAt, &reviewedAt, &p.ReviewedBy, &p.RejectionReason); err != nil {
		return nil, err
	}
	p.SubmittedAt = timePtr(submittedAt)
	p.ReviewedAt = timePtr(reviewedAt)

	var raw map[string]any
	if len(data) > 0 {
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("decode profile %s data: %w", p.ID, err)
		}
	}
	d, err := model.DecodeProfileData(p.Type, raw)
	if err != nil {
		return nil, fmt.Errorf("decode profile %s data: %w", p.ID, err)
	}
	p.Data = d
	return p, nil
}

// CreateProfile 创建档案
func (s *Store) CreateProfile(ctx context.Context, p *model.Profile) error {
	data, err := json.Marshal(p.Data)
	if err != nil {
		return err
	}
	_, err = s.exec(ctx,
		`INSERT INTO profiles (`+profileColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`,
		p.ID, p.UserID, p.Type, p.Status, p.YearID, p.Collection, p.Department,
		p.YearLevel, p.CourseProgram, p.BlockSection, string(data), p.SearchText,
		utc(p.CreatedAt), utc(p.UpdatedAt), nullTime(p.SubmittedAt), nullTime(p.ReviewedAt),
		p.ReviewedBy, p.RejectionReason,
	)
	return err
}

// GetProfile 获取档案
func (s *Store) GetProfile(ctx context.Context, id string) (*model.Profile, error) {
	row := s.q(ctx).QueryRowContext(ctx, s.rebind(`SELECT `+profileColumns+` FROM profiles WHERE id = $1`), id)
	p, err := scanProfile(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return p, err
}

// profileWhere 构建档案查询条件
func profileWhere(f storage.ProfileFilter) *dbutil.Where {
	w := &dbutil.Where{}
	if f.YearID != "" {
		w.Add("year_id = ?", f.YearID)
	}
	if f.Type != "" {
		w.Add("type = ?", f.Type)
	}
	if f.Status != "" {
		w.Add("status = ?", f.Status)
	}
	if f.Department != "" {
		w.Add("department = ?", f.Department)
	}
	if f.YearLevel != "" {
		w.Add("LOWER(year_level) = ?", strings.ToLower(f.YearLevel))
	}
	if f.CourseProgram != "" {
		w.Add("LOWER(course_program) = ?", strings.ToLower(f.CourseProgram))
	}
	if f.BlockSection != "" {
		w.Add("LOWER(block_section) = ?", strings.ToLower(f.BlockSection))
	}
	if f.UserID != "" {
		w.Add("user_id = ?", f.UserID)
	}
	if q := strings.TrimSpace(f.Query); q != "" {
		w.Add(`search_text LIKE ? ESCAPE '\'`, "%"+dbutil.EscapeLike(strings.ToLower(q))+"%")
	}
	return w
}

// ListProfiles 查询档案，返回当前页和总数；Limit <= 0 表示不分页
func (s *Store) ListProfiles(ctx context.Context, f storage.ProfileFilter) ([]*model.Profile, int, error) {
	w := profileWhere(f)

	var total int
	if err := s.q(ctx).QueryRowContext(ctx, s.rebind(`SELECT COUNT(*) FROM profiles`+w.SQL()), w.Args()...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + profileColumns + ` FROM profiles` + w.SQL() + ` ORDER BY created_at DESC, id`
	if f.Limit > 0 {
		query += " LIMIT " + w.Next(f.Limit) + " OFFSET " + w.Next(f.Offset)
	}

	rows, err := s.q(ctx).QueryContext(ctx, s.rebind(query), w.Args()...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	profiles := []*model.Profile{}
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, 0, err
		}
		profiles = append(profiles, p)
	}
	return profiles, total, rows.Err()
}

// UpdateProfileData 更新档案内容及派生字段
func (s *Store) UpdateProfileData(ctx context.Context, p *model.Profile) error {
	data, err := json.Marshal(p.Data)
	if err != nil {
		return err
	}
	return s.execAffect(ctx,
		`UPDATE profiles SET data = $1, search_text = $2, department = $3, collection = $4,
		 year_level = $5, course_program = $6, block_section = $7, updated_at = $8
		 WHERE id = $9`,
		string(data), p.SearchText, p.Department, p.Collection,
		p.YearLevel, p.CourseProgram, p.BlockSection, utc(p.UpdatedAt), p.ID,
	)
}

// UpdateProfileStatus 更新审核状态，空字段保持原值
func (s *Store) UpdateProfileStatus(ctx context.Context, id string, upd model.StatusUpdate) error {
	sets := []string{"status = $1", "updated_at = $2"}
	args := []any{upd.Status, utc(upd.UpdatedAt)}
	add := func(col string, v any) {
		args = append(args, v)
		sets = append(sets, col+" = $"+strconv.Itoa(len(args)))
	}
	if upd.SubmittedAt != nil {
		add("submitted_at", utc(*upd.SubmittedAt))
	}
	if upd.ReviewedAt != nil {
		add("reviewed_at", utc(*upd.ReviewedAt))
	}
	if upd.ReviewedBy != "" {
		add("reviewed_by", upd.ReviewedBy)
	}
	if upd.RejectionReason != "" {
		add("rejection_reason", upd.RejectionReason)
	}
	args = append(args, id)
	query := `UPDATE profiles SET ` + strings.Join(sets, ", ") + ` WHERE id = $` + strconv.Itoa(len(args))
	if upd.From == "" {
		return s.execAffect(ctx, query, args...)
	}

	args = append(args, upd.From)
	query += ` AND status = $` + strconv.Itoa(len(args))
	err := s.execAffect(ctx, query, args...)
	if !errors.Is(err, storage.ErrNotFound) {
		return err
	}
	// 未更新：档案不存在，或状态已被并发请求修改
	p, gerr := s.GetProfile(ctx, id)
	if gerr != nil {
		return gerr
	}
	if p == nil {
		return storage.ErrNotFound
	}
	return storage.ErrConflict
}

// DeleteProfile 删除档案
func (s *Store) DeleteProfile(ctx context.Context, id string) error {
	return s.execAffect(ctx, `DELETE FROM profiles WHERE id = $1`, id)
}

// ProfileStats 学年档案统计
func (s *Store) ProfileStats(ctx context.Context, yearID string) (*model.ProfileStats, error) {
	rows, err := s.q(ctx).QueryContext(ctx, s.rebind(
		`SELECT status, department, type, COUNT(*) FROM profiles
		 WHERE year_id = $1 GROUP BY status, department, type`), yearID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stats := model.NewProfileStats(yearID)
	for rows.Next() {
		var (
			status model.ProfileStatus
			dept   model.Department
			typ    model.ProfileType
			n      int
		)
		if err := rows.Scan(&status, &dept, &typ, &n); err != nil {
			return nil, err
		}
		stats.Add(status, dept, typ, n)
	}
	stats.GeneratedAt = time.Now()
	return stats, rows.Err()
}
