package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"memoria/internal/shared/model"
)

const userColumns = `id, email, school_id, full_name, password_hash, role, created_at, updated_at`

func scanUser(row rowScanner) (*model.User, error) {
	u := &model.User{}
	err := row.Scan(&u.ID, &u.Email, &u.SchoolID, &u.FullName, &u.PasswordHash, &u.Role, &u.CreatedAt, &u.UpdatedAt)
	return u, err
}

// CreateUser 创建用户，邮箱或学号重复时返回 ErrDuplicate
func (s *Store) CreateUser(ctx context.Context, user *model.User) error {
	_, err := s.exec(ctx,
		`INSERT INTO users (`+userColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		user.ID, user.Email, user.SchoolID, user.FullName, user.PasswordHash,
		string(user.Role), utc(user.CreatedAt), utc(user.UpdatedAt),
	)
	return err
}

func (s *Store) getUser(ctx context.Context, where string, arg any) (*model.User, error) {
	u, err := scanUser(s.q(ctx).QueryRowContext(ctx,
		s.rebind(`SELECT `+userColumns+` FROM users WHERE `+where), arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return u, nil
}

// GetUserByEmail 通过邮箱查找用户
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	return s.getUser(ctx, `email = $1`, email)
}

// GetUserBySchoolID 通过学号查找用户
func (s *Store) GetUserBySchoolID(ctx context.Context, schoolID string) (*model.User, error) {
	if schoolID == "" {
		return nil, nil
	}
	return s.getUser(ctx, `school_id = $1`, schoolID)
}

// GetUserByID 通过 ID 查找用户
func (s *Store) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	return s.getUser(ctx, `id = $1`, id)
}

// UpdateUserPassword 更新用户密码
func (s *Store) UpdateUserPassword(ctx context.Context, id, passwordHash string) error {
	return s.execAffect(ctx,
		`UPDATE users SET password_hash = $1, updated_at = $2 WHERE id = $3`,
		passwordHash, time.Now().UTC(), id,
	)
}

// ListUsers 列出所有用户
func (s *Store) ListUsers(ctx context.Context) ([]*model.User, error) {
	rows, err := s.q(ctx).QueryContext(ctx, `SELECT `+userColumns+` FROM users ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := []*model.User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}
