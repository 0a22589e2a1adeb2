// Package testutil 测试辅助：内存 SQLite 存储与示例数据
package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"memoria/internal/shared/model"
	"memoria/internal/shared/storage/repository"
	sqlitedriver "memoria/internal/shared/storage/driver/sqlite"
)

// NewStore 创建 SQLite 内存数据库 Store，测试结束时关闭
func NewStore(t *testing.T) *repository.Store {
	t.Helper()
	db, err := sqlitedriver.Open(":memory:")
	require.NoError(t, err)
	dialect := sqlitedriver.NewDialect()
	require.NoError(t, dialect.AutoMigrate(db))
	store := repository.NewStore(db, dialect)
	t.Cleanup(func() { store.Close() })
	return store
}

// SeedYear 创建学年
func SeedYear(t *testing.T, store *repository.Store, id string, active bool) *model.SchoolYear {
	t.Helper()
	now := time.Now().UTC().Truncate(time.Millisecond)
	y := &model.SchoolYear{
		ID:        id,
		YearLabel: "2025-2026",
		StartDate: now.AddDate(0, -1, 0),
		EndDate:   now.AddDate(0, 9, 0),
		CreatedAt: now,
		UpdatedAt: now,
	}
	ctx := context.Background()
	require.NoError(t, store.CreateSchoolYear(ctx, y))
	if active {
		require.NoError(t, store.SetActiveSchoolYear(ctx, id))
		y.IsActive = true
	}
	return y
}

// SeedProfile 按原始 data 创建档案
func SeedProfile(t *testing.T, store *repository.Store, id, yearID string, typ model.ProfileType,
	status model.ProfileStatus, raw map[string]any) *model.Profile {
	t.Helper()
	data, err := model.DecodeProfileData(typ, raw)
	require.NoError(t, err)
	now := time.Now().UTC().Truncate(time.Millisecond)
	p := &model.Profile{
		ID: id, UserID: "u-" + id, Type: typ, Status: status,
		YearID: yearID, Data: data, CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, p.Normalize())
	require.NoError(t, store.CreateProfile(context.Background(), p))
	return p
}

// Student 学生档案的最小合法 data
func Student(name, dept string) map[string]any {
	return map[string]any{
		"fullName":   name,
		"email":      "student@school.edu",
		"age":        "15",
		"department": dept,
		"yearLevel":  "10",
	}
}
