package mongostore

import (
	"context"
	"sort"
	"strings"
	"time"

	"memoria/internal/shared/model"
	"memoria/internal/shared/storage"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// ============================================================================
// ProfileStore
//
// 档案按 Collection 字段写入对应的年鉴集合。按 ID 读取时依次查找所有集合，
// 跨集合的列表查询在内存中合并排序后分页。
// ============================================================================

// CreateProfile 创建档案
func (s *Store) CreateProfile(ctx context.Context, p *model.Profile) error {
	if p.Collection == "" {
		if err := p.Normalize(); err != nil {
			return err
		}
	}
	return insertOne(ctx, s.col(p.Collection), p)
}

// locateProfile 查找档案所在集合
func (s *Store) locateProfile(ctx context.Context, id string) (*model.Profile, string, error) {
	for _, c := range model.ProfileCollections {
		p, err := findOne[model.Profile](ctx, s.col(c), byID(id))
		if err != nil {
			return nil, "", err
		}
		if p != nil {
			return p, c, nil
		}
	}
	return nil, "", nil
}

// GetProfile 获取档案
func (s *Store) GetProfile(ctx context.Context, id string) (*model.Profile, error) {
	p, _, err := s.locateProfile(ctx, id)
	return p, err
}

// profileCollections 根据过滤条件缩小需要查询的集合
func profileCollections(f storage.ProfileFilter) []string {
	switch {
	case f.Department != "":
		return model.CollectionsForDepartment(f.Department)
	case f.Type != "":
		return model.CollectionsForType(f.Type)
	default:
		return model.ProfileCollections
	}
}

// profileFilter 构建档案查询条件
func profileFilter(f storage.ProfileFilter) bson.D {
	filter := bson.D{}
	if f.YearID != "" {
		filter = append(filter, bson.E{Key: "year_id", Value: f.YearID})
	}
	if f.Type != "" {
		filter = append(filter, bson.E{Key: "type", Value: f.Type})
	}
	if f.Status != "" {
		filter = append(filter, bson.E{Key: "status", Value: f.Status})
	}
	if f.Department != "" {
		filter = append(filter, bson.E{Key: "department", Value: f.Department})
	}
	if f.YearLevel != "" {
		filter = append(filter, bson.E{Key: "year_level", Value: equalFoldRegex(f.YearLevel)})
	}
	if f.CourseProgram != "" {
		filter = append(filter, bson.E{Key: "course_program", Value: equalFoldRegex(f.CourseProgram)})
	}
	if f.BlockSection != "" {
		filter = append(filter, bson.E{Key: "block_section", Value: equalFoldRegex(f.BlockSection)})
	}
	if f.UserID != "" {
		filter = append(filter, bson.E{Key: "user_id", Value: f.UserID})
	}
	if q := strings.TrimSpace(f.Query); q != "" {
		filter = append(filter, bson.E{Key: "search_text", Value: containsRegex(strings.ToLower(q))})
	}
	return filter
}

// ListProfiles 查询档案，返回当前页和总数；Limit <= 0 表示不分页
func (s *Store) ListProfiles(ctx context.Context, f storage.ProfileFilter) ([]*model.Profile, int, error) {
	filter := profileFilter(f)
	cols := profileCollections(f)

	sortByNewest := bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: 1}}

	// 单集合直接在数据库分页
	if len(cols) == 1 {
		total, err := s.col(cols[0]).CountDocuments(ctx, filter)
		if err != nil {
			return nil, 0, err
		}
		opts := options.Find().SetSort(sortByNewest)
		if f.Limit > 0 {
			opts.SetLimit(int64(f.Limit)).SetSkip(int64(f.Offset))
		}
		profiles, err := findMany[model.Profile](ctx, s.col(cols[0]), filter, opts)
		if err != nil {
			return nil, 0, err
		}
		return profiles, int(total), nil
	}

	// 多集合：每个集合最多取 offset+limit 条，合并后再分页
	all := []*model.Profile{}
	total := 0
	for _, c := range cols {
		n, err := s.col(c).CountDocuments(ctx, filter)
		if err != nil {
			return nil, 0, err
		}
		if n == 0 {
			continue
		}
		total += int(n)

		opts := options.Find().SetSort(sortByNewest)
		if f.Limit > 0 {
			opts.SetLimit(int64(f.Offset + f.Limit))
		}
		part, err := findMany[model.Profile](ctx, s.col(c), filter, opts)
		if err != nil {
			return nil, 0, err
		}
		all = append(all, part...)
	}

	sort.SliceStable(all, func(i, j int) bool {
		if !all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].CreatedAt.After(all[j].CreatedAt)
		}
		return all[i].ID < all[j].ID
	})

	if f.Limit > 0 {
		if f.Offset >= len(all) {
			return []*model.Profile{}, total, nil
		}
		end := f.Offset + f.Limit
		if end > len(all) {
			end = len(all)
		}
		all = all[f.Offset:end]
	}
	return all, total, nil
}

// UpdateProfileData 更新档案内容及派生字段
//
// 部门变化导致目标集合改变时，在同一事务中把文档迁移到新集合。
func (s *Store) UpdateProfileData(ctx context.Context, p *model.Profile) error {
	return s.WithTransaction(ctx, func(ctx context.Context) error {
		current, col, err := s.locateProfile(ctx, p.ID)
		if err != nil {
			return err
		}
		if current == nil {
			return storage.ErrNotFound
		}

		if col != p.Collection {
			moved := *current
			moved.Data = p.Data
			moved.Department = p.Department
			moved.Collection = p.Collection
			moved.YearLevel, moved.CourseProgram, moved.BlockSection = p.YearLevel, p.CourseProgram, p.BlockSection
			moved.SearchText = p.SearchText
			moved.UpdatedAt = p.UpdatedAt
			if err := insertOne(ctx, s.col(p.Collection), &moved); err != nil {
				return err
			}
			return deleteByID(ctx, s.col(col), p.ID)
		}

		return updateFields(ctx, s.col(col), p.ID, bson.D{
			{Key: "data", Value: p.Data},
			{Key: "search_text", Value: p.SearchText},
			{Key: "department", Value: p.Department},
			{Key: "year_level", Value: p.YearLevel},
			{Key: "course_program", Value: p.CourseProgram},
			{Key: "block_section", Value: p.BlockSection},
			{Key: "updated_at", Value: p.UpdatedAt},
		})
	})
}

// UpdateProfileStatus 更新审核状态，空字段保持原值
func (s *Store) UpdateProfileStatus(ctx context.Context, id string, upd model.StatusUpdate) error {
	_, col, err := s.locateProfile(ctx, id)
	if err != nil {
		return err
	}
	if col == "" {
		return storage.ErrNotFound
	}

	set := bson.D{
		{Key: "status", Value: upd.Status},
		{Key: "updated_at", Value: upd.UpdatedAt},
	}
	if upd.SubmittedAt != nil {
		set = append(set, bson.E{Key: "submitted_at", Value: *upd.SubmittedAt})
	}
	if upd.ReviewedAt != nil {
		set = append(set, bson.E{Key: "reviewed_at", Value: *upd.ReviewedAt})
	}
	if upd.ReviewedBy != "" {
		set = append(set, bson.E{Key: "reviewed_by", Value: upd.ReviewedBy})
	}
	if upd.RejectionReason != "" {
		set = append(set, bson.E{Key: "rejection_reason", Value: upd.RejectionReason})
	}
	if upd.From == "" {
		return updateFields(ctx, s.col(col), id, set)
	}

	filter := bson.D{{Key: "_id", Value: id}, {Key: "status", Value: upd.From}}
	res, err := s.col(col).UpdateOne(ctx, filter, bson.D{{Key: "$set", Value: set}})
	if err != nil {
		return wrapError(err)
	}
	if res.MatchedCount == 0 {
		// 状态已被并发请求修改（locateProfile 已确认档案存在）
		return storage.ErrConflict
	}
	return nil
}

// DeleteProfile 删除档案
func (s *Store) DeleteProfile(ctx context.Context, id string) error {
	_, col, err := s.locateProfile(ctx, id)
	if err != nil {
		return err
	}
	if col == "" {
		return storage.ErrNotFound
	}
	return deleteByID(ctx, s.col(col), id)
}

// ProfileStats 学年档案统计（各集合聚合后合并）
func (s *Store) ProfileStats(ctx context.Context, yearID string) (*model.ProfileStats, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.D{{Key: "year_id", Value: yearID}}}},
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: bson.D{
				{Key: "status", Value: "$status"},
				{Key: "department", Value: "$department"},
				{Key: "type", Value: "$type"},
			}},
			{Key: "count", Value: bson.D{{Key: "$sum", Value: 1}}},
		}}},
	}

	type bucket struct {
		Key struct {
			Status     model.ProfileStatus `bson:"status"`
			Department model.Department    `bson:"department"`
			Type       model.ProfileType   `bson:"type"`
		} `bson:"_id"`
		Count int `bson:"count"`
	}

	stats := model.NewProfileStats(yearID)
	for _, c := range model.ProfileCollections {
		cursor, err := s.col(c).Aggregate(ctx, pipeline)
		if err != nil {
			return nil, err
		}
		var buckets []bucket
		if err := cursor.All(ctx, &buckets); err != nil {
			return nil, err
		}
		for _, b := range buckets {
			stats.Add(b.Key.Status, b.Key.Department, b.Key.Type, b.Count)
		}
	}
	stats.GeneratedAt = time.Now()
	return stats, nil
}
