package moderation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"memoria/internal/shared/eventbus"
	"memoria/internal/shared/model"
	"memoria/internal/shared/storage"
	"memoria/internal/testutil"
)

// recordingBus 记录发布的失效事件
type recordingBus struct {
	mu     sync.Mutex
	events []*eventbus.Invalidation
}

func (b *recordingBus) Publish(ctx context.Context, e *eventbus.Invalidation) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, e)
	return nil
}

func (b *recordingBus) Subscribe(ctx context.Context) (<-chan *eventbus.Invalidation, error) {
	return nil, errors.New("not supported")
}

func (b *recordingBus) Close() error { return nil }

func (b *recordingBus) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.events)
}

// recordingStats 记录失效的学年
type recordingStats struct {
	mu          sync.Mutex
	invalidated []string
}

func (s *recordingStats) GetStats(ctx context.Context, yearID string) (*model.ProfileStats, error) {
	return nil, nil
}

func (s *recordingStats) SetStats(ctx context.Context, stats *model.ProfileStats, ttl time.Duration) error {
	return nil
}

func (s *recordingStats) InvalidateStats(ctx context.Context, yearID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.invalidated = append(s.invalidated, yearID)
	return nil
}

type serviceEnv struct {
	store   storage.PersistentStore
	service *Service
	bus     *recordingBus
	stats   *recordingStats
}

func newServiceEnv(t *testing.T) *serviceEnv {
	t.Helper()
	store := testutil.NewStore(t)
	bus := &recordingBus{}
	stats := &recordingStats{}
	testutil.SeedProfile(t, store, "prf-1", "sy-1", model.ProfileTypeStudent, model.ProfileStatusPending,
		testutil.Student("Maria Clara", "college"))
	testutil.SeedProfile(t, store, "prf-2", "sy-1", model.ProfileTypeFaculty, model.ProfileStatusDraft,
		map[string]any{"fullName": "Jose Rizal", "position": "Teacher", "departmentAssigned": "Science"})
	return &serviceEnv{store: store, service: NewService(store, stats, bus), bus: bus, stats: stats}
}

func TestTransition_ApproveIsIdempotent(t *testing.T) {
	env := newServiceEnv(t)
	ctx := context.Background()

	res, err := env.service.Transition(ctx, TransitionRequest{
		ProfileID: "prf-1", YearID: "sy-1", Status: model.ProfileStatusApproved, Reviewer: "admin@memoria.test",
	})
	require.NoError(t, err)
	assert.True(t, res.Changed)
	assert.Equal(t, model.ProfileStatusPending, res.From)

	p, err := env.store.GetProfile(ctx, "prf-1")
	require.NoError(t, err)
	assert.Equal(t, model.ProfileStatusApproved, p.Status)
	require.NotNil(t, p.ReviewedAt)
	assert.False(t, p.ReviewedAt.Before(p.CreatedAt))
	assert.Equal(t, "admin@memoria.test", p.ReviewedBy)

	n, err := env.store.GetNotification(ctx, NotificationID("prf-1", model.ProfileStatusApproved))
	require.NoError(t, err)
	require.NotNil(t, n)
	assert.Equal(t, "u-prf-1", n.UserID)
	assert.Equal(t, model.NotificationCategoryModeration, n.Category)

	// 重复通过：成功且无副作用
	res, err = env.service.Transition(ctx, TransitionRequest{
		ProfileID: "prf-1", Status: model.ProfileStatusApproved, Reviewer: "admin@memoria.test",
	})
	require.NoError(t, err)
	assert.False(t, res.Changed)
	assert.Equal(t, model.ProfileStatusApproved, res.Profile.Status)

	notes, err := env.store.ListNotifications(ctx, storage.NotificationFilter{UserID: "u-prf-1"})
	require.NoError(t, err)
	assert.Len(t, notes, 1)
	logs, err := env.store.ListAuditLogs(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, logs, 1)
	assert.Equal(t, 1, env.bus.count())
	assert.Equal(t, []string{"sy-1"}, env.stats.invalidated)
	assert.Equal(t, eventbus.KeyYearbookProfileChanged, env.bus.events[0].Key)
	assert.Equal(t, string(model.DepartmentCollege), env.bus.events[0].Department)
}

func TestTransition_Rules(t *testing.T) {
	tests := []struct {
		name    string
		id      string
		year    string
		to      model.ProfileStatus
		wantErr error
	}{
		{"待审核→驳回", "prf-1", "sy-1", model.ProfileStatusRejected, nil},
		{"草稿→待审核", "prf-2", "sy-1", model.ProfileStatusPending, nil},
		{"草稿直接通过", "prf-2", "", model.ProfileStatusApproved, nil},
		{"待审核→草稿", "prf-1", "sy-1", model.ProfileStatusDraft, ErrInvalidTransition},
		{"未知状态", "prf-1", "sy-1", model.ProfileStatus("archived"), ErrInvalidStatus},
		{"档案不存在", "prf-404", "sy-1", model.ProfileStatusApproved, storage.ErrNotFound},
		{"学年不匹配", "prf-1", "sy-2", model.ProfileStatusApproved, storage.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newServiceEnv(t)
			res, err := env.service.Transition(context.Background(), TransitionRequest{
				ProfileID: tt.id, YearID: tt.year, Status: tt.to, Reviewer: "admin", Reason: "blurry photo",
			})
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Zero(t, env.bus.count())
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.to, res.Profile.Status)
			assert.Equal(t, 1, env.bus.count())
		})
	}
}

func TestTransition_TerminalStatesAreFinal(t *testing.T) {
	env := newServiceEnv(t)
	ctx := context.Background()

	_, err := env.service.Transition(ctx, TransitionRequest{ProfileID: "prf-1", Status: model.ProfileStatusRejected, Reason: "incomplete"})
	require.NoError(t, err)

	_, err = env.service.Transition(ctx, TransitionRequest{ProfileID: "prf-1", Status: model.ProfileStatusApproved})
	var terr *TransitionError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, model.ProfileStatusRejected, terr.From)
	assert.Equal(t, model.ProfileStatusApproved, terr.To)

	p, err := env.store.GetProfile(ctx, "prf-1")
	require.NoError(t, err)
	assert.Equal(t, "incomplete", p.RejectionReason)
}

func TestTransition_SubmitNotifiesAdmins(t *testing.T) {
	env := newServiceEnv(t)
	ctx := context.Background()

	res, err := env.service.Transition(ctx, TransitionRequest{ProfileID: "prf-2", Status: model.ProfileStatusPending})
	require.NoError(t, err)
	require.NotNil(t, res.Profile.SubmittedAt)

	n, err := env.store.GetNotification(ctx, NotificationID("prf-2", model.ProfileStatusPending))
	require.NoError(t, err)
	require.NotNil(t, n)
	assert.Equal(t, model.NotificationAudienceAll, n.UserID)
	assert.Equal(t, model.NotificationCategorySubmission, n.Category)
	assert.Contains(t, n.Message, "Jose Rizal")

	logs, err := env.store.ListAuditLogs(ctx, 10)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "u-prf-2", logs[0].Actor)
	assert.Equal(t, "profile.pending", logs[0].Action)
}

func TestTransitionNotice_Draft(t *testing.T) {
	assert.Nil(t, TransitionNotice(&model.Profile{ID: "prf-1", Status: model.ProfileStatusDraft}))
}

// racingStore 不开启事务（同 MongoDB 关闭事务时），GetProfile 读取后在 release 上等待，
// 让两个请求都读到旧状态再写入
type racingStore struct {
	storage.PersistentStore
	arrived chan struct{}
	release chan struct{}
}

func (s *racingStore) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func (s *racingStore) GetProfile(ctx context.Context, id string) (*model.Profile, error) {
	p, err := s.PersistentStore.GetProfile(ctx, id)
	s.arrived <- struct{}{}
	<-s.release
	return p, err
}

func TestTransition_ConcurrentApproveReject(t *testing.T) {
	env := newServiceEnv(t)
	store := &racingStore{
		PersistentStore: env.store,
		arrived:         make(chan struct{}, 2),
		release:         make(chan struct{}),
	}
	svc := NewService(store, env.stats, env.bus)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(map[model.ProfileStatus]error)
	var mu sync.Mutex
	for _, to := range []model.ProfileStatus{model.ProfileStatusApproved, model.ProfileStatusRejected} {
		wg.Add(1)
		go func(to model.ProfileStatus) {
			defer wg.Done()
			_, err := svc.Transition(ctx, TransitionRequest{ProfileID: "prf-1", Status: to, Reviewer: "admin", Reason: "late"})
			mu.Lock()
			errs[to] = err
			mu.Unlock()
		}(to)
	}
	<-store.arrived
	<-store.arrived
	close(store.release)
	wg.Wait()

	var won model.ProfileStatus
	conflicts := 0
	for to, err := range errs {
		switch {
		case err == nil:
			won = to
		case errors.Is(err, storage.ErrConflict):
			conflicts++
		default:
			t.Fatalf("%s: unexpected error %v", to, err)
		}
	}
	require.Equal(t, 1, conflicts, "只有一个请求成功")
	require.NotEmpty(t, won)

	p, err := env.store.GetProfile(ctx, "prf-1")
	require.NoError(t, err)
	assert.Equal(t, won, p.Status)

	notes, err := env.store.ListNotifications(ctx, storage.NotificationFilter{UserID: "u-prf-1", OwnOnly: true})
	require.NoError(t, err)
	require.Len(t, notes, 1, "所有者只收到一条审核通知")
	assert.Equal(t, NotificationID("prf-1", won), notes[0].ID)
	assert.Equal(t, 1, env.bus.count())
}
