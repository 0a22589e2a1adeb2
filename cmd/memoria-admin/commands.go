package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"

	"memoria/internal/apiserver/auth"
	"memoria/internal/apiserver/moderation"
	"memoria/internal/apiserver/validation"
	"memoria/internal/shared/cache"
	"memoria/internal/shared/eventbus"
	objstore "memoria/internal/shared/minio"
	"memoria/internal/shared/model"
	"memoria/internal/shared/storage"
)

// cliActor 命令行操作在审计日志中的操作者
const cliActor = "cli"

// exportObjects 导出管理所需的对象存储能力
type exportObjects interface {
	ListExports(ctx context.Context, yearID string) ([]objstore.ObjectInfo, error)
	Download(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
}

type app struct {
	store      storage.PersistentStore
	stats      cache.StatsCache
	bus        eventbus.InvalidationBus
	moderation *moderation.Service
	objects    exportObjects
	out        io.Writer
}

func newApp(store storage.PersistentStore, stats cache.StatsCache, bus eventbus.InvalidationBus, out io.Writer) *app {
	return &app{
		store:      store,
		stats:      stats,
		bus:        bus,
		moderation: moderation.NewService(store, stats, bus),
		out:        out,
	}
}

func (a *app) run(ctx context.Context, cmd string, args []string) error {
	switch cmd {
	case "create-user":
		return a.createUser(ctx, args)
	case "seed-year":
		return a.seedYear(ctx, args)
	case "list-pending":
		return a.listPending(ctx, args)
	case "approve":
		return a.approve(ctx, args)
	case "exports":
		return a.exports(ctx, args)
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return fs
}

// ============================================================================
// create-user
// ============================================================================

type userInput struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
	FullName string `json:"fullName" validate:"notblank"`
	Role     string `json:"role" validate:"required"`
}

func (a *app) createUser(ctx context.Context, args []string) error {
	fs := newFlagSet("create-user")
	in := userInput{}
	schoolID := fs.String("school-id", "", "学号/工号")
	fs.StringVar(&in.Email, "email", "", "邮箱")
	fs.StringVar(&in.Password, "password", "", "密码（至少 8 位）")
	fs.StringVar(&in.FullName, "name", "", "姓名")
	fs.StringVar(&in.Role, "role", string(model.UserRoleAdmin), "角色")
	if err := fs.Parse(args); err != nil {
		return err
	}
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	if in.FullName == "" {
		in.FullName = in.Email
	}
	if err := validation.Struct(in); err != nil {
		return fmt.Errorf("invalid fields %s: %s", strings.Join(validation.Fields(err), ", "), validation.Message(err))
	}
	role := model.UserRole(in.Role)
	if !role.Valid() {
		return fmt.Errorf("invalid role %q", in.Role)
	}

	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	user := &model.User{
		ID:           "usr-" + uuid.NewString(),
		Email:        in.Email,
		SchoolID:     strings.TrimSpace(*schoolID),
		FullName:     in.FullName,
		PasswordHash: hash,
		Role:         role,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := a.store.CreateUser(ctx, user); err != nil {
		if errors.Is(err, storage.ErrDuplicate) {
			return fmt.Errorf("user %s already exists", in.Email)
		}
		return err
	}
	fmt.Fprintf(a.out, "created user %s (%s, role=%s)\n", user.ID, user.Email, user.Role)
	return nil
}

// ============================================================================
// seed-year
// ============================================================================

func (a *app) seedYear(ctx context.Context, args []string) error {
	fs := newFlagSet("seed-year")
	label := fs.String("label", "", "学年名称，例如 2025-2026")
	start := fs.String("start", "", "开始日期 YYYY-MM-DD")
	end := fs.String("end", "", "结束日期 YYYY-MM-DD")
	active := fs.Bool("active", false, "设为激活学年")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if strings.TrimSpace(*label) == "" {
		return errors.New("--label is required")
	}
	startDate, err := time.Parse(time.DateOnly, *start)
	if err != nil {
		return fmt.Errorf("invalid --start: %w", err)
	}
	endDate, err := time.Parse(time.DateOnly, *end)
	if err != nil {
		return fmt.Errorf("invalid --end: %w", err)
	}
	if !endDate.After(startDate) {
		return errors.New("end date must be after start date")
	}

	now := time.Now().UTC()
	y := &model.SchoolYear{
		ID:        "sy-" + uuid.NewString(),
		YearLabel: strings.TrimSpace(*label),
		StartDate: startDate,
		EndDate:   endDate,
		CreatedAt: now,
		UpdatedAt: now,
	}
	err = a.store.WithTransaction(ctx, func(ctx context.Context) error {
		if err := a.store.CreateSchoolYear(ctx, y); err != nil {
			return err
		}
		if *active {
			if err := a.store.SetActiveSchoolYear(ctx, y.ID); err != nil {
				return err
			}
			y.IsActive = true
		}
		return a.store.CreateAuditLog(ctx, &model.AuditLog{
			ID:         "aud-" + uuid.NewString(),
			Actor:      cliActor,
			Action:     "school_year.created",
			TargetType: "school_year",
			TargetID:   y.ID,
			Details:    map[string]string{"yearLabel": y.YearLabel},
			CreatedAt:  now,
		})
	})
	if err != nil {
		if errors.Is(err, storage.ErrDuplicate) {
			return fmt.Errorf("school year %q already exists", y.YearLabel)
		}
		return err
	}
	eventbus.Notify(ctx, a.bus, eventbus.KeySchoolYearUpdated, y.ID, "")
	fmt.Fprintf(a.out, "created school year %s (%s, active=%t)\n", y.ID, y.YearLabel, y.IsActive)
	return nil
}

// ============================================================================
// list-pending
// ============================================================================

func (a *app) listPending(ctx context.Context, args []string) error {
	fs := newFlagSet("list-pending")
	yearID := fs.String("year", "", "学年 ID（默认激活学年）")
	limit := fs.Int("limit", 50, "最多显示条数")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *yearID == "" {
		active, err := a.store.GetActiveSchoolYear(ctx)
		if err != nil {
			return err
		}
		if active == nil {
			return errors.New("no active school year, pass --year")
		}
		*yearID = active.ID
	}

	profiles, total, err := a.store.ListProfiles(ctx, storage.ProfileFilter{
		YearID: *yearID,
		Status: model.ProfileStatusPending,
		Limit:  *limit,
	})
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTYPE\tDEPARTMENT\tNAME\tSUBMITTED")
	for _, p := range profiles {
		submitted := "-"
		if p.SubmittedAt != nil {
			submitted = p.SubmittedAt.Format(time.DateTime)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", p.ID, p.Type, p.Department, p.DisplayName(), submitted)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "%d of %d pending\n", len(profiles), total)
	return nil
}

// ============================================================================
// approve
// ============================================================================

func (a *app) approve(ctx context.Context, args []string) error {
	fs := newFlagSet("approve")
	id := fs.String("id", "", "档案 ID")
	reject := fs.Bool("reject", false, "驳回而不是通过")
	reason := fs.String("reason", "", "驳回原因")
	reviewer := fs.String("reviewer", cliActor, "审核人")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *id == "" {
		return errors.New("--id is required")
	}

	status := model.ProfileStatusApproved
	if *reject {
		status = model.ProfileStatusRejected
	}
	res, err := a.moderation.Transition(ctx, moderation.TransitionRequest{
		ProfileID: *id,
		Status:    status,
		Reviewer:  *reviewer,
		Reason:    *reason,
	})
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("profile %s not found", *id)
		}
		if errors.Is(err, storage.ErrConflict) {
			return fmt.Errorf("profile %s was changed by another reviewer, retry", *id)
		}
		return err
	}
	if !res.Changed {
		fmt.Fprintf(a.out, "profile %s already %s\n", *id, res.Profile.Status)
		return nil
	}
	fmt.Fprintf(a.out, "profile %s: %s → %s\n", *id, res.From, res.Profile.Status)
	return nil
}

// ============================================================================
// exports
// ============================================================================

func (a *app) exports(ctx context.Context, args []string) error {
	fs := newFlagSet("exports")
	yearID := fs.String("year", "", "学年 ID")
	download := fs.String("download", "", "下载指定对象")
	out := fs.String("out", "", "下载保存路径（默认使用对象名）")
	del := fs.String("delete", "", "删除指定对象")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if a.objects == nil {
		return errors.New("export storage is not configured")
	}

	switch {
	case *download != "":
		return a.downloadExport(ctx, *download, *out)
	case *del != "":
		if err := a.objects.Delete(ctx, *del); err != nil {
			return err
		}
		fmt.Fprintf(a.out, "deleted %s\n", *del)
		return nil
	}

	if *yearID == "" {
		return errors.New("--year is required")
	}
	objects, err := a.objects.ListExports(ctx, *yearID)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "KEY\tSIZE\tCREATED")
	for _, o := range objects {
		fmt.Fprintf(tw, "%s\t%d\t%s\n", o.Key, o.Size, o.LastModified.Format(time.DateTime))
	}
	return tw.Flush()
}

func (a *app) downloadExport(ctx context.Context, key, dest string) error {
	if dest == "" {
		parts := strings.Split(key, "/")
		dest = parts[len(parts)-1]
	}
	body, err := a.objects.Download(ctx, key)
	if err != nil {
		return err
	}
	defer body.Close()

	f, err := os.Create(dest)
	if err != nil {
		return err
	}
	n, err := io.Copy(f, body)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "downloaded %s → %s (%d bytes)\n", key, dest, n)
	return nil
}
