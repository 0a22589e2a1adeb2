// Package model 定义核心数据模型
//
// profile.go 包含年鉴档案相关的数据模型定义：
//   - Profile：一个人在一个学年中提交的档案
//   - ProfileType：档案类型（学生、教职工、校友等）
//   - ProfileStatus：审核状态（draft → pending → approved | rejected）
//   - Department：所属部门，决定档案落入哪个年鉴集合
//
// 档案内容 ProfileData 是按类型区分的标签联合，见 profile_data.go
package model

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// ============================================================================
// ProfileType - 档案类型
// ============================================================================

// ProfileType 档案类型
type ProfileType string

const (
	ProfileTypeStudent  ProfileType = "student"
	ProfileTypeFaculty  ProfileType = "faculty"
	ProfileTypeAlumni   ProfileType = "alumni"
	ProfileTypeStaff    ProfileType = "staff"
	ProfileTypeUtility  ProfileType = "utility"
	ProfileTypeAdvisory ProfileType = "advisory"
)

// ProfileTypes 所有档案类型
var ProfileTypes = []ProfileType{
	ProfileTypeStudent,
	ProfileTypeFaculty,
	ProfileTypeAlumni,
	ProfileTypeStaff,
	ProfileTypeUtility,
	ProfileTypeAdvisory,
}

// Valid 是否为已知类型
func (t ProfileType) Valid() bool {
	for _, v := range ProfileTypes {
		if t == v {
			return true
		}
	}
	return false
}

// ============================================================================
// ProfileStatus - 审核状态
// ============================================================================

// ProfileStatus 档案审核状态
type ProfileStatus string

const (
	ProfileStatusDraft    ProfileStatus = "draft"
	ProfileStatusPending  ProfileStatus = "pending"
	ProfileStatusApproved ProfileStatus = "approved"
	ProfileStatusRejected ProfileStatus = "rejected"
)

// ProfileStatuses 所有审核状态
var ProfileStatuses = []ProfileStatus{
	ProfileStatusDraft,
	ProfileStatusPending,
	ProfileStatusApproved,
	ProfileStatusRejected,
}

// rank 状态在生命周期中的位置，approved 与 rejected 同为终态
func (s ProfileStatus) rank() int {
	switch s {
	case ProfileStatusDraft:
		return 0
	case ProfileStatusPending:
		return 1
	case ProfileStatusApproved, ProfileStatusRejected:
		return 2
	default:
		return -1
	}
}

// Valid 是否为已知状态
func (s ProfileStatus) Valid() bool {
	return s.rank() >= 0
}

// IsTerminal 是否为终态
func (s ProfileStatus) IsTerminal() bool {
	return s.rank() == 2
}

// CanTransitionTo 状态只能向前推进
func (s ProfileStatus) CanTransitionTo(to ProfileStatus) bool {
	if !s.Valid() || !to.Valid() {
		return false
	}
	return s.rank() < to.rank()
}

// ============================================================================
// Department - 部门与年鉴集合
// ============================================================================

// Department 部门
type Department string

const (
	DepartmentCollege      Department = "college"
	DepartmentSeniorHigh   Department = "senior_high"
	DepartmentJuniorHigh   Department = "junior_high"
	DepartmentElementary   Department = "elementary"
	DepartmentAlumni       Department = "alumni"
	DepartmentFacultyStaff Department = "faculty_staff"
	DepartmentARSisters    Department = "ar_sisters"
)

// 年鉴集合名称
const (
	CollectionCollege      = "College_yearbook"
	CollectionSeniorHigh   = "SeniorHigh_yearbook"
	CollectionJuniorHigh   = "JuniorHigh_yearbook"
	CollectionElementary   = "Elementary_yearbook"
	CollectionAlumni       = "Alumni_yearbook"
	CollectionFacultyStaff = "FacultyStaff_yearbook"
	CollectionARSisters    = "ARSisters_yearbook"
	CollectionAdvisory     = "advisory_profiles"
)

// ProfileCollections 所有档案集合
var ProfileCollections = []string{
	CollectionCollege,
	CollectionSeniorHigh,
	CollectionJuniorHigh,
	CollectionElementary,
	CollectionAlumni,
	CollectionFacultyStaff,
	CollectionARSisters,
	CollectionAdvisory,
}

var studentCollections = map[Department]string{
	DepartmentCollege:    CollectionCollege,
	DepartmentSeniorHigh: CollectionSeniorHigh,
	DepartmentJuniorHigh: CollectionJuniorHigh,
	DepartmentElementary: CollectionElementary,
}

// IsStudentDepartment 是否为学生所在的学部
func (d Department) IsStudentDepartment() bool {
	_, ok := studentCollections[d]
	return ok
}

// ParseDepartment 解析前端提交的各种部门写法
// 例如 "Senior High"、"senior-high"、"SHS" 都解析为 senior_high
func ParseDepartment(s string) (Department, bool) {
	key := strings.ToLower(strings.TrimSpace(s))
	key = strings.NewReplacer("-", "", "_", "", " ", "", ".", "").Replace(key)
	switch key {
	case "college", "tertiary":
		return DepartmentCollege, true
	case "seniorhigh", "seniorhighschool", "shs":
		return DepartmentSeniorHigh, true
	case "juniorhigh", "juniorhighschool", "jhs":
		return DepartmentJuniorHigh, true
	case "elementary", "gradeschool", "elem":
		return DepartmentElementary, true
	case "alumni":
		return DepartmentAlumni, true
	case "facultystaff", "faculty", "staff":
		return DepartmentFacultyStaff, true
	case "arsisters", "ar":
		return DepartmentARSisters, true
	default:
		return "", false
	}
}

// CollectionFor 根据档案类型和部门确定年鉴集合
func CollectionFor(t ProfileType, d Department) (string, error) {
	switch t {
	case ProfileTypeStudent:
		if col, ok := studentCollections[d]; ok {
			return col, nil
		}
		return "", fmt.Errorf("invalid student department %q", d)
	case ProfileTypeAlumni:
		return CollectionAlumni, nil
	case ProfileTypeFaculty, ProfileTypeStaff, ProfileTypeUtility:
		if d == DepartmentARSisters {
			return CollectionARSisters, nil
		}
		return CollectionFacultyStaff, nil
	case ProfileTypeAdvisory:
		return CollectionAdvisory, nil
	default:
		return "", fmt.Errorf("invalid profile type %q", t)
	}
}

// CollectionsForDepartment 可能包含该部门档案的集合
// 学部的年鉴页同时展示该学部的班级导师（advisory_profiles）
func CollectionsForDepartment(d Department) []string {
	if col, ok := studentCollections[d]; ok {
		return []string{col, CollectionAdvisory}
	}
	switch d {
	case DepartmentAlumni:
		return []string{CollectionAlumni}
	case DepartmentFacultyStaff:
		return []string{CollectionFacultyStaff}
	case DepartmentARSisters:
		return []string{CollectionARSisters}
	}
	return nil
}

// CollectionsForType 可能包含该类型档案的集合
func CollectionsForType(t ProfileType) []string {
	switch t {
	case ProfileTypeStudent:
		return []string{CollectionCollege, CollectionSeniorHigh, CollectionJuniorHigh, CollectionElementary}
	case ProfileTypeAlumni:
		return []string{CollectionAlumni}
	case ProfileTypeFaculty, ProfileTypeStaff, ProfileTypeUtility:
		return []string{CollectionFacultyStaff, CollectionARSisters}
	case ProfileTypeAdvisory:
		return []string{CollectionAdvisory}
	}
	return nil
}

// ============================================================================
// Profile - 年鉴档案
// ============================================================================

// Profile 年鉴档案
//
// Department/YearLevel/CourseProgram/BlockSection/SearchText 是从 Data 派生的
// 冗余字段，由 Normalize 在每次写入前计算，用于索引查询。
type Profile struct {
	ID     string        `json:"id" bson:"_id" db:"id"`
	UserID string        `json:"userId" bson:"user_id" db:"user_id"`
	Type   ProfileType   `json:"type" bson:"type" db:"type"`
	Status ProfileStatus `json:"status" bson:"status" db:"status"`
	YearID string        `json:"yearId" bson:"year_id" db:"year_id"`
	Data   ProfileData   `json:"data" bson:"data" db:"data"`

	Department    Department `json:"department" bson:"department" db:"department"`
	Collection    string     `json:"collection" bson:"collection" db:"collection"`
	YearLevel     string     `json:"-" bson:"year_level,omitempty" db:"year_level"`
	CourseProgram string     `json:"-" bson:"course_program,omitempty" db:"course_program"`
	BlockSection  string     `json:"-" bson:"block_section,omitempty" db:"block_section"`
	SearchText    string     `json:"-" bson:"search_text" db:"search_text"`

	CreatedAt       time.Time  `json:"createdAt" bson:"created_at" db:"created_at"`
	UpdatedAt       time.Time  `json:"updatedAt" bson:"updated_at" db:"updated_at"`
	SubmittedAt     *time.Time `json:"submittedAt,omitempty" bson:"submitted_at,omitempty" db:"submitted_at"`
	ReviewedAt      *time.Time `json:"reviewedAt,omitempty" bson:"reviewed_at,omitempty" db:"reviewed_at"`
	ReviewedBy      string     `json:"reviewedBy,omitempty" bson:"reviewed_by,omitempty" db:"reviewed_by"`
	RejectionReason string     `json:"rejectionReason,omitempty" bson:"rejection_reason,omitempty" db:"rejection_reason"`
}

// Normalize 计算派生字段（部门、集合、班级定位、搜索文本）
func (p *Profile) Normalize() error {
	dept, err := p.Data.Department(p.Type)
	if err != nil {
		return err
	}
	col, err := CollectionFor(p.Type, dept)
	if err != nil {
		return err
	}
	p.Department = dept
	p.Collection = col
	p.YearLevel, p.CourseProgram, p.BlockSection = p.Data.Placement()
	p.SearchText = p.Data.SearchText()
	return nil
}

// DisplayName 展示名称
func (p *Profile) DisplayName() string {
	if info := p.Data.Personal(); info != nil {
		return info.FullName
	}
	return ""
}

// UnmarshalJSON 按 type 把扁平 data 解码为对应的档案变体
func (p *Profile) UnmarshalJSON(b []byte) error {
	type alias Profile
	aux := struct {
		*alias
		Data json.RawMessage `json:"data"`
	}{alias: (*alias)(p)}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	if len(aux.Data) == 0 || string(aux.Data) == "null" {
		return nil
	}
	var raw map[string]any
	if err := json.Unmarshal(aux.Data, &raw); err != nil {
		return err
	}
	data, err := DecodeProfileData(p.Type, raw)
	if err != nil {
		return err
	}
	p.Data = data
	return nil
}

// StatusUpdate 状态变更（审核流转）
//
// From 非空时按比较后写入：当前状态不等于 From 则不更新，存储返回 ErrConflict。
type StatusUpdate struct {
	From            ProfileStatus
	Status          ProfileStatus
	SubmittedAt     *time.Time
	ReviewedAt      *time.Time
	ReviewedBy      string
	RejectionReason string
	UpdatedAt       time.Time
}

// ProfileStats 学年档案统计
type ProfileStats struct {
	YearID       string                `json:"yearId"`
	Total        int                   `json:"total"`
	ByStatus     map[ProfileStatus]int `json:"byStatus"`
	ByDepartment map[Department]int    `json:"byDepartment"`
	ByType       map[ProfileType]int   `json:"byType"`
	GeneratedAt  time.Time             `json:"generatedAt"`
}

// NewProfileStats 创建空统计
func NewProfileStats(yearID string) *ProfileStats {
	return &ProfileStats{
		YearID:       yearID,
		ByStatus:     make(map[ProfileStatus]int),
		ByDepartment: make(map[Department]int),
		ByType:       make(map[ProfileType]int),
		GeneratedAt:  time.Now(),
	}
}

// Add 计入一条档案
func (s *ProfileStats) Add(status ProfileStatus, dept Department, t ProfileType, n int) {
	s.Total += n
	s.ByStatus[status] += n
	s.ByDepartment[dept] += n
	s.ByType[t] += n
}
