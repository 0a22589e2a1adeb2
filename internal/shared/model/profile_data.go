package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// ============================================================================
// ProfileData - 按档案类型区分的标签联合
// ============================================================================

// SocialLinks 社交账号
type SocialLinks struct {
	Facebook  string `json:"facebook,omitempty" bson:"facebook,omitempty"`
	Instagram string `json:"instagram,omitempty" bson:"instagram,omitempty"`
	Twitter   string `json:"twitter,omitempty" bson:"twitter,omitempty"`
	LinkedIn  string `json:"linkedin,omitempty" bson:"linkedin,omitempty"`
}

// PersonalInfo 各类档案共有的个人信息
type PersonalInfo struct {
	FullName     string       `json:"fullName" bson:"full_name"`
	Nickname     string       `json:"nickname,omitempty" bson:"nickname,omitempty"`
	Email        string       `json:"email,omitempty" bson:"email,omitempty"`
	Phone        string       `json:"phone,omitempty" bson:"phone,omitempty"`
	Address      string       `json:"address,omitempty" bson:"address,omitempty"`
	BirthDate    string       `json:"birthDate,omitempty" bson:"birth_date,omitempty"`
	Image        string       `json:"image,omitempty" bson:"image,omitempty"`
	Quote        string       `json:"quote,omitempty" bson:"quote,omitempty"`
	Motto        string       `json:"motto,omitempty" bson:"motto,omitempty"`
	Ambition     string       `json:"ambition,omitempty" bson:"ambition,omitempty"`
	Hobbies      string       `json:"hobbies,omitempty" bson:"hobbies,omitempty"`
	SocialLinks  *SocialLinks `json:"socialLinks,omitempty" bson:"social_links,omitempty"`
	Achievements []string     `json:"achievements,omitempty" bson:"achievements,omitempty"`
}

// StudentData 学生档案
type StudentData struct {
	PersonalInfo  `bson:",inline"`
	Age           int    `json:"age" bson:"age"`
	Gender        string `json:"gender,omitempty" bson:"gender,omitempty"`
	Department    string `json:"department" bson:"department"`
	YearLevel     string `json:"yearLevel" bson:"year_level"`
	CourseProgram string `json:"courseProgram,omitempty" bson:"course_program,omitempty"`
	Major         string `json:"major,omitempty" bson:"major,omitempty"`
	Strand        string `json:"strand,omitempty" bson:"strand,omitempty"`
	BlockSection  string `json:"blockSection,omitempty" bson:"block_section,omitempty"`
	StudentID     string `json:"studentId,omitempty" bson:"student_id,omitempty"`
	FatherName    string `json:"fatherName,omitempty" bson:"father_name,omitempty"`
	MotherName    string `json:"motherName,omitempty" bson:"mother_name,omitempty"`
	GuardianName  string `json:"guardianName,omitempty" bson:"guardian_name,omitempty"`
}

// FacultyData 教师档案
type FacultyData struct {
	PersonalInfo       `bson:",inline"`
	Position           string `json:"position" bson:"position"`
	DepartmentAssigned string `json:"departmentAssigned" bson:"department_assigned"`
	Department         string `json:"department,omitempty" bson:"department,omitempty"`
	YearsOfService     string `json:"yearsOfService,omitempty" bson:"years_of_service,omitempty"`
	Education          string `json:"education,omitempty" bson:"education,omitempty"`
	Subjects           string `json:"subjects,omitempty" bson:"subjects,omitempty"`
}

// StaffData 职员档案
type StaffData struct {
	PersonalInfo   `bson:",inline"`
	Position       string `json:"position" bson:"position"`
	OfficeAssigned string `json:"officeAssigned" bson:"office_assigned"`
	Department     string `json:"department,omitempty" bson:"department,omitempty"`
	YearsOfService string `json:"yearsOfService,omitempty" bson:"years_of_service,omitempty"`
}

// UtilityData 后勤人员档案
type UtilityData struct {
	PersonalInfo   `bson:",inline"`
	JobTitle       string `json:"jobTitle" bson:"job_title"`
	AreaAssigned   string `json:"areaAssigned,omitempty" bson:"area_assigned,omitempty"`
	Department     string `json:"department,omitempty" bson:"department,omitempty"`
	YearsOfService string `json:"yearsOfService,omitempty" bson:"years_of_service,omitempty"`
}

// AlumniData 校友档案
type AlumniData struct {
	PersonalInfo      `bson:",inline"`
	GraduationYear    string `json:"graduationYear" bson:"graduation_year"`
	CourseProgram     string `json:"courseProgram" bson:"course_program"`
	CurrentOccupation string `json:"currentOccupation,omitempty" bson:"current_occupation,omitempty"`
	Company           string `json:"company,omitempty" bson:"company,omitempty"`
	Location          string `json:"location,omitempty" bson:"location,omitempty"`
}

// AdvisoryData 班级导师档案
type AdvisoryData struct {
	PersonalInfo  `bson:",inline"`
	Department    string `json:"department" bson:"department"`
	YearLevel     string `json:"yearLevel" bson:"year_level"`
	CourseProgram string `json:"courseProgram,omitempty" bson:"course_program,omitempty"`
	BlockSection  string `json:"blockSection" bson:"block_section"`
	AdviserTitle  string `json:"adviserTitle,omitempty" bson:"adviser_title,omitempty"`
	ClassMotto    string `json:"classMotto,omitempty" bson:"class_motto,omitempty"`
}

// ProfileData 档案内容，恰好有一个变体非空，与 Profile.Type 对应
//
// JSON 上以扁平对象出现（与表单提交格式一致），BSON 上按变体名嵌套存储。
type ProfileData struct {
	Student  *StudentData  `json:"-" bson:"student,omitempty"`
	Faculty  *FacultyData  `json:"-" bson:"faculty,omitempty"`
	Staff    *StaffData    `json:"-" bson:"staff,omitempty"`
	Utility  *UtilityData  `json:"-" bson:"utility,omitempty"`
	Alumni   *AlumniData   `json:"-" bson:"alumni,omitempty"`
	Advisory *AdvisoryData `json:"-" bson:"advisory,omitempty"`
}

// ErrEmptyProfileData 没有任何变体
var ErrEmptyProfileData = errors.New("profile data is empty")

// Variant 返回当前变体
func (d ProfileData) Variant() any {
	switch {
	case d.Student != nil:
		return d.Student
	case d.Faculty != nil:
		return d.Faculty
	case d.Staff != nil:
		return d.Staff
	case d.Utility != nil:
		return d.Utility
	case d.Alumni != nil:
		return d.Alumni
	case d.Advisory != nil:
		return d.Advisory
	}
	return nil
}

// Personal 返回变体中的公共个人信息
func (d ProfileData) Personal() *PersonalInfo {
	switch {
	case d.Student != nil:
		return &d.Student.PersonalInfo
	case d.Faculty != nil:
		return &d.Faculty.PersonalInfo
	case d.Staff != nil:
		return &d.Staff.PersonalInfo
	case d.Utility != nil:
		return &d.Utility.PersonalInfo
	case d.Alumni != nil:
		return &d.Alumni.PersonalInfo
	case d.Advisory != nil:
		return &d.Advisory.PersonalInfo
	}
	return nil
}

// MarshalJSON 输出扁平对象
func (d ProfileData) MarshalJSON() ([]byte, error) {
	v := d.Variant()
	if v == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(v)
}

// Fields 扁平键值视图
func (d ProfileData) Fields() map[string]any {
	out := map[string]any{}
	b, err := d.MarshalJSON()
	if err != nil {
		return out
	}
	_ = json.Unmarshal(b, &out)
	return out
}

// Department 根据档案类型推导部门
func (d ProfileData) Department(t ProfileType) (Department, error) {
	switch t {
	case ProfileTypeStudent:
		if d.Student == nil {
			return "", ErrEmptyProfileData
		}
		dept, ok := ParseDepartment(d.Student.Department)
		if !ok || !dept.IsStudentDepartment() {
			return "", fmt.Errorf("invalid department %q", d.Student.Department)
		}
		return dept, nil
	case ProfileTypeAdvisory:
		if d.Advisory == nil {
			return "", ErrEmptyProfileData
		}
		dept, ok := ParseDepartment(d.Advisory.Department)
		if !ok || !dept.IsStudentDepartment() {
			return "", fmt.Errorf("invalid department %q", d.Advisory.Department)
		}
		return dept, nil
	case ProfileTypeAlumni:
		return DepartmentAlumni, nil
	case ProfileTypeFaculty:
		if d.Faculty == nil {
			return "", ErrEmptyProfileData
		}
		return staffDepartment(d.Faculty.Department), nil
	case ProfileTypeStaff:
		if d.Staff == nil {
			return "", ErrEmptyProfileData
		}
		return staffDepartment(d.Staff.Department), nil
	case ProfileTypeUtility:
		if d.Utility == nil {
			return "", ErrEmptyProfileData
		}
		return staffDepartment(d.Utility.Department), nil
	}
	return "", fmt.Errorf("invalid profile type %q", t)
}

func staffDepartment(raw string) Department {
	if dept, ok := ParseDepartment(raw); ok && dept == DepartmentARSisters {
		return DepartmentARSisters
	}
	return DepartmentFacultyStaff
}

// Placement 返回班级定位（年级、课程、班级），非学生/导师档案为空
func (d ProfileData) Placement() (yearLevel, courseProgram, blockSection string) {
	switch {
	case d.Student != nil:
		program := d.Student.CourseProgram
		if program == "" {
			program = d.Student.Strand
		}
		return d.Student.YearLevel, program, d.Student.BlockSection
	case d.Advisory != nil:
		return d.Advisory.YearLevel, d.Advisory.CourseProgram, d.Advisory.BlockSection
	case d.Alumni != nil:
		return "", d.Alumni.CourseProgram, ""
	}
	return "", "", ""
}

// SearchText 所有字段值的小写拼接，用于不区分大小写的子串搜索
func (d ProfileData) SearchText() string {
	fields := d.Fields()
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var parts []string
	for _, k := range keys {
		parts = appendValues(parts, fields[k])
	}
	return strings.ToLower(strings.Join(parts, " "))
}

func appendValues(parts []string, v any) []string {
	switch val := v.(type) {
	case string:
		if val != "" {
			parts = append(parts, val)
		}
	case float64:
		parts = append(parts, strconv.FormatFloat(val, 'f', -1, 64))
	case []any:
		for _, item := range val {
			parts = appendValues(parts, item)
		}
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			parts = appendValues(parts, val[k])
		}
	}
	return parts
}

// ============================================================================
// 扁平 data 解码
// ============================================================================

// ParseAge 解析年龄，接受数字或数字字符串
func ParseAge(v any) (int, bool) {
	switch val := v.(type) {
	case float64:
		if val != math.Trunc(val) {
			return 0, false
		}
		return int(val), true
	case int:
		return val, true
	case int64:
		return int(val), true
	case json.Number:
		n, err := strconv.Atoi(val.String())
		return n, err == nil
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(val))
		return n, err == nil
	}
	return 0, false
}

// structuredKeys 保持原始结构、不做字符串化的字段
var structuredKeys = map[string]bool{
	"age":          true,
	"achievements": true,
	"socialLinks":  true,
}

// normalizeFlat 把表单提交的标量统一为字符串，便于解码到强类型变体
func normalizeFlat(raw map[string]any) map[string]any {
	out := make(map[string]any, len(raw))
	for k, v := range raw {
		if structuredKeys[k] {
			out[k] = v
			continue
		}
		switch val := v.(type) {
		case nil:
		case string:
			out[k] = strings.TrimSpace(val)
		case float64:
			out[k] = strconv.FormatFloat(val, 'f', -1, 64)
		case bool:
			out[k] = strconv.FormatBool(val)
		case int:
			out[k] = strconv.Itoa(val)
		default:
			out[k] = val
		}
	}

	if a, ok := out["achievements"].(string); ok {
		var list []string
		for _, item := range strings.FieldsFunc(a, func(r rune) bool { return r == '\n' || r == ',' }) {
			if item = strings.TrimSpace(item); item != "" {
				list = append(list, item)
			}
		}
		out["achievements"] = list
	}

	// 兼容把社交账号平铺提交的表单
	if _, ok := out["socialLinks"]; !ok {
		links := map[string]any{}
		for _, k := range []string{"facebook", "instagram", "twitter", "linkedin"} {
			if s, ok := out[k].(string); ok && s != "" {
				links[k] = s
			}
		}
		if len(links) > 0 {
			out["socialLinks"] = links
		}
	}
	return out
}

// DecodeProfileData 把扁平 data 解码为 type 对应的变体
//
// 只做类型转换，不校验必填字段；校验由提交接口负责。
func DecodeProfileData(t ProfileType, raw map[string]any) (ProfileData, error) {
	flat := normalizeFlat(raw)

	if t == ProfileTypeStudent {
		if v, ok := flat["age"]; ok {
			age, ok := ParseAge(v)
			if !ok {
				return ProfileData{}, fmt.Errorf("invalid age %v", v)
			}
			flat["age"] = age
		}
	} else {
		delete(flat, "age")
	}

	b, err := json.Marshal(flat)
	if err != nil {
		return ProfileData{}, err
	}

	var d ProfileData
	switch t {
	case ProfileTypeStudent:
		d.Student = &StudentData{}
		err = json.Unmarshal(b, d.Student)
	case ProfileTypeFaculty:
		d.Faculty = &FacultyData{}
		err = json.Unmarshal(b, d.Faculty)
	case ProfileTypeStaff:
		d.Staff = &StaffData{}
		err = json.Unmarshal(b, d.Staff)
	case ProfileTypeUtility:
		d.Utility = &UtilityData{}
		err = json.Unmarshal(b, d.Utility)
	case ProfileTypeAlumni:
		d.Alumni = &AlumniData{}
		err = json.Unmarshal(b, d.Alumni)
	case ProfileTypeAdvisory:
		d.Advisory = &AdvisoryData{}
		err = json.Unmarshal(b, d.Advisory)
	default:
		return ProfileData{}, fmt.Errorf("invalid profile type %q", t)
	}
	if err != nil {
		return ProfileData{}, fmt.Errorf("decode %s data: %w", t, err)
	}
	return d, nil
}
