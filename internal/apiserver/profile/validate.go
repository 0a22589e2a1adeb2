package profile

import (
	"fmt"
	"strings"

	"memoria/internal/apiserver/validation"
	"memoria/internal/shared/model"
)

// 学生年龄范围
const (
	MinAge = 1
	MaxAge = 100
)

// 校验失败信息
const (
	msgInvalidAge   = "Age must be a valid number between 1 and 100"
	msgInvalidEmail = "Please enter a valid email address"
)

// RequiredFields 各类型档案的必填字段（data 中的键）
var RequiredFields = map[model.ProfileType][]string{
	model.ProfileTypeStudent:  {"fullName", "email", "age", "department", "yearLevel"},
	model.ProfileTypeFaculty:  {"fullName", "position", "departmentAssigned"},
	model.ProfileTypeStaff:    {"fullName", "position", "officeAssigned"},
	model.ProfileTypeUtility:  {"fullName", "jobTitle"},
	model.ProfileTypeAlumni:   {"fullName", "graduationYear", "courseProgram"},
	model.ProfileTypeAdvisory: {"fullName", "department", "yearLevel", "blockSection"},
}

// FieldError 提交内容校验失败
type FieldError struct {
	Message string
	Fields  []string
}

func (e *FieldError) Error() string { return e.Message }

// MissingFields 返回 raw 中缺失或为空的必填字段，顺序与 RequiredFields 一致
func MissingFields(t model.ProfileType, raw map[string]any) []string {
	var missing []string
	for _, key := range RequiredFields[t] {
		v, ok := raw[key]
		if !ok || v == nil {
			missing = append(missing, key)
			continue
		}
		if s, isStr := v.(string); isStr && strings.TrimSpace(s) == "" {
			missing = append(missing, key)
		}
	}
	return missing
}

// ValidateData 校验并解码提交的 data
//
// 校验顺序：档案类型、必填字段、学生年龄与邮箱、部门。
func ValidateData(t model.ProfileType, raw map[string]any) (model.ProfileData, error) {
	if !t.Valid() {
		return model.ProfileData{}, &FieldError{Message: "Invalid profile type", Fields: []string{"type"}}
	}
	if missing := MissingFields(t, raw); len(missing) > 0 {
		return model.ProfileData{}, &FieldError{
			Message: "Missing required fields: " + strings.Join(missing, ", "),
			Fields:  missing,
		}
	}

	if t == model.ProfileTypeStudent {
		age, ok := model.ParseAge(raw["age"])
		if !ok || age < MinAge || age > MaxAge {
			return model.ProfileData{}, &FieldError{Message: msgInvalidAge, Fields: []string{"age"}}
		}
		email, _ := raw["email"].(string)
		if !validation.IsEmail(strings.TrimSpace(email)) {
			return model.ProfileData{}, &FieldError{Message: msgInvalidEmail, Fields: []string{"email"}}
		}
	}

	data, err := model.DecodeProfileData(t, raw)
	if err != nil {
		return model.ProfileData{}, &FieldError{Message: fmt.Sprintf("Invalid profile data: %v", err)}
	}
	if _, err := data.Department(t); err != nil {
		return model.ProfileData{}, &FieldError{Message: "Invalid department", Fields: []string{"department"}}
	}
	return data, nil
}
