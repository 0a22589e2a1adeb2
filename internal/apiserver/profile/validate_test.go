package profile

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"memoria/internal/shared/model"
)

func student(overrides map[string]any) map[string]any {
	raw := map[string]any{
		"fullName":   "Maria Clara",
		"email":      "maria@school.edu",
		"age":        "15",
		"department": "Junior High",
		"yearLevel":  "10",
	}
	for k, v := range overrides {
		if v == nil {
			delete(raw, k)
			continue
		}
		raw[k] = v
	}
	return raw
}

func TestValidateData(t *testing.T) {
	tests := []struct {
		name    string
		typ     model.ProfileType
		raw     map[string]any
		wantMsg string
		fields  []string
	}{
		{"学生合法", model.ProfileTypeStudent, student(nil), "", nil},
		{"数字年龄", model.ProfileTypeStudent, student(map[string]any{"age": float64(16)}), "", nil},
		{"缺少年龄", model.ProfileTypeStudent, student(map[string]any{"age": nil}), "Missing required fields: age", []string{"age"}},
		{"多个缺失字段", model.ProfileTypeStudent, student(map[string]any{"fullName": " ", "yearLevel": nil}),
			"Missing required fields: fullName, yearLevel", []string{"fullName", "yearLevel"}},
		{"年龄 150", model.ProfileTypeStudent, student(map[string]any{"age": "150"}), msgInvalidAge, []string{"age"}},
		{"年龄 0", model.ProfileTypeStudent, student(map[string]any{"age": 0.0}), msgInvalidAge, []string{"age"}},
		{"年龄非数字", model.ProfileTypeStudent, student(map[string]any{"age": "fifteen"}), msgInvalidAge, []string{"age"}},
		{"邮箱无 @", model.ProfileTypeStudent, student(map[string]any{"email": "maria.school.edu"}), msgInvalidEmail, []string{"email"}},
		{"邮箱无域名", model.ProfileTypeStudent, student(map[string]any{"email": "maria@"}), msgInvalidEmail, []string{"email"}},
		{"学生部门无效", model.ProfileTypeStudent, student(map[string]any{"department": "Nursery"}), "Invalid department", []string{"department"}},
		{"教师合法", model.ProfileTypeFaculty, map[string]any{"fullName": "Jose", "position": "Teacher", "departmentAssigned": "Math"}, "", nil},
		{"职员缺少办公室", model.ProfileTypeStaff, map[string]any{"fullName": "Ana", "position": "Clerk"},
			"Missing required fields: officeAssigned", []string{"officeAssigned"}},
		{"后勤合法", model.ProfileTypeUtility, map[string]any{"fullName": "Ben", "jobTitle": "Janitor"}, "", nil},
		{"校友数字毕业年份", model.ProfileTypeAlumni, map[string]any{"fullName": "Andres", "graduationYear": float64(2010), "courseProgram": "BSN"}, "", nil},
		{"导师缺少班级", model.ProfileTypeAdvisory, map[string]any{"fullName": "Ms. Reyes", "department": "college", "yearLevel": "3"},
			"Missing required fields: blockSection", []string{"blockSection"}},
		{"未知类型", model.ProfileType("guest"), map[string]any{}, "Invalid profile type", []string{"type"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := ValidateData(tt.typ, tt.raw)
			if tt.wantMsg == "" {
				require.NoError(t, err)
				assert.NotNil(t, data.Variant())
				return
			}
			var fe *FieldError
			require.ErrorAs(t, err, &fe)
			assert.Equal(t, tt.wantMsg, fe.Message)
			assert.Equal(t, tt.fields, fe.Fields)
		})
	}
}

func TestMissingFields_Order(t *testing.T) {
	got := MissingFields(model.ProfileTypeStudent, map[string]any{"age": 15})
	assert.Equal(t, []string{"fullName", "email", "department", "yearLevel"}, got)
}
