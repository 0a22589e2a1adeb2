package model

import "time"

// UserRole 用户角色
type UserRole string

const (
	UserRoleAdmin    UserRole = "admin"
	UserRoleStudent  UserRole = "student"
	UserRoleFaculty  UserRole = "faculty"
	UserRoleStaff    UserRole = "staff"
	UserRoleAlumni   UserRole = "alumni"
	UserRoleUtility  UserRole = "utility"
	UserRoleAdvisory UserRole = "advisory"
)

// Valid 是否为可注册的角色（admin 只来自配置的白名单）
func (r UserRole) Valid() bool {
	switch r {
	case UserRoleStudent, UserRoleFaculty, UserRoleStaff, UserRoleAlumni, UserRoleUtility, UserRoleAdvisory:
		return true
	}
	return false
}

// User 用户
type User struct {
	ID           string    `json:"id" bson:"_id" db:"id"`
	Email        string    `json:"email" bson:"email" db:"email"`
	SchoolID     string    `json:"schoolId,omitempty" bson:"school_id,omitempty" db:"school_id"`
	FullName     string    `json:"fullName" bson:"full_name" db:"full_name"`
	PasswordHash string    `json:"-" bson:"password_hash" db:"password_hash"` // never expose in JSON
	Role         UserRole  `json:"role" bson:"role" db:"role"`
	CreatedAt    time.Time `json:"createdAt" bson:"created_at" db:"created_at"`
	UpdatedAt    time.Time `json:"updatedAt" bson:"updated_at" db:"updated_at"`
}
