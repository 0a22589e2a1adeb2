package model

import "time"

// Course 课程（大学专业 / 高中 strand）
type Course struct {
	ID         string     `json:"id" bson:"_id" db:"id"`
	Code       string     `json:"code" bson:"code" db:"code"`
	Name       string     `json:"name" bson:"name" db:"name"`
	Department Department `json:"department" bson:"department" db:"department"`
	CreatedAt  time.Time  `json:"createdAt" bson:"created_at" db:"created_at"`
}

// Major 课程下的方向，(CourseID, Name) 唯一
type Major struct {
	ID        string    `json:"id" bson:"_id" db:"id"`
	CourseID  string    `json:"courseId" bson:"course_id" db:"course_id"`
	Name      string    `json:"name" bson:"name" db:"name"`
	CreatedAt time.Time `json:"createdAt" bson:"created_at" db:"created_at"`
}

// Section 班级，(Department, YearLevel, CourseProgram, Name) 唯一
type Section struct {
	ID            string     `json:"id" bson:"_id" db:"id"`
	Department    Department `json:"department" bson:"department" db:"department"`
	YearLevel     string     `json:"yearLevel" bson:"year_level" db:"year_level"`
	CourseProgram string     `json:"courseProgram,omitempty" bson:"course_program" db:"course_program"`
	Name          string     `json:"name" bson:"name" db:"name"`
	CreatedAt     time.Time  `json:"createdAt" bson:"created_at" db:"created_at"`
}
