package model

import "time"

// SchoolYear 学年
//
// 所有档案和年鉴数据都以学年为范围。同一时刻最多一个学年处于激活状态，
// 激活操作在存储层的事务中把其他学年置为非激活。
type SchoolYear struct {
	ID        string    `json:"id" bson:"_id" db:"id"`
	YearLabel string    `json:"yearLabel" bson:"year_label" db:"year_label"`
	StartDate time.Time `json:"startDate" bson:"start_date" db:"start_date"`
	EndDate   time.Time `json:"endDate" bson:"end_date" db:"end_date"`
	IsActive  bool      `json:"isActive" bson:"is_active" db:"is_active"`
	CreatedAt time.Time `json:"createdAt" bson:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updatedAt" bson:"updated_at" db:"updated_at"`
}
