// Package storage 定义存储层领域错误
//
// 这些错误用于隔离业务层与底层存储引擎的错误类型，
// 各驱动实现（repository/mongostore）负责将底层错误转换为这些领域错误。
package storage

import "errors"

var (
	// ErrNotFound 实体不存在
	// 替代 sql.ErrNoRows / mongo.ErrNoDocuments
	ErrNotFound = errors.New("entity not found")

	// ErrConflict 状态冲突（例如删除激活中的学年、非法的状态回退）
	ErrConflict = errors.New("conflict: entity state does not allow this operation")

	// ErrDuplicate 唯一键冲突（重复的课程方向、班级、邮箱等）
	ErrDuplicate = errors.New("duplicate: entity already exists")
)

// IgnoreDuplicate 把重复插入视为成功（用于幂等写入）
func IgnoreDuplicate(err error) error {
	if errors.Is(err, ErrDuplicate) {
		return nil
	}
	return err
}
