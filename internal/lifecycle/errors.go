package lifecycle

import "errors"

// 调用方可见的错误分类。校验类和不存在类错误只中断触发它的那一次
// 操作；外部服务失败和瞬时并发冲突在内部消化，绝不向调用方传播。
var (
	// ErrInvalidStatus 目标状态不在枚举集合内
	ErrInvalidStatus = errors.New("无效的申请状态")

	// ErrJobNotActive 岗位已关闭，拒绝新投递
	ErrJobNotActive = errors.New("岗位未开放投递")

	// ErrInvalidResumeFile 简历文件不满足大小或格式限制
	ErrInvalidResumeFile = errors.New("简历文件不合法")

	// ErrValidation 候选人字段校验失败
	ErrValidation = errors.New("请求参数校验失败")

	// ErrEmptyBulkRequest 批量更新的ID集合为空
	ErrEmptyBulkRequest = errors.New("批量更新的申请ID列表不能为空")
)
