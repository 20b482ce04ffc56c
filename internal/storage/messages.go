package storage

import "time"

// ParseRequestedMessage 解析任务消息，经发件箱中继投递到解析队列。
// 消息只携带定位信息，解析器消费时重新从数据库加载最新的申请和岗位，
// 这样重复投递（at-least-once）天然安全：解析本身是幂等覆盖。
type ParseRequestedMessage struct {
	// TaskID 本次投递的唯一标识，只用于日志关联
	TaskID        string    `json:"task_id"`
	ApplicationID string    `json:"application_id"`
	JobID         string    `json:"job_id"`
	RequestedAt   time.Time `json:"requested_at"`
	// Trigger 触发来源: "create" 或 "reparse"
	Trigger string `json:"trigger"`
}
