package models

import "time"

// StatusAuditEntry 一次有效状态变更的不可变记录。
//
// 不变量：仅当 from != to 时写入，一次有效变更恰好一条；写入后永不更新或删除。
// 追加只发生在存储层的状态流转事务内部，保证和状态写入同生共死。
type StatusAuditEntry struct {
	EntryID       uint64            `gorm:"primaryKey;autoIncrement"`
	ApplicationID string            `gorm:"type:char(36);not null;index:idx_status_audits_app_changed,priority:1"`
	FromStatus    ApplicationStatus `gorm:"type:varchar(20);not null"`
	ToStatus      ApplicationStatus `gorm:"type:varchar(20);not null"`

	// 触发变更的身份。系统触发的变更可以为空，已认证请求必须带。
	Actor *string `gorm:"type:varchar(255)"`

	Note string `gorm:"type:text"`

	ChangedAt time.Time `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6);index:idx_status_audits_app_changed,priority:2,sort:desc"`

	Application *Application `gorm:"foreignKey:ApplicationID;references:ApplicationID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

func (StatusAuditEntry) TableName() string {
	return "application_status_audits"
}
