package models

import "fmt"

// ApplicationStatus 申请状态枚举，闭合集合。
// 状态之间不强制顺序，允许任意方向流转（例如 offer -> new），
// 这是产品层面的既定行为，不要在这里加方向校验。
type ApplicationStatus string

const (
	StatusNew         ApplicationStatus = "new"
	StatusScreening   ApplicationStatus = "screening"
	StatusPhoneScreen ApplicationStatus = "phone_screen"
	StatusInterview   ApplicationStatus = "interview"
	StatusOffer       ApplicationStatus = "offer"
	StatusRejected    ApplicationStatus = "rejected"
)

// AllApplicationStatuses 按流程习惯顺序列出全部合法状态，用于报错提示和校验。
var AllApplicationStatuses = []ApplicationStatus{
	StatusNew,
	StatusScreening,
	StatusPhoneScreen,
	StatusInterview,
	StatusOffer,
	StatusRejected,
}

// JobStatus 岗位状态枚举
type JobStatus string

const (
	JobStatusActive JobStatus = "active"
	JobStatusClosed JobStatus = "closed"
)

// ParseApplicationStatus 把外部输入的字符串转换为枚举值。
// 这是枚举唯一的入口，通过它之后 InvalidStatus 不可再出现。
func ParseApplicationStatus(s string) (ApplicationStatus, error) {
	for _, st := range AllApplicationStatuses {
		if string(st) == s {
			return st, nil
		}
	}
	return "", fmt.Errorf("未知的申请状态 %q (合法值: %v)", s, AllApplicationStatuses)
}

// Valid 检查状态值是否属于闭合集合，防御从数据库读出的脏值。
func (s ApplicationStatus) Valid() bool {
	for _, st := range AllApplicationStatuses {
		if s == st {
			return true
		}
	}
	return false
}

func (s ApplicationStatus) String() string {
	return string(s)
}
