package constants

import "time"

// Redis Key 统一命名规范: ats:{module}:{entity}:{unique_id}
const (
	// AppPrefix 所有Redis Key的统一应用前缀
	AppPrefix = "ats"

	// KeyJobRequirements 岗位要求关键词缓存 (STRING, JSON数组)
	// 格式: ats:job:requirements:{jobID}
	KeyJobRequirements = AppPrefix + ":job:requirements:%s"

	// KeyParseLock 解析单飞锁 (STRING, SET NX)
	// 格式: ats:parse:lock:{applicationID}
	// 防止同一申请被并发重复解析；锁拿不到或Redis不可用时解析照常进行
	KeyParseLock = AppPrefix + ":parse:lock:%s"

	// JobRequirementsCacheTTL 岗位要求缓存时长
	JobRequirementsCacheTTL = 24 * time.Hour

	// ParseLockTTL 解析锁的保底过期时间，略长于外部服务超时
	ParseLockTTL = 200 * time.Second
)

// 上传限制，与对外公开的投递接口约定一致
const (
	// MaxResumeFileSize 简历文件大小上限 (10MiB)
	MaxResumeFileSize = 10 * 1024 * 1024
)

// AllowedResumeExtensions 允许的简历文件扩展名
var AllowedResumeExtensions = []string{".pdf", ".doc", ".docx"}

// 解析任务事件
const (
	// EventTypeParseRequested 申请创建或手动触发重新解析时写入发件箱的事件类型
	EventTypeParseRequested = "application.parse_requested"
)
