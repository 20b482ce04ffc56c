package models

import (
	"strings"
	"time"
)

// JobPosting 岗位表。对本核心而言岗位只是外部协作方：
// 创建申请时校验 active 状态，解析时提供需求关键词列表。
type JobPosting struct {
	JobID       string `gorm:"type:char(36);primaryKey"`
	Title       string `gorm:"type:varchar(200);not null"`
	Description string `gorm:"type:text"`

	// 自由文本的岗位要求，按行或逗号分隔，由 RequirementsList 解析
	Requirements string `gorm:"type:text"`

	Location  string    `gorm:"type:varchar(100)"`
	SalaryMin *float64  `gorm:"type:decimal(10,2)"`
	SalaryMax *float64  `gorm:"type:decimal(10,2)"`
	Status    JobStatus `gorm:"type:varchar(20);default:'active';index:idx_job_postings_status"`

	CreatedBy string    `gorm:"type:varchar(255)"`
	CreatedAt time.Time `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6)"`
	UpdatedAt time.Time `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6);autoUpdateTime"`
}

func (JobPosting) TableName() string {
	return "job_postings"
}

// Active 岗位是否还接受新申请
func (j *JobPosting) Active() bool {
	return j.Status == JobStatusActive
}

// RequirementsList 把自由文本要求切分成关键词列表。
// 换行和逗号都是分隔符，空白片段丢弃。
func (j *JobPosting) RequirementsList() []string {
	if j.Requirements == "" {
		return []string{}
	}
	parts := strings.Split(strings.ReplaceAll(j.Requirements, "\n", ","), ",")
	reqs := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			reqs = append(reqs, trimmed)
		}
	}
	return reqs
}
