package models

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

// 简历解析处理状态（由解析编排器独占维护，与申请生命周期状态无关）
const (
	ParseStatusPending   = "PENDING"
	ParseStatusCompleted = "COMPLETED"
	ParseStatusFailed    = "FAILED"
)

// Application 候选人针对某个岗位的投递记录。
//
// 字段分两个所有权域：
//   - status 及其审计由状态流转引擎维护；
//   - ParsedXXX / Score / ParseStatus / ParseError 由解析编排器独占维护，
//     生命周期路径绝不触碰这些字段。
type Application struct {
	ApplicationID string `gorm:"type:char(36);primaryKey"`
	JobID         string `gorm:"type:char(36);not null;index:idx_applications_job_status,priority:1"`

	// 候选人提交的原始信息
	CandidateName  string `gorm:"type:varchar(200);not null"`
	CandidateEmail string `gorm:"type:varchar(255);not null"`
	CandidatePhone string `gorm:"type:varchar(20)"`
	ProfileURL     string `gorm:"type:varchar(500)"`
	CoverLetter    string `gorm:"type:text"`

	// 简历文件在对象存储里的key，例如 resume/{uuid}/original.pdf
	ResumeObjectKey  string `gorm:"type:varchar(1024);not null"`
	OriginalFilename string `gorm:"type:varchar(255)"`

	Status ApplicationStatus `gorm:"type:varchar(20);default:'new';index:idx_applications_job_status,priority:2;index:idx_applications_status"`

	// 解析服务回填的结构化字段，首次解析成功前保持零值
	ParsedSkillsJSON datatypes.JSON `gorm:"type:json"`
	ParsedExperience string         `gorm:"type:varchar(100)"`
	ParsedEducation  string         `gorm:"type:varchar(200)"`
	ParsedEmail      string         `gorm:"type:varchar(255)"`
	ParsedPhone      string         `gorm:"type:varchar(20)"`
	Score            int            `gorm:"default:0"` // 匹配分 0-100

	ParseStatus string `gorm:"type:varchar(20);default:'PENDING';index:idx_applications_parse_status"`
	ParseError  string `gorm:"type:text"`

	CreatedAt time.Time `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6);index:idx_applications_created_at"`
	UpdatedAt time.Time `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6)"`

	Job *JobPosting `gorm:"foreignKey:JobID;references:JobID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

func (Application) TableName() string {
	return "applications"
}

// ParsedSkills 反序列化技能列表，空列或脏数据一律当作空列表处理。
func (a *Application) ParsedSkills() []string {
	if len(a.ParsedSkillsJSON) == 0 {
		return []string{}
	}
	var skills []string
	if err := json.Unmarshal(a.ParsedSkillsJSON, &skills); err != nil {
		return []string{}
	}
	return skills
}

// ParsedResult 外部解析服务一次成功响应对应的全部字段。
// 编排器用它整体覆盖（不是合并）申请上的解析字段。
type ParsedResult struct {
	Skills     []string
	Experience string
	Education  string
	Email      string
	Phone      string
	Score      int
}
