package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestRequirementsListSplitsOnNewlineAndComma 验证要求文本同时按换行和逗号切分
func TestRequirementsListSplitsOnNewlineAndComma(t *testing.T) {
	job := &JobPosting{Requirements: "Go, MySQL\nRabbitMQ,  Redis \n\n  Kubernetes  "}
	assert.Equal(t, []string{"Go", "MySQL", "RabbitMQ", "Redis", "Kubernetes"}, job.RequirementsList())
}

// TestRequirementsListEmptyText 验证空文本返回空列表而不是nil
func TestRequirementsListEmptyText(t *testing.T) {
	job := &JobPosting{Requirements: ""}
	assert.Equal(t, []string{}, job.RequirementsList())

	// 全是分隔符和空白的文本也一样
	job.Requirements = " ,\n, \n "
	assert.Equal(t, []string{}, job.RequirementsList())
}

// TestJobActive 验证只有active状态的岗位接受新投递
func TestJobActive(t *testing.T) {
	assert.True(t, (&JobPosting{Status: JobStatusActive}).Active())
	assert.False(t, (&JobPosting{Status: JobStatusClosed}).Active())
	assert.False(t, (&JobPosting{}).Active())
}
