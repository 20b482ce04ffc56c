package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestParsedSkillsRoundsBadDataToEmpty 验证脏数据和空值都当作空技能列表
func TestParsedSkillsRoundsBadDataToEmpty(t *testing.T) {
	app := &Application{}
	assert.Equal(t, []string{}, app.ParsedSkills(), "未解析过的申请技能列表应为空")

	app.ParsedSkillsJSON = []byte("not-json")
	assert.Equal(t, []string{}, app.ParsedSkills(), "无法反序列化的内容应当作空列表")

	app.ParsedSkillsJSON = []byte(`["Go","Kafka"]`)
	assert.Equal(t, []string{"Go", "Kafka"}, app.ParsedSkills())
}
