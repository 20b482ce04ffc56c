package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestParseApplicationStatusAcceptsEnumeratedValues 验证枚举内的状态值都能被解析
func TestParseApplicationStatusAcceptsEnumeratedValues(t *testing.T) {
	for _, s := range AllApplicationStatuses {
		parsed, err := ParseApplicationStatus(string(s))
		require.NoError(t, err, "枚举内的状态 %q 不应解析失败", s)
		assert.Equal(t, s, parsed)
		assert.True(t, parsed.Valid())
	}
}

// TestParseApplicationStatusRejectsUnknownValues 验证集合外的值被拒绝
func TestParseApplicationStatusRejectsUnknownValues(t *testing.T) {
	cases := []string{"archived", "", "NEW", "New", " new", "screening ", "hired", "interview2"}
	for _, c := range cases {
		_, err := ParseApplicationStatus(c)
		assert.Error(t, err, "集合外的值 %q 应该被拒绝", c)
	}
}

// TestApplicationStatusValid 验证Valid只认枚举内的值
func TestApplicationStatusValid(t *testing.T) {
	assert.True(t, StatusNew.Valid())
	assert.True(t, StatusRejected.Valid())
	assert.False(t, ApplicationStatus("archived").Valid())
	assert.False(t, ApplicationStatus("").Valid())
}
