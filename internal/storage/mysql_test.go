package storage

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"

	"github.com/winstondavid829/ats-platform/internal/storage/models"

	"github.com/gofrs/uuid/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// newIntegrationMySQL 连接测试数据库。未设置 ATS_TEST_MYSQL_DSN 时跳过，
// 其余配置与 NewMySQL 对齐（含表结构自动迁移）。
func newIntegrationMySQL(t *testing.T) *MySQL {
	t.Helper()

	dsn := os.Getenv("ATS_TEST_MYSQL_DSN")
	if dsn == "" {
		t.Skip("未设置 ATS_TEST_MYSQL_DSN, 跳过MySQL集成测试")
	}

	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
		Logger:                                   logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err, "连接测试MySQL失败")

	m := &MySQL{db: db}
	require.NoError(t, m.autoMigrateSchema(), "自动迁移表结构失败")
	t.Cleanup(func() { _ = m.Close() })
	return m
}

// seedApplication 准备一个岗位和一条new状态的申请，测试结束后清理
func seedApplication(t *testing.T, m *MySQL) *models.Application {
	t.Helper()
	ctx := context.Background()

	jobID := uuid.Must(uuid.NewV7()).String()
	job := &models.JobPosting{
		JobID:        jobID,
		Title:        "Go工程师",
		Requirements: "Go, MySQL",
		Status:       models.JobStatusActive,
	}
	require.NoError(t, m.CreateJobPosting(ctx, job))

	appID := uuid.Must(uuid.NewV7()).String()
	app := &models.Application{
		ApplicationID:    appID,
		JobID:            jobID,
		CandidateName:    "王小明",
		CandidateEmail:   "xiaoming@example.com",
		ResumeObjectKey:  "resume/" + appID + "/original.pdf",
		OriginalFilename: "resume.pdf",
		Status:           models.StatusNew,
		ParseStatus:      models.ParseStatusPending,
	}
	require.NoError(t, m.CreateApplicationWithOutbox(ctx, app, nil))

	t.Cleanup(func() {
		m.db.Where("application_id = ?", appID).Delete(&models.StatusAuditEntry{})
		m.db.Where("application_id = ?", appID).Delete(&models.Application{})
		m.db.Where("job_id = ?", jobID).Delete(&models.JobPosting{})
	})
	return app
}

// TestTransitionStatusSameValueIsFullNoop 验证同值写入不更新时间戳也不产生审计
func TestTransitionStatusSameValueIsFullNoop(t *testing.T) {
	m := newIntegrationMySQL(t)
	ctx := context.Background()
	seeded := seedApplication(t, m)

	before, err := m.GetApplicationByID(ctx, seeded.ApplicationID)
	require.NoError(t, err)

	app, changed, err := m.TransitionStatus(ctx, seeded.ApplicationID, models.StatusNew, nil, "")
	require.NoError(t, err)
	assert.False(t, changed, "同值写入不是有效变更")
	assert.Equal(t, models.StatusNew, app.Status)

	after, err := m.GetApplicationByID(ctx, seeded.ApplicationID)
	require.NoError(t, err)
	assert.True(t, after.UpdatedAt.Equal(before.UpdatedAt), "同值写入不应更新时间戳")

	entries, err := m.ListAuditTrail(ctx, seeded.ApplicationID)
	require.NoError(t, err)
	assert.Empty(t, entries, "同值写入不应产生审计记录")
}

// TestTransitionStatusWritesExactlyOneAuditEntry 验证一次有效变更恰好一条审计，且与状态同事务落库
func TestTransitionStatusWritesExactlyOneAuditEntry(t *testing.T) {
	m := newIntegrationMySQL(t)
	ctx := context.Background()
	seeded := seedApplication(t, m)
	actor := "hr.zhang"

	app, changed, err := m.TransitionStatus(ctx, seeded.ApplicationID, models.StatusScreening, &actor, "初筛通过")
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, models.StatusScreening, app.Status)

	reloaded, err := m.GetApplicationByID(ctx, seeded.ApplicationID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusScreening, reloaded.Status)

	entries, err := m.ListAuditTrail(ctx, seeded.ApplicationID)
	require.NoError(t, err)
	require.Len(t, entries, 1, "一次有效变更恰好一条审计")
	assert.Equal(t, models.StatusNew, entries[0].FromStatus)
	assert.Equal(t, models.StatusScreening, entries[0].ToStatus)
	require.NotNil(t, entries[0].Actor)
	assert.Equal(t, actor, *entries[0].Actor)
	assert.Equal(t, "初筛通过", entries[0].Note)
}

// TestTransitionStatusUnknownApplication 验证不存在的申请返回哨兵错误
func TestTransitionStatusUnknownApplication(t *testing.T) {
	m := newIntegrationMySQL(t)

	_, _, err := m.TransitionStatus(context.Background(), "missing-app", models.StatusScreening, nil, "")
	assert.ErrorIs(t, err, ErrApplicationNotFound)
}

// TestConcurrentTransitionsKeepAuditChainConsistent 验证并发流转在行锁上串行化：
// 每个目标状态各产生一条审计，整条链首尾相接，重放后得到最终状态。
func TestConcurrentTransitionsKeepAuditChainConsistent(t *testing.T) {
	m := newIntegrationMySQL(t)
	ctx := context.Background()
	seeded := seedApplication(t, m)

	targets := []models.ApplicationStatus{
		models.StatusScreening,
		models.StatusPhoneScreen,
		models.StatusInterview,
		models.StatusOffer,
		models.StatusRejected,
	}

	var wg sync.WaitGroup
	for _, target := range targets {
		wg.Add(1)
		go func(target models.ApplicationStatus) {
			defer wg.Done()
			// 死锁/锁等待超时映射为 ErrConflict，重试直到成功
			for {
				_, _, err := m.TransitionStatus(ctx, seeded.ApplicationID, target, nil, "")
				if errors.Is(err, ErrConflict) {
					continue
				}
				assert.NoError(t, err)
				return
			}
		}(target)
	}
	wg.Wait()

	entries, err := m.ListAuditTrail(ctx, seeded.ApplicationID)
	require.NoError(t, err)
	require.Len(t, entries, len(targets), "每个并发流转各产生恰好一条审计")

	// ListAuditTrail 最近在前，倒转成时间顺序再校验链
	chain := make([]models.StatusAuditEntry, len(entries))
	for i := range entries {
		chain[len(entries)-1-i] = entries[i]
	}

	assert.Equal(t, models.StatusNew, chain[0].FromStatus, "链条从初始状态开始")
	for i := 1; i < len(chain); i++ {
		assert.Equal(t, chain[i-1].ToStatus, chain[i].FromStatus,
			"第%d条审计的from必须等于前一条的to", i+1)
	}

	final, err := m.GetApplicationByID(ctx, seeded.ApplicationID)
	require.NoError(t, err)
	assert.Equal(t, chain[len(chain)-1].ToStatus, final.Status, "按链重放应得到当前状态")
}
