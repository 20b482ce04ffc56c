package lifecycle

import (
	"context"
	"testing"

	"github.com/winstondavid829/ats-platform/internal/storage"
	"github.com/winstondavid829/ats-platform/internal/storage/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestBulkTransitionPartialSuccess 验证逐项隔离：一条失败不影响其余条目
func TestBulkTransitionPartialSuccess(t *testing.T) {
	store := newFakeTransitionStore(
		testApp("app-1", models.StatusNew),
		testApp("app-2", models.StatusNew),
		testApp("app-3", models.StatusScreening),
	)
	coordinator := NewBulkTransitionCoordinator(NewStatusTransitionEngine(store))
	actor := "hr.li"

	result, err := coordinator.BulkTransition(context.Background(),
		[]string{"app-1", "app-2", "app-3", "ghost-1", "ghost-2"}, "interview", &actor, "批量进入面试")
	require.NoError(t, err)

	assert.Equal(t, 3, result.Succeeded, "存在的3条应全部成功")
	assert.ElementsMatch(t, []string{"ghost-1", "ghost-2"}, result.NotFound)
	assert.Empty(t, result.Failed)
	assert.Equal(t, 3, store.auditCount(), "成功条数和新增审计条数一致")
}

// TestBulkTransitionSameStatusCountsAsSuccess 验证同值条目算成功但不产生审计
func TestBulkTransitionSameStatusCountsAsSuccess(t *testing.T) {
	store := newFakeTransitionStore(
		testApp("app-1", models.StatusInterview), // 已经是目标状态
		testApp("app-2", models.StatusNew),
	)
	coordinator := NewBulkTransitionCoordinator(NewStatusTransitionEngine(store))

	result, err := coordinator.BulkTransition(context.Background(),
		[]string{"app-1", "app-2"}, "interview", nil, "")
	require.NoError(t, err)

	assert.Equal(t, 2, result.Succeeded)
	assert.Equal(t, 1, store.auditCount(), "只有真正变更的那条产生审计")
}

// TestBulkTransitionRejectsInvalidStatusUpfront 验证非法状态整批拒绝且无任何写入
func TestBulkTransitionRejectsInvalidStatusUpfront(t *testing.T) {
	store := newFakeTransitionStore(testApp("app-1", models.StatusNew))
	coordinator := NewBulkTransitionCoordinator(NewStatusTransitionEngine(store))

	_, err := coordinator.BulkTransition(context.Background(), []string{"app-1"}, "archived", nil, "")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidStatus)
	assert.Equal(t, 0, store.transitionCnt, "整批拒绝时不应有任何条目触达存储")
}

// TestBulkTransitionEmptyInput 验证空ID列表被拒绝
func TestBulkTransitionEmptyInput(t *testing.T) {
	coordinator := NewBulkTransitionCoordinator(NewStatusTransitionEngine(newFakeTransitionStore()))

	_, err := coordinator.BulkTransition(context.Background(), nil, "screening", nil, "")
	assert.ErrorIs(t, err, ErrEmptyBulkRequest)

	// 全是空串也等价于空列表
	_, err = coordinator.BulkTransition(context.Background(), []string{"", ""}, "screening", nil, "")
	assert.ErrorIs(t, err, ErrEmptyBulkRequest)
}

// TestBulkTransitionDeduplicatesIDs 验证重复ID只处理一次
func TestBulkTransitionDeduplicatesIDs(t *testing.T) {
	store := newFakeTransitionStore(testApp("app-1", models.StatusNew))
	coordinator := NewBulkTransitionCoordinator(NewStatusTransitionEngine(store))

	result, err := coordinator.BulkTransition(context.Background(),
		[]string{"app-1", "app-1", "app-1"}, "screening", nil, "")
	require.NoError(t, err)

	assert.Equal(t, 1, result.Succeeded)
	assert.Equal(t, 1, store.auditCount(), "去重后同一申请只产生一条审计")
}

// TestBulkTransitionManyIDs 验证超过并发上限的批量也能全部处理
func TestBulkTransitionManyIDs(t *testing.T) {
	apps := make([]*models.Application, 0, 50)
	ids := make([]string, 0, 50)
	for i := 0; i < 50; i++ {
		id := testAppID(i)
		apps = append(apps, testApp(id, models.StatusNew))
		ids = append(ids, id)
	}
	store := newFakeTransitionStore(apps...)
	coordinator := NewBulkTransitionCoordinator(NewStatusTransitionEngine(store))

	result, err := coordinator.BulkTransition(context.Background(), ids, "rejected", nil, "批量拒绝")
	require.NoError(t, err)

	assert.Equal(t, 50, result.Succeeded)
	assert.Empty(t, result.NotFound)
	assert.Empty(t, result.Failed)
	assert.Equal(t, 50, store.auditCount())
}

// TestBulkTransitionReportsFailureReasons 验证失败条目带上可读原因
func TestBulkTransitionReportsFailureReasons(t *testing.T) {
	// 独立的失败注入：用一个总是报错的Transitioner
	coordinator := NewBulkTransitionCoordinator(transitionerFunc(
		func(ctx context.Context, id, status string, actor *string, note string) (*models.Application, bool, error) {
			if id == "bad" {
				return nil, false, assert.AnError
			}
			if id == "gone" {
				return nil, false, storage.ErrApplicationNotFound
			}
			return &models.Application{ApplicationID: id}, true, nil
		}))

	result, err := coordinator.BulkTransition(context.Background(),
		[]string{"ok", "bad", "gone"}, "screening", nil, "")
	require.NoError(t, err)

	assert.Equal(t, 1, result.Succeeded)
	assert.Equal(t, []string{"gone"}, result.NotFound)
	require.Contains(t, result.Failed, "bad")
	assert.NotEmpty(t, result.Failed["bad"])
}

// transitionerFunc 函数适配器，方便在测试里注入任意流转行为
type transitionerFunc func(ctx context.Context, applicationID, newStatus string, actor *string, note string) (*models.Application, bool, error)

func (f transitionerFunc) Transition(ctx context.Context, applicationID, newStatus string, actor *string, note string) (*models.Application, bool, error) {
	return f(ctx, applicationID, newStatus, actor, note)
}

func testAppID(i int) string {
	return "app-" + string(rune('a'+i/26)) + string(rune('a'+i%26))
}
