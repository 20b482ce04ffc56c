package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/winstondavid829/ats-platform/internal/logger"
	"github.com/winstondavid829/ats-platform/internal/storage"
	"github.com/winstondavid829/ats-platform/internal/storage/models"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var bulkTracer = otel.Tracer("lifecycle-bulk")

// defaultBulkConcurrency 批量流转的并发上限。
// 每条流转各自持有行锁，并发度只受数据库连接池约束。
const defaultBulkConcurrency = 8

// Transitioner 单条状态流转的抽象，由 StatusTransitionEngine 实现。
type Transitioner interface {
	Transition(ctx context.Context, applicationID string, newStatus string, actor *string, note string) (*models.Application, bool, error)
}

// BulkResult 批量流转的逐项结果。
// 部分成功是常态：调用方拿到精确的成功数和逐项失败原因自行对账。
type BulkResult struct {
	Succeeded int               `json:"succeeded"`
	NotFound  []string          `json:"not_found"`
	Failed    map[string]string `json:"failed"`
}

// BulkTransitionCoordinator 把一次状态变更独立地应用到一组申请上。
// 单条失败（不存在、校验拒绝）不会中断其余条目的处理，也不回滚
// 已完成的条目，系统选择最大化推进而不是整批原子。
type BulkTransitionCoordinator struct {
	engine      Transitioner
	concurrency int
}

// NewBulkTransitionCoordinator 创建批量流转协调器。
func NewBulkTransitionCoordinator(engine Transitioner) *BulkTransitionCoordinator {
	return &BulkTransitionCoordinator{
		engine:      engine,
		concurrency: defaultBulkConcurrency,
	}
}

// BulkTransition 对一组申请ID执行同一状态变更。
//
// ID集合在处理前去重；目标状态只校验一次，非法状态整批拒绝
// （此时还没有任何写入发生）。条目间没有顺序保证，每条流转
// 仍然满足单申请的原子性与审计语义。
func (c *BulkTransitionCoordinator) BulkTransition(ctx context.Context, applicationIDs []string, newStatus string, actor *string, note string) (*BulkResult, error) {
	ctx, span := bulkTracer.Start(ctx, "BulkTransitionCoordinator.BulkTransition",
		trace.WithAttributes(
			attribute.Int("bulk.requested_count", len(applicationIDs)),
			attribute.String("application.to_status", newStatus),
		))
	defer span.End()

	if len(applicationIDs) == 0 {
		return nil, ErrEmptyBulkRequest
	}
	if _, err := models.ParseApplicationStatus(newStatus); err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, newStatus)
	}

	seen := make(map[string]struct{}, len(applicationIDs))
	ids := make([]string, 0, len(applicationIDs))
	for _, id := range applicationIDs {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return nil, ErrEmptyBulkRequest
	}

	result := &BulkResult{
		NotFound: make([]string, 0),
		Failed:   make(map[string]string),
	}

	var mu sync.Mutex
	var wg sync.WaitGroup
	sem := make(chan struct{}, c.concurrency)

	for _, id := range ids {
		wg.Add(1)
		sem <- struct{}{}
		go func(applicationID string) {
			defer wg.Done()
			defer func() { <-sem }()

			_, _, err := c.engine.Transition(ctx, applicationID, newStatus, actor, note)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				result.Succeeded++
			case errors.Is(err, storage.ErrApplicationNotFound):
				result.NotFound = append(result.NotFound, applicationID)
			default:
				result.Failed[applicationID] = err.Error()
			}
		}(id)
	}
	wg.Wait()

	span.SetAttributes(
		attribute.Int("bulk.succeeded", result.Succeeded),
		attribute.Int("bulk.not_found", len(result.NotFound)),
		attribute.Int("bulk.failed", len(result.Failed)),
	)
	logger.Ctx(ctx).Info().
		Int("requested", len(ids)).
		Int("succeeded", result.Succeeded).
		Int("not_found", len(result.NotFound)).
		Int("failed", len(result.Failed)).
		Str("to_status", newStatus).
		Msg("批量状态流转完成")

	return result, nil
}
