package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/winstondavid829/ats-platform/internal/logger"
	"github.com/winstondavid829/ats-platform/internal/storage"
	"github.com/winstondavid829/ats-platform/internal/storage/models"
	"github.com/winstondavid829/ats-platform/internal/tracing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var engineTracer = otel.Tracer("lifecycle-engine")

const (
	// 锁冲突（死锁/锁等待超时）的有界重试次数
	maxTransitionAttempts = 3
	transitionRetryDelay  = 50 * time.Millisecond
)

// TransitionStore 原子状态流转的持久化契约。
// 实现方必须保证 读-比-写-审计 在单个事务内完成，并在同值写入时
// 返回 changed=false 且不产生任何写入。
type TransitionStore interface {
	TransitionStatus(ctx context.Context, applicationID string, newStatus models.ApplicationStatus, actor *string, note string) (*models.Application, bool, error)
}

// StatusTransitionEngine 校验并执行单个申请的状态流转。
// 每次有效变更（旧值≠新值）恰好产生一条审计记录；审计追加发生在
// TransitionStore 的事务内部，引擎本身不直接写审计。
type StatusTransitionEngine struct {
	store TransitionStore
}

// NewStatusTransitionEngine 创建状态流转引擎。
func NewStatusTransitionEngine(store TransitionStore) *StatusTransitionEngine {
	return &StatusTransitionEngine{store: store}
}

// Transition 把一个申请流转到目标状态。
//
// 状态集合是封闭枚举，集合外的值直接拒绝，不落库不审计。
// 任意状态可流转到任意状态（含回退），同值写入是完整的no-op。
// 遇到瞬时锁冲突（storage.ErrConflict）做有界重试后放弃。
//
// 返回 (流转后的申请, 是否发生了有效变更, 错误)。
func (e *StatusTransitionEngine) Transition(ctx context.Context, applicationID string, newStatus string, actor *string, note string) (*models.Application, bool, error) {
	ctx, span := engineTracer.Start(ctx, "StatusTransitionEngine.Transition",
		trace.WithAttributes(
			attribute.String("application.id", applicationID),
			attribute.String("application.to_status", newStatus),
		))
	defer span.End()

	status, err := models.ParseApplicationStatus(newStatus)
	if err != nil {
		err = fmt.Errorf("%w: %q", ErrInvalidStatus, newStatus)
		tracing.RecordError(span, err, tracing.ErrorTypeValidation)
		return nil, false, err
	}

	var app *models.Application
	var changed bool
	for attempt := 1; attempt <= maxTransitionAttempts; attempt++ {
		app, changed, err = e.store.TransitionStatus(ctx, applicationID, status, actor, note)
		if err == nil || !errors.Is(err, storage.ErrConflict) {
			break
		}
		logger.Ctx(ctx).Warn().
			Str("application_id", applicationID).
			Int("attempt", attempt).
			Err(err).
			Msg("状态流转遇到锁冲突, 准备重试")
		if attempt < maxTransitionAttempts {
			select {
			case <-ctx.Done():
				return nil, false, ctx.Err()
			case <-time.After(transitionRetryDelay * time.Duration(attempt)):
			}
		}
	}
	if err != nil {
		return nil, false, err
	}

	span.SetAttributes(attribute.Bool("application.status_changed", changed))
	if changed {
		logger.Ctx(ctx).Info().
			Str("application_id", applicationID).
			Str("to_status", status.String()).
			Msg("申请状态已流转")
	}
	return app, changed, nil
}
