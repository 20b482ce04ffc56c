package parsing

import (
	"context"
	"errors"
	"net"

	"github.com/winstondavid829/ats-platform/internal/logger"
	"github.com/winstondavid829/ats-platform/internal/storage"
	"github.com/winstondavid829/ats-platform/internal/storage/models"
	"github.com/winstondavid829/ats-platform/internal/tracing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var orchestratorTracer = otel.Tracer("parsing-orchestrator")

// ParsedFieldsStore 解析结果的持久化契约，由 storage.MySQL 实现。
// 解析字段由编排器独占写入，生命周期路径不会触碰。
type ParsedFieldsStore interface {
	GetApplicationByID(ctx context.Context, applicationID string) (*models.Application, error)
	GetJobPostingByID(ctx context.Context, jobID string) (*models.JobPosting, error)
	SaveParsedResult(ctx context.Context, applicationID string, result *models.ParsedResult) error
	MarkParseFailed(ctx context.Context, applicationID string, cause string) error
}

var _ ParsedFieldsStore = (*storage.MySQL)(nil)

// FileURLProvider 为解析服务生成简历原件的可访问地址。
type FileURLProvider interface {
	ResumeFileURL(ctx context.Context, objectKey string) (string, error)
}

// ResumeParser 外部解析调用的抽象，由 Client 实现。
type ResumeParser interface {
	Parse(ctx context.Context, fileURL string, jobRequirements []string) (*models.ParsedResult, error)
}

var _ ResumeParser = (*Client)(nil)

// Orchestrator 解析编排器。
//
// 负责整条解析链路：拿岗位要求（Redis缓存优先）、生成简历的预签名
// 地址、调用外部解析服务、把成功结果整体覆盖到申请上。任何失败
// （超时、连接失败、非200、success=false）只记录不上抛——Parse
// 永远正常返回，创建/重新解析的调用方不感知解析结果。
type Orchestrator struct {
	store  ParsedFieldsStore
	files  FileURLProvider
	parser ResumeParser

	// redis 可为nil，缓存和单飞锁均可降级
	redis *storage.Redis
}

// NewOrchestrator 创建解析编排器。redis 传nil表示不启用缓存和锁。
func NewOrchestrator(store ParsedFieldsStore, files FileURLProvider, parser ResumeParser, redis *storage.Redis) *Orchestrator {
	return &Orchestrator{
		store:  store,
		files:  files,
		parser: parser,
		redis:  redis,
	}
}

// Parse 对一个已持久化的申请执行一次完整解析。
//
// 无返回值：软失败语义意味着调用方没有可依赖的结果，失败信息
// 只写进 parse_status/parse_error 和日志。重复调用任意次安全，
// 每次成功都整体覆盖上一次的结果。
func (o *Orchestrator) Parse(ctx context.Context, applicationID string) {
	ctx, span := orchestratorTracer.Start(ctx, "ParsingOrchestrator.Parse",
		trace.WithAttributes(attribute.String("application.id", applicationID)))
	defer span.End()
	l := logger.Ctx(ctx)

	// 单飞锁：同一申请的并发解析没有意义（后写覆盖先写）。
	// 锁拿不到说明有别的实例正在解析，直接放弃本次；
	// Redis不可用时跳过锁照常解析。
	if o.redis != nil {
		acquired, err := o.redis.AcquireParseLock(ctx, applicationID)
		if err != nil {
			tracing.RecordErrorWithInfo(span, err, tracing.ErrorTypeRedis,
				attribute.Bool("parse.lock_degraded", true))
			l.Warn().Err(err).Str("application_id", applicationID).Msg("获取解析锁失败, 跳过锁继续解析")
		} else if !acquired {
			l.Info().Str("application_id", applicationID).Msg("申请正在被其他实例解析, 跳过本次")
			span.SetAttributes(attribute.Bool("parse.skipped_duplicate", true))
			return
		} else {
			defer func() {
				if err := o.redis.ReleaseParseLock(context.WithoutCancel(ctx), applicationID); err != nil {
					l.Warn().Err(err).Str("application_id", applicationID).Msg("释放解析锁失败")
				}
			}()
		}
	}

	app, err := o.store.GetApplicationByID(ctx, applicationID)
	if err != nil {
		if errors.Is(err, storage.ErrApplicationNotFound) {
			// 消息投递和删除之间的正常竞态，不算失败
			l.Info().Str("application_id", applicationID).Msg("申请已不存在, 放弃解析")
			return
		}
		o.recordFailure(ctx, span, applicationID, "加载申请记录失败", err, tracing.ErrorTypeDB)
		return
	}

	requirements, err := o.jobRequirements(ctx, app.JobID)
	if err != nil {
		o.recordFailure(ctx, span, applicationID, "加载岗位要求失败", err, tracing.ErrorTypeDB)
		return
	}

	fileURL, err := o.files.ResumeFileURL(ctx, app.ResumeObjectKey)
	if err != nil {
		o.recordFailure(ctx, span, applicationID, "生成简历访问地址失败", err, tracing.ErrorTypeExternal)
		return
	}

	result, err := o.parser.Parse(ctx, fileURL, requirements)
	if err != nil {
		// 超时/连接失败/非200/success=false 统一软失败：
		// 已有解析字段保持原样，只更新失败标记
		errType := tracing.ErrorTypeExternal
		if isTimeout(err) {
			errType = tracing.ErrorTypeTimeout
		}
		o.recordFailure(ctx, span, applicationID, "外部解析调用失败", err, errType)
		return
	}

	if err := o.store.SaveParsedResult(ctx, applicationID, result); err != nil {
		o.recordFailure(ctx, span, applicationID, "保存解析结果失败", err, tracing.ErrorTypeDB)
		return
	}

	span.SetAttributes(attribute.Int("parse.score", result.Score))
	l.Info().
		Str("application_id", applicationID).
		Int("score", result.Score).
		Int("skills", len(result.Skills)).
		Msg("简历解析完成")
}

// jobRequirements 取岗位要求关键词，Redis缓存优先，未命中回源数据库。
// 缓存读写失败都只降级不报错。
func (o *Orchestrator) jobRequirements(ctx context.Context, jobID string) ([]string, error) {
	l := logger.Ctx(ctx)

	if o.redis != nil {
		reqs, err := o.redis.GetCachedJobRequirements(ctx, jobID)
		if err == nil {
			return reqs, nil
		}
		if !errors.Is(err, storage.ErrNotFound) {
			l.Warn().Err(err).Str("job_id", jobID).Msg("读取岗位要求缓存失败, 回源数据库")
		}
	}

	job, err := o.store.GetJobPostingByID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	reqs := job.RequirementsList()

	if o.redis != nil {
		if err := o.redis.CacheJobRequirements(ctx, jobID, reqs); err != nil {
			l.Warn().Err(err).Str("job_id", jobID).Msg("写入岗位要求缓存失败")
		}
	}
	return reqs, nil
}

// isTimeout 区分超时和其他失败原因，只影响Span上的错误分类。
func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// recordFailure 统一的软失败出口：打标记、记日志、记Span，不上抛。
func (o *Orchestrator) recordFailure(ctx context.Context, span trace.Span, applicationID, stage string, cause error, errType tracing.ErrorType) {
	tracing.RecordError(span, cause, errType)
	span.SetStatus(codes.Error, stage)

	logger.Ctx(ctx).Warn().
		Err(cause).
		Str("application_id", applicationID).
		Str("stage", stage).
		Msg("简历解析软失败")

	// 标记失败也可能失败（比如数据库抖动），此时只能靠日志
	if err := o.store.MarkParseFailed(context.WithoutCancel(ctx), applicationID, stage+": "+cause.Error()); err != nil {
		logger.Ctx(ctx).Error().Err(err).Str("application_id", applicationID).Msg("记录解析失败状态时出错")
	}
}
