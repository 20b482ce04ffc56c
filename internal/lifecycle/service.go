package lifecycle

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/winstondavid829/ats-platform/internal/constants"
	"github.com/winstondavid829/ats-platform/internal/logger"
	"github.com/winstondavid829/ats-platform/internal/storage"
	"github.com/winstondavid829/ats-platform/internal/storage/models"

	"github.com/gofrs/uuid/v5"
	guuid "github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var serviceTracer = otel.Tracer("lifecycle-service")

// ApplicationStore 门面依赖的持久化契约，由 storage.MySQL 实现。
type ApplicationStore interface {
	CreateApplicationWithOutbox(ctx context.Context, app *models.Application, msg *models.OutboxMessage) error
	GetApplicationByID(ctx context.Context, applicationID string) (*models.Application, error)
	ListApplications(ctx context.Context, jobID string, status models.ApplicationStatus, limit, offset int) ([]models.Application, error)
	ListAuditTrail(ctx context.Context, applicationID string) ([]models.StatusAuditEntry, error)
	EnqueueParseRequest(ctx context.Context, msg *models.OutboxMessage) error
	GetJobPostingByID(ctx context.Context, jobID string) (*models.JobPosting, error)
}

var _ ApplicationStore = (*storage.MySQL)(nil)

// CreateApplicationInput 公开投递接口的入参。
type CreateApplicationInput struct {
	JobID          string
	CandidateName  string
	CandidateEmail string
	CandidatePhone string
	ProfileURL     string
	CoverLetter    string

	// 简历文件
	Filename string
	FileSize int64
	File     io.Reader
}

// ApplicationLifecycleService 申请生命周期门面。
// 组合状态流转引擎、批量协调器和解析任务投递，自身不持有
// 额外不变量：创建先落库再触发解析，更新先流转再响应。
type ApplicationLifecycleService struct {
	store ApplicationStore
	files storage.ObjectStorage

	engine *StatusTransitionEngine
	bulk   *BulkTransitionCoordinator

	// 解析任务发件箱消息的目标拓扑
	eventsExchange  string
	parseRoutingKey string
}

// NewApplicationLifecycleService 创建生命周期门面。
func NewApplicationLifecycleService(
	store ApplicationStore,
	files storage.ObjectStorage,
	engine *StatusTransitionEngine,
	bulk *BulkTransitionCoordinator,
	eventsExchange, parseRoutingKey string,
) *ApplicationLifecycleService {
	return &ApplicationLifecycleService{
		store:           store,
		files:           files,
		engine:          engine,
		bulk:            bulk,
		eventsExchange:  eventsExchange,
		parseRoutingKey: parseRoutingKey,
	}
}

// Create 处理一次公开投递。
//
// 顺序约束：先用 JobNotFound/JobNotActive/文件校验拦截非法请求
// （此时什么都没创建），再上传简历，最后在同一个事务里落库申请
// 和解析任务发件箱消息。解析对创建是尽力而为的：消息由中继异步
// 投递，解析失败不影响已创建的申请。
func (s *ApplicationLifecycleService) Create(ctx context.Context, input *CreateApplicationInput) (*models.Application, error) {
	ctx, span := serviceTracer.Start(ctx, "LifecycleService.Create",
		trace.WithAttributes(attribute.String("job.id", input.JobID)))
	defer span.End()

	if err := validateCreateInput(input); err != nil {
		return nil, err
	}

	job, err := s.store.GetJobPostingByID(ctx, input.JobID)
	if err != nil {
		return nil, err
	}
	if !job.Active() {
		return nil, fmt.Errorf("%w: %s", ErrJobNotActive, job.JobID)
	}

	appID, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("生成申请ID失败: %w", err)
	}
	applicationID := appID.String()

	ext := strings.ToLower(filepath.Ext(input.Filename))
	objectKey, err := s.files.UploadResumeFile(ctx, applicationID, ext, input.File, input.FileSize)
	if err != nil {
		return nil, fmt.Errorf("上传简历文件失败: %w", err)
	}

	app := &models.Application{
		ApplicationID:    applicationID,
		JobID:            input.JobID,
		CandidateName:    input.CandidateName,
		CandidateEmail:   input.CandidateEmail,
		CandidatePhone:   input.CandidatePhone,
		ProfileURL:       input.ProfileURL,
		CoverLetter:      input.CoverLetter,
		ResumeObjectKey:  objectKey,
		OriginalFilename: input.Filename,
		Status:           models.StatusNew,
		ParseStatus:      models.ParseStatusPending,
	}

	msg, err := s.buildParseOutboxMessage(applicationID, input.JobID, "create")
	if err != nil {
		return nil, err
	}

	if err := s.store.CreateApplicationWithOutbox(ctx, app, msg); err != nil {
		// 落库失败时回收已上传的简历，避免遗留孤儿对象
		cleanupCtx := context.WithoutCancel(ctx)
		if delErr := s.files.DeleteResumeFile(cleanupCtx, objectKey); delErr != nil {
			logger.Ctx(ctx).Warn().
				Err(delErr).
				Str("object_key", objectKey).
				Msg("回收简历文件失败")
		}
		return nil, err
	}

	logger.Ctx(ctx).Info().
		Str("application_id", applicationID).
		Str("job_id", input.JobID).
		Msg("申请已创建, 解析任务已入队")
	return app, nil
}

// UpdateStatus 单个申请的状态流转。actor 为发起人标识，系统动作传nil。
func (s *ApplicationLifecycleService) UpdateStatus(ctx context.Context, applicationID, newStatus string, actor *string, note string) (*models.Application, error) {
	app, _, err := s.engine.Transition(ctx, applicationID, newStatus, actor, note)
	return app, err
}

// BulkUpdateStatus 批量状态流转，逐项隔离，返回精确的逐项结果。
func (s *ApplicationLifecycleService) BulkUpdateStatus(ctx context.Context, applicationIDs []string, newStatus string, actor *string, note string) (*BulkResult, error) {
	return s.bulk.BulkTransition(ctx, applicationIDs, newStatus, actor, note)
}

// Reparse 对已存在的申请重新投递解析任务。
// 任何次数的调用都安全：解析成功后整体覆盖旧结果。入队成功即返回，
// 后续解析失败不会反馈给本次调用方。
func (s *ApplicationLifecycleService) Reparse(ctx context.Context, applicationID string) (*models.Application, error) {
	ctx, span := serviceTracer.Start(ctx, "LifecycleService.Reparse",
		trace.WithAttributes(attribute.String("application.id", applicationID)))
	defer span.End()

	app, err := s.store.GetApplicationByID(ctx, applicationID)
	if err != nil {
		return nil, err
	}

	msg, err := s.buildParseOutboxMessage(app.ApplicationID, app.JobID, "reparse")
	if err != nil {
		return nil, err
	}
	if err := s.store.EnqueueParseRequest(ctx, msg); err != nil {
		return nil, err
	}

	logger.Ctx(ctx).Info().
		Str("application_id", applicationID).
		Msg("重新解析任务已入队")
	return app, nil
}

// History 申请的完整状态审计序列，最近变更在前。
// 申请不存在时返回 storage.ErrApplicationNotFound，而不是空列表。
func (s *ApplicationLifecycleService) History(ctx context.Context, applicationID string) ([]models.StatusAuditEntry, error) {
	if _, err := s.store.GetApplicationByID(ctx, applicationID); err != nil {
		return nil, err
	}
	return s.store.ListAuditTrail(ctx, applicationID)
}

// Get 读取单个申请。
func (s *ApplicationLifecycleService) Get(ctx context.Context, applicationID string) (*models.Application, error) {
	return s.store.GetApplicationByID(ctx, applicationID)
}

// List 按岗位/状态过滤的申请列表。status 为空串表示不过滤。
func (s *ApplicationLifecycleService) List(ctx context.Context, jobID, status string, limit, offset int) ([]models.Application, error) {
	var st models.ApplicationStatus
	if status != "" {
		parsed, err := models.ParseApplicationStatus(status)
		if err != nil {
			return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, status)
		}
		st = parsed
	}
	return s.store.ListApplications(ctx, jobID, st, limit, offset)
}

// buildParseOutboxMessage 构造解析任务的发件箱消息。
func (s *ApplicationLifecycleService) buildParseOutboxMessage(applicationID, jobID, trigger string) (*models.OutboxMessage, error) {
	payload := storage.ParseRequestedMessage{
		TaskID:        guuid.NewString(),
		ApplicationID: applicationID,
		JobID:         jobID,
		RequestedAt:   time.Now(),
		Trigger:       trigger,
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("序列化解析任务消息失败: %w", err)
	}
	return &models.OutboxMessage{
		AggregateID:      applicationID,
		EventType:        constants.EventTypeParseRequested,
		Payload:          string(raw),
		TargetExchange:   s.eventsExchange,
		TargetRoutingKey: s.parseRoutingKey,
		Status:           models.OutboxStatusPending,
	}, nil
}

// validateCreateInput 校验投递入参：候选人必填字段和简历文件限制。
func validateCreateInput(input *CreateApplicationInput) error {
	if input == nil {
		return fmt.Errorf("%w: 请求体为空", ErrValidation)
	}
	if strings.TrimSpace(input.JobID) == "" {
		return fmt.Errorf("%w: job_id 不能为空", ErrValidation)
	}
	if strings.TrimSpace(input.CandidateName) == "" {
		return fmt.Errorf("%w: candidate_name 不能为空", ErrValidation)
	}
	if strings.TrimSpace(input.CandidateEmail) == "" {
		return fmt.Errorf("%w: candidate_email 不能为空", ErrValidation)
	}
	if input.File == nil || input.Filename == "" {
		return fmt.Errorf("%w: 缺少简历文件", ErrInvalidResumeFile)
	}
	if input.FileSize <= 0 || input.FileSize > constants.MaxResumeFileSize {
		return fmt.Errorf("%w: 文件大小必须在 (0, %d] 字节之间", ErrInvalidResumeFile, constants.MaxResumeFileSize)
	}
	ext := strings.ToLower(filepath.Ext(input.Filename))
	allowed := false
	for _, e := range constants.AllowedResumeExtensions {
		if ext == e {
			allowed = true
			break
		}
	}
	if !allowed {
		return fmt.Errorf("%w: 不支持的文件类型 %q, 仅支持 %s", ErrInvalidResumeFile, ext, strings.Join(constants.AllowedResumeExtensions, "/"))
	}
	return nil
}
