package handler

import (
	"context"
	"errors"
	"strconv"

	"github.com/winstondavid829/ats-platform/internal/api/middleware"
	"github.com/winstondavid829/ats-platform/internal/lifecycle"
	"github.com/winstondavid829/ats-platform/internal/logger"
	"github.com/winstondavid829/ats-platform/internal/storage"
	"github.com/winstondavid829/ats-platform/internal/storage/models"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/common/utils"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
)

// defaultListLimit 列表接口的默认分页大小
const defaultListLimit = 50

// ApplicationHandler 申请相关的HTTP处理器。
// 业务规则全部在 lifecycle 包里，这里只做传输层的出入参转换。
type ApplicationHandler struct {
	service *lifecycle.ApplicationLifecycleService
}

// NewApplicationHandler 创建申请处理器。
func NewApplicationHandler(service *lifecycle.ApplicationLifecycleService) *ApplicationHandler {
	return &ApplicationHandler{service: service}
}

// applicationView 对外暴露的申请视图
type applicationView struct {
	ApplicationID    string   `json:"application_id"`
	JobID            string   `json:"job_id"`
	CandidateName    string   `json:"candidate_name"`
	CandidateEmail   string   `json:"candidate_email"`
	CandidatePhone   string   `json:"candidate_phone,omitempty"`
	ProfileURL       string   `json:"profile_url,omitempty"`
	CoverLetter      string   `json:"cover_letter,omitempty"`
	OriginalFilename string   `json:"original_filename,omitempty"`
	Status           string   `json:"status"`
	ParsedSkills     []string `json:"parsed_skills"`
	ParsedExperience string   `json:"parsed_experience"`
	ParsedEducation  string   `json:"parsed_education"`
	ParsedEmail      string   `json:"parsed_email"`
	ParsedPhone      string   `json:"parsed_phone"`
	Score            int      `json:"score"`
	ParseStatus      string   `json:"parse_status"`
	CreatedAt        string   `json:"created_at"`
	UpdatedAt        string   `json:"updated_at"`
}

func toApplicationView(app *models.Application) *applicationView {
	return &applicationView{
		ApplicationID:    app.ApplicationID,
		JobID:            app.JobID,
		CandidateName:    app.CandidateName,
		CandidateEmail:   app.CandidateEmail,
		CandidatePhone:   app.CandidatePhone,
		ProfileURL:       app.ProfileURL,
		CoverLetter:      app.CoverLetter,
		OriginalFilename: app.OriginalFilename,
		Status:           app.Status.String(),
		ParsedSkills:     app.ParsedSkills(),
		ParsedExperience: app.ParsedExperience,
		ParsedEducation:  app.ParsedEducation,
		ParsedEmail:      app.ParsedEmail,
		ParsedPhone:      app.ParsedPhone,
		Score:            app.Score,
		ParseStatus:      app.ParseStatus,
		CreatedAt:        app.CreatedAt.Format("2006-01-02T15:04:05.000Z07:00"),
		UpdatedAt:        app.UpdatedAt.Format("2006-01-02T15:04:05.000Z07:00"),
	}
}

// Create 公开投递端点 (multipart/form-data)。
// 对候选人开放，不经过API Key认证。
func (h *ApplicationHandler) Create(c context.Context, ctx *app.RequestContext) {
	fileHeader, err := ctx.FormFile("resume")
	if err != nil {
		ctx.JSON(consts.StatusBadRequest, utils.H{"error": "缺少简历文件(resume)"})
		return
	}
	file, err := fileHeader.Open()
	if err != nil {
		ctx.JSON(consts.StatusInternalServerError, utils.H{"error": "打开上传文件失败"})
		return
	}
	defer file.Close()

	input := &lifecycle.CreateApplicationInput{
		JobID:          ctx.PostForm("job_id"),
		CandidateName:  ctx.PostForm("candidate_name"),
		CandidateEmail: ctx.PostForm("candidate_email"),
		CandidatePhone: ctx.PostForm("candidate_phone"),
		ProfileURL:     ctx.PostForm("profile_url"),
		CoverLetter:    ctx.PostForm("cover_letter"),
		Filename:       fileHeader.Filename,
		FileSize:       fileHeader.Size,
		File:           file,
	}

	app, err := h.service.Create(c, input)
	if err != nil {
		writeLifecycleError(c, ctx, err)
		return
	}
	ctx.JSON(consts.StatusCreated, toApplicationView(app))
}

// updateStatusRequest 状态更新请求体
type updateStatusRequest struct {
	Status string `json:"status"`
	Note   string `json:"note"`
}

// UpdateStatus 单个申请的状态流转。
func (h *ApplicationHandler) UpdateStatus(c context.Context, ctx *app.RequestContext) {
	applicationID := ctx.Param("id")

	var req updateStatusRequest
	if err := ctx.BindJSON(&req); err != nil {
		ctx.JSON(consts.StatusBadRequest, utils.H{"error": "请求体格式错误"})
		return
	}

	app, err := h.service.UpdateStatus(c, applicationID, req.Status, middleware.ActorFrom(ctx), req.Note)
	if err != nil {
		writeLifecycleError(c, ctx, err)
		return
	}
	ctx.JSON(consts.StatusOK, toApplicationView(app))
}

// bulkUpdateRequest 批量状态更新请求体
type bulkUpdateRequest struct {
	ApplicationIDs []string `json:"application_ids"`
	Status         string   `json:"status"`
	Note           string   `json:"note"`
}

// BulkUpdateStatus 批量状态流转，部分成功返回200和逐项结果。
func (h *ApplicationHandler) BulkUpdateStatus(c context.Context, ctx *app.RequestContext) {
	var req bulkUpdateRequest
	if err := ctx.BindJSON(&req); err != nil {
		ctx.JSON(consts.StatusBadRequest, utils.H{"error": "请求体格式错误"})
		return
	}

	result, err := h.service.BulkUpdateStatus(c, req.ApplicationIDs, req.Status, middleware.ActorFrom(ctx), req.Note)
	if err != nil {
		writeLifecycleError(c, ctx, err)
		return
	}
	ctx.JSON(consts.StatusOK, result)
}

// Reparse 重新触发解析。入队即返回202，解析结果异步可见。
func (h *ApplicationHandler) Reparse(c context.Context, ctx *app.RequestContext) {
	applicationID := ctx.Param("id")

	app, err := h.service.Reparse(c, applicationID)
	if err != nil {
		writeLifecycleError(c, ctx, err)
		return
	}
	ctx.JSON(consts.StatusAccepted, toApplicationView(app))
}

// auditEntryView 对外暴露的审计记录视图
type auditEntryView struct {
	FromStatus string  `json:"from_status"`
	ToStatus   string  `json:"to_status"`
	Actor      *string `json:"actor"`
	Note       string  `json:"note,omitempty"`
	ChangedAt  string  `json:"changed_at"`
}

// History 申请的状态审计序列，最近变更在前。
func (h *ApplicationHandler) History(c context.Context, ctx *app.RequestContext) {
	applicationID := ctx.Param("id")

	entries, err := h.service.History(c, applicationID)
	if err != nil {
		writeLifecycleError(c, ctx, err)
		return
	}

	views := make([]auditEntryView, 0, len(entries))
	for _, e := range entries {
		views = append(views, auditEntryView{
			FromStatus: e.FromStatus.String(),
			ToStatus:   e.ToStatus.String(),
			Actor:      e.Actor,
			Note:       e.Note,
			ChangedAt:  e.ChangedAt.Format("2006-01-02T15:04:05.000Z07:00"),
		})
	}
	ctx.JSON(consts.StatusOK, utils.H{"application_id": applicationID, "history": views})
}

// Get 读取单个申请。
func (h *ApplicationHandler) Get(c context.Context, ctx *app.RequestContext) {
	app, err := h.service.Get(c, ctx.Param("id"))
	if err != nil {
		writeLifecycleError(c, ctx, err)
		return
	}
	ctx.JSON(consts.StatusOK, toApplicationView(app))
}

// List 申请列表，支持 job_id/status 过滤和 limit/offset 分页。
// limit 非正值会放开分页造成全表扫描，一律收敛到默认值。
func (h *ApplicationHandler) List(c context.Context, ctx *app.RequestContext) {
	limit, _ := strconv.Atoi(ctx.Query("limit"))
	if limit <= 0 {
		limit = defaultListLimit
	}
	offset, _ := strconv.Atoi(ctx.Query("offset"))
	if offset < 0 {
		offset = 0
	}

	apps, err := h.service.List(c, ctx.Query("job_id"), ctx.Query("status"), limit, offset)
	if err != nil {
		writeLifecycleError(c, ctx, err)
		return
	}

	views := make([]*applicationView, 0, len(apps))
	for i := range apps {
		views = append(views, toApplicationView(&apps[i]))
	}
	ctx.JSON(consts.StatusOK, utils.H{"applications": views, "count": len(views)})
}

// writeLifecycleError 把生命周期错误翻译成HTTP状态码。
// 校验类400、不存在类404，其余一律500不泄露内部细节。
func writeLifecycleError(c context.Context, ctx *app.RequestContext, err error) {
	switch {
	case errors.Is(err, lifecycle.ErrInvalidStatus),
		errors.Is(err, lifecycle.ErrValidation),
		errors.Is(err, lifecycle.ErrInvalidResumeFile),
		errors.Is(err, lifecycle.ErrEmptyBulkRequest):
		ctx.JSON(consts.StatusBadRequest, utils.H{"error": err.Error()})
	case errors.Is(err, lifecycle.ErrJobNotActive):
		ctx.JSON(consts.StatusConflict, utils.H{"error": err.Error()})
	case errors.Is(err, storage.ErrApplicationNotFound),
		errors.Is(err, storage.ErrJobNotFound):
		ctx.JSON(consts.StatusNotFound, utils.H{"error": err.Error()})
	default:
		logger.Ctx(c).Error().Err(err).Str("path", string(ctx.Path())).Msg("请求处理失败")
		ctx.JSON(consts.StatusInternalServerError, utils.H{"error": "内部错误"})
	}
}
