package handler

import (
	"context"
	"errors"
	"strings"

	"github.com/winstondavid829/ats-platform/internal/api/middleware"
	"github.com/winstondavid829/ats-platform/internal/logger"
	"github.com/winstondavid829/ats-platform/internal/storage"
	"github.com/winstondavid829/ats-platform/internal/storage/models"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/common/utils"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
	"github.com/gofrs/uuid/v5"
)

// JobHandler 岗位管理处理器。岗位是生命周期核心的外部协作方，
// 这里提供招聘端的基础CRUD和开关操作。
type JobHandler struct {
	db    *storage.MySQL
	redis *storage.Redis
}

// NewJobHandler 创建岗位处理器。redis 可为nil。
func NewJobHandler(db *storage.MySQL, redis *storage.Redis) *JobHandler {
	return &JobHandler{db: db, redis: redis}
}

// jobRequest 岗位创建请求体
type jobRequest struct {
	Title        string   `json:"title"`
	Description  string   `json:"description"`
	Requirements string   `json:"requirements"`
	Location     string   `json:"location"`
	SalaryMin    *float64 `json:"salary_min"`
	SalaryMax    *float64 `json:"salary_max"`
}

// jobView 对外暴露的岗位视图
type jobView struct {
	JobID        string   `json:"job_id"`
	Title        string   `json:"title"`
	Description  string   `json:"description,omitempty"`
	Requirements []string `json:"requirements"`
	Location     string   `json:"location,omitempty"`
	SalaryMin    *float64 `json:"salary_min,omitempty"`
	SalaryMax    *float64 `json:"salary_max,omitempty"`
	Status       string   `json:"status"`
	CreatedBy    string   `json:"created_by,omitempty"`
	CreatedAt    string   `json:"created_at"`
}

func toJobView(job *models.JobPosting) *jobView {
	return &jobView{
		JobID:        job.JobID,
		Title:        job.Title,
		Description:  job.Description,
		Requirements: job.RequirementsList(),
		Location:     job.Location,
		SalaryMin:    job.SalaryMin,
		SalaryMax:    job.SalaryMax,
		Status:       string(job.Status),
		CreatedBy:    job.CreatedBy,
		CreatedAt:    job.CreatedAt.Format("2006-01-02T15:04:05.000Z07:00"),
	}
}

// Create 创建岗位，默认 active。
func (h *JobHandler) Create(c context.Context, ctx *app.RequestContext) {
	var req jobRequest
	if err := ctx.BindJSON(&req); err != nil {
		ctx.JSON(consts.StatusBadRequest, utils.H{"error": "请求体格式错误"})
		return
	}
	if strings.TrimSpace(req.Title) == "" {
		ctx.JSON(consts.StatusBadRequest, utils.H{"error": "title 不能为空"})
		return
	}

	jobID, err := uuid.NewV7()
	if err != nil {
		ctx.JSON(consts.StatusInternalServerError, utils.H{"error": "内部错误"})
		return
	}

	createdBy := ""
	if actor := middleware.ActorFrom(ctx); actor != nil {
		createdBy = *actor
	}

	job := &models.JobPosting{
		JobID:        jobID.String(),
		Title:        req.Title,
		Description:  req.Description,
		Requirements: req.Requirements,
		Location:     req.Location,
		SalaryMin:    req.SalaryMin,
		SalaryMax:    req.SalaryMax,
		Status:       models.JobStatusActive,
		CreatedBy:    createdBy,
	}
	if err := h.db.CreateJobPosting(c, job); err != nil {
		logger.Ctx(c).Error().Err(err).Msg("创建岗位失败")
		ctx.JSON(consts.StatusInternalServerError, utils.H{"error": "内部错误"})
		return
	}
	ctx.JSON(consts.StatusCreated, toJobView(job))
}

// Get 读取单个岗位。
func (h *JobHandler) Get(c context.Context, ctx *app.RequestContext) {
	job, err := h.db.GetJobPostingByID(c, ctx.Param("id"))
	if err != nil {
		if errors.Is(err, storage.ErrJobNotFound) {
			ctx.JSON(consts.StatusNotFound, utils.H{"error": err.Error()})
			return
		}
		logger.Ctx(c).Error().Err(err).Msg("查询岗位失败")
		ctx.JSON(consts.StatusInternalServerError, utils.H{"error": "内部错误"})
		return
	}
	ctx.JSON(consts.StatusOK, toJobView(job))
}

// List 岗位列表，可按 status=active/closed 过滤。
func (h *JobHandler) List(c context.Context, ctx *app.RequestContext) {
	status := models.JobStatus(ctx.Query("status"))
	if status != "" && status != models.JobStatusActive && status != models.JobStatusClosed {
		ctx.JSON(consts.StatusBadRequest, utils.H{"error": "无效的岗位状态"})
		return
	}

	jobs, err := h.db.ListJobPostings(c, status)
	if err != nil {
		logger.Ctx(c).Error().Err(err).Msg("查询岗位列表失败")
		ctx.JSON(consts.StatusInternalServerError, utils.H{"error": "内部错误"})
		return
	}

	views := make([]*jobView, 0, len(jobs))
	for i := range jobs {
		views = append(views, toJobView(&jobs[i]))
	}
	ctx.JSON(consts.StatusOK, utils.H{"jobs": views, "count": len(views)})
}

// Close 关闭岗位，之后的新投递会被 JobNotActive 拒绝。
func (h *JobHandler) Close(c context.Context, ctx *app.RequestContext) {
	h.setStatus(c, ctx, models.JobStatusClosed)
}

// Reopen 重新开放岗位。
func (h *JobHandler) Reopen(c context.Context, ctx *app.RequestContext) {
	h.setStatus(c, ctx, models.JobStatusActive)
}

func (h *JobHandler) setStatus(c context.Context, ctx *app.RequestContext, status models.JobStatus) {
	jobID := ctx.Param("id")

	job, err := h.db.UpdateJobStatus(c, jobID, status)
	if err != nil {
		if errors.Is(err, storage.ErrJobNotFound) {
			ctx.JSON(consts.StatusNotFound, utils.H{"error": err.Error()})
			return
		}
		logger.Ctx(c).Error().Err(err).Msg("更新岗位状态失败")
		ctx.JSON(consts.StatusInternalServerError, utils.H{"error": "内部错误"})
		return
	}

	// 岗位变更后清掉要求缓存，解析器下次回源取最新值
	if h.redis != nil {
		if err := h.redis.InvalidateJobRequirements(c, jobID); err != nil {
			logger.Ctx(c).Warn().Err(err).Str("job_id", jobID).Msg("清除岗位要求缓存失败")
		}
	}
	ctx.JSON(consts.StatusOK, toJobView(job))
}
