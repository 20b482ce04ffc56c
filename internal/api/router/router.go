package router

import (
	"context"

	"github.com/winstondavid829/ats-platform/internal/api/handler"
	"github.com/winstondavid829/ats-platform/internal/api/middleware"
	"github.com/winstondavid829/ats-platform/internal/config"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/common/utils"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
)

// RegisterRoutes 注册API路由。
// 公开面只有投递和健康检查；状态管理、批量操作、重新解析和
// 岗位管理都在API Key认证之后，审计记录因此总能拿到操作者身份。
func RegisterRoutes(h *server.Hertz, cfg *config.Config, appHandler *handler.ApplicationHandler, jobHandler *handler.JobHandler) {
	api := h.Group("/api/v1")

	api.GET("/health", func(c context.Context, ctx *app.RequestContext) {
		ctx.JSON(consts.StatusOK, utils.H{"status": "ok"})
	})

	// 候选人公开投递
	api.POST("/applications", appHandler.Create)

	// 招聘端接口
	authed := api.Group("/", middleware.APIKeyAuth(&cfg.Auth))

	authed.GET("/applications", appHandler.List)
	authed.GET("/applications/:id", appHandler.Get)
	authed.PATCH("/applications/:id/status", appHandler.UpdateStatus)
	authed.POST("/applications/bulk-status", appHandler.BulkUpdateStatus)
	authed.POST("/applications/:id/reparse", appHandler.Reparse)
	authed.GET("/applications/:id/history", appHandler.History)

	authed.POST("/jobs", jobHandler.Create)
	authed.GET("/jobs", jobHandler.List)
	authed.GET("/jobs/:id", jobHandler.Get)
	authed.POST("/jobs/:id/close", jobHandler.Close)
	authed.POST("/jobs/:id/reopen", jobHandler.Reopen)
}
