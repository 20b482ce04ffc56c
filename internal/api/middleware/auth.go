package middleware

import (
	"context"

	"github.com/winstondavid829/ats-platform/internal/config"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/common/utils"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
	"github.com/hertz-contrib/keyauth"
)

// ActorContextKey 认证通过后写入请求上下文的操作者标识
const ActorContextKey = "auth_actor"

// APIKeyAuth 招聘端接口的API Key认证。
// Key通过 X-API-Key 请求头传递，每个Key绑定一个操作者身份，
// 状态流转的审计记录落的就是这个身份。公开投递接口不挂这个中间件。
func APIKeyAuth(cfg *config.AuthConfig) app.HandlerFunc {
	return keyauth.New(
		keyauth.WithKeyLookUp("header:X-API-Key", ""),
		keyauth.WithValidator(func(c context.Context, ctx *app.RequestContext, key string) (bool, error) {
			actor, ok := cfg.APIKeys[key]
			if !ok {
				return false, nil
			}
			ctx.Set(ActorContextKey, actor)
			return true, nil
		}),
		keyauth.WithErrorHandler(func(c context.Context, ctx *app.RequestContext, err error) {
			ctx.AbortWithStatusJSON(consts.StatusUnauthorized, utils.H{"error": "无效的API Key"})
		}),
	)
}

// ActorFrom 取出认证中间件写入的操作者标识。
// 未认证的请求（公开端点）返回nil，审计记录的actor为空。
func ActorFrom(ctx *app.RequestContext) *string {
	v, ok := ctx.Get(ActorContextKey)
	if !ok {
		return nil
	}
	actor, ok := v.(string)
	if !ok || actor == "" {
		return nil
	}
	return &actor
}
