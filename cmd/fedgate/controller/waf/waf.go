package waf

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/fedgatehq/fedgate/model"
	"github.com/fedgatehq/fedgate/pkg/utils"
	"github.com/fedgatehq/fedgate/service/singleton"
)

// RealIp 解析请求来源地址写入上下文，后续的封禁与审计都以它为准
func RealIp(c *gin.Context) {
	var realip string
	if singleton.Conf.WebRealIPHeader != "" {
		if v := c.Request.Header.Get(singleton.Conf.WebRealIPHeader); v != "" {
			ip, err := utils.GetIPFromHeader(v)
			if err != nil {
				ShowBlockPage(c, err)
				return
			}
			realip = ip
		}
	}
	if realip == "" {
		realip = c.RemoteIP()
	}
	c.Set(model.CtxKeyRealIPStr, realip)
	c.Next()
}

func Waf(c *gin.Context) {
	if err := model.CheckIP(singleton.DB, c.GetString(model.CtxKeyRealIPStr)); err != nil {
		ShowBlockPage(c, err)
		return
	}
	c.Next()
}

func ShowBlockPage(c *gin.Context, err error) {
	msg := "blocked by fedgate WAF"
	if err != nil {
		msg = err.Error()
	}
	c.JSON(http.StatusForbidden, model.CommonResponse[any]{
		Success: false,
		Error:   msg,
	})
	c.Abort()
}
