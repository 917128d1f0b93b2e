package controller

import (
	"strconv"
	"time"

	jwt "github.com/appleboy/gin-jwt/v2"
	"github.com/gin-gonic/gin"
	"github.com/jinzhu/copier"

	"github.com/fedgatehq/fedgate/model"
	"github.com/fedgatehq/fedgate/pkg/utils"
	"github.com/fedgatehq/fedgate/service/singleton"
)

// Initiate authorization handshake
// @Summary Initiate authorization handshake
// @Description Issue a one-time state and build the third-party authorization URL
// @Produce json
// @Param platform path string true "platform"
// @Param action query string false "action" Enums(login, bind) default(login)
// @Param client_type query string false "client type"
// @Param redirect_url query string false "post-login redirect"
// @Success 200 {object} model.CommonResponse[model.Oauth2InitiateResponse]
// @Router /oauth2/{platform} [get]
func oauth2initiate(c *gin.Context) (*model.Oauth2InitiateResponse, error) {
	platform := c.Param("platform")
	if platform == "" {
		return nil, singleton.Localizer.ErrorT("platform is required")
	}

	action := c.DefaultQuery("action", model.Oauth2ActionLogin)

	var userID uint64
	if auth, ok := c.Get(model.CtxKeyAuthorizedUser); ok {
		userID = auth.(*model.User).ID
	}
	if action == model.Oauth2ActionBind && userID == 0 {
		return nil, singleton.Localizer.ErrorT("unauthorized")
	}

	return singleton.AuthShared.Initiate(&singleton.InitiateRequest{
		Platform:    platform,
		ClientType:  c.Query("client_type"),
		Action:      action,
		UserID:      userID,
		RedirectURL: c.Query("redirect_url"),
		IP:          c.GetString(model.CtxKeyRealIPStr),
		UserAgent:   c.Request.UserAgent(),
	})
}

// Complete login
// @Summary Complete a login handshake
// @Description Trade the authorization code for a local session token
// @Accept json
// @Produce json
// @Param platform path string true "platform"
// @Param body body model.Oauth2Callback true "body"
// @Success 200 {object} model.CommonResponse[model.Oauth2LoginResult]
// @Router /oauth2/{platform}/callback [post]
func oauth2callback(jwtConfig *jwt.GinJWTMiddleware) func(c *gin.Context) (*model.Oauth2LoginResult, error) {
	return func(c *gin.Context) (*model.Oauth2LoginResult, error) {
		platform := c.Param("platform")
		if platform == "" {
			return nil, singleton.Localizer.ErrorT("platform is required")
		}

		var callbackData model.Oauth2Callback
		if err := c.ShouldBind(&callbackData); err != nil {
			return nil, err
		}

		realip := c.GetString(model.CtxKeyRealIPStr)
		outcome, err := singleton.AuthShared.CompleteLogin(c.Request.Context(), &singleton.CompleteRequest{
			Platform:   platform,
			Code:       callbackData.Code,
			StateToken: callbackData.State,
			ClientType: callbackData.ClientType,
			IP:         realip,
			UserAgent:  c.Request.UserAgent(),
		})
		if err != nil {
			return nil, err
		}

		tokenString, expire, err := jwtConfig.TokenGenerator(map[string]interface{}{
			"user_id": utils.Itoa(outcome.User.ID),
			"ip":      realip,
		})
		if err != nil {
			return nil, err
		}
		jwtConfig.SetCookie(c, tokenString)

		var binding model.Oauth2BindSummary
		if err := copier.Copy(&binding, outcome.Binding); err != nil {
			return nil, err
		}
		return &model.Oauth2LoginResult{
			Token:  tokenString,
			Expire: expire.Format(time.RFC3339),
			User: &model.Oauth2UserSummary{
				UserID:   outcome.User.ID,
				Username: outcome.User.Username,
				Nickname: outcome.User.Nickname,
				Avatar:   outcome.User.Avatar,
			},
			IsNewUser: outcome.IsNewUser,
			Platform:  outcome.Binding.Platform,
			Binding:   &binding,
		}, nil
	}
}

// Bind platform account
// @Summary Bind a platform account to the current user
// @Security BearerAuth
// @Description Complete a bind handshake for the signed-in user
// @Tags auth required
// @Accept json
// @Produce json
// @Param platform path string true "platform"
// @Param body body model.Oauth2Callback true "body"
// @Success 200 {object} model.CommonResponse[model.Oauth2BindSummary]
// @Router /oauth2/{platform}/bind [post]
func oauth2bind(c *gin.Context) (*model.Oauth2BindSummary, error) {
	platform := c.Param("platform")
	if platform == "" {
		return nil, singleton.Localizer.ErrorT("platform is required")
	}

	var callbackData model.Oauth2Callback
	if err := c.ShouldBind(&callbackData); err != nil {
		return nil, err
	}

	bind, err := singleton.AuthShared.CompleteBind(c.Request.Context(), getUid(c), &singleton.CompleteRequest{
		Platform:   platform,
		Code:       callbackData.Code,
		StateToken: callbackData.State,
		ClientType: callbackData.ClientType,
		IP:         c.GetString(model.CtxKeyRealIPStr),
		UserAgent:  c.Request.UserAgent(),
	})
	if err != nil {
		return nil, err
	}

	var summary model.Oauth2BindSummary
	if err := copier.Copy(&summary, bind); err != nil {
		return nil, err
	}
	return &summary, nil
}

// Unbind platform account
// @Summary Unbind a platform account
// @Security BearerAuth
// @Description Logically unbind, the ledger row is kept
// @Tags auth required
// @Produce json
// @Param platform path string true "platform"
// @Success 200 {object} model.CommonResponse[any]
// @Router /oauth2/{platform}/unbind [post]
func oauth2unbind(c *gin.Context) (any, error) {
	platform := c.Param("platform")
	if platform == "" {
		return nil, singleton.Localizer.ErrorT("platform is required")
	}
	return nil, singleton.AuthShared.Unbind(getUid(c), platform,
		c.GetString(model.CtxKeyRealIPStr), c.Request.UserAgent())
}

// List bindings
// @Summary List the current user's active bindings
// @Security BearerAuth
// @Description List the current user's active bindings
// @Tags auth required
// @Produce json
// @Success 200 {object} model.CommonResponse[[]model.Oauth2BindSummary]
// @Router /oauth2-binding [get]
func listOauth2Binding(c *gin.Context) ([]model.Oauth2BindSummary, error) {
	return singleton.AuthShared.ListBindings(getUid(c))
}

// Refresh stored platform token
// @Summary Rotate the access token stored for a binding
// @Security BearerAuth
// @Description Rotate the access token stored for a binding
// @Tags auth required
// @Produce json
// @Param id path uint true "binding id"
// @Success 200 {object} model.CommonResponse[model.Oauth2RefreshTokenResult]
// @Router /oauth2-binding/{id}/refresh-token [post]
func refreshOauth2Token(c *gin.Context) (*model.Oauth2RefreshTokenResult, error) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		return nil, err
	}
	return singleton.AuthShared.RefreshToken(c.Request.Context(), getUid(c), id)
}
