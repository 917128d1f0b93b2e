package singleton

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/fedgatehq/fedgate/model"
	"github.com/fedgatehq/fedgate/pkg/provider"
)

// AuthClass 串联凭据、state、供应商与绑定台账，实现登录、绑定、
// 解绑与令牌轮换的完整编排。所有账号与台账写入都在单个事务内，
// state 消费在外部交换成功之后、任何写入之前。
type AuthClass struct {
	db         *gorm.DB
	credential *CredentialClass
	state      *StateClass
	bind       *BindClass
}

func NewAuthClass(db *gorm.DB, credential *CredentialClass, state *StateClass, bind *BindClass) *AuthClass {
	return &AuthClass{db: db, credential: credential, state: state, bind: bind}
}

type InitiateRequest struct {
	Platform   string
	ClientType string
	Action     string
	UserID     uint64

	RedirectURL string
	ExtraData   string
	IP          string
	UserAgent   string
}

type CompleteRequest struct {
	Platform   string
	Code       string
	StateToken string
	ClientType string

	IP        string
	UserAgent string
}

type LoginOutcome struct {
	User      *model.User
	Binding   *model.Oauth2Bind
	IsNewUser bool
}

// Initiate 解析平台凭据、签发 state 并产出跳转地址。
// 原生 SDK 流程没有浏览器跳转，auth_url 为空，调用方凭 state 直接
// 走完成阶段。
func (a *AuthClass) Initiate(req *InitiateRequest) (*model.Oauth2InitiateResponse, error) {
	if req.Action != model.Oauth2ActionLogin && req.Action != model.Oauth2ActionBind {
		return nil, newAuthError(ErrKindInvalidRequest, "unknown action %s", req.Action)
	}
	if req.Action == model.Oauth2ActionBind && req.UserID == 0 {
		return nil, newAuthError(ErrKindInvalidRequest, "binding requires a signed-in user")
	}
	clientType := req.ClientType
	if clientType == "" {
		clientType = model.DefaultClientType(req.Platform)
	}
	if !model.IsValidClientType(clientType) {
		return nil, newAuthError(ErrKindInvalidRequest, "unknown client type %s", clientType)
	}

	cred, err := a.credential.Resolve(req.Platform, clientType)
	if err != nil {
		return nil, err
	}
	p, err := provider.New(req.Platform, cred)
	if err != nil {
		return nil, err
	}

	state, err := a.state.Issue(&IssueStateRequest{
		ConfigID:    cred.Config.ID,
		Platform:    req.Platform,
		ClientType:  clientType,
		Action:      req.Action,
		UserID:      req.UserID,
		RedirectURL: req.RedirectURL,
		ExtraData:   req.ExtraData,
		IP:          req.IP,
		UserAgent:   req.UserAgent,
	})
	if err != nil {
		return nil, err
	}

	authURL, err := p.BuildAuthURL(state.Token)
	if err != nil {
		return nil, err
	}
	return &model.Oauth2InitiateResponse{
		AuthURL:   authURL,
		State:     state.Token,
		ExpiresAt: state.ExpiresAt.In(Loc).Format("2006-01-02 15:04:05"),
	}, nil
}

// CompleteLogin 用授权码完成登录。首次出现的外部身份铸造新本地账号，
// 账号与台账写入在同一事务内，任一失败则全部回滚。
func (a *AuthClass) CompleteLogin(ctx context.Context, req *CompleteRequest) (*LoginOutcome, error) {
	entry := &model.Oauth2LoginLog{
		Platform:    req.Platform,
		Action:      model.Oauth2LogActionLogin,
		IP:          req.IP,
		UserAgent:   req.UserAgent,
		RequestData: redactRequest(req),
	}
	outcome, err := a.completeLogin(ctx, req, entry)
	a.finishAudit(entry, err)
	return outcome, err
}

func (a *AuthClass) completeLogin(ctx context.Context, req *CompleteRequest, entry *model.Oauth2LoginLog) (*LoginOutcome, error) {
	cred, state, err := a.resolveCompletion(req, model.Oauth2ActionLogin, entry)
	if err != nil {
		return nil, err
	}

	identity, err := a.exchange(ctx, req, cred, entry)
	if err != nil {
		return nil, err
	}
	entry.OpenID = identity.OpenID

	if err := a.consume(state); err != nil {
		return nil, err
	}

	var outcome *LoginOutcome
	err = a.db.Transaction(func(tx *gorm.DB) error {
		var txErr error
		outcome, txErr = a.loginTx(tx, cred, identity)
		return txErr
	})
	// 两个并发的首登可能撞上 (config, openid) 唯一索引，输家重走一次
	// 即可命中赢家刚建好的绑定
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		err = a.db.Transaction(func(tx *gorm.DB) error {
			var txErr error
			outcome, txErr = a.loginTx(tx, cred, identity)
			return txErr
		})
	}
	if err != nil {
		return nil, err
	}
	entry.UserID = outcome.User.ID
	return outcome, nil
}

func (a *AuthClass) loginTx(tx *gorm.DB, cred provider.Credential, identity *provider.Identity) (*LoginOutcome, error) {
	bind, err := a.bind.FindByConfigOpenID(tx, cred.Config.ID, identity.OpenID)
	if err != nil {
		return nil, err
	}

	if bind != nil && bind.Status.IsBound() {
		user, err := FindUserByID(tx, bind.UserID)
		if err != nil {
			return nil, err
		}
		if user == nil || !user.IsActive() {
			return nil, newAuthError(ErrKindUserInactive, "user is disabled")
		}
		if err := a.bind.TouchLogin(tx, bind, identity); err != nil {
			return nil, err
		}
		return &LoginOutcome{User: user, Binding: bind}, nil
	}

	// 未知身份或已解绑的历史身份：铸造新账号并建立（或恢复）绑定
	user, err := CreateUserForIdentity(tx, identity)
	if err != nil {
		return nil, err
	}
	bind, err = a.bind.Create(tx, user.ID, cred, identity)
	if err != nil {
		return nil, err
	}
	if err := a.bind.TouchLogin(tx, bind, identity); err != nil {
		return nil, err
	}
	return &LoginOutcome{User: user, Binding: bind, IsNewUser: true}, nil
}

// CompleteBind 为已登录用户追加平台绑定
func (a *AuthClass) CompleteBind(ctx context.Context, userID uint64, req *CompleteRequest) (*model.Oauth2Bind, error) {
	entry := &model.Oauth2LoginLog{
		UserID:      userID,
		Platform:    req.Platform,
		Action:      model.Oauth2LogActionBind,
		IP:          req.IP,
		UserAgent:   req.UserAgent,
		RequestData: redactRequest(req),
	}
	bind, err := a.completeBind(ctx, userID, req, entry)
	a.finishAudit(entry, err)
	return bind, err
}

func (a *AuthClass) completeBind(ctx context.Context, userID uint64, req *CompleteRequest, entry *model.Oauth2LoginLog) (*model.Oauth2Bind, error) {
	user, err := FindUserByID(a.db, userID)
	if err != nil {
		return nil, err
	}
	if user == nil || !user.IsActive() {
		return nil, newAuthError(ErrKindUserInactive, "user is disabled")
	}

	// 绑定改写既有账号，任何端类型都必须携带 state
	if req.StateToken == "" {
		return nil, newAuthError(ErrKindInvalidRequest, "state is required for binding")
	}

	cred, state, err := a.resolveCompletion(req, model.Oauth2ActionBind, entry)
	if err != nil {
		return nil, err
	}
	// 发起与完成必须是同一个用户
	if state != nil && state.UserID != userID {
		model.BlockIP(a.db, req.IP, model.WAFBlockReasonTypeIdentityMismatch, int64(userID))
		return nil, newAuthError(ErrKindIdentityMismatch, "binding was initiated by another user")
	}

	identity, err := a.exchange(ctx, req, cred, entry)
	if err != nil {
		return nil, err
	}
	entry.OpenID = identity.OpenID

	if err := a.consume(state); err != nil {
		return nil, err
	}

	var bind *model.Oauth2Bind
	err = a.db.Transaction(func(tx *gorm.DB) error {
		existing, txErr := a.bind.FindByConfigOpenID(tx, cred.Config.ID, identity.OpenID)
		if txErr != nil {
			return txErr
		}
		if existing != nil && existing.Status.IsBound() {
			if existing.UserID == userID {
				return newAuthError(ErrKindAlreadyBoundBySelf, "this account is already bound to you")
			}
			return newAuthError(ErrKindAlreadyBoundByOther, "this account is bound to another user")
		}
		mine, txErr := a.bind.FindByUserConfig(tx, userID, cred.Config.ID)
		if txErr != nil {
			return txErr
		}
		if mine != nil && mine.Status.IsBound() {
			return newAuthError(ErrKindAlreadyBoundBySelf, "you already hold a binding on this platform")
		}

		bind, txErr = a.bind.Create(tx, userID, cred, identity)
		return txErr
	})
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return nil, newAuthError(ErrKindAlreadyBoundByOther, "this account is bound to another user")
	}
	if err != nil {
		return nil, err
	}
	return bind, nil
}

// Unbind 逻辑解绑用户在某平台的生效绑定
func (a *AuthClass) Unbind(userID uint64, platform, ip, userAgent string) error {
	entry := &model.Oauth2LoginLog{
		UserID:    userID,
		Platform:  platform,
		Action:    model.Oauth2LogActionUnbind,
		IP:        ip,
		UserAgent: userAgent,
	}
	err := a.db.Transaction(func(tx *gorm.DB) error {
		bind, txErr := a.bind.Unbind(tx, userID, platform)
		if txErr != nil {
			return txErr
		}
		entry.OpenID = bind.OpenID
		return nil
	})
	a.finishAudit(entry, err)
	return err
}

// ListBindings 列出用户的生效绑定摘要
func (a *AuthClass) ListBindings(userID uint64) ([]model.Oauth2BindSummary, error) {
	return a.bind.ListSummaries(userID)
}

// RefreshToken 轮换某条绑定存储的访问令牌
func (a *AuthClass) RefreshToken(ctx context.Context, userID, bindID uint64) (*model.Oauth2RefreshTokenResult, error) {
	entry := &model.Oauth2LoginLog{
		UserID: userID,
		Action: model.Oauth2LogActionRefresh,
	}
	result, err := a.refreshToken(ctx, userID, bindID, entry)
	a.finishAudit(entry, err)
	return result, err
}

func (a *AuthClass) refreshToken(ctx context.Context, userID, bindID uint64, entry *model.Oauth2LoginLog) (*model.Oauth2RefreshTokenResult, error) {
	var bind model.Oauth2Bind
	result := a.db.Where("id = ? AND user_id = ? AND status = ?", bindID, userID, model.BindStatusBound).
		Limit(1).Find(&bind)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected < 1 {
		return nil, newAuthError(ErrKindNotBound, "binding not found")
	}
	entry.Platform = bind.Platform
	entry.OpenID = bind.OpenID

	refresh, err := a.bind.DecryptRefreshToken(&bind)
	if err != nil {
		return nil, err
	}
	if refresh == "" {
		return nil, newAuthError(ErrKindNoRefreshToken, "platform issued no refresh token for this binding")
	}

	cred, err := a.credential.ResolveByID(bind.ConfigID)
	if err != nil {
		return nil, err
	}
	p, err := provider.New(bind.Platform, cred)
	if err != nil {
		return nil, err
	}

	pair, err := p.RefreshToken(ctx, refresh)
	if err != nil {
		if errors.Is(err, provider.ErrRefreshUnsupported) {
			return nil, newAuthError(ErrKindRefreshUnsupported, "platform %s does not support token refresh", bind.Platform)
		}
		return nil, err
	}
	if err := a.bind.UpdateTokens(&bind, pair); err != nil {
		return nil, err
	}
	return &model.Oauth2RefreshTokenResult{
		AccessToken: pair.AccessToken,
		ExpiresIn:   pair.ExpiresIn,
	}, nil
}

// resolveCompletion 解析完成阶段使用的凭据与 state。带 state 走状态
// 校验与配置回查；原生 SDK 流程可以不带 state，按平台默认端类型直接
// 检索配置，网页流程必须带 state。
func (a *AuthClass) resolveCompletion(req *CompleteRequest, action string, entry *model.Oauth2LoginLog) (provider.Credential, *model.Oauth2State, error) {
	if req.StateToken != "" {
		state, err := a.state.Validate(req.StateToken)
		if err != nil {
			return provider.Credential{}, nil, err
		}
		if state.Action != action || (req.Platform != "" && state.Platform != req.Platform) {
			return provider.Credential{}, nil, newAuthError(ErrKindStateInvalid, "state is invalid or expired")
		}
		entry.Platform = state.Platform
		entry.ClientType = state.ClientType
		cred, err := a.credential.ResolveByID(state.ConfigID)
		if err != nil {
			return provider.Credential{}, nil, err
		}
		return cred, state, nil
	}

	clientType := req.ClientType
	if clientType == "" {
		clientType = model.DefaultClientType(req.Platform)
	}
	if clientType == model.ClientTypeWeb {
		return provider.Credential{}, nil, newAuthError(ErrKindInvalidRequest, "state is required for web flows")
	}
	entry.ClientType = clientType
	cred, err := a.credential.Resolve(req.Platform, clientType)
	if err != nil {
		return provider.Credential{}, nil, err
	}
	return cred, nil, nil
}

func (a *AuthClass) exchange(ctx context.Context, req *CompleteRequest, cred provider.Credential, entry *model.Oauth2LoginLog) (*provider.Identity, error) {
	if req.Code == "" {
		return nil, newAuthError(ErrKindInvalidRequest, "authorization code is required")
	}
	p, err := provider.New(cred.Config.Platform, cred)
	if err != nil {
		return nil, err
	}
	identity, err := p.ExchangeCode(ctx, req.Code)
	if err != nil {
		// 平台判定授权码无效，多半是回放或爆破
		if pe, ok := provider.AsError(err); ok && pe.Kind == provider.ErrorKindPlatform {
			model.BlockIP(a.db, req.IP, model.WAFBlockReasonTypeBruteForceOauth2, model.BlockIDUnknownUser)
		}
		return nil, err
	}
	return identity, nil
}

// consume 原子消费 state；并发输家视为 state 已失效，不做任何写入
func (a *AuthClass) consume(state *model.Oauth2State) error {
	if state == nil {
		return nil
	}
	won, err := a.state.Consume(state.Token)
	if err != nil {
		return err
	}
	if !won {
		return newAuthError(ErrKindStateInvalid, "state is invalid or expired")
	}
	return nil
}

// redactRequest 审计快照不落授权码与 token 本体
func redactRequest(req *CompleteRequest) string {
	return redactJSON(map[string]any{
		"platform":    req.Platform,
		"client_type": req.ClientType,
		"has_state":   req.StateToken != "",
		"has_code":    req.Code != "",
	})
}

func (a *AuthClass) finishAudit(entry *model.Oauth2LoginLog, err error) {
	entry.Success = err == nil
	if err != nil {
		entry.ErrorKind = errorKindOf(err)
		entry.ErrorMessage = err.Error()
	}
	entry.ResponseData = redactJSON(map[string]any{"success": entry.Success, "error_kind": entry.ErrorKind})
	recordAttempt(a.db, entry)
}
