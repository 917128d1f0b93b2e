package model

type CommonResponse[T any] struct {
	Success bool   `json:"success,omitempty"`
	Data    T      `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

type PaginatedResponse[S ~[]E, E any] struct {
	Success bool      `json:"success,omitempty"`
	Data    *Value[S] `json:"data,omitempty"`
	Error   string    `json:"error,omitempty"`
}

type Value[T any] struct {
	Value      T          `json:"value,omitempty"`
	Pagination Pagination `json:"pagination,omitempty"`
}

type Pagination struct {
	Offset int   `json:"offset,omitempty"`
	Limit  int   `json:"limit,omitempty"`
	Total  int64 `json:"total,omitempty"`
}

type LoginRequest struct {
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`
}

type LoginResponse struct {
	Token  string `json:"token,omitempty"`
	Expire string `json:"expire,omitempty"`
}

type Oauth2InitiateResponse struct {
	AuthURL   string `json:"auth_url,omitempty"`
	State     string `json:"state,omitempty"`
	ExpiresAt string `json:"expires_at,omitempty"`
}

type Oauth2Callback struct {
	Code        string `json:"code,omitempty" form:"code"`
	State       string `json:"state,omitempty" form:"state"`
	ClientType  string `json:"client_type,omitempty" form:"client_type"`
	RedirectURL string `json:"redirect_url,omitempty" form:"redirect_url"`
}

type Oauth2UserSummary struct {
	UserID   uint64 `json:"user_id,omitempty"`
	Username string `json:"username,omitempty"`
	Nickname string `json:"nickname,omitempty"`
	Avatar   string `json:"avatar,omitempty"`
}

type Oauth2LoginResult struct {
	Token     string             `json:"token,omitempty"`
	Expire    string             `json:"expire,omitempty"`
	User      *Oauth2UserSummary `json:"user,omitempty"`
	IsNewUser bool               `json:"is_new_user"`
	Platform  string             `json:"platform,omitempty"`
	Binding   *Oauth2BindSummary `json:"binding,omitempty"`
}

type Oauth2RefreshTokenResult struct {
	AccessToken string `json:"access_token,omitempty"`
	ExpiresIn   int64  `json:"expires_in,omitempty"`
}
