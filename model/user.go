package model

type Role uint8

func (r Role) IsAdmin() bool {
	return r == RoleAdmin
}

const (
	RoleAdmin Role = iota
	RoleMember
)

type User struct {
	Common
	Username       string `json:"username,omitempty" gorm:"uniqueIndex"`
	Password       string `json:"password,omitempty" gorm:"type:char(72)"`
	Nickname       string `json:"nickname,omitempty"`
	Avatar         string `json:"avatar,omitempty"`
	Role           Role   `json:"role,omitempty"`
	Disabled       bool   `json:"disabled,omitempty"`
	RejectPassword bool   `json:"reject_password,omitempty"`
}

func (u *User) IsActive() bool {
	return !u.Disabled
}

type Profile struct {
	User
	LoginIP    string            `json:"login_ip,omitempty"`
	Oauth2Bind map[string]string `json:"oauth2_bind,omitempty"`
}
