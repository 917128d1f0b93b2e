package controller

import (
	"slices"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/fedgatehq/fedgate/model"
	"github.com/fedgatehq/fedgate/service/singleton"
)

// Get profile
// @Summary Get profile
// @Security BearerAuth
// @Schemes
// @Description Get profile
// @Tags auth required
// @Produce json
// @Success 200 {object} model.CommonResponse[model.Profile]
// @Router /profile [get]
func getProfile(c *gin.Context) (*model.Profile, error) {
	auth, ok := c.Get(model.CtxKeyAuthorizedUser)
	if !ok {
		return nil, singleton.Localizer.ErrorT("unauthorized")
	}
	var ob []model.Oauth2Bind
	if err := singleton.DB.Where("user_id = ? AND status = ?", auth.(*model.User).ID, model.BindStatusBound).Find(&ob).Error; err != nil {
		return nil, newGormError("%v", err)
	}
	var obMap = make(map[string]string)
	for _, v := range ob {
		obMap[v.Platform] = v.OpenID
	}
	return &model.Profile{
		User:       *auth.(*model.User),
		LoginIP:    c.GetString(model.CtxKeyRealIPStr),
		Oauth2Bind: obMap,
	}, nil
}

// Update profile for current user
// @Summary Update profile for current user
// @Security BearerAuth
// @Schemes
// @Description Update username/password for current user
// @Tags auth required
// @Accept json
// @param request body model.ProfileForm true "profile"
// @Produce json
// @Success 200 {object} model.CommonResponse[any]
// @Router /profile [post]
func updateProfile(c *gin.Context) (any, error) {
	var pf model.ProfileForm
	if err := c.ShouldBindJSON(&pf); err != nil {
		return 0, err
	}

	auth, ok := c.Get(model.CtxKeyAuthorizedUser)
	if !ok {
		return nil, singleton.Localizer.ErrorT("unauthorized")
	}

	user := *auth.(*model.User)
	if !user.RejectPassword {
		if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(pf.OriginalPassword)); err != nil {
			return nil, singleton.Localizer.ErrorT("incorrect password")
		}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(pf.NewPassword), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	var bindCount int64
	if err := singleton.DB.Model(&model.Oauth2Bind{}).Where("user_id = ? AND status = ?", user.ID, model.BindStatusBound).Count(&bindCount).Error; err != nil {
		return nil, newGormError("%v", err)
	}

	// 没有任何绑定的账号不允许关闭密码登录，避免彻底锁死
	if pf.RejectPassword && bindCount < 1 {
		return nil, singleton.Localizer.ErrorT("you don't have any oauth2 bindings")
	}

	if pf.NewUsername != "" {
		user.Username = pf.NewUsername
	}
	user.Password = string(hash)
	user.RejectPassword = pf.RejectPassword
	if err := singleton.DB.Save(&user).Error; err != nil {
		return nil, newGormError("%v", err)
	}
	return nil, nil
}

// List user
// @Summary List user
// @Security BearerAuth
// @Schemes
// @Description List user
// @Tags admin required
// @Produce json
// @Success 200 {object} model.CommonResponse[[]model.User]
// @Router /user [get]
func listUser(c *gin.Context) ([]model.User, error) {
	var users []model.User
	if err := singleton.DB.Omit("password").Find(&users).Error; err != nil {
		return nil, err
	}
	return users, nil
}

// Create user
// @Summary Create user
// @Security BearerAuth
// @Schemes
// @Description Create user
// @Tags admin required
// @Accept json
// @param request body model.UserForm true "User Request"
// @Produce json
// @Success 200 {object} model.CommonResponse[uint64]
// @Router /user [post]
func createUser(c *gin.Context) (uint64, error) {
	var uf model.UserForm
	if err := c.ShouldBindJSON(&uf); err != nil {
		return 0, err
	}

	if len(uf.Password) < 6 {
		return 0, singleton.Localizer.ErrorT("password length must be greater than 6")
	}
	if uf.Username == "" {
		return 0, singleton.Localizer.ErrorT("username can't be empty")
	}
	if uf.Role > model.RoleMember {
		return 0, singleton.Localizer.ErrorT("invalid role")
	}

	var u model.User
	u.Username = uf.Username
	u.Role = uf.Role

	hash, err := bcrypt.GenerateFromPassword([]byte(uf.Password), bcrypt.DefaultCost)
	if err != nil {
		return 0, err
	}
	u.Password = string(hash)

	if err := singleton.DB.Create(&u).Error; err != nil {
		return 0, newGormError("%v", err)
	}
	return u.ID, nil
}

// Batch delete users
// @Summary Batch delete users
// @Security BearerAuth
// @Schemes
// @Description Batch delete users and their binding rows
// @Tags admin required
// @Accept json
// @param request body []uint64 true "id list"
// @Produce json
// @Success 200 {object} model.CommonResponse[any]
// @Router /batch-delete/user [post]
func batchDeleteUser(c *gin.Context) (any, error) {
	var ids []uint64
	if err := c.ShouldBindJSON(&ids); err != nil {
		return nil, err
	}

	if slices.Contains(ids, getUid(c)) {
		return nil, singleton.Localizer.ErrorT("can't delete yourself")
	}

	err := singleton.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Unscoped().Delete(&model.User{}, "id in (?)", ids).Error; err != nil {
			return err
		}
		return tx.Unscoped().Delete(&model.Oauth2Bind{}, "user_id in (?)", ids).Error
	})
	if err != nil {
		return nil, newGormError("%v", err)
	}
	return nil, nil
}
