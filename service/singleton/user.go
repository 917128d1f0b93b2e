package singleton

import (
	"fmt"

	petname "github.com/dustinkirkland/golang-petname"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/fedgatehq/fedgate/model"
	"github.com/fedgatehq/fedgate/pkg/provider"
	"github.com/fedgatehq/fedgate/pkg/utils"
)

// FindUserByID 按主键取用户，不存在时返回 nil
func FindUserByID(tx *gorm.DB, id uint64) (*model.User, error) {
	var user model.User
	result := tx.Where("id = ?", id).Limit(1).Find(&user)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected < 1 {
		return nil, nil
	}
	return &user, nil
}

// CreateUserForIdentity 为首次登录的外部身份铸造本地账号。
// 用户名随机生成且保证唯一，账号默认拒绝密码登录。
func CreateUserForIdentity(tx *gorm.DB, identity *provider.Identity) (*model.User, error) {
	username := fmt.Sprintf("%s-%s", petname.Generate(2, "-"), utils.MustGenerateRandomString(6))
	hash, err := bcrypt.GenerateFromPassword([]byte(utils.MustGenerateRandomString(32)), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	nickname := identity.Nickname
	if nickname == "" {
		nickname = username
	}
	user := &model.User{
		Username:       username,
		Password:       string(hash),
		Nickname:       nickname,
		Avatar:         identity.Avatar,
		Role:           model.RoleMember,
		RejectPassword: true,
	}
	if err := tx.Create(user).Error; err != nil {
		return nil, err
	}
	return user, nil
}
