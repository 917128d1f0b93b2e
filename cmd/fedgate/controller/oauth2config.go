package controller

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/jinzhu/copier"

	"github.com/fedgatehq/fedgate/model"
	"github.com/fedgatehq/fedgate/service/singleton"
)

// List platform configurations
// @Summary List platform configurations
// @Security BearerAuth
// @Schemes
// @Description List platform configurations, secrets are never returned
// @Tags admin required
// @Produce json
// @Success 200 {object} model.CommonResponse[[]model.Oauth2Config]
// @Router /oauth2-config [get]
func listOauth2Config(c *gin.Context) ([]model.Oauth2Config, error) {
	var configs []model.Oauth2Config
	if err := singleton.DB.Omit("app_secret").Find(&configs).Error; err != nil {
		return nil, err
	}
	return configs, nil
}

// Create platform configuration
// @Summary Create platform configuration
// @Security BearerAuth
// @Schemes
// @Description Create platform configuration
// @Tags admin required
// @Accept json
// @param request body model.Oauth2ConfigForm true "Config Request"
// @Produce json
// @Success 200 {object} model.CommonResponse[uint64]
// @Router /oauth2-config [post]
func createOauth2Config(c *gin.Context) (uint64, error) {
	var cf model.Oauth2ConfigForm
	if err := c.ShouldBindJSON(&cf); err != nil {
		return 0, err
	}
	if cf.Platform == "" || cf.AppID == "" {
		return 0, singleton.Localizer.ErrorT("platform and app_id can't be empty")
	}
	if cf.ClientType == "" {
		cf.ClientType = model.DefaultClientType(cf.Platform)
	}
	if !model.IsValidClientType(cf.ClientType) {
		return 0, singleton.Localizer.ErrorT("unknown client type %s", cf.ClientType)
	}

	var config model.Oauth2Config
	if err := copier.Copy(&config, &cf); err != nil {
		return 0, err
	}
	secret, err := singleton.CredentialShared.EncryptSecret(cf.AppSecret)
	if err != nil {
		return 0, err
	}
	config.AppSecret = secret

	if err := singleton.DB.Create(&config).Error; err != nil {
		return 0, newGormError("%v", err)
	}
	singleton.CredentialShared.Invalidate(config.Platform, config.ClientType)
	return config.ID, nil
}

// Update platform configuration
// @Summary Update platform configuration
// @Security BearerAuth
// @Schemes
// @Description Update platform configuration, empty app_secret keeps the stored one
// @Tags admin required
// @Accept json
// @Param id path uint true "config id"
// @param request body model.Oauth2ConfigForm true "Config Request"
// @Produce json
// @Success 200 {object} model.CommonResponse[any]
// @Router /oauth2-config/{id} [patch]
func updateOauth2Config(c *gin.Context) (any, error) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		return nil, err
	}
	var cf model.Oauth2ConfigForm
	if err := c.ShouldBindJSON(&cf); err != nil {
		return nil, err
	}

	var config model.Oauth2Config
	if err := singleton.DB.First(&config, id).Error; err != nil {
		return nil, singleton.Localizer.ErrorT("config id %d does not exist", id)
	}
	oldPlatform, oldClientType := config.Platform, config.ClientType

	storedSecret := config.AppSecret
	if err := copier.Copy(&config, &cf); err != nil {
		return nil, err
	}
	if cf.AppSecret != "" {
		secret, err := singleton.CredentialShared.EncryptSecret(cf.AppSecret)
		if err != nil {
			return nil, err
		}
		config.AppSecret = secret
	} else {
		config.AppSecret = storedSecret
	}
	config.Enabled = cf.Enabled

	if err := singleton.DB.Save(&config).Error; err != nil {
		return nil, newGormError("%v", err)
	}
	singleton.CredentialShared.Invalidate(oldPlatform, oldClientType)
	singleton.CredentialShared.Invalidate(config.Platform, config.ClientType)
	return nil, nil
}

// Batch delete platform configurations
// @Summary Batch delete platform configurations
// @Security BearerAuth
// @Schemes
// @Description Batch delete platform configurations
// @Tags admin required
// @Accept json
// @param request body []uint64 true "id list"
// @Produce json
// @Success 200 {object} model.CommonResponse[any]
// @Router /batch-delete/oauth2-config [post]
func batchDeleteOauth2Config(c *gin.Context) (any, error) {
	var ids []uint64
	if err := c.ShouldBindJSON(&ids); err != nil {
		return nil, err
	}

	var configs []model.Oauth2Config
	if err := singleton.DB.Select("id", "platform", "client_type").Where("id in (?)", ids).Find(&configs).Error; err != nil {
		return nil, newGormError("%v", err)
	}
	if err := singleton.DB.Unscoped().Delete(&model.Oauth2Config{}, "id in (?)", ids).Error; err != nil {
		return nil, newGormError("%v", err)
	}
	for _, config := range configs {
		singleton.CredentialShared.Invalidate(config.Platform, config.ClientType)
	}
	return nil, nil
}
