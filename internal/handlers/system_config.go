package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"botcontrol/internal/models"
	dbconfig "botcontrol/pkg/config"
)

// SystemParamsRequest represents the request body for updating a system param
type SystemParamsRequest struct {
	Name         string         `json:"name" binding:"required"`
	IsActive     *bool          `json:"is_active" binding:"required"`
	ParamsConfig models.JSONMap `json:"params_config"`
}

// ListSystemParams returns all system params
func ListSystemParams(c *gin.Context) {
	var params []models.SystemParams
	if err := dbconfig.DB.Find(&params).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, params)
}

// UpsertSystemParam creates or updates a system param by name. Flipping the
// kill_switch param on blocks every bot at the safety gate.
func UpsertSystemParam(c *gin.Context) {
	var request SystemParamsRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var param models.SystemParams
	err := dbconfig.DB.Where("name = ?", request.Name).First(&param).Error
	if err != nil {
		param = models.SystemParams{
			Name:         request.Name,
			IsActive:     *request.IsActive,
			ParamsConfig: request.ParamsConfig,
		}
		if err := dbconfig.DB.Create(&param).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusCreated, param)
		return
	}

	updates := map[string]interface{}{"is_active": *request.IsActive}
	if request.ParamsConfig != nil {
		updates["params_config"] = request.ParamsConfig
	}
	if err := dbconfig.DB.Model(&param).Updates(updates).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	param.IsActive = *request.IsActive
	c.JSON(http.StatusOK, param)
}

// GetKillSwitch reports the global kill switch state
func GetKillSwitch(c *gin.Context) {
	var param models.SystemParams
	err := dbconfig.DB.Where("name = ?", models.ParamKillSwitch).First(&param).Error
	if err != nil {
		c.JSON(http.StatusOK, gin.H{"name": models.ParamKillSwitch, "is_active": false})
		return
	}
	c.JSON(http.StatusOK, gin.H{"name": param.Name, "is_active": param.IsActive})
}
