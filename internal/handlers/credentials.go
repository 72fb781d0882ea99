package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"botcontrol/internal/middleware"
	"botcontrol/internal/models"
	dbconfig "botcontrol/pkg/config"
	"botcontrol/pkg/crypto"
)

var keyManager *crypto.KeyManager

// InitKeyManager wires the master-key encryptor into the handler package.
func InitKeyManager(km *crypto.KeyManager) {
	keyManager = km
}

// ExchangeCredentialRequest carries a plaintext key pair. It is encrypted
// before touching the database and never echoed back.
type ExchangeCredentialRequest struct {
	Exchange  string `json:"exchange" binding:"required"`
	APIKey    string `json:"api_key" binding:"required"`
	APISecret string `json:"api_secret" binding:"required"`
}

// ListExchangeCredentials returns the caller's credentials without secrets
func ListExchangeCredentials(c *gin.Context) {
	var creds []models.ExchangeCredential
	if err := dbconfig.DB.Where("user_id = ?", middleware.CurrentUserID(c)).
		Find(&creds).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, creds)
}

// CreateExchangeCredential stores a new encrypted key pair. Any previous
// active credential for the same exchange is deactivated.
func CreateExchangeCredential(c *gin.Context) {
	var request ExchangeCredentialRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	keyEnc, err := keyManager.Encrypt(request.APIKey)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "credential encryption failed"})
		return
	}
	secretEnc, err := keyManager.Encrypt(request.APISecret)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "credential encryption failed"})
		return
	}

	userID := middleware.CurrentUserID(c)
	if err := dbconfig.DB.Model(&models.ExchangeCredential{}).
		Where("user_id = ? AND exchange = ?", userID, request.Exchange).
		Update("is_active", false).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	cred := models.ExchangeCredential{
		UserID:       userID,
		Exchange:     request.Exchange,
		APIKeyEnc:    keyEnc,
		APISecretEnc: secretEnc,
		IsActive:     true,
	}
	if err := dbconfig.DB.Create(&cred).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, cred)
}

// DeleteExchangeCredential removes a stored key pair
func DeleteExchangeCredential(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid ID format"})
		return
	}

	result := dbconfig.DB.Where("id = ? AND user_id = ?", id, middleware.CurrentUserID(c)).
		Delete(&models.ExchangeCredential{})
	if result.Error != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": result.Error.Error()})
		return
	}
	if result.RowsAffected == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "Record not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Exchange credential deleted successfully"})
}

// EmergencyStopRequest toggles the user-level emergency stop
type EmergencyStopRequest struct {
	Enabled *bool `json:"enabled" binding:"required"`
}

// SetEmergencyStop toggles the caller's emergency stop. When enabled, every
// bot owned by the user is blocked at the safety gate on its next run.
func SetEmergencyStop(c *gin.Context) {
	var request EmergencyStopRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID := middleware.CurrentUserID(c)
	var setting models.UserSetting
	err := dbconfig.DB.Where("user_id = ?", userID).First(&setting).Error
	if err != nil {
		setting = models.UserSetting{UserID: userID, EmergencyStop: *request.Enabled}
		if err := dbconfig.DB.Create(&setting).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
	} else {
		if err := dbconfig.DB.Model(&setting).
			Update("emergency_stop", *request.Enabled).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		setting.EmergencyStop = *request.Enabled
	}
	c.JSON(http.StatusOK, setting)
}

// GetUserSettings returns the caller's settings
func GetUserSettings(c *gin.Context) {
	var setting models.UserSetting
	err := dbconfig.DB.Where("user_id = ?", middleware.CurrentUserID(c)).
		First(&setting).Error
	if err != nil {
		c.JSON(http.StatusOK, models.UserSetting{UserID: middleware.CurrentUserID(c)})
		return
	}
	c.JSON(http.StatusOK, setting)
}
