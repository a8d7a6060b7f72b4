package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/artinerary/messaging-backend/internal/database"
	"github.com/artinerary/messaging-backend/internal/models"
	"github.com/artinerary/messaging-backend/internal/services"
	"github.com/artinerary/messaging-backend/pkg/logger"
	"github.com/artinerary/messaging-backend/pkg/utils"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

const usersPageSize = 20

// ListUsers returns the contact directory: every user except the caller, with
// presence and whether a conversation already exists. Supports ?q= search on
// username/name and ?page= pagination.
func ListUsers(c *gin.Context) {
	userId := c.MustGet("userId").(string)

	page, err := strconv.Atoi(c.DefaultQuery("page", "1"))
	if err != nil || page < 1 {
		page = 1
	}

	q := database.DB.Model(&models.User{}).Where("id <> ?", userId)

	search := c.Query("q")
	if search != "" {
		pattern := utils.SanitizeSearchQuery(search)
		q = q.Where("username LIKE ? OR name LIKE ?", pattern, pattern)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		logger.Error().Err(err).Msg("Failed to count users")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch users"})
		return
	}

	var users []models.User
	if err := q.Order("username ASC").
		Limit(usersPageSize).
		Offset((page - 1) * usersPageSize).
		Find(&users).Error; err != nil {
		logger.Error().Err(err).Msg("Failed to fetch users")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch users"})
		return
	}

	results := make([]gin.H, 0, len(users))
	for i := range users {
		hasConversation := false
		if _, err := services.FindConversation(userId, users[i].ID); err == nil {
			hasConversation = true
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			logger.Warn().Err(err).Msg("Conversation lookup failed")
		}

		results = append(results, gin.H{
			"user":            users[i],
			"isOnline":        services.IsOnline(users[i].ID),
			"hasConversation": hasConversation,
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"users": results,
		"page":  page,
		"total": total,
	})
}
