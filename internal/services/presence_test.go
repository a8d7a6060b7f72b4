package services

import (
	"testing"
	"time"

	"github.com/artinerary/messaging-backend/internal/database"
	"github.com/artinerary/messaging-backend/internal/models"
	"github.com/stretchr/testify/assert"
)

func TestIsOnline_DefaultsFalse(t *testing.T) {
	SetupTestDB()
	createUser(t, "pr_nobody")

	// Absence of a presence record is not an error
	assert.False(t, IsOnline("pr_nobody"))
	assert.Nil(t, LastSeen("pr_nobody"))
}

func TestSetOnlineOffline(t *testing.T) {
	SetupTestDB()
	createUser(t, "pr_flip")

	assert.NoError(t, SetOnline("pr_flip"))
	assert.True(t, IsOnline("pr_flip"))
	assert.NotNil(t, LastSeen("pr_flip"))

	assert.NoError(t, SetOffline("pr_flip"))
	assert.False(t, IsOnline("pr_flip"))
}

func TestIsOnline_DecaysAfterLivenessWindow(t *testing.T) {
	SetupTestDB()
	createUser(t, "pr_stale")

	// Online flag set, but the last heartbeat is outside the window
	stale := models.UserOnlineStatus{
		UserID:   "pr_stale",
		IsOnline: true,
		LastSeen: time.Now().Add(-OnlineWindow - time.Minute),
	}
	assert.NoError(t, database.DB.Create(&stale).Error)

	assert.False(t, IsOnline("pr_stale"))

	// A fresh heartbeat brings the user back
	assert.NoError(t, SetOnline("pr_stale"))
	assert.True(t, IsOnline("pr_stale"))
}

func TestGetOrCreateStatus_SingleRow(t *testing.T) {
	SetupTestDB()
	createUser(t, "pr_single")

	s1, err := GetOrCreateStatus("pr_single")
	assert.NoError(t, err)
	s2, err := GetOrCreateStatus("pr_single")
	assert.NoError(t, err)
	assert.Equal(t, s1.UserID, s2.UserID)

	var count int64
	database.DB.Model(&models.UserOnlineStatus{}).
		Where("user_id = ?", "pr_single").
		Count(&count)
	assert.Equal(t, int64(1), count)
}
