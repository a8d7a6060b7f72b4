package services

import (
	"errors"
	"time"

	"github.com/artinerary/messaging-backend/internal/database"
	"github.com/artinerary/messaging-backend/internal/models"
	"gorm.io/gorm"
)

// OnlineWindow is the liveness window for presence. A user whose last heartbeat
// is older than this is reported offline even if no explicit offline transition
// ever ran, so a vanished client decays to offline without a background sweep.
const OnlineWindow = 5 * time.Minute

// GetOrCreateStatus returns the user's presence record, creating it on demand
func GetOrCreateStatus(userID string) (*models.UserOnlineStatus, error) {
	var status models.UserOnlineStatus
	err := database.DB.First(&status, "user_id = ?", userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		status = models.UserOnlineStatus{UserID: userID, LastSeen: time.Now()}
		if createErr := database.DB.Create(&status).Error; createErr != nil {
			if isUniqueViolation(createErr) {
				err = database.DB.First(&status, "user_id = ?", userID).Error
				if err != nil {
					return nil, err
				}
				return &status, nil
			}
			return nil, createErr
		}
		return &status, nil
	}
	if err != nil {
		return nil, err
	}
	return &status, nil
}

// SetOnline marks the user online and refreshes last_seen
func SetOnline(userID string) error {
	status, err := GetOrCreateStatus(userID)
	if err != nil {
		return err
	}
	return database.DB.Model(status).Updates(map[string]interface{}{
		"is_online": true,
		"last_seen": time.Now(),
	}).Error
}

// SetOffline marks the user offline and refreshes last_seen
func SetOffline(userID string) error {
	status, err := GetOrCreateStatus(userID)
	if err != nil {
		return err
	}
	return database.DB.Model(status).Updates(map[string]interface{}{
		"is_online": false,
		"last_seen": time.Now(),
	}).Error
}

// IsOnline reports whether the user is currently online. A user with no
// presence record is offline, not an error. The online flag decays once
// last_seen falls outside the liveness window.
func IsOnline(userID string) bool {
	var status models.UserOnlineStatus
	if err := database.DB.First(&status, "user_id = ?", userID).Error; err != nil {
		return false
	}
	return status.IsOnline && time.Since(status.LastSeen) <= OnlineWindow
}

// LastSeen returns the user's last-seen timestamp, or nil if never recorded
func LastSeen(userID string) *time.Time {
	var status models.UserOnlineStatus
	if err := database.DB.First(&status, "user_id = ?", userID).Error; err != nil {
		return nil
	}
	return &status.LastSeen
}
