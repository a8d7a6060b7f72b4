package services

import (
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/artinerary/messaging-backend/internal/database"
	"github.com/artinerary/messaging-backend/internal/models"
	"github.com/lib/pq"
	"gorm.io/gorm"
)

// NormalizePair canonicalizes an unordered user pair into (low, high) order.
// Every conversation lookup and insert goes through this so the composite
// unique index on (user1_id, user2_id) holds regardless of argument order.
func NormalizePair(userA, userB string) (string, string, error) {
	if userA == userB {
		return "", "", ErrSelfConversation
	}
	if userA > userB {
		userA, userB = userB, userA
	}
	return userA, userB, nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return errors.Is(err, gorm.ErrDuplicatedKey)
}

// GetOrCreateConversation returns the conversation for the pair, creating it
// on first contact. Safe under concurrent first contact from both sides: the
// loser of the insert race re-fetches the winner's row instead of failing.
func GetOrCreateConversation(userA, userB string) (*models.Conversation, bool, error) {
	u1, u2, err := NormalizePair(userA, userB)
	if err != nil {
		return nil, false, err
	}

	var conv models.Conversation
	err = database.DB.Where("user1_id = ? AND user2_id = ?", u1, u2).First(&conv).Error
	if err == nil {
		return &conv, false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, err
	}

	conv = models.Conversation{User1ID: u1, User2ID: u2}
	if createErr := database.DB.Create(&conv).Error; createErr != nil {
		if !isUniqueViolation(createErr) {
			// The unique constraint guarantees a winner exists after a losing
			// concurrent insert; re-fetch once before giving up.
			var existing models.Conversation
			if refetchErr := database.DB.Where("user1_id = ? AND user2_id = ?", u1, u2).First(&existing).Error; refetchErr == nil {
				return &existing, false, nil
			}
			return nil, false, createErr
		}
		var existing models.Conversation
		if err := database.DB.Where("user1_id = ? AND user2_id = ?", u1, u2).First(&existing).Error; err != nil {
			return nil, false, err
		}
		return &existing, false, nil
	}

	return &conv, true, nil
}

// FindConversation looks up the conversation for a pair without creating it.
// Returns gorm.ErrRecordNotFound when the users have never talked.
func FindConversation(userA, userB string) (*models.Conversation, error) {
	u1, u2, err := NormalizePair(userA, userB)
	if err != nil {
		return nil, err
	}

	var conv models.Conversation
	if err := database.DB.Where("user1_id = ? AND user2_id = ?", u1, u2).First(&conv).Error; err != nil {
		return nil, err
	}
	return &conv, nil
}

// ConversationsForUser lists every conversation the user participates in,
// most recently active first.
func ConversationsForUser(userID string) ([]models.Conversation, error) {
	var convs []models.Conversation
	err := database.DB.
		Where("user1_id = ? OR user2_id = ?", userID, userID).
		Order("updated_at DESC").
		Find(&convs).Error
	return convs, err
}

// AppendMessage validates and inserts a message, bumping the conversation's
// last-activity timestamp in the same transaction so inbox ordering can never
// disagree with message content.
func AppendMessage(conv *models.Conversation, senderID, content string) (*models.PrivateMessage, error) {
	if !conv.HasParticipant(senderID) {
		return nil, ErrNotParticipant
	}

	content = strings.TrimSpace(content)
	if content == "" {
		return nil, ErrEmptyMessage
	}
	if utf8.RuneCountInString(content) > models.MaxMessageLength {
		return nil, ErrMessageTooLong
	}

	now := time.Now()
	msg := models.PrivateMessage{
		ConversationID: conv.ID,
		SenderID:       senderID,
		Content:        content,
		CreatedAt:      now,
	}

	err := database.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&msg).Error; err != nil {
			return err
		}
		return tx.Model(&models.Conversation{}).
			Where("id = ?", conv.ID).
			Update("updated_at", now).Error
	})
	if err != nil {
		return nil, err
	}

	conv.UpdatedAt = now
	return &msg, nil
}

// HorizonFor returns the viewer's hidden_at cutoff for the conversation, or
// nil if the viewer never hid it.
func HorizonFor(conversationID, userID string) (*time.Time, error) {
	var hidden models.ConversationHidden
	err := database.DB.
		Where("conversation_id = ? AND user_id = ?", conversationID, userID).
		First(&hidden).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &hidden.HiddenAt, nil
}

func horizonScope(q *gorm.DB, horizon *time.Time) *gorm.DB {
	if horizon != nil {
		return q.Where("created_at > ?", *horizon)
	}
	return q
}

// MessagesAll returns the viewer's full visible history for the conversation,
// oldest first, with insertion order breaking wall-clock ties.
func MessagesAll(conv *models.Conversation, viewerID string) ([]models.PrivateMessage, error) {
	horizon, err := HorizonFor(conv.ID, viewerID)
	if err != nil {
		return nil, err
	}

	var msgs []models.PrivateMessage
	q := database.DB.Where("conversation_id = ?", conv.ID)
	err = horizonScope(q, horizon).
		Order("created_at ASC, id ASC").
		Preload("Sender").
		Find(&msgs).Error
	return msgs, err
}

// MessagesAfter returns the viewer's visible messages with id > sinceID,
// oldest first. Used by the polling endpoint.
func MessagesAfter(conv *models.Conversation, viewerID string, sinceID uint) ([]models.PrivateMessage, error) {
	horizon, err := HorizonFor(conv.ID, viewerID)
	if err != nil {
		return nil, err
	}

	var msgs []models.PrivateMessage
	q := database.DB.Where("conversation_id = ? AND id > ?", conv.ID, sinceID)
	err = horizonScope(q, horizon).
		Order("created_at ASC, id ASC").
		Preload("Sender").
		Find(&msgs).Error
	return msgs, err
}

// FetchNewMessages returns the viewer's visible messages after sinceID and,
// as a side effect, marks the fetched messages authored by the other
// participant as read.
func FetchNewMessages(conv *models.Conversation, viewerID string, sinceID uint) ([]models.PrivateMessage, error) {
	msgs, err := MessagesAfter(conv, viewerID, sinceID)
	if err != nil {
		return nil, err
	}

	var toMark []uint
	for i := range msgs {
		if msgs[i].SenderID != viewerID && !msgs[i].IsRead {
			toMark = append(toMark, msgs[i].ID)
		}
	}
	if len(toMark) > 0 {
		if err := database.DB.Model(&models.PrivateMessage{}).
			Where("id IN ?", toMark).
			Update("is_read", true).Error; err != nil {
			return nil, err
		}
		for i := range msgs {
			if msgs[i].SenderID != viewerID {
				msgs[i].IsRead = true
			}
		}
	}

	return msgs, nil
}

// HideConversation sets the user's horizon on the conversation to now,
// creating the mark on first hide and overwriting hidden_at on re-hide.
// Re-hiding deliberately advances the horizon over messages that arrived
// since the previous hide, hiding them as well.
func HideConversation(conversationID, userID string) (*models.ConversationHidden, error) {
	var conv models.Conversation
	if err := database.DB.First(&conv, "id = ?", conversationID).Error; err != nil {
		return nil, err
	}
	if !conv.HasParticipant(userID) {
		return nil, ErrNotParticipant
	}

	now := time.Now()
	var hidden models.ConversationHidden
	err := database.DB.
		Where("conversation_id = ? AND user_id = ?", conversationID, userID).
		First(&hidden).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		hidden = models.ConversationHidden{
			ConversationID: conversationID,
			UserID:         userID,
			HiddenAt:       now,
		}
		if createErr := database.DB.Create(&hidden).Error; createErr != nil {
			if isUniqueViolation(createErr) {
				// Lost a concurrent first hide; overwrite the winner's mark
				return HideConversation(conversationID, userID)
			}
			return nil, createErr
		}
		return &hidden, nil
	}
	if err != nil {
		return nil, err
	}

	hidden.HiddenAt = now
	if err := database.DB.Model(&hidden).Update("hidden_at", now).Error; err != nil {
		return nil, err
	}
	return &hidden, nil
}

// AutoHideOnEntry establishes a fresh-start horizon when a user opens a
// pre-existing conversation from a referral context (e.g. an event page).
// Fires only when no mark exists yet and the conversation already has
// messages, so returning to the conversation later does not re-trigger it.
func AutoHideOnEntry(conv *models.Conversation, userID string) (bool, error) {
	horizon, err := HorizonFor(conv.ID, userID)
	if err != nil {
		return false, err
	}
	if horizon != nil {
		return false, nil
	}

	var count int64
	if err := database.DB.Model(&models.PrivateMessage{}).
		Where("conversation_id = ?", conv.ID).
		Count(&count).Error; err != nil {
		return false, err
	}
	if count == 0 {
		return false, nil
	}

	hidden := models.ConversationHidden{
		ConversationID: conv.ID,
		UserID:         userID,
		HiddenAt:       time.Now(),
	}
	if err := database.DB.Create(&hidden).Error; err != nil {
		if isUniqueViolation(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// MarkConversationRead flips the read flag on every visible message the
// reader has not authored. Returns the number of rows changed; repeated
// calls are no-ops.
func MarkConversationRead(conv *models.Conversation, readerID string) (int64, error) {
	if !conv.HasParticipant(readerID) {
		return 0, ErrNotParticipant
	}

	horizon, err := HorizonFor(conv.ID, readerID)
	if err != nil {
		return 0, err
	}

	q := database.DB.Model(&models.PrivateMessage{}).
		Where("conversation_id = ? AND sender_id <> ? AND is_read = ?", conv.ID, readerID, false)
	q = horizonScope(q, horizon)

	result := q.Update("is_read", true)
	return result.RowsAffected, result.Error
}

// UnreadCount counts the user's visible unread messages in the conversation.
// Messages authored by the user are never counted.
func UnreadCount(conv *models.Conversation, userID string) (int64, error) {
	horizon, err := HorizonFor(conv.ID, userID)
	if err != nil {
		return 0, err
	}

	var count int64
	q := database.DB.Model(&models.PrivateMessage{}).
		Where("conversation_id = ? AND sender_id <> ? AND is_read = ?", conv.ID, userID, false)
	err = horizonScope(q, horizon).Count(&count).Error
	return count, err
}

// TotalUnread sums UnreadCount across all of the user's conversations, each
// filtered by that conversation's horizon. Per-user conversation counts are
// small, so the per-conversation loop is acceptable.
func TotalUnread(userID string) (int64, error) {
	convs, err := ConversationsForUser(userID)
	if err != nil {
		return 0, err
	}

	var total int64
	for i := range convs {
		n, err := UnreadCount(&convs[i], userID)
		if err != nil {
			return 0, err
		}
		total += n
	}
	return total, nil
}
