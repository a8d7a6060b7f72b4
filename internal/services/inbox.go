package services

import (
	"errors"

	"github.com/artinerary/messaging-backend/internal/database"
	"github.com/artinerary/messaging-backend/internal/models"
	"gorm.io/gorm"
)

// ConversationSummary is one inbox row: the conversation, the other
// participant, the last message visible to the viewer, the viewer's unread
// count, and the other participant's presence.
type ConversationSummary struct {
	Conversation models.Conversation    `json:"conversation"`
	OtherUser    models.User            `json:"otherUser"`
	LastMessage  *models.PrivateMessage `json:"lastMessage"`
	UnreadCount  int64                  `json:"unreadCount"`
	IsOnline     bool                   `json:"isOnline"`
}

// hiddenMarksFor loads the user's hidden marks keyed by conversation id
func hiddenMarksFor(userID string) (map[string]models.ConversationHidden, error) {
	var marks []models.ConversationHidden
	if err := database.DB.Where("user_id = ?", userID).Find(&marks).Error; err != nil {
		return nil, err
	}
	byConv := make(map[string]models.ConversationHidden, len(marks))
	for _, m := range marks {
		byConv[m.ConversationID] = m
	}
	return byConv, nil
}

// lastVisibleMessage returns the newest message in the conversation after the
// viewer's horizon, or nil when nothing is visible.
func lastVisibleMessage(conv *models.Conversation, horizon *models.ConversationHidden) (*models.PrivateMessage, error) {
	var msg models.PrivateMessage
	q := database.DB.Where("conversation_id = ?", conv.ID)
	if horizon != nil {
		q = q.Where("created_at > ?", horizon.HiddenAt)
	}
	err := q.Order("created_at DESC, id DESC").Preload("Sender").First(&msg).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

// BuildInbox assembles the user's conversation list. Conversations are ordered
// by true last activity (unfiltered), and a hidden conversation is excluded
// entirely unless a message arrived after the viewer's horizon.
func BuildInbox(userID string) ([]ConversationSummary, error) {
	convs, err := ConversationsForUser(userID)
	if err != nil {
		return nil, err
	}

	marks, err := hiddenMarksFor(userID)
	if err != nil {
		return nil, err
	}

	summaries := make([]ConversationSummary, 0, len(convs))
	for i := range convs {
		conv := &convs[i]

		var horizon *models.ConversationHidden
		if m, ok := marks[conv.ID]; ok {
			horizon = &m

			var newCount int64
			err := database.DB.Model(&models.PrivateMessage{}).
				Where("conversation_id = ? AND created_at > ?", conv.ID, m.HiddenAt).
				Count(&newCount).Error
			if err != nil {
				return nil, err
			}
			if newCount == 0 {
				// Fully hidden with nothing new; drop from the inbox
				continue
			}
		}

		last, err := lastVisibleMessage(conv, horizon)
		if err != nil {
			return nil, err
		}

		unread, err := UnreadCount(conv, userID)
		if err != nil {
			return nil, err
		}

		var other models.User
		if err := database.DB.First(&other, "id = ?", conv.OtherUserID(userID)).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				continue
			}
			return nil, err
		}

		summaries = append(summaries, ConversationSummary{
			Conversation: *conv,
			OtherUser:    other,
			LastMessage:  last,
			UnreadCount:  unread,
			IsOnline:     IsOnline(other.ID),
		})
	}

	return summaries, nil
}
