package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/artinerary/messaging-backend/internal/database"
	"github.com/artinerary/messaging-backend/internal/models"
	"github.com/artinerary/messaging-backend/internal/services"
	"github.com/artinerary/messaging-backend/pkg/logger"
	"github.com/artinerary/messaging-backend/pkg/utils"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

const unreadCacheTTL = 30 * time.Second

// messagePayload is the wire shape for a single message
type messagePayload struct {
	ID        uint      `json:"id"`
	Content   string    `json:"content"`
	Sender    string    `json:"sender"`
	CreatedAt time.Time `json:"createdAt"`
	IsMine    bool      `json:"isMine"`
}

func toMessagePayload(msg *models.PrivateMessage, viewerID string) messagePayload {
	return messagePayload{
		ID:        msg.ID,
		Content:   msg.Content,
		Sender:    msg.Sender.Username,
		CreatedAt: msg.CreatedAt,
		IsMine:    msg.SenderID == viewerID,
	}
}

func invalidateUnreadCache(userIDs ...string) {
	keys := make([]string, 0, len(userIDs))
	for _, id := range userIDs {
		keys = append(keys, database.UnreadTotalKey(id))
	}
	if err := database.CacheInvalidate(keys...); err != nil && !errors.Is(err, database.ErrCacheUnavailable) {
		logger.Warn().Err(err).Msg("Failed to invalidate unread cache")
	}
}

// GetInbox returns the user's conversation list with last visible message,
// unread count and presence of the other participant
func GetInbox(c *gin.Context) {
	userId := c.MustGet("userId").(string)

	summaries, err := services.BuildInbox(userId)
	if err != nil {
		logger.Error().Err(err).Str("user_id", userId).Msg("Failed to build inbox")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch conversations"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"conversations": summaries})
}

// OpenConversation opens (creating if needed) the conversation with another
// user and returns its visible history. Opening marks the other side's
// visible messages as read. When arriving from an event page
// (?from_event=true) on a pre-existing conversation, a fresh-start horizon is
// established once.
func OpenConversation(c *gin.Context) {
	userId := c.MustGet("userId").(string)
	otherUserID := c.Param("userId")

	var other models.User
	if err := database.DB.First(&other, "id = ?", otherUserID).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		return
	}

	conv, created, err := services.GetOrCreateConversation(userId, otherUserID)
	if err != nil {
		if errors.Is(err, services.ErrSelfConversation) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Cannot message yourself"})
			return
		}
		logger.Error().Err(err).Msg("Failed to open conversation")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to open conversation"})
		return
	}

	if c.Query("from_event") == "true" && !created {
		if _, err := services.AutoHideOnEntry(conv, userId); err != nil {
			logger.Warn().Err(err).Str("conversation_id", conv.ID).Msg("Auto-hide on entry failed")
		}
	}

	marked, err := services.MarkConversationRead(conv, userId)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to mark conversation read")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to open conversation"})
		return
	}
	if marked > 0 {
		invalidateUnreadCache(userId)
	}

	msgs, err := services.MessagesAll(conv, userId)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to fetch messages")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch messages"})
		return
	}

	payloads := make([]messagePayload, 0, len(msgs))
	for i := range msgs {
		payloads = append(payloads, toMessagePayload(&msgs[i], userId))
	}

	c.JSON(http.StatusOK, gin.H{
		"conversation": conv,
		"otherUser":    other,
		"messages":     payloads,
		"isOnline":     services.IsOnline(other.ID),
	})
}

// SendMessage handles sending a text message, creating the conversation on
// first contact
func SendMessage(c *gin.Context) {
	senderID := c.MustGet("userId").(string)
	var req struct {
		RecipientID string `json:"recipientId" binding:"required"`
		Content     string `json:"content" binding:"required"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	var recipient models.User
	if err := database.DB.First(&recipient, "id = ?", req.RecipientID).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Recipient not found"})
		return
	}

	conv, _, err := services.GetOrCreateConversation(senderID, req.RecipientID)
	if err != nil {
		if errors.Is(err, services.ErrSelfConversation) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Cannot message yourself"})
			return
		}
		logger.Error().Err(err).Msg("Failed to resolve conversation")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to send message"})
		return
	}

	msg, err := services.AppendMessage(conv, senderID, req.Content)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrEmptyMessage):
			c.JSON(http.StatusBadRequest, gin.H{"error": "Message cannot be empty"})
		case errors.Is(err, services.ErrMessageTooLong):
			c.JSON(http.StatusBadRequest, gin.H{"error": "Message is too long"})
		case errors.Is(err, services.ErrNotParticipant):
			c.JSON(http.StatusForbidden, gin.H{"error": "Not a participant in this conversation"})
		default:
			logger.Error().Err(err).Msg("Failed to send message")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to send message"})
		}
		return
	}

	invalidateUnreadCache(req.RecipientID)

	// Populate sender for the echo payload
	if err := database.DB.Preload("Sender").First(msg, "id = ?", msg.ID).Error; err != nil {
		logger.Warn().Err(err).Uint("message_id", msg.ID).Msg("Failed to load sender for echo")
	}

	// Real-time push to both sides for multi-device sync
	emitToUser(req.RecipientID, "receive_message", gin.H{"message": toMessagePayload(msg, req.RecipientID)})
	emitToUser(senderID, "receive_message", gin.H{"message": toMessagePayload(msg, senderID)})

	c.JSON(http.StatusOK, gin.H{
		"status":  "success",
		"message": toMessagePayload(msg, senderID),
	})
}

// GetNewMessages is the polling endpoint: returns messages newer than lastId
// and marks the returned messages from the other user as read. An absent
// conversation yields an empty list, not an error.
func GetNewMessages(c *gin.Context) {
	userId := c.MustGet("userId").(string)
	otherUserID := c.Param("userId")

	lastID, err := strconv.ParseUint(c.DefaultQuery("lastId", "0"), 10, 64)
	if err != nil {
		lastID = 0
	}

	conv, err := services.FindConversation(userId, otherUserID)
	if err != nil {
		if errors.Is(err, services.ErrSelfConversation) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Cannot message yourself"})
			return
		}
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusOK, gin.H{"status": "success", "messages": []messagePayload{}})
			return
		}
		logger.Error().Err(err).Msg("Failed to find conversation")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch messages"})
		return
	}

	msgs, err := services.FetchNewMessages(conv, userId, uint(lastID))
	if err != nil {
		logger.Error().Err(err).Msg("Failed to fetch new messages")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch messages"})
		return
	}

	payloads := make([]messagePayload, 0, len(msgs))
	sawUnread := false
	for i := range msgs {
		if msgs[i].SenderID != userId {
			sawUnread = true
		}
		payloads = append(payloads, toMessagePayload(&msgs[i], userId))
	}
	if sawUnread {
		invalidateUnreadCache(userId)
	}

	c.JSON(http.StatusOK, gin.H{"status": "success", "messages": payloads})
}

// GetUnreadTotal returns the user's total unread count across all visible
// conversations, cached briefly in redis
func GetUnreadTotal(c *gin.Context) {
	userId := c.MustGet("userId").(string)

	var cached int64
	if err := database.CacheGet(database.UnreadTotalKey(userId), &cached); err == nil {
		c.JSON(http.StatusOK, gin.H{"status": "success", "count": cached})
		return
	}

	count, err := services.TotalUnread(userId)
	if err != nil {
		logger.Error().Err(err).Str("user_id", userId).Msg("Failed to count unread messages")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to count unread messages"})
		return
	}

	if err := database.CacheSet(database.UnreadTotalKey(userId), count, unreadCacheTTL); err != nil && !errors.Is(err, database.ErrCacheUnavailable) {
		logger.Warn().Err(err).Msg("Failed to cache unread count")
	}

	c.JSON(http.StatusOK, gin.H{"status": "success", "count": count})
}

// HideConversation hides the conversation from the caller's view only.
// Idempotent by overwrite: re-hiding advances the horizon to now, which also
// hides messages that arrived since the previous hide.
func HideConversation(c *gin.Context) {
	userId := c.MustGet("userId").(string)
	conversationID := c.Param("conversationId")

	if !utils.IsUUID(conversationID) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Conversation not found"})
		return
	}

	if _, err := services.HideConversation(conversationID, userId); err != nil {
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "Conversation not found"})
		case errors.Is(err, services.ErrNotParticipant):
			c.JSON(http.StatusForbidden, gin.H{"error": "Not a participant in this conversation"})
		default:
			logger.Error().Err(err).Msg("Failed to hide conversation")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to hide conversation"})
		}
		return
	}

	invalidateUnreadCache(userId)

	c.JSON(http.StatusOK, gin.H{"status": "success"})
}

// UpdateOnlineStatus is the presence heartbeat
func UpdateOnlineStatus(c *gin.Context) {
	userId := c.MustGet("userId").(string)

	if err := services.SetOnline(userId); err != nil {
		logger.Error().Err(err).Str("user_id", userId).Msg("Failed to update online status")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update status"})
		return
	}

	BroadcastPresenceUpdate(userId, true)

	c.JSON(http.StatusOK, gin.H{"status": "success"})
}
